package grpcplugin

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/voiced-ai/voiced/internal/backend"
)

// TTS is a backend.TTSAdapter streaming synthesized PCM chunks back from
// a plugin process, mirroring Generate's per-chunk-then-done shape.
type TTS struct {
	client *Client
}

func NewTTS(client *Client) *TTS {
	return &TTS{client: client}
}

func (a *TTS) Open(ctx context.Context, path string) (backend.Handle, error) {
	return a.client.open(ctx, path)
}

func (a *TTS) Close(h backend.Handle) error {
	return a.client.close(asPluginHandle(h))
}

func (a *TTS) ContextCapacity(h backend.Handle) int {
	return int(asPluginHandle(h).capacity)
}

func (a *TTS) ContextUsage(h backend.Handle) int {
	return a.client.contextUsage(asPluginHandle(h))
}

func (a *TTS) Synthesize(ctx context.Context, h backend.Handle, text, voice string, speed, pitch float64, onChunk backend.ChunkFunc) ([]float32, int, error) {
	req, err := structpb.NewStruct(map[string]any{
		"handle": asPluginHandle(h).id,
		"text":   text,
		"voice":  voice,
		"speed":  speed,
		"pitch":  pitch,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("encode synthesize request: %w", err)
	}
	stream, err := a.client.serverStream(ctx, "Synthesize", req)
	if err != nil {
		return nil, 0, err
	}

	var full []float32
	var sampleRate int
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if err == io.EOF {
				return nil, 0, fmt.Errorf("synthesize stream closed before a done message")
			}
			return nil, 0, fmt.Errorf("receive synthesize chunk: %w", err)
		}
		if msg.Fields["done"].GetBoolValue() {
			sampleRate = int(msg.Fields["sample_rate"].GetNumberValue())
			return full, sampleRate, nil
		}
		chunk, decErr := pcmFromBase64(msg.Fields["pcm_base64"].GetStringValue())
		if decErr != nil {
			return nil, 0, fmt.Errorf("decode synthesize chunk: %w", decErr)
		}
		full = append(full, chunk...)
		if onChunk != nil {
			onChunk(chunk)
		}
	}
}

func (a *TTS) Voices(h backend.Handle) []string {
	resp := new(structpb.Struct)
	if err := a.client.invoke(context.Background(), "Voices", wrapperspb.String(asPluginHandle(h).id), resp); err != nil {
		return nil
	}
	return stringListFromValue(resp.Fields["voices"])
}

var _ backend.TTSAdapter = (*TTS)(nil)
