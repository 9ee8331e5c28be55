package grpcplugin

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/voiced-ai/voiced/internal/backend"
)

// STT is a backend.STTAdapter forwarding Transcribe calls to a plugin
// process over a single unary RPC carrying base64-encoded PCM.
type STT struct {
	client *Client
}

func NewSTT(client *Client) *STT {
	return &STT{client: client}
}

func (a *STT) Open(ctx context.Context, path string) (backend.Handle, error) {
	return a.client.open(ctx, path)
}

func (a *STT) Close(h backend.Handle) error {
	return a.client.close(asPluginHandle(h))
}

func (a *STT) ContextCapacity(h backend.Handle) int {
	return int(asPluginHandle(h).capacity)
}

func (a *STT) ContextUsage(h backend.Handle) int {
	return a.client.contextUsage(asPluginHandle(h))
}

func (a *STT) Transcribe(ctx context.Context, h backend.Handle, pcm []float32, sampleRate int, lang string, wantWords bool) (backend.Transcription, error) {
	req, err := structpb.NewStruct(map[string]any{
		"handle":      asPluginHandle(h).id,
		"pcm_base64":  pcmToBase64(pcm),
		"sample_rate": float64(sampleRate),
		"lang":        lang,
		"want_words":  wantWords,
	})
	if err != nil {
		return backend.Transcription{}, fmt.Errorf("encode transcribe request: %w", err)
	}
	resp := new(structpb.Struct)
	if err := a.client.invoke(ctx, "Transcribe", req, resp); err != nil {
		return backend.Transcription{}, fmt.Errorf("transcribe via plugin: %w", err)
	}

	t := backend.Transcription{
		Text:       resp.Fields["text"].GetStringValue(),
		Confidence: resp.Fields["confidence"].GetNumberValue(),
		Language:   resp.Fields["language"].GetStringValue(),
	}
	if wantWords {
		for _, wv := range resp.Fields["words"].GetListValue().GetValues() {
			ws := wv.GetStructValue()
			if ws == nil {
				continue
			}
			t.Words = append(t.Words, backend.Word{
				Text:       ws.Fields["text"].GetStringValue(),
				StartS:     ws.Fields["start_s"].GetNumberValue(),
				EndS:       ws.Fields["end_s"].GetNumberValue(),
				Confidence: ws.Fields["confidence"].GetNumberValue(),
			})
		}
	}
	return t, nil
}

var _ backend.STTAdapter = (*STT)(nil)
