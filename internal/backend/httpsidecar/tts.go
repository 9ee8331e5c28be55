package httpsidecar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/voiced-ai/voiced/internal/audio"
	"github.com/voiced-ai/voiced/internal/backend"
	"github.com/voiced-ai/voiced/internal/httpclient"
)

// TTSConfig points the adapter at a running Piper-shaped server.
type TTSConfig struct {
	BaseURL         string
	Voices          []string
	ContextCapacity int
}

// TTS is a backend.TTSAdapter posting text for synthesis, grounded on the
// teacher's TTSClient (internal/pipeline/tts.go).
type TTS struct {
	cfg    TTSConfig
	client *httpclient.Client
}

func NewTTS(cfg TTSConfig) *TTS {
	return &TTS{cfg: cfg, client: httpclient.New(httpclient.DefaultConfig())}
}

type ttsHandle struct {
	mu       sync.Mutex
	capacity int
	usage    int
}

func (a *TTS) Open(ctx context.Context, path string) (backend.Handle, error) {
	return &ttsHandle{capacity: a.cfg.ContextCapacity}, nil
}

func (a *TTS) Close(h backend.Handle) error { return nil }

func (a *TTS) ContextCapacity(h backend.Handle) int {
	return h.(*ttsHandle).capacity
}

func (a *TTS) ContextUsage(h backend.Handle) int {
	hh := h.(*ttsHandle)
	hh.mu.Lock()
	defer hh.mu.Unlock()
	return hh.usage
}

func (a *TTS) Voices(h backend.Handle) []string {
	return a.cfg.Voices
}

// Synthesize posts text to the sidecar and decodes the returned WAV body
// into float32 PCM, optionally streaming it to onChunk in fixed windows.
func (a *TTS) Synthesize(ctx context.Context, h backend.Handle, text, voice string, speed, pitch float64, onChunk backend.ChunkFunc) ([]float32, int, error) {
	hh := h.(*ttsHandle)

	reqBody, err := json.Marshal(synthesizeRequest{Text: text, Voice: voice, Speed: speed, Pitch: pitch})
	if err != nil {
		return nil, 0, fmt.Errorf("marshal sidecar synthesize request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/synthesize", bytes.NewReader(reqBody))
	if err != nil {
		return nil, 0, fmt.Errorf("create sidecar synthesize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("sidecar synthesize request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, 0, fmt.Errorf("sidecar synthesize status %d: %s", resp.StatusCode, body)
	}

	wavBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("read sidecar synthesize response: %w", err)
	}

	pcm, sampleRate, err := audio.DecodeWAV(wavBytes)
	if err != nil {
		return nil, 0, err
	}

	if onChunk != nil {
		const chunkSize = 4096
		for i := 0; i < len(pcm); i += chunkSize {
			end := i + chunkSize
			if end > len(pcm) {
				end = len(pcm)
			}
			onChunk(pcm[i:end])
		}
	}

	hh.mu.Lock()
	hh.usage += len(text)
	hh.mu.Unlock()
	return pcm, sampleRate, nil
}

type synthesizeRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
	Pitch float64 `json:"pitch"`
}

var _ backend.TTSAdapter = (*TTS)(nil)
