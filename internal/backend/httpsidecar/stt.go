package httpsidecar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"

	"github.com/voiced-ai/voiced/internal/audio"
	"github.com/voiced-ai/voiced/internal/backend"
	"github.com/voiced-ai/voiced/internal/httpclient"
)

// STTConfig points the adapter at a running whisper.cpp-shaped server.
type STTConfig struct {
	BaseURL         string
	ContextCapacity int
}

// STT is a backend.STTAdapter posting multipart WAV audio for transcription,
// grounded on the teacher's ASRClient (internal/pipeline/asr.go).
type STT struct {
	cfg    STTConfig
	client *httpclient.Client
}

func NewSTT(cfg STTConfig) *STT {
	return &STT{cfg: cfg, client: httpclient.New(httpclient.DefaultConfig())}
}

type sttHandle struct {
	mu       sync.Mutex
	capacity int
	usage    int
}

func (a *STT) Open(ctx context.Context, path string) (backend.Handle, error) {
	return &sttHandle{capacity: a.cfg.ContextCapacity}, nil
}

func (a *STT) Close(h backend.Handle) error { return nil }

func (a *STT) ContextCapacity(h backend.Handle) int {
	return h.(*sttHandle).capacity
}

func (a *STT) ContextUsage(h backend.Handle) int {
	hh := h.(*sttHandle)
	hh.mu.Lock()
	defer hh.mu.Unlock()
	return hh.usage
}

// Transcribe uploads PCM as a WAV file and decodes the server's JSON
// response into a backend.Transcription.
func (a *STT) Transcribe(ctx context.Context, h backend.Handle, pcm []float32, sampleRate int, lang string, wantWords bool) (backend.Transcription, error) {
	hh := h.(*sttHandle)

	body, contentType, err := buildMultipartWAV(pcm, sampleRate)
	if err != nil {
		return backend.Transcription{}, err
	}

	url := a.cfg.BaseURL + "/inference"
	if lang != "" {
		url += "?language=" + lang
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return backend.Transcription{}, fmt.Errorf("create sidecar transcribe request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := a.client.Do(req)
	if err != nil {
		return backend.Transcription{}, fmt.Errorf("sidecar transcribe request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return backend.Transcription{}, fmt.Errorf("sidecar transcribe status %d: %s", resp.StatusCode, respBody)
	}

	var out transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return backend.Transcription{}, fmt.Errorf("decode sidecar transcribe response: %w", err)
	}

	t := backend.Transcription{Text: out.Text, Confidence: out.Confidence, Language: out.Language}
	if wantWords {
		for _, w := range out.Words {
			t.Words = append(t.Words, backend.Word{Text: w.Text, StartS: w.Start, EndS: w.End, Confidence: w.Confidence})
		}
	}

	hh.mu.Lock()
	hh.usage = len(pcm)
	hh.mu.Unlock()
	return t, nil
}

func buildMultipartWAV(pcm []float32, sampleRate int) (*bytes.Buffer, string, error) {
	wavBytes, err := audio.EncodeWAV(pcm, sampleRate)
	if err != nil {
		return nil, "", err
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wavBytes); err != nil {
		return nil, "", fmt.Errorf("write wav data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &body, writer.FormDataContentType(), nil
}

type transcribeResponse struct {
	Text       string        `json:"text"`
	Confidence float64       `json:"confidence"`
	Language   string        `json:"language"`
	Words      []wordSegment `json:"words,omitempty"`
}

type wordSegment struct {
	Text       string  `json:"text"`
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Confidence float64 `json:"confidence"`
}

var _ backend.STTAdapter = (*STT)(nil)
