package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/voiced-ai/voiced/internal/backend"
	"github.com/voiced-ai/voiced/internal/llm"
	"github.com/voiced-ai/voiced/internal/memory"
	"github.com/voiced-ai/voiced/internal/stt"
	"github.com/voiced-ai/voiced/internal/tts"
)

type fakeSTTAdapter struct{}

func (fakeSTTAdapter) Open(ctx context.Context, path string) (backend.Handle, error) { return "h", nil }
func (fakeSTTAdapter) Close(h backend.Handle) error                                  { return nil }
func (fakeSTTAdapter) ContextCapacity(h backend.Handle) int                          { return 0 }
func (fakeSTTAdapter) ContextUsage(h backend.Handle) int                             { return 0 }
func (fakeSTTAdapter) Transcribe(ctx context.Context, h backend.Handle, pcm []float32, sampleRate int, lang string, wantWords bool) (backend.Transcription, error) {
	return backend.Transcription{Text: "hello there", Confidence: 0.9, Language: "en"}, nil
}

type fakeLLMAdapter struct{}

func (fakeLLMAdapter) Open(ctx context.Context, path string) (backend.Handle, error) { return "h", nil }
func (fakeLLMAdapter) Close(h backend.Handle) error                                  { return nil }
func (fakeLLMAdapter) ContextCapacity(h backend.Handle) int                          { return 1000 }
func (fakeLLMAdapter) ContextUsage(h backend.Handle) int                             { return 0 }
func (fakeLLMAdapter) Tokenize(h backend.Handle, text string) ([]int, error)         { return []int{1, 2}, nil }
func (fakeLLMAdapter) Detokenize(h backend.Handle, tokens []int) (string, error)     { return "hi back", nil }
func (fakeLLMAdapter) Generate(ctx context.Context, h backend.Handle, tokens []int, sampler backend.Sampler, onToken backend.TokenFunc) ([]int, error) {
	onToken("hi ")
	onToken("back")
	return []int{3, 4}, nil
}

type fakeTTSAdapter struct{}

func (fakeTTSAdapter) Open(ctx context.Context, path string) (backend.Handle, error) { return "h", nil }
func (fakeTTSAdapter) Close(h backend.Handle) error                                  { return nil }
func (fakeTTSAdapter) ContextCapacity(h backend.Handle) int                          { return 0 }
func (fakeTTSAdapter) ContextUsage(h backend.Handle) int                             { return 0 }
func (fakeTTSAdapter) Voices(h backend.Handle) []string                              { return []string{"v1"} }
func (fakeTTSAdapter) Synthesize(ctx context.Context, h backend.Handle, text, voice string, speed, pitch float64, onChunk backend.ChunkFunc) ([]float32, int, error) {
	pcm := []float32{0.1, 0.2, 0.3}
	if onChunk != nil {
		onChunk(pcm)
	}
	return pcm, 16000, nil
}

func newTestHandler(t *testing.T) (*Handler, uint64, uint64, uint64) {
	t.Helper()
	sttEngine := stt.NewEngine(fakeSTTAdapter{}, memory.NewManager(1<<30))
	llmEngine := llm.NewEngine(fakeLLMAdapter{}, memory.NewManager(1<<30))
	ttsEngine := tts.NewEngine(fakeTTSAdapter{}, memory.NewManager(1<<30))

	sttH, err := sttEngine.LoadModel(context.Background(), "stt.bin", 1024)
	if err != nil {
		t.Fatalf("stt LoadModel: %v", err)
	}
	llmH, err := llmEngine.LoadModel(context.Background(), "llm.bin", 1024)
	if err != nil {
		t.Fatalf("llm LoadModel: %v", err)
	}
	ttsH, err := ttsEngine.LoadModel(context.Background(), "tts.bin", 1024)
	if err != nil {
		t.Fatalf("tts LoadModel: %v", err)
	}

	return NewHandler(HandlerConfig{STTEngine: sttEngine, LLMEngine: llmEngine, TTSEngine: ttsEngine}), sttH, llmH, ttsH
}

func TestConversationRoundTrip(t *testing.T) {
	handler, sttH, llmH, ttsH := newTestHandler(t)
	server := httptest.NewServer(http.HandlerFunc(handler.ServeHTTP))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	meta := sessionMetadata{STTHandle: sttH, LLMHandle: llmH, TTSHandle: ttsH, SampleRate: 16000, VoiceID: "v1"}
	metaBytes, _ := json.Marshal(meta)
	if err := conn.WriteMessage(websocket.TextMessage, metaBytes); err != nil {
		t.Fatalf("write metadata: %v", err)
	}

	// One frame of audio, then a zero-length frame to end the conversation.
	if err := conn.WriteMessage(websocket.BinaryMessage, pcmToBinary([]float32{0.1, 0.2, 0.3, 0.4})); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, nil); err != nil {
		t.Fatalf("write end-of-audio: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var sawTranscript, sawDone bool
	for i := 0; i < 20; i++ {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		var ev event
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		if ev.Type == "transcript" && ev.Text == "hello there" {
			sawTranscript = true
		}
		if ev.Type == "done" {
			sawDone = true
			break
		}
		if ev.Type == "error" {
			t.Fatalf("unexpected error event: %s", ev.Error)
		}
	}

	if !sawTranscript {
		t.Error("expected a transcript event")
	}
	if !sawDone {
		t.Error("expected a done event")
	}
}
