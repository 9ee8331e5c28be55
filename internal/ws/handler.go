// Package ws implements the WebSocket duplex transport for "voiced
// serve": one connection per conversation, binary frames carrying raw
// float32 PCM audio in both directions and text frames carrying JSON
// session control/events. Grounded on the teacher's internal/ws/handler.go
// (upgrade-then-runSession structure, a single conn-guarding mutex shared
// between the audio writer and the event sender), generalized from the
// teacher's call-center ASR/LLM/TTS router trio to this runtime's
// Engine-handle-based Voice Pipeline.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/voiced-ai/voiced/internal/llm"
	"github.com/voiced-ai/voiced/internal/logging"
	"github.com/voiced-ai/voiced/internal/pipeline"
	"github.com/voiced-ai/voiced/internal/stt"
	"github.com/voiced-ai/voiced/internal/telemetry"
	"github.com/voiced-ai/voiced/internal/tts"
	"github.com/voiced-ai/voiced/internal/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// HandlerConfig holds the engines and optional telemetry store shared
// across every connection the Handler serves.
type HandlerConfig struct {
	STTEngine   *stt.Engine
	LLMEngine   *llm.Engine
	TTSEngine   *tts.Engine
	VADDetector stt.VADDetector // nil uses the pipeline's built-in energy-based detector
	Telemetry   *telemetry.Store // nil disables session/run recording
}

// Handler upgrades incoming HTTP connections to WebSocket voice sessions.
type Handler struct {
	cfg HandlerConfig
	log zerolog.Logger
}

// NewHandler creates a Handler bound to shared engines.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{cfg: cfg, log: logging.For("ws")}
}

// sessionMetadata is the first text frame a client must send: the engine
// handles it already loaded via the SDK/CLI, plus pipeline overrides.
type sessionMetadata struct {
	STTHandle    uint64  `json:"stt_handle"`
	LLMHandle    uint64  `json:"llm_handle"`
	TTSHandle    uint64  `json:"tts_handle"`
	SampleRate   int     `json:"sample_rate"`
	EnableVAD    *bool   `json:"enable_vad"`
	VADThreshold float64 `json:"vad_threshold"`
	SystemPrompt string  `json:"system_prompt"`
	VoiceID      string  `json:"voice_id"`
}

// event is one JSON text frame sent to the client.
type event struct {
	Type  string `json:"type"`
	Text  string `json:"text,omitempty"`
	Error string `json:"error,omitempty"`
}

// ServeHTTP upgrades the connection and runs the voice session to completion.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	h.runSession(r.Context(), conn)
}

func (h *Handler) runSession(ctx context.Context, conn *websocket.Conn) {
	meta, err := readMetadata(conn)
	if err != nil {
		h.log.Error().Err(err).Msg("read session metadata failed")
		return
	}
	if meta.SampleRate <= 0 {
		meta.SampleRate = 16000
	}

	pipe := pipeline.New(h.cfg.STTEngine, h.cfg.LLMEngine, h.cfg.TTSEngine)
	if h.cfg.VADDetector != nil {
		pipe.SetVADDetector(h.cfg.VADDetector)
	}

	pcfg := types.DefaultPipelineConfig(meta.VoiceID)
	if meta.EnableVAD != nil {
		pcfg.EnableVAD = *meta.EnableVAD
	}
	if meta.VADThreshold > 0 {
		pcfg.VADThreshold = meta.VADThreshold
	}
	if meta.SystemPrompt != "" {
		pcfg.SystemPrompt = meta.SystemPrompt
	}

	if cerr := pipe.Configure(meta.STTHandle, meta.LLMHandle, meta.TTSHandle, pcfg); cerr != nil {
		h.log.Error().Err(cerr).Msg("pipeline configure failed")
		sendEvent(conn, &sync.Mutex{}, event{Type: "error", Error: cerr.Error()})
		return
	}

	sessionID, tracer := h.startTelemetry(meta)
	defer h.endTelemetry(sessionID, tracer)

	var outboundMu sync.Mutex
	audioIn := newAudioInput(conn, meta.SampleRate)
	audioOut := &audioOutput{conn: conn, mu: &outboundMu}

	tt := &turnTracer{tr: tracer}
	onTranscript := func(text string) {
		tt.onTranscript(text)
		sendEvent(conn, &outboundMu, event{Type: "transcript", Text: text})
	}
	onResponse := func(token string) {
		tt.onResponse(token)
		sendEvent(conn, &outboundMu, event{Type: "response_token", Text: token})
	}

	h.log.Info().Str("session_id", sessionID).Msg("conversation started")
	runErr := pipe.StartConversation(ctx, audioIn, audioOut, onTranscript, onResponse)
	if runErr != nil {
		tt.finishOpenRun("error")
		sendEvent(conn, &outboundMu, event{Type: "error", Error: runErr.Error()})
		h.log.Error().Err(runErr).Str("session_id", sessionID).Msg("conversation ended with error")
		return
	}
	tt.finishOpenRun("ok")
	sendEvent(conn, &outboundMu, event{Type: "done"})
	h.log.Info().Str("session_id", sessionID).Msg("conversation ended")
}

func (h *Handler) startTelemetry(meta *sessionMetadata) (string, *telemetry.Tracer) {
	if h.cfg.Telemetry == nil {
		return "", nil
	}
	metaJSON, _ := json.Marshal(meta)
	sessionID := newSessionID()
	if err := h.cfg.Telemetry.CreateSession(sessionID, string(metaJSON)); err != nil {
		h.log.Warn().Err(err).Msg("telemetry session create failed")
		return "", nil
	}
	return sessionID, telemetry.NewTracer(h.cfg.Telemetry, sessionID)
}

func (h *Handler) endTelemetry(sessionID string, tracer *telemetry.Tracer) {
	if tracer == nil {
		return
	}
	tracer.Close()
	if err := h.cfg.Telemetry.EndSession(sessionID); err != nil {
		h.log.Warn().Err(err).Msg("telemetry session end failed")
	}
}

// turnTracer derives run boundaries from the pipeline's onTranscript/
// onResponse callbacks: a new run starts on each transcript and ends
// either when the next one starts or the conversation finishes, since
// StartConversation does not otherwise expose per-turn completion.
type turnTracer struct {
	tr *telemetry.Tracer

	mu         sync.Mutex
	runID      string
	start      time.Time
	transcript string
	response   strings.Builder
}

func (t *turnTracer) onTranscript(text string) {
	if t.tr == nil {
		return
	}
	t.finishOpenRun("ok")
	t.mu.Lock()
	t.runID = t.tr.StartRun()
	t.start = time.Now()
	t.transcript = text
	t.response.Reset()
	t.mu.Unlock()
}

func (t *turnTracer) onResponse(token string) {
	if t.tr == nil {
		return
	}
	t.mu.Lock()
	t.response.WriteString(token)
	t.mu.Unlock()
}

func (t *turnTracer) finishOpenRun(status string) {
	if t.tr == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.runID == "" {
		return
	}
	durationMs := float64(time.Since(t.start).Microseconds()) / 1000
	t.tr.EndRun(t.runID, durationMs, t.transcript, t.response.String(), status)
	t.runID = ""
}

// audioInput implements pipeline.AudioInput by decoding binary WebSocket
// frames. A single background goroutine owns conn.ReadMessage, matching
// the requirement that pipeline.AudioInput.Next be called by only one
// caller at a time.
type audioInput struct {
	sampleRate int
	frames     chan types.AudioData
}

func newAudioInput(conn *websocket.Conn, sampleRate int) *audioInput {
	in := &audioInput{sampleRate: sampleRate, frames: make(chan types.AudioData, 4)}
	go in.readLoop(conn)
	return in
}

// readLoop forwards every binary frame as an AudioData, including an
// empty one: a zero-length binary frame is the client's explicit signal
// that the conversation is over, mirroring pipeline.AudioInput's
// zero-sample-means-end contract. Text frames (none expected once the
// session is running) are ignored.
func (in *audioInput) readLoop(conn *websocket.Conn) {
	defer close(in.frames)
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		in.frames <- types.AudioData{Samples: pcmFromBinary(data), SampleRate: in.sampleRate}
		if len(data) == 0 {
			return
		}
	}
}

// Next implements pipeline.AudioInput.
func (in *audioInput) Next(ctx context.Context) (types.AudioData, error) {
	select {
	case <-ctx.Done():
		return types.AudioData{}, ctx.Err()
	case data, ok := <-in.frames:
		if !ok {
			return types.AudioData{}, nil
		}
		return data, nil
	}
}

// audioOutput implements pipeline.AudioOutput by writing binary frames,
// guarded by the same mutex the event sender uses since gorilla/websocket
// requires external synchronization between concurrent writers.
type audioOutput struct {
	conn *websocket.Conn
	mu   *sync.Mutex
}

// Write implements pipeline.AudioOutput.
func (o *audioOutput) Write(pcm []float32) {
	o.mu.Lock()
	defer o.mu.Unlock()
	_ = o.conn.WriteMessage(websocket.BinaryMessage, pcmToBinary(pcm))
}

func sendEvent(conn *websocket.Conn, mu *sync.Mutex, ev event) {
	mu.Lock()
	defer mu.Unlock()
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

func newSessionID() string {
	return uuid.NewString()
}

func readMetadata(conn *websocket.Conn) (*sessionMetadata, error) {
	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var meta sessionMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}
