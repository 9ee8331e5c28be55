package telemetry

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// maxFieldLen caps transcript/response/input/output string lengths stored
// per run/span, to avoid bloating the telemetry database with full audio
// transcripts on a storage-constrained device.
const maxFieldLen = 500

// traceChannelBuffer is how many messages can queue before the background
// drain goroutine falls behind the pipeline emitting them.
const traceChannelBuffer = 64

type traceMsg struct {
	kind string // "run_create", "run_update", "span"
	// run fields
	runID      string
	sessionID  string
	durationMs float64
	transcript string
	response   string
	status     string
	// span fields
	span Span
}

// Tracer writes telemetry asynchronously via a buffered channel, so a
// slow or blocked telemetry store never adds latency to the Voice
// Pipeline's turn-taking loop. All methods are nil-safe (no-op on a nil
// receiver), letting callers pass a possibly-nil *Tracer unconditionally
// when SDKConfig.enable_telemetry is false.
type Tracer struct {
	store     *Store
	sessionID string
	ch        chan traceMsg
	done      chan struct{}
}

// NewTracer binds a tracer to one pipeline session and starts its
// background drain goroutine. Callers must call Close to flush pending
// writes and stop the goroutine.
func NewTracer(store *Store, sessionID string) *Tracer {
	t := &Tracer{
		store:     store,
		sessionID: sessionID,
		ch:        make(chan traceMsg, traceChannelBuffer),
		done:      make(chan struct{}),
	}
	go t.drain()
	return t
}

func (t *Tracer) drain() {
	defer close(t.done)
	for msg := range t.ch {
		t.handle(msg)
	}
}

func (t *Tracer) handle(m traceMsg) {
	if err := t.dispatch(m); err != nil {
		log.Warn().Str("kind", m.kind).Err(err).Msg("telemetry write failed")
	}
}

func (t *Tracer) dispatch(m traceMsg) error {
	switch m.kind {
	case "run_create":
		return t.store.CreateRun(m.runID, m.sessionID)
	case "run_update":
		return t.store.UpdateRun(m.runID, m.durationMs, m.transcript, m.response, m.status)
	case "span":
		return t.store.CreateSpan(m.span)
	}
	return nil
}

// StartRun begins a new run (one pipeline turn) and returns its ID.
func (t *Tracer) StartRun() string {
	if t == nil {
		return ""
	}
	id := uuid.NewString()
	t.ch <- traceMsg{kind: "run_create", runID: id, sessionID: t.sessionID}
	return id
}

// EndRun finalizes a run with its transcript, response, and status
// ("ok", "cancelled", "interrupted", or an error category name).
func (t *Tracer) EndRun(runID string, durationMs float64, transcript, response, status string) {
	if t == nil {
		return
	}
	t.ch <- traceMsg{
		kind:       "run_update",
		runID:      runID,
		durationMs: durationMs,
		transcript: truncate(transcript, maxFieldLen),
		response:   truncate(response, maxFieldLen),
		status:     status,
	}
}

// RecordSpan records one pipeline stage's execution (e.g. "transcribe",
// "generate", "synthesize") within a run.
func (t *Tracer) RecordSpan(runID, name string, startedAt time.Time, durationMs float64, input, output, status, errMsg string) {
	if t == nil {
		return
	}
	t.ch <- traceMsg{
		kind: "span",
		span: Span{
			ID:         uuid.NewString(),
			RunID:      runID,
			Name:       name,
			StartedAt:  startedAt,
			DurationMs: durationMs,
			Input:      truncate(input, maxFieldLen),
			Output:     truncate(output, maxFieldLen),
			Status:     status,
			Error:      errMsg,
		},
	}
}

// Close drains pending writes and shuts down the background goroutine.
func (t *Tracer) Close() {
	if t == nil {
		return
	}
	close(t.ch)
	<-t.done
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
