// Package telemetry persists run/span timing for the Voice Pipeline,
// gated behind SDKConfig.enable_telemetry (spec.md §6) and never
// transmitted off the device. Grounded file-for-file on the teacher's
// internal/trace package, repurposed from call-center session analytics
// to on-device inference runs: a Session is one Pipeline.StartConversation
// call, a Run is one turn (runTurn) within it, and a Span is one pipeline
// stage (transcribe/generate/synthesize) within a turn. The ws handler
// records sessions and runs; no code in this module calls
// Tracer.RecordSpan, so spans are stored only if a caller does.
package telemetry

import "time"

// Session is one StartConversation invocation.
type Session struct {
	ID        string     `json:"id"`
	Metadata  string     `json:"metadata"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
	RunCount  int        `json:"run_count,omitempty"`
}

// Run is one pipeline turn (transcribe → generate → synthesize).
type Run struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs float64   `json:"duration_ms,omitempty"`
	Transcript string    `json:"transcript,omitempty"`
	Response   string    `json:"response,omitempty"`
	Status     string    `json:"status"`
	SpanCount  int       `json:"span_count,omitempty"`
}

// Span is one stage execution within a run.
type Span struct {
	ID         string    `json:"id"`
	RunID      string    `json:"run_id"`
	Name       string    `json:"name"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs float64   `json:"duration_ms"`
	Input      string    `json:"input,omitempty"`
	Output     string    `json:"output,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
}
