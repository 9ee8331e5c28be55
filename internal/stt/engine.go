package stt

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voiced-ai/voiced/errs"
	"github.com/voiced-ai/voiced/internal/backend"
	"github.com/voiced-ai/voiced/internal/memory"
	"github.com/voiced-ai/voiced/internal/metrics"
	"github.com/voiced-ai/voiced/internal/types"
)

// Engine owns STT model handles, delegating inference to a backend.STTAdapter.
type Engine struct {
	adapter backend.STTAdapter
	memory  *memory.Manager

	mu      sync.RWMutex
	handles map[uint64]backend.Handle
	nextID  uint64
}

// NewEngine constructs an STT Engine backed by adapter, accounting model
// memory through mem (shared with the LLM/TTS engines, per spec.md §4.6).
func NewEngine(adapter backend.STTAdapter, mem *memory.Manager) *Engine {
	return &Engine{adapter: adapter, memory: mem, handles: map[uint64]backend.Handle{}}
}

// LoadModel opens the backend and returns a new non-zero handle.
func (e *Engine) LoadModel(ctx context.Context, path string, sizeBytes int64) (uint64, *errs.Error) {
	start := time.Now()
	defer func() { metrics.ModelLoadDuration.WithLabelValues("stt").Observe(time.Since(start).Seconds()) }()

	if path == "" {
		return 0, errs.New(errs.ModelFileNotFound, "model path must not be empty", "loadModel requires a non-empty file path").
			WithRecovery("provide a valid path to a downloaded model file")
	}

	h, err := e.adapter.Open(ctx, path)
	if err != nil {
		return 0, errs.New(errs.ModelFileCorrupted, "STT model file could not be opened", err.Error()).
			WithRecovery("re-download the model file and retry").WithCause(err)
	}

	id := atomic.AddUint64(&e.nextID, 1)
	e.mu.Lock()
	e.handles[id] = h
	e.mu.Unlock()

	e.memory.TrackAllocation(memory.Handle(id), sizeBytes)
	return id, nil
}

// UnloadModel releases the backend handle and its memory account.
func (e *Engine) UnloadModel(handle uint64) *errs.Error {
	h, ok := e.lookup(handle)
	if !ok {
		return invalidHandle(handle)
	}

	e.mu.Lock()
	delete(e.handles, handle)
	e.mu.Unlock()
	e.memory.TrackDeallocation(memory.Handle(handle))

	if err := e.adapter.Close(h); err != nil {
		return errs.New(errs.InferenceHardwareAccelerationFailure, "STT backend failed to release resources cleanly", err.Error()).WithCause(err)
	}
	return nil
}

// Transcribe validates input and delegates to the backend adapter.
func (e *Engine) Transcribe(ctx context.Context, handle uint64, audio types.AudioData, cfg types.TranscriptionConfig) (backend.Transcription, *errs.Error) {
	h, ok := e.lookup(handle)
	if !ok {
		return backend.Transcription{}, invalidHandle(handle)
	}
	e.memory.RecordAccess(memory.Handle(handle))

	if len(audio.Samples) == 0 {
		return backend.Transcription{}, errs.New(
			errs.InvalidInputAudioFormat,
			"transcription input audio must not be empty",
			"transcribe requires at least one PCM sample",
		).WithRecovery("capture audio before calling transcribe")
	}
	if audio.SampleRate <= 0 {
		return backend.Transcription{}, errs.New(
			errs.InvalidInputAudioFormat,
			"audio sample rate must be a positive integer",
			"transcribe requires sample_rate > 0",
		).WithRecovery("provide a valid sample rate in Hz")
	}

	clean := sanitize(audio.Samples)

	t, err := e.adapter.Transcribe(ctx, h, clean, audio.SampleRate, cfg.Language, cfg.WordTimestamps)
	if err != nil {
		return backend.Transcription{}, errs.New(errs.InferenceInvalidInput, "STT backend failed to transcribe audio", err.Error()).WithCause(err)
	}

	if math.IsNaN(t.Confidence) || t.Confidence < 0 || t.Confidence > 1 {
		t.Confidence = 0
	}
	return t, nil
}

func (e *Engine) lookup(handle uint64) (backend.Handle, bool) {
	if handle == 0 {
		return nil, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.handles[handle]
	return h, ok
}

func invalidHandle(handle uint64) *errs.Error {
	if handle == 0 {
		return errs.New(errs.InvalidInputModelHandle, "model handle must be non-zero", "a handle value of zero is always invalid").
			WithRecovery("call loadModel and use its returned handle")
	}
	return errs.New(errs.InferenceModelNotLoaded, "model handle does not reference a loaded model", "the handle was not produced by this engine instance or was already unloaded").
		WithRecovery("call loadModel before using this handle")
}
