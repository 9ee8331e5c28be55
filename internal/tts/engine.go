// Package tts implements the TTS Engine: model handle lifecycle and
// text-to-speech synthesis (synchronous and streaming) over a
// backend.TTSAdapter.
package tts

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voiced-ai/voiced/errs"
	"github.com/voiced-ai/voiced/internal/backend"
	"github.com/voiced-ai/voiced/internal/dispatcher"
	"github.com/voiced-ai/voiced/internal/memory"
	"github.com/voiced-ai/voiced/internal/metrics"
	"github.com/voiced-ai/voiced/internal/types"
)

// Engine owns TTS model handles, delegating synthesis to a backend.TTSAdapter.
type Engine struct {
	adapter backend.TTSAdapter
	memory  *memory.Manager

	mu      sync.RWMutex
	handles map[uint64]backend.Handle
	nextID  uint64
}

// NewEngine constructs a TTS Engine backed by adapter, accounting model
// memory through mem (shared with the LLM/STT engines).
func NewEngine(adapter backend.TTSAdapter, mem *memory.Manager) *Engine {
	return &Engine{adapter: adapter, memory: mem, handles: map[uint64]backend.Handle{}}
}

// LoadModel opens the backend and returns a new non-zero handle.
func (e *Engine) LoadModel(ctx context.Context, path string, sizeBytes int64) (uint64, *errs.Error) {
	start := time.Now()
	defer func() { metrics.ModelLoadDuration.WithLabelValues("tts").Observe(time.Since(start).Seconds()) }()

	if path == "" {
		return 0, errs.New(errs.ModelFileNotFound, "model path must not be empty", "loadModel requires a non-empty file path").
			WithRecovery("provide a valid path to a downloaded model file")
	}

	h, err := e.adapter.Open(ctx, path)
	if err != nil {
		return 0, errs.New(errs.ModelFileCorrupted, "TTS model file could not be opened", err.Error()).
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
		return errs.New(errs.InferenceHardwareAccelerationFailure, "TTS backend failed to release resources cleanly", err.Error()).WithCause(err)
	}
	return nil
}

// GetAvailableVoices lists the voice IDs this handle's backend supports.
func (e *Engine) GetAvailableVoices(handle uint64) ([]string, *errs.Error) {
	h, ok := e.lookup(handle)
	if !ok {
		return nil, invalidHandle(handle)
	}
	return e.adapter.Voices(h), nil
}

func (e *Engine) validate(handle uint64, text string, cfg types.SynthesisConfig) (backend.Handle, *errs.Error) {
	h, ok := e.lookup(handle)
	if !ok {
		return nil, invalidHandle(handle)
	}
	if text == "" {
		return nil, errs.New(errs.InferenceInvalidInput, "synthesis text must not be empty", "synthesize requires non-empty input text").
			WithRecovery("provide text to synthesize")
	}
	if cfg.VoiceID == "" {
		return nil, errs.New(errs.InvalidInputParameterValue, "synthesis voice_id must not be empty", "SynthesisConfig.voice_id is required").
			WithRecovery("select a voice via getAvailableVoices")
	}
	if cfg.Speed < 0.25 || cfg.Speed > 4.0 {
		return nil, errs.New(errs.InvalidInputParameterValue, "synthesis speed is outside the supported range", "speed must be in [0.25, 4.0]").
			WithRecovery("choose a speed between 0.25 and 4.0")
	}
	if cfg.Pitch < -1.0 || cfg.Pitch > 1.0 {
		return nil, errs.New(errs.InvalidInputParameterValue, "synthesis pitch is outside the supported range", "pitch must be in [-1.0, 1.0]").
			WithRecovery("choose a pitch between -1.0 and 1.0")
	}
	return h, nil
}

// Synthesize runs a synchronous synthesis and returns the full audio.
func (e *Engine) Synthesize(ctx context.Context, handle uint64, text string, cfg types.SynthesisConfig) (types.AudioData, *errs.Error) {
	h, verr := e.validate(handle, text, cfg)
	if verr != nil {
		return types.AudioData{}, verr
	}
	e.memory.RecordAccess(memory.Handle(handle))

	pcm, sampleRate, err := e.adapter.Synthesize(ctx, h, text, cfg.VoiceID, cfg.Speed, cfg.Pitch, nil)
	if err != nil {
		return types.AudioData{}, errs.New(errs.InferenceInvalidInput, "TTS backend failed during synthesis", err.Error()).WithCause(err)
	}
	return types.AudioData{Samples: pcm, SampleRate: sampleRate}, nil
}

// SynthesizeStreaming emits non-empty audio chunks in order via a
// dedicated dispatcher stream (spec.md §4.11), matching the synchronous
// result's concatenation under deterministic backend behavior.
func (e *Engine) SynthesizeStreaming(ctx context.Context, handle uint64, text string, cfg types.SynthesisConfig, onChunk func([]float32)) *errs.Error {
	h, verr := e.validate(handle, text, cfg)
	if verr != nil {
		return verr
	}
	e.memory.RecordAccess(memory.Handle(handle))

	stream := dispatcher.NewStream(0, onChunk)
	defer stream.Close()

	_, _, err := e.adapter.Synthesize(ctx, h, text, cfg.VoiceID, cfg.Speed, cfg.Pitch, func(pcm []float32) {
		if len(pcm) == 0 {
			return
		}
		stream.Emit(pcm)
	})
	if err != nil {
		return errs.New(errs.InferenceInvalidInput, "TTS backend failed during streaming synthesis", err.Error()).WithCause(err)
	}
	return nil
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
	return errs.New(errs.InferenceModelNotLoaded, "model handle does not reference a loaded model", "the handle "+strconv.FormatUint(handle, 10)+" was not produced by this engine instance or was already unloaded").
		WithRecovery("call loadModel before using this handle")
}
