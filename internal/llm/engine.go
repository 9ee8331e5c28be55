// Package llm implements the LLM Engine: model handle lifecycle,
// tokenization, context-window accounting, conversation history, and
// synchronous/streaming generation over a backend.LLMAdapter.
package llm

import (
	"context"
	"fmt"
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

// contextState tracks one loaded model's conversation history and
// capacity, independent of every other handle (spec.md "Ownership").
type contextState struct {
	mu        sync.Mutex
	backendH  backend.Handle
	capacity  int
	history   []types.HistoryEntry
	nextStamp float64
}

// Engine owns LLM model handles, delegating generation to a backend.LLMAdapter.
type Engine struct {
	adapter backend.LLMAdapter
	memory  *memory.Manager

	mu      sync.RWMutex
	states  map[uint64]*contextState
	nextID  uint64
}

// NewEngine constructs an LLM Engine backed by adapter, accounting model
// memory through mem (shared with the STT/TTS engines).
func NewEngine(adapter backend.LLMAdapter, mem *memory.Manager) *Engine {
	return &Engine{adapter: adapter, memory: mem, states: map[uint64]*contextState{}}
}

// LoadModel opens the backend, queries its context capacity, and
// allocates a memory account, returning a fresh handle.
func (e *Engine) LoadModel(ctx context.Context, path string, sizeBytes int64) (uint64, *errs.Error) {
	start := time.Now()
	defer func() { metrics.ModelLoadDuration.WithLabelValues("llm").Observe(time.Since(start).Seconds()) }()

	if path == "" {
		return 0, errs.New(errs.ModelFileNotFound, "model path must not be empty", "loadModel requires a non-empty file path").
			WithRecovery("provide a valid path to a downloaded model file")
	}

	h, err := e.adapter.Open(ctx, path)
	if err != nil {
		return 0, errs.New(errs.ModelFileCorrupted, "LLM model file could not be opened", err.Error()).
			WithRecovery("re-download the model file and retry").WithCause(err)
	}

	id := atomic.AddUint64(&e.nextID, 1)
	state := &contextState{backendH: h, capacity: e.adapter.ContextCapacity(h)}

	e.mu.Lock()
	e.states[id] = state
	e.mu.Unlock()

	e.memory.TrackAllocation(memory.Handle(id), sizeBytes)
	return id, nil
}

// UnloadModel releases the backend handle and its memory account.
func (e *Engine) UnloadModel(handle uint64) *errs.Error {
	state, ok := e.lookup(handle)
	if !ok {
		return invalidHandle(handle)
	}

	e.mu.Lock()
	delete(e.states, handle)
	e.mu.Unlock()
	e.memory.TrackDeallocation(memory.Handle(handle))

	if err := e.adapter.Close(state.backendH); err != nil {
		return errs.New(errs.InferenceHardwareAccelerationFailure, "LLM backend failed to release resources cleanly", err.Error()).WithCause(err)
	}
	return nil
}

// Tokenize is deterministic: identical text yields identical token IDs.
func (e *Engine) Tokenize(handle uint64, text string) ([]int, *errs.Error) {
	state, ok := e.lookup(handle)
	if !ok {
		return nil, invalidHandle(handle)
	}
	tokens, err := e.adapter.Tokenize(state.backendH, text)
	if err != nil {
		return nil, errs.New(errs.InferenceInvalidInput, "tokenization failed for the given input text", err.Error()).WithCause(err)
	}
	return tokens, nil
}

// Detokenize inverts Tokenize, with whitespace-normalized round-tripping.
func (e *Engine) Detokenize(handle uint64, tokens []int) (string, *errs.Error) {
	state, ok := e.lookup(handle)
	if !ok {
		return "", invalidHandle(handle)
	}
	text, err := e.adapter.Detokenize(state.backendH, tokens)
	if err != nil {
		return "", errs.New(errs.InferenceInvalidInput, "detokenization failed for the given token sequence", err.Error()).WithCause(err)
	}
	return text, nil
}

// GetContextCapacity returns the model's maximum context length.
func (e *Engine) GetContextCapacity(handle uint64) (int, *errs.Error) {
	state, ok := e.lookup(handle)
	if !ok {
		return 0, invalidHandle(handle)
	}
	return state.capacity, nil
}

// GetContextUsage returns the current tokens occupying the KV cache, as
// reported by the backend.
func (e *Engine) GetContextUsage(handle uint64) (int, *errs.Error) {
	state, ok := e.lookup(handle)
	if !ok {
		return 0, invalidHandle(handle)
	}
	return e.adapter.ContextUsage(state.backendH), nil
}

// ClearContext clears history and, when the adapter implements
// backend.ContextResetter, resets the backend context to zero. With any
// other adapter (such as internal/backend/grpcplugin's LLM view) the
// backend's context usage is left unchanged.
func (e *Engine) ClearContext(handle uint64) *errs.Error {
	state, ok := e.lookup(handle)
	if !ok {
		return invalidHandle(handle)
	}
	state.mu.Lock()
	state.history = nil
	state.nextStamp = 0
	state.mu.Unlock()

	if resetter, ok := e.adapter.(backend.ContextResetter); ok {
		resetter.ResetContext(state.backendH)
	}
	return nil
}

// GetConversationHistory returns alternating "User: ..." / "Assistant: ..."
// strings accumulated since the last ClearContext.
func (e *Engine) GetConversationHistory(handle uint64) ([]string, *errs.Error) {
	state, ok := e.lookup(handle)
	if !ok {
		return nil, invalidHandle(handle)
	}
	state.mu.Lock()
	defer state.mu.Unlock()

	out := make([]string, 0, len(state.history)*2)
	for _, h := range state.history {
		out = append(out, "User: "+h.UserText, "Assistant: "+h.AssistantText)
	}
	return out, nil
}

// Generate runs a synchronous generation, appending the exchange to history.
func (e *Engine) Generate(ctx context.Context, handle uint64, prompt string, cfg types.GenerationConfig) (string, *errs.Error) {
	var text string
	_, err := e.generate(ctx, handle, prompt, cfg, func(token string) {
		text += token
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

// GenerateStreaming runs generation, invoking onToken once per emitted
// token via a dedicated dispatcher stream (spec.md §4.11).
func (e *Engine) GenerateStreaming(ctx context.Context, handle uint64, prompt string, cfg types.GenerationConfig, onToken func(string)) *errs.Error {
	stream := dispatcher.NewStream(0, onToken)
	defer stream.Close()

	_, err := e.generate(ctx, handle, prompt, cfg, func(token string) {
		stream.Emit(token)
	})
	return err
}

func (e *Engine) generate(ctx context.Context, handle uint64, prompt string, cfg types.GenerationConfig, onToken backend.TokenFunc) (string, *errs.Error) {
	state, ok := e.lookup(handle)
	if !ok {
		return "", invalidHandle(handle)
	}
	e.memory.RecordAccess(memory.Handle(handle))

	if cfg.MaxTokens <= 0 {
		return "", errs.New(errs.InvalidInputParameterValue, "generation max_tokens must be positive", "max_tokens <= 0 is not a valid generation config").
			WithRecovery("set max_tokens to a positive integer")
	}

	state.mu.Lock()
	historyTokens := e.historyTokenCount(state)
	state.mu.Unlock()

	promptTokens, terr := e.adapter.Tokenize(state.backendH, prompt)
	if terr != nil {
		return "", errs.New(errs.InferenceInvalidInput, "failed to tokenize generation prompt", terr.Error()).WithCause(terr)
	}

	capacity := state.capacity
	occupied := len(promptTokens) + historyTokens

	if occupied >= capacity {
		return "", errs.New(
			errs.InferenceContextWindowExceeded,
			"prompt and history already fill the model's context window",
			fmt.Sprintf("requested %d tokens of context, capacity is %d", occupied, capacity),
		).WithRecovery("call clearContext or reduce the prompt length")
	}

	maxTokens := cfg.MaxTokens
	if occupied+maxTokens > capacity {
		// Open question (a): always truncate oldest history first rather
		// than failing, keeping the capacity bound intact.
		state.mu.Lock()
		e.truncateHistory(state, capacity-maxTokens)
		historyTokens = e.historyTokenCount(state)
		state.mu.Unlock()
		occupied = len(promptTokens) + historyTokens
		if occupied+maxTokens > capacity {
			maxTokens = capacity - occupied
		}
		if maxTokens <= 0 {
			return "", errs.New(
				errs.InferenceContextWindowExceeded,
				"requested generation would exceed the model's context window",
				fmt.Sprintf("prompt+history %d tokens + max_tokens %d exceeds capacity %d", occupied, cfg.MaxTokens, capacity),
			).WithRecovery("reduce max_tokens or call clearContext")
		}
	}

	sampler := backend.Sampler{
		MaxTokens:         maxTokens,
		Temperature:       cfg.Temperature,
		TopP:              cfg.TopP,
		TopK:              cfg.TopK,
		RepetitionPenalty: cfg.RepetitionPenalty,
		StopSequences:     cfg.StopSequences,
	}

	outTokens, genErr := e.adapter.Generate(ctx, state.backendH, promptTokens, sampler, onToken)
	if genErr != nil {
		return "", errs.New(errs.InferenceInvalidInput, "LLM backend failed during generation", genErr.Error()).WithCause(genErr)
	}

	text, dtErr := e.adapter.Detokenize(state.backendH, outTokens)
	if dtErr != nil {
		return "", errs.New(errs.InferenceInvalidInput, "failed to detokenize generated output", dtErr.Error()).WithCause(dtErr)
	}

	state.mu.Lock()
	state.history = append(state.history, types.HistoryEntry{UserText: prompt, AssistantText: text, TimestampS: state.nextStamp})
	state.nextStamp++
	state.mu.Unlock()

	if e.adapter.ContextUsage(state.backendH) > capacity {
		return "", errs.New(
			errs.InferenceContextWindowExceeded,
			"generation exceeded the model's context window",
			"backend reported context usage above capacity after generation",
		)
	}
	return text, nil
}

func (e *Engine) historyTokenCount(state *contextState) int {
	total := 0
	for _, h := range state.history {
		t, _ := e.adapter.Tokenize(state.backendH, h.UserText+" "+h.AssistantText)
		total += len(t)
	}
	return total
}

// truncateHistory drops the oldest turns until history fits within budget
// tokens, or none remain.
func (e *Engine) truncateHistory(state *contextState, budget int) {
	for len(state.history) > 0 && e.historyTokenCount(state) > budget {
		state.history = state.history[1:]
	}
}

func (e *Engine) lookup(handle uint64) (*contextState, bool) {
	if handle == 0 {
		return nil, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.states[handle]
	return s, ok
}

func invalidHandle(handle uint64) *errs.Error {
	if handle == 0 {
		return errs.New(errs.InvalidInputModelHandle, "model handle must be non-zero", "a handle value of zero is always invalid").
			WithRecovery("call loadModel and use its returned handle")
	}
	return errs.New(errs.InferenceModelNotLoaded, "model handle does not reference a loaded model", "the handle "+strconv.FormatUint(handle, 10)+" was not produced by this engine instance or was already unloaded").
		WithRecovery("call loadModel before using this handle")
}
