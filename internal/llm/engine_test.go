package llm

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/voiced-ai/voiced/internal/backend"
	"github.com/voiced-ai/voiced/internal/memory"
	"github.com/voiced-ai/voiced/internal/types"
)

// fakeAdapter tokenizes by splitting on spaces and generates the fixed
// token "tok" min(MaxTokens, 5) times, for deterministic tests.
type fakeAdapter struct {
	mu       sync.Mutex
	capacity int
	usage    map[backend.Handle]int
}

func newFakeAdapter(capacity int) *fakeAdapter {
	return &fakeAdapter{capacity: capacity, usage: map[backend.Handle]int{}}
}

type fakeHandle struct{ id int }

func (f *fakeAdapter) Open(ctx context.Context, path string) (backend.Handle, error) {
	return &fakeHandle{}, nil
}
func (f *fakeAdapter) Close(h backend.Handle) error         { return nil }
func (f *fakeAdapter) ContextCapacity(h backend.Handle) int { return f.capacity }
func (f *fakeAdapter) ContextUsage(h backend.Handle) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usage[h]
}
func (f *fakeAdapter) ResetContext(h backend.Handle) {
	f.mu.Lock()
	f.usage[h] = 0
	f.mu.Unlock()
}

func (f *fakeAdapter) Tokenize(h backend.Handle, text string) ([]int, error) {
	if text == "" {
		return nil, nil
	}
	words := strings.Fields(text)
	toks := make([]int, len(words))
	for i := range words {
		toks[i] = i + 1
	}
	return toks, nil
}

func (f *fakeAdapter) Detokenize(h backend.Handle, tokens []int) (string, error) {
	words := make([]string, len(tokens))
	for i := range tokens {
		words[i] = "tok"
	}
	return strings.Join(words, " "), nil
}

func (f *fakeAdapter) Generate(ctx context.Context, h backend.Handle, tokens []int, sampler backend.Sampler, onToken backend.TokenFunc) ([]int, error) {
	n := sampler.MaxTokens
	if n > 5 {
		n = 5
	}
	out := make([]int, 0, n)
	for i := 0; i < n; i++ {
		onToken("tok")
		out = append(out, i+1)
	}
	f.mu.Lock()
	f.usage[h] += len(tokens) + len(out)
	f.mu.Unlock()
	return out, nil
}

var _ backend.LLMAdapter = (*fakeAdapter)(nil)
var _ backend.ContextResetter = (*fakeAdapter)(nil)

func TestLoadModelThenGenerate(t *testing.T) {
	e := NewEngine(newFakeAdapter(1000), memory.NewManager(1<<30))
	h, err := e.LoadModel(context.Background(), "model.bin", 4096)
	if err != nil {
		t.Fatalf("LoadModel: %v", err)
	}

	text, gerr := e.Generate(context.Background(), h, "hello world", types.GenerationConfig{MaxTokens: 3, Temperature: 0})
	if gerr != nil {
		t.Fatalf("Generate: %v", gerr)
	}
	if text == "" {
		t.Fatal("expected non-empty generated text")
	}
}

func TestGenerateStreamingMatchesTokenCount(t *testing.T) {
	e := NewEngine(newFakeAdapter(1000), memory.NewManager(1<<30))
	h, _ := e.LoadModel(context.Background(), "model.bin", 4096)

	var tokens []string
	var mu sync.Mutex
	gerr := e.GenerateStreaming(context.Background(), h, "hello world", types.GenerationConfig{MaxTokens: 4}, func(tok string) {
		mu.Lock()
		tokens = append(tokens, tok)
		mu.Unlock()
	})
	if gerr != nil {
		t.Fatalf("GenerateStreaming: %v", gerr)
	}
	if len(tokens) != 4 {
		t.Fatalf("expected 4 streamed tokens, got %d", len(tokens))
	}
}

func TestGenerateRejectsNonPositiveMaxTokens(t *testing.T) {
	e := NewEngine(newFakeAdapter(1000), memory.NewManager(1<<30))
	h, _ := e.LoadModel(context.Background(), "model.bin", 4096)
	if _, gerr := e.Generate(context.Background(), h, "hi", types.GenerationConfig{MaxTokens: 0}); gerr == nil {
		t.Fatal("expected error for max_tokens <= 0")
	}
}

func TestGenerateUnknownHandleFails(t *testing.T) {
	e := NewEngine(newFakeAdapter(1000), memory.NewManager(1<<30))
	if _, gerr := e.Generate(context.Background(), 999, "hi", types.GenerationConfig{MaxTokens: 1}); gerr == nil {
		t.Fatal("expected error for unknown handle")
	}
}

func TestContextOverflowRejectedBeforeGeneration(t *testing.T) {
	e := NewEngine(newFakeAdapter(2), memory.NewManager(1<<30))
	h, _ := e.LoadModel(context.Background(), "model.bin", 4096)
	// prompt tokens alone already meet capacity
	_, gerr := e.Generate(context.Background(), h, "one two three", types.GenerationConfig{MaxTokens: 1})
	if gerr == nil {
		t.Fatal("expected context window exceeded error")
	}
}

func TestClearContextEmptiesHistoryAndUsage(t *testing.T) {
	e := NewEngine(newFakeAdapter(1000), memory.NewManager(1<<30))
	h, _ := e.LoadModel(context.Background(), "model.bin", 4096)

	if _, gerr := e.Generate(context.Background(), h, "hello world", types.GenerationConfig{MaxTokens: 3}); gerr != nil {
		t.Fatalf("Generate: %v", gerr)
	}
	hist, _ := e.GetConversationHistory(h)
	if len(hist) == 0 {
		t.Fatal("expected non-empty history after a successful generate")
	}

	if cerr := e.ClearContext(h); cerr != nil {
		t.Fatalf("ClearContext: %v", cerr)
	}
	hist, _ = e.GetConversationHistory(h)
	if len(hist) != 0 {
		t.Fatalf("expected empty history after ClearContext, got %v", hist)
	}
	usage, _ := e.GetContextUsage(h)
	if usage != 0 {
		t.Fatalf("expected zero context usage after ClearContext, got %d", usage)
	}
}

func TestConversationHistoryOrdering(t *testing.T) {
	e := NewEngine(newFakeAdapter(10000), memory.NewManager(1<<30))
	h, _ := e.LoadModel(context.Background(), "model.bin", 4096)

	for i := 0; i < 3; i++ {
		if _, gerr := e.Generate(context.Background(), h, "turn", types.GenerationConfig{MaxTokens: 2}); gerr != nil {
			t.Fatalf("Generate turn %d: %v", i, gerr)
		}
	}

	hist, herr := e.GetConversationHistory(h)
	if herr != nil {
		t.Fatalf("GetConversationHistory: %v", herr)
	}
	if len(hist) != 6 {
		t.Fatalf("expected 6 alternating entries for 3 turns, got %d", len(hist))
	}
	for i := 0; i < len(hist); i += 2 {
		if !strings.HasPrefix(hist[i], "User: ") || !strings.HasPrefix(hist[i+1], "Assistant: ") {
			t.Fatalf("expected alternating User/Assistant entries, got %v", hist)
		}
	}
}
