// Package httpsidecar implements backend.Adapter family members against
// local HTTP sidecar processes, grounded on the teacher's Ollama/
// whisper.cpp/Piper clients (internal/pipeline/{llm,asr,tts}.go). Each
// sidecar is assumed already running on localhost; Open records its base
// URL and model name rather than spawning a process.
package httpsidecar

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/voiced-ai/voiced/internal/backend"
	"github.com/voiced-ai/voiced/internal/httpclient"
	"github.com/voiced-ai/voiced/internal/llm"
)

// LLMConfig points the adapter at a running Ollama-compatible server.
type LLMConfig struct {
	BaseURL         string
	ContextCapacity int
	TokenizerPath   string
}

// LLM is a backend.LLMAdapter talking to an Ollama-shaped chat endpoint.
type LLM struct {
	cfg    LLMConfig
	client *httpclient.Client
	tok    *llm.Tokenizer
}

// NewLLM constructs an LLM sidecar adapter. tok may be nil only in tests
// that never call Tokenize/Detokenize.
func NewLLM(cfg LLMConfig, tok *llm.Tokenizer) *LLM {
	return &LLM{cfg: cfg, client: httpclient.New(httpclient.DefaultConfig()), tok: tok}
}

type llmHandle struct {
	mu       sync.Mutex
	model    string
	capacity int
	usage    int
}

// Open records a logical model name (the "path" the engine resolved from
// manifest/registry metadata) and starts a fresh, zero-usage context.
func (a *LLM) Open(ctx context.Context, path string) (backend.Handle, error) {
	return &llmHandle{model: path, capacity: a.cfg.ContextCapacity}, nil
}

func (a *LLM) Close(h backend.Handle) error {
	return nil
}

// ResetContext zeroes the adapter-tracked usage counter for h, satisfying
// backend.ContextResetter.
func (a *LLM) ResetContext(h backend.Handle) {
	hh := h.(*llmHandle)
	hh.mu.Lock()
	hh.usage = 0
	hh.mu.Unlock()
}

func (a *LLM) ContextCapacity(h backend.Handle) int {
	return h.(*llmHandle).capacity
}

func (a *LLM) ContextUsage(h backend.Handle) int {
	hh := h.(*llmHandle)
	hh.mu.Lock()
	defer hh.mu.Unlock()
	return hh.usage
}

func (a *LLM) Tokenize(h backend.Handle, text string) ([]int, error) {
	return a.tok.Tokenize(text), nil
}

func (a *LLM) Detokenize(h backend.Handle, tokens []int) (string, error) {
	return a.tok.Detokenize(tokens), nil
}

// Generate streams a chat completion from the sidecar, feeding each
// decoded token to onToken before accumulating it, mirroring the
// teacher's OllamaLLMClient.consumeStream/applyChunk split.
func (a *LLM) Generate(ctx context.Context, h backend.Handle, tokens []int, sampler backend.Sampler, onToken backend.TokenFunc) ([]int, error) {
	hh := h.(*llmHandle)
	prompt, err := a.Detokenize(h, tokens)
	if err != nil {
		return nil, err
	}

	resp, sendErr := a.postChatRequest(ctx, hh.model, prompt, sampler)
	if sendErr != nil {
		return nil, sendErr
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("sidecar chat status %d: %s", resp.StatusCode, body)
	}

	text, genErr := a.consumeStream(resp, sampler, onToken)
	if genErr != nil {
		return nil, genErr
	}

	outTokens := a.tok.Tokenize(text)
	hh.mu.Lock()
	hh.usage += len(tokens) + len(outTokens)
	hh.mu.Unlock()
	return outTokens, nil
}

func (a *LLM) postChatRequest(ctx context.Context, model, prompt string, sampler backend.Sampler) (*http.Response, error) {
	reqBody := chatRequest{
		Model:  model,
		Stream: true,
		Messages: []chatMessage{
			{Role: "user", Content: prompt},
		},
		Options: chatOptions{
			NumPredict:  sampler.MaxTokens,
			Temperature: sampler.Temperature,
			TopP:        sampler.TopP,
			TopK:        sampler.TopK,
			Stop:        sampler.StopSequences,
		},
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal sidecar chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/api/chat", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create sidecar chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sidecar chat request: %w", err)
	}
	return resp, nil
}

func (a *LLM) consumeStream(resp *http.Response, sampler backend.Sampler, onToken backend.TokenFunc) (string, error) {
	var text string
	var tokenCount int
	scanner := bufio.NewScanner(resp.Body)

	for scanner.Scan() {
		var chunk chatStreamChunk
		if json.Unmarshal(scanner.Bytes(), &chunk) != nil {
			continue
		}
		if chunk.Done {
			break
		}
		content := chunk.Message.Content
		if content == "" {
			continue
		}
		if stopped := stoppedByStopSequence(text+content, sampler.StopSequences); stopped {
			return text, nil
		}
		if onToken != nil {
			onToken(content)
		}
		text += content
		tokenCount++
		if sampler.MaxTokens > 0 && tokenCount >= sampler.MaxTokens {
			break
		}
	}
	return text, nil
}

func stoppedByStopSequence(text string, stops []string) bool {
	for _, s := range stops {
		if s == "" {
			continue
		}
		if len(text) >= len(s) && text[len(text)-len(s):] == s {
			return true
		}
	}
	return false
}

type chatRequest struct {
	Model    string        `json:"model"`
	Stream   bool          `json:"stream"`
	Messages []chatMessage `json:"messages"`
	Options  chatOptions   `json:"options"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatOptions struct {
	NumPredict  int      `json:"num_predict"`
	Temperature float64  `json:"temperature"`
	TopP        float64  `json:"top_p"`
	TopK        int      `json:"top_k"`
	Stop        []string `json:"stop,omitempty"`
}

type chatStreamChunk struct {
	Message chatMessage `json:"message"`
	Done    bool        `json:"done"`
}

var (
	_ backend.LLMAdapter       = (*LLM)(nil)
	_ backend.ContextResetter  = (*LLM)(nil)
)
