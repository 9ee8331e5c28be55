package grpcplugin

import (
	"context"
	"fmt"
	"io"

	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/voiced-ai/voiced/internal/backend"
)

// LLM is a backend.LLMAdapter whose Tokenize/Detokenize/Generate calls are
// forwarded to a plugin process. The plugin owns its own tokenizer, unlike
// httpsidecar.LLM which tokenizes locally.
type LLM struct {
	client *Client
}

func NewLLM(client *Client) *LLM {
	return &LLM{client: client}
}

func (a *LLM) Open(ctx context.Context, path string) (backend.Handle, error) {
	return a.client.open(ctx, path)
}

func (a *LLM) Close(h backend.Handle) error {
	return a.client.close(asPluginHandle(h))
}

func (a *LLM) ContextCapacity(h backend.Handle) int {
	return int(asPluginHandle(h).capacity)
}

func (a *LLM) ContextUsage(h backend.Handle) int {
	return a.client.contextUsage(asPluginHandle(h))
}

func (a *LLM) Tokenize(h backend.Handle, text string) ([]int, error) {
	req, err := structpb.NewStruct(map[string]any{"handle": asPluginHandle(h).id, "text": text})
	if err != nil {
		return nil, fmt.Errorf("encode tokenize request: %w", err)
	}
	resp := new(structpb.Struct)
	if err := a.client.invoke(context.Background(), "Tokenize", req, resp); err != nil {
		return nil, fmt.Errorf("tokenize via plugin: %w", err)
	}
	return intListFromValue(resp.Fields["tokens"]), nil
}

func (a *LLM) Detokenize(h backend.Handle, tokens []int) (string, error) {
	req, err := structpb.NewStruct(map[string]any{"handle": asPluginHandle(h).id, "tokens": intsToAny(tokens)})
	if err != nil {
		return "", fmt.Errorf("encode detokenize request: %w", err)
	}
	resp := new(wrapperspb.StringValue)
	if err := a.client.invoke(context.Background(), "Detokenize", req, resp); err != nil {
		return "", fmt.Errorf("detokenize via plugin: %w", err)
	}
	return resp.GetValue(), nil
}

// Generate opens a server-streaming Generate call, feeding onToken one
// decoded fragment at a time from the stream and returning the plugin's
// final token-id list from the terminal "done" message.
func (a *LLM) Generate(ctx context.Context, h backend.Handle, tokens []int, sampler backend.Sampler, onToken backend.TokenFunc) ([]int, error) {
	req, err := structpb.NewStruct(map[string]any{
		"handle":             asPluginHandle(h).id,
		"tokens":             intsToAny(tokens),
		"max_tokens":         float64(sampler.MaxTokens),
		"temperature":        sampler.Temperature,
		"top_p":              sampler.TopP,
		"top_k":              float64(sampler.TopK),
		"repetition_penalty": sampler.RepetitionPenalty,
		"stop_sequences":     stringsToAny(sampler.StopSequences),
	})
	if err != nil {
		return nil, fmt.Errorf("encode generate request: %w", err)
	}
	stream, err := a.client.serverStream(ctx, "Generate", req)
	if err != nil {
		return nil, err
	}
	for {
		msg := new(structpb.Struct)
		if err := stream.RecvMsg(msg); err != nil {
			if err == io.EOF {
				return nil, fmt.Errorf("generate stream closed before a done message")
			}
			return nil, fmt.Errorf("receive generate chunk: %w", err)
		}
		if msg.Fields["done"].GetBoolValue() {
			return intListFromValue(msg.Fields["tokens"]), nil
		}
		if tok := msg.Fields["token"].GetStringValue(); tok != "" && onToken != nil {
			onToken(tok)
		}
	}
}

var _ backend.LLMAdapter = (*LLM)(nil)
