// Package backend defines the stable adapter contract the engines
// consume (spec.md §6 "Backend adapter contract"). Implementations are
// opaque from the engine's point of view: a local HTTP sidecar process
// (internal/backend/httpsidecar, grounded on the teacher's Ollama/
// whisper.cpp/Piper clients) or an out-of-process gRPC plugin
// (internal/backend/grpcplugin, grounded on nupi-ai-plugin-vad-local-silero).
package backend

import "context"

// Handle is an opaque backend-side reference returned by Open.
type Handle any

// Sampler carries the generation parameters an LLM backend needs.
type Sampler struct {
	MaxTokens         int
	Temperature       float64
	TopP              float64
	TopK              int
	RepetitionPenalty float64
	StopSequences     []string
}

// TokenFunc receives one generated token at a time, in order.
type TokenFunc func(token string)

// ChunkFunc receives one synthesized audio chunk at a time, in order.
type ChunkFunc func(pcm []float32)

// Adapter is the capability set every backend family implements.
type Adapter interface {
	Open(ctx context.Context, path string) (Handle, error)
	Close(h Handle) error
	ContextCapacity(h Handle) int
	ContextUsage(h Handle) int
}

// ContextResetter is implemented by adapters that can zero a loaded
// model's context in place. llm.Engine.ClearContext calls it when present;
// for an adapter without it, the engine clears only its own history and
// the backend's context usage is left unchanged.
type ContextResetter interface {
	ResetContext(h Handle)
}

// LLMAdapter generates text from a token sequence.
type LLMAdapter interface {
	Adapter
	Tokenize(h Handle, text string) ([]int, error)
	Detokenize(h Handle, tokens []int) (string, error)
	Generate(ctx context.Context, h Handle, tokens []int, sampler Sampler, onToken TokenFunc) ([]int, error)
}

// STTAdapter transcribes PCM audio to text.
type STTAdapter interface {
	Adapter
	Transcribe(ctx context.Context, h Handle, pcm []float32, sampleRate int, lang string, wantWords bool) (Transcription, error)
}

// Transcription is the backend's raw transcription output.
type Transcription struct {
	Text       string
	Confidence float64
	Language   string
	Words      []Word
}

// Word is one timestamped token of a transcription.
type Word struct {
	Text       string
	StartS     float64
	EndS       float64
	Confidence float64
}

// TTSAdapter synthesizes PCM audio from text.
type TTSAdapter interface {
	Adapter
	Synthesize(ctx context.Context, h Handle, text, voice string, speed, pitch float64, onChunk ChunkFunc) ([]float32, int, error)
	Voices(h Handle) []string
}
