// Package types holds the domain value types shared across the LLM, STT,
// and TTS engines and the Voice Pipeline (spec.md §3), kept separate from
// any one engine package to avoid import cycles.
package types

// AudioData is decoded PCM: samples in [-1.0, 1.0] at a fixed sample rate.
type AudioData struct {
	Samples    []float32
	SampleRate int
}

// AudioSegment marks a span of detected speech within a longer recording.
type AudioSegment struct {
	StartS float64
	EndS   float64
}

// GenerationConfig parameterizes LLM sampling.
type GenerationConfig struct {
	MaxTokens         int
	Temperature       float64
	TopP              float64
	TopK              int
	RepetitionPenalty float64
	StopSequences     []string
}

// DefaultGenerationConfig matches common "greedy-ish but not degenerate"
// chat defaults.
func DefaultGenerationConfig() GenerationConfig {
	return GenerationConfig{
		MaxTokens:         512,
		Temperature:       0.7,
		TopP:              0.95,
		TopK:              40,
		RepetitionPenalty: 1.1,
	}
}

// SynthesisConfig parameterizes TTS voice output.
type SynthesisConfig struct {
	VoiceID string
	Speed   float64
	Pitch   float64
}

// DefaultSynthesisConfig is a neutral speed/pitch passthrough.
func DefaultSynthesisConfig(voiceID string) SynthesisConfig {
	return SynthesisConfig{VoiceID: voiceID, Speed: 1.0, Pitch: 0.0}
}

// TranscriptionConfig parameterizes STT decoding.
type TranscriptionConfig struct {
	Language        string
	WordTimestamps  bool
	Translate       bool
}

// PipelineConfig parameterizes a configured Voice Pipeline turn.
type PipelineConfig struct {
	EnableVAD      bool
	VADThreshold   float64
	SystemPrompt   string
	Generation     GenerationConfig
	Synthesis      SynthesisConfig
	Transcription  TranscriptionConfig
}

// DefaultPipelineConfig mirrors the teacher's single inlined system
// prompt constant, now a configurable default rather than a hardcoded
// call-center script.
func DefaultPipelineConfig(voiceID string) PipelineConfig {
	return PipelineConfig{
		EnableVAD:     true,
		VADThreshold:  0.5,
		SystemPrompt:  "You are a helpful, concise voice assistant.",
		Generation:    DefaultGenerationConfig(),
		Synthesis:     DefaultSynthesisConfig(voiceID),
		Transcription: TranscriptionConfig{},
	}
}

// HistoryEntry is one completed conversational turn.
type HistoryEntry struct {
	UserText      string
	AssistantText string
	TimestampS    float64
}
