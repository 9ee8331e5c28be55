package tts

import (
	"context"
	"math"
	"testing"

	"github.com/voiced-ai/voiced/internal/audiodsp"
	"github.com/voiced-ai/voiced/internal/backend"
	"github.com/voiced-ai/voiced/internal/memory"
	"github.com/voiced-ai/voiced/internal/types"
)

// fakeAdapter synthesizes a sine wave whose duration scales inversely
// with speed and whose frequency scales with pitch, so the parameter
// effect properties in spec.md §4.9 are exercisable.
type fakeAdapter struct {
	sampleRate  int
	baseSamples int
	voices      []string
}

func (f *fakeAdapter) Open(ctx context.Context, path string) (backend.Handle, error) { return "h", nil }
func (f *fakeAdapter) Close(h backend.Handle) error                                  { return nil }
func (f *fakeAdapter) ContextCapacity(h backend.Handle) int                          { return 0 }
func (f *fakeAdapter) ContextUsage(h backend.Handle) int                             { return 0 }
func (f *fakeAdapter) Voices(h backend.Handle) []string                              { return f.voices }

func (f *fakeAdapter) Synthesize(ctx context.Context, h backend.Handle, text, voice string, speed, pitch float64, onChunk backend.ChunkFunc) ([]float32, int, error) {
	n := int(float64(f.baseSamples) / speed)
	freq := 200.0 * (1.0 + pitch)
	pcm := make([]float32, n)
	for i := range pcm {
		pcm[i] = float32(math.Sin(2 * math.Pi * freq * float64(i) / float64(f.sampleRate)))
	}
	if onChunk != nil {
		const chunk = 256
		for i := 0; i < len(pcm); i += chunk {
			end := i + chunk
			if end > len(pcm) {
				end = len(pcm)
			}
			onChunk(pcm[i:end])
		}
	}
	return pcm, f.sampleRate, nil
}

var _ backend.TTSAdapter = (*fakeAdapter)(nil)

func newEngine() *Engine {
	return NewEngine(&fakeAdapter{sampleRate: 16000, baseSamples: 16000, voices: []string{"v1", "v2"}}, memory.NewManager(1<<30))
}

func TestSynthesizeRejectsEmptyText(t *testing.T) {
	e := newEngine()
	h, _ := e.LoadModel(context.Background(), "model.bin", 1024)
	cfg := types.DefaultSynthesisConfig("v1")
	if _, err := e.Synthesize(context.Background(), h, "", cfg); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestSynthesizeRejectsOutOfRangeSpeed(t *testing.T) {
	e := newEngine()
	h, _ := e.LoadModel(context.Background(), "model.bin", 1024)
	cfg := types.SynthesisConfig{VoiceID: "v1", Speed: 10, Pitch: 0}
	if _, err := e.Synthesize(context.Background(), h, "hello", cfg); err == nil {
		t.Fatal("expected error for out-of-range speed")
	}
}

func TestSpeedChangeInverselyAffectsDuration(t *testing.T) {
	e := newEngine()
	h, _ := e.LoadModel(context.Background(), "model.bin", 1024)

	base, err := e.Synthesize(context.Background(), h, "hello world", types.SynthesisConfig{VoiceID: "v1", Speed: 1.0, Pitch: 0})
	if err != nil {
		t.Fatalf("Synthesize base: %v", err)
	}
	fast, err := e.Synthesize(context.Background(), h, "hello world", types.SynthesisConfig{VoiceID: "v1", Speed: 2.0, Pitch: 0})
	if err != nil {
		t.Fatalf("Synthesize fast: %v", err)
	}

	ratio := float64(len(fast.Samples)) / float64(len(base.Samples))
	// expect ~0.5 (inverse of the 2x speed change) within 30%
	if ratio < 0.35 || ratio > 0.65 {
		t.Fatalf("expected duration ratio near 0.5 for 2x speed, got %f", ratio)
	}
}

func TestPitchChangeAffectsZeroCrossingRate(t *testing.T) {
	e := newEngine()
	h, _ := e.LoadModel(context.Background(), "model.bin", 1024)

	base, err := e.Synthesize(context.Background(), h, "hello world", types.SynthesisConfig{VoiceID: "v1", Speed: 1.0, Pitch: 0})
	if err != nil {
		t.Fatalf("Synthesize base: %v", err)
	}
	shifted, err := e.Synthesize(context.Background(), h, "hello world", types.SynthesisConfig{VoiceID: "v1", Speed: 1.0, Pitch: 0.5})
	if err != nil {
		t.Fatalf("Synthesize shifted: %v", err)
	}

	zcrBase := audiodsp.ZeroCrossingRate(base.Samples)
	zcrShifted := audiodsp.ZeroCrossingRate(shifted.Samples)
	diff := math.Abs(zcrShifted-zcrBase) / zcrBase
	if diff <= 0.05 {
		t.Fatalf("expected zero-crossing rate to differ by >5%%, got %f%%", diff*100)
	}
}

func TestSynthesizeStreamingConcatenatesToSameLength(t *testing.T) {
	e := newEngine()
	h, _ := e.LoadModel(context.Background(), "model.bin", 1024)
	cfg := types.SynthesisConfig{VoiceID: "v1", Speed: 1.0, Pitch: 0}

	sync, err := e.Synthesize(context.Background(), h, "hello world", cfg)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}

	var streamed []float32
	serr := e.SynthesizeStreaming(context.Background(), h, "hello world", cfg, func(chunk []float32) {
		streamed = append(streamed, chunk...)
	})
	if serr != nil {
		t.Fatalf("SynthesizeStreaming: %v", serr)
	}
	if len(streamed) != len(sync.Samples) {
		t.Fatalf("expected streaming concatenation length %d to equal sync length %d", len(streamed), len(sync.Samples))
	}
}

func TestGetAvailableVoices(t *testing.T) {
	e := newEngine()
	h, _ := e.LoadModel(context.Background(), "model.bin", 1024)
	voices, err := e.GetAvailableVoices(h)
	if err != nil {
		t.Fatalf("GetAvailableVoices: %v", err)
	}
	if len(voices) != 2 {
		t.Fatalf("expected 2 voices, got %v", voices)
	}
}
