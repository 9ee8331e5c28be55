// Package pipeline implements the Voice Pipeline: a turn-taking state
// machine orchestrating STT → LLM → TTS, grounded on the teacher's
// internal/pipeline/pipeline.go (ProcessChunk/runFullPipeline turn loop),
// generalized from a call-center session to the engine-handle-based
// contract of spec.md §4.10.
package pipeline

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/voiced-ai/voiced/errs"
	"github.com/voiced-ai/voiced/internal/llm"
	"github.com/voiced-ai/voiced/internal/metrics"
	"github.com/voiced-ai/voiced/internal/stt"
	"github.com/voiced-ai/voiced/internal/tts"
	"github.com/voiced-ai/voiced/internal/types"
)

// State is one point in the turn-taking state machine (spec.md §4.10).
type State int

const (
	StateUnconfigured State = iota
	StateIdle
	StateListening
	StateTranscribing
	StateThinking
	StateSpeaking
	StateCancelled
	StateInterrupted
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "Unconfigured"
	case StateIdle:
		return "Idle"
	case StateListening:
		return "Listening"
	case StateTranscribing:
		return "Transcribing"
	case StateThinking:
		return "Thinking"
	case StateSpeaking:
		return "Speaking"
	case StateCancelled:
		return "Cancelled"
	case StateInterrupted:
		return "Interrupted"
	default:
		return "Unknown"
	}
}

// AudioInput is a pull source of audio chunks. Next returns a zero-sample
// AudioData to signal the conversation has ended.
type AudioInput interface {
	Next(ctx context.Context) (types.AudioData, error)
}

// AudioOutput receives synthesized PCM chunks in order.
type AudioOutput interface {
	Write(pcm []float32)
}

// Pipeline coordinates STT, LLM, and TTS engines it borrows but does not
// own (spec.md §9 "Cyclic ownership").
type Pipeline struct {
	sttEngine *stt.Engine
	llmEngine *llm.Engine
	ttsEngine *tts.Engine

	mu          sync.Mutex
	state       State
	sttH        uint64
	llmH        uint64
	ttsH        uint64
	cfg         types.PipelineConfig
	history     []types.HistoryEntry
	vadDetector stt.VADDetector

	cancelFn context.CancelFunc
}

// New constructs an unconfigured Pipeline over borrowed engine instances,
// using the built-in energy-based VADDetector unless SetVADDetector is
// called before StartConversation.
func New(sttEngine *stt.Engine, llmEngine *llm.Engine, ttsEngine *tts.Engine) *Pipeline {
	return &Pipeline{sttEngine: sttEngine, llmEngine: llmEngine, ttsEngine: ttsEngine, state: StateUnconfigured, vadDetector: stt.EnergyVAD{}}
}

// SetVADDetector swaps in an alternative mid-speech interruption detector,
// e.g. internal/backend/onnxvad's Silero-style adapter.
func (p *Pipeline) SetVADDetector(d stt.VADDetector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.vadDetector = d
}

// State returns the pipeline's current state. Safe in any state.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Configure validates the three handles and stores cfg, performing no
// resource acquisition beyond validation.
func (p *Pipeline) Configure(sttHandle, llmHandle, ttsHandle uint64, cfg types.PipelineConfig) *errs.Error {
	if _, verr := p.llmEngine.GetContextCapacity(llmHandle); verr != nil {
		return invalidHandle("llm", verr)
	}
	if _, verr := p.sttEngineValidate(sttHandle); verr != nil {
		return invalidHandle("stt", verr)
	}
	if _, verr := p.ttsEngine.GetAvailableVoices(ttsHandle); verr != nil {
		return invalidHandle("tts", verr)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.sttH, p.llmH, p.ttsH = sttHandle, llmHandle, ttsHandle
	p.cfg = cfg
	p.state = StateIdle
	return nil
}

func (p *Pipeline) sttEngineValidate(handle uint64) (struct{}, *errs.Error) {
	// The STT Engine has no "capacity" probe; transcribing zero-length
	// silence is a handle-validity check with no audible side effect.
	_, err := p.sttEngine.Transcribe(context.Background(), handle, types.AudioData{SampleRate: 16000}, types.TranscriptionConfig{})
	if err != nil && err.Code == errs.InvalidInputModelHandle {
		return struct{}{}, err
	}
	if err != nil && err.Code == errs.InferenceModelNotLoaded {
		return struct{}{}, err
	}
	return struct{}{}, nil
}

func invalidHandle(which string, cause *errs.Error) *errs.Error {
	return errs.New(
		errs.InvalidInputModelHandle,
		"pipeline configuration requires a valid "+which+" model handle",
		"handle validation against the "+which+" engine failed: "+cause.Message,
	).WithRecovery("load the model with the corresponding engine before configuring the pipeline")
}

// ClearHistory empties pipeline history and resets the LLM handle's context.
func (p *Pipeline) ClearHistory() *errs.Error {
	p.mu.Lock()
	llmH := p.llmH
	p.history = nil
	p.mu.Unlock()

	if llmH == 0 {
		return nil
	}
	return p.llmEngine.ClearContext(llmH)
}

// GetHistory returns a snapshot of the pipeline's conversation history.
// Safe to call in any state.
func (p *Pipeline) GetHistory() []types.HistoryEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]types.HistoryEntry, len(p.history))
	copy(out, p.history)
	return out
}

// Cancel cooperatively aborts the current turn; state returns to Idle.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	cancel := p.cancelFn
	if p.state != StateUnconfigured {
		p.state = StateCancelled
	}
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	p.mu.Lock()
	if p.state == StateCancelled {
		p.state = StateIdle
	}
	p.mu.Unlock()
}

// OnTranscriptFunc receives each user utterance's transcript text.
type OnTranscriptFunc func(text string)

// OnResponseFunc receives each streamed assistant response token.
type OnResponseFunc func(token string)

// frame is one item pulled off AudioInput by the single reader goroutine.
type frame struct {
	data types.AudioData
	err  error
}

// StartConversation runs the turn-taking loop until audioInput yields
// empty audio or the pipeline is cancelled. A single background goroutine
// owns all calls to audioInput.Next for the lifetime of the conversation,
// so the main loop and the mid-speech interruption watcher never race on
// the same pull source; both instead read from a shared frame channel.
func (p *Pipeline) StartConversation(ctx context.Context, audioInput AudioInput, audioOutput AudioOutput, onTranscript OnTranscriptFunc, onResponse OnResponseFunc) *errs.Error {
	if audioInput == nil || audioOutput == nil || onTranscript == nil || onResponse == nil {
		return errs.New(
			errs.InvalidInputNullPointer,
			"startConversation requires all four arguments to be non-null",
			"audio_input, audio_output, on_transcript, and on_response must all be provided",
		).WithRecovery("pass non-null callbacks and I/O handles")
	}

	p.mu.Lock()
	if p.state != StateIdle {
		p.mu.Unlock()
		return errs.New(
			errs.InvalidInputConfiguration,
			"startConversation requires the pipeline to be configured and idle",
			"call configure() successfully before starting a conversation",
		).WithRecovery("call configure() first")
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancelFn = cancel
	p.mu.Unlock()
	defer cancel()

	metrics.ConversationsTotal.Inc()
	metrics.ConversationsActive.Inc()
	defer metrics.ConversationsActive.Dec()

	frames := make(chan frame, 1)
	go func() {
		for {
			data, err := audioInput.Next(runCtx)
			if err == nil && len(data.Samples) > 0 {
				metrics.AudioChunks.Inc()
			}
			frames <- frame{data: data, err: err}
			if err != nil || len(data.Samples) == 0 || runCtx.Err() != nil {
				return
			}
		}
	}()

	for {
		p.setState(StateListening)

		f, ok := <-frames
		if !ok || f.err != nil {
			return errs.New(errs.OperationCancelled, "audio input was interrupted while listening", "the audio source closed or returned an error before the conversation ended")
		}
		if len(f.data.Samples) == 0 {
			p.setState(StateIdle)
			return nil
		}
		if runCtx.Err() != nil {
			return nil
		}

		if err := p.runTurn(runCtx, f.data, frames, audioOutput, onTranscript, onResponse); err != nil {
			if err.Category == errs.CategoryCancelled {
				p.setState(StateIdle)
				return nil
			}
			return err
		}
	}
}

func (p *Pipeline) runTurn(ctx context.Context, chunk types.AudioData, frames chan frame, audioOutput AudioOutput, onTranscript OnTranscriptFunc, onResponse OnResponseFunc) *errs.Error {
	turnStart := time.Now()
	defer func() { metrics.TurnDuration.Observe(time.Since(turnStart).Seconds()) }()

	p.setState(StateTranscribing)

	p.mu.Lock()
	sttH, llmH, ttsH, cfg := p.sttH, p.llmH, p.ttsH, p.cfg
	p.mu.Unlock()

	stageStart := time.Now()
	transcription, terr := p.sttEngine.Transcribe(ctx, sttH, chunk, cfg.Transcription)
	metrics.StageDuration.WithLabelValues("transcribe").Observe(time.Since(stageStart).Seconds())
	if terr != nil {
		metrics.Errors.WithLabelValues("transcribe", string(terr.Category)).Inc()
		return terr
	}
	userText := strings.TrimSpace(transcription.Text)
	if userText == "" {
		return nil
	}
	onTranscript(userText)

	p.setState(StateThinking)

	stageStart = time.Now()
	var assistantText string
	gerr := p.llmEngine.GenerateStreaming(ctx, llmH, userText, cfg.Generation, func(token string) {
		assistantText += token
		onResponse(token)
	})
	metrics.StageDuration.WithLabelValues("generate").Observe(time.Since(stageStart).Seconds())
	if gerr != nil {
		metrics.Errors.WithLabelValues("generate", string(gerr.Category)).Inc()
		return gerr
	}

	p.setState(StateSpeaking)
	speakCtx, speakCancel := context.WithCancel(ctx)

	interrupted := p.watchForInterruption(speakCtx, speakCancel, frames, cfg.VADThreshold)

	stageStart = time.Now()
	serr := p.ttsEngine.SynthesizeStreaming(speakCtx, ttsH, assistantText, cfg.Synthesis, func(pcm []float32) {
		audioOutput.Write(pcm)
	})
	metrics.StageDuration.WithLabelValues("synthesize").Observe(time.Since(stageStart).Seconds())
	speakCancel()

	if interrupted() {
		metrics.Interruptions.Inc()
		p.setState(StateInterrupted)
	} else if serr != nil && serr.Category != errs.CategoryCancelled {
		metrics.Errors.WithLabelValues("synthesize", string(serr.Category)).Inc()
		return serr
	}

	p.mu.Lock()
	stamp := float64(len(p.history))
	p.history = append(p.history, types.HistoryEntry{UserText: userText, AssistantText: assistantText, TimestampS: stamp})
	p.mu.Unlock()

	return nil
}

// watchForInterruption observes the shared frame channel while speaking.
// If a frame carrying detected speech arrives before speaking finishes, it
// cancels the speaking context via speakCancel; any frame consumed this way
// is requeued onto frames so the next Listening iteration still sees it
// (spec.md §4.10 "Interruption").
func (p *Pipeline) watchForInterruption(speakCtx context.Context, speakCancel context.CancelFunc, frames chan frame, vadThreshold float64) func() bool {
	if !p.vadEnabled() {
		return func() bool { return false }
	}

	p.mu.Lock()
	detector := p.vadDetector
	p.mu.Unlock()

	fired := make(chan bool, 1)
	go func() {
		select {
		case <-speakCtx.Done():
			fired <- false
			return
		case f, ok := <-frames:
			if !ok {
				fired <- false
				return
			}
			if f.err != nil || len(f.data.Samples) == 0 {
				// Still requeue: an end-of-conversation or error frame must
				// reach the next Listening iteration, or it terminates the
				// conversation's pull loop and the main loop blocks forever
				// waiting for a frame nobody will ever send.
				frames <- f
				fired <- false
				return
			}
			segments, verr := detector.Detect(f.data, vadThreshold)
			isSpeech := verr == nil && len(segments) > 0
			if isSpeech {
				metrics.SpeechSegments.Inc()
			}
			// requeue so the next Listening iteration still sees this frame,
			// whether or not it carried speech.
			frames <- f
			if isSpeech {
				speakCancel()
			}
			fired <- isSpeech
		}
	}()

	// The watcher always sends exactly one value before returning, so this
	// blocks only as long as it takes the goroutine above to observe
	// speakCtx.Done() (already true by the time the caller asks) or a frame.
	return func() bool { return <-fired }
}

func (p *Pipeline) vadEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg.EnableVAD
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	if p.state != StateCancelled {
		p.state = s
	}
	p.mu.Unlock()
}
