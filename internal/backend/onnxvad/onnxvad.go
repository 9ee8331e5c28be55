// Package onnxvad implements stt.VADDetector on top of ONNX Runtime,
// grounded on nupi-ai-plugin-vad-local-silero's internal/engine/silero.go:
// the same windowed-inference, carried-hidden-state design, adapted from
// a standalone gRPC plugin process to an in-process backend.Adapter-style
// component loaded directly by the Voice Pipeline.
//
// Unlike the teacher, which embeds its ONNX model at build time via
// go:embed, this package loads the model from a path supplied at Open
// time, matching spec.md §6's "opaque backend: open(path) -> opaque"
// contract used by every other adapter family in this runtime.
package onnxvad

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/voiced-ai/voiced/errs"
	"github.com/voiced-ai/voiced/internal/types"
)

// windowSize and stateSize match Silero VAD v5's expected tensor shapes.
const (
	windowSize   = 512
	stateSize    = 128
	sampleRateHz = 16000
)

var (
	initOnce sync.Once
	initErr  error
)

// Adapter runs Silero-style VAD inference via ONNX Runtime. It implements
// stt.VADDetector, so it can replace stt.EnergyVAD as the Voice Pipeline's
// mid-speech interruption detector.
type Adapter struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	stateTensor  *ort.Tensor[float32]
	srTensor     *ort.Tensor[int64]
	outputTensor *ort.Tensor[float32]
	stateNTensor *ort.Tensor[float32]
}

// Open initializes the ONNX Runtime environment (once per process, via
// sharedLibPath) and loads the VAD model at modelPath, allocating its
// reusable input/output tensors.
func Open(sharedLibPath, modelPath string) (*Adapter, error) {
	initOnce.Do(func() {
		ort.SetSharedLibraryPath(sharedLibPath)
		initErr = ort.InitializeEnvironment()
	})
	if initErr != nil {
		return nil, fmt.Errorf("onnxvad: initialize runtime: %w", initErr)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, windowSize))
	if err != nil {
		return nil, fmt.Errorf("onnxvad: create input tensor: %w", err)
	}
	stateTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, stateSize))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("onnxvad: create state tensor: %w", err)
	}
	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{sampleRateHz})
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		return nil, fmt.Errorf("onnxvad: create sample-rate tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		return nil, fmt.Errorf("onnxvad: create output tensor: %w", err)
	}
	stateNTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, stateSize))
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("onnxvad: create stateN tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(
		modelPath,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		[]ort.Value{inputTensor, stateTensor, srTensor},
		[]ort.Value{outputTensor, stateNTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		outputTensor.Destroy()
		stateNTensor.Destroy()
		return nil, fmt.Errorf("onnxvad: create session: %w", err)
	}

	return &Adapter{
		session:      session,
		inputTensor:  inputTensor,
		stateTensor:  stateTensor,
		srTensor:     srTensor,
		outputTensor: outputTensor,
		stateNTensor: stateNTensor,
	}, nil
}

// Close releases the ONNX Runtime session and its tensors. Safe to call once.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.session.Destroy()
	a.inputTensor.Destroy()
	a.stateTensor.Destroy()
	a.srTensor.Destroy()
	a.outputTensor.Destroy()
	a.stateNTensor.Destroy()
	return nil
}

// Detect implements stt.VADDetector: it runs Silero inference over
// consecutive windowSize-sample windows of audio and merges consecutive
// above-threshold windows into segments, resetting hidden state first so
// separate calls never leak state between unrelated buffers.
func (a *Adapter) Detect(audio types.AudioData, threshold float64) ([]types.AudioSegment, *errs.Error) {
	if audio.SampleRate != sampleRateHz {
		return nil, errs.New(
			errs.InvalidInputAudioFormat,
			"the ONNX VAD adapter requires 16 kHz input audio",
			fmt.Sprintf("got sample rate %d, expected %d", audio.SampleRate, sampleRateHz),
		).WithRecovery("resample audio to 16000 Hz before calling detectVoiceActivity")
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	clearFloat32(a.stateTensor.GetData())

	samples := audio.Samples
	windowS := float64(windowSize) / float64(sampleRateHz)

	var segments []types.AudioSegment
	var inSpeech bool
	var startWin int
	for w := 0; w*windowSize < len(samples); w++ {
		start := w * windowSize
		end := start + windowSize
		window := make([]float32, windowSize)
		if end > len(samples) {
			copy(window, samples[start:])
		} else {
			copy(window, samples[start:end])
		}

		prob, err := a.infer(window)
		if err != nil {
			return nil, errs.New(errs.InferenceHardwareAccelerationFailure, "ONNX VAD inference failed", err.Error()).WithCause(err)
		}

		speech := float64(prob) >= threshold
		switch {
		case speech && !inSpeech:
			inSpeech = true
			startWin = w
		case !speech && inSpeech:
			inSpeech = false
			segments = append(segments, types.AudioSegment{StartS: float64(startWin) * windowS, EndS: float64(w) * windowS})
		}
	}
	if inSpeech {
		segments = append(segments, types.AudioSegment{StartS: float64(startWin) * windowS, EndS: float64(len(samples)) / float64(sampleRateHz)})
	}
	return segments, nil
}

func (a *Adapter) infer(window []float32) (float32, error) {
	copy(a.inputTensor.GetData(), window)
	if err := a.session.Run(); err != nil {
		return 0, err
	}
	prob := a.outputTensor.GetData()[0]
	copy(a.stateTensor.GetData(), a.stateNTensor.GetData())
	return prob, nil
}

func clearFloat32(s []float32) {
	for i := range s {
		s[i] = 0
	}
}
