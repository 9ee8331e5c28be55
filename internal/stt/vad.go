// Package stt implements the STT Engine: model handle lifecycle,
// transcription, and energy-based voice activity detection. The VAD
// state machine is grounded on the teacher's internal/audio/vad.go
// (Silence/Speech with pre-speech buffering), retuned from the
// teacher's dB-relative adaptive threshold to spec.md §4.8's fixed
// linear energy mapping and single-shot (not streaming) operation.
package stt

import (
	"math"

	"github.com/voiced-ai/voiced/errs"
	"github.com/voiced-ai/voiced/internal/audiodsp"
	"github.com/voiced-ai/voiced/internal/types"
)

const (
	vadWindowS       = 0.1
	vadSilenceToEndS = 0.2
	vadMinSegmentS   = 0.25
)

// VADDetector abstracts voice-activity detection so the Voice Pipeline
// can run either the built-in energy-based detector or an external
// backend, such as internal/backend/onnxvad's Silero-style adapter.
type VADDetector interface {
	Detect(audio types.AudioData, threshold float64) ([]types.AudioSegment, *errs.Error)
}

// EnergyVAD is the default VADDetector, backed by DetectVoiceActivity.
type EnergyVAD struct{}

// Detect implements VADDetector.
func (EnergyVAD) Detect(audio types.AudioData, threshold float64) ([]types.AudioSegment, *errs.Error) {
	return DetectVoiceActivity(audio, threshold)
}

// vadEnergyThreshold maps threshold in [0,1] onto an RMS-energy
// threshold, per spec.md §4.8: E = 0.01 + 0.09*threshold.
func vadEnergyThreshold(threshold float64) float64 {
	return 0.01 + 0.09*threshold
}

// DetectVoiceActivity runs the window-based VAD state machine over a
// complete audio buffer and returns the speech segments found.
func DetectVoiceActivity(audio types.AudioData, threshold float64) ([]types.AudioSegment, *errs.Error) {
	if math.IsNaN(threshold) || threshold < 0.0 || threshold > 1.0 {
		return nil, errs.New(
			errs.InvalidInputParameterValue,
			"VAD threshold must be within the valid range",
			"threshold must be in [0.0, 1.0] and not NaN",
		).WithRecovery("pass a threshold between 0.0 and 1.0")
	}
	if audio.SampleRate <= 0 {
		return nil, errs.New(
			errs.InvalidInputAudioFormat,
			"audio sample rate must be a positive integer",
			"detectVoiceActivity requires sample_rate > 0",
		).WithRecovery("provide a valid sample rate in Hz")
	}

	energyThreshold := vadEnergyThreshold(threshold)
	windowLen := int(vadWindowS * float64(audio.SampleRate))
	if windowLen <= 0 {
		windowLen = 1
	}
	windows := audiodsp.WindowSamples(sanitize(audio.Samples), windowLen)

	var segments []types.AudioSegment
	var inSpeech bool
	var speechStartWin int
	var lastSpeechWin int

	flush := func(endWin int) {
		startS := float64(speechStartWin) * vadWindowS
		endS := float64(endWin+1) * vadWindowS
		if endS-startS >= vadMinSegmentS {
			segments = append(segments, types.AudioSegment{StartS: startS, EndS: endS})
		}
	}

	for i, w := range windows {
		energy := audiodsp.RMSEnergy(w)
		isSpeech := energy >= energyThreshold

		switch {
		case isSpeech && !inSpeech:
			inSpeech = true
			speechStartWin = i
			lastSpeechWin = i
		case isSpeech && inSpeech:
			lastSpeechWin = i
		case !isSpeech && inSpeech:
			silenceS := float64(i-lastSpeechWin) * vadWindowS
			if silenceS >= vadSilenceToEndS {
				flush(lastSpeechWin)
				inSpeech = false
			}
		}
	}
	if inSpeech {
		flush(lastSpeechWin)
	}

	return segments, nil
}

// sanitize replaces NaN/Inf samples with silence, matching the STT
// engine's preprocessing contract (spec.md §4.8).
func sanitize(samples []float32) []float32 {
	out := make([]float32, len(samples))
	for i, s := range samples {
		if math.IsNaN(float64(s)) || math.IsInf(float64(s), 0) {
			out[i] = 0
			continue
		}
		out[i] = s
	}
	return out
}
