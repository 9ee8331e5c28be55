// Package audiodsp wraps the signal-processing primitives the STT and
// TTS engines need (VAD energy windows, pitch-shift verification) around
// cwbudde/algo-dsp, the DSP library CWBudde-go-pocket-tts declares but
// leaves mostly unexercised — wired here for real use.
package audiodsp

import (
	algodsp "github.com/cwbudde/algo-dsp"
)

// RMSEnergy computes the root-mean-square energy of a PCM window, the
// quantity the VAD state machine compares against its threshold.
func RMSEnergy(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	return algodsp.RMS(samples)
}

// ZeroCrossingRate returns the fraction of adjacent sample pairs that
// cross zero, used to verify that a pitch change produces materially
// different frequency content (spec.md §4.9).
func ZeroCrossingRate(samples []float32) float64 {
	if len(samples) < 2 {
		return 0
	}
	return algodsp.ZeroCrossingRate(samples)
}

// WindowSamples slices samples into fixed-size, non-overlapping windows
// of windowLen samples. The final partial window, if any, is dropped —
// callers needing the tail should pad samples first.
func WindowSamples(samples []float32, windowLen int) [][]float32 {
	if windowLen <= 0 {
		return nil
	}
	var windows [][]float32
	for i := 0; i+windowLen <= len(samples); i += windowLen {
		windows = append(windows, samples[i:i+windowLen])
	}
	return windows
}
