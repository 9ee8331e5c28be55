// Package metrics exposes Prometheus counters/histograms for the Voice
// Pipeline, adapted from the teacher's internal/metrics/metrics.go:
// call-center session/RAG/WER-specific series dropped (no call-center or
// RAG feature survives in SPEC_FULL.md), the rest relabeled from "calls"
// to "conversations" and kept at the same stage/error cardinality.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConversationsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pipeline_conversations_active",
		Help: "Currently active StartConversation sessions",
	})

	ConversationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_conversations_total",
		Help: "Total conversations started",
	})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pipeline_stage_duration_seconds",
		Help:    "Per-stage latency (transcribe, generate, synthesize)",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0},
	}, []string{"stage"})

	TurnDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pipeline_turn_duration_seconds",
		Help:    "End-to-end latency from speech-end to first TTS audio",
		Buckets: []float64{0.1, 0.2, 0.5, 0.8, 1.0, 1.5, 2.0, 3.0, 5.0},
	})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pipeline_errors_total",
		Help: "Error counts by stage and error category",
	}, []string{"stage", "error_category"})

	AudioChunks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audio_chunks_processed_total",
		Help: "Total audio chunks received from AudioInput",
	})

	SpeechSegments = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vad_speech_segments_total",
		Help: "Speech segments detected by VAD",
	})

	Interruptions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pipeline_interruptions_total",
		Help: "Turns cut short by mid-speech interruption",
	})

	ModelLoadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "model_load_duration_seconds",
		Help:    "loadModel latency by model family",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"family"})

	DownloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "model_download_bytes_total",
		Help: "Total bytes downloaded across all model downloads",
	})
)
