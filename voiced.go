// Package voiced is the public SDK surface (spec.md §6): Initialize
// wires the Model Manager, the three inference engines, the Voice
// Pipeline, and (optionally) local telemetry into a single Runtime;
// every other operation the spec's Public SDK table names hangs off
// that Runtime or the per-family Engine it returns. Grounded on the
// teacher's cmd/gateway/main.go for the overall construction order
// (config load -> logging init -> engines -> router), generalized from
// the teacher's fixed ASR/LLM/TTS trio to handle-addressed engines
// backed by pluggable backend.Adapter implementations.
package voiced

import (
	"context"

	"github.com/voiced-ai/voiced/errs"
	"github.com/voiced-ai/voiced/internal/backend"
	"github.com/voiced-ai/voiced/internal/config"
	"github.com/voiced-ai/voiced/internal/llm"
	"github.com/voiced-ai/voiced/internal/logging"
	"github.com/voiced-ai/voiced/internal/memory"
	"github.com/voiced-ai/voiced/internal/modelmgr"
	"github.com/voiced-ai/voiced/internal/pipeline"
	"github.com/voiced-ai/voiced/internal/stt"
	"github.com/voiced-ai/voiced/internal/telemetry"
	"github.com/voiced-ai/voiced/internal/tts"
	"github.com/voiced-ai/voiced/model"
)

// Adapters supplies the concrete backend.LLMAdapter/STTAdapter/TTSAdapter
// a Runtime wires into its engines. The Runtime itself only depends on
// the stable internal/backend interfaces (spec.md §6 "Backend adapter
// contract"), so callers pick the family per model: an internal/backend/
// httpsidecar client talking to a local inference process, an
// internal/backend/grpcplugin client talking to an out-of-process
// plugin, or a test fake.
type Adapters struct {
	LLM backend.LLMAdapter
	STT backend.STTAdapter
	TTS backend.TTSAdapter
}

// Runtime is the SDK's top-level handle. Initialize returns one; it
// owns the Model Manager, the three engines, the Voice Pipeline, and
// (if enabled) the telemetry store until Shutdown is called.
type Runtime struct {
	cfg       config.SDKConfig
	models    *modelmgr.Manager
	memory    *memory.Manager
	llm       *llm.Engine
	stt       *stt.Engine
	tts       *tts.Engine
	pipeline  *pipeline.Pipeline
	telemetry *telemetry.Store
}

// Initialize validates cfg, opens the Model Manager against
// cfg.ModelDirectory/RegistryURL, constructs one engine per family over
// adapters sharing a single memory.Manager (spec.md §4.6's shared
// capacity accounting), and opens the telemetry store when
// cfg.EnableTelemetry is set. It is the SDK's Lifecycle "initialize"
// operation.
func Initialize(cfg config.SDKConfig, adapters Adapters) (*Runtime, *errs.Error) {
	if err := config.Validate(cfg); err != nil {
		return nil, errs.New(errs.InvalidInputConfiguration, "SDKConfig failed validation", err.Error()).
			WithRecovery("correct the reported SDKConfig field and retry Initialize")
	}
	logging.Init(cfg.LogLevel, true)
	log := logging.For("voiced")

	mem := memory.NewManager(cfg.MemoryLimitBytes)

	models, merr := modelmgr.New(cfg.RegistryURL, cfg.ModelDirectory, int64(cfg.ThreadCount))
	if merr != nil {
		return nil, errs.New(errs.StorageWriteError, "could not open the local model directory", merr.Error()).
			WithRecovery("verify model_directory is writable and registry_url is reachable")
	}

	r := &Runtime{
		cfg:    cfg,
		models: models,
		memory: mem,
		llm:    llm.NewEngine(adapters.LLM, mem),
		stt:    stt.NewEngine(adapters.STT, mem),
		tts:    tts.NewEngine(adapters.TTS, mem),
	}
	r.pipeline = pipeline.New(r.stt, r.llm, r.tts)

	if cfg.EnableTelemetry {
		store, terr := telemetry.Open(cfg.TelemetryDSN)
		if terr != nil {
			return nil, errs.New(errs.StorageWriteError, "could not open the telemetry store", terr.Error()).
				WithRecovery("check telemetry_dsn and that the Postgres instance is reachable")
		}
		r.telemetry = store
	}

	log.Info().Int("thread_count", cfg.ThreadCount).Bool("telemetry", cfg.EnableTelemetry).Msg("runtime initialized")
	return r, nil
}

// Shutdown releases resources Initialize opened. The engines and Model
// Manager hold no handles beyond what UnloadModel/DeleteModel already
// manage, so Shutdown only needs to close the telemetry store.
func (r *Runtime) Shutdown() *errs.Error {
	if r.telemetry == nil {
		return nil
	}
	if err := r.telemetry.Close(); err != nil {
		return errs.New(errs.StorageWriteError, "failed to close the telemetry store cleanly", err.Error())
	}
	return nil
}

// ListAvailableModels implements the Models "listAvailable" operation:
// the full registry, optionally filtered by family and gated by device
// capability.
func (r *Runtime) ListAvailableModels(ctx context.Context, typeFilter model.Type, device model.DeviceCapabilities) ([]model.Info, *errs.Error) {
	return r.models.ListAvailable(ctx, typeFilter, device)
}

// ListDownloadedModels implements the Models "listDownloaded" operation.
func (r *Runtime) ListDownloadedModels() []model.Info {
	return r.models.ListDownloaded()
}

// GetModelInfo implements the Models "getModelInfo" operation.
func (r *Runtime) GetModelInfo(id string) (model.Info, bool) {
	return r.models.GetModelInfo(id)
}

// DownloadModel implements the Models "downloadModel" operation.
func (r *Runtime) DownloadModel(ctx context.Context, id string, onProgress func(float64)) *errs.Error {
	return r.models.DownloadModel(ctx, id, onProgress)
}

// DeleteModel implements the Models "deleteModel" operation.
func (r *Runtime) DeleteModel(id string) *errs.Error {
	return r.models.DeleteModel(id)
}

// LLM returns the LLM Engine, exposing loadModel/generate/tokenize and
// the rest of spec.md §6's LLM operation group.
func (r *Runtime) LLM() *llm.Engine { return r.llm }

// STT returns the STT Engine.
func (r *Runtime) STT() *stt.Engine { return r.stt }

// TTS returns the TTS Engine.
func (r *Runtime) TTS() *tts.Engine { return r.tts }

// Pipeline returns the Voice Pipeline, pre-wired over this Runtime's
// three engines via internal/pipeline.New.
func (r *Runtime) Pipeline() *pipeline.Pipeline { return r.pipeline }

// Telemetry returns the local telemetry store, or nil when
// cfg.EnableTelemetry was false at Initialize.
func (r *Runtime) Telemetry() *telemetry.Store { return r.telemetry }

// Memory returns the shared memory.Manager backing every loaded model's
// accounting, for callers that need to inspect capacity directly (e.g.
// the CLI's "models info" usage report).
func (r *Runtime) Memory() *memory.Manager { return r.memory }
