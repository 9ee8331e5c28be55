// Command voiced is the CLI front end for the SDK at the module root:
// it loads an SDKConfig, wires backend adapters per family (a local
// HTTP sidecar or an out-of-process gRPC plugin), and exposes the
// models/llm/stt/tts/serve/telemetry subcommand tree (spec.md §6
// "External Interfaces"). Grounded on CWBudde-go-pocket-tts's
// cmd/pockettts (root.go's PersistentPreRunE config load + sub-command
// registration pattern), generalized from that repo's single fixed TTS
// backend to this runtime's three independently backend-selectable
// model families.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/voiced-ai/voiced"
	"github.com/voiced-ai/voiced/errs"
	"github.com/voiced-ai/voiced/internal/backend/grpcplugin"
	"github.com/voiced-ai/voiced/internal/backend/httpsidecar"
	"github.com/voiced-ai/voiced/internal/config"
	"github.com/voiced-ai/voiced/internal/llm"
	"github.com/voiced-ai/voiced/internal/logging"
)

var (
	cfgFile  string
	sdkCfg   config.SDKConfig
	backendF backendFlags
)

// backendFlags selects, per family, which backend.Adapter implementation
// to construct: a local HTTP sidecar (spec.md's "local inference
// process") or a dialed gRPC plugin.
type backendFlags struct {
	llmKind, sttKind, ttsKind string

	llmHTTPURL, sttHTTPURL, ttsHTTPURL string
	llmTokenizerPath                   string
	llmContextCap, sttContextCap       int
	ttsContextCap                      int
	ttsVoices                          []string

	grpcTarget string
}

func newRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "voiced",
		Short: "On-device voice runtime: model management, inference, and the conversational pipeline",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{Cmd: cmd, ConfigFile: cfgFile, Defaults: defaults})
			if err != nil {
				return err
			}
			sdkCfg = loaded
			logging.Init(sdkCfg.LogLevel, true)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)
	registerBackendFlags(cmd.PersistentFlags())

	cmd.AddCommand(newModelsCmd())
	cmd.AddCommand(newLLMCmd())
	cmd.AddCommand(newSTTCmd())
	cmd.AddCommand(newTTSCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newTelemetryCmd())

	return cmd
}

func registerBackendFlags(fs *pflag.FlagSet) {
	fs.StringVar(&backendF.llmKind, "llm-backend", "http", "LLM backend family: http|grpc")
	fs.StringVar(&backendF.sttKind, "stt-backend", "http", "STT backend family: http|grpc")
	fs.StringVar(&backendF.ttsKind, "tts-backend", "http", "TTS backend family: http|grpc")

	fs.StringVar(&backendF.llmHTTPURL, "llm-http-url", "http://localhost:11434", "Base URL of the LLM HTTP sidecar")
	fs.StringVar(&backendF.sttHTTPURL, "stt-http-url", "http://localhost:8081", "Base URL of the STT HTTP sidecar")
	fs.StringVar(&backendF.ttsHTTPURL, "tts-http-url", "http://localhost:8082", "Base URL of the TTS HTTP sidecar")
	fs.StringVar(&backendF.llmTokenizerPath, "llm-tokenizer-path", "", "SentencePiece model path for the LLM tokenizer")
	fs.IntVar(&backendF.llmContextCap, "llm-context-capacity", 4096, "LLM adapter-reported context window size")
	fs.IntVar(&backendF.sttContextCap, "stt-context-capacity", 0, "STT adapter-reported context window size")
	fs.IntVar(&backendF.ttsContextCap, "tts-context-capacity", 0, "TTS adapter-reported context window size")
	fs.StringArrayVar(&backendF.ttsVoices, "tts-voice", nil, "Voice ID the TTS HTTP sidecar serves (repeatable)")

	fs.StringVar(&backendF.grpcTarget, "grpc-target", "localhost:50051", "Dial target shared by any family set to grpc backend")
}

func buildAdapters() (voiced.Adapters, error) {
	var a voiced.Adapters
	var client *grpcClient

	needGRPC := backendF.llmKind == "grpc" || backendF.sttKind == "grpc" || backendF.ttsKind == "grpc"
	if needGRPC {
		c, err := dialPlugin(backendF.grpcTarget)
		if err != nil {
			return a, fmt.Errorf("dial gRPC plugin at %s: %w", backendF.grpcTarget, err)
		}
		client = c
	}

	switch backendF.llmKind {
	case "http":
		var tok *llm.Tokenizer
		if backendF.llmTokenizerPath != "" {
			t, err := llm.NewTokenizer(backendF.llmTokenizerPath)
			if err != nil {
				return a, fmt.Errorf("load LLM tokenizer: %w", err)
			}
			tok = t
		}
		a.LLM = httpsidecar.NewLLM(httpsidecar.LLMConfig{
			BaseURL:         backendF.llmHTTPURL,
			ContextCapacity: backendF.llmContextCap,
			TokenizerPath:   backendF.llmTokenizerPath,
		}, tok)
	case "grpc":
		a.LLM = grpcplugin.NewLLM(client.raw)
	default:
		return a, fmt.Errorf("unrecognized --llm-backend %q", backendF.llmKind)
	}

	switch backendF.sttKind {
	case "http":
		a.STT = httpsidecar.NewSTT(httpsidecar.STTConfig{BaseURL: backendF.sttHTTPURL, ContextCapacity: backendF.sttContextCap})
	case "grpc":
		a.STT = grpcplugin.NewSTT(client.raw)
	default:
		return a, fmt.Errorf("unrecognized --stt-backend %q", backendF.sttKind)
	}

	switch backendF.ttsKind {
	case "http":
		a.TTS = httpsidecar.NewTTS(httpsidecar.TTSConfig{BaseURL: backendF.ttsHTTPURL, Voices: backendF.ttsVoices, ContextCapacity: backendF.ttsContextCap})
	case "grpc":
		a.TTS = grpcplugin.NewTTS(client.raw)
	default:
		return a, fmt.Errorf("unrecognized --tts-backend %q", backendF.ttsKind)
	}

	return a, nil
}

type grpcClient struct{ raw *grpcplugin.Client }

func dialPlugin(target string) (*grpcClient, error) {
	c, err := grpcplugin.Dial(target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return &grpcClient{raw: c}, nil
}

func initRuntime() (*voiced.Runtime, error) {
	adapters, err := buildAdapters()
	if err != nil {
		return nil, err
	}
	rt, verr := voiced.Initialize(sdkCfg, adapters)
	if verr != nil {
		return nil, verr
	}
	return rt, nil
}

// exitCode maps a categorized SDK error to the process exit code spec.md
// §6 names: 0 success, 1 generic, or the category's taxonomy ordinal + 1.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if ve, ok := err.(*errs.Error); ok {
		if ord, known := categoryOrdinal[ve.Category]; known {
			return ord + 1
		}
	}
	return 1
}

var categoryOrdinal = map[errs.Category]int{
	errs.CategoryModelNotFound:     1,
	errs.CategoryModelLoadError:    2,
	errs.CategoryInferenceError:    3,
	errs.CategoryNetworkError:      4,
	errs.CategoryStorageError:      5,
	errs.CategoryInvalidInput:      6,
	errs.CategoryResourceExhausted: 7,
	errs.CategoryCancelled:         8,
}

func main() {
	cmd := newRootCmd()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(unwrapErr(err)))
	}
}

// unwrapErr recovers the *errs.Error a cobra RunE wrapped, if any, so
// exitCode can read its Category.
func unwrapErr(err error) error {
	type causer interface{ Unwrap() error }
	for err != nil {
		if ve, ok := err.(*errs.Error); ok {
			return ve
		}
		c, ok := err.(causer)
		if !ok {
			return err
		}
		err = c.Unwrap()
	}
	return err
}
