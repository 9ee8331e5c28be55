package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/voiced-ai/voiced/internal/backend/onnxvad"
	"github.com/voiced-ai/voiced/internal/logging"
	"github.com/voiced-ai/voiced/internal/stt"
	"github.com/voiced-ai/voiced/internal/ws"
)

func newServeCmd() *cobra.Command {
	var addr string
	var onnxSharedLib, onnxModelPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the WebSocket duplex server wrapping the Voice Pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.For("serve")
			rt, err := initRuntime()
			if err != nil {
				return err
			}
			defer rt.Shutdown()

			var detector stt.VADDetector
			if onnxSharedLib != "" && onnxModelPath != "" {
				adapter, oerr := onnxvad.Open(onnxSharedLib, onnxModelPath)
				if oerr != nil {
					return oerr
				}
				defer adapter.Close()
				detector = adapter
				log.Info().Msg("ONNX/Silero VAD adapter enabled")
			}

			handler := ws.NewHandler(ws.HandlerConfig{
				STTEngine:   rt.STT(),
				LLMEngine:   rt.LLM(),
				TTSEngine:   rt.TTS(),
				VADDetector: detector,
				Telemetry:   rt.Telemetry(),
			})

			mux := http.NewServeMux()
			mux.Handle("/v1/voice", handler)

			srv := &http.Server{Addr: addr, Handler: mux}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()

			log.Info().Str("addr", addr).Msg("voiced serve starting")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			log.Info().Msg("voiced serve stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8090", "Listen address")
	cmd.Flags().StringVar(&onnxSharedLib, "onnx-shared-lib", "", "Path to the ONNX Runtime shared library (enables the Silero VAD adapter)")
	cmd.Flags().StringVar(&onnxModelPath, "onnx-vad-model", "", "Path to the Silero VAD ONNX model (enables the Silero VAD adapter)")
	return cmd
}
