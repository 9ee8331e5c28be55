package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voiced-ai/voiced/internal/audio"
	"github.com/voiced-ai/voiced/internal/types"
)

func newTTSCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tts",
		Short: "Text-to-speech synthesis",
	}
	cmd.AddCommand(newTTSSynthesizeCmd())
	return cmd
}

func newTTSSynthesizeCmd() *cobra.Command {
	var modelPath, outPath, voiceID string
	var speed, pitch float64

	cmd := &cobra.Command{
		Use:   "synthesize <text>",
		Short: "Synthesize text to a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := initRuntime()
			if err != nil {
				return err
			}
			handle, lerr := rt.TTS().LoadModel(cmd.Context(), modelPath, 0)
			if lerr != nil {
				return lerr
			}
			defer rt.TTS().UnloadModel(handle)

			cfg := types.DefaultSynthesisConfig(voiceID)
			cfg.Speed = speed
			cfg.Pitch = pitch

			result, serr := rt.TTS().Synthesize(cmd.Context(), handle, args[0], cfg)
			if serr != nil {
				return serr
			}

			wavBytes, werr := audio.EncodeWAV(result.Samples, result.SampleRate)
			if werr != nil {
				return fmt.Errorf("encode WAV: %w", werr)
			}
			if err := os.WriteFile(outPath, wavBytes, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", outPath, err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&modelPath, "model-path", "", "Path to a downloaded TTS model file")
	cmd.MarkFlagRequired("model-path")
	cmd.Flags().StringVar(&outPath, "out", "out.wav", "Output WAV path")
	cmd.Flags().StringVar(&voiceID, "voice", "", "Voice ID")
	cmd.Flags().Float64Var(&speed, "speed", 1.0, "Speaking rate multiplier")
	cmd.Flags().Float64Var(&pitch, "pitch", 0.0, "Pitch adjustment in [-1.0, 1.0] (0 leaves pitch unchanged)")
	return cmd
}
