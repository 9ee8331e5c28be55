package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voiced-ai/voiced/internal/audio"
	"github.com/voiced-ai/voiced/internal/stt"
	"github.com/voiced-ai/voiced/internal/types"
)

func newSTTCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stt",
		Short: "Speech-to-text: transcription and standalone voice-activity detection",
	}
	cmd.AddCommand(newSTTTranscribeCmd())
	cmd.AddCommand(newSTTVADCmd())
	return cmd
}

func newSTTTranscribeCmd() *cobra.Command {
	var modelPath, wavPath, lang string
	var wordTimestamps bool

	cmd := &cobra.Command{
		Use:   "transcribe <wav-file>",
		Short: "Transcribe a WAV file to text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			wavPath = args[0]
			rt, err := initRuntime()
			if err != nil {
				return err
			}
			handle, lerr := rt.STT().LoadModel(cmd.Context(), modelPath, 0)
			if lerr != nil {
				return lerr
			}
			defer rt.STT().UnloadModel(handle)

			data, rerr := os.ReadFile(wavPath)
			if rerr != nil {
				return fmt.Errorf("read %s: %w", wavPath, rerr)
			}
			samples, sampleRate, derr := audio.DecodeWAV(data)
			if derr != nil {
				return fmt.Errorf("decode %s: %w", wavPath, derr)
			}

			result, terr := rt.STT().Transcribe(cmd.Context(), handle, types.AudioData{Samples: samples, SampleRate: sampleRate}, types.TranscriptionConfig{Language: lang, WordTimestamps: wordTimestamps})
			if terr != nil {
				return terr
			}
			fmt.Println(result.Text)
			return nil
		},
	}
	cmd.Flags().StringVar(&modelPath, "model-path", "", "Path to a downloaded STT model file")
	cmd.MarkFlagRequired("model-path")
	cmd.Flags().StringVar(&lang, "language", "", "Source language hint (empty autodetects)")
	cmd.Flags().BoolVar(&wordTimestamps, "word-timestamps", false, "Request per-word timestamps")
	return cmd
}

func newSTTVADCmd() *cobra.Command {
	var wavPath string
	var threshold float64

	cmd := &cobra.Command{
		Use:   "vad <wav-file>",
		Short: "Print detected speech segments in a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			wavPath = args[0]
			data, rerr := os.ReadFile(wavPath)
			if rerr != nil {
				return fmt.Errorf("read %s: %w", wavPath, rerr)
			}
			samples, sampleRate, derr := audio.DecodeWAV(data)
			if derr != nil {
				return fmt.Errorf("decode %s: %w", wavPath, derr)
			}

			segments, verr := stt.DetectVoiceActivity(types.AudioData{Samples: samples, SampleRate: sampleRate}, threshold)
			if verr != nil {
				return verr
			}
			for _, s := range segments {
				fmt.Printf("%.3f - %.3f\n", s.StartS, s.EndS)
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&threshold, "threshold", 0.5, "VAD sensitivity in [0, 1]")
	return cmd
}
