package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/voiced-ai/voiced/internal/types"
)

func newLLMCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "llm",
		Short: "LLM inference: one-shot generation and interactive chat",
	}
	cmd.AddCommand(newLLMGenerateCmd())
	cmd.AddCommand(newLLMChatCmd())
	return cmd
}

func generationFlags(cmd *cobra.Command, cfg *types.GenerationConfig) {
	cmd.Flags().IntVar(&cfg.MaxTokens, "max-tokens", cfg.MaxTokens, "Maximum tokens to generate")
	cmd.Flags().Float64Var(&cfg.Temperature, "temperature", cfg.Temperature, "Sampling temperature")
	cmd.Flags().Float64Var(&cfg.TopP, "top-p", cfg.TopP, "Nucleus sampling cutoff")
	cmd.Flags().IntVar(&cfg.TopK, "top-k", cfg.TopK, "Top-k sampling cutoff")
}

func newLLMGenerateCmd() *cobra.Command {
	var modelPath string
	cfg := types.DefaultGenerationConfig()

	cmd := &cobra.Command{
		Use:   "generate <prompt>",
		Short: "Generate one completion for a prompt and exit",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := initRuntime()
			if err != nil {
				return err
			}
			handle, lerr := rt.LLM().LoadModel(cmd.Context(), modelPath, 0)
			if lerr != nil {
				return lerr
			}
			defer rt.LLM().UnloadModel(handle)

			text, gerr := rt.LLM().Generate(cmd.Context(), handle, args[0], cfg)
			if gerr != nil {
				return gerr
			}
			fmt.Println(text)
			return nil
		},
	}
	cmd.Flags().StringVar(&modelPath, "model-path", "", "Path to a downloaded LLM model file")
	cmd.MarkFlagRequired("model-path")
	generationFlags(cmd, &cfg)
	return cmd
}

func newLLMChatCmd() *cobra.Command {
	var modelPath string
	cfg := types.DefaultGenerationConfig()

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive streaming chat over stdin/stdout",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := initRuntime()
			if err != nil {
				return err
			}
			handle, lerr := rt.LLM().LoadModel(cmd.Context(), modelPath, 0)
			if lerr != nil {
				return lerr
			}
			defer rt.LLM().UnloadModel(handle)

			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				gerr := rt.LLM().GenerateStreaming(cmd.Context(), handle, line, cfg, func(tok string) {
					fmt.Print(tok)
				})
				fmt.Println()
				if gerr != nil {
					return gerr
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&modelPath, "model-path", "", "Path to a downloaded LLM model file")
	cmd.MarkFlagRequired("model-path")
	generationFlags(cmd, &cfg)
	return cmd
}
