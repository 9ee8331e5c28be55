package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/voiced-ai/voiced/model"
)

func newModelsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List, download, delete, and inspect models",
	}
	cmd.AddCommand(newModelsListCmd())
	cmd.AddCommand(newModelsDownloadCmd())
	cmd.AddCommand(newModelsDeleteCmd())
	cmd.AddCommand(newModelsInfoCmd())
	return cmd
}

func newModelsListCmd() *cobra.Command {
	var typeFlag string
	var downloaded bool
	var ramBytes, storageBytes int64

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available or downloaded models",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := initRuntime()
			if err != nil {
				return err
			}
			if downloaded {
				for _, m := range rt.ListDownloadedModels() {
					printModel(m)
				}
				return nil
			}
			device := model.DeviceCapabilities{RAMBytes: ramBytes, StorageBytes: storageBytes, Platform: runtime.GOOS}
			models, merr := rt.ListAvailableModels(cmd.Context(), model.Type(typeFlag), device)
			if merr != nil {
				return merr
			}
			for _, m := range models {
				printModel(m)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&typeFlag, "type", string(model.TypeAll), "Filter by model family: LLM|STT|TTS|All")
	cmd.Flags().BoolVar(&downloaded, "downloaded", false, "List only locally installed models")
	cmd.Flags().Int64Var(&ramBytes, "device-ram-bytes", 1<<40, "Device RAM reported for capability filtering")
	cmd.Flags().Int64Var(&storageBytes, "device-storage-bytes", 1<<40, "Device free storage reported for capability filtering")
	return cmd
}

func newModelsDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download <model-id>",
		Short: "Download a model by ID, verifying its checksum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := initRuntime()
			if err != nil {
				return err
			}
			onProgress := func(frac float64) { fmt.Printf("\r%s: %.1f%%", args[0], frac*100) }
			if derr := rt.DownloadModel(cmd.Context(), args[0], onProgress); derr != nil {
				fmt.Println()
				return derr
			}
			fmt.Println()
			return nil
		},
	}
	return cmd
}

func newModelsDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <model-id>",
		Short: "Delete a locally installed model",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			rt, err := initRuntime()
			if err != nil {
				return err
			}
			return rt.DeleteModel(args[0])
		},
	}
	return cmd
}

func newModelsInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <model-id>",
		Short: "Show metadata for a single model",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			rt, err := initRuntime()
			if err != nil {
				return err
			}
			info, ok := rt.GetModelInfo(args[0])
			if !ok {
				return fmt.Errorf("model %q not found", args[0])
			}
			printModel(info)
			return nil
		},
	}
	return cmd
}

func printModel(m model.Info) {
	fmt.Printf("%-30s %-5s %-10s %10d bytes\n", m.ID, m.Type, m.Version, m.SizeBytes)
}
