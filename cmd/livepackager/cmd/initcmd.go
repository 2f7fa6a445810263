package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/livepackager/internal/packager"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Emit a fresh initialization segment in the configured output format",
	RunE:  runInit,
}

func init() {
	registerSegmentFlags(initCmd)
	initCmd.Flags().String("init", "", "path to the source initialization segment")
	initCmd.Flags().String("out", "", "output path (default: stdout)")
	_ = initCmd.MarkFlagRequired("init")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	initPath, _ := cmd.Flags().GetString("init")
	outPath, _ := cmd.Flags().GetString("out")

	initBytes, err := os.ReadFile(initPath)
	if err != nil {
		return fmt.Errorf("reading init segment: %w", err)
	}

	p, status := packager.New(cfg, nil)
	if !status.Ok() {
		return status
	}

	var out interface{ Bytes() []byte }
	if cfg.Format.String() == "vtt_mp4" || cfg.Format.String() == "ttml_mp4" {
		buf, status := p.PackageTimedTextInit(initBytes)
		if !status.Ok() {
			return status
		}
		out = buf
	} else {
		buf, status := p.PackageInit(initBytes)
		if !status.Ok() {
			return status
		}
		out = buf
	}

	return writeOutput(outPath, out.Bytes())
}

func writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
