package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/livepackager/internal/packager"
)

var packageCmd = &cobra.Command{
	Use:   "package",
	Short: "Package a media segment in the configured output format",
	RunE:  runPackage,
}

func init() {
	registerSegmentFlags(packageCmd)
	packageCmd.Flags().String("init", "", "path to the source initialization segment")
	packageCmd.Flags().String("media", "", "path to the source media segment")
	packageCmd.Flags().String("out", "", "output path (default: stdout)")
	_ = packageCmd.MarkFlagRequired("media")
	rootCmd.AddCommand(packageCmd)
}

func runPackage(cmd *cobra.Command, _ []string) error {
	cfg, err := buildConfig(cmd)
	if err != nil {
		return err
	}

	initPath, _ := cmd.Flags().GetString("init")
	mediaPath, _ := cmd.Flags().GetString("media")
	outPath, _ := cmd.Flags().GetString("out")

	mediaBytes, err := os.ReadFile(mediaPath)
	if err != nil {
		return fmt.Errorf("reading media segment: %w", err)
	}

	var initBytes []byte
	if initPath != "" {
		initBytes, err = os.ReadFile(initPath)
		if err != nil {
			return fmt.Errorf("reading init segment: %w", err)
		}
	}

	p, status := packager.New(cfg, nil)
	if !status.Ok() {
		return status
	}

	formatStr := cfg.Format.String()
	var out interface{ Bytes() []byte }
	if formatStr == "vtt_mp4" || formatStr == "ttml_mp4" || formatStr == "ttml" {
		buf, status := p.PackageTimedText(initBytes, mediaBytes)
		if !status.Ok() {
			return status
		}
		out = buf
	} else {
		buf, status := p.Package(initBytes, mediaBytes)
		if !status.Ok() {
			return status
		}
		out = buf
	}

	return writeOutput(outPath, out.Bytes())
}
