package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/livepackager/internal/version"
)

var versionJSON bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print the version, commit, and build date of livepackager.",
	Run: func(cmd *cobra.Command, args []string) {
		if versionJSON {
			output, _ := json.MarshalIndent(version.GetInfo(), "", "  ")
			fmt.Println(string(output))
			return
		}
		fmt.Println(version.String())
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "output version information as JSON")
	rootCmd.AddCommand(versionCmd)
}
