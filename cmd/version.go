package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/verify"
)

// Build metadata variables, set by -ldflags at compile time.
var (
	Version   = "dev"
	CommitSHA = "unknown"
	BuildDate = "unknown"
)

type versionInfo struct {
	Version         string  `json:"version"`
	Commit          string  `json:"commit"`
	Built           string  `json:"built"`
	Go              string  `json:"go"`
	DistanceCutoff  float64 `json:"distance_cutoff"`
	VerifyThreshold float64 `json:"verify_threshold"`
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		t := verify.DefaultThresholds()
		info := versionInfo{
			Version:         Version,
			Commit:          CommitSHA,
			Built:           BuildDate,
			Go:              runtime.Version(),
			DistanceCutoff:  t.DistanceCutoff,
			VerifyThreshold: t.VerifyThreshold,
		}
		if mustGetBool(cmd, "json") {
			return outputJSON(info)
		}
		fmt.Printf("face-attendance %s\n", info.Version)
		fmt.Printf("  Commit: %s\n", info.Commit)
		fmt.Printf("  Built:  %s\n", info.Built)
		fmt.Printf("  Go:     %s\n", info.Go)
		fmt.Printf("  Scoring defaults: cutoff %.2f, threshold %.2f\n", info.DistanceCutoff, info.VerifyThreshold)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().Bool("json", false, "Output as JSON")
}
