package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var flagVerbose bool

var rootCmd = &cobra.Command{
	Use:          "rde",
	Short:        "Repeat detection elimination for camera-trap detector output",
	SilenceUsage: true, // don't print usage on operational errors
	Long: `rde finds bounding boxes that recur at the same position across many
images in a directory (branches, rocks, fence posts a detector keeps
firing on), renders them for human review, and suppresses the confirmed
false positives in the detection results file.`,
}

// Execute is called by main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")
}

// newLogger builds the run logger; debug level when --verbose is set.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if flagVerbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
