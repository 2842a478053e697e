package cmd

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/trailtools/rde/internal/config"
	"github.com/trailtools/rde/internal/repeat"
)

var (
	flagApplyIndex    string
	flagApplyAccepted string
	flagApplyInput    string
	flagApplyOutput   string
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply reviewer decisions from a filtering folder",
	Long: `Apply loads a detectionIndex.json written by 'rde find', drops every
suspicious location whose sample image the reviewer deleted (or, with
--accepted-list, every location not named in the list), and suppresses
the surviving locations in the original detection results file.

The options stored in the index are reused, so suppression matches the
find pass exactly.`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringVar(&flagApplyIndex, "index", "", "detectionIndex.json from the reviewed filtering folder (required)")
	applyCmd.Flags().StringVar(&flagApplyAccepted, "accepted-list", "", "Flat file of surviving sample-image filenames; overrides the on-disk check")
	applyCmd.Flags().StringVarP(&flagApplyInput, "input", "i", "", "Original detection results JSON file (required)")
	applyCmd.Flags().StringVarP(&flagApplyOutput, "output", "o", "", "Where to write the final suppressed results file")
	_ = applyCmd.MarkFlagRequired("index")
	_ = applyCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(applyCmd)
}

func runApply(cmd *cobra.Command, _ []string) error {
	opts := config.Default()
	opts.IndexPath = flagApplyIndex
	opts.AcceptedListPath = flagApplyAccepted

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	printSection("Apply")
	printInfo("", fmt.Sprintf("review index: %s", flagApplyIndex))

	res, err := repeat.Run(ctx, flagApplyInput, flagApplyOutput, opts, newLogger(), nil)
	if err != nil {
		printErr("", err.Error())
		return err
	}

	p := message.NewPrinter(language.English)
	printOK("", p.Sprintf("%d locations confirmed as repeat detections, %d released by review",
		res.NSuspicious, res.RemovedByReview))
	printOK("", p.Sprintf("%d detection confidences negated, %d image max confidences changed",
		res.Stats.BoxChanges, res.Stats.MaxConfChanges))
	if flagApplyOutput != "" {
		printOK("", fmt.Sprintf("final results written to %s", flagApplyOutput))
	} else {
		printWarn("", "no --output given; the suppressed results were not written")
	}
	return nil
}
