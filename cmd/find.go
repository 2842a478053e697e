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
	flagFindInput      string
	flagFindOutput     string
	flagFindOptions    string
	flagFindImageBase  string
	flagFindOutputBase string

	flagFindIoU           float64
	flagFindOccurrence    int
	flagFindConfMin       float64
	flagFindConfMax       float64
	flagFindMaxSize       float64
	flagFindWorkers       int
	flagFindSort          string
	flagFindExcludeCats   []string
	flagFindMaxPerDir     int
	flagFindLeafLevels    int
	flagFindNoFolder      bool
	flagFindRenderTiles   bool
	flagFindRenderOthers  bool
	flagFindMaxImageWidth int
)

var findCmd = &cobra.Command{
	Use:   "find",
	Short: "Find repeat detections and write a review folder",
	Long: `Find scans the detection results file for boxes that recur at nearly the
same position within a directory. Locations seen at least the occurrence
threshold number of times are flagged, their confidences are negated in
the output file, and one annotated sample image per location is rendered
into a timestamped filtering folder for manual review.

After review (delete the images that are real animals), run 'rde apply'
against the folder's detectionIndex.json to produce the final output.`,
	RunE: runFind,
}

func init() {
	findCmd.Flags().StringVarP(&flagFindInput, "input", "i", "", "Detection results JSON file (required)")
	findCmd.Flags().StringVarP(&flagFindOutput, "output", "o", "", "Where to write the suppressed results file")
	findCmd.Flags().StringVar(&flagFindOptions, "options", "", "YAML options file; flags override its values")
	findCmd.Flags().StringVar(&flagFindImageBase, "image-base", "", "Root directory the results file's image paths are relative to")
	findCmd.Flags().StringVar(&flagFindOutputBase, "output-base", "", "Directory to create the filtering folder in")

	findCmd.Flags().Float64Var(&flagFindIoU, "iou", 0.9, "IoU at or above which two boxes are the same location")
	findCmd.Flags().IntVar(&flagFindOccurrence, "occurrences", 20, "Instances required before a location is suspicious")
	findCmd.Flags().Float64Var(&flagFindConfMin, "confidence-min", 0.1, "Minimum detection confidence to consider")
	findCmd.Flags().Float64Var(&flagFindConfMax, "confidence-max", 1.0, "Maximum detection confidence to consider")
	findCmd.Flags().Float64Var(&flagFindMaxSize, "max-size", 0.2, "Maximum relative box area to consider suspicious")
	findCmd.Flags().IntVar(&flagFindWorkers, "workers", 10, "Worker count for matching and rendering")
	findCmd.Flags().StringVar(&flagFindSort, "sort", "xsort", "Review order: none, xsort, or clustersort")
	findCmd.Flags().StringSliceVar(&flagFindExcludeCats, "exclude-category", nil, "Category IDs never treated as suspicious (repeatable)")
	findCmd.Flags().IntVar(&flagFindMaxPerDir, "max-images-per-dir", 0, "Skip directories with more images than this (0 = unlimited)")
	findCmd.Flags().IntVar(&flagFindLeafLevels, "dir-levels-from-leaf", 0, "Group images N directory levels above their parent")
	findCmd.Flags().BoolVar(&flagFindNoFolder, "no-filtering-dir", false, "Suppress confidences only; skip the review folder")
	findCmd.Flags().BoolVar(&flagFindRenderTiles, "render-tiles", false, "Add a thumbnail grid of every instance to each sample image")
	findCmd.Flags().BoolVar(&flagFindRenderOthers, "render-other-detections", false, "Overlay the sample image's other detections in gray")
	findCmd.Flags().IntVar(&flagFindMaxImageWidth, "max-output-width", 0, "Downscale sample images to this width (0 = original size)")
	_ = findCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(findCmd)
}

// findOptions merges defaults, the optional YAML file, and explicitly set
// flags, in that order.
func findOptions(cmd *cobra.Command) (*config.Options, error) {
	opts := config.Default()
	if flagFindOptions != "" {
		loaded, err := config.Load(flagFindOptions)
		if err != nil {
			return nil, err
		}
		opts = loaded
	}

	set := map[string]func(){
		"image-base":              func() { opts.ImageBase = flagFindImageBase },
		"output-base":             func() { opts.OutputBase = flagFindOutputBase },
		"iou":                     func() { opts.IoUThreshold = flagFindIoU },
		"occurrences":             func() { opts.OccurrenceThreshold = flagFindOccurrence },
		"confidence-min":          func() { opts.ConfidenceMin = flagFindConfMin },
		"confidence-max":          func() { opts.ConfidenceMax = flagFindConfMax },
		"max-size":                func() { opts.MaxSuspiciousDetectionSize = flagFindMaxSize },
		"workers":                 func() { opts.Workers = flagFindWorkers },
		"sort":                    func() { opts.SortMode = config.SortMode(flagFindSort) },
		"exclude-category":        func() { opts.ExcludeCategories = flagFindExcludeCats },
		"max-images-per-dir":      func() { opts.MaxImagesPerDir = flagFindMaxPerDir },
		"dir-levels-from-leaf":    func() { opts.DirLevelsFromLeaf = flagFindLeafLevels },
		"no-filtering-dir":        func() { opts.WriteFilteringDir = !flagFindNoFolder },
		"render-tiles":            func() { opts.RenderDetectionTiles = flagFindRenderTiles },
		"render-other-detections": func() { opts.RenderOtherDetections = flagFindRenderOthers },
		"max-output-width":        func() { opts.MaxOutputImageWidth = flagFindMaxImageWidth },
	}
	for name, apply := range set {
		if cmd.Flags().Changed(name) {
			apply()
		}
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func runFind(cmd *cobra.Command, _ []string) error {
	opts, err := findOptions(cmd)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	printSection("Find")
	printInfo("", fmt.Sprintf("scanning %s", flagFindInput))

	progress := func(phase string, done, total int) {
		fmt.Printf("\r  ~  %s %d/%d", phase, done, total)
		if done == total {
			fmt.Println()
		}
	}

	res, err := repeat.Run(ctx, flagFindInput, flagFindOutput, opts, newLogger(), progress)
	if err != nil {
		printErr("", err.Error())
		return err
	}

	p := message.NewPrinter(language.English)
	printOK("", p.Sprintf("%d suspicious locations covering %d detections in %d directories",
		res.NSuspicious, res.NSuspiciousInstances, len(res.Dirs)))
	printOK("", p.Sprintf("%d detection confidences negated, %d image max confidences changed",
		res.Stats.BoxChanges, res.Stats.MaxConfChanges))
	if flagFindOutput != "" {
		printOK("", fmt.Sprintf("suppressed results written to %s", flagFindOutput))
	} else {
		printWarn("", "no --output given; the suppressed results were not written")
	}

	if res.FilteringDir != "" {
		printSection("Review")
		printInfo("", fmt.Sprintf("sample images: %s", res.FilteringDir))
		printInfo("", "delete the images that show real animals, then run:")
		printInfo("", fmt.Sprintf("  rde apply --index %s --input %s --output <final.json>",
			res.IndexPath, flagFindInput))
	}
	return nil
}
