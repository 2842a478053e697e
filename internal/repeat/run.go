package repeat

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/trailtools/rde/internal/config"
	"github.com/trailtools/rde/internal/match"
	"github.com/trailtools/rde/internal/render"
	"github.com/trailtools/rde/internal/results"
)

// Progress receives completion ticks from long phases ("matching",
// "rendering"). May be nil.
type Progress func(phase string, done, total int)

// Results is the outcome of a full run in either mode.
type Results struct {
	Table      *results.Table
	Dirs       []string
	Suspicious [][]*match.DetectionLocation
	Stats      *SuppressionStats

	// NSuspicious / NSuspiciousInstances count what the compute pass
	// flagged; RemovedByReview counts what reconciliation dropped.
	NSuspicious          int
	NSuspiciousInstances int
	RemovedByReview      int

	// FilteringDir and IndexPath are set when a review folder was written.
	FilteringDir string
	IndexPath    string
}

// Run executes repeat-detection elimination end to end. With
// opts.IndexPath empty it computes suspicious locations from scratch and
// (optionally) writes a review folder; with opts.IndexPath set it loads
// that index, reconciles it against reviewer feedback, and re-applies
// suppression. In both modes the updated table is written to outputPath
// when non-empty.
func Run(ctx context.Context, inputPath, outputPath string, opts *config.Options,
	log *slog.Logger, progress Progress) (*Results, error) {

	if opts == nil {
		opts = config.Default()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if progress == nil {
		progress = func(string, int, int) {}
	}

	if opts.IndexPath != "" {
		return runReconcile(ctx, inputPath, outputPath, opts, log)
	}
	return runCompute(ctx, inputPath, outputPath, opts, log, progress)
}

func runCompute(ctx context.Context, inputPath, outputPath string, opts *config.Options,
	log *slog.Logger, progress Progress) (*Results, error) {

	// Fail on an unusable output folder before spending minutes matching.
	if opts.WriteFilteringDir {
		if opts.OutputBase == "" {
			return nil, fmt.Errorf("output base is required when writing a filtering folder")
		}
		if err := os.MkdirAll(opts.OutputBase, 0o755); err != nil {
			return nil, fmt.Errorf("cannot create output base %s: %w", opts.OutputBase, err)
		}
	}

	table, err := results.Load(inputPath, opts.FilenameReplacements)
	if err != nil {
		return nil, err
	}
	if len(table.Images) == 0 {
		return nil, fmt.Errorf("detection table %s has no images", inputPath)
	}

	// A cursory existence check on the first image heads off most mount
	// point mistakes before the expensive phases.
	if opts.WriteFilteringDir && opts.ImageBase != "" {
		first := filepath.Join(opts.ImageBase, filepath.FromSlash(table.Images[0].File))
		if _, err := os.Stat(first); err != nil {
			return nil, fmt.Errorf("cannot find first image %s; is image_base correct? %w", first, err)
		}
	}

	part, err := PartitionByDirectory(table, opts, log)
	if err != nil {
		return nil, err
	}

	res := &Results{Table: table, Dirs: part.Dirs}

	// Matching: directory-parallel, no shared mutable state; results land
	// in index-aligned slots so the aggregate is identical for any worker
	// count or ordering.
	log.Info("finding similar detections", "directories", len(part.Dirs))
	candidates := make([][]*match.DetectionLocation, len(part.Dirs))
	pool := newPool(opts.ParallelizeComparisons, opts.Workers)
	var done atomic.Int64
	err = pool.Run(ctx, len(part.Dirs), func(ctx context.Context, i int) error {
		dir := part.Dirs[i]
		locs, err := match.FindMatches(dir, part.RowsByDir[dir], opts, log)
		if err != nil {
			return fmt.Errorf("directory %s: %w", dir, err)
		}
		candidates[i] = locs
		progress("matching", int(done.Add(1)), len(part.Dirs))
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Selection and review ordering are cheap; run them serially.
	res.Suspicious = make([][]*match.DetectionLocation, len(part.Dirs))
	for i, dir := range part.Dirs {
		kept, nInstances := SelectSuspicious(candidates[i], opts.OccurrenceThreshold)
		ordered, err := match.OrderForReview(kept, opts)
		if err != nil {
			return nil, err
		}
		res.Suspicious[i] = ordered
		res.NSuspicious += len(ordered)
		res.NSuspiciousInstances += nInstances
		log.Debug("searched directory for repeat detections",
			"dir", dir, "suspicious", len(ordered))
	}
	log.Info("finished searching for repeat detections",
		"locations", res.NSuspicious, "instances", res.NSuspiciousInstances)

	res.Stats, err = Suppress(table, res.Suspicious, part.FilenameToRow, opts, log)
	if err != nil {
		return nil, err
	}

	if outputPath != "" {
		if err := table.Write(outputPath); err != nil {
			return nil, err
		}
	}

	if opts.WriteFilteringDir {
		if err := writeFilteringFolder(ctx, res, part, opts, log, progress); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func writeFilteringFolder(ctx context.Context, res *Results, part *Partition,
	opts *config.Options, log *slog.Logger, progress Progress) error {

	dir, err := NewFilteringDir(opts.OutputBase, time.Now())
	if err != nil {
		return err
	}
	log.Info("creating filtering folder", "dir", dir)

	if err := PrepareReviewArtifacts(res.Suspicious, res.Table, part.FilenameToRow); err != nil {
		return err
	}

	var flat []*match.DetectionLocation
	for _, dirLocations := range res.Suspicious {
		flat = append(flat, dirLocations...)
	}

	renderer := render.New(opts, log)
	pool := newPool(opts.ParallelizeRendering, opts.Workers)
	var done atomic.Int64
	err = pool.Run(ctx, len(flat), func(_ context.Context, i int) error {
		if err := renderer.SampleImage(flat[i], dir); err != nil {
			return err
		}
		progress("rendering", int(done.Add(1)), len(flat))
		return nil
	})
	if err != nil {
		return err
	}

	ClearSampleDetections(res.Suspicious)

	dirIndexToName := make(map[int]string, len(res.Dirs))
	for i, name := range res.Dirs {
		dirIndexToName[i] = name
	}
	res.FilteringDir = dir
	res.IndexPath, err = WriteReviewIndex(dir, &ReviewIndex{
		SuspiciousDetections: res.Suspicious,
		DirIndexToName:       dirIndexToName,
		Options:              opts,
	})
	return err
}

func runReconcile(ctx context.Context, inputPath, outputPath string, opts *config.Options,
	log *slog.Logger) (*Results, error) {

	log.Info("bypassing detection-finding, loading review index", "index", opts.IndexPath)
	idx, err := LoadReviewIndex(opts.IndexPath)
	if err != nil {
		return nil, err
	}
	filteringBase := filepath.Dir(opts.IndexPath)

	// Adopt the stored configuration so suppression reproduces the
	// compute pass exactly, overriding only the fields that control this
	// mode itself: the rerun must not re-find detections or regenerate
	// artifacts.
	stored := idx.Options
	stored.IndexPath = opts.IndexPath
	stored.AcceptedListPath = opts.AcceptedListPath
	stored.WriteFilteringDir = false
	opts = stored
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("stored options invalid: %w", err)
	}

	table, err := results.Load(inputPath, opts.FilenameReplacements)
	if err != nil {
		return nil, err
	}
	filenameToRow := make(map[string]int, len(table.Images))
	for i, row := range table.Images {
		if _, dup := filenameToRow[row.File]; dup {
			return nil, fmt.Errorf("duplicate filename in detection table: %s", row.File)
		}
		filenameToRow[row.File] = i
	}

	var accepted []string
	if opts.AcceptedListPath != "" {
		if accepted, err = ReadAcceptedList(opts.AcceptedListPath); err != nil {
			return nil, err
		}
	}

	res := &Results{Table: table}
	res.Dirs = make([]string, len(idx.SuspiciousDetections))
	for i := range res.Dirs {
		res.Dirs[i] = idx.DirIndexToName[i]
	}

	loaded := 0
	for _, locs := range idx.SuspiciousDetections {
		loaded += len(locs)
	}
	res.RemovedByReview = Reconcile(idx.SuspiciousDetections, filteringBase, accepted, log)
	log.Info("removed detections via manual review",
		"removed", res.RemovedByReview, "loaded", loaded)

	res.Suspicious = idx.SuspiciousDetections
	for _, locs := range res.Suspicious {
		res.NSuspicious += len(locs)
		for _, l := range locs {
			res.NSuspiciousInstances += l.Count()
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res.Stats, err = Suppress(table, res.Suspicious, filenameToRow, opts, log)
	if err != nil {
		return nil, err
	}

	if outputPath != "" {
		if err := table.Write(outputPath); err != nil {
			return nil, err
		}
	}
	return res, nil
}
