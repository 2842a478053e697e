// Package render produces review artifacts: one sample image per
// suspicious location with its bounding box highlighted, optionally with
// other detections overlaid and a thumbnail grid of every instance.
package render

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/anthonynsimon/bild/blur"
	"github.com/disintegration/imaging"

	"github.com/trailtools/rde/internal/config"
	"github.com/trailtools/rde/internal/match"
	"github.com/trailtools/rde/internal/results"
)

// Renderer renders sample images for suspicious locations. Safe for
// concurrent use; the only shared state is the warn-once bookkeeping for
// missing images.
type Renderer struct {
	opts *config.Options
	log  *slog.Logger

	mu            sync.Mutex
	warnedMissing bool
}

// New returns a Renderer for the given options.
func New(opts *config.Options, log *slog.Logger) *Renderer {
	return &Renderer{opts: opts, log: log}
}

// SampleImage renders the review artifact for one location into
// filteringDir under the location's assigned artifact filename.
//
// The source image is the location's highest-confidence instance, so
// instances must already be sorted descending by confidence. Rendering
// faults are warnings unless fail-on-render-error is set; a missing
// source image follows the configured missing-image policy. Neither ever
// corrupts matching state.
func (r *Renderer) SampleImage(loc *match.DetectionLocation, filteringDir string) error {
	if loc.SampleImageRelName == "" {
		return fmt.Errorf("location %d in %s has no artifact filename assigned", loc.ID, loc.Dir)
	}
	if len(loc.Instances) == 0 {
		return fmt.Errorf("location %d in %s has no instances", loc.ID, loc.Dir)
	}
	for i := 1; i < len(loc.Instances); i++ {
		if loc.Instances[i].Confidence > loc.Instances[0].Confidence {
			return fmt.Errorf("location %d in %s: instances not sorted by confidence", loc.ID, loc.Dir)
		}
	}

	best := loc.BestInstance()
	inputPath := filepath.Join(r.opts.ImageBase, filepath.FromSlash(best.Filename))
	outputPath := filepath.Join(filteringDir, loc.SampleImageRelName)

	if _, err := os.Stat(inputPath); err != nil {
		return r.missingImage(inputPath)
	}

	if err := r.render(loc, inputPath, outputPath); err != nil {
		if r.opts.FailOnRenderError {
			return err
		}
		r.log.Warn("error rendering bounding box", "input", inputPath, "output", outputPath, "error", err)
	}
	return nil
}

func (r *Renderer) render(loc *match.DetectionLocation, inputPath, outputPath string) error {
	img, err := imaging.Open(inputPath, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("cannot open %s: %w", inputPath, err)
	}

	if r.opts.MaxOutputImageWidth > 0 && img.Bounds().Dx() > r.opts.MaxOutputImageWidth {
		img = imaging.Resize(img, r.opts.MaxOutputImageWidth, 0, imaging.Lanczos)
	}
	canvas := imaging.Clone(img)

	if r.opts.RenderOtherDetections && loc.SampleDetections != nil {
		overlayOthers(canvas, loc.SampleDetections, r.opts)
	}

	drawBox(canvas, loc.Box, categoryColor(loc.Category), r.opts.LineThickness, r.opts.BoxExpansion)

	primary := image.Image(canvas)
	if r.opts.RenderDetectionTiles {
		primary, err = r.withInstanceTiles(canvas, loc)
		if err != nil {
			return err
		}
	}

	if err := imaging.Save(primary, outputPath); err != nil {
		return fmt.Errorf("cannot save %s: %w", outputPath, err)
	}
	return nil
}

// overlayOthers paints every other detection above the gray-box threshold
// in a thin, blurred light gray, so the reviewer sees context without the
// other boxes competing with the highlighted one. Detections suppressed
// by a prior pass are shown at their absolute confidence.
func overlayOthers(canvas *image.NRGBA, dets []results.Detection, opts *config.Options) {
	overlay := imaging.New(canvas.Bounds().Dx(), canvas.Bounds().Dy(), transparent)
	for _, d := range dets {
		conf := d.Conf
		if conf < 0 {
			conf = -conf
		}
		if conf < opts.OtherDetectionsThreshold {
			continue
		}
		drawBox(overlay, d.Box, otherDetectionGray, opts.OtherDetectionsLineWidth, opts.BoxExpansion)
	}
	soft := blur.Gaussian(overlay, 0.6)
	composited := imaging.Overlay(canvas, soft, image.Pt(0, 0), 1.0)
	copy(canvas.Pix, composited.Pix)
}

func (r *Renderer) missingImage(path string) error {
	switch r.opts.MissingImageWarning {
	case config.MissingFatal:
		return fmt.Errorf("image not found: %s", path)
	case config.WarnAlways:
		r.log.Warn("image not found", "path", path)
	default: // warn once
		r.mu.Lock()
		defer r.mu.Unlock()
		if !r.warnedMissing {
			r.warnedMissing = true
			r.log.Warn("image not found (further missing images not reported)", "path", path)
		}
	}
	return nil
}
