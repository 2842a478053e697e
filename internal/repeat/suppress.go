package repeat

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/trailtools/rde/internal/config"
	"github.com/trailtools/rde/internal/geometry"
	"github.com/trailtools/rde/internal/match"
	"github.com/trailtools/rde/internal/results"
)

// maxConfEpsilon is the smallest max-confidence movement counted as a
// meaningful change in the suppression report.
const maxConfEpsilon = 1e-3

// SuppressionStats reports what a suppression pass changed.
type SuppressionStats struct {
	// BoxChanges counts detections whose confidence was flipped negative.
	BoxChanges int
	// MaxConfChanges counts rows whose max confidence moved by more than
	// maxConfEpsilon.
	MaxConfChanges int
	// MaxConfToNegative counts rows whose max confidence crossed from
	// non-negative to negative.
	MaxConfToNegative int
	// MaxConfAcrossThreshold counts rows whose max confidence dropped
	// below the configured confidence minimum, changing whether the row
	// would even be considered in a future pass.
	MaxConfAcrossThreshold int
}

// Suppress negates the confidence of every instance belonging to a
// suspicious location, then recomputes each row's max confidence.
//
// Every assertion failure here indicates a corrupt index or a logic
// defect, not recoverable data, so all are fatal: a partially-suppressed
// table is worse than no table. The pass is idempotent — already-negative
// confidences are left alone.
func Suppress(table *results.Table, suspicious [][]*match.DetectionLocation,
	filenameToRow map[string]int, opts *config.Options, log *slog.Logger) (*SuppressionStats, error) {

	stats := &SuppressionStats{}
	log.Info("updating output table")

	for iDir, dirLocations := range suspicious {
		for iLoc, location := range dirLocations {
			for _, instance := range location.Instances {
				if err := suppressInstance(table, location, instance, filenameToRow, opts, stats); err != nil {
					return nil, fmt.Errorf("directory %d location %d: %w", iDir, iLoc, err)
				}
			}
		}
	}

	if err := recomputeMaxConfidences(table, opts, stats); err != nil {
		return nil, err
	}

	log.Info("finished updating detection table",
		"detections_changed", stats.BoxChanges,
		"max_conf_changes", stats.MaxConfChanges,
		"to_negative", stats.MaxConfToNegative,
		"across_threshold", stats.MaxConfAcrossThreshold)
	return stats, nil
}

func suppressInstance(table *results.Table, location *match.DetectionLocation,
	instance match.IndexedDetection, filenameToRow map[string]int,
	opts *config.Options, stats *SuppressionStats) error {

	// The instance matched the representative box when it was recorded;
	// if it no longer does, the index is corrupt.
	iou, err := geometry.IoU(instance.Box, location.Box)
	if err != nil {
		return fmt.Errorf("instance %s: %w", instance.Filename, err)
	}
	if iou < opts.IoUThreshold {
		return fmt.Errorf("instance %s: IoU %v against location box below threshold %v",
			instance.Filename, iou, opts.IoUThreshold)
	}

	iRow, ok := filenameToRow[instance.Filename]
	if !ok {
		return fmt.Errorf("instance file %s not present in detection table", instance.Filename)
	}
	row := table.Images[iRow]
	if instance.SequenceIndex < 0 || instance.SequenceIndex >= len(row.Detections) {
		return fmt.Errorf("instance %s: detection index %d out of range (%d detections)",
			instance.Filename, instance.SequenceIndex, len(row.Detections))
	}
	target := &row.Detections[instance.SequenceIndex]

	if !geometry.SamePosition(instance.Box, target.Box) {
		return fmt.Errorf("instance %s detection %d: stored box %v does not match table box %v",
			instance.Filename, instance.SequenceIndex, instance.Box, target.Box)
	}

	// Negate once; another location may have flipped it already.
	if target.Conf >= 0 {
		target.Conf = -target.Conf
		stats.BoxChanges++
	}
	return nil
}

func recomputeMaxConfidences(table *results.Table, opts *config.Options, stats *SuppressionStats) error {
	for _, row := range table.Images {
		if row.Detections == nil {
			if row.Failure == "" {
				return fmt.Errorf("image %s: missing detections without failure marker", row.File)
			}
			continue
		}
		if len(row.Detections) == 0 {
			continue
		}

		maxOriginal := row.MaxDetectionConf
		if maxOriginal < -1.0 {
			return fmt.Errorf("image %s: max confidence %v below -1", row.File, maxOriginal)
		}

		maxP := math.Inf(-1)
		nNegative := 0
		for _, d := range row.Detections {
			if d.Conf < 0 {
				nNegative++
			}
			if d.Conf > maxP {
				maxP = d.Conf
			}
		}

		// Suppression must only ever decrease visibility.
		if maxP > maxOriginal {
			return fmt.Errorf("image %s: max confidence increased from %v to %v during suppression",
				row.File, maxOriginal, maxP)
		}
		row.MaxDetectionConf = maxP

		if math.Abs(maxP-maxOriginal) > maxConfEpsilon {
			// Only negated confidences can move the max, so a meaningful
			// change without any negative detection is a logic defect.
			if nNegative == 0 {
				return fmt.Errorf("image %s: max confidence changed without any negated detection", row.File)
			}
			stats.MaxConfChanges++
			if maxP < 0 && maxOriginal >= 0 {
				stats.MaxConfToNegative++
			}
			if maxOriginal >= opts.ConfidenceMin && maxP < opts.ConfidenceMin {
				stats.MaxConfAcrossThreshold++
			}
		}
	}
	return nil
}
