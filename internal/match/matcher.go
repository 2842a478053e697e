package match

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/trailtools/rde/internal/config"
	"github.com/trailtools/rde/internal/geometry"
	"github.com/trailtools/rde/internal/results"
)

// geometryIoU computes IoU, logging and swallowing per-pair geometry
// faults so one malformed box never aborts a directory.
func geometryIoU(a, b geometry.Box, log *slog.Logger) (float64, error) {
	iou, err := geometry.IoU(a, b)
	if err != nil {
		log.Warn("IoU computation error, treating as non-match",
			"box", a, "candidate", b, "error", err)
		return 0, err
	}
	return iou, nil
}

// FindMatches scans one directory's rows and groups qualifying detections
// into DetectionLocations.
//
// The scan is strictly sequential over the directory's own rows, so the
// result depends only on the rows and the options, never on worker
// scheduling. A detection that overlaps several existing locations at or
// above the IoU threshold is appended to all of them; there is no
// first-match-wins short circuit. A detection that matches none founds a
// new location whose representative box is frozen from that instance.
//
// Geometry faults during a single IoU comparison are logged and treated as
// a non-match for that pair only. Corrupt input (confidence outside
// [-1,1], box area outside [0,1]) is fatal for the run.
func FindMatches(dir string, rows []*results.ImageEntry, opts *config.Options, log *slog.Logger) ([]*DetectionLocation, error) {
	if opts.MaxImagesPerDir > 0 && len(rows) > opts.MaxImagesPerDir {
		log.Info("ignoring directory over image limit",
			"dir", dir, "images", len(rows), "limit", opts.MaxImagesPerDir)
		return nil, nil
	}
	if len(opts.IncludeDirs) > 0 && !slices.Contains(opts.IncludeDirs, dir) {
		log.Info("ignoring directory not on inclusion list", "dir", dir)
		return nil, nil
	}
	if len(opts.ExcludeDirs) > 0 && slices.Contains(opts.ExcludeDirs, dir) {
		log.Info("ignoring directory on exclusion list", "dir", dir)
		return nil, nil
	}

	index := newGridIndex()

	// Scan-iteration counter over every detection considered; founding
	// instances take it as their location ID.
	iteration := -1

	for _, row := range rows {
		if !results.IsImagePath(row.File) {
			continue
		}
		if row.Detections == nil {
			if row.Failure != "" {
				log.Debug("skipping failed image", "file", row.File, "failure", row.Failure)
			} else {
				log.Warn("skipping row with no detection list", "file", row.File)
			}
			continue
		}

		// Nothing in this image can qualify.
		if row.MaxDetectionConf < opts.ConfidenceMin {
			continue
		}
		if len(row.Detections) == 0 {
			return nil, fmt.Errorf("image %s: max confidence %v with empty detection list",
				row.File, row.MaxDetectionConf)
		}

		for iDetection, det := range row.Detections {
			iteration++

			if det.Conf < -1.0 || det.Conf > 1.0 {
				return nil, fmt.Errorf("image %s detection %d: confidence %v outside [-1,1]",
					row.File, iDetection, det.Conf)
			}
			if det.Conf < opts.ConfidenceMin || det.Conf > opts.ConfidenceMax {
				continue
			}
			if opts.ExcludesCategory(det.Category) {
				continue
			}
			if det.Box.W() == 0 || det.Box.H() == 0 {
				continue
			}
			area := det.Box.Area()
			if area < 0 || area > 1 {
				return nil, fmt.Errorf("image %s detection %d: illegal bounding box area %v",
					row.File, iDetection, area)
			}
			if area < opts.MinSuspiciousDetectionSize || area > opts.MaxSuspiciousDetectionSize {
				continue
			}

			instance := IndexedDetection{
				SequenceIndex: iDetection,
				Filename:      row.File,
				Box:           det.Box,
				Confidence:    det.Conf,
				Category:      det.Category,
			}

			matched := false
			for _, cand := range index.Overlapping(det.Box) {
				if cand.Category != det.Category {
					continue
				}
				iou, err := geometryIoU(det.Box, cand.Box, log)
				if err != nil {
					continue
				}
				if iou >= opts.IoUThreshold {
					matched = true
					// Deliberately no break: one instance may join
					// several locations.
					cand.Instances = append(cand.Instances, instance)
				}
			}

			if !matched {
				index.Insert(&DetectionLocation{
					Box:       det.Box,
					Category:  det.Category,
					Dir:       dir,
					Instances: []IndexedDetection{instance},
					ID:        iteration,
				})
			}
		}
	}

	return index.All(), nil
}
