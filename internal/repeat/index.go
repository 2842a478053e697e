package repeat

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/gofrs/flock"

	"github.com/trailtools/rde/internal/config"
	"github.com/trailtools/rde/internal/match"
	"github.com/trailtools/rde/internal/results"
)

// IndexFileName is the review index written into each filtering folder.
const IndexFileName = "detectionIndex.json"

// ReviewIndex is the durable artifact of a compute pass: the full
// suspicious-detection set, the directory ordinals it is aligned with,
// and the options that produced it.
type ReviewIndex struct {
	SuspiciousDetections [][]*match.DetectionLocation `json:"suspiciousDetections"`
	DirIndexToName       map[int]string               `json:"dirIndexToName"`
	Options              *config.Options              `json:"options"`
}

// SampleImageName builds the deterministic review-artifact filename for
// one suspicious location: directory ordinal, location ordinal, optional
// cluster suffix, instance count, all zero-padded so filesystem order
// matches logical order.
func SampleImageName(iDir, iLoc int, clusterLabel *int, nInstances int) string {
	cluster := ""
	if clusterLabel != nil {
		cluster = fmt.Sprintf("_c%04d", *clusterLabel)
	}
	return fmt.Sprintf("dir%04d_det%04d%s_n%04d.jpg", iDir, iLoc, cluster, nInstances)
}

// PrepareReviewArtifacts walks every suspicious location and does the
// serial bookkeeping rendering depends on: sorts instances descending by
// confidence, assigns the artifact filename, and attaches the sample
// image's full detection list so render workers never touch the table.
func PrepareReviewArtifacts(suspicious [][]*match.DetectionLocation,
	table *results.Table, filenameToRow map[string]int) error {

	for iDir, dirLocations := range suspicious {
		for iLoc, location := range dirLocations {
			sort.SliceStable(location.Instances, func(a, b int) bool {
				return location.Instances[a].Confidence > location.Instances[b].Confidence
			})
			location.SampleImageRelName = SampleImageName(iDir, iLoc, location.ClusterLabel, location.Count())

			best := location.BestInstance()
			iRow, ok := filenameToRow[best.Filename]
			if !ok {
				return fmt.Errorf("sample image %s not present in detection table", best.Filename)
			}
			location.SampleDetections = table.Images[iRow].Detections
		}
	}
	return nil
}

// ClearSampleDetections drops the transient per-location detection lists
// once rendering is done, before the index is serialized.
func ClearSampleDetections(suspicious [][]*match.DetectionLocation) {
	for _, dirLocations := range suspicious {
		for _, location := range dirLocations {
			location.SampleDetections = nil
		}
	}
}

// NewFilteringDir creates a timestamped filtering folder under
// outputBase and returns its path.
func NewFilteringDir(outputBase string, now time.Time) (string, error) {
	if outputBase == "" {
		return "", fmt.Errorf("output base is required when writing a filtering folder")
	}
	dir := filepath.Join(outputBase, "filtering_"+now.Format("2006.01.02.15.04.05"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("cannot create filtering dir %s: %w", dir, err)
	}
	return dir, nil
}

// WriteReviewIndex serializes the index into dir under an exclusive file
// lock, so two concurrent runs over the same output base cannot
// interleave their writes.
func WriteReviewIndex(dir string, idx *ReviewIndex) (string, error) {
	if idx.Options == nil {
		return "", fmt.Errorf("review index has no options")
	}
	if len(idx.SuspiciousDetections) != len(idx.DirIndexToName) {
		return "", fmt.Errorf("review index misaligned: %d directories, %d names",
			len(idx.SuspiciousDetections), len(idx.DirIndexToName))
	}

	lock := flock.New(filepath.Join(dir, ".index.lock"))
	if err := lock.Lock(); err != nil {
		return "", fmt.Errorf("cannot lock filtering dir %s: %w", dir, err)
	}
	defer func() { _ = lock.Unlock() }()

	b, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return "", fmt.Errorf("cannot serialize review index: %w", err)
	}
	path := filepath.Join(dir, IndexFileName)
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", fmt.Errorf("cannot write review index %s: %w", path, err)
	}
	return path, nil
}

// LoadReviewIndex reads and validates a previously written review index.
func LoadReviewIndex(path string) (*ReviewIndex, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read review index %s: %w", path, err)
	}
	var idx ReviewIndex
	if err := json.Unmarshal(b, &idx); err != nil {
		return nil, fmt.Errorf("invalid review index JSON %s: %w", path, err)
	}
	if idx.Options == nil {
		return nil, fmt.Errorf("review index %s missing options", path)
	}
	if idx.SuspiciousDetections == nil {
		return nil, fmt.Errorf("review index %s missing suspiciousDetections", path)
	}
	if len(idx.SuspiciousDetections) != len(idx.DirIndexToName) {
		return nil, fmt.Errorf("review index %s misaligned: %d directories, %d names",
			path, len(idx.SuspiciousDetections), len(idx.DirIndexToName))
	}
	return &idx, nil
}
