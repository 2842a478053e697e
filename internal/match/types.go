// Package match groups a directory's detections into recurring locations
// using IoU overlap against a spatial index over the unit square.
package match

import (
	"github.com/trailtools/rde/internal/geometry"
	"github.com/trailtools/rde/internal/results"
)

// IndexedDetection is a single detection event on a single image.
// Immutable once created.
type IndexedDetection struct {
	// SequenceIndex is the detection's position in its image's detection
	// list, used to address the table entry during suppression.
	SequenceIndex int          `json:"iDetection"`
	Filename      string       `json:"filename"`
	Box           geometry.Box `json:"bbox"`
	Confidence    float64      `json:"confidence"`
	Category      string       `json:"category"`
}

// DetectionLocation is a unique-ish detection location, meaningful within
// one directory. Every instance matched the representative Box at IoU >=
// threshold when it was appended; instances need not overlap each other.
type DetectionLocation struct {
	// Box is the representative box, set from the founding instance and
	// frozen thereafter. Later-joining instances may differ slightly; the
	// box is deliberately never recentered.
	Box      geometry.Box `json:"bbox"`
	Category string       `json:"category"`
	Dir      string       `json:"relativeDir"`

	// Instances in discovery order during matching; re-sorted descending
	// by confidence before review artifacts are generated.
	Instances []IndexedDetection `json:"instances"`

	// ID is unique within the directory: the scan-iteration index of the
	// founding instance. Final matcher output is sorted by ID, so results
	// read as if no spatial structure were involved.
	ID int `json:"id"`

	// ClusterLabel is assigned only by the clustersort review ordering.
	ClusterLabel *int `json:"clusterLabel"`

	// SampleImageRelName is the review artifact's filename, relative to
	// the filtering directory. Assigned during artifact preparation.
	SampleImageRelName string `json:"sampleImageRelativeFileName"`

	// SampleDetections holds the full detection list of the sample image
	// while artifacts are rendered. Transient; never serialized.
	SampleDetections []results.Detection `json:"-"`
}

// Count returns the number of recorded instances.
func (l *DetectionLocation) Count() int { return len(l.Instances) }

// BestInstance returns the highest-confidence instance. Valid only after
// instances have been sorted descending by confidence.
func (l *DetectionLocation) BestInstance() IndexedDetection {
	return l.Instances[0]
}
