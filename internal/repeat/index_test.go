package repeat

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/trailtools/rde/internal/config"
	"github.com/trailtools/rde/internal/geometry"
	"github.com/trailtools/rde/internal/match"
)

func TestSampleImageName(t *testing.T) {
	if got, want := SampleImageName(2, 17, nil, 153), "dir0002_det0017_n0153.jpg"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	label := 3
	if got, want := SampleImageName(0, 0, &label, 20), "dir0000_det0000_c0003_n0020.jpg"; got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestPrepareReviewArtifacts(t *testing.T) {
	table, suspicious, fnToRow := repeatTable()
	// Scramble instance confidences so the sort has work to do.
	suspicious[0][0].Instances[0].Confidence = 0.2
	suspicious[0][0].Instances[5].Confidence = 0.95
	table.Images[fnToRow[suspicious[0][0].Instances[5].Filename]].Detections[0].Conf = 0.95

	if err := PrepareReviewArtifacts(suspicious, table, fnToRow); err != nil {
		t.Fatal(err)
	}
	loc := suspicious[0][0]
	if loc.SampleImageRelName != "dir0000_det0000_n0020.jpg" {
		t.Fatalf("artifact name = %q", loc.SampleImageRelName)
	}
	for i := 1; i < len(loc.Instances); i++ {
		if loc.Instances[i].Confidence > loc.Instances[i-1].Confidence {
			t.Fatalf("instances not sorted descending at %d", i)
		}
	}
	if loc.BestInstance().Confidence != 0.95 {
		t.Fatalf("best instance confidence = %v", loc.BestInstance().Confidence)
	}
	if loc.SampleDetections == nil {
		t.Fatal("sample detections not attached")
	}

	ClearSampleDetections(suspicious)
	if loc.SampleDetections != nil {
		t.Fatal("sample detections not cleared")
	}
}

func TestReviewIndex_RoundTrip(t *testing.T) {
	label := 1
	loc := &match.DetectionLocation{
		Box:                geometry.Box{0.1, 0.2, 0.3, 0.4},
		Category:           "1",
		Dir:                "site_a",
		ID:                 7,
		ClusterLabel:       &label,
		SampleImageRelName: "dir0000_det0000_c0001_n0020.jpg",
		Instances: []match.IndexedDetection{
			{SequenceIndex: 2, Filename: "site_a/img.jpg", Box: geometry.Box{0.1, 0.2, 0.3, 0.4}, Confidence: 0.8, Category: "1"},
		},
	}
	idx := &ReviewIndex{
		SuspiciousDetections: [][]*match.DetectionLocation{{loc}},
		DirIndexToName:       map[int]string{0: "site_a"},
		Options:              config.Default(),
	}

	dir := t.TempDir()
	path, err := WriteReviewIndex(dir, idx)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(path) != IndexFileName {
		t.Fatalf("index written as %q", filepath.Base(path))
	}

	got, err := LoadReviewIndex(path)
	if err != nil {
		t.Fatal(err)
	}
	gotLoc := got.SuspiciousDetections[0][0]
	if gotLoc.Box != loc.Box || gotLoc.Category != loc.Category || gotLoc.ID != loc.ID {
		t.Fatalf("location mismatch after round trip: %+v", gotLoc)
	}
	if gotLoc.ClusterLabel == nil || *gotLoc.ClusterLabel != label {
		t.Fatalf("cluster label lost: %v", gotLoc.ClusterLabel)
	}
	if gotLoc.SampleImageRelName != loc.SampleImageRelName {
		t.Fatalf("artifact name lost: %q", gotLoc.SampleImageRelName)
	}
	inst := gotLoc.Instances[0]
	if inst.SequenceIndex != 2 || inst.Filename != "site_a/img.jpg" || inst.Confidence != 0.8 {
		t.Fatalf("instance mismatch: %+v", inst)
	}
	if got.DirIndexToName[0] != "site_a" {
		t.Fatalf("dir names lost: %v", got.DirIndexToName)
	}
	if got.Options.IoUThreshold != idx.Options.IoUThreshold {
		t.Fatalf("options lost: %+v", got.Options)
	}
}

func TestWriteReviewIndex_RejectsMisalignment(t *testing.T) {
	idx := &ReviewIndex{
		SuspiciousDetections: [][]*match.DetectionLocation{{}, {}},
		DirIndexToName:       map[int]string{0: "only"},
		Options:              config.Default(),
	}
	if _, err := WriteReviewIndex(t.TempDir(), idx); err == nil {
		t.Fatal("misaligned index should be rejected")
	}
	idx.DirIndexToName = map[int]string{0: "a", 1: "b"}
	idx.Options = nil
	if _, err := WriteReviewIndex(t.TempDir(), idx); err == nil {
		t.Fatal("index without options should be rejected")
	}
}

func TestNewFilteringDir(t *testing.T) {
	base := t.TempDir()
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	dir, err := NewFilteringDir(base, now)
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(dir) != "filtering_2026.03.14.09.26.53" {
		t.Fatalf("folder name = %q", filepath.Base(dir))
	}
	if _, err := NewFilteringDir("", now); err == nil {
		t.Fatal("empty output base should be rejected")
	}
}
