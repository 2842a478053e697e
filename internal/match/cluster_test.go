package match

import (
	"testing"

	"github.com/trailtools/rde/internal/config"
	"github.com/trailtools/rde/internal/geometry"
)

func loc(id int, box geometry.Box) *DetectionLocation {
	return &DetectionLocation{
		Box: box, Category: "1", Dir: "A", ID: id,
		Instances: []IndexedDetection{{Filename: "A/x.jpg", Box: box, Confidence: 0.9, Category: "1"}},
	}
}

func TestOrderForReview_XSort(t *testing.T) {
	opts := config.Default()
	opts.SortMode = config.SortX

	locs := []*DetectionLocation{
		loc(0, geometry.Box{0.8, 0.1, 0.1, 0.1}),
		loc(1, geometry.Box{0.1, 0.5, 0.1, 0.1}),
		loc(2, geometry.Box{0.4, 0.9, 0.1, 0.1}),
	}
	out, err := OrderForReview(locs, opts)
	if err != nil {
		t.Fatal(err)
	}
	if out[0].ID != 1 || out[1].ID != 2 || out[2].ID != 0 {
		t.Fatalf("xsort order wrong: %d %d %d", out[0].ID, out[1].ID, out[2].ID)
	}
}

func TestOrderForReview_ClusterSort(t *testing.T) {
	opts := config.Default()
	opts.SortMode = config.SortCluster
	opts.ClusterSortDistance = 0.1

	// Two locations huddled on the right, one alone on the left. The
	// left singleton must get label 0 (ascending mean x), the right pair
	// label 1, internally ordered by id.
	locs := []*DetectionLocation{
		loc(0, geometry.Box{0.8, 0.4, 0.05, 0.05}),
		loc(1, geometry.Box{0.1, 0.1, 0.05, 0.05}),
		loc(2, geometry.Box{0.83, 0.42, 0.05, 0.05}),
	}
	out, err := OrderForReview(locs, opts)
	if err != nil {
		t.Fatal(err)
	}
	if out[0].ID != 1 {
		t.Fatalf("leftmost cluster should come first, got id %d", out[0].ID)
	}
	if *out[0].ClusterLabel != 0 {
		t.Fatalf("left cluster label = %d, want 0", *out[0].ClusterLabel)
	}
	if out[1].ID != 0 || out[2].ID != 2 {
		t.Fatalf("right cluster should keep id order: %d %d", out[1].ID, out[2].ID)
	}
	if *out[1].ClusterLabel != 1 || *out[2].ClusterLabel != 1 {
		t.Fatalf("right cluster labels: %d %d, want 1 1",
			*out[1].ClusterLabel, *out[2].ClusterLabel)
	}
}

// Ordering policy must never change which locations are selected.
func TestOrderForReview_SetInvariant(t *testing.T) {
	build := func() []*DetectionLocation {
		return []*DetectionLocation{
			loc(0, geometry.Box{0.7, 0.1, 0.05, 0.05}),
			loc(1, geometry.Box{0.2, 0.6, 0.05, 0.05}),
			loc(2, geometry.Box{0.25, 0.62, 0.05, 0.05}),
			loc(3, geometry.Box{0.5, 0.9, 0.05, 0.05}),
		}
	}

	ids := func(ls []*DetectionLocation) map[int]bool {
		m := map[int]bool{}
		for _, l := range ls {
			m[l.ID] = true
		}
		return m
	}

	want := ids(build())
	for _, mode := range []config.SortMode{config.SortNone, config.SortX, config.SortCluster} {
		opts := config.Default()
		opts.SortMode = mode
		out, err := OrderForReview(build(), opts)
		if err != nil {
			t.Fatalf("%s: %v", mode, err)
		}
		got := ids(out)
		if len(got) != len(want) {
			t.Fatalf("%s changed the selected set: %v vs %v", mode, got, want)
		}
		for id := range want {
			if !got[id] {
				t.Fatalf("%s dropped location %d", mode, id)
			}
		}
	}
}

func TestCompleteLinkage_ThresholdBoundary(t *testing.T) {
	// Two points exactly at the threshold distance must not merge
	// (merges happen strictly below the threshold).
	labels := completeLinkage([][2]float64{{0, 0}, {0.1, 0}}, 0.1)
	if labels[0] == labels[1] {
		t.Fatal("points at exactly the threshold distance should stay separate")
	}

	labels = completeLinkage([][2]float64{{0, 0}, {0.09, 0}}, 0.1)
	if labels[0] != labels[1] {
		t.Fatal("points below the threshold distance should merge")
	}

	// Complete linkage: a chain does not collapse into one cluster when
	// its endpoints are far apart.
	labels = completeLinkage([][2]float64{{0, 0}, {0.08, 0}, {0.16, 0}}, 0.1)
	if labels[0] == labels[2] {
		t.Fatal("chain endpoints beyond the threshold should not share a cluster")
	}
}
