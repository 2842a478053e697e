package match

import (
	"math/rand"
	"testing"

	"github.com/trailtools/rde/internal/geometry"
)

// The grid index must return exactly the rectangle-overlap candidates a
// brute-force scan would, in ID order.
func TestGridIndex_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	idx := newGridIndex()
	var all []*DetectionLocation
	for i := 0; i < 200; i++ {
		b := geometry.Box{
			rng.Float64() * 0.95,
			rng.Float64() * 0.95,
			0.01 + rng.Float64()*0.2,
			0.01 + rng.Float64()*0.2,
		}
		l := &DetectionLocation{Box: b, Category: "1", Dir: "A", ID: i}
		idx.Insert(l)
		all = append(all, l)
	}

	for q := 0; q < 100; q++ {
		query := geometry.Box{
			rng.Float64() * 0.9,
			rng.Float64() * 0.9,
			0.01 + rng.Float64()*0.3,
			0.01 + rng.Float64()*0.3,
		}

		var want []int
		for _, l := range all {
			if query.Overlaps(l.Box) {
				want = append(want, l.ID)
			}
		}

		got := idx.Overlapping(query)
		if len(got) != len(want) {
			t.Fatalf("query %v: got %d candidates, want %d", query, len(got), len(want))
		}
		for i, l := range got {
			if l.ID != want[i] {
				t.Fatalf("query %v: candidate %d has ID %d, want %d", query, i, l.ID, want[i])
			}
		}
	}
}

// Boxes hanging over the frame edge still index correctly thanks to the
// overscan margin.
func TestGridIndex_BoundaryBoxes(t *testing.T) {
	idx := newGridIndex()
	edge := &DetectionLocation{Box: geometry.Box{0.95, 0.95, 0.1, 0.1}, ID: 0}
	idx.Insert(edge)

	got := idx.Overlapping(geometry.Box{0.97, 0.97, 0.05, 0.05})
	if len(got) != 1 || got[0].ID != 0 {
		t.Fatalf("edge box not found: %v", got)
	}
}

func TestGridIndex_AllSortedByID(t *testing.T) {
	idx := newGridIndex()
	for _, id := range []int{5, 1, 3} {
		idx.Insert(&DetectionLocation{Box: geometry.Box{0.1, 0.1, 0.1, 0.1}, ID: id})
	}
	all := idx.All()
	if len(all) != 3 || all[0].ID != 1 || all[1].ID != 3 || all[2].ID != 5 {
		t.Fatalf("All() not sorted by ID: %v", all)
	}
}
