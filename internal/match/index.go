package match

import (
	"sort"

	"github.com/trailtools/rde/internal/geometry"
)

// The index covers the unit square with a small overscan margin so boxes
// straddling the frame edge still land in a cell.
const (
	indexMin  = -0.1
	indexMax  = 1.1
	gridCells = 16
)

// gridIndex is a fixed-resolution bucket grid over location boxes. Each
// location is inserted into every cell its box touches; search gathers the
// cells the query box touches and deduplicates.
type gridIndex struct {
	cells [gridCells * gridCells][]*DetectionLocation
	all   []*DetectionLocation
}

func newGridIndex() *gridIndex {
	return &gridIndex{}
}

// cellSpan maps a corner rect to inclusive cell coordinate bounds,
// clamped to the grid.
func cellSpan(l, t, r, b float64) (c0, r0, c1, r1 int) {
	scale := float64(gridCells) / (indexMax - indexMin)
	toCell := func(v float64) int {
		c := int((v - indexMin) * scale)
		if c < 0 {
			c = 0
		}
		if c >= gridCells {
			c = gridCells - 1
		}
		return c
	}
	return toCell(l), toCell(t), toCell(r), toCell(b)
}

// Insert adds a location under its representative box.
func (g *gridIndex) Insert(loc *DetectionLocation) {
	l, t, r, b := loc.Box.Corners()
	c0, r0, c1, r1 := cellSpan(l, t, r, b)
	for cy := r0; cy <= r1; cy++ {
		for cx := c0; cx <= c1; cx++ {
			i := cy*gridCells + cx
			g.cells[i] = append(g.cells[i], loc)
		}
	}
	g.all = append(g.all, loc)
}

// Overlapping returns the locations whose representative rectangles
// overlap box, sorted by ID so match order is deterministic.
func (g *gridIndex) Overlapping(box geometry.Box) []*DetectionLocation {
	l, t, r, b := box.Corners()
	c0, r0, c1, r1 := cellSpan(l, t, r, b)

	var out []*DetectionLocation
	seen := map[int]bool{}
	for cy := r0; cy <= r1; cy++ {
		for cx := c0; cx <= c1; cx++ {
			for _, loc := range g.cells[cy*gridCells+cx] {
				if seen[loc.ID] {
					continue
				}
				seen[loc.ID] = true
				if box.Overlaps(loc.Box) {
					out = append(out, loc)
				}
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// All returns every inserted location sorted by ID, as if no spatial
// structure had been involved.
func (g *gridIndex) All() []*DetectionLocation {
	out := make([]*DetectionLocation, len(g.all))
	copy(out, g.all)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
