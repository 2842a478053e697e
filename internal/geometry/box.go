package geometry

import (
	"errors"
	"fmt"
	"math"
)

// Box is an axis-aligned bounding box in relative image coordinates,
// stored as [x_min, y_min, width, height] with all values in [0,1].
// (x_min, y_min) is the upper-left corner.
type Box [4]float64

// ErrDegenerateBox indicates a box with negative extent or a box pair
// whose union has no area, so no overlap ratio is defined.
var ErrDegenerateBox = errors.New("degenerate box geometry")

// X returns the left edge.
func (b Box) X() float64 { return b[0] }

// Y returns the top edge.
func (b Box) Y() float64 { return b[1] }

// W returns the width.
func (b Box) W() float64 { return b[2] }

// H returns the height.
func (b Box) H() float64 { return b[3] }

// Area returns width * height in relative units.
func (b Box) Area() float64 { return b[2] * b[3] }

// CenterX returns the horizontal center of the box.
func (b Box) CenterX() float64 { return b[0] + b[2]/2 }

// CenterY returns the vertical center of the box.
func (b Box) CenterY() float64 { return b[1] + b[3]/2 }

// Corners returns the box as (left, top, right, bottom) edges, the
// convention used by the spatial index.
func (b Box) Corners() (l, t, r, bt float64) {
	return b[0], b[1], b[0] + b[2], b[1] + b[3]
}

// Overlaps reports whether two boxes share any area or touch.
func (b Box) Overlaps(o Box) bool {
	l1, t1, r1, b1 := b.Corners()
	l2, t2, r2, b2 := o.Corners()
	return l1 <= r2 && l2 <= r1 && t1 <= b2 && t2 <= b1
}

// SamePosition reports whether two boxes agree exactly on x_min, y_min
// and width. It is the identity check used when verifying that a stored
// instance still lines up with its table entry.
func SamePosition(a, b Box) bool {
	return a[0] == b[0] && a[1] == b[1] && a[2] == b[2]
}

// IoU returns the intersection-over-union of two boxes.
//
// An error is returned for malformed geometry (negative extents, or a
// pair whose union is empty); callers decide whether that is fatal or
// just means "no match".
func IoU(a, b Box) (float64, error) {
	if a[2] < 0 || a[3] < 0 || b[2] < 0 || b[3] < 0 {
		return 0, fmt.Errorf("%w: (%v),(%v)", ErrDegenerateBox, a, b)
	}

	l := math.Max(a[0], b[0])
	t := math.Max(a[1], b[1])
	r := math.Min(a[0]+a[2], b[0]+b[2])
	bt := math.Min(a[1]+a[3], b[1]+b[3])
	if r <= l || bt <= t {
		return 0, nil
	}
	inter := (r - l) * (bt - t)

	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0, fmt.Errorf("%w: empty union (%v),(%v)", ErrDegenerateBox, a, b)
	}
	return inter / union, nil
}
