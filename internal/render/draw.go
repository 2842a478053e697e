package render

import (
	"image"
	"image/color"

	colorful "github.com/lucasb-eyer/go-colorful"

	"github.com/trailtools/rde/internal/geometry"
)

var transparent = color.NRGBA{0, 0, 0, 0}

// Dim gray, the shade used for non-target detections.
var otherDetectionGray = color.NRGBA{105, 105, 105, 255}

// categoryPalette maps detector categories onto distinct hues; category
// IDs beyond the palette wrap around.
var categoryPalette = mustPalette(
	"#E31A1C", // red
	"#1F78B4", // blue
	"#33A02C", // green
	"#FF7F00", // orange
	"#6A3D9A", // purple
	"#B15928", // brown
)

func mustPalette(hexes ...string) []color.NRGBA {
	out := make([]color.NRGBA, 0, len(hexes))
	for _, h := range hexes {
		c, err := colorful.Hex(h)
		if err != nil {
			panic(err)
		}
		r, g, b := c.RGB255()
		out = append(out, color.NRGBA{r, g, b, 255})
	}
	return out
}

// categoryColor returns a stable color for a category ID. Numeric IDs
// ("1", "2", ...) map onto the palette in order.
func categoryColor(category string) color.NRGBA {
	n := 0
	for _, ch := range category {
		n = n*31 + int(ch)
	}
	if n < 0 {
		n = -n
	}
	return categoryPalette[n%len(categoryPalette)]
}

// pixelRect converts a relative box to pixel coordinates on an image of
// the given size, expanded by expansion pixels on each side.
func pixelRect(box geometry.Box, width, height, expansion int) image.Rectangle {
	l := int(box.X()*float64(width)) - expansion
	t := int(box.Y()*float64(height)) - expansion
	r := int((box.X()+box.W())*float64(width)) + expansion
	b := int((box.Y()+box.H())*float64(height)) + expansion
	return image.Rect(l, t, r, b)
}

// drawBox strokes a relative box onto dst with the given line thickness,
// growing inward from the rectangle edge.
func drawBox(dst *image.NRGBA, box geometry.Box, col color.NRGBA, thickness, expansion int) {
	bounds := dst.Bounds()
	rect := pixelRect(box, bounds.Dx(), bounds.Dy(), expansion).Intersect(bounds)
	if rect.Empty() {
		return
	}
	if thickness < 1 {
		thickness = 1
	}

	set := func(x, y int) {
		if image.Pt(x, y).In(bounds) {
			dst.SetNRGBA(x, y, col)
		}
	}
	for i := 0; i < thickness; i++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			set(x, rect.Min.Y+i)
			set(x, rect.Max.Y-1-i)
		}
		for y := rect.Min.Y; y < rect.Max.Y; y++ {
			set(rect.Min.X+i, y)
			set(rect.Max.X-1-i, y)
		}
	}
}
