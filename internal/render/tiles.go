package render

import (
	"image"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/trailtools/rde/internal/match"
)

// tileCell is the square edge of one instance thumbnail.
const tileCell = 128

// withInstanceTiles composes the primary sample image with a grid of
// crops, one per instance of the location, so a reviewer can confirm the
// repeat without opening every frame. The grid sits to the left of the
// primary image.
func (r *Renderer) withInstanceTiles(primary *image.NRGBA, loc *match.DetectionLocation) (image.Image, error) {
	if r.opts.TilesPrimaryWidth > 0 && primary.Bounds().Dx() != r.opts.TilesPrimaryWidth {
		primary = imaging.Resize(primary, r.opts.TilesPrimaryWidth, 0, imaging.Lanczos)
	}
	pw, ph := primary.Bounds().Dx(), primary.Bounds().Dy()

	gridWidth := int(r.opts.TilesGridWidth)
	if r.opts.TilesGridWidth <= 1.0 {
		gridWidth = int(r.opts.TilesGridWidth * float64(pw))
	}
	if gridWidth < tileCell {
		gridWidth = tileCell
	}

	instances := loc.Instances
	if r.opts.TilesMaxCrops > 0 && len(instances) > r.opts.TilesMaxCrops {
		instances = instances[:r.opts.TilesMaxCrops]
	}

	var crops []*image.NRGBA
	for _, inst := range instances {
		srcPath := filepath.Join(r.opts.ImageBase, filepath.FromSlash(inst.Filename))
		src, err := imaging.Open(srcPath)
		if err != nil {
			r.log.Warn("skipping crop for unreadable image", "path", srcPath, "error", err)
			continue
		}
		rect := pixelRect(inst.Box, src.Bounds().Dx(), src.Bounds().Dy(), r.opts.BoxExpansion).
			Intersect(src.Bounds())
		if rect.Empty() {
			continue
		}
		crop := imaging.Crop(src, rect)
		crops = append(crops, imaging.Thumbnail(crop, tileCell, tileCell, imaging.Lanczos))
	}
	if len(crops) == 0 {
		return primary, nil
	}

	cols := gridWidth / tileCell
	if cols < 1 {
		cols = 1
	}
	rows := (len(crops) + cols - 1) / cols
	gridWidth = cols * tileCell

	height := ph
	if rows*tileCell > height {
		height = rows * tileCell
	}
	canvas := imaging.New(gridWidth+pw, height, transparent)
	for i, crop := range crops {
		x := (i % cols) * tileCell
		y := (i / cols) * tileCell
		canvas = imaging.Paste(canvas, crop, image.Pt(x, y))
	}
	canvas = imaging.Paste(canvas, primary, image.Pt(gridWidth, 0))
	return canvas, nil
}
