// Package overlay renders difference maps as human viewable images.
package overlay

import (
	"fmt"
	"image"

	"github.com/carbocation/rasterval/raster"
	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
)

const (
	legendRowHeight = 16
	legendSwatch    = 10
	legendMinWidth  = 180
)

// Quicklook renders the difference map, scales it up by an integer factor
// (nearest neighbor, so codes stay crisp) and appends a legend. counts, if
// not nil, is printed next to each label.
func (l LabelMap) Quicklook(g *raster.Grid, scale int, counts map[int32]int64) (image.Image, error) {
	if scale < 1 {
		scale = 1
	}

	img, err := l.Render(g)
	if err != nil {
		return nil, err
	}

	var scaled image.Image = img
	if scale > 1 && g.Cols > 0 {
		scaled = imaging.Resize(img, g.Cols*scale, g.Rows*scale, imaging.NearestNeighbor)
	}

	return l.AddLegend(scaled, counts)
}

// AddLegend draws the image on a white canvas with one legend row per
// label underneath it.
func (l LabelMap) AddLegend(img image.Image, counts map[int32]int64) (image.Image, error) {
	b := img.Bounds()
	labels := l.Sorted()

	width := b.Dx()
	if width < legendMinWidth {
		width = legendMinWidth
	}

	ctx := gg.NewContext(width, b.Dy()+legendRowHeight*len(labels)+4)
	ctx.SetRGB(1, 1, 1)
	ctx.Clear()
	ctx.DrawImage(img, 0, 0)

	for i, lab := range labels {
		top := float64(b.Dy() + 4 + i*legendRowHeight)

		col, err := rgbaFromColorCode(lab.Color)
		if err != nil {
			return nil, err
		}

		ctx.SetColor(col)
		ctx.DrawRectangle(4, top+2, legendSwatch, legendSwatch)
		ctx.Fill()

		ctx.SetRGB(0, 0, 0)
		ctx.DrawRectangle(4, top+2, legendSwatch, legendSwatch)
		ctx.SetLineWidth(1)
		ctx.Stroke()

		text := fmt.Sprintf("%d %s", lab.ID, lab.Label)
		if counts != nil {
			text = fmt.Sprintf("%s (%d)", text, counts[lab.ID])
		}
		ctx.DrawString(text, 4+legendSwatch+6, top+legendSwatch+1)
	}

	return ctx.Image(), nil
}

// Save writes the image, picking the format from the extension.
func Save(path string, img image.Image) error {
	return imaging.Save(img, path)
}
