package align

import (
	"fmt"
	"math"

	"github.com/carbocation/rasterval/raster"
	"github.com/paulmach/orb"
)

// Rasterize burns the layer onto a grid shaped and georeferenced like target.
// A cell takes a feature's burn value when its centre lies inside the
// feature; all other cells are 0. Where features overlap the last one wins.
// Vector coordinates must already be in the target's coordinate system.
func Rasterize(layer Layer, target raster.Raster) (raster.Raster, error) {
	if !target.HasTransform {
		return raster.Raster{}, fmt.Errorf("%w: cannot rasterize %s", ErrNoGeoTransform, layer.Name)
	}

	out := target.Georeferenced(raster.NewGrid(target.Rows, target.Cols))
	out.HasNoData = false

	for _, f := range layer.Features {
		c0, c1, r0, r1 := pixelWindow(f.Bound, target)

		for row := r0; row < r1; row++ {
			for col := c0; col < c1; col++ {
				x, y := target.Transform.CellCenter(col, row)
				if f.Contains(orb.Point{x, y}) {
					out.Set(row, col, f.Burn)
				}
			}
		}
	}

	return out, nil
}

// pixelWindow is the range of cells [c0, c1) x [r0, r1) that can intersect
// the bound. Rotated transforms fall back on the whole grid.
func pixelWindow(b orb.Bound, target raster.Raster) (c0, c1, r0, r1 int) {
	if target.Transform.Rotated() {
		return 0, target.Cols, 0, target.Rows
	}

	colA, rowA, okA := target.Transform.WorldToPixel(b.Min[0], b.Min[1])
	colB, rowB, okB := target.Transform.WorldToPixel(b.Max[0], b.Max[1])
	if !okA || !okB {
		return 0, 0, 0, 0
	}

	c0 = clamp(math.Floor(math.Min(colA, colB)), target.Cols)
	c1 = clamp(math.Ceil(math.Max(colA, colB)), target.Cols)
	r0 = clamp(math.Floor(math.Min(rowA, rowB)), target.Rows)
	r1 = clamp(math.Ceil(math.Max(rowA, rowB)), target.Rows)

	return c0, c1, r0, r1
}

// clamp limits v to [0, hi] before converting, so far away features cannot
// overflow the conversion.
func clamp(v float64, hi int) int {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > float64(hi) {
		return hi
	}

	return int(v)
}
