// Package raster holds the in-memory grid model shared by the classifier and
// the metrics code, as well as single band raster reading and writing with
// world file georeferencing.
package raster

import (
	"errors"
	"fmt"
	"math"
)

// ErrShapeMismatch is returned when grids that must line up cell for cell
// have different dimensions.
var ErrShapeMismatch = errors.New("shape mismatch")

// DefaultNoData is the sentinel used for "no observation" unless configured
// otherwise.
const DefaultNoData int32 = 255

// Grid is a row-major two dimensional array of integer cell values.
type Grid struct {
	Rows int
	Cols int
	Data []int32
}

// NewGrid allocates a zero filled grid.
func NewGrid(rows, cols int) *Grid {
	return &Grid{
		Rows: rows,
		Cols: cols,
		Data: make([]int32, rows*cols),
	}
}

// NewFilledGrid allocates a grid with every cell set to value.
func NewFilledGrid(rows, cols int, value int32) *Grid {
	g := NewGrid(rows, cols)
	for i := range g.Data {
		g.Data[i] = value
	}

	return g
}

// GridFromRows builds a grid from a slice of equal length rows. It is mostly
// useful for small literal grids.
func GridFromRows(rows [][]int32) (*Grid, error) {
	if len(rows) == 0 {
		return NewGrid(0, 0), nil
	}

	g := NewGrid(len(rows), len(rows[0]))
	for y, row := range rows {
		if len(row) != g.Cols {
			return nil, fmt.Errorf("row %d has %d columns, expected %d", y, len(row), g.Cols)
		}
		copy(g.Data[y*g.Cols:], row)
	}

	return g, nil
}

// Len is the number of cells.
func (g *Grid) Len() int {
	return g.Rows * g.Cols
}

func (g *Grid) At(row, col int) int32 {
	return g.Data[row*g.Cols+col]
}

func (g *Grid) Set(row, col int, v int32) {
	g.Data[row*g.Cols+col] = v
}

// SameShape reports whether both grids have identical dimensions.
func (g *Grid) SameShape(o *Grid) bool {
	return g.Rows == o.Rows && g.Cols == o.Cols && len(g.Data) == len(o.Data)
}

func (g *Grid) Clone() *Grid {
	out := &Grid{Rows: g.Rows, Cols: g.Cols, Data: make([]int32, len(g.Data))}
	copy(out.Data, g.Data)

	return out
}

// Rows2D returns a copy of the grid as nested slices.
func (g *Grid) Rows2D() [][]int32 {
	out := make([][]int32, g.Rows)
	for y := range out {
		out[y] = make([]int32, g.Cols)
		copy(out[y], g.Data[y*g.Cols:(y+1)*g.Cols])
	}

	return out
}

// ShapeString is a human readable "rows x cols".
func (g *Grid) ShapeString() string {
	return fmt.Sprintf("%dx%d", g.Rows, g.Cols)
}

// GeoTransform is an affine pixel-to-world transform in GDAL order:
//
//	x = T[0] + col*T[1] + row*T[2]
//	y = T[3] + col*T[4] + row*T[5]
//
// where (col, row) address the upper left corner of a cell.
type GeoTransform [6]float64

// PixelToWorld maps fractional pixel coordinates to world coordinates.
func (t GeoTransform) PixelToWorld(col, row float64) (x, y float64) {
	return t[0] + col*t[1] + row*t[2], t[3] + col*t[4] + row*t[5]
}

// CellCenter is the world coordinate of the centre of a cell.
func (t GeoTransform) CellCenter(col, row int) (x, y float64) {
	return t.PixelToWorld(float64(col)+0.5, float64(row)+0.5)
}

// WorldToPixel is the inverse of PixelToWorld. ok is false for a degenerate
// transform.
func (t GeoTransform) WorldToPixel(x, y float64) (col, row float64, ok bool) {
	det := t[1]*t[5] - t[2]*t[4]
	if det == 0 {
		return 0, 0, false
	}

	dx, dy := x-t[0], y-t[3]
	col = (t[5]*dx - t[2]*dy) / det
	row = (t[1]*dy - t[4]*dx) / det

	return col, row, true
}

// Rotated reports whether the transform has rotation/shear terms.
func (t GeoTransform) Rotated() bool {
	return t[2] != 0 || t[4] != 0
}

// Equal compares two transforms with a relative tolerance.
func (t GeoTransform) Equal(o GeoTransform, tol float64) bool {
	for i := range t {
		scale := math.Max(1, math.Max(math.Abs(t[i]), math.Abs(o[i])))
		if math.Abs(t[i]-o[i]) > tol*scale {
			return false
		}
	}

	return true
}

// Raster is a single band grid together with its georeferencing.
type Raster struct {
	*Grid

	// Transform is only meaningful when HasTransform is set.
	Transform    GeoTransform
	HasTransform bool

	// SpatialRef is the WKT of the coordinate system, if known.
	SpatialRef string

	NoData    int32
	HasNoData bool
}

// Georeferenced returns a new raster sharing georeferencing with r but
// holding grid g.
func (r Raster) Georeferenced(g *Grid) Raster {
	out := r
	out.Grid = g

	return out
}
