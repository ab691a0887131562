package raster

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestWorldFileCandidates(t *testing.T) {
	got := WorldFileCandidates("/data/flood.tif.gz")
	expected := []string{"/data/flood.tfw", "/data/flood.tifw", "/data/flood.wld"}
	if len(got) != len(expected) {
		t.Fatalf("got %v, expected %v", got, expected)
	}
	for i := range got {
		if got[i] != expected[i] {
			t.Errorf("candidate %d: got %s, expected %s", i, got[i], expected[i])
		}
	}

	if p := PrjPath("/data/flood.png"); p != "/data/flood.prj" {
		t.Errorf("got %s", p)
	}
}

func TestParseWorldFile(t *testing.T) {
	// 10m pixels, upper left pixel centred at (500005, 4999995)
	wld := "10.0\n0.0\n0.0\n-10.0\n500005.0\n4999995.0\n"

	gt, err := ParseWorldFile(strings.NewReader(wld))
	if err != nil {
		t.Fatal(err)
	}

	expected := GeoTransform{500000, 10, 0, 5000000, 0, -10}
	if !gt.Equal(expected, 1e-12) {
		t.Errorf("got %v, expected %v", gt, expected)
	}

	x, y := gt.CellCenter(2, 3)
	if x != 500025 || y != 4999965 {
		t.Errorf("cell centre got (%f, %f)", x, y)
	}

	col, row, ok := gt.WorldToPixel(500025, 4999965)
	if !ok || math.Abs(col-2.5) > 1e-9 || math.Abs(row-3.5) > 1e-9 {
		t.Errorf("inverse got (%f, %f, %v)", col, row, ok)
	}
}

func TestParseWorldFileTooShort(t *testing.T) {
	if _, err := ParseWorldFile(strings.NewReader("1\n0\n0\n-1\n")); err == nil {
		t.Error("expected an error for a 4 line world file")
	}
}

func TestWriteReadTIFF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "diff.tif")

	g, err := GridFromRows([][]int32{
		{2, 1, 255},
		{0, 3, 1},
	})
	if err != nil {
		t.Fatal(err)
	}

	in := Raster{
		Grid:         g,
		Transform:    GeoTransform{100, 2, 0, 200, 0, -2},
		HasTransform: true,
		SpatialRef:   `PROJCS["WGS 84 / UTM zone 33N"]`,
	}
	if err := Write(path, in); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(filepath.Join(dir, "diff.tfw")); err != nil {
		t.Errorf("world file was not written: %v", err)
	}

	out, err := Read(context.Background(), path, nil)
	if err != nil {
		t.Fatal(err)
	}

	if !out.SameShape(in.Grid) {
		t.Fatalf("shape %s, expected %s", out.ShapeString(), in.ShapeString())
	}
	for i := range in.Data {
		if out.Data[i] != in.Data[i] {
			t.Errorf("cell %d: got %d, expected %d", i, out.Data[i], in.Data[i])
		}
	}
	if !out.HasTransform || !out.Transform.Equal(in.Transform, 1e-12) {
		t.Errorf("transform got %v (%v)", out.Transform, out.HasTransform)
	}
	if out.SpatialRef != in.SpatialRef {
		t.Errorf("spatial ref got %q", out.SpatialRef)
	}
}

func TestWriteRead16Bit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wide.png")

	g, _ := GridFromRows([][]int32{{0, 300}, {65535, 7}})
	if err := Write(path, Raster{Grid: g}); err != nil {
		t.Fatal(err)
	}

	out, err := Read(context.Background(), path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.HasTransform {
		t.Error("no world file was written, so no transform expected")
	}
	for i := range g.Data {
		if out.Data[i] != g.Data[i] {
			t.Errorf("cell %d: got %d, expected %d", i, out.Data[i], g.Data[i])
		}
	}
}

func TestImageFromGridRejectsNegative(t *testing.T) {
	g, _ := GridFromRows([][]int32{{-9999, 1}})
	if _, err := ImageFromGrid(g); err == nil {
		t.Error("expected an error for a negative value")
	}
}

func TestGridFromRowsRagged(t *testing.T) {
	if _, err := GridFromRows([][]int32{{1, 0}, {1}}); err == nil {
		t.Error("expected an error for ragged rows")
	}
}
