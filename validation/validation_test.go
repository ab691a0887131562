package validation

import (
	"bytes"
	"context"
	"errors"
	"os"
	"log"
	"path/filepath"
	"strings"
	"testing"

	"github.com/carbocation/rasterval/align"
	"github.com/carbocation/rasterval/config"
	"github.com/carbocation/rasterval/confusion"
	"github.com/carbocation/rasterval/raster"
	"github.com/carbocation/rasterval/report"
)

// Upper left 2x2 block of a 4x4 grid of one unit cells.
const referenceGeoJSON = `{
  "type": "FeatureCollection",
  "features": [
    {
      "type": "Feature",
      "properties": {},
      "geometry": {"type": "Polygon", "coordinates": [[[0, 2], [2, 2], [2, 4], [0, 4], [0, 2]]]}
    }
  ]
}`

var classification = [][]int32{
	{1, 1, 0, 0},
	{1, 0, 0, 1},
	{0, 0, 0, 0},
	{0, 0, 255, 0},
}

var fixtureTransform = raster.GeoTransform{0, 1, 0, 4, 0, -1}

func writeGrid(t *testing.T, path string, rows [][]int32) {
	t.Helper()
	writeRaster(t, path, rows, fixtureTransform, `LOCAL_CS["grid"]`)
}

func writeRaster(t *testing.T, path string, rows [][]int32, transform raster.GeoTransform, srs string) {
	t.Helper()

	g, err := raster.GridFromRows(rows)
	if err != nil {
		t.Fatal(err)
	}

	r := raster.Raster{
		Grid:         g,
		Transform:    transform,
		HasTransform: true,
		SpatialRef:   srs,
	}
	if err := raster.Write(path, r); err != nil {
		t.Fatal(err)
	}
}

func fixture(t *testing.T) (dir string, opts Options) {
	t.Helper()

	dir = t.TempDir()

	writeGrid(t, filepath.Join(dir, "flood.tif"), classification)
	if err := os.WriteFile(filepath.Join(dir, "ref.geojson"), []byte(referenceGeoJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()
	cfg.OutDir = filepath.Join(dir, "out")

	return dir, Options{
		DataPath:      filepath.Join(dir, "flood.tif"),
		ReferencePath: filepath.Join(dir, "ref.geojson"),
		Config:        cfg,
	}
}

func TestRunVectorReference(t *testing.T) {
	_, opts := fixture(t)
	opts.Config.JSONFilename = "val.json"
	opts.Config.QuicklookFilename = "val.png"
	opts.Config.QuicklookScale = 4

	out, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}

	expected := confusion.Counts{TP: 3, TN: 10, FP: 1, FN: 1, Invalid: 1}
	if out.Result.Counts != expected {
		t.Errorf("counts %+v, expected %+v", out.Result.Counts, expected)
	}

	for _, path := range []string{out.DiffPath, out.RasterizedPath, out.CSVPath, out.JSONPath, out.QuicklookPath} {
		if path == "" {
			t.Fatal("an output was not written")
		}
		if _, err := os.Stat(path); err != nil {
			t.Error(err)
		}
	}

	diff, err := raster.Read(context.Background(), out.DiffPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !diff.HasTransform || diff.Transform != (raster.GeoTransform{0, 1, 0, 4, 0, -1}) {
		t.Errorf("difference map lost its georeferencing: %v", diff.Transform)
	}
	if !diff.HasNoData || diff.NoData != confusion.Invalid {
		t.Errorf("difference map nodata %d (%v), expected 255", diff.NoData, diff.HasNoData)
	}

	want := [][]int32{
		{2, 2, 1, 1},
		{2, 0, 1, 3},
		{1, 1, 1, 1},
		{1, 1, 255, 1},
	}
	for y, row := range want {
		for x, v := range row {
			if got := diff.At(y, x); got != v {
				t.Errorf("difference map (%d, %d): got %d, expected %d", y, x, got, v)
			}
		}
	}

	f, err := os.Open(out.CSVPath)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	reports, err := report.ReadCSV(f)
	if err != nil {
		t.Fatal(err)
	}
	if len(reports) != 1 {
		t.Fatalf("%d rows in the CSV report, expected 1", len(reports))
	}
	if reports[0].File != "ref.geojson" {
		t.Errorf("file column %q, expected ref.geojson", reports[0].File)
	}
	if reports[0].Accuracy.Float64 != out.Report.Accuracy.Float64 {
		t.Errorf("accuracy %v in CSV, %v in memory", reports[0].Accuracy, out.Report.Accuracy)
	}
}

func TestRunExclusionAndTmpFiles(t *testing.T) {
	dir, opts := fixture(t)

	writeGrid(t, filepath.Join(dir, "mask.tif"), [][]int32{
		{1, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	})
	opts.ExclusionPath = filepath.Join(dir, "mask.tif")
	opts.Config.DeleteTmpFiles = true
	opts.Config.DisableCSV = true

	out, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}

	expected := confusion.Counts{TP: 2, TN: 10, FP: 1, FN: 1, Invalid: 2}
	if out.Result.Counts != expected {
		t.Errorf("counts %+v, expected %+v", out.Result.Counts, expected)
	}
	if out.Result.Diff.At(0, 0) != confusion.Invalid {
		t.Errorf("excluded cell has code %d", out.Result.Diff.At(0, 0))
	}

	if out.RasterizedPath != "" || out.CSVPath != "" {
		t.Errorf("unexpected outputs %q and %q", out.RasterizedPath, out.CSVPath)
	}

	rasterized := opts.Config.OutPath(opts.Config.RasterizedFilename)
	for _, p := range []string{rasterized, raster.WorldFileCandidates(rasterized)[0], raster.PrjPath(rasterized)} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s should have been deleted", p)
		}
	}
	if _, err := os.Stat(opts.Config.OutPath(config.DefaultCSVFilename)); !os.IsNotExist(err) {
		t.Error("CSV report written although disabled")
	}
}

func TestRunUnsupportedReference(t *testing.T) {
	_, opts := fixture(t)
	opts.ReferencePath = "ref.kml"

	_, err := Run(context.Background(), opts)
	if !errors.Is(err, align.ErrUnsupportedReferenceFormat) {
		t.Fatalf("got %v, expected an unsupported reference error", err)
	}

	if _, err := os.Stat(opts.Config.OutDir); !os.IsNotExist(err) {
		t.Error("output directory created for a rejected run")
	}
}

func TestRunRasterReferenceShapeMismatch(t *testing.T) {
	dir, opts := fixture(t)

	writeGrid(t, filepath.Join(dir, "ref.tif"), [][]int32{
		{0, 1, 0},
		{1, 0, 1},
	})
	opts.ReferencePath = filepath.Join(dir, "ref.tif")

	if _, err := Run(context.Background(), opts); !errors.Is(err, confusion.ErrShapeMismatch) {
		t.Fatalf("got %v, expected a shape mismatch", err)
	}
}

func TestRunRasterReference(t *testing.T) {
	dir, opts := fixture(t)

	// Same as classification: perfect agreement
	writeGrid(t, filepath.Join(dir, "ref.tif"), classification)
	opts.ReferencePath = filepath.Join(dir, "ref.tif")

	out, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}

	if out.Report.Accuracy.Float64 != 1 || out.Report.Kappa.Float64 != 1 {
		t.Errorf("accuracy %v kappa %v, expected 1 and 1", out.Report.Accuracy, out.Report.Kappa)
	}
	if out.RasterizedPath != "" {
		t.Errorf("raster reference should not be rasterized, got %s", out.RasterizedPath)
	}
}

func TestRunExclusionGridMismatch(t *testing.T) {
	dir, opts := fixture(t)

	// Same shape, shifted one cell north
	shifted := fixtureTransform
	shifted[3]++
	writeRaster(t, filepath.Join(dir, "mask.tif"), [][]int32{
		{1, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
		{0, 0, 0, 0},
	}, shifted, `LOCAL_CS["grid"]`)
	opts.ExclusionPath = filepath.Join(dir, "mask.tif")

	if _, err := Run(context.Background(), opts); !errors.Is(err, align.ErrGridMismatch) {
		t.Fatalf("got %v, expected a grid mismatch", err)
	}
}

func TestRunVectorCRSMismatch(t *testing.T) {
	dir, opts := fixture(t)

	// GeoJSON without a crs member is lon/lat
	writeRaster(t, filepath.Join(dir, "flood.tif"), classification, raster.GeoTransform{500000, 10, 0, 5000000, 0, -10}, "EPSG:32633")

	if _, err := Run(context.Background(), opts); !errors.Is(err, align.ErrCRSMismatch) {
		t.Fatalf("got %v, expected a coordinate system mismatch", err)
	}
}

func TestRunVectorNothingBurnedWarns(t *testing.T) {
	dir, opts := fixture(t)

	far := strings.NewReplacer("[0, 2]", "[1000, 1002]", "[2, 2]", "[1002, 1002]", "[2, 4]", "[1002, 1004]", "[0, 4]", "[1000, 1004]").Replace(referenceGeoJSON)
	if err := os.WriteFile(filepath.Join(dir, "ref.geojson"), []byte(far), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	opts.Logger = log.New(&buf, "", 0)

	out, err := Run(context.Background(), opts)
	if err != nil {
		t.Fatal(err)
	}

	if out.Result.Counts.TP+out.Result.Counts.FN != 0 {
		t.Errorf("reference should be empty, got %+v", out.Result.Counts)
	}
	for _, want := range []string{"Could not compare the coordinate systems", "Warning: no feature"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("log does not contain %q:\n%s", want, buf.String())
		}
	}
}
