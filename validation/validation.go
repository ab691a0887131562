// Package validation runs a complete comparison of a classification raster
// against reference data and writes the difference map and the reports.
package validation

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"github.com/carbocation/rasterval/align"
	"github.com/carbocation/rasterval/config"
	"github.com/carbocation/rasterval/confusion"
	"github.com/carbocation/rasterval/metrics"
	"github.com/carbocation/rasterval/overlay"
	"github.com/carbocation/rasterval/raster"
	"github.com/carbocation/rasterval/report"
)

type Options struct {
	DataPath      string
	ReferencePath string

	// ExclusionPath is optional. Cells where the exclusion layer is 1 take no
	// part in the validation.
	ExclusionPath string

	Config config.JSONConfig

	// Client is only needed for gs:// paths.
	Client *storage.Client

	// Logger receives progress messages. nil discards them.
	Logger *log.Logger
}

// Measures is the outcome of a run. Paths of files that were not written
// are empty.
type Measures struct {
	Report metrics.Report
	Result confusion.Result

	DiffPath       string
	RasterizedPath string
	CSVPath        string
	JSONPath       string
	QuicklookPath  string
}

// Run loads the classification, the reference (rasterizing it if it is a
// vector layer) and the optional exclusion layer, classifies every cell,
// computes the metrics and writes the outputs into the configured directory.
func Run(ctx context.Context, opts Options) (Measures, error) {
	out := Measures{}
	cfg := opts.Config

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	// Reject unknown reference formats before touching any file
	kind, err := align.ReferenceKind(opts.ReferencePath)
	if err != nil {
		return out, err
	}

	if err := cfg.Validate(); err != nil {
		return out, pfx.Err(err)
	}
	copts, err := cfg.ConfusionOptions()
	if err != nil {
		return out, pfx.Err(err)
	}

	if err := os.MkdirAll(cfg.OutDir, 0o755); err != nil {
		return out, pfx.Err(err)
	}

	logger.Printf("Load classification result %s\n", opts.DataPath)
	data, err := raster.Read(ctx, opts.DataPath, opts.Client)
	if err != nil {
		return out, err
	}

	var mask *raster.Grid
	if opts.ExclusionPath != "" {
		logger.Printf("Load exclusion layer %s\n", opts.ExclusionPath)
		ex, err := raster.Read(ctx, opts.ExclusionPath, opts.Client)
		if err != nil {
			return out, err
		}
		if err := align.CheckLayerAligned("exclusion layer", data, ex); err != nil {
			return out, err
		}
		mask = ex.Grid
	}

	reference, err := loadReference(ctx, kind, opts, data, logger, &out)
	if err != nil {
		return out, err
	}

	if err := align.CheckAligned(data, reference); err != nil {
		return out, err
	}

	logger.Println("Start validation")
	started := time.Now()

	out.Result, err = confusion.Classify(data.Grid, reference.Grid, mask, copts)
	if err != nil {
		return out, err
	}
	logger.Printf("Confusion matrix [[TP FP] [FN TN]]: %s\n", out.Result.Counts)

	out.Report = metrics.Compute(filepath.Base(opts.ReferencePath), out.Result.Counts)
	logReport(logger, out.Report)

	if err := writeOutputs(cfg, data, &out); err != nil {
		return out, err
	}

	logger.Printf("End validation. Took %.2f seconds\n", time.Since(started).Seconds())

	return out, nil
}

func loadReference(ctx context.Context, kind align.Kind, opts Options, data raster.Raster, logger *log.Logger, out *Measures) (raster.Raster, error) {
	cfg := opts.Config

	if kind == align.KindRaster {
		logger.Printf("Load raster reference data %s\n", opts.ReferencePath)
		return raster.Read(ctx, opts.ReferencePath, opts.Client)
	}

	logger.Printf("Load and rasterize vector reference data %s\n", opts.ReferencePath)
	layer, err := align.ReadVector(ctx, opts.ReferencePath, opts.Client, align.VectorOptions{BurnAttribute: cfg.BurnAttribute})
	if err != nil {
		return raster.Raster{}, err
	}
	if layer.Skipped > 0 {
		logger.Printf("Skipped %d features without polygon geometry\n", layer.Skipped)
	}

	verified, err := align.CheckCRS(layer, data)
	if err != nil {
		return raster.Raster{}, err
	}
	if !verified {
		logger.Printf("Could not compare the coordinate systems of %s (%q) and the classification (%q). Assuming they agree.\n", layer.Name, layer.SpatialRef, data.SpatialRef)
	}

	reference, err := align.Rasterize(layer, data)
	if err != nil {
		return raster.Raster{}, err
	}

	burned := countNonZero(reference.Grid)
	logger.Printf("Done rasterizing %d features onto %d cells\n", len(layer.Features), burned)
	if burned == 0 && len(layer.Features) > 0 {
		logger.Printf("Warning: no feature of %s covers a cell centre of the classification grid. Check that both share a coordinate system.\n", layer.Name)
	}

	if path := cfg.OutPath(cfg.RasterizedFilename); path != "" {
		if err := raster.Write(path, reference); err != nil {
			return raster.Raster{}, err
		}

		if cfg.DeleteTmpFiles {
			if err := removeRaster(path); err != nil {
				return raster.Raster{}, err
			}
		} else {
			out.RasterizedPath = path
		}
	}

	return reference, nil
}

func writeOutputs(cfg config.JSONConfig, data raster.Raster, out *Measures) error {
	diff := data.Georeferenced(out.Result.Diff)
	diff.NoData, diff.HasNoData = confusion.Invalid, true

	out.DiffPath = cfg.OutPath(cfg.DiffFilename)
	if err := raster.Write(out.DiffPath, diff); err != nil {
		return err
	}

	if path := cfg.OutPath(cfg.CSVFilename); path != "" && !cfg.DisableCSV {
		if err := report.WriteCSVFile(path, out.Report); err != nil {
			return err
		}
		out.CSVPath = path
	}

	if path := cfg.OutPath(cfg.JSONFilename); path != "" {
		if err := report.WriteJSONFile(path, out.Report); err != nil {
			return err
		}
		out.JSONPath = path
	}

	if path := cfg.OutPath(cfg.QuicklookFilename); path != "" {
		labels := cfg.Labels
		if labels == nil {
			labels = overlay.DefaultLabelMap()
		}

		img, err := labels.Quicklook(out.Result.Diff, cfg.QuicklookScale, codeCounts(out.Result.Counts))
		if err != nil {
			return err
		}
		if err := overlay.Save(path, img); err != nil {
			return pfx.Err(err)
		}
		out.QuicklookPath = path
	}

	return nil
}

func countNonZero(g *raster.Grid) int {
	n := 0
	for _, v := range g.Data {
		if v != 0 {
			n++
		}
	}

	return n
}

func codeCounts(c confusion.Counts) map[int32]int64 {
	return map[int32]int64{
		confusion.FalseNegative: c.FN,
		confusion.TrueNegative:  c.TN,
		confusion.TruePositive:  c.TP,
		confusion.FalsePositive: c.FP,
		confusion.Invalid:       c.Invalid,
	}
}

// removeRaster deletes an image and the sidecars raster.Write creates.
func removeRaster(path string) error {
	for _, p := range []string{path, raster.WorldFileCandidates(path)[0], raster.PrjPath(path)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return pfx.Err(err)
		}
	}

	return nil
}

func logReport(logger *log.Logger, r metrics.Report) {
	for i, v := range r.Values() {
		logger.Printf("%s: %s\n", metrics.Columns[i+1], formatForLog(v.Valid, v.Float64))
	}
	logger.Printf("Penalization Function: %s\n", formatForLog(r.Penalization.Valid, r.Penalization.Float64))
}

func formatForLog(valid bool, v float64) string {
	if !valid {
		return "undefined"
	}

	return fmt.Sprintf("%f", v)
}
