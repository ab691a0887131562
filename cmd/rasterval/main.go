// rasterval compares a binary classification raster with raster or vector
// reference data. It writes a difference map (0=FN, 1=TN, 2=TP, 3=FP,
// 255=invalid) and a CSV report of accuracy statistics. With -manifest, many
// validations are run concurrently and their reports are also combined into
// one CSV.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"github.com/carbocation/rasterval"
	_ "github.com/carbocation/rasterval/compileinfoprint"
	"github.com/carbocation/rasterval/config"
	"github.com/carbocation/rasterval/metrics"
	"github.com/carbocation/rasterval/report"
	"github.com/carbocation/rasterval/validation"
)

func init() {
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s -data flood.tif -reference reference.shp [-exclusion mask.tif]\n", os.Args[0])
		fmt.Fprintf(flag.CommandLine.Output(), "   or: %s -manifest manifest.tsv\n", os.Args[0])
		flag.PrintDefaults()

		log.Println("Example JSONConfig file layout:")
		bts, err := json.MarshalIndent(config.Default(), "", "  ")
		if err == nil {
			log.Println(string(bts))
		}
	}
}

// Safe for concurrent use by multiple goroutines
var client *storage.Client

type flags struct {
	data, reference, exclusion string
	configPath, manifest       string
	combined                   string
	concurrency                int

	outDir, validity, burnAttribute string
	csvName, jsonName, quicklook    string
	dataNoData, valNoData           int
	quicklookScale                  int
	disableCSV, deleteTmpFiles      bool
}

func main() {
	fmt.Fprintf(os.Stderr, "%q\n", os.Args)

	f := flags{}
	flag.StringVar(&f.data, "data", "", "Path to the binary classification raster (0, 1 and nodata)")
	flag.StringVar(&f.reference, "reference", "", "Path to the reference data: raster (.tif, .png, .bmp) or vector (.shp, .geojson, .json)")
	flag.StringVar(&f.exclusion, "exclusion", "", "(Optional) Path to an exclusion raster. Cells with value 1 are left out of the validation.")
	flag.StringVar(&f.configPath, "config", "", "(Optional) JSONConfig file. Flags that are set explicitly override its values.")
	flag.StringVar(&f.manifest, "manifest", "", "(Optional) CSV or TSV with columns data, reference, exclusion and out_dir. Overrides -data, -reference and -exclusion.")
	flag.StringVar(&f.combined, "combined", "", "(Optional, with -manifest) Path of the CSV combining the reports of all rows. Defaults to combined.csv in -out_dir.")
	flag.IntVar(&f.concurrency, "concurrency", runtime.NumCPU(), "(With -manifest) Number of validations to run at once")
	flag.StringVar(&f.outDir, "out_dir", "", "Directory for the outputs")
	flag.StringVar(&f.validity, "validity", "", "Validity rule: 'configured' honors the nodata values, 'legacy' always treats 255 as nodata")
	flag.StringVar(&f.burnAttribute, "burn_attribute", "", "(Optional) Vector attribute holding the value to burn. Defaults to burning 1.")
	flag.StringVar(&f.csvName, "csv", "", "File name of the CSV report inside -out_dir")
	flag.StringVar(&f.jsonName, "json", "", "(Optional) File name of a JSON report inside -out_dir")
	flag.StringVar(&f.quicklook, "quicklook", "", "(Optional) File name of a PNG rendering of the difference map inside -out_dir")
	flag.IntVar(&f.dataNoData, "data_nodata", 0, "Nodata value of the classification")
	flag.IntVar(&f.valNoData, "val_nodata", 0, "Nodata value of the reference")
	flag.IntVar(&f.quicklookScale, "quicklook_scale", 0, "Integer upscaling factor of the quicklook")
	flag.BoolVar(&f.disableCSV, "disable_csv", false, "Do not write the per-run CSV report")
	flag.BoolVar(&f.deleteTmpFiles, "delete_tmp_files", false, "Delete the rasterized vector reference after use")
	flag.Parse()

	if f.manifest == "" && (f.data == "" || f.reference == "") {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := loadConfig(f)
	if err != nil {
		log.Fatalln(err)
	}

	started := time.Now()
	log.Println("Started rasterval")
	defer func() {
		log.Printf("Completed rasterval in %s\n", time.Since(started))
	}()

	if f.manifest != "" {
		if err := runManifest(cfg, f); err != nil {
			log.Fatalln(err)
		}
		return
	}

	if err := initClient(f.data, f.reference, f.exclusion); err != nil {
		log.Fatalln(err)
	}

	if _, err := validation.Run(context.Background(), validation.Options{
		DataPath:      f.data,
		ReferencePath: f.reference,
		ExclusionPath: f.exclusion,
		Config:        cfg,
		Client:        client,
		Logger:        log.Default(),
	}); err != nil {
		log.Fatalln(err)
	}
}

// loadConfig starts from the config file (or the defaults) and applies the
// flags the user set explicitly.
func loadConfig(f flags) (config.JSONConfig, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		cfg, err = config.ParseJSONConfigFromPath(f.configPath)
		if err != nil {
			return cfg, err
		}
	}

	flag.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "out_dir":
			cfg.OutDir = f.outDir
		case "validity":
			cfg.Validity = f.validity
		case "burn_attribute":
			cfg.BurnAttribute = f.burnAttribute
		case "csv":
			cfg.CSVFilename = f.csvName
		case "json":
			cfg.JSONFilename = f.jsonName
		case "quicklook":
			cfg.QuicklookFilename = f.quicklook
		case "quicklook_scale":
			cfg.QuicklookScale = f.quicklookScale
		case "data_nodata":
			cfg.DataNoData = int32(f.dataNoData)
		case "val_nodata":
			cfg.ValNoData = int32(f.valNoData)
		case "disable_csv":
			cfg.DisableCSV = f.disableCSV
		case "delete_tmp_files":
			cfg.DeleteTmpFiles = f.deleteTmpFiles
		}
	})

	return cfg, cfg.Validate()
}

// initClient creates the Google Storage client only if we're pointing to
// Google Storage paths.
func initClient(paths ...string) error {
	if client != nil {
		return nil
	}

	for _, path := range paths {
		if !rasterval.IsGoogleStoragePath(path) {
			continue
		}

		var err error
		client, err = storage.NewClient(context.Background())
		return err
	}

	return nil
}

func runManifest(cfg config.JSONConfig, f flags) error {
	if err := initClient(f.manifest); err != nil {
		return err
	}

	rows, err := loadManifest(context.Background(), f.manifest, client, cfg.OutDir)
	if err != nil {
		return err
	}
	log.Printf("Loaded %d validations from %s\n", len(rows), f.manifest)

	for _, row := range rows {
		if err := initClient(row.paths()...); err != nil {
			return err
		}
	}

	reports, failed := runRows(context.Background(), cfg, rows, f.concurrency)

	combined := f.combined
	if combined == "" {
		combined = filepath.Join(cfg.OutDir, "combined.csv")
	}
	if err := os.MkdirAll(filepath.Dir(combined), 0o755); err != nil {
		return err
	}

	succeeded := make([]metrics.Report, 0, len(reports))
	for i, r := range reports {
		if failed[i] == nil {
			succeeded = append(succeeded, r)
		}
	}
	if err := report.WriteCSVFile(combined, succeeded...); err != nil {
		return err
	}
	log.Printf("Wrote %d reports to %s\n", len(succeeded), combined)

	nFailed := len(rows) - len(succeeded)
	if nFailed > 0 {
		return fmt.Errorf("%d of %d validations failed", nFailed, len(rows))
	}

	return nil
}

// runRows validates every row, at most concurrency at a time. Result i
// belongs to row i; each goroutine only writes its own index.
func runRows(ctx context.Context, cfg config.JSONConfig, rows []ManifestRow, concurrency int) ([]metrics.Report, []error) {
	if concurrency < 1 {
		concurrency = 1
	}

	reports := make([]metrics.Report, len(rows))
	failed := make([]error, len(rows))

	sem := make(chan bool, concurrency)

	for i, row := range rows {
		sem <- true
		go func(i int, row ManifestRow) {
			defer func() { <-sem }()

			rowCfg := cfg
			rowCfg.OutDir = row.outDir(cfg.OutDir)

			logger := log.New(os.Stderr, fmt.Sprintf("[%s] ", filepath.Base(row.Data)), log.LstdFlags)

			// The main purpose of this loop is to handle a specific
			// filesystem error (input/output error) that largely happens with
			// GCSFuse, and retry a few times before giving up.
			for loadAttempts, maxLoadAttempts := 1, 5; loadAttempts <= maxLoadAttempts; loadAttempts++ {
				out, err := validation.Run(ctx, validation.Options{
					DataPath:      row.Data,
					ReferencePath: row.Reference,
					ExclusionPath: row.Exclusion,
					Config:        rowCfg,
					Client:        client,
					Logger:        logger,
				})

				if err != nil && loadAttempts < maxLoadAttempts && strings.Contains(err.Error(), "input/output error") {
					logger.Println("Sleeping 5s to recover from", err.Error(), ". Attempt #", loadAttempts)
					time.Sleep(5 * time.Second)
					continue
				} else if err != nil {
					logger.Println(err)
					failed[i] = err
					break
				}

				reports[i] = out.Report
				break
			}
		}(i, row)

		if (i+1)%100 == 0 {
			log.Printf("Started %d validations\n", i+1)
		}
	}

	for i := 0; i < cap(sem); i++ {
		sem <- true
	}

	return reports, failed
}
