package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"github.com/carbocation/rasterval"
	"github.com/carbocation/rasterval/raster"
	"github.com/gocarina/gocsv"
)

// ManifestRow is one validation of a batch. Exclusion and OutDir may be
// empty.
type ManifestRow struct {
	Data      string `csv:"data"`
	Reference string `csv:"reference"`
	Exclusion string `csv:"exclusion"`
	OutDir    string `csv:"out_dir"`
}

// loadManifest reads a manifest whose rows write below root unless they name
// their own out_dir.
func loadManifest(ctx context.Context, path string, client *storage.Client, root string) ([]ManifestRow, error) {
	b, err := rasterval.ReadAllMaybeCompressed(ctx, path, client)
	if err != nil {
		return nil, err
	}

	delim := rasterval.DetermineDelimiter(bytes.NewReader(b))

	rows, err := parseManifest(b, delim, root)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return rows, nil
}

func parseManifest(b []byte, delim rune, root string) ([]ManifestRow, error) {
	r := csv.NewReader(bytes.NewReader(b))
	r.Comma = delim
	r.LazyQuotes = true

	var rows []ManifestRow
	if err := gocsv.UnmarshalCSV(r, &rows); err != nil {
		return nil, pfx.Err(err)
	}

	// Rows run concurrently, so two rows sharing a directory would overwrite
	// each other's outputs
	lineByDir := make(map[string]int, len(rows))
	for i, row := range rows {
		line := i + 2
		if row.Data == "" || row.Reference == "" {
			return nil, fmt.Errorf("manifest line %d: both data and reference are required", line)
		}

		dir := filepath.Clean(row.outDir(root))
		if prev, exists := lineByDir[dir]; exists {
			return nil, fmt.Errorf("manifest lines %d and %d both write to %s; set distinct out_dir values", prev, line, dir)
		}
		lineByDir[dir] = line
	}

	return rows, nil
}

// outDir is where the row's outputs go. Without an explicit directory each
// row gets a subdirectory of root named after its classification file, so
// rows do not overwrite each other's val.tif.
func (row ManifestRow) outDir(root string) string {
	if row.OutDir != "" {
		return row.OutDir
	}

	base := filepath.Base(raster.TrimCompressionSuffix(row.Data))
	return filepath.Join(root, strings.TrimSuffix(base, filepath.Ext(base)))
}

// paths lists every input of the row.
func (row ManifestRow) paths() []string {
	out := []string{row.Data, row.Reference}
	if row.Exclusion != "" {
		out = append(out, row.Exclusion)
	}

	return out
}
