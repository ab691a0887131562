// Package config holds the settings of a validation run, read from an
// optional JSON file.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/carbocation/rasterval/confusion"
	"github.com/carbocation/rasterval/overlay"
	"github.com/carbocation/rasterval/raster"
)

// Output file names used when the configuration leaves them empty.
const (
	DefaultDiffFilename       = "val.tif"
	DefaultRasterizedFilename = "rasterized_val.tif"
	DefaultCSVFilename        = "val.csv"
)

type JSONConfig struct {
	ConfigPath string `json:"-"`

	DataNoData int32  `json:"data_nodata"`
	ValNoData  int32  `json:"val_nodata"`
	Validity   string `json:"validity"`

	OutDir             string `json:"out_dir"`
	DiffFilename       string `json:"diff_filename"`
	RasterizedFilename string `json:"rasterized_filename"`
	CSVFilename        string `json:"csv_filename"`
	JSONFilename       string `json:"json_filename"`
	QuicklookFilename  string `json:"quicklook_filename"`
	QuicklookScale     int    `json:"quicklook_scale"`
	DisableCSV         bool   `json:"disable_csv"`
	DeleteTmpFiles     bool   `json:"delete_tmp_files"`

	BurnAttribute string           `json:"burn_attribute"`
	Labels        overlay.LabelMap `json:"labels"`
}

// Default returns the configuration used without a config file.
func Default() JSONConfig {
	return JSONConfig{
		DataNoData:         raster.DefaultNoData,
		ValNoData:          raster.DefaultNoData,
		Validity:           confusion.ValidityConfigured.String(),
		OutDir:             ".",
		DiffFilename:       DefaultDiffFilename,
		RasterizedFilename: DefaultRasterizedFilename,
		CSVFilename:        DefaultCSVFilename,
		QuicklookScale:     1,
		Labels:             overlay.DefaultLabelMap(),
	}
}

// ParseJSONConfigFromPath reads a JSON config file. Keys that are absent keep
// their Default() values.
func ParseJSONConfigFromPath(path string) (JSONConfig, error) {
	out := Default()
	out.ConfigPath = path

	f, err := os.Open(expandHomeDir(path))
	if err != nil {
		return out, pfx.Err(err)
	}
	defer f.Close()

	// Decoding into a fresh map keeps the defaults unless the file sets
	// labels explicitly.
	out.Labels = nil

	err = json.NewDecoder(f).Decode(&out)
	if err != nil {
		if e, ok := err.(*json.SyntaxError); ok {
			log.Printf("syntax error at byte offset %d", e.Offset)
		}

		return out, pfx.Err(err)
	}

	if out.Labels == nil {
		out.Labels = overlay.DefaultLabelMap()
	}

	// Internally, go uses lower case for all colors, so we will too (while
	// permitting the user to use mixed case)
	for k, v := range out.Labels {
		v.Color = strings.ToLower(v.Color)
		out.Labels[k] = v
	}

	// Interpret ~ if present
	out.OutDir = expandHomeDir(out.OutDir)

	return out, pfx.Err(out.Validate())
}

// Validate checks the values that cannot be caught by JSON decoding.
func (c JSONConfig) Validate() error {
	if _, err := confusion.ParseValidityMode(c.Validity); err != nil {
		return err
	}
	if c.QuicklookScale < 0 {
		return fmt.Errorf("quicklook_scale must not be negative, got %d", c.QuicklookScale)
	}
	if c.DiffFilename == "" {
		return fmt.Errorf("diff_filename must be set")
	}

	return c.Labels.Valid()
}

// ConfusionOptions converts the nodata and validity settings.
func (c JSONConfig) ConfusionOptions() (confusion.Options, error) {
	mode, err := confusion.ParseValidityMode(c.Validity)
	if err != nil {
		return confusion.Options{}, err
	}

	return confusion.Options{
		DataNoData: c.DataNoData,
		ValNoData:  c.ValNoData,
		Validity:   mode,
	}, nil
}

// OutPath joins a file name onto the output directory. An empty name stays
// empty, meaning "do not write".
func (c JSONConfig) OutPath(name string) string {
	if name == "" {
		return ""
	}

	return filepath.Join(c.OutDir, name)
}

// Via https://stackoverflow.com/a/17617721/199475
func expandHomeDir(path string) string {

	usr, err := user.Current()
	if err != nil {
		return path
	}

	dir := usr.HomeDir

	if path == "~" {
		// In case of "~", which won't be caught by the "else if"
		path = dir
	} else if strings.HasPrefix(path, "~/") {
		// Use strings.HasPrefix so we don't match paths like
		// "/something/~/something/"
		path = filepath.Join(dir, path[2:])
	}

	return path
}
