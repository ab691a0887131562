package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/carbocation/rasterval/confusion"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	return path
}

func TestParseJSONConfigDefaults(t *testing.T) {
	cfg, err := ParseJSONConfigFromPath(writeConfig(t, `{"val_nodata": 254, "validity": "legacy"}`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.ValNoData != 254 || cfg.DataNoData != 255 {
		t.Errorf("nodata got %d / %d", cfg.DataNoData, cfg.ValNoData)
	}
	if cfg.DiffFilename != DefaultDiffFilename || cfg.CSVFilename != DefaultCSVFilename {
		t.Errorf("file names lost their defaults: %+v", cfg)
	}
	if len(cfg.Labels) != 5 {
		t.Errorf("%d labels, expected the 5 defaults", len(cfg.Labels))
	}

	opts, err := cfg.ConfusionOptions()
	if err != nil {
		t.Fatal(err)
	}
	if opts.Validity != confusion.ValidityLegacy {
		t.Errorf("validity got %v", opts.Validity)
	}
}

func TestParseJSONConfigLabels(t *testing.T) {
	cfg, err := ParseJSONConfigFromPath(writeConfig(t, `{
		"labels": {
			"Missed": {"id": 0, "color": "#FF0000"},
			"Dry": {"id": 1, "color": "#FFFFFF"},
			"Water": {"id": 2, "color": "#0000FF"},
			"False alarm": {"id": 3, "color": "#FFA500"},
			"No data": {"id": 255, "color": ""}
		}
	}`))
	if err != nil {
		t.Fatal(err)
	}

	if c := cfg.Labels["Water"].Color; c != "#0000ff" {
		t.Errorf("color was not lower cased: %s", c)
	}
}

func TestParseJSONConfigInvalid(t *testing.T) {
	for name, body := range map[string]string{
		"syntax":   `{"val_nodata": }`,
		"validity": `{"validity": "sometimes"}`,
		"scale":    `{"quicklook_scale": -2}`,
	} {
		if _, err := ParseJSONConfigFromPath(writeConfig(t, body)); err == nil {
			t.Errorf("%s: expected an error", name)
		}
	}
}

func TestOutPath(t *testing.T) {
	cfg := Default()
	cfg.OutDir = "/tmp/out"

	if p := cfg.OutPath("val.csv"); p != "/tmp/out/val.csv" {
		t.Errorf("got %s", p)
	}
	if p := cfg.OutPath(""); p != "" {
		t.Errorf("got %s", p)
	}
}
