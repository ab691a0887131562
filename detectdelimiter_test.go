package rasterval

import (
	"strings"
	"testing"
)

func TestDetermineDelimiter(t *testing.T) {
	for name, v := range map[string]struct {
		in   string
		want rune
	}{
		"tab": {
			"data\treference\texclusion\n" +
				"runs/a.tif\trefs/a.shp\tmasks/a.tif\n" +
				"runs/b.tif\trefs/b.shp\tmasks/b.tif\n",
			'\t',
		},
		"comma": {
			"data,reference\n" +
				"runs/a.tif,refs/a.shp\n" +
				"runs/b.tif,refs/b.shp\n",
			',',
		},
		"single column": {
			"data\nrun.tif\n",
			',',
		},
	} {
		if got := DetermineDelimiter(strings.NewReader(v.in)); got != v.want {
			t.Errorf("%s: got %q, expected %q", name, got, v.want)
		}
	}
}
