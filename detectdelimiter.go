package rasterval

import (
	"io"

	"github.com/csimplestring/go-csv/detector"
)

// ManifestDelimiters are the separators a batch manifest may use, in order
// of preference when the detector finds several.
var ManifestDelimiters = []rune{'\t', ',', ';', '|'}

// DetermineDelimiter guesses the separator of a manifest. Characters that
// repeat on every line of a path list, such as '/' or '.', are never taken
// as the delimiter. Without a usable candidate the manifest is read as
// comma separated.
func DetermineDelimiter(r io.Reader) rune {
	d := detector.New()
	candidates := d.DetectDelimiter(r, '"')

	for _, want := range ManifestDelimiters {
		for _, c := range candidates {
			if len(c) == 1 && rune(c[0]) == want {
				return want
			}
		}
	}

	return ','
}
