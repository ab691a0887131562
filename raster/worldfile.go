package raster

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"
)

var compressionSuffixes = []string{".gz", ".xz", ".zip", ".bz2", ".z"}

// TrimCompressionSuffix removes a trailing compression extension, so that
// "flood.tif.gz" is treated as "flood.tif".
func TrimCompressionSuffix(path string) string {
	lower := strings.ToLower(path)
	for _, suffix := range compressionSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return path[:len(path)-len(suffix)]
		}
	}

	return path
}

// Ext is the lower cased extension of path once any compression suffix has
// been removed.
func Ext(path string) string {
	return strings.ToLower(filepath.Ext(TrimCompressionSuffix(path)))
}

// WorldFileCandidates lists the sidecar names that may hold the world file
// for an image, most specific first. For "a.tif" that is "a.tfw", "a.tifw"
// and "a.wld".
func WorldFileCandidates(path string) []string {
	base := TrimCompressionSuffix(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	out := make([]string, 0, 3)
	if len(ext) >= 3 {
		short := "." + string(ext[1]) + string(ext[len(ext)-1]) + "w"
		out = append(out, stem+strings.ToLower(short))
	}
	if ext != "" {
		out = append(out, base+"w")
	}
	out = append(out, stem+".wld")

	return out
}

// PrjPath is the ESRI style spatial reference sidecar for an image.
func PrjPath(path string) string {
	base := TrimCompressionSuffix(path)
	return strings.TrimSuffix(base, filepath.Ext(base)) + ".prj"
}

// ParseWorldFile reads the six lines of a world file (A, D, B, E, C, F),
// which describe the centre of the upper left pixel, and converts them to a
// corner based GeoTransform.
func ParseWorldFile(r io.Reader) (GeoTransform, error) {
	var out GeoTransform

	values := make([]float64, 0, 6)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if len(values) == 6 {
			return out, fmt.Errorf("world file has more than 6 values")
		}

		v, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return out, fmt.Errorf("world file line %d: %w", len(values)+1, err)
		}
		values = append(values, v)
	}
	if err := scanner.Err(); err != nil {
		return out, err
	}
	if len(values) != 6 {
		return out, fmt.Errorf("world file has %d values, expected 6", len(values))
	}

	a, d, b, e, c, f := values[0], values[1], values[2], values[3], values[4], values[5]

	out = GeoTransform{
		c - a/2 - b/2,
		a,
		b,
		f - d/2 - e/2,
		d,
		e,
	}

	return out, nil
}

// WriteWorldFile is the inverse of ParseWorldFile.
func WriteWorldFile(w io.Writer, t GeoTransform) error {
	// Centre of the upper left pixel
	c, f := t.PixelToWorld(0.5, 0.5)

	for _, v := range []float64{t[1], t[4], t[2], t[5], c, f} {
		if _, err := fmt.Fprintln(w, strconv.FormatFloat(v, 'f', -1, 64)); err != nil {
			return err
		}
	}

	return nil
}
