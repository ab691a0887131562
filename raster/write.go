package raster

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"os"

	"github.com/carbocation/pfx"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// Write saves r as a single band image, choosing the codec from the
// extension (.tif/.tiff, .png or .bmp). Values must be within [0, 65535];
// rasters whose values all fit in a byte are written as 8-bit gray. TIFFs
// carry the georeferencing and nodata value as GeoTIFF and GDAL tags. For
// every format a world file and .prj sidecar are written when the
// georeferencing is known.
func Write(path string, r Raster) error {
	img, err := ImageFromGrid(r.Grid)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	var buf bytes.Buffer
	if err := encodeImage(&buf, path, img); err != nil {
		return pfx.Err(fmt.Errorf("%s: %s", path, err))
	}

	encoded := buf.Bytes()
	if ext := Ext(path); ext == ".tif" || ext == ".tiff" {
		tags := GeoTags{
			Transform:    r.Transform,
			HasTransform: r.HasTransform,
			NoData:       r.NoData,
			HasNoData:    r.HasNoData,
		}
		tags.EPSG, _ = EPSGCode(r.SpatialRef)

		if encoded, err = EmbedGeoTags(encoded, tags); err != nil {
			return pfx.Err(fmt.Errorf("%s: %s", path, err))
		}
	}

	if err := os.WriteFile(path, encoded, 0o644); err != nil {
		return pfx.Err(err)
	}

	if r.HasTransform {
		if err := writeSidecar(WorldFileCandidates(path)[0], func(w io.Writer) error {
			return WriteWorldFile(w, r.Transform)
		}); err != nil {
			return err
		}
	}

	if r.SpatialRef != "" {
		if err := writeSidecar(PrjPath(path), func(w io.Writer) error {
			_, err := io.WriteString(w, r.SpatialRef)
			return err
		}); err != nil {
			return err
		}
	}

	return nil
}

func encodeImage(w io.Writer, path string, img image.Image) error {
	switch Ext(path) {
	case ".tif", ".tiff":
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	case ".png":
		return png.Encode(w, img)
	case ".bmp":
		return bmp.Encode(w, img)
	}

	return fmt.Errorf("no encoder for extension %q", Ext(path))
}

func writeSidecar(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return pfx.Err(err)
	}

	if err := write(f); err != nil {
		f.Close()
		return pfx.Err(err)
	}

	return pfx.Err(f.Close())
}

// ImageFromGrid converts a grid to an 8-bit or 16-bit gray image.
func ImageFromGrid(g *Grid) (image.Image, error) {
	var min, max int32 = 0, 0
	for _, v := range g.Data {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	if min < 0 || max > math.MaxUint16 {
		return nil, fmt.Errorf("%w: values span [%d, %d], which does not fit 16-bit gray", ErrUnsupportedPixelFormat, min, max)
	}

	rect := image.Rect(0, 0, g.Cols, g.Rows)

	if max <= math.MaxUint8 {
		img := image.NewGray(rect)
		for y := 0; y < g.Rows; y++ {
			for x := 0; x < g.Cols; x++ {
				img.Pix[y*img.Stride+x] = uint8(g.Data[y*g.Cols+x])
			}
		}
		return img, nil
	}

	img := image.NewGray16(rect)
	for y := 0; y < g.Rows; y++ {
		for x := 0; x < g.Cols; x++ {
			binary.BigEndian.PutUint16(img.Pix[y*img.Stride+2*x:], uint16(g.Data[y*g.Cols+x]))
		}
	}

	return img, nil
}
