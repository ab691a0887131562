package raster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"math"
	"strings"

	_ "image/gif"
	_ "image/jpeg"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"github.com/carbocation/rasterval"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// ErrUnsupportedPixelFormat is returned for images whose pixels cannot be
// read as a single band of integer codes.
var ErrUnsupportedPixelFormat = errors.New("unsupported pixel format")

// Read loads a single band raster from a local path or a gs:// URL. The file
// may be compressed. Georeferencing comes from the GeoTIFF tags of a TIFF,
// else from a world file next to the image; the coordinate system from a .prj
// file, else from the GeoTIFF EPSG code. Fully transparent pixels read as
// DefaultNoData.
func Read(ctx context.Context, path string, client *storage.Client) (Raster, error) {
	out := Raster{}

	imgBytes, err := rasterval.ReadAllMaybeCompressed(ctx, path, client)
	if err != nil {
		return out, pfx.Err(err)
	}

	img, err := decodeImage(path, imgBytes)
	if err != nil {
		return out, pfx.Err(fmt.Errorf("%s: %s", path, err))
	}

	var transparent bool
	out.Grid, transparent, err = gridFromImage(img)
	if err != nil {
		return out, fmt.Errorf("%s: %w", path, err)
	}
	if transparent {
		out.NoData, out.HasNoData = DefaultNoData, true
	}

	var tags GeoTags
	if ext := Ext(path); ext == ".tif" || ext == ".tiff" {
		tags, err = ReadGeoTags(imgBytes)
		if err != nil {
			return out, pfx.Err(fmt.Errorf("%s: %s", path, err))
		}
	}

	if tags.HasTransform {
		out.Transform, out.HasTransform = tags.Transform, true
	} else {
		out.Transform, out.HasTransform, err = readWorldFile(ctx, path, client)
		if err != nil {
			return out, pfx.Err(err)
		}
	}

	if tags.HasNoData {
		out.NoData, out.HasNoData = tags.NoData, true
	}

	prj, err := rasterval.ReadAllMaybeCompressed(ctx, PrjPath(path), client)
	if err != nil && !rasterval.IsNotExist(err) {
		return out, pfx.Err(err)
	} else if err == nil {
		out.SpatialRef = strings.TrimSpace(string(prj))
	} else if tags.EPSG > 0 {
		out.SpatialRef = EPSGSpatialRef(tags.EPSG)
	}

	return out, nil
}

func decodeImage(path string, imgBytes []byte) (image.Image, error) {
	r := bytes.NewReader(imgBytes)

	switch Ext(path) {
	case ".tif", ".tiff":
		return tiff.Decode(r)
	case ".png":
		return png.Decode(r)
	case ".bmp":
		return bmp.Decode(r)
	}

	// Fall back on whichever registered decoder recognizes the header
	img, _, err := image.Decode(r)
	return img, err
}

func readWorldFile(ctx context.Context, path string, client *storage.Client) (GeoTransform, bool, error) {
	for _, candidate := range WorldFileCandidates(path) {
		wld, err := rasterval.ReadAllMaybeCompressed(ctx, candidate, client)
		if rasterval.IsNotExist(err) {
			continue
		} else if err != nil {
			return GeoTransform{}, false, err
		}

		t, err := ParseWorldFile(bytes.NewReader(wld))
		if err != nil {
			return GeoTransform{}, false, fmt.Errorf("%s: %w", candidate, err)
		}

		return t, true, nil
	}

	return GeoTransform{}, false, nil
}

// GridFromImage extracts integer codes from a decoded image. Gray and paletted
// images map directly; other color models are accepted when every pixel is a
// gray level (R == G == B), the way label images encode ID 1 as #010101.
// Fully transparent pixels become DefaultNoData.
func GridFromImage(img image.Image) (*Grid, error) {
	g, _, err := gridFromImage(img)
	return g, err
}

func gridFromImage(img image.Image) (*Grid, bool, error) {
	b := img.Bounds()
	g := NewGrid(b.Dy(), b.Dx())
	transparent := false

	switch src := img.(type) {
	case *image.Gray:
		for y := 0; y < g.Rows; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+g.Cols]
			for x, v := range row {
				g.Data[y*g.Cols+x] = int32(v)
			}
		}
	case *image.Gray16:
		for y := 0; y < g.Rows; y++ {
			for x := 0; x < g.Cols; x++ {
				g.Data[y*g.Cols+x] = int32(src.Gray16At(b.Min.X+x, b.Min.Y+y).Y)
			}
		}
	case *image.Paletted:
		for y := 0; y < g.Rows; y++ {
			row := src.Pix[y*src.Stride : y*src.Stride+g.Cols]
			for x, v := range row {
				g.Data[y*g.Cols+x] = int32(v)
			}
		}
	default:
		for y := 0; y < g.Rows; y++ {
			for x := 0; x < g.Cols; x++ {
				pr, pg, pb, a := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
				if a == 0 {
					g.Data[y*g.Cols+x] = DefaultNoData
					transparent = true
					continue
				}
				if pr != pg || pg != pb {
					return nil, false, fmt.Errorf("%w: %T pixel (%d, %d) has R, G, B = %d, %d, %d", ErrUnsupportedPixelFormat, img, x, y, pr, pg, pb)
				}

				// Channels are alpha-premultiplied
				g.Data[y*g.Cols+x] = int32(math.Round(255 * float64(pr) / float64(a)))
			}
		}
	}

	return g, transparent, nil
}
