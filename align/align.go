// Package align brings reference data onto the classification grid: it
// decides whether a reference file is raster or vector, checks that rasters
// line up, and rasterizes vector polygons onto a target grid.
package align

import (
	"errors"
	"fmt"

	"github.com/carbocation/rasterval/raster"
)

var (
	// ErrUnsupportedReferenceFormat is returned for reference files that are
	// neither a known vector nor a known raster type.
	ErrUnsupportedReferenceFormat = errors.New("unsupported reference format")

	// ErrGridMismatch is returned when two georeferenced rasters of the same
	// shape do not share a geotransform.
	ErrGridMismatch = errors.New("grid mismatch")

	// ErrNoGeoTransform is returned when vector data must be placed on a
	// grid whose georeferencing is unknown.
	ErrNoGeoTransform = errors.New("target raster has no geotransform")

	// ErrCRSMismatch is returned when vector data and the target grid are in
	// different coordinate systems. Vector data is not reprojected.
	ErrCRSMismatch = errors.New("coordinate system mismatch")

	ErrShapeMismatch = raster.ErrShapeMismatch
)

// Kind is the broad type of a reference file.
type Kind int

const (
	KindUnknown Kind = iota
	KindRaster
	KindVector
)

func (k Kind) String() string {
	switch k {
	case KindRaster:
		return "raster"
	case KindVector:
		return "vector"
	}

	return "unknown"
}

var kindByExtension = map[string]Kind{
	".tif":     KindRaster,
	".tiff":    KindRaster,
	".png":     KindRaster,
	".bmp":     KindRaster,
	".shp":     KindVector,
	".geojson": KindVector,
	".json":    KindVector,
}

// ReferenceKind classifies a reference path by its extension, ignoring a
// trailing compression suffix. It performs no IO.
func ReferenceKind(path string) (Kind, error) {
	ext := raster.Ext(path)
	if k, ok := kindByExtension[ext]; ok {
		return k, nil
	}

	return KindUnknown, fmt.Errorf("%w: input file with extension %q is not supported", ErrUnsupportedReferenceFormat, ext)
}

// GridTolerance is the relative tolerance used when comparing geotransforms.
const GridTolerance = 1e-9

// CheckAligned verifies that the reference can be compared cell for cell with
// the classification. Geotransforms are only compared when both are known.
func CheckAligned(data, reference raster.Raster) error {
	return CheckLayerAligned("reference", data, reference)
}

// CheckLayerAligned is CheckAligned for any named layer that must share the
// classification grid, such as the exclusion mask.
func CheckLayerAligned(name string, data, layer raster.Raster) error {
	if !data.SameShape(layer.Grid) {
		return fmt.Errorf("%w: classification is %s but %s is %s", ErrShapeMismatch, data.ShapeString(), name, layer.ShapeString())
	}

	if data.HasTransform && layer.HasTransform && !data.Transform.Equal(layer.Transform, GridTolerance) {
		return fmt.Errorf("%w: classification geotransform %v, %s geotransform %v", ErrGridMismatch, data.Transform, name, layer.Transform)
	}

	return nil
}

// CheckCRS compares the coordinate systems of a vector layer and the grid it
// will be burned onto. verified is false when either side is unknown or has
// no recognizable EPSG code, in which case the coordinates are assumed to
// agree.
func CheckCRS(layer Layer, target raster.Raster) (verified bool, err error) {
	if layer.SpatialRef == "" || target.SpatialRef == "" {
		return false, nil
	}
	if layer.SpatialRef == target.SpatialRef {
		return true, nil
	}

	vectorCode, ok1 := raster.EPSGCode(layer.SpatialRef)
	rasterCode, ok2 := raster.EPSGCode(target.SpatialRef)
	if !ok1 || !ok2 {
		return false, nil
	}

	if vectorCode != rasterCode {
		return true, fmt.Errorf("%w: %s is in EPSG:%d but the classification is in EPSG:%d", ErrCRSMismatch, layer.Name, vectorCode, rasterCode)
	}

	return true, nil
}
