package align

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/pfx"
	"github.com/carbocation/rasterval"
	"github.com/carbocation/rasterval/raster"
	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// DefaultBurnValue is written into cells covered by a polygon when no burn
// attribute is configured.
const DefaultBurnValue int32 = 1

// Feature is a polygonal area. A point is inside the feature when it falls
// inside an odd number of its rings, so holes and multi-part polygons need
// no special handling.
type Feature struct {
	Rings []orb.Ring
	Bound orb.Bound
	Burn  int32
}

// Contains reports whether the point is inside the feature.
func (f Feature) Contains(p orb.Point) bool {
	if !f.Bound.Contains(p) {
		return false
	}

	inside := false
	for _, r := range f.Rings {
		if planar.RingContains(r, p) {
			inside = !inside
		}
	}

	return inside
}

// Layer is the set of polygonal features read from a vector file.
type Layer struct {
	Name     string
	Features []Feature

	// Skipped counts features without polygonal geometry.
	Skipped int

	// SpatialRef is the coordinate system of the features: the .prj of a
	// Shapefile, or the crs member of a GeoJSON, which defaults to WGS 84.
	SpatialRef string
}

// GeoJSONDefaultCRS applies to GeoJSON without a crs member (RFC 7946).
const GeoJSONDefaultCRS = "EPSG:4326"

type VectorOptions struct {
	// BurnAttribute names an integer attribute holding the value to burn.
	// When empty every feature burns DefaultBurnValue.
	BurnAttribute string
}

// ReadVector loads a GeoJSON (local or gs://) or a local Shapefile.
func ReadVector(ctx context.Context, path string, client *storage.Client, opts VectorOptions) (Layer, error) {
	switch raster.Ext(path) {
	case ".geojson", ".json":
		data, err := rasterval.ReadAllMaybeCompressed(ctx, path, client)
		if err != nil {
			return Layer{}, pfx.Err(err)
		}
		layer, err := ParseGeoJSON(data, opts)
		layer.Name = filepath.Base(path)
		return layer, err
	case ".shp":
		if rasterval.IsGoogleStoragePath(path) {
			return Layer{}, fmt.Errorf("%w: shapefiles must be local, got %s", ErrUnsupportedReferenceFormat, path)
		}
		return ReadShapefile(path, opts)
	}

	return Layer{}, fmt.Errorf("%w: %s is not a vector file", ErrUnsupportedReferenceFormat, path)
}

// ParseGeoJSON reads the polygons of a GeoJSON FeatureCollection.
func ParseGeoJSON(data []byte, opts VectorOptions) (Layer, error) {
	out := Layer{}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return out, pfx.Err(err)
	}

	out.SpatialRef, err = geoJSONCRS(data)
	if err != nil {
		return out, pfx.Err(err)
	}

	for i, f := range fc.Features {
		rings := polygonRings(f.Geometry)
		if len(rings) == 0 {
			out.Skipped++
			continue
		}

		burn := DefaultBurnValue
		if opts.BurnAttribute != "" {
			burn, err = burnFromProperty(f.Properties[opts.BurnAttribute])
			if err != nil {
				return out, fmt.Errorf("feature %d, attribute %q: %w", i, opts.BurnAttribute, err)
			}
		}

		out.Features = append(out.Features, newFeature(rings, burn))
	}

	return out, nil
}

// ReadShapefile reads the polygons of an ESRI Shapefile. The .dbf must be
// present when a burn attribute is configured.
func ReadShapefile(path string, opts VectorOptions) (Layer, error) {
	out := Layer{Name: filepath.Base(path)}

	reader, err := shp.Open(path)
	if err != nil {
		return out, pfx.Err(err)
	}
	defer reader.Close()

	prj, err := os.ReadFile(raster.PrjPath(path))
	if err != nil && !os.IsNotExist(err) {
		return out, pfx.Err(err)
	}
	out.SpatialRef = strings.TrimSpace(string(prj))

	burnField := -1
	if opts.BurnAttribute != "" {
		for i, field := range reader.Fields() {
			if strings.EqualFold(field.String(), opts.BurnAttribute) {
				burnField = i
				break
			}
		}
		if burnField < 0 {
			return out, fmt.Errorf("%s: no attribute named %q", path, opts.BurnAttribute)
		}
	}

	for reader.Next() {
		n, shape := reader.Shape()

		var parts []int32
		var points []shp.Point
		switch p := shape.(type) {
		case *shp.Polygon:
			parts, points = p.Parts, p.Points
		case *shp.PolygonZ:
			parts, points = p.Parts, p.Points
		case *shp.PolygonM:
			parts, points = p.Parts, p.Points
		default:
			out.Skipped++
			continue
		}

		rings := shapefileRings(parts, points)
		if len(rings) == 0 {
			out.Skipped++
			continue
		}

		burn := DefaultBurnValue
		if burnField >= 0 {
			burn, err = burnFromProperty(strings.TrimSpace(reader.ReadAttribute(n, burnField)))
			if err != nil {
				return out, fmt.Errorf("%s: shape %d: %w", path, n, err)
			}
		}

		out.Features = append(out.Features, newFeature(rings, burn))
	}

	return out, nil
}

// geoJSONCRS reads the pre-RFC 7946 "crs" member, e.g.
// {"type": "name", "properties": {"name": "urn:ogc:def:crs:EPSG::32633"}}.
func geoJSONCRS(data []byte) (string, error) {
	var doc struct {
		CRS *struct {
			Type       string `json:"type"`
			Properties struct {
				Name string `json:"name"`
			} `json:"properties"`
		} `json:"crs"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return "", err
	}

	if doc.CRS == nil || doc.CRS.Properties.Name == "" {
		return GeoJSONDefaultCRS, nil
	}

	return doc.CRS.Properties.Name, nil
}

func newFeature(rings []orb.Ring, burn int32) Feature {
	bound := rings[0].Bound()
	for _, r := range rings[1:] {
		bound = bound.Union(r.Bound())
	}

	return Feature{Rings: rings, Bound: bound, Burn: burn}
}

func polygonRings(g orb.Geometry) []orb.Ring {
	switch v := g.(type) {
	case orb.Polygon:
		return []orb.Ring(v)
	case orb.MultiPolygon:
		var out []orb.Ring
		for _, p := range v {
			out = append(out, p...)
		}
		return out
	case orb.Collection:
		var out []orb.Ring
		for _, member := range v {
			out = append(out, polygonRings(member)...)
		}
		return out
	}

	return nil
}

func shapefileRings(parts []int32, points []shp.Point) []orb.Ring {
	var out []orb.Ring
	for i, start := range parts {
		end := int32(len(points))
		if i+1 < len(parts) {
			end = parts[i+1]
		}
		if start < 0 || end > int32(len(points)) || end-start < 3 {
			continue
		}

		ring := make(orb.Ring, 0, end-start)
		for _, pt := range points[start:end] {
			ring = append(ring, orb.Point{pt.X, pt.Y})
		}
		out = append(out, ring)
	}

	return out
}

func burnFromProperty(v interface{}) (int32, error) {
	switch val := v.(type) {
	case float64:
		if val != math.Trunc(val) || val < math.MinInt32 || val > math.MaxInt32 {
			return 0, fmt.Errorf("burn value %v is not a 32-bit integer", val)
		}
		return int32(val), nil
	case string:
		// dBase numeric fields may carry decimals, e.g. "1.000"
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, err
		}
		return burnFromProperty(f)
	case nil:
		return 0, fmt.Errorf("missing burn value")
	}

	return 0, fmt.Errorf("burn value of type %T is not supported", v)
}
