package raster

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// TIFF tags holding georeferencing. 33550, 33922, 34264 and 34735 are the
// GeoTIFF tags, 42113 is the nodata tag written and read by GDAL.
const (
	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGeoKeyDirectory     = 34735
	tagGDALNoData          = 42113
)

// GeoKey IDs and values.
const (
	keyModelType        = 1024
	keyRasterType       = 1025
	keyGeographicType   = 2048
	keyProjectedCSType  = 3072
	modelTypeProjected  = 1
	modelTypeGeographic = 2
	rasterPixelIsArea   = 1
	rasterPixelIsPoint  = 2
	userDefinedGeoKey   = 32767
)

const (
	dtByte      = 1
	dtASCII     = 2
	dtShort     = 3
	dtLong      = 4
	dtRational  = 5
	dtSByte     = 6
	dtUndefined = 7
	dtSShort    = 8
	dtSLong     = 9
	dtSRational = 10
	dtFloat     = 11
	dtDouble    = 12
)

var errNotTIFF = errors.New("not a TIFF file")

// GeoTags is the georeferencing stored inside a GeoTIFF.
type GeoTags struct {
	Transform    GeoTransform
	HasTransform bool

	// EPSG is 0 when the file names no EPSG coordinate system.
	EPSG int

	NoData    int32
	HasNoData bool
}

type tiffEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	value [4]byte
}

type tiffFile struct {
	b       []byte
	order   binary.ByteOrder
	entries []tiffEntry
}

func typeSize(typ uint16) int {
	switch typ {
	case dtByte, dtASCII, dtSByte, dtUndefined:
		return 1
	case dtShort, dtSShort:
		return 2
	case dtLong, dtSLong, dtFloat:
		return 4
	case dtRational, dtSRational, dtDouble:
		return 8
	}

	return 0
}

// parseTIFF reads the first IFD of a classic (not Big) TIFF.
func parseTIFF(b []byte) (*tiffFile, error) {
	if len(b) < 8 {
		return nil, errNotTIFF
	}

	f := &tiffFile{b: b}
	switch string(b[:4]) {
	case "II\x2a\x00":
		f.order = binary.LittleEndian
	case "MM\x00\x2a":
		f.order = binary.BigEndian
	default:
		return nil, errNotTIFF
	}

	offset := int(f.order.Uint32(b[4:8]))
	if offset+2 > len(b) {
		return nil, fmt.Errorf("IFD offset %d is beyond the end of the file", offset)
	}

	n := int(f.order.Uint16(b[offset:]))
	if offset+2+12*n > len(b) {
		return nil, fmt.Errorf("IFD with %d entries is truncated", n)
	}

	f.entries = make([]tiffEntry, n)
	for i := range f.entries {
		p := b[offset+2+12*i:]
		e := tiffEntry{
			tag:   f.order.Uint16(p[0:2]),
			typ:   f.order.Uint16(p[2:4]),
			count: f.order.Uint32(p[4:8]),
		}
		copy(e.value[:], p[8:12])
		f.entries[i] = e
	}

	return f, nil
}

func (f *tiffFile) find(tag uint16) (tiffEntry, bool) {
	for _, e := range f.entries {
		if e.tag == tag {
			return e, true
		}
	}

	return tiffEntry{}, false
}

// raw returns the bytes of an entry's value, inline or at its offset.
func (f *tiffFile) raw(e tiffEntry) ([]byte, error) {
	size := typeSize(e.typ) * int(e.count)
	if size <= 4 {
		return e.value[:size], nil
	}

	offset := int(f.order.Uint32(e.value[:]))
	if offset < 0 || offset+size > len(f.b) {
		return nil, fmt.Errorf("tag %d: value of %d bytes at offset %d is beyond the end of the file", e.tag, size, offset)
	}

	return f.b[offset : offset+size], nil
}

func (f *tiffFile) doubles(tag uint16) ([]float64, error) {
	e, ok := f.find(tag)
	if !ok {
		return nil, nil
	}
	if e.typ != dtDouble {
		return nil, fmt.Errorf("tag %d has type %d, expected DOUBLE", tag, e.typ)
	}

	p, err := f.raw(e)
	if err != nil {
		return nil, err
	}

	out := make([]float64, e.count)
	for i := range out {
		out[i] = math.Float64frombits(f.order.Uint64(p[8*i:]))
	}

	return out, nil
}

func (f *tiffFile) shorts(tag uint16) ([]uint16, error) {
	e, ok := f.find(tag)
	if !ok {
		return nil, nil
	}
	if e.typ != dtShort {
		return nil, fmt.Errorf("tag %d has type %d, expected SHORT", tag, e.typ)
	}

	p, err := f.raw(e)
	if err != nil {
		return nil, err
	}

	out := make([]uint16, e.count)
	for i := range out {
		out[i] = f.order.Uint16(p[2*i:])
	}

	return out, nil
}

func (f *tiffFile) ascii(tag uint16) (string, bool, error) {
	e, ok := f.find(tag)
	if !ok {
		return "", false, nil
	}

	p, err := f.raw(e)
	if err != nil {
		return "", false, err
	}

	return strings.TrimRight(string(p), "\x00"), true, nil
}

// ReadGeoTags extracts the georeferencing of a TIFF held in memory. A TIFF
// without GeoTIFF tags gives an empty GeoTags and no error.
func ReadGeoTags(b []byte) (GeoTags, error) {
	out := GeoTags{}

	f, err := parseTIFF(b)
	if err != nil {
		return out, err
	}

	scale, err := f.doubles(tagModelPixelScale)
	if err != nil {
		return out, err
	}
	tiepoint, err := f.doubles(tagModelTiepoint)
	if err != nil {
		return out, err
	}
	matrix, err := f.doubles(tagModelTransformation)
	if err != nil {
		return out, err
	}
	keys, err := f.shorts(tagGeoKeyDirectory)
	if err != nil {
		return out, err
	}

	geoKeys := parseGeoKeys(keys)

	out.Transform, out.HasTransform = geoTransformFromTags(scale, tiepoint, matrix, geoKeys[keyRasterType] == rasterPixelIsPoint)

	for _, key := range []uint16{keyProjectedCSType, keyGeographicType} {
		if code, ok := geoKeys[key]; ok && code != 0 && code != userDefinedGeoKey {
			out.EPSG = int(code)
			break
		}
	}

	nodata, ok, err := f.ascii(tagGDALNoData)
	if err != nil {
		return out, err
	}
	if ok {
		v, err := strconv.ParseFloat(strings.TrimSpace(nodata), 64)
		if err != nil {
			return out, fmt.Errorf("nodata tag %q: %w", nodata, err)
		}
		if v == math.Trunc(v) && v >= math.MinInt32 && v <= math.MaxInt32 {
			out.NoData, out.HasNoData = int32(v), true
		}
	}

	return out, nil
}

// parseGeoKeys keeps the keys whose value is stored inline in the
// directory, which covers every key holding an EPSG code.
func parseGeoKeys(dir []uint16) map[uint16]uint16 {
	out := make(map[uint16]uint16)
	if len(dir) < 4 {
		return out
	}

	n := int(dir[3])
	for i := 0; i < n && 4+4*i+3 < len(dir); i++ {
		k := dir[4+4*i:]
		if k[1] != 0 {
			continue
		}
		out[k[0]] = k[3]
	}

	return out
}

// geoTransformFromTags prefers the full transformation matrix, else builds
// a north-up transform from the first tiepoint and the pixel scale. Point
// rasters reference the pixel centre, so their origin moves half a pixel.
func geoTransformFromTags(scale, tiepoint, matrix []float64, pixelIsPoint bool) (GeoTransform, bool) {
	var t GeoTransform

	switch {
	case len(matrix) >= 16:
		t = GeoTransform{matrix[3], matrix[0], matrix[1], matrix[7], matrix[4], matrix[5]}
	case len(scale) >= 2 && len(tiepoint) >= 6:
		t = GeoTransform{
			tiepoint[3] - tiepoint[0]*scale[0],
			scale[0],
			0,
			tiepoint[4] + tiepoint[1]*scale[1],
			0,
			-scale[1],
		}
	default:
		return t, false
	}

	if pixelIsPoint {
		t[0] -= 0.5*t[1] + 0.5*t[2]
		t[3] -= 0.5*t[4] + 0.5*t[5]
	}

	return t, true
}

// EmbedGeoTags rewrites the first IFD of an encoded TIFF with the GeoTIFF
// and nodata tags added. The pixel data is untouched: the new IFD and its
// values are appended and the header is pointed at them.
func EmbedGeoTags(b []byte, tags GeoTags) ([]byte, error) {
	f, err := parseTIFF(b)
	if err != nil {
		return nil, err
	}

	out := make([]byte, len(b), len(b)+512)
	copy(out, b)

	w := &ifdWriter{buf: out, order: f.order}

	replaced := map[uint16]bool{
		tagModelPixelScale:     true,
		tagModelTiepoint:       true,
		tagModelTransformation: true,
		tagGeoKeyDirectory:     true,
		tagGDALNoData:          true,
	}
	entries := make([]tiffEntry, 0, len(f.entries)+5)
	for _, e := range f.entries {
		if !replaced[e.tag] {
			entries = append(entries, e)
		}
	}

	if tags.HasTransform {
		t := tags.Transform
		if t.Rotated() {
			entries = append(entries, w.doubles(tagModelTransformation, []float64{
				t[1], t[2], 0, t[0],
				t[4], t[5], 0, t[3],
				0, 0, 0, 0,
				0, 0, 0, 1,
			}))
		} else {
			entries = append(entries,
				w.doubles(tagModelPixelScale, []float64{t[1], -t[5], 0}),
				w.doubles(tagModelTiepoint, []float64{0, 0, 0, t[0], t[3], 0}),
			)
		}
	}

	entries = append(entries, w.shorts(tagGeoKeyDirectory, geoKeyDirectory(tags.EPSG)))

	if tags.HasNoData {
		entries = append(entries, w.ascii(tagGDALNoData, strconv.Itoa(int(tags.NoData))))
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	w.pad()
	ifdOffset := len(w.buf)

	ifd := make([]byte, 2+12*len(entries)+4)
	f.order.PutUint16(ifd, uint16(len(entries)))
	for i, e := range entries {
		p := ifd[2+12*i:]
		f.order.PutUint16(p[0:2], e.tag)
		f.order.PutUint16(p[2:4], e.typ)
		f.order.PutUint32(p[4:8], e.count)
		copy(p[8:12], e.value[:])
	}
	w.buf = append(w.buf, ifd...)

	f.order.PutUint32(w.buf[4:8], uint32(ifdOffset))

	return w.buf, nil
}

// geoKeyDirectory always declares area pixels. EPSG codes in the 4xxx range
// are geographic coordinate systems, everything else is written as
// projected.
func geoKeyDirectory(epsg int) []uint16 {
	keys := [][4]uint16{}

	if epsg > 0 && epsg < userDefinedGeoKey {
		modelType, csKey := uint16(modelTypeProjected), uint16(keyProjectedCSType)
		if epsg >= 4000 && epsg < 5000 {
			modelType, csKey = modelTypeGeographic, keyGeographicType
		}
		keys = append(keys, [4]uint16{keyModelType, 0, 1, modelType})
		keys = append(keys, [4]uint16{keyRasterType, 0, 1, rasterPixelIsArea})
		keys = append(keys, [4]uint16{csKey, 0, 1, uint16(epsg)})
	} else {
		keys = append(keys, [4]uint16{keyRasterType, 0, 1, rasterPixelIsArea})
	}

	out := []uint16{1, 1, 0, uint16(len(keys))}
	for _, k := range keys {
		out = append(out, k[:]...)
	}

	return out
}

type ifdWriter struct {
	buf   []byte
	order binary.ByteOrder
}

// pad keeps offsets on a word boundary.
func (w *ifdWriter) pad() {
	if len(w.buf)%2 == 1 {
		w.buf = append(w.buf, 0)
	}
}

func (w *ifdWriter) entry(tag, typ uint16, count int, p []byte) tiffEntry {
	e := tiffEntry{tag: tag, typ: typ, count: uint32(count)}
	if len(p) <= 4 {
		copy(e.value[:], p)
		return e
	}

	w.pad()
	w.order.PutUint32(e.value[:], uint32(len(w.buf)))
	w.buf = append(w.buf, p...)

	return e
}

func (w *ifdWriter) doubles(tag uint16, v []float64) tiffEntry {
	p := make([]byte, 8*len(v))
	for i, x := range v {
		w.order.PutUint64(p[8*i:], math.Float64bits(x))
	}

	return w.entry(tag, dtDouble, len(v), p)
}

func (w *ifdWriter) shorts(tag uint16, v []uint16) tiffEntry {
	p := make([]byte, 2*len(v))
	for i, x := range v {
		w.order.PutUint16(p[2*i:], x)
	}

	return w.entry(tag, dtShort, len(v), p)
}

func (w *ifdWriter) ascii(tag uint16, s string) tiffEntry {
	p := append([]byte(s), 0)

	return w.entry(tag, dtASCII, len(p), p)
}
