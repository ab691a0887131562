package confusion

import (
	"fmt"

	"github.com/carbocation/rasterval/raster"
)

// legacyNoData is the sentinel that ValidityLegacy compares against.
const legacyNoData int32 = 255

// ApplyExclusion returns a copy of data in which every cell where mask == 1
// is set to nodata. data is not modified. A nil mask yields a plain copy.
func ApplyExclusion(data, mask *raster.Grid, nodata int32) (*raster.Grid, error) {
	if mask != nil && !data.SameShape(mask) {
		return nil, fmt.Errorf("%w: data is %s but exclusion mask is %s", ErrShapeMismatch, data.ShapeString(), mask.ShapeString())
	}

	out := data.Clone()
	if mask == nil {
		return out, nil
	}

	for i, m := range mask.Data {
		if m == 1 {
			out.Data[i] = nodata
		}
	}

	return out, nil
}

// Classify computes the difference map, valid mask and confusion counts of a
// binary classification against a binary reference.
//
// Each cell gets code 1 + 2*data - reference, so that FN=0, TN=1, TP=2 and
// FP=3. Cells where either input is nodata, or where mask == 1, get code 255
// and are not counted. The exclusion is applied to a copy of data; none of
// the inputs are modified. mask may be nil.
func Classify(data, reference, mask *raster.Grid, opts Options) (Result, error) {
	if !data.SameShape(reference) {
		return Result{}, fmt.Errorf("%w: data is %s but reference is %s", ErrShapeMismatch, data.ShapeString(), reference.ShapeString())
	}

	exclusionNoData := opts.DataNoData
	if opts.Validity == ValidityLegacy {
		exclusionNoData = legacyNoData
	}

	masked, err := ApplyExclusion(data, mask, exclusionNoData)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		Diff:  raster.NewGrid(data.Rows, data.Cols),
		Valid: make([]bool, data.Len()),
	}

	for i, d := range data.Data {
		r := reference.Data[i]
		excluded := mask != nil && mask.Data[i] == 1

		if !excluded {
			if d != opts.DataNoData && d != 0 && d != 1 {
				return Result{}, unexpected("classification", data, i, d)
			}
			if r != opts.ValNoData && r != 0 && r != 1 {
				return Result{}, unexpected("reference", reference, i, r)
			}
		}

		code := 1 + 2*d - r
		if d == opts.DataNoData || r == opts.ValNoData || excluded {
			code = Invalid
		}

		switch code {
		case TruePositive:
			res.Counts.TP++
		case TrueNegative:
			res.Counts.TN++
		case FalseNegative:
			res.Counts.FN++
		case FalsePositive:
			res.Counts.FP++
		}

		md := masked.Data[i]
		if opts.Validity == ValidityLegacy {
			res.Valid[i] = r != legacyNoData && md != legacyNoData
		} else {
			res.Valid[i] = r != opts.ValNoData && md != opts.DataNoData
		}

		if !res.Valid[i] {
			code = Invalid
		}
		res.Diff.Data[i] = code
	}

	res.Counts.Invalid = int64(data.Len()) - res.Counts.Total()

	return res, nil
}

func unexpected(which string, g *raster.Grid, i int, v int32) error {
	return fmt.Errorf("%w: %s value %d at row %d, col %d", ErrUnexpectedValue, which, v, i/g.Cols, i%g.Cols)
}
