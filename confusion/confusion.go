// Package confusion labels every cell of a binary classification against a
// binary reference as a true/false positive/negative, or as invalid.
package confusion

import (
	"errors"
	"fmt"

	"github.com/carbocation/rasterval/raster"
)

// Difference map codes. They are part of the output file format.
const (
	FalseNegative int32 = 0
	TrueNegative  int32 = 1
	TruePositive  int32 = 2
	FalsePositive int32 = 3
	Invalid       int32 = 255
)

var (
	// ErrShapeMismatch is returned when the classification, reference and
	// exclusion mask are not the same size.
	ErrShapeMismatch = raster.ErrShapeMismatch

	// ErrUnexpectedValue is returned for a cell that is neither 0, 1 nor the
	// configured nodata sentinel.
	ErrUnexpectedValue = errors.New("unexpected cell value")
)

// ValidityMode chooses how the valid-cell mask is derived.
type ValidityMode int

const (
	// ValidityConfigured treats a cell as valid when neither the
	// classification (after exclusion) nor the reference equals its own
	// configured nodata value. Valid cells are exactly those with a code in
	// 0..3.
	ValidityConfigured ValidityMode = iota

	// ValidityLegacy compares both inputs against 255, whatever the
	// configured sentinels are. With non-255 sentinels a nodata cell can be
	// marked valid while carrying code 255, and vice versa.
	ValidityLegacy
)

func (m ValidityMode) String() string {
	if m == ValidityLegacy {
		return "legacy"
	}

	return "configured"
}

// ParseValidityMode accepts "configured" (or "") and "legacy".
func ParseValidityMode(s string) (ValidityMode, error) {
	switch s {
	case "", "configured":
		return ValidityConfigured, nil
	case "legacy":
		return ValidityLegacy, nil
	}

	return ValidityConfigured, fmt.Errorf("unknown validity mode %q", s)
}

type Options struct {
	DataNoData int32
	ValNoData  int32
	Validity   ValidityMode
}

// DefaultOptions uses 255 as nodata for both inputs.
func DefaultOptions() Options {
	return Options{
		DataNoData: raster.DefaultNoData,
		ValNoData:  raster.DefaultNoData,
		Validity:   ValidityConfigured,
	}
}

// Counts holds the confusion totals over all valid cells.
type Counts struct {
	TP int64 `json:"tp"`
	TN int64 `json:"tn"`
	FP int64 `json:"fp"`
	FN int64 `json:"fn"`

	// Invalid is the number of cells that did not take part.
	Invalid int64 `json:"invalid"`
}

// Total is TP+TN+FP+FN.
func (c Counts) Total() int64 {
	return c.TP + c.TN + c.FP + c.FN
}

// Matrix lays the counts out as [[TP, FP], [FN, TN]].
func (c Counts) Matrix() [2][2]int64 {
	return [2][2]int64{{c.TP, c.FP}, {c.FN, c.TN}}
}

func (c Counts) String() string {
	return fmt.Sprintf("[[%d %d] [%d %d]]", c.TP, c.FP, c.FN, c.TN)
}

// Result is the difference map, the valid-cell mask and the totals.
type Result struct {
	Diff   *raster.Grid
	Valid  []bool
	Counts Counts
}

// ValidCount is the number of true entries in Valid.
func (r Result) ValidCount() int64 {
	var n int64
	for _, v := range r.Valid {
		if v {
			n++
		}
	}

	return n
}
