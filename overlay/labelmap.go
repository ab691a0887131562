package overlay

import (
	"fmt"
	"image"
	"image/color"
	"sort"
	"strconv"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/carbocation/rasterval/confusion"
	"github.com/carbocation/rasterval/raster"
)

// A Label ties a difference map code to a human readable name and a display
// color (RGB hex, e.g. #FF0000 for red). An empty color is transparent.
type Label struct {
	Label string
	ID    int32  `json:"id"`
	Color string `json:"color"`
}

// LabelMap ([string label name]Label) keeps track of the colors used to draw
// each difference map code.
type LabelMap map[string]Label

// DefaultLabelMap colors the four confusion classes and leaves invalid cells
// transparent.
func DefaultLabelMap() LabelMap {
	return LabelMap{
		"False negative": {Label: "False negative", ID: confusion.FalseNegative, Color: "#e41a1c"},
		"True negative":  {Label: "True negative", ID: confusion.TrueNegative, Color: "#d9d9d9"},
		"True positive":  {Label: "True positive", ID: confusion.TruePositive, Color: "#377eb8"},
		"False positive": {Label: "False positive", ID: confusion.FalsePositive, Color: "#ff7f00"},
		"Invalid":        {Label: "Invalid", ID: confusion.Invalid, Color: ""},
	}
}

// Sorted returns the labels ordered by ID.
func (l LabelMap) Sorted() []Label {
	out := make([]Label, 0, len(l))
	for k, v := range l {
		if v.Label == "" {
			v.Label = k
		}
		out = append(out, v)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// Valid ensures that no two labels share an ID and that every color parses.
func (l LabelMap) Valid() error {
	inverse := make(map[int32]string)
	for k, v := range l {
		if other, exists := inverse[v.ID]; exists {
			return fmt.Errorf("labels %q and %q share ID %d", other, k, v.ID)
		}
		inverse[v.ID] = k

		if _, err := rgbaFromColorCode(v.Color); err != nil {
			return fmt.Errorf("label %q: %w", k, err)
		}
	}

	return nil
}

// Render paints each cell of a difference map with its label's color.
func (l LabelMap) Render(g *raster.Grid) (*image.RGBA, error) {
	colors := make(map[int32]color.RGBA, len(l))
	for _, v := range l {
		c, err := rgbaFromColorCode(v.Color)
		if err != nil {
			return nil, err
		}
		colors[v.ID] = c
	}

	outputImage := image.NewRGBA(image.Rect(0, 0, g.Cols, g.Rows))

	for y := 0; y < g.Rows; y++ {
		for x := 0; x < g.Cols; x++ {
			code := g.At(y, x)

			// Make sure that all codes are known
			c, exists := colors[code]
			if !exists {
				return nil, pfx.Err(fmt.Errorf("Saw code %d at (%d, %d) but could not find it in the label map", code, x, y))
			}

			outputImage.SetRGBA(x, y, c)
		}
	}

	return outputImage, nil
}

func rgbaFromColorCode(colorCode string) (color.RGBA, error) {
	colorCode = strings.ReplaceAll(colorCode, "#", "")

	// Special case transparency
	if colorCode == "" {
		return color.RGBA{0, 0, 0, 0}, nil
	}
	if len(colorCode) != 6 {
		return color.RGBA{}, fmt.Errorf("color code %q is not 6 hex digits", colorCode)
	}

	// Parse each channel
	r, err := strconv.ParseUint(colorCode[0:2], 16, 8)
	if err != nil {
		return color.RGBA{}, err
	}
	g, err := strconv.ParseUint(colorCode[2:4], 16, 8)
	if err != nil {
		return color.RGBA{}, err
	}
	b, err := strconv.ParseUint(colorCode[4:6], 16, 8)
	if err != nil {
		return color.RGBA{}, err
	}

	return color.RGBA{
		R: uint8(r),
		G: uint8(g),
		B: uint8(b),
		A: 255,
	}, nil
}
