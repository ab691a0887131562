// Package report serializes metric reports. The CSV layout (column names and
// order, empty cells for undefined statistics) is consumed by downstream
// tooling and must not change.
package report

import (
	"encoding/json"
	"io"
	"os"
	"strconv"

	"github.com/carbocation/pfx"
	"github.com/carbocation/rasterval/metrics"
	"github.com/gocarina/gocsv"
	"gopkg.in/guregu/null.v3"
)

// Row is the tabular form of a metrics.Report. Keep the field order and tags
// in sync with metrics.Columns.
type Row struct {
	File                 string `csv:"file"`
	UserAccuracy         string `csv:"User's Accuracy/Precision"`
	ProducerAccuracy     string `csv:"Producer's Accuracy/Recall"`
	CommissionError      string `csv:"Commission Error"`
	OmissionError        string `csv:"Omission Error"`
	CriticalSuccessIndex string `csv:"Critical Success Index"`
	F1                   string `csv:"F1"`
	SuccessRate          string `csv:"Success Rate"`
	Kappa                string `csv:"Kappa"`
	Accuracy             string `csv:"Accuracy"`
}

// FormatValue renders a statistic in its shortest exact form. Undefined
// statistics become an empty cell.
func FormatValue(v null.Float) string {
	if !v.Valid {
		return ""
	}

	return strconv.FormatFloat(v.Float64, 'g', -1, 64)
}

// ParseValue is the inverse of FormatValue. "NaN" is also read as undefined.
func ParseValue(s string) (null.Float, error) {
	if s == "" {
		return null.Float{}, nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return null.Float{}, err
	}
	if f != f {
		return null.Float{}, nil
	}

	return null.FloatFrom(f), nil
}

func NewRow(r metrics.Report) Row {
	return Row{
		File:                 r.File,
		UserAccuracy:         FormatValue(r.UserAccuracy),
		ProducerAccuracy:     FormatValue(r.ProducerAccuracy),
		CommissionError:      FormatValue(r.CommissionError),
		OmissionError:        FormatValue(r.OmissionError),
		CriticalSuccessIndex: FormatValue(r.CriticalSuccessIndex),
		F1:                   FormatValue(r.F1),
		SuccessRate:          FormatValue(r.SuccessRate),
		Kappa:                FormatValue(r.Kappa),
		Accuracy:             FormatValue(r.Accuracy),
	}
}

// Report parses the row back into the nine statistics. Counts and
// penalization are not part of the tabular form and stay empty.
func (row Row) Report() (metrics.Report, error) {
	out := metrics.Report{File: row.File}

	for _, v := range []struct {
		src string
		dst *null.Float
	}{
		{row.UserAccuracy, &out.UserAccuracy},
		{row.ProducerAccuracy, &out.ProducerAccuracy},
		{row.CommissionError, &out.CommissionError},
		{row.OmissionError, &out.OmissionError},
		{row.CriticalSuccessIndex, &out.CriticalSuccessIndex},
		{row.F1, &out.F1},
		{row.SuccessRate, &out.SuccessRate},
		{row.Kappa, &out.Kappa},
		{row.Accuracy, &out.Accuracy},
	} {
		f, err := ParseValue(v.src)
		if err != nil {
			return out, pfx.Err(err)
		}
		*v.dst = f
	}

	return out, nil
}

// WriteCSV writes a header and one row per report.
func WriteCSV(w io.Writer, reports ...metrics.Report) error {
	rows := make([]*Row, 0, len(reports))
	for _, r := range reports {
		row := NewRow(r)
		rows = append(rows, &row)
	}

	return pfx.Err(gocsv.Marshal(rows, w))
}

// WriteCSVFile creates (or truncates) path and writes the reports to it.
func WriteCSVFile(path string, reports ...metrics.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return pfx.Err(err)
	}

	if err := WriteCSV(f, reports...); err != nil {
		f.Close()
		return err
	}

	return pfx.Err(f.Close())
}

// ReadCSV reads reports written by WriteCSV.
func ReadCSV(r io.Reader) ([]metrics.Report, error) {
	rows := []*Row{}
	if err := gocsv.Unmarshal(r, &rows); err != nil {
		return nil, pfx.Err(err)
	}

	out := make([]metrics.Report, 0, len(rows))
	for _, row := range rows {
		rep, err := row.Report()
		if err != nil {
			return nil, err
		}
		out = append(out, rep)
	}

	return out, nil
}

// WriteJSON writes the full report, including counts and penalization, with
// undefined statistics as null.
func WriteJSON(w io.Writer, r metrics.Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return pfx.Err(enc.Encode(r))
}

func WriteJSONFile(path string, r metrics.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return pfx.Err(err)
	}

	if err := WriteJSON(f, r); err != nil {
		f.Close()
		return err
	}

	return pfx.Err(f.Close())
}

// ReadJSON reads a report written by WriteJSON.
func ReadJSON(r io.Reader) (metrics.Report, error) {
	var out metrics.Report
	err := json.NewDecoder(r).Decode(&out)

	return out, pfx.Err(err)
}
