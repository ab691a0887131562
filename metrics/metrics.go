// Package metrics derives accuracy statistics from confusion counts.
//
// Every ratio is a null.Float: when its denominator is zero the value is
// left invalid (undefined) instead of producing NaN or Inf, and the other
// statistics of the report are still computed.
package metrics

import (
	"math"

	"github.com/carbocation/rasterval/confusion"
	"gopkg.in/guregu/null.v3"
)

// Column names of the report, in output order.
const (
	ColumnFile                 = "file"
	ColumnUserAccuracy         = "User's Accuracy/Precision"
	ColumnProducerAccuracy     = "Producer's Accuracy/Recall"
	ColumnCommissionError      = "Commission Error"
	ColumnOmissionError        = "Omission Error"
	ColumnCriticalSuccessIndex = "Critical Success Index"
	ColumnF1                   = "F1"
	ColumnSuccessRate          = "Success Rate"
	ColumnKappa                = "Kappa"
	ColumnAccuracy             = "Accuracy"
)

// Columns is the fixed report schema.
var Columns = []string{
	ColumnFile,
	ColumnUserAccuracy,
	ColumnProducerAccuracy,
	ColumnCommissionError,
	ColumnOmissionError,
	ColumnCriticalSuccessIndex,
	ColumnF1,
	ColumnSuccessRate,
	ColumnKappa,
	ColumnAccuracy,
}

// Report holds the statistics of one validation run.
type Report struct {
	File string `json:"file"`

	UserAccuracy         null.Float `json:"users_accuracy"`
	ProducerAccuracy     null.Float `json:"producers_accuracy"`
	CommissionError      null.Float `json:"commission_error"`
	OmissionError        null.Float `json:"omission_error"`
	CriticalSuccessIndex null.Float `json:"critical_success_index"`
	F1                   null.Float `json:"f1"`
	SuccessRate          null.Float `json:"success_rate"`
	Kappa                null.Float `json:"kappa"`
	Accuracy             null.Float `json:"accuracy"`

	// Not part of the tabular schema
	Penalization null.Float       `json:"penalization"`
	Counts       confusion.Counts `json:"counts"`
}

// Values returns the nine statistics in column order (File excluded).
func (r Report) Values() []null.Float {
	return []null.Float{
		r.UserAccuracy,
		r.ProducerAccuracy,
		r.CommissionError,
		r.OmissionError,
		r.CriticalSuccessIndex,
		r.F1,
		r.SuccessRate,
		r.Kappa,
		r.Accuracy,
	}
}

// Named maps each statistic's column name to its value.
func (r Report) Named() map[string]null.Float {
	out := make(map[string]null.Float, len(Columns)-1)
	for i, v := range r.Values() {
		out[Columns[i+1]] = v
	}

	return out
}

// Undefined lists the column names of statistics that could not be
// computed.
func (r Report) Undefined() []string {
	var out []string
	for i, v := range r.Values() {
		if !v.Valid {
			out = append(out, Columns[i+1])
		}
	}

	return out
}

// ratio is num/den, or an invalid value when den is zero.
func ratio(num, den float64) null.Float {
	if den == 0 {
		return null.Float{}
	}

	return null.FloatFrom(num / den)
}

// Compute derives the report for the file from the confusion counts.
func Compute(file string, c confusion.Counts) Report {
	tp, tn, fp, fn := float64(c.TP), float64(c.TN), float64(c.FP), float64(c.FN)
	total := tp + tn + fp + fn

	out := Report{
		File:   file,
		Counts: c,
	}

	// Observed agreement
	out.Accuracy = ratio(tp+tn, total)

	out.Kappa = kappa(tp, tn, fp, fn)
	out.UserAccuracy = ratio(tp, tp+fp)
	out.ProducerAccuracy = ratio(tp, tp+fn)
	out.CriticalSuccessIndex = ratio(tp, tp+fp+fn)
	out.F1 = ratio(2*tp, 2*tp+fn+fp)
	out.CommissionError = ratio(fp, fp+tp)
	out.OmissionError = ratio(fn, fn+tp)
	out.Penalization = Penalization(c)

	if out.ProducerAccuracy.Valid && out.Penalization.Valid {
		out.SuccessRate = null.FloatFrom(out.ProducerAccuracy.Float64 - (1 - out.Penalization.Float64))
	}

	return out
}

// kappa is (Po - Pe) / (1 - Pe), with Po the observed and Pe the chance
// agreement. Both are scaled by total^2 here, which avoids the cancellation
// in 1 - Pe. Undefined when total is zero or Pe == 1.
func kappa(tp, tn, fp, fn float64) null.Float {
	total := tp + tn + fp + fn
	if total == 0 {
		return null.Float{}
	}

	chance := (tp+fn)*(tp+fp) + (fp+tn)*(fn+tn)

	return ratio(total*(tp+tn)-chance, total*total-chance)
}

// ExpectedAgreement is the agreement expected by chance (Pe).
func ExpectedAgreement(c confusion.Counts) null.Float {
	tp, tn, fp, fn := float64(c.TP), float64(c.TN), float64(c.FP), float64(c.FN)
	total := tp + tn + fp + fn

	return ratio((tp+fn)*(tp+fp)+(fp+tn)*(fn+tn), total*total)
}

// Penalization is exp(FP / ((TP+FN) / ln 0.5)): 1 without false positives,
// halving each time the false positives grow by the number of reference
// positives. Undefined without reference positives.
func Penalization(c confusion.Counts) null.Float {
	positives := float64(c.TP + c.FN)
	if positives == 0 {
		return null.Float{}
	}

	return null.FloatFrom(math.Exp(float64(c.FP) / (positives / math.Log(0.5))))
}
