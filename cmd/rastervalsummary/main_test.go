package main

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/carbocation/rasterval/confusion"
	"github.com/carbocation/rasterval/metrics"
)

func TestSummarize(t *testing.T) {
	reports := []metrics.Report{
		// Accuracy 1, 4 valid pixels
		metrics.Compute("a", confusion.Counts{TP: 2, TN: 2}),
		// Accuracy 0.5, 12 valid pixels
		metrics.Compute("b", confusion.Counts{TP: 3, TN: 3, FP: 3, FN: 3}),
		// Nothing valid: every metric undefined
		metrics.Compute("c", confusion.Counts{Invalid: 9}),
	}

	summaries, err := summarize(reports)
	if err != nil {
		t.Fatal(err)
	}

	if len(summaries) != len(metrics.Columns)-1 {
		t.Fatalf("%d summaries", len(summaries))
	}

	acc := summaries[len(summaries)-1]
	if acc.Metric != metrics.ColumnAccuracy {
		t.Fatalf("last summary is %s", acc.Metric)
	}
	if acc.N != 2 {
		t.Errorf("N %d, expected 2", acc.N)
	}
	if math.Abs(acc.Mean-0.75) > 1e-12 || math.Abs(acc.Median-0.75) > 1e-12 {
		t.Errorf("mean %v median %v, expected 0.75", acc.Mean, acc.Median)
	}
	if want := (4*1.0 + 12*0.5) / 16; math.Abs(acc.WeightedMean-want) > 1e-12 {
		t.Errorf("weighted mean %v, expected %v", acc.WeightedMean, want)
	}
	if want := math.Sqrt(0.125); math.Abs(acc.SD-want) > 1e-12 {
		t.Errorf("SD %v, expected %v", acc.SD, want)
	}
}

func TestPrintSummaryNoValues(t *testing.T) {
	var buf bytes.Buffer
	if err := printSummary(&buf, []metrics.Report{metrics.Compute("c", confusion.Counts{})}, "run1"); err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != len(metrics.Columns) {
		t.Fatalf("%d lines, expected header plus %d", len(lines), len(metrics.Columns)-1)
	}
	if !strings.HasPrefix(lines[0], "Metric\tLinePrefix\tN_Entries") {
		t.Errorf("header %q", lines[0])
	}
	for _, line := range lines[1:] {
		if !strings.HasSuffix(line, "run1\t0\tN/A\tN/A\tN/A\tN/A") {
			t.Errorf("line %q should be N/A", line)
		}
	}
}
