// rastervalsummary is a convenience tool to summarize the JSON reports of
// many rasterval runs, one line per statistic.
package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/carbocation/rasterval"
	_ "github.com/carbocation/rasterval/compileinfoprint"
	"github.com/carbocation/rasterval/metrics"
	"github.com/carbocation/rasterval/report"
	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"
)

func main() {
	var linePrefix string

	flag.StringVar(&linePrefix, "line_prefix", "", "Column to add to each line. If empty, no column will be added.")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [-line_prefix x] report1.json [report2.json ...]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	var client *storage.Client
	for _, path := range flag.Args() {
		if rasterval.IsGoogleStoragePath(path) {
			var err error
			client, err = storage.NewClient(context.Background())
			if err != nil {
				log.Fatalln(err)
			}
			break
		}
	}

	reports := make([]metrics.Report, 0, flag.NArg())
	for _, path := range flag.Args() {
		b, err := rasterval.ReadAllMaybeCompressed(context.Background(), path, client)
		if err != nil {
			log.Fatalln(err)
		}

		r, err := report.ReadJSON(bytes.NewReader(b))
		if err != nil {
			log.Fatalln(path, err)
		}
		reports = append(reports, r)
	}

	if err := printSummary(os.Stdout, reports, linePrefix); err != nil {
		log.Fatalln(err)
	}
}

// Summary holds the statistics of one metric over the reports where it is
// defined.
type Summary struct {
	Metric string
	N      int

	Mean, SD, Median float64

	// WeightedMean weights each report by its number of valid pixels.
	WeightedMean float64
}

func summarize(reports []metrics.Report) ([]Summary, error) {
	out := make([]Summary, 0, len(metrics.Columns)-1)

	for i, name := range metrics.Columns[1:] {
		values := make([]float64, 0, len(reports))
		weights := make([]float64, 0, len(reports))

		for _, r := range reports {
			v := r.Values()[i]
			if !v.Valid {
				continue
			}
			values = append(values, v.Float64)
			weights = append(weights, float64(r.Counts.Total()))
		}

		s := Summary{Metric: name, N: len(values)}
		if s.N == 0 {
			out = append(out, s)
			continue
		}

		data := stats.Float64Data(values)

		var err error
		if s.Mean, err = data.Mean(); err != nil {
			return nil, err
		}
		if s.Median, err = data.Median(); err != nil {
			return nil, err
		}

		// A single observation has no sample SD
		if s.N > 1 {
			if s.SD, err = data.StandardDeviationSample(); err != nil {
				return nil, err
			}
		}

		s.WeightedMean = stat.Mean(values, weights)

		out = append(out, s)
	}

	return out, nil
}

func printSummary(w io.Writer, reports []metrics.Report, linePrefix string) error {
	summaries, err := summarize(reports)
	if err != nil {
		return err
	}

	header := []string{"Metric"}
	if linePrefix != "" {
		header = append(header, "LinePrefix")
	}
	header = append(header, "N_Entries", "Mean", "SD", "Median", "PixelWeightedMean")
	fmt.Fprintln(w, strings.Join(header, "\t"))

	for _, s := range summaries {
		output := []string{s.Metric}
		if linePrefix != "" {
			output = append(output, linePrefix)
		}
		output = append(output, fmt.Sprintf("%d", s.N))

		if s.N == 0 {
			output = append(output, "N/A", "N/A", "N/A", "N/A")
		} else {
			sd := "N/A"
			if s.N > 1 {
				sd = fmt.Sprintf("%.3f", s.SD)
			}
			output = append(output, fmt.Sprintf("%.3f", s.Mean), sd, fmt.Sprintf("%.3f", s.Median), fmt.Sprintf("%.3f", s.WeightedMean))
		}

		fmt.Fprintln(w, strings.Join(output, "\t"))
	}

	return nil
}
