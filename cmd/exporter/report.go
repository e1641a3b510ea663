package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/chambridge/sensor-data-exporter/internal/processor"
)

// printReport writes the console summary of a run: per-project timings, a
// preview of the merged table, missing nodes and the files written.
func printReport(w io.Writer, report *processor.Report, previewRows int) error {
	fmt.Fprintf(w, "Run %s\n", report.RunID)
	for _, pt := range report.Result.Timings {
		if pt.Err != nil {
			fmt.Fprintf(w, "  %-20s FAILED after %s: %v\n", pt.Project, pt.Elapsed, pt.Err)
			continue
		}
		fmt.Fprintf(w, "  %-20s %6d rows in %s\n", pt.Project, pt.Rows, pt.Elapsed)
	}
	fmt.Fprintln(w)

	if previewRows > 0 {
		if err := report.Result.Table.Preview(w, previewRows); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	if len(report.Missing) > 0 {
		fmt.Fprintf(w, "Missing nodes: %s\n", strings.Join(report.Missing, ", "))
	} else {
		fmt.Fprintln(w, "All requested nodes found")
	}
	for _, path := range report.Paths {
		fmt.Fprintf(w, "Wrote %s\n", path)
	}
	return nil
}
