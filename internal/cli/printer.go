package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/fatih/color"

	"jarscan/internal/pipeline"
)

var (
	green  = color.New(color.FgGreen)
	cyan   = color.New(color.FgCyan)
	red    = color.New(color.FgRed, color.Bold)
	yellow = color.New(color.FgYellow)
)

// printSummary writes one line per artifact, in path order, followed by the
// totals. Color is controlled by fatih/color (NO_COLOR, non-TTY output).
func printSummary(w io.Writer, r *pipeline.Result) {
	for _, art := range r.Artifacts {
		name := art.Name()
		switch r.FinalState[art.Path] {
		case pipeline.StateCompleted:
			green.Fprintf(w, "done     %s -> %s\n", name, filepath.Base(r.Outputs[art.Path]))
		case pipeline.StateCached:
			cyan.Fprintf(w, "cached   %s -> %s\n", name, filepath.Base(r.Outputs[art.Path]))
		case pipeline.StateFailed:
			red.Fprintf(w, "failed   %s: %v\n", name, r.Errors[art.Path])
		case pipeline.StateSkipped:
			yellow.Fprintf(w, "skipped  %s\n", name)
		}
	}
	fmt.Fprintf(w, "%d transformed, %d cached, %d failed, %d skipped\n",
		r.Count(pipeline.StateCompleted),
		r.Count(pipeline.StateCached),
		r.Count(pipeline.StateFailed),
		r.Count(pipeline.StateSkipped),
	)
}
