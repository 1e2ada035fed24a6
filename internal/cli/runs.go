package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"jarscan/internal/runlog"
)

func (a *app) runsCommand() *cobra.Command {
	var workDir string
	cmd := &cobra.Command{
		Use:   "runs [flags] [run-id]",
		Short: "List recorded runs, or show one run and its failures",
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) > 1 {
				return invalidInvocationf("runs takes at most one run id, got %d arguments", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			wd, err := resolveWorkDir(workDir)
			if err != nil {
				return err
			}
			st, err := runlog.NewStore(wd)
			if err != nil {
				return err
			}
			a.started = true
			a.result.ExitCode = ExitInternalError
			if len(args) == 1 {
				err = showRun(a.env.stdout(), st, args[0])
			} else {
				err = listRuns(a.env.stdout(), st)
			}
			if err != nil {
				return err
			}
			a.result.ExitCode = ExitSuccess
			return nil
		},
	}
	addWorkDirFlag(cmd.Flags(), &workDir)
	return cmd
}

func listRuns(w io.Writer, st *runlog.Store) error {
	ids, err := st.ListRunIDs()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return nil
	}
	for _, id := range ids {
		run, err := st.LoadRun(id)
		if err != nil {
			return fmt.Errorf("run %s: %w", id, err)
		}
		statusColor(run.Status).Fprintf(w, "%-9s", run.Status)
		fmt.Fprintf(w, " %s  %s  %s\n", run.RunID, run.StartTime.Format(time.RFC3339), counts(run))
	}
	return nil
}

func showRun(w io.Writer, st *runlog.Store, id string) error {
	run, err := st.LoadRun(id)
	if err != nil {
		return err
	}
	failures, err := st.LoadFailures(id)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "run:        %s\n", run.RunID)
	fmt.Fprint(w, "status:     ")
	statusColor(run.Status).Fprintln(w, run.Status)
	fmt.Fprintf(w, "started:    %s\n", run.StartTime.Format(time.RFC3339))
	if run.EndTime != nil {
		fmt.Fprintf(w, "duration:   %s\n", run.EndTime.Sub(run.StartTime).Round(time.Millisecond))
	}
	fmt.Fprintf(w, "cache:      %s\n", run.CacheMode)
	fmt.Fprintf(w, "inputs:     %s\n", run.InputsHash)
	if run.TraceHash != "" {
		fmt.Fprintf(w, "trace:      %s\n", run.TraceHash)
	}
	fmt.Fprintf(w, "artifacts:  %s\n", counts(run))
	for _, f := range failures {
		red.Fprintf(w, "failed   %s [%s]: %s\n", f.Artifact, f.ErrorCode, f.ErrorMessage)
	}
	return nil
}

func counts(run runlog.Run) string {
	return fmt.Sprintf("%d artifacts: %d transformed, %d cached, %d failed, %d skipped",
		run.Artifacts, run.Transformed, run.Cached, run.Failed, run.Skipped)
}

func statusColor(s runlog.RunStatus) *color.Color {
	switch s {
	case runlog.StatusSucceeded:
		return green
	case runlog.StatusFailed:
		return red
	case runlog.StatusCanceled:
		return yellow
	default:
		return cyan
	}
}
