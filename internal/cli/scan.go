package cli

import (
	"fmt"
	"path/filepath"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/spf13/cobra"

	"jarscan/internal/scanner"
	"jarscan/internal/transform"
)

type scanFlags struct {
	workDir   string
	header    string
	timestamp bool
	print     bool
}

func (a *app) scanCommand() *cobra.Command {
	var f scanFlags
	cmd := &cobra.Command{
		Use:   "scan [flags] <input.jar> [output.properties]",
		Short: "Scan a single archive without the cache",
		Long: `Scan runs the jar analyzer once. Without an explicit output the
properties file is written next to the input, named by replacing .jar
with .properties.`,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) < 1 || len(args) > 2 {
				return invalidInvocationf("scan takes an input archive and an optional output path, got %d arguments", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runScan(cmd, f, args)
		},
	}
	addWorkDirFlag(cmd.Flags(), &f.workDir)
	cmd.Flags().StringVar(&f.header, "header", "", "Comment written at the top of the properties file")
	cmd.Flags().BoolVar(&f.timestamp, "timestamp", false, "Write a date comment after the header")
	cmd.Flags().BoolVar(&f.print, "print", false, "Print the recorded packages, one per line")
	return cmd
}

func (a *app) runScan(cmd *cobra.Command, f scanFlags, args []string) error {
	workDir, err := resolveWorkDir(f.workDir)
	if err != nil {
		return err
	}
	input, err := resolveUnderWorkDir(workDir, args[0])
	if err != nil {
		return err
	}
	outs := &localOutputs{dir: filepath.Dir(input)}
	if len(args) == 2 {
		if outs.fixed, err = resolveUnderWorkDir(workDir, args[1]); err != nil {
			return err
		}
	}
	a.started = true

	fsys := osfs.New("/")
	analyzer := transform.NewJarAnalyzer(scanner.New(fsys, scanner.Options{
		Header:    f.header,
		Timestamp: f.timestamp,
	}))
	if err := analyzer.Transform(cmd.Context(), transform.FileLocation(input), outs); err != nil {
		a.result.ExitCode = ExitArtifactFailure
		return err
	}

	pkgs, err := scanner.ReadPackages(fsys, outs.path)
	if err != nil {
		a.result.ExitCode = ExitInternalError
		return err
	}
	if f.print {
		for _, p := range pkgs {
			fmt.Fprintln(a.env.stdout(), p)
		}
	} else {
		green.Fprintf(a.env.stdout(), "done     %s -> %s (%d packages)\n", filepath.Base(input), outs.path, len(pkgs))
	}
	a.result.ExitCode = ExitSuccess
	return nil
}

// localOutputs places the output next to the input, or at a fixed path
// when one was given.
type localOutputs struct {
	dir   string
	fixed string
	path  string
}

func (o *localOutputs) File(name string) (string, error) {
	if o.fixed != "" {
		o.path = o.fixed
	} else {
		o.path = filepath.Join(o.dir, name)
	}
	return o.path, nil
}
