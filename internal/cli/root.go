package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Version is reported by --version. It is set by main at build time.
var Version = "dev"

// app carries the state of one Run call through the cobra commands.
type app struct {
	env    Env
	result CLIResult

	// started is set once the invocation is canonical. Errors before that
	// point are usage errors.
	started bool
}

// Run is a high-level CLI entrypoint suitable for black-box tests.
// It accepts the argument slice (excluding argv[0]) and returns the semantic
// exit code plus any error.
func Run(ctx context.Context, args []string, env Env) (CLIResult, error) {
	a := &app{env: env}
	root := a.rootCommand()
	// cobra reads os.Args when given nil.
	if args == nil {
		args = []string{}
	}
	root.SetArgs(args)
	root.SetOut(env.stdout())
	root.SetErr(env.stderr())

	err := root.ExecuteContext(ctx)
	if err == nil {
		return a.result, nil
	}
	if !a.started {
		var invErr *InvocationError
		if !errors.As(err, &invErr) {
			err = &InvocationError{ExitCode: ExitInvalidInvocation, Message: err.Error(), Err: err}
		}
		return CLIResult{ExitCode: ExitCode(err)}, err
	}
	return a.result, err
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "jarscan",
		Short: "jarscan - record the packages of jar archives as properties files",
		Long: `jarscan scans jar archives and writes, for each one, a properties file
listing the Java packages the archive contains.

Results are cached by content hash, so unchanged archives are replayed
instead of rescanned.`,
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return invalidInvocationf("%v", err)
	})
	root.AddCommand(a.transformCommand(), a.scanCommand(), a.runsCommand())
	return root
}

func (a *app) transformCommand() *cobra.Command {
	var f transformFlags
	cmd := &cobra.Command{
		Use:   "transform [flags] <jar|dir|glob>...",
		Short: "Transform archives into package properties files",
		Long: `Transform resolves every argument to a set of archives (a file, the
archives directly inside a directory, or a glob), runs the jar analyzer
over them concurrently and writes one properties file per archive into
the output directory.

Flags override jarscan.yml, which overrides built-in defaults.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			inv, err := canonicalize(f, cmd.Flags().Changed, args)
			if err != nil {
				return err
			}
			a.started = true
			res, err := Execute(cmd.Context(), inv, a.env)
			a.result = res
			return err
		},
	}
	addWorkDirFlag(cmd.Flags(), &f.workDir)
	cmd.Flags().StringVar(&f.configPath, "config", "", "Config file (default: jarscan.yml in the work dir, if present)")
	cmd.Flags().StringVar(&f.outputDir, "output-dir", "", "Directory for properties files")
	cmd.Flags().StringVar(&f.cacheDir, "cache-dir", "", "Artifact cache directory")
	cmd.Flags().BoolVar(&f.noCache, "no-cache", false, "Neither read nor write the artifact cache")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "Archives processed at once (default: number of CPUs)")
	cmd.Flags().BoolVar(&f.failFast, "fail-fast", false, "Skip remaining archives after the first failure")
	cmd.Flags().StringVar(&f.tracePath, "trace", "", "Write the canonical run trace to this file")
	cmd.Flags().StringVar(&f.metricsPath, "metrics-file", "", "Write Prometheus metrics in textfile format to this file")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	return cmd
}

func addWorkDirFlag(fs *pflag.FlagSet, dst *string) {
	fs.StringVar(dst, "workdir", "", "Absolute working directory relative paths resolve against (default: current directory)")
}
