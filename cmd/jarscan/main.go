package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"jarscan/internal/cli"
)

// Version information - set during build
var version = "dev"

// main maps the CLI outcome to the process exit code. Errors are printed
// once, here.
func main() {
	cli.Version = version

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	res, err := cli.Run(ctx, os.Args[1:], cli.Env{Stdout: os.Stdout, Stderr: os.Stderr})
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "jarscan:", err)
	}
	os.Exit(res.ExitCode)
}
