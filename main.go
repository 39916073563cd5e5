package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"portsweep/cli"
	"portsweep/logging"
)

func main() {
	// Logs go to stderr so stdout carries only progress and the report.
	opts := logging.Options{Level: slog.LevelWarn, Output: "stderr"}
	os.Exit(run(os.Args, os.Stdout, os.Stderr, opts))
}

func run(args []string, stdout, stderr io.Writer, logOpts logging.Options) int {
	if _, err := logging.Configure(logOpts); err != nil {
		fmt.Fprintf(stderr, "%s: %v\n", programName(args), err)
		return 1
	}
	return cli.NewRunner(stdout, stderr).Run(args)
}

func programName(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "portsweep"
}
