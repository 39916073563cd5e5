package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/netip"
	"strconv"

	"portsweep/scanner"
)

var (
	ErrHelp           = errors.New("help")
	ErrArgumentCount  = errors.New("invalid number of arguments")
	ErrUnknownFlag    = errors.New("unknown flag")
	ErrInvalidAddress = errors.New("not a valid IP address")
	ErrInvalidThreads = errors.New("failed to parse thread count")
)

// Arguments are the validated command-line inputs.
type Arguments struct {
	Target  netip.Addr
	Threads uint16
}

// ParseArguments validates argv, including the program name at index 0.
// Accepted shapes are "<IP>", "-h", "-help" and "-j <THREADS> <IP>".
func ParseArguments(args []string) (Arguments, error) {
	switch len(args) {
	case 2:
		return parseSingle(args[1])
	case 4:
		return parseFlagged(args[1:])
	default:
		return Arguments{}, ErrArgumentCount
	}
}

func parseSingle(arg string) (Arguments, error) {
	if arg == "-h" || arg == "-help" {
		return Arguments{}, ErrHelp
	}
	addr, err := netip.ParseAddr(arg)
	if err != nil {
		return Arguments{}, ErrInvalidAddress
	}
	return Arguments{Target: addr, Threads: scanner.DefaultWorkers}, nil
}

func parseFlagged(args []string) (Arguments, error) {
	if args[0] != "-j" {
		return Arguments{}, ErrUnknownFlag
	}
	threads, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil || threads == 0 {
		return Arguments{}, ErrInvalidThreads
	}
	addr, err := netip.ParseAddr(args[2])
	if err != nil {
		return Arguments{}, ErrInvalidAddress
	}
	return Arguments{Target: addr, Threads: uint16(threads)}, nil
}

// Runner executes the command line against a prober and output streams.
type Runner struct {
	Prober scanner.Prober
	Stdout io.Writer
	Stderr io.Writer
}

// NewRunner returns a Runner that dials real TCP connections without a deadline.
func NewRunner(stdout, stderr io.Writer) *Runner {
	return &Runner{
		Prober: scanner.NewTCPConnectProber(0),
		Stdout: stdout,
		Stderr: stderr,
	}
}

// Run is the main entry point for the CLI application. It parses args,
// runs the scan and returns the process exit code.
func (r *Runner) Run(args []string) int {
	program := "portsweep"
	if len(args) > 0 {
		program = args[0]
	}

	arguments, err := ParseArguments(args)
	if errors.Is(err, ErrHelp) {
		printUsage(r.Stdout)
		return 0
	}
	if err != nil {
		fmt.Fprintf(r.Stderr, "%s problem parsing arguments: %v\n", program, err)
		return 1
	}

	cfg, err := scanner.NewScanConfig(arguments.Target, int(arguments.Threads))
	if err != nil {
		fmt.Fprintf(r.Stderr, "%s problem parsing arguments: %v\n", program, err)
		return 1
	}

	report := scanner.ExecuteScan(context.Background(), cfg, r.Prober, r.Stdout)

	// Terminate the progress line before the report.
	fmt.Fprintln(r.Stdout)
	if err := report.Render(r.Stdout); err != nil {
		fmt.Fprintf(r.Stderr, "%s failed to write report: %v\n", program, err)
		return 1
	}
	return 0
}

// printUsage displays the help message.
func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  portsweep <IP>")
	fmt.Fprintln(w, "  portsweep -j <THREADS> <IP>")
}
