// Package cli parses command-line arguments into a Config, validates user
// input, and runs the trace to manifest pipeline for the wfgraph binary.
package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Config holds everything Run needs.
type Config struct {
	Traces        []string
	OutDir        string
	Filter        string
	Validate      bool
	KeepEmpty     bool
	RedisAddr     string
	RedisDB       int
	RedisPassword string
	MachineID     uint16
	LogLevel      string
	LogFormat     string
}

// pathList collects a repeatable string flag.
type pathList []string

func (p *pathList) String() string { return strings.Join(*p, ",") }

func (p *pathList) Set(v string) error {
	*p = append(*p, v)
	return nil
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("wfgraph", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
wfgraph - Builds workflow graph manifests from recorded visitor traces.

Usage:
  wfgraph [options] [TRACE...]

Arguments:
  TRACE
    Path to an .hcl trace file describing one compilation unit.

Options:
`)
		flagSet.PrintDefaults()
	}

	var traces pathList
	flagSet.Var(&traces, "trace", "Path to a trace file. May be repeated.")
	outDirFlag := flagSet.String("out-dir", "", "Directory for <source>.graph.json files. Empty writes JSON to stdout.")
	filterFlag := flagSet.String("filter", "", "Expression selecting which workflows to emit, e.g. 'finished && nodeCount > 3'.")
	validateFlag := flagSet.Bool("validate", true, "Check each graph's structure before emitting it.")
	keepEmptyFlag := flagSet.Bool("keep-empty", false, "Emit a manifest even when the filter matched no workflow.")
	redisAddrFlag := flagSet.String("redis-addr", "", "Redis address for manifest records. Empty keeps them in memory.")
	redisDBFlag := flagSet.Int("redis-db", 0, "Redis database number.")
	redisPasswordFlag := flagSet.String("redis-password", "", "Redis password.")
	machineIDFlag := flagSet.Int("machine-id", 1, "Snowflake machine ID for record IDs.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	paths := append([]string(nil), traces...)
	paths = append(paths, flagSet.Args()...)
	if len(paths) == 0 {
		slog.Debug("No trace provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	if *machineIDFlag < 0 || *machineIDFlag > math.MaxUint16 {
		return nil, false, &ExitError{Code: 2, Message: "invalid machine-id: must be between 0 and 65535"}
	}
	if *redisDBFlag < 0 {
		return nil, false, &ExitError{Code: 2, Message: "invalid redis-db: must not be negative"}
	}

	cfg := &Config{
		Traces:        paths,
		OutDir:        *outDirFlag,
		Filter:        *filterFlag,
		Validate:      *validateFlag,
		KeepEmpty:     *keepEmptyFlag,
		RedisAddr:     *redisAddrFlag,
		RedisDB:       *redisDBFlag,
		RedisPassword: *redisPasswordFlag,
		MachineID:     uint16(*machineIDFlag),
		LogLevel:      logLevel,
		LogFormat:     logFormat,
	}
	slog.Debug("CLI parser finished successfully.", "config", cfg)
	return cfg, false, nil
}
