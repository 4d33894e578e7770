package cli

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
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

// Config holds everything the netgen CLI needs to run one resolve pass.
type Config struct {
	// ManifestsPath is a directory (or single file) of *.hcl component-model
	// manifests, loaded via internal/modelhcl.
	ManifestsPath string
	// Requirements names the component models to request, in order.
	Requirements []string
	// DeviceSelections maps "<service>_dev" argument names to device names,
	// applied to every requirement (spec §4.2's ResolvedDependencyInjection).
	DeviceSelections map[string]string
	// DotDir, if non-empty, is where dataflow/hierarchy dot dumps are
	// written after a successful resolve.
	DotDir string
	// Strict enables strict composition specialization mode: an ambiguous
	// specialization selection is reported instead of resolved by name order.
	Strict bool

	LogFormat string
	LogLevel  string
}

// Parse processes command-line arguments. It returns a populated Config, a
// boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("netgen", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
netgen - resolves a declarative component-model manifest into a runtime
component network.

Usage:
  netgen [options] MANIFESTS_PATH

Arguments:
  MANIFESTS_PATH
    Path to a single .hcl file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	requireFlag := flagSet.String("require", "", "Comma-separated component model names to resolve.")
	deviceFlag := flagSet.String("device", "", "Comma-separated svc_dev=device_name selections applied to every requirement.")
	dotDirFlag := flagSet.String("dot-dir", "", "Directory to write dataflow/hierarchy dot dumps to. Empty disables dumping.")
	strictFlag := flagSet.Bool("strict", false, "Report ambiguous composition specialization selections as errors instead of picking by name order.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	path := ""
	if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	if path == "" {
		slog.Debug("No manifests path provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}

	requirements := splitNonEmpty(*requireFlag)
	if len(requirements) == 0 {
		return nil, false, &ExitError{Code: 2, Message: "at least one -require model name is needed"}
	}

	selections, err := parseSelections(*deviceFlag)
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
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
	slog.Debug("CLI parameter validation complete.")

	config := &Config{
		ManifestsPath:    path,
		Requirements:     requirements,
		DeviceSelections: selections,
		DotDir:           *dotDirFlag,
		Strict:           *strictFlag,
		LogFormat:        logFormat,
		LogLevel:         logLevel,
	}
	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseSelections(s string) (map[string]string, error) {
	selections := make(map[string]string)
	for _, pair := range splitNonEmpty(s) {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, fmt.Errorf("invalid -device entry %q: expected svc_dev=device_name", pair)
		}
		selections[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return selections, nil
}
