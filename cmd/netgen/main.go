// Command netgen resolves a declarative component-model manifest directory
// into a runtime component network and prints the resulting plan.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/vk/netgen/internal/cli"
	"github.com/vk/netgen/internal/ctxlog"
	"github.com/vk/netgen/internal/instantiate"
	"github.com/vk/netgen/internal/modelhcl"
	"github.com/vk/netgen/internal/plan"
	"github.com/vk/netgen/internal/resolver"
)

func main() {
	// Use a minimal logger until Parse tells us the requested level/format.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := run(os.Stdout, os.Args[1:]); err != nil {
		if exitErr, ok := err.(*cli.ExitError); ok {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(outW io.Writer, args []string) error {
	cfg, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	logger := newLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)
	ctx := ctxlog.WithLogger(context.Background(), logger)

	reg, err := modelhcl.LoadDirectory(ctx, cfg.ManifestsPath)
	if err != nil {
		return fmt.Errorf("loading manifests: %w", err)
	}

	p := plan.New()
	for _, model := range cfg.Requirements {
		placeholder := p.NewTask(plan.KindGeneric, nil)
		p.RegisterRequirement(&plan.RequirementTask{
			Requirement: instantiate.NewBasicRequirement(reg, model, cfg.DeviceSelections, nil).WithStrictMode(cfg.Strict),
			Placeholder: placeholder,
		})
	}

	r := resolver.New(reg, nil)
	opts := resolver.DefaultOptions()
	opts.DotDir = cfg.DotDir
	opts.SavePlans = cfg.DotDir != ""

	if err := r.Resolve(ctx, p, opts); err != nil {
		return fmt.Errorf("resolve failed: %w", err)
	}

	for _, t := range p.AllTasks() {
		fmt.Fprintln(outW, t.String())
	}
	return nil
}

func newLogger(format, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}
