package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-registry/config"
	"github.com/aluiziolira/go-scrape-registry/pipeline"
)

type rootOptions struct {
	configPath string
	verbose    bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		slog.Error("command failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "scraper",
		Short:         "Scrapes the EAEU drug registry into a spreadsheet.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogging(opts.verbose)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "YAML config file (default "+config.DefaultConfigPath+" when present)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose logging")

	cmd.AddCommand(newScrapeCmd(opts), newExtractCmd(opts))
	return cmd
}

// loadConfig reads the config file and environment. Flags explicitly set on
// the command line are applied afterwards by the caller.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	switch {
	case opts.verbose:
		cfg.Verbose = true
	case cfg.Verbose:
		// verbose: true in the config file enables debug logs too.
		setupLogging(true)
	}
	return cfg, nil
}

func setupLogging(verbose bool) {
	logger, level := newLogger(verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())
}

// buildSink returns one sink per configured output format.
func buildSink(cfg *config.Config) (pipeline.Sink, error) {
	var sinks []pipeline.Sink
	for _, format := range cfg.Formats() {
		path := cfg.OutputPath(format)
		switch format {
		case config.FormatXLSX:
			sinks = append(sinks, pipeline.NewXLSXSink(path, cfg.XLSXPageTitle))
		case config.FormatCSV:
			sinks = append(sinks, pipeline.NewCSVSink(path))
		case config.FormatJSON:
			sinks = append(sinks, pipeline.NewJSONSink(path))
		default:
			return nil, fmt.Errorf("unsupported format: %s", format)
		}
	}
	if len(sinks) == 0 {
		return nil, fmt.Errorf("no output format configured")
	}
	return pipeline.NewMultiSink(sinks...), nil
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stderr) {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
