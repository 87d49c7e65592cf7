package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-registry/browser"
	"github.com/aluiziolira/go-scrape-registry/config"
	"github.com/aluiziolira/go-scrape-registry/scraper"
)

type extractOptions struct {
	output string
	format string
	page   int
}

func newExtractCmd(root *rootOptions) *cobra.Command {
	opts := &extractOptions{}
	cmd := &cobra.Command{
		Use:   "extract <file|url>",
		Short: "Extracts the registry table from a saved page or URL without a browser.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			if flags := cmd.Flags(); flags.Changed("format") {
				cfg.OutputFormat = strings.ToLower(opts.format)
			}
			return runExtract(cmd.Context(), cfg, args[0], opts, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.output, "output", "", "Write a fresh output file instead of printing tab-separated rows")
	flags.StringVar(&opts.format, "format", config.FormatXLSX, "Output formats when --output is set: comma list of xlsx, csv, json")
	flags.IntVar(&opts.page, "page", 1, "Page number recorded for the extracted rows")
	return cmd
}

func runExtract(ctx context.Context, cfg *config.Config, location string, opts *extractOptions, out io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	loc, err := cfg.Locators()
	if err != nil {
		return err
	}

	b := browser.NewStatic(browser.SourceFor(location, cfg.UserAgent, cfg.AvgWait))
	defer b.Close()
	if err := b.Navigate(ctx, location); err != nil {
		return err
	}

	// A static document never changes, so a single check is enough.
	timeouts := scraper.TimeoutsFromConfig(cfg)
	timeouts.Element = timeouts.Poll

	x := scraper.NewExtractor(b, loc, cfg.Countries, len(cfg.Headers), timeouts, nil)
	records, err := x.ExtractRows(ctx, opts.page)
	if err != nil {
		return err
	}
	slog.Debug("rows extracted", slog.String("location", location), slog.Int("records", len(records)))

	if opts.output == "" {
		fmt.Fprintln(out, strings.Join(cfg.Headers, "\t"))
		for _, r := range records {
			fmt.Fprintln(out, strings.Join(r.Values, "\t"))
		}
		return nil
	}

	cfg.XLSXPath = opts.output
	sink, err := buildSink(cfg)
	if err != nil {
		return err
	}
	if err := sink.Create(cfg.Headers); err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if err := sink.Append(records); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	slog.Info("extract complete", slog.String("output", sink.Path()), slog.Int("records", len(records)))
	return nil
}
