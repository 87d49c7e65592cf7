package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/aluiziolira/go-scrape-registry/browser"
	"github.com/aluiziolira/go-scrape-registry/config"
	"github.com/aluiziolira/go-scrape-registry/models"
	"github.com/aluiziolira/go-scrape-registry/pipeline"
	"github.com/aluiziolira/go-scrape-registry/scraper"
)

type scrapeOptions struct {
	startPage   int
	endPage     int
	output      string
	format      string
	metricsAddr string
	headless    bool
	browserName string
	install     bool
}

func newScrapeCmd(root *rootOptions) *cobra.Command {
	opts := &scrapeOptions{}
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Walks the registry page by page and appends every row to the output file.",
		Long: "Walks the registry page by page and appends every row to the output file.\n" +
			"Starting at page 1 creates the file; a later --start-page appends to the existing one,\n" +
			"so an interrupted run can be resumed from the page it reports.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			opts.apply(cmd, cfg)
			return runScrape(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	defaults := config.DefaultConfig()
	flags := cmd.Flags()
	flags.IntVar(&opts.startPage, "start-page", defaults.StartPage, "First page to scrape; above 1 resumes into the existing output")
	flags.IntVar(&opts.endPage, "end-page", defaults.EndPage, "Last page to scrape (0 scrapes through the last page)")
	flags.StringVar(&opts.output, "output", defaults.XLSXPath, "Output spreadsheet path")
	flags.StringVar(&opts.format, "format", defaults.OutputFormat, "Output formats: comma list of xlsx, csv, json")
	flags.StringVar(&opts.metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (e.g. :9090)")
	flags.BoolVar(&opts.headless, "headless", defaults.Browser.Headless, "Run the browser without a window")
	flags.StringVar(&opts.browserName, "browser", defaults.Browser.Name, "Browser engine: chromium, firefox or webkit")
	flags.BoolVar(&opts.install, "install-browsers", false, "Download the playwright driver and browser before starting")
	return cmd
}

// apply copies the flags set on the command line over the loaded config.
func (o *scrapeOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("start-page") {
		cfg.StartPage = o.startPage
	}
	if flags.Changed("end-page") {
		cfg.EndPage = o.endPage
	}
	if flags.Changed("output") {
		cfg.XLSXPath = o.output
	}
	if flags.Changed("format") {
		cfg.OutputFormat = strings.ToLower(o.format)
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = o.metricsAddr
	}
	if flags.Changed("headless") {
		cfg.Browser.Headless = o.headless
	}
	if flags.Changed("browser") {
		cfg.Browser.Name = o.browserName
	}
	if flags.Changed("install-browsers") {
		cfg.Browser.Install = o.install
	}
}

func runScrape(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	sink, err := buildSink(cfg)
	if err != nil {
		return err
	}

	slog.Info("starting scrape",
		slog.String("target_url", cfg.TargetURL),
		slog.Int("start_page", cfg.StartPage),
		slog.Int("end_page", cfg.EndPage),
		slog.String("output", sink.Path()),
		slog.String("browser", cfg.Browser.Name),
	)

	b, err := browser.NewPlaywright(browser.PlaywrightOptions{
		Name:              cfg.Browser.Name,
		Channel:           cfg.Browser.Channel,
		Headless:          cfg.Browser.Headless,
		SlowMo:            time.Duration(cfg.Browser.SlowMoMS) * time.Millisecond,
		NavigationTimeout: cfg.MaxWait,
		ActionTimeout:     cfg.AvgWait,
		UserAgent:         cfg.UserAgent,
		Install:           cfg.Browser.Install,
	})
	if err != nil {
		return fmt.Errorf("starting browser: %w", err)
	}
	defer func() {
		if err := b.Close(); err != nil {
			slog.Error("close browser", slog.Any("error", err))
		}
	}()

	s, err := scraper.NewScraper(cfg, b)
	if err != nil {
		return fmt.Errorf("initialising scraper: %w", err)
	}

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" && s.Metrics != nil {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", slog.Any("error", err))
			}
		}()
	}

	p, err := pipeline.NewPipeline(sink, cfg)
	if err != nil {
		return err
	}
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	result, runErr := s.Run(ctx, p)
	if err := p.Close(); err != nil {
		slog.Error("pipeline shutdown failed", slog.Any("error", err))
	}

	printSummary(out, result, sink.Path(), p.GetMetrics())
	if runErr != nil {
		slog.Error("scrape stopped",
			slog.Int("resume_page", result.NextPage),
			slog.String("state", result.State),
		)
		fmt.Fprintf(os.Stderr, "resume with: scraper scrape --start-page %d\n", result.NextPage)
		return runErr
	}
	return nil
}

func printSummary(out io.Writer, result *models.ScraperResult, output string, metrics map[string]interface{}) {
	separator := "--------------------------------------------------"
	fmt.Fprintln(out, "\n"+separator)
	if result.State == string(scraper.StateDone) {
		fmt.Fprintln(out, "Scrape complete")
	} else {
		fmt.Fprintln(out, "Scrape stopped")
	}

	duration := result.EndTime.Sub(result.StartTime)
	recordsPerSec := 0.0
	if duration.Seconds() > 0 {
		recordsPerSec = float64(result.TotalCount) / duration.Seconds()
	}

	fmt.Fprintf(out, "  Pages:         %d (from %d, last %d)\n", result.PageCount, result.StartPage, result.LastPage)
	fmt.Fprintf(out, "  Records:       %d\n", result.TotalCount)
	fmt.Fprintf(out, "  Resumed:       %v\n", result.Resumed)
	fmt.Fprintf(out, "  State:         %s\n", result.State)
	if dup, ok := metrics["duplicate_pages"].(int64); ok && dup > 0 {
		fmt.Fprintf(out, "  Stale pages:   %d\n", dup)
	}
	if len(result.ErrorsByType) > 0 {
		fmt.Fprintf(out, "  Error types:   %v\n", result.ErrorsByType)
	}
	fmt.Fprintf(out, "  Next page:     %d\n", result.NextPage)
	fmt.Fprintf(out, "  Duration:      %v\n", duration.Round(time.Millisecond))
	fmt.Fprintf(out, "  Records/sec:   %.2f\n", recordsPerSec)
	fmt.Fprintf(out, "  Output file:   %s\n", output)
	fmt.Fprintln(out, separator)
}
