// Package scraper drives the registry portal page by page and hands every
// page to the persistence pipeline.
package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aluiziolira/go-scrape-registry/browser"
	"github.com/aluiziolira/go-scrape-registry/config"
	"github.com/aluiziolira/go-scrape-registry/models"
	"github.com/aluiziolira/go-scrape-registry/pipeline"
)

// State is a step of a scraping run.
type State string

const (
	StateInit           State = "init"
	StateSizeConfigured State = "size_configured"
	StatePositioned     State = "positioned"
	StateScraping       State = "scraping"
	StateDone           State = "done"
)

// Scraper runs one pass over the registry, from the configured start page to
// the last page (or the configured end page). It does not retry: any failure
// ends the run, and every page persisted before it stays on disk.
type Scraper struct {
	cfg       *config.Config
	loc       config.Locators
	nav       *Navigator
	extractor *Extractor
	Metrics   *Metrics

	state        State
	errorsByType map[string]int
}

// NewScraper builds a scraper driving b with the settings in cfg.
func NewScraper(cfg *config.Config, b browser.Browser) (*Scraper, error) {
	loc, err := cfg.Locators()
	if err != nil {
		return nil, fmt.Errorf("parse selectors: %w", err)
	}

	metrics := NewMetrics()
	timeouts := TimeoutsFromConfig(cfg)
	return &Scraper{
		cfg:          cfg,
		loc:          loc,
		nav:          NewNavigator(b, loc, timeouts, metrics),
		extractor:    NewExtractor(b, loc, cfg.Countries, len(cfg.Headers), timeouts, metrics),
		Metrics:      metrics,
		state:        StateInit,
		errorsByType: make(map[string]int),
	}, nil
}

// State returns the step the run has reached.
func (s *Scraper) State() State {
	return s.state
}

// Run scrapes pages into p. The returned result is never nil; on failure its
// NextPage is the page to restart from.
func (s *Scraper) Run(ctx context.Context, p *pipeline.Pipeline) (*models.ScraperResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	start := s.cfg.StartPage
	result := &models.ScraperResult{
		StartPage: start,
		NextPage:  start,
		Resumed:   start > 1,
		StartTime: time.Now(),
	}
	defer func() {
		result.EndTime = time.Now()
		result.State = string(s.state)
		result.ErrorsByType = s.snapshotErrors()
	}()

	s.setState(StateInit)
	if err := s.nav.Open(ctx, s.cfg.TargetURL); err != nil {
		return result, s.fail(err)
	}
	if err := s.nav.SetPageSize(ctx, s.loc.PageSizeOption); err != nil {
		return result, s.fail(err)
	}
	s.setState(StateSizeConfigured)

	if err := s.nav.JumpToPage(ctx, start); err != nil {
		return result, s.fail(err)
	}
	s.setState(StatePositioned)

	if err := p.Prepare(result.Resumed); err != nil {
		return result, s.fail(ErrPersist{Page: start, Err: err})
	}
	s.setState(StateScraping)

	last, err := s.nav.LastPage(ctx)
	if err != nil {
		return result, s.fail(err)
	}
	result.LastPage = last
	slog.Info("scraping registry",
		slog.Int("start_page", start),
		slog.Int("last_page", last),
		slog.Int("end_page", s.cfg.EndPage),
		slog.Bool("resumed", result.Resumed),
	)

	for s.inRange(s.nav.CurrentPage(), last) {
		page := s.nav.CurrentPage()
		if err := ctx.Err(); err != nil {
			return result, s.fail(err)
		}

		records, err := s.extractor.ExtractRows(ctx, page)
		if err != nil {
			return result, s.fail(err)
		}
		if err := p.Process(models.PageBatch{Number: page, Records: records}); err != nil {
			return result, s.fail(ErrPersist{Page: page, Err: err})
		}

		result.PageCount++
		result.TotalCount += len(records)
		result.NextPage = page + 1
		s.Metrics.ObservePage(len(records))
		slog.Info("page persisted",
			slog.Int("page", page),
			slog.Int("last_page", last),
			slog.Int("records", len(records)),
		)

		if s.cfg.EndPage > 0 && page >= s.cfg.EndPage {
			break
		}
		if err := s.nav.Advance(ctx); err != nil {
			return result, s.fail(err)
		}
	}

	s.setState(StateDone)
	return result, nil
}

func (s *Scraper) inRange(page, last int) bool {
	if page > last {
		return false
	}
	return s.cfg.EndPage <= 0 || page <= s.cfg.EndPage
}

func (s *Scraper) setState(state State) {
	if s.state != state {
		slog.Debug("scraper state", slog.String("from", string(s.state)), slog.String("to", string(state)))
	}
	s.state = state
}

func (s *Scraper) fail(err error) error {
	category := errorTypeLabel(err)
	s.errorsByType[category]++
	s.Metrics.IncError(category)
	return err
}

func (s *Scraper) snapshotErrors() map[string]int {
	out := make(map[string]int, len(s.errorsByType))
	for k, v := range s.errorsByType {
		out[k] = v
	}
	return out
}
