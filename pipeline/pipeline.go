// Package pipeline persists scraped pages to the configured output files.
package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aluiziolira/go-scrape-registry/config"
	"github.com/aluiziolira/go-scrape-registry/models"
)

var (
	// ErrPipelineClosed is returned when Process is called after shutdown.
	ErrPipelineClosed = errors.New("pipeline: closed")
)

// Pipeline writes page batches to a Sink one page at a time, in the order
// they are handed over. It also remembers recent page fingerprints to flag
// a portal serving the same rows for two different pages.
type Pipeline struct {
	sink         Sink
	headers      []string
	fingerprints *lru.Cache[string, int]

	metrics metrics

	mu     sync.Mutex // guards closed
	closed bool

	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// NewPipeline builds a pipeline writing cfg.Headers-shaped rows to sink.
func NewPipeline(sink Sink, cfg *config.Config) (*Pipeline, error) {
	size := cfg.FingerprintCacheSize
	if size <= 0 {
		size = config.DefaultConfig().FingerprintCacheSize
	}
	cache, err := lru.New[string, int](size)
	if err != nil {
		return nil, fmt.Errorf("fingerprint cache: %w", err)
	}

	return &Pipeline{
		sink:         sink,
		headers:      append([]string(nil), cfg.Headers...),
		fingerprints: cache,
		metrics:      newMetrics(),
		shutdown:     make(chan struct{}),
	}, nil
}

// Prepare readies the output. A fresh run creates the file with its header
// row; a resumed run never recreates it and only checks it can be appended
// to. Header mismatches on resume are logged, not fatal.
func (p *Pipeline) Prepare(resume bool) error {
	if !resume {
		if err := p.sink.Create(p.headers); err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		slog.Debug("output created", slog.String("path", p.sink.Path()))
		return nil
	}

	err := p.sink.Validate(p.headers)
	switch {
	case err == nil:
	case errors.Is(err, ErrHeaderMismatch):
		slog.Warn("existing output has different headers, appending anyway",
			slog.String("path", p.sink.Path()),
			slog.Any("error", err),
		)
	default:
		return fmt.Errorf("resume output: %w", err)
	}
	return nil
}

// Process appends the rows of one page. It returns only after the sink has
// persisted them.
func (p *Pipeline) Process(batch models.PageBatch) error {
	if p.isClosed() {
		return ErrPipelineClosed
	}

	if len(batch.Records) > 0 {
		fp := fingerprint(batch.Records)
		if prev, ok := p.fingerprints.Get(fp); ok && prev != batch.Number {
			p.metrics.addDuplicate()
			slog.Warn("page content identical to an earlier page",
				slog.Int("page", batch.Number),
				slog.Int("earlier_page", prev),
			)
		}
		p.fingerprints.Add(fp, batch.Number)

		if err := p.sink.Append(batch.Records); err != nil {
			return fmt.Errorf("append page %d: %w", batch.Number, err)
		}
	}

	p.metrics.addPage(batch.Number, len(batch.Records))
	return nil
}

// Close prevents more submissions and stops the progress reporter.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	p.shutdownOnce.Do(func() {
		close(p.shutdown)
	})
	return nil
}

// GetMetrics returns a snapshot of the internal counters.
func (p *Pipeline) GetMetrics() map[string]interface{} {
	return p.metrics.snapshot()
}

// StartMetricsReporting emits periodic progress logs until Close.
func (p *Pipeline) StartMetricsReporting(interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				metrics := p.GetMetrics()
				slog.Info("pipeline progress",
					slog.Int64("records", metrics["processed_records"].(int64)),
					slog.Int64("pages", metrics["pages"].(int64)),
					slog.Int("last_page", metrics["last_page"].(int)),
				)
			case <-p.shutdown:
				return
			}
		}
	}()
}

func (p *Pipeline) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func fingerprint(records []models.Record) string {
	h := sha256.New()
	for _, r := range records {
		h.Write([]byte(strings.Join(r.Values, "\x1f")))
		h.Write([]byte{0x1e})
	}
	return hex.EncodeToString(h.Sum(nil))
}

type metrics struct {
	mu         sync.Mutex
	processed  int64
	pages      int64
	duplicates int64
	lastPage   int
}

func newMetrics() metrics {
	return metrics{}
}

func (m *metrics) addPage(page, records int) {
	m.mu.Lock()
	m.pages++
	m.processed += int64(records)
	m.lastPage = page
	m.mu.Unlock()
}

func (m *metrics) addDuplicate() {
	m.mu.Lock()
	m.duplicates++
	m.mu.Unlock()
}

func (m *metrics) snapshot() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	return map[string]interface{}{
		"processed_records": m.processed,
		"pages":             m.pages,
		"duplicate_pages":   m.duplicates,
		"last_page":         m.lastPage,
	}
}
