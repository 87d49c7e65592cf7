package scraper

import (
	"context"
	"errors"
	"fmt"

	"github.com/aluiziolira/go-scrape-registry/browser"
	"github.com/aluiziolira/go-scrape-registry/config"
	"github.com/aluiziolira/go-scrape-registry/models"
	"github.com/aluiziolira/go-scrape-registry/parser"
)

// Extractor reads the registry table of the page currently showing.
type Extractor struct {
	finder    browser.Finder
	loc       config.Locators
	countries parser.CountryMap
	width     int
	timeouts  Timeouts
	metrics   *Metrics
}

// NewExtractor returns an Extractor producing records at most width fields
// wide.
func NewExtractor(f browser.Finder, loc config.Locators, countries parser.CountryMap, width int, timeouts Timeouts, metrics *Metrics) *Extractor {
	return &Extractor{
		finder:    f,
		loc:       loc,
		countries: countries,
		width:     width,
		timeouts:  timeouts,
		metrics:   metrics,
	}
}

// ExtractRows returns one record per table row, in row order. The first
// cell holds the registration countries and is decomposed from its marker
// spans; the other cells are taken as trimmed text. Rows without cells are
// skipped.
func (x *Extractor) ExtractRows(ctx context.Context, page int) ([]models.Record, error) {
	table, err := waitFor(ctx, x.finder, x.timeouts.Poll, x.timeouts.Element, tierElement, browser.Present(x.loc.Table), x.metrics)
	if err != nil {
		return nil, err
	}

	rows, err := table.FindAll(ctx, x.loc.Row)
	if err != nil {
		return nil, fmt.Errorf("page %d rows: %w", page, err)
	}

	records := make([]models.Record, 0, len(rows))
	for i, row := range rows {
		cells, err := row.FindAll(ctx, x.loc.Cell)
		if err != nil {
			return nil, fmt.Errorf("page %d row %d cells: %w", page, i+1, err)
		}
		if len(cells) == 0 {
			continue
		}
		if x.width > 0 && len(cells) > x.width {
			cells = cells[:x.width]
		}

		values := make([]string, 0, len(cells))
		first, err := x.properties(ctx, cells[0])
		if err != nil {
			return nil, fmt.Errorf("page %d row %d: %w", page, i+1, err)
		}
		values = append(values, first)

		for _, cell := range cells[1:] {
			text, err := cell.Text(ctx)
			if err != nil {
				return nil, fmt.Errorf("page %d row %d: %w", page, i+1, err)
			}
			values = append(values, parser.CleanText(text))
		}

		records = append(records, models.Record{Page: page, Values: values})
	}
	return records, nil
}

// properties decomposes the first cell into "country - value" pairs. A cell
// without markers yields its own text.
func (x *Extractor) properties(ctx context.Context, cell browser.Element) (string, error) {
	content, err := cell.Find(ctx, x.loc.CellContent)
	if errors.Is(err, browser.ErrNotFound) {
		content = cell
	} else if err != nil {
		return "", fmt.Errorf("cell content: %w", err)
	}

	spans, err := content.FindAll(ctx, x.loc.Marker)
	if err != nil {
		return "", fmt.Errorf("markers: %w", err)
	}
	if len(spans) == 0 {
		text, err := content.Text(ctx)
		if err != nil {
			return "", err
		}
		return parser.CleanText(text), nil
	}

	markers := make([]parser.Marker, 0, len(spans))
	for _, span := range spans {
		class, err := span.Attribute(ctx, "class")
		if err != nil {
			return "", fmt.Errorf("marker class: %w", err)
		}
		raw, err := span.Evaluate(ctx, browser.ScriptNextSiblingText)
		if err != nil {
			return "", fmt.Errorf("marker text: %w", err)
		}
		text, _ := raw.(string)
		markers = append(markers, parser.Marker{
			Code: parser.CountryCode(class),
			Text: parser.CleanText(text),
		})
	}
	return parser.FormatMarkers(markers, x.countries), nil
}
