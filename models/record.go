// Package models defines data structures for the scraper.
package models

import "time"

// Record is one registry table row. Values are aligned positionally with the
// configured headers and may be shorter than them.
type Record struct {
	Page   int      `json:"page"`
	Values []string `json:"values"`
}

// Value returns the i-th field, or "" when the row did not carry it.
func (r Record) Value(i int) string {
	if i < 0 || i >= len(r.Values) {
		return ""
	}
	return r.Values[i]
}

// PageBatch holds the records scraped from a single page, in row order.
type PageBatch struct {
	Number  int
	Records []Record
}

// ScraperResult holds the overall result of a scraping run.
type ScraperResult struct {
	StartPage    int
	LastPage     int
	NextPage     int
	PageCount    int
	TotalCount   int
	Resumed      bool
	State        string
	StartTime    time.Time
	EndTime      time.Time
	ErrorsByType map[string]int
}
