package browser

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
)

// Source loads the markup behind a URL for the static driver.
type Source interface {
	Load(ctx context.Context, url string) ([]byte, error)
}

// CollySource fetches pages over HTTP with a colly collector.
type CollySource struct {
	UserAgent string
	Timeout   time.Duration
	Transport http.RoundTripper
}

// Load issues a single GET and returns the response body.
func (s CollySource) Load(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	collector := colly.NewCollector()
	if s.UserAgent != "" {
		collector.UserAgent = s.UserAgent
	}
	if s.Timeout > 0 {
		collector.SetRequestTimeout(s.Timeout)
	}
	if s.Transport != nil {
		collector.WithTransport(s.Transport)
	}

	var body []byte
	status := 0
	collector.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	if err := collector.Visit(url); err != nil {
		if status != 0 {
			return nil, fmt.Errorf("fetch %s: status %d: %w", url, status, err)
		}
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if status >= http.StatusBadRequest {
		return nil, fmt.Errorf("fetch %s: status %d", url, status)
	}
	return body, nil
}

// FileSource reads pages saved on disk. Locations may carry a file:// prefix.
type FileSource struct{}

func (FileSource) Load(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(strings.TrimPrefix(location, "file://"))
	if err != nil {
		return nil, fmt.Errorf("read page: %w", err)
	}
	return data, nil
}

// SourceFor picks a CollySource for http(s) locations and a FileSource
// for everything else.
func SourceFor(location, userAgent string, timeout time.Duration) Source {
	lower := strings.ToLower(location)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return CollySource{UserAgent: userAgent, Timeout: timeout}
	}
	return FileSource{}
}
