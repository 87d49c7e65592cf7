package scraper

import (
	"context"
	"errors"
	"fmt"
)

// ErrTimeout indicates a barrier wait expired. Element names the condition
// that never held.
type ErrTimeout struct {
	Element string
	Err     error
}

func (e ErrTimeout) Error() string {
	return fmt.Sprintf("timeout waiting for %s: %v", e.Element, e.Err)
}

func (e ErrTimeout) Unwrap() error {
	return e.Err
}

// ErrMarkup indicates the page did not match the expected markup in a way
// that cannot be worked around, such as an unreadable page count.
type ErrMarkup struct {
	Err error
}

func (e ErrMarkup) Error() string {
	return fmt.Errorf("markup: %w", e.Err).Error()
}

func (e ErrMarkup) Unwrap() error {
	return e.Err
}

// ErrPersist indicates the rows of Page could not be written.
type ErrPersist struct {
	Page int
	Err  error
}

func (e ErrPersist) Error() string {
	return fmt.Sprintf("persist page %d: %v", e.Page, e.Err)
}

func (e ErrPersist) Unwrap() error {
	return e.Err
}

func errorTypeLabel(err error) string {
	if err == nil {
		return "unknown"
	}
	var timeout ErrTimeout
	if errors.As(err, &timeout) {
		return "timeout"
	}
	var markup ErrMarkup
	if errors.As(err, &markup) {
		return "markup"
	}
	var persist ErrPersist
	if errors.As(err, &persist) {
		return "persist"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "other"
}
