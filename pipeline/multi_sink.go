package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-registry/models"
)

// MultiSink fans every call out to several sinks in order.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink combines sinks. A single sink is returned unwrapped.
func NewMultiSink(sinks ...Sink) Sink {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) Create(headers []string) error {
	for _, s := range m.sinks {
		if err := s.Create(headers); err != nil {
			return fmt.Errorf("%s: %w", s.Path(), err)
		}
	}
	return nil
}

func (m *MultiSink) Append(records []models.Record) error {
	for _, s := range m.sinks {
		if err := s.Append(records); err != nil {
			return fmt.Errorf("%s: %w", s.Path(), err)
		}
	}
	return nil
}

// Validate returns the first hard failure. Header mismatches from several
// sinks are joined so that each one gets reported.
func (m *MultiSink) Validate(headers []string) error {
	var mismatches []error
	for _, s := range m.sinks {
		err := s.Validate(headers)
		switch {
		case err == nil:
		case errors.Is(err, ErrHeaderMismatch):
			mismatches = append(mismatches, err)
		default:
			return fmt.Errorf("%s: %w", s.Path(), err)
		}
	}
	return errors.Join(mismatches...)
}

func (m *MultiSink) Path() string {
	paths := make([]string, 0, len(m.sinks))
	for _, s := range m.sinks {
		paths = append(paths, s.Path())
	}
	return strings.Join(paths, ", ")
}
