package pipeline

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/aluiziolira/go-scrape-registry/config"
	"github.com/aluiziolira/go-scrape-registry/models"
)

type mockSink struct {
	calls       []string
	appended    [][]models.Record
	validateErr error
	appendErr   error
}

func (m *mockSink) Create(headers []string) error {
	m.calls = append(m.calls, "create")
	return nil
}

func (m *mockSink) Append(records []models.Record) error {
	m.calls = append(m.calls, "append")
	if m.appendErr != nil {
		return m.appendErr
	}
	m.appended = append(m.appended, records)
	return nil
}

func (m *mockSink) Validate(headers []string) error {
	m.calls = append(m.calls, "validate")
	return m.validateErr
}

func (m *mockSink) Path() string {
	return "mock"
}

func newTestPipeline(t *testing.T, sink Sink) *Pipeline {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.FingerprintCacheSize = 4
	p, err := NewPipeline(sink, cfg)
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p
}

func pageBatch(page, rows int) models.PageBatch {
	batch := models.PageBatch{Number: page}
	for i := 1; i <= rows; i++ {
		batch.Records = append(batch.Records, models.Record{
			Page:   page,
			Values: []string{fmt.Sprintf("p%d-r%d", page, i)},
		})
	}
	return batch
}

func TestPipelinePrepare(t *testing.T) {
	tests := []struct {
		name        string
		resume      bool
		validateErr error
		wantCalls   []string
		wantErr     bool
	}{
		{name: "fresh run creates", resume: false, wantCalls: []string{"create"}},
		{name: "resume validates only", resume: true, wantCalls: []string{"validate"}},
		{
			name:        "resume tolerates header mismatch",
			resume:      true,
			validateErr: fmt.Errorf("%w: x", ErrHeaderMismatch),
			wantCalls:   []string{"validate"},
		},
		{
			name:        "resume fails on missing file",
			resume:      true,
			validateErr: errors.New("open xlsx file: no such file"),
			wantCalls:   []string{"validate"},
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &mockSink{validateErr: tt.validateErr}
			p := newTestPipeline(t, sink)
			err := p.Prepare(tt.resume)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Prepare error = %v, wantErr %v", err, tt.wantErr)
			}
			if diff := cmp.Diff(tt.wantCalls, sink.calls); diff != "" {
				t.Fatalf("calls mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestPipelineProcessInOrder(t *testing.T) {
	sink := &mockSink{}
	p := newTestPipeline(t, sink)

	for page := 1; page <= 3; page++ {
		if err := p.Process(pageBatch(page, page)); err != nil {
			t.Fatalf("process page %d: %v", page, err)
		}
	}
	if err := p.Process(models.PageBatch{Number: 4}); err != nil {
		t.Fatalf("process empty page: %v", err)
	}

	if len(sink.appended) != 3 {
		t.Fatalf("appends=%d, want 3 (empty page skipped)", len(sink.appended))
	}
	for i, batch := range sink.appended {
		if len(batch) != i+1 || batch[0].Page != i+1 {
			t.Fatalf("append %d = %+v", i, batch)
		}
	}

	metrics := p.GetMetrics()
	if metrics["processed_records"].(int64) != 6 {
		t.Fatalf("processed=%v, want 6", metrics["processed_records"])
	}
	if metrics["pages"].(int64) != 4 {
		t.Fatalf("pages=%v, want 4", metrics["pages"])
	}
	if metrics["last_page"].(int) != 4 {
		t.Fatalf("last page=%v, want 4", metrics["last_page"])
	}
}

func TestPipelineDuplicatePages(t *testing.T) {
	sink := &mockSink{}
	p := newTestPipeline(t, sink)

	first := pageBatch(5, 2)
	stale := models.PageBatch{Number: 6, Records: first.Records}

	if err := p.Process(first); err != nil {
		t.Fatalf("process: %v", err)
	}
	if err := p.Process(stale); err != nil {
		t.Fatalf("process stale page: %v", err)
	}

	if got := p.GetMetrics()["duplicate_pages"].(int64); got != 1 {
		t.Fatalf("duplicate pages=%d, want 1", got)
	}
	if len(sink.appended) != 2 {
		t.Fatalf("duplicate page should still be written, appends=%d", len(sink.appended))
	}
}

func TestPipelineAppendError(t *testing.T) {
	cause := errors.New("disk full")
	p := newTestPipeline(t, &mockSink{appendErr: cause})

	err := p.Process(pageBatch(2, 1))
	if !errors.Is(err, cause) {
		t.Fatalf("expected wrapped sink error, got %v", err)
	}
	if p.GetMetrics()["pages"].(int64) != 0 {
		t.Fatalf("failed page should not be counted")
	}
}

func TestPipelineClosed(t *testing.T) {
	p := newTestPipeline(t, &mockSink{})
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if err := p.Process(pageBatch(1, 1)); !errors.Is(err, ErrPipelineClosed) {
		t.Fatalf("expected ErrPipelineClosed, got %v", err)
	}
}
