package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/aluiziolira/go-scrape-registry/models"
)

// ErrHeaderMismatch is reported by Validate when an existing output file
// starts with different headers than the configured ones.
var ErrHeaderMismatch = errors.New("pipeline: header mismatch")

// Sink persists records to an output file that survives restarts.
type Sink interface {
	// Create writes a new file holding exactly one header row.
	Create(headers []string) error
	// Append adds records after the existing rows, in order.
	Append(records []models.Record) error
	// Validate checks that an existing file is readable and reports a
	// header mismatch with ErrHeaderMismatch.
	Validate(headers []string) error
	Path() string
}

// XLSXSink writes a single-sheet workbook. Every Append opens the file,
// adds rows to the active sheet and saves it again.
type XLSXSink struct {
	path  string
	sheet string
}

// NewXLSXSink returns a sink for path whose sheet is titled sheet.
func NewXLSXSink(path, sheet string) *XLSXSink {
	return &XLSXSink{path: path, sheet: sheet}
}

func (s *XLSXSink) Path() string {
	return s.path
}

// Create replaces any existing file with a workbook holding the header row.
func (s *XLSXSink) Create(headers []string) error {
	if err := ensureDir(s.path); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if s.sheet != "" && s.sheet != sheet {
		if err := f.SetSheetName(sheet, s.sheet); err != nil {
			return fmt.Errorf("rename sheet: %w", err)
		}
		sheet = s.sheet
	}

	row := append([]string(nil), headers...)
	if err := f.SetSheetRow(sheet, "A1", &row); err != nil {
		return fmt.Errorf("write xlsx header: %w", err)
	}
	if err := f.SaveAs(s.path); err != nil {
		return fmt.Errorf("save xlsx file: %w", err)
	}
	return nil
}

// Append adds one row per record below the last used row.
func (s *XLSXSink) Append(records []models.Record) error {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return fmt.Errorf("open xlsx file: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	next, err := nextFreeRow(f, sheet)
	if err != nil {
		return err
	}
	for _, record := range records {
		cell, err := excelize.CoordinatesToCellName(1, next)
		if err != nil {
			return err
		}
		values := append([]string(nil), record.Values...)
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return fmt.Errorf("write xlsx row %d: %w", next, err)
		}
		next++
	}
	if err := setNextFreeRow(f, next); err != nil {
		return err
	}

	if err := f.Save(); err != nil {
		return fmt.Errorf("save xlsx file: %w", err)
	}
	return nil
}

// nextRowName is a workbook-scoped name holding the first free row. GetRows
// drops trailing rows whose cells are all empty, so it cannot be the only
// source of the append position.
const nextRowName = "RegistryNextRow"

func nextFreeRow(f *excelize.File, sheet string) (int, error) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return 0, fmt.Errorf("read xlsx rows: %w", err)
	}
	next := len(rows) + 1
	for _, dn := range f.GetDefinedName() {
		if dn.Name != nextRowName {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimPrefix(dn.RefersTo, "=")); err == nil && n > next {
			next = n
		}
	}
	return next, nil
}

func setNextFreeRow(f *excelize.File, next int) error {
	for _, dn := range f.GetDefinedName() {
		if dn.Name != nextRowName {
			continue
		}
		if err := f.DeleteDefinedName(&excelize.DefinedName{Name: dn.Name, Scope: dn.Scope}); err != nil {
			return fmt.Errorf("update next row: %w", err)
		}
	}
	if err := f.SetDefinedName(&excelize.DefinedName{Name: nextRowName, RefersTo: strconv.Itoa(next)}); err != nil {
		return fmt.Errorf("update next row: %w", err)
	}
	return nil
}

func (s *XLSXSink) Validate(headers []string) error {
	f, err := excelize.OpenFile(s.path)
	if err != nil {
		return fmt.Errorf("open xlsx file: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(f.GetActiveSheetIndex()))
	if err != nil {
		return fmt.Errorf("read xlsx rows: %w", err)
	}
	var first []string
	if len(rows) > 0 {
		first = rows[0]
	}
	return compareHeaders(s.path, first, headers)
}

// CSVSink appends rows to a CSV file without rewriting it. Rows are padded
// to the header width so the file stays rectangular.
type CSVSink struct {
	path  string
	width int
}

func NewCSVSink(path string) *CSVSink {
	return &CSVSink{path: path}
}

func (s *CSVSink) Path() string {
	return s.path
}

func (s *CSVSink) Create(headers []string) error {
	if err := ensureDir(s.path); err != nil {
		return err
	}

	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("create csv file: %w", err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.Write(headers); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv header: %w", err)
	}
	s.width = len(headers)
	return f.Close()
}

func (s *CSVSink) Append(records []models.Record) error {
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	for _, record := range records {
		row := record.Values
		if len(row) < s.width {
			row = make([]string, s.width)
			copy(row, record.Values)
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return f.Close()
}

func (s *CSVSink) Validate(headers []string) error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()

	first, err := csv.NewReader(f).Read()
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("read csv header: %w", err)
	}
	s.width = len(headers)
	return compareHeaders(s.path, first, headers)
}

// JSONSink writes newline-delimited JSON objects keyed by header, plus the
// page the record came from. Fields a short row did not carry are omitted.
type JSONSink struct {
	path    string
	headers []string
}

func NewJSONSink(path string) *JSONSink {
	return &JSONSink{path: path}
}

func (s *JSONSink) Path() string {
	return s.path
}

func (s *JSONSink) Create(headers []string) error {
	if err := ensureDir(s.path); err != nil {
		return err
	}
	f, err := os.Create(s.path)
	if err != nil {
		return fmt.Errorf("create json file: %w", err)
	}
	s.headers = headers
	return f.Close()
}

func (s *JSONSink) Append(records []models.Record) error {
	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return fmt.Errorf("open json file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetEscapeHTML(false)
	for _, record := range records {
		obj := map[string]any{"page": record.Page}
		for i, value := range record.Values {
			if i < len(s.headers) {
				obj[s.headers[i]] = value
			}
		}
		if err := encoder.Encode(obj); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}
	return f.Close()
}

// Validate only checks the file is readable; JSONL carries no header row.
func (s *JSONSink) Validate(headers []string) error {
	info, err := os.Stat(s.path)
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("json output %s is a directory", s.path)
	}
	s.headers = headers
	return nil
}

func compareHeaders(path string, got, want []string) error {
	trimmed := make([]string, len(got))
	for i, h := range got {
		trimmed[i] = strings.TrimSpace(h)
	}
	if strings.Join(trimmed, "\x1f") != strings.Join(want, "\x1f") {
		return fmt.Errorf("%w in %s: file has %q, configured %q", ErrHeaderMismatch, path, trimmed, want)
	}
	return nil
}

func ensureDir(filename string) error {
	dir := filepath.Dir(filename)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}
	return nil
}
