package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/xuri/excelize/v2"

	"github.com/aluiziolira/go-scrape-estates/config"
	"github.com/aluiziolira/go-scrape-estates/models"
)

// DefaultSheet is the sheet used when a destination names none.
const DefaultSheet = "Sheet1"

// OutputWriter defines the interface for data output. Writers append: opening
// an existing file keeps its rows and header.
type OutputWriter interface {
	Write(records []models.Record) error
	Close() error
	Validate() error
}

// NewWriter opens an appending writer chosen by the file extension.
func NewWriter(path, sheet string) (OutputWriter, error) {
	format, err := config.FormatOf(path)
	if err != nil {
		return nil, err
	}
	switch format {
	case "xlsx":
		return NewXLSXWriter(path, sheet)
	case "csv":
		return NewCSVWriter(path)
	default:
		return NewJSONWriter(path)
	}
}

// XLSXWriter appends records to one sheet of a workbook. Every Write saves the
// workbook so completed batches survive a crash.
type XLSXWriter struct {
	path    string
	sheet   string
	file    *excelize.File
	columns []string
	next    int
	mu      sync.Mutex
}

// NewXLSXWriter opens (or creates) path and positions after the last row of sheet.
func NewXLSXWriter(path, sheet string) (*XLSXWriter, error) {
	if sheet == "" {
		sheet = DefaultSheet
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}

	var f *excelize.File
	if _, err := os.Stat(path); err == nil {
		f, err = excelize.OpenFile(path)
		if err != nil {
			return nil, fmt.Errorf("open xlsx file: %w", err)
		}
	} else if errors.Is(err, os.ErrNotExist) {
		f = excelize.NewFile()
		if sheet != DefaultSheet {
			if err := f.SetSheetName(DefaultSheet, sheet); err != nil {
				f.Close()
				return nil, fmt.Errorf("name xlsx sheet: %w", err)
			}
		}
	} else {
		return nil, fmt.Errorf("stat xlsx file: %w", err)
	}

	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("lookup xlsx sheet: %w", err)
	}
	if idx < 0 {
		if _, err := f.NewSheet(sheet); err != nil {
			f.Close()
			return nil, fmt.Errorf("create xlsx sheet: %w", err)
		}
	}

	rows, err := f.GetRows(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("read xlsx rows: %w", err)
	}
	w := &XLSXWriter{path: path, sheet: sheet, file: f, next: len(rows) + 1}
	if len(rows) > 0 {
		w.columns = rows[0]
	} else {
		w.next = 2
	}
	return w, nil
}

// Write appends records, extending the header with unseen columns.
func (xw *XLSXWriter) Write(records []models.Record) error {
	xw.mu.Lock()
	defer xw.mu.Unlock()

	columns, changed := mergeColumns(xw.columns, records)
	if changed {
		header := make([]interface{}, len(columns))
		for i, c := range columns {
			header[i] = c
		}
		if err := xw.file.SetSheetRow(xw.sheet, "A1", &header); err != nil {
			return fmt.Errorf("write xlsx header: %w", err)
		}
		xw.columns = columns
	}

	for _, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, xw.next)
		if err != nil {
			return fmt.Errorf("xlsx cell name: %w", err)
		}
		row := cellValues(rec, xw.columns)
		if err := xw.file.SetSheetRow(xw.sheet, cell, &row); err != nil {
			return fmt.Errorf("write xlsx record: %w", err)
		}
		xw.next++
	}

	if err := xw.file.SaveAs(xw.path); err != nil {
		return fmt.Errorf("save xlsx file: %w", err)
	}
	return nil
}

// Close releases the workbook.
func (xw *XLSXWriter) Close() error {
	xw.mu.Lock()
	defer xw.mu.Unlock()
	return xw.file.Close()
}

// Validate ensures the workbook holds at least one record row.
func (xw *XLSXWriter) Validate() error {
	xw.mu.Lock()
	defer xw.mu.Unlock()
	if xw.next <= 2 {
		return fmt.Errorf("xlsx sheet %s has no records", xw.sheet)
	}
	return nil
}

// CSVWriter appends records to CSV. The header is fixed by the first write to
// a new file; columns outside it are not written.
type CSVWriter struct {
	file    *os.File
	writer  *csv.Writer
	columns []string
	mu      sync.Mutex
}

// NewCSVWriter opens filename for appending, reading the header of an
// existing file.
func NewCSVWriter(filename string) (*CSVWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	header, err := readCSVHeader(filename)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}

	return &CSVWriter{
		file:    f,
		writer:  csv.NewWriter(f),
		columns: header,
	}, nil
}

// Write appends records to the CSV output.
func (cw *CSVWriter) Write(records []models.Record) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.columns == nil {
		cw.columns, _ = mergeColumns(nil, records)
		if len(cw.columns) > 0 {
			if err := cw.writer.Write(cw.columns); err != nil {
				return fmt.Errorf("write csv header: %w", err)
			}
		}
	}

	for _, rec := range records {
		if err := cw.writer.Write(rec.Row(cw.columns)); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv records: %w", err)
	}
	return nil
}

// Close flushes and closes the file handle.
func (cw *CSVWriter) Close() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.writer.Flush()
	if err := cw.writer.Error(); err != nil {
		return fmt.Errorf("flush csv writer: %w", err)
	}
	return cw.file.Close()
}

// Validate ensures the file has content.
func (cw *CSVWriter) Validate() error {
	info, err := cw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat csv file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("csv file is empty")
	}
	return nil
}

// JSONWriter appends newline-delimited JSON records.
type JSONWriter struct {
	file    *os.File
	writer  *bufio.Writer
	encoder *json.Encoder
	mu      sync.Mutex
}

// NewJSONWriter opens filename for appending.
func NewJSONWriter(filename string) (*JSONWriter, error) {
	if err := ensureDir(filename); err != nil {
		return nil, err
	}

	f, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open json file: %w", err)
	}

	buffer := bufio.NewWriter(f)
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	return &JSONWriter{
		file:    f,
		writer:  buffer,
		encoder: encoder,
	}, nil
}

// Write appends records in JSONL format.
func (jw *JSONWriter) Write(records []models.Record) error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	for _, rec := range records {
		if err := jw.encoder.Encode(rec); err != nil {
			return fmt.Errorf("encode json record: %w", err)
		}
	}

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}

	return nil
}

// Close flushes buffers and closes the underlying file.
func (jw *JSONWriter) Close() error {
	jw.mu.Lock()
	defer jw.mu.Unlock()

	if err := jw.writer.Flush(); err != nil {
		return fmt.Errorf("flush json writer: %w", err)
	}
	return jw.file.Close()
}

// Validate ensures the JSON file has data.
func (jw *JSONWriter) Validate() error {
	info, err := jw.file.Stat()
	if err != nil {
		return fmt.Errorf("stat json file: %w", err)
	}
	if info.Size() <= 0 {
		return fmt.Errorf("json file is empty")
	}
	return nil
}

// mergeColumns appends the flattened columns of records missing from base.
func mergeColumns(base []string, records []models.Record) ([]string, bool) {
	seen := make(map[string]struct{}, len(base))
	for _, c := range base {
		seen[c] = struct{}{}
	}
	out := base
	changed := false
	for _, rec := range records {
		for _, c := range rec.Columns() {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			if !changed {
				out = append([]string(nil), base...)
				changed = true
			}
			out = append(out, c)
		}
	}
	return out, changed
}

func cellValues(rec models.Record, columns []string) []interface{} {
	values := make(map[string]models.Value, len(columns))
	for _, f := range rec.Flatten() {
		values[f.Name] = f.Value
	}
	row := make([]interface{}, len(columns))
	for i, c := range columns {
		v, ok := values[c]
		if !ok {
			row[i] = ""
			continue
		}
		if n, isNum := v.Number(); isNum {
			row[i] = n
			continue
		}
		row[i] = v.String()
	}
	return row
}

func readCSVHeader(filename string) ([]string, error) {
	f, err := os.Open(filename)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open csv file: %w", err)
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	return header, nil
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
