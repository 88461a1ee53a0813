package pipeline

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/xuri/excelize/v2"

	"github.com/aluiziolira/go-scrape-estates/models"
)

func deal(name string, total float64) models.Record {
	price := models.NewBuilder(2).
		SetString("单价", "65000元/平").
		Set("总价", models.Number(total)).
		Build()
	return models.NewBuilder(3).
		SetString("房源名称", name).
		SetString("所在区域", "南山区").
		Set("价格信息", models.Group(price)).
		Build()
}

func TestXLSXWriterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "deals.xlsx")

	w, err := NewXLSXWriter(path, "成交")
	if err != nil {
		t.Fatalf("create xlsx writer: %v", err)
	}
	if err := w.Write([]models.Record{deal("A", 500)}); err != nil {
		t.Fatalf("write xlsx: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close xlsx: %v", err)
	}

	w, err = NewXLSXWriter(path, "成交")
	if err != nil {
		t.Fatalf("reopen xlsx writer: %v", err)
	}
	if err := w.Write([]models.Record{deal("B", 620.5)}); err != nil {
		t.Fatalf("append xlsx: %v", err)
	}
	if err := w.Validate(); err != nil {
		t.Fatalf("validate xlsx: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close xlsx: %v", err)
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		t.Fatalf("open xlsx: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("成交")
	if err != nil {
		t.Fatalf("read rows: %v", err)
	}
	want := [][]string{
		{"房源名称", "所在区域", "价格信息.单价", "价格信息.总价"},
		{"A", "南山区", "65000元/平", "500"},
		{"B", "南山区", "65000元/平", "620.5"},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("xlsx rows mismatch (-want +got):\n%s", diff)
	}
}

func TestCSVWriterAppendsUnderExistingHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deals.csv")

	for _, name := range []string{"A", "B"} {
		w, err := NewCSVWriter(path)
		if err != nil {
			t.Fatalf("create csv writer: %v", err)
		}
		if err := w.Write([]models.Record{deal(name, 1)}); err != nil {
			t.Fatalf("write csv: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("close csv: %v", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records=%d, want 3", len(records))
	}
	if records[0][0] != "房源名称" || records[0][3] != "价格信息.总价" {
		t.Fatalf("unexpected header: %v", records[0])
	}
	if records[2][0] != "B" {
		t.Fatalf("unexpected last row: %v", records[2])
	}
}

func TestJSONWriterWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deals.jsonl")

	writer, err := NewJSONWriter(path)
	if err != nil {
		t.Fatalf("create json writer: %v", err)
	}
	if err := writer.Write([]models.Record{deal("A", 500)}); err != nil {
		t.Fatalf("write json: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close json: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open json: %v", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatalf("expected one json line")
	}
	var decoded map[string]any
	if err := json.Unmarshal(scanner.Bytes(), &decoded); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	price, ok := decoded["价格信息"].(map[string]any)
	if !ok || price["总价"] != float64(500) {
		t.Fatalf("unexpected nested price: %v", decoded["价格信息"])
	}
}

func TestMultiWriterFansOut(t *testing.T) {
	dir := t.TempDir()
	xlsx := filepath.Join(dir, "deals.xlsx")
	jsonl := filepath.Join(dir, "deals.jsonl")

	mw, err := NewMultiWriter("", xlsx, jsonl)
	if err != nil {
		t.Fatalf("create multi writer: %v", err)
	}
	if err := mw.Write([]models.Record{deal("A", 1)}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := mw.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	for _, p := range []string{xlsx, jsonl} {
		if info, err := os.Stat(p); err != nil || info.Size() == 0 {
			t.Fatalf("expected %s to be written, err=%v", p, err)
		}
	}

	if _, err := NewMultiWriter("", filepath.Join(dir, "bad.parquet")); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestMergeColumns(t *testing.T) {
	base := []string{"a"}
	recs := []models.Record{
		models.NewBuilder(2).SetString("a", "1").SetString("b", "2").Build(),
		models.NewBuilder(1).SetString("c", "3").Build(),
	}
	got, changed := mergeColumns(base, recs)
	if !changed {
		t.Fatalf("expected columns to change")
	}
	if diff := cmp.Diff([]string{"a", "b", "c"}, got); diff != "" {
		t.Fatalf("columns mismatch (-want +got):\n%s", diff)
	}
	if len(base) != 1 {
		t.Fatalf("base slice was modified: %v", base)
	}
	if _, changed := mergeColumns(got, recs); changed {
		t.Fatalf("expected no change for known columns")
	}
}
