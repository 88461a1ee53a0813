package parser

import (
	"testing"
	"time"

	"github.com/aluiziolira/go-scrape-estates/browser"
	"github.com/aluiziolira/go-scrape-estates/models"
)

// countingScope serves fixed text per locator and records every lookup.
type countingScope struct {
	text  map[browser.Locator]string
	attrs map[browser.Locator]map[string]string
	calls []browser.Locator
}

func (s *countingScope) FindOne(loc browser.Locator) (browser.Element, error) {
	s.calls = append(s.calls, loc)
	text, ok := s.text[loc]
	if !ok {
		if _, hasAttrs := s.attrs[loc]; !hasAttrs {
			return nil, browser.ErrNotFound
		}
	}
	return &staticElement{text: text, attrs: s.attrs[loc]}, nil
}

func (s *countingScope) FindAll(loc browser.Locator) ([]browser.Element, error) {
	el, err := s.FindOne(loc)
	if err != nil {
		return nil, nil
	}
	return []browser.Element{el}, nil
}

type staticElement struct {
	text  string
	attrs map[string]string
}

func (e *staticElement) FindOne(browser.Locator) (browser.Element, error) {
	return nil, browser.ErrNotFound
}
func (e *staticElement) FindAll(browser.Locator) ([]browser.Element, error) { return nil, nil }
func (e *staticElement) Text() (string, error)                              { return e.text, nil }
func (e *staticElement) Attribute(name string) (string, error) {
	v, ok := e.attrs[name]
	if !ok {
		return "", browser.ErrNotFound
	}
	return v, nil
}
func (e *staticElement) HTML() (string, error) { return e.text, nil }
func (e *staticElement) Click() error          { return browser.ErrUnsupported }
func (e *staticElement) Hover() error          { return browser.ErrUnsupported }
func (e *staticElement) ScrollIntoView() error { return browser.ErrUnsupported }

func TestExtractFirstSuccessWins(t *testing.T) {
	first := browser.CSS("#primary")
	second := browser.CSS("#secondary")
	third := browser.CSS("#tertiary")
	scope := &countingScope{text: map[browser.Locator]string{
		second: "加价幅度： ￥ 5,000",
		third:  "should not be read",
	}}

	table := Table{
		Field("increment",
			Text(first),
			Text(second).Match(`加价幅度：\s*￥\s*([\d,]+)`).Then(ToNumber),
			Text(third),
		),
	}
	rec, missing := Extract(scope, table)
	if len(missing) != 0 {
		t.Fatalf("expected no missing fields, got %v", missing)
	}
	v, ok := rec.Get("increment")
	n, isNum := v.Number()
	if !ok || !isNum || n != 5000 {
		t.Fatalf("unexpected increment %#v", v)
	}
	if len(scope.calls) != 2 || scope.calls[0] != first || scope.calls[1] != second {
		t.Fatalf("expected lookups [first second], got %v", scope.calls)
	}
}

func TestExtractAllStrategiesFail(t *testing.T) {
	scope := &countingScope{text: map[browser.Locator]string{
		browser.CSS(".price"): "no digits here",
		browser.CSS(".blank"): "   ",
	}}
	table := Table{
		Field("title", Text(browser.CSS(".title"))),
		Field("price",
			Text(browser.CSS(".price")).Match(`([\d,]+)元`),
			Text(browser.CSS(".blank")),
		),
	}
	rec, missing := Extract(scope, table)
	if rec.Len() != 2 {
		t.Fatalf("expected both columns present, got %v", rec.Names())
	}
	if rec.Text("title") != "" || rec.Text("price") != "" {
		t.Fatalf("expected empty values, got %q %q", rec.Text("title"), rec.Text("price"))
	}
	if len(missing) != 2 || missing[0] != "title" || missing[1] != "price" {
		t.Fatalf("unexpected missing %v", missing)
	}
}

func TestExtractAttributeAndWholeMatch(t *testing.T) {
	link := browser.CSS("a.detail")
	scope := &countingScope{
		text:  map[browser.Locator]string{browser.CSS(".time"): "开拍时间 2024-03-01 10:00:00 截止"},
		attrs: map[browser.Locator]map[string]string{link: {"href": "https://auction.example/d/7"}},
	}
	table := Table{
		Field("url", Attr(link, "href")),
		Field("start", Text(browser.CSS(".time")).Match(`\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}`)),
	}
	rec, missing := Extract(scope, table)
	if len(missing) != 0 {
		t.Fatalf("unexpected missing %v", missing)
	}
	if got := rec.Text("url"); got != "https://auction.example/d/7" {
		t.Fatalf("unexpected url %q", got)
	}
	if got := rec.Text("start"); got != "2024-03-01 10:00:00" {
		t.Fatalf("unexpected start %q", got)
	}
	if cols := table.Columns(); len(cols) != 2 || cols[0] != "url" {
		t.Fatalf("unexpected columns %v", cols)
	}
}

func TestToNumber(t *testing.T) {
	tests := []struct {
		in      string
		kind    models.Kind
		wantNum float64
		wantStr string
	}{
		{in: "1,234,567", kind: models.KindNumber, wantNum: 1234567},
		{in: " 12.5 ", kind: models.KindNumber, wantNum: 12.5},
		{in: "￥8,000", kind: models.KindNumber, wantNum: 8000},
		{in: "面议", kind: models.KindString, wantStr: "面议"},
	}
	for _, tt := range tests {
		v := ToNumber(tt.in)
		if v.Kind() != tt.kind {
			t.Fatalf("ToNumber(%q) kind = %v, want %v", tt.in, v.Kind(), tt.kind)
		}
		if n, _ := v.Number(); tt.kind == models.KindNumber && n != tt.wantNum {
			t.Fatalf("ToNumber(%q) = %v, want %v", tt.in, n, tt.wantNum)
		}
		if tt.kind == models.KindString && v.String() != tt.wantStr {
			t.Fatalf("ToNumber(%q) = %q, want %q", tt.in, v.String(), tt.wantStr)
		}
	}
}

func TestValidateRecord(t *testing.T) {
	if err := ValidateRecord(models.Record{}, "asset_name"); err == nil {
		t.Fatalf("expected error for empty record")
	}
	missing := models.NewRecord(models.Field{Name: "asset_name", Value: models.String(" ")})
	if err := ValidateRecord(missing, "asset_name"); err == nil {
		t.Fatalf("expected error for blank key")
	}
	ok := models.NewRecord(models.Field{Name: "asset_name", Value: models.String("Lot 1")})
	if err := ValidateRecord(ok, "asset_name"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	for _, in := range []string{"2024-05-06 07:08:09", "2024年05月06日 07:08:09"} {
		got, err := ParseTimestamp(in)
		if err != nil {
			t.Fatalf("ParseTimestamp(%q): %v", in, err)
		}
		if !got.Equal(want) {
			t.Fatalf("ParseTimestamp(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseTimestamp("yesterday"); err == nil {
		t.Fatalf("expected error for unknown format")
	}
}

func TestStatusAndVariantHelpers(t *testing.T) {
	for _, s := range []string{"已结束", " 已暂缓 ", "已中止"} {
		if !IsFinalized(s) {
			t.Fatalf("expected %q to be finalized", s)
		}
	}
	if IsFinalized("正在进行") {
		t.Fatalf("in-progress status reported finalized")
	}
	if !IsResale("【变卖】某小区住宅") || !IsResale("某小区住宅（变卖）") {
		t.Fatalf("resale keyword not detected")
	}
	if IsResale("【一拍】某小区住宅") {
		t.Fatalf("standard listing reported as resale")
	}
	if got := AssetKey("【二拍】深圳市某小区101房"); got != "深圳市某小区101房" {
		t.Fatalf("unexpected key %q", got)
	}
	if got := AssetKey("plain name"); got != "plain name" {
		t.Fatalf("unexpected key %q", got)
	}
}

func TestParseTable(t *testing.T) {
	const fragment = `<div><table>
<tr><th>标的物</th><th>面积</th></tr>
<tr><td>房产 <b>A</b></td><td>88.5</td></tr>
<tr><td>车位</td></tr>
</table></div>`
	header, rows, err := ParseTable(fragment)
	if err != nil {
		t.Fatalf("ParseTable: %v", err)
	}
	if len(header) != 2 || header[0] != "标的物" {
		t.Fatalf("unexpected header %v", header)
	}
	if len(rows) != 2 || rows[0][0] != "房产 A" {
		t.Fatalf("unexpected rows %v", rows)
	}
	recs := TableRecords(header, rows)
	if recs[1].Text("面积") != "" || recs[1].Text("标的物") != "车位" {
		t.Fatalf("short row not padded: %v", recs[1].Fields())
	}

	header, _, err = ParseTable(`<table><tr><td>a</td><td>b</td><td>c</td></tr></table>`)
	if err != nil {
		t.Fatalf("ParseTable headerless: %v", err)
	}
	if len(header) != 3 || header[2] != "col_3" {
		t.Fatalf("unexpected synthetic header %v", header)
	}
	if _, _, err := ParseTable(`<p>none</p>`); err == nil {
		t.Fatalf("expected error when no table present")
	}
}
