package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-estates/browser"
	"github.com/aluiziolira/go-scrape-estates/models"
)

// ParseTable reads the first <table> of an HTML fragment. The header comes
// from th cells (thead or first row); without one, columns are named col_1..n.
func ParseTable(raw string) ([]string, [][]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, nil, fmt.Errorf("parse table html: %w", err)
	}
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, nil, fmt.Errorf("no table in fragment")
	}

	var header []string
	var rows [][]string
	width := 0
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		if header == nil && tr.Find("th").Length() > 0 && tr.Find("td").Length() == 0 {
			tr.Find("th").Each(func(_ int, th *goquery.Selection) {
				header = append(header, cellText(th))
			})
			return
		}
		var row []string
		tr.Find("td, th").Each(func(_ int, td *goquery.Selection) {
			row = append(row, cellText(td))
		})
		if len(row) == 0 {
			return
		}
		if len(row) > width {
			width = len(row)
		}
		rows = append(rows, row)
	})

	if header == nil {
		header = make([]string, width)
		for i := range header {
			header[i] = fmt.Sprintf("col_%d", i+1)
		}
	}
	return header, rows, nil
}

// TableRecords turns parsed rows into records keyed by header. Short rows are
// padded with "".
func TableRecords(header []string, rows [][]string) []models.Record {
	out := make([]models.Record, 0, len(rows))
	for _, row := range rows {
		b := models.NewBuilder(len(header))
		for i, name := range header {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			b.SetString(name, cell)
		}
		out = append(out, b.Build())
	}
	return out
}

func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(browser.InnerText(s)), " ")
}
