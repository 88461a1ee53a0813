package parser

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aluiziolira/go-scrape-estates/models"
)

// ResaleKeyword marks a resale (writeoff) listing when present anywhere in the title.
const ResaleKeyword = "变卖"

// finalizedStatuses are the listing statuses of concluded auctions.
var finalizedStatuses = map[string]struct{}{
	"已结束": {},
	"已暂缓": {},
	"已中止": {},
}

// timestampLayouts are tried in order by ParseTimestamp.
var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006年01月02日 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006.01.02",
}

// ValidateRecord ensures the record carries a non-empty primary key.
func ValidateRecord(r models.Record, key string) error {
	if r.Len() == 0 {
		return fmt.Errorf("record is empty")
	}
	if strings.TrimSpace(r.Text(key)) == "" {
		return fmt.Errorf("record missing %s", key)
	}
	return nil
}

// NormalizeNumber removes grouping separators, currency marks and whitespace.
func NormalizeNumber(raw string) string {
	raw = strings.TrimSpace(raw)
	raw = strings.NewReplacer(",", "", "，", "", "￥", "", "¥", "", " ", "").Replace(raw)
	return raw
}

// ToNumber coerces raw to a number after stripping grouping separators. The
// trimmed raw string is kept when coercion fails.
func ToNumber(raw string) models.Value {
	n, err := strconv.ParseFloat(NormalizeNumber(raw), 64)
	if err != nil {
		return models.String(strings.TrimSpace(raw))
	}
	return models.Number(n)
}

// Trimmed is the default post-processing step.
func Trimmed(raw string) models.Value {
	return models.String(strings.TrimSpace(raw))
}

// ParseTimestamp parses the timestamp formats used by listings and operators.
// Times carry no zone and are compared as wall-clock values.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q (want e.g. 2024-01-01 12:00:00)", s)
}

// IsFinalized reports whether a listing status means bidding has concluded.
func IsFinalized(status string) bool {
	_, ok := finalizedStatuses[strings.TrimSpace(status)]
	return ok
}

// IsResale reports whether the title marks a resale listing.
func IsResale(title string) bool {
	return strings.Contains(title, ResaleKeyword)
}

// AssetKey strips a bracketed prefix ("【一拍】name" -> "name") from a legacy
// spreadsheet's key column.
func AssetKey(raw string) string {
	if i := strings.Index(raw, "】"); i >= 0 {
		raw = raw[i+len("】"):]
	}
	return strings.TrimSpace(raw)
}
