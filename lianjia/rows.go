package lianjia

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/aluiziolira/go-scrape-estates/browser"
	"github.com/aluiziolira/go-scrape-estates/models"
	"github.com/aluiziolira/go-scrape-estates/parser"
)

// Output columns. Building and price are nested groups.
const (
	ColName     = "房源名称"
	ColDistrict = "所在区域"
	ColBuilding = "建筑特征"
	ColDealDate = "成交时间"
	ColPrice    = "价格信息"

	ColDecoration = "装修及朝向"
	ColFloor      = "楼层及建筑类型"
	ColUnitPrice  = "单价"
	ColTotalPrice = "总价"
)

const (
	rowSelector   = ".listContent > li"
	pagerSelector = ".page-box.house-lst-page-box"
)

var rowTable = parser.Table{
	parser.Field(ColName, parser.Text(browser.CSS(".info .title")).Then(squash)),
	parser.Field(ColDecoration, parser.Text(browser.CSS(".info .address .houseInfo")).Then(squash)),
	parser.Field(ColFloor, parser.Text(browser.CSS(".info .flood .positionInfo")).Then(squash)),
	parser.Field(ColDealDate,
		parser.Text(browser.CSS(".info .address .dealDate")),
		parser.Text(browser.CSS(".info .dealDate")),
	),
	parser.Field(ColUnitPrice, parser.Text(browser.CSS(".info .flood .unitPrice")).Then(compact)),
	parser.Field(ColTotalPrice, parser.Text(browser.CSS(".info .address .totalPrice")).Then(compact)),
}

// squash collapses whitespace runs to single spaces.
func squash(raw string) models.Value {
	return models.String(strings.Join(strings.Fields(raw), " "))
}

// compact drops whitespace entirely: "500\n万" -> "500万".
func compact(raw string) models.Value {
	return models.String(strings.Join(strings.Fields(raw), ""))
}

// Deal is one extracted row before filtering.
type Deal struct {
	Record models.Record
	Date   time.Time
	// HasDate is false when the deal date is missing or unreadable.
	HasDate bool
}

// ExtractDeal reads one listing row.
func ExtractDeal(row browser.Scope, district string) Deal {
	flat, _ := parser.Extract(row, rowTable)

	var d Deal
	dealDate := flat.Text(ColDealDate)
	if t, err := parser.ParseTimestamp(dealDate); err == nil {
		d.Date, d.HasDate = t, true
		dealDate = t.Format("2006-01-02")
	}

	building := models.NewBuilder(2).
		SetString(ColDecoration, flat.Text(ColDecoration)).
		SetString(ColFloor, flat.Text(ColFloor)).
		Build()
	price := models.NewBuilder(2).
		SetString(ColUnitPrice, flat.Text(ColUnitPrice)).
		SetString(ColTotalPrice, flat.Text(ColTotalPrice)).
		Build()

	d.Record = models.NewBuilder(5).
		SetString(ColName, flat.Text(ColName)).
		SetString(ColDistrict, district).
		Set(ColBuilding, models.Group(building)).
		SetString(ColDealDate, dealDate).
		Set(ColPrice, models.Group(price)).
		Build()
	return d
}

// Keep reports whether a deal closed after minDate.
func (d Deal) Keep(minDate time.Time) bool {
	return d.HasDate && d.Date.After(minDate)
}

// DealKey identifies a deal across overlapping area listings.
func DealKey(r models.Record) string {
	name := r.Text(ColName)
	if name == "" {
		return ""
	}
	total := ""
	if price, ok := r.Get(ColPrice); ok {
		if g, ok := price.Group(); ok {
			total = g.Text(ColTotalPrice)
		}
	}
	return name + "|" + r.Text(ColDealDate) + "|" + total
}

// MaxPage reads the pager's total page count from its page-data attribute,
// falling back to the fourth page link. It returns 0 when neither is usable.
func MaxPage(pager *goquery.Selection) int {
	if raw, ok := pager.Attr("page-data"); ok {
		var data struct {
			TotalPage int `json:"totalPage"`
		}
		if err := json.Unmarshal([]byte(raw), &data); err == nil && data.TotalPage > 0 {
			return data.TotalPage
		}
	}
	n, err := strconv.Atoi(strings.TrimSpace(pager.Find("a").Eq(3).Text()))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
