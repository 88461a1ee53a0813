package scraper

import (
	"strings"

	"github.com/aluiziolira/go-scrape-estates/browser"
	"github.com/aluiziolira/go-scrape-estates/models"
	"github.com/aluiziolira/go-scrape-estates/parser"
)

// Output columns, in file order.
const (
	ColName         = "资产名称"
	ColStatus       = "竞价状态"
	ColEndTime      = "结束时间"
	ColUnsold       = "是否流拍"
	ColUnsoldReason = "流拍原因"
	ColImage        = "图片"
	ColCurrentPrice = "当前价"
	ColEstimate     = "评估价"
	ColWatchers     = "围观人数"
	ColSignups      = "报名人数"
	ColFollowers    = "关注提醒人数"
	ColFinalPrice   = "成交价"
	ColStartPrice   = "起拍价"
	ColResalePrice  = "变卖价格"
	ColIncrement    = "加价幅度"
	ColDeposit      = "保证金"
	ColBidCycle     = "竞价周期"
	ColResaleCycle  = "变卖周期"
	ColDelayCycle   = "延时周期"
	ColLink         = "详情链接"
)

// AuctionColumns is the column order of the auction output.
var AuctionColumns = []string{
	ColName, ColStatus, ColEndTime, ColUnsold, ColUnsoldReason, ColImage,
	ColCurrentPrice, ColEstimate, ColWatchers, ColSignups, ColFollowers,
	ColFinalPrice, ColStartPrice, ColResalePrice, ColIncrement, ColDeposit,
	ColBidCycle, ColResaleCycle, ColDelayCycle, ColLink,
}

const unsoldMarker = "流拍"

// listing page
var (
	listItems    = browser.XPath("//*[@id='root']/div/div/div[4]/ul/li")
	pagerCurrent = browser.CSS(".ui-pager-current")
	pagerNext    = browser.CSS(".ui-pager-next")

	provincePicker = browser.CSS(".province")
	cityPicker     = browser.CSS(".city")
)

// cardTable reads the cheap fields of one listing card.
var cardTable = parser.Table{
	parser.Field(ColName, parser.Text(browser.XPath(".//a/div[2]/div[1]"))),
	parser.Field(ColStatus, parser.Text(browser.XPath(".//a/div[3]/div[1]"))),
	parser.Field(ColImage, parser.Attr(browser.XPath(".//a/div[1]/div/img"), "src")),
	parser.Field(ColCurrentPrice,
		parser.Text(browser.XPath(".//a/div[2]/div[2]/div[2]/em/b")).Then(parser.ToNumber),
	),
	parser.Field(ColEstimate,
		parser.Text(browser.XPath(".//a/div[2]/div[3]/div[1]/em")).Then(parser.ToNumber),
	),
	parser.Field(ColLink, parser.Attr(browser.XPath(".//a"), "href")),
}

// detail page
const detailRootXPath = "//*[@id='pageContainer']/div[2]/div[1]/div[2]"

var (
	detailRoot = browser.CSS(".pm-name")

	detailResult = browser.XPath(detailRootXPath + "/div[3]/div[1]/div[1]/div")
	detailInfo   = browser.XPath(detailRootXPath + "/div[3]/div[1]/div[2]/div")
	detailFinal  = browser.XPath(detailRootXPath + "/div[3]/div[3]/div[1]/div/div[2]")
	detailTerms  = browser.XPath(detailRootXPath + "/div[4]/div[2]/div/div[1]/div/ul")

	// older page layout
	legacyResult = browser.XPath("//*[@id='root']/div/div[2]/div[1]/div[2]/div[3]/div[1]/div[2]")
	legacyInfo   = browser.XPath("//*[@id='root']/div/div[2]/div[1]/div[2]/div[3]/div[1]/div[3]")
	legacyTerms  = browser.XPath("//*[@id='root']/div/div[2]/div[1]/div[2]/div[3]/div[3]/div/div[1]/ul")

	popupOverlay = browser.CSS(".alert-popup-overlay")
	popupConfirm = []browser.Locator{
		browser.XPath("//div[contains(@class,'alert-popup-button-confirm')]"),
		browser.XPath("//div[normalize-space(text())='我已知晓并同意']"),
	}
	popupClose = browser.CSS(".alert-popup-close")
)

const (
	endTimePattern  = `\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}`
	endTimePatternZ = `\d{4}年\d{2}月\d{2}日 \d{2}:\d{2}:\d{2}`
)

// moneyTerm matches "<label>：￥1,234" inside the terms list.
func moneyTerm(loc browser.Locator, label string) parser.Strategy {
	return parser.Text(loc).Match(label + `[：:]\s*[￥¥]?\s*([\d,.]+)`).Then(parser.ToNumber)
}

func countTerm(loc browser.Locator, pattern string) parser.Strategy {
	return parser.Text(loc).Match(pattern).Then(parser.ToNumber)
}

func unsoldFlag(raw string) models.Value {
	if strings.Contains(raw, unsoldMarker) {
		return models.String("是")
	}
	return models.String("否")
}

func unsoldReason(raw string) models.Value {
	if strings.Contains(raw, unsoldMarker) {
		return models.String("本标的物已流拍")
	}
	return models.String("")
}

// detailTable reads the fields shared by both listing variants.
var detailTable = parser.Table{
	parser.Field(ColName, parser.Text(detailRoot)),
	parser.Field(ColEndTime,
		parser.Text(detailInfo).Match(endTimePattern),
		parser.Text(legacyInfo).Match(endTimePatternZ),
	),
	parser.Field(ColUnsold,
		parser.Text(detailResult).Then(unsoldFlag),
		parser.Text(legacyResult).Then(unsoldFlag),
	),
	parser.Field(ColUnsoldReason,
		parser.Text(detailResult).Then(unsoldReason),
		parser.Text(legacyResult).Then(unsoldReason),
	),
	parser.Field(ColWatchers,
		countTerm(detailInfo, `(\d+)\s*人围观`),
		countTerm(legacyInfo, `(\d+)\s*人围观`),
	),
	parser.Field(ColSignups,
		countTerm(detailInfo, `(\d+)\s*人报名`),
		countTerm(legacyInfo, `(\d+)\s*人报名`),
	),
	parser.Field(ColFollowers,
		countTerm(detailInfo, `(\d+)\s*人关注`),
		countTerm(legacyInfo, `(\d+)\s*人关注`),
	),
	parser.Field(ColFinalPrice, parser.Text(detailFinal).Then(parser.ToNumber)),
	parser.Field(ColIncrement, moneyTerm(detailTerms, "加价幅度"), moneyTerm(legacyTerms, "加价幅度")),
	parser.Field(ColDelayCycle,
		countTerm(detailTerms, `延时周期[：:]\s*(\d+)\s*分钟`),
		countTerm(legacyTerms, `延时周期[：:]\s*(\d+)\s*分钟`),
	),
}

// standardTable reads the terms of an ordinary auction.
var standardTable = parser.Table{
	parser.Field(ColStartPrice, moneyTerm(detailTerms, "起拍价"), moneyTerm(legacyTerms, "起拍价")),
	parser.Field(ColDeposit, moneyTerm(detailTerms, "保证金"), moneyTerm(legacyTerms, "保证金")),
	parser.Field(ColBidCycle,
		countTerm(detailTerms, `竞价周期[：:]\s*(\d+)\s*天`),
		countTerm(legacyTerms, `竞价周期[：:]\s*(\d+)\s*天`),
	),
}

// resaleTable reads the terms of a resale listing.
var resaleTable = parser.Table{
	parser.Field(ColResalePrice, moneyTerm(detailTerms, "变卖价"), moneyTerm(legacyTerms, "变卖价")),
	parser.Field(ColResaleCycle,
		countTerm(detailTerms, `变卖周期[：:]\s*(\d+)\s*天`),
		countTerm(legacyTerms, `变卖周期[：:]\s*(\d+)\s*天`),
	),
}

// Variant distinguishes ordinary auctions from resale listings.
type Variant uint8

const (
	VariantStandard Variant = iota
	VariantResale
)

func (v Variant) String() string {
	if v == VariantResale {
		return "resale"
	}
	return "standard"
}

// VariantOf classifies a listing by its title.
func VariantOf(title string) Variant {
	if parser.IsResale(title) {
		return VariantResale
	}
	return VariantStandard
}

// Terms is the variant-specific payload of a detail page: StandardTerms or
// ResaleTerms.
type Terms interface {
	Variant() Variant
	Record() models.Record
}

// StandardTerms are the terms of an ordinary auction.
type StandardTerms struct {
	StartPrice   models.Value
	Deposit      models.Value
	BiddingCycle models.Value
}

func (StandardTerms) Variant() Variant { return VariantStandard }

func (t StandardTerms) Record() models.Record {
	return models.NewBuilder(3).
		Set(ColStartPrice, t.StartPrice).
		Set(ColDeposit, t.Deposit).
		Set(ColBidCycle, t.BiddingCycle).
		Build()
}

// ResaleTerms are the terms of a resale listing.
type ResaleTerms struct {
	ResalePrice models.Value
	ResaleCycle models.Value
}

func (ResaleTerms) Variant() Variant { return VariantResale }

func (t ResaleTerms) Record() models.Record {
	return models.NewBuilder(2).
		Set(ColResalePrice, t.ResalePrice).
		Set(ColResaleCycle, t.ResaleCycle).
		Build()
}

// extractTerms reads the payload matching variant. missing lists the fields
// no strategy could fill.
func extractTerms(scope browser.Scope, variant Variant) (Terms, []string) {
	if variant == VariantResale {
		rec, missing := parser.Extract(scope, resaleTable)
		return ResaleTerms{
			ResalePrice: value(rec, ColResalePrice),
			ResaleCycle: value(rec, ColResaleCycle),
		}, missing
	}
	rec, missing := parser.Extract(scope, standardTable)
	return StandardTerms{
		StartPrice:   value(rec, ColStartPrice),
		Deposit:      value(rec, ColDeposit),
		BiddingCycle: value(rec, ColBidCycle),
	}, missing
}

func value(r models.Record, name string) models.Value {
	v, ok := r.Get(name)
	if !ok {
		return models.String("")
	}
	return v
}

// assemble lays the sources out in AuctionColumns order. Each column takes
// the first non-empty value among sources; absent columns are "".
func assemble(sources ...models.Record) models.Record {
	b := models.NewBuilder(len(AuctionColumns))
	for _, col := range AuctionColumns {
		v := models.String("")
		for _, src := range sources {
			if got, ok := src.Get(col); ok && !got.IsEmpty() {
				v = got
				break
			}
		}
		b.Set(col, v)
	}
	return b.Build()
}
