package config

import "sort"

// Location is a selectable province or city: its code, display label and the
// XPath of its option in the location picker.
type Location struct {
	Code     string
	Label    string
	Selector string
}

const pickerRoot = "//*[@id='root']/div/div/div[2]/div[4]/div/div[2]/div/"

// Provinces are the supported provinces keyed by code.
var Provinces = map[string]Location{
	"gd": {Code: "gd", Label: "广东", Selector: pickerRoot + "dl/dd/a[20]"},
	"zj": {Code: "zj", Label: "浙江", Selector: pickerRoot + "dl[1]/dd/a[16]"},
	"bj": {Code: "bj", Label: "北京", Selector: pickerRoot + "dl[1]/dd/a[2]"},
	"sh": {Code: "sh", Label: "上海", Selector: pickerRoot + "dl[1]/dd/a[3]"},
	"sc": {Code: "sc", Label: "四川", Selector: pickerRoot + "dl[1]/dd/a[23]"},
	"hb": {Code: "hb", Label: "湖北", Selector: pickerRoot + "dl[1]/dd/a[18]"},
}

// Cities are the supported cities keyed by code.
var Cities = map[string]Location{
	"sz": {Code: "sz", Label: "深圳", Selector: pickerRoot + "dl[2]/dd/a[3]"},
	"hz": {Code: "hz", Label: "杭州", Selector: pickerRoot + "dl[2]/dd/a[3]"},
	"cd": {Code: "cd", Label: "成都", Selector: pickerRoot + "dl[2]/dd/a[2]"},
	"wh": {Code: "wh", Label: "武汉", Selector: pickerRoot + "dl[2]/dd/a[2]"},
}

// ProvinceCities lists the cities available in each province. Municipalities
// have none.
var ProvinceCities = map[string][]string{
	"gd": {"sz"},
	"zj": {"hz"},
	"bj": {},
	"sh": {},
	"sc": {"cd"},
	"hb": {"wh"},
}

// ProvinceCodes returns the supported province codes, sorted.
func ProvinceCodes() []string {
	out := make([]string, 0, len(Provinces))
	for code := range Provinces {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// CityInProvince reports whether city is available in province.
func CityInProvince(province, city string) bool {
	for _, c := range ProvinceCities[province] {
		if c == city {
			return true
		}
	}
	return false
}
