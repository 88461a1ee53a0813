package config

// District is a city district and the areas it is listed under.
type District struct {
	Name  string
	Areas []string
}

// ShenzhenDistricts in crawl order.
var ShenzhenDistricts = []District{
	{Name: "罗湖区", Areas: []string{"百仕达", "布心", "春风路", "翠竹", "地王", "东门", "洪湖", "黄贝岭", "黄木岗", "莲塘", "罗湖口岸", "螺岭", "清水河", "笋岗", "万象城", "新秀", "银湖"}},
	{Name: "福田区", Areas: []string{"八卦岭", "百花", "车公庙", "赤尾", "福田保税区", "福田中心", "皇岗", "黄木岗", "华强北", "华强南", "景田", "莲花", "梅林", "上步", "上下沙", "沙尾", "石厦", "香梅北", "香蜜湖", "新洲", "银湖", "园岭", "竹子林"}},
	{Name: "南山区", Areas: []string{"白石洲", "大学城", "红树湾", "后海", "华侨城", "科技园", "南山中心", "南头", "前海", "蛇口", "深圳湾", "西丽"}},
	{Name: "盐田区", Areas: []string{"梅沙", "沙头角", "盐田港"}},
	{Name: "宝安区", Areas: []string{"宝安中心", "碧海", "翻身", "福永", "航城", "沙井", "石岩", "松岗", "桃源居", "曦城", "新安", "西乡"}},
	{Name: "龙岗区", Areas: []string{"布吉大芬", "布吉关", "布吉街", "布吉南岭", "布吉石芽岭", "布吉水径", "丹竹头", "大运新城", "横岗", "龙岗宝荷", "龙岗双龙", "龙岗中心城", "坪地", "平湖"}},
	{Name: "龙华区", Areas: []string{"坂田", "观澜", "红山", "龙华新区", "龙华中心", "梅林关", "民治", "上塘"}},
	{Name: "光明区", Areas: []string{"公明", "光明"}},
	{Name: "坪山区", Areas: []string{"坪山"}},
	{Name: "大鹏新区", Areas: []string{"大鹏半岛"}},
}

// AreaSlugs maps an area to its URL path segment.
var AreaSlugs = map[string]string{
	"百仕达": "baishida", "布心": "buxin", "春风路": "chunfenglu", "翠竹": "cuizhu", "地王": "diwang",
	"东门": "dongmen", "洪湖": "honghu", "黄贝岭": "huangbeiling", "黄木岗": "huangmugang", "莲塘": "liantang",
	"罗湖口岸": "luohukouan", "螺岭": "luoling", "清水河": "qingshuihe", "笋岗": "sungang", "万象城": "wanxiangcheng",
	"新秀": "xinxiu", "银湖": "yinhu", "八卦岭": "bagualing", "百花": "baihua", "车公庙": "chegongmiao",
	"赤尾": "chiwei", "福田保税区": "futianbaoshuiqu", "福田中心": "futianzhongxin", "皇岗": "huanggang",
	"华强北": "huaqiangbei", "华强南": "huaqiangnan", "景田": "jingtian", "莲花": "lianhua", "梅林": "meilin",
	"上步": "shangbu", "上下沙": "shangxiasha", "沙尾": "shawei", "石厦": "shixia", "香梅北": "xiangmeibei",
	"香蜜湖": "xiangmihua", "新洲": "xinzhou1", "园岭": "yuanling", "竹子林": "zhuzilin", "白石洲": "baishizhou",
	"大学城": "daxuecheng3", "红树湾": "hongshuwan", "后海": "houhai", "华侨城": "huaqiaocheng1", "科技园": "kejiyuan",
	"南山中心": "nanshanzhongxin", "南头": "nantou", "前海": "qianhai", "蛇口": "shekou", "深圳湾": "shenzhenwan",
	"西丽": "xili1", "梅沙": "meisha", "沙头角": "shatoujiao", "盐田港": "yantiangang", "宝安中心": "baoanzhongxin",
	"碧海": "bihai1", "翻身": "fanshen", "福永": "fuyong", "航城": "hangcheng", "沙井": "shajing", "石岩": "shiyan",
	"松岗": "songgang", "桃源居": "taoyuanju", "曦城": "xicheng1", "新安": "xinan", "西乡": "xixiang", "坂田": "bantian",
	"布吉大芬": "bujidafen", "布吉关": "bujiguan", "布吉街": "bujijie", "布吉南岭": "bujinanling", "布吉石芽岭": "bujishiyaling",
	"布吉水径": "bujishuijing", "丹竹头": "danzhutou", "大运新城": "dayunxincheng", "横岗": "henggang", "龙岗宝荷": "longgangbaohe",
	"龙岗双龙": "longgangshuanglong", "龙岗中心城": "longgangzhongxincheng", "民治": "minzhi", "坪地": "pingdi", "平湖": "pinghu",
	"观澜": "guanlan", "红山": "hongshan6", "龙华新区": "longhuaxinqu", "龙华中心": "longhuazhongxin", "梅林关": "meilinguan",
	"上塘": "shangtang", "公明": "gongming", "光明": "guangming1", "坪山": "pingshan", "大鹏半岛": "dapengbandao",
}

// DistrictNames returns all district names in crawl order.
func DistrictNames() []string {
	out := make([]string, len(ShenzhenDistricts))
	for i, d := range ShenzhenDistricts {
		out[i] = d.Name
	}
	return out
}

// DistrictAreas returns the areas of a district.
func DistrictAreas(name string) ([]string, bool) {
	for _, d := range ShenzhenDistricts {
		if d.Name == name {
			return d.Areas, true
		}
	}
	return nil, false
}
