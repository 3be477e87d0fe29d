// Package classify maps free text to a best-guess expense category
// using keyword sets with a fixed priority order.
package classify

import "strings"

// categoryKeywords maps category labels to the substrings that indicate
// them. Matching is case-insensitive.
var categoryKeywords = map[string][]string{
	"餐饮":   {"麦当劳", "肯德基", "星巴克", "美团", "饿了么", "必胜客", "海底捞", "喜茶", "蜜雪", "奶茶", "餐饮", "外卖", "饭", "火锅"},
	"购物":   {"淘宝", "天猫", "京东", "拼多多", "超市", "屈臣氏", "沃尔玛", "大润发", "山姆", "购物", "买菜"},
	"出行":   {"滴滴", "高德", "地图", "打车", "共享单车", "哈啰", "青桔", "地铁", "公交", "出行", "高速", "停车"},
	"数码":   {"apple", "苹果", "小米", "华为", "京东电器", "数码", "配件"},
	"娱乐":   {"腾讯视频", "爱奇艺", "优酷", "b站", "qq音乐", "网易云", "游戏", "会员", "电影"},
	"通讯":   {"话费", "流量", "通信", "联通", "移动", "电信", "宽带"},
	"医疗":   {"医院", "药店", "医保", "体检", "诊所"},
	"转账":   {"转账", "收款", "还款", "红包", "转付", "待确认收款"},
	"生活缴费": {"水费", "电费", "燃气", "物业", "停车费", "供暖", "生活缴费"},
}

// categoryPriority breaks ties between categories whose keywords overlap.
// Transfer-ish keywords are ambiguous and must win over shopping terms.
var categoryPriority = []string{"转账", "生活缴费", "出行", "餐饮", "购物", "数码", "娱乐", "通讯", "医疗"}

var transferTerms = []string{"转账", "收款", "待确认"}

// Fallback is returned when nothing matches.
const Fallback = "其他"

// Pick selects a category for the given payee and description, with an
// optional hint (e.g. a category guess from an AI provider). It is pure
// and never fails; the worst case is Fallback.
func Pick(payee, desc, hint string) string {
	text := strings.ToLower(payee + " " + desc + " " + hint)

	hits := make(map[string]bool)
	for cat, kws := range categoryKeywords {
		for _, kw := range kws {
			if strings.Contains(text, strings.ToLower(kw)) {
				hits[cat] = true
				break
			}
		}
	}

	// A hint that names a category directly counts as a hit.
	if len(hits) == 0 && hint != "" {
		for cat := range categoryKeywords {
			if strings.Contains(hint, cat) {
				hits[cat] = true
				break
			}
		}
	}

	if len(hits) == 0 {
		for _, term := range transferTerms {
			if strings.Contains(text, term) {
				return "转账"
			}
		}
		return Fallback
	}

	for _, cat := range categoryPriority {
		if hits[cat] {
			return cat
		}
	}
	for cat := range hits {
		return cat
	}
	return Fallback
}
