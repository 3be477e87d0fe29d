package extract

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var reNumber = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// CleanAmount extracts a number from a loosely typed amount value.
// Providers return amounts as numbers, quoted numbers, or strings with
// currency decorations; users paste back edit lines like "12.5元".
// Currency markers and thousands separators are stripped.
func CleanAmount(v any) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, false
	case float64:
		return t, true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		s := strings.NewReplacer("￥", "", "元", "", "RMB", "", "CNY", "", ",", "").Replace(t)
		m := reNumber.FindString(s)
		if m == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(m, 64)
		return f, err == nil
	default:
		return 0, false
	}
}
