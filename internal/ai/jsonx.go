package ai

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/xuxing3/JiZhang/internal/extract"
)

var (
	reFencedJSON = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\})\\s*```")
	reBraces     = regexp.MustCompile(`(?s)\{.*?\}`)
)

// decodeObject recovers a JSON object from a model's raw text response.
// Models wrap their output in prose or code fences no matter how firmly
// the prompt forbids it, so we try a strict parse, then a fenced block,
// then the first brace-delimited substring.
func decodeObject(raw string) (map[string]any, error) {
	raw = strings.TrimSpace(raw)

	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err == nil {
		return obj, nil
	}

	if m := reFencedJSON.FindStringSubmatch(raw); m != nil {
		if err := json.Unmarshal([]byte(m[1]), &obj); err == nil {
			return obj, nil
		}
	}

	if m := reBraces.FindString(raw); m != "" {
		if err := json.Unmarshal([]byte(m), &obj); err == nil {
			return obj, nil
		}
	}

	return nil, fmt.Errorf("no JSON object in model response")
}

// draftFromObject maps the provider's loose key/value object onto a
// draft record. Providers return amounts as numbers, quoted numbers, or
// strings with currency decorations; everything is normalized here.
func draftFromObject(obj map[string]any) *extract.Draft {
	d := &extract.Draft{
		Category: stringField(obj, "category"),
		Payee:    stringField(obj, "payee"),
		Note:     stringField(obj, "note"),
		Time:     stringField(obj, "time"),
	}
	if d.Time == "" {
		d.Time = stringField(obj, "time_local")
	}
	if amt, ok := extract.CleanAmount(obj["amount"]); ok {
		d.Amount = &amt
	}
	return d
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return strings.TrimSpace(s)
}
