package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/xuxing3/JiZhang/internal/classify"
)

var (
	// Amount: 23, 23.5, 23,50, -12, optionally followed by a currency marker.
	reAmount = regexp.MustCompile(`(?i)(-?\d+(?:[.,]\d+)?)(?:\s*(?:元|块|rmb|cny|￥))?`)

	// Time: full date+time, bare date, bare time-of-day.
	reFull = regexp.MustCompile(`(\d{4}[-/]\d{1,2}[-/]\d{1,2})[ T]?(\d{1,2}:\d{2})`)
	reYMD  = regexp.MustCompile(`(\d{4}[-/]\d{1,2}[-/]\d{1,2})`)
	reHM   = regexp.MustCompile(`(\d{1,2}:\d{2})`)

	// Payee: a 2-20 rune block after a locative marker (在/于/去/给/向),
	// else the first CJK-or-Latin run anywhere.
	rePayeeMarked = regexp.MustCompile(`[在于去给向]([\p{Han}A-Za-z0-9_\-·]{2,20})`)
	rePayeeAny    = regexp.MustCompile(`([\p{Han}A-Za-z]{2,20})`)
)

// FromText extracts a draft record from a free-text message. Every field
// has a defined empty result; the function never fails. It is the
// fallback path when no AI provider is configured or the provider call
// yields nothing.
func FromText(raw string) Draft {
	s := strings.TrimSpace(raw)
	d := Draft{Note: s}

	if m := reAmount.FindStringSubmatch(s); m != nil {
		if v, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64); err == nil {
			d.Amount = &v
		}
	}

	if m := reFull.FindStringSubmatch(s); m != nil {
		d.Time = strings.ReplaceAll(m[1], "/", "-") + " " + m[2]
	} else {
		ymd := reYMD.FindStringSubmatch(s)
		hm := reHM.FindStringSubmatch(s)
		switch {
		case ymd != nil && hm != nil:
			d.Time = strings.ReplaceAll(ymd[1], "/", "-") + " " + hm[1]
		case hm != nil:
			d.Time = hm[1]
		}
	}

	if m := rePayeeMarked.FindStringSubmatch(s); m != nil {
		d.Payee = m[1]
	} else if m := rePayeeAny.FindStringSubmatch(s); m != nil {
		d.Payee = m[1]
	}

	d.Category = classify.Pick(d.Payee, s, "")
	return d
}
