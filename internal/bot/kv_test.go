package bot

import (
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/xuxing3/JiZhang/internal/domain"
	"github.com/xuxing3/JiZhang/internal/extract"
)

func TestParseKVPairs(t *testing.T) {
	tests := []struct {
		name string
		text string
		want map[string]string
	}{
		{
			name: "bare values",
			text: "amount=12.5 category=餐饮",
			want: map[string]string{"amount": "12.5", "category": "餐饮"},
		},
		{
			name: "double quoted value with space",
			text: `payee="肯德基 望京店" time="2025-08-12 19:30"`,
			want: map[string]string{"payee": "肯德基 望京店", "time": "2025-08-12 19:30"},
		},
		{
			name: "single quoted value",
			text: `payee='Joe "Big" Diner'`,
			want: map[string]string{"payee": `Joe "Big" Diner`},
		},
		{
			name: "keys lowercased and later pairs win",
			text: "Amount=1 amount=2",
			want: map[string]string{"amount": "2"},
		},
		{
			name: "no pairs",
			text: "随便说点什么",
			want: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseKVPairs(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("parseKVPairs() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("pairs[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestQuoteKVRoundTrip(t *testing.T) {
	values := []string{
		"肯德基",
		"肯德基 望京店",
		`Joe "Big" Diner`,
		"Joe's Diner",
		"",
	}

	for _, val := range values {
		t.Run(val, func(t *testing.T) {
			pairs := parseKVPairs("payee=" + quoteKV(val))
			if got := pairs["payee"]; got != val {
				t.Errorf("round trip of %q gave %q", val, got)
			}
		})
	}
}

func TestEditLine(t *testing.T) {
	id := primitive.NewObjectID()
	e := &domain.Expense{
		ID:        id,
		Amount:    32.50,
		Category:  "餐饮",
		Payee:     "肯德基",
		TimeLocal: "2025-08-12 19:30",
	}

	got := editLine(e)
	want := id.Hex() + ` amount=32.5 category=餐饮 payee="肯德基" time="2025-08-12 19:30"`
	if got != want {
		t.Errorf("editLine() = %q, want %q", got, want)
	}

	// The echoed line must feed back into the edit parser.
	pairs := parseKVPairs(got)
	if pairs["payee"] != "肯德基" || pairs["time"] != "2025-08-12 19:30" || pairs["amount"] != "32.5" {
		t.Errorf("edit line does not round trip: %v", pairs)
	}
}

func TestDocLine(t *testing.T) {
	id := primitive.NewObjectID()
	e := &domain.Expense{
		ID:        id,
		Amount:    8,
		Category:  "餐饮",
		Payee:     "蜜雪",
		TimeLocal: "2025-08-03 10:00",
	}
	want := id.Hex() + " | 2025-08-03 10:00 | 8.00 | 餐饮 | 蜜雪"
	if got := docLine(e); got != want {
		t.Errorf("docLine() = %q, want %q", got, want)
	}
}

func TestDisplayTimeFallsBackToResolve(t *testing.T) {
	ts := time.Date(2025, 8, 12, 11, 30, 0, 0, time.UTC)
	e := &domain.Expense{TSUTC: &ts}
	if got := displayTime(e); got != "2025-08-12 11:30" {
		t.Errorf("displayTime() = %q, want the resolved instant", got)
	}
}

func TestEditAmountToleratesCurrencySuffix(t *testing.T) {
	// Edit lines get copy-pasted with the decorations users type, so
	// the amount value must clean the same way extraction does.
	for _, in := range []string{`amount=12.5元`, `amount="￥12.5"`, `amount=12.5`} {
		pairs := parseKVPairs(in)
		val, ok := pairs["amount"]
		if !ok {
			t.Fatalf("parseKVPairs(%q) lost the amount key", in)
		}
		f, ok := extract.CleanAmount(val)
		if !ok || f != 12.5 {
			t.Errorf("CleanAmount(%q) = %v, %v, want 12.5", val, f, ok)
		}
	}
}
