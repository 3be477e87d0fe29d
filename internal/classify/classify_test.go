package classify

import "testing"

func TestPick(t *testing.T) {
	tests := []struct {
		name  string
		payee string
		desc  string
		hint  string
		want  string
	}{
		{
			name:  "keyword in payee",
			payee: "星巴克",
			want:  "餐饮",
		},
		{
			name: "keyword in description",
			desc: "昨天在沃尔玛买了点东西",
			want: "购物",
		},
		{
			name: "case insensitive latin keyword",
			desc: "APPLE store 配件",
			want: "数码",
		},
		{
			name: "transfer wins over shopping on priority",
			desc: "淘宝 转账 200",
			want: "转账",
		},
		{
			name: "utilities win over transport",
			desc: "停车费 水费一起交了",
			want: "生活缴费",
		},
		{
			name: "hint naming a category directly",
			desc: "some unknown merchant",
			hint: "医疗",
			want: "医疗",
		},
		{
			name: "hint ignored when keywords hit",
			desc: "美团外卖",
			hint: "数码",
			want: "餐饮",
		},
		{
			name: "transfer terms without keyword hit",
			desc: "待确认 123",
			want: "转账",
		},
		{
			name: "nothing matches",
			desc: "xyz",
			want: Fallback,
		},
		{
			name: "empty input",
			want: Fallback,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Pick(tt.payee, tt.desc, tt.hint)
			if got != tt.want {
				t.Errorf("Pick(%q, %q, %q) = %q, want %q", tt.payee, tt.desc, tt.hint, got, tt.want)
			}
		})
	}
}

func TestPickPriorityIsStable(t *testing.T) {
	// Both 出行 and 餐饮 keywords present; 出行 sits earlier in the
	// priority order and must win every time.
	for i := 0; i < 50; i++ {
		if got := Pick("", "打车去吃火锅", ""); got != "出行" {
			t.Fatalf("iteration %d: got %q, want 出行", i, got)
		}
	}
}
