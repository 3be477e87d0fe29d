package export

import (
	"archive/zip"
	"bytes"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/xuxing3/JiZhang/internal/domain"
)

func ts(day, hour int) *time.Time {
	t := time.Date(2025, 8, day, hour, 0, 0, 0, time.UTC)
	return &t
}

func TestMonthlyWorkbook(t *testing.T) {
	records := []domain.Expense{
		{Amount: 45.5, Category: "购物", Payee: "超市", Note: "买菜", TSUTC: ts(12, 10), TimeLocal: "2025-08-12 18:00"},
		{Amount: 32, Category: "餐饮", Payee: "肯德基", TSUTC: ts(3, 11), TimeLocal: "2025-08-03 19:00"},
		{Amount: 8, Category: "餐饮", Payee: "蜜雪", TSUTC: ts(3, 2), TimeLocal: "2025-08-03 10:00"},
	}

	data, err := MonthlyWorkbook(records, "Asia/Shanghai")
	if err != nil {
		t.Fatalf("MonthlyWorkbook() error: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("workbook does not open: %v", err)
	}
	defer f.Close()

	for _, sheet := range []string{"Raw", "ByCategory", "ByPayee", "ByDate", "Charts"} {
		if idx, _ := f.GetSheetIndex(sheet); idx < 0 {
			t.Errorf("missing sheet %s", sheet)
		}
	}

	rows, err := f.GetRows("Raw")
	if err != nil {
		t.Fatalf("GetRows(Raw): %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("Raw has %d rows, want header + 3 records", len(rows))
	}
	if rows[0][0] != "Time" || rows[0][1] != "Amount" {
		t.Errorf("header = %v, want Time/Amount/...", rows[0])
	}
	// Oldest first.
	if rows[1][3] != "蜜雪" || rows[3][3] != "超市" {
		t.Errorf("raw rows not sorted oldest first: %v", rows)
	}
	if rows[3][0] != "2025-08-12 18:00" {
		t.Errorf("time display = %q, want the time_local mirror", rows[3][0])
	}

	catRows, err := f.GetRows("ByCategory")
	if err != nil {
		t.Fatalf("GetRows(ByCategory): %v", err)
	}
	// 购物 45.5 outranks 餐饮 40.
	if len(catRows) != 3 || catRows[1][0] != "购物" || catRows[2][0] != "餐饮" {
		t.Errorf("ByCategory = %v, want 购物 then 餐饮", catRows)
	}
	if catRows[2][1] != "40" {
		t.Errorf("餐饮 sum = %q, want 40", catRows[2][1])
	}

	dateRows, err := f.GetRows("ByDate")
	if err != nil {
		t.Fatalf("GetRows(ByDate): %v", err)
	}
	// Dates ascend; UTC instants are grouped by Shanghai calendar day.
	if len(dateRows) != 3 || dateRows[1][0] != "2025-08-03" || dateRows[2][0] != "2025-08-12" {
		t.Errorf("ByDate = %v, want 2025-08-03 then 2025-08-12", dateRows)
	}
}

func TestMonthlyWorkbookUnresolvableTimesGoLast(t *testing.T) {
	records := []domain.Expense{
		{Amount: 1, Payee: "无时间"},
		{Amount: 2, Payee: "有时间", TSUTC: ts(1, 0)},
	}

	data, err := MonthlyWorkbook(records, "Asia/Shanghai")
	if err != nil {
		t.Fatalf("MonthlyWorkbook() error: %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("workbook does not open: %v", err)
	}
	defer f.Close()

	rows, _ := f.GetRows("Raw")
	if rows[1][3] != "有时间" || rows[2][3] != "无时间" {
		t.Errorf("rows = %v, records without a resolvable time must sort last", rows)
	}
	if rows[2][0] != "" {
		t.Errorf("time display = %q, want empty for unresolvable", rows[2][0])
	}
}

func TestMonthlyWorkbookChartsPlotRollups(t *testing.T) {
	records := []domain.Expense{
		{Amount: 45.5, Category: "购物", Payee: "超市", TSUTC: ts(12, 10)},
		{Amount: 32, Category: "餐饮", Payee: "肯德基", TSUTC: ts(3, 11)},
	}

	data, err := MonthlyWorkbook(records, "Asia/Shanghai")
	if err != nil {
		t.Fatalf("MonthlyWorkbook() error: %v", err)
	}

	// Charts have no read API, so check the chart parts of the package
	// directly: one column chart over ByCategory, one line chart over
	// ByDate.
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("workbook is not a zip: %v", err)
	}
	var charts []string
	for _, zf := range zr.File {
		if !strings.HasPrefix(zf.Name, "xl/charts/chart") {
			continue
		}
		rc, err := zf.Open()
		if err != nil {
			t.Fatalf("open %s: %v", zf.Name, err)
		}
		raw, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("read %s: %v", zf.Name, err)
		}
		charts = append(charts, string(raw))
	}
	if len(charts) != 2 {
		t.Fatalf("got %d chart parts, want 2", len(charts))
	}

	all := strings.Join(charts, "\n")
	for _, want := range []string{
		"ByCategory!$A$2:$A$3", "ByCategory!$B$2:$B$3", "分类汇总",
		"ByDate!$A$2:$A$3", "ByDate!$B$2:$B$3", "每日支出",
	} {
		if !strings.Contains(all, want) {
			t.Errorf("chart parts missing %q", want)
		}
	}
}
