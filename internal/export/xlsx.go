// Package export renders one month of expense records into an XLSX
// summary workbook: the raw rows, by-category, by-payee and by-date
// rollups, and charts over the category and daily sums.
package export

import (
	"fmt"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/xuxing3/JiZhang/internal/domain"
	"github.com/xuxing3/JiZhang/internal/timeres"
)

type sumRow struct {
	key   string
	total float64
}

type rawRow struct {
	when    *time.Time
	display string
	expense domain.Expense
}

// MonthlyWorkbook builds the workbook bytes for one month. Records are
// expected to be a single ym partition; the month is bounded, so the
// rollups are computed in-process.
func MonthlyWorkbook(records []domain.Expense, tz string) ([]byte, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.UTC
	}

	rows := make([]rawRow, 0, len(records))
	for _, rec := range records {
		when := timeres.Resolve(&rec)
		display := rec.TimeLocal
		if display == "" && when != nil {
			display = when.In(loc).Format(timeres.LocalLayout)
		}
		rows = append(rows, rawRow{when: when, display: display, expense: rec})
	}

	// Oldest first; records with no resolvable time go last.
	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].when == nil {
			return false
		}
		if rows[j].when == nil {
			return true
		}
		return rows[i].when.Before(*rows[j].when)
	})

	f := excelize.NewFile()
	defer f.Close()

	if err := writeRaw(f, rows); err != nil {
		return nil, err
	}

	byCategory := make(map[string]float64)
	byPayee := make(map[string]float64)
	byDate := make(map[string]float64)
	for _, r := range rows {
		cat := r.expense.Category
		if cat == "" {
			cat = domain.CategoryUnknown
		}
		byCategory[cat] += r.expense.Amount
		byPayee[r.expense.Payee] += r.expense.Amount
		if r.when != nil {
			byDate[r.when.In(loc).Format("2006-01-02")] += r.expense.Amount
		}
	}

	if err := writeSums(f, "ByCategory", "Category", sortedByTotal(byCategory)); err != nil {
		return nil, err
	}
	if err := writeSums(f, "ByPayee", "Payee", sortedByTotal(byPayee)); err != nil {
		return nil, err
	}
	if err := writeSums(f, "ByDate", "Date", sortedByKey(byDate)); err != nil {
		return nil, err
	}
	if err := writeCharts(f, len(byCategory), len(byDate)); err != nil {
		return nil, err
	}

	// The default sheet excelize creates is replaced by Raw.
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("export: write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRaw(f *excelize.File, rows []rawRow) error {
	const sheet = "Raw"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	headers := []string{"Time", "Amount", "Category", "Payee", "Note"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}

	for i, r := range rows {
		values := []any{r.display, r.expense.Amount, r.expense.Category, r.expense.Payee, r.expense.Note}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, i+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeSums(f *excelize.File, sheet, keyHeader string, rows []sumRow) error {
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, "A1", keyHeader); err != nil {
		return err
	}
	if err := f.SetCellValue(sheet, "B1", "Sum"); err != nil {
		return err
	}
	for i, r := range rows {
		if err := f.SetCellValue(sheet, fmt.Sprintf("A%d", i+2), r.key); err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, fmt.Sprintf("B%d", i+2), r.total); err != nil {
			return err
		}
	}
	return nil
}

// writeCharts plots the category and daily rollups: a column chart over
// ByCategory and a line chart over ByDate, on their own sheet.
func writeCharts(f *excelize.File, categories, days int) error {
	const sheet = "Charts"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	if categories > 0 {
		bar := &excelize.Chart{
			Type: excelize.Col,
			Series: []excelize.ChartSeries{{
				Name:       "ByCategory!$B$1",
				Categories: fmt.Sprintf("ByCategory!$A$2:$A$%d", categories+1),
				Values:     fmt.Sprintf("ByCategory!$B$2:$B$%d", categories+1),
			}},
			Title: []excelize.RichTextRun{{Text: "分类汇总"}},
		}
		if err := f.AddChart(sheet, "A1", bar); err != nil {
			return err
		}
	}
	if days > 0 {
		line := &excelize.Chart{
			Type: excelize.Line,
			Series: []excelize.ChartSeries{{
				Name:       "ByDate!$B$1",
				Categories: fmt.Sprintf("ByDate!$A$2:$A$%d", days+1),
				Values:     fmt.Sprintf("ByDate!$B$2:$B$%d", days+1),
			}},
			Title: []excelize.RichTextRun{{Text: "每日支出"}},
		}
		if err := f.AddChart(sheet, "A16", line); err != nil {
			return err
		}
	}
	return nil
}

func sortedByTotal(m map[string]float64) []sumRow {
	rows := collect(m)
	sort.Slice(rows, func(i, j int) bool { return rows[i].total > rows[j].total })
	return rows
}

func sortedByKey(m map[string]float64) []sumRow {
	rows := collect(m)
	sort.Slice(rows, func(i, j int) bool { return rows[i].key < rows[j].key })
	return rows
}

func collect(m map[string]float64) []sumRow {
	rows := make([]sumRow, 0, len(m))
	for k, v := range m {
		rows = append(rows, sumRow{key: k, total: v})
	}
	return rows
}
