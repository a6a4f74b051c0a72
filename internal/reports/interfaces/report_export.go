package interfaces

import (
	"bytes"
	"fmt"
	"sort"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	reports "sitewatch/internal/reports/domain"
)

// BuildReportPDF renders a minimal PDF for an alarm report.
func BuildReportPDF(report *reports.GeneratedReport) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Alarm Summary Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Report ID: %s", report.ID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Period: last %d days", report.PeriodDays))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", report.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	if scope := describeFilters(report.Filters); scope != "" {
		pdf.Cell(0, 6, fmt.Sprintf("Filters: %s", scope))
		pdf.Ln(5)
	}

	summary := report.Report.Summary
	pdf.Ln(4)
	pdf.Cell(0, 6, fmt.Sprintf("Total Alarms: %d", summary.TotalAlarms))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("MTTA (hours): %.2f", summary.MTTAHours))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("MTTR (hours): %.2f", summary.MTTRHours))
	pdf.Ln(5)
	for _, line := range countLines(summary.BySeverity) {
		pdf.Cell(0, 6, "Severity "+line)
		pdf.Ln(5)
	}
	for _, line := range countLines(summary.ByStatus) {
		pdf.Cell(0, 6, "Status "+line)
		pdf.Ln(5)
	}
	pdf.Ln(4)

	// Top sites table
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(90, 6, "Site", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Alarms", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, site := range report.Report.TopSites {
		pdf.CellFormat(90, 6, site.SiteName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 6, fmt.Sprintf("%d", site.AlarmCount), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	pdf.Ln(4)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(90, 6, "Category", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Count", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, category := range report.Report.TopCategories {
		pdf.CellFormat(90, 6, category.Category, "1", 0, "L", false, 0, "")
		pdf.CellFormat(50, 6, fmt.Sprintf("%d", category.Count), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildReportXLSX renders a minimal XLSX for an alarm report.
func BuildReportXLSX(report *reports.GeneratedReport) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	sitesSheet := "top_sites"
	trendSheet := "trend"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(sitesSheet)
	f.NewSheet(trendSheet)

	summary := report.Report.Summary
	_ = f.SetCellValue(summarySheet, "A1", "Alarm Summary Report")
	_ = f.SetCellValue(summarySheet, "A3", "Report ID")
	_ = f.SetCellValue(summarySheet, "B3", report.ID)
	_ = f.SetCellValue(summarySheet, "A4", "Period (days)")
	_ = f.SetCellValue(summarySheet, "B4", report.PeriodDays)
	_ = f.SetCellValue(summarySheet, "A5", "Generated")
	_ = f.SetCellValue(summarySheet, "B5", report.GeneratedAt.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A6", "Total Alarms")
	_ = f.SetCellValue(summarySheet, "B6", summary.TotalAlarms)
	_ = f.SetCellValue(summarySheet, "A7", "MTTA (hours)")
	_ = f.SetCellValue(summarySheet, "B7", summary.MTTAHours)
	_ = f.SetCellValue(summarySheet, "A8", "MTTR (hours)")
	_ = f.SetCellValue(summarySheet, "B8", summary.MTTRHours)

	row := 10
	for _, line := range countLines(summary.BySeverity) {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), "Severity "+line)
		row++
	}
	for _, line := range countLines(summary.ByStatus) {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", row), "Status "+line)
		row++
	}

	_ = f.SetCellValue(sitesSheet, "A1", "Site")
	_ = f.SetCellValue(sitesSheet, "B1", "Alarms")
	for i, site := range report.Report.TopSites {
		r := i + 2
		_ = f.SetCellValue(sitesSheet, fmt.Sprintf("A%d", r), site.SiteName)
		_ = f.SetCellValue(sitesSheet, fmt.Sprintf("B%d", r), site.AlarmCount)
	}

	_ = f.SetCellValue(trendSheet, "A1", "Date")
	_ = f.SetCellValue(trendSheet, "B1", "Alarms")
	for i, point := range report.Report.Trend {
		r := i + 2
		_ = f.SetCellValue(trendSheet, fmt.Sprintf("A%d", r), point.Date)
		_ = f.SetCellValue(trendSheet, fmt.Sprintf("B%d", r), point.Count)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func describeFilters(filters reports.Filters) string {
	parts := []string{}
	if filters.Severity != "" {
		parts = append(parts, "severity="+filters.Severity)
	}
	if filters.Category != "" {
		parts = append(parts, "category="+filters.Category)
	}
	if filters.Site != "" {
		parts = append(parts, "site="+filters.Site)
	}
	if filters.Region != "" {
		parts = append(parts, "region="+filters.Region)
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}

func countLines(counts map[string]int) []string {
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %d", k, counts[k]))
	}
	return lines
}
