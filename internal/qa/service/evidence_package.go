package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bitfantasy/siteqa/internal/qa/engine"
	"github.com/xuri/excelize/v2"
)

const dateLayout = "2006-01-02"

var (
	packageLotHeaders  = []string{"Lot", "Amount", "Score", "ITP", "Tests", "Hold Points", "NCRs", "Photos", "Recommendation", "Issues"}
	packageHoldHeaders = []string{"Lot", "Hold Point", "Status", "Scheduled", "Released At", "Released By", "Method"}
	packageTestHeaders = []string{"Lot", "Test", "Result", "Reference", "Tested At"}
	packageNCRHeaders  = []string{"NCR", "Title", "Severity", "Status", "Raised", "Closed", "QM Approved"}
)

// packageWriter sheet helper with a shared header style
type packageWriter struct {
	f           *excelize.File
	headerStyle int
}

func (p *packageWriter) header(sheet string, headers []string, widths []float64) {
	for i, h := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		p.f.SetCellValue(sheet, cell, h)
		p.f.SetCellStyle(sheet, cell, cell, p.headerStyle)
	}
	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		p.f.SetColWidth(sheet, col, col, w)
	}
}

func (p *packageWriter) row(sheet string, row int, values ...interface{}) {
	for i, v := range values {
		col, _ := excelize.ColumnNumberToName(i + 1)
		p.f.SetCellValue(sheet, fmt.Sprintf("%s%d", col, row), v)
	}
}

func fmtDate(t time.Time) string {
	return t.Format(dateLayout)
}

// EvidencePackage claim evidence workbook: summary, lot scores, hold points, tests, NCRs
func (s *ClaimService) EvidencePackage(ctx context.Context, claimID string) (*excelize.File, string, error) {
	claim, err := s.w.repos.Claim.FindByID(ctx, claimID)
	if err != nil {
		return nil, "", err
	}
	project, err := s.w.repos.Project.FindByID(ctx, claim.ProjectID)
	if err != nil {
		return nil, "", err
	}
	completeness, err := s.completeness.Check(ctx, claim)
	if err != nil {
		return nil, "", err
	}
	lotIDs := make([]string, 0, len(claim.Lots))
	for _, l := range claim.Lots {
		lotIDs = append(lotIDs, l.LotID)
	}
	holds, err := s.w.repos.HoldPoint.FindByLots(ctx, lotIDs)
	if err != nil {
		return nil, "", fmt.Errorf("load hold points: %w", err)
	}
	tests, err := s.w.repos.Lot.ListTests(ctx, lotIDs)
	if err != nil {
		return nil, "", fmt.Errorf("load tests: %w", err)
	}
	ncrs, err := s.w.repos.NCR.FindByLots(ctx, lotIDs)
	if err != nil {
		return nil, "", fmt.Errorf("load NCRs: %w", err)
	}
	lotNumbers := map[string]string{}
	for _, l := range completeness.Lots {
		lotNumbers[l.LotID] = l.LotNumber
	}

	f := excelize.NewFile()
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	p := &packageWriter{f: f, headerStyle: headerStyle}

	// Summary
	summary := "Summary"
	f.SetSheetName("Sheet1", summary)
	deadlines := engine.DeadlinesFor(*claim, s.region(project), s.w.now())
	rows := [][]interface{}{
		{"Project", project.Name},
		{"Claim", fmt.Sprintf("#%d", claim.ClaimNumber)},
		{"Period", fmtDate(claim.PeriodStart) + " to " + fmtDate(claim.PeriodEnd)},
		{"Status", claim.Status},
		{"Total Claimed", completeness.TotalClaimed.StringFixed(2)},
		{"Recommended Amount", completeness.RecommendedAmount.StringFixed(2)},
		{"Overall Score", completeness.OverallScore},
		{"Lots (include / review / exclude)", fmt.Sprintf("%d / %d / %d", completeness.IncludeCount, completeness.ReviewCount, completeness.ExcludeCount)},
		{"SOPA Region", deadlines.Region},
	}
	if deadlines.CertificationDue != nil {
		rows = append(rows, []interface{}{"Certification Due", fmtDate(*deadlines.CertificationDue)})
	}
	if deadlines.PaymentDue != nil {
		rows = append(rows, []interface{}{"Payment Due", fmtDate(*deadlines.PaymentDue)})
	}
	for i, r := range rows {
		p.row(summary, i+1, r...)
	}
	labelStyle, _ := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	f.SetCellStyle(summary, "A1", fmt.Sprintf("A%d", len(rows)), labelStyle)
	f.SetColWidth(summary, "A", "A", 32)
	f.SetColWidth(summary, "B", "B", 40)

	// Lots
	sheet := "Lots"
	f.NewSheet(sheet)
	p.header(sheet, packageLotHeaders, []float64{14, 14, 8, 10, 10, 12, 10, 8, 16, 60})
	for i, l := range completeness.Lots {
		issues := make([]string, 0, len(l.Issues))
		for _, is := range l.Issues {
			issues = append(issues, fmt.Sprintf("[%s] %s", is.Severity, is.Message))
		}
		p.row(sheet, i+2,
			l.LotNumber,
			l.Amount.StringFixed(2),
			l.Score,
			fmt.Sprintf("%.0f", l.Breakdown.ITP),
			fmt.Sprintf("%.0f", l.Breakdown.Tests),
			fmt.Sprintf("%.0f", l.Breakdown.HoldPoints),
			fmt.Sprintf("%.0f", l.Breakdown.NCRs),
			fmt.Sprintf("%.0f", l.Breakdown.Photos),
			string(l.Recommendation),
			strings.Join(issues, "; "),
		)
	}

	// Hold points
	sheet = "Hold Points"
	f.NewSheet(sheet)
	p.header(sheet, packageHoldHeaders, []float64{14, 40, 12, 14, 14, 24, 10})
	for i, hp := range holds {
		scheduled, released := "", ""
		if hp.ScheduledDate != nil {
			scheduled = fmtDate(*hp.ScheduledDate)
		}
		if hp.ReleasedAt != nil {
			released = fmtDate(*hp.ReleasedAt)
		}
		p.row(sheet, i+2, lotNumbers[hp.LotID], hp.Description, hp.Status, scheduled, released, hp.ReleasedByName, hp.ReleaseMethod)
	}

	// Tests
	sheet = "Tests"
	f.NewSheet(sheet)
	p.header(sheet, packageTestHeaders, []float64{14, 30, 10, 24, 14})
	for i, tr := range tests {
		tested := ""
		if tr.TestedAt != nil {
			tested = fmtDate(*tr.TestedAt)
		}
		p.row(sheet, i+2, lotNumbers[tr.LotID], tr.TestType, tr.Result, tr.Reference, tested)
	}

	// NCRs
	sheet = "NCRs"
	f.NewSheet(sheet)
	p.header(sheet, packageNCRHeaders, []float64{12, 40, 10, 18, 14, 14, 14})
	for i, n := range ncrs {
		closed, approved := "", ""
		if n.ClosedAt != nil {
			closed = fmtDate(*n.ClosedAt)
		}
		if n.QMApprovedAt != nil {
			approved = fmtDate(*n.QMApprovedAt)
		} else if n.IsMajor() {
			approved = "pending"
		}
		p.row(sheet, i+2, n.NCRNumber, n.Title, n.Severity, n.Status, fmtDate(n.CreatedAt), closed, approved)
	}

	f.SetActiveSheet(0)
	filename := fmt.Sprintf("Claim_%s_%d_evidence.xlsx", project.Code, claim.ClaimNumber)
	return f, filename, nil
}
