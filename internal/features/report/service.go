package report

import (
	"context"
	"fmt"
	"time"

	"go-approvals/internal/features/dashboard"
	"go-approvals/internal/features/request"

	"github.com/xuri/excelize/v2"
)

type Service interface {
	// ExportHistory renders one request's full decision history as an
	// Excel workbook: a request sheet, the approver panel and the event
	// stream.
	ExportHistory(ctx context.Context, requestID string) ([]byte, string, error)
	// ExportSummary renders the dashboard summary projection.
	ExportSummary(ctx context.Context) ([]byte, string, error)
}

type ServiceImpl struct {
	Requests  request.Service
	Dashboard dashboard.Service
}

func NewService(requests request.Service, dashboardService dashboard.Service) Service {
	return &ServiceImpl{
		Requests:  requests,
		Dashboard: dashboardService,
	}
}

func (s *ServiceImpl) ExportHistory(ctx context.Context, requestID string) ([]byte, string, error) {
	detail, err := s.Requests.Get(ctx, requestID)
	if err != nil {
		return nil, "", err
	}
	events, err := s.Requests.History(ctx, requestID)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})

	// Sheet 1: the request itself
	sheet := "Request"
	f.SetSheetName("Sheet1", sheet)
	writeRows(f, sheet, [][]interface{}{
		{"Subject", detail.Request.Subject.Title},
		{"Type", detail.Request.Subject.Type},
		{"Subject ID", detail.Request.Subject.ID},
		{"Status", string(detail.Request.Status)},
		{"Created by", detail.Request.CreatedBy.Name},
		{"Created at", formatTime(&detail.Request.CreatedAt)},
		{"Due date", formatTime(detail.Request.DueDate)},
		{"Completed at", formatTime(detail.Request.CompletedAt)},
		{"Overdue", detail.IsOverdue},
	})

	// Sheet 2: approver panel with signature records
	panel := "Approvers"
	if _, err := f.NewSheet(panel); err != nil {
		return nil, "", err
	}
	writeHeader(f, panel, headerStyle, []string{"User", "Role", "Required", "Decision", "Decided at", "Signed", "Signed from"})
	for i, a := range detail.Approvers {
		writeRow(f, panel, i+2, []interface{}{
			a.Name, a.Role, a.IsRequired, string(a.Decision),
			formatTime(a.DecidedAt), a.Signature.Signed, a.Signature.IPAddress,
		})
	}

	// Sheet 3: the event stream
	history := "History"
	if _, err := f.NewSheet(history); err != nil {
		return nil, "", err
	}
	writeHeader(f, history, headerStyle, []string{"Seq", "Timestamp", "Actor", "Action", "Comment"})
	for i, e := range events {
		writeRow(f, history, i+2, []interface{}{
			e.Seq, formatTime(&e.Timestamp), e.Actor.Name, string(e.Action), e.Comment,
		})
	}

	buffer, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", err
	}
	return buffer.Bytes(), fmt.Sprintf("approval-%s.xlsx", requestID), nil
}

func (s *ServiceImpl) ExportSummary(ctx context.Context) ([]byte, string, error) {
	summary, err := s.Dashboard.GetSummary(ctx)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})

	sheet := "Summary"
	f.SetSheetName("Sheet1", sheet)
	writeHeader(f, sheet, headerStyle, []string{"Status", "Count"})
	row := 2
	for _, status := range []request.Status{
		request.StatusPending,
		request.StatusApproved,
		request.StatusRejected,
		request.StatusChangesRequested,
	} {
		writeRow(f, sheet, row, []interface{}{string(status), summary.CountsByStatus[status]})
		row++
	}
	writeRow(f, sheet, row+1, []interface{}{"Overdue", summary.OverdueCount})
	writeRow(f, sheet, row+2, []interface{}{"Avg completion (days)", summary.AvgCompletionDays})

	buffer, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", err
	}
	return buffer.Bytes(), fmt.Sprintf("approvals-summary-%s.xlsx", time.Now().Format("2006-01-02")), nil
}

func writeHeader(f *excelize.File, sheet string, style int, columns []string) {
	for i, col := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, col)
		f.SetCellStyle(sheet, cell, cell, style)
		name, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, name, name, 20)
	}
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		f.SetCellValue(sheet, cell, v)
	}
}

func writeRows(f *excelize.File, sheet string, rows [][]interface{}) {
	for i, row := range rows {
		writeRow(f, sheet, i+1, row)
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}
