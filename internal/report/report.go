// Package report builds Excel exports of the scheduling workflow state for
// office staff: recent workflow events, bookings that never got linked to
// their lead, and the active recurring availability rules.
package report

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"github.com/ridgeline-crm/ridgeline/internal/audit"
	"github.com/ridgeline-crm/ridgeline/internal/crm"
)

// EventSource supplies audit rows for the export.
type EventSource interface {
	Recent(ctx context.Context, limit int) ([]audit.Event, error)
	UnlinkedBookings(ctx context.Context) ([]audit.Event, error)
}

// RuleSource supplies the recurring availability rules.
type RuleSource interface {
	ListRecurringRules(ctx context.Context) ([]crm.RecurringRule, error)
}

// Reporter assembles workbook exports.
type Reporter struct {
	events EventSource
	rules  RuleSource
	logger zerolog.Logger
}

// NewReporter builds a reporter. rules may be nil; the rules sheet is then
// omitted.
func NewReporter(events EventSource, rules RuleSource, logger zerolog.Logger) *Reporter {
	return &Reporter{events: events, rules: rules, logger: logger}
}

// maxEventRows caps the events sheet so exports stay mail-friendly.
const maxEventRows = 1000

// Export writes a complete workbook to w.
func (r *Reporter) Export(ctx context.Context, w io.Writer) error {
	book := newWorkbook()
	defer book.close()

	recent, err := r.events.Recent(ctx, maxEventRows)
	if err != nil {
		return fmt.Errorf("report: load events: %w", err)
	}
	if err := book.addSheet("Workflow Events",
		[]string{"Time", "Kind", "Lead", "Inspection", "Booking", "Detail"}); err != nil {
		return err
	}
	for _, e := range recent {
		book.addRow(eventRow(e))
	}

	unlinked, err := r.events.UnlinkedBookings(ctx)
	if err != nil {
		return fmt.Errorf("report: load unlinked bookings: %w", err)
	}
	if err := book.addSheet("Unlinked Bookings",
		[]string{"Time", "Kind", "Lead", "Inspection", "Booking", "Detail"}); err != nil {
		return err
	}
	for _, e := range unlinked {
		book.addRow(eventRow(e))
	}

	if r.rules != nil {
		rules, err := r.rules.ListRecurringRules(ctx)
		if err != nil {
			// The workbook is still useful without the rules sheet.
			r.logger.Warn().Err(err).Msg("report: rules sheet skipped")
		} else {
			if err := book.addSheet("Availability Rules",
				[]string{"ID", "Days", "Start", "End", "Repeat", "Status"}); err != nil {
				return err
			}
			for _, rule := range rules {
				book.addRow([]any{
					rule.ID, formatDays(rule.Days), rule.StartTime,
					rule.EndTime, string(rule.Repeat), rule.Status,
				})
			}
		}
	}

	if err := book.flush(); err != nil {
		return err
	}
	return book.save(w)
}

func eventRow(e audit.Event) []any {
	return []any{
		e.CreatedAt.Format("2006-01-02 15:04:05"),
		e.Kind, e.LeadID, e.InspectionID, e.BookingID, e.Detail,
	}
}

var dayNames = [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

func formatDays(days []int) string {
	names := make([]string, 0, len(days))
	for _, d := range days {
		if d >= 0 && d < len(dayNames) {
			names = append(names, dayNames[d])
		}
	}
	return strings.Join(names, ", ")
}

// workbook wraps excelize with cursor-style sheet building. Row errors are
// deferred to flush so callers loop without per-row checks.
type workbook struct {
	file  *excelize.File
	sheet string
	row   int
	err   error
}

func newWorkbook() *workbook {
	return &workbook{file: excelize.NewFile()}
}

func (b *workbook) addSheet(name string, headers []string) error {
	if len(name) > 31 { // Excel sheet name limit
		name = name[:31]
	}
	if b.sheet == "" {
		b.file.SetSheetName("Sheet1", name)
	} else if _, err := b.file.NewSheet(name); err != nil {
		return fmt.Errorf("report: create sheet %s: %w", name, err)
	}
	b.sheet = name
	b.row = 1

	cells := make([]any, len(headers))
	for i, h := range headers {
		cells[i] = h
	}
	b.addRow(cells)

	if style, err := b.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		start, _ := excelize.CoordinatesToCellName(1, 1)
		end, _ := excelize.CoordinatesToCellName(len(headers), 1)
		_ = b.file.SetCellStyle(name, start, end, style)
	}
	return b.err
}

func (b *workbook) addRow(values []any) {
	if b.err != nil {
		return
	}
	for i, v := range values {
		cell, err := excelize.CoordinatesToCellName(i+1, b.row)
		if err != nil {
			b.err = err
			return
		}
		if err := b.file.SetCellValue(b.sheet, cell, v); err != nil {
			b.err = err
			return
		}
	}
	b.row++
}

func (b *workbook) flush() error {
	return b.err
}

func (b *workbook) save(w io.Writer) error {
	return b.file.Write(w)
}

func (b *workbook) close() {
	_ = b.file.Close()
}
