// Package google mirrors the confirmed inspection schedule into a shared
// Google Sheet so office staff can see it without CRM access. The sheet is a
// read-only mirror; the CRM stays the source of truth.
package google

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/ridgeline-crm/ridgeline/internal/crm"
)

var scheduleHeader = []any{
	"Booking", "Inspection", "Date", "Start", "End", "Status", "Presence",
}

// SheetsService pushes booking rows to one spreadsheet tab.
type SheetsService struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetName     string
	logger        zerolog.Logger

	// rowCache maps booking id to its sheet row so single-booking updates
	// skip the full resync.
	mu       sync.Mutex
	rowCache map[string]int
}

// NewSheetsService builds a service authenticated with a service-account
// credentials file.
func NewSheetsService(ctx context.Context, credentialsFile, spreadsheetID, sheetName string, logger zerolog.Logger) (*SheetsService, error) {
	svc, err := sheets.NewService(ctx, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("sheets: create service: %w", err)
	}
	return &SheetsService{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		logger:        logger,
		rowCache:      make(map[string]int),
	}, nil
}

// SyncSchedule rewrites the schedule tab from the given bookings. Cancelled
// bookings are filtered out; the rest are written in the order given.
func (s *SheetsService) SyncSchedule(ctx context.Context, bookings []crm.Booking) error {
	active := s.filterActiveBookings(bookings)

	values := make([][]any, 0, len(active)+1)
	values = append(values, scheduleHeader)
	for i := range active {
		values = append(values, bookingRowValues(&active[i]))
	}

	clearRange := fmt.Sprintf("%s!A:G", s.sheetName)
	if _, err := s.svc.Spreadsheets.Values.Clear(s.spreadsheetID, clearRange, &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("sheets: clear schedule: %w", err)
	}

	writeRange := fmt.Sprintf("%s!A1", s.sheetName)
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, writeRange, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets: write schedule: %w", err)
	}

	s.ClearCache()
	s.mu.Lock()
	for i := range active {
		// Row 1 is the header; data starts at row 2.
		s.rowCache[active[i].ID] = i + 2
	}
	s.mu.Unlock()

	s.logger.Info().Int("rows", len(active)).Msg("schedule pushed to sheet")
	return nil
}

// UpdateBooking rewrites the single row for one booking, falling back to a
// full resync signal when the row is not cached.
func (s *SheetsService) UpdateBooking(ctx context.Context, b *crm.Booking) error {
	row, ok := s.getCachedRow(b.ID)
	if !ok {
		return fmt.Errorf("sheets: booking %s not in row cache", b.ID)
	}
	writeRange := fmt.Sprintf("%s!A%d", s.sheetName, row)
	_, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, writeRange, &sheets.ValueRange{Values: [][]any{bookingRowValues(b)}}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheets: update booking row: %w", err)
	}
	return nil
}

func (s *SheetsService) filterActiveBookings(bookings []crm.Booking) []crm.Booking {
	active := make([]crm.Booking, 0, len(bookings))
	for _, b := range bookings {
		if b.Status == crm.BookingCancelled {
			continue
		}
		active = append(active, b)
	}
	return active
}

func bookingRowValues(b *crm.Booking) []any {
	return []any{
		b.ID,
		b.InspectionID,
		b.DateOfInspection,
		b.StartTime,
		b.EndTime,
		b.Status,
		string(b.Presence),
	}
}

func (s *SheetsService) getCachedRow(bookingID string) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rowCache[bookingID]
	return row, ok
}

// ClearCache drops all cached row positions.
func (s *SheetsService) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rowCache = make(map[string]int)
}
