package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ridgeline-crm/ridgeline/internal/booking"
	"github.com/ridgeline-crm/ridgeline/internal/crm"
	"github.com/ridgeline-crm/ridgeline/internal/rules"
)

const testAPIKey = "valid-key"

type ErrorResponse struct {
	Error string `json:"error"`
}

// fakeCRM is an in-memory stand-in for the CRM used by the workflow.
type fakeCRM struct {
	slots       []crm.TimeSlot
	slotsErr    error
	refErr      error
	created     []crm.CreateBookingRequest
	leadPatches map[string]map[string]any
	inspections map[string]*crm.Inspection
	rules       map[string]*crm.RecurringRule
	nextRuleID  int
}

func newFakeCRM() *fakeCRM {
	day := time.Date(2026, 9, 3, 0, 0, 0, 0, time.UTC)
	return &fakeCRM{
		slots: []crm.TimeSlot{
			{ID: "s1", Date: "2026-09-03", Start: day.Add(13 * time.Hour), End: day.Add(14*time.Hour + 30*time.Minute)},
			{ID: "s2", Date: "2026-09-03", Start: day.Add(15 * time.Hour), End: day.Add(16 * time.Hour)},
		},
		leadPatches: make(map[string]map[string]any),
		inspections: make(map[string]*crm.Inspection),
		rules:       make(map[string]*crm.RecurringRule),
	}
}

func (f *fakeCRM) GetAvailableSlots(ctx context.Context, filter crm.SlotFilter) ([]crm.TimeSlot, error) {
	return f.slots, f.slotsErr
}

func (f *fakeCRM) CreateBooking(ctx context.Context, req crm.CreateBookingRequest) (*crm.Booking, error) {
	f.created = append(f.created, req)
	return &crm.Booking{
		ID:               fmt.Sprintf("b%d", len(f.created)),
		DateOfInspection: req.DateOfInspection,
		Status:           crm.BookingConfirmed,
		Presence:         req.Presence,
	}, nil
}

func (f *fakeCRM) UpdateLead(ctx context.Context, id string, patch map[string]any) error {
	f.leadPatches[id] = patch
	return nil
}

func (f *fakeCRM) CancelInspection(ctx context.Context, req crm.CancelInspectionRequest) error {
	return nil
}

func (f *fakeCRM) RescheduleBooking(ctx context.Context, req crm.RescheduleRequest) (*crm.Booking, error) {
	return &crm.Booking{ID: req.BookingID, DateOfInspection: req.NewDate, Status: crm.BookingConfirmed}, nil
}

func (f *fakeCRM) GetInspection(ctx context.Context, id string) (*crm.Inspection, error) {
	if i, ok := f.inspections[id]; ok {
		return i, nil
	}
	return nil, &crm.APIError{StatusCode: http.StatusNotFound, Message: "not found"}
}

func (f *fakeCRM) ListInspectionTypes(ctx context.Context) ([]crm.InspectionType, error) {
	if f.refErr != nil {
		return nil, f.refErr
	}
	return []crm.InspectionType{
		{ID: "t1", Name: "Roof Inspection"},
		{ID: "t2", Name: "Storm Damage Assessment"},
	}, nil
}

func (f *fakeCRM) ListLocations(ctx context.Context) ([]crm.Location, error) {
	if f.refErr != nil {
		return nil, f.refErr
	}
	return []crm.Location{{ID: "loc1", Name: "North Office"}}, nil
}

func (f *fakeCRM) ListRecurringRules(ctx context.Context) ([]crm.RecurringRule, error) {
	out := make([]crm.RecurringRule, 0, len(f.rules))
	for _, r := range f.rules {
		out = append(out, *r)
	}
	return out, nil
}

func (f *fakeCRM) GetRecurringRule(ctx context.Context, id string) (*crm.RecurringRule, error) {
	if r, ok := f.rules[id]; ok {
		copied := *r
		return &copied, nil
	}
	return nil, &crm.APIError{StatusCode: http.StatusNotFound, Message: "not found"}
}

func (f *fakeCRM) CreateRecurringRule(ctx context.Context, rule crm.RecurringRule) (*crm.RecurringRule, error) {
	f.nextRuleID++
	rule.ID = fmt.Sprintf("r%d", f.nextRuleID)
	f.rules[rule.ID] = &rule
	copied := rule
	return &copied, nil
}

func (f *fakeCRM) UpdateRecurringRule(ctx context.Context, id string, patch map[string]any) error {
	rule, ok := f.rules[id]
	if !ok {
		return &crm.APIError{StatusCode: http.StatusNotFound, Message: "not found"}
	}
	if v, ok := patch["start_time"].(string); ok {
		rule.StartTime = v
	}
	if v, ok := patch["end_time"].(string); ok {
		rule.EndTime = v
	}
	if v, ok := patch["days"].([]int); ok {
		rule.Days = v
	}
	if v, ok := patch["status"].(string); ok {
		rule.Status = v
	}
	return nil
}

func (f *fakeCRM) DeleteRecurringRule(ctx context.Context, id string) error {
	if _, ok := f.rules[id]; !ok {
		return &crm.APIError{StatusCode: http.StatusNotFound, Message: "not found"}
	}
	delete(f.rules, id)
	return nil
}

type testServer struct {
	*HTTPServer
	crm *fakeCRM
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	fake := newFakeCRM()
	store := booking.NewSessionStore(time.Hour)
	workflow := booking.NewWorkflow(fake, store, nil, nil, zerolog.Nop())
	editor := rules.NewEditor(fake, nil, zerolog.Nop(), 10*time.Millisecond)
	server := New(":0", workflow, fake, fake, editor, nil, nil, testAPIKey, zerolog.Nop())
	return &testServer{HTTPServer: server, crm: fake}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if s, ok := body.(string); ok {
		reader = bytes.NewReader([]byte(s))
	} else if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-Key", testAPIKey)

	w := httptest.NewRecorder()
	ts.Handler().ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	srv := setupTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/sessions", bytes.NewReader([]byte("{}")))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

func TestHealthzSkipsAuth(t *testing.T) {
	srv := setupTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestOpenSessionReturnsAvailability(t *testing.T) {
	srv := setupTestServer(t)

	w := srv.do(t, http.MethodPost, "/api/sessions", OpenSessionRequest{LeadID: "l1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want %d: %s", w.Code, http.StatusCreated, w.Body.String())
	}

	var resp SessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.ID == "" {
		t.Error("session id is empty")
	}
	if resp.State != "browsing" {
		t.Errorf("state = %q, want browsing", resp.State)
	}
	if len(resp.Days) != 1 || len(resp.Days[0].Slots) != 2 {
		t.Fatalf("unexpected availability: %+v", resp.Days)
	}
	if resp.Days[0].Slots[0].Label != "1 PM - 2:30 PM" {
		t.Errorf("slot label = %q, want %q", resp.Days[0].Slots[0].Label, "1 PM - 2:30 PM")
	}
	if resp.CanSubmit {
		t.Error("fresh session must not be submittable")
	}
}

func TestOpenSessionValidation(t *testing.T) {
	srv := setupTestServer(t)

	tests := []struct {
		name       string
		body       any
		wantStatus int
	}{
		{"invalid JSON", "not json", http.StatusBadRequest},
		{"unknown field", map[string]string{"bogus": "x"}, http.StatusBadRequest},
		{"unknown inspection", OpenSessionRequest{InspectionID: "nope"}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(t, http.MethodPost, "/api/sessions", tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestBookThroughAPI(t *testing.T) {
	srv := setupTestServer(t)

	w := srv.do(t, http.MethodPost, "/api/sessions", OpenSessionRequest{LeadID: "l1", InspectionTypeID: "t1"})
	var opened SessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &opened); err != nil {
		t.Fatal(err)
	}

	// Incomplete selection is rejected at submit.
	w = srv.do(t, http.MethodPost, "/api/sessions/"+opened.ID+"/submit", SubmitSessionRequest{})
	if w.Code != http.StatusConflict {
		t.Fatalf("premature submit status = %d, want %d", w.Code, http.StatusConflict)
	}

	date, slot, presence := "2026-09-03", "s1", "yes"
	w = srv.do(t, http.MethodPatch, "/api/sessions/"+opened.ID, UpdateSessionRequest{
		Date: &date, SlotID: &slot, Presence: &presence,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("patch status = %d: %s", w.Code, w.Body.String())
	}
	var patched SessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &patched); err != nil {
		t.Fatal(err)
	}
	if !patched.CanSubmit {
		t.Fatal("session should be submittable after full selection")
	}

	w = srv.do(t, http.MethodPost, "/api/sessions/"+opened.ID+"/submit", SubmitSessionRequest{})
	if w.Code != http.StatusOK {
		t.Fatalf("submit status = %d: %s", w.Code, w.Body.String())
	}

	if len(srv.crm.created) != 1 {
		t.Fatalf("bookings created = %d, want 1", len(srv.crm.created))
	}
	got := srv.crm.created[0]
	if got.TimeSlotID != "s1" || got.DateOfInspection != "2026-09-03" || got.Presence != crm.PresenceYes {
		t.Errorf("unexpected booking request: %+v", got)
	}
	if _, ok := srv.crm.leadPatches["l1"]; !ok {
		t.Error("lead was not linked after booking")
	}
}

func TestSelectUnknownSlot(t *testing.T) {
	srv := setupTestServer(t)

	w := srv.do(t, http.MethodPost, "/api/sessions", OpenSessionRequest{})
	var opened SessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &opened); err != nil {
		t.Fatal(err)
	}

	slot := "not-offered"
	w = srv.do(t, http.MethodPatch, "/api/sessions/"+opened.ID, UpdateSessionRequest{SlotID: &slot})
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}
}

func TestCancelRequiresConfirmation(t *testing.T) {
	srv := setupTestServer(t)
	srv.crm.inspections["i1"] = &crm.Inspection{
		ID:      "i1",
		LeadID:  "l1",
		Booking: &crm.Booking{ID: "b9", DateOfInspection: "2026-09-10", Status: crm.BookingConfirmed},
	}

	w := srv.do(t, http.MethodPost, "/api/sessions", OpenSessionRequest{InspectionID: "i1"})
	if w.Code != http.StatusCreated {
		t.Fatalf("open replace status = %d: %s", w.Code, w.Body.String())
	}
	var opened SessionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &opened); err != nil {
		t.Fatal(err)
	}
	if opened.Existing == nil || opened.Existing.ID != "b9" {
		t.Fatalf("existing booking not surfaced: %+v", opened.Existing)
	}

	action, reason := "cancel", "customer request"
	w = srv.do(t, http.MethodPatch, "/api/sessions/"+opened.ID, UpdateSessionRequest{Action: &action, Reason: &reason})
	if w.Code != http.StatusOK {
		t.Fatalf("patch status = %d: %s", w.Code, w.Body.String())
	}

	w = srv.do(t, http.MethodPost, "/api/sessions/"+opened.ID+"/submit", SubmitSessionRequest{Confirmed: false})
	if w.Code != http.StatusConflict {
		t.Fatalf("unconfirmed cancel status = %d, want %d", w.Code, http.StatusConflict)
	}

	w = srv.do(t, http.MethodPost, "/api/sessions/"+opened.ID+"/submit", SubmitSessionRequest{Confirmed: true})
	if w.Code != http.StatusOK {
		t.Fatalf("confirmed cancel status = %d: %s", w.Code, w.Body.String())
	}
}

func TestGetUnknownSession(t *testing.T) {
	srv := setupTestServer(t)

	w := srv.do(t, http.MethodGet, "/api/sessions/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
