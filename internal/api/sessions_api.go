package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/ridgeline-crm/ridgeline/internal/booking"
	"github.com/ridgeline-crm/ridgeline/internal/crm"
	"github.com/ridgeline-crm/ridgeline/internal/metrics"
	"github.com/ridgeline-crm/ridgeline/internal/slots"
)

// OpenSessionRequest is the request body for POST /api/sessions.
type OpenSessionRequest struct {
	LeadID           string `json:"lead_id,omitempty"`
	PropertyID       string `json:"property_id,omitempty"`
	LocationID       string `json:"location_id,omitempty"`
	InspectionTypeID string `json:"inspection_type_id,omitempty"`
	// InspectionID switches the session to the replace flow against an
	// existing booking.
	InspectionID string `json:"inspection_id,omitempty"`
}

// SlotResponse is one bookable window with its display strings.
type SlotResponse struct {
	ID    string `json:"id"`
	Label string `json:"label"` // "1 PM - 2:30 PM"
}

// DayResponse is one date with its slots.
type DayResponse struct {
	Date  string          `json:"date"`
	Label slots.DateLabel `json:"label"`
	Slots []SlotResponse  `json:"slots"`
}

// SessionResponse is the session view returned by every session endpoint.
type SessionResponse struct {
	ID           string        `json:"id"`
	State        string        `json:"state"`
	Action       string        `json:"action"`
	Days         []DayResponse `json:"days"`
	SelectedDate string        `json:"selected_date,omitempty"`
	SelectedSlot string        `json:"selected_slot,omitempty"`
	Presence     string        `json:"presence,omitempty"`
	CanSubmit    bool          `json:"can_submit"`
	Existing     *crm.Booking  `json:"existing_booking,omitempty"`
}

// UpdateSessionRequest carries the incremental selections for
// PATCH /api/sessions/{id}.
type UpdateSessionRequest struct {
	Date             *string `json:"date,omitempty"`
	SlotID           *string `json:"slot_id,omitempty"`
	Presence         *string `json:"presence,omitempty"`
	InspectionTypeID *string `json:"inspection_type_id,omitempty"`
	Action           *string `json:"action,omitempty"`
	Reason           *string `json:"reason,omitempty"`
}

// SubmitSessionRequest is the body for POST /api/sessions/{id}/submit.
type SubmitSessionRequest struct {
	Confirmed bool `json:"confirmed"`
}

// handleOpenSession opens a scheduling session.
// POST /api/sessions
func (s *HTTPServer) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("open_session")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req OpenSessionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	var session *booking.Session
	if req.InspectionID != "" {
		var err error
		session, err = s.workflow.OpenReplace(r.Context(), req.InspectionID)
		if err != nil {
			if errors.Is(err, booking.ErrNoExistingBooking) {
				writeError(w, http.StatusConflict, err.Error())
				return
			}
			s.log.Error().Err(err).Str("inspection_id", req.InspectionID).Msg("open replace session failed")
			writeError(w, http.StatusBadGateway, "could not load inspection from CRM")
			return
		}
	} else {
		if req.LocationID != "" && !s.locationBookable(req.LocationID) {
			writeError(w, http.StatusBadRequest, "location is not open for booking")
			return
		}
		session = s.workflow.OpenBooking(r.Context(), booking.OpenBookingRequest{
			LeadID:           req.LeadID,
			PropertyID:       req.PropertyID,
			LocationID:       req.LocationID,
			InspectionTypeID: req.InspectionTypeID,
		})
	}

	writeJSON(w, http.StatusCreated, sessionView(session))
}

// handleSession routes /api/sessions/{id} and its sub-resources.
func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	id, sub, _ := strings.Cut(rest, "/")
	if id == "" {
		writeError(w, http.StatusBadRequest, "session id is required")
		return
	}

	switch sub {
	case "":
		switch r.Method {
		case http.MethodGet:
			s.handleGetSession(w, r, id)
		case http.MethodPatch:
			s.handleUpdateSession(w, r, id)
		case http.MethodDelete:
			s.handleCloseSession(w, r, id)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case "submit":
		s.handleSubmit(w, r, id)
	default:
		writeError(w, http.StatusNotFound, "unknown session resource")
	}
}

func (s *HTTPServer) handleGetSession(w http.ResponseWriter, r *http.Request, id string) {
	metrics.IncHTTP("get_session")
	session, err := s.workflow.Session(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sessionView(session))
}

func (s *HTTPServer) handleUpdateSession(w http.ResponseWriter, r *http.Request, id string) {
	metrics.IncHTTP("update_session")

	var req UpdateSessionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	session, err := s.workflow.Session(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	if req.Action != nil {
		action := booking.Action(*req.Action)
		switch action {
		case booking.ActionBook, booking.ActionCancel, booking.ActionReschedule:
			session.SetAction(action)
		default:
			writeError(w, http.StatusBadRequest, "action must be book, cancel or reschedule")
			return
		}
	}
	if req.Date != nil {
		session.SelectDate(*req.Date)
	}
	if req.SlotID != nil {
		if err := s.workflow.SelectSlot(id, *req.SlotID); err != nil {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
	}
	if req.Presence != nil {
		p := crm.Presence(*req.Presence)
		if !p.Valid() {
			writeError(w, http.StatusBadRequest, "presence must be yes, no or maybe")
			return
		}
		session.SetPresence(p)
	}
	if req.InspectionTypeID != nil {
		session.SetInspectionType(*req.InspectionTypeID)
	}
	if req.Reason != nil {
		session.SetReason(*req.Reason)
	}

	writeJSON(w, http.StatusOK, sessionView(session))
}

func (s *HTTPServer) handleCloseSession(w http.ResponseWriter, r *http.Request, id string) {
	metrics.IncHTTP("close_session")
	s.workflow.Close(id)
	writeJSON(w, http.StatusOK, map[string]bool{"closed": true})
}

// handleSubmit performs the session's selected action.
// POST /api/sessions/{id}/submit
func (s *HTTPServer) handleSubmit(w http.ResponseWriter, r *http.Request, id string) {
	metrics.IncHTTP("submit_session")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req SubmitSessionRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	session, err := s.workflow.Session(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}

	switch session.Action() {
	case booking.ActionBook:
		created, err := s.workflow.Book(r.Context(), id)
		if err != nil {
			s.submitError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"booking": created, "state": string(session.State())})
	case booking.ActionCancel:
		if err := s.workflow.Cancel(r.Context(), id, req.Confirmed); err != nil {
			s.submitError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"cancelled": true, "state": string(session.State())})
	case booking.ActionReschedule:
		inspection, err := s.workflow.Reschedule(r.Context(), id, req.Confirmed)
		if err != nil {
			s.submitError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"inspection": inspection, "state": string(session.State())})
	default:
		writeError(w, http.StatusConflict, "session has no submittable action")
	}
}

func (s *HTTPServer) submitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrUnknownSession):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, booking.ErrNotReady),
		errors.Is(err, booking.ErrReasonRequired),
		errors.Is(err, booking.ErrConfirmationRequired),
		errors.Is(err, booking.ErrWrongAction),
		errors.Is(err, booking.ErrNoExistingBooking):
		writeError(w, http.StatusConflict, err.Error())
	default:
		var apiErr *crm.APIError
		if errors.As(err, &apiErr) {
			writeError(w, http.StatusBadGateway, apiErr.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func sessionView(session *booking.Session) SessionResponse {
	groups := session.Groups()
	days := make([]DayResponse, 0, len(groups))
	for _, g := range groups {
		label, _ := slots.FormatDate(g.Date)
		day := DayResponse{Date: g.Date, Label: label, Slots: make([]SlotResponse, 0, len(g.Slots))}
		for _, slot := range g.Slots {
			day.Slots = append(day.Slots, SlotResponse{ID: slot.ID, Label: slots.FormatRange(slot)})
		}
		days = append(days, day)
	}

	pending := session.Pending()
	resp := SessionResponse{
		ID:           session.ID,
		State:        string(session.State()),
		Action:       string(session.Action()),
		Days:         days,
		SelectedDate: pending.Date,
		Presence:     string(pending.Presence),
		CanSubmit:    session.CanSubmit(),
		Existing:     session.ExistingBooking(),
	}
	if pending.Slot != nil {
		resp.SelectedSlot = pending.Slot.ID
	}
	return resp
}
