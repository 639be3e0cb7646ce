package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ridgeline-crm/ridgeline/internal/crm"
	"github.com/ridgeline-crm/ridgeline/internal/events"
	"github.com/ridgeline-crm/ridgeline/internal/metrics"
	"github.com/ridgeline-crm/ridgeline/internal/slots"
)

var (
	// ErrUnknownSession means the session id is unknown or expired.
	ErrUnknownSession = errors.New("booking: unknown or expired session")
	// ErrNotReady means the session is missing required selections.
	ErrNotReady = errors.New("booking: selection incomplete")
	// ErrReasonRequired means cancel/reschedule was attempted without a reason.
	ErrReasonRequired = errors.New("booking: a reason is required")
	// ErrConfirmationRequired means the destructive submit was not confirmed.
	ErrConfirmationRequired = errors.New("booking: confirmation required")
	// ErrNoExistingBooking means a replace flow was opened without a booking.
	ErrNoExistingBooking = errors.New("booking: inspection has no booking to replace")
	// ErrWrongAction means the submit does not match the selected action.
	ErrWrongAction = errors.New("booking: session action does not match request")
)

// CRMClient is the slice of the CRM API the workflow drives.
type CRMClient interface {
	GetAvailableSlots(ctx context.Context, filter crm.SlotFilter) ([]crm.TimeSlot, error)
	CreateBooking(ctx context.Context, req crm.CreateBookingRequest) (*crm.Booking, error)
	UpdateLead(ctx context.Context, id string, patch map[string]any) error
	CancelInspection(ctx context.Context, req crm.CancelInspectionRequest) error
	RescheduleBooking(ctx context.Context, req crm.RescheduleRequest) (*crm.Booking, error)
	GetInspection(ctx context.Context, id string) (*crm.Inspection, error)
}

// AuditEntry is one recorded workflow outcome.
type AuditEntry struct {
	Kind         string
	LeadID       string
	InspectionID string
	BookingID    string
	Detail       string
}

// Audit kinds recorded by the workflow.
const (
	AuditBooked         = "booked"
	AuditLeadLinkFailed = "lead_link_failed"
	AuditCancelled      = "cancelled"
	AuditRescheduled    = "rescheduled"
)

// Auditor records workflow outcomes durably. Recording is best-effort from
// the workflow's point of view.
type Auditor interface {
	Record(ctx context.Context, entry AuditEntry) error
}

// Workflow orchestrates scheduling sessions against the CRM.
type Workflow struct {
	crm     CRMClient
	store   *SessionStore
	fsm     *FSM
	auditor Auditor     // optional
	bus     *events.Bus // optional
	logger  zerolog.Logger
}

// NewWorkflow wires a workflow. auditor and bus may be nil.
func NewWorkflow(client CRMClient, store *SessionStore, auditor Auditor, bus *events.Bus, logger zerolog.Logger) *Workflow {
	return &Workflow{
		crm:     client,
		store:   store,
		fsm:     NewFSM(),
		auditor: auditor,
		bus:     bus,
		logger:  logger,
	}
}

// OpenBookingRequest seeds a first-booking session.
type OpenBookingRequest struct {
	LeadID           string
	PropertyID       string
	LocationID       string
	InspectionTypeID string
}

// OpenBooking starts a fresh scheduling session and loads availability.
// Availability failures are not errors: the session opens with no slots, the
// same way the dashboard shows "no slots available".
func (w *Workflow) OpenBooking(ctx context.Context, req OpenBookingRequest) *Session {
	session := newSession()
	session.LeadID = req.LeadID
	session.PropertyID = req.PropertyID
	session.LocationID = req.LocationID
	if req.InspectionTypeID != "" {
		session.SetInspectionType(req.InspectionTypeID)
	}
	session.groups = w.fetchAvailability(ctx, req.LocationID)
	w.store.Put(session)
	return session
}

// OpenReplace starts a cancel/reschedule session against an existing
// inspection. The presence default is seeded from the current booking.
func (w *Workflow) OpenReplace(ctx context.Context, inspectionID string) (*Session, error) {
	inspection, err := w.crm.GetInspection(ctx, inspectionID)
	if err != nil {
		return nil, fmt.Errorf("load inspection %s: %w", inspectionID, err)
	}
	if inspection.Booking == nil {
		return nil, ErrNoExistingBooking
	}

	session := newSession()
	session.InspectionID = inspection.ID
	session.LeadID = inspection.LeadID
	session.PropertyID = inspection.PropertyID
	session.setExisting(inspection.Booking)
	if inspection.InspectionTypeID != "" {
		session.SetInspectionType(inspection.InspectionTypeID)
	}
	if inspection.Booking.Presence != "" {
		session.SetPresence(inspection.Booking.Presence)
	}
	session.groups = w.fetchAvailability(ctx, "")
	w.store.Put(session)
	return session, nil
}

// Session looks up an open session.
func (w *Workflow) Session(id string) (*Session, error) {
	session := w.store.Get(id)
	if session == nil {
		return nil, ErrUnknownSession
	}
	return session, nil
}

// Close abandons a session. Nothing was written server-side, so the state at
// open time is untouched.
func (w *Workflow) Close(id string) {
	w.store.Delete(id)
}

// SelectSlot records a time choice, verifying the slot was actually offered.
func (w *Workflow) SelectSlot(sessionID, slotID string) error {
	session, err := w.Session(sessionID)
	if err != nil {
		return err
	}
	slot := slots.FindSlot(session.Groups(), slotID)
	if slot == nil {
		return fmt.Errorf("booking: slot %q not in offered availability", slotID)
	}
	session.SelectSlot(*slot)
	return nil
}

// Book submits the pending selection as a new booking, then links the
// booking back onto the lead. The link step is best-effort: once the booking
// POST succeeds the booking is final, and a link failure is only logged and
// audited so the "booked but unlinked" state stays detectable.
func (w *Workflow) Book(ctx context.Context, sessionID string) (*crm.Booking, error) {
	session, err := w.Session(sessionID)
	if err != nil {
		return nil, err
	}
	if session.Action() != ActionBook {
		return nil, ErrWrongAction
	}
	if !session.CanSubmit() {
		return nil, ErrNotReady
	}

	// The armed submit control implies this, but re-validate anyway.
	pending := session.Pending()
	if pending.Date == "" || pending.Slot == nil {
		return nil, ErrNotReady
	}

	if err := w.advance(session, StateSubmitting); err != nil {
		return nil, err
	}

	booking, err := w.crm.CreateBooking(ctx, crm.CreateBookingRequest{
		LeadID:           session.LeadID,
		PropertyID:       session.PropertyID,
		InspectionTypeID: pending.InspectionTypeID,
		LocationID:       session.LocationID,
		DateOfInspection: pending.Slot.Start.Format("2006-01-02"),
		TimeSlotID:       pending.Slot.ID,
		Presence:         pending.Presence,
	})
	if err != nil {
		// Pending stays intact so the user can retry without re-entering.
		session.setState(StateFailed)
		metrics.IncBookingCreated("failed")
		return nil, err
	}

	if session.LeadID != "" {
		w.linkLead(ctx, session.LeadID, booking)
	}

	session.setExisting(booking)
	session.setState(StateConfirmed)

	metrics.IncBookingCreated("confirmed")
	w.record(ctx, AuditEntry{
		Kind:         AuditBooked,
		LeadID:       session.LeadID,
		InspectionID: booking.InspectionID,
		BookingID:    booking.ID,
		Detail:       pending.Slot.ID,
	})
	w.publish(events.TypeBooked, booking)

	w.logger.Info().
		Str("booking_id", booking.ID).
		Str("lead_id", session.LeadID).
		Str("slot_id", pending.Slot.ID).
		Msg("inspection booked")
	return booking, nil
}

// Cancel submits the cancellation for the session's existing booking. The
// destructive write requires the caller to have passed the confirmation gate.
func (w *Workflow) Cancel(ctx context.Context, sessionID string, confirmed bool) error {
	session, err := w.Session(sessionID)
	if err != nil {
		return err
	}
	if session.Action() != ActionCancel {
		return ErrWrongAction
	}
	existing := session.ExistingBooking()
	if existing == nil {
		return ErrNoExistingBooking
	}
	if session.Reason() == "" {
		return ErrReasonRequired
	}
	if !confirmed {
		return ErrConfirmationRequired
	}

	if err := w.advance(session, StateSubmitting); err != nil {
		return err
	}
	err = w.crm.CancelInspection(ctx, crm.CancelInspectionRequest{
		InspectionID: session.InspectionID,
		BookingID:    existing.ID,
		Reason:       session.Reason(),
	})
	if err != nil {
		session.setState(StateFailed)
		return err
	}

	cancelled := existing
	session.setExisting(nil)
	session.setState(StateConfirmed)

	metrics.IncBookingCancelled()
	w.record(ctx, AuditEntry{
		Kind:         AuditCancelled,
		LeadID:       session.LeadID,
		InspectionID: session.InspectionID,
		BookingID:    cancelled.ID,
		Detail:       session.Reason(),
	})
	w.publish(events.TypeCancelled, cancelled)

	w.logger.Info().
		Str("booking_id", cancelled.ID).
		Str("inspection_id", session.InspectionID).
		Msg("inspection cancelled")
	return nil
}

// Reschedule moves the existing booking to the newly selected slot, then
// re-fetches the canonical inspection record rather than trusting the
// mutation response.
func (w *Workflow) Reschedule(ctx context.Context, sessionID string, confirmed bool) (*crm.Inspection, error) {
	session, err := w.Session(sessionID)
	if err != nil {
		return nil, err
	}
	if session.Action() != ActionReschedule {
		return nil, ErrWrongAction
	}
	existing := session.ExistingBooking()
	if existing == nil {
		return nil, ErrNoExistingBooking
	}
	if session.Reason() == "" {
		return nil, ErrReasonRequired
	}
	if !session.CanSubmit() {
		return nil, ErrNotReady
	}
	if !confirmed {
		return nil, ErrConfirmationRequired
	}

	pending := session.Pending()
	if err := w.advance(session, StateSubmitting); err != nil {
		return nil, err
	}

	moved, err := w.crm.RescheduleBooking(ctx, crm.RescheduleRequest{
		BookingID:     existing.ID,
		InspectionID:  session.InspectionID,
		NewDate:       pending.Slot.Start.Format("2006-01-02"),
		NewTimeSlotID: pending.Slot.ID,
		Presence:      pending.Presence,
		Reason:        session.Reason(),
	})
	if err != nil {
		session.setState(StateFailed)
		return nil, err
	}

	inspection, err := w.crm.GetInspection(ctx, session.InspectionID)
	if err != nil {
		// Server truth is unreachable right now; fall back to the mutation
		// response so the caller still sees the new booking.
		w.logger.Warn().Err(err).
			Str("inspection_id", session.InspectionID).
			Msg("reschedule succeeded but re-fetch failed")
		inspection = &crm.Inspection{ID: session.InspectionID, LeadID: session.LeadID, Booking: moved}
	}

	session.setExisting(inspection.Booking)
	session.setState(StateConfirmed)

	metrics.IncBookingRescheduled()
	w.record(ctx, AuditEntry{
		Kind:         AuditRescheduled,
		LeadID:       session.LeadID,
		InspectionID: session.InspectionID,
		BookingID:    moved.ID,
		Detail:       session.Reason(),
	})
	w.publish(events.TypeRescheduled, inspection)
	return inspection, nil
}

// linkLead attaches the created booking to the parent lead. Failure here does
// not roll back or surface: booking success is final once the booking POST
// succeeded. The divergence is recorded so it can be repaired later.
func (w *Workflow) linkLead(ctx context.Context, leadID string, booking *crm.Booking) {
	patch := map[string]any{"inspection_booking_id": booking.ID}
	if booking.InspectionID != "" {
		patch["inspection_id"] = booking.InspectionID
	}
	if err := w.crm.UpdateLead(ctx, leadID, patch); err != nil {
		metrics.IncLeadLinkFailed()
		w.logger.Error().Err(err).
			Str("lead_id", leadID).
			Str("booking_id", booking.ID).
			Msg("booking created but lead link failed")
		w.record(ctx, AuditEntry{
			Kind:      AuditLeadLinkFailed,
			LeadID:    leadID,
			BookingID: booking.ID,
			Detail:    err.Error(),
		})
		w.publish(events.TypeLeadLinkFailed, booking)
	}
}

// advance moves a session along an FSM edge, rejecting moves the transition
// table does not allow.
func (w *Workflow) advance(session *Session, to State) error {
	from := session.State()
	if !w.fsm.CanTransition(from, to) {
		return fmt.Errorf("booking: illegal transition %s -> %s", from, to)
	}
	session.setState(to)
	return nil
}

func (w *Workflow) fetchAvailability(ctx context.Context, locationID string) []slots.DayGroup {
	flat, err := w.crm.GetAvailableSlots(ctx, crm.SlotFilter{LocationID: locationID})
	if err != nil {
		w.logger.Warn().Err(err).Msg("availability fetch failed; opening session with no slots")
		return nil
	}
	return slots.GroupByDate(flat)
}

func (w *Workflow) record(ctx context.Context, entry AuditEntry) {
	if w.auditor == nil {
		return
	}
	if err := w.auditor.Record(ctx, entry); err != nil {
		w.logger.Warn().Err(err).Str("kind", entry.Kind).Msg("audit record failed")
	}
}

func (w *Workflow) publish(eventType string, payload any) {
	if w.bus == nil {
		return
	}
	w.bus.Publish(events.Event{Type: eventType, Payload: payload})
}
