package booking

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ridgeline-crm/ridgeline/internal/crm"
	"github.com/ridgeline-crm/ridgeline/internal/slots"
)

// Action selects what a replace-flow session will submit. The two are
// mutually exclusive.
type Action string

const (
	ActionBook       Action = "book"
	ActionCancel     Action = "cancel"
	ActionReschedule Action = "reschedule"
)

// Session is one open scheduling dialog: the availability shown to the user
// plus their pending selection. Server state is never touched until submit,
// so abandoning a session restores exactly the state that existed at open.
type Session struct {
	ID           string
	LeadID       string
	PropertyID   string
	InspectionID string
	LocationID   string

	state   State
	action  Action
	pending PendingSelection
	reason  string
	groups  []slots.DayGroup

	// existing is the confirmed booking at open time; nil for first bookings.
	existing *crm.Booking

	StartedAt time.Time
	UpdatedAt time.Time
	mu        sync.Mutex
}

func newSession() *Session {
	now := time.Now()
	return &Session{
		ID:        uuid.NewString(),
		state:     StateBrowsing,
		action:    ActionBook,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	s.UpdatedAt = time.Now()
}

// Pending returns a copy of the current selection.
func (s *Session) Pending() PendingSelection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// ExistingBooking returns the confirmed booking the session was opened
// against, nil for first bookings.
func (s *Session) ExistingBooking() *crm.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.existing
}

func (s *Session) setExisting(b *crm.Booking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.existing = b
	s.UpdatedAt = time.Now()
}

// Groups returns the availability loaded at open time.
func (s *Session) Groups() []slots.DayGroup {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groups
}

// SelectDate records a date choice. Choosing a different date than the one a
// time was picked against discards the time: a slot is only valid relative to
// its date.
func (s *Session) SelectDate(date string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending.Date != date {
		s.pending.Slot = nil
	}
	s.pending.Date = date
	s.refreshLocked()
}

// SelectSlot records a time choice and aligns the date with the slot's.
func (s *Session) SelectSlot(slot crm.TimeSlot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.Slot = &slot
	s.pending.Date = slot.Date
	s.refreshLocked()
}

// SetPresence records whether someone will be present at the inspection.
func (s *Session) SetPresence(p crm.Presence) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.Presence = p
	s.refreshLocked()
}

// SetInspectionType records the inspection type choice.
func (s *Session) SetInspectionType(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending.InspectionTypeID = id
	s.refreshLocked()
}

// SetAction switches a replace-flow session between cancel and reschedule.
func (s *Session) SetAction(action Action) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.action = action
	s.UpdatedAt = time.Now()
}

// Action returns the selected action.
func (s *Session) Action() Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.action
}

// SetReason records the free-text reason for a cancel or reschedule.
func (s *Session) SetReason(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reason = reason
	s.UpdatedAt = time.Now()
}

// Reason returns the trimmed reason text.
func (s *Session) Reason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return strings.TrimSpace(s.reason)
}

// refreshLocked re-derives the browsing-phase state after a selection edit.
// Submit-phase states are owned by the orchestrator, not by selections.
func (s *Session) refreshLocked() {
	switch s.state {
	case StateBrowsing, StateDateSelected, StateTimeSelected, StateReadyToSubmit:
		s.state = selectionState(s.pending)
	}
	s.UpdatedAt = time.Now()
}

// CanSubmit reports whether the submit control should be armed:
//   - book: date, time, inspection type and presence all set;
//   - cancel: a non-blank reason;
//   - reschedule: non-blank reason plus the full booking selection.
func (s *Session) CanSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.action {
	case ActionCancel:
		return strings.TrimSpace(s.reason) != ""
	case ActionReschedule:
		return strings.TrimSpace(s.reason) != "" && s.pending.Complete()
	default:
		return s.pending.Complete()
	}
}

// IsExpired checks whether the session has been idle past the timeout.
func (s *Session) IsExpired(timeout time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.UpdatedAt) > timeout
}

// SessionStore keeps open sessions in memory. Sessions are transient by
// design; nothing here survives a restart.
type SessionStore struct {
	sessions map[string]*Session
	mu       sync.RWMutex
	timeout  time.Duration
}

// NewSessionStore creates a store with the given idle timeout.
func NewSessionStore(timeout time.Duration) *SessionStore {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &SessionStore{
		sessions: make(map[string]*Session),
		timeout:  timeout,
	}
}

// Get returns a session by id, or nil when unknown or expired.
func (ss *SessionStore) Get(id string) *Session {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	session, ok := ss.sessions[id]
	if !ok || session.IsExpired(ss.timeout) {
		return nil
	}
	return session
}

// Put registers a session.
func (ss *SessionStore) Put(session *Session) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	ss.sessions[session.ID] = session
}

// Delete removes a session.
func (ss *SessionStore) Delete(id string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	delete(ss.sessions, id)
}

// Cleanup removes expired sessions and returns how many were dropped.
func (ss *SessionStore) Cleanup() int {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	removed := 0
	for id, session := range ss.sessions {
		if session.IsExpired(ss.timeout) {
			delete(ss.sessions, id)
			removed++
		}
	}
	return removed
}
