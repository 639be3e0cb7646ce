package crm

import "time"

// TimeSlot is a bookable inspection window as served by the availability API,
// normalized to one canonical shape.
type TimeSlot struct {
	ID    string    `json:"slot_id"`
	Date  string    `json:"date"` // YYYY-MM-DD
	Start time.Time `json:"start_time"`
	End   time.Time `json:"end_time"`
}

// Presence is the answer to "will someone be present at the inspection".
type Presence string

const (
	PresenceYes   Presence = "yes"
	PresenceNo    Presence = "no"
	PresenceMaybe Presence = "maybe"
)

// Valid reports whether p is one of the accepted presence values.
func (p Presence) Valid() bool {
	switch p {
	case PresenceYes, PresenceNo, PresenceMaybe:
		return true
	}
	return false
}

// Booking is a server-acknowledged inspection booking.
type Booking struct {
	ID               string   `json:"id"`
	InspectionID     string   `json:"inspection_id,omitempty"`
	DateOfInspection string   `json:"date_of_inspection"`
	StartTime        string   `json:"start_time"`
	EndTime          string   `json:"end_time"`
	Status           string   `json:"booking_status"`
	Presence         Presence `json:"will_someone_be_present"`
}

// Booking status values returned by the CRM.
const (
	BookingConfirmed = "confirmed"
	BookingCancelled = "cancelled"
)

// CreateBookingRequest is the body for the booking endpoint.
type CreateBookingRequest struct {
	LeadID           string   `json:"lead_id,omitempty"`
	PropertyID       string   `json:"property_id,omitempty"`
	InspectionTypeID string   `json:"inspection_type_id"`
	LocationID       string   `json:"location_id,omitempty"`
	DateOfInspection string   `json:"date_of_inspection"`
	TimeSlotID       string   `json:"time_slot_id"`
	Presence         Presence `json:"will_someone_be_present"`
}

// CancelInspectionRequest is the body for the cancellation endpoint.
type CancelInspectionRequest struct {
	InspectionID string `json:"inspection_id"`
	BookingID    string `json:"booking_id"`
	Reason       string `json:"reason"`
}

// RescheduleRequest is the body for the reschedule endpoint.
type RescheduleRequest struct {
	BookingID     string   `json:"inspection_booking_id"`
	InspectionID  string   `json:"inspection_id"`
	NewDate       string   `json:"new_date_of_inspection"`
	NewTimeSlotID string   `json:"new_time_slot_id"`
	Presence      Presence `json:"will_someone_be_present"`
	Reason        string   `json:"reason"`
}

// Lead is a sales-intake record. Only the fields this service touches are
// mapped; the CRM carries many more.
type Lead struct {
	ID           string `json:"id"`
	Status       string `json:"status,omitempty"`
	ContactID    string `json:"contact_id,omitempty"`
	PropertyID   string `json:"property_id,omitempty"`
	InspectionID string `json:"inspection_id,omitempty"`
	BookingID    string `json:"inspection_booking_id,omitempty"`
}

// Inspection is the CRM inspection record with its joined booking, if any.
type Inspection struct {
	ID               string   `json:"id"`
	LeadID           string   `json:"lead_id,omitempty"`
	PropertyID       string   `json:"property_id,omitempty"`
	InspectionTypeID string   `json:"inspection_type_id,omitempty"`
	InspectorID      string   `json:"user_id,omitempty"`
	Booking          *Booking `json:"inspection_booking,omitempty"`
}

// Contact is a CRM contact record.
type Contact struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Property is an address record owned by a contact.
type Property struct {
	ID        string `json:"id"`
	ContactID string `json:"contact_id,omitempty"`
	Address   string `json:"address,omitempty"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	Zip       string `json:"zip,omitempty"`
}

// InspectionType is a bookable inspection category (e.g. "Roof Inspection").
type InspectionType struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Location is an office/service-area record used to filter availability.
type Location struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Repeat cadence for a recurring rule.
type Repeat string

const (
	RepeatWeekly  Repeat = "weekly"
	RepeatMonthly Repeat = "monthly"
)

// RecurringRule is an availability template: which weekdays and hours are
// generally bookable, as opposed to one concrete slot.
type RecurringRule struct {
	ID        string    `json:"id"`
	Days      []int     `json:"days"` // weekday indices, 0=Sunday .. 6=Saturday
	StartTime string    `json:"start_time"`
	EndTime   string    `json:"end_time"`
	Repeat    Repeat    `json:"repeat"`
	Status    string    `json:"status"` // "Active" | "Inactive"
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// Rule status values.
const (
	RuleActive   = "Active"
	RuleInactive = "Inactive"
)

// SlotFilter narrows an availability query. Zero value fetches everything
// the CRM will return for the caller's account.
type SlotFilter struct {
	LocationID string
	Date       string // single day, YYYY-MM-DD
	StartDate  string
	EndDate    string
}
