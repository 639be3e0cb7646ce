package notify

import (
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"github.com/ridgeline-crm/ridgeline/internal/crm"
	"github.com/ridgeline-crm/ridgeline/internal/events"
)

type recordingSender struct {
	sent []tgbotapi.MessageConfig
}

func (r *recordingSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		r.sent = append(r.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func TestNotifierSendsOnBusEvents(t *testing.T) {
	sender := &recordingSender{}
	n := NewWithSender(sender, 42, zerolog.Nop())

	bus := events.NewBus()
	n.Attach(bus)

	bus.Publish(events.Event{Type: events.TypeBooked, Payload: &crm.Booking{
		ID:               "b1",
		DateOfInspection: "2026-09-03",
		StartTime:        "13:00",
		EndTime:          "14:30",
	}})
	bus.Publish(events.Event{Type: events.TypeLeadLinkFailed, Payload: &crm.Booking{ID: "b1"}})

	if len(sender.sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(sender.sent))
	}
	if sender.sent[0].ChatID != 42 {
		t.Errorf("chat id = %d, want 42", sender.sent[0].ChatID)
	}
	if !strings.Contains(sender.sent[0].Text, "Booking #b1") {
		t.Errorf("booked message missing booking id: %q", sender.sent[0].Text)
	}
	if !strings.Contains(sender.sent[1].Text, "could not be linked") {
		t.Errorf("link-failed message wrong: %q", sender.sent[1].Text)
	}
}

func TestNotifierIgnoresWrongPayloadType(t *testing.T) {
	sender := &recordingSender{}
	n := NewWithSender(sender, 42, zerolog.Nop())

	bus := events.NewBus()
	n.Attach(bus)
	bus.Publish(events.Event{Type: events.TypeBooked, Payload: "not a booking"})

	if len(sender.sent) != 0 {
		t.Fatalf("sent %d messages, want 0", len(sender.sent))
	}
}

func TestFormatRescheduled(t *testing.T) {
	withBooking := FormatRescheduled(&crm.Inspection{
		ID: "i1",
		Booking: &crm.Booking{
			ID:               "b2",
			DateOfInspection: "2026-09-10",
			StartTime:        "09:00",
			EndTime:          "10:00",
		},
	})
	if !strings.Contains(withBooking, "2026-09-10") || !strings.Contains(withBooking, "Booking #b2") {
		t.Errorf("unexpected message: %q", withBooking)
	}

	withoutBooking := FormatRescheduled(&crm.Inspection{ID: "i1"})
	if !strings.Contains(withoutBooking, "Inspection #i1") {
		t.Errorf("unexpected message: %q", withoutBooking)
	}
}
