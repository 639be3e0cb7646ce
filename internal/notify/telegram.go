// Package notify pushes workflow outcomes to the ops Telegram chat. Delivery
// is best-effort: a failed notification never fails the workflow that
// produced it.
package notify

import (
	"context"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ridgeline-crm/ridgeline/internal/crm"
	"github.com/ridgeline-crm/ridgeline/internal/events"
)

// Sender sends one message. Satisfied by *tgbotapi.BotAPI.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Notifier formats and sends workflow notifications.
type Notifier struct {
	sender  Sender
	chatID  int64
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// New builds a Telegram notifier for the given ops chat.
func New(token string, chatID int64, logger zerolog.Logger) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("notify: create bot: %w", err)
	}
	return NewWithSender(bot, chatID, logger), nil
}

// NewWithSender builds a notifier over any Sender.
func NewWithSender(sender Sender, chatID int64, logger zerolog.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		chatID: chatID,
		// Telegram allows ~20 msg/min per group chat.
		limiter: rate.NewLimiter(rate.Limit(0.3), 5),
		logger:  logger,
	}
}

// Attach subscribes the notifier to workflow events on the bus.
func (n *Notifier) Attach(bus *events.Bus) {
	bus.Subscribe(events.TypeBooked, func(e events.Event) {
		if b, ok := e.Payload.(*crm.Booking); ok {
			n.send(FormatBooked(b))
		}
	})
	bus.Subscribe(events.TypeCancelled, func(e events.Event) {
		if b, ok := e.Payload.(*crm.Booking); ok {
			n.send(FormatCancelled(b))
		}
	})
	bus.Subscribe(events.TypeRescheduled, func(e events.Event) {
		if i, ok := e.Payload.(*crm.Inspection); ok {
			n.send(FormatRescheduled(i))
		}
	})
	bus.Subscribe(events.TypeLeadLinkFailed, func(e events.Event) {
		if b, ok := e.Payload.(*crm.Booking); ok {
			n.send(FormatLinkFailed(b))
		}
	})
}

func (n *Notifier) send(text string) {
	if n.sender == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := n.limiter.Wait(ctx); err != nil {
		n.logger.Warn().Msg("notification dropped: rate limit wait timed out")
		return
	}
	msg := tgbotapi.NewMessage(n.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.sender.Send(msg); err != nil {
		n.logger.Warn().Err(err).Msg("notification send failed")
	}
}

// FormatBooked renders the booked-inspection message.
func FormatBooked(b *crm.Booking) string {
	return fmt.Sprintf("✅ *Inspection booked*\n📅 %s, %s – %s\nBooking #%s",
		b.DateOfInspection, b.StartTime, b.EndTime, b.ID)
}

// FormatCancelled renders the cancellation message.
func FormatCancelled(b *crm.Booking) string {
	return fmt.Sprintf("❌ *Inspection cancelled*\n📅 %s\nBooking #%s",
		b.DateOfInspection, b.ID)
}

// FormatRescheduled renders the reschedule message.
func FormatRescheduled(i *crm.Inspection) string {
	if i.Booking == nil {
		return fmt.Sprintf("🔁 *Inspection rescheduled*\nInspection #%s", i.ID)
	}
	return fmt.Sprintf("🔁 *Inspection rescheduled*\n📅 %s, %s – %s\nBooking #%s",
		i.Booking.DateOfInspection, i.Booking.StartTime, i.Booking.EndTime, i.Booking.ID)
}

// FormatLinkFailed renders the booked-but-unlinked warning.
func FormatLinkFailed(b *crm.Booking) string {
	return fmt.Sprintf("⚠️ Booking #%s was created but could not be linked to its lead. Check the audit log.", b.ID)
}
