// Package rules drives the recurring availability template editor: weekday
// toggles, start/end times and recurrence, persisted to the CRM with
// debounced auto-save.
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ridgeline-crm/ridgeline/internal/crm"
	"github.com/ridgeline-crm/ridgeline/internal/events"
	"github.com/ridgeline-crm/ridgeline/internal/metrics"
)

// DefaultDebounce is how long after the last field edit a save fires.
const DefaultDebounce = 800 * time.Millisecond

// saveTimeout bounds the timer-fired PATCH, which has no caller context.
const saveTimeout = 10 * time.Second

// RuleClient is the slice of the CRM API the editor uses.
type RuleClient interface {
	ListRecurringRules(ctx context.Context) ([]crm.RecurringRule, error)
	CreateRecurringRule(ctx context.Context, rule crm.RecurringRule) (*crm.RecurringRule, error)
	UpdateRecurringRule(ctx context.Context, id string, patch map[string]any) error
	DeleteRecurringRule(ctx context.Context, id string) error
}

// phase gates auto-save: edits only schedule saves once the selected rule has
// finished populating, so loading a rule can never trigger its own re-save.
type phase int

const (
	phaseLoading phase = iota
	phaseReady
)

// Editor holds the rule list, the selected rule's working copy and the
// pending (not yet saved) field changes.
type Editor struct {
	client   RuleClient
	bus      *events.Bus // optional
	logger   zerolog.Logger
	debounce time.Duration

	mu       sync.Mutex
	rules    []crm.RecurringRule
	selected string
	draft    crm.RecurringRule
	dirty    map[string]any
	phase    phase
	timer    *time.Timer
	closed   bool
}

// NewEditor creates an editor. bus may be nil.
func NewEditor(client RuleClient, bus *events.Bus, logger zerolog.Logger, debounce time.Duration) *Editor {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Editor{
		client:   client,
		bus:      bus,
		logger:   logger,
		debounce: debounce,
		dirty:    make(map[string]any),
		phase:    phaseLoading,
	}
}

// Load fetches the rule list and selects the first rule, if any.
func (e *Editor) Load(ctx context.Context) error {
	rules, err := e.client.ListRecurringRules(ctx)
	if err != nil {
		return fmt.Errorf("rules: load: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = rules
	if len(rules) > 0 {
		e.selectLocked(rules[0].ID)
	} else {
		e.selected = ""
		e.phase = phaseReady
	}
	return nil
}

// Rules returns a copy of the loaded rule list.
func (e *Editor) Rules() []crm.RecurringRule {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]crm.RecurringRule(nil), e.rules...)
}

// Selected returns the working copy of the selected rule and whether one is
// selected at all.
func (e *Editor) Selected() (crm.RecurringRule, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.draft, e.selected != ""
}

// Select switches the editor to another rule. Any save pending for the
// previous rule is flushed first so its edits are not dropped, and the new
// rule populates without scheduling a save of its own.
func (e *Editor) Select(id string) error {
	e.mu.Lock()
	pending := e.takePendingLocked()
	e.mu.Unlock()
	e.submit(pending)

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, rule := range e.rules {
		if rule.ID == id {
			e.selectLocked(id)
			return nil
		}
	}
	return fmt.Errorf("rules: unknown rule %q", id)
}

// selectLocked populates the draft under the loading phase.
func (e *Editor) selectLocked(id string) {
	e.phase = phaseLoading
	for _, rule := range e.rules {
		if rule.ID == id {
			e.selected = id
			e.draft = rule
			e.draft.Days = append([]int(nil), rule.Days...)
			break
		}
	}
	e.dirty = make(map[string]any)
	e.phase = phaseReady
}

// ToggleDay adds or removes a weekday from the selected rule.
func (e *Editor) ToggleDay(day int) error {
	if day < 0 || day > 6 {
		return fmt.Errorf("rules: weekday index %d out of range 0..6", day)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	found := -1
	for i, d := range e.draft.Days {
		if d == day {
			found = i
			break
		}
	}
	if found >= 0 {
		e.draft.Days = append(e.draft.Days[:found], e.draft.Days[found+1:]...)
	} else {
		e.draft.Days = append(e.draft.Days, day)
		sort.Ints(e.draft.Days)
	}
	e.stageLocked("days", append([]int(nil), e.draft.Days...))
	return nil
}

// SetStartTime sets the rule's start time ("HH:MM"). No ordering against the
// end time is enforced; the upstream API owns that rule.
func (e *Editor) SetStartTime(value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.draft.StartTime = value
	e.stageLocked("start_time", value)
}

// SetEndTime sets the rule's end time ("HH:MM").
func (e *Editor) SetEndTime(value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.draft.EndTime = value
	e.stageLocked("end_time", value)
}

// SetRepeat sets the recurrence cadence.
func (e *Editor) SetRepeat(repeat crm.Repeat) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.draft.Repeat = repeat
	e.stageLocked("repeat", string(repeat))
}

// SetActive toggles the rule's status.
func (e *Editor) SetActive(active bool) {
	status := crm.RuleInactive
	if active {
		status = crm.RuleActive
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.draft.Status = status
	e.stageLocked("status", status)
}

// stageLocked merges a field change into the pending patch and (re)arms the
// debounce timer. Edits landing while a rule is still populating never
// schedule a save.
func (e *Editor) stageLocked(field string, value any) {
	if e.phase != phaseReady || e.selected == "" || e.closed {
		return
	}
	e.dirty[field] = value

	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.debounce, e.flushTimer)
}

// flushTimer fires when the debounce window closes with no further edits.
func (e *Editor) flushTimer() {
	e.mu.Lock()
	pending := e.takePendingLocked()
	e.mu.Unlock()
	e.submit(pending)
}

type pendingSave struct {
	id    string
	patch map[string]any
}

// takePendingLocked detaches the accumulated patch, cancelling the timer.
// Overlapping edits within one window collapse into this single body.
func (e *Editor) takePendingLocked() *pendingSave {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	if e.closed || e.selected == "" || len(e.dirty) == 0 {
		return nil
	}
	save := &pendingSave{id: e.selected, patch: e.dirty}
	e.dirty = make(map[string]any)
	return save
}

// submit performs the PATCH for a detached save, if any.
func (e *Editor) submit(save *pendingSave) {
	if save == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	if err := e.client.UpdateRecurringRule(ctx, save.id, save.patch); err != nil {
		e.logger.Error().Err(err).Str("rule_id", save.id).Msg("rule auto-save failed")
		return
	}
	metrics.IncRuleSave("update")
	e.publish(events.TypeRuleSaved, save.id)

	e.mu.Lock()
	for i := range e.rules {
		if e.rules[i].ID == save.id {
			applyPatch(&e.rules[i], save.patch)
		}
	}
	e.mu.Unlock()
}

// Flush saves any pending edits immediately. Used when the caller is about
// to navigate away but wants the edits kept.
func (e *Editor) Flush() {
	e.mu.Lock()
	pending := e.takePendingLocked()
	e.mu.Unlock()
	e.submit(pending)
}

// Close tears the editor down, discarding any pending save. A save must
// never fire after the view it belonged to is gone.
func (e *Editor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.dirty = make(map[string]any)
}

// Create inserts a rule with fixed defaults, re-fetches the list and selects
// the created entry. When the created id cannot be matched in the refetched
// list the last entry is selected instead; this leans on the backend
// returning rules in insertion order, which is an assumption, not a contract.
func (e *Editor) Create(ctx context.Context) (*crm.RecurringRule, error) {
	created, err := e.client.CreateRecurringRule(ctx, crm.RecurringRule{
		Days:      []int{1, 2, 3, 4, 5},
		StartTime: "09:00",
		EndTime:   "17:00",
		Repeat:    crm.RepeatWeekly,
		Status:    crm.RuleActive,
	})
	if err != nil {
		return nil, fmt.Errorf("rules: create: %w", err)
	}
	metrics.IncRuleSave("create")

	rules, err := e.client.ListRecurringRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("rules: refetch after create: %w", err)
	}

	e.mu.Lock()
	e.rules = rules
	matched := false
	for _, rule := range rules {
		if created.ID != "" && rule.ID == created.ID {
			e.selectLocked(rule.ID)
			matched = true
			break
		}
	}
	if !matched && len(rules) > 0 {
		e.logger.Warn().Str("created_id", created.ID).Msg("created rule not found in refetched list; selecting last")
		e.selectLocked(rules[len(rules)-1].ID)
	}
	e.mu.Unlock()

	e.publish(events.TypeRuleSaved, created.ID)
	return created, nil
}

// Delete removes a rule immediately. Deliberately no confirmation step: rule
// templates are cheap to recreate, unlike booked inspections.
func (e *Editor) Delete(ctx context.Context, id string) error {
	if err := e.client.DeleteRecurringRule(ctx, id); err != nil {
		return fmt.Errorf("rules: delete %s: %w", id, err)
	}
	metrics.IncRuleSave("delete")

	rules, err := e.client.ListRecurringRules(ctx)
	if err != nil {
		return fmt.Errorf("rules: refetch after delete: %w", err)
	}

	e.mu.Lock()
	e.rules = rules
	if e.selected == id {
		if len(rules) > 0 {
			e.selectLocked(rules[0].ID)
		} else {
			e.selected = ""
			e.draft = crm.RecurringRule{}
			e.dirty = make(map[string]any)
		}
	}
	e.mu.Unlock()

	e.publish(events.TypeRuleDeleted, id)
	return nil
}

func (e *Editor) publish(eventType string, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.Event{Type: eventType, Payload: payload})
}

func applyPatch(rule *crm.RecurringRule, patch map[string]any) {
	for field, value := range patch {
		switch field {
		case "days":
			if days, ok := value.([]int); ok {
				rule.Days = days
			}
		case "start_time":
			if s, ok := value.(string); ok {
				rule.StartTime = s
			}
		case "end_time":
			if s, ok := value.(string); ok {
				rule.EndTime = s
			}
		case "repeat":
			if s, ok := value.(string); ok {
				rule.Repeat = crm.Repeat(s)
			}
		case "status":
			if s, ok := value.(string); ok {
				rule.Status = s
			}
		}
	}
	rule.UpdatedAt = time.Now()
}
