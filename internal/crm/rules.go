package crm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// ListRecurringRules returns all recurring availability templates.
func (c *Client) ListRecurringRules(ctx context.Context) ([]RecurringRule, error) {
	var rules []RecurringRule
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/recurring_timeslot", nil, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

// GetRecurringRule fetches one rule by id.
func (c *Client) GetRecurringRule(ctx context.Context, id string) (*RecurringRule, error) {
	var rule RecurringRule
	if err := c.doJSON(ctx, http.MethodGet, c.baseURL+"/recurring_timeslot/"+url.PathEscape(id), nil, &rule); err != nil {
		return nil, err
	}
	return &rule, nil
}

// CreateRecurringRule inserts a rule and returns the created record.
func (c *Client) CreateRecurringRule(ctx context.Context, rule RecurringRule) (*RecurringRule, error) {
	if err := validateRuleDays(rule.Days); err != nil {
		return nil, err
	}
	var created RecurringRule
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/recurring_timeslot", rule, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateRecurringRule patches fields on a rule.
func (c *Client) UpdateRecurringRule(ctx context.Context, id string, patch map[string]any) error {
	if days, ok := patch["days"].([]int); ok {
		if err := validateRuleDays(days); err != nil {
			return err
		}
	}
	return c.doJSON(ctx, http.MethodPatch, c.baseURL+"/recurring_timeslot/"+url.PathEscape(id), patch, nil)
}

// DeleteRecurringRule removes a rule.
func (c *Client) DeleteRecurringRule(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, c.baseURL+"/recurring_timeslot/"+url.PathEscape(id), nil, nil)
}

// validateRuleDays rejects duplicate or out-of-range weekday indices. The
// upstream API stores whatever it is sent, so the check lives client-side.
func validateRuleDays(days []int) error {
	seen := make(map[int]bool, len(days))
	for _, d := range days {
		if d < 0 || d > 6 {
			return fmt.Errorf("crm: weekday index %d out of range 0..6", d)
		}
		if seen[d] {
			return fmt.Errorf("crm: duplicate weekday index %d", d)
		}
		seen[d] = true
	}
	return nil
}
