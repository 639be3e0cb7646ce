package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ridgeline-crm/ridgeline/internal/crm"
	"github.com/ridgeline-crm/ridgeline/internal/metrics"
)

// CreateRuleRequest is the request body for POST /api/rules. Omitted fields
// fall back to the workweek defaults.
type CreateRuleRequest struct {
	Days      []int  `json:"days,omitempty"`
	StartTime string `json:"start_time,omitempty"` // HH:MM
	EndTime   string `json:"end_time,omitempty"`   // HH:MM
	Repeat    string `json:"repeat,omitempty"`
	Active    *bool  `json:"active,omitempty"`
}

// UpdateRuleRequest is the request body for PATCH /api/rules/{id}. Only the
// present fields are sent to the CRM.
type UpdateRuleRequest struct {
	Days      *[]int  `json:"days,omitempty"`
	StartTime *string `json:"start_time,omitempty"`
	EndTime   *string `json:"end_time,omitempty"`
	Repeat    *string `json:"repeat,omitempty"`
	Active    *bool   `json:"active,omitempty"`
}

// handleRules lists or creates recurring availability rules.
// GET|POST /api/rules
func (s *HTTPServer) handleRules(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		metrics.IncHTTP("list_rules")
		rules, err := s.ruleStore.ListRecurringRules(r.Context())
		if err != nil {
			s.ruleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
	case http.MethodPost:
		s.handleCreateRule(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("create_rule")

	var req CreateRuleRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	rule := crm.RecurringRule{
		Days:      []int{1, 2, 3, 4, 5},
		StartTime: "09:00",
		EndTime:   "17:00",
		Repeat:    crm.RepeatWeekly,
		Status:    crm.RuleActive,
	}
	if req.Days != nil {
		if err := validateDays(req.Days); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		rule.Days = req.Days
	}
	if req.StartTime != "" {
		rule.StartTime = req.StartTime
	}
	if req.EndTime != "" {
		rule.EndTime = req.EndTime
	}
	if req.Repeat != "" {
		repeat, err := parseRepeat(req.Repeat)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		rule.Repeat = repeat
	}
	if req.Active != nil && !*req.Active {
		rule.Status = crm.RuleInactive
	}

	created, err := s.ruleStore.CreateRecurringRule(r.Context(), rule)
	if err != nil {
		s.ruleError(w, err)
		return
	}

	metrics.IncRuleSave("create")
	s.log.Info().Str("rule_id", created.ID).Msg("recurring rule created")
	writeJSON(w, http.StatusCreated, created)
}

// handleRule routes /api/rules/{id}.
func (s *HTTPServer) handleRule(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/rules/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "rule id is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		metrics.IncHTTP("get_rule")
		rule, err := s.ruleStore.GetRecurringRule(r.Context(), id)
		if err != nil {
			s.ruleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, rule)
	case http.MethodPatch:
		s.handleUpdateRule(w, r, id)
	case http.MethodDelete:
		metrics.IncHTTP("delete_rule")
		if err := s.ruleStore.DeleteRecurringRule(r.Context(), id); err != nil {
			s.ruleError(w, err)
			return
		}
		metrics.IncRuleSave("delete")
		s.log.Info().Str("rule_id", id).Msg("recurring rule deleted")
		writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleUpdateRule(w http.ResponseWriter, r *http.Request, id string) {
	metrics.IncHTTP("update_rule")

	var req UpdateRuleRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	patch := make(map[string]any)
	if req.Days != nil {
		if err := validateDays(*req.Days); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		patch["days"] = *req.Days
	}
	if req.StartTime != nil {
		patch["start_time"] = *req.StartTime
	}
	if req.EndTime != nil {
		patch["end_time"] = *req.EndTime
	}
	if req.Repeat != nil {
		repeat, err := parseRepeat(*req.Repeat)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		patch["repeat"] = repeat
	}
	if req.Active != nil {
		status := crm.RuleActive
		if !*req.Active {
			status = crm.RuleInactive
		}
		patch["status"] = status
	}
	if len(patch) == 0 {
		writeError(w, http.StatusBadRequest, "no fields to update")
		return
	}

	if err := s.ruleStore.UpdateRecurringRule(r.Context(), id, patch); err != nil {
		s.ruleError(w, err)
		return
	}

	metrics.IncRuleSave("update")
	rule, err := s.ruleStore.GetRecurringRule(r.Context(), id)
	if err != nil {
		// The write landed; return the patch ack without the refreshed rule.
		s.log.Warn().Err(err).Str("rule_id", id).Msg("rule updated but re-fetch failed")
		writeJSON(w, http.StatusOK, map[string]bool{"updated": true})
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *HTTPServer) ruleError(w http.ResponseWriter, err error) {
	var apiErr *crm.APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusNotFound {
			writeError(w, http.StatusNotFound, "rule not found")
			return
		}
		writeError(w, http.StatusBadGateway, apiErr.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func validateDays(days []int) error {
	seen := make(map[int]bool, len(days))
	for _, d := range days {
		if d < 0 || d > 6 {
			return fmt.Errorf("weekday index %d out of range 0..6", d)
		}
		if seen[d] {
			return fmt.Errorf("duplicate weekday index %d", d)
		}
		seen[d] = true
	}
	return nil
}

func parseRepeat(value string) (crm.Repeat, error) {
	switch crm.Repeat(value) {
	case crm.RepeatWeekly:
		return crm.RepeatWeekly, nil
	case crm.RepeatMonthly:
		return crm.RepeatMonthly, nil
	}
	return "", fmt.Errorf("repeat must be weekly or monthly")
}
