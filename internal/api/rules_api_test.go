package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/ridgeline-crm/ridgeline/internal/crm"
)

func TestCreateRuleDefaults(t *testing.T) {
	srv := setupTestServer(t)

	w := srv.do(t, http.MethodPost, "/api/rules", CreateRuleRequest{})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var rule crm.RecurringRule
	if err := json.Unmarshal(w.Body.Bytes(), &rule); err != nil {
		t.Fatal(err)
	}
	if len(rule.Days) != 5 || rule.Days[0] != 1 || rule.Days[4] != 5 {
		t.Errorf("days = %v, want workweek", rule.Days)
	}
	if rule.StartTime != "09:00" || rule.EndTime != "17:00" {
		t.Errorf("hours = %s-%s, want 09:00-17:00", rule.StartTime, rule.EndTime)
	}
	if rule.Repeat != crm.RepeatWeekly || rule.Status != crm.RuleActive {
		t.Errorf("repeat/status = %s/%s, want weekly/Active", rule.Repeat, rule.Status)
	}
}

func TestCreateRuleValidation(t *testing.T) {
	srv := setupTestServer(t)

	tests := []struct {
		name string
		body any
	}{
		{"invalid JSON", "not json"},
		{"day out of range", CreateRuleRequest{Days: []int{7}}},
		{"duplicate day", CreateRuleRequest{Days: []int{1, 1}}},
		{"bad repeat", CreateRuleRequest{Repeat: "daily"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := srv.do(t, http.MethodPost, "/api/rules", tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
			}
		})
	}
}

func TestUpdateRule(t *testing.T) {
	srv := setupTestServer(t)

	w := srv.do(t, http.MethodPost, "/api/rules", CreateRuleRequest{})
	var created crm.RecurringRule
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	start := "08:00"
	w = srv.do(t, http.MethodPatch, "/api/rules/"+created.ID, UpdateRuleRequest{StartTime: &start})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var updated crm.RecurringRule
	if err := json.Unmarshal(w.Body.Bytes(), &updated); err != nil {
		t.Fatal(err)
	}
	if updated.StartTime != "08:00" {
		t.Errorf("start_time = %q, want 08:00", updated.StartTime)
	}

	w = srv.do(t, http.MethodPatch, "/api/rules/"+created.ID, UpdateRuleRequest{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("empty patch status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestDeleteRule(t *testing.T) {
	srv := setupTestServer(t)

	w := srv.do(t, http.MethodPost, "/api/rules", CreateRuleRequest{})
	var created crm.RecurringRule
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatal(err)
	}

	w = srv.do(t, http.MethodDelete, "/api/rules/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	w = srv.do(t, http.MethodGet, "/api/rules/"+created.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get deleted rule status = %d, want %d", w.Code, http.StatusNotFound)
	}
}

func TestRuleNotFound(t *testing.T) {
	srv := setupTestServer(t)

	w := srv.do(t, http.MethodDelete, "/api/rules/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
	}
}
