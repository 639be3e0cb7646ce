package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/ridgeline-crm/ridgeline/internal/crm"
	"github.com/ridgeline-crm/ridgeline/internal/metrics"
	"github.com/ridgeline-crm/ridgeline/internal/rules"
)

// EditorView is the editor state returned by every editor endpoint.
type EditorView struct {
	Rules       []crm.RecurringRule `json:"rules"`
	Selected    *crm.RecurringRule  `json:"selected,omitempty"`
	TimeOptions []rules.TimeOption  `json:"time_options"`
}

// EditRuleRequest stages field edits on the selected rule. Edits are saved
// automatically once the debounce window closes.
type EditRuleRequest struct {
	ToggleDay *int    `json:"toggle_day,omitempty"`
	StartTime *string `json:"start_time,omitempty"`
	EndTime   *string `json:"end_time,omitempty"`
	Repeat    *string `json:"repeat,omitempty"`
	Active    *bool   `json:"active,omitempty"`
}

// SelectRuleRequest switches the editor selection.
type SelectRuleRequest struct {
	ID string `json:"id"`
}

// handleEditor routes /api/editor and its sub-resources.
func (s *HTTPServer) handleEditor(w http.ResponseWriter, r *http.Request) {
	if s.editor == nil {
		writeError(w, http.StatusNotFound, "rule editor not configured")
		return
	}

	sub := strings.TrimPrefix(r.URL.Path, "/api/editor")
	sub = strings.TrimPrefix(sub, "/")

	switch sub {
	case "":
		switch r.Method {
		case http.MethodGet:
			metrics.IncHTTP("editor_state")
			s.writeEditorView(w)
		case http.MethodPatch:
			s.handleEditorEdit(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	case "select":
		s.handleEditorSelect(w, r)
	case "flush":
		metrics.IncHTTP("editor_flush")
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
			return
		}
		s.editor.Flush()
		s.writeEditorView(w)
	case "rules":
		s.handleEditorCreate(w, r)
	default:
		if id := strings.TrimPrefix(sub, "rules/"); id != sub && id != "" {
			s.handleEditorDelete(w, r, id)
			return
		}
		writeError(w, http.StatusNotFound, "unknown editor resource")
	}
}

func (s *HTTPServer) handleEditorSelect(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("editor_select")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req SelectRuleRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil || req.ID == "" {
		writeError(w, http.StatusBadRequest, "rule id is required")
		return
	}

	if err := s.editor.Select(req.ID); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	s.writeEditorView(w)
}

func (s *HTTPServer) handleEditorEdit(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("editor_edit")

	var req EditRuleRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	if _, ok := s.editor.Selected(); !ok {
		writeError(w, http.StatusConflict, "no rule selected")
		return
	}

	if req.ToggleDay != nil {
		if err := s.editor.ToggleDay(*req.ToggleDay); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.StartTime != nil {
		s.editor.SetStartTime(*req.StartTime)
	}
	if req.EndTime != nil {
		s.editor.SetEndTime(*req.EndTime)
	}
	if req.Repeat != nil {
		repeat, err := parseRepeat(*req.Repeat)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.editor.SetRepeat(repeat)
	}
	if req.Active != nil {
		s.editor.SetActive(*req.Active)
	}

	s.writeEditorView(w)
}

func (s *HTTPServer) handleEditorCreate(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("editor_create")
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	if _, err := s.editor.Create(r.Context()); err != nil {
		s.ruleError(w, err)
		return
	}
	s.writeEditorView(w)
}

func (s *HTTPServer) handleEditorDelete(w http.ResponseWriter, r *http.Request, id string) {
	metrics.IncHTTP("editor_delete")
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use DELETE")
		return
	}

	if err := s.editor.Delete(r.Context(), id); err != nil {
		s.ruleError(w, err)
		return
	}
	s.writeEditorView(w)
}

func (s *HTTPServer) writeEditorView(w http.ResponseWriter) {
	view := EditorView{
		Rules:       s.editor.Rules(),
		TimeOptions: rules.TimeOptions(),
	}
	if draft, ok := s.editor.Selected(); ok {
		view.Selected = &draft
	}
	writeJSON(w, http.StatusOK, view)
}
