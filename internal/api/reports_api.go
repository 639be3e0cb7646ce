package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ridgeline-crm/ridgeline/internal/metrics"
)

// handleAuditRecent returns the latest workflow events.
// GET /api/audit/recent?limit=N
func (s *HTTPServer) handleAuditRecent(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("audit_recent")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.auditLog == nil {
		writeError(w, http.StatusNotFound, "audit log not configured")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	events, err := s.auditLog.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleAuditUnlinked returns bookings that were created but never linked
// back to their lead.
// GET /api/audit/unlinked
func (s *HTTPServer) handleAuditUnlinked(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("audit_unlinked")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.auditLog == nil {
		writeError(w, http.StatusNotFound, "audit log not configured")
		return
	}

	events, err := s.auditLog.UnlinkedBookings(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleExport streams the Excel workbook export.
// GET /api/export
func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("export")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.reporter == nil {
		writeError(w, http.StatusNotFound, "reporting not configured")
		return
	}

	filename := fmt.Sprintf("ridgeline-%s.xlsx", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := s.reporter.Export(r.Context(), w); err != nil {
		// Headers are out; all we can do is log.
		s.log.Error().Err(err).Msg("export failed mid-stream")
	}
}
