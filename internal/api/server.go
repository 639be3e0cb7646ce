// Package api exposes the scheduling workflow over HTTP for the office
// dashboard and for sibling services.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ridgeline-crm/ridgeline/internal/audit"
	"github.com/ridgeline-crm/ridgeline/internal/booking"
	"github.com/ridgeline-crm/ridgeline/internal/config"
	"github.com/ridgeline-crm/ridgeline/internal/crm"
	"github.com/ridgeline-crm/ridgeline/internal/report"
	"github.com/ridgeline-crm/ridgeline/internal/rules"
)

// RuleStore is the slice of the CRM API the rules endpoints use.
type RuleStore interface {
	ListRecurringRules(ctx context.Context) ([]crm.RecurringRule, error)
	GetRecurringRule(ctx context.Context, id string) (*crm.RecurringRule, error)
	CreateRecurringRule(ctx context.Context, rule crm.RecurringRule) (*crm.RecurringRule, error)
	UpdateRecurringRule(ctx context.Context, id string, patch map[string]any) error
	DeleteRecurringRule(ctx context.Context, id string) error
}

// ReferenceStore is the slice of the CRM API the options endpoint uses.
type ReferenceStore interface {
	ListInspectionTypes(ctx context.Context) ([]crm.InspectionType, error)
	ListLocations(ctx context.Context) ([]crm.Location, error)
}

// AuditReader is the slice of the audit log the API reads from.
type AuditReader interface {
	Recent(ctx context.Context, limit int) ([]audit.Event, error)
	UnlinkedBookings(ctx context.Context) ([]audit.Event, error)
	Ping(ctx context.Context) error
}

// HTTPServer serves the workflow API.
type HTTPServer struct {
	server    *http.Server
	workflow  *booking.Workflow
	ruleStore RuleStore
	refStore  ReferenceStore   // optional
	editor    *rules.Editor    // optional
	auditLog  AuditReader      // optional
	reporter  *report.Reporter // optional
	apiKey    string
	log       zerolog.Logger

	// locations is the locations.yaml override; while locSet is false the
	// CRM location list is served as-is.
	locMu     sync.RWMutex
	locations []config.LocationConfig
	locSet    bool
}

// New builds the server. refStore, editor, auditLog and reporter may be nil;
// their endpoints then return 404.
func New(addr string, workflow *booking.Workflow, ruleStore RuleStore, refStore ReferenceStore, editor *rules.Editor, auditLog AuditReader, reporter *report.Reporter, apiKey string, log zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		workflow:  workflow,
		ruleStore: ruleStore,
		refStore:  refStore,
		editor:    editor,
		auditLog:  auditLog,
		reporter:  reporter,
		apiKey:    apiKey,
		log:       log,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/readyz", s.handleReadyz)
	mux.HandleFunc("/api/sessions", s.auth(s.handleOpenSession))
	mux.HandleFunc("/api/sessions/", s.auth(s.handleSession))
	mux.HandleFunc("/api/options", s.auth(s.handleOptions))
	mux.HandleFunc("/api/rules", s.auth(s.handleRules))
	mux.HandleFunc("/api/rules/", s.auth(s.handleRule))
	mux.HandleFunc("/api/editor", s.auth(s.handleEditor))
	mux.HandleFunc("/api/editor/", s.auth(s.handleEditor))
	mux.HandleFunc("/api/audit/recent", s.auth(s.handleAuditRecent))
	mux.HandleFunc("/api/audit/unlinked", s.auth(s.handleAuditUnlinked))
	mux.HandleFunc("/api/export", s.auth(s.handleExport))

	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the routed handler, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until the listener fails or Shutdown is called.
func (s *HTTPServer) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("http api listening")
	err := s.server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("X-Api-Key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next(w, r)
	}
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.auditLog != nil {
		if err := s.auditLog.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "audit store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
