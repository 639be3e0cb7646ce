package api

import (
	"net/http"

	"github.com/ridgeline-crm/ridgeline/internal/config"
	"github.com/ridgeline-crm/ridgeline/internal/metrics"
)

// InspectionTypeOption is one entry for the inspection-type dropdown.
type InspectionTypeOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// LocationOption is one entry for the location dropdown. Address is only
// populated from the locations file; the CRM list carries no addresses.
type LocationOption struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Address string `json:"address,omitempty"`
}

// OptionsResponse carries the dropdown lists the booking dialog fetches on
// open.
type OptionsResponse struct {
	InspectionTypes []InspectionTypeOption `json:"inspection_types"`
	Locations       []LocationOption       `json:"locations"`
}

// handleOptions serves inspection types and locations.
// GET /api/options
func (s *HTTPServer) handleOptions(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("options")
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}
	if s.refStore == nil {
		writeError(w, http.StatusNotFound, "reference data not configured")
		return
	}

	types, err := s.refStore.ListInspectionTypes(r.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("inspection type list failed")
		writeError(w, http.StatusBadGateway, "could not load inspection types from CRM")
		return
	}
	resp := OptionsResponse{
		InspectionTypes: make([]InspectionTypeOption, 0, len(types)),
		Locations:       []LocationOption{},
	}
	for _, t := range types {
		resp.InspectionTypes = append(resp.InspectionTypes, InspectionTypeOption{ID: t.ID, Name: t.Name})
	}

	if override, ok := s.activeLocations(); ok {
		for _, loc := range override {
			resp.Locations = append(resp.Locations, LocationOption{ID: loc.ID, Name: loc.Name, Address: loc.Address})
		}
	} else {
		locations, err := s.refStore.ListLocations(r.Context())
		if err != nil {
			s.log.Error().Err(err).Msg("location list failed")
			writeError(w, http.StatusBadGateway, "could not load locations from CRM")
			return
		}
		for _, loc := range locations {
			resp.Locations = append(resp.Locations, LocationOption{ID: loc.ID, Name: loc.Name})
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// SetLocations installs the locations file override. Once set it replaces the
// CRM location list and gates which locations a session may open against; an
// empty slice takes every service area offline.
func (s *HTTPServer) SetLocations(active []config.LocationConfig) {
	s.locMu.Lock()
	defer s.locMu.Unlock()
	s.locations = active
	s.locSet = true
}

func (s *HTTPServer) activeLocations() ([]config.LocationConfig, bool) {
	s.locMu.RLock()
	defer s.locMu.RUnlock()
	return s.locations, s.locSet
}

// locationBookable reports whether a session may be opened for the location.
// Without an override every id is accepted and the CRM validates it.
func (s *HTTPServer) locationBookable(id string) bool {
	s.locMu.RLock()
	defer s.locMu.RUnlock()
	if !s.locSet {
		return true
	}
	for _, loc := range s.locations {
		if loc.ID == id {
			return true
		}
	}
	return false
}
