package web

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/casewise/migrator/internal/store"
)

// handleSaveTemplate saves the job's current mappings under a name.
func (s *Server) handleSaveTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(r)
	if !ok {
		respondBadRequest(w, "invalid job ID")
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		respondBadRequest(w, "template name is required")
		return
	}

	t, err := s.service.SaveTemplate(r.Context(), tenantID(r.Context()), id, req.Name)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, t)
}

// handleApplyTemplate replaces the job's mappings using a saved template.
func (s *Server) handleApplyTemplate(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(r)
	if !ok {
		respondBadRequest(w, "invalid job ID")
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		respondBadRequest(w, "template name is required")
		return
	}

	j, err := s.service.ApplyTemplate(r.Context(), tenantID(r.Context()), id, req.Name)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, j)
}

// handleMatchTemplates ranks saved templates against the job's headers.
func (s *Server) handleMatchTemplates(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(r)
	if !ok {
		respondBadRequest(w, "invalid job ID")
		return
	}
	matches, err := s.service.MatchTemplates(r.Context(), tenantID(r.Context()), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if matches == nil {
		matches = []store.TemplateMatch{}
	}
	writeJSON(w, matches)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.service.ListTemplates(r.Context(), tenantID(r.Context()))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if templates == nil {
		templates = []store.Template{}
	}
	writeJSON(w, templates)
}

func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if name == "" {
		respondBadRequest(w, "missing template name")
		return
	}
	if err := s.service.DeleteTemplate(r.Context(), tenantID(r.Context()), name); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "deleted"})
}
