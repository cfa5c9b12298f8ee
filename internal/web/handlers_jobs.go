package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/casewise/migrator/internal/connector"
	"github.com/casewise/migrator/internal/job"
)

// jobID extracts and validates the jobID URL parameter.
func jobIDParam(r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	return id, err == nil
}

// handleListConnectors returns the registered source system connectors.
func (s *Server) handleListConnectors(w http.ResponseWriter, r *http.Request) {
	type connectorInfo struct {
		ID    string `json:"id"`
		Label string `json:"label"`
	}
	var out []connectorInfo
	for _, c := range connector.All() {
		out = append(out, connectorInfo{ID: c.ID, Label: c.Label})
	}
	writeJSON(w, out)
}

// handleCreateJob accepts a multipart upload, runs detection, and returns
// the new job with its connector candidates and suggested mappings.
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		respondBadRequest(w, "file too large or invalid form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondBadRequest(w, "no file provided")
		return
	}
	defer file.Close()

	hint := r.FormValue("sourceSystem")

	// The file streams straight to disk; memory stays constant regardless
	// of upload size.
	result, err := s.service.CreateJob(r.Context(), tenantID(r.Context()), header.Filename, file, hint)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	writeJSON(w, result)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.service.ListJobs(r.Context(), tenantID(r.Context()))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if jobs == nil {
		jobs = []*job.Job{}
	}
	writeJSON(w, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(r)
	if !ok {
		respondBadRequest(w, "invalid job ID")
		return
	}
	j, err := s.service.GetJob(r.Context(), tenantID(r.Context()), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, j)
}

func (s *Server) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(r)
	if !ok {
		respondBadRequest(w, "invalid job ID")
		return
	}
	events, err := s.service.Events(r.Context(), tenantID(r.Context()), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, events)
}

// handleJobProgress streams progress via Server-Sent Events while a phase
// runs in the background; otherwise it returns one JSON snapshot.
func (s *Server) handleJobProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(r)
	if !ok {
		respondBadRequest(w, "invalid job ID")
		return
	}

	progressCh, err := s.service.Subscribe(r.Context(), tenantID(r.Context()), id)
	if err != nil {
		// Nothing running: fall back to the durable snapshot.
		p, err := s.service.Progress(r.Context(), tenantID(r.Context()), id)
		if err != nil {
			s.respondError(w, r, err)
			return
		}
		writeJSON(w, p)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, r, fmt.Errorf("streaming not supported"))
		return
	}

	for {
		select {
		case progress, open := <-progressCh:
			if !open {
				fmt.Fprintf(w, "event: complete\ndata: {}\n\n")
				flusher.Flush()
				return
			}
			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", progress.Processed, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(r)
	if !ok {
		respondBadRequest(w, "invalid job ID")
		return
	}
	if err := s.service.Cancel(r.Context(), tenantID(r.Context()), id); err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]string{"status": "cancelling"})
}

func (s *Server) handleSetConnector(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(r)
	if !ok {
		respondBadRequest(w, "invalid job ID")
		return
	}

	var req struct {
		ConnectorID string `json:"connectorId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ConnectorID == "" {
		respondBadRequest(w, "connectorId is required")
		return
	}

	j, err := s.service.SetConnector(r.Context(), tenantID(r.Context()), id, req.ConnectorID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, j)
}

func (s *Server) handleSetMappings(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(r)
	if !ok {
		respondBadRequest(w, "invalid job ID")
		return
	}

	var req struct {
		Mappings []job.FieldMapping `json:"mappings"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "invalid mappings payload")
		return
	}

	j, err := s.service.SetMappings(r.Context(), tenantID(r.Context()), id, req.Mappings)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, j)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(r)
	if !ok {
		respondBadRequest(w, "invalid job ID")
		return
	}
	j, err := s.service.Validate(r.Context(), tenantID(r.Context()), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, j)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(r)
	if !ok {
		respondBadRequest(w, "invalid job ID")
		return
	}
	preview, err := s.service.Preview(r.Context(), tenantID(r.Context()), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, preview)
}

func (s *Server) handleStartImport(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(r)
	if !ok {
		respondBadRequest(w, "invalid job ID")
		return
	}

	var req struct {
		Confirm string `json:"confirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "invalid request body")
		return
	}

	j, err := s.service.StartImport(r.Context(), tenantID(r.Context()), id, req.Confirm)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
	writeJSON(w, j)
}

func (s *Server) handleRollbackStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(r)
	if !ok {
		respondBadRequest(w, "invalid job ID")
		return
	}
	status, err := s.service.GetRollbackStatus(r.Context(), tenantID(r.Context()), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, status)
}

func (s *Server) handleRollback(w http.ResponseWriter, r *http.Request) {
	id, ok := jobIDParam(r)
	if !ok {
		respondBadRequest(w, "invalid job ID")
		return
	}

	var req struct {
		Confirm string `json:"confirm"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "invalid request body")
		return
	}

	report, err := s.service.Rollback(r.Context(), tenantID(r.Context()), id, req.Confirm)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, report)
}
