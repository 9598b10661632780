package api

import (
	"net/http"

	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/enrichment"
)

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceID(w, r)
	if !ok {
		return
	}

	var req enrichment.JobRequest
	if err := decodeJSON(r, &req); err != nil {
		WriteValidation(w, r, "request body must be valid JSON")
		return
	}

	job, err := s.deps.Enrichment.CreateJob(r.Context(), ws, userID(r), req)
	if err != nil {
		WriteProblem(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceID(w, r)
	if !ok {
		return
	}

	page, limit := pageParams(r)
	jobs, err := s.deps.Enrichment.Jobs(r.Context(), ws, page, limit)
	if err != nil {
		WriteProblem(w, r, s.logger, err)
		return
	}
	if jobs == nil {
		jobs = []enrichment.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceID(w, r)
	if !ok {
		return
	}
	jobID, ok := s.pathID(w, r)
	if !ok {
		return
	}

	job, err := s.deps.Enrichment.Job(r.Context(), ws, jobID)
	if err != nil {
		WriteProblem(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceID(w, r)
	if !ok {
		return
	}
	jobID, ok := s.pathID(w, r)
	if !ok {
		return
	}

	job, err := s.deps.Enrichment.CancelJob(r.Context(), ws, jobID)
	if err != nil {
		WriteProblem(w, r, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListJobRecords(w http.ResponseWriter, r *http.Request) {
	ws, ok := s.workspaceID(w, r)
	if !ok {
		return
	}
	jobID, ok := s.pathID(w, r)
	if !ok {
		return
	}

	page, limit := pageParams(r)
	records, err := s.deps.Enrichment.Records(r.Context(), ws, jobID, page, limit)
	if err != nil {
		WriteProblem(w, r, s.logger, err)
		return
	}
	if records == nil {
		records = []enrichment.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}
