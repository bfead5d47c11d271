package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"seo-audit/pkg/models"
	"seo-audit/pkg/rules"
	"seo-audit/pkg/storage"
	"seo-audit/pkg/utils"
)

// Scheduler is the slice of the orchestrator the API needs.
type Scheduler interface {
	ScheduleCrawl(ctx context.Context, siteID, siteURL, planTier string) (models.CrawlJob, error)
}

// Server exposes the audit trigger/status HTTP API.
type Server struct {
	store     storage.Store
	scheduler Scheduler
	log       *logrus.Entry
}

// NewServer creates the API server.
func NewServer(store storage.Store, scheduler Scheduler, log *logrus.Logger) *Server {
	return &Server{
		store:     store,
		scheduler: scheduler,
		log:       log.WithField("component", "api"),
	}
}

// Router builds the chi route tree.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/sites/{siteID}", func(r chi.Router) {
		r.Post("/crawl", s.handleScheduleCrawl)
		r.Get("/crawl/status", s.handleCrawlStatus)
		r.Get("/issues", s.handleListIssues)
		r.Patch("/issues/{issueID}", s.handleUpdateIssueStatus)
		r.Get("/health", s.handleHealth)
	})
	return r
}

type scheduleCrawlRequest struct {
	URL      string `json:"url"`
	PlanTier string `json:"plan_tier"`
}

func (s *Server) handleScheduleCrawl(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")

	var req scheduleCrawlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := s.scheduler.ScheduleCrawl(r.Context(), siteID, req.URL, req.PlanTier)
	if err != nil {
		s.writeErrorFor(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, job)
}

type crawlStatusResponse struct {
	Site models.Site      `json:"site"`
	Job  *models.CrawlJob `json:"job,omitempty"`
}

func (s *Server) handleCrawlStatus(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")

	site, err := s.store.GetSite(r.Context(), siteID)
	if err != nil {
		s.writeErrorFor(w, err)
		return
	}

	resp := crawlStatusResponse{Site: site}
	job, err := s.store.GetLatestJobBySite(r.Context(), siteID)
	if err == nil {
		resp.Job = &job
	} else if !errors.Is(err, utils.ErrNotFound) {
		s.writeErrorFor(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListIssues(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	filter := storage.IssueFilter{
		Severity: models.IssueSeverity(r.URL.Query().Get("severity")),
		Status:   models.IssueStatus(r.URL.Query().Get("status")),
		Type:     r.URL.Query().Get("type"),
	}

	issues, err := s.store.GetIssuesBySite(r.Context(), siteID, filter)
	if err != nil {
		s.writeErrorFor(w, err)
		return
	}
	if issues == nil {
		issues = []models.Issue{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"issues": issues})
}

type updateIssueRequest struct {
	Status models.IssueStatus `json:"status"`
}

func (s *Server) handleUpdateIssueStatus(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	issueID := chi.URLParam(r, "issueID")

	var req updateIssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !models.ValidIssueStatus(req.Status) {
		s.writeError(w, http.StatusBadRequest, "invalid issue status")
		return
	}

	issue, err := s.store.UpdateIssueStatus(r.Context(), siteID, issueID, req.Status)
	if err != nil {
		s.writeErrorFor(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, issue)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")

	issues, err := s.store.GetIssuesBySite(r.Context(), siteID, storage.IssueFilter{})
	if err != nil {
		s.writeErrorFor(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, rules.CalculateHealthScore(issues))
}

// --- Response Helpers ---

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Errorf("Failed to encode response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// writeErrorFor maps sentinel errors to HTTP statuses.
func (s *Server) writeErrorFor(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, utils.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, utils.ErrJobConflict):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, utils.ErrConfigValidation):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.WithField("error_category", utils.CategorizeError(err)).Errorf("Request failed: %v", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}
