package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dvloznov/financio/internal/api/middleware"
	"github.com/dvloznov/financio/internal/credits"
	"github.com/dvloznov/financio/internal/domain"
	"github.com/dvloznov/financio/internal/logger"
	"github.com/dvloznov/financio/internal/pipeline"
	"github.com/dvloznov/financio/internal/records"
)

// AnalysisRunner runs one analysis. Satisfied by *pipeline.Orchestrator.
type AnalysisRunner interface {
	Run(ctx context.Context, userID string) (*pipeline.Result, error)
}

// AnalysisReader reads stored analyses. Satisfied by *records.Store.
type AnalysisReader interface {
	Get(ctx context.Context, id string) (domain.AnalysisRecord, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]domain.AnalysisRecord, error)
}

// AnalysesHandler handles analysis endpoints.
type AnalysesHandler struct {
	runner AnalysisRunner
	reader AnalysisReader
}

// NewAnalysesHandler creates a new analyses handler.
func NewAnalysesHandler(runner AnalysisRunner, reader AnalysisReader) *AnalysesHandler {
	return &AnalysesHandler{runner: runner, reader: reader}
}

type runRequest struct {
	UserID string `json:"userId"`
}

type runResponse struct {
	Success    bool                   `json:"success"`
	AnalysisID string                 `json:"analysisId"`
	Summary    domain.AnalysisSummary `json:"summary"`
	Advice     string                 `json:"advice"`
	Credits    credits.Status         `json:"credits"`
	Timestamp  string                 `json:"timestamp"`
}

// RunAnalysis handles POST /api/analyses
func (h *AnalysesHandler) RunAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Warn().Err(err).Msg("Invalid analysis request body")
		middleware.WriteErrorCode(w, http.StatusBadRequest, "Invalid request body", CodeMissingUserID)
		return
	}

	result, err := h.runner.Run(ctx, strings.TrimSpace(req.UserID))
	if err != nil {
		status, body := analysisError(err)
		middleware.WriteJSON(w, status, body)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, runResponse{
		Success:    true,
		AnalysisID: result.AnalysisID,
		Summary:    result.Summary,
		Advice:     result.Advice,
		Credits:    result.Credits,
		Timestamp:  result.Timestamp.Format(time.RFC3339Nano),
	})
}

// ListAnalyses handles GET /api/analyses?userId=&limit=
func (h *AnalysesHandler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := strings.TrimSpace(r.URL.Query().Get("userId"))
	if userID == "" {
		middleware.WriteErrorCode(w, http.StatusBadRequest, "userId is required", CodeMissingUserID)
		return
	}
	limit, ok := parseLimit(r)
	if !ok {
		middleware.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}

	analyses, err := h.reader.ListByUser(ctx, userID, limit)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to list analyses")
		middleware.WriteErrorCode(w, http.StatusInternalServerError, "Database error", CodeStoreError)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"analyses": analyses,
		"count":    len(analyses),
	})
}

// GetAnalysis handles GET /api/analyses/{id}
func (h *AnalysesHandler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")

	rec, err := h.reader.Get(ctx, id)
	if errors.Is(err, records.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Analysis not found")
		return
	}
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("analysis_id", id).Msg("Failed to get analysis")
		middleware.WriteErrorCode(w, http.StatusInternalServerError, "Database error", CodeStoreError)
		return
	}

	middleware.WriteJSON(w, http.StatusOK, rec)
}
