// Package handlers exposes the keyword-discovery REST surface.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/rinodehi1978/resell-trap-sub000/internal/database"
	"github.com/rinodehi1978/resell-trap-sub000/internal/domain"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/discovery"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/keywords"
	"github.com/rinodehi1978/resell-trap-sub000/internal/modules/matcher"
)

type cycleRunner interface {
	RunCycle(ctx context.Context) error
}

// Handler serves the discovery endpoints.
type Handler struct {
	repo     *discovery.Repository
	keywords *keywords.Repository
	engine   cycleRunner
	running  atomic.Bool
	log      zerolog.Logger
}

func NewHandler(repo *discovery.Repository, kw *keywords.Repository, engine cycleRunner, log zerolog.Logger) *Handler {
	return &Handler{
		repo:     repo,
		keywords: kw,
		engine:   engine,
		log:      log.With().Str("handler", "discovery").Logger(),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/discovery", func(r chi.Router) {
		r.Post("/run", h.handleRun)
		r.Get("/logs", h.handleLogs)
		r.Get("/candidates", h.handleListCandidates)
		r.Post("/candidates/{id}/approve", h.handleApproveCandidate)
		r.Post("/candidates/{id}/reject", h.handleRejectCandidate)
	})
}

// handleRun starts a discovery cycle in the background. A cycle already in
// flight makes this a 409.
func (h *Handler) handleRun(w http.ResponseWriter, _ *http.Request) {
	if !h.running.CompareAndSwap(false, true) {
		h.writeError(w, http.StatusConflict, errors.New("discovery cycle already running"))
		return
	}
	go func() {
		defer h.running.Store(false)
		if err := h.engine.RunCycle(context.Background()); err != nil {
			h.log.Error().Err(err).Msg("manual discovery cycle failed")
		}
	}()
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

type discoveryLogJSON struct {
	ID                  int64           `json:"id"`
	StartedAt           time.Time       `json:"started_at"`
	FinishedAt          *time.Time      `json:"finished_at,omitempty"`
	Status              string          `json:"status"`
	CandidatesGenerated int             `json:"candidates_generated"`
	CandidatesValidated int             `json:"candidates_validated"`
	KeywordsAdded       int             `json:"keywords_added"`
	KeywordsDeactivated int             `json:"keywords_deactivated"`
	KeepaTokensUsed     int             `json:"keepa_tokens_used"`
	StrategyBreakdown   json.RawMessage `json:"strategy_breakdown"`
	ErrorMessage        string          `json:"error_message,omitempty"`
}

func (h *Handler) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 20
	}
	logs, err := h.repo.ListLogs(limit)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]discoveryLogJSON, 0, len(logs))
	for _, l := range logs {
		breakdown := l.StrategyBreakdown
		if breakdown == "" {
			breakdown = "{}"
		}
		out = append(out, discoveryLogJSON{
			ID:                  l.ID,
			StartedAt:           l.StartedAt,
			FinishedAt:          l.FinishedAt,
			Status:              l.Status,
			CandidatesGenerated: l.CandidatesGenerated,
			CandidatesValidated: l.CandidatesValidated,
			KeywordsAdded:       l.KeywordsAdded,
			KeywordsDeactivated: l.KeywordsDeactivated,
			KeepaTokensUsed:     l.KeepaTokensUsed,
			StrategyBreakdown:   json.RawMessage(breakdown),
			ErrorMessage:        l.ErrorMessage,
		})
	}
	h.writeJSON(w, http.StatusOK, out)
}

type candidateJSON struct {
	ID               int64           `json:"id"`
	Keyword          string          `json:"keyword"`
	Strategy         string          `json:"strategy"`
	Confidence       float64         `json:"confidence"`
	ParentKeywordID  *int64          `json:"parent_keyword_id,omitempty"`
	Reasoning        string          `json:"reasoning,omitempty"`
	Status           string          `json:"status"`
	ValidationResult json.RawMessage `json:"validation_result,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	ResolvedAt       *time.Time      `json:"resolved_at,omitempty"`
}

func toCandidateJSON(c *domain.KeywordCandidate) candidateJSON {
	out := candidateJSON{
		ID:              c.ID,
		Keyword:         c.Keyword,
		Strategy:        c.Strategy,
		Confidence:      c.Confidence,
		ParentKeywordID: c.ParentKeywordID,
		Reasoning:       c.Reasoning,
		Status:          c.Status,
		CreatedAt:       c.CreatedAt,
		ResolvedAt:      c.ResolvedAt,
	}
	if c.ValidationResult != "" {
		out.ValidationResult = json.RawMessage(c.ValidationResult)
	}
	return out
}

func (h *Handler) handleListCandidates(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	var (
		candidates []*domain.KeywordCandidate
		err        error
	)
	if status == "" {
		candidates, err = h.repo.ListPendingCandidates()
	} else {
		candidates, err = h.repo.ListCandidatesByStatus(status)
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	out := make([]candidateJSON, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, toCandidateJSON(c))
	}
	h.writeJSON(w, http.StatusOK, out)
}

// handleApproveCandidate promotes the candidate to an active keyword and
// auto-rejects open candidates that are near-duplicates of it.
func (h *Handler) handleApproveCandidate(w http.ResponseWriter, r *http.Request) {
	c, ok := h.candidateFromPath(w, r)
	if !ok {
		return
	}
	switch c.Status {
	case domain.CandidateStatusPending, domain.CandidateStatusValidated, domain.CandidateStatusRejected:
	default:
		h.writeError(w, http.StatusConflict, errors.New("candidate already resolved"))
		return
	}
	if exists, err := h.keywords.Exists(c.Keyword); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	} else if exists {
		h.writeError(w, http.StatusConflict, errors.New("keyword already exists"))
		return
	}

	err := database.RetryBusy(func() error {
		_, createErr := h.keywords.Create(&domain.WatchedKeyword{
			Keyword:         c.Keyword,
			IsActive:        true,
			Source:          "ai_" + c.Strategy,
			ParentKeywordID: c.ParentKeywordID,
			Confidence:      c.Confidence,
			Notes:           c.Reasoning,
		})
		return createErr
	})
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := h.repo.ResolveCandidate(c.ID, domain.CandidateStatusApproved, c.ValidationResult); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	rejected := h.rejectSimilarPending(c)

	h.log.Info().Str("keyword", c.Keyword).Int("auto_rejected", rejected).Msg("candidate approved")
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":        domain.CandidateStatusApproved,
		"auto_rejected": rejected,
	})
}

// rejectSimilarPending closes open candidates that the similarity check
// considers duplicates of the approved one.
func (h *Handler) rejectSimilarPending(approved *domain.KeywordCandidate) int {
	pending, err := h.repo.ListPendingCandidates()
	if err != nil {
		h.log.Warn().Err(err).Msg("failed to list pending candidates for dedup")
		return 0
	}
	rejected := 0
	for _, p := range pending {
		if p.ID == approved.ID {
			continue
		}
		if !matcher.KeywordsAreSimilar(p.Keyword, approved.Keyword, matcher.DefaultSimilarityThreshold) {
			continue
		}
		result, _ := json.Marshal(map[string]string{
			"outcome": "rejected",
			"reason":  "similar to approved keyword " + approved.Keyword,
		})
		if err := h.repo.ResolveCandidate(p.ID, domain.CandidateStatusRejected, string(result)); err != nil {
			h.log.Warn().Err(err).Int64("candidate_id", p.ID).Msg("failed to auto-reject duplicate candidate")
			continue
		}
		rejected++
	}
	return rejected
}

func (h *Handler) handleRejectCandidate(w http.ResponseWriter, r *http.Request) {
	c, ok := h.candidateFromPath(w, r)
	if !ok {
		return
	}
	if c.Status == domain.CandidateStatusApproved {
		h.writeError(w, http.StatusConflict, errors.New("candidate already approved"))
		return
	}
	if err := h.repo.ResolveCandidate(c.ID, domain.CandidateStatusRejected, c.ValidationResult); err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": domain.CandidateStatusRejected})
}

func (h *Handler) candidateFromPath(w http.ResponseWriter, r *http.Request) (*domain.KeywordCandidate, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, errors.New("invalid candidate id"))
		return nil, false
	}
	c, err := h.repo.GetCandidate(id)
	if errors.Is(err, discovery.ErrNotFound) {
		h.writeError(w, http.StatusNotFound, err)
		return nil, false
	}
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return nil, false
	}
	return c, true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, map[string]string{"error": err.Error()})
}
