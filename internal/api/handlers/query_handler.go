package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/markdave123-py/clausewise/internal/models"
	"github.com/markdave123-py/clausewise/internal/orchestrator"
)

// QueryOrchestrator is the orchestrator surface the HTTP layer drives.
type QueryOrchestrator interface {
	Submit(text string, opts ...orchestrator.SubmitOption) (orchestrator.State, error)
	Current() orchestrator.State
	Await(ctx context.Context, generation uint64) (orchestrator.State, error)
	Subscribe() (<-chan orchestrator.State, func())
}

type QueryHandler struct {
	orch   QueryOrchestrator
	logger *slog.Logger
}

func NewQueryHandler(orch QueryOrchestrator, logger *slog.Logger) *QueryHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &QueryHandler{orch: orch, logger: logger}
}

type submitRequest struct {
	Query string `json:"query"`
}

// RunOptions mirrors the options block accepted by the run endpoint.
type RunOptions struct {
	IncludeReasoning    *bool    `json:"include_reasoning,omitempty"`
	MaxSources          int      `json:"max_sources,omitempty"`
	ConfidenceThreshold *float64 `json:"confidence_threshold,omitempty"`
}

type runRequest struct {
	Query string `json:"query"`
	// Documents is accepted for compatibility; the registry decides what is searched.
	Documents []string    `json:"documents,omitempty"`
	Options   *RunOptions `json:"options,omitempty"`
}

// SubmitQuery starts a query and returns the in-flight state without waiting.
func (h *QueryHandler) SubmitQuery(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}
	st, err := h.orch.Submit(req.Query)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, st)
}

// Run submits a query and blocks until its cycle ends.
func (h *QueryHandler) Run(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	var opts []orchestrator.SubmitOption
	if req.Options != nil && req.Options.MaxSources > 0 {
		opts = append(opts, orchestrator.WithMaxSources(req.Options.MaxSources))
	}

	st, err := h.orch.Submit(req.Query, opts...)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	gen := st.Generation

	st, err = h.orch.Await(r.Context(), gen)
	switch {
	case r.Context().Err() != nil:
		// client went away; the cycle keeps running
		h.logger.Debug("run: client gone before completion", "generation", gen, "err", err)
		return
	case errors.Is(err, orchestrator.ErrSuperseded):
		apiErr := errorFor(err)
		apiErr.Query = req.Query
		writeJSON(w, apiErr.Status, apiErr)
		return
	case err != nil:
		writeError(w, h.logger, err)
		return
	}

	if st.Phase == orchestrator.PhaseResolved && st.Response != nil {
		writeJSON(w, http.StatusOK, applyRunOptions(*st.Response, req.Options))
		return
	}
	apiErr := failureError(st)
	writeJSON(w, apiErr.Status, apiErr)
}

// applyRunOptions trims the presentation of a resolved response. Sources below the
// threshold are dropped, then the list is cut to max_sources. Order is kept.
func applyRunOptions(resp models.QueryResponse, opts *RunOptions) models.QueryResponse {
	if opts == nil {
		return resp
	}
	if opts.IncludeReasoning != nil && !*opts.IncludeReasoning {
		resp.Reasoning = ""
	}
	if opts.ConfidenceThreshold != nil {
		kept := make([]models.Source, 0, len(resp.Sources))
		for _, s := range resp.Sources {
			if s.Relevance >= *opts.ConfidenceThreshold {
				kept = append(kept, s)
			}
		}
		resp.Sources = kept
	}
	if opts.MaxSources > 0 && len(resp.Sources) > opts.MaxSources {
		resp.Sources = resp.Sources[:opts.MaxSources]
	}
	return resp
}

// State returns the current orchestrator state.
func (h *QueryHandler) State(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, h.orch.Current())
}
