package orchestrator

import (
	"time"

	"github.com/markdave123-py/clausewise/internal/models"
)

// Phase is the orchestration phase every view renders from.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseInFlight Phase = "in_flight"
	PhaseResolved Phase = "resolved"
	PhaseFailed   Phase = "failed"
)

// FailureKind classifies a collaborator failure.
type FailureKind string

const (
	FailureTimeout       FailureKind = "timeout"
	FailureUpstream      FailureKind = "upstream_error"
	FailureInvalidResult FailureKind = "invalid_result"
)

// Failure describes why a cycle ended in PhaseFailed.
type Failure struct {
	Kind   FailureKind `json:"kind"`
	Reason string      `json:"reason"`
}

// State is a snapshot of the orchestrator.
//
//	idle      nothing else set
//	in_flight Query, StartedAt
//	resolved  Query, Response
//	failed    Query, Failure
//
// Generation increases by one for every accepted submission.
type State struct {
	Phase      Phase                 `json:"phase"`
	Query      string                `json:"query,omitempty"`
	StartedAt  *time.Time            `json:"startedAt,omitempty"`
	Response   *models.QueryResponse `json:"response,omitempty"`
	Failure    *Failure              `json:"failure,omitempty"`
	Generation uint64                `json:"generation"`
}

// Terminal reports whether the state ends a cycle.
func (s State) Terminal() bool {
	return s.Phase == PhaseResolved || s.Phase == PhaseFailed
}

func (s State) clone() State {
	if s.StartedAt != nil {
		t := *s.StartedAt
		s.StartedAt = &t
	}
	if s.Response != nil {
		s.Response = cloneResponse(s.Response)
	}
	if s.Failure != nil {
		f := *s.Failure
		s.Failure = &f
	}
	return s
}

func cloneResponse(r *models.QueryResponse) *models.QueryResponse {
	out := *r
	out.Sources = make([]models.Source, len(r.Sources))
	for i, src := range r.Sources {
		if src.Page != nil {
			src.Page = models.IntPtr(*src.Page)
		}
		out.Sources[i] = src
	}
	return &out
}
