// Package orchestrator owns the single-flight query lifecycle.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/markdave123-py/clausewise/internal/core"
	"github.com/markdave123-py/clausewise/internal/models"
)

const (
	DefaultTimeout        = 60 * time.Second
	DefaultMaxQueryLength = 500

	// keepCycles bounds how many finished cycles Await can still report on.
	keepCycles = 32
)

// Policy decides what Submit does while a query is in flight.
type Policy string

const (
	// PolicyReject refuses overlapping submissions with RejectInFlight.
	PolicyReject Policy = "reject"
	// PolicyReplace cancels the running call and starts the new one.
	PolicyReplace Policy = "replace"
)

// ParsePolicy maps a config string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyReject:
		return PolicyReject, nil
	case PolicyReplace:
		return PolicyReplace, nil
	}
	return "", fmt.Errorf("unknown query policy %q", s)
}

// Config tunes an Orchestrator.
type Config struct {
	Timeout        time.Duration
	MaxQueryLength int
	// MaxSources is passed to the collaborator as a limit hint when > 0.
	// The sources it returns are published unchanged.
	MaxSources int
	Policy     Policy
}

// Documents is the registry view the orchestrator needs.
type Documents interface {
	Count() int
	List() []models.Document
	Remove(documentID string) error
}

type cycle struct {
	gen    uint64
	query  string
	cancel context.CancelFunc
	done   chan struct{}
	docIDs map[string]struct{}

	// final and superseded are written under Orchestrator.mu before done is closed.
	final      State
	superseded bool
}

type answerResult struct {
	resp *models.QueryResponse
	err  error
}

// Orchestrator runs at most one answer-generation call at a time and publishes its State.
type Orchestrator struct {
	docs     Documents
	answerer core.Answerer
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu      sync.Mutex
	state   State
	gen     uint64
	current *cycle
	cycles  map[uint64]*cycle
	subs    map[uint64]chan State
	nextSub uint64
	closed  bool
}

// New builds an idle orchestrator.
func New(docs Documents, answerer core.Answerer, cfg Config, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = DefaultMaxQueryLength
	}
	if cfg.Policy == "" {
		cfg.Policy = PolicyReject
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		docs:       docs,
		answerer:   answerer,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
		baseCtx:    ctx,
		baseCancel: cancel,
		state:      State{Phase: PhaseIdle},
		cycles:     make(map[uint64]*cycle),
		subs:       make(map[uint64]chan State),
	}
}

// SubmitOption adjusts one submission.
type SubmitOption func(*submitOptions)

type submitOptions struct {
	maxSources int
}

// WithMaxSources overrides Config.MaxSources for one submission.
func WithMaxSources(n int) SubmitOption {
	return func(o *submitOptions) { o.maxSources = n }
}

// Submit validates the query and, if accepted, enters PhaseInFlight and starts the
// collaborator call in the background. The returned state is the in-flight snapshot.
// A rejected submission returns a Rejection and leaves the state untouched.
// The collaborator gets the trimmed text; the state and response echo text as given.
func (o *Orchestrator) Submit(text string, opts ...SubmitOption) (State, error) {
	so := submitOptions{maxSources: o.cfg.MaxSources}
	for _, opt := range opts {
		opt(&so)
	}

	query := strings.TrimSpace(text)
	if query == "" {
		return o.reject(RejectEmptyQuery)
	}
	if utf8.RuneCountInString(query) > o.cfg.MaxQueryLength {
		return o.reject(RejectTooLong)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return o.state.clone(), ErrClosed
	}
	if o.docs.Count() == 0 {
		return o.rejectLocked(RejectNoDocuments)
	}
	if o.state.Phase == PhaseInFlight {
		if o.cfg.Policy != PolicyReplace {
			return o.rejectLocked(RejectInFlight)
		}
		o.supersedeLocked()
	}

	docs := o.docs.List()
	ids := make(map[string]struct{}, len(docs))
	for _, d := range docs {
		ids[d.ID] = struct{}{}
	}

	o.gen++
	startedAt := o.now()
	ctx, cancel := context.WithTimeout(o.baseCtx, o.cfg.Timeout)
	c := &cycle{gen: o.gen, query: text, cancel: cancel, done: make(chan struct{}), docIDs: ids}
	o.current = c
	o.cycles[c.gen] = c
	if c.gen > keepCycles {
		delete(o.cycles, c.gen-keepCycles)
	}

	o.state = State{Phase: PhaseInFlight, Query: text, StartedAt: &startedAt, Generation: c.gen}
	o.publishLocked()
	o.logger.Info("query submitted", "generation", c.gen, "documents", len(docs))

	req := core.AnswerRequest{Query: query, Documents: docs, MaxSources: so.maxSources}
	go o.run(ctx, c, req, startedAt)

	return o.state.clone(), nil
}

func (o *Orchestrator) reject(r Rejection) (State, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.rejectLocked(r)
}

func (o *Orchestrator) rejectLocked(r Rejection) (State, error) {
	o.logger.Debug("query rejected", "reason", string(r))
	return o.state.clone(), r
}

// supersedeLocked cancels the running cycle. Its late completion is discarded in run.
func (o *Orchestrator) supersedeLocked() {
	c := o.current
	if c == nil {
		return
	}
	c.cancel()
	c.superseded = true
	close(c.done)
	o.current = nil
	o.logger.Info("in-flight query replaced", "generation", c.gen)
}

func (o *Orchestrator) run(ctx context.Context, c *cycle, req core.AnswerRequest, startedAt time.Time) {
	defer c.cancel()

	resp, err := o.call(ctx, req)
	if err == nil {
		resp, err = o.finalize(resp, c.query, startedAt)
	}

	next := State{Query: c.query, Generation: c.gen}
	if err != nil {
		next.Phase = PhaseFailed
		next.Failure = classify(err)
	} else {
		next.Phase = PhaseResolved
		next.Response = resp
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current != c {
		o.logger.Debug("discarding superseded result", "generation", c.gen)
		return
	}
	o.state = next
	o.current = nil
	c.final = next
	close(c.done)
	o.publishLocked()

	if next.Failure != nil {
		o.logger.Warn("query failed", "generation", c.gen, "kind", next.Failure.Kind, "reason", next.Failure.Reason)
	} else {
		o.logger.Info("query resolved", "generation", c.gen, "sources", len(resp.Sources), "processing_ms", resp.ProcessingTimeMs)
	}
}

// call runs the answerer in its own goroutine so a collaborator that ignores ctx cannot
// keep the cycle in flight past the deadline.
func (o *Orchestrator) call(ctx context.Context, req core.AnswerRequest) (*models.QueryResponse, error) {
	results := make(chan answerResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				results <- answerResult{err: fmt.Errorf("%w: answerer panicked: %v", core.ErrUpstream, r)}
			}
		}()
		resp, err := o.answerer.Answer(ctx, req)
		results <- answerResult{resp: resp, err: err}
	}()

	select {
	case r := <-results:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (o *Orchestrator) finalize(resp *models.QueryResponse, query string, startedAt time.Time) (*models.QueryResponse, error) {
	if resp == nil {
		return nil, fmt.Errorf("%w: no response", core.ErrInvalidResult)
	}
	if strings.TrimSpace(resp.Answer) == "" {
		return nil, fmt.Errorf("%w: empty answer", core.ErrInvalidResult)
	}
	if !unit(resp.Confidence) {
		return nil, fmt.Errorf("%w: confidence %v outside [0,1]", core.ErrInvalidResult, resp.Confidence)
	}
	for i, s := range resp.Sources {
		if !unit(s.Relevance) {
			return nil, fmt.Errorf("%w: source %d relevance %v outside [0,1]", core.ErrInvalidResult, i, s.Relevance)
		}
		if s.Page != nil && *s.Page <= 0 {
			return nil, fmt.Errorf("%w: source %d page %d", core.ErrInvalidResult, i, *s.Page)
		}
	}

	out := cloneResponse(resp)
	out.Query = query
	finished := o.now()
	out.Timestamp = finished
	out.ProcessingTimeMs = max(finished.Sub(startedAt).Milliseconds(), 0)
	return out, nil
}

func unit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

func classify(err error) *Failure {
	f := &Failure{Reason: err.Error()}
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, core.ErrTimeout):
		f.Kind = FailureTimeout
	case errors.Is(err, core.ErrInvalidResult):
		f.Kind = FailureInvalidResult
	default:
		f.Kind = FailureUpstream
	}
	return f
}

// Current returns the latest committed state.
func (o *Orchestrator) Current() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state.clone()
}

// Await blocks until the cycle with the given generation ends and returns its terminal
// state, even if later cycles have started since. A replaced cycle yields ErrSuperseded
// with the current state; ctx ending yields ctx.Err() with the current state.
func (o *Orchestrator) Await(ctx context.Context, generation uint64) (State, error) {
	o.mu.Lock()
	c, ok := o.cycles[generation]
	if !ok {
		st := o.state.clone()
		o.mu.Unlock()
		return st, fmt.Errorf("generation %d: %w", generation, ErrUnknownGeneration)
	}
	o.mu.Unlock()

	select {
	case <-c.done:
	case <-ctx.Done():
		return o.Current(), ctx.Err()
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if c.superseded {
		return o.state.clone(), fmt.Errorf("generation %d: %w", generation, ErrSuperseded)
	}
	return c.final.clone(), nil
}

// Subscribe delivers the current state and then every committed transition.
// The channel holds one value; a slow reader skips to the newest state.
// The returned func unsubscribes and closes the channel.
func (o *Orchestrator) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := o.nextSub
	o.nextSub++
	o.subs[id] = ch
	ch <- o.state.clone()
	o.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			o.mu.Lock()
			defer o.mu.Unlock()
			if _, ok := o.subs[id]; ok {
				delete(o.subs, id)
				close(ch)
			}
		})
	}
}

func (o *Orchestrator) publishLocked() {
	for _, ch := range o.subs {
		select {
		case <-ch:
		default:
		}
		ch <- o.state.clone()
	}
}

// RemoveDocument deletes a document unless the in-flight query was handed it.
func (o *Orchestrator) RemoveDocument(documentID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.current != nil {
		if _, ok := o.current.docIDs[documentID]; ok {
			return fmt.Errorf("remove %s: %w", documentID, ErrDocumentInUse)
		}
	}
	return o.docs.Remove(documentID)
}

// Close cancels any running call and closes all subscriptions.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	o.baseCancel()
	for id, ch := range o.subs {
		delete(o.subs, id)
		close(ch)
	}
}
