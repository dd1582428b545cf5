package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrymomot/notifykit/pkg/queue"
	"github.com/dmitrymomot/notifykit/pkg/statemachine"
)

// Stage is a step in the life of a claimed work item. A stage is both a
// state and the event that moves a work item into it.
type Stage string

const (
	StageRetrieved  Stage = "RETRIEVED"
	StageEvaluated  Stage = "EVALUATED"
	StageSent       Stage = "SENT"
	StageDeferred   Stage = "DEFERRED"
	StageSuppressed Stage = "SUPPRESSED"
	StageRetired    Stage = "RETIRED"
	// StageReleased hands the item back to the queue undecided.
	StageReleased Stage = "RELEASED"
)

func (s Stage) Name() string { return string(s) }

// IsDecision reports whether s is one of the terminal decisions.
func (s Stage) IsDecision() bool {
	return s == StageSent || s == StageDeferred || s == StageSuppressed
}

// transitions lists the stages reachable from each stage.
var transitions = map[Stage][]Stage{
	StageRetrieved:  {StageEvaluated, StageSuppressed, StageReleased},
	StageEvaluated:  {StageSent, StageDeferred, StageSuppressed, StageReleased},
	StageSent:       {StageRetired},
	StageDeferred:   {StageRetired},
	StageSuppressed: {StageRetired},
}

// Observer receives every lifecycle transition.
type Observer func(key queue.Key, from, to Stage)

// Lifecycle tracks one work item through
// RETRIEVED -> EVALUATED -> {SENT | DEFERRED | SUPPRESSED} -> RETIRED.
// Exactly one decision precedes RETIRED.
type Lifecycle struct {
	key queue.Key
	sm  statemachine.StateMachine

	mu       sync.Mutex
	decision Stage
}

// NewLifecycle starts a lifecycle in StageRetrieved.
func NewLifecycle(key queue.Key, observe Observer) *Lifecycle {
	l := &Lifecycle{key: key}

	actions := []statemachine.Action{l.recordDecision}
	if observe != nil {
		actions = append(actions, func(_ context.Context, from, to statemachine.State, _ statemachine.Event, _ any) error {
			observe(key, from.(Stage), to.(Stage))
			return nil
		})
	}

	opts := make([]statemachine.Option, 0, 12)
	for from, targets := range transitions {
		for _, to := range targets {
			opts = append(opts, statemachine.WithTransition(from, to, to, statemachine.WithActions(actions...)))
		}
	}
	l.sm = statemachine.MustNew(StageRetrieved, opts...)
	return l
}

// Stage returns the current stage.
func (l *Lifecycle) Stage() Stage {
	return l.sm.Current().(Stage)
}

// Decision returns the decision taken, or "" before one is made.
func (l *Lifecycle) Decision() Stage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.decision
}

// Fire moves the lifecycle to stage to.
func (l *Lifecycle) Fire(ctx context.Context, to Stage) error {
	if err := l.sm.Fire(ctx, to, nil); err != nil {
		return fmt.Errorf("%w: %s for %s: %w", ErrInvalidTransition, to, l.key, err)
	}
	return nil
}

func (l *Lifecycle) recordDecision(_ context.Context, _, to statemachine.State, _ statemachine.Event, _ any) error {
	if s := to.(Stage); s.IsDecision() {
		l.mu.Lock()
		l.decision = s
		l.mu.Unlock()
	}
	return nil
}
