package statemachine

import (
	"context"
	"fmt"
	"sync"
)

// SimpleStateMachine provides a thread-safe in-memory state machine implementation.
// Transitions are indexed as [fromState][event].
type SimpleStateMachine struct {
	currentState State
	transitions  map[string]map[string]Transition
	mu           sync.RWMutex
}

func newSimpleStateMachine(initialState State) *SimpleStateMachine {
	return &SimpleStateMachine{
		currentState: initialState,
		transitions:  make(map[string]map[string]Transition),
	}
}

func (sm *SimpleStateMachine) Current() State {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.currentState
}

// AddTransition registers a transition. A later transition for the same
// state and event replaces the earlier one.
func (sm *SimpleStateMachine) AddTransition(from, to State, event Event, actions []Action) error {
	if from == nil || to == nil || event == nil {
		return ErrInvalidTransition
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	fromStateName := from.Name()
	if _, ok := sm.transitions[fromStateName]; !ok {
		sm.transitions[fromStateName] = make(map[string]Transition)
	}

	sm.transitions[fromStateName][event.Name()] = Transition{
		From:    from,
		To:      to,
		Event:   event,
		Actions: actions,
	}
	return nil
}

func (sm *SimpleStateMachine) Fire(ctx context.Context, event Event, data any) error {
	if event == nil {
		return ErrInvalidEvent
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	currentStateName := sm.currentState.Name()
	eventName := event.Name()

	transition, ok := sm.transitions[currentStateName][eventName]
	if !ok {
		return NewErrNoTransitionAvailable(currentStateName, eventName)
	}

	// Any action failure aborts the transition.
	for _, action := range transition.Actions {
		if err := action(ctx, sm.currentState, transition.To, event, data); err != nil {
			return fmt.Errorf("action failed: %w", err)
		}
	}

	sm.currentState = transition.To
	return nil
}

func (sm *SimpleStateMachine) CanFire(event Event) bool {
	if event == nil {
		return false
	}

	sm.mu.RLock()
	defer sm.mu.RUnlock()

	_, ok := sm.transitions[sm.currentState.Name()][event.Name()]
	return ok
}
