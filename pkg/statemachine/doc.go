// Package statemachine is a small finite-state-machine with transition
// actions.
//
// States and events are anything with a Name. A transition is looked up by
// the current state and the fired event; its actions run in order before the
// state changes, and any action error aborts the transition.
//
//	const (
//	    Pending = statemachine.StringState("pending")
//	    Done    = statemachine.StringState("done")
//	    Finish  = statemachine.StringEvent("finish")
//	)
//
//	machine := statemachine.MustNew(Pending,
//	    statemachine.WithTransition(Pending, Done, Finish),
//	)
//	_ = machine.Fire(ctx, Finish, nil)
//
// Fire returns *ErrNoTransitionAvailable when the event is not defined for the
// current state; check it with IsNoTransitionAvailableError.
package statemachine
