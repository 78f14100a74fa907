package workorder

import (
	"context"
	"errors"

	"github.com/looplab/fsm"

	"mes-execution-backend/internal/apperr"
	"mes-execution-backend/internal/model"
)

// Action is a lifecycle command on a work order.
type Action string

const (
	ActionRelease  Action = "release"
	ActionComplete Action = "complete"
	ActionClose    Action = "close"
	ActionCancel   Action = "cancel"
)

// Actions lists every lifecycle action.
var Actions = []Action{ActionRelease, ActionComplete, ActionClose, ActionCancel}

// transitions is the complete lifecycle table. Release from IN_PROGRESS is
// accepted and leaves the order unchanged.
var transitions = fsm.Events{
	{Name: string(ActionRelease), Src: []string{string(model.StatePlanned), string(model.StateInProgress)}, Dst: string(model.StateInProgress)},
	{Name: string(ActionComplete), Src: []string{string(model.StateInProgress)}, Dst: string(model.StateCompleted)},
	{Name: string(ActionClose), Src: []string{string(model.StateCompleted)}, Dst: string(model.StateClosed)},
	{Name: string(ActionCancel), Src: []string{string(model.StatePlanned), string(model.StateInProgress)}, Dst: string(model.StateCancelled)},
}

func newLifecycle(state model.WorkOrderState) *fsm.FSM {
	return fsm.NewFSM(string(state), transitions, fsm.Callbacks{})
}

// nextState returns the state action leads to from current. changed is false
// when the action is legal but leaves the state as it is.
func nextState(ctx context.Context, current model.WorkOrderState, action Action) (next model.WorkOrderState, changed bool, err error) {
	machine := newLifecycle(current)
	err = machine.Event(ctx, string(action))

	var (
		noTransition fsm.NoTransitionError
		invalid      fsm.InvalidEventError
		unknown      fsm.UnknownEventError
	)
	switch {
	case err == nil:
		return model.WorkOrderState(machine.Current()), true, nil
	case errors.As(err, &noTransition):
		return current, false, nil
	case errors.As(err, &invalid):
		return current, false, apperr.State("cannot %s a work order in state %s", action, current)
	case errors.As(err, &unknown):
		return current, false, apperr.Validation("action", "unknown action %q", action)
	}
	return current, false, apperr.FromContext(err, string(action))
}

// AllowedActions returns the actions accepted from state.
func AllowedActions(state model.WorkOrderState) []Action {
	machine := newLifecycle(state)
	var allowed []Action
	for _, a := range Actions {
		if machine.Can(string(a)) {
			allowed = append(allowed, a)
		}
	}
	return allowed
}

// ParseAction validates a raw action name.
func ParseAction(raw string) (Action, error) {
	for _, a := range Actions {
		if string(a) == raw {
			return a, nil
		}
	}
	return "", apperr.Validation("action", "unknown action %q", raw)
}
