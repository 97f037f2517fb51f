// Package statemachine implements a finite state machine as an immutable
// transition table. The machine holds no current state: callers pass the
// state read from their own record to Fire and persist the returned state.
// One table can serve any number of records concurrently.
//
//	m := statemachine.MustNew(
//		statemachine.WithTransition[State, Event, *Order](Pending, Paid, Pay,
//			statemachine.WithAction(chargeCard)),
//	)
//	next, err := m.Fire(ctx, order.State, Pay, order)
package statemachine

import (
	"context"
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("statemachine: invalid transition definition")

// Guard reports whether a transition may proceed for data.
type Guard[S, E comparable, D any] func(ctx context.Context, from S, event E, data D) bool

// Action runs while a transition is taken. An error aborts the transition.
type Action[S, E comparable, D any] func(ctx context.Context, from, to S, event E, data D) error

type Transition[S, E comparable, D any] struct {
	From    S
	To      S
	Event   E
	Guards  []Guard[S, E, D]
	Actions []Action[S, E, D]
}

type key[S, E comparable] struct {
	from  S
	event E
}

type Machine[S, E comparable, D any] struct {
	table map[key[S, E]][]Transition[S, E, D]
}

type Option[S, E comparable, D any] func(*Machine[S, E, D]) error

type TransitionOption[S, E comparable, D any] func(*Transition[S, E, D])

func WithGuard[S, E comparable, D any](g Guard[S, E, D]) TransitionOption[S, E, D] {
	return func(t *Transition[S, E, D]) {
		if g != nil {
			t.Guards = append(t.Guards, g)
		}
	}
}

func WithAction[S, E comparable, D any](a Action[S, E, D]) TransitionOption[S, E, D] {
	return func(t *Transition[S, E, D]) {
		if a != nil {
			t.Actions = append(t.Actions, a)
		}
	}
}

// WithTransition registers from --event--> to. Several transitions may share
// (from, event); the first whose guards all pass is taken.
func WithTransition[S, E comparable, D any](from, to S, event E, opts ...TransitionOption[S, E, D]) Option[S, E, D] {
	return func(m *Machine[S, E, D]) error {
		var zeroS S
		var zeroE E
		if from == zeroS || to == zeroS || event == zeroE {
			return fmt.Errorf("%w: %v --%v--> %v", ErrInvalidTransition, from, event, to)
		}
		t := Transition[S, E, D]{From: from, To: to, Event: event}
		for _, opt := range opts {
			opt(&t)
		}
		k := key[S, E]{from, event}
		m.table[k] = append(m.table[k], t)
		return nil
	}
}

// WithTransitionFrom registers the same event and target for several source states.
func WithTransitionFrom[S, E comparable, D any](froms []S, to S, event E, opts ...TransitionOption[S, E, D]) Option[S, E, D] {
	return func(m *Machine[S, E, D]) error {
		for _, from := range froms {
			if err := WithTransition(from, to, event, opts...)(m); err != nil {
				return err
			}
		}
		return nil
	}
}

func New[S, E comparable, D any](opts ...Option[S, E, D]) (*Machine[S, E, D], error) {
	m := &Machine[S, E, D]{table: make(map[key[S, E]][]Transition[S, E, D])}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func MustNew[S, E comparable, D any](opts ...Option[S, E, D]) *Machine[S, E, D] {
	m, err := New(opts...)
	if err != nil {
		panic(err)
	}
	return m
}

// Fire selects a transition for (current, event), runs its actions and
// returns the target state. On error the returned state is current.
func (m *Machine[S, E, D]) Fire(ctx context.Context, current S, event E, data D) (S, error) {
	t, err := m.find(ctx, current, event, data)
	if err != nil {
		return current, err
	}
	for _, a := range t.Actions {
		if err := a(ctx, t.From, t.To, event, data); err != nil {
			return current, err
		}
	}
	return t.To, nil
}

// CanFire reports whether Fire would find a transition, without running actions.
func (m *Machine[S, E, D]) CanFire(ctx context.Context, current S, event E, data D) bool {
	_, err := m.find(ctx, current, event, data)
	return err == nil
}

// Targets lists the states reachable from current by event when guards pass.
func (m *Machine[S, E, D]) Targets(current S, event E) []S {
	ts := m.table[key[S, E]{current, event}]
	out := make([]S, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.To)
	}
	return out
}

func (m *Machine[S, E, D]) find(ctx context.Context, current S, event E, data D) (Transition[S, E, D], error) {
	ts, ok := m.table[key[S, E]{current, event}]
	if !ok {
		return Transition[S, E, D]{}, &NoTransitionError{State: fmt.Sprint(current), Event: fmt.Sprint(event)}
	}
next:
	for _, t := range ts {
		for _, g := range t.Guards {
			if !g(ctx, current, event, data) {
				continue next
			}
		}
		return t, nil
	}
	return Transition[S, E, D]{}, &RejectedError{State: fmt.Sprint(current), Event: fmt.Sprint(event)}
}
