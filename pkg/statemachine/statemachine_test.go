package statemachine_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talewise/storyteller/pkg/statemachine"
)

type (
	light   string
	trigger string
)

const (
	red    light = "red"
	green  light = "green"
	yellow light = "yellow"

	next  trigger = "next"
	fault trigger = "fault"
)

type counter struct{ calls int }

func build(t *testing.T, opts ...statemachine.Option[light, trigger, *counter]) *statemachine.Machine[light, trigger, *counter] {
	t.Helper()
	m, err := statemachine.New(opts...)
	require.NoError(t, err)
	return m
}

func TestFire(t *testing.T) {
	t.Parallel()

	count := func(ctx context.Context, from, to light, e trigger, c *counter) error {
		c.calls++
		return nil
	}
	m := build(t,
		statemachine.WithTransition(red, green, next, statemachine.WithAction(count)),
		statemachine.WithTransition(green, yellow, next, statemachine.WithAction(count)),
		statemachine.WithTransition[light, trigger, *counter](yellow, red, next),
	)

	c := &counter{}
	state := red
	for _, want := range []light{green, yellow, red} {
		var err error
		state, err = m.Fire(context.Background(), state, next, c)
		require.NoError(t, err)
		assert.Equal(t, want, state)
	}
	assert.Equal(t, 2, c.calls)
}

func TestFire_NoTransition(t *testing.T) {
	t.Parallel()

	m := build(t, statemachine.WithTransition[light, trigger, *counter](red, green, next))
	state, err := m.Fire(context.Background(), green, next, &counter{})
	require.Error(t, err)
	assert.True(t, statemachine.IsNoTransition(err))
	assert.False(t, statemachine.IsRejected(err))
	assert.Equal(t, green, state)
	assert.False(t, m.CanFire(context.Background(), green, next, &counter{}))
}

func TestFire_Guards(t *testing.T) {
	t.Parallel()

	allowOdd := func(ctx context.Context, from light, e trigger, c *counter) bool { return c.calls%2 == 1 }
	allowEven := func(ctx context.Context, from light, e trigger, c *counter) bool { return c.calls%2 == 0 }

	t.Run("first passing transition wins", func(t *testing.T) {
		m := build(t,
			statemachine.WithTransition(red, green, next, statemachine.WithGuard(allowOdd)),
			statemachine.WithTransition(red, yellow, next, statemachine.WithGuard(allowEven)),
		)
		s, err := m.Fire(context.Background(), red, next, &counter{calls: 1})
		require.NoError(t, err)
		assert.Equal(t, green, s)

		s, err = m.Fire(context.Background(), red, next, &counter{calls: 2})
		require.NoError(t, err)
		assert.Equal(t, yellow, s)
	})

	t.Run("all guards rejecting", func(t *testing.T) {
		m := build(t, statemachine.WithTransition(red, green, next, statemachine.WithGuard(allowOdd)))
		_, err := m.Fire(context.Background(), red, next, &counter{calls: 2})
		assert.True(t, statemachine.IsRejected(err))
		assert.True(t, m.CanFire(context.Background(), red, next, &counter{calls: 3}))
	})
}

func TestFire_ActionErrorKeepsState(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	m := build(t, statemachine.WithTransition(red, green, next,
		statemachine.WithAction(func(ctx context.Context, from, to light, e trigger, c *counter) error { return boom }),
	))
	s, err := m.Fire(context.Background(), red, next, &counter{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, red, s)
}

func TestWithTransitionFrom(t *testing.T) {
	t.Parallel()

	m := build(t, statemachine.WithTransitionFrom[light, trigger, *counter]([]light{green, yellow}, red, fault))
	for _, from := range []light{green, yellow} {
		s, err := m.Fire(context.Background(), from, fault, &counter{})
		require.NoError(t, err)
		assert.Equal(t, red, s)
	}
	assert.Equal(t, []light{red}, m.Targets(green, fault))
	assert.Empty(t, m.Targets(red, fault))
}

func TestNew_RejectsZeroValues(t *testing.T) {
	t.Parallel()

	_, err := statemachine.New(statemachine.WithTransition[light, trigger, *counter]("", green, next))
	assert.ErrorIs(t, err, statemachine.ErrInvalidTransition)
	assert.Panics(t, func() {
		statemachine.MustNew(statemachine.WithTransition[light, trigger, *counter](red, green, ""))
	})
}
