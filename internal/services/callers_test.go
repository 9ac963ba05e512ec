package services

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lead-console/internal/models"
)

func TestCallerServiceAdd(t *testing.T) {
	env := newTestEnv(t)

	c, err := env.callers.Add("  Jean   Claude ")
	require.NoError(t, err)
	assert.Equal(t, "Jean Claude", c.Name)
	assert.True(t, c.Active)
	assert.NotEmpty(t, c.ID)

	_, err = env.callers.Add("   ")
	assert.ErrorIs(t, err, models.ErrInvalidCallerName)
	_, err = env.callers.Add(strings.Repeat("é", 41))
	assert.ErrorIs(t, err, models.ErrInvalidCallerName)
	_, err = env.callers.Add(strings.Repeat("é", 40))
	assert.NoError(t, err)
}

func TestCallerServiceListAndDeactivate(t *testing.T) {
	env := newTestEnv(t)
	alice := env.caller(t, "Alice")
	env.clock.Advance(time.Second)
	bob := env.caller(t, "Bob")

	purged := 0
	env.callers.OnDeactivate(func(string) error {
		purged++
		return nil
	})
	require.NoError(t, env.callers.Deactivate(alice.ID))
	require.NoError(t, env.callers.Deactivate(alice.ID))
	assert.Equal(t, 1, purged)

	all, err := env.callers.List(false)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "Alice", all[0].Name)
	assert.False(t, all[0].Active)

	active, err := env.callers.List(true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, bob.ID, active[0].ID)

	_, err = env.callers.Active(alice.ID)
	assert.ErrorIs(t, err, models.ErrNoActiveCaller)
	assert.ErrorIs(t, env.callers.Deactivate("missing"), models.ErrCallerNotFound)
}
