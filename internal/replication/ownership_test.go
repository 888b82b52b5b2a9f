package replication

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vessel-racer/internal/ecs"
	"vessel-racer/internal/protocol"
)

func TestOwnershipIsInjective(t *testing.T) {
	o := NewOwnership()
	_, err := o.Set(1, 10)
	require.NoError(t, err)
	_, err = o.Set(2, 20)
	require.NoError(t, err)

	_, err = o.Set(2, 10)
	assert.True(t, errors.Is(err, ErrEntityOwned))
	e, _ := o.Entity(2)
	assert.Equal(t, ecs.Entity(20), e, "failed Set leaves the map untouched")

	prev, err := o.Set(1, 11)
	require.NoError(t, err)
	assert.Equal(t, ecs.Entity(10), prev)
	_, owned := o.Owner(10)
	assert.False(t, owned)

	assert.Equal(t, []protocol.ClientID{1, 2}, o.Clients())
	for _, c := range o.Clients() {
		e, _ := o.Entity(c)
		back, _ := o.Owner(e)
		assert.Equal(t, c, back)
	}
}

func TestOwnershipRemove(t *testing.T) {
	o := NewOwnership()
	_, _ = o.Set(1, 10)
	_, _ = o.Set(2, 20)

	e, ok := o.Remove(1)
	require.True(t, ok)
	assert.Equal(t, ecs.Entity(10), e)
	_, ok = o.Remove(1)
	assert.False(t, ok)

	owner, ok := o.Owner(20)
	require.True(t, ok)
	assert.Equal(t, protocol.ClientID(2), owner)
	assert.Equal(t, 1, o.Len())
}

func TestDropReason(t *testing.T) {
	assert.Equal(t, DropNotOwner, DropReason(ErrNotOwner))
	assert.Equal(t, DropEntityGone, DropReason(ErrEntityGone))
	assert.Equal(t, DropUnknown, DropReason(errors.New("x")))
}
