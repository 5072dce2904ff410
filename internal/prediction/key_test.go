package prediction

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKey_Flags(t *testing.T) {
	client := NewGenerator(false).NewKey()
	assert.True(t, client.IsValid())
	assert.True(t, client.IsLocalClientKey())
	assert.True(t, client.IsValidForMorePrediction())
	assert.True(t, client.WasLocallyGenerated())
	assert.False(t, client.WasReceived())

	received := client.AsReceived()
	assert.False(t, received.IsLocalClientKey())
	assert.True(t, received.WasReceived())
	assert.True(t, received.Matches(client))

	server := NewGenerator(true).NewKey()
	assert.False(t, server.IsLocalClientKey())
	assert.True(t, server.WasLocallyGenerated())

	var none Key
	assert.False(t, none.IsValid())
	assert.False(t, none.IsLocalClientKey())
	assert.False(t, none.Matches(none))
	assert.Equal(t, Key{}, none.AsReceived())
}

func TestGenerator_DependentKey(t *testing.T) {
	g := NewGenerator(false)
	base := g.NewKey()
	dep := g.NewDependentKey(base)

	assert.Equal(t, base.ID+1, dep.ID)
	assert.Equal(t, base.ID, dep.Base)
}

func TestDelegates_CatchUpTo(t *testing.T) {
	g := NewGenerator(false)
	k1, k2, k3 := g.NewKey(), g.NewKey(), g.NewKey()

	d := NewDelegates()
	var order []int32
	for _, k := range []Key{k3, k1, k2} {
		d.OnCaughtUp(k, func() { order = append(order, k.ID) })
	}

	d.CatchUpTo(k2)
	assert.Equal(t, []int32{k1.ID, k2.ID}, order)
	assert.Equal(t, 1, d.Pending())

	d.CatchUpTo(k1)
	assert.Len(t, order, 2, "stale catch-up must be ignored")
}

func TestDelegates_RejectedOrCaughtUpFiresOnce(t *testing.T) {
	k := NewGenerator(false).NewKey()
	d := NewDelegates()

	calls := 0
	d.OnRejectedOrCaughtUp(k, func() { calls++ })

	d.Reject(k)
	d.CatchUpTo(k)
	d.Reject(k)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, d.Pending())
}
