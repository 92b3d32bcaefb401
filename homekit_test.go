package pinbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHomeKitBridgeAccessories(t *testing.T) {
	r, _, _ := newMockRegistry(t)
	out, err := r.Create(PinRecord{PinNum: 21, Direction: DirectionOut, Name: "appr_bell"})
	require.NoError(t, err)
	in, err := r.Create(PinRecord{PinNum: 17, Direction: DirectionIn, Name: "th-lh-tap", FallingUrl: "http://localhost/tap"})
	require.NoError(t, err)

	hb := NewHomeKitBridge(r)
	require.Len(t, hb.pins, 2)
	require.NotNil(t, hb.pins[out.Id].outlet)
	require.NotNil(t, hb.pins[in.Id].sw)

	acc := hb.Accessories("1.0.0")
	require.Len(t, acc, 2)
	assert.NotEqual(t, acc[0].Id, acc[1].Id)
	assert.Equal(t, hkUniqueId(out), acc[0].Id)

	assert.False(t, hb.pins[out.Id].outlet.Outlet.On.Value())
	assert.True(t, hb.pins[in.Id].sw.Switch.On.Value())

	out.State = StateOn
	require.NoError(t, hb.PinStateChanged(context.Background(), out, time.Now()))
	assert.True(t, hb.pins[out.Id].outlet.Outlet.On.Value())

	in.State = StateOff
	require.NoError(t, hb.PinStateChanged(context.Background(), in, time.Now()))
	assert.False(t, hb.pins[in.Id].sw.Switch.On.Value())

	assert.NoError(t, hb.PinStateChanged(context.Background(), PinRecord{Id: 99}, time.Now()))
}

func TestHkUniqueIdIsStable(t *testing.T) {
	rec := PinRecord{PinNum: 21, Direction: DirectionOut, DriverName: "gpio"}
	assert.Equal(t, hkUniqueId(rec), hkUniqueId(rec))

	other := rec
	other.PinNum = 20
	assert.NotEqual(t, hkUniqueId(rec), hkUniqueId(other))
}
