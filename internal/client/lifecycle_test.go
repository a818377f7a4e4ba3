package client_test

import (
	"testing"

	"github.com/jezek/xgb/xproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jopamo/hxm/internal/client"
	"github.com/jopamo/hxm/internal/handle"
)

func TestBeginThenAttachFrameReachesMapped(t *testing.T) {
	tbl := client.NewTable(nil)

	h, hot, _ := tbl.Begin(100)
	assert.Equal(t, client.Mapping, hot.State)
	assert.Equal(t, client.Phase1, hot.ManagePhase)

	tbl.IncPendingReplies(h)
	tbl.IncPendingReplies(h)
	assert.False(t, tbl.DecPendingReplies(h), "still one reply outstanding")
	assert.True(t, tbl.DecPendingReplies(h), "last reply must signal finishers")

	require.True(t, tbl.AttachFrame(h, 200))
	gotHot, _, ok := tbl.Lookup(h)
	require.True(t, ok)
	assert.Equal(t, client.Mapped, gotHot.State)
	assert.Equal(t, client.Done, gotHot.ManagePhase)
	assert.Equal(t, xproto.Window(200), gotHot.Frame)

	byXid, ok := tbl.ByXid(100)
	require.True(t, ok)
	assert.Equal(t, h, byXid)
	byFrame, ok := tbl.ByFrame(200)
	require.True(t, ok)
	assert.Equal(t, h, byFrame)

	assert.Equal(t, h, tbl.FocusFront(), "invariant 2: mapped client joins focus history")
}

func TestUnmapIgnoredWhenSelfInitiated(t *testing.T) {
	tbl := client.NewTable(nil)
	h, hot, _ := tbl.Begin(1)
	hot.IgnoreUnmap = 1
	tbl.AttachFrame(h, 2)

	shouldUnmanage := tbl.Unmap(h)
	assert.False(t, shouldUnmanage)
	gotHot, _, _ := tbl.Lookup(h)
	assert.Equal(t, client.Mapped, gotHot.State, "self-initiated unmap must not change state")
	assert.Equal(t, 0, gotHot.IgnoreUnmap)
}

func TestUnmapFromClientTransitionsToUnmapping(t *testing.T) {
	tbl := client.NewTable(nil)
	h, _, _ := tbl.Begin(1)
	tbl.AttachFrame(h, 2)

	shouldUnmanage := tbl.Unmap(h)
	assert.True(t, shouldUnmanage)
	gotHot, _, _ := tbl.Lookup(h)
	assert.Equal(t, client.Unmapping, gotHot.State)
}

func TestDestroyMarksDestroyed(t *testing.T) {
	tbl := client.NewTable(nil)
	h, _, _ := tbl.Begin(1)
	tbl.Destroy(h)
	gotHot, _, _ := tbl.Lookup(h)
	assert.Equal(t, client.Destroyed, gotHot.State)
}

// Invariant 1: xid/frame maps consistent with live clients, before and
// after Unmanage.
func TestUnmanageDetachesWindowMaps(t *testing.T) {
	tbl := client.NewTable(nil)
	h, _, _ := tbl.Begin(1)
	tbl.AttachFrame(h, 2)

	tbl.Unmanage(h)
	_, ok := tbl.ByXid(1)
	assert.False(t, ok)
	_, ok = tbl.ByFrame(2)
	assert.False(t, ok)
	assert.Equal(t, handle.Invalid, tbl.FocusFront(), "invariant 2: unmanaged clients are detached")
}

// Invariant 7: a client appears in at most one layer bucket.
func TestLayerMembershipIsExclusive(t *testing.T) {
	tbl := client.NewTable(nil)
	h, _, _ := tbl.Begin(1)
	tbl.AttachFrame(h, 2)

	count := 0
	for l := client.LayerDesktop; l <= client.LayerOverlay; l++ {
		for _, candidate := range tbl.Layers(l) {
			if candidate == h {
				count++
			}
		}
	}
	assert.Equal(t, 1, count)
}

func TestFrameGeometryWithGTKExtents(t *testing.T) {
	desired := client.Rect{X: 50, Y: 50, Width: 400, Height: 300}
	insets := client.Insets{Left: 10, Right: 10, Top: 20, Bottom: 20}

	frame, inner := client.FrameGeometry(desired, true, insets, 1, 24)
	assert.Equal(t, client.Rect{X: 40, Y: 30, Width: 400, Height: 300}, frame)
	assert.Equal(t, client.Rect{X: 0, Y: 0, Width: 400, Height: 300}, inner)
}

func TestFrameGeometryWithoutGTKExtents(t *testing.T) {
	desired := client.Rect{X: 0, Y: 0, Width: 400, Height: 300}
	frame, inner := client.FrameGeometry(desired, false, client.Insets{}, 2, 24)
	assert.Equal(t, client.Rect{X: 0, Y: 0, Width: 404, Height: 326}, frame)
	assert.Equal(t, client.Rect{X: 2, Y: 24, Width: 400, Height: 300}, inner)
}

// Invariant 7 holds across a layer move, not just at attach time.
func TestSetLayerMovesAcrossLayersExclusively(t *testing.T) {
	tbl := client.NewTable(nil)
	h, _, _ := tbl.Begin(1)
	tbl.AttachFrame(h, 2)

	assert.True(t, tbl.SetLayer(h, client.LayerFullscreen))
	assert.False(t, tbl.SetLayer(h, client.LayerFullscreen), "no-op when already in layer")

	hot, _, _ := tbl.Lookup(h)
	assert.Equal(t, client.LayerFullscreen, hot.Layer)
	assert.Contains(t, tbl.Layers(client.LayerFullscreen), h)
	assert.NotContains(t, tbl.Layers(client.LayerNormal), h)
}

// Property 5: state toggle sequences commute to a deterministic end state.
func TestStateTogglesCommuteToLastWrite(t *testing.T) {
	var hot client.Hot

	hot.ApplyStateAction(client.StateAdd, client.FlagFullscreen)
	hot.ApplyStateAction(client.StateToggle, client.FlagFullscreen)
	hot.ApplyStateAction(client.StateToggle, client.FlagFullscreen)
	assert.True(t, hot.Has(client.FlagFullscreen))

	hot.ApplyStateAction(client.StateRemove, client.FlagFullscreen)
	hot.ApplyStateAction(client.StateAdd, client.FlagFullscreen)
	hot.ApplyStateAction(client.StateRemove, client.FlagFullscreen)
	assert.False(t, hot.Has(client.FlagFullscreen))
}
