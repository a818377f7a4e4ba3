package flush_test

import (
	"testing"

	"github.com/jezek/xgb/xproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jopamo/hxm/internal/atoms"
	"github.com/jopamo/hxm/internal/client"
	"github.com/jopamo/hxm/internal/config"
	"github.com/jopamo/hxm/internal/flush"
)

type configureCall struct {
	win  xproto.Window
	mask uint16
	vals []uint32
}

type fakeConn struct {
	configures []configureCall
	props      int
}

func (f *fakeConn) ConfigureWindow(win xproto.Window, mask uint16, values []uint32) error {
	f.configures = append(f.configures, configureCall{win, mask, append([]uint32(nil), values...)})
	return nil
}

func (f *fakeConn) ChangeProperty(win xproto.Window, prop, typ xproto.Atom, format uint8, data []byte) error {
	f.props++
	return nil
}

// S5: GTK extents flush emits exactly two ConfigureWindows in order
// (frame, then client), and a second flush with no new dirty bits
// emits nothing (property 4).
func TestFlushGTKExtentsEmitsFrameThenClient(t *testing.T) {
	conn := &fakeConn{}
	f := flush.New(conn, atoms.NewForTest(nil), config.Default(), nil)

	hot := &client.Hot{
		Xid:   100,
		Frame: 200,
		Desired: client.Rect{X: 50, Y: 50, Width: 400, Height: 300},
		GTKFrameExtentsSet: true,
		GTKInsets:          client.Insets{Left: 10, Right: 10, Top: 20, Bottom: 20},
		Dirty:              client.DirtyGeom,
	}
	cold := &client.Cold{}

	require.NoError(t, f.Flush(hot, cold))
	require.Len(t, conn.configures, 2)
	assert.Equal(t, xproto.Window(200), conn.configures[0].win)
	assert.Equal(t, []uint32{40, 30, 400, 300}, conn.configures[0].vals)
	assert.Equal(t, xproto.Window(100), conn.configures[1].win)
	assert.Equal(t, []uint32{0, 0, 400, 300}, conn.configures[1].vals)

	assert.Equal(t, client.Dirty(0), hot.Dirty)

	// Second flush: nothing dirty, nothing emitted.
	before := len(conn.configures)
	require.NoError(t, f.Flush(hot, cold))
	assert.Equal(t, before, len(conn.configures), "idempotent flush must emit zero requests")
}

func TestFlushTitleOnlyWhenChanged(t *testing.T) {
	conn := &fakeConn{}
	f := flush.New(conn, atoms.NewForTest(nil), config.Default(), nil)

	hot := &client.Hot{Xid: 1, Dirty: client.DirtyTitle}
	cold := &client.Cold{BaseTitle: "hello", VisibleTitle: "hello"}

	require.NoError(t, f.Flush(hot, cold))
	assert.Equal(t, 0, conn.props, "visible name already matches, nothing to write")

	cold.BaseTitle = "world"
	hot.Dirty = client.DirtyTitle
	require.NoError(t, f.Flush(hot, cold))
	assert.Equal(t, 1, conn.props)
	assert.Equal(t, "world", cold.VisibleTitle)
}
