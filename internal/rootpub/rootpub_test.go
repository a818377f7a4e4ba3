package rootpub_test

import (
	"image"
	"testing"

	"github.com/jezek/xgb/xproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jopamo/hxm/internal/atoms"
	"github.com/jopamo/hxm/internal/client"
	"github.com/jopamo/hxm/internal/config"
	"github.com/jopamo/hxm/internal/handle"
	"github.com/jopamo/hxm/internal/rootpub"
)

type propWrite struct {
	win  xproto.Window
	prop xproto.Atom
	typ  xproto.Atom
	data []byte
}

type fakeConn struct {
	writes []propWrite
}

func (f *fakeConn) ChangeProperty(win xproto.Window, prop, typ xproto.Atom, format uint8, data []byte) error {
	f.writes = append(f.writes, propWrite{win, prop, typ, append([]byte(nil), data...)})
	return nil
}

func (f *fakeConn) Root() xproto.Window { return 1 }

func newManagedClient(t *testing.T, tbl *client.Table, xid xproto.Window) handle.Handle {
	t.Helper()
	h, hot, _ := tbl.Begin(xid)
	tbl.AttachFrame(h, xid+1000)
	_ = hot
	return h
}

func TestClientListOrderingAndStacking(t *testing.T) {
	tbl := client.NewTable(nil)
	h1 := newManagedClient(t, tbl, 10)
	h2 := newManagedClient(t, tbl, 20)
	_ = h1
	_ = h2

	conn := &fakeConn{}
	atomTable := atoms.NewForTest(nil)
	pub := rootpub.New(conn, atomTable, config.Default(), nil)

	require.NoError(t, pub.Publish(rootpub.DirtyClientList, tbl, handle.Invalid, image.Rect(0, 0, 1920, 1080)))
	require.Len(t, conn.writes, 2)

	assert.Equal(t, atomTable.Atom("_NET_CLIENT_LIST"), conn.writes[0].prop)
	assert.Equal(t, []byte{10, 0, 0, 0, 20, 0, 0, 0}, conn.writes[0].data)

	assert.Equal(t, atomTable.Atom("_NET_CLIENT_LIST_STACKING"), conn.writes[1].prop)
	assert.Equal(t, []byte{10, 0, 0, 0, 20, 0, 0, 0}, conn.writes[1].data)
}

func TestActiveWindowNoneWhenNoFocus(t *testing.T) {
	tbl := client.NewTable(nil)
	conn := &fakeConn{}
	pub := rootpub.New(conn, atoms.NewForTest(nil), config.Default(), nil)

	require.NoError(t, pub.Publish(rootpub.DirtyActiveWindow, tbl, handle.Invalid, image.Rect(0, 0, 1920, 1080)))
	require.Len(t, conn.writes, 1)
	assert.Equal(t, []byte{0, 0, 0, 0}, conn.writes[0].data)
}

func TestActiveWindowReflectsFocusFront(t *testing.T) {
	tbl := client.NewTable(nil)
	_ = newManagedClient(t, tbl, 10)
	h2 := newManagedClient(t, tbl, 20)

	conn := &fakeConn{}
	pub := rootpub.New(conn, atoms.NewForTest(nil), config.Default(), nil)

	require.NoError(t, pub.Publish(rootpub.DirtyActiveWindow, tbl, h2, image.Rect(0, 0, 1920, 1080)))
	require.Len(t, conn.writes, 1)
	assert.Equal(t, []byte{20, 0, 0, 0}, conn.writes[0].data)
}

// property 7: a rejected (invalid) strut leaves the workarea equal to
// the full screen, since ComputeWorkarea only folds in Struts.Valid
// entries.
func TestWorkareaIgnoresInvalidStruts(t *testing.T) {
	tbl := client.NewTable(nil)
	h := newManagedClient(t, tbl, 10)
	_, cold, ok := tbl.Lookup(h)
	require.True(t, ok)
	cold.Struts = client.StrutPartial{Valid: false, Left: 999}

	screen := image.Rect(0, 0, 1920, 1080)
	area := rootpub.ComputeWorkarea(tbl, screen)
	assert.Equal(t, screen, area)
}

func TestWorkareaShrinksForValidStrut(t *testing.T) {
	tbl := client.NewTable(nil)
	h := newManagedClient(t, tbl, 10)
	_, cold, ok := tbl.Lookup(h)
	require.True(t, ok)
	cold.Struts = client.StrutPartial{Valid: true, Top: 30}

	screen := image.Rect(0, 0, 1920, 1080)
	area := rootpub.ComputeWorkarea(tbl, screen)
	assert.Equal(t, 30, area.Min.Y)
	assert.Equal(t, 1080, area.Max.Y)
}

func TestDesktopsPublishesNamesAndCounts(t *testing.T) {
	tbl := client.NewTable(nil)
	conn := &fakeConn{}
	cfg := config.Default()
	atomTable := atoms.NewForTest(nil)
	pub := rootpub.New(conn, atomTable, cfg, nil)

	require.NoError(t, pub.Publish(rootpub.DirtyDesktops, tbl, handle.Invalid, image.Rect(0, 0, 1920, 1080)))

	var names []byte
	for _, w := range conn.writes {
		if w.prop == atomTable.Atom("_NET_DESKTOP_NAMES") {
			names = w.data
		}
	}
	require.NotNil(t, names)
	assert.Equal(t, "1\x002\x003\x004\x00", string(names))

	var geometry []byte
	for _, w := range conn.writes {
		if w.prop == atomTable.Atom("_NET_DESKTOP_GEOMETRY") {
			geometry = w.data
		}
	}
	require.NotNil(t, geometry)
	assert.Equal(t, []byte{0x80, 0x07, 0, 0, 0x38, 0x04, 0, 0}, geometry, "1920x1080 little-endian")
}
