package wm_test

import (
	"image"
	"testing"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jopamo/hxm/internal/atoms"
	"github.com/jopamo/hxm/internal/config"
	"github.com/jopamo/hxm/internal/wm"
	"github.com/jopamo/hxm/internal/xconn"
)

type noopPoller struct{}

func (noopPoller) Wait(pollImmediate bool) error { return nil }

type fakeConn struct {
	events []xgb.Event

	nextSeq   uint32
	propReply map[uint32]*xconn.Reply
	propErr   map[uint32]error

	nextWindow xproto.Window

	overrideRedirect bool
	geomW, geomH     uint16
	unmapped         map[xproto.Window]bool

	configures []xproto.Window
	mapped     []xproto.Window
	reparents  []xproto.Window
	destroyed  []xproto.Window
	props      []xproto.Atom
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		propReply:  make(map[uint32]*xconn.Reply),
		propErr:    make(map[uint32]error),
		nextWindow: 1000,
		geomW:      400,
		geomH:      300,
	}
}

func (f *fakeConn) GetGeometry(win xproto.Window) (x, y int16, w, h uint16, err error) {
	return 10, 10, f.geomW, f.geomH, nil
}

func (f *fakeConn) GetWindowAttributes(win xproto.Window) (overrideRedirect, mapped bool, err error) {
	return f.overrideRedirect, !f.unmapped[win], nil
}

func (f *fakeConn) GetProperty(win xproto.Window, prop, typ xproto.Atom) xconn.Cookie {
	f.nextSeq++
	seq := f.nextSeq
	// Every property request in this fake resolves to an empty-but-present
	// reply unless a test pre-seeds propReply/propErr for that sequence.
	if _, ok := f.propReply[seq]; !ok {
		if _, hasErr := f.propErr[seq]; !hasErr {
			f.propReply[seq] = &xconn.Reply{Format: 8, Value: nil}
		}
	}
	return xconn.Cookie{Sequence: seq}
}

func (f *fakeConn) Drain(seq uint32) (*xconn.Reply, error) {
	if err, ok := f.propErr[seq]; ok {
		return nil, err
	}
	return f.propReply[seq], nil
}

func (f *fakeConn) CreateWindow(depth uint8, x, y int16, w, h uint16, visual xproto.Visualid, valueMask uint32, values []uint32) (xproto.Window, error) {
	f.nextWindow++
	return f.nextWindow, nil
}

func (f *fakeConn) MapWindow(win xproto.Window) error {
	f.mapped = append(f.mapped, win)
	return nil
}

func (f *fakeConn) UnmapWindow(win xproto.Window) error { return nil }

func (f *fakeConn) ReparentWindow(win, parent xproto.Window, x, y int16) error {
	f.reparents = append(f.reparents, win)
	return nil
}

func (f *fakeConn) DestroyWindow(win xproto.Window) error {
	f.destroyed = append(f.destroyed, win)
	return nil
}

func (f *fakeConn) ConfigureWindow(win xproto.Window, mask uint16, values []uint32) error {
	f.configures = append(f.configures, win)
	return nil
}

func (f *fakeConn) ChangeProperty(win xproto.Window, prop, typ xproto.Atom, format uint8, data []byte) error {
	f.props = append(f.props, prop)
	return nil
}

func (f *fakeConn) QueryTree(win xproto.Window) ([]xproto.Window, error) { return nil, nil }

func (f *fakeConn) Root() xproto.Window { return 1 }

func (f *fakeConn) PollForEvent() (xgb.Event, error) {
	if len(f.events) == 0 {
		return nil, nil
	}
	ev := f.events[0]
	f.events = f.events[1:]
	return ev, nil
}

// A MapRequest followed by enough ticks to drain every Phase-1 reply
// should leave exactly one managed client, mapped and frame-attached,
// with the client list marked dirty and flushed.
func TestTickManagesClientThroughToMapped(t *testing.T) {
	conn := newFakeConn()
	conn.events = []xgb.Event{xproto.MapRequestEvent{Window: 50}}

	atomTable := atoms.NewForTest(nil)
	cfg := config.Default()
	sched := wm.New(conn, atomTable, cfg, noopPoller{}, image.Rect(0, 0, 1920, 1080), nil)

	require.NoError(t, sched.Tick())
	st := sched.Status()
	assert.Equal(t, 1, st.ManagedClients)
	assert.Equal(t, len(conn.propReply), st.OutstandingCookies, "Phase-1 property requests registered, not yet drained")

	require.NoError(t, sched.Tick())

	assert.Contains(t, conn.mapped, xproto.Window(50), "client window mapped")
	assert.True(t, len(conn.mapped) >= 2, "frame also mapped")
	assert.Contains(t, conn.props, atomTable.Atom("_NET_CLIENT_LIST"), "root publish ran after attach")
}

func TestTickSkipsOverrideRedirectWindows(t *testing.T) {
	conn := newFakeConn()
	conn.overrideRedirect = true
	conn.events = []xgb.Event{xproto.MapRequestEvent{Window: 60}}

	sched := wm.New(conn, atoms.NewForTest(nil), config.Default(), noopPoller{}, image.Rect(0, 0, 1920, 1080), nil)
	require.NoError(t, sched.Tick())

	assert.Equal(t, 0, sched.Status().ManagedClients)
}

func TestDestroyNotifyUnmanagesClient(t *testing.T) {
	conn := newFakeConn()
	conn.events = []xgb.Event{xproto.MapRequestEvent{Window: 70}}
	sched := wm.New(conn, atoms.NewForTest(nil), config.Default(), noopPoller{}, image.Rect(0, 0, 1920, 1080), nil)

	require.NoError(t, sched.Tick())
	require.Equal(t, 1, sched.Status().ManagedClients)

	conn.events = []xgb.Event{xproto.DestroyNotifyEvent{Window: 70}}
	require.NoError(t, sched.Tick())
	assert.Equal(t, 0, sched.Status().ManagedClients)
}

// A PropertyNotify on an already-managed client must re-issue a
// GetProperty for the changed atom rather than silently dropping it.
func TestPropertyNotifyRefreshesChangedAtom(t *testing.T) {
	conn := newFakeConn()
	conn.events = []xgb.Event{xproto.MapRequestEvent{Window: 80}}
	atomTable := atoms.NewForTest(nil)
	sched := wm.New(conn, atomTable, config.Default(), noopPoller{}, image.Rect(0, 0, 1920, 1080), nil)

	require.NoError(t, sched.Tick())
	require.NoError(t, sched.Tick())
	require.Equal(t, 1, sched.Status().ManagedClients)

	seqBefore := conn.nextSeq
	conn.events = []xgb.Event{xproto.PropertyNotifyEvent{
		Window: 80, Atom: atomTable.Atom("_NET_WM_NAME"),
	}}
	require.NoError(t, sched.Tick())
	assert.Greater(t, conn.nextSeq, seqBefore, "refresh issued a new GetProperty")
}

// Two clients reaching Mapped must produce a restack ConfigureWindow
// pass across both frames.
func TestTwoClientsRestackAfterBothMapped(t *testing.T) {
	conn := newFakeConn()
	conn.events = []xgb.Event{xproto.MapRequestEvent{Window: 90}}
	sched := wm.New(conn, atoms.NewForTest(nil), config.Default(), noopPoller{}, image.Rect(0, 0, 1920, 1080), nil)
	require.NoError(t, sched.Tick())
	require.NoError(t, sched.Tick())

	conn.events = []xgb.Event{xproto.MapRequestEvent{Window: 91}}
	require.NoError(t, sched.Tick())
	require.NoError(t, sched.Tick())

	require.Equal(t, 2, sched.Status().ManagedClients)
	assert.NotEmpty(t, conn.configures, "restack issued ConfigureWindow calls")
}

// Adopt must manage an already-mapped pre-existing window, but skip
// one that GetWindowAttributes reports as unmapped.
func TestAdoptManagesOnlyMappedChildren(t *testing.T) {
	conn := newFakeConn()
	conn.unmapped = map[xproto.Window]bool{201: true}
	sched := wm.New(conn, atoms.NewForTest(nil), config.Default(), noopPoller{}, image.Rect(0, 0, 1920, 1080), nil)

	sched.Adopt([]xproto.Window{200, 201})
	assert.Equal(t, 1, sched.Status().ManagedClients)
}

// A WM_CHANGE_STATE request asking for IconicState must unmap the
// client while setting IgnoreUnmap, so the resulting UnmapNotify does
// not unmanage it.
func TestChangeStateIconifiesWithoutUnmanaging(t *testing.T) {
	conn := newFakeConn()
	conn.events = []xgb.Event{xproto.MapRequestEvent{Window: 95}}
	atomTable := atoms.NewForTest(nil)
	sched := wm.New(conn, atomTable, config.Default(), noopPoller{}, image.Rect(0, 0, 1920, 1080), nil)
	require.NoError(t, sched.Tick())
	require.NoError(t, sched.Tick())
	require.Equal(t, 1, sched.Status().ManagedClients)

	conn.events = []xgb.Event{xproto.ClientMessageEvent{
		Window: 95,
		Type:   atomTable.Atom("WM_CHANGE_STATE"),
		Data:   xproto.ClientMessageDataUnion{Data32: []uint32{3, 0, 0}},
	}}
	require.NoError(t, sched.Tick())

	assert.Equal(t, 1, sched.Status().ManagedClients, "iconify must not unmanage")
	assert.Contains(t, conn.props, atomTable.Atom("WM_STATE"), "WM_STATE written back")
}
