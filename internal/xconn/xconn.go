// Package xconn implements the XConn collaborator spec.md §6 names,
// backed by github.com/jezek/xgb and its xproto extension. It is the
// only package in this module that touches the wire; every other
// package depends on it (or a fake) through the narrow interfaces it
// or its callers declare.
package xconn

import (
	"sync"
	"sync/atomic"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/pkg/errors"
)

// Reply is the decoded result of a GetProperty request, the shape
// internal/propdecode consumes. A nil *Reply paired with a non-nil
// error models "X error in place of reply" (spec.md §7).
type Reply struct {
	Format uint8
	Type   xproto.Atom
	Value  []byte
}

// Cookie identifies one outstanding asynchronous request. Sequence is
// a per-connection counter that GetProperty assigns in issue order (not
// the X protocol's own sequence number); it is what CookieJar keys on.
type Cookie struct {
	Sequence uint32
}

// Conn wraps an xgb connection and tracks outstanding property-get
// cookies so replies can be collected out of band from the call that
// issued them, which is the whole point of CookieJar (spec.md §4.B).
type Conn struct {
	xc   *xgb.Conn
	root xproto.Window

	screenWidth, screenHeight uint16

	mu      sync.Mutex
	pending map[uint32]xproto.GetPropertyCookie

	nextSeq uint32
}

// Dial connects to the X server named by display (empty string means
// $DISPLAY) and returns a Conn positioned at the default screen root.
func Dial(display string) (*Conn, error) {
	xc, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, errors.Wrap(err, "dial X server")
	}
	screen := xproto.Setup(xc).DefaultScreen(xc)
	return &Conn{
		xc:           xc,
		root:         screen.Root,
		screenWidth:  screen.WidthInPixels,
		screenHeight: screen.HeightInPixels,
		pending:      make(map[uint32]xproto.GetPropertyCookie),
	}, nil
}

// Close releases the underlying connection.
func (c *Conn) Close() { c.xc.Close() }

// Root returns the screen root window.
func (c *Conn) Root() xproto.Window { return c.root }

// ScreenSize returns the default screen's pixel dimensions, as
// reported at connection setup (spec.md §4.H workarea computation;
// monitor-level geometry from RandR is an external collaborator, out
// of scope per spec.md §1).
func (c *Conn) ScreenSize() (width, height uint16) {
	return c.screenWidth, c.screenHeight
}

// FD returns the transport file descriptor, for the tick scheduler's
// central epoll wait (spec.md §5, §6).
func (c *Conn) FD() int { return c.xc.Conn().(interface{ FD() int }).FD() }

// InternAtom interns name, blocking for the reply. atoms.Init calls
// this once per atom at startup; it is the one
// XConn operation allowed to block synchronously because it only ever
// runs before the tick loop starts.
func (c *Conn) InternAtom(name string) (xproto.Atom, error) {
	reply, err := xproto.InternAtom(c.xc, false, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, errors.Wrapf(err, "intern atom %q", name)
	}
	return reply.Atom, nil
}

// ChangeProperty writes a property outright. The request has no reply;
// it is sent checked, so the call waits for the server's round trip
// and returns any X error.
func (c *Conn) ChangeProperty(win xproto.Window, prop, typ xproto.Atom, format uint8, data []byte) error {
	return xproto.ChangePropertyChecked(
		c.xc, xproto.PropModeReplace, win, prop, typ, format,
		uint32(len(data))/uint32(format/8), data,
	).Check()
}

// GetProperty issues an asynchronous property read and returns a
// Cookie the caller registers with CookieJar; the reply itself is
// collected later via Drain.
func (c *Conn) GetProperty(win xproto.Window, prop, typ xproto.Atom) Cookie {
	cookie := xproto.GetProperty(c.xc, false, win, prop, typ, 0, (1<<32)-1)
	seq := atomic.AddUint32(&c.nextSeq, 1)
	c.mu.Lock()
	c.pending[seq] = cookie
	c.mu.Unlock()
	return Cookie{Sequence: seq}
}

// Drain resolves up to one pending GetProperty cookie previously
// returned from GetProperty, blocking on its reply. CookieJar calls
// this once per registered slot each tick, bounded by its drain
// budget, so the "blocking" here is bounded to at most the per-tick
// cookie quota's worth of in-flight replies — no worse than the
// underlying protocol's own round trip.
func (c *Conn) Drain(seq uint32) (*Reply, error) {
	c.mu.Lock()
	cookie, ok := c.pending[seq]
	if ok {
		delete(c.pending, seq)
	}
	c.mu.Unlock()
	if !ok {
		return nil, errors.Errorf("xconn: no pending request for sequence %d", seq)
	}

	reply, err := cookie.Reply()
	if err != nil {
		return nil, err
	}
	if reply == nil {
		return nil, nil
	}
	return &Reply{Format: reply.Format, Type: reply.Type, Value: reply.Value}, nil
}

// GetGeometry returns a window's geometry, blocking. Phase-1 discovery
// calls this once per client, synchronously; it is not counted in
// PendingReplies.
func (c *Conn) GetGeometry(win xproto.Window) (x, y int16, w, h uint16, err error) {
	reply, err := xproto.GetGeometry(c.xc, xproto.Drawable(win)).Reply()
	if err != nil {
		return 0, 0, 0, 0, err
	}
	return reply.X, reply.Y, reply.Width, reply.Height, nil
}

// GetWindowAttributes returns a window's override-redirect bit and
// map state, blocking.
func (c *Conn) GetWindowAttributes(win xproto.Window) (overrideRedirect bool, mapped bool, err error) {
	reply, err := xproto.GetWindowAttributes(c.xc, win).Reply()
	if err != nil {
		return false, false, err
	}
	return reply.OverrideRedirect, reply.MapState != xproto.MapStateUnmapped, nil
}

// QueryTree returns win's children, blocking. Used once, at adoption.
func (c *Conn) QueryTree(win xproto.Window) ([]xproto.Window, error) {
	reply, err := xproto.QueryTree(c.xc, win).Reply()
	if err != nil {
		return nil, err
	}
	return reply.Children, nil
}

// ConfigureWindow issues a configure request with the given value
// mask and values, in xproto's mask-bit order.
func (c *Conn) ConfigureWindow(win xproto.Window, mask uint16, values []uint32) error {
	return xproto.ConfigureWindowChecked(c.xc, win, mask, values).Check()
}

// CreateWindow creates a frame window with the given geometry, depth,
// and visual, as an InputOutput child of the root.
func (c *Conn) CreateWindow(depth uint8, x, y int16, w, h uint16, visual xproto.Visualid, valueMask uint32, values []uint32) (xproto.Window, error) {
	win, err := xproto.NewWindowId(c.xc)
	if err != nil {
		return 0, err
	}
	err = xproto.CreateWindowChecked(
		c.xc, depth, win, c.root, x, y, w, h, 0,
		xproto.WindowClassInputOutput, visual, valueMask, values,
	).Check()
	if err != nil {
		return 0, err
	}
	return win, nil
}

// MapWindow, UnmapWindow, ReparentWindow, DestroyWindow are thin
// wrappers over the matching checked xproto requests; each waits for
// the server's round trip and returns any X error.
func (c *Conn) MapWindow(win xproto.Window) error   { return xproto.MapWindowChecked(c.xc, win).Check() }
func (c *Conn) UnmapWindow(win xproto.Window) error { return xproto.UnmapWindowChecked(c.xc, win).Check() }

func (c *Conn) ReparentWindow(win, parent xproto.Window, x, y int16) error {
	return xproto.ReparentWindowChecked(c.xc, win, parent, x, y).Check()
}

func (c *Conn) DestroyWindow(win xproto.Window) error {
	return xproto.DestroyWindowChecked(c.xc, win).Check()
}

// SetSelectionOwner claims a selection (e.g. WM_S0).
func (c *Conn) SetSelectionOwner(selection xproto.Atom, owner xproto.Window) error {
	return xproto.SetSelectionOwnerChecked(c.xc, owner, selection, xproto.TimeCurrentTime).Check()
}

// GetSelectionOwner returns the current owner of selection, or
// xproto.WindowNone if unowned.
func (c *Conn) GetSelectionOwner(selection xproto.Atom) (xproto.Window, error) {
	reply, err := xproto.GetSelectionOwner(c.xc, selection).Reply()
	if err != nil {
		return 0, err
	}
	return reply.Owner, nil
}

// ChangeWindowAttributes is used once, at acquisition, to select
// SubstructureRedirect|SubstructureNotify on the root.
func (c *Conn) ChangeWindowAttributes(win xproto.Window, mask uint32, values []uint32) error {
	return xproto.ChangeWindowAttributesChecked(c.xc, win, mask, values).Check()
}

// SendEvent forwards a raw, already-serialized event to dest.
func (c *Conn) SendEvent(dest xproto.Window, eventMask uint32, event []byte) error {
	return xproto.SendEventChecked(c.xc, false, dest, eventMask, string(event)).Check()
}

// GrabKey and GrabButton select input redirection for a keybinding
// resolver living outside the core (spec.md §1 scope).
func (c *Conn) GrabKey(win xproto.Window, modifiers uint16, key xproto.Keycode) error {
	return xproto.GrabKeyChecked(c.xc, true, win, modifiers, key, xproto.GrabModeAsync, xproto.GrabModeAsync).Check()
}

func (c *Conn) GrabButton(win xproto.Window, modifiers uint16, button xproto.Button) error {
	return xproto.GrabButtonChecked(
		c.xc, true, win,
		xproto.EventMaskButtonPress|xproto.EventMaskButtonRelease,
		xproto.GrabModeAsync, xproto.GrabModeAsync,
		xproto.WindowNone, xproto.CursorNone, button, modifiers,
	).Check()
}

// PollForEvent returns the next queued event without blocking, or nil
// if the queue is empty. A non-nil error means the connection died
// (spec.md §7 "Transport-fatal").
func (c *Conn) PollForEvent() (xgb.Event, error) {
	ev, err := c.xc.PollForEvent()
	if err != nil {
		return nil, err
	}
	return ev, nil
}
