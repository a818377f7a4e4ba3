// Package wm implements the Tick Scheduler: the orchestrator that
// interleaves event ingest, cookie-jar drain, per-bucket dispatch, and
// dirty flush into the one-iteration loop spec.md §4.I defines, and
// wires every other internal package together to do it.
package wm

import (
	"image"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"go.uber.org/zap"

	"github.com/jopamo/hxm/internal/arena"
	"github.com/jopamo/hxm/internal/atoms"
	"github.com/jopamo/hxm/internal/client"
	"github.com/jopamo/hxm/internal/config"
	"github.com/jopamo/hxm/internal/cookiejar"
	"github.com/jopamo/hxm/internal/events"
	"github.com/jopamo/hxm/internal/flush"
	"github.com/jopamo/hxm/internal/handle"
	"github.com/jopamo/hxm/internal/propdecode"
	"github.com/jopamo/hxm/internal/rootpub"
	"github.com/jopamo/hxm/internal/xconn"
)

// XConn is the full transport surface the scheduler needs, the union
// of what every internal package's narrow XConn interface asks for
// plus the asynchronous property read and the event source (spec.md §6).
type XConn interface {
	GetGeometry(win xproto.Window) (x, y int16, w, h uint16, err error)
	GetWindowAttributes(win xproto.Window) (overrideRedirect, mapped bool, err error)
	GetProperty(win xproto.Window, prop, typ xproto.Atom) xconn.Cookie
	Drain(seq uint32) (*xconn.Reply, error)

	CreateWindow(depth uint8, x, y int16, w, h uint16, visual xproto.Visualid, valueMask uint32, values []uint32) (xproto.Window, error)
	MapWindow(win xproto.Window) error
	UnmapWindow(win xproto.Window) error
	ReparentWindow(win, parent xproto.Window, x, y int16) error
	DestroyWindow(win xproto.Window) error
	ConfigureWindow(win xproto.Window, mask uint16, values []uint32) error
	ChangeProperty(win xproto.Window, prop, typ xproto.Atom, format uint8, data []byte) error
	QueryTree(win xproto.Window) ([]xproto.Window, error)

	Root() xproto.Window
	PollForEvent() (xgb.Event, error)
}

// Status is a point-in-time snapshot, useful for diagnostics and
// tests; it has no analogue of its own in spec.md but follows
// naturally from the state every tick already tracks.
type Status struct {
	Tick               uint64
	ManagedClients     int
	OutstandingCookies int
	PendingFree        int
}

// Scheduler is the Tick Scheduler (spec.md §4.I).
type Scheduler struct {
	conn  XConn
	atoms *atoms.Table
	cfg   config.Config
	log   *zap.Logger

	poller Poller
	screen image.Rectangle

	table     *client.Table
	jar       *cookiejar.Jar
	decoder   *propdecode.Decoder
	flusher   *flush.Flusher
	publisher *rootpub.Publisher

	buckets   *events.Buckets
	tickArena *arena.Tick

	rootDirty     rootpub.Dirty
	pendingFree   map[handle.Handle]bool
	restackNeeded bool

	tick uint64
}

// New returns a Scheduler wired to conn, with screen as the full
// screen rect RootPublisher computes the workarea against.
func New(conn XConn, atomTable *atoms.Table, cfg config.Config, poller Poller, screen image.Rectangle, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		conn:   conn,
		atoms:  atomTable,
		cfg:    cfg,
		log:    log,
		poller: poller,
		screen: screen,

		table:     client.NewTable(log),
		jar:       cookiejar.New(log),
		decoder:   propdecode.New(atomTable, cfg, log),
		flusher:   flush.New(conn, atomTable, cfg, log),
		publisher: rootpub.New(conn, atomTable, cfg, log),

		buckets:     events.New(),
		tickArena:   arena.NewTick(4096),
		pendingFree: make(map[handle.Handle]bool),

		// Desktop metadata and the workarea have no per-client trigger
		// at startup, so seed them dirty for the first flush (spec.md
		// §4.H).
		rootDirty: rootpub.DirtyDesktops | rootpub.DirtyWorkarea,
	}
}

// Status reports the current snapshot.
func (s *Scheduler) Status() Status {
	return Status{
		Tick:               s.tick,
		ManagedClients:     s.table.Len(),
		OutstandingCookies: s.jar.Len(),
		PendingFree:        len(s.pendingFree),
	}
}

// Tick runs exactly one iteration of spec.md §4.I's six steps. A
// non-nil error is transport-fatal (spec.md §7) and the caller must
// call Shutdown and exit.
func (s *Scheduler) Tick() error {
	if err := s.poller.Wait(s.buckets.PollImmediate); err != nil {
		return err
	}
	if err := s.buckets.Ingest(s.conn.PollForEvent, s.cfg.MaxEventsPerTick); err != nil {
		return err
	}

	deliveries := s.jar.Drain(s.cfg.CookieDrainBudget, s.table.IsManageable, s.replyFunc)
	for _, d := range deliveries {
		s.handleDelivery(d)
	}
	s.sweepPendingFree()

	s.processBuckets()

	s.flushDirty()

	s.buckets.Reset()
	s.tickArena.Reset()
	s.tick++
	return nil
}

// Shutdown handles the transport-fatal path (spec.md §7): every
// managed client is reparented back to the root before its frame is
// destroyed, so applications are not left orphaned inside a dead frame.
func (s *Scheduler) Shutdown() {
	var handles []handle.Handle
	s.table.Each(func(h handle.Handle, hot *client.Hot, _ *client.Cold) {
		handles = append(handles, h)
	})
	for _, h := range handles {
		hot, _, ok := s.table.Lookup(h)
		if !ok {
			continue
		}
		_ = s.conn.ReparentWindow(hot.Xid, s.conn.Root(), int16(hot.Server.X), int16(hot.Server.Y))
		if hot.Frame != 0 {
			_ = s.conn.DestroyWindow(hot.Frame)
		}
		s.table.Unmanage(h)
		s.table.Free(h)
	}
}

// Adopt scans the windows already present under the root at startup
// and begins managing any that are eligible, per spec.md §4.D
// ("Created on MapRequest or on adoption at startup" —
// override-redirect and unmapped children are skipped during
// adoption). Call once, after Acquire and before the first Tick.
func (s *Scheduler) Adopt(children []xproto.Window) {
	for _, xid := range children {
		if _, ok := s.table.ByXid(xid); ok {
			continue
		}
		_, mapped, err := s.conn.GetWindowAttributes(xid)
		if err != nil || !mapped {
			continue
		}
		s.beginManage(xid)
	}
}

func (s *Scheduler) replyFunc(seq uint32) (*cookiejar.DrainedReply, error) {
	r, err := s.conn.Drain(seq)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, nil
	}
	return &cookiejar.DrainedReply{Format: r.Format, Type: r.Type, Value: r.Value}, nil
}

func (s *Scheduler) handleDelivery(d cookiejar.Delivery) {
	if d.Dropped {
		return
	}
	hot, cold, ok := s.table.Lookup(d.Slot.Client)
	if !ok {
		return
	}

	switch d.Slot.Kind {
	case cookiejar.KindGetProperty:
		atom, _ := cookiejar.PropertyAtomWindow(d.Slot.Data)
		var reply *propdecode.Reply
		if d.Reply != nil {
			reply = &propdecode.Reply{Format: d.Reply.Format, Type: d.Reply.Type, Value: d.Reply.Value}
		}
		s.decoder.DecodeProperty(hot, cold, atom, reply, d.Err)

		if atom == s.atoms.Atom("_NET_WM_STRUT_PARTIAL") {
			s.rootDirty |= rootpub.DirtyWorkarea
		}

		if atom == s.atoms.Atom("WM_TRANSIENT_FOR") && reply != nil {
			if targetXid, okTarget := propdecode.TransientForWindow(reply); okTarget {
				if th, okHandle := s.table.ByXid(targetXid); okHandle {
					hot.TransientFor = th
				}
			}
		}
	}

	if s.table.DecPendingReplies(d.Slot.Client) {
		s.finishManage(d.Slot.Client)
	}
}

// sweepPendingFree frees any handle whose unmanage was deferred for
// outstanding cookies, once the jar confirms none remain (spec.md §3
// invariant 6).
func (s *Scheduler) sweepPendingFree() {
	for h := range s.pendingFree {
		if !s.jar.HasOutstanding(h) {
			s.table.Free(h)
			delete(s.pendingFree, h)
		}
	}
}

func (s *Scheduler) processBuckets() {
	for _, xid := range s.buckets.MapRequests {
		if _, ok := s.table.ByXid(xid); !ok {
			s.beginManage(xid)
		}
	}

	for xid := range s.buckets.Destroyed {
		if h, ok := s.table.ByXid(xid); ok {
			s.table.Destroy(h)
			s.unmanage(h)
		}
	}

	for xid := range s.buckets.Unmapped {
		if h, ok := s.table.ByXid(xid); ok {
			if s.table.Unmap(h) {
				s.unmanage(h)
			}
		}
	}

	for xid, cr := range s.buckets.Configure {
		if h, ok := s.table.ByXid(xid); ok {
			hot, _, okLookup := s.table.Lookup(h)
			if okLookup {
				hot.ApplyConfigureRequest(int32(cr.X), int32(cr.Y), uint32(cr.Width), uint32(cr.Height))
			}
			continue
		}
		// Unknown client window: direct pass-through (spec.md §4.D).
		_ = s.conn.ConfigureWindow(xid, cr.ValueMask, configureValues(cr))
	}

	for _, pe := range s.buckets.Property {
		if h, ok := s.table.ByXid(pe.Window); ok {
			s.requestPropertyRefresh(h, pe.Window, pe.Atom)
		}
	}

	for _, cm := range s.buckets.ClientMessages {
		s.handleClientMessage(cm)
	}
}

// requestPropertyRefresh re-reads a single property changed by a
// PropertyNotify on an already-managed client (spec.md §4.I step 4
// "properties" dispatcher). Unlike Phase-1 discovery this never
// touches PendingReplies: the client is already Done, so there is no
// manage-completion threshold waiting on it.
func (s *Scheduler) requestPropertyRefresh(h handle.Handle, xid xproto.Window, atom xproto.Atom) {
	cookie := s.conn.GetProperty(xid, atom, xproto.AtomNone)
	s.jar.Register(cookie.Sequence, h, cookiejar.KindGetProperty, cookiejar.PropertyData(atom, xid))
}

func configureValues(cr events.ConfigureRequestEvent) []uint32 {
	var values []uint32
	if cr.ValueMask&xproto.ConfigWindowX != 0 {
		values = append(values, uint32(int32(cr.X)))
	}
	if cr.ValueMask&xproto.ConfigWindowY != 0 {
		values = append(values, uint32(int32(cr.Y)))
	}
	if cr.ValueMask&xproto.ConfigWindowWidth != 0 {
		values = append(values, uint32(cr.Width))
	}
	if cr.ValueMask&xproto.ConfigWindowHeight != 0 {
		values = append(values, uint32(cr.Height))
	}
	if cr.ValueMask&xproto.ConfigWindowBorderWidth != 0 {
		values = append(values, uint32(cr.BorderWidth))
	}
	return values
}

func (s *Scheduler) handleClientMessage(cm xproto.ClientMessageEvent) {
	switch cm.Type {
	case s.atoms.Atom("_NET_WM_STATE"):
		s.handleNetWMState(cm)
	case s.atoms.Atom("WM_CHANGE_STATE"):
		s.handleChangeState(cm)
	}
}

func (s *Scheduler) handleNetWMState(cm xproto.ClientMessageEvent) {
	h, ok := s.table.ByXid(cm.Window)
	if !ok {
		return
	}
	hot, _, ok := s.table.Lookup(h)
	if !ok {
		return
	}
	data := cm.Data.Data32
	action := data[0]
	atom1 := xproto.Atom(data[1])
	atom2 := xproto.Atom(data[2])
	propdecode.ClientMessageStateAction(s.atoms, hot, action, atom1, atom2)
	hot.Dirty |= client.DirtyState

	if newLayer := layerForFlags(hot.BaseLayer, hot.Flags); s.table.SetLayer(h, newLayer) {
		hot.Dirty |= client.DirtyStacking
		s.restackNeeded = true
	}
}

// handleChangeState implements ICCCM's WM_CHANGE_STATE client request,
// the client asking to be iconified (spec.md §4.D "Per-client
// properties written back" lists WM_STATE). IgnoreUnmap is bumped
// first so the UnmapNotify this generates is recognized as our own
// and does not trigger an unmanage.
func (s *Scheduler) handleChangeState(cm xproto.ClientMessageEvent) {
	h, ok := s.table.ByXid(cm.Window)
	if !ok {
		return
	}
	hot, _, ok := s.table.Lookup(h)
	if !ok || cm.Data.Data32[0] != wmStateIconic {
		return
	}
	hot.IgnoreUnmap++
	if err := s.conn.UnmapWindow(hot.Xid); err != nil {
		s.log.Warn("iconify unmap failed", zap.Uint32("xid", uint32(hot.Xid)), zap.Error(err))
		return
	}
	if err := s.writeWMState(hot, wmStateIconic); err != nil {
		s.log.Warn("write WM_STATE failed", zap.Uint32("xid", uint32(hot.Xid)), zap.Error(err))
	}
}

// ICCCM WM_STATE values (ICCCM §4.1.3.1).
const (
	wmStateNormal = 1
	wmStateIconic = 3
)

// writeWMState writes back the ICCCM WM_STATE property: a CARD32 state
// followed by the icon window (always None here, since frames own
// iconification, not a separate icon window).
func (s *Scheduler) writeWMState(hot *client.Hot, state uint32) error {
	data := make([]byte, 8)
	putU32(data, state)
	return s.conn.ChangeProperty(hot.Xid, s.atoms.Atom("WM_STATE"), s.atoms.Atom("WM_STATE"), 32, data)
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// layerForFlags returns the effective layer for a client with base
// and flags: FlagFullscreen always wins the layer, regardless of the
// window-type-derived base (spec.md §4.E, §4.F).
func layerForFlags(base client.Layer, flags client.Flags) client.Layer {
	if flags&client.FlagFullscreen != 0 {
		return client.LayerFullscreen
	}
	return base
}

// restack issues one ConfigureWindow stack-mode/sibling chain across
// every managed frame, bottom layer to top, then bottom to top within
// each layer (spec.md §4.E step 4 "restack inside the layer, then
// restack layer across screen"). Called once per tick when any client
// entered, left, or moved layers.
func (s *Scheduler) restack() {
	var prevFrame xproto.Window
	for _, h := range s.table.AllLayersBottomToTop() {
		hot, _, ok := s.table.Lookup(h)
		if !ok || hot.Frame == 0 {
			continue
		}
		var err error
		if prevFrame == 0 {
			err = s.conn.ConfigureWindow(hot.Frame, xproto.ConfigWindowStackMode,
				[]uint32{uint32(xproto.StackModeAbove)})
		} else {
			err = s.conn.ConfigureWindow(hot.Frame, xproto.ConfigWindowSibling|xproto.ConfigWindowStackMode,
				[]uint32{uint32(prevFrame), uint32(xproto.StackModeAbove)})
		}
		if err != nil {
			s.log.Warn("restack failed", zap.Uint32("xid", uint32(hot.Xid)), zap.Error(err))
		}
		prevFrame = hot.Frame
		hot.Dirty &^= client.DirtyStacking
	}
}

// beginManage starts Phase-1 discovery for a freshly mapped client
// (spec.md §4.D). Override-redirect windows are skipped; the geometry
// query is issued synchronously (cheap, one round trip, and not part
// of the asynchronous property set CookieJar correlates) while every
// property fetch goes through the jar.
func (s *Scheduler) beginManage(xid xproto.Window) {
	overrideRedirect, _, err := s.conn.GetWindowAttributes(xid)
	if err != nil || overrideRedirect {
		return
	}

	h, hot, _ := s.table.Begin(xid)

	if x, y, w, ht, errGeom := s.conn.GetGeometry(xid); errGeom == nil {
		s.decoder.DecodeGetGeometry(hot, int32(x), int32(y), w, ht)
	}

	for _, name := range phase1Properties {
		s.requestProperty(h, xid, name)
	}
}

var phase1Properties = []string{
	"WM_CLASS",
	"WM_NAME",
	"_NET_WM_NAME",
	"_NET_WM_STRUT_PARTIAL",
	"_NET_WM_WINDOW_TYPE",
	"_GTK_FRAME_EXTENTS",
	"_NET_WM_STATE",
	"WM_TRANSIENT_FOR",
	"_NET_WM_PID",
	"WM_HINTS",
	"WM_NORMAL_HINTS",
	"WM_PROTOCOLS",
	"_NET_WM_USER_TIME",
	"_NET_WM_ICON",
}

func (s *Scheduler) requestProperty(h handle.Handle, xid xproto.Window, atomName string) {
	atom := s.atoms.Atom(atomName)
	cookie := s.conn.GetProperty(xid, atom, xproto.AtomNone)
	s.jar.Register(cookie.Sequence, h, cookiejar.KindGetProperty, cookiejar.PropertyData(atom, xid))
	s.table.IncPendingReplies(h)
}

// finishManage runs once Phase1's pending_replies reaches zero
// (spec.md §4.D): assign the initial layer, create the frame, reparent
// the client into it, map the client and then the frame, then advance
// to Mapped/Done.
func (s *Scheduler) finishManage(h handle.Handle) {
	hot, _, ok := s.table.Lookup(h)
	if !ok {
		return
	}

	hot.BaseLayer = layerForType(hot.Type)
	hot.Layer = hot.BaseLayer

	frame, err := s.conn.CreateWindow(
		hot.Depth, int16(hot.Desired.X), int16(hot.Desired.Y),
		uint16(hot.Desired.Width), uint16(hot.Desired.Height),
		hot.VisualID, 0, nil,
	)
	if err != nil {
		s.log.Warn("create frame failed", zap.Uint32("xid", uint32(hot.Xid)), zap.Error(err))
		return
	}
	if err := s.conn.ReparentWindow(hot.Xid, frame, 0, 0); err != nil {
		s.log.Warn("reparent into frame failed", zap.Uint32("xid", uint32(hot.Xid)), zap.Error(err))
		return
	}

	// client first, frame second (spec.md §4.D).
	if err := s.conn.MapWindow(hot.Xid); err != nil {
		return
	}
	if err := s.conn.MapWindow(frame); err != nil {
		return
	}

	s.table.AttachFrame(h, frame)
	hot.Dirty |= client.DirtyGeom | client.DirtyFrameExtents | client.DirtyStacking
	s.rootDirty |= rootpub.DirtyClientList | rootpub.DirtyActiveWindow
	s.restackNeeded = true

	if err := s.writeWMState(hot, wmStateNormal); err != nil {
		s.log.Warn("write WM_STATE failed", zap.Uint32("xid", uint32(hot.Xid)), zap.Error(err))
	}
}

func layerForType(t client.WindowType) client.Layer {
	switch t {
	case client.TypeDesktop:
		return client.LayerDesktop
	case client.TypeDock:
		return client.LayerDock
	default:
		return client.LayerNormal
	}
}

// unmanage detaches h immediately; the slot is freed now unless the
// jar still has outstanding cookies for it, in which case it is
// orphaned and deferred to sweepPendingFree (spec.md §3 invariant 6,
// §4.B, §4.D).
func (s *Scheduler) unmanage(h handle.Handle) {
	s.table.Unmanage(h)
	s.rootDirty |= rootpub.DirtyClientList | rootpub.DirtyActiveWindow
	s.restackNeeded = true

	if s.jar.HasOutstanding(h) {
		s.jar.Orphan(h)
		s.pendingFree[h] = true
		return
	}
	s.table.Free(h)
}

func (s *Scheduler) flushDirty() {
	s.table.Each(func(_ handle.Handle, hot *client.Hot, cold *client.Cold) {
		if hot.Dirty == 0 {
			return
		}
		if err := s.flusher.Flush(hot, cold); err != nil {
			s.log.Warn("flush failed", zap.Uint32("xid", uint32(hot.Xid)), zap.Error(err))
		}
	})

	if s.restackNeeded {
		s.restack()
		s.restackNeeded = false
	}

	if s.rootDirty != 0 {
		focus := s.table.FocusFront()
		if err := s.publisher.Publish(s.rootDirty, s.table, focus, s.screen); err != nil {
			s.log.Warn("root publish failed", zap.Error(err))
		}
		s.rootDirty = 0
	}
}
