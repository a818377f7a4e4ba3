// Package rootpub writes the aggregate root properties the window
// manager publishes once per tick when any root-dirty bit is set
// (spec.md §4.H).
package rootpub

import (
	"image"

	"github.com/jezek/xgb/xproto"
	"go.uber.org/zap"

	"github.com/jopamo/hxm/internal/atoms"
	"github.com/jopamo/hxm/internal/client"
	"github.com/jopamo/hxm/internal/config"
	"github.com/jopamo/hxm/internal/handle"
)

// Dirty is the root-level dirty bitset (spec.md §4.H).
type Dirty uint32

const (
	DirtyClientList Dirty = 1 << iota
	DirtyActiveWindow
	DirtyWorkarea
	DirtyDesktops
)

// XConn is the slice of the transport RootPublisher needs.
type XConn interface {
	ChangeProperty(win xproto.Window, prop, typ xproto.Atom, format uint8, data []byte) error
	Root() xproto.Window
}

// Table is the slice of client.Table RootPublisher reads from.
type Table interface {
	Each(func(handle.Handle, *client.Hot, *client.Cold))
	AllLayersBottomToTop() []handle.Handle
	Lookup(handle.Handle) (*client.Hot, *client.Cold, bool)
}

// Publisher writes aggregate root properties.
type Publisher struct {
	conn  XConn
	atoms *atoms.Table
	cfg   config.Config
	log   *zap.Logger
}

// New returns a Publisher.
func New(conn XConn, atomTable *atoms.Table, cfg config.Config, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{conn: conn, atoms: atomTable, cfg: cfg, log: log}
}

// Publish writes every property named by dirty. focus is the
// currently focused client's handle (handle.Invalid for none); screen
// is the full screen rect, used to compute the workarea.
func (p *Publisher) Publish(dirty Dirty, table Table, focus handle.Handle, screen image.Rectangle) error {
	if dirty&DirtyClientList != 0 {
		if err := p.publishClientList(table); err != nil {
			return err
		}
	}
	if dirty&DirtyActiveWindow != 0 {
		if err := p.publishActiveWindow(table, focus); err != nil {
			return err
		}
	}
	if dirty&DirtyWorkarea != 0 {
		if err := p.publishWorkarea(table, screen); err != nil {
			return err
		}
	}
	if dirty&DirtyDesktops != 0 {
		if err := p.publishDesktops(screen); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) publishClientList(table Table) error {
	var mapOrder []xproto.Window
	table.Each(func(h handle.Handle, hot *client.Hot, _ *client.Cold) {
		mapOrder = append(mapOrder, hot.Xid)
	})
	if err := p.conn.ChangeProperty(p.conn.Root(), p.atoms.Atom("_NET_CLIENT_LIST"), xproto.AtomWindow, 32, windowList(mapOrder)); err != nil {
		return err
	}

	var stacking []xproto.Window
	for _, h := range table.AllLayersBottomToTop() {
		if hot, _, ok := table.Lookup(h); ok {
			stacking = append(stacking, hot.Xid)
		}
	}
	return p.conn.ChangeProperty(p.conn.Root(), p.atoms.Atom("_NET_CLIENT_LIST_STACKING"), xproto.AtomWindow, 32, windowList(stacking))
}

func (p *Publisher) publishActiveWindow(table Table, focus handle.Handle) error {
	var xid xproto.Window
	if hot, _, ok := table.Lookup(focus); ok {
		xid = hot.Xid
	}
	return p.conn.ChangeProperty(p.conn.Root(), p.atoms.Atom("_NET_ACTIVE_WINDOW"), xproto.AtomWindow, 32, windowList([]xproto.Window{xid}))
}

// ComputeWorkarea returns screen minus the union of every client's
// valid strut reservation, per desktop (spec.md §4.F, §4.H, §8
// property 7). Every desktop gets the same value in this
// implementation, since struts are not yet modeled per-desktop.
func ComputeWorkarea(table Table, screen image.Rectangle) image.Rectangle {
	area := screen
	table.Each(func(h handle.Handle, hot *client.Hot, cold *client.Cold) {
		if !cold.Struts.Valid {
			return
		}
		s := cold.Struts
		area.Min.X = maxInt(area.Min.X, int(s.Left))
		area.Max.X = minInt(area.Max.X, screen.Max.X-int(s.Right))
		area.Min.Y = maxInt(area.Min.Y, int(s.Top))
		area.Max.Y = minInt(area.Max.Y, screen.Max.Y-int(s.Bottom))
	})
	return area
}

func (p *Publisher) publishWorkarea(table Table, screen image.Rectangle) error {
	area := ComputeWorkarea(table, screen)
	data := make([]byte, 16*p.cfg.NumberOfDesktops)
	for d := uint32(0); d < p.cfg.NumberOfDesktops; d++ {
		off := d * 16
		putU32(data[off:], uint32(area.Min.X))
		putU32(data[off+4:], uint32(area.Min.Y))
		putU32(data[off+8:], uint32(area.Dx()))
		putU32(data[off+12:], uint32(area.Dy()))
	}
	return p.conn.ChangeProperty(p.conn.Root(), p.atoms.Atom("_NET_WORKAREA"), xproto.AtomCardinal, 32, data)
}

func (p *Publisher) publishDesktops(screen image.Rectangle) error {
	n := p.cfg.NumberOfDesktops
	if err := p.conn.ChangeProperty(p.conn.Root(), p.atoms.Atom("_NET_NUMBER_OF_DESKTOPS"), xproto.AtomCardinal, 32, u32One(n)); err != nil {
		return err
	}
	if err := p.conn.ChangeProperty(p.conn.Root(), p.atoms.Atom("_NET_CURRENT_DESKTOP"), xproto.AtomCardinal, 32, u32One(0)); err != nil {
		return err
	}
	names := make([]byte, 0, 32)
	for _, name := range p.cfg.DesktopNames {
		names = append(names, []byte(name)...)
		names = append(names, 0)
	}
	if err := p.conn.ChangeProperty(p.conn.Root(), p.atoms.Atom("_NET_DESKTOP_NAMES"), p.atoms.Atom("UTF8_STRING"), 8, names); err != nil {
		return err
	}
	viewport := make([]byte, 8*n)
	if err := p.conn.ChangeProperty(p.conn.Root(), p.atoms.Atom("_NET_DESKTOP_VIEWPORT"), xproto.AtomCardinal, 32, viewport); err != nil {
		return err
	}
	geometry := make([]byte, 8)
	putU32(geometry[0:], uint32(screen.Dx()))
	putU32(geometry[4:], uint32(screen.Dy()))
	return p.conn.ChangeProperty(p.conn.Root(), p.atoms.Atom("_NET_DESKTOP_GEOMETRY"), xproto.AtomCardinal, 32, geometry)
}

func windowList(ws []xproto.Window) []byte {
	data := make([]byte, 4*len(ws))
	for i, w := range ws {
		putU32(data[i*4:], uint32(w))
	}
	return data
}

func u32One(v uint32) []byte {
	data := make([]byte, 4)
	putU32(data, v)
	return data
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
