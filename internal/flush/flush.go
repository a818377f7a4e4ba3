// Package flush implements the per-tick dirty-flag flush that
// converts accumulated per-client dirty bits into the minimal set of
// X requests needed to reflect them (spec.md §4.E).
package flush

import (
	"github.com/jezek/xgb/xproto"
	"go.uber.org/zap"

	"github.com/jopamo/hxm/internal/atoms"
	"github.com/jopamo/hxm/internal/client"
	"github.com/jopamo/hxm/internal/config"
	"github.com/jopamo/hxm/internal/propdecode"
)

// XConn is the slice of the transport the flusher needs. Kept narrow
// so tests can fake it with a recording stub.
type XConn interface {
	ConfigureWindow(win xproto.Window, mask uint16, values []uint32) error
	ChangeProperty(win xproto.Window, prop, typ xproto.Atom, format uint8, data []byte) error
}

// Flusher holds the atom table, config, and transport every flush needs.
type Flusher struct {
	conn  XConn
	atoms *atoms.Table
	cfg   config.Config
	log   *zap.Logger
}

// New returns a Flusher.
func New(conn XConn, atomTable *atoms.Table, cfg config.Config, log *zap.Logger) *Flusher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Flusher{conn: conn, atoms: atomTable, cfg: cfg, log: log}
}

const (
	configMask = xproto.ConfigWindowX | xproto.ConfigWindowY |
		xproto.ConfigWindowWidth | xproto.ConfigWindowHeight
)

// Flush processes every dirty bit on hot, in the order spec.md §4.E
// lists (Geom, State, Title, Stacking, FrameExtents), emitting the
// minimal set of requests, then clears Dirty. A second call with no
// intervening dispatch is a no-op (spec.md §8 property 4).
func (f *Flusher) Flush(hot *client.Hot, cold *client.Cold) error {
	if hot.Dirty == 0 {
		return nil
	}

	if hot.Dirty&client.DirtyGeom != 0 {
		if err := f.flushGeom(hot); err != nil {
			return err
		}
	}
	if hot.Dirty&client.DirtyState != 0 {
		if err := f.flushState(hot); err != nil {
			return err
		}
	}
	if hot.Dirty&client.DirtyTitle != 0 {
		if err := f.flushTitle(hot, cold); err != nil {
			return err
		}
	}
	if hot.Dirty&client.DirtyFrameExtents != 0 {
		if err := f.flushFrameExtents(hot); err != nil {
			return err
		}
	}
	// Stacking is handled by the wm package, which operates across
	// the whole Table rather than one client at a time; it clears
	// DirtyStacking itself once it restacks. Flush leaves that bit
	// untouched.
	hot.Dirty &^= client.DirtyGeom | client.DirtyState | client.DirtyTitle | client.DirtyFrameExtents
	return nil
}

func (f *Flusher) flushGeom(hot *client.Hot) error {
	frame, inner := client.FrameGeometry(hot.Desired, hot.GTKFrameExtentsSet, hot.GTKInsets, f.cfg.BorderWidth, f.cfg.TitleHeight)

	if err := f.conn.ConfigureWindow(hot.Frame, configMask, []uint32{
		uint32(int32(frame.X)), uint32(int32(frame.Y)), frame.Width, frame.Height,
	}); err != nil {
		return err
	}
	if err := f.conn.ConfigureWindow(hot.Xid, configMask, []uint32{
		uint32(int32(inner.X)), uint32(int32(inner.Y)), inner.Width, inner.Height,
	}); err != nil {
		return err
	}

	// server holds the frame rect with w/h carrying the client's own
	// size, the model split spec.md §4.E calls for so geometry
	// queries can answer from either perspective.
	hot.Server = client.Rect{X: frame.X, Y: frame.Y, Width: hot.Desired.Width, Height: hot.Desired.Height}

	return f.writeFrameExtents(hot)
}

func (f *Flusher) flushState(hot *client.Hot) error {
	atomList := propdecode.StateAtomsFor(f.atoms, hot)
	data := make([]byte, 4*len(atomList))
	for i, a := range atomList {
		putU32(data[i*4:], uint32(a))
	}
	return f.conn.ChangeProperty(hot.Xid, f.atoms.Atom("_NET_WM_STATE"), xproto.AtomAtom, 32, data)
}

func (f *Flusher) flushTitle(hot *client.Hot, cold *client.Cold) error {
	title := cold.BaseTitle
	if cold.VisibleTitle == title {
		return nil
	}
	cold.VisibleTitle = title
	return f.conn.ChangeProperty(hot.Xid, f.atoms.Atom("_NET_WM_VISIBLE_NAME"), f.atoms.Atom("UTF8_STRING"), 8, []byte(title))
}

func (f *Flusher) flushFrameExtents(hot *client.Hot) error {
	return f.writeFrameExtents(hot)
}

func (f *Flusher) writeFrameExtents(hot *client.Hot) error {
	left, top := f.cfg.BorderWidth, f.cfg.TitleHeight
	right, bottom := f.cfg.BorderWidth, f.cfg.BorderWidth
	if hot.GTKFrameExtentsSet {
		left, right, top, bottom = hot.GTKInsets.Left, hot.GTKInsets.Right, hot.GTKInsets.Top, hot.GTKInsets.Bottom
	}
	data := make([]byte, 16)
	putU32(data[0:], uint32(left))
	putU32(data[4:], uint32(right))
	putU32(data[8:], uint32(top))
	putU32(data[12:], uint32(bottom))
	return f.conn.ChangeProperty(hot.Xid, f.atoms.Atom("_NET_FRAME_EXTENTS"), xproto.AtomCardinal, 32, data)
}

func putU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
