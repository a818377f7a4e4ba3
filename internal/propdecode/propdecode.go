// Package propdecode interprets reply payloads into client state
// updates. Every function here is pure with respect to the reply
// bytes it is given: malformed input leaves the client's prior state
// untouched rather than erroring (spec.md §4.F, §7). The exception is
// _NET_WM_STRUT_PARTIAL: a reply with the wrong format, too few values
// or an inverted start/end range clears the client's strut record.
package propdecode

import (
	"encoding/binary"
	"strings"

	"github.com/jezek/xgb/xproto"
	"go.uber.org/zap"

	"github.com/jopamo/hxm/internal/atoms"
	"github.com/jopamo/hxm/internal/client"
	"github.com/jopamo/hxm/internal/config"
)

// Reply is the minimal shape a decoded property reply needs; it
// matches internal/xconn.Reply and internal/cookiejar.DrainedReply so
// callers can pass either without an adapter struct.
type Reply struct {
	Format uint8
	Type   xproto.Atom
	Value  []byte
}

// Decoder holds the atom table and config every decode function needs.
type Decoder struct {
	atoms *atoms.Table
	cfg   config.Config
	log   *zap.Logger
}

// New returns a Decoder bound to atoms and cfg.
func New(atomTable *atoms.Table, cfg config.Config, log *zap.Logger) *Decoder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Decoder{atoms: atomTable, cfg: cfg, log: log}
}

// DecodeProperty applies a GetProperty reply (or the error standing in
// for one) to hot/cold, per the property named by atom. err non-nil
// models "X error in place of reply" (spec.md §7): it clears the
// field where the original spec calls for that and is otherwise a
// no-op, but never mutates lifecycle state.
func (d *Decoder) DecodeProperty(hot *client.Hot, cold *client.Cold, atom xproto.Atom, reply *Reply, err error) {
	name := d.atoms.Name(atom)

	if err != nil || reply == nil {
		d.log.Debug("property reply errored, treating as absent", zap.String("atom", name))
		switch name {
		case "_GTK_FRAME_EXTENTS":
			hot.GTKFrameExtentsSet = false
			hot.Dirty |= client.DirtyGeom
		case "_NET_WM_STRUT_PARTIAL":
			cold.Struts = client.StrutPartial{}
		}
		return
	}

	switch name {
	case "WM_CLASS":
		d.decodeWMClass(cold, reply)
	case "WM_NAME", "_NET_WM_NAME":
		d.decodeName(hot, cold, name, reply)
	case "_NET_WM_STRUT_PARTIAL":
		d.decodeStrutPartial(cold, reply)
	case "_NET_WM_WINDOW_TYPE":
		d.decodeWindowType(hot, reply)
	case "_GTK_FRAME_EXTENTS":
		d.decodeGTKFrameExtents(hot, reply)
	case "_NET_WM_STATE":
		d.decodeNetWMStateProperty(hot, reply)
	case "WM_TRANSIENT_FOR":
		d.decodeTransientFor(hot, reply)
	case "_NET_WM_PID":
		d.decodePID(cold, reply)
	case "WM_HINTS":
		d.decodeWMHints(hot, reply)
	case "WM_NORMAL_HINTS":
		d.decodeNormalHints(cold, reply)
	case "WM_PROTOCOLS":
		d.decodeProtocols(cold, reply)
	case "_NET_WM_USER_TIME":
		d.decodeUserTime(cold, reply)
	case "_NET_WM_ICON":
		d.decodeIcon(cold, reply)
	}
}

// DecodeGetGeometry applies a Phase-1 GetGeometry reply, including the
// tiny-geometry rescue (spec.md §4.F, §8 property 6).
func (d *Decoder) DecodeGetGeometry(hot *client.Hot, x, y int32, w, h uint16) {
	rw, rh := d.cfg.RescueGeometry(w, h)
	hot.Server = client.Rect{X: x, Y: y, Width: uint32(rw), Height: uint32(rh)}
	if hot.Desired.Width == 0 && hot.Desired.Height == 0 {
		hot.Desired = hot.Server
	}
}

func (d *Decoder) decodeWMClass(cold *client.Cold, reply *Reply) {
	if reply.Format != 8 {
		return
	}
	raw := string(reply.Value)
	parts := strings.SplitN(raw, "\x00", 3)
	instance, class := "", ""
	if len(parts) > 0 {
		instance = parts[0]
	}
	if len(parts) > 1 {
		class = strings.TrimRight(parts[1], "\x00")
	}
	inst, _ := cold.Strings.UpdateIfChanged(0, instance)
	cls, _ := cold.Strings.UpdateIfChanged(1, class)
	cold.WMInstance = inst
	cold.WMClass = cls
}

func (d *Decoder) decodeName(hot *client.Hot, cold *client.Cold, name string, reply *Reply) {
	if reply.Format != 8 {
		return
	}
	title := string(reply.Value)
	if name == "_NET_WM_NAME" {
		cold.HasNetWMName = true
	} else if cold.HasNetWMName {
		// WM_NAME never overrides a _NET_WM_NAME already seen.
		return
	}
	baseTitle, changed := cold.Strings.UpdateIfChanged(2, title)
	cold.BaseTitle = baseTitle
	if changed {
		hot.Dirty |= client.DirtyTitle
	}
}

func (d *Decoder) decodeStrutPartial(cold *client.Cold, reply *Reply) {
	if reply.Format != 32 || len(reply.Value) < 12*4 {
		cold.Struts = client.StrutPartial{}
		return
	}
	v := make([]uint32, 12)
	for i := range v {
		v[i] = binary.LittleEndian.Uint32(reply.Value[i*4:])
	}
	left, right, top, bottom := v[0], v[1], v[2], v[3]
	leftStartY, leftEndY := v[4], v[5]
	rightStartY, rightEndY := v[6], v[7]
	topStartX, topEndX := v[8], v[9]
	bottomStartX, bottomEndX := v[10], v[11]

	if leftStartY > leftEndY || rightStartY > rightEndY || topStartX > topEndX || bottomStartX > bottomEndX {
		// Reject the whole record; workarea stays unaffected
		// (spec.md §4.F, §8 property 7).
		cold.Struts = client.StrutPartial{}
		return
	}

	cold.Struts = client.StrutPartial{
		Valid: true,
		Left: left, Right: right, Top: top, Bottom: bottom,
		LeftStartY: leftStartY, LeftEndY: leftEndY,
		RightStartY: rightStartY, RightEndY: rightEndY,
		TopStartX: topStartX, TopEndX: topEndX,
		BottomStartX: bottomStartX, BottomEndX: bottomEndX,
	}
}

func (d *Decoder) decodeWindowType(hot *client.Hot, reply *Reply) {
	if reply.Format != 32 {
		return
	}
	for i := 0; i+4 <= len(reply.Value); i += 4 {
		a := xproto.Atom(binary.LittleEndian.Uint32(reply.Value[i:]))
		if t, ok := windowTypeForAtom(d.atoms, a); ok {
			hot.Type = t
			hot.TypeFromNet = true
			return
		}
	}
	// No atom in the list matched a known type: leave Type unchanged
	// and TypeFromNet false (spec.md §4.F).
}

func (d *Decoder) decodeGTKFrameExtents(hot *client.Hot, reply *Reply) {
	if reply.Format == 0 || len(reply.Value) == 0 {
		hot.GTKFrameExtentsSet = false
		hot.Dirty |= client.DirtyGeom
		return
	}
	if reply.Format != 32 || len(reply.Value) < 4*4 {
		return
	}
	v := make([]uint32, 4)
	for i := range v {
		v[i] = binary.LittleEndian.Uint32(reply.Value[i*4:])
	}
	hot.GTKInsets = client.Insets{Left: int32(v[0]), Right: int32(v[1]), Top: int32(v[2]), Bottom: int32(v[3])}
	hot.GTKFrameExtentsSet = true
	hot.Dirty |= client.DirtyGeom
}

func (d *Decoder) decodePID(cold *client.Cold, reply *Reply) {
	if reply.Format != 32 || len(reply.Value) < 4 {
		return
	}
	cold.PID = binary.LittleEndian.Uint32(reply.Value)
}

func (d *Decoder) decodeTransientFor(hot *client.Hot, reply *Reply) {
	// Resolution of the target window id to a handle happens one
	// layer up (internal/wm), since only the Table knows the
	// xid->handle mapping; this just validates the wire shape.
	if reply.Format != 32 || len(reply.Value) < 4 {
		return
	}
}

// TransientForWindow extracts the raw target window id from a
// WM_TRANSIENT_FOR reply, for the caller to resolve via Table.ByXid.
func TransientForWindow(reply *Reply) (xproto.Window, bool) {
	if reply == nil || reply.Format != 32 || len(reply.Value) < 4 {
		return 0, false
	}
	return xproto.Window(binary.LittleEndian.Uint32(reply.Value)), true
}

// ICCCM WM_NORMAL_HINTS flag bits (spec.md §4.D).
const (
	hintPMinSize   = 1 << 4
	hintPMaxSize   = 1 << 5
	hintPResizeInc = 1 << 6
	hintPAspect    = 1 << 7
	hintPBaseSize  = 1 << 8
)

// decodeNormalHints applies a WM_NORMAL_HINTS reply, the ICCCM size
// hints (spec.md §4.D); the wire record is 18 CARD32s: the flags word,
// then the deprecated x/y/width/height fields, then the hint values.
func (d *Decoder) decodeNormalHints(cold *client.Cold, reply *Reply) {
	if reply.Format != 32 || len(reply.Value) < 18*4 {
		return
	}
	v := make([]uint32, 18)
	for i := range v {
		v[i] = binary.LittleEndian.Uint32(reply.Value[i*4:])
	}
	flags := v[0]
	var hints client.NormalHints
	if flags&hintPMinSize != 0 {
		hints.MinWidth, hints.MinHeight = int32(v[5]), int32(v[6])
	}
	if flags&hintPMaxSize != 0 {
		hints.MaxWidth, hints.MaxHeight = int32(v[7]), int32(v[8])
	}
	if flags&hintPResizeInc != 0 {
		hints.WidthInc, hints.HeightInc = int32(v[9]), int32(v[10])
	}
	if flags&hintPAspect != 0 {
		if minDen := int32(v[12]); minDen != 0 {
			hints.MinAspect = float64(int32(v[11])) / float64(minDen)
		}
		if maxDen := int32(v[14]); maxDen != 0 {
			hints.MaxAspect = float64(int32(v[13])) / float64(maxDen)
		}
	}
	if flags&hintPBaseSize != 0 {
		hints.BaseWidth, hints.BaseHeight = int32(v[15]), int32(v[16])
	}
	cold.Hints = hints
}

// wmHintsUrgencyFlag is ICCCM WM_HINTS's UrgencyHint bit.
const wmHintsUrgencyFlag = 1 << 8

// decodeWMHints applies a WM_HINTS reply, translating ICCCM's urgency
// bit into _NET_WM_STATE's DEMANDS_ATTENTION flag (spec.md §4.D).
func (d *Decoder) decodeWMHints(hot *client.Hot, reply *Reply) {
	if reply.Format != 32 || len(reply.Value) < 4 {
		return
	}
	urgent := binary.LittleEndian.Uint32(reply.Value)&wmHintsUrgencyFlag != 0
	switch {
	case urgent && !hot.Has(client.FlagDemandsAttention):
		hot.ApplyStateAction(client.StateAdd, client.FlagDemandsAttention)
	case !urgent && hot.Has(client.FlagDemandsAttention):
		hot.ApplyStateAction(client.StateRemove, client.FlagDemandsAttention)
	}
}

// decodeProtocols applies a WM_PROTOCOLS reply, recording which of the
// protocols the core cares about (WM_DELETE_WINDOW, WM_TAKE_FOCUS) the
// client declared support for (spec.md §4.D).
func (d *Decoder) decodeProtocols(cold *client.Cold, reply *Reply) {
	if reply.Format != 32 {
		return
	}
	cold.SupportsDeleteWindow = false
	cold.SupportsTakeFocus = false
	deleteAtom := d.atoms.Atom("WM_DELETE_WINDOW")
	takeFocusAtom := d.atoms.Atom("WM_TAKE_FOCUS")
	for i := 0; i+4 <= len(reply.Value); i += 4 {
		switch xproto.Atom(binary.LittleEndian.Uint32(reply.Value[i:])) {
		case deleteAtom:
			cold.SupportsDeleteWindow = true
		case takeFocusAtom:
			cold.SupportsTakeFocus = true
		}
	}
}

// decodeUserTime applies a _NET_WM_USER_TIME reply (spec.md §4.D).
func (d *Decoder) decodeUserTime(cold *client.Cold, reply *Reply) {
	if reply.Format != 32 || len(reply.Value) < 4 {
		return
	}
	cold.UserTime = binary.LittleEndian.Uint32(reply.Value)
}

// decodeIcon stores a _NET_WM_ICON reply's raw ARGB pixel data
// verbatim (spec.md §4.D); interpreting the packed width/height/pixel
// records is a renderer's job, not this decoder's.
func (d *Decoder) decodeIcon(cold *client.Cold, reply *Reply) {
	if reply.Format != 32 {
		return
	}
	cold.IconPixels = append([]byte(nil), reply.Value...)
}

// decodeNetWMStateProperty handles the bulk GetProperty form of
// _NET_WM_STATE (as opposed to the incremental ClientMessage form,
// ClientMessageStateAction in atoms_map.go): format mismatches are a
// silent no-op (spec.md
// §4.F "Format mismatches are silent no-ops").
func (d *Decoder) decodeNetWMStateProperty(hot *client.Hot, reply *Reply) {
	if reply.Format != 32 {
		return
	}
	var flags client.Flags
	for i := 0; i+4 <= len(reply.Value); i += 4 {
		a := xproto.Atom(binary.LittleEndian.Uint32(reply.Value[i:]))
		if f, ok := flagForStateAtom(d.atoms, a); ok {
			flags |= f
		}
	}
	hot.Flags = flags
	hot.Dirty |= client.DirtyState
}
