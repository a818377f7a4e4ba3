// Package atoms holds the process-wide, eagerly-interned atom table
// (spec.md §4.G, §6, §9 "Global atom table"). It is treated as
// immutable after Init: production code must never mutate Table
// in place, though tests may construct their own Table with selected
// atoms overridden.
package atoms

import "github.com/jezek/xgb/xproto"

// Names is the full set of atoms the core interns at startup, in the
// order spec.md §6 enumerates them (ICCCM, then EWMH, then the
// trailing odds and ends).
var Names = []string{
	// ICCCM
	"WM_PROTOCOLS",
	"WM_DELETE_WINDOW",
	"WM_TAKE_FOCUS",
	"WM_STATE",
	"WM_CLASS",
	"WM_NAME",
	"WM_HINTS",
	"WM_NORMAL_HINTS",
	"WM_TRANSIENT_FOR",
	"WM_CHANGE_STATE",
	"WM_COLORMAP_WINDOWS",
	"WM_CLIENT_MACHINE",
	"WM_COMMAND",

	// EWMH
	"_NET_SUPPORTED",
	"_NET_SUPPORTING_WM_CHECK",
	"_NET_CLIENT_LIST",
	"_NET_CLIENT_LIST_STACKING",
	"_NET_ACTIVE_WINDOW",
	"_NET_NUMBER_OF_DESKTOPS",
	"_NET_CURRENT_DESKTOP",
	"_NET_DESKTOP_NAMES",
	"_NET_DESKTOP_VIEWPORT",
	"_NET_DESKTOP_GEOMETRY",
	"_NET_WORKAREA",
	"_NET_WM_NAME",
	"_NET_WM_VISIBLE_NAME",
	"_NET_WM_STATE",
	"_NET_WM_STATE_MODAL",
	"_NET_WM_STATE_STICKY",
	"_NET_WM_STATE_MAXIMIZED_VERT",
	"_NET_WM_STATE_MAXIMIZED_HORZ",
	"_NET_WM_STATE_FULLSCREEN",
	"_NET_WM_STATE_ABOVE",
	"_NET_WM_STATE_BELOW",
	"_NET_WM_STATE_DEMANDS_ATTENTION",
	"_NET_WM_WINDOW_TYPE",
	"_NET_WM_WINDOW_TYPE_DESKTOP",
	"_NET_WM_WINDOW_TYPE_DOCK",
	"_NET_WM_WINDOW_TYPE_TOOLBAR",
	"_NET_WM_WINDOW_TYPE_UTILITY",
	"_NET_WM_WINDOW_TYPE_SPLASH",
	"_NET_WM_WINDOW_TYPE_DIALOG",
	"_NET_WM_WINDOW_TYPE_NORMAL",
	"_NET_WM_ALLOWED_ACTIONS",
	"_NET_WM_ACTION_MOVE",
	"_NET_WM_ACTION_RESIZE",
	"_NET_WM_ACTION_CLOSE",
	"_NET_WM_ACTION_FULLSCREEN",
	"_NET_WM_STRUT",
	"_NET_WM_STRUT_PARTIAL",
	"_NET_WM_ICON",
	"_NET_WM_PID",
	"_NET_WM_USER_TIME",
	"_NET_WM_SYNC_REQUEST",
	"_NET_FRAME_EXTENTS",
	"_NET_WM_MOVERESIZE",
	"_NET_WM_BYPASS_COMPOSITOR",

	// odds and ends
	"_MOTIF_WM_HINTS",
	"_GTK_FRAME_EXTENTS",
	"UTF8_STRING",
	"COMPOUND_TEXT",
	"WM_S0",
}

// Table maps atom names to their interned xproto.Atom id.
type Table struct {
	byName map[string]xproto.Atom
	byAtom map[xproto.Atom]string
}

// interner is satisfied by internal/xconn's Conn; kept narrow so
// tests can fake it without pulling in a real X connection.
type interner interface {
	InternAtom(name string) (xproto.Atom, error)
}

// Init interns every name in Names via conn and returns the resulting
// Table. It stops at the first failure, since a missing atom means
// the connection itself is unusable.
func Init(conn interner) (*Table, error) {
	t := &Table{
		byName: make(map[string]xproto.Atom, len(Names)),
		byAtom: make(map[xproto.Atom]string, len(Names)),
	}
	for _, name := range Names {
		a, err := conn.InternAtom(name)
		if err != nil {
			return nil, err
		}
		t.byName[name] = a
		t.byAtom[a] = name
	}
	return t, nil
}

// Atom returns the interned id for name, or 0 (xproto.AtomNone) if
// name was never interned.
func (t *Table) Atom(name string) xproto.Atom {
	return t.byName[name]
}

// Name returns the interned name for a, or "" if unknown.
func (t *Table) Name(a xproto.Atom) string {
	return t.byAtom[a]
}

// Supported returns the ids of every _NET_* name in Names, in Names
// order, for publishing as _NET_SUPPORTED. ICCCM and other non-_NET_
// atoms are not included.
func (t *Table) Supported() []xproto.Atom {
	out := make([]xproto.Atom, 0, len(Names))
	for _, name := range Names {
		if len(name) > 5 && name[:5] == "_NET_" {
			out = append(out, t.byName[name])
		}
	}
	return out
}

// NewForTest builds a Table from a fixed map, for unit tests that want
// to override individual atoms without a real connection. Production
// code must use Init.
func NewForTest(overrides map[string]xproto.Atom) *Table {
	t := &Table{byName: make(map[string]xproto.Atom), byAtom: make(map[xproto.Atom]string)}
	var next xproto.Atom = 1
	for _, name := range Names {
		a, ok := overrides[name]
		if !ok {
			a = next
			next++
		}
		t.byName[name] = a
		t.byAtom[a] = name
	}
	return t
}
