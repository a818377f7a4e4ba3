package propdecode

import (
	"github.com/jezek/xgb/xproto"

	"github.com/jopamo/hxm/internal/atoms"
	"github.com/jopamo/hxm/internal/client"
)

func windowTypeForAtom(t *atoms.Table, a xproto.Atom) (client.WindowType, bool) {
	switch a {
	case t.Atom("_NET_WM_WINDOW_TYPE_NORMAL"):
		return client.TypeNormal, true
	case t.Atom("_NET_WM_WINDOW_TYPE_DESKTOP"):
		return client.TypeDesktop, true
	case t.Atom("_NET_WM_WINDOW_TYPE_DOCK"):
		return client.TypeDock, true
	case t.Atom("_NET_WM_WINDOW_TYPE_TOOLBAR"):
		return client.TypeToolbar, true
	case t.Atom("_NET_WM_WINDOW_TYPE_UTILITY"):
		return client.TypeUtility, true
	case t.Atom("_NET_WM_WINDOW_TYPE_SPLASH"):
		return client.TypeSplash, true
	case t.Atom("_NET_WM_WINDOW_TYPE_DIALOG"):
		return client.TypeDialog, true
	default:
		return 0, false
	}
}

func flagForStateAtom(t *atoms.Table, a xproto.Atom) (client.Flags, bool) {
	switch a {
	case t.Atom("_NET_WM_STATE_MODAL"):
		return client.FlagModal, true
	case t.Atom("_NET_WM_STATE_STICKY"):
		return client.FlagSticky, true
	case t.Atom("_NET_WM_STATE_MAXIMIZED_VERT"):
		return client.FlagMaximizedV, true
	case t.Atom("_NET_WM_STATE_MAXIMIZED_HORZ"):
		return client.FlagMaximizedH, true
	case t.Atom("_NET_WM_STATE_FULLSCREEN"):
		return client.FlagFullscreen, true
	case t.Atom("_NET_WM_STATE_DEMANDS_ATTENTION"):
		return client.FlagDemandsAttention, true
	default:
		return 0, false
	}
}

// StateAtomsFor returns the EWMH state atoms currently set on hot, the
// inverse of flagForStateAtom, used by the flusher to serialize
// _NET_WM_STATE (spec.md §4.E "State").
func StateAtomsFor(t *atoms.Table, hot *client.Hot) []xproto.Atom {
	var out []xproto.Atom
	add := func(flag client.Flags, name string) {
		if hot.Has(flag) {
			out = append(out, t.Atom(name))
		}
	}
	add(client.FlagModal, "_NET_WM_STATE_MODAL")
	add(client.FlagSticky, "_NET_WM_STATE_STICKY")
	add(client.FlagMaximizedV, "_NET_WM_STATE_MAXIMIZED_VERT")
	add(client.FlagMaximizedH, "_NET_WM_STATE_MAXIMIZED_HORZ")
	add(client.FlagFullscreen, "_NET_WM_STATE_FULLSCREEN")
	add(client.FlagDemandsAttention, "_NET_WM_STATE_DEMANDS_ATTENTION")
	return out
}

// ClientMessageStateAction decodes a _NET_WM_STATE ClientMessage's
// action and one-or-two target atoms and applies them to hot,
// idempotently (spec.md §4.F, §8 property 5).
func ClientMessageStateAction(t *atoms.Table, hot *client.Hot, action uint32, atom1, atom2 xproto.Atom) {
	apply := func(a xproto.Atom) {
		flag, ok := flagForStateAtom(t, a)
		if !ok {
			return
		}
		hot.ApplyStateAction(client.StateAction(action), flag)
	}
	apply(atom1)
	if atom2 != 0 {
		apply(atom2)
	}
}
