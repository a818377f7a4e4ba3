// Package acquire implements the WM_S0 selection and
// SubstructureRedirect acquisition protocol (spec.md §4.G).
package acquire

import (
	"github.com/jezek/xgb/xproto"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/jopamo/hxm/internal/atoms"
)

// ErrAlreadyRunning is returned when another WM already owns WM_S0.
var ErrAlreadyRunning = errors.New("acquire: another window manager already owns WM_S0")

// ErrSubstructureRedirectDenied is returned when the root refuses
// SubstructureRedirect (another WM already has it).
var ErrSubstructureRedirectDenied = errors.New("acquire: SubstructureRedirect denied (BadAccess)")

// XConn is the slice of the transport acquisition needs.
type XConn interface {
	GetSelectionOwner(selection xproto.Atom) (xproto.Window, error)
	ChangeWindowAttributes(win xproto.Window, mask uint32, values []uint32) error
	CreateWindow(depth uint8, x, y int16, w, h uint16, visual xproto.Visualid, valueMask uint32, values []uint32) (xproto.Window, error)
	MapWindow(win xproto.Window) error
	ChangeProperty(win xproto.Window, prop, typ xproto.Atom, format uint8, data []byte) error
	SetSelectionOwner(selection xproto.Atom, owner xproto.Window) error
	Root() xproto.Window
}

const (
	substructureMask = xproto.EventMaskSubstructureRedirect | xproto.EventMaskSubstructureNotify
)

// Result describes the outcome of Acquire.
type Result struct {
	SupportingWMCheck xproto.Window // 0 (None) if acquisition was refused
}

// Acquire runs the full §4.G sequence: query the existing WM_S0 owner
// (refuse if non-None), select SubstructureRedirect on the root
// (refuse on BadAccess), create an unmapped off-screen check window,
// publish _NET_SUPPORTING_WM_CHECK on both root and check window and
// _NET_SUPPORTED on the root, map the check window, then take WM_S0.
// On any refusal, no check window is mapped and the
// selection is never claimed (spec.md S7, S8).
func Acquire(conn XConn, atomTable *atoms.Table, log *zap.Logger) (Result, error) {
	if log == nil {
		log = zap.NewNop()
	}

	wmS0 := atomTable.Atom("WM_S0")
	owner, err := conn.GetSelectionOwner(wmS0)
	if err != nil {
		return Result{}, errors.Wrap(err, "query WM_S0 owner")
	}
	if owner != xproto.WindowNone {
		log.Warn("refusing to start: WM_S0 already owned", zap.Uint32("owner", uint32(owner)))
		return Result{}, ErrAlreadyRunning
	}

	if err := conn.ChangeWindowAttributes(conn.Root(), xproto.CwEventMask, []uint32{substructureMask}); err != nil {
		log.Warn("refusing to start: SubstructureRedirect denied", zap.Error(err))
		return Result{}, errors.Wrap(ErrSubstructureRedirectDenied, err.Error())
	}

	check, err := conn.CreateWindow(0, -1, -1, 1, 1, 0, 0, nil)
	if err != nil {
		return Result{}, errors.Wrap(err, "create supporting-WM-check window")
	}

	checkAtom := atomTable.Atom("_NET_SUPPORTING_WM_CHECK")
	checkData := u32(uint32(check))
	if err := conn.ChangeProperty(conn.Root(), checkAtom, xproto.AtomWindow, 32, checkData); err != nil {
		return Result{}, errors.Wrap(err, "publish root supporting-WM-check")
	}
	if err := conn.ChangeProperty(check, checkAtom, xproto.AtomWindow, 32, checkData); err != nil {
		return Result{}, errors.Wrap(err, "publish check-window supporting-WM-check")
	}

	supported := atomTable.Supported()
	if err := conn.ChangeProperty(conn.Root(), atomTable.Atom("_NET_SUPPORTED"), xproto.AtomAtom, 32, atomListData(supported)); err != nil {
		return Result{}, errors.Wrap(err, "publish _NET_SUPPORTED")
	}

	if err := conn.MapWindow(check); err != nil {
		return Result{}, errors.Wrap(err, "map supporting-WM-check window")
	}

	if err := conn.SetSelectionOwner(wmS0, check); err != nil {
		return Result{}, errors.Wrap(err, "take WM_S0 selection")
	}

	return Result{SupportingWMCheck: check}, nil
}

func u32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func atomListData(atomList []xproto.Atom) []byte {
	data := make([]byte, 4*len(atomList))
	for i, a := range atomList {
		v := uint32(a)
		data[i*4], data[i*4+1], data[i*4+2], data[i*4+3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
	}
	return data
}
