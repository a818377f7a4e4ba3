// Package client implements the client lifecycle state machine and
// the hot/cold client record (spec.md §3, §4.D).
package client

import (
	"container/list"

	"github.com/jezek/xgb/xproto"

	"github.com/jopamo/hxm/internal/arena"
	"github.com/jopamo/hxm/internal/handle"
)

// State is a client's lifecycle state (spec.md §3).
type State int

const (
	New State = iota
	Mapping
	Mapped
	Unmapping
	Destroyed
)

func (s State) String() string {
	switch s {
	case New:
		return "New"
	case Mapping:
		return "Mapping"
	case Mapped:
		return "Mapped"
	case Unmapping:
		return "Unmapping"
	case Destroyed:
		return "Destroyed"
	default:
		return "Unknown"
	}
}

// ManagePhase tracks Phase-1 asynchronous discovery vs steady state.
type ManagePhase int

const (
	Phase1 ManagePhase = iota
	Phase2
	Done
)

// WindowType is the EWMH window type, resolved from _NET_WM_WINDOW_TYPE.
type WindowType int

const (
	TypeNormal WindowType = iota
	TypeDesktop
	TypeDock
	TypeToolbar
	TypeUtility
	TypeSplash
	TypeDialog
)

// Layer is a stacking layer (spec.md §3, §4.E).
type Layer int

const (
	LayerDesktop Layer = iota
	LayerBelow
	LayerNormal
	LayerAbove
	LayerDock
	LayerFullscreen
	LayerOverlay
	numLayers
)

// Flags is the per-client state bitset.
type Flags uint32

const (
	FlagUndecorated Flags = 1 << iota
	FlagSticky
	FlagFullscreen
	FlagMaximizedH
	FlagMaximizedV
	FlagModal
	FlagDemandsAttention
)

// Dirty is the per-client facet-dirty bitset the flusher consumes
// (spec.md §3, §4.E).
type Dirty uint32

const (
	DirtyGeom Dirty = 1 << iota
	DirtyState
	DirtyTitle
	DirtyIcon
	DirtyStacking
	DirtyFrameExtents
)

// Rect is a plain (x, y, w, h) rectangle; frame/client geometry is
// small and copied by value throughout, matching spec.md's "desired
// and server rectangles" wording.
type Rect struct {
	X, Y          int32
	Width, Height uint32
}

// Insets are the four GTK frame-extent insets.
type Insets struct {
	Left, Right, Top, Bottom int32
}

// NormalHints mirrors ICCCM WM_NORMAL_HINTS.
type NormalHints struct {
	MinWidth, MinHeight   int32
	MaxWidth, MaxHeight   int32
	BaseWidth, BaseHeight int32
	WidthInc, HeightInc   int32
	MinAspect, MaxAspect  float64
}

// Hot holds the fields touched every tick (spec.md §3).
type Hot struct {
	Self handle.Handle

	Xid   xproto.Window
	Frame xproto.Window

	State       State
	ManagePhase ManagePhase
	Type        WindowType
	TypeFromNet bool

	Layer     Layer
	BaseLayer Layer
	Desktop   uint32

	Desired Rect
	Server  Rect

	Depth    uint8
	VisualID xproto.Visualid

	Flags Flags
	Dirty Dirty

	GTKFrameExtentsSet bool
	GTKInsets          Insets

	StackingIndex int
	IgnoreUnmap   int
	PendingReplies int

	FocusOverride bool
	TransientFor  handle.Handle

	focusElem *list.Element
}

// Cold holds string-heavy, rarely-touched fields plus the per-client
// string arena (spec.md §3).
type Cold struct {
	Strings arena.String

	WMInstance   string
	WMClass      string
	BaseTitle    string
	VisibleTitle string

	Hints NormalHints

	HasNetWMName bool

	PID      uint32
	Machine  string
	UserTime uint32

	SupportsDeleteWindow bool
	SupportsTakeFocus    bool

	IconPixels []byte

	Struts StrutPartial
}

// StrutPartial mirrors _NET_WM_STRUT_PARTIAL; Valid is false when the
// last decode was rejected (spec.md §4.F) or none was ever set.
type StrutPartial struct {
	Valid                         bool
	Left, Right, Top, Bottom      uint32
	LeftStartY, LeftEndY          uint32
	RightStartY, RightEndY        uint32
	TopStartX, TopEndX            uint32
	BottomStartX, BottomEndX      uint32
}

// string-arena slot indices, kept here so propdecode and client agree
// on which slot holds which field.
const (
	slotWMInstance = iota
	slotWMClass
	slotBaseTitle
	slotVisibleTitle
)
