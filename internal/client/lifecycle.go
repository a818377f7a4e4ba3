package client

import (
	"container/list"

	"github.com/jezek/xgb/xproto"
	"go.uber.org/zap"

	"github.com/jopamo/hxm/internal/handle"
)

// Table owns every client record and the window->handle maps. It is
// the thing spec.md §3's invariants are stated about.
type Table struct {
	slots *handle.Slotmap[Hot, Cold]

	byXid   map[xproto.Window]handle.Handle
	byFrame map[xproto.Window]handle.Handle

	// Focus history: exactly one list contains each Mapped client
	// (invariant 2), ordered most-recently-focused first.
	focus *list.List

	// Stacking layers, bottom to top within each layer.
	layers [numLayers][]handle.Handle

	log *zap.Logger
}

// NewTable returns an empty client table.
func NewTable(log *zap.Logger) *Table {
	if log == nil {
		log = zap.NewNop()
	}
	return &Table{
		slots:   handle.New[Hot, Cold](64),
		byXid:   make(map[xproto.Window]handle.Handle),
		byFrame: make(map[xproto.Window]handle.Handle),
		focus:   list.New(),
		log:     log,
	}
}

// Lookup resolves h.
func (t *Table) Lookup(h handle.Handle) (*Hot, *Cold, bool) {
	return t.slots.Lookup(h)
}

// ByXid resolves a client window id to its handle.
func (t *Table) ByXid(xid xproto.Window) (handle.Handle, bool) {
	h, ok := t.byXid[xid]
	return h, ok
}

// ByFrame resolves a frame window id to its handle.
func (t *Table) ByFrame(frame xproto.Window) (handle.Handle, bool) {
	h, ok := t.byFrame[frame]
	return h, ok
}

// IsManageable reports whether h resolves to a live client that is not
// already Destroyed — the predicate CookieJar.Drain uses to decide
// whether a reply is still worth dispatching.
func (t *Table) IsManageable(h handle.Handle) bool {
	hot, _, ok := t.slots.Lookup(h)
	if !ok {
		return false
	}
	return hot.State != Destroyed
}

// Each iterates every live client.
func (t *Table) Each(fn func(handle.Handle, *Hot, *Cold)) {
	t.slots.Each(fn)
}

// Len returns the number of live clients.
func (t *Table) Len() int { return t.slots.Len() }

// Begin allocates a new client record for xid and puts it into
// Mapping/Phase1 (spec.md §4.D "New →(MapRequest or adoption)→
// Mapping"). The caller is responsible for issuing the Phase-1
// requests and incrementing PendingReplies per request via
// IncPendingReplies.
func (t *Table) Begin(xid xproto.Window) (handle.Handle, *Hot, *Cold) {
	h, hot, cold := t.slots.Alloc()
	hot.Self = h
	hot.Xid = xid
	hot.State = Mapping
	hot.ManagePhase = Phase1
	hot.BaseLayer = LayerNormal
	hot.Layer = LayerNormal
	hot.TransientFor = handle.Invalid
	t.byXid[xid] = h
	_ = cold
	return h, hot, cold
}

// IncPendingReplies records that one more Phase-1 reply is expected.
func (t *Table) IncPendingReplies(h handle.Handle) {
	if hot, _, ok := t.slots.Lookup(h); ok {
		hot.PendingReplies++
	}
}

// DecPendingReplies records that one Phase-1 reply (or its error)
// arrived. It returns true if this was the reply that brought the
// counter to zero while still in Phase1 (invariant 4): the caller
// must then run its Phase-1 finishers (internal/wm's finishManage).
func (t *Table) DecPendingReplies(h handle.Handle) bool {
	hot, _, ok := t.slots.Lookup(h)
	if !ok {
		return false
	}
	if hot.PendingReplies > 0 {
		hot.PendingReplies--
	}
	return hot.PendingReplies == 0 && hot.ManagePhase == Phase1
}

// Finishers computes initial geometry/layer placement and is supplied
// by the caller (wm package) so this package stays free of policy
// like "assign layer from window type" or "position on desktop".
type Finishers interface {
	Finish(h handle.Handle, hot *Hot, cold *Cold)
}

// AttachFrame records the frame window created for h and advances the
// record to Mapped/Done, per spec.md §4.D ("map client and frame in
// that order (client first, frame second), advance to Mapped/Done").
// The actual MapWindow calls are the caller's responsibility (they go
// through XConn, not this package); AttachFrame only updates state and
// the frame->handle map, and must be called after both maps succeed.
func (t *Table) AttachFrame(h handle.Handle, frame xproto.Window) bool {
	hot, _, ok := t.slots.Lookup(h)
	if !ok {
		return false
	}
	hot.Frame = frame
	hot.State = Mapped
	hot.ManagePhase = Done
	t.byFrame[frame] = h
	t.focus.PushFront(h) // invariant 2: freshly mapped clients join focus history
	t.setFocusElem(h)
	t.appendToLayer(h, hot.BaseLayer)
	return true
}

func (t *Table) setFocusElem(h handle.Handle) {
	for e := t.focus.Front(); e != nil; e = e.Next() {
		if e.Value.(handle.Handle) == h {
			if hot, _, ok := t.slots.Lookup(h); ok {
				hot.focusElem = e
			}
			return
		}
	}
}

func (t *Table) appendToLayer(h handle.Handle, layer Layer) {
	hot, _, ok := t.slots.Lookup(h)
	if !ok {
		return
	}
	hot.Layer = layer
	t.layers[layer] = append(t.layers[layer], h)
	hot.StackingIndex = len(t.layers[layer]) - 1
}

func (t *Table) removeFromLayer(h handle.Handle) {
	hot, _, ok := t.slots.Lookup(h)
	if !ok {
		return
	}
	layer := t.layers[hot.Layer]
	for i, candidate := range layer {
		if candidate == h {
			t.layers[hot.Layer] = append(layer[:i], layer[i+1:]...)
			break
		}
	}
	for i, remaining := range t.layers[hot.Layer] {
		if rh, _, ok := t.slots.Lookup(remaining); ok {
			rh.StackingIndex = i
		}
	}
	hot.StackingIndex = -1
}

// SetLayer moves h from its current layer to layer, preserving
// bottom-to-top append order within the destination layer (spec.md
// §4.E "restack inside the layer, then restack layer across screen").
// Reports false if h is unknown or already in layer.
func (t *Table) SetLayer(h handle.Handle, layer Layer) bool {
	hot, _, ok := t.slots.Lookup(h)
	if !ok || hot.Layer == layer {
		return false
	}
	t.removeFromLayer(h)
	t.appendToLayer(h, layer)
	return true
}

// Layers returns the handles in layer, bottom to top.
func (t *Table) Layers(layer Layer) []handle.Handle {
	return t.layers[layer]
}

// AllLayersBottomToTop returns every live client across all layers in
// fixed layer order (spec.md §4.E), used by RootPublisher's
// _NET_CLIENT_LIST_STACKING.
func (t *Table) AllLayersBottomToTop() []handle.Handle {
	var out []handle.Handle
	for l := Layer(0); l < numLayers; l++ {
		out = append(out, t.layers[l]...)
	}
	return out
}

// FocusFront returns the most-recently-focused Mapped client, or
// handle.Invalid if none.
func (t *Table) FocusFront() handle.Handle {
	if e := t.focus.Front(); e != nil {
		return e.Value.(handle.Handle)
	}
	return handle.Invalid
}

// Unmap handles an UnmapNotify that originated from the client itself
// (spec.md §4.D). If IgnoreUnmap > 0 (our own unmap, e.g. during a
// withdraw-then-remap dance), it is decremented and the client stays
// Mapped; otherwise the client moves to Unmapping and is immediately
// handed to the caller to Unmanage.
func (t *Table) Unmap(h handle.Handle) (shouldUnmanage bool) {
	hot, _, ok := t.slots.Lookup(h)
	if !ok {
		return false
	}
	if hot.IgnoreUnmap > 0 {
		hot.IgnoreUnmap--
		return false
	}
	hot.State = Unmapping
	return true
}

// Destroy handles a DestroyNotify or a synthetic error standing in for
// one (spec.md §4.D, §7). The client moves straight to Destroyed and
// is scheduled for unmanage.
func (t *Table) Destroy(h handle.Handle) {
	if hot, _, ok := t.slots.Lookup(h); ok {
		hot.State = Destroyed
	}
}

// Unmanage detaches h from both window maps and from focus/layer
// membership, per spec.md §4.D. It does NOT free the slot: the caller
// must consult CookieJar.HasOutstanding(h) first and only call Free
// once it returns false (invariant 3, invariant 6).
func (t *Table) Unmanage(h handle.Handle) {
	hot, _, ok := t.slots.Lookup(h)
	if !ok {
		return
	}
	delete(t.byXid, hot.Xid)
	if hot.Frame != 0 {
		delete(t.byFrame, hot.Frame)
	}
	if hot.focusElem != nil {
		t.focus.Remove(hot.focusElem)
		hot.focusElem = nil
	}
	t.removeFromLayer(h)
}

// Free releases the slot. Call only after Unmanage and after
// CookieJar.HasOutstanding(h) is false.
func (t *Table) Free(h handle.Handle) {
	t.slots.Free(h)
}
