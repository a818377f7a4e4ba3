// Package events implements the per-tick event ingestion pipeline:
// bounded ingest plus per-event-type coalescing (spec.md §4.C).
package events

import (
	"image"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
)

// DefaultMaxEventsPerTick is the default per-tick ingest cap;
// internal/config carries the configurable value per spec.md §9.
const DefaultMaxEventsPerTick = 256

// ConfigureRequestEvent is a coalesced ConfigureRequest: last values
// win per field, but the merged mask is the OR of every mask seen
// this tick (spec.md §4.C).
type ConfigureRequestEvent struct {
	Window            xproto.Window
	ValueMask         uint16
	X, Y              int16
	Width, Height     uint16
	BorderWidth       uint16
	Sibling           xproto.Window
	StackMode         byte
}

// PropertyEvent is the last PropertyNotify seen this tick for a given
// (window, atom) pair.
type PropertyEvent struct {
	Window xproto.Window
	Atom   xproto.Atom
	State  byte
}

// MotionEvent is the last MotionNotify seen this tick for a window.
type MotionEvent struct {
	Window     xproto.Window
	RootX, RootY int16
}

// ConfigureNotifyEvent is the last ConfigureNotify for a window.
type ConfigureNotifyEvent struct {
	Window        xproto.Window
	X, Y          int16
	Width, Height uint16
}

// Buckets holds one tick's worth of coalesced and append-only events.
// It is reset (not reallocated) at the start of every ingest pass.
type Buckets struct {
	// Append-only, order preserved.
	MapRequests    []xproto.Window
	KeyPresses     []xproto.KeyPressEvent
	ButtonPresses  []xproto.ButtonPressEvent
	ButtonReleases []xproto.ButtonReleaseEvent
	ClientMessages []xproto.ClientMessageEvent

	// Sticky-drop: DestroyNotify for a window suppresses any
	// UnmapNotify for the same window seen later this tick.
	Destroyed map[xproto.Window]bool
	Unmapped  map[xproto.Window]bool

	// Per-window union-rect coalescing.
	ExposeRegions map[xproto.Window]image.Rectangle
	DamageRegions map[xproto.Drawable]image.Rectangle

	// Per-window last-wins coalescing.
	Motion     map[xproto.Window]MotionEvent
	Configure  map[xproto.Window]ConfigureRequestEvent
	ConfigNotify map[xproto.Window]ConfigureNotifyEvent
	Property   map[[2]uint32]PropertyEvent // key: {window, atom}

	// RandR screen-change, last-wins, whole tick.
	RandRDirty  bool
	ScreenWidth, ScreenHeight uint16

	// Ingest bookkeeping.
	Ingested        int
	PollImmediate   bool
}

// New returns an empty, ready-to-use Buckets.
func New() *Buckets {
	return &Buckets{
		Destroyed:    make(map[xproto.Window]bool),
		Unmapped:     make(map[xproto.Window]bool),
		ExposeRegions: make(map[xproto.Window]image.Rectangle),
		DamageRegions: make(map[xproto.Drawable]image.Rectangle),
		Motion:       make(map[xproto.Window]MotionEvent),
		Configure:    make(map[xproto.Window]ConfigureRequestEvent),
		ConfigNotify: make(map[xproto.Window]ConfigureNotifyEvent),
		Property:     make(map[[2]uint32]PropertyEvent),
	}
}

// Reset clears every bucket in place, preserving map capacity across
// ticks so steady-state operation allocates nothing.
func (b *Buckets) Reset() {
	b.MapRequests = b.MapRequests[:0]
	b.KeyPresses = b.KeyPresses[:0]
	b.ButtonPresses = b.ButtonPresses[:0]
	b.ButtonReleases = b.ButtonReleases[:0]
	b.ClientMessages = b.ClientMessages[:0]
	for k := range b.Destroyed {
		delete(b.Destroyed, k)
	}
	for k := range b.Unmapped {
		delete(b.Unmapped, k)
	}
	for k := range b.ExposeRegions {
		delete(b.ExposeRegions, k)
	}
	for k := range b.DamageRegions {
		delete(b.DamageRegions, k)
	}
	for k := range b.Motion {
		delete(b.Motion, k)
	}
	for k := range b.Configure {
		delete(b.Configure, k)
	}
	for k := range b.ConfigNotify {
		delete(b.ConfigNotify, k)
	}
	for k := range b.Property {
		delete(b.Property, k)
	}
	b.RandRDirty = false
	b.Ingested = 0
	b.PollImmediate = false
}

// propKey builds the map key for the per-(window,atom) property bucket.
func propKey(win xproto.Window, atom xproto.Atom) [2]uint32 {
	return [2]uint32{uint32(win), uint32(atom)}
}

// Ingest pulls events from next until it returns nil or Ingested
// reaches maxEvents, dispatching each into its bucket per the
// coalescing rules. When next returns nil (a clean drain),
// PollImmediate is cleared. When the cap is reached, PollImmediate is
// set so the scheduler skips the next epoll wait; Ingest does not check
// whether any events actually remain, so a batch of exactly maxEvents
// also sets it.
func (b *Buckets) Ingest(next func() (xgb.Event, error), maxEvents int) error {
	for b.Ingested < maxEvents {
		ev, err := next()
		if err != nil {
			return err
		}
		if ev == nil {
			b.PollImmediate = false
			return nil
		}
		b.dispatch(ev)
		b.Ingested++
	}
	b.PollImmediate = true
	return nil
}

func (b *Buckets) dispatch(ev xgb.Event) {
	switch e := ev.(type) {
	case xproto.ExposeEvent:
		r := image.Rect(int(e.X), int(e.Y), int(e.X)+int(e.Width), int(e.Y)+int(e.Height))
		b.ExposeRegions[e.Window] = unionOrSelf(b.ExposeRegions, e.Window, r)
	case xproto.MotionNotifyEvent:
		b.Motion[e.Event] = MotionEvent{Window: e.Event, RootX: e.RootX, RootY: e.RootY}
	case xproto.ConfigureRequestEvent:
		cur, had := b.Configure[e.Window]
		merged := ConfigureRequestEvent{
			Window:      e.Window,
			ValueMask:   e.ValueMask,
			X:           e.X,
			Y:           e.Y,
			Width:       e.Width,
			Height:      e.Height,
			BorderWidth: e.BorderWidth,
			Sibling:     e.Sibling,
			StackMode:   e.StackMode,
		}
		if had {
			m := e.ValueMask
			if m&xproto.ConfigWindowX == 0 {
				merged.X = cur.X
			}
			if m&xproto.ConfigWindowY == 0 {
				merged.Y = cur.Y
			}
			if m&xproto.ConfigWindowWidth == 0 {
				merged.Width = cur.Width
			}
			if m&xproto.ConfigWindowHeight == 0 {
				merged.Height = cur.Height
			}
			if m&xproto.ConfigWindowBorderWidth == 0 {
				merged.BorderWidth = cur.BorderWidth
			}
			if m&xproto.ConfigWindowSibling == 0 {
				merged.Sibling = cur.Sibling
			}
			if m&xproto.ConfigWindowStackMode == 0 {
				merged.StackMode = cur.StackMode
			}
			merged.ValueMask |= cur.ValueMask
		}
		b.Configure[e.Window] = merged
	case xproto.ConfigureNotifyEvent:
		b.ConfigNotify[e.Window] = ConfigureNotifyEvent{Window: e.Window, X: e.X, Y: e.Y, Width: e.Width, Height: e.Height}
	case xproto.PropertyNotifyEvent:
		b.Property[propKey(e.Window, e.Atom)] = PropertyEvent{Window: e.Window, Atom: e.Atom, State: e.State}
	case xproto.DestroyNotifyEvent:
		b.Destroyed[e.Window] = true
		delete(b.Unmapped, e.Window)
	case xproto.UnmapNotifyEvent:
		if !b.Destroyed[e.Window] {
			b.Unmapped[e.Window] = true
		}
	case xproto.MapRequestEvent:
		b.MapRequests = append(b.MapRequests, e.Window)
	case xproto.KeyPressEvent:
		b.KeyPresses = append(b.KeyPresses, e)
	case xproto.ButtonPressEvent:
		b.ButtonPresses = append(b.ButtonPresses, e)
	case xproto.ButtonReleaseEvent:
		b.ButtonReleases = append(b.ButtonReleases, e)
	case xproto.ClientMessageEvent:
		b.ClientMessages = append(b.ClientMessages, e)
	case xproto.ReparentNotifyEvent:
		// Ignored unless reparented onto our own root; even then,
		// spec.md §4.C says not to bucket it at all.
	}
}

func unionOrSelf(m map[xproto.Window]image.Rectangle, win xproto.Window, r image.Rectangle) image.Rectangle {
	if existing, ok := m[win]; ok {
		return existing.Union(r)
	}
	return r
}

// DamageNotify coalescing is exposed separately since xproto does not
// define a DamageNotify type in the core protocol (it lives in the
// DAMAGE extension); callers decode the extension event themselves
// and feed the drawable + rectangle here.
func (b *Buckets) AddDamage(drawable xproto.Drawable, r image.Rectangle) {
	if existing, ok := b.DamageRegions[drawable]; ok {
		b.DamageRegions[drawable] = existing.Union(r)
	} else {
		b.DamageRegions[drawable] = r
	}
}

// AddRandRChange records the latest screen-change, last-write-wins.
func (b *Buckets) AddRandRChange(width, height uint16) {
	b.ScreenWidth, b.ScreenHeight = width, height
	b.RandRDirty = true
}
