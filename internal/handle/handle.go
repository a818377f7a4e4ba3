// Package handle implements generational handles over a dense slotmap.
//
// A Handle is the only long-lived reference to a client record kept
// outside the slotmap itself: focus history, transient-for links, and
// stacking layers all store a Handle rather than a pointer, so a slot
// reused after free never aliases a stale reference.
package handle

import "fmt"

// Handle packs a slot index and a generation counter into a single
// 64-bit value. The zero Handle is never valid (Invalid == Handle{}).
type Handle struct {
	index      uint32
	generation uint32
}

// Invalid is the sentinel "no handle" value.
var Invalid = Handle{}

// IsValid reports whether h is not the sentinel. It does not imply
// the handle still resolves in any particular Slotmap.
func (h Handle) IsValid() bool {
	return h != Invalid
}

func (h Handle) String() string {
	return fmt.Sprintf("#%d.%d", h.index, h.generation)
}

type slot struct {
	live       bool
	generation uint32
}

// Slotmap is a dense array of slot headers plus two parallel payload
// arrays, "hot" and "cold". Hot holds the fields touched every tick;
// Cold holds string-heavy, rarely-touched fields. Both are indexed by
// the same slot index as the header array.
type Slotmap[Hot any, Cold any] struct {
	slots []slot
	hot   []Hot
	cold  []Cold
	free  []uint32
	count int
}

// New returns an empty Slotmap with room for capacity live slots
// before the first growth.
func New[Hot any, Cold any](capacity int) *Slotmap[Hot, Cold] {
	return &Slotmap[Hot, Cold]{
		slots: make([]slot, 0, capacity),
		hot:   make([]Hot, 0, capacity),
		cold:  make([]Cold, 0, capacity),
	}
}

// Len returns the number of live slots.
func (s *Slotmap[Hot, Cold]) Len() int { return s.count }

// Alloc reserves a slot, returning its handle and zeroed payloads.
// Generation starts (or continues) counting from whatever the slot's
// prior occupant left behind, so stale handles from before this Alloc
// can never match.
func (s *Slotmap[Hot, Cold]) Alloc() (Handle, *Hot, *Cold) {
	var idx uint32
	if n := len(s.free); n > 0 {
		idx = s.free[n-1]
		s.free = s.free[:n-1]
	} else {
		idx = uint32(len(s.slots))
		s.slots = append(s.slots, slot{})
		var zh Hot
		var zc Cold
		s.hot = append(s.hot, zh)
		s.cold = append(s.cold, zc)
	}

	sl := &s.slots[idx]
	sl.live = true
	sl.generation++

	var zh Hot
	var zc Cold
	s.hot[idx] = zh
	s.cold[idx] = zc
	s.count++

	return Handle{index: idx, generation: sl.generation}, &s.hot[idx], &s.cold[idx]
}

// Free releases h's slot. Future Lookups of h fail because the slot's
// generation has already moved on.
func (s *Slotmap[Hot, Cold]) Free(h Handle) bool {
	if int(h.index) >= len(s.slots) {
		return false
	}
	sl := &s.slots[h.index]
	if !sl.live || sl.generation != h.generation {
		return false
	}
	sl.live = false
	s.free = append(s.free, h.index)
	s.count--
	return true
}

// Lookup resolves h to its hot and cold payloads. It returns ok=false
// on generation mismatch or a freed/out-of-range slot.
func (s *Slotmap[Hot, Cold]) Lookup(h Handle) (hot *Hot, cold *Cold, ok bool) {
	if !h.IsValid() || int(h.index) >= len(s.slots) {
		return nil, nil, false
	}
	sl := &s.slots[h.index]
	if !sl.live || sl.generation != h.generation {
		return nil, nil, false
	}
	return &s.hot[h.index], &s.cold[h.index], true
}

// IsLive reports whether h currently resolves.
func (s *Slotmap[Hot, Cold]) IsLive(h Handle) bool {
	_, _, ok := s.Lookup(h)
	return ok
}

// Each calls fn for every live slot's handle and hot/cold payload, in
// slot order, skipping freed slots.
func (s *Slotmap[Hot, Cold]) Each(fn func(Handle, *Hot, *Cold)) {
	for i := range s.slots {
		if !s.slots[i].live {
			continue
		}
		h := Handle{index: uint32(i), generation: s.slots[i].generation}
		fn(h, &s.hot[i], &s.cold[i])
	}
}
