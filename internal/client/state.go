package client

// StateAction mirrors the _NET_WM_STATE ClientMessage action values.
type StateAction uint32

const (
	StateRemove StateAction = 0
	StateAdd    StateAction = 1
	StateToggle StateAction = 2
)

// ApplyStateAction applies action to flag and marks DirtyState. It is
// the single chokepoint spec.md §8 property 5 is stated about. Add and
// remove set or clear the bit outright, whatever came before; toggle
// flips the current bit. So the final bit is the value of the last
// add/remove, flipped once for every toggle that follows it.
func (hot *Hot) ApplyStateAction(action StateAction, flag Flags) {
	switch action {
	case StateAdd:
		hot.Flags |= flag
	case StateRemove:
		hot.Flags &^= flag
	case StateToggle:
		hot.Flags ^= flag
	}
	hot.Dirty |= DirtyState
}

// Has reports whether flag is set.
func (hot *Hot) Has(flag Flags) bool {
	return hot.Flags&flag != 0
}
