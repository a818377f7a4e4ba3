// Package cookiejar correlates outstanding asynchronous X requests
// back to the client handle, kind, and payload that issued them, and
// tolerates replies arriving after the client has already died
// (spec.md §4.B — "the central robustness property").
package cookiejar

import (
	"github.com/jezek/xgb/xproto"
	"go.uber.org/zap"

	"github.com/jopamo/hxm/internal/handle"
)

// Kind enumerates the requests the jar correlates.
type Kind int

const (
	KindGetGeometry Kind = iota
	KindGetWindowAttributes
	KindGetProperty
	KindTranslateCoordinates
	KindQueryTree
)

// Slot is one outstanding request. Data packs kind-specific payload:
// for KindGetProperty, the low 32 bits are the property atom and the
// high 32 bits are the window id (spec.md §4.B).
type Slot struct {
	Client   handle.Handle
	Kind     Kind
	Data     uint64
	Sequence uint32

	// orphaned is set once the owning client is gone but the reply
	// hasn't arrived yet; the slot is kept only so Drain has somewhere
	// to route the eventual reply (dropped silently once it lands).
	orphaned bool
}

// PropertyData packs a GetProperty slot's (atom, window) payload.
func PropertyData(atom xproto.Atom, win xproto.Window) uint64 {
	return uint64(win)<<32 | uint64(atom)
}

// PropertyAtomWindow unpacks PropertyData.
func PropertyAtomWindow(data uint64) (atom xproto.Atom, win xproto.Window) {
	return xproto.Atom(uint32(data)), xproto.Window(uint32(data >> 32))
}

// Transport describes a reply source keyed by sequence number (spec.md
// §6 poll_for_reply). Jar.Drain does not use it; it takes a ReplyFunc.
type Transport interface {
	Drain(sequence uint32) (reply interface{}, err error)
}

// LiveChecker reports whether a handle still resolves to a live,
// non-Destroyed client; internal/client.Table satisfies this.
type LiveChecker interface {
	IsManageable(h handle.Handle) bool
}

// Jar is the cookie correlation table.
type Jar struct {
	bySeq map[uint32]*Slot
	log   *zap.Logger
}

// New returns an empty Jar. log may be nil (a no-op logger is used).
func New(log *zap.Logger) *Jar {
	if log == nil {
		log = zap.NewNop()
	}
	return &Jar{bySeq: make(map[uint32]*Slot), log: log}
}

// Len reports the number of outstanding slots (orphaned or not).
func (j *Jar) Len() int { return len(j.bySeq) }

// Register records a new outstanding request.
func (j *Jar) Register(seq uint32, client handle.Handle, kind Kind, data uint64) {
	j.bySeq[seq] = &Slot{Client: client, Kind: kind, Data: data, Sequence: seq}
}

// Orphan marks every slot belonging to client as orphaned, so future
// drains of those sequences are dropped without dereferencing the
// (now-gone) client. Called when a client is unmanaged with
// outstanding cookies (spec.md §4.D "or mark those orphaned").
func (j *Jar) Orphan(client handle.Handle) {
	for _, s := range j.bySeq {
		if s.Client == client {
			s.orphaned = true
		}
	}
}

// HasOutstanding reports whether client still has any slots in the
// jar, orphaned or not; unmanage must not free the slotmap slot while
// this is true (spec.md §4.D, invariant 6).
func (j *Jar) HasOutstanding(client handle.Handle) bool {
	for _, s := range j.bySeq {
		if s.Client == client {
			return true
		}
	}
	return false
}

// ReplyFunc resolves one pending sequence to its reply or error. It
// mirrors internal/xconn.Conn.Drain, which returns an *xconn.Reply;
// internal/wm adapts that into a DrainedReply.
type ReplyFunc func(sequence uint32) (*DrainedReply, error)

// DrainedReply is the raw bytes-and-metadata a transport reply
// carries, deliberately untyped relative to any one X reply struct so
// cookiejar has no xconn-specific import beyond xproto atoms/windows.
type DrainedReply struct {
	Format uint8
	Type   xproto.Atom
	Value  []byte
}

// Delivery is one resolved cookie, handed to the dispatcher. Reply is
// nil when the request errored or the handle was stale; in the stale
// case Dropped is true and the dispatcher must not be invoked at all.
type Delivery struct {
	Slot    Slot
	Reply   *DrainedReply
	Err     error
	Dropped bool
}

// Drain polls reply for up to budget outstanding slots and returns the
// resolved deliveries. Slots whose client is orphaned, or whose handle
// no longer resolves per isLive, are dropped without ever reaching the
// caller's dispatcher — this is the stale-handle robustness property.
// Drain removes every slot it resolves (dropped or not); it is safe to
// call again next tick for whatever remains.
func (j *Jar) Drain(budget int, isLive func(handle.Handle) bool, reply ReplyFunc) []Delivery {
	if budget <= 0 || len(j.bySeq) == 0 {
		return nil
	}

	seqs := make([]uint32, 0, len(j.bySeq))
	for seq := range j.bySeq {
		seqs = append(seqs, seq)
	}
	sortUint32(seqs)

	out := make([]Delivery, 0, budget)
	for _, seq := range seqs {
		if len(out) >= budget {
			break
		}
		slot := j.bySeq[seq]
		delete(j.bySeq, seq)

		r, err := reply(seq)

		stale := slot.orphaned || !isLive(slot.Client)
		if stale {
			j.log.Debug("dropping reply for stale cookie",
				zap.Uint32("sequence", seq), zap.Bool("orphaned", slot.orphaned))
			out = append(out, Delivery{Slot: *slot, Dropped: true})
			continue
		}

		d := Delivery{Slot: *slot}
		if err != nil {
			d.Err = err
		} else {
			d.Reply = r
		}
		out = append(out, d)
	}
	return out
}

// sortUint32 is a tiny insertion sort; jar budgets are small (tens,
// not thousands) so this beats pulling in sort for a few-element
// slice sorted once per tick.
func sortUint32(s []uint32) {
	for i := 1; i < len(s); i++ {
		v := s[i]
		j := i - 1
		for j >= 0 && s[j] > v {
			s[j+1] = s[j]
			j--
		}
		s[j+1] = v
	}
}
