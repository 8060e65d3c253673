// Package ring implements the sequence-numbered, multi-reader ring buffer
// that is the data-plane substrate of the whole node: a capacity-bounded
// buffer where one or more writers publish timestamped payloads and any
// number of independent readers drain them at their own pace, each seeing
// gaps reported rather than blocking the writer.
//
// Grounded on the single-producer design in JoshuaSkootsky's
// wait-free-write-buffer (per-slot atomic sequence number, gap detection via
// sequence comparison), generalized here to multiple named readers using an
// open-addressed reader-position table.
package ring

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
)

// readerTableSize is the fixed number of concurrent reader identities a ring
// can track (spec §4.1: "implementations must support at least 64
// concurrent readers").
const readerTableSize = 64

// lockSpin bounds how long a writer spins trying to claim a slot's mutex
// before giving up and counting a drop (spec §4.1: "a simple per-slot
// read-write lock with a short timeout is acceptable").
const lockSpin = 5 * time.Millisecond

// record is the immutable payload a writer atomically installs into a slot.
// Because the whole record is swapped via a single pointer store/load, a
// reader that loads it observes either the previous or the new record in
// full — never a torn mix of the two — without needing a retry loop.
type record[T any] struct {
	seq     uint64
	utcNano uint64
	payload T
}

type slot[T any] struct {
	rec atomic.Pointer[record[T]]
	mu  sync.Mutex
}

// readerSlot is one bucket of the open-addressed reader-position table.
type readerSlot struct {
	idHash   atomic.Uint64 // 0 means empty
	id       string
	position atomic.Uint64 // next sequence to deliver to this reader
	seen     atomic.Bool   // false until the reader is first seated (SeatReader, a pop, or AvailableForReader), for live-start semantics
}

// Stats is the stable diagnostic shape returned by Ring.Stats (spec §4.1,
// §6 "ring-buffer diagnostic surface").
type Stats struct {
	Capacity       int
	Frames         int
	DroppedFrames  uint64
	LatestUTCNanos uint64
	OldestUTCNanos uint64
}

// Ring is a capacity-bounded, sequence-numbered, multi-reader buffer of T.
// The zero value is not usable; construct with New.
type Ring[T any] struct {
	slots    []slot[T]
	capacity uint64

	nextSeq atomic.Uint64 // next sequence to assign on publish
	headSeq atomic.Uint64 // last published sequence; 0 means empty

	readers   [readerTableSize]readerSlot
	readersMu sync.Mutex // guards claiming a new bucket; positions themselves are lock-free

	dropped atomic.Uint64

	log *slog.Logger
}

// New preallocates a ring of the given capacity. Capacity must be > 0. A
// nil logger disables the diagnostic policy described in spec §4.1.
func New[T any](capacity int, log *slog.Logger) *Ring[T] {
	if capacity <= 0 {
		panic("ring: capacity must be > 0")
	}
	r := &Ring[T]{
		slots:    make([]slot[T], capacity),
		capacity: uint64(capacity),
		log:      log,
	}
	return r
}

// Push publishes payload with the given UTC timestamp and returns the new
// length of the ring. Push never blocks on a reader and never fails on a
// full ring; the oldest slot is simply overwritten and the dropped-frame
// counter is incremented.
func (r *Ring[T]) Push(payload T, utcNanos uint64) int {
	seq := r.nextSeq.Add(1) // sequence numbers start at 1 (spec §3)
	idx := (seq - 1) % r.capacity

	s := &r.slots[idx]
	if !r.claimSlot(s) {
		// Could not claim the slot's mutex in time: another writer is mid-
		// publish on the same index (ring capacity << writer count, an
		// adversarial scenario). Count the drop and move on; the data
		// plane never blocks on this.
		r.dropped.Add(1)
		r.logLockTimeout(seq)
		return r.Len()
	}
	defer s.mu.Unlock()

	if prev := s.rec.Load(); prev != nil {
		r.dropped.Add(1)
	}
	s.rec.Store(&record[T]{seq: seq, utcNano: utcNanos, payload: payload})
	r.headSeq.Store(seq)

	r.logPush(seq)
	return r.Len()
}

func (r *Ring[T]) claimSlot(s *slot[T]) bool {
	deadline := time.Now().Add(lockSpin)
	for {
		if s.mu.TryLock() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
	}
}

// PopForReader returns the next undelivered payload for readerID, or
// (zero, false) if the reader is caught up, the reader table is full, or
// the ring is empty. On first use the reader starts from the live head
// (spec §3: "new readers start from live, not from the oldest retained
// frame").
func (r *Ring[T]) PopForReader(readerID string) (payload T, utcNanos uint64, ok bool) {
	payload, utcNanos, ok, _ = r.popOrGap(readerID)
	return payload, utcNanos, ok
}

// PopOrGap behaves like PopForReader but additionally reports, on the call
// where a reader snaps forward past one or more sequences it never read,
// how many it missed. missed is computed from the reader's own distance to
// head (head - next + 1 - capacity) rather than the ring's lifetime drop
// count, so it reflects exactly what this reader lost and not what any
// other reader or writer churn may have dropped (spec §4.2: "reports Gap
// exactly once with the number of missed sequences").
func (r *Ring[T]) PopOrGap(readerID string) (payload T, utcNanos uint64, ok bool, missed uint64) {
	return r.popOrGap(readerID)
}

func (r *Ring[T]) popOrGap(readerID string) (payload T, utcNanos uint64, ok bool, missed uint64) {
	rs, found := r.claimReader(readerID)
	if !found {
		if r.log != nil {
			r.log.Warn("ring: no reader slot available", "reader_id", readerID)
		}
		var zero T
		return zero, 0, false, 0
	}

	head := r.seedIfUnseen(rs)

	pos := rs.position.Load()
	oldest := r.oldestRetainedSeq(head)
	if pos < oldest {
		// Reader fell more than capacity behind; snap forward and report
		// no frame this call (spec §4.1).
		missed := oldest - pos
		rs.position.Store(oldest)
		r.dropped.Add(missed)
		var zero T
		return zero, 0, false, missed
	}
	if pos > head || head == 0 {
		var zero T
		return zero, 0, false, 0
	}

	idx := (pos - 1) % r.capacity
	s := &r.slots[idx]
	rec := s.rec.Load()
	if rec == nil || rec.seq != pos {
		// Writer has lapped this slot since we computed pos; snap forward.
		newHead := r.headSeq.Load()
		newOldest := r.oldestRetainedSeq(newHead)
		var missed uint64
		if newOldest > pos {
			missed = newOldest - pos
		}
		rs.position.Store(newOldest)
		r.dropped.Add(missed)
		if r.log != nil {
			r.log.Warn("ring: sequence mismatch, snapping reader forward", "reader_id", readerID, "expected_seq", pos)
		}
		var zero T
		return zero, 0, false, missed
	}

	rs.position.Store(pos + 1)
	r.logPop(readerID, rec.seq)
	return rec.payload, rec.utcNano, true, 0
}

// SeatReader seats readerID at the ring's current head without consuming
// anything, so a reader resolved at wiring time (before any frame has been
// pushed to it) only ever delivers frames published after this call — it
// does not wait for a first Pop/AvailableForReader to seed it (spec §3,
// mirroring the original's subscribe-at-wiring semantics). Calling it more
// than once for the same reader id after it has already been seen, by this
// call or any Pop/AvailableForReader call, is a no-op.
func (r *Ring[T]) SeatReader(readerID string) {
	rs, found := r.claimReader(readerID)
	if !found {
		if r.log != nil {
			r.log.Warn("ring: no reader slot available", "reader_id", readerID)
		}
		return
	}
	r.seedIfUnseen(rs)
}

// Pop is shorthand for PopForReader("default").
func (r *Ring[T]) Pop() (payload T, utcNanos uint64, ok bool) {
	return r.PopForReader("default")
}

// AvailableForReader returns the count of deliverable frames for readerID
// without consuming any of them.
func (r *Ring[T]) AvailableForReader(readerID string) int {
	rs, found := r.claimReader(readerID)
	if !found {
		return 0
	}
	head := r.seedIfUnseen(rs)
	pos := rs.position.Load()
	oldest := r.oldestRetainedSeq(head)
	if pos < oldest {
		pos = oldest
	}
	if head < pos {
		return 0
	}
	return int(head-pos) + 1
}

// Len returns the number of frames currently retained in the ring.
func (r *Ring[T]) Len() int {
	head := r.headSeq.Load()
	if head == 0 {
		return 0
	}
	oldest := r.oldestRetainedSeq(head)
	return int(head-oldest) + 1
}

// Stats returns the stable diagnostic snapshot described in spec §4.1/§6.
func (r *Ring[T]) Stats() Stats {
	head := r.headSeq.Load()
	frames := r.Len()
	st := Stats{
		Capacity:      int(r.capacity),
		Frames:        frames,
		DroppedFrames: r.dropped.Load(),
	}
	if head == 0 {
		return st
	}
	if rec := r.slots[(head-1)%r.capacity].rec.Load(); rec != nil {
		st.LatestUTCNanos = rec.utcNano
	}
	oldest := r.oldestRetainedSeq(head)
	if rec := r.slots[(oldest-1)%r.capacity].rec.Load(); rec != nil && rec.seq == oldest {
		st.OldestUTCNanos = rec.utcNano
	}
	return st
}

// Clear resets the ring to its initial empty state: head, next_seq, every
// slot, and every reader position.
func (r *Ring[T]) Clear() {
	r.nextSeq.Store(0)
	r.headSeq.Store(0)
	r.dropped.Store(0)
	for i := range r.slots {
		r.slots[i].rec.Store(nil)
	}
	for i := range r.readers {
		r.readers[i].idHash.Store(0)
		r.readers[i].id = ""
		r.readers[i].position.Store(0)
		r.readers[i].seen.Store(false)
	}
}

// Snapshot returns an immutable copy of every frame currently retained, in
// sequence order, oldest first.
func (r *Ring[T]) Snapshot() []T {
	head := r.headSeq.Load()
	if head == 0 {
		return nil
	}
	oldest := r.oldestRetainedSeq(head)
	out := make([]T, 0, head-oldest+1)
	for seq := oldest; seq <= head; seq++ {
		rec := r.slots[(seq-1)%r.capacity].rec.Load()
		if rec == nil || rec.seq != seq {
			continue // overwritten mid-snapshot; skip rather than block
		}
		out = append(out, rec.payload)
	}
	return out
}

// seedIfUnseen initializes rs to start from live on its first use and
// returns the current head sequence. "Start from live" means the next
// frame to deliver is the one after whatever has already been published,
// never the current head itself (spec §8: "a fresh reader sees no frames"
// immediately after a push).
func (r *Ring[T]) seedIfUnseen(rs *readerSlot) uint64 {
	head := r.headSeq.Load()
	if !rs.seen.Load() {
		rs.position.Store(head + 1)
		rs.seen.Store(true)
	}
	return head
}

func (r *Ring[T]) oldestRetainedSeq(head uint64) uint64 {
	if head == 0 {
		return 0
	}
	if head <= r.capacity {
		return 1
	}
	return head - r.capacity + 1
}

// claimReader resolves readerID to its table bucket, seating it in the
// first empty slot of the probe sequence if this is the first time this id
// has been seen. Returns found=false if the table has no empty bucket left
// and this id was never seated.
//
// The probe itself is taken under readersMu: it runs once per reader per
// Push/Pop cycle, never in the writer's path, so serializing it costs
// nothing the spec's wait-free guarantee (which covers steady-state payload
// delivery, not reader-identity lookup) requires to be lock-free.
func (r *Ring[T]) claimReader(readerID string) (*readerSlot, bool) {
	h := xxhash.Sum64String(readerID)
	if h == 0 {
		h = 1 // 0 is reserved for "empty" (spec §4.1)
	}
	start := h % readerTableSize

	r.readersMu.Lock()
	defer r.readersMu.Unlock()

	for probe := uint64(0); probe < readerTableSize; probe++ {
		idx := (start + probe) % readerTableSize
		rs := &r.readers[idx]

		existing := rs.idHash.Load()
		if existing == h && rs.id == readerID {
			return rs, true
		}
		if existing == 0 {
			rs.id = readerID
			rs.idHash.Store(h)
			return rs, true
		}
	}
	return nil, false
}

func (r *Ring[T]) logPush(seq uint64) {
	if r.log == nil {
		return
	}
	if seq%50 == 0 || seq <= 5 {
		r.log.Debug("ring: push", "seq", seq)
	}
	if float64(r.Len()) > 0.8*float64(r.capacity) {
		r.log.Warn("ring: nearing capacity", "len", r.Len(), "capacity", r.capacity)
	}
}

func (r *Ring[T]) logPop(readerID string, seq uint64) {
	if r.log == nil {
		return
	}
	if seq%100 == 0 {
		r.log.Debug("ring: pop", "reader_id", readerID, "seq", seq)
	}
}

func (r *Ring[T]) logLockTimeout(seq uint64) {
	if r.log == nil {
		return
	}
	r.log.Warn("ring: slot lock timeout", "seq", seq)
}
