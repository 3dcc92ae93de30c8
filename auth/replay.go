package auth

import (
	"container/list"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultClockSkew is the tolerance applied to request timestamps in
	// strict mode when the client does not configure one.
	DefaultClockSkew = 5 * time.Minute

	maxAllowedClockSkew = 10 * time.Minute
	defaultNonceCap     = 4096
	maxNonceCap         = 65536
)

var (
	// ErrNonceReused indicates a nonce observed a second time inside the
	// replay window.
	ErrNonceReused = errors.New("nonce reused")
	// ErrTimestampSkew indicates a timestamp outside the allowed clock skew.
	ErrTimestampSkew = errors.New("timestamp outside allowed skew")
)

// Mode selects how strictly outbound requests are protected against replay.
// The zero value is ModeStrict so a partially constructed configuration fails
// closed rather than silently dropping replay markers.
type Mode int

const (
	// ModeStrict attaches a nonce and timestamp and rejects duplicates and
	// skewed timestamps locally before any network activity.
	ModeStrict Mode = iota
	// ModeLenient attaches a nonce and timestamp but delegates duplicate and
	// skew rejection to the server.
	ModeLenient
	// ModeDisabled attaches no replay markers at all.
	ModeDisabled
)

func (m Mode) String() string {
	switch m {
	case ModeStrict:
		return "strict"
	case ModeLenient:
		return "lenient"
	case ModeDisabled:
		return "disabled"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps the configuration spelling of a replay mode to its value.
func ParseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "strict":
		return ModeStrict, nil
	case "lenient", "nonce":
		return ModeLenient, nil
	case "disabled", "none", "off":
		return ModeDisabled, nil
	default:
		return ModeStrict, fmt.Errorf("unknown replay protection mode %q", raw)
	}
}

// Stamp carries the freshness markers attached to one outbound request.
// Both fields are empty when replay protection is disabled.
type Stamp struct {
	Nonce     string
	Timestamp string
}

// Guard owns the replay policy for a single client instance: it resolves the
// per-request nonce and timestamp and, in strict mode, tracks recently used
// nonces in a TTL and capacity bounded in-memory store. A Guard is safe for
// concurrent use and its state dies with the owning client.
type Guard struct {
	mode     Mode
	skew     time.Duration
	now      func() time.Time
	newNonce func() string
	store    *nonceStore
}

// NewGuard builds a guard for the given mode. The skew tolerance is clamped
// to a documented maximum; capacity bounds the nonce store in strict mode.
// nowFn and nonceFn default to the wall clock and the client's generator.
func NewGuard(mode Mode, skew time.Duration, capacity int, nowFn func() time.Time, nonceFn func() string) *Guard {
	if skew <= 0 {
		skew = DefaultClockSkew
	}
	if skew > maxAllowedClockSkew {
		skew = maxAllowedClockSkew
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if nonceFn == nil {
		nonceFn = uuid.NewString
	}
	return &Guard{
		mode:     mode,
		skew:     skew,
		now:      nowFn,
		newNonce: nonceFn,
		store:    newNonceStore(skew, capacity),
	}
}

// Mode returns the configured replay protection mode.
func (g *Guard) Mode() Mode { return g.mode }

// Skew returns the effective clock skew tolerance.
func (g *Guard) Skew() time.Duration { return g.skew }

// Stamp resolves the freshness markers for one outbound request. A non-empty
// requestID is used verbatim as the nonce, otherwise one is generated. In
// strict mode the nonce is tentatively reserved: the returned reservation
// must be Committed once the request has been handed to the transport, or
// Released if it never was, so a cancelled call does not poison a retry.
// A duplicate nonce inside the replay window fails with ErrNonceReused.
func (g *Guard) Stamp(requestID string) (Stamp, *Reservation, error) {
	if g.mode == ModeDisabled {
		return Stamp{}, nil, nil
	}
	nonce := strings.TrimSpace(requestID)
	if nonce == "" {
		nonce = g.newNonce()
	}
	now := g.now().UTC()
	st := Stamp{
		Nonce:     nonce,
		Timestamp: strconv.FormatInt(now.UnixMilli(), 10),
	}
	if g.mode != ModeStrict {
		return st, nil, nil
	}
	if g.store.Seen(nonce, now) {
		return Stamp{}, nil, fmt.Errorf("%w: nonce %q seen within the last %s", ErrNonceReused, nonce, g.skew)
	}
	return st, &Reservation{store: g.store, key: nonce}, nil
}

// ValidateTimestamp checks an epoch-millisecond timestamp against the guard's
// clock skew tolerance. Lenient and disabled guards accept everything.
func (g *Guard) ValidateTimestamp(raw string) error {
	if g.mode != ModeStrict {
		return nil
	}
	millis, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: unparseable timestamp %q", ErrTimestampSkew, raw)
	}
	delta := g.now().UTC().Sub(time.UnixMilli(millis))
	if delta < 0 {
		delta = -delta
	}
	if delta > g.skew {
		return fmt.Errorf("%w: delta %s exceeds tolerance %s", ErrTimestampSkew, delta, g.skew)
	}
	return nil
}

// Reservation is a tentatively claimed nonce. Commit keeps the claim so later
// reuse is rejected; Release withdraws it. Both are idempotent and safe on a
// nil reservation, which is what lenient and disabled guards hand out.
type Reservation struct {
	store *nonceStore
	key   string

	mu   sync.Mutex
	done bool
}

// Commit finalises the claim after the request was handed to the transport.
func (r *Reservation) Commit() {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.done = true
	r.mu.Unlock()
}

// Release withdraws the claim for a request that was never sent.
func (r *Reservation) Release() {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.done = true
	r.store.Remove(r.key)
}

// nonceStore tracks recently observed nonces with lazy time-based eviction
// and a hard capacity bound.
type nonceStore struct {
	ttl      time.Duration
	capacity int

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
}

type nonceEntry struct {
	key string
	ts  time.Time
}

func newNonceStore(ttl time.Duration, capacity int) *nonceStore {
	if capacity <= 0 {
		capacity = defaultNonceCap
	}
	if capacity > maxNonceCap {
		capacity = maxNonceCap
	}
	return &nonceStore{
		ttl:      ttl,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Seen returns true if the nonce was already observed within the TTL window,
// inserting it otherwise.
func (n *nonceStore) Seen(key string, now time.Time) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.evictExpired(now.Add(-n.ttl))
	if _, exists := n.entries[key]; exists {
		return true
	}
	if n.capacity > 0 {
		for n.order.Len() >= n.capacity {
			n.evictFront()
		}
	}
	elem := n.order.PushBack(nonceEntry{key: key, ts: now})
	n.entries[key] = elem
	return false
}

// Remove withdraws a nonce so a request that never reached the wire can be
// retried with the same id.
func (n *nonceStore) Remove(key string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	elem, ok := n.entries[key]
	if !ok {
		return
	}
	n.order.Remove(elem)
	delete(n.entries, key)
}

func (n *nonceStore) evictExpired(cutoff time.Time) {
	for {
		front := n.order.Front()
		if front == nil {
			return
		}
		entry := front.Value.(nonceEntry)
		if !entry.ts.Before(cutoff) {
			return
		}
		n.order.Remove(front)
		delete(n.entries, entry.key)
	}
}

func (n *nonceStore) evictFront() {
	front := n.order.Front()
	if front == nil {
		return
	}
	entry := front.Value.(nonceEntry)
	n.order.Remove(front)
	delete(n.entries, entry.key)
}
