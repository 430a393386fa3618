package inventory

import (
	"errors"
	"sort"
	"sync"
	"time"

	"boxoffice/pkg/clock"
	"boxoffice/pkg/model"
)

var (
	ErrUnknownGroup = errors.New("unknown resource group")

	ErrNoUnits = errors.New("unit set cannot be empty")

	ErrInvalidTTL = errors.New("ttl must be positive")
)

// hold is one logical claim over a set of units by one owner. Every unit in
// the set points back at the same hold, so a unit is never half-held.
type hold struct {
	owner     string
	units     map[string]struct{}
	expiresAt time.Time
	createdAt time.Time
}

func (h *hold) expired(now time.Time) bool {
	return !h.expiresAt.After(now)
}

// group is one exclusion domain. All unit state mutation for a group happens
// under its mutex; groups never block each other.
type group struct {
	mu     sync.Mutex
	units  map[string]struct{} // known units, catalog-seeded
	booked map[string]struct{} // terminal
	holds  map[string]*hold    // unitID -> active hold
}

// Table is the single source of truth for unit and lock state. Acquisition is
// all-or-nothing per request: either every requested unit is taken or none
// are, which is what keeps two half-successful callers from starving each
// other. Operations are bounded and never perform I/O; the only time source
// is the injected clock.
type Table struct {
	clk clock.Clock

	mu     sync.RWMutex
	groups map[string]*group
}

func NewTable(clk clock.Clock) *Table {
	return &Table{
		clk:    clk,
		groups: make(map[string]*group),
	}
}

// EnsureGroup seeds a group with catalog-defined units. Units already known
// keep their state; the table never invents or destroys units on its own.
func (t *Table) EnsureGroup(groupID string, unitIDs []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	g, ok := t.groups[groupID]
	if !ok {
		g = &group{
			units:  make(map[string]struct{}, len(unitIDs)),
			booked: make(map[string]struct{}),
			holds:  make(map[string]*hold),
		}
		t.groups[groupID] = g
	}
	g.mu.Lock()
	for _, id := range unitIDs {
		g.units[id] = struct{}{}
	}
	g.mu.Unlock()
}

func (t *Table) HasGroup(groupID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.groups[groupID]
	return ok
}

func (t *Table) getGroup(groupID string) (*group, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	g, ok := t.groups[groupID]
	return g, ok
}

// TryLock attempts an all-or-nothing acquisition of unitIDs for ownerID.
// Expired holds touching the requested units are evicted first, so a caller
// never loses to a vanished owner. Units already held by the same owner are
// idempotent re-locks and keep their original expiry; only newly acquired
// units get a fresh TTL.
func (t *Table) TryLock(groupID string, unitIDs []string, ownerID string, ttl time.Duration) (model.LockResult, error) {
	if len(unitIDs) == 0 {
		return model.LockResult{}, ErrNoUnits
	}
	if ttl <= 0 {
		return model.LockResult{}, ErrInvalidTTL
	}
	g, ok := t.getGroup(groupID)
	if !ok {
		return model.LockResult{}, ErrUnknownGroup
	}

	now := t.clk.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.evictExpiredTouching(now, unitIDs)

	var conflicting []string
	for _, id := range unitIDs {
		if _, known := g.units[id]; !known {
			conflicting = append(conflicting, id)
			continue
		}
		if _, isBooked := g.booked[id]; isBooked {
			conflicting = append(conflicting, id)
			continue
		}
		if h, held := g.holds[id]; held && h.owner != ownerID {
			conflicting = append(conflicting, id)
		}
	}
	if len(conflicting) > 0 {
		sort.Strings(conflicting)
		return model.LockResult{Granted: false, Conflicting: conflicting}, nil
	}

	var fresh []string
	expiresAt := now.Add(ttl)
	minExpiry := expiresAt
	for _, id := range unitIDs {
		if h, held := g.holds[id]; held {
			if h.expiresAt.Before(minExpiry) {
				minExpiry = h.expiresAt
			}
			continue
		}
		fresh = append(fresh, id)
	}
	if len(fresh) > 0 {
		h := &hold{
			owner:     ownerID,
			units:     make(map[string]struct{}, len(fresh)),
			expiresAt: expiresAt,
			createdAt: now,
		}
		for _, id := range fresh {
			h.units[id] = struct{}{}
			g.holds[id] = h
		}
	}

	return model.LockResult{Granted: true, ExpiresAt: minExpiry}, nil
}

// Release gives back units whose hold belongs to ownerID. Units held by
// someone else or already booked are left untouched; releasing an expired or
// absent hold is a no-op, not an error.
func (t *Table) Release(groupID string, unitIDs []string, ownerID string) bool {
	g, ok := t.getGroup(groupID)
	if !ok {
		return false
	}

	now := t.clk.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.evictExpiredTouching(now, unitIDs)

	released := false
	for _, id := range unitIDs {
		h, held := g.holds[id]
		if !held || h.owner != ownerID {
			continue
		}
		delete(h.units, id)
		delete(g.holds, id)
		released = true
	}
	return released
}

// Renew extends the expiry of the owner's holds over unitIDs. All requested
// units must still be held and unexpired, otherwise nothing changes.
func (t *Table) Renew(groupID string, unitIDs []string, ownerID string, ttl time.Duration) bool {
	if len(unitIDs) == 0 || ttl <= 0 {
		return false
	}
	g, ok := t.getGroup(groupID)
	if !ok {
		return false
	}

	now := t.clk.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.evictExpiredTouching(now, unitIDs)

	touched := make(map[*hold]struct{})
	for _, id := range unitIDs {
		h, held := g.holds[id]
		if !held || h.owner != ownerID {
			return false
		}
		touched[h] = struct{}{}
	}
	expiresAt := now.Add(ttl)
	for h := range touched {
		h.expiresAt = expiresAt
	}
	return true
}

// MarkBooked transitions LOCKED -> BOOKED for units currently held by
// ownerID. If any unit's hold has expired or belongs to someone else, nothing
// changes and false is returned; this is what protects a lock that lapsed
// mid-payment from being confirmed anyway.
func (t *Table) MarkBooked(groupID string, unitIDs []string, ownerID string) bool {
	if len(unitIDs) == 0 {
		return false
	}
	g, ok := t.getGroup(groupID)
	if !ok {
		return false
	}

	now := t.clk.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	g.evictExpiredTouching(now, unitIDs)

	for _, id := range unitIDs {
		h, held := g.holds[id]
		if !held || h.owner != ownerID {
			return false
		}
	}
	for _, id := range unitIDs {
		h := g.holds[id]
		delete(h.units, id)
		delete(g.holds, id)
		g.booked[id] = struct{}{}
	}
	return true
}

// HoldsExactly reports whether ownerID's live holds in the group cover the
// requested units and nothing else. Booking creation requires the lock to
// match the booked set exactly.
func (t *Table) HoldsExactly(groupID string, unitIDs []string, ownerID string) bool {
	g, ok := t.getGroup(groupID)
	if !ok {
		return false
	}

	now := t.clk.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	requested := make(map[string]struct{}, len(unitIDs))
	for _, id := range unitIDs {
		requested[id] = struct{}{}
	}

	owned := 0
	for id, h := range g.holds {
		if h.owner != ownerID || h.expired(now) {
			continue
		}
		if _, want := requested[id]; !want {
			return false
		}
		owned++
	}
	return owned == len(requested)
}

// OwnedUnits returns the units ownerID currently holds live locks over in
// the group, sorted.
func (t *Table) OwnedUnits(groupID, ownerID string) []string {
	g, ok := t.getGroup(groupID)
	if !ok {
		return nil
	}

	now := t.clk.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	var owned []string
	for id, h := range g.holds {
		if h.owner == ownerID && !h.expired(now) {
			owned = append(owned, id)
		}
	}
	sort.Strings(owned)
	return owned
}

// SnapshotLocked returns the units currently under an unexpired hold.
// Read-only diagnostics; not on the coordinator's critical path.
func (t *Table) SnapshotLocked(groupID string) []string {
	g, ok := t.getGroup(groupID)
	if !ok {
		return nil
	}

	now := t.clk.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	locked := make([]string, 0, len(g.holds))
	for id, h := range g.holds {
		if !h.expired(now) {
			locked = append(locked, id)
		}
	}
	sort.Strings(locked)
	return locked
}

// SnapshotAvailable returns the units that are neither booked nor under an
// unexpired hold.
func (t *Table) SnapshotAvailable(groupID string) []string {
	g, ok := t.getGroup(groupID)
	if !ok {
		return nil
	}

	now := t.clk.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	available := make([]string, 0, len(g.units))
	for id := range g.units {
		if _, isBooked := g.booked[id]; isBooked {
			continue
		}
		if h, held := g.holds[id]; held && !h.expired(now) {
			continue
		}
		available = append(available, id)
	}
	sort.Strings(available)
	return available
}

// SnapshotStates returns the state of every unit in the group.
func (t *Table) SnapshotStates(groupID string) map[string]model.UnitState {
	g, ok := t.getGroup(groupID)
	if !ok {
		return nil
	}

	now := t.clk.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	states := make(map[string]model.UnitState, len(g.units))
	for id := range g.units {
		if _, isBooked := g.booked[id]; isBooked {
			states[id] = model.UnitBooked
			continue
		}
		if h, held := g.holds[id]; held && !h.expired(now) {
			states[id] = model.UnitLocked
			continue
		}
		states[id] = model.UnitAvailable
	}
	return states
}

// SweepExpired reclaims every expired hold across all groups and returns the
// number of units freed. Used by the reaper so availability queries stay
// accurate without waiting for new lock attempts.
func (t *Table) SweepExpired() int {
	t.mu.RLock()
	groups := make([]*group, 0, len(t.groups))
	for _, g := range t.groups {
		groups = append(groups, g)
	}
	t.mu.RUnlock()

	now := t.clk.Now()
	reclaimed := 0
	for _, g := range groups {
		g.mu.Lock()
		for id, h := range g.holds {
			if h.expired(now) {
				delete(h.units, id)
				delete(g.holds, id)
				reclaimed++
			}
		}
		g.mu.Unlock()
	}
	return reclaimed
}

// evictExpiredTouching removes expired holds covering any of the given units.
// A hold is one logical claim, so the whole hold goes, not just the touched
// unit. Caller must hold g.mu.
func (g *group) evictExpiredTouching(now time.Time, unitIDs []string) {
	for _, id := range unitIDs {
		h, held := g.holds[id]
		if !held || !h.expired(now) {
			continue
		}
		for unit := range h.units {
			delete(g.holds, unit)
		}
		h.units = nil
	}
}
