package inventory

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"boxoffice/pkg/clock"
	"boxoffice/pkg/model"
)

var testStart = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestTable(t *testing.T, unitIDs ...string) (*Table, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(testStart)
	table := NewTable(clk)
	if len(unitIDs) == 0 {
		unitIDs = []string{"A1", "A2", "A3", "B1", "B2"}
	}
	table.EnsureGroup("show-1", unitIDs)
	return table, clk
}

func TestTryLockAllOrNothing(t *testing.T) {
	tests := []struct {
		name            string
		preLock         []string // acquired by "rival" first
		request         []string
		wantGranted     bool
		wantConflicting []string
	}{
		{
			name:        "all free units granted",
			request:     []string{"A1", "A2"},
			wantGranted: true,
		},
		{
			name:            "one conflicting unit denies the whole request",
			preLock:         []string{"A2"},
			request:         []string{"A1", "A2", "A3"},
			wantGranted:     false,
			wantConflicting: []string{"A2"},
		},
		{
			name:            "unknown unit counts as conflicting",
			request:         []string{"A1", "Z9"},
			wantGranted:     false,
			wantConflicting: []string{"Z9"},
		},
		{
			name:            "conflicting units are reported sorted",
			preLock:         []string{"B2", "A2"},
			request:         []string{"B2", "A2", "A1"},
			wantGranted:     false,
			wantConflicting: []string{"A2", "B2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, _ := newTestTable(t)
			if len(tt.preLock) > 0 {
				res, err := table.TryLock("show-1", tt.preLock, "rival", time.Minute)
				if err != nil || !res.Granted {
					t.Fatalf("setup lock failed: granted=%v err=%v", res.Granted, err)
				}
			}

			res, err := table.TryLock("show-1", tt.request, "alice", time.Minute)
			if err != nil {
				t.Fatalf("TryLock() error = %v", err)
			}
			if res.Granted != tt.wantGranted {
				t.Errorf("Granted = %v, want %v", res.Granted, tt.wantGranted)
			}
			if !reflect.DeepEqual(res.Conflicting, tt.wantConflicting) {
				t.Errorf("Conflicting = %v, want %v", res.Conflicting, tt.wantConflicting)
			}

			if !tt.wantGranted {
				// Denial must not leave partial state behind.
				for _, id := range tt.request {
					if contains(table.OwnedUnits("show-1", "alice"), id) {
						t.Errorf("unit %s acquired despite denial", id)
					}
				}
			}
		})
	}
}

func TestTryLockValidation(t *testing.T) {
	table, _ := newTestTable(t)

	if _, err := table.TryLock("show-1", nil, "alice", time.Minute); err != ErrNoUnits {
		t.Errorf("empty unit set: err = %v, want ErrNoUnits", err)
	}
	if _, err := table.TryLock("show-1", []string{"A1"}, "alice", 0); err != ErrInvalidTTL {
		t.Errorf("zero ttl: err = %v, want ErrInvalidTTL", err)
	}
	if _, err := table.TryLock("no-such-group", []string{"A1"}, "alice", time.Minute); err != ErrUnknownGroup {
		t.Errorf("unknown group: err = %v, want ErrUnknownGroup", err)
	}
}

func TestTryLockIdempotentForSameOwner(t *testing.T) {
	table, clk := newTestTable(t)

	first, err := table.TryLock("show-1", []string{"A1", "A2"}, "alice", time.Minute)
	if err != nil || !first.Granted {
		t.Fatalf("first lock: granted=%v err=%v", first.Granted, err)
	}

	clk.Advance(30 * time.Second)

	// Re-locking held units succeeds but does not extend the original expiry.
	second, err := table.TryLock("show-1", []string{"A1", "A2"}, "alice", time.Minute)
	if err != nil || !second.Granted {
		t.Fatalf("re-lock: granted=%v err=%v", second.Granted, err)
	}
	if !second.ExpiresAt.Equal(first.ExpiresAt) {
		t.Errorf("re-lock ExpiresAt = %v, want original %v", second.ExpiresAt, first.ExpiresAt)
	}
}

func TestTryLockExpiredHoldIsEvicted(t *testing.T) {
	table, clk := newTestTable(t)

	if res, _ := table.TryLock("show-1", []string{"A1", "A2"}, "alice", time.Minute); !res.Granted {
		t.Fatal("setup lock denied")
	}

	// Still held one tick before expiry.
	clk.Advance(time.Minute - time.Millisecond)
	if res, _ := table.TryLock("show-1", []string{"A1"}, "bob", time.Minute); res.Granted {
		t.Fatal("lock granted before expiry")
	}

	clk.Advance(time.Millisecond)
	res, err := table.TryLock("show-1", []string{"A1"}, "bob", time.Minute)
	if err != nil {
		t.Fatalf("TryLock() error = %v", err)
	}
	if !res.Granted {
		t.Errorf("lock not granted after expiry, conflicting = %v", res.Conflicting)
	}

	// Expiring A1 evicted alice's whole hold, so A2 is free too.
	if res, _ := table.TryLock("show-1", []string{"A2"}, "bob", time.Minute); !res.Granted {
		t.Error("sibling unit of expired hold still locked")
	}
}

func TestMutualExclusionUnderContention(t *testing.T) {
	table, _ := newTestTable(t)

	const racers = 32
	var wg sync.WaitGroup
	granted := make([]bool, racers)

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := table.TryLock("show-1", []string{"A1", "A2"}, fmt.Sprintf("owner-%d", i), time.Minute)
			if err != nil {
				t.Errorf("TryLock() error = %v", err)
				return
			}
			granted[i] = res.Granted
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, g := range granted {
		if g {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
}

func TestDisjointRequestsDoNotContend(t *testing.T) {
	table, _ := newTestTable(t)

	var wg sync.WaitGroup
	results := make([]bool, 2)
	requests := [][]string{{"A1", "A2"}, {"B1", "B2"}}

	for i, units := range requests {
		wg.Add(1)
		go func(i int, units []string) {
			defer wg.Done()
			res, err := table.TryLock("show-1", units, fmt.Sprintf("owner-%d", i), time.Minute)
			if err != nil {
				t.Errorf("TryLock() error = %v", err)
				return
			}
			results[i] = res.Granted
		}(i, units)
	}
	wg.Wait()

	for i, ok := range results {
		if !ok {
			t.Errorf("disjoint request %d denied", i)
		}
	}
}

func TestRelease(t *testing.T) {
	table, _ := newTestTable(t)

	if res, _ := table.TryLock("show-1", []string{"A1", "A2"}, "alice", time.Minute); !res.Granted {
		t.Fatal("setup lock denied")
	}

	if !table.Release("show-1", []string{"A1", "A2"}, "alice") {
		t.Error("Release() = false, want true")
	}
	// Second release is a no-op, not an error.
	if table.Release("show-1", []string{"A1", "A2"}, "alice") {
		t.Error("repeat Release() = true, want false")
	}

	if res, _ := table.TryLock("show-1", []string{"A1", "A2"}, "bob", time.Minute); !res.Granted {
		t.Error("released units not acquirable")
	}
}

func TestReleaseIgnoresForeignHolds(t *testing.T) {
	table, _ := newTestTable(t)

	if res, _ := table.TryLock("show-1", []string{"A1"}, "alice", time.Minute); !res.Granted {
		t.Fatal("setup lock denied")
	}

	if table.Release("show-1", []string{"A1"}, "bob") {
		t.Error("Release() by non-owner = true, want false")
	}
	if res, _ := table.TryLock("show-1", []string{"A1"}, "bob", time.Minute); res.Granted {
		t.Error("foreign release freed the unit")
	}
}

func TestRenew(t *testing.T) {
	table, clk := newTestTable(t)

	if res, _ := table.TryLock("show-1", []string{"A1", "A2"}, "alice", time.Minute); !res.Granted {
		t.Fatal("setup lock denied")
	}

	clk.Advance(50 * time.Second)
	if !table.Renew("show-1", []string{"A1", "A2"}, "alice", time.Minute) {
		t.Fatal("Renew() = false, want true")
	}

	// Original expiry has passed but the renewed hold survives.
	clk.Advance(30 * time.Second)
	if res, _ := table.TryLock("show-1", []string{"A1"}, "bob", time.Minute); res.Granted {
		t.Error("renewed hold treated as expired")
	}

	if table.Renew("show-1", []string{"A1"}, "bob", time.Minute) {
		t.Error("Renew() by non-owner = true, want false")
	}

	clk.Advance(2 * time.Minute)
	if table.Renew("show-1", []string{"A1"}, "alice", time.Minute) {
		t.Error("Renew() of expired hold = true, want false")
	}
}

func TestMarkBooked(t *testing.T) {
	table, _ := newTestTable(t)

	if res, _ := table.TryLock("show-1", []string{"A1", "A2"}, "alice", time.Minute); !res.Granted {
		t.Fatal("setup lock denied")
	}
	if !table.MarkBooked("show-1", []string{"A1", "A2"}, "alice") {
		t.Fatal("MarkBooked() = false, want true")
	}

	// Booked units stay unavailable forever, even to the booker.
	res, _ := table.TryLock("show-1", []string{"A1"}, "alice", time.Minute)
	if res.Granted {
		t.Error("booked unit re-locked")
	}
	if !reflect.DeepEqual(res.Conflicting, []string{"A1"}) {
		t.Errorf("Conflicting = %v, want [A1]", res.Conflicting)
	}
}

func TestMarkBookedFailsAfterExpiry(t *testing.T) {
	table, clk := newTestTable(t)

	if res, _ := table.TryLock("show-1", []string{"A1"}, "alice", time.Minute); !res.Granted {
		t.Fatal("setup lock denied")
	}

	clk.Advance(2 * time.Minute)
	if table.MarkBooked("show-1", []string{"A1"}, "alice") {
		t.Error("MarkBooked() after expiry = true, want false")
	}
	if res, _ := table.TryLock("show-1", []string{"A1"}, "bob", time.Minute); !res.Granted {
		t.Error("unit not freed after failed booking")
	}
}

func TestMarkBookedRequiresOwnership(t *testing.T) {
	table, _ := newTestTable(t)

	if res, _ := table.TryLock("show-1", []string{"A1"}, "alice", time.Minute); !res.Granted {
		t.Fatal("setup lock denied")
	}
	if table.MarkBooked("show-1", []string{"A1"}, "bob") {
		t.Error("MarkBooked() by non-owner = true, want false")
	}
	// Partial ownership is not enough either.
	if table.MarkBooked("show-1", []string{"A1", "A2"}, "alice") {
		t.Error("MarkBooked() over unheld units = true, want false")
	}
}

func TestHoldsExactly(t *testing.T) {
	table, clk := newTestTable(t)

	if res, _ := table.TryLock("show-1", []string{"A1", "A2"}, "alice", time.Minute); !res.Granted {
		t.Fatal("setup lock denied")
	}

	if !table.HoldsExactly("show-1", []string{"A1", "A2"}, "alice") {
		t.Error("exact set not recognized")
	}
	if table.HoldsExactly("show-1", []string{"A1"}, "alice") {
		t.Error("subset accepted as exact")
	}
	if table.HoldsExactly("show-1", []string{"A1", "A2", "A3"}, "alice") {
		t.Error("superset accepted as exact")
	}

	clk.Advance(2 * time.Minute)
	if table.HoldsExactly("show-1", []string{"A1", "A2"}, "alice") {
		t.Error("expired hold accepted as exact")
	}
}

func TestSnapshots(t *testing.T) {
	table, clk := newTestTable(t, "A1", "A2", "A3")

	if res, _ := table.TryLock("show-1", []string{"A1"}, "alice", time.Minute); !res.Granted {
		t.Fatal("setup lock denied")
	}
	if res, _ := table.TryLock("show-1", []string{"A2"}, "bob", time.Minute); !res.Granted {
		t.Fatal("setup lock denied")
	}
	if !table.MarkBooked("show-1", []string{"A2"}, "bob") {
		t.Fatal("setup booking failed")
	}

	if got := table.SnapshotLocked("show-1"); !reflect.DeepEqual(got, []string{"A1"}) {
		t.Errorf("SnapshotLocked = %v, want [A1]", got)
	}
	if got := table.SnapshotAvailable("show-1"); !reflect.DeepEqual(got, []string{"A3"}) {
		t.Errorf("SnapshotAvailable = %v, want [A3]", got)
	}

	// Expiry frees the locked unit but never the booked one.
	clk.Advance(2 * time.Minute)
	if got := table.SnapshotAvailable("show-1"); !reflect.DeepEqual(got, []string{"A1", "A3"}) {
		t.Errorf("SnapshotAvailable after expiry = %v, want [A1 A3]", got)
	}
}

func TestSnapshotStates(t *testing.T) {
	table, _ := newTestTable(t, "A1", "A2", "A3")

	if res, _ := table.TryLock("show-1", []string{"A1"}, "alice", time.Minute); !res.Granted {
		t.Fatal("setup lock denied")
	}
	if res, _ := table.TryLock("show-1", []string{"A2"}, "bob", time.Minute); !res.Granted {
		t.Fatal("setup lock denied")
	}
	if !table.MarkBooked("show-1", []string{"A2"}, "bob") {
		t.Fatal("setup booking failed")
	}

	want := map[string]model.UnitState{
		"A1": model.UnitLocked,
		"A2": model.UnitBooked,
		"A3": model.UnitAvailable,
	}
	if got := table.SnapshotStates("show-1"); !reflect.DeepEqual(got, want) {
		t.Errorf("SnapshotStates = %v, want %v", got, want)
	}

	if got := table.SnapshotStates("no-such-group"); got != nil {
		t.Errorf("SnapshotStates for unknown group = %v, want nil", got)
	}
}

func TestSweepExpired(t *testing.T) {
	table, clk := newTestTable(t)
	table.EnsureGroup("show-2", []string{"C1", "C2"})

	if res, _ := table.TryLock("show-1", []string{"A1", "A2"}, "alice", time.Minute); !res.Granted {
		t.Fatal("setup lock denied")
	}
	if res, _ := table.TryLock("show-2", []string{"C1"}, "bob", 10*time.Minute); !res.Granted {
		t.Fatal("setup lock denied")
	}

	if n := table.SweepExpired(); n != 0 {
		t.Errorf("SweepExpired before expiry = %d, want 0", n)
	}

	clk.Advance(2 * time.Minute)
	if n := table.SweepExpired(); n != 2 {
		t.Errorf("SweepExpired = %d, want 2", n)
	}
	// bob's longer hold survives the sweep.
	if got := table.SnapshotLocked("show-2"); !reflect.DeepEqual(got, []string{"C1"}) {
		t.Errorf("SnapshotLocked show-2 = %v, want [C1]", got)
	}
}

func TestEnsureGroupPreservesState(t *testing.T) {
	table, _ := newTestTable(t, "A1")

	if res, _ := table.TryLock("show-1", []string{"A1"}, "alice", time.Minute); !res.Granted {
		t.Fatal("setup lock denied")
	}

	// Re-seeding with more units must not disturb existing holds.
	table.EnsureGroup("show-1", []string{"A1", "A2"})
	if res, _ := table.TryLock("show-1", []string{"A1"}, "bob", time.Minute); res.Granted {
		t.Error("hold lost after re-seeding group")
	}
	if res, _ := table.TryLock("show-1", []string{"A2"}, "bob", time.Minute); !res.Granted {
		t.Error("new unit not acquirable")
	}
}

func contains(list []string, target string) bool {
	for _, s := range list {
		if s == target {
			return true
		}
	}
	return false
}
