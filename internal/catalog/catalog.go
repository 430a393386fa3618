package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"

	"boxoffice/pkg/model"
)

var (
	ErrShowNotFound = errors.New("show not found")

	ErrUnitNotFound = errors.New("unit not found")
)

// Repository supplies unit definitions and prices. It is read-only from the
// reservation engine's perspective; shows and units are owned elsewhere.
type Repository interface {
	UnitsOf(ctx context.Context, groupID string) ([]model.InventoryUnit, error)
	UnitPrice(ctx context.Context, groupID, unitID string) (int64, error)
}

// Memory is the default catalog backend: shows loaded once at startup, safe
// for concurrent reads, mutable only through ReplaceShow (used by tests to
// simulate price changes after booking creation).
type Memory struct {
	mu    sync.RWMutex
	shows map[string]model.Show
}

func NewMemory(shows ...model.Show) *Memory {
	m := &Memory{shows: make(map[string]model.Show, len(shows))}
	for _, s := range shows {
		m.shows[s.ID] = s
	}
	return m
}

// NewMemoryFromFile loads shows from a JSON seed file.
func NewMemoryFromFile(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var shows []model.Show
	if err := json.Unmarshal(data, &shows); err != nil {
		return nil, err
	}
	return NewMemory(shows...), nil
}

func (m *Memory) UnitsOf(ctx context.Context, groupID string) ([]model.InventoryUnit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	show, ok := m.shows[groupID]
	if !ok {
		return nil, ErrShowNotFound
	}
	units := make([]model.InventoryUnit, len(show.Units))
	copy(units, show.Units)
	return units, nil
}

func (m *Memory) UnitPrice(ctx context.Context, groupID, unitID string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	show, ok := m.shows[groupID]
	if !ok {
		return 0, ErrShowNotFound
	}
	for _, u := range show.Units {
		if u.UnitID == unitID {
			return u.Price, nil
		}
	}
	return 0, ErrUnitNotFound
}

// ReplaceShow swaps a show definition wholesale.
func (m *Memory) ReplaceShow(show model.Show) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shows[show.ID] = show
}
