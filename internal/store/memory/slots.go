// Package memory holds an in-memory SlotRepository. It backs the engine
// tests and DB-less local runs; the production implementation lives in
// the postgres package.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"consulta/backend/internal/domain"
	"consulta/backend/internal/store"
)

type SlotRepo struct {
	mu   sync.Mutex
	byID map[string]domain.Slot
	keys map[string]string
}

func NewSlotRepo() *SlotRepo {
	return &SlotRepo{
		byID: make(map[string]domain.Slot),
		keys: make(map[string]string),
	}
}

func slotKey(date time.Time, startTime string) string {
	return date.Format("2006-01-02") + "|" + startTime
}

func (r *SlotRepo) InsertIfAbsent(ctx context.Context, candidates []domain.Slot) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	inserted := 0
	for _, c := range candidates {
		key := slotKey(c.Date, c.StartTime)
		if _, exists := r.keys[key]; exists {
			continue
		}
		if c.ID == "" {
			c.ID = domain.NewSlotID(c.Date, c.StartTime)
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
		r.byID[c.ID] = c
		r.keys[key] = c.ID
		inserted++
	}
	return inserted, nil
}

func (r *SlotRepo) FindAvailable(ctx context.Context, from, to time.Time, statuses []domain.SlotStatus) ([]domain.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fromDay := domain.DayStart(from)
	toDay := domain.DayStart(to)

	var out []domain.Slot
	for _, s := range r.byID {
		if s.Date.Before(fromDay) || s.Date.After(toDay) {
			continue
		}
		if !matchesStatus(s.Status, statuses) {
			continue
		}
		out = append(out, s)
	}
	sortSlots(out)
	return out, nil
}

func (r *SlotRepo) TryReserve(ctx context.Context, slotID string, res domain.Reservation) (domain.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[slotID]
	if !ok || s.Status != domain.SlotStatusOpen {
		return domain.Slot{}, store.ErrConflict
	}

	now := time.Now().UTC()
	s.Status = domain.SlotStatusBooked
	s.OccupantRef = res.OccupantRef
	s.SessionRef = res.SessionRef
	s.DisplayName = res.DisplayName
	s.Contact = res.Contact
	s.BookedAt = &now
	s.UpdatedAt = now
	r.byID[slotID] = s
	return s, nil
}

func (r *SlotRepo) Cancel(ctx context.Context, slotID, occupantRef string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.byID[slotID]
	if !ok || s.Status != domain.SlotStatusBooked || s.OccupantRef != occupantRef {
		return false, nil
	}

	s.Status = domain.SlotStatusOpen
	s.OccupantRef = ""
	s.SessionRef = ""
	s.DisplayName = ""
	s.Contact = ""
	s.BookedAt = nil
	s.UpdatedAt = time.Now().UTC()
	r.byID[slotID] = s
	return true, nil
}

func (r *SlotRepo) ListByOccupant(ctx context.Context, occupantRef string, statuses []domain.SlotStatus) ([]domain.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Slot
	for _, s := range r.byID {
		if s.OccupantRef != occupantRef {
			continue
		}
		if !matchesStatus(s.Status, statuses) {
			continue
		}
		out = append(out, s)
	}
	sortSlots(out)
	return out, nil
}

func (r *SlotRepo) Count(ctx context.Context, statuses []domain.SlotStatus) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, s := range r.byID {
		if matchesStatus(s.Status, statuses) {
			n++
		}
	}
	return n, nil
}

// Get returns a snapshot of a single slot. Test helper; not part of
// store.SlotRepository.
func (r *SlotRepo) Get(slotID string) (domain.Slot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[slotID]
	return s, ok
}

func matchesStatus(status domain.SlotStatus, statuses []domain.SlotStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, want := range statuses {
		if status == want {
			return true
		}
	}
	return false
}

func sortSlots(slots []domain.Slot) {
	sort.Slice(slots, func(i, j int) bool {
		if !slots[i].Date.Equal(slots[j].Date) {
			return slots[i].Date.Before(slots[j].Date)
		}
		return slots[i].StartTime < slots[j].StartTime
	})
}
