package store

import (
	"context"
	"time"

	"consulta/backend/internal/domain"
)

// SlotRepository is the durable, race-safe catalog of consultation slots.
// All cross-request arbitration happens here: TryReserve and Cancel are
// single conditional writes, and InsertIfAbsent is an idempotent merge
// keyed by (date, start time).
type SlotRepository interface {
	// InsertIfAbsent inserts only the candidates whose (date, start time)
	// key is not already present and returns how many were inserted.
	// Existing keys are dropped silently; partial success is normal.
	InsertIfAbsent(ctx context.Context, candidates []domain.Slot) (int, error)

	// FindAvailable returns slots with a date in [from, to] matching any
	// of the given statuses, ordered by (date ASC, start time ASC). The
	// ordering is a contract: callers render the result as a choice list.
	FindAvailable(ctx context.Context, from, to time.Time, statuses []domain.SlotStatus) ([]domain.Slot, error)

	// TryReserve transitions a slot open -> booked in one conditional
	// update, stamping the reservation and a booking timestamp. If the
	// slot is missing or not open it returns ErrConflict; it never
	// partially applies.
	TryReserve(ctx context.Context, slotID string, res domain.Reservation) (domain.Slot, error)

	// Cancel transitions booked -> open only when the slot is currently
	// booked by occupantRef, clearing all occupant fields. It returns
	// false when no matching booked slot existed; that is a benign
	// no-op, not an error.
	Cancel(ctx context.Context, slotID, occupantRef string) (bool, error)

	// ListByOccupant returns the occupant's slots matching any of the
	// given statuses, ordered by (date ASC, start time ASC).
	ListByOccupant(ctx context.Context, occupantRef string, statuses []domain.SlotStatus) ([]domain.Slot, error)

	// Count reports how many slots match the given statuses (all slots
	// when statuses is empty). Operational visibility only.
	Count(ctx context.Context, statuses []domain.SlotStatus) (int, error)
}
