package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"consulta/backend/internal/domain"
	"consulta/backend/internal/store"
)

type SlotRepo struct {
	db *bun.DB
}

func NewSlotRepo(db *bun.DB) *SlotRepo {
	return &SlotRepo{db: db}
}

// InsertIfAbsent relies on the unique index over (slot_date, start_time):
// candidates whose key already exists are dropped by ON CONFLICT DO NOTHING,
// so overlapping generation runs merge instead of failing.
func (r *SlotRepo) InsertIfAbsent(ctx context.Context, candidates []domain.Slot) (int, error) {
	if len(candidates) == 0 {
		return 0, nil
	}

	rows := make([]domain.Slot, len(candidates))
	copy(rows, candidates)

	res, err := r.db.NewInsert().
		Model(&rows).
		On("CONFLICT (slot_date, start_time) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (r *SlotRepo) FindAvailable(ctx context.Context, from, to time.Time, statuses []domain.SlotStatus) ([]domain.Slot, error) {
	var out []domain.Slot
	q := r.db.NewSelect().
		Model(&out).
		Where("slot_date >= ?", domain.DayStart(from)).
		Where("slot_date <= ?", domain.DayStart(to))
	if len(statuses) > 0 {
		q = q.Where("status IN (?)", bun.In(statuses))
	}

	err := q.OrderExpr("slot_date ASC, start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SlotRepo) TryReserve(ctx context.Context, slotID string, res domain.Reservation) (domain.Slot, error) {
	now := time.Now().UTC()

	var out domain.Slot
	err := r.db.NewUpdate().
		Model((*domain.Slot)(nil)).
		Set("status = ?", domain.SlotStatusBooked).
		Set("occupant_ref = ?", res.OccupantRef).
		Set("session_ref = ?", res.SessionRef).
		Set("display_name = ?", nullable(res.DisplayName)).
		Set("contact = ?", nullable(res.Contact)).
		Set("booked_at = ?", now).
		Set("updated_at = ?", now).
		Where("id = ?", slotID).
		Where("status = ?", domain.SlotStatusOpen).
		Returning("*").
		Scan(ctx, &out)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Slot{}, store.ErrConflict
		}
		return domain.Slot{}, err
	}
	return out, nil
}

func (r *SlotRepo) Cancel(ctx context.Context, slotID, occupantRef string) (bool, error) {
	now := time.Now().UTC()

	res, err := r.db.NewUpdate().
		Model((*domain.Slot)(nil)).
		Set("status = ?", domain.SlotStatusOpen).
		Set("occupant_ref = NULL").
		Set("session_ref = NULL").
		Set("display_name = NULL").
		Set("contact = NULL").
		Set("booked_at = NULL").
		Set("updated_at = ?", now).
		Where("id = ?", slotID).
		Where("status = ?", domain.SlotStatusBooked).
		Where("occupant_ref = ?", occupantRef).
		Exec(ctx)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *SlotRepo) ListByOccupant(ctx context.Context, occupantRef string, statuses []domain.SlotStatus) ([]domain.Slot, error) {
	var out []domain.Slot
	q := r.db.NewSelect().
		Model(&out).
		Where("occupant_ref = ?", occupantRef)
	if len(statuses) > 0 {
		q = q.Where("status IN (?)", bun.In(statuses))
	}

	err := q.OrderExpr("slot_date ASC, start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *SlotRepo) Count(ctx context.Context, statuses []domain.SlotStatus) (int, error) {
	q := r.db.NewSelect().Model((*domain.Slot)(nil))
	if len(statuses) > 0 {
		q = q.Where("status IN (?)", bun.In(statuses))
	}
	return q.Count(ctx)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
