package domain

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type SlotStatus string

const (
	SlotStatusOpen      SlotStatus = "open"
	SlotStatusBooked    SlotStatus = "booked"
	SlotStatusCompleted SlotStatus = "completed"
	SlotStatusCancelled SlotStatus = "cancelled"
)

// Slot is a fixed one-hour bookable interval on a calendar date.
// Occupant fields are set only while the slot is not open.
type Slot struct {
	bun.BaseModel `bun:"table:slots"`

	ID          string     `bun:"id,pk"`
	Date        time.Time  `bun:"slot_date,notnull,type:date"`
	StartTime   string     `bun:"start_time,notnull"`
	EndTime     string     `bun:"end_time,notnull"`
	Status      SlotStatus `bun:"status,notnull"`
	OccupantRef string     `bun:"occupant_ref,nullzero"`
	SessionRef  string     `bun:"session_ref,nullzero"`
	DisplayName string     `bun:"display_name,nullzero"`
	Contact     string     `bun:"contact,nullzero"`
	BookedAt    *time.Time `bun:"booked_at"`
	CreatedAt   time.Time  `bun:"created_at,notnull"`
	UpdatedAt   time.Time  `bun:"updated_at,notnull"`
}

func (s *Slot) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if s.ID == "" {
			s.ID = NewSlotID(s.Date, s.StartTime)
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		if s.UpdatedAt.IsZero() {
			s.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		s.UpdatedAt = now
	}
	return nil
}

// Occupancy is the occupied view of a slot. A nil Occupancy means the
// slot is open.
type Occupancy struct {
	OccupantRef string
	SessionRef  string
	DisplayName string
	Contact     string
	BookedAt    *time.Time
}

func (s Slot) Occupancy() *Occupancy {
	if s.Status == SlotStatusOpen {
		return nil
	}
	return &Occupancy{
		OccupantRef: s.OccupantRef,
		SessionRef:  s.SessionRef,
		DisplayName: s.DisplayName,
		Contact:     s.Contact,
		BookedAt:    s.BookedAt,
	}
}

// Reservation carries the occupant details stamped onto a slot when it
// is booked. DisplayName and Contact are optional.
type Reservation struct {
	OccupantRef string
	SessionRef  string
	DisplayName string
	Contact     string
}

// NewSlotID builds a slot identifier from the date, the start time and a
// random disambiguator. The (date, start) prefix keeps ids debuggable;
// uniqueness is still enforced by the store key on (slot_date, start_time).
func NewSlotID(date time.Time, startTime string) string {
	u := uuid.New()
	return date.Format("20060102") + "-" + hhmmCompact(startTime) + "-" + hex.EncodeToString(u[:4])
}

func hhmmCompact(hhmm string) string {
	out := make([]byte, 0, 4)
	for i := 0; i < len(hhmm); i++ {
		if hhmm[i] == ':' {
			continue
		}
		out = append(out, hhmm[i])
	}
	return string(out)
}
