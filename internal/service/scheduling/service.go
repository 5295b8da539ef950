package scheduling

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"consulta/backend/internal/domain"
	"consulta/backend/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// Config is the fixed scheduling policy. Slots are one hour long, so a
// workable day yields WorkdayEndHour-WorkdayStartHour of them.
type Config struct {
	WorkdayStartHour     int
	WorkdayEndHour       int
	HorizonDays          int
	NearestLookaheadDays int
	TimeZone             string
	Locale               string
}

const defaultNearestLookaheadDays = 30

type Service struct {
	repo store.SlotRepository
	cfg  Config
	loc  *time.Location
	log  *slog.Logger

	// now is swapped in tests for deterministic calendars.
	now func() time.Time
}

func NewService(repo store.SlotRepository, cfg Config, log *slog.Logger) (*Service, error) {
	if cfg.WorkdayStartHour < 0 || cfg.WorkdayEndHour > 24 || cfg.WorkdayStartHour >= cfg.WorkdayEndHour {
		return nil, fmt.Errorf("invalid working hours [%d, %d)", cfg.WorkdayStartHour, cfg.WorkdayEndHour)
	}
	if cfg.HorizonDays < 0 {
		return nil, fmt.Errorf("invalid horizon days %d", cfg.HorizonDays)
	}
	if cfg.NearestLookaheadDays <= 0 {
		cfg.NearestLookaheadDays = defaultNearestLookaheadDays
	}
	if cfg.Locale == "" {
		cfg.Locale = "ru"
	}

	loc := time.Local
	if cfg.TimeZone != "" {
		var err error
		loc, err = time.LoadLocation(cfg.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("invalid time zone %q: %w", cfg.TimeZone, err)
		}
	}

	if log == nil {
		log = slog.Default()
	}

	return &Service{
		repo: repo,
		cfg:  cfg,
		loc:  loc,
		log:  log.With(slog.String("component", "scheduling")),
		now:  time.Now,
	}, nil
}

func (s *Service) today() time.Time {
	return domain.DayStart(s.now().In(s.loc))
}

// Generate materializes open slots for every workable date at offsets
// 0..horizonDays from today and returns how many were newly inserted.
// Generation is idempotent: the store drops candidates whose
// (date, start time) key already exists. One day's failure is logged
// and the remaining days still run; the next scheduled run self-heals
// the gap.
func (s *Service) Generate(ctx context.Context, horizonDays int) (int, error) {
	if horizonDays < 0 {
		return 0, validationError("horizon_days must not be negative")
	}

	dates := domain.WorkableDates(s.today(), horizonDays)

	inserted := 0
	failed := 0
	var lastErr error
	for _, date := range dates {
		batch := domain.BuildDayCandidates(date, s.cfg.WorkdayStartHour, s.cfg.WorkdayEndHour)
		n, err := s.repo.InsertIfAbsent(ctx, batch)
		if err != nil {
			failed++
			lastErr = err
			s.log.Error("slot generation failed for day",
				slog.Any("err", err),
				slog.String("date", date.Format("2006-01-02")),
			)
			continue
		}
		inserted += n
	}

	if failed > 0 && failed == len(dates) {
		return inserted, fmt.Errorf("slot generation failed for all %d days: %w", failed, lastErr)
	}
	return inserted, nil
}

// AvailableSlots returns the open slots with a date within the next
// `days` days, ordered by (date, start time).
func (s *Service) AvailableSlots(ctx context.Context, days int) ([]domain.Slot, error) {
	if days < 0 {
		return nil, validationError("days must not be negative")
	}

	today := s.today()
	return s.repo.FindAvailable(ctx, today, today.AddDate(0, 0, days), []domain.SlotStatus{domain.SlotStatusOpen})
}

type DayAvailability struct {
	Date  time.Time
	Slots []domain.Slot
	Label string
}

// NearestAvailableDay scans forward from today, bounded by the
// configured lookahead, for the first date holding at least one open
// slot. A nil result means no availability within the bound; that is a
// normal outcome the caller must render, not an error.
func (s *Service) NearestAvailableDay(ctx context.Context) (*DayAvailability, error) {
	today := s.today()
	for offset := 0; offset <= s.cfg.NearestLookaheadDays; offset++ {
		day := today.AddDate(0, 0, offset)
		if !domain.Workable(day) {
			continue
		}
		slots, err := s.repo.FindAvailable(ctx, day, day, []domain.SlotStatus{domain.SlotStatusOpen})
		if err != nil {
			return nil, err
		}
		if len(slots) > 0 {
			return &DayAvailability{
				Date:  day,
				Slots: slots,
				Label: s.DayLabel(day),
			}, nil
		}
	}
	return nil, nil
}

type BookInput struct {
	SlotID      string
	OccupantRef string
	SessionRef  string
	DisplayName string
	Contact     string
}

// Book reserves a slot for the occupant. The store's conditional update
// is the sole arbiter between concurrent attempts: exactly one caller
// gets the slot, the rest get store.ErrConflict.
func (s *Service) Book(ctx context.Context, in BookInput) (domain.Slot, error) {
	slotID := strings.TrimSpace(in.SlotID)
	if slotID == "" {
		return domain.Slot{}, validationError("slot_id is required")
	}
	occupant := strings.TrimSpace(in.OccupantRef)
	if occupant == "" {
		return domain.Slot{}, validationError("occupant_ref is required")
	}
	session := strings.TrimSpace(in.SessionRef)
	if session == "" {
		return domain.Slot{}, validationError("session_ref is required")
	}

	return s.repo.TryReserve(ctx, slotID, domain.Reservation{
		OccupantRef: occupant,
		SessionRef:  session,
		DisplayName: strings.TrimSpace(in.DisplayName),
		Contact:     strings.TrimSpace(in.Contact),
	})
}

// CancelBooking releases a slot held by the occupant. False means the
// occupant did not hold that slot; the slot is left untouched.
func (s *Service) CancelBooking(ctx context.Context, slotID, occupantRef string) (bool, error) {
	slotID = strings.TrimSpace(slotID)
	if slotID == "" {
		return false, validationError("slot_id is required")
	}
	occupantRef = strings.TrimSpace(occupantRef)
	if occupantRef == "" {
		return false, validationError("occupant_ref is required")
	}

	return s.repo.Cancel(ctx, slotID, occupantRef)
}

func (s *Service) ListBookings(ctx context.Context, occupantRef string) ([]domain.Slot, error) {
	occupantRef = strings.TrimSpace(occupantRef)
	if occupantRef == "" {
		return nil, validationError("occupant_ref is required")
	}

	return s.repo.ListByOccupant(ctx, occupantRef, []domain.SlotStatus{domain.SlotStatusBooked})
}

type Stats struct {
	Total  int
	Open   int
	Booked int
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	total, err := s.repo.Count(ctx, nil)
	if err != nil {
		return Stats{}, err
	}
	open, err := s.repo.Count(ctx, []domain.SlotStatus{domain.SlotStatusOpen})
	if err != nil {
		return Stats{}, err
	}
	booked, err := s.repo.Count(ctx, []domain.SlotStatus{domain.SlotStatusBooked})
	if err != nil {
		return Stats{}, err
	}
	return Stats{Total: total, Open: open, Booked: booked}, nil
}
