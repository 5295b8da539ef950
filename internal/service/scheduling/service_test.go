package scheduling

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"consulta/backend/internal/domain"
	"consulta/backend/internal/store"
	"consulta/backend/internal/store/memory"
)

type fakeRepo struct {
	insertIfAbsentFn func(ctx context.Context, candidates []domain.Slot) (int, error)
	findAvailableFn  func(ctx context.Context, from, to time.Time, statuses []domain.SlotStatus) ([]domain.Slot, error)
	tryReserveFn     func(ctx context.Context, slotID string, res domain.Reservation) (domain.Slot, error)
	cancelFn         func(ctx context.Context, slotID, occupantRef string) (bool, error)
	listByOccupantFn func(ctx context.Context, occupantRef string, statuses []domain.SlotStatus) ([]domain.Slot, error)
	countFn          func(ctx context.Context, statuses []domain.SlotStatus) (int, error)
}

func (f *fakeRepo) InsertIfAbsent(ctx context.Context, candidates []domain.Slot) (int, error) {
	if f.insertIfAbsentFn == nil {
		panic("InsertIfAbsent not configured")
	}
	return f.insertIfAbsentFn(ctx, candidates)
}

func (f *fakeRepo) FindAvailable(ctx context.Context, from, to time.Time, statuses []domain.SlotStatus) ([]domain.Slot, error) {
	if f.findAvailableFn == nil {
		panic("FindAvailable not configured")
	}
	return f.findAvailableFn(ctx, from, to, statuses)
}

func (f *fakeRepo) TryReserve(ctx context.Context, slotID string, res domain.Reservation) (domain.Slot, error) {
	if f.tryReserveFn == nil {
		panic("TryReserve not configured")
	}
	return f.tryReserveFn(ctx, slotID, res)
}

func (f *fakeRepo) Cancel(ctx context.Context, slotID, occupantRef string) (bool, error) {
	if f.cancelFn == nil {
		panic("Cancel not configured")
	}
	return f.cancelFn(ctx, slotID, occupantRef)
}

func (f *fakeRepo) ListByOccupant(ctx context.Context, occupantRef string, statuses []domain.SlotStatus) ([]domain.Slot, error) {
	if f.listByOccupantFn == nil {
		panic("ListByOccupant not configured")
	}
	return f.listByOccupantFn(ctx, occupantRef, statuses)
}

func (f *fakeRepo) Count(ctx context.Context, statuses []domain.SlotStatus) (int, error) {
	if f.countFn == nil {
		panic("Count not configured")
	}
	return f.countFn(ctx, statuses)
}

// testMonday is a known Monday; tests pin the service clock to it.
var testMonday = time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, repo store.SlotRepository) *Service {
	t.Helper()
	svc, err := NewService(repo, Config{
		WorkdayStartHour:     9,
		WorkdayEndHour:       18,
		HorizonDays:          7,
		NearestLookaheadDays: 30,
		TimeZone:             "UTC",
		Locale:               "en",
	}, nil)
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}
	svc.now = func() time.Time { return testMonday }
	return svc
}

func TestNewService_RejectsInvalidWorkingHours(t *testing.T) {
	_, err := NewService(memory.NewSlotRepo(), Config{
		WorkdayStartHour: 18,
		WorkdayEndHour:   9,
	}, nil)
	if err == nil {
		t.Fatalf("expected error for inverted working hours")
	}
}

func TestGenerate_FullCoverageFromMonday(t *testing.T) {
	repo := memory.NewSlotRepo()
	svc := newTestService(t, repo)

	inserted, err := svc.Generate(context.Background(), 7)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}

	// Offsets 0..7 from Monday 2026-01-05 span Mon..next Mon: six
	// workable days, nine one-hour slots each.
	if inserted != 6*9 {
		t.Fatalf("inserted = %d, want %d", inserted, 6*9)
	}

	open, err := repo.Count(context.Background(), []domain.SlotStatus{domain.SlotStatusOpen})
	if err != nil {
		t.Fatalf("Count error: %v", err)
	}
	if open != inserted {
		t.Fatalf("open slots = %d, want %d", open, inserted)
	}
}

func TestGenerate_Idempotent(t *testing.T) {
	repo := memory.NewSlotRepo()
	svc := newTestService(t, repo)

	first, err := svc.Generate(context.Background(), 7)
	if err != nil {
		t.Fatalf("first Generate error: %v", err)
	}
	second, err := svc.Generate(context.Background(), 7)
	if err != nil {
		t.Fatalf("second Generate error: %v", err)
	}
	if second != 0 {
		t.Fatalf("second Generate inserted = %d, want 0", second)
	}

	total, err := repo.Count(context.Background(), nil)
	if err != nil {
		t.Fatalf("Count error: %v", err)
	}
	if total != first {
		t.Fatalf("total slots = %d, want %d", total, first)
	}
}

func TestGenerate_SkipsWeekends(t *testing.T) {
	repo := memory.NewSlotRepo()
	svc := newTestService(t, repo)

	if _, err := svc.Generate(context.Background(), 13); err != nil {
		t.Fatalf("Generate error: %v", err)
	}

	slots, err := svc.AvailableSlots(context.Background(), 13)
	if err != nil {
		t.Fatalf("AvailableSlots error: %v", err)
	}
	if len(slots) == 0 {
		t.Fatalf("expected slots")
	}
	for _, s := range slots {
		if wd := s.Date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			t.Fatalf("weekend slot generated on %s", s.Date.Format("2006-01-02"))
		}
	}
}

func TestGenerate_AheadOfUTCZoneKeepsCalendarDates(t *testing.T) {
	repo := memory.NewSlotRepo()
	svc, err := NewService(repo, Config{
		WorkdayStartHour: 9,
		WorkdayEndHour:   18,
		HorizonDays:      7,
		TimeZone:         "Europe/Moscow",
		Locale:           "en",
	}, nil)
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}
	// Monday 2026-01-05 01:00 in Moscow is still Sunday 22:00 UTC; the
	// generated dates must follow the Moscow calendar.
	svc.now = func() time.Time { return time.Date(2026, 1, 4, 22, 0, 0, 0, time.UTC) }

	if _, err := svc.Generate(context.Background(), 0); err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	slots, err := svc.AvailableSlots(context.Background(), 0)
	if err != nil {
		t.Fatalf("AvailableSlots error: %v", err)
	}
	if len(slots) != 9 {
		t.Fatalf("len(slots) = %d, want 9 for the local Monday", len(slots))
	}

	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	for _, s := range slots {
		if !s.Date.Equal(monday) {
			t.Fatalf("slot date = %v, want %v", s.Date, monday)
		}
		if s.Date.Weekday() != time.Monday {
			t.Fatalf("slot weekday = %s, want Monday", s.Date.Weekday())
		}
		if !strings.HasPrefix(s.ID, "20260105-") {
			t.Fatalf("slot id = %q, want a 20260105 date prefix", s.ID)
		}
	}
}

func TestGenerate_ContinuesAfterDayFailure(t *testing.T) {
	badDay := time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC)
	inserted := 0
	repo := &fakeRepo{
		insertIfAbsentFn: func(ctx context.Context, candidates []domain.Slot) (int, error) {
			if candidates[0].Date.Equal(badDay) {
				return 0, errors.New("connection refused")
			}
			inserted += len(candidates)
			return len(candidates), nil
		},
	}
	svc := newTestService(t, repo)

	got, err := svc.Generate(context.Background(), 4)
	if err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	// Mon..Fri minus the failing Tuesday.
	if got != 4*9 {
		t.Fatalf("inserted = %d, want %d", got, 4*9)
	}
	if got != inserted {
		t.Fatalf("reported %d, repo saw %d", got, inserted)
	}
}

func TestGenerate_AllDaysFailingReturnsError(t *testing.T) {
	repo := &fakeRepo{
		insertIfAbsentFn: func(ctx context.Context, candidates []domain.Slot) (int, error) {
			return 0, errors.New("connection refused")
		},
	}
	svc := newTestService(t, repo)

	if _, err := svc.Generate(context.Background(), 4); err == nil {
		t.Fatalf("expected error when every day fails")
	}
}

func TestGenerate_NegativeHorizonIsValidationError(t *testing.T) {
	svc := newTestService(t, memory.NewSlotRepo())

	_, err := svc.Generate(context.Background(), -1)
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("error type = %T, want *ValidationError", err)
	}
}

func TestAvailableSlots_OrderedWithRandomInsertion(t *testing.T) {
	repo := memory.NewSlotRepo()
	svc := newTestService(t, repo)

	var candidates []domain.Slot
	for offset := 0; offset < 5; offset++ {
		day := domain.DayStart(testMonday).AddDate(0, 0, offset)
		candidates = append(candidates, domain.BuildDayCandidates(day, 9, 18)...)
	}
	rng := rand.New(rand.NewSource(42))
	rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	for _, c := range candidates {
		if _, err := repo.InsertIfAbsent(context.Background(), []domain.Slot{c}); err != nil {
			t.Fatalf("InsertIfAbsent error: %v", err)
		}
	}

	slots, err := svc.AvailableSlots(context.Background(), 7)
	if err != nil {
		t.Fatalf("AvailableSlots error: %v", err)
	}
	if len(slots) != len(candidates) {
		t.Fatalf("len(slots) = %d, want %d", len(slots), len(candidates))
	}
	for i := 1; i < len(slots); i++ {
		prev, cur := slots[i-1], slots[i]
		if cur.Date.Before(prev.Date) {
			t.Fatalf("slots out of date order at %d: %v before %v", i, cur.Date, prev.Date)
		}
		if cur.Date.Equal(prev.Date) && cur.StartTime < prev.StartTime {
			t.Fatalf("slots out of time order at %d: %s before %s", i, cur.StartTime, prev.StartTime)
		}
	}
}

func TestNearestAvailableDay_FindsFirstDayWithOpenSlot(t *testing.T) {
	repo := memory.NewSlotRepo()
	svc := newTestService(t, repo)

	// Open slots only three days out.
	day := domain.DayStart(testMonday).AddDate(0, 0, 3)
	if _, err := repo.InsertIfAbsent(context.Background(), domain.BuildDayCandidates(day, 9, 12)); err != nil {
		t.Fatalf("InsertIfAbsent error: %v", err)
	}

	got, err := svc.NearestAvailableDay(context.Background())
	if err != nil {
		t.Fatalf("NearestAvailableDay error: %v", err)
	}
	if got == nil {
		t.Fatalf("expected availability")
	}
	if !got.Date.Equal(day) {
		t.Fatalf("date = %v, want %v", got.Date, day)
	}
	if len(got.Slots) != 3 {
		t.Fatalf("len(slots) = %d, want 3", len(got.Slots))
	}
	if got.Label == "" {
		t.Fatalf("expected a non-empty label")
	}
}

func TestNearestAvailableDay_NoAvailabilityIsNotAnError(t *testing.T) {
	repo := memory.NewSlotRepo()
	svc := newTestService(t, repo)

	got, err := svc.NearestAvailableDay(context.Background())
	if err != nil {
		t.Fatalf("NearestAvailableDay error: %v", err)
	}
	if got != nil {
		t.Fatalf("got %+v, want nil for an empty store", got)
	}
}

func TestNearestAvailableDay_AllBookedWithinBound(t *testing.T) {
	repo := memory.NewSlotRepo()
	svc := newTestService(t, repo)

	day := domain.DayStart(testMonday)
	if _, err := repo.InsertIfAbsent(context.Background(), domain.BuildDayCandidates(day, 9, 10)); err != nil {
		t.Fatalf("InsertIfAbsent error: %v", err)
	}
	slots, err := repo.FindAvailable(context.Background(), day, day, nil)
	if err != nil {
		t.Fatalf("FindAvailable error: %v", err)
	}
	if _, err := repo.TryReserve(context.Background(), slots[0].ID, domain.Reservation{
		OccupantRef: "wa-1",
		SessionRef:  "sess-1",
	}); err != nil {
		t.Fatalf("TryReserve error: %v", err)
	}

	got, err := svc.NearestAvailableDay(context.Background())
	if err != nil {
		t.Fatalf("NearestAvailableDay error: %v", err)
	}
	if got != nil {
		t.Fatalf("got %+v, want nil when everything is booked", got)
	}
}

func TestBook_Validation(t *testing.T) {
	svc := newTestService(t, memory.NewSlotRepo())

	cases := []struct {
		name string
		in   BookInput
		want string
	}{
		{"missing slot id", BookInput{OccupantRef: "wa-1", SessionRef: "s"}, "slot_id is required"},
		{"missing occupant", BookInput{SlotID: "x", SessionRef: "s"}, "occupant_ref is required"},
		{"missing session", BookInput{SlotID: "x", OccupantRef: "wa-1"}, "session_ref is required"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Book(context.Background(), tc.in)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("error type = %T, want *ValidationError", err)
			}
			if vErr.Error() != tc.want {
				t.Fatalf("error = %q, want %q", vErr.Error(), tc.want)
			}
		})
	}
}

func TestBook_PropagatesConflict(t *testing.T) {
	repo := &fakeRepo{
		tryReserveFn: func(ctx context.Context, slotID string, res domain.Reservation) (domain.Slot, error) {
			return domain.Slot{}, store.ErrConflict
		},
	}
	svc := newTestService(t, repo)

	_, err := svc.Book(context.Background(), BookInput{SlotID: "x", OccupantRef: "wa-1", SessionRef: "s"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("error = %v, want %v", err, store.ErrConflict)
	}
}

func TestBook_ConcurrentCallersExactlyOneWinner(t *testing.T) {
	repo := memory.NewSlotRepo()
	svc := newTestService(t, repo)

	day := domain.DayStart(testMonday)
	if _, err := repo.InsertIfAbsent(context.Background(), domain.BuildDayCandidates(day, 9, 10)); err != nil {
		t.Fatalf("InsertIfAbsent error: %v", err)
	}
	slots, err := repo.FindAvailable(context.Background(), day, day, nil)
	if err != nil {
		t.Fatalf("FindAvailable error: %v", err)
	}
	slotID := slots[0].ID

	const callers = 16
	var wg sync.WaitGroup
	results := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.Book(context.Background(), BookInput{
				SlotID:      slotID,
				OccupantRef: fmt.Sprintf("wa-%d", i),
				SessionRef:  fmt.Sprintf("sess-%d", i),
			})
			results[i] = err
		}(i)
	}
	wg.Wait()

	winners := 0
	winner := -1
	for i, err := range results {
		switch {
		case err == nil:
			winners++
			winner = i
		case errors.Is(err, store.ErrConflict):
		default:
			t.Fatalf("caller %d unexpected error: %v", i, err)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}

	final, ok := repo.Get(slotID)
	if !ok {
		t.Fatalf("slot disappeared")
	}
	if final.Status != domain.SlotStatusBooked {
		t.Fatalf("final status = %q, want booked", final.Status)
	}
	if final.OccupantRef != fmt.Sprintf("wa-%d", winner) {
		t.Fatalf("final occupant = %q, want %q", final.OccupantRef, fmt.Sprintf("wa-%d", winner))
	}
}

func TestCancelThenRebookByAnotherOccupant(t *testing.T) {
	repo := memory.NewSlotRepo()
	svc := newTestService(t, repo)

	day := domain.DayStart(testMonday)
	if _, err := repo.InsertIfAbsent(context.Background(), domain.BuildDayCandidates(day, 9, 10)); err != nil {
		t.Fatalf("InsertIfAbsent error: %v", err)
	}
	slots, err := repo.FindAvailable(context.Background(), day, day, nil)
	if err != nil {
		t.Fatalf("FindAvailable error: %v", err)
	}
	slotID := slots[0].ID

	if _, err := svc.Book(context.Background(), BookInput{SlotID: slotID, OccupantRef: "wa-a", SessionRef: "sa"}); err != nil {
		t.Fatalf("book by A error: %v", err)
	}
	cancelled, err := svc.CancelBooking(context.Background(), slotID, "wa-a")
	if err != nil {
		t.Fatalf("cancel error: %v", err)
	}
	if !cancelled {
		t.Fatalf("cancel by owner = false, want true")
	}
	booked, err := svc.Book(context.Background(), BookInput{SlotID: slotID, OccupantRef: "wa-b", SessionRef: "sb"})
	if err != nil {
		t.Fatalf("book by B error: %v", err)
	}
	if booked.OccupantRef != "wa-b" {
		t.Fatalf("final occupant = %q, want wa-b", booked.OccupantRef)
	}
}

func TestCancelByNonOwnerIsNoop(t *testing.T) {
	repo := memory.NewSlotRepo()
	svc := newTestService(t, repo)

	day := domain.DayStart(testMonday)
	if _, err := repo.InsertIfAbsent(context.Background(), domain.BuildDayCandidates(day, 9, 10)); err != nil {
		t.Fatalf("InsertIfAbsent error: %v", err)
	}
	slots, err := repo.FindAvailable(context.Background(), day, day, nil)
	if err != nil {
		t.Fatalf("FindAvailable error: %v", err)
	}
	slotID := slots[0].ID

	if _, err := svc.Book(context.Background(), BookInput{SlotID: slotID, OccupantRef: "wa-a", SessionRef: "sa"}); err != nil {
		t.Fatalf("book error: %v", err)
	}

	cancelled, err := svc.CancelBooking(context.Background(), slotID, "wa-b")
	if err != nil {
		t.Fatalf("cancel error: %v", err)
	}
	if cancelled {
		t.Fatalf("cancel by non-owner = true, want false")
	}

	final, _ := repo.Get(slotID)
	if final.Status != domain.SlotStatusBooked || final.OccupantRef != "wa-a" {
		t.Fatalf("slot mutated by foreign cancel: %+v", final)
	}
}

func TestListBookings(t *testing.T) {
	repo := memory.NewSlotRepo()
	svc := newTestService(t, repo)

	if _, err := svc.Generate(context.Background(), 2); err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	slots, err := svc.AvailableSlots(context.Background(), 2)
	if err != nil {
		t.Fatalf("AvailableSlots error: %v", err)
	}

	for _, s := range []domain.Slot{slots[2], slots[0]} {
		if _, err := svc.Book(context.Background(), BookInput{SlotID: s.ID, OccupantRef: "wa-a", SessionRef: "sa"}); err != nil {
			t.Fatalf("book error: %v", err)
		}
	}

	mine, err := svc.ListBookings(context.Background(), "wa-a")
	if err != nil {
		t.Fatalf("ListBookings error: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("len(mine) = %d, want 2", len(mine))
	}
	if mine[0].StartTime > mine[1].StartTime && mine[0].Date.Equal(mine[1].Date) {
		t.Fatalf("bookings not ordered: %s after %s", mine[0].StartTime, mine[1].StartTime)
	}

	theirs, err := svc.ListBookings(context.Background(), "wa-b")
	if err != nil {
		t.Fatalf("ListBookings error: %v", err)
	}
	if len(theirs) != 0 {
		t.Fatalf("len(theirs) = %d, want 0", len(theirs))
	}
}

func TestStats(t *testing.T) {
	repo := memory.NewSlotRepo()
	svc := newTestService(t, repo)

	if _, err := svc.Generate(context.Background(), 0); err != nil {
		t.Fatalf("Generate error: %v", err)
	}
	slots, err := svc.AvailableSlots(context.Background(), 0)
	if err != nil {
		t.Fatalf("AvailableSlots error: %v", err)
	}
	if _, err := svc.Book(context.Background(), BookInput{SlotID: slots[0].ID, OccupantRef: "wa-a", SessionRef: "sa"}); err != nil {
		t.Fatalf("book error: %v", err)
	}

	stats, err := svc.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats error: %v", err)
	}
	if stats.Total != 9 || stats.Open != 8 || stats.Booked != 1 {
		t.Fatalf("stats = %+v, want total 9 open 8 booked 1", stats)
	}
}
