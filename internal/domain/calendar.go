package domain

import (
	"fmt"
	"time"
)

// Workable reports whether consultations are held on the given date.
// The practice works Monday through Friday.
func Workable(date time.Time) bool {
	wd := date.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// DayStart canonicalizes t to its calendar date: midnight UTC with the
// year, month and day t shows in its own location. Slot dates are built,
// stored and compared in this form, so the working time zone never
// shifts the persisted calendar day. A Moscow local midnight would
// otherwise reach the database as a 21:00 UTC literal of the previous
// date.
func DayStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// WorkableDates returns the workable dates at offsets 0..horizonDays
// (inclusive) from the day containing `from`, weekends skipped.
func WorkableDates(from time.Time, horizonDays int) []time.Time {
	start := DayStart(from)
	dates := make([]time.Time, 0, horizonDays+1)
	for offset := 0; offset <= horizonDays; offset++ {
		d := start.AddDate(0, 0, offset)
		if !Workable(d) {
			continue
		}
		dates = append(dates, d)
	}
	return dates
}

// HourLabel renders a whole hour as "HH:MM" wall-clock text.
func HourLabel(hour int) string {
	return fmt.Sprintf("%02d:00", hour)
}

// BuildDayCandidates produces the open one-hour candidate slots for a
// single date, one per working hour in [startHour, endHour). Each
// candidate gets a fresh identifier; the caller hands the batch to the
// store, which drops candidates whose (date, start) key already exists.
func BuildDayCandidates(date time.Time, startHour, endHour int) []Slot {
	day := DayStart(date)
	slots := make([]Slot, 0, endHour-startHour)
	for h := startHour; h < endHour; h++ {
		start := HourLabel(h)
		slots = append(slots, Slot{
			ID:        NewSlotID(day, start),
			Date:      day,
			StartTime: start,
			EndTime:   HourLabel(h + 1),
			Status:    SlotStatusOpen,
		})
	}
	return slots
}
