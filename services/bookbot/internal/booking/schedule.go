package booking

import (
	"fmt"
	"time"
)

// Business hours: Mon-Fri 12:00-20:30, Sat 10:30-19:00, closed Sunday.
// Slots are one hour long; a shorter trailing slot is offered when the
// closing time is not on the hour grid.
type dayHours struct {
	open  int // minutes from midnight
	close int
}

var weekHours = map[time.Weekday]dayHours{
	time.Monday:    {open: 12 * 60, close: 20*60 + 30},
	time.Tuesday:   {open: 12 * 60, close: 20*60 + 30},
	time.Wednesday: {open: 12 * 60, close: 20*60 + 30},
	time.Thursday:  {open: 12 * 60, close: 20*60 + 30},
	time.Friday:    {open: 12 * 60, close: 20*60 + 30},
	time.Saturday:  {open: 10*60 + 30, close: 19 * 60},
}

const dateLayout = "2006-01-02"

// bookingWindowDays is how far ahead the date menu reaches.
const bookingWindowDays = 14

// BookableDates returns the dates offered in the date menu: the next
// bookingWindowDays calendar days starting from now's date, skipping days
// the clinic is closed.
func BookableDates(now time.Time) []string {
	var dates []string
	for i := 0; i < bookingWindowDays; i++ {
		day := now.AddDate(0, 0, i)
		if _, open := weekHours[day.Weekday()]; !open {
			continue
		}
		dates = append(dates, day.Format(dateLayout))
	}
	return dates
}

// SlotsForDate returns the bookable time-slot labels for a date, walking
// hour-long slots from opening time and appending the trailing partial
// slot when at least 30 minutes remain before close.
func SlotsForDate(date string) ([]string, error) {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}
	hours, open := weekHours[day.Weekday()]
	if !open {
		return nil, nil
	}

	var slots []string
	start := hours.open
	for start+60 <= hours.close {
		slots = append(slots, slotLabel(start, start+60))
		start += 60
	}
	if hours.close-start >= 30 {
		slots = append(slots, slotLabel(start, hours.close))
	}
	return slots, nil
}

// ValidSlot reports whether the slot label belongs to the date's grid.
func ValidSlot(date, slot string) bool {
	slots, err := SlotsForDate(date)
	if err != nil {
		return false
	}
	for _, s := range slots {
		if s == slot {
			return true
		}
	}
	return false
}

// ValidDate reports whether the date is well-formed, not in the past
// relative to now, within the booking window, and on an open day.
func ValidDate(date string, now time.Time) bool {
	day, err := time.Parse(dateLayout, date)
	if err != nil {
		return false
	}
	if _, open := weekHours[day.Weekday()]; !open {
		return false
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if day.Before(today) {
		return false
	}
	return !day.After(today.AddDate(0, 0, bookingWindowDays-1))
}

func slotLabel(startMin, endMin int) string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", startMin/60, startMin%60, endMin/60, endMin%60)
}
