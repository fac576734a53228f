// internal/calendar/domain.go
package calendar

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Holiday is a configured non-lending date. Recurring is stored and
// reported but the matcher compares full calendar dates, so a recurring
// holiday only matches in the year it was entered.
type Holiday struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Date      time.Time `json:"date" db:"holiday_date"`
	Name      string    `json:"name" db:"name"`
	Recurring bool      `json:"recurring" db:"recurring"`
}

// HolidayFunc reports whether a date is a configured holiday.
type HolidayFunc func(ctx context.Context, date time.Time) (bool, error)

// DateOnly truncates t to midnight UTC so date arithmetic ignores clock
// time and zone drift.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole calendar days from a to b (negative when
// b precedes a).
func DaysBetween(a, b time.Time) int {
	return int(DateOnly(b).Sub(DateOnly(a)).Hours() / 24)
}

// IsNonLendingDay reports whether date falls on a Sunday or a configured
// holiday.
func IsNonLendingDay(ctx context.Context, date time.Time, isHoliday HolidayFunc) (bool, error) {
	d := DateOnly(date)
	if d.Weekday() == time.Sunday {
		return true, nil
	}
	return isHoliday(ctx, d)
}

// NextLendingDate walks forward from start one calendar day at a time,
// counting only lending days, until n of them have passed. n == 0 returns
// start unchanged, even when start itself is a non-lending day.
func NextLendingDate(ctx context.Context, start time.Time, n int, isHoliday HolidayFunc) (time.Time, error) {
	d := DateOnly(start)
	for counted := 0; counted < n; {
		d = d.AddDate(0, 0, 1)
		nonLending, err := IsNonLendingDay(ctx, d, isHoliday)
		if err != nil {
			return time.Time{}, err
		}
		if !nonLending {
			counted++
		}
	}
	return d, nil
}
