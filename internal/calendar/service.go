// internal/calendar/service.go
package calendar

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Service defines the interface for the lending calendar.
type Service interface {
	IsNonLendingDay(ctx context.Context, date time.Time) (bool, error)
	AddLendingDays(ctx context.Context, start time.Time, n int) (time.Time, error)
	AddHoliday(ctx context.Context, date time.Time, name string, recurring bool) (*Holiday, error)
	ListHolidays(ctx context.Context) ([]Holiday, error)
	RemoveHoliday(ctx context.Context, id uuid.UUID) error
}
