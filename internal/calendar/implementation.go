// internal/calendar/implementation.go
package calendar

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"librocirc/internal/apperr"
)

// service implements the Service interface against the holidays table.
type service struct {
	db *sqlx.DB
}

// NewService creates a new calendar service instance.
func NewService(db *sqlx.DB) Service {
	return &service{db: db}
}

func (s *service) isHoliday(ctx context.Context, date time.Time) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM holidays WHERE holiday_date = $1)
	`, DateOnly(date))
	if err != nil {
		return false, fmt.Errorf("check holiday: %w", err)
	}
	return exists, nil
}

// IsNonLendingDay reports whether date is a Sunday or a configured holiday.
func (s *service) IsNonLendingDay(ctx context.Context, date time.Time) (bool, error) {
	return IsNonLendingDay(ctx, date, s.isHoliday)
}

// AddLendingDays walks forward n lending days from start.
func (s *service) AddLendingDays(ctx context.Context, start time.Time, n int) (time.Time, error) {
	return NextLendingDate(ctx, start, n, s.isHoliday)
}

// AddHoliday registers a non-lending date.
func (s *service) AddHoliday(ctx context.Context, date time.Time, name string, recurring bool) (*Holiday, error) {
	if name == "" {
		return nil, apperr.Validation("missing_name", "holiday name is required")
	}
	h := &Holiday{
		ID:        uuid.New(),
		Date:      DateOnly(date),
		Name:      name,
		Recurring: recurring,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO holidays (id, holiday_date, name, recurring)
		VALUES ($1, $2, $3, $4)
	`, h.ID, h.Date, h.Name, h.Recurring)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return h, nil
}

// ListHolidays returns all holidays ordered by date.
func (s *service) ListHolidays(ctx context.Context) ([]Holiday, error) {
	holidays := []Holiday{}
	err := s.db.SelectContext(ctx, &holidays, `
		SELECT id, holiday_date, name, recurring FROM holidays ORDER BY holiday_date
	`)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return holidays, nil
}

// RemoveHoliday deletes a holiday by id.
func (s *service) RemoveHoliday(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM holidays WHERE id = $1`, id)
	if err != nil {
		return apperr.Internal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("holiday", id)
	}
	return nil
}
