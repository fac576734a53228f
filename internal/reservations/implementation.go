// internal/reservations/implementation.go
package reservations

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"librocirc/internal/apperr"
	"librocirc/internal/calendar"
	"librocirc/internal/catalog"
	"librocirc/internal/eventlog"
	"librocirc/internal/policy"
	"librocirc/internal/store"
)

// service implements the Service interface.
type service struct {
	db       *sqlx.DB
	events   *eventlog.Log
	settings policy.Service
	tracer   trace.Tracer
}

// NewService creates a new reservation queue service instance.
func NewService(db *sqlx.DB, events *eventlog.Log, settings policy.Service) Service {
	return &service{
		db:       db,
		events:   events,
		settings: settings,
		tracer:   otel.Tracer("librocirc/reservations"),
	}
}

// Reserve places the member at the tail of the book's queue.
func (s *service) Reserve(ctx context.Context, req ReserveRequest) (*Reservation, error) {
	ctx, span := s.tracer.Start(ctx, "reservations.reserve",
		trace.WithAttributes(
			attribute.String("member.id", req.MemberID.String()),
			attribute.String("book.id", req.BookID.String()),
		),
	)
	defer span.End()

	now := time.Now().UTC()
	expiryDays := s.settings.Int(ctx, policy.KeyReservationExpiryDays)

	var reservation *Reservation
	err := store.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		// Lock the book row first; all queue mutations for one book
		// serialize on it.
		if _, err := catalog.GetForUpdate(ctx, tx, req.BookID); err != nil {
			return err
		}

		var alreadyBorrowed bool
		err := tx.GetContext(ctx, &alreadyBorrowed, `
			SELECT EXISTS (
				SELECT 1 FROM loans
				WHERE member_id = $1 AND book_id = $2 AND status IN ('issued', 'overdue')
			)
		`, req.MemberID, req.BookID)
		if err != nil {
			return apperr.Internal(err)
		}
		if alreadyBorrowed {
			return apperr.Conflict("already_borrowed", "member already holds this book on loan")
		}

		var alreadyQueued bool
		err = tx.GetContext(ctx, &alreadyQueued, `
			SELECT EXISTS (
				SELECT 1 FROM reservations
				WHERE member_id = $1 AND book_id = $2 AND status = $3
			)
		`, req.MemberID, req.BookID, StatusActive)
		if err != nil {
			return apperr.Internal(err)
		}
		if alreadyQueued {
			return apperr.Conflict("already_reserved", "member already has an active reservation for this book")
		}

		position, err := CountActive(ctx, tx, req.BookID)
		if err != nil {
			return err
		}
		position++

		estimate, err := estimatedAvailability(ctx, tx, req.BookID, now)
		if err != nil {
			return err
		}
		if err := validatePickupDate(req.PickupDate, now, estimate); err != nil {
			return err
		}

		reservation = &Reservation{
			ID:              uuid.New(),
			MemberID:        req.MemberID,
			BookID:          req.BookID,
			ReservationDate: now,
			ExpiryDate:      now.AddDate(0, 0, expiryDays),
			PickupDeadline:  req.PickupDate,
			Status:          StatusActive,
			QueuePosition:   position,
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO reservations (id, member_id, book_id, reservation_date, expiry_date, pickup_deadline, status, queue_position)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, reservation.ID, reservation.MemberID, reservation.BookID, reservation.ReservationDate,
			reservation.ExpiryDate, reservation.PickupDeadline, reservation.Status, reservation.QueuePosition)
		if err != nil {
			return apperr.Internal(err)
		}

		return s.events.Append(ctx, tx, reservation.ID, "reservation", "ReservationPlaced", ReservationPlacedEvent{
			ReservationID: reservation.ID,
			MemberID:      reservation.MemberID,
			BookID:        reservation.BookID,
			QueuePosition: reservation.QueuePosition,
		})
	})
	if err != nil {
		return nil, err
	}
	return reservation, nil
}

// Cancel closes an active reservation on behalf of its owner or staff.
func (s *service) Cancel(ctx context.Context, reservationID, byMemberID uuid.UUID, staff bool) error {
	ctx, span := s.tracer.Start(ctx, "reservations.cancel",
		trace.WithAttributes(attribute.String("reservation.id", reservationID.String())),
	)
	defer span.End()

	return store.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		res, err := lockForClose(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		if res.MemberID != byMemberID && !staff {
			return apperr.Forbidden("not_owner", "reservation belongs to another member")
		}
		if res.Status != StatusActive {
			return apperr.Conflict("not_active", "reservation is no longer active")
		}
		return CloseInTx(ctx, tx, s.events, res, StatusCancelled)
	})
}

// Fulfill closes the reservation because its copy was handed over.
func (s *service) Fulfill(ctx context.Context, reservationID uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "reservations.fulfill",
		trace.WithAttributes(attribute.String("reservation.id", reservationID.String())),
	)
	defer span.End()

	return store.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		res, err := lockForClose(ctx, tx, reservationID)
		if err != nil {
			return err
		}
		if res.Status != StatusActive {
			return apperr.Conflict("not_active", "reservation is no longer active")
		}
		return CloseInTx(ctx, tx, s.events, res, StatusFulfilled)
	})
}

// ListByBook returns a book's queue in position order, then closed
// reservations by recency.
func (s *service) ListByBook(ctx context.Context, bookID uuid.UUID) ([]Reservation, error) {
	list := []Reservation{}
	err := s.db.SelectContext(ctx, &list, `
		SELECT id, member_id, book_id, reservation_date, expiry_date, pickup_deadline, status, queue_position
		FROM reservations
		WHERE book_id = $1
		ORDER BY (status = $2) DESC, queue_position, reservation_date DESC
	`, bookID, StatusActive)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return list, nil
}

// lockForClose locks the book row first, then the reservation row, so the
// lock order matches the issue path and renumbering serializes per book.
func lockForClose(ctx context.Context, tx *sqlx.Tx, reservationID uuid.UUID) (*Reservation, error) {
	var bookID uuid.UUID
	err := tx.GetContext(ctx, &bookID, `SELECT book_id FROM reservations WHERE id = $1`, reservationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("reservation", reservationID)
		}
		return nil, apperr.Internal(err)
	}
	if _, err := catalog.GetForUpdate(ctx, tx, bookID); err != nil {
		return nil, err
	}

	res := &Reservation{}
	err = tx.GetContext(ctx, res, `
		SELECT id, member_id, book_id, reservation_date, expiry_date, pickup_deadline, status, queue_position
		FROM reservations WHERE id = $1
		FOR UPDATE
	`, reservationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("reservation", reservationID)
		}
		return nil, apperr.Internal(err)
	}
	return res, nil
}

// CloseInTx moves res out of the active queue and shifts every active
// reservation behind it down one position, inside the caller's
// transaction. The caller must already hold the book row lock.
func CloseInTx(ctx context.Context, tx *sqlx.Tx, events *eventlog.Log, res *Reservation, newStatus string) error {
	if _, err := tx.ExecContext(ctx, `
		UPDATE reservations SET status = $1 WHERE id = $2
	`, newStatus, res.ID); err != nil {
		return apperr.Internal(err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE reservations
		SET queue_position = queue_position - 1
		WHERE book_id = $1 AND status = $2 AND queue_position > $3
	`, res.BookID, StatusActive, res.QueuePosition); err != nil {
		return apperr.Internal(err)
	}
	return events.Append(ctx, tx, res.ID, "reservation", "ReservationClosed", ReservationClosedEvent{
		ReservationID: res.ID,
		BookID:        res.BookID,
		Status:        newStatus,
	})
}

// Head returns the lowest-position active reservation for a book, or nil.
func Head(ctx context.Context, q store.Querier, bookID uuid.UUID) (*Reservation, error) {
	res := &Reservation{}
	err := q.GetContext(ctx, res, `
		SELECT id, member_id, book_id, reservation_date, expiry_date, pickup_deadline, status, queue_position
		FROM reservations
		WHERE book_id = $1 AND status = $2
		ORDER BY queue_position
		LIMIT 1
	`, bookID, StatusActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Internal(err)
	}
	return res, nil
}

// CountActive returns the depth of a book's active queue.
func CountActive(ctx context.Context, q store.Querier, bookID uuid.UUID) (int, error) {
	var n int
	err := q.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM reservations WHERE book_id = $1 AND status = $2
	`, bookID, StatusActive)
	if err != nil {
		return 0, apperr.Internal(err)
	}
	return n, nil
}

// estimatedAvailability is the earliest date a copy is expected back: the
// soonest due date among outstanding loans plus one day, or now when a
// copy is not out at all.
func estimatedAvailability(ctx context.Context, q store.Querier, bookID uuid.UUID, now time.Time) (time.Time, error) {
	var earliestDue sql.NullTime
	err := q.GetContext(ctx, &earliestDue, `
		SELECT MIN(due_date) FROM loans WHERE book_id = $1 AND status IN ('issued', 'overdue')
	`, bookID)
	if err != nil {
		return time.Time{}, apperr.Internal(err)
	}
	if !earliestDue.Valid {
		return calendar.DateOnly(now), nil
	}
	return calendar.DateOnly(earliestDue.Time).AddDate(0, 0, 1), nil
}

// validatePickupDate enforces that a requested pickup is neither in the
// past nor before the copy can plausibly be back on the shelf.
func validatePickupDate(pickup *time.Time, now, estimate time.Time) error {
	if pickup == nil {
		return nil
	}
	p := calendar.DateOnly(*pickup)
	today := calendar.DateOnly(now)
	if p.Before(today) || p.Before(estimate) {
		return apperr.Validation("bad_pickup_date", "pickup date is before the estimated availability date").
			WithDetail("estimated_available", estimate.Format("2006-01-02"))
	}
	return nil
}
