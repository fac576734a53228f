// internal/overdue/sweeper.go
package overdue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"librocirc/internal/apperr"
	"librocirc/internal/calendar"
	"librocirc/internal/catalog"
	"librocirc/internal/circulation"
	"librocirc/internal/eventlog"
	"librocirc/internal/fines"
	"librocirc/internal/policy"
	"librocirc/internal/reservations"
	"librocirc/internal/store"
)

// Report summarizes one sweep. Running the sweep again immediately yields
// an all-zero report.
type Report struct {
	LoansFlagged        int `json:"loans_flagged"`
	FinesCreated        int `json:"fines_created"`
	ReservationsExpired int `json:"reservations_expired"`
}

// LoanOverdueEvent is appended when the sweeper flags a loan.
type LoanOverdueEvent struct {
	LoanID      uuid.UUID `json:"loan_id"`
	DaysOverdue int       `json:"days_overdue"`
	FineAmount  float64   `json:"fine_amount,omitempty"`
}

// Sweeper flags overdue loans, opens fines for them, and expires stale
// reservations. It runs on a schedule and on demand; both paths share
// Sweep.
type Sweeper struct {
	db       *sqlx.DB
	settings policy.Service
	events   *eventlog.Log
	tracer   trace.Tracer
}

func NewSweeper(db *sqlx.DB, settings policy.Service, events *eventlog.Log) *Sweeper {
	return &Sweeper{
		db:       db,
		settings: settings,
		events:   events,
		tracer:   otel.Tracer("librocirc/overdue"),
	}
}

// Sweep processes every issued loan past due as of now, one transaction
// per loan so a crash mid-sweep leaves no partial state, then expires
// stale reservations.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (*Report, error) {
	ctx, span := s.tracer.Start(ctx, "overdue.sweep",
		trace.WithAttributes(attribute.String("as.of", now.Format(time.RFC3339))),
	)
	defer span.End()

	rate := s.settings.Float(ctx, policy.KeyDailyFineRate)
	grace := s.settings.Int(ctx, policy.KeyOverdueGracePeriod)

	candidates := []uuid.UUID{}
	err := s.db.SelectContext(ctx, &candidates, `
		SELECT id FROM loans WHERE status = $1 AND due_date < $2
	`, circulation.StatusIssued, calendar.DateOnly(now))
	if err != nil {
		return nil, apperr.Internal(err)
	}

	report := &Report{}
	for _, loanID := range candidates {
		flagged, fined, err := s.sweepLoan(ctx, loanID, now, rate, grace)
		if err != nil {
			// A loan returned between the scan and the lock is not an
			// error; anything else aborts the sweep.
			if apperr.KindOf(err) == apperr.KindInternal {
				return nil, err
			}
			continue
		}
		if flagged {
			report.LoansFlagged++
		}
		if fined {
			report.FinesCreated++
		}
	}

	expired, err := s.expireReservations(ctx, now)
	if err != nil {
		return nil, err
	}
	report.ReservationsExpired = expired

	span.SetAttributes(
		attribute.Int("loans.flagged", report.LoansFlagged),
		attribute.Int("fines.created", report.FinesCreated),
		attribute.Int("reservations.expired", report.ReservationsExpired),
	)
	log.Info().
		Int("loans_flagged", report.LoansFlagged).
		Int("fines_created", report.FinesCreated).
		Int("reservations_expired", report.ReservationsExpired).
		Msg("overdue sweep finished")
	return report, nil
}

func (s *Sweeper) sweepLoan(ctx context.Context, loanID uuid.UUID, now time.Time, rate float64, grace int) (flagged, fined bool, err error) {
	err = store.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var bookID uuid.UUID
		if err := tx.GetContext(ctx, &bookID, `SELECT book_id FROM loans WHERE id = $1`, loanID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("loan", loanID)
			}
			return apperr.Internal(err)
		}
		book, err := catalog.GetForUpdate(ctx, tx, bookID)
		if err != nil {
			return err
		}

		loan := struct {
			MemberID uuid.UUID `db:"member_id"`
			DueDate  time.Time `db:"due_date"`
			Status   string    `db:"status"`
		}{}
		err = tx.GetContext(ctx, &loan, `
			SELECT member_id, due_date, status FROM loans WHERE id = $1 FOR UPDATE
		`, loanID)
		if err != nil {
			return apperr.Internal(err)
		}
		// Re-check under the lock: a concurrent return or earlier sweep
		// wins.
		if loan.Status != circulation.StatusIssued {
			return apperr.Conflict("not_issued", "loan changed state during sweep")
		}

		overdueDays := calendar.DaysBetween(loan.DueDate, now)
		if overdueDays <= 0 {
			return apperr.Conflict("not_overdue", "loan is not past due")
		}

		amount := float64(overdueDays-grace) * rate
		if overdueDays <= grace {
			amount = 0
		}

		if amount > 0 {
			existing, err := fines.PendingForLoan(ctx, tx, loanID)
			if err != nil {
				return err
			}
			if existing == nil {
				reason := fmt.Sprintf("overdue: %s (%dd)", book.Title, overdueDays)
				loanRef := uuid.NullUUID{UUID: loanID, Valid: true}
				if _, err := fines.Create(ctx, tx, loan.MemberID, loanRef, amount, reason); err != nil {
					return err
				}
				fined = true
			}
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE loans SET status = $1 WHERE id = $2
		`, circulation.StatusOverdue, loanID); err != nil {
			return apperr.Internal(err)
		}
		flagged = true

		return s.events.Append(ctx, tx, loanID, "loan", "LoanOverdue", LoanOverdueEvent{
			LoanID:      loanID,
			DaysOverdue: overdueDays,
			FineAmount:  amount,
		})
	})
	return flagged, fined, err
}

// expireReservations closes active reservations whose expiry date has
// passed, renumbering each book's queue as it goes.
func (s *Sweeper) expireReservations(ctx context.Context, now time.Time) (int, error) {
	stale := []uuid.UUID{}
	err := s.db.SelectContext(ctx, &stale, `
		SELECT id FROM reservations WHERE status = $1 AND expiry_date < $2
	`, reservations.StatusActive, now)
	if err != nil {
		return 0, apperr.Internal(err)
	}

	expired := 0
	for _, id := range stale {
		err := store.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
			res := &reservations.Reservation{}
			err := tx.GetContext(ctx, res, `
				SELECT id, member_id, book_id, reservation_date, expiry_date, pickup_deadline, status, queue_position
				FROM reservations WHERE id = $1
			`, id)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return apperr.NotFound("reservation", id)
				}
				return apperr.Internal(err)
			}
			if _, err := catalog.GetForUpdate(ctx, tx, res.BookID); err != nil {
				return err
			}
			// Re-check under the book lock.
			var status string
			if err := tx.GetContext(ctx, &status, `SELECT status FROM reservations WHERE id = $1 FOR UPDATE`, id); err != nil {
				return apperr.Internal(err)
			}
			if status != reservations.StatusActive {
				return apperr.Conflict("not_active", "reservation changed state during sweep")
			}
			return reservations.CloseInTx(ctx, tx, s.events, res, reservations.StatusExpired)
		})
		if err != nil {
			if apperr.KindOf(err) == apperr.KindInternal {
				return expired, err
			}
			continue
		}
		expired++
	}
	return expired, nil
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx, time.Now().UTC()); err != nil {
				log.Error().Err(err).Msg("scheduled sweep failed")
			}
		}
	}
}
