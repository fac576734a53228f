// internal/circulation/implementation.go
package circulation

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
	"librocirc/internal/eventlog"
	"librocirc/internal/fines"
	"librocirc/internal/members"
	"librocirc/internal/policy"
	"librocirc/internal/reservations"
	"librocirc/internal/store"
)

// service implements the Service interface.
type service struct {
	db       *sqlx.DB
	settings policy.Service
	cal      calendar.Service
	events   *eventlog.Log
	tracer   trace.Tracer
}

// NewService creates a new circulation engine instance.
func NewService(db *sqlx.DB, settings policy.Service, cal calendar.Service, events *eventlog.Log) Service {
	return &service{
		db:       db,
		settings: settings,
		cal:      cal,
		events:   events,
		tracer:   otel.Tracer("librocirc/circulation"),
	}
}

// Issue lends one copy of a book to a member. The availability check,
// copy decrement, loan insert and any head-of-queue fulfillment commit as
// a single transaction holding the book row lock.
func (s *service) Issue(ctx context.Context, req IssueRequest) (*Loan, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.issue",
		trace.WithAttributes(
			attribute.String("member.id", req.MemberID.String()),
			attribute.String("book.id", req.BookID.String()),
			attribute.Bool("override.reservation", req.OverrideReservation),
		),
	)
	defer span.End()

	now := time.Now().UTC()

	period := req.LoanPeriodDays
	if period <= 0 {
		period = s.settings.Int(ctx, policy.KeyLoanPeriodDays)
	}
	dueDate, err := s.cal.AddLendingDays(ctx, now, period)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	maxRenewals := s.settings.Int(ctx, policy.KeyMaxRenewalCount)

	var loan *Loan
	err = store.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		member, err := members.Get(ctx, tx, req.MemberID)
		if err != nil {
			return err
		}
		if !member.Active() {
			return apperr.Rule("deactivated", "member account is deactivated")
		}
		if member.Expired(now) {
			return apperr.Rule("expired", "membership has expired")
		}

		hasFines, err := fines.HasPending(ctx, tx, req.MemberID)
		if err != nil {
			return err
		}
		if hasFines {
			return apperr.Rule("outstanding_fines", "member has unpaid fines")
		}

		var outstanding int
		if err := tx.GetContext(ctx, &outstanding, `
			SELECT COUNT(*) FROM loans WHERE member_id = $1 AND status IN ('issued', 'overdue')
		`, req.MemberID); err != nil {
			return apperr.Internal(err)
		}
		limit := s.borrowLimit(ctx, member.Role)
		if outstanding >= limit {
			return apperr.Rule("limit_reached", fmt.Sprintf("borrowing limit of %d reached", limit))
		}

		book, err := catalog.GetForUpdate(ctx, tx, req.BookID)
		if err != nil {
			return err
		}
		if book.AvailableCopies <= 0 {
			return apperr.Rule("unavailable", "no copies available")
		}

		var fulfilledID *uuid.UUID
		head, err := reservations.Head(ctx, tx, req.BookID)
		if err != nil {
			return err
		}
		if head != nil {
			switch {
			case head.MemberID == req.MemberID:
				if err := reservations.CloseInTx(ctx, tx, s.events, head, reservations.StatusFulfilled); err != nil {
					return err
				}
				fulfilledID = &head.ID
			case !req.OverrideReservation:
				depth, err := reservations.CountActive(ctx, tx, req.BookID)
				if err != nil {
					return err
				}
				return apperr.Conflict("reserved_by_other", "book is reserved by another member").
					WithDetail("held_by", head.MemberID.String()).
					WithDetail("queue_depth", depth)
			default:
				// Override: the reservation stays queued for the next
				// returned copy.
			}
		}

		loan = &Loan{
			ID:           uuid.New(),
			MemberID:     req.MemberID,
			BookID:       req.BookID,
			IssueDate:    now,
			DueDate:      dueDate,
			Status:       StatusIssued,
			RenewalCount: 0,
			MaxRenewals:  maxRenewals,
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO loans (id, member_id, book_id, issue_date, due_date, status, fine_amount, renewal_count, max_renewals)
			VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8)
		`, loan.ID, loan.MemberID, loan.BookID, loan.IssueDate, loan.DueDate, loan.Status, loan.RenewalCount, loan.MaxRenewals); err != nil {
			return apperr.Internal(err)
		}
		if err := catalog.AdjustAvailable(ctx, tx, req.BookID, -1); err != nil {
			return err
		}

		return s.events.Append(ctx, tx, loan.ID, "loan", "LoanIssued", LoanIssuedEvent{
			LoanID:                 loan.ID,
			MemberID:               loan.MemberID,
			BookID:                 loan.BookID,
			DueDate:                loan.DueDate,
			FulfilledReservationID: fulfilledID,
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("loan_id", loan.ID.String()).
		Str("member_id", loan.MemberID.String()).
		Str("book_id", loan.BookID.String()).
		Time("due_date", loan.DueDate).
		Msg("loan issued")
	return loan, nil
}

func (s *service) borrowLimit(ctx context.Context, role string) int {
	if role == members.RoleStaff {
		return s.settings.Int(ctx, policy.KeyMaxBooksPerStaff)
	}
	return s.settings.Int(ctx, policy.KeyMaxBooksPerStudent)
}

// Return processes a batch of returns. Each loan commits in its own
// transaction; a bad id is reported in Skipped without failing the rest.
func (s *service) Return(ctx context.Context, req ReturnRequest) (*ReturnResult, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.return",
		trace.WithAttributes(attribute.Int("loan.count", len(req.LoanIDs))),
	)
	defer span.End()

	now := time.Now().UTC()
	rate := s.settings.Float(ctx, policy.KeyDailyFineRate)
	grace := s.settings.Int(ctx, policy.KeyOverdueGracePeriod)

	result := &ReturnResult{Returned: []ReturnedLoan{}, Skipped: []SkippedLoan{}}
	for _, loanID := range req.LoanIDs {
		fineAmount, err := s.returnOne(ctx, loanID, now, rate, grace)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindInternal {
				return nil, err
			}
			result.Skipped = append(result.Skipped, SkippedLoan{LoanID: loanID, Reason: apperr.CodeOf(err)})
			continue
		}
		result.Returned = append(result.Returned, ReturnedLoan{LoanID: loanID, FineAmount: fineAmount})
	}
	return result, nil
}

func (s *service) returnOne(ctx context.Context, loanID uuid.UUID, now time.Time, rate float64, grace int) (float64, error) {
	var fineAmount float64
	err := store.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		loan, book, err := lockLoan(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if !loan.Outstanding() {
			return apperr.AlreadyDone("already_returned", "loan is not out")
		}

		fineAmount = fineFor(daysOverdue(loan.DueDate, now), grace, rate)

		if _, err := tx.ExecContext(ctx, `
			UPDATE loans SET status = $1, return_date = $2, fine_amount = $3 WHERE id = $4
		`, StatusReturned, now, fineAmount, loanID); err != nil {
			return apperr.Internal(err)
		}
		if err := catalog.AdjustAvailable(ctx, tx, loan.BookID, +1); err != nil {
			return err
		}

		if fineAmount > 0 {
			reason := fmt.Sprintf("overdue: %s (%dd)", book.Title, daysOverdue(loan.DueDate, now))
			existing, err := fines.PendingForLoan(ctx, tx, loanID)
			if err != nil {
				return err
			}
			if existing != nil {
				// The sweeper already opened a fine for this loan; settle
				// on the final amount instead of inserting a second one.
				if err := fines.UpdatePendingAmount(ctx, tx, existing.ID, fineAmount, reason); err != nil {
					return err
				}
			} else {
				loanRef := uuid.NullUUID{UUID: loanID, Valid: true}
				if _, err := fines.Create(ctx, tx, loan.MemberID, loanRef, fineAmount, reason); err != nil {
					return err
				}
			}
		}

		return s.events.Append(ctx, tx, loanID, "loan", "LoanReturned", LoanReturnedEvent{
			LoanID:     loanID,
			BookID:     loan.BookID,
			FineAmount: fineAmount,
			ReturnDate: now,
		})
	})
	return fineAmount, err
}

// Renew processes a batch of renewals with the same skip-and-continue
// policy as Return.
func (s *service) Renew(ctx context.Context, req RenewRequest) (*RenewResult, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.renew",
		trace.WithAttributes(attribute.Int("loan.count", len(req.LoanIDs))),
	)
	defer span.End()

	now := time.Now().UTC()
	days := req.RenewalDays
	if days <= 0 {
		days = s.settings.Int(ctx, policy.KeyRenewalPeriodDays)
	}
	newDueDate, err := s.cal.AddLendingDays(ctx, now, days)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	result := &RenewResult{Renewed: []RenewedLoan{}, Skipped: []SkippedLoan{}}
	for _, loanID := range req.LoanIDs {
		if err := s.renewOne(ctx, loanID, now, newDueDate); err != nil {
			if apperr.KindOf(err) == apperr.KindInternal {
				return nil, err
			}
			result.Skipped = append(result.Skipped, SkippedLoan{LoanID: loanID, Reason: apperr.CodeOf(err)})
			continue
		}
		result.Renewed = append(result.Renewed, RenewedLoan{LoanID: loanID, NewDueDate: newDueDate})
	}
	return result, nil
}

func (s *service) renewOne(ctx context.Context, loanID uuid.UUID, now, newDueDate time.Time) error {
	return store.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		loan, _, err := lockLoan(ctx, tx, loanID)
		if err != nil {
			return err
		}

		queueDepth, err := reservations.CountActive(ctx, tx, loan.BookID)
		if err != nil {
			return err
		}
		hasFines, err := fines.HasPending(ctx, tx, loan.MemberID)
		if err != nil {
			return err
		}
		if err := renewEligibility(loan, queueDepth > 0, hasFines, now); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE loans SET due_date = $1, renewal_count = renewal_count + 1 WHERE id = $2
		`, newDueDate, loanID); err != nil {
			return apperr.Internal(err)
		}

		return s.events.Append(ctx, tx, loanID, "loan", "LoanRenewed", LoanRenewedEvent{
			LoanID:       loanID,
			NewDueDate:   newDueDate,
			RenewalCount: loan.RenewalCount + 1,
		})
	})
}

// GetLoan retrieves a loan by id.
func (s *service) GetLoan(ctx context.Context, id uuid.UUID) (*Loan, error) {
	loan := &Loan{}
	err := s.db.GetContext(ctx, loan, `
		SELECT id, member_id, book_id, issue_date, due_date, return_date, status, fine_amount, renewal_count, max_renewals
		FROM loans WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("loan", id)
		}
		return nil, apperr.Internal(err)
	}
	return loan, nil
}

// ListByMember returns a member's loans, most recent first.
func (s *service) ListByMember(ctx context.Context, memberID uuid.UUID) ([]Loan, error) {
	loans := []Loan{}
	err := s.db.SelectContext(ctx, &loans, `
		SELECT id, member_id, book_id, issue_date, due_date, return_date, status, fine_amount, renewal_count, max_renewals
		FROM loans WHERE member_id = $1
		ORDER BY issue_date DESC
	`, memberID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return loans, nil
}

// LoanEvents returns the audit trail of a loan.
func (s *service) LoanEvents(ctx context.Context, loanID uuid.UUID) ([]eventlog.Event, error) {
	if _, err := s.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}
	events, err := s.events.ListByAggregate(ctx, s.db, loanID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return events, nil
}

// lockLoan takes the book row lock first, then the loan row lock, the
// same order every circulation path uses.
func lockLoan(ctx context.Context, tx *sqlx.Tx, loanID uuid.UUID) (*Loan, *catalog.Book, error) {
	var bookID uuid.UUID
	err := tx.GetContext(ctx, &bookID, `SELECT book_id FROM loans WHERE id = $1`, loanID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, apperr.NotFound("loan", loanID)
		}
		return nil, nil, apperr.Internal(err)
	}
	book, err := catalog.GetForUpdate(ctx, tx, bookID)
	if err != nil {
		return nil, nil, err
	}

	loan := &Loan{}
	err = tx.GetContext(ctx, loan, `
		SELECT id, member_id, book_id, issue_date, due_date, return_date, status, fine_amount, renewal_count, max_renewals
		FROM loans WHERE id = $1
		FOR UPDATE
	`, loanID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, apperr.NotFound("loan", loanID)
		}
		return nil, nil, apperr.Internal(err)
	}
	return loan, book, nil
}
