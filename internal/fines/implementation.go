// internal/fines/implementation.go
package fines

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
	"librocirc/internal/store"
)

// service implements the Service interface.
type service struct {
	db     *sqlx.DB
	tracer trace.Tracer
}

// NewService creates a new fine ledger service instance.
func NewService(db *sqlx.DB) Service {
	return &service{
		db:     db,
		tracer: otel.Tracer("librocirc/fines"),
	}
}

// HasPendingFines reports whether the member has any unpaid fine. The
// presence alone blocks issuing and renewal; the total is informational.
func (s *service) HasPendingFines(ctx context.Context, memberID uuid.UUID) (bool, error) {
	return HasPending(ctx, s.db, memberID)
}

// CreateFine records a pending fine.
func (s *service) CreateFine(ctx context.Context, memberID uuid.UUID, loanID uuid.NullUUID, amount float64, reason string) (*Fine, error) {
	if amount <= 0 {
		return nil, apperr.Validation("bad_amount", "fine amount must be positive")
	}
	if reason == "" {
		return nil, apperr.Validation("missing_reason", "fine reason is required")
	}
	return Create(ctx, s.db, memberID, loanID, amount, reason)
}

// MarkPaid settles a fine.
func (s *service) MarkPaid(ctx context.Context, fineID uuid.UUID) (*Fine, error) {
	ctx, span := s.tracer.Start(ctx, "fines.mark_paid",
		trace.WithAttributes(attribute.String("fine.id", fineID.String())),
	)
	defer span.End()

	var fine *Fine
	err := store.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		f := &Fine{}
		err := tx.GetContext(ctx, f, `
			SELECT id, member_id, loan_id, amount, reason, status, created_date, paid_date
			FROM fines WHERE id = $1
			FOR UPDATE
		`, fineID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.NotFound("fine", fineID)
			}
			return apperr.Internal(err)
		}
		if f.Status == StatusPaid {
			return apperr.AlreadyDone("already_paid", "fine is already paid")
		}
		now := time.Now().UTC()
		if _, err := tx.ExecContext(ctx, `
			UPDATE fines SET status = $1, paid_date = $2 WHERE id = $3
		`, StatusPaid, now, fineID); err != nil {
			return apperr.Internal(err)
		}
		f.Status = StatusPaid
		f.PaidDate = &now
		fine = f
		return nil
	})
	if err != nil {
		return nil, err
	}
	return fine, nil
}

// ListByMember returns a member's fines, newest first.
func (s *service) ListByMember(ctx context.Context, memberID uuid.UUID) ([]Fine, error) {
	list := []Fine{}
	err := s.db.SelectContext(ctx, &list, `
		SELECT id, member_id, loan_id, amount, reason, status, created_date, paid_date
		FROM fines WHERE member_id = $1
		ORDER BY created_date DESC
	`, memberID)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return list, nil
}

// HasPending runs the pending-fine gate through q, which may be an open
// transaction.
func HasPending(ctx context.Context, q store.Querier, memberID uuid.UUID) (bool, error) {
	var exists bool
	err := q.GetContext(ctx, &exists, `
		SELECT EXISTS (SELECT 1 FROM fines WHERE member_id = $1 AND status = $2)
	`, memberID, StatusPending)
	if err != nil {
		return false, apperr.Internal(err)
	}
	return exists, nil
}

// PendingForLoan returns the pending fine attached to a loan, if any.
func PendingForLoan(ctx context.Context, q store.Querier, loanID uuid.UUID) (*Fine, error) {
	f := &Fine{}
	err := q.GetContext(ctx, f, `
		SELECT id, member_id, loan_id, amount, reason, status, created_date, paid_date
		FROM fines WHERE loan_id = $1 AND status = $2
	`, loanID, StatusPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperr.Internal(err)
	}
	return f, nil
}

// Create inserts a pending fine through q. Callers owning the
// one-pending-per-loan invariant check PendingForLoan first, inside the
// same transaction.
func Create(ctx context.Context, q store.Querier, memberID uuid.UUID, loanID uuid.NullUUID, amount float64, reason string) (*Fine, error) {
	fine := &Fine{
		ID:          uuid.New(),
		MemberID:    memberID,
		LoanID:      loanID,
		Amount:      amount,
		Reason:      reason,
		Status:      StatusPending,
		CreatedDate: time.Now().UTC(),
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO fines (id, member_id, loan_id, amount, reason, status, created_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, fine.ID, fine.MemberID, fine.LoanID, fine.Amount, fine.Reason, fine.Status, fine.CreatedDate)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return fine, nil
}

// UpdatePendingAmount rewrites the amount and reason of an existing
// pending fine (used when a swept loan is finally returned).
func UpdatePendingAmount(ctx context.Context, q store.Querier, fineID uuid.UUID, amount float64, reason string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE fines SET amount = $1, reason = $2 WHERE id = $3 AND status = $4
	`, amount, reason, fineID, StatusPending)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}
