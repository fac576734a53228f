// internal/circulation/domain.go
package circulation

import (
	"time"

	"github.com/google/uuid"

	"librocirc/internal/apperr"
	"librocirc/internal/calendar"
)

const (
	// StatusIssued marks a loan currently out.
	StatusIssued = "issued"
	// StatusOverdue marks an issued loan flagged past due by the sweeper.
	// The copy is still out; the only terminal state is returned.
	StatusOverdue  = "overdue"
	StatusReturned = "returned"
)

// Loan is a single physical-copy circulation record from issue to return.
type Loan struct {
	ID           uuid.UUID  `json:"id" db:"id"`
	MemberID     uuid.UUID  `json:"member_id" db:"member_id"`
	BookID       uuid.UUID  `json:"book_id" db:"book_id"`
	IssueDate    time.Time  `json:"issue_date" db:"issue_date"`
	DueDate      time.Time  `json:"due_date" db:"due_date"`
	ReturnDate   *time.Time `json:"return_date,omitempty" db:"return_date"`
	Status       string     `json:"status" db:"status"`
	FineAmount   float64    `json:"fine_amount" db:"fine_amount"`
	RenewalCount int        `json:"renewal_count" db:"renewal_count"`
	MaxRenewals  int        `json:"max_renewals" db:"max_renewals"`
}

// Outstanding reports whether the copy is still out.
func (l *Loan) Outstanding() bool {
	return l.Status == StatusIssued || l.Status == StatusOverdue
}

// IssueRequest is the typed payload for issuing a loan.
type IssueRequest struct {
	MemberID uuid.UUID `json:"member_id"`
	BookID   uuid.UUID `json:"book_id"`
	// LoanPeriodDays overrides the configured loan period when positive.
	LoanPeriodDays int `json:"loan_period_days,omitempty"`
	// OverrideReservation lets staff issue past another member's
	// reservation; the queue is left untouched for the next copy.
	OverrideReservation bool `json:"override_reservation,omitempty"`
}

// ReturnRequest and RenewRequest are batch payloads; one bad id skips
// that id only.
type ReturnRequest struct {
	LoanIDs []uuid.UUID `json:"loan_ids"`
}

type RenewRequest struct {
	LoanIDs     []uuid.UUID `json:"loan_ids"`
	RenewalDays int         `json:"renewal_days,omitempty"`
}

// ReturnedLoan is one successful return.
type ReturnedLoan struct {
	LoanID     uuid.UUID `json:"loan_id"`
	FineAmount float64   `json:"fine_amount"`
}

// RenewedLoan is one successful renewal.
type RenewedLoan struct {
	LoanID     uuid.UUID `json:"loan_id"`
	NewDueDate time.Time `json:"new_due_date"`
}

// SkippedLoan reports why a batch item was not processed.
type SkippedLoan struct {
	LoanID uuid.UUID `json:"loan_id"`
	Reason string    `json:"reason"`
}

type ReturnResult struct {
	Returned []ReturnedLoan `json:"returned"`
	Skipped  []SkippedLoan  `json:"skipped"`
}

type RenewResult struct {
	Renewed []RenewedLoan `json:"renewed"`
	Skipped []SkippedLoan `json:"skipped"`
}

// LoanIssuedEvent is appended when a copy goes out.
type LoanIssuedEvent struct {
	LoanID                 uuid.UUID  `json:"loan_id"`
	MemberID               uuid.UUID  `json:"member_id"`
	BookID                 uuid.UUID  `json:"book_id"`
	DueDate                time.Time  `json:"due_date"`
	FulfilledReservationID *uuid.UUID `json:"fulfilled_reservation_id,omitempty"`
}

// LoanReturnedEvent is appended when a copy comes back.
type LoanReturnedEvent struct {
	LoanID     uuid.UUID `json:"loan_id"`
	BookID     uuid.UUID `json:"book_id"`
	FineAmount float64   `json:"fine_amount"`
	ReturnDate time.Time `json:"return_date"`
}

// LoanRenewedEvent is appended when a due date moves.
type LoanRenewedEvent struct {
	LoanID       uuid.UUID `json:"loan_id"`
	NewDueDate   time.Time `json:"new_due_date"`
	RenewalCount int       `json:"renewal_count"`
}

// daysOverdue counts whole calendar days past the due date; never
// negative.
func daysOverdue(dueDate, today time.Time) int {
	d := calendar.DaysBetween(dueDate, today)
	if d < 0 {
		return 0
	}
	return d
}

// fineFor prices an overdue return. Grace days are forgiven before the
// daily rate applies.
func fineFor(overdueDays, graceDays int, dailyRate float64) float64 {
	chargeable := overdueDays - graceDays
	if chargeable <= 0 {
		return 0
	}
	return float64(chargeable) * dailyRate
}

// renewEligibility applies the renewal checks in order; the first failure
// wins. Unlike issue, renewal is blocked when *any* active reservation
// exists for the book, not just one held by someone else: a queued
// reservation means the copy should come back, not roll over.
func renewEligibility(l *Loan, anyActiveReservation, hasPendingFines bool, today time.Time) error {
	if l.Status != StatusIssued {
		if l.Status == StatusReturned {
			return apperr.Rule("already_returned", "loan has already been returned")
		}
		return apperr.Rule("not_issued", "loan is not in an issued state")
	}
	if l.RenewalCount >= l.MaxRenewals {
		return apperr.Rule("renewal_limit", "maximum number of renewals reached")
	}
	if calendar.DateOnly(l.DueDate).Before(calendar.DateOnly(today)) {
		return apperr.Rule("overdue", "loan is past due and can no longer be renewed")
	}
	if anyActiveReservation {
		return apperr.Rule("reserved", "book has an active reservation")
	}
	if hasPendingFines {
		return apperr.Rule("outstanding_fines", "member has unpaid fines")
	}
	return nil
}
