// internal/fines/domain.go
package fines

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusPending = "pending"
	StatusPaid    = "paid"
)

// Fine is a recorded charge against a member. LoanID is null for fines
// entered manually by staff (lost card, damage, ...). At most one pending
// fine may exist per loan.
type Fine struct {
	ID          uuid.UUID     `json:"id" db:"id"`
	MemberID    uuid.UUID     `json:"member_id" db:"member_id"`
	LoanID      uuid.NullUUID `json:"loan_id,omitempty" db:"loan_id"`
	Amount      float64       `json:"amount" db:"amount"`
	Reason      string        `json:"reason" db:"reason"`
	Status      string        `json:"status" db:"status"`
	CreatedDate time.Time     `json:"created_date" db:"created_date"`
	PaidDate    *time.Time    `json:"paid_date,omitempty" db:"paid_date"`
}
