// internal/circulation/service.go
package circulation

import (
	"context"

	"github.com/google/uuid"

	"librocirc/internal/eventlog"
)

// Service defines the interface for the circulation engine.
type Service interface {
	Issue(ctx context.Context, req IssueRequest) (*Loan, error)
	Return(ctx context.Context, req ReturnRequest) (*ReturnResult, error)
	Renew(ctx context.Context, req RenewRequest) (*RenewResult, error)
	GetLoan(ctx context.Context, id uuid.UUID) (*Loan, error)
	ListByMember(ctx context.Context, memberID uuid.UUID) ([]Loan, error)
	LoanEvents(ctx context.Context, loanID uuid.UUID) ([]eventlog.Event, error)
}
