// internal/fines/service.go
package fines

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the fine ledger.
type Service interface {
	HasPendingFines(ctx context.Context, memberID uuid.UUID) (bool, error)
	CreateFine(ctx context.Context, memberID uuid.UUID, loanID uuid.NullUUID, amount float64, reason string) (*Fine, error)
	MarkPaid(ctx context.Context, fineID uuid.UUID) (*Fine, error)
	ListByMember(ctx context.Context, memberID uuid.UUID) ([]Fine, error)
}
