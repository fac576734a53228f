// internal/reservations/service.go
package reservations

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the reservation queue.
type Service interface {
	Reserve(ctx context.Context, req ReserveRequest) (*Reservation, error)
	// Cancel closes an active reservation. Only the owner, or staff, may
	// cancel.
	Cancel(ctx context.Context, reservationID, byMemberID uuid.UUID, staff bool) error
	// Fulfill hands the reserved copy over. Internal: the circulation
	// engine calls it when issuing to the queue head.
	Fulfill(ctx context.Context, reservationID uuid.UUID) error
	ListByBook(ctx context.Context, bookID uuid.UUID) ([]Reservation, error)
}
