// internal/reservations/domain.go
package reservations

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusActive    = "active"
	StatusFulfilled = "fulfilled"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"
)

// Reservation is one member's place in a book's FIFO queue. Active
// reservations for a book always hold queue positions 1..N with no gaps;
// every transition away from active renumbers the rest in the same
// transaction.
type Reservation struct {
	ID              uuid.UUID  `json:"id" db:"id"`
	MemberID        uuid.UUID  `json:"member_id" db:"member_id"`
	BookID          uuid.UUID  `json:"book_id" db:"book_id"`
	ReservationDate time.Time  `json:"reservation_date" db:"reservation_date"`
	ExpiryDate      time.Time  `json:"expiry_date" db:"expiry_date"`
	PickupDeadline  *time.Time `json:"pickup_deadline,omitempty" db:"pickup_deadline"`
	Status          string     `json:"status" db:"status"`
	QueuePosition   int        `json:"queue_position" db:"queue_position"`
}

// ReserveRequest is the typed payload for placing a reservation.
type ReserveRequest struct {
	MemberID   uuid.UUID  `json:"member_id"`
	BookID     uuid.UUID  `json:"book_id"`
	PickupDate *time.Time `json:"pickup_date,omitempty"`
}

// ReservationPlacedEvent is appended when a member joins a queue.
type ReservationPlacedEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	MemberID      uuid.UUID `json:"member_id"`
	BookID        uuid.UUID `json:"book_id"`
	QueuePosition int       `json:"queue_position"`
}

// ReservationClosedEvent is appended when a reservation leaves the queue
// (fulfilled, cancelled or expired).
type ReservationClosedEvent struct {
	ReservationID uuid.UUID `json:"reservation_id"`
	BookID        uuid.UUID `json:"book_id"`
	Status        string    `json:"status"`
}
