// internal/members/domain.go
package members

import (
	"time"

	"github.com/google/uuid"
)

// Roles determine the borrowing limit the engine applies.
const (
	RoleStudent = "student"
	RoleStaff   = "staff"
)

const (
	StatusActive   = "active"
	StatusInactive = "inactive"
)

// Member is a library account. ValidUntil is the membership expiry; an
// expired member keeps their data but cannot borrow.
type Member struct {
	ID         uuid.UUID `json:"id" db:"id"`
	Email      string    `json:"email" db:"email"`
	Name       string    `json:"name" db:"name"`
	Role       string    `json:"role" db:"role"`
	Status     string    `json:"status" db:"status"`
	ValidUntil time.Time `json:"valid_until" db:"valid_until"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// Active reports whether the account may circulate books.
func (m *Member) Active() bool { return m.Status == StatusActive }

// Expired reports whether the membership has lapsed as of now.
func (m *Member) Expired(now time.Time) bool { return m.ValidUntil.Before(now) }

// Credential holds a member's login secret.
type Credential struct {
	MemberID     uuid.UUID `db:"member_id"`
	PasswordHash string    `db:"password_hash"`
	Salt         string    `db:"salt"`
}
