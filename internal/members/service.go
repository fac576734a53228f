// internal/members/service.go
package members

import (
	"context"

	"github.com/google/uuid"
)

// Directory is the narrow view the circulation engine consumes: identity,
// role, active flag and membership expiry.
type Directory interface {
	GetMember(ctx context.Context, id uuid.UUID) (*Member, error)
}

// Service defines the interface for the member directory.
type Service interface {
	Directory
	Register(ctx context.Context, email, name, role, password string) (*Member, error)
	Authenticate(ctx context.Context, email, password string) (*Member, error)
	Deactivate(ctx context.Context, id uuid.UUID) error
}
