// internal/members/implementation.go
package members

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"golang.org/x/time/rate"

	"librocirc/internal/apperr"
	"librocirc/internal/store"
)

// service implements the Service interface.
type service struct {
	db          *sqlx.DB
	rateLimiter *rate.Limiter
}

// NewService creates a new member directory service instance.
func NewService(db *sqlx.DB) Service {
	return &service{
		db:          db,
		rateLimiter: rate.NewLimiter(rate.Every(time.Minute), 5),
	}
}

// Register creates a new member with a one-year membership.
func (s *service) Register(ctx context.Context, email, name, role, password string) (*Member, error) {
	if !s.rateLimiter.Allow() {
		return nil, apperr.Conflict("rate_limited", "too many registration attempts")
	}
	if email == "" || name == "" {
		return nil, apperr.Validation("missing_fields", "email and name are required")
	}
	if role == "" {
		role = RoleStudent
	}
	if role != RoleStudent && role != RoleStaff {
		return nil, apperr.Validation("bad_role", "role must be student or staff")
	}
	if len(password) < 8 {
		return nil, apperr.Validation("weak_password", "password must be at least 8 characters")
	}

	passwordHash, salt, err := hashPassword(password)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	now := time.Now().UTC()
	member := &Member{
		ID:         uuid.New(),
		Email:      email,
		Name:       name,
		Role:       role,
		Status:     StatusActive,
		ValidUntil: now.AddDate(1, 0, 0),
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	err = store.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO members (id, email, name, role, status, valid_until, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, member.ID, member.Email, member.Name, member.Role, member.Status, member.ValidUntil, member.CreatedAt, member.UpdatedAt)
		if err != nil {
			return apperr.Internal(err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO credentials (member_id, password_hash, salt)
			VALUES ($1, $2, $3)
		`, member.ID, passwordHash, salt)
		if err != nil {
			return apperr.Internal(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return member, nil
}

// Authenticate verifies a member's credentials.
func (s *service) Authenticate(ctx context.Context, email, password string) (*Member, error) {
	if !s.rateLimiter.Allow() {
		return nil, apperr.Conflict("rate_limited", "too many authentication attempts")
	}

	member := &Member{}
	err := s.db.GetContext(ctx, member, `
		SELECT id, email, name, role, status, valid_until, created_at, updated_at
		FROM members WHERE email = $1
	`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.Forbidden("bad_credentials", "invalid credentials")
		}
		return nil, apperr.Internal(err)
	}

	cred := &Credential{}
	if err := s.db.GetContext(ctx, cred, `
		SELECT member_id, password_hash, salt FROM credentials WHERE member_id = $1
	`, member.ID); err != nil {
		return nil, apperr.Internal(err)
	}

	ok, err := verifyPassword(password, cred.Salt, cred.PasswordHash)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	if !ok {
		return nil, apperr.Forbidden("bad_credentials", "invalid credentials")
	}
	return member, nil
}

// GetMember retrieves a member by their ID.
func (s *service) GetMember(ctx context.Context, id uuid.UUID) (*Member, error) {
	return Get(ctx, s.db, id)
}

// Deactivate blocks the account from further circulation.
func (s *service) Deactivate(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE members SET status = $1, updated_at = NOW() WHERE id = $2
	`, StatusInactive, id)
	if err != nil {
		return apperr.Internal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("member", id)
	}
	return nil
}

// Get loads a member through q, which may be an open transaction.
func Get(ctx context.Context, q store.Querier, id uuid.UUID) (*Member, error) {
	member := &Member{}
	err := q.GetContext(ctx, member, `
		SELECT id, email, name, role, status, valid_until, created_at, updated_at
		FROM members WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("member", id)
		}
		return nil, apperr.Internal(err)
	}
	return member, nil
}
