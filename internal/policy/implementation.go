// internal/policy/implementation.go
package policy

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"librocirc/internal/apperr"
)

// service implements Service over the policy_settings table.
type service struct {
	db *sqlx.DB
}

// NewService creates a new policy settings service instance.
func NewService(db *sqlx.DB) Service {
	return &service{db: db}
}

// Raw returns the stored override for key, or the default when no
// override exists or the lookup fails.
func (s *service) Raw(ctx context.Context, key string) string {
	var value string
	err := s.db.GetContext(ctx, &value, `
		SELECT value FROM policy_settings WHERE key = $1
	`, key)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			log.Warn().Err(err).Str("key", key).Msg("settings lookup failed, using default")
		}
		return Default(key)
	}
	return value
}

func (s *service) Int(ctx context.Context, key string) int {
	return coerceInt(s.Raw(ctx, key), Default(key))
}

func (s *service) Float(ctx context.Context, key string) float64 {
	return coerceFloat(s.Raw(ctx, key), Default(key))
}

// Set persists an override for a known key.
func (s *service) Set(ctx context.Context, key, value string) error {
	if !Known(key) {
		return apperr.Validation("unknown_setting", "unknown setting key: "+key)
	}
	if numericKey(key) {
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return apperr.Validation("bad_value", "value for "+key+" must be numeric")
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO policy_settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, key, value)
	if err != nil {
		return apperr.Internal(err)
	}
	return nil
}

// List returns every known setting with its effective value.
func (s *service) List(ctx context.Context) ([]Setting, error) {
	type row struct {
		Key       string    `db:"key"`
		Value     string    `db:"value"`
		UpdatedAt time.Time `db:"updated_at"`
	}
	rows := []row{}
	err := s.db.SelectContext(ctx, &rows, `SELECT key, value, updated_at FROM policy_settings`)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	overrides := map[string]row{}
	for _, r := range rows {
		overrides[r.Key] = r
	}

	settings := make([]Setting, 0, len(defaults))
	for key := range defaults {
		s := Setting{Key: key, Value: Default(key), Default: Default(key)}
		if o, ok := overrides[key]; ok {
			s.Value = o.Value
			t := o.UpdatedAt
			s.UpdatedAt = &t
		}
		settings = append(settings, s)
	}
	sort.Slice(settings, func(i, j int) bool { return settings[i].Key < settings[j].Key })
	return settings, nil
}
