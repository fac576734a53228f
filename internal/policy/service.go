// internal/policy/service.go
package policy

import "context"

// Service exposes the circulation policy knobs. Read paths never fail on
// bad stored values; they fall back to defaults.
type Service interface {
	Raw(ctx context.Context, key string) string
	Int(ctx context.Context, key string) int
	Float(ctx context.Context, key string) float64
	Set(ctx context.Context, key, value string) error
	List(ctx context.Context) ([]Setting, error)
}
