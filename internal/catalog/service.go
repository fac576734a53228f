// internal/catalog/service.go
package catalog

import (
	"context"

	"github.com/google/uuid"
)

// Service defines the interface for the book catalog.
type Service interface {
	AddBook(ctx context.Context, isbn, title, author string, copies int) (*Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (*Book, error)
	ListBooks(ctx context.Context) ([]Book, error)
	RemoveBook(ctx context.Context, id uuid.UUID) error
}
