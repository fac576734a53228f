// internal/catalog/implementation.go
package catalog

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"librocirc/internal/apperr"
	"librocirc/internal/store"
)

// service implements the Service interface.
type service struct {
	db *sqlx.DB
}

// NewService creates a new catalog service instance.
func NewService(db *sqlx.DB) Service {
	return &service{db: db}
}

// AddBook creates a new title with all copies available.
func (s *service) AddBook(ctx context.Context, isbn, title, author string, copies int) (*Book, error) {
	if title == "" {
		return nil, apperr.Validation("missing_title", "title is required")
	}
	if copies < 1 {
		return nil, apperr.Validation("bad_copies", "number of copies must be at least 1")
	}
	now := time.Now().UTC()
	book := &Book{
		ID:              uuid.New(),
		ISBN:            isbn,
		Title:           title,
		Author:          author,
		NumberOfCopies:  copies,
		AvailableCopies: copies,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO books (id, isbn, title, author, number_of_copies, available_copies, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, book.ID, book.ISBN, book.Title, book.Author, book.NumberOfCopies, book.AvailableCopies, book.CreatedAt, book.UpdatedAt)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return book, nil
}

// GetBook retrieves a book by its ID.
func (s *service) GetBook(ctx context.Context, id uuid.UUID) (*Book, error) {
	return Get(ctx, s.db, id)
}

// ListBooks returns the catalog ordered by title.
func (s *service) ListBooks(ctx context.Context) ([]Book, error) {
	books := []Book{}
	err := s.db.SelectContext(ctx, &books, `
		SELECT id, isbn, title, author, number_of_copies, available_copies, created_at, updated_at
		FROM books ORDER BY title
	`)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return books, nil
}

// RemoveBook deletes a title that has no circulation history.
func (s *service) RemoveBook(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM books
		WHERE id = $1
		AND NOT EXISTS (SELECT 1 FROM loans WHERE book_id = $1)
		AND NOT EXISTS (SELECT 1 FROM reservations WHERE book_id = $1)
	`, id)
	if err != nil {
		return apperr.Internal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		if _, err := Get(ctx, s.db, id); err != nil {
			return err
		}
		return apperr.Conflict("has_history", "book has loans or reservations")
	}
	return nil
}

// Get loads a book through q, which may be an open transaction.
func Get(ctx context.Context, q store.Querier, id uuid.UUID) (*Book, error) {
	book := &Book{}
	err := q.GetContext(ctx, book, `
		SELECT id, isbn, title, author, number_of_copies, available_copies, created_at, updated_at
		FROM books WHERE id = $1
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("book", id)
		}
		return nil, apperr.Internal(err)
	}
	return book, nil
}

// GetForUpdate locks the book row for the remainder of the transaction.
// Every multi-entity circulation mutation takes this lock first, which is
// what serializes queue renumbering and copy-count updates per book.
func GetForUpdate(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*Book, error) {
	book := &Book{}
	err := tx.GetContext(ctx, book, `
		SELECT id, isbn, title, author, number_of_copies, available_copies, created_at, updated_at
		FROM books WHERE id = $1
		FOR UPDATE
	`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("book", id)
		}
		return nil, apperr.Internal(err)
	}
	return book, nil
}

// AdjustAvailable moves available_copies by delta inside the caller's
// transaction. The schema CHECK rejects moves past either bound.
func AdjustAvailable(ctx context.Context, tx *sqlx.Tx, id uuid.UUID, delta int) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE books
		SET available_copies = available_copies + $1, updated_at = NOW()
		WHERE id = $2
	`, delta, id)
	if err != nil {
		return apperr.Internal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.NotFound("book", id)
	}
	return nil
}
