// internal/reservations/implementation_test.go
package reservations

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librocirc/internal/apperr"
	"librocirc/internal/eventlog"
	"librocirc/internal/policy"
	"librocirc/internal/store/storetest"
)

func setup(t *testing.T) (*sqlx.DB, Service) {
	t.Helper()
	db := storetest.Setup(t)
	return db, NewService(db, eventlog.NewLog(), policy.NewService(db))
}

func seedMember(t *testing.T, db *sqlx.DB) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.Exec(`
		INSERT INTO members (id, email, name, role, status, valid_until)
		VALUES ($1, $2, 'Queue Member', 'student', 'active', NOW() + INTERVAL '1 year')
	`, id, fmt.Sprintf("%s@test.local", id))
	require.NoError(t, err)
	return id
}

func seedBook(t *testing.T, db *sqlx.DB, available int) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.Exec(`
		INSERT INTO books (id, isbn, title, author, number_of_copies, available_copies)
		VALUES ($1, '978-0-0000', 'Queued Title', 'Author', 3, $2)
	`, id, available)
	require.NoError(t, err)
	return id
}

func activePositions(t *testing.T, svc Service, bookID uuid.UUID) map[uuid.UUID]int {
	t.Helper()
	queue, err := svc.ListByBook(context.Background(), bookID)
	require.NoError(t, err)
	positions := map[uuid.UUID]int{}
	for _, r := range queue {
		if r.Status == StatusActive {
			positions[r.ID] = r.QueuePosition
		}
	}
	return positions
}

func TestReserveAssignsSequentialPositions(t *testing.T) {
	db, svc := setup(t)
	ctx := context.Background()
	bookID := seedBook(t, db, 0)

	for want := 1; want <= 3; want++ {
		res, err := svc.Reserve(ctx, ReserveRequest{MemberID: seedMember(t, db), BookID: bookID})
		require.NoError(t, err)
		assert.Equal(t, want, res.QueuePosition)
		assert.Equal(t, StatusActive, res.Status)
	}
}

func TestReserveRejectsDuplicateAndCurrentBorrower(t *testing.T) {
	db, svc := setup(t)
	ctx := context.Background()
	bookID := seedBook(t, db, 0)
	memberID := seedMember(t, db)

	_, err := svc.Reserve(ctx, ReserveRequest{MemberID: memberID, BookID: bookID})
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, ReserveRequest{MemberID: memberID, BookID: bookID})
	assert.Equal(t, "already_reserved", apperr.CodeOf(err))

	borrower := seedMember(t, db)
	_, err = db.Exec(`
		INSERT INTO loans (id, member_id, book_id, issue_date, due_date, status, fine_amount, renewal_count, max_renewals)
		VALUES ($1, $2, $3, NOW(), NOW() + INTERVAL '14 days', 'issued', 0, 0, 2)
	`, uuid.New(), borrower, bookID)
	require.NoError(t, err)
	_, err = svc.Reserve(ctx, ReserveRequest{MemberID: borrower, BookID: bookID})
	assert.Equal(t, "already_borrowed", apperr.CodeOf(err))
}

func TestCancelRenumbersTheQueue(t *testing.T) {
	db, svc := setup(t)
	ctx := context.Background()
	bookID := seedBook(t, db, 0)

	var reserved []*Reservation
	owners := make([]uuid.UUID, 3)
	for i := range owners {
		owners[i] = seedMember(t, db)
		res, err := svc.Reserve(ctx, ReserveRequest{MemberID: owners[i], BookID: bookID})
		require.NoError(t, err)
		reserved = append(reserved, res)
	}

	// Cancelling the middle entry shifts only the tail down.
	require.NoError(t, svc.Cancel(ctx, reserved[1].ID, owners[1], false))

	positions := activePositions(t, svc, bookID)
	require.Len(t, positions, 2)
	assert.Equal(t, 1, positions[reserved[0].ID])
	assert.Equal(t, 2, positions[reserved[2].ID])

	// Cancelling the head promotes the last survivor.
	require.NoError(t, svc.Cancel(ctx, reserved[0].ID, owners[0], false))
	positions = activePositions(t, svc, bookID)
	require.Len(t, positions, 1)
	assert.Equal(t, 1, positions[reserved[2].ID])
}

func TestCancelPermissions(t *testing.T) {
	db, svc := setup(t)
	ctx := context.Background()
	bookID := seedBook(t, db, 0)
	owner := seedMember(t, db)
	stranger := seedMember(t, db)

	res, err := svc.Reserve(ctx, ReserveRequest{MemberID: owner, BookID: bookID})
	require.NoError(t, err)

	err = svc.Cancel(ctx, res.ID, stranger, false)
	assert.Equal(t, apperr.KindForbidden, apperr.KindOf(err))

	// Staff may cancel on anyone's behalf.
	require.NoError(t, svc.Cancel(ctx, res.ID, stranger, true))

	// Cancelling twice is a conflict, not a silent success.
	err = svc.Cancel(ctx, res.ID, owner, false)
	assert.Equal(t, "not_active", apperr.CodeOf(err))
}

func TestReservePickupDateAgainstEstimate(t *testing.T) {
	db, svc := setup(t)
	ctx := context.Background()
	now := time.Now().UTC()

	bookID := seedBook(t, db, 0)
	_, err := db.Exec(`
		INSERT INTO loans (id, member_id, book_id, issue_date, due_date, status, fine_amount, renewal_count, max_renewals)
		VALUES ($1, $2, $3, NOW(), $4, 'issued', 0, 0, 2)
	`, uuid.New(), seedMember(t, db), bookID, now.AddDate(0, 0, 10))
	require.NoError(t, err)

	tooSoon := now.AddDate(0, 0, 5)
	_, err = svc.Reserve(ctx, ReserveRequest{MemberID: seedMember(t, db), BookID: bookID, PickupDate: &tooSoon})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	var ae *apperr.Error
	require.ErrorAs(t, err, &ae)
	assert.NotEmpty(t, ae.Details["estimated_available"])

	afterDue := now.AddDate(0, 0, 12)
	res, err := svc.Reserve(ctx, ReserveRequest{MemberID: seedMember(t, db), BookID: bookID, PickupDate: &afterDue})
	require.NoError(t, err)
	require.NotNil(t, res.PickupDeadline)
}

func TestFulfillClosesHeadReservation(t *testing.T) {
	db, svc := setup(t)
	ctx := context.Background()
	bookID := seedBook(t, db, 1)

	res, err := svc.Reserve(ctx, ReserveRequest{MemberID: seedMember(t, db), BookID: bookID})
	require.NoError(t, err)

	require.NoError(t, svc.Fulfill(ctx, res.ID))

	queue, err := svc.ListByBook(ctx, bookID)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, StatusFulfilled, queue[0].Status)

	err = svc.Fulfill(ctx, res.ID)
	assert.Equal(t, "not_active", apperr.CodeOf(err))
}
