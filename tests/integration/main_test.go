// tests/integration/main_test.go
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librocirc/internal/calendar"
	"librocirc/internal/catalog"
	"librocirc/internal/circulation"
	"librocirc/internal/eventlog"
	"librocirc/internal/fines"
	"librocirc/internal/members"
	"librocirc/internal/overdue"
	"librocirc/internal/policy"
	"librocirc/internal/reservations"
	"librocirc/internal/store/storetest"
)

type testServer struct {
	db  *sqlx.DB
	srv *httptest.Server
}

// newTestServer wires the full API the same way main does and serves it
// in-process.
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db := storetest.Setup(t)

	events := eventlog.NewLog()
	settings := policy.NewService(db)
	cal := calendar.NewService(db)

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Route("/api/v1", func(r chi.Router) {
		members.NewHandler(members.NewService(db)).Routes(r)
		catalog.NewHandler(catalog.NewService(db)).Routes(r)
		calendar.NewHandler(cal).Routes(r)
		policy.NewHandler(settings).Routes(r)
		fines.NewHandler(fines.NewService(db)).Routes(r)
		reservations.NewHandler(reservations.NewService(db, events, settings)).Routes(r)
		circulation.NewHandler(circulation.NewService(db, settings, cal, events)).Routes(r)
		overdue.NewHandler(overdue.NewSweeper(db, settings, events)).Routes(r)
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{db: db, srv: srv}
}

func (ts *testServer) post(t *testing.T, path string, payload any, out any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(ts.srv.URL+path, "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func (ts *testServer) get(t *testing.T, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.srv.URL + path)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestLoanFlow(t *testing.T) {
	ts := newTestServer(t)

	var member members.Member
	resp := ts.post(t, "/api/v1/members/register", map[string]string{
		"email": "reader@example.com", "name": "Test Reader", "password": "SecurePass123!",
	}, &member)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var book catalog.Book
	resp = ts.post(t, "/api/v1/books", map[string]any{
		"isbn": "9780141439518", "title": "Pride and Prejudice", "author": "Jane Austen", "copies": 5,
	}, &book)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var loan circulation.Loan
	resp = ts.post(t, "/api/v1/loans", map[string]string{
		"member_id": member.ID.String(), "book_id": book.ID.String(),
	}, &loan)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, circulation.StatusIssued, loan.Status)

	var updated catalog.Book
	resp = ts.get(t, fmt.Sprintf("/api/v1/books/%s", book.ID), &updated)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 4, updated.AvailableCopies)

	var returned circulation.ReturnResult
	resp = ts.post(t, "/api/v1/loans/return", map[string]any{
		"loan_ids": []string{loan.ID.String()},
	}, &returned)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, returned.Returned, 1)
	assert.Zero(t, returned.Returned[0].FineAmount)

	resp = ts.get(t, fmt.Sprintf("/api/v1/books/%s", book.ID), &updated)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 5, updated.AvailableCopies)
}

func TestReservationBlocksRivalIssue(t *testing.T) {
	ts := newTestServer(t)

	var holder, rival members.Member
	resp := ts.post(t, "/api/v1/members/register", map[string]string{
		"email": "holder@example.com", "name": "Queue Holder", "password": "SecurePass123!",
	}, &holder)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = ts.post(t, "/api/v1/members/register", map[string]string{
		"email": "rival@example.com", "name": "Queue Rival", "password": "SecurePass123!",
	}, &rival)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var book catalog.Book
	resp = ts.post(t, "/api/v1/books", map[string]any{
		"isbn": "9780743273565", "title": "The Great Gatsby", "author": "F. Scott Fitzgerald", "copies": 1,
	}, &book)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var res reservations.Reservation
	resp = ts.post(t, "/api/v1/reservations", map[string]string{
		"member_id": holder.ID.String(), "book_id": book.ID.String(),
	}, &res)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 1, res.QueuePosition)

	var errBody struct {
		Error   string         `json:"error"`
		Code    string         `json:"code"`
		Details map[string]any `json:"details"`
	}
	resp = ts.post(t, "/api/v1/loans", map[string]string{
		"member_id": rival.ID.String(), "book_id": book.ID.String(),
	}, &errBody)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "conflict", errBody.Error)
	assert.Equal(t, "reserved_by_other", errBody.Code)
	assert.Equal(t, holder.ID.String(), errBody.Details["held_by"])

	var loan circulation.Loan
	resp = ts.post(t, "/api/v1/loans", map[string]string{
		"member_id": holder.ID.String(), "book_id": book.ID.String(),
	}, &loan)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestConcurrentIssuePreventsDoubleBooking(t *testing.T) {
	ts := newTestServer(t)

	var book catalog.Book
	resp := ts.post(t, "/api/v1/books", map[string]any{
		"isbn": "9780451524935", "title": "1984", "author": "George Orwell", "copies": 1,
	}, &book)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Registration is rate limited, so seed the contenders directly.
	memberIDs := make([]uuid.UUID, 10)
	for i := range memberIDs {
		memberIDs[i] = uuid.New()
		_, err := ts.db.Exec(`
			INSERT INTO members (id, email, name, role, status, valid_until)
			VALUES ($1, $2, $3, 'student', 'active', NOW() + INTERVAL '1 year')
		`, memberIDs[i], fmt.Sprintf("member%d@test.com", i), fmt.Sprintf("Member %d", i))
		require.NoError(t, err)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	successCount := 0
	for _, memberID := range memberIDs {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			body, _ := json.Marshal(map[string]string{"member_id": id.String(), "book_id": book.ID.String()})
			resp, err := http.Post(ts.srv.URL+"/api/v1/loans", "application/json", bytes.NewReader(body))
			if err != nil {
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusCreated {
				mu.Lock()
				successCount++
				mu.Unlock()
			}
		}(memberID)
	}
	wg.Wait()

	assert.Equal(t, 1, successCount, "only one concurrent issue should succeed")

	var updated catalog.Book
	resp = ts.get(t, fmt.Sprintf("/api/v1/books/%s", book.ID), &updated)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 0, updated.AvailableCopies)
}

func TestOverdueSweepEndToEnd(t *testing.T) {
	ts := newTestServer(t)

	var member members.Member
	resp := ts.post(t, "/api/v1/members/register", map[string]string{
		"email": "late@example.com", "name": "Late Reader", "password": "SecurePass123!",
	}, &member)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var book catalog.Book
	resp = ts.post(t, "/api/v1/books", map[string]any{
		"isbn": "9780060850524", "title": "Brave New World", "author": "Aldous Huxley", "copies": 1,
	}, &book)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var loan circulation.Loan
	resp = ts.post(t, "/api/v1/loans", map[string]string{
		"member_id": member.ID.String(), "book_id": book.ID.String(),
	}, &loan)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	_, err := ts.db.Exec(`UPDATE loans SET due_date = NOW() - INTERVAL '4 days' WHERE id = $1`, loan.ID)
	require.NoError(t, err)

	var report overdue.Report
	resp = ts.post(t, "/api/v1/sweep", map[string]any{}, &report)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, report.LoansFlagged)
	assert.Equal(t, 1, report.FinesCreated)

	// The open fine now blocks further borrowing.
	var errBody struct {
		Code string `json:"code"`
	}
	resp = ts.post(t, "/api/v1/loans", map[string]string{
		"member_id": member.ID.String(), "book_id": book.ID.String(),
	}, &errBody)
	require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "outstanding_fines", errBody.Code)
}
