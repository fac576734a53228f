// internal/circulation/domain_test.go
package circulation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"librocirc/internal/apperr"
)

func date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestDaysOverdue(t *testing.T) {
	due := date("2026-04-10")

	assert.Equal(t, 0, daysOverdue(due, date("2026-04-10")), "due today is not overdue")
	assert.Equal(t, 0, daysOverdue(due, date("2026-04-01")), "future due date clamps to zero")
	assert.Equal(t, 5, daysOverdue(due, date("2026-04-15")))
}

func TestFineFor(t *testing.T) {
	assert.Equal(t, 5.0, fineFor(5, 0, 1.0))
	assert.Equal(t, 7.5, fineFor(3, 0, 2.5))
	assert.Equal(t, 0.0, fineFor(0, 0, 1.0))
	assert.Equal(t, 3.0, fineFor(5, 2, 1.5), "grace days are forgiven")
	assert.Equal(t, 0.0, fineFor(2, 5, 1.0), "grace larger than overdue charges nothing")
}

func eligibleLoan() *Loan {
	return &Loan{
		Status:       StatusIssued,
		DueDate:      date("2026-04-20"),
		RenewalCount: 0,
		MaxRenewals:  2,
	}
}

func TestRenewEligibilityOrder(t *testing.T) {
	today := date("2026-04-10")

	t.Run("eligible", func(t *testing.T) {
		assert.NoError(t, renewEligibility(eligibleLoan(), false, false, today))
	})

	t.Run("returned loan always rejected", func(t *testing.T) {
		l := eligibleLoan()
		l.Status = StatusReturned
		err := renewEligibility(l, false, false, today)
		require.Error(t, err)
		assert.Equal(t, apperr.KindBusinessRule, apperr.KindOf(err))
		assert.Equal(t, "already_returned", apperr.CodeOf(err))
	})

	t.Run("overdue status rejected before other checks", func(t *testing.T) {
		l := eligibleLoan()
		l.Status = StatusOverdue
		assert.Equal(t, "not_issued", apperr.CodeOf(renewEligibility(l, true, true, today)))
	})

	t.Run("renewal limit", func(t *testing.T) {
		l := eligibleLoan()
		l.RenewalCount = 2
		assert.Equal(t, "renewal_limit", apperr.CodeOf(renewEligibility(l, false, false, today)))
	})

	t.Run("past due but not yet swept", func(t *testing.T) {
		l := eligibleLoan()
		l.DueDate = date("2026-04-09")
		assert.Equal(t, "overdue", apperr.CodeOf(renewEligibility(l, false, false, today)))
	})

	t.Run("due today still renewable", func(t *testing.T) {
		l := eligibleLoan()
		l.DueDate = date("2026-04-10")
		assert.NoError(t, renewEligibility(l, false, false, today))
	})

	t.Run("any reservation blocks renewal", func(t *testing.T) {
		// Issue lets the queue head borrow; renewal is stricter and
		// blocks on any active reservation at all. Intentional
		// asymmetry.
		assert.Equal(t, "reserved", apperr.CodeOf(renewEligibility(eligibleLoan(), true, false, today)))
	})

	t.Run("pending fines checked last", func(t *testing.T) {
		assert.Equal(t, "outstanding_fines", apperr.CodeOf(renewEligibility(eligibleLoan(), false, true, today)))
	})
}

func TestOutstanding(t *testing.T) {
	assert.True(t, (&Loan{Status: StatusIssued}).Outstanding())
	assert.True(t, (&Loan{Status: StatusOverdue}).Outstanding())
	assert.False(t, (&Loan{Status: StatusReturned}).Outstanding())
}
