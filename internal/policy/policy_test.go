// internal/policy/policy_test.go
package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultsCoverEveryKnob(t *testing.T) {
	keys := []string{
		KeyMaxBooksPerStudent, KeyMaxBooksPerStaff, KeyLoanPeriodDays,
		KeyDailyFineRate, KeyMaxRenewalCount, KeyRenewalPeriodDays,
		KeyOverdueGracePeriod, KeyReservationExpiryDays,
	}
	for _, k := range keys {
		assert.True(t, Known(k), k)
		assert.NotEmpty(t, Default(k), k)
	}
	assert.False(t, Known("somethingElse"))
	assert.Empty(t, Default("somethingElse"))
}

func TestCoercionFallsBackToDefault(t *testing.T) {
	assert.Equal(t, 5, coerceInt("5", "3"))
	assert.Equal(t, 3, coerceInt("five", "3"), "garbage override reads as default")
	assert.Equal(t, 3, coerceInt("", "3"))

	assert.Equal(t, 2.5, coerceFloat("2.5", "1.0"))
	assert.Equal(t, 1.0, coerceFloat("NaN-ish garbage", "1.0"))
}

func TestNumericKeyClassification(t *testing.T) {
	assert.True(t, numericKey(KeyDailyFineRate))
	assert.True(t, numericKey(KeyMaxBooksPerStudent))
	assert.False(t, numericKey("notAKey"))
}
