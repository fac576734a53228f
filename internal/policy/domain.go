// internal/policy/domain.go
package policy

import (
	"strconv"
	"time"
)

// Setting keys. Values are stored as text and coerced on read; anything
// unparseable falls back to the default so a bad override can never take
// circulation down.
const (
	KeyMaxBooksPerStudent    = "maxBooksPerStudent"
	KeyMaxBooksPerStaff      = "maxBooksPerStaff"
	KeyLoanPeriodDays        = "loanPeriodDays"
	KeyDailyFineRate         = "dailyFineRate"
	KeyMaxRenewalCount       = "maxRenewalCount"
	KeyRenewalPeriodDays     = "renewalPeriodDays"
	KeyOverdueGracePeriod    = "overdueGracePeriod"
	KeyReservationExpiryDays = "reservationExpiryDays"
)

var defaults = map[string]string{
	KeyMaxBooksPerStudent:    "3",
	KeyMaxBooksPerStaff:      "5",
	KeyLoanPeriodDays:        "14",
	KeyDailyFineRate:         "1.0",
	KeyMaxRenewalCount:       "2",
	KeyRenewalPeriodDays:     "7",
	KeyOverdueGracePeriod:    "0",
	KeyReservationExpiryDays: "30",
}

// Setting is one knob with its effective value.
type Setting struct {
	Key       string     `json:"key"`
	Value     string     `json:"value"`
	Default   string     `json:"default"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// Known reports whether key is a recognized setting.
func Known(key string) bool {
	_, ok := defaults[key]
	return ok
}

// Default returns the built-in default for key ("" for unknown keys).
func Default(key string) string {
	return defaults[key]
}

func coerceInt(raw, def string) int {
	if v, err := strconv.Atoi(raw); err == nil {
		return v
	}
	v, _ := strconv.Atoi(def)
	return v
}

func coerceFloat(raw, def string) float64 {
	if v, err := strconv.ParseFloat(raw, 64); err == nil {
		return v
	}
	v, _ := strconv.ParseFloat(def, 64)
	return v
}

func numericKey(key string) bool {
	switch key {
	case KeyDailyFineRate:
		return true
	case KeyMaxBooksPerStudent, KeyMaxBooksPerStaff, KeyLoanPeriodDays,
		KeyMaxRenewalCount, KeyRenewalPeriodDays, KeyOverdueGracePeriod,
		KeyReservationExpiryDays:
		return true
	}
	return false
}
