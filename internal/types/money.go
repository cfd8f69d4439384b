// README: Common money value object used across modules.
package types

import (
	"fmt"
	"strings"
)

// Money is an amount in minor units (cents).
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency,omitempty"`
}

func (m Money) IsNegative() bool {
	return m.Amount < 0
}

// String renders 1250 USD as "12.50 USD" and -5 as "-0.05".
func (m Money) String() string {
	sign := ""
	if m.Amount < 0 {
		sign = "-"
	}
	v := abs(m.Amount)
	return strings.TrimSpace(fmt.Sprintf("%s%d.%02d %s", sign, v/100, v%100, m.Currency))
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
