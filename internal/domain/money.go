package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// platformScale is the number of decimal places carried by platform-currency
// amounts. Settlement-currency amounts use the same scale on the wire.
const platformScale = 2

// Rates holds the fixed fiat conversion rates between the settlement
// currency and the platform currency. The spread between the two is a
// deliberate margin: deposits convert at a higher rate than withdrawals.
type Rates struct {
	Deposit    decimal.Decimal // settlement units per platform unit when crediting
	Withdrawal decimal.Decimal // settlement units per platform unit when debiting
}

// ToPlatform converts a settlement-currency amount into platform currency
// using the deposit rate.
func (r Rates) ToPlatform(settlement decimal.Decimal) decimal.Decimal {
	if r.Deposit.IsZero() {
		return decimal.Zero
	}
	return settlement.DivRound(r.Deposit, platformScale)
}

// ToSettlement converts a platform-currency amount into settlement currency
// using the withdrawal rate.
func (r Rates) ToSettlement(platform decimal.Decimal) decimal.Decimal {
	return platform.Mul(r.Withdrawal).Round(platformScale)
}

// FormatAmount renders an amount with the platform scale for responses and
// journal metadata.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(platformScale)
}

// Money pairs an amount with its currency for logging and notifications.
type Money struct {
	Amount   decimal.Decimal
	Currency string
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", FormatAmount(m.Amount), m.Currency)
}
