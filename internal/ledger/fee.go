package ledger

import "math"

// DefaultFeeRate is the platform's cut of a real-money settlement.
const DefaultFeeRate = 0.03

// MaxPaymentCents is the largest accepted payment. It is derived from the
// card processor's charge maximum of $999,999.99 less its worst-case fee of
// 3.9% + 30 cents: (99999999 - 30) / 1.039.
const MaxPaymentCents = 96246360

// Fee returns the platform fee for a payment of the given amount:
// floor(amount * rate), at least 1 cent, and never more than the amount.
func Fee(amountCents int64, rate float64) int64 {
	fee := int64(math.Floor(float64(amountCents) * rate))
	if fee < 1 {
		fee = 1
	}
	if fee > amountCents {
		fee = amountCents
	}
	return fee
}
