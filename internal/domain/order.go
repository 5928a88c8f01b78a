package domain

import "time"

// PaymentStatus tracks the downstream payment lifecycle of an order. The
// auction engine only ever creates orders in the pending state; payment
// capture is owned by the payment collaborator.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// platformFeeBps is the platform's cut of the final price, in basis points.
const platformFeeBps = 700

// Order is the payable artifact produced by settlement, exactly one per
// auction that ends with a winner.
type Order struct {
	ID                string
	AuctionID         string
	BuyerID           string
	SellerID          string
	ProductID         string
	FinalPriceCents   int64
	PlatformFeeCents  int64
	SellerPayoutCents int64
	PaymentStatus     PaymentStatus
	PaymentDeadline   time.Time
	PaidAt            *time.Time
	ShippedAt         *time.Time
	CreatedAt         time.Time
}

// FeeSplit computes the platform fee (7%) and seller payout (93%) for a final
// price in cents. Both sides are rounded independently to the cent using
// half-to-even, which keeps fee+payout equal to the final price even when a
// half-cent tie occurs on both sides.
func FeeSplit(finalCents int64) (feeCents, payoutCents int64) {
	feeCents = divRoundEven(finalCents*int64(platformFeeBps), 10_000)
	payoutCents = divRoundEven(finalCents*int64(10_000-platformFeeBps), 10_000)
	return feeCents, payoutCents
}

// divRoundEven divides num by den rounding to the nearest integer, ties to
// even. num must be non-negative, den positive.
func divRoundEven(num, den int64) int64 {
	q := num / den
	rem := num % den
	switch twice := rem * 2; {
	case twice > den:
		return q + 1
	case twice < den:
		return q
	default: // exact half
		if q%2 == 0 {
			return q
		}
		return q + 1
	}
}
