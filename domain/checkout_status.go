package domain

type CheckoutStatus string

const (
	CheckoutStatusInitiated        CheckoutStatus = "INITIATED"
	CheckoutStatusPaymentPending   CheckoutStatus = "PAYMENT_PENDING"
	CheckoutStatusPaymentCompleted CheckoutStatus = "PAYMENT_COMPLETED"
	CheckoutStatusCompleted        CheckoutStatus = "COMPLETED"
	CheckoutStatusFailed           CheckoutStatus = "FAILED"
	CheckoutStatusCancelled        CheckoutStatus = "CANCELLED"
)

func (s CheckoutStatus) IsTerminal() bool {
	return s == CheckoutStatusCompleted || s == CheckoutStatusFailed || s == CheckoutStatusCancelled
}

// String representation (for logging)
func (s CheckoutStatus) String() string {
	return string(s)
}

var allowedTransitions = map[CheckoutStatus][]CheckoutStatus{
	CheckoutStatusInitiated:        {CheckoutStatusPaymentPending, CheckoutStatusFailed, CheckoutStatusCancelled},
	CheckoutStatusPaymentPending:   {CheckoutStatusPaymentCompleted, CheckoutStatusFailed, CheckoutStatusCancelled},
	CheckoutStatusPaymentCompleted: {CheckoutStatusCompleted, CheckoutStatusFailed},
}

// CanTransitionTo reports whether a checkout session may move from one status to another.
// Once payment has been taken the session can no longer be cancelled.
func CanTransitionTo(from, to CheckoutStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
