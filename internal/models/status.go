package models

// PaymentStatus values
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

var validNext = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentStatusPending:   {PaymentStatusSucceeded: true, PaymentStatusFailed: true},
	PaymentStatusSucceeded: {PaymentStatusRefunded: true},
	PaymentStatusFailed:    {},
	PaymentStatusRefunded:  {},
}

// CanTransition reports whether a payment may move from one status to another.
func CanTransition(from, to PaymentStatus) bool {
	return validNext[from][to]
}

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	_, ok := validNext[s]
	return ok
}
