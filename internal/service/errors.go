package service

import "errors"

var (
	ErrMissingFields    = errors.New("missing required fields")
	ErrForbidden        = errors.New("forbidden")
	ErrClassNotFound    = errors.New("class not found")
	ErrScheduleNotFound = errors.New("schedule not found")
	ErrScheduleFull     = errors.New("schedule is full")
	ErrPaymentNotFound  = errors.New("payment not found")
	ErrNotRefundable    = errors.New("payment is not refundable")
	ErrRefundInProgress = errors.New("refund already in progress")
	ErrInvalidClass     = errors.New("invalid class")
	ErrClassPriceLocked = errors.New("class price is locked by existing payments")
	ErrClassInUse       = errors.New("class is referenced by payments")
	ErrInvalidSchedule  = errors.New("invalid schedule")
)
