package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidArgument    = errors.New("invalid argument")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	ErrInvalidRequest     = errors.New("gateway rejected the request")
	ErrIntentExpired      = errors.New("payment intent expired")
	ErrFinalizeFailed     = errors.New("payment settled but local finalize failed")
	ErrNoPendingIntent    = errors.New("no pending intent for purpose")
	ErrOperationFailed    = errors.New("operation failed")
)
