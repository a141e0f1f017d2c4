package service

import "errors"

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrNothingToCharge     = errors.New("nothing to charge")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrProviderUnsupported = errors.New("provider is not supported")
	ErrProviderRejected    = errors.New("provider rejected the request")
	ErrProviderUnavailable = errors.New("provider is unavailable")
	ErrWebhookRejected     = errors.New("webhook rejected")
	ErrForbidden           = errors.New("forbidden")
)
