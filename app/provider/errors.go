package provider

import "errors"

var (
	ErrProviderNotSupported = errors.New("provider is not supported")

	// ErrUnavailable covers network failures, timeouts and provider 5xx
	// responses. The charge may or may not exist provider-side; the ledger
	// row stays pending and the caller may retry.
	ErrUnavailable = errors.New("provider unavailable")

	// ErrRejected covers provider 4xx business rejections. Terminal.
	ErrRejected = errors.New("provider rejected the request")

	// ErrMisconfigured means required credentials are absent.
	ErrMisconfigured = errors.New("provider credentials are not configured")

	// ErrAuthFailed means the provider refused our credentials.
	ErrAuthFailed = errors.New("provider authentication failed")

	// ErrInvalidSignature means a webhook payload could not be verified.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)
