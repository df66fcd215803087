// Package common defines shared constants and sentinel errors used across
// ticketkeeper layers. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrNotFound     = errors.New("not found")
	ErrStorageRead  = errors.New("storage read error")
	ErrStorageWrite = errors.New("storage write error")

	// Remote store errors. ErrNotAuthorized means the presented credential
	// was rejected or expired; ErrRemoteUnavailable covers network faults and
	// 5xx/429-class responses and is retryable; ErrRemoteRejected covers the
	// remaining 4xx responses and is not.
	ErrNotAuthorized     = errors.New("not authorized")
	ErrRemoteUnavailable = errors.New("remote unavailable")
	ErrRemoteRejected    = errors.New("remote rejected request")

	// Service-level errors.
	ErrValidation      = errors.New("validation error")
	ErrDuplicateNumber = errors.New("ticket number already exists")
)
