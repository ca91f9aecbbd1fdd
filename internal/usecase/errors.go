package usecase

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrNotFound            = errors.New("resource not found")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrModelUnavailable    = errors.New("model unavailable")
	ErrOutcomeConflict     = errors.New("outcome conflict")
	ErrRetrainRejected     = errors.New("retrain rejected")
	ErrTimeoutPartial      = errors.New("deadline exceeded with partial data")
)
