package presigned

import (
	"errors"
	"net/http"
)

var (
	ErrNoSecretKey       = errors.New("presigned: no secret key configured")
	ErrMissingSignature  = errors.New("presigned: missing signature parameter")
	ErrMissingExpiration = errors.New("presigned: missing expires parameter")
	ErrInvalidExpiration = errors.New("presigned: invalid expires parameter")
	ErrExpired           = errors.New("presigned: URL has expired")
	ErrInvalidSignature  = errors.New("presigned: invalid signature")

	// ErrInvalidObjectPath is returned when a URL path does not name a bucket and object
	ErrInvalidObjectPath = errors.New("presigned: path does not name a bucket and object")
)

// rejection maps a validation error to the status and code sent to the
// uploader. Missing parameters are 401 so clients can tell an unsigned
// request from a tampered or stale one.
func rejection(err error) (int, string) {
	switch {
	case errors.Is(err, ErrInvalidObjectPath):
		return http.StatusBadRequest, "invalid_object_path"
	case errors.Is(err, ErrInvalidExpiration):
		return http.StatusBadRequest, "invalid_expires"
	case errors.Is(err, ErrMissingSignature), errors.Is(err, ErrMissingExpiration):
		return http.StatusUnauthorized, "missing_signature"
	case errors.Is(err, ErrExpired):
		return http.StatusForbidden, "expired"
	default:
		return http.StatusForbidden, "invalid_signature"
	}
}
