package apperrors

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrStaleTransition      = errors.New("dataset status changed concurrently")
	ErrInferenceUnavailable = errors.New("mapping inference unavailable")
	ErrBlobStoreDisabled    = errors.New("blob store not configured")
	ErrMalformedUpload      = errors.New("uploaded file could not be parsed")
)
