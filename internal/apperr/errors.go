// Package apperr defines the error categories shared across the sync pipeline.
package apperr

import "errors"

var (
	ErrNotFound = errors.New("not found")

	// ErrConnectivity means the remote service could not be reached or
	// answered with something other than a valid envelope. It aborts a run.
	ErrConnectivity = errors.New("remote service unreachable")
	// ErrRemoteRejected means the service answered but refused the action.
	ErrRemoteRejected = errors.New("remote service rejected request")
	// ErrMalformedRecord marks a remote record that failed schema validation.
	ErrMalformedRecord = errors.New("malformed remote record")

	ErrExcluded        = errors.New("document carries an exclusion tag")
	ErrMissingIdentity = errors.New("document has no anki-id")
	ErrMediaUpload     = errors.New("media upload failed")
	ErrRunInProgress   = errors.New("another sync run is in progress")
)
