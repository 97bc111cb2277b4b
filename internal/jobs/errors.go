package jobs

import "errors"

var (
	// ErrAlreadyExists is returned by CreateJob when the sort key is taken.
	ErrAlreadyExists = errors.New("job record already exists")
	// ErrNotFound is returned by UpdateStatus when no record matches the job id.
	ErrNotFound = errors.New("job record not found")
	// ErrStaleTransition is returned by UpdateStatus when the stored status is
	// already past the requested one.
	ErrStaleTransition = errors.New("stale job status transition")
)
