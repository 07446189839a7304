package flowtide

import "errors"

var (
	// Store errors.
	ErrNoQueueStore = errors.New("flowtide: no queue store configured")
	ErrNoDatabase   = errors.New("flowtide: no database configured")
	ErrStoreClosed  = errors.New("flowtide: store closed")

	// Not found errors.
	ErrJobNotFound        = errors.New("flowtide: job not found")
	ErrEntryNotFound      = errors.New("flowtide: schedule entry not found")
	ErrBottleneckNotFound = errors.New("flowtide: bottleneck not found")
	ErrOrgNotFound        = errors.New("flowtide: organization not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("flowtide: job already exists")

	// State errors.
	ErrInvalidState        = errors.New("flowtide: invalid state transition")
	ErrMaxAttemptsExceeded = errors.New("flowtide: max attempts exceeded")

	// ErrPermanent marks a job failure that retrying cannot fix: an
	// unknown job kind or a payload that does not decode. The executor
	// fails such jobs on the first attempt instead of burning the retry
	// budget. Wrap with fmt.Errorf("...: %w", ErrPermanent) and test
	// with errors.Is.
	ErrPermanent = errors.New("flowtide: permanent job error")
)
