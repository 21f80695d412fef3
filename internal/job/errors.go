package job

import "errors"

// Sentinel errors for job operations.
var (
	// ErrConcurrencyViolation indicates a step presented a token or kind that
	// does not match the active checkpoint, or lost a race with another
	// step. The caller must create a new job rather than retry.
	ErrConcurrencyViolation = errors.New("job: concurrency violation")

	// ErrUnrecoverable indicates resources ran out even at the minimal chunk size.
	ErrUnrecoverable = errors.New("job: resources exhausted at minimal chunk size")

	// ErrUnknownKind indicates no runnable job could be recovered.
	ErrUnknownKind = errors.New("job: unknown job kind")

	// ErrPersistence indicates the checkpoint store failed.
	ErrPersistence = errors.New("job: checkpoint persistence failed")

	// ErrIO indicates the backup artifact could not be written. The artifact
	// must be treated as invalid until a job completes.
	ErrIO = errors.New("job: artifact write failed")

	// ErrInvalidConfig indicates job parameters are missing or malformed.
	ErrInvalidConfig = errors.New("job: invalid configuration")

	// ErrProtectedSite indicates the site may not be purged.
	ErrProtectedSite = errors.New("job: site is protected")
)
