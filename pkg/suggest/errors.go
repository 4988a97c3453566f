package suggest

import "errors"

var (
	// ErrClosed is returned when a delegate update hits an already closed
	// proxy. A late-arriving background build must not resurrect a
	// destroyed suggester.
	ErrClosed = errors.New("suggester closed")

	// ErrNoData signals that a provider claims no data for an index. This
	// is unrecoverable for an updater that never succeeded before.
	ErrNoData = errors.New("no data available")

	// ErrInvalidModTime signals a provider contract violation: it claims
	// to have data but reports a negative modification time.
	ErrInvalidModTime = errors.New("invalid modification time")

	// ErrModTimeMismatch signals a read-after-write race at the provider:
	// the loaded dataset carries a different mod-time than the provider
	// reported just before. The tick is skipped and retried.
	ErrModTimeMismatch = errors.New("dataset mod-time mismatch")

	// ErrManagerClosed is returned by manager operations after Close.
	ErrManagerClosed = errors.New("suggest manager closed")
)
