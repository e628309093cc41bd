package bundle

import "errors"

var (
	// ErrFetchFailed marks the soft "no result" outcome of a fetch: transport
	// error, timeout, or a non-success status.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrNotFound is returned by stores for unknown or evicted ids.
	ErrNotFound = errors.New("bundle not found")
	// ErrArchiveConsumed is returned when a bundle's archive was already forwarded.
	ErrArchiveConsumed = errors.New("archive already consumed")
)
