package cq4

import "errors"

// Container-level errors. I/O failures from the OS are wrapped with %w and
// surface alongside these.
var (
	// ErrUnreadableHeader means the file does not begin with a readable
	// queue header excerpt.
	ErrUnreadableHeader = errors.New("cq4: unreadable queue header")

	// ErrMisalignedExcerpt means an excerpt length drives the cursor past
	// the end of the file.
	ErrMisalignedExcerpt = errors.New("cq4: excerpt extends past end of file")

	// ErrTruncated means the file ends in the middle of an excerpt header.
	ErrTruncated = errors.New("cq4: truncated excerpt header")

	// ErrSessionClosed means the reader session was closed while an
	// iterator was still in use.
	ErrSessionClosed = errors.New("cq4: session closed")

	// ErrDirtyPadding means alignment padding between excerpts held
	// non-zero bytes. Reported only in strict mode.
	ErrDirtyPadding = errors.New("cq4: non-zero alignment padding")
)
