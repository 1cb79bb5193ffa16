package session

import "errors"

var (
	// ErrInvalidArgument reports malformed input to a constructor or mutator.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrSessionClosed reports a mutation attempted after the session ended.
	ErrSessionClosed = errors.New("session closed")
	// ErrOutOfOrderEntry reports a transcript entry older than the last one.
	ErrOutOfOrderEntry = errors.New("transcript entry out of order")
	// ErrAlreadyEnded reports a second end on the same session.
	ErrAlreadyEnded = errors.New("session already ended")
)
