package remote

import "errors"

// ErrTransport marks failures to reach the directory or to read its answer:
// connection errors, timeouts, cancelled contexts and undecodable bodies.
var ErrTransport = errors.New("directory unreachable")

// RejectionError is a well-formed answer with success=false. Message is the
// directory's own text and is meant to be shown to the user as-is.
type RejectionError struct {
	Message string
}

func (e *RejectionError) Error() string {
	if e.Message == "" {
		return "request rejected"
	}
	return e.Message
}

// IsRejection reports whether err carries a directory rejection.
func IsRejection(err error) bool {
	var rej *RejectionError
	return errors.As(err, &rej)
}
