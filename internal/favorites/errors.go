package favorites

import (
	"errors"
	"fmt"

	"github.com/tbourn/go-billsplit/internal/remote"
)

var (
	// ErrCapacityExceeded is returned by Add when the working list is full.
	ErrCapacityExceeded = errors.New("favorites limit reached")
	// ErrAlreadyFavorite is returned by Add for a contact already listed.
	ErrAlreadyFavorite = errors.New("already a favorite")
	// ErrNotFavorite is returned by Remove for an unknown identifier.
	ErrNotFavorite = errors.New("not a favorite")
	// ErrBusy is returned while a save or a committed removal is running.
	ErrBusy = errors.New("favorites are being saved")
	// ErrClosed is returned by every edit after Close.
	ErrClosed = errors.New("session closed")
)

// ErrorText turns an edit or commit error into the string shown to the
// user. Directory rejections are shown verbatim.
func ErrorText(err error, limit int) string {
	var rej *remote.RejectionError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &rej):
		return rej.Error()
	case errors.Is(err, remote.ErrTransport):
		return "Could not reach the server. Please try again."
	case errors.Is(err, ErrCapacityExceeded):
		return fmt.Sprintf("You can have at most %d favorites.", limit)
	default:
		return err.Error()
	}
}
