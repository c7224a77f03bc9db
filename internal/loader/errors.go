package loader

import "errors"

var (
	// ErrInvalidArgument reports a programming error at the call site.
	ErrInvalidArgument = errors.New("loader: invalid argument")
	// ErrTaskNotFound is returned for operations that need a registered image.
	ErrTaskNotFound = errors.New("loader: task not found")
	// ErrClosed is returned by mutating operations after Close.
	ErrClosed = errors.New("loader: closed")
)

// IsInvalidArgument reports whether err was caused by a bad argument.
func IsInvalidArgument(err error) bool { return errors.Is(err, ErrInvalidArgument) }

// IsTaskNotFound reports whether err indicates an unknown image id.
func IsTaskNotFound(err error) bool { return errors.Is(err, ErrTaskNotFound) }

// IsClosed reports whether err indicates the loader was closed.
func IsClosed(err error) bool { return errors.Is(err, ErrClosed) }
