package sorter

import "errors"

// Sort failures. Returned errors wrap one of these together with the cause.
var (
	ErrPrecondition      = errors.New("cannot sort")
	ErrDestination       = errors.New("cannot create destination directory")
	ErrConflictExhausted = errors.New("too many name conflicts")
	ErrMove              = errors.New("cannot move file")

	// ErrCrossDevice is wrapped in addition to ErrMove when source and
	// destination live on different filesystems.
	ErrCrossDevice = errors.New("destination is on another device")
)
