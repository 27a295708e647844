package storage

import "errors"

var (
	ErrNotFound    = errors.New("storage: container not found")
	ErrInvalidCID  = errors.New("storage: invalid cid")
	ErrCIDMismatch = errors.New("storage: cid mismatch")
	ErrImmutable   = errors.New("storage: stored container differs from upload")
	ErrRejected    = errors.New("storage: container rejected")
)

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
