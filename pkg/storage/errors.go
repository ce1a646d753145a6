package storage

import "errors"

// ErrNotFound is returned when no payload exists under the requested key.
var ErrNotFound = errors.New("state not found")
