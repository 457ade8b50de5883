package storage

import "errors"

// ErrNoResource is returned when a target names the static root itself
var ErrNoResource = errors.New("target names no resource")
