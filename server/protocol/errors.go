package protocol

import "errors"

// errors for parsing
var (
	ErrInvalid  = errors.New("invalid request")
	ErrTooLarge = errors.New("request too large")
)
