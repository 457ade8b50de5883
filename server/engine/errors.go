package engine

import "errors"

// ErrPoolClosed is returned by Submit once Shutdown has started
var ErrPoolClosed = errors.New("dispatcher is shut down")
