package session

import "errors"

// ErrConfig indicates invalid session configuration.
var ErrConfig = errors.New("session: invalid config")
