package pool

import "errors"

// ErrNoProcessors is returned when no logical processor is available to run
// pool threads on.
var ErrNoProcessors = errors.New("no logical processors available")
