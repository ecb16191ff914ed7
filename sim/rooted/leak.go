package rooted

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var leaked atomic.Uint64

// LeakedHandles returns how many handles were collected without being
// released since the process started.
func LeakedHandles() uint64 {
	return leaked.Load()
}

// reportLeak runs on the finalizer goroutine.
func reportLeak(kind string, tag Tag) {
	leaked.Add(1)
	if panicOnLeak {
		panic(fmt.Sprintf("rooted: %s under %v was garbage collected without SafelyDrop", kind, tag))
	}
	logrus.Warnf("rooted: leaking %s under %v: handle dropped without SafelyDrop", kind, tag)
}
