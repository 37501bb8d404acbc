package devtools

import (
	"fmt"
	"sync/atomic"

	"github.com/golang/glog"
)

var debugFlag atomic.Bool

// SetDebug enables tracing of every frame sent and received.
func SetDebug(debug bool) {
	debugFlag.Store(debug)
}

func debugLog(format string, args ...interface{}) {
	if !debugFlag.Load() {
		return
	}
	glog.InfoDepth(1, fmt.Sprintf(format, args...))
}
