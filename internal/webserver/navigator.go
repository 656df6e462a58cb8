package webserver

import (
	"sync/atomic"

	"github.com/labstack/gommon/log"
)

// Navigator turns the session's hard redirect into the next response the browser receives.
// The redirect itself has to be delivered on some request, so eviction only raises a flag here.
type Navigator struct {
	pending atomic.Bool
	logger  *log.Logger
}

func NewNavigator(logger *log.Logger) *Navigator {
	if logger == nil {
		logger = log.New("webserver")
	}
	return &Navigator{logger: logger}
}

func (n *Navigator) HardRedirect(path string) {
	if n.pending.CompareAndSwap(false, true) {
		n.logger.Infof("Session evicted, next page load will be sent to %s", path)
	}
}

// take reports whether a hard redirect is owed, and clears it.
func (n *Navigator) take() bool {
	return n.pending.Swap(false)
}
