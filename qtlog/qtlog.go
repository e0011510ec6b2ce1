// Package qtlog provides the structured logging facade shared by the
// reactor, sockconn and channel packages, in place of the
// bare log.Printf calls the teacher uses in its middleware and server.
package qtlog

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu      sync.RWMutex
	base    *zap.Logger
	sugared *zap.SugaredLogger
)

func init() {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	base = l
	sugared = l.Sugar()
}

// SetLogger replaces the process-wide logger. Tests typically install a
// zap.NewDevelopment() or zaptest logger here.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	base = l
	sugared = l.Sugar()
}

// L returns the process-wide structured logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// S returns the process-wide sugared logger.
func S() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return sugared
}

// Named returns a child logger scoped to a component, e.g. qtlog.Named("reactor").
func Named(component string) *zap.SugaredLogger {
	return L().Named(component).Sugar()
}
