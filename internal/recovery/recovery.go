// internal/recovery/recovery.go
package recovery

import (
	"fmt"
	"os"
	"runtime/debug"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var logger atomic.Pointer[logrus.Logger]

// exit is replaced in tests
var exit = os.Exit

func init() {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	logger.Store(l)
}

// SetLogger routes panic reports through l. Passing nil restores the
// default stderr logger.
func SetLogger(l *logrus.Logger) {
	if l == nil {
		l = logrus.New()
		l.SetOutput(os.Stderr)
	}
	logger.Store(l)
}

// HandlePanic should be deferred at the top of main() or goroutines.
// It logs panic details and exits with code 1.
func HandlePanic() {
	if r := recover(); r != nil {
		report(r)
		exit(1)
	}
}

// HandlePanicFunc logs panic details and calls the provided cleanup function.
func HandlePanicFunc(cleanup func()) {
	if r := recover(); r != nil {
		report(r)
		if cleanup != nil {
			cleanup()
		}
		exit(1)
	}
}

func report(r any) {
	logger.Load().WithFields(logrus.Fields{
		"panic": fmt.Sprint(r),
		"stack": string(debug.Stack()),
	}).Error("FATAL: recovered panic")
}
