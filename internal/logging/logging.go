// Package logging gates debug output behind the MURET2YOLO_LOG_LEVEL
// environment variable. Everything else goes straight to the standard logger.
package logging

import (
	"fmt"
	"log"
	"os"
	"sync/atomic"
)

// EnvLevel is the environment variable that enables debug output when set to "debug".
const EnvLevel = "MURET2YOLO_LOG_LEVEL"

var debug atomic.Bool

func init() {
	debug.Store(os.Getenv(EnvLevel) == "debug")
}

// SetDebug overrides the level read from the environment.
func SetDebug(on bool) { debug.Store(on) }

// DebugEnabled reports whether Debugf writes anything.
func DebugEnabled() bool { return debug.Load() }

// Debugf logs through the standard logger when debug output is enabled.
func Debugf(format string, args ...any) {
	if debug.Load() {
		log.Output(2, "DEBUG "+fmt.Sprintf(format, args...))
	}
}
