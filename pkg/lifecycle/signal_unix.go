//go:build unix

package lifecycle

import (
	"os"

	"golang.org/x/sys/unix"
)

var defaultSignals = []os.Signal{unix.SIGINT, unix.SIGTERM}
