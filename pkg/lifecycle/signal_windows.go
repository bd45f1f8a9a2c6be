//go:build windows

package lifecycle

import (
	"os"

	"golang.org/x/sys/windows"
)

var defaultSignals = []os.Signal{os.Interrupt, windows.SIGTERM}
