package lifecycle

import (
	"os"
	"os/signal"
)

// Notifier relays OS signals to a channel. The default implementation is
// backed by os/signal; tests substitute their own.
type Notifier interface {
	Notify(c chan<- os.Signal, sig ...os.Signal)
	Stop(c chan<- os.Signal)
}

type osNotifier struct{}

func (osNotifier) Notify(c chan<- os.Signal, sig ...os.Signal) { signal.Notify(c, sig...) }
func (osNotifier) Stop(c chan<- os.Signal)                     { signal.Stop(c) }

// DefaultSignals returns the termination signals handled when WithSignals
// is not given.
func DefaultSignals() []os.Signal {
	return append([]os.Signal(nil), defaultSignals...)
}
