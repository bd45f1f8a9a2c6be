package conductor

// Metrics observes conductor traffic. Pass nil to disable collection.
type Metrics interface {
	// MessageReceived is called for every inbound message.
	MessageReceived(transport string, bytes int)

	// MessageStored is called once the dispatcher has tried to persist a
	// message; err is nil on success.
	MessageStored(err error)

	// ConnectionOpened and ConnectionClosed track live WebSocket sessions.
	ConnectionOpened(transport string)
	ConnectionClosed(transport string)
}

type nopMetrics struct{}

func (nopMetrics) MessageReceived(string, int) {}
func (nopMetrics) MessageStored(error)         {}
func (nopMetrics) ConnectionOpened(string)     {}
func (nopMetrics) ConnectionClosed(string)     {}
