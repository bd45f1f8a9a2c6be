package lifecycle

import (
	"bytes"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/marmos91/agentd/internal/logger"
)

const waitTimeout = 5 * time.Second

// fakeNotifier records registrations and lets tests deliver signals. Unlike
// os/signal it keeps delivering after Stop, which exercises the one-shot
// guard of the handler.
type fakeNotifier struct {
	mu       sync.Mutex
	ch       chan<- os.Signal
	sigs     []os.Signal
	notifies int
	stops    int
	ready    chan struct{}
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{ready: make(chan struct{})}
}

func (f *fakeNotifier) Notify(c chan<- os.Signal, sig ...os.Signal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ch = c
	f.sigs = sig
	f.notifies++
	close(f.ready)
}

func (f *fakeNotifier) Stop(chan<- os.Signal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
}

func (f *fakeNotifier) send(t *testing.T, sig os.Signal) {
	t.Helper()
	select {
	case <-f.ready:
	case <-time.After(waitTimeout):
		t.Fatal("notifier was never registered")
	}

	f.mu.Lock()
	ch := f.ch
	f.mu.Unlock()

	select {
	case ch <- sig:
	case <-time.After(waitTimeout):
		t.Fatal("signal was not consumed")
	}
}

func (f *fakeNotifier) counts() (notifies, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.notifies, f.stops
}

// fakeMetrics records every observation.
type fakeMetrics struct {
	mu             sync.Mutex
	started        []string
	finished       map[string][]string
	startupFailed  int
	shutdownFailed int
	cancelled      []int
	durations      int
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{finished: make(map[string][]string)}
}

func (m *fakeMetrics) TaskStarted(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, name)
}

func (m *fakeMetrics) TaskFinished(name, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished[name] = append(m.finished[name], outcome)
}

func (m *fakeMetrics) StartupFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startupFailed++
}

func (m *fakeMetrics) ShutdownFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownFailed++
}

func (m *fakeMetrics) TasksCancelled(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, n)
}

func (m *fakeMetrics) ShutdownDuration(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations++
}

func (m *fakeMetrics) outcomes(name string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.finished[name]...)
}

// logBuffer is a goroutine-safe log sink.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *logBuffer) count(substr string) int {
	return strings.Count(b.String(), substr)
}

func captureLogs(t *testing.T, level string) *logBuffer {
	t.Helper()
	buf := &logBuffer{}
	logger.InitWithWriter(buf, level, "text", false)
	t.Cleanup(func() {
		logger.InitWithWriter(os.Stdout, "INFO", "text", false)
	})
	return buf
}

func runAsync(o *Orchestrator, startup, shutdown Op) <-chan error {
	done := make(chan error, 1)
	go func() { done <- o.Run(startup, shutdown) }()
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("Run did not return")
		return nil
	}
}

func waitClosed(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(waitTimeout):
		require.FailNow(t, "timed out waiting for "+what)
	}
}
