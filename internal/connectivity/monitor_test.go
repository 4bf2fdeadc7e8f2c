package connectivity

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type scriptedProber struct {
	mu  sync.Mutex
	err error
}

func (p *scriptedProber) Ping(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func (p *scriptedProber) set(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func newTestMonitor() *Monitor {
	return NewMonitor(&scriptedProber{}, time.Minute, quietLogger())
}

func TestMonitor_InitiallyOffline(t *testing.T) {
	m := newTestMonitor()
	assert.False(t, m.IsOnline())
}

func TestMonitor_Transitions(t *testing.T) {
	m := newTestMonitor()

	var onlineCalls, offlineCalls int
	m.OnOnline(func() { onlineCalls++ })
	m.OnOffline(func() { offlineCalls++ })

	m.SetOnline(true)
	assert.True(t, m.IsOnline())
	assert.Equal(t, 1, onlineCalls)

	// Same state again: no transition, no dispatch.
	m.SetOnline(true)
	assert.Equal(t, 1, onlineCalls)

	m.SetOnline(false)
	assert.False(t, m.IsOnline())
	assert.Equal(t, 1, offlineCalls)
}

func TestMonitor_CallbacksAreSynchronous(t *testing.T) {
	m := newTestMonitor()

	fired := false
	m.OnOnline(func() { fired = true })

	m.SetOnline(true)
	assert.True(t, fired, "dispatch happens on the transitioning goroutine, not queued")
}

func TestMonitor_PanickingCallbackDoesNotBlockOthers(t *testing.T) {
	m := newTestMonitor()

	var secondRan bool
	m.OnOnline(func() { panic("boom") })
	m.OnOnline(func() { secondRan = true })

	assert.NotPanics(t, func() { m.SetOnline(true) })
	assert.True(t, secondRan, "a panicking callback must not prevent the rest from running")
}

func TestMonitor_ProbeDrivesState(t *testing.T) {
	prober := &scriptedProber{err: errors.New("unreachable")}
	m := NewMonitor(prober, 10*time.Millisecond, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Stop()

	assert.Never(t, func() bool { return m.IsOnline() }, 50*time.Millisecond, 10*time.Millisecond)

	prober.set(nil)
	assert.Eventually(t, func() bool { return m.IsOnline() }, time.Second, 10*time.Millisecond)

	prober.set(errors.New("dropped"))
	assert.Eventually(t, func() bool { return !m.IsOnline() }, time.Second, 10*time.Millisecond)
}
