package scheduler

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

type blockingDispatcher struct {
	started  chan struct{}
	release  chan struct{}
	finished atomic.Bool
}

func (d *blockingDispatcher) ProcessPendingEvents(_ context.Context) error {
	close(d.started)
	<-d.release
	d.finished.Store(true)
	return nil
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestStop_DrainsInFlightStartupPass(t *testing.T) {
	dispatcher := &blockingDispatcher{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	// An interval far beyond the test's lifetime: only the startup pass runs.
	s := NewDispatchScheduler(dispatcher, quietLogger(), time.Hour)

	s.Start()
	<-dispatcher.started

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(dispatcher.release)
	}()

	s.Stop()

	assert.True(t, dispatcher.finished.Load(), "Stop should wait for the startup pass to finish")
}
