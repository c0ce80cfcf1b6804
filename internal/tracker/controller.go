// SPDX-License-Identifier: MIT
package tracker

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"pitchtrack/internal/audio"
	"pitchtrack/internal/event"
	"pitchtrack/internal/log"
	"pitchtrack/internal/metrics"
)

// Option configures a Controller.
type Option func(*Controller)

// WithMetrics records pipeline metrics on p.
func WithMetrics(p *metrics.Pipeline) Option {
	return func(c *Controller) { c.metrics = p }
}

// WithClock sets the clock used for event timestamps.
func WithClock(clock func() time.Time) Option {
	return func(c *Controller) { c.clock = clock }
}

// Controller is the application's handle on pitch tracking: at most one
// session is live at a time. A supervisor goroutine per session turns a
// session fault into a graceful stop and forwards the cause on Faults.
type Controller struct {
	settings Settings
	source   audio.Source
	sink     event.Sink
	metrics  *metrics.Pipeline
	clock    func() time.Time
	log      *log.Logger
	faults   chan error

	mu       sync.Mutex
	session  *Session
	stopping bool
	quit     chan struct{} // closes the supervisor of the live session
	released chan struct{} // closed once the live session is released
	wg       sync.WaitGroup
}

// NewController validates settings and returns an idle controller.
func NewController(settings Settings, source audio.Source, sink event.Sink, opts ...Option) (*Controller, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	c := &Controller{
		settings: settings,
		source:   source,
		sink:     sink,
		clock:    time.Now,
		log:      log.Named("controller"),
		faults:   make(chan error, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Faults delivers the cause of every session the controller stopped on its
// own. Unread faults beyond the first are dropped.
func (c *Controller) Faults() <-chan error { return c.faults }

// State reports Idle, Running or Stopping.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch {
	case c.session == nil:
		return StateIdle
	case c.stopping:
		return StateStopping
	default:
		return StateRunning
	}
}

// SessionID returns the live session's ID, or "" when idle.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil {
		return ""
	}
	return c.session.ID()
}

// Start begins a new session on the default input device.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session != nil {
		return ErrAlreadyRunning
	}

	sess, err := NewSession(uuid.NewString(), c.settings, c.source, c.sink, c.metrics)
	if err != nil {
		return err
	}
	sess.clock = c.clock
	if err := sess.Start(); err != nil {
		return err
	}

	c.session = sess
	c.quit = make(chan struct{})
	c.released = make(chan struct{})
	c.wg.Add(1)
	go c.supervise(sess, c.quit)
	return nil
}

// Stop ends the live session and waits for it to release the device.
// If the session is already stopping, Stop waits for that stop to finish
// and returns ErrNotRunning, so a following Start succeeds.
func (c *Controller) Stop() error {
	c.mu.Lock()
	sess := c.session
	if sess == nil {
		c.mu.Unlock()
		return ErrNotRunning
	}
	if c.stopping {
		released := c.released
		c.mu.Unlock()
		<-released
		return ErrNotRunning
	}
	c.stopping = true
	close(c.quit)
	c.mu.Unlock()

	err := sess.Stop()
	c.wg.Wait()
	c.release()
	return err
}

// supervise stops sess when it faults, unless Stop got there first.
func (c *Controller) supervise(sess *Session, quit <-chan struct{}) {
	defer c.wg.Done()

	var cause error
	select {
	case <-quit:
		return
	case cause = <-sess.Faults():
	}

	c.mu.Lock()
	if c.stopping {
		c.mu.Unlock()
		return
	}
	c.stopping = true
	c.mu.Unlock()

	if errors.Is(cause, audio.ErrEndOfStream) {
		c.log.Infof("session %s: input finished, stopping", sess.ID())
	} else {
		c.log.Warnf("session %s faulted, stopping: %v", sess.ID(), cause)
	}
	if err := sess.Stop(); err != nil && !errors.Is(err, ErrNotRunning) {
		cause = errors.Join(cause, err)
	}
	c.release()

	select {
	case c.faults <- cause:
	default:
	}
}

func (c *Controller) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = nil
	c.stopping = false
	c.quit = nil
	close(c.released)
	c.released = nil
}
