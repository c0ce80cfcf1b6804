// SPDX-License-Identifier: MIT

// Package transport delivers pitch events to consumers outside the audio
// path. Every transport implements event.Sink and never blocks Publish:
// network transports queue into a bounded channel drained by their own
// goroutine and drop events, with a metric, when the queue is full.
package transport

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pitchtrack/internal/event"
	"pitchtrack/internal/log"
	"pitchtrack/internal/metrics"
)

// DefaultQueueSize is the per-transport event queue length.
const DefaultQueueSize = 256

// Transport is a named event sink.
type Transport interface {
	event.Sink
	Name() string
}

// Fanout publishes every event to each of its sinks in order.
type Fanout struct {
	sinks []event.Sink
}

// NewFanout returns a Fanout over sinks. Nil sinks are skipped.
func NewFanout(sinks ...event.Sink) *Fanout {
	f := &Fanout{}
	for _, s := range sinks {
		f.Add(s)
	}
	return f
}

// Add appends a sink. It must not be called once events are flowing.
func (f *Fanout) Add(s event.Sink) {
	if s != nil {
		f.sinks = append(f.sinks, s)
	}
}

// Len returns the number of sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

// Publish delivers e to every sink and joins their errors.
func (f *Fanout) Publish(e event.PitchDetected) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publish(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all sinks concurrently and returns the first error.
func (f *Fanout) Close() error {
	var g errgroup.Group
	for _, s := range f.sinks {
		g.Go(s.Close)
	}
	return g.Wait()
}

// dropCounter rate-limits the log line for dropped events; the metric
// counts every drop.
type dropCounter struct {
	name    string
	metrics *metrics.Pipeline
	log     *log.Logger

	mu      sync.Mutex
	dropped int
	last    time.Time
}

func newDropCounter(name string, m *metrics.Pipeline) *dropCounter {
	return &dropCounter{name: name, metrics: m, log: log.Named(name)}
}

func (d *dropCounter) drop() {
	d.metrics.EventDropped(d.name)

	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropped++
	if now := time.Now(); now.Sub(d.last) >= time.Second {
		d.log.Warnf("queue full, dropped %d events", d.dropped)
		d.dropped = 0
		d.last = now
	}
}
