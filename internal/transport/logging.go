// SPDX-License-Identifier: MIT
package transport

import (
	"pitchtrack/internal/event"
	"pitchtrack/internal/log"
)

// LoggingTransport writes every event to the debug log.
type LoggingTransport struct {
	log *log.Logger
}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	return &LoggingTransport{log: log.Named("events")}
}

// Name implements Transport.
func (lt *LoggingTransport) Name() string { return "log" }

// Publish logs the event. It never fails.
func (lt *LoggingTransport) Publish(e event.PitchDetected) error {
	if log.GetLevel() > log.LevelDebug {
		return nil
	}
	if e.HasPitch() {
		lt.log.Debugf("#%d %s%d %+6.1fc %8.2f Hz clarity %.2f",
			e.Sequence, e.NoteName, e.Octave, e.Cents, e.FrequencyHz, e.Clarity)
	} else {
		lt.log.Debugf("#%d no pitch", e.Sequence)
	}
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	return nil
}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)
