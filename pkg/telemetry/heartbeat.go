// Package telemetry schedules the unsolicited heartbeat beacon.
package telemetry

import (
	"sync/atomic"
	"time"

	"github.com/itohio/golink/pkg/device"
	"github.com/itohio/golink/pkg/protocol"
)

// DefaultInterval is the heartbeat period at boot.
const DefaultInterval = 5000 // ms

// Heartbeat holds the runtime-adjustable interval. It is written by the
// interpreter and read by the main loop.
type Heartbeat struct {
	interval atomic.Uint32 // ms
	enabled  atomic.Bool
}

func New(interval time.Duration, enabled bool) *Heartbeat {
	h := &Heartbeat{}
	ms := uint32(interval.Milliseconds())
	if ms == 0 {
		ms = DefaultInterval
	}
	h.interval.Store(ms)
	h.enabled.Store(enabled)
	return h
}

// Interval returns the period in milliseconds.
func (h *Heartbeat) Interval() uint32 { return h.interval.Load() }

// SetInterval replaces the period. No bounds are enforced.
func (h *Heartbeat) SetInterval(ms uint32) { h.interval.Store(ms) }

func (h *Heartbeat) Enabled() bool { return h.enabled.Load() }

func (h *Heartbeat) SetEnabled(on bool) { h.enabled.Store(on) }

// Due reports whether more than one interval has passed since last.
// Tick arithmetic is modulo 2^32.
func (h *Heartbeat) Due(now, last uint32) bool {
	return now-last > h.Interval()
}

// Message assembles the beacon from a state snapshot.
func (h *Heartbeat) Message(s device.Snapshot) string {
	return protocol.Heartbeat(s)
}
