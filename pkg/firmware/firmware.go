// Package firmware assembles the device from its parts and runs the
// cooperative main loop: command dispatch, heartbeat, analog refresh,
// temperature drift and uptime.
package firmware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/itohio/golink/pkg/analog"
	"github.com/itohio/golink/pkg/config"
	"github.com/itohio/golink/pkg/device"
	"github.com/itohio/golink/pkg/hal"
	"github.com/itohio/golink/pkg/interp"
	"github.com/itohio/golink/pkg/protocol"
	"github.com/itohio/golink/pkg/pwm"
	"github.com/itohio/golink/pkg/sensor"
	"github.com/itohio/golink/pkg/telemetry"
	"github.com/itohio/golink/pkg/uart"
)

// ErrReset is returned by Run after a RESET command was carried out.
var ErrReset = errors.New("firmware: reset requested")

// sampleInterval paces the continuous ADC conversion.
const sampleInterval = time.Millisecond

// State is the main loop phase.
type State int

const (
	Idle State = iota
	CommandPending
	Dispatching
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CommandPending:
		return "command-pending"
	case Dispatching:
		return "dispatching"
	}
	return "unknown"
}

// Firmware is one boot of the device.
type Firmware struct {
	cfg *config.Config
	p   *hal.Peripherals

	state     *device.State
	ring      *uart.Ring
	framer    *uart.Framer
	rx        *uart.RxDMA
	tx        *uart.Tx
	sampler   *analog.Sampler
	temp      sensor.Source
	pwm       *pwm.Output
	heartbeat *telemetry.Heartbeat
	interp    *interp.Interpreter

	lastHeartbeat uint32
	lastRefresh   uint32
	lastDrift     uint32

	reset  bool
	booted bool
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires a firmware instance to initialised peripherals and a serial line.
func New(cfg *config.Config, p *hal.Peripherals, port io.ReadWriter) (*Firmware, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	ring, err := uart.NewRing(cfg.UART.RxBufferSize)
	if err != nil {
		return nil, fmt.Errorf("rx ring: %w", err)
	}

	src, err := sensor.New(cfg.Temperature, cfg.ADC, p)
	if err != nil {
		return nil, fmt.Errorf("temperature: %w", err)
	}

	st := device.NewWithTemperature(src.Read())
	f := &Firmware{
		cfg:       cfg,
		p:         p,
		state:     st,
		ring:      ring,
		sampler:   analog.New(cfg.ADC, st),
		temp:      src,
		pwm:       pwm.New(p.PWM, cfg.PWM.Period),
		heartbeat: telemetry.New(cfg.Heartbeat.Interval, cfg.Heartbeat.Enabled),
	}

	f.framer = uart.NewFramer(uart.FramerConfig{
		Capacity: cfg.UART.CmdBufferSize,
		Mailbox:  uart.NewMailbox(cfg.UART.CmdQueue),
		Count:    st.AddRxChars,
		Activity: p.LED.Toggle,
	})
	f.rx = uart.NewRxDMA(port, ring, f.framer.OnReceive)
	f.tx = uart.NewTx(port, cfg.UART.TxBufferSize, cfg.UART.TxQueue)
	f.interp = interp.New(st, p.LED, f.pwm, f.heartbeat)

	return f, nil
}

// Boot blinks the LED, announces the firmware and starts the background
// receive and conversion engines.
func (f *Firmware) Boot(ctx context.Context) {
	if f.booted {
		return
	}
	f.booted = true

	f.p.StartupBlink()
	f.state.SetLED(false)
	f.send(protocol.Startup())

	ctx, f.cancel = context.WithCancel(ctx)
	f.rx.Start(ctx)

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		f.sampler.Run(ctx, f.p.ADC, sampleInterval)
	}()

	now := f.p.Clock.Millis()
	f.lastHeartbeat = now
	f.lastRefresh = now
	f.lastDrift = now

	log.Info().
		Str("version", protocol.Version).
		Int("rx_buffer", f.ring.Size()).
		Int("adc_ring", f.sampler.Size()).
		Uint32("heartbeat_ms", f.heartbeat.Interval()).
		Msg("firmware booted")
}

// State reports whether a command is waiting for the loop.
func (f *Firmware) State() State {
	if f.framer.Mailbox().Ready() {
		return CommandPending
	}
	return Idle
}

// Step runs one loop iteration and returns the furthest state it reached.
func (f *Firmware) Step() State {
	visited := Idle
	if line, ok := f.framer.Mailbox().Take(); ok {
		visited = Dispatching
		f.dispatch(line)
	}

	now := f.p.Clock.Millis()

	if f.heartbeat.Enabled() && f.heartbeat.Due(now, f.lastHeartbeat) {
		f.send(f.heartbeat.Message(f.state.Snapshot()))
		f.lastHeartbeat = now
	}

	if now-f.lastRefresh > millis(f.cfg.ADC.Refresh) {
		f.sampler.Refresh()
		f.lastRefresh = now
	}

	if now-f.lastDrift > millis(f.cfg.Temperature.DriftInterval) {
		if s, ok := f.temp.(sensor.Stepper); ok {
			s.Step()
		}
		f.state.SetTemperature(f.temp.Read())
		f.lastDrift = now
	}

	f.state.SetUptime(now / 1000)

	return visited
}

func (f *Firmware) dispatch(line string) {
	// Blank lines are skipped without a reply.
	if protocol.Trim(line) == "" {
		return
	}

	out := f.interp.Execute(line)

	// Receive activity toggles the LED; put it back to what it should show.
	f.p.LED.Set(f.state.LED())

	switch out.Kind {
	case interp.KindReply:
		f.send(out.Reply)
	case interp.KindNoReply:
		log.Debug().Str("command", out.Command).Str("form", out.Form.String()).Str("reason", string(out.Reason)).Msg("command ignored")
	case interp.KindReset:
		f.send(out.Reply)
		f.reset = true
	}
}

func (f *Firmware) send(msg string) {
	if err := f.tx.Send(msg); err != nil {
		log.Warn().Err(err).Int("bytes", len(msg)).Msg("reply dropped")
	}
}

// ResetRequested reports whether a RESET command is waiting to be carried out.
func (f *Firmware) ResetRequested() bool { return f.reset }

// Flush waits until every queued message has been written.
func (f *Firmware) Flush(ctx context.Context) error {
	return f.tx.Flush(ctx)
}

func (f *Firmware) flushWithin(ctx context.Context, d time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	if err := f.Flush(ctx); err != nil {
		log.Warn().Err(err).Msg("transmit queue not flushed")
	}
}

// Run boots if needed and loops until ctx ends, the serial line closes or a
// reset is carried out. A reset returns ErrReset.
func (f *Firmware) Run(ctx context.Context) error {
	f.Boot(ctx)
	defer f.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-f.rx.Done():
			// Bytes already framed are still served before stopping.
			for f.State() == CommandPending {
				f.Step()
			}
			if f.reset {
				return f.doReset(ctx)
			}
			f.flushWithin(ctx, time.Second)
			if err := f.rx.Err(); err != nil {
				return fmt.Errorf("serial line: %w", err)
			}
			return nil
		default:
		}

		f.Step()

		if f.reset {
			return f.doReset(ctx)
		}

		f.p.Clock.Sleep(f.cfg.Loop.Tick)
	}
}

func (f *Firmware) doReset(ctx context.Context) error {
	f.flushWithin(ctx, time.Second)
	f.p.Clock.Sleep(f.cfg.Loop.ResetDelay)
	log.Info().Msg("firmware reset")
	f.p.Reset.Reset()
	return ErrReset
}

// Close stops the background engines and the transmitter.
func (f *Firmware) Close() error {
	if f.cancel != nil {
		f.cancel()
	}
	f.wg.Wait()
	return f.tx.Close()
}

// Device exposes the state blackboard.
func (f *Firmware) Device() *device.State { return f.state }

// Framer exposes the receive framer.
func (f *Firmware) Framer() *uart.Framer { return f.framer }

// Heartbeat exposes the heartbeat schedule.
func (f *Firmware) Heartbeat() *telemetry.Heartbeat { return f.heartbeat }

func millis(d time.Duration) uint32 {
	return uint32(d.Milliseconds())
}
