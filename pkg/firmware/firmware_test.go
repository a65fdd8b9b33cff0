package firmware

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/golink/pkg/config"
	"github.com/itohio/golink/pkg/hal"
)

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func (s *syncBuffer) Lines() []string {
	return strings.Split(strings.TrimSuffix(s.String(), "\n"), "\n")
}

type harness struct {
	fw    *Firmware
	cfg   *config.Config
	clock *hal.ManualClock
	pin   *hal.SimPin
	pwm   *hal.SimPWM
	reset *hal.SimReset
	in    *io.PipeWriter
	out   *syncBuffer
}

func newHarness(t *testing.T, mutate func(cfg *config.Config)) *harness {
	t.Helper()

	cfg := config.Default()
	cfg.Temperature.Min = 25
	cfg.Temperature.Max = 25
	cfg.Temperature.Seed = 1
	if mutate != nil {
		mutate(cfg)
	}

	h := &harness{
		cfg:   cfg,
		clock: &hal.ManualClock{},
		pin:   hal.NewSimPin(),
		pwm:   hal.NewSimPWM(cfg.PWM.Period),
		reset: hal.NewSimReset(nil),
		out:   &syncBuffer{},
	}
	p, err := hal.Init(hal.Board{
		LED:   h.pin,
		PWM:   h.pwm,
		ADC:   hal.ConstADC(2048),
		Reset: h.reset,
		Clock: h.clock,
	})
	require.NoError(t, err)

	r, w := io.Pipe()
	h.in = w
	port := struct {
		io.Reader
		io.Writer
	}{r, h.out}

	h.fw, err = New(cfg, p, port)
	require.NoError(t, err)

	t.Cleanup(func() {
		w.Close()
		h.fw.Close()
	})
	return h
}

func (h *harness) boot(t *testing.T) {
	t.Helper()
	h.fw.Boot(context.Background())
	h.flush(t)
}

func (h *harness) write(t *testing.T, s string) {
	t.Helper()
	_, err := h.in.Write([]byte(s))
	require.NoError(t, err)
}

func (h *harness) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, h.fw.Flush(ctx))
}

// command sends one line and runs the loop until it has been dispatched.
func (h *harness) command(t *testing.T, line string) string {
	t.Helper()
	before := len(h.out.String())
	h.write(t, line+"\n")
	require.Eventually(t, func() bool {
		return h.fw.State() == CommandPending
	}, time.Second, time.Millisecond)
	assert.Equal(t, Dispatching, h.fw.Step())
	h.flush(t)
	return h.out.String()[before:]
}

func TestBoot(t *testing.T) {
	h := newHarness(t, nil)
	h.boot(t)

	assert.Equal(t,
		`{"type":"startup","version":"1.0.0","features":["DMA","JSON","ADC","PWM"]}`+"\n",
		h.out.String())
	assert.Equal(t, 6, h.pin.Toggles(), "three startup blinks")
	assert.True(t, h.pin.Get(), "LED ends off")
	assert.Equal(t, uint32(600), h.clock.Millis())
	assert.Equal(t, uint32(0), h.pwm.Compare())
	assert.Equal(t, Idle, h.fw.Step())
}

func TestScenarios(t *testing.T) {
	h := newHarness(t, nil)
	h.boot(t)

	assert.Equal(t, `{"type":"response","data":{"temp":25.0}}`+"\n", h.command(t, `{"type":"cmd","command":"GET_TEMP"}`))
	assert.Equal(t, "OK: PWM=50%\n", h.command(t, "SET_PWM=50"))
	assert.Contains(t, h.command(t, `{"command":"STATUS"}`), `"pwm":50`)
	assert.Equal(t, "ERROR: Unknown command\n", h.command(t, "BOGUS"))
	assert.Equal(t, `{"type":"response","data":{"led":1}}`+"\n", h.command(t, `{"command":"SET_LED","params":{"state":1}}`))
	assert.Equal(t, "", h.command(t, `{"command":"SET_PWM","params":{"duty":150}}`))
	assert.Contains(t, h.command(t, "STATUS"), `"pwm":50,"led":1`)
	assert.Equal(t, "OK: LED OFF\n", h.command(t, "SET_LED=0"))
	assert.Contains(t, h.command(t, `{"command":"STATUS"}`), `"led":0`)
}

func TestBlankLineIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.boot(t)

	h.command(t, "SET_LED=1")
	assert.Equal(t, "", h.command(t, "   \t"))
	assert.Equal(t, "", h.command(t, "\t"))
	assert.Equal(t, "TEMP: 25.0°C\n", h.command(t, "GET_TEMP"))
}

func TestActivityRestoresLED(t *testing.T) {
	h := newHarness(t, nil)
	h.boot(t)

	// An odd number of received bytes leaves the activity toggle inverted.
	h.command(t, "STATUS")
	assert.True(t, h.pin.Get(), "LED back off")

	h.command(t, "SET_LED=1")
	h.command(t, "STATUS")
	assert.False(t, h.pin.Get(), "LED back on")
	assert.True(t, h.fw.Device().LED())
}

func TestHeartbeatOncePerInterval(t *testing.T) {
	h := newHarness(t, nil)
	h.boot(t)

	count := func() int {
		h.flush(t)
		return strings.Count(h.out.String(), `"type":"heartbeat"`)
	}

	h.clock.Advance(5 * time.Second)
	h.fw.Step()
	assert.Equal(t, 0, count(), "interval must be exceeded, not reached")

	h.clock.Advance(time.Millisecond)
	h.fw.Step()
	h.fw.Step()
	assert.Equal(t, 1, count())

	h.clock.Advance(5*time.Second + time.Millisecond)
	h.fw.Step()
	assert.Equal(t, 2, count())

	lines := h.out.Lines()
	assert.Equal(t, `{"type":"heartbeat","data":{"rx_chars":0,"temp":25.0,"pwm":0}}`, lines[len(lines)-1])
}

func TestHeartbeatInterval(t *testing.T) {
	h := newHarness(t, nil)
	h.boot(t)

	assert.Equal(t, `{"type":"response","data":{"heartbeat":1000}}`+"\n",
		h.command(t, `{"command":"SET_HEARTBEAT","params":{"interval":1000}}`))

	h.clock.Advance(1001 * time.Millisecond)
	h.fw.Step()
	h.flush(t)
	assert.Equal(t, 1, strings.Count(h.out.String(), `"type":"heartbeat"`))
}

func TestHeartbeatDisabled(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Heartbeat.Enabled = false
	})
	h.boot(t)

	h.clock.Advance(time.Minute)
	h.fw.Step()
	h.flush(t)
	assert.NotContains(t, h.out.String(), "heartbeat")
}

func TestRxCharsMonotonic(t *testing.T) {
	h := newHarness(t, nil)
	h.boot(t)

	var last uint32
	for i, line := range []string{"STATUS\n", "GET_TEMP\r\n", "\n\n", "X\n"} {
		h.write(t, line)
		want := last + uint32(len(line))
		require.Eventually(t, func() bool {
			return h.fw.Device().RxChars() == want
		}, time.Second, time.Millisecond, "line %d", i)
		last = want
	}
}

func TestOverflowRecovery(t *testing.T) {
	h := newHarness(t, nil)
	h.boot(t)

	h.write(t, strings.Repeat("A", 300)+"\nGET_TEMP\n")
	require.Eventually(t, func() bool {
		return h.fw.Framer().Mailbox().Seq() == 2
	}, time.Second, time.Millisecond)
	h.fw.Step()
	h.fw.Step()
	h.flush(t)

	lines := h.out.Lines()
	require.Len(t, lines, 3)
	assert.Equal(t, "ERROR: Unknown command", lines[1])
	assert.Equal(t, "TEMP: 25.0°C", lines[2])
	assert.Equal(t, uint32(1), h.fw.Framer().Overflows())
}

func TestADCRefresh(t *testing.T) {
	h := newHarness(t, nil)
	h.boot(t)

	require.Eventually(t, func() bool {
		raw, _ := h.fw.Device().ADC()
		return raw == 2048
	}, time.Second, time.Millisecond)

	assert.Equal(t, `{"type":"response","data":{"voltage":1.65,"adc_raw":2048}}`+"\n",
		h.command(t, `{"command":"GET_VOLTAGE"}`))
}

func TestUptime(t *testing.T) {
	h := newHarness(t, nil)
	h.boot(t)

	h.clock.Advance(12 * time.Second)
	h.fw.Step()
	assert.Equal(t, uint32(12), h.fw.Device().Snapshot().Uptime)
}

func TestTemperatureDrift(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Temperature.Min = 20
		cfg.Temperature.Max = 30
	})
	h.boot(t)

	for range 50 {
		h.clock.Advance(3001 * time.Millisecond)
		h.fw.Step()
		temp := h.fw.Device().Temperature()
		assert.GreaterOrEqual(t, temp, float32(20))
		assert.LessOrEqual(t, temp, float32(30))
	}
}

func TestRun_Reset(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Heartbeat.Enabled = false
	})

	errc := make(chan error, 1)
	go func() { errc <- h.fw.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		return strings.Contains(h.out.String(), "startup")
	}, time.Second, time.Millisecond)
	h.write(t, "RESET\n")

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrReset)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after RESET")
	}
	assert.Equal(t, 1, h.reset.Count())
	assert.True(t, strings.HasSuffix(h.out.String(), "OK: Resetting...\n"))
}

func TestRun_StopsWithContext(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Heartbeat.Enabled = false
	})

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- h.fw.Run(ctx) }()

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
	assert.Equal(t, 0, h.reset.Count())
}

func TestRun_ServesPendingOnEOF(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Heartbeat.Enabled = false
	})

	errc := make(chan error, 1)
	go func() { errc <- h.fw.Run(context.Background()) }()

	h.write(t, "GET_TEMP\n")
	h.in.Close()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop at end of input")
	}
	assert.Contains(t, h.out.String(), "TEMP: 25.0°C\n")
}

func TestRun_ResetAtEOF(t *testing.T) {
	h := newHarness(t, func(cfg *config.Config) {
		cfg.Heartbeat.Enabled = false
	})

	errc := make(chan error, 1)
	go func() { errc <- h.fw.Run(context.Background()) }()

	h.write(t, "RESET\n")
	h.in.Close()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrReset)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop at end of input")
	}
	assert.Equal(t, 1, h.reset.Count())
	assert.True(t, strings.HasSuffix(h.out.String(), "OK: Resetting...\n"))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "command-pending", CommandPending.String())
	assert.Equal(t, "dispatching", Dispatching.String())
}
