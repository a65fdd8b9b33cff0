// Package interp decodes command lines and applies them to the device.
package interp

import (
	"sort"

	"github.com/itohio/golink/pkg/device"
	"github.com/itohio/golink/pkg/hal"
	"github.com/itohio/golink/pkg/protocol"
	"github.com/itohio/golink/pkg/pwm"
	"github.com/itohio/golink/pkg/telemetry"
)

// Kind classifies what the caller must do after a command ran.
type Kind int

const (
	// KindReply: send Reply.
	KindReply Kind = iota
	// KindNoReply: nothing is sent; Reason says why.
	KindNoReply
	// KindReset: send Reply, then restart the system.
	KindReset
)

func (k Kind) String() string {
	switch k {
	case KindReply:
		return "reply"
	case KindNoReply:
		return "no-reply"
	case KindReset:
		return "reset"
	}
	return "unknown"
}

// Reason explains a KindNoReply outcome.
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonMissingParam Reason = "missing parameter"
	ReasonOutOfRange   Reason = "out of range"
	ReasonEmptyLine    Reason = "empty line"
)

// Outcome is the result of one command line.
type Outcome struct {
	Kind    Kind
	Reply   string
	Reason  Reason
	Command string
	Form    protocol.Form
}

func reply(cmd protocol.Command, msg string) Outcome {
	return Outcome{Kind: KindReply, Reply: msg, Command: cmd.Name, Form: cmd.Form}
}

func noReply(cmd protocol.Command, why Reason) Outcome {
	return Outcome{Kind: KindNoReply, Reason: why, Command: cmd.Name, Form: cmd.Form}
}

// Handler runs one command.
type Handler func(cmd protocol.Command) Outcome

// Entry describes where a command is accepted.
type Entry struct {
	Name       string
	Structured bool // Accepted as {"command":Name}
	Legacy     bool // Accepted as bare Name
	LegacyArg  bool // Accepted as Name=value
	Handler    Handler
}

// Interpreter owns the dispatch table and the effects of each command.
type Interpreter struct {
	state     *device.State
	led       *hal.LED
	pwm       *pwm.Output
	heartbeat *telemetry.Heartbeat

	table map[string]Entry
}

// New creates an interpreter with the standard command set.
func New(st *device.State, led *hal.LED, out *pwm.Output, hb *telemetry.Heartbeat) *Interpreter {
	in := &Interpreter{
		state:     st,
		led:       led,
		pwm:       out,
		heartbeat: hb,
		table:     make(map[string]Entry),
	}

	in.Register(Entry{Name: "GET_TEMP", Structured: true, Legacy: true, Handler: in.getTemp})
	in.Register(Entry{Name: "GET_VOLTAGE", Structured: true, Legacy: true, Handler: in.getVoltage})
	in.Register(Entry{Name: "STATUS", Structured: true, Legacy: true, Handler: in.status})
	in.Register(Entry{Name: "SET_LED", Structured: true, LegacyArg: true, Handler: in.setLED})
	in.Register(Entry{Name: "SET_PWM", Structured: true, LegacyArg: true, Handler: in.setPWM})
	in.Register(Entry{Name: "RESET", Structured: true, Legacy: true, Handler: in.reset})
	in.Register(Entry{Name: "SET_HEARTBEAT", Structured: true, Handler: in.setHeartbeat})

	return in
}

// Register adds or replaces a command.
func (in *Interpreter) Register(e Entry) {
	in.table[e.Name] = e
}

// Commands returns the registered command names, sorted.
func (in *Interpreter) Commands() []string {
	names := make([]string, 0, len(in.table))
	for name := range in.table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute trims, parses and dispatches one line. A line that trims to
// nothing is not a command and gets no reply.
func (in *Interpreter) Execute(line string) Outcome {
	line = protocol.Trim(line)
	if line == "" {
		return Outcome{Kind: KindNoReply, Reason: ReasonEmptyLine}
	}
	return in.Dispatch(protocol.Parse(line))
}

// Dispatch runs a parsed command.
func (in *Interpreter) Dispatch(cmd protocol.Command) Outcome {
	e, ok := in.table[cmd.Name]
	if ok {
		switch {
		case cmd.Form == protocol.Structured && e.Structured,
			cmd.Form == protocol.Legacy && !cmd.HasArg && e.Legacy,
			cmd.Form == protocol.Legacy && cmd.HasArg && e.LegacyArg:
			return e.Handler(cmd)
		}
	}
	return in.unknown(cmd)
}

func (in *Interpreter) unknown(cmd protocol.Command) Outcome {
	if cmd.Form == protocol.Structured {
		return reply(cmd, protocol.Error(protocol.MsgUnknownCommand))
	}
	return reply(cmd, protocol.LegacyError(protocol.MsgUnknownCommand))
}

func (in *Interpreter) getTemp(cmd protocol.Command) Outcome {
	t := in.state.Temperature()
	if cmd.Form == protocol.Structured {
		return reply(cmd, protocol.TempResponse(t))
	}
	return reply(cmd, protocol.LegacyTemp(t))
}

func (in *Interpreter) getVoltage(cmd protocol.Command) Outcome {
	raw, volts := in.state.ADC()
	if cmd.Form == protocol.Structured {
		return reply(cmd, protocol.VoltageResponse(volts, raw))
	}
	return reply(cmd, protocol.LegacyVoltage(volts, raw))
}

// status always answers in structured form.
func (in *Interpreter) status(cmd protocol.Command) Outcome {
	return reply(cmd, protocol.StatusResponse(in.state.Snapshot()))
}

// setLED turns the LED on for state 1 and off for anything else, including
// a missing state.
func (in *Interpreter) setLED(cmd protocol.Command) Outcome {
	var v int
	if cmd.Form == protocol.Structured {
		v, _ = protocol.IntField(cmd.Params, "state")
	} else {
		v = protocol.Atoi(cmd.Value)
	}
	on := v == 1

	in.led.Set(on)
	in.state.SetLED(on)

	if cmd.Form == protocol.Structured {
		return reply(cmd, protocol.LEDResponse(on))
	}
	return reply(cmd, protocol.LegacyLED(on))
}

func (in *Interpreter) setPWM(cmd protocol.Command) Outcome {
	var duty int
	if cmd.Form == protocol.Structured {
		v, err := protocol.IntField(cmd.Params, "duty")
		if err != nil {
			return noReply(cmd, ReasonMissingParam)
		}
		duty = v
	} else {
		duty = protocol.Atoi(cmd.Value)
	}
	if duty < 0 || duty > 100 {
		return noReply(cmd, ReasonOutOfRange)
	}

	applied := in.pwm.Set(duty)
	in.state.SetPWMDuty(applied)

	if cmd.Form == protocol.Structured {
		return reply(cmd, protocol.PWMResponse(int(applied)))
	}
	return reply(cmd, protocol.LegacyPWM(int(applied)))
}

func (in *Interpreter) setHeartbeat(cmd protocol.Command) Outcome {
	v, err := protocol.IntField(cmd.Params, "interval")
	if err != nil {
		return noReply(cmd, ReasonMissingParam)
	}
	if v < 0 {
		return noReply(cmd, ReasonOutOfRange)
	}
	in.heartbeat.SetInterval(uint32(v))
	return reply(cmd, protocol.HeartbeatIntervalResponse(uint32(v)))
}

func (in *Interpreter) reset(cmd protocol.Command) Outcome {
	out := Outcome{Kind: KindReset, Command: cmd.Name, Form: cmd.Form}
	if cmd.Form == protocol.Structured {
		out.Reply = protocol.ResettingResponse()
	} else {
		out.Reply = protocol.LegacyResetting()
	}
	return out
}
