package uart

import (
	"sync"
	"sync/atomic"
)

// Mailbox hands completed command lines from the receive context to the
// main loop. It holds at most Cap lines; lines arriving when it is full are
// dropped and counted.
type Mailbox struct {
	mu      sync.Mutex
	lines   []string
	cap     int
	seq     uint32
	dropped uint32
}

func NewMailbox(capacity int) *Mailbox {
	if capacity <= 0 {
		capacity = 1
	}
	return &Mailbox{cap: capacity}
}

// Post publishes a line. It reports false if the line was dropped.
func (m *Mailbox) Post(line string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.lines) >= m.cap {
		m.dropped++
		return false
	}
	m.lines = append(m.lines, line)
	m.seq++
	return true
}

// Ready reports whether a command is pending.
func (m *Mailbox) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lines) > 0
}

// Take removes and returns the oldest pending line.
func (m *Mailbox) Take() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.lines) == 0 {
		return "", false
	}
	line := m.lines[0]
	m.lines = m.lines[1:]
	return line, true
}

// Seq returns the number of lines posted so far.
func (m *Mailbox) Seq() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.seq
}

// Dropped returns the number of lines lost to a full mailbox.
func (m *Mailbox) Dropped() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// Framer accumulates received bytes into newline-terminated command lines.
// OnReceive must not be called concurrently with itself.
type Framer struct {
	acc      []byte
	n        int
	mbox     *Mailbox
	count    func(n uint32)
	activity func()
	overflow atomic.Uint32
}

// FramerConfig wires the framer to its collaborators. Count and Activity are optional.
type FramerConfig struct {
	Capacity int      // Command buffer size, including the terminator slot
	Mailbox  *Mailbox // Destination of completed lines
	Count    func(n uint32)
	Activity func()
}

func NewFramer(cfg FramerConfig) *Framer {
	if cfg.Capacity < 2 {
		cfg.Capacity = 2
	}
	if cfg.Mailbox == nil {
		cfg.Mailbox = NewMailbox(1)
	}
	return &Framer{
		acc:      make([]byte, cfg.Capacity),
		mbox:     cfg.Mailbox,
		count:    cfg.Count,
		activity: cfg.Activity,
	}
}

// OnReceive is the receive-complete callback: it drains the ring up to the
// hardware write cursor and frames every byte.
func (f *Framer) OnReceive(r *Ring) {
	r.Drain(f.Feed)
}

// Feed frames a single byte.
func (f *Framer) Feed(c byte) {
	if f.count != nil {
		f.count(1)
	}
	if f.activity != nil {
		f.activity()
	}

	switch {
	case c == '\n' || c == '\r':
		if f.n > 0 {
			f.mbox.Post(string(f.acc[:f.n]))
			// The mailbox owns the copy; the accumulator is free again.
			f.n = 0
		}
	case f.n < len(f.acc)-1:
		f.acc[f.n] = c
		f.n++
	default:
		// Line too long: discard what was accumulated, including this byte.
		f.n = 0
		f.overflow.Add(1)
	}
}

// Pending returns the number of bytes of the partial line.
func (f *Framer) Pending() int { return f.n }

// Overflows returns how many times the accumulator was discarded.
func (f *Framer) Overflows() uint32 { return f.overflow.Load() }

func (f *Framer) Mailbox() *Mailbox { return f.mbox }
