package link

import (
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog/log"
)

// Relay reads a port on one long-lived goroutine and forwards the bytes to
// whichever reader is currently attached. A restarted firmware attaches a
// fresh reader; bytes arriving while nothing is attached are dropped, as
// they would be by a rebooting device.
type Relay struct {
	src io.Reader

	mu  sync.Mutex
	dst *io.PipeWriter

	once sync.Once
	done chan struct{}
	err  error
}

func NewRelay(src io.Reader) *Relay {
	return &Relay{src: src, done: make(chan struct{})}
}

// Attach returns a reader receiving everything read from now on. The
// previously attached reader sees io.EOF.
func (r *Relay) Attach() io.ReadCloser {
	r.once.Do(func() { go r.run() })

	pr, pw := io.Pipe()

	r.mu.Lock()
	if r.dst != nil {
		r.dst.Close()
	}
	select {
	case <-r.done:
		pw.CloseWithError(r.finalErr())
	default:
		r.dst = pw
	}
	r.mu.Unlock()

	return pr
}

// Done is closed when the source is exhausted or failed.
func (r *Relay) Done() <-chan struct{} { return r.done }

// Err returns the error that ended the source, nil on EOF.
func (r *Relay) Err() error {
	<-r.done
	return r.err
}

func (r *Relay) finalErr() error {
	if r.err != nil {
		return r.err
	}
	return io.EOF
}

func (r *Relay) run() {
	buf := make([]byte, 256)
	for {
		n, err := r.src.Read(buf)
		if n > 0 {
			r.forward(buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.err = err
				log.Error().Err(err).Msg("link relay read failed")
			}
			r.mu.Lock()
			close(r.done)
			if r.dst != nil {
				r.dst.CloseWithError(r.finalErr())
				r.dst = nil
			}
			r.mu.Unlock()
			return
		}
	}
}

func (r *Relay) forward(p []byte) {
	r.mu.Lock()
	dst := r.dst
	r.mu.Unlock()
	if dst == nil {
		return
	}
	if _, err := dst.Write(p); err != nil {
		log.Debug().Err(err).Int("bytes", len(p)).Msg("link relay dropped bytes")
	}
}
