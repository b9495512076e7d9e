package logstream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Source is the agent side of the log pipeline.
type Source interface {
	TailLogs(ctx context.Context, n int) ([]string, error)
	StreamLogs(ctx context.Context, onLine func(string)) error
}

// Options configures an Adapter.
type Options struct {
	TailLines      int
	Reconnect      bool
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// OnReconnect, when set, runs each time a dropped stream is re-opened.
	OnReconnect func()
}

// Adapter feeds a Buffer from a Source and fans new lines out to subscribers.
type Adapter struct {
	src  Source
	buf  *Buffer
	opts Options
	log  *slog.Logger

	connected atomic.Bool
	streams   atomic.Int64

	mu   sync.Mutex
	subs map[chan string]struct{}
}

// NewAdapter wires src into buf.
func NewAdapter(src Source, buf *Buffer, opts Options) *Adapter {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = opts.InitialBackoff
	}
	return &Adapter{
		src:  src,
		buf:  buf,
		opts: opts,
		log:  slog.With("component", "LogStream"),
		subs: make(map[chan string]struct{}),
	}
}

// Start runs the adapter in the background until ctx ends.
func (a *Adapter) Start(ctx context.Context) {
	go func() {
		if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("log stream stopped", "error", err)
		}
	}()
}

// Run seeds the buffer once, then holds the subscription open. With
// Reconnect disabled a dropped stream is not re-opened.
func (a *Adapter) Run(ctx context.Context) error {
	a.seed(ctx)

	if !a.opts.Reconnect {
		return a.subscribe(ctx)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = a.opts.InitialBackoff
	b.MaxInterval = a.opts.MaxBackoff
	b.MaxElapsedTime = 0

	return backoff.RetryNotify(func() error {
		if a.streams.Load() > 0 && a.opts.OnReconnect != nil {
			a.opts.OnReconnect()
		}
		opened := time.Now()
		err := a.subscribe(ctx)
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		// a stream that stayed up longer than the max delay starts over from the initial delay
		if time.Since(opened) > a.opts.MaxBackoff {
			b.Reset()
		}
		if err == nil {
			err = errors.New("log stream ended")
		}
		return err
	}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
		a.log.Warn("log stream dropped, resubscribing", "error", err, "retry_in", wait.String())
	})
}

func (a *Adapter) seed(ctx context.Context) {
	if a.opts.TailLines <= 0 {
		return
	}
	lines, err := a.src.TailLogs(ctx, a.opts.TailLines)
	if err != nil {
		a.log.Warn("log tail unavailable", "error", err)
		return
	}
	for _, line := range lines {
		a.append(line)
	}
	a.log.Debug("log buffer seeded", "lines", len(lines))
}

func (a *Adapter) subscribe(ctx context.Context) error {
	a.streams.Add(1)
	a.connected.Store(true)
	defer a.connected.Store(false)
	return a.src.StreamLogs(ctx, a.append)
}

func (a *Adapter) append(line string) {
	if line == "" {
		return
	}
	a.buf.Append(line)

	a.mu.Lock()
	defer a.mu.Unlock()
	for ch := range a.subs {
		select {
		case ch <- line:
		default:
			// slow subscriber; the ring still has the line
		}
	}
}

// Lines returns the buffered lines, oldest first.
func (a *Adapter) Lines() []string { return a.buf.Lines() }

// Clear empties the buffer. The subscription is left untouched.
func (a *Adapter) Clear() { a.buf.Clear() }

// Connected reports whether the live stream is currently open.
func (a *Adapter) Connected() bool { return a.connected.Load() }

// Subscribe returns a channel of lines appended from now on, and a function
// that releases it.
func (a *Adapter) Subscribe() (<-chan string, func()) {
	ch := make(chan string, 64)
	a.mu.Lock()
	a.subs[ch] = struct{}{}
	a.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.mu.Lock()
			delete(a.subs, ch)
			close(ch)
			a.mu.Unlock()
		})
	}
}
