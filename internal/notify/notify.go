// Package notify holds the transient outcome toast shown after an action.
// A new toast replaces the current one; there is no queue.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long a toast stays visible.
const DefaultTTL = 2200 * time.Millisecond

// Toast is one outcome message.
type Toast struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	OK        bool      `json:"ok"`
	ShownAt   time.Time `json:"shownAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Notifier owns the single visible toast.
type Notifier struct {
	ttl time.Duration
	log *slog.Logger
	now func() time.Time

	mu      sync.Mutex
	current *Toast
	timer   *time.Timer
	subs    map[chan Toast]struct{}
}

// New creates a Notifier whose toasts dismiss after ttl.
func New(ttl time.Duration) *Notifier {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Notifier{
		ttl:  ttl,
		log:  slog.With("component", "Notifier"),
		now:  time.Now,
		subs: make(map[chan Toast]struct{}),
	}
}

// Notify shows message, replacing any visible toast, and schedules its dismissal.
func (n *Notifier) Notify(message string, ok bool) Toast {
	shown := n.now()
	t := Toast{
		ID:        uuid.NewString(),
		Message:   message,
		OK:        ok,
		ShownAt:   shown,
		ExpiresAt: shown.Add(n.ttl),
	}

	n.mu.Lock()
	if n.timer != nil {
		n.timer.Stop()
	}
	n.current = &t
	id := t.ID
	n.timer = time.AfterFunc(n.ttl, func() { n.dismiss(id) })
	for ch := range n.subs {
		select {
		case ch <- t:
		default:
		}
	}
	n.mu.Unlock()

	if ok {
		n.log.Info("toast", "message", message)
	} else {
		n.log.Warn("toast", "message", message)
	}
	return t
}

// dismiss clears the toast only if it is still the one identified by id.
func (n *Notifier) dismiss(id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current != nil && n.current.ID == id {
		n.current = nil
		n.timer = nil
	}
}

// Current returns the visible toast, if any.
func (n *Notifier) Current() (Toast, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current == nil || !n.now().Before(n.current.ExpiresAt) {
		return Toast{}, false
	}
	return *n.current, true
}

// Subscribe delivers every future toast until the returned func is called.
func (n *Notifier) Subscribe() (<-chan Toast, func()) {
	ch := make(chan Toast, 8)
	n.mu.Lock()
	n.subs[ch] = struct{}{}
	n.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.subs, ch)
			close(ch)
			n.mu.Unlock()
		})
	}
}
