package v1

import (
	"context"
	"slices"
	"sync"
	"time"

	pkgzerolog "github.com/duynhne/event-gate/pkg/logger/zerolog"
)

// NavigationEvent names the view a client should move to.
type NavigationEvent struct {
	ClientID string    `json:"client_id"`
	View     string    `json:"view"`
	Reason   string    `json:"reason"`
	At       time.Time `json:"at"`
}

// Navigator receives fire-and-forget navigation events.
type Navigator interface {
	Navigate(ctx context.Context, ev NavigationEvent)
}

// NavigationCapture records the last navigation event of one request.
type NavigationCapture struct {
	mu   sync.Mutex
	last *NavigationEvent
}

// Destination returns the last captured view, or "".
func (c *NavigationCapture) Destination() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return ""
	}
	return c.last.View
}

func (c *NavigationCapture) record(ev NavigationEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = &ev
}

type captureKey struct{}

// CaptureNavigation returns a context whose navigation events are recorded
// into the returned capture.
func CaptureNavigation(ctx context.Context) (context.Context, *NavigationCapture) {
	c := &NavigationCapture{}
	return context.WithValue(ctx, captureKey{}, c), c
}

// NavigationBus delivers events to subscribers on a background goroutine
// and records them into any capture attached to the context. Publishing
// never blocks: when the buffer is full the event is dropped.
type NavigationBus struct {
	events chan NavigationEvent

	mu   sync.RWMutex
	subs []func(NavigationEvent)

	done chan struct{}
	once sync.Once
}

// NewNavigationBus starts a bus with the given buffer size.
func NewNavigationBus(buffer int) *NavigationBus {
	if buffer <= 0 {
		buffer = 64
	}
	b := &NavigationBus{
		events: make(chan NavigationEvent, buffer),
		done:   make(chan struct{}),
	}
	go b.run()
	return b
}

// Subscribe registers fn for every later event. fn runs on the bus goroutine.
func (b *NavigationBus) Subscribe(fn func(NavigationEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

// Navigate publishes ev.
func (b *NavigationBus) Navigate(ctx context.Context, ev NavigationEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if c, ok := ctx.Value(captureKey{}).(*NavigationCapture); ok {
		c.record(ev)
	}

	select {
	case <-b.done:
		navigationEvents.WithLabelValues("closed").Inc()
		return
	default:
	}

	select {
	case b.events <- ev:
		navigationEvents.WithLabelValues("queued").Inc()
	default:
		navigationEvents.WithLabelValues("dropped").Inc()
		pkgzerolog.FromContext(ctx).Warn().
			Str("view", ev.View).
			Str("reason", ev.Reason).
			Msg("Navigation event dropped, bus buffer full")
	}
}

// Close stops delivery. Events still buffered are discarded.
func (b *NavigationBus) Close() {
	b.once.Do(func() { close(b.done) })
}

func (b *NavigationBus) run() {
	for {
		select {
		case <-b.done:
			return
		case ev := <-b.events:
			b.mu.RLock()
			subs := slices.Clone(b.subs)
			b.mu.RUnlock()
			for _, fn := range subs {
				fn(ev)
			}
		}
	}
}
