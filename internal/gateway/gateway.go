// Package gateway relays world events outward to chat platforms. The
// relay is one-way: spectators watch the simulation from Discord or
// Slack, they do not steer it.
package gateway

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/nidhogg/curia/internal/event"
)

// Message is a rendered world event ready for a chat platform.
type Message struct {
	AgentID string
	Kind    string
	Text    string
}

// Adapter posts rendered messages to one platform.
type Adapter interface {
	Platform() string
	Connect(ctx context.Context) error
	Post(ctx context.Context, msg Message) error
	Close() error
}

// Relay subscribes to the event bus and fans matching events out to all
// connected adapters. Posting happens off the dispatch goroutine so a
// slow platform never stalls the simulation.
type Relay struct {
	adapters map[string]Adapter
	kinds    map[string]bool
	queue    chan Message
	wg       sync.WaitGroup
	stopOnce sync.Once
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewRelay creates a relay that forwards the given event kinds; an empty
// list forwards everything.
func NewRelay(kinds []string, logger *zap.Logger) *Relay {
	r := &Relay{
		adapters: make(map[string]Adapter),
		kinds:    make(map[string]bool, len(kinds)),
		queue:    make(chan Message, 128),
		logger:   logger,
	}
	for _, k := range kinds {
		r.kinds[k] = true
	}
	return r
}

// Register adds an adapter.
func (r *Relay) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Platform()] = a
	r.logger.Info("registered gateway adapter", zap.String("platform", a.Platform()))
}

// Adapters returns the registered platform names.
func (r *Relay) Adapters() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for p := range r.adapters {
		names = append(names, p)
	}
	return names
}

// Start connects all adapters and begins draining the post queue. The
// relay keeps running with whichever adapters connected; a platform that
// fails to connect is dropped with a warning.
func (r *Relay) Start(ctx context.Context) error {
	r.mu.Lock()
	for platform, a := range r.adapters {
		if err := a.Connect(ctx); err != nil {
			r.logger.Warn("gateway adapter connect failed, dropping",
				zap.String("platform", platform), zap.Error(err))
			delete(r.adapters, platform)
		}
	}
	connected := len(r.adapters)
	r.mu.Unlock()

	if connected == 0 {
		return fmt.Errorf("no gateway adapters connected")
	}

	r.wg.Add(1)
	go r.drain(ctx)
	return nil
}

func (r *Relay) drain(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-r.queue:
			if !ok {
				return
			}
			r.post(ctx, msg)
		}
	}
}

func (r *Relay) post(ctx context.Context, msg Message) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for platform, a := range r.adapters {
		if err := a.Post(ctx, msg); err != nil {
			r.logger.Warn("gateway post failed",
				zap.String("platform", platform),
				zap.String("kind", msg.Kind),
				zap.Error(err))
		}
	}
}

// Bind subscribes the relay to the bus at low priority so domain
// handlers observe events first.
func (r *Relay) Bind(bus *event.Bus) {
	bus.SubscribeAll(event.HandlerFunc{ID: "gateway-relay", Fn: r.observe}, -100)
}

func (r *Relay) observe(e event.Event) {
	if len(r.kinds) > 0 && !r.kinds[e.Kind] {
		return
	}
	msg := Message{AgentID: e.Source, Kind: e.Kind, Text: Render(e)}
	select {
	case r.queue <- msg:
	default:
		r.logger.Warn("gateway queue full, dropping event", zap.String("kind", e.Kind))
	}
}

// Render formats an event for a chat audience: the payload text when
// present, otherwise a terse kind/source line.
func Render(e event.Event) string {
	if text := e.String("text"); text != "" {
		return text
	}
	if e.Target != "" {
		return fmt.Sprintf("%s: %s -> %s", e.Kind, e.Source, e.Target)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Source)
}

// Stop closes the queue and waits for in-flight posts, then closes the
// adapters.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() {
		close(r.queue)
		r.wg.Wait()
		r.mu.Lock()
		defer r.mu.Unlock()
		for platform, a := range r.adapters {
			if err := a.Close(); err != nil {
				r.logger.Warn("gateway adapter close failed",
					zap.String("platform", platform), zap.Error(err))
			}
		}
	})
}
