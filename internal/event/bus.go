package event

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handler receives dispatched events. Name identifies the handler for
// unsubscription and error logs.
type Handler interface {
	Name() string
	HandleEvent(Event)
}

// HandlerFunc adapts a plain function into a named Handler.
type HandlerFunc struct {
	ID string
	Fn func(Event)
}

func (h HandlerFunc) Name() string       { return h.ID }
func (h HandlerFunc) HandleEvent(e Event) { h.Fn(e) }

// FilterFunc decides whether an event is accepted for dispatch.
type FilterFunc func(Event) bool

// Metrics counts bus activity.
type Metrics struct {
	Published     uint64 `json:"published"`
	Filtered      uint64 `json:"filtered"`
	Delivered     uint64 `json:"delivered"`
	HandlerErrors uint64 `json:"handler_errors"`
}

// subscription pairs a handler with its priority and registration order.
type subscription struct {
	handler  Handler
	priority int
	seq      uint64
}

// Options configures bus construction.
type Options struct {
	Async     bool
	QueueSize int // pending event capacity in async mode
	BatchSize int // max events drained per worker cycle
}

const (
	defaultQueueSize = 256
	defaultBatchSize = 16
)

// Bus is the central pub/sub dispatcher: kind-keyed and wildcard
// subscriptions, priority ordering, a filter chain, and an optional
// background worker that drains published events in batches.
type Bus struct {
	mu        sync.Mutex
	handlers  map[string][]subscription
	wildcards []subscription
	filters   map[string]FilterFunc
	cache     map[string][]subscription
	seq       uint64
	metrics   Metrics

	async   bool
	batch   int
	queue   chan Event
	quit    chan struct{}
	wg      sync.WaitGroup
	stopped bool

	logger *zap.Logger
}

// NewBus creates a synchronous bus.
func NewBus(logger *zap.Logger) *Bus {
	return NewBusWithOptions(Options{}, logger)
}

// NewBusWithOptions creates a bus; with Async set, a single worker
// goroutine drains the queue until Stop is called.
func NewBusWithOptions(opts Options, logger *zap.Logger) *Bus {
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	b := &Bus{
		handlers: make(map[string][]subscription),
		filters:  make(map[string]FilterFunc),
		cache:    make(map[string][]subscription),
		async:    opts.Async,
		batch:    opts.BatchSize,
		logger:   logger,
	}
	if b.async {
		b.queue = make(chan Event, opts.QueueSize)
		b.quit = make(chan struct{})
		b.wg.Add(1)
		go b.worker()
	}
	return b
}

// Subscribe registers a handler for one event kind. Re-subscribing the
// same handler name to the same kind is a no-op.
func (b *Bus) Subscribe(kind string, h Handler, priority int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.handlers[kind] {
		if sub.handler.Name() == h.Name() {
			return
		}
	}
	b.seq++
	b.handlers[kind] = append(b.handlers[kind], subscription{h, priority, b.seq})
	delete(b.cache, kind)
}

// SubscribeAll registers a wildcard handler invoked for every event.
func (b *Bus) SubscribeAll(h Handler, priority int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.wildcards {
		if sub.handler.Name() == h.Name() {
			return
		}
	}
	b.seq++
	b.wildcards = append(b.wildcards, subscription{h, priority, b.seq})
	// Wildcards appear in every kind's handler list.
	b.cache = make(map[string][]subscription)
}

// Unsubscribe removes a kind-specific registration. Absent handlers are
// a no-op.
func (b *Bus) Unsubscribe(kind string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.handlers[kind]
	for i, sub := range subs {
		if sub.handler.Name() == h.Name() {
			b.handlers[kind] = append(subs[:i:i], subs[i+1:]...)
			delete(b.cache, kind)
			return
		}
	}
}

// UnsubscribeAll removes a wildcard registration.
func (b *Bus) UnsubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.wildcards {
		if sub.handler.Name() == h.Name() {
			b.wildcards = append(b.wildcards[:i:i], b.wildcards[i+1:]...)
			b.cache = make(map[string][]subscription)
			return
		}
	}
}

// AddFilter installs a named filter. An event is dropped before dispatch
// if any filter returns false.
func (b *Bus) AddFilter(name string, fn FilterFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filters[name] = fn
}

// RemoveFilter removes a filter by name.
func (b *Bus) RemoveFilter(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.filters, name)
}

// Handlers returns the handlers that would see an event of the given
// kind, sorted by descending priority with registration order breaking
// ties.
func (b *Bus) Handlers(kind string) []Handler {
	b.mu.Lock()
	subs := b.orderedLocked(kind)
	b.mu.Unlock()

	out := make([]Handler, len(subs))
	for i, sub := range subs {
		out[i] = sub.handler
	}
	return out
}

// orderedLocked returns the cached priority-sorted union of kind-specific
// and wildcard subscriptions. Caller holds b.mu.
func (b *Bus) orderedLocked(kind string) []subscription {
	if cached, ok := b.cache[kind]; ok {
		return cached
	}
	merged := make([]subscription, 0, len(b.handlers[kind])+len(b.wildcards))
	merged = append(merged, b.handlers[kind]...)
	merged = append(merged, b.wildcards...)
	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].priority != merged[j].priority {
			return merged[i].priority > merged[j].priority
		}
		return merged[i].seq < merged[j].seq
	})
	b.cache[kind] = merged
	return merged
}

// Publish accepts an event for dispatch and returns whether it passed
// the filter chain. Synchronous buses dispatch before returning; async
// buses enqueue and return immediately, blocking only when the queue is
// full.
func (b *Bus) Publish(e Event) bool {
	b.mu.Lock()
	if e.Kind == "" {
		b.mu.Unlock()
		b.logger.Warn("dropping event with empty kind", zap.String("id", e.ID))
		return false
	}
	for name, fn := range b.filters {
		if !fn(e) {
			b.metrics.Filtered++
			b.mu.Unlock()
			b.logger.Debug("event filtered",
				zap.String("kind", e.Kind),
				zap.String("filter", name))
			return false
		}
	}
	b.metrics.Published++
	async := b.async && !b.stopped
	b.mu.Unlock()

	if async {
		select {
		case b.queue <- e:
		default:
			// Queue full: block the publisher rather than drop, so the
			// per-kind FIFO ordering guarantee holds under overload.
			b.logger.Warn("event queue full, publisher blocked",
				zap.String("kind", e.Kind))
			b.queue <- e
		}
		return true
	}

	b.dispatch(e)
	return true
}

// dispatch invokes every handler for the event in priority order. A
// panicking handler is logged and counted; remaining handlers still run.
func (b *Bus) dispatch(e Event) {
	b.mu.Lock()
	subs := b.orderedLocked(e.Kind)
	b.mu.Unlock()

	for _, sub := range subs {
		b.invoke(sub.handler, e)
	}
}

func (b *Bus) invoke(h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.mu.Lock()
			b.metrics.HandlerErrors++
			b.mu.Unlock()
			b.logger.Error("event handler panicked",
				zap.String("handler", h.Name()),
				zap.String("kind", e.Kind),
				zap.Any("panic", r))
		}
	}()
	h.HandleEvent(e)
	b.mu.Lock()
	b.metrics.Delivered++
	b.mu.Unlock()
}

// worker drains the queue in batches until quit is closed.
func (b *Bus) worker() {
	defer b.wg.Done()
	for {
		select {
		case <-b.quit:
			return
		case e := <-b.queue:
			b.dispatch(e)
			// Drain up to batch-1 more without blocking.
			for i := 1; i < b.batch; i++ {
				select {
				case next := <-b.queue:
					b.dispatch(next)
				default:
					i = b.batch
				}
			}
		}
	}
}

// Stop halts the async worker and drains any remaining queued events on
// the caller's goroutine. Safe to call on a synchronous bus and safe to
// call more than once.
func (b *Bus) Stop() {
	b.mu.Lock()
	if !b.async || b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	b.mu.Unlock()

	close(b.quit)
	b.wg.Wait()

	for {
		select {
		case e := <-b.queue:
			b.dispatch(e)
		default:
			b.logger.Debug("event bus stopped")
			return
		}
	}
}

// Metrics returns a snapshot of the bus counters.
func (b *Bus) Metrics() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.metrics
}

// Pending returns the number of queued events (async mode only).
func (b *Bus) Pending() int {
	if b.queue == nil {
		return 0
	}
	return len(b.queue)
}

// waitIdle blocks until the queue is empty or the timeout elapses.
// Test helper for async assertions.
func (b *Bus) waitIdle(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if b.Pending() == 0 {
			return true
		}
		time.Sleep(time.Millisecond)
	}
	return false
}
