package world

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Listener receives simulation tick events.
type Listener interface {
	OnTick(worldTime time.Time)
}

// Clock drives the simulation with a configurable tick interval and
// time-speed multiplier. Listeners run sequentially on the tick
// goroutine, so one tick is fully processed before the next begins.
type Clock struct {
	speed     float64 // world-time multiplier, 1.0 = realtime
	interval  time.Duration
	listeners []Listener
	worldTime time.Time
	mu        sync.RWMutex
	cancel    context.CancelFunc
	logger    *zap.Logger
}

// NewClock creates a clock with the given tick interval and speed.
func NewClock(interval time.Duration, speed float64, logger *zap.Logger) *Clock {
	return &Clock{
		speed:     speed,
		interval:  interval,
		worldTime: time.Now(),
		logger:    logger,
	}
}

// AddListener registers a tick listener.
func (c *Clock) AddListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// WorldTime returns the current simulated time.
func (c *Clock) WorldTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.worldTime
}

// SetSpeed changes the time multiplier.
func (c *Clock) SetSpeed(speed float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speed = speed
}

// Start begins the tick loop in a background goroutine.
func (c *Clock) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.loop(ctx)
	c.logger.Info("world clock started",
		zap.Duration("interval", c.interval),
		zap.Float64("speed", c.speed))
}

// Stop halts the tick loop.
func (c *Clock) Stop() {
	if c.cancel != nil {
		c.cancel()
		c.logger.Info("world clock stopped")
	}
}

// Advance steps the world forward by d and fires listeners once.
// Drivers that want deterministic, manually paced runs use this instead
// of Start.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.worldTime = c.worldTime.Add(d)
	wt := c.worldTime
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, l := range listeners {
		l.OnTick(wt)
	}
}

func (c *Clock) loop(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Advance(time.Duration(float64(c.interval) * c.speed))
		}
	}
}
