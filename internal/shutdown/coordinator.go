// Package shutdown is the single authoritative source for "should I
// stop?" across the process: ordered component/thread cleanup, a
// heartbeat ring buffer, and an optional heartbeat-timeout monitor. Every
// registered component also gets a health check in an embedded
// health.HealthManager, polled by the heartbeat monitor alongside
// liveness. Grounded on internal/bootstrap/app.go's errgroup/signal
// pattern.
package shutdown

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Strauch27/trading-bot-professional-sub000/internal/core"
	"github.com/Strauch27/trading-bot-professional-sub000/internal/infrastructure/health"
)

// Stoppable is a component handle; Coordinator calls whichever of these
// methods it implements, preferring Stop, then Shutdown, then Close.
type Stoppable interface {
	Stop() error
}

type shutdownable interface {
	Shutdown() error
}

type closeable interface {
	Close() error
}

// Request carries the reason a shutdown was asked for.
type Request struct {
	Reason    string
	Initiator string
	Message   string
	Emergency bool
}

type beat struct {
	ts    time.Time
	label string
}

const beatRingSize = 200

// Coordinator is the process-wide shutdown authority.
type Coordinator struct {
	log    core.ILogger
	health *health.HealthManager

	mu         sync.Mutex // guards everything below except the lock-free flag
	components []namedComponent
	threads    []chan struct{} // closed when the registered goroutine exits
	callbacks  []func()
	beats      []beat
	firstReq   *Request
	requestCount int

	requested int32 // atomic; lock-free flag signal handlers may set directly

	shutdownCh chan struct{}
	closeOnce  sync.Once

	compErrMu sync.RWMutex
	compErr   map[string]error // last stop error per registered component, nil once cleanly stopped
}

type namedComponent struct {
	name   string
	handle interface{}
}

func New(log core.ILogger) *Coordinator {
	return &Coordinator{
		log:        log.WithField("component", "shutdown_coordinator"),
		health:     health.NewHealthManager(log),
		shutdownCh: make(chan struct{}),
		compErr:    make(map[string]error),
	}
}

// RegisterComponent records a handle to stop during ordered cleanup, and
// registers a health check for it: unhealthy means the component's last
// stop attempt returned an error. The handle must implement Stop(),
// Shutdown(), or Close().
func (c *Coordinator) RegisterComponent(name string, handle interface{}) {
	c.mu.Lock()
	c.components = append(c.components, namedComponent{name: name, handle: handle})
	c.mu.Unlock()

	c.compErrMu.Lock()
	c.compErr[name] = nil
	c.compErrMu.Unlock()

	c.health.Register(name, func() error {
		c.compErrMu.RLock()
		defer c.compErrMu.RUnlock()
		return c.compErr[name]
	})
}

// HealthStatus reports the current health of every registered component,
// as surfaced by the heartbeat monitor and the shutdown heartbeat event.
func (c *Coordinator) HealthStatus() map[string]string {
	return c.health.GetStatus()
}

// IsHealthy reports whether every registered component's last stop
// attempt (if any) succeeded.
func (c *Coordinator) IsHealthy() bool {
	return c.health.IsHealthy()
}

// RegisterThread returns a done channel the caller must close when its
// goroutine exits; ExecuteGracefulShutdown joins each with a bounded
// per-thread timeout.
func (c *Coordinator) RegisterThread() chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan struct{})
	c.threads = append(c.threads, ch)
	return ch
}

// AddCleanupCallback registers a FIFO-ordered callback run during shutdown.
// Callbacks must be idempotent and must not themselves call RequestShutdown.
func (c *Coordinator) AddCleanupCallback(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, fn)
}

// RequestShutdown sets the shared shutdown flag. First request wins;
// later requests are counted but otherwise ignored. The flag is set by a
// single atomic CompareAndSwap and the shutdown channel is closed before
// any lock is taken; recording and counting the request then hold c.mu
// briefly.
func (c *Coordinator) RequestShutdown(req Request) {
	if atomic.CompareAndSwapInt32(&c.requested, 0, 1) {
		c.closeOnce.Do(func() { close(c.shutdownCh) })
		c.mu.Lock()
		r := req
		c.firstReq = &r
		c.requestCount++
		c.mu.Unlock()
		c.log.Warn("shutdown requested", "reason", req.Reason, "initiator", req.Initiator, "emergency", req.Emergency)
		return
	}
	c.mu.Lock()
	c.requestCount++
	c.mu.Unlock()
}

// IsShutdownRequested is the lock-free read hot path workers poll.
func (c *Coordinator) IsShutdownRequested() bool {
	return atomic.LoadInt32(&c.requested) == 1
}

// WaitForShutdown blocks until shutdown is requested or timeout elapses
// (zero timeout waits forever); returns true if shutdown was requested.
func (c *Coordinator) WaitForShutdown(timeout time.Duration) bool {
	if timeout <= 0 {
		<-c.shutdownCh
		return true
	}
	select {
	case <-c.shutdownCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Beat records a monotonic heartbeat with a label, trimming the ring
// buffer to the last beatRingSize entries.
func (c *Coordinator) Beat(label string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.beats = append(c.beats, beat{ts: time.Now(), label: label})
	if len(c.beats) > beatRingSize {
		c.beats = c.beats[len(c.beats)-beatRingSize:]
	}
}

// LastBeat returns the most recent heartbeat, if any.
func (c *Coordinator) LastBeat() (label string, ts time.Time, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.beats) == 0 {
		return "", time.Time{}, false
	}
	last := c.beats[len(c.beats)-1]
	return last.label, last.ts, true
}

// RecentBeats returns up to n of the most recent heartbeat labels, for the
// SHUTDOWN_HEARTBEAT event payload.
func (c *Coordinator) RecentBeats(n int) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n <= 0 || n > len(c.beats) {
		n = len(c.beats)
	}
	out := make([]string, 0, n)
	for _, b := range c.beats[len(c.beats)-n:] {
		out = append(out, b.label)
	}
	return out
}

// ExecuteGracefulShutdown runs callbacks (FIFO), then stops each
// registered component, then joins each registered thread with a bounded
// per-thread timeout. For an emergency request, callbacks and component
// stop are skipped entirely (log sinks are expected to flush on their
// own via the caller's deferred Sync). Returns false if any thread failed
// to join in time (logged as SHUTDOWN_FORCE, never raised).
func (c *Coordinator) ExecuteGracefulShutdown(joinTimeout time.Duration) bool {
	c.mu.Lock()
	emergency := c.firstReq != nil && c.firstReq.Emergency
	callbacks := append([]func(){}, c.callbacks...)
	components := append([]namedComponent{}, c.components...)
	threads := append([]chan struct{}{}, c.threads...)
	c.mu.Unlock()

	if emergency {
		c.log.Warn("emergency shutdown: skipping callbacks and component stop")
		return true
	}

	for _, cb := range callbacks {
		cb()
	}

	for _, comp := range components {
		err := stopOne(comp.handle)
		if err != nil {
			c.log.Error("component stop failed", "component", comp.name, "error", err.Error())
		}
		c.compErrMu.Lock()
		c.compErr[comp.name] = err
		c.compErrMu.Unlock()
	}

	if joinTimeout <= 0 {
		joinTimeout = 3 * time.Second
	}
	allJoined := true
	for i, ch := range threads {
		select {
		case <-ch:
		case <-time.After(joinTimeout):
			allJoined = false
			c.log.Warn("thread join timed out", "index", i, "event_type", "SHUTDOWN_FORCE")
		}
	}
	return allJoined
}

func stopOne(handle interface{}) error {
	switch h := handle.(type) {
	case Stoppable:
		return h.Stop()
	case shutdownable:
		return h.Shutdown()
	case closeable:
		return h.Close()
	default:
		return nil
	}
}
