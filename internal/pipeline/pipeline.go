package pipeline

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/cursor-telemetry/backend/internal/session"
)

// ErrClosed is returned by Submit after Close has begun.
var ErrClosed = errors.New("pipeline: closed")

const (
	DefaultMaxBufferSize            = 1000
	DefaultBatchSize                = 10
	DefaultDedupWindowMs            = 5000
	DefaultSessionTimeoutMs         = 300000
	DefaultContextSwitchThresholdMs = 60000

	// dropLogInterval rate-limits warnings for evicted events and dropped
	// emissions so sustained backpressure doesn't spam the log.
	dropLogInterval = 10 * time.Second

	emitQueueSize = 64
)

// Config holds the pipeline tuning knobs. Zero values are replaced with
// the documented defaults; IdleFlush defaults to twice the session
// timeout.
type Config struct {
	MaxBufferSize            int
	BatchSize                int
	DedupWindowMs            int64
	SessionTimeoutMs         int64
	ContextSwitchThresholdMs int64
	IdleFlush                time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxBufferSize <= 0 {
		c.MaxBufferSize = DefaultMaxBufferSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.DedupWindowMs <= 0 {
		c.DedupWindowMs = DefaultDedupWindowMs
	}
	if c.SessionTimeoutMs <= 0 {
		c.SessionTimeoutMs = DefaultSessionTimeoutMs
	}
	if c.ContextSwitchThresholdMs <= 0 {
		c.ContextSwitchThresholdMs = DefaultContextSwitchThresholdMs
	}
	if c.IdleFlush <= 0 {
		c.IdleFlush = 2 * time.Duration(c.SessionTimeoutMs) * time.Millisecond
	}
	return c
}

// Handler receives completed sessions in emission order. Handlers run on
// the pipeline's emitter goroutine; a slow handler delays later sessions
// but never blocks Submit, and a panicking handler is isolated.
type Handler func(session.Session)

// Stats is a snapshot of the pipeline counters.
type Stats struct {
	Submitted    uint64 `json:"submitted"`
	Rejected     uint64 `json:"rejected"`
	Evicted      uint64 `json:"evicted"`
	Deduplicated uint64 `json:"deduplicated"`
	Batches      uint64 `json:"batches"`
	Sessions     uint64 `json:"sessions"`
	Dropped      uint64 `json:"dropped"` // sessions dropped on a full emit queue
}

// Pipeline turns a stream of submitted events into completed sessions.
// One Pipeline instance is the unit of serialization: buffer mutation and
// sequence assignment happen under a single mutex, and all emission goes
// through one goroutine so collaborators see sessions in finalize order.
type Pipeline struct {
	cfg      Config
	boundary BoundaryConfig

	mu        sync.Mutex // guards buf, idleTimer, handlers, closing
	buf       *EventBuffer
	idleTimer *time.Timer
	handlers  []Handler
	closing   bool

	// procMu keeps batch processing and emission enqueueing in drain
	// order. Always acquired while mu is held, released after processing.
	procMu     sync.Mutex
	emitClosed bool

	emit chan session.Session
	done chan struct{}

	statsMu    sync.Mutex
	stats      Stats
	evictSince uint64
	evictLogAt time.Time
	dropSince  uint64
	dropLogAt  time.Time
}

// New creates a started pipeline. Register handlers before the first
// Submit.
func New(cfg Config) *Pipeline {
	cfg = cfg.withDefaults()
	p := &Pipeline{
		cfg: cfg,
		boundary: BoundaryConfig{
			SessionTimeout:         cfg.SessionTimeoutMs,
			ContextSwitchThreshold: cfg.ContextSwitchThresholdMs,
		},
		buf:  NewEventBuffer(cfg.MaxBufferSize),
		emit: make(chan session.Session, emitQueueSize),
		done: make(chan struct{}),
	}
	go p.emitLoop()
	return p
}

// RegisterSessionHandler subscribes handler to completed sessions. Must
// be called before the first Submit.
func (p *Pipeline) RegisterSessionHandler(h Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, h)
}

// Submit validates and buffers one event. If the buffer reaches the
// configured batch size the batch is processed synchronously before
// Submit returns; otherwise Submit only mutates the buffer.
func (p *Pipeline) Submit(ev session.Event) error {
	return p.submit(ev, false)
}

// SubmitPriority is Submit for latency-sensitive events (e.g. explicit
// session_end markers): the event still goes through the ordered buffer,
// but processing is triggered immediately regardless of buffer fill.
func (p *Pipeline) SubmitPriority(ev session.Event) error {
	return p.submit(ev, true)
}

func (p *Pipeline) submit(ev session.Event, urgent bool) error {
	if err := ev.Validate(); err != nil {
		p.statsMu.Lock()
		p.stats.Rejected++
		p.statsMu.Unlock()
		return err
	}

	p.mu.Lock()
	if p.closing {
		p.mu.Unlock()
		return ErrClosed
	}
	evicted := p.buf.Insert(ev)
	p.resetIdleTimerLocked()

	var batch []session.Event
	if urgent || p.buf.Len() >= p.cfg.BatchSize {
		batch = p.buf.DrainBatch(p.cfg.BatchSize)
	}
	if batch != nil {
		p.procMu.Lock() // acquired under mu to pin drain order
	}
	p.mu.Unlock()

	p.statsMu.Lock()
	p.stats.Submitted++
	if evicted {
		p.stats.Evicted++
		p.noteEvictionLocked()
	}
	p.statsMu.Unlock()

	if batch != nil {
		p.process(batch)
	}
	return nil
}

// Flush drains and processes everything currently buffered. Called by the
// idle timer and at shutdown; also useful for tests.
func (p *Pipeline) Flush() {
	for {
		p.mu.Lock()
		batch := p.buf.DrainBatch(p.cfg.BatchSize)
		if batch == nil {
			p.mu.Unlock()
			return
		}
		p.procMu.Lock()
		p.mu.Unlock()
		p.process(batch)
	}
}

// Close stops the idle timer, flushes any buffered events into final
// sessions, and waits for the emitter to deliver them. Safe to call more
// than once; Submit returns ErrClosed afterwards.
func (p *Pipeline) Close() {
	p.mu.Lock()
	alreadyClosing := p.closing
	p.closing = true
	if p.idleTimer != nil {
		p.idleTimer.Stop()
		p.idleTimer = nil
	}
	p.mu.Unlock()

	if alreadyClosing {
		<-p.done
		return
	}

	p.Flush()

	p.procMu.Lock()
	p.emitClosed = true
	close(p.emit)
	p.procMu.Unlock()

	<-p.done
}

// Stats returns a snapshot of the pipeline counters.
func (p *Pipeline) Stats() Stats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.stats
}

// BufferLen reports the number of currently buffered events.
func (p *Pipeline) BufferLen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buf.Len()
}

// process runs the dedup → boundary → build stages on a drained batch and
// enqueues the resulting sessions for emission. The caller must hold
// procMu; process releases it. The batch is privately owned here, so the
// stages run without the pipeline mutex and submissions continue
// concurrently.
func (p *Pipeline) process(batch []session.Event) {
	defer p.procMu.Unlock()

	deduped := Deduplicate(batch, p.cfg.DedupWindowMs)
	segments := DetectBoundaries(deduped, p.boundary)

	p.statsMu.Lock()
	p.stats.Batches++
	p.stats.Deduplicated += uint64(len(batch) - len(deduped))
	p.statsMu.Unlock()

	for _, seg := range segments {
		s := BuildSession(seg.Events)
		if p.emitClosed {
			return
		}
		select {
		case p.emit <- s:
		default:
			// Emitter (and therefore some handler) can't keep up.
			// Dropping here keeps Submit latency bounded; collaborators
			// needing durability must not be the bottleneck.
			p.statsMu.Lock()
			p.stats.Dropped++
			p.noteDropLocked()
			p.statsMu.Unlock()
		}
	}
}

func (p *Pipeline) emitLoop() {
	defer close(p.done)
	for s := range p.emit {
		p.mu.Lock()
		handlers := make([]Handler, len(p.handlers))
		copy(handlers, p.handlers)
		p.mu.Unlock()

		for _, h := range handlers {
			callHandler(h, s)
		}

		p.statsMu.Lock()
		p.stats.Sessions++
		p.statsMu.Unlock()
	}
}

// callHandler isolates a collaborator: one panicking handler must not
// prevent the others from seeing the session or stall the pipeline.
func callHandler(h Handler, s session.Session) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("session handler panic for %s: %v", s.ID, r)
		}
	}()
	h(s)
}

// resetIdleTimerLocked re-arms the idle flush so a partially filled
// buffer never sits longer than IdleFlush without being processed. The
// caller must hold mu.
func (p *Pipeline) resetIdleTimerLocked() {
	if p.closing {
		return
	}
	if p.idleTimer != nil {
		p.idleTimer.Stop()
	}
	p.idleTimer = time.AfterFunc(p.cfg.IdleFlush, p.idleFlush)
}

func (p *Pipeline) idleFlush() {
	p.mu.Lock()
	if p.closing || p.buf.Len() == 0 {
		p.mu.Unlock()
		return
	}
	p.mu.Unlock()
	p.Flush()
}

func (p *Pipeline) noteEvictionLocked() {
	p.evictSince++
	now := time.Now()
	if p.evictLogAt.IsZero() || now.Sub(p.evictLogAt) >= dropLogInterval {
		log.Printf("event buffer full: %d events evicted (max %d)", p.evictSince, p.cfg.MaxBufferSize)
		p.evictSince = 0
		p.evictLogAt = now
	}
}

func (p *Pipeline) noteDropLocked() {
	p.dropSince++
	now := time.Now()
	if p.dropLogAt.IsZero() || now.Sub(p.dropLogAt) >= dropLogInterval {
		log.Printf("emit queue full: %d sessions dropped", p.dropSince)
		p.dropSince = 0
		p.dropLogAt = now
	}
}
