package forward

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattjoyce/journalfwd/internal/events"
	"github.com/mattjoyce/journalfwd/internal/log"
	"github.com/mattjoyce/journalfwd/internal/metrics"
)

// Overflow selects what Submit does when the queue is full.
type Overflow string

const (
	OverflowBlock  Overflow = "block"
	OverflowDrop   Overflow = "drop"
	OverflowReject Overflow = "reject"
)

// ParseOverflow validates an overflow policy name.
func ParseOverflow(s string) (Overflow, error) {
	switch o := Overflow(s); o {
	case OverflowBlock, OverflowDrop, OverflowReject:
		return o, nil
	case "":
		return OverflowDrop, nil
	default:
		return "", fmt.Errorf("unknown overflow policy %q (want block, drop or reject)", s)
	}
}

var (
	ErrQueueFull  = errors.New("dispatch queue full")
	ErrPoolClosed = errors.New("dispatch pool closed")
)

const (
	DefaultWorkers   = 2
	DefaultQueueSize = 1024
)

type PoolConfig struct {
	Workers   int
	QueueSize int
	Overflow  Overflow
}

type task struct {
	id        string
	payload   []byte
	submitted time.Time
}

// Pool is a fixed set of workers posting queued payloads. It is shared by all
// streams and safe for concurrent use.
type Pool struct {
	cfg     PoolConfig
	poster  Poster
	metrics *metrics.Metrics
	events  events.Publisher
	logger  *slog.Logger

	queue   chan task
	wg      sync.WaitGroup
	senders sync.WaitGroup

	mu      sync.RWMutex
	closed  bool
	once    sync.Once
	done    chan struct{} // closed when intake stops
	drained chan struct{} // closed when every worker has exited
}

// NewPool starts cfg.Workers workers. metrics and pub may be nil.
func NewPool(cfg PoolConfig, poster Poster, m *metrics.Metrics, pub events.Publisher) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Overflow == "" {
		cfg.Overflow = OverflowDrop
	}

	p := &Pool{
		cfg:     cfg,
		poster:  poster,
		metrics: m,
		events:  pub,
		logger:  log.WithComponent("forward"),
		queue:   make(chan task, cfg.QueueSize),
		done:    make(chan struct{}),
		drained: make(chan struct{}),
	}

	p.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go p.work(i)
	}
	p.logger.Info("dispatch pool started", "workers", cfg.Workers, "queue_size", cfg.QueueSize, "overflow", cfg.Overflow)
	return p
}

// Submit queues a payload and returns its task id. With OverflowDrop a full
// queue yields an empty id and a nil error. A Submit blocked under
// OverflowBlock returns ErrPoolClosed once Close is called.
func (p *Pool) Submit(ctx context.Context, payload []byte) (string, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return "", ErrPoolClosed
	}
	// The queue is closed only after every registered sender has left.
	p.senders.Add(1)
	p.mu.RUnlock()
	defer p.senders.Done()

	t := task{id: uuid.NewString(), payload: payload, submitted: time.Now()}

	if p.cfg.Overflow == OverflowBlock {
		select {
		case p.queue <- t:
			p.metrics.QueueDepth(len(p.queue))
			return t.id, nil
		case <-ctx.Done():
			return "", ctx.Err()
		case <-p.done:
			return "", ErrPoolClosed
		}
	}

	select {
	case p.queue <- t:
		p.metrics.QueueDepth(len(p.queue))
		return t.id, nil
	default:
	}

	p.publish(events.EntryDropped, t.id, map[string]any{"policy": p.cfg.Overflow})
	if p.cfg.Overflow == OverflowReject {
		p.metrics.Forward(metrics.ForwardRejected, 0)
		return "", ErrQueueFull
	}
	p.metrics.Forward(metrics.ForwardDropped, 0)
	p.logger.Warn("dispatch queue full, entry dropped", "queue_size", p.cfg.QueueSize)
	return "", nil
}

// Depth returns the number of queued payloads.
func (p *Pool) Depth() int { return len(p.queue) }

// Workers returns the worker count.
func (p *Pool) Workers() int { return p.cfg.Workers }

// Close stops intake and waits for queued payloads to be posted or for ctx
// to end, whichever comes first. Draining continues in the background after
// ctx ends, and a later Close waits for it again.
func (p *Pool) Close(ctx context.Context) error {
	p.once.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()
		close(p.done)

		go func() {
			p.senders.Wait()
			close(p.queue)
			p.wg.Wait()
			close(p.drained)
		}()
	})

	select {
	case <-p.drained:
		p.logger.Info("dispatch pool drained")
		return nil
	case <-ctx.Done():
		p.logger.Warn("dispatch pool drain interrupted", "pending", len(p.queue))
		return fmt.Errorf("drain dispatch pool: %w", ctx.Err())
	}
}

func (p *Pool) work(n int) {
	defer p.wg.Done()
	for t := range p.queue {
		p.metrics.QueueDepth(len(p.queue))
		p.forward(n, t)
	}
}

// forward posts one payload. Submitted payloads are detached from the stream
// that produced them; the poster's own timeout bounds each call.
func (p *Pool) forward(worker int, t task) {
	start := time.Now()
	err := p.poster.Post(context.Background(), t.payload)
	took := time.Since(start)

	if err != nil {
		p.metrics.Forward(metrics.ForwardError, took)
		p.logger.Error("forward failed", "task_id", t.id, "worker", worker, "error", err)
		p.publish(events.EntryFailed, t.id, map[string]any{"error": err.Error()})
		return
	}

	p.metrics.Forward(metrics.ForwardOK, took)
	p.logger.Debug("entry forwarded", "task_id", t.id, "worker", worker,
		"duration_ms", took.Milliseconds(), "queued_ms", start.Sub(t.submitted).Milliseconds())
	p.publish(events.EntryForwarded, t.id, map[string]any{"duration_ms": took.Milliseconds()})
}

func (p *Pool) publish(eventType, taskID string, data map[string]any) {
	if p.events == nil {
		return
	}
	data["task_id"] = taskID
	p.events.Publish(eventType, data)
}
