package api

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/Adarsh9315/task-palette-organize/board"
)

// Sink receives batches of settlements, e.g. the storage event queue or a
// broadcaster.
type Sink interface {
	Publish(ctx context.Context, events []board.Settlement) error
}

type PublisherConfig struct {
	Workers        int
	Buffer         int
	BatchSize      int
	FlushInterval  time.Duration
	Timeout        time.Duration
	HandoffTimeout time.Duration
	RetryInitial   time.Duration
	RetryMax       time.Duration
	MaxAttempts    int
}

func (c PublisherConfig) withDefaults() PublisherConfig {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.Buffer <= 0 {
		c.Buffer = c.Workers * c.BatchSize * 2
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Millisecond
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RetryInitial <= 0 {
		c.RetryInitial = 250 * time.Millisecond
	}
	if c.RetryMax <= 0 {
		c.RetryMax = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	return c
}

// publishJob is a batch bound for one sink, or for all sinks when sink < 0.
type publishJob struct {
	events  []board.Settlement
	sink    int
	attempt int
}

// Publisher is a board.Notifier that hands settlements to a worker pool which
// batches them into every sink, retrying failed batches with backoff.
// Notify never blocks longer than the handoff timeout.
type Publisher struct {
	cfg    PublisherConfig
	sinks  []Sink
	logger *log.Logger

	mu     sync.RWMutex
	closed bool
	work   chan publishJob
	stop   chan struct{}

	workerWG sync.WaitGroup
	retryWG  sync.WaitGroup

	delivered atomic.Uint64
	dropped   atomic.Uint64
}

func NewPublisher(cfg PublisherConfig, logger *log.Logger, sinks ...Sink) *Publisher {
	if logger == nil {
		panic("logger is required")
	}
	cfg = cfg.withDefaults()
	p := &Publisher{
		cfg:    cfg,
		sinks:  sinks,
		logger: logger,
		work:   make(chan publishJob, cfg.Buffer),
		stop:   make(chan struct{}),
	}
	for i := 0; i < cfg.Workers; i++ {
		p.workerWG.Add(1)
		go p.worker(i)
	}
	logger.Infof("event publisher started, workers: %d, buffer: %d, sinks: %d", cfg.Workers, cfg.Buffer, len(sinks))
	return p
}

// Notify implements board.Notifier.
func (p *Publisher) Notify(s board.Settlement) {
	if !p.handoff(publishJob{events: []board.Settlement{s}, sink: -1}) {
		p.dropped.Add(1)
		p.logger.WithFields(log.Fields{"board": s.BoardID, "seq": s.Seq}).Warn("event publisher saturated; dropping settlement")
	}
}

func (p *Publisher) handoff(job publishJob) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	select {
	case p.work <- job:
		return true
	default:
	}
	if p.cfg.HandoffTimeout <= 0 {
		return false
	}
	timer := time.NewTimer(p.cfg.HandoffTimeout)
	defer timer.Stop()
	select {
	case p.work <- job:
		return true
	case <-timer.C:
		return false
	case <-p.stop:
		return false
	}
}

func (p *Publisher) worker(id int) {
	defer p.workerWG.Done()

	timer := time.NewTimer(p.cfg.FlushInterval)
	defer timer.Stop()
	for {
		job, ok := <-p.work
		if !ok {
			return
		}
		if job.sink >= 0 {
			p.deliver(job, id)
			continue
		}
		batch := job
		timer.Reset(p.cfg.FlushInterval)
	gather:
		for len(batch.events) < p.cfg.BatchSize {
			select {
			case next, ok := <-p.work:
				if !ok {
					break gather
				}
				if next.sink >= 0 {
					p.deliver(next, id)
					continue
				}
				batch.events = append(batch.events, next.events...)
			case <-timer.C:
				break gather
			}
		}
		p.deliver(batch, id)
	}
}

func (p *Publisher) deliver(job publishJob, workerID int) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.Timeout)
	defer cancel()
	for i, sink := range p.sinks {
		if job.sink >= 0 && job.sink != i {
			continue
		}
		if err := sink.Publish(ctx, job.events); err != nil {
			retry := publishJob{events: job.events, sink: i, attempt: job.attempt + 1}
			p.logger.WithError(err).Errorf("event publish failed, worker=%d, sink=%d, events=%d, attempt=%d", workerID, i, len(job.events), retry.attempt)
			p.scheduleRetry(retry)
			continue
		}
		p.delivered.Add(uint64(len(job.events)))
	}
}

func (p *Publisher) scheduleRetry(job publishJob) {
	if job.attempt >= p.cfg.MaxAttempts {
		p.dropped.Add(uint64(len(job.events)))
		p.logger.Errorf("event publish gave up, sink=%d, events=%d, attempts=%d", job.sink, len(job.events), job.attempt)
		return
	}
	delay := exponentialBackoff(job.attempt, p.cfg.RetryInitial, p.cfg.RetryMax)
	p.retryWG.Add(1)
	go func() {
		defer p.retryWG.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			if !p.handoff(job) {
				p.dropped.Add(uint64(len(job.events)))
			}
		case <-p.stop:
			p.dropped.Add(uint64(len(job.events)))
		}
	}()
}

// Stats reports how many settlements reached a sink and how many were lost.
func (p *Publisher) Stats() (delivered, dropped uint64) {
	return p.delivered.Load(), p.dropped.Load()
}

// Close delivers what is buffered, abandons pending retries and stops the
// workers.
func (p *Publisher) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.work)
	p.mu.Unlock()

	p.workerWG.Wait()
	close(p.stop)
	p.retryWG.Wait()
}

func exponentialBackoff(attempt int, initial, max time.Duration) time.Duration {
	if attempt <= 0 {
		return initial
	}
	backoff := float64(initial) * math.Pow(2, float64(attempt-1))
	if backoff > float64(max) {
		backoff = float64(max)
	}
	jitter := 0.2 * backoff
	return time.Duration(backoff + (rand.Float64()-0.5)*2*jitter)
}
