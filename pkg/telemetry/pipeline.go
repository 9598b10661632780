package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ArcaneAIAutomation/Morket-sub000/pkg/credits"
)

// PipelineConfig tunes the buffering and flush behavior of a Pipeline.
type PipelineConfig struct {
	BufferSize    int
	BatchSize     int
	FlushInterval time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	Workers       int
}

// DefaultPipelineConfig returns the settings used in production.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		BufferSize:    10000,
		BatchSize:     500,
		FlushInterval: 5 * time.Second,
		MaxRetries:    3,
		RetryDelay:    500 * time.Millisecond,
		Workers:       1,
	}
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	d := DefaultPipelineConfig()
	if c.BufferSize <= 0 {
		c.BufferSize = d.BufferSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = d.FlushInterval
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	return c
}

// Pipeline buffers credit events in memory and flushes them to a Sink in
// batches. Events are dropped when the buffer is full.
type Pipeline struct {
	cfg    PipelineConfig
	sink   Sink
	logger *slog.Logger

	events chan CreditEvent
	wg     sync.WaitGroup
	cancel context.CancelFunc

	tracked atomic.Int64
	dropped atomic.Int64
	written atomic.Int64
}

// NewPipeline builds a pipeline around sink. Call Start before tracking
// events and Stop during shutdown.
func NewPipeline(cfg PipelineConfig, sink Sink, logger *slog.Logger) *Pipeline {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		cfg:    cfg,
		sink:   sink,
		logger: logger.With("component", "telemetry"),
		events: make(chan CreditEvent, cfg.BufferSize),
	}
}

// Start launches the flush workers.
func (p *Pipeline) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
}

// Stop flushes buffered events and closes the sink. Safe to call once
// after Start.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.drain()
	if err := p.sink.Close(); err != nil {
		p.logger.Warn("sink close failed", "error", err)
	}
	p.logger.Info("telemetry pipeline stopped",
		"tracked", p.tracked.Load(),
		"written", p.written.Load(),
		"dropped", p.dropped.Load())
}

// Track enqueues an event without blocking. When the buffer is full the
// event is dropped and counted.
func (p *Pipeline) Track(event CreditEvent) {
	select {
	case p.events <- event:
		p.tracked.Add(1)
	default:
		p.dropped.Add(1)
		p.logger.Warn("telemetry buffer full, dropping event",
			"event_id", event.EventID,
			"workspace_id", event.WorkspaceID)
	}
}

// RecordTransaction converts a ledger transaction into a credit event and
// enqueues it. Implements credits.EventRecorder.
func (p *Pipeline) RecordTransaction(_ context.Context, tx credits.Transaction, source string) {
	p.Track(eventFromTransaction(tx, source))
}

// Dropped reports how many events were discarded since start.
func (p *Pipeline) Dropped() int64 { return p.dropped.Load() }

func (p *Pipeline) worker(ctx context.Context) {
	defer p.wg.Done()

	batch := make([]CreditEvent, 0, p.cfg.BatchSize)
	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.flush(batch)
			return
		case event := <-p.events:
			batch = append(batch, event)
			if len(batch) >= p.cfg.BatchSize {
				p.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				p.flush(batch)
				batch = batch[:0]
			}
		}
	}
}

// drain writes whatever is still buffered after the workers exit.
func (p *Pipeline) drain() {
	batch := make([]CreditEvent, 0, p.cfg.BatchSize)
	for {
		select {
		case event := <-p.events:
			batch = append(batch, event)
			if len(batch) >= p.cfg.BatchSize {
				p.flush(batch)
				batch = batch[:0]
			}
		default:
			p.flush(batch)
			return
		}
	}
}

func (p *Pipeline) flush(batch []CreditEvent) {
	if len(batch) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var err error
	for attempt := 1; attempt <= p.cfg.MaxRetries; attempt++ {
		if err = p.sink.WriteCreditEvents(ctx, batch); err == nil {
			p.written.Add(int64(len(batch)))
			return
		}
		p.logger.Warn("credit event flush failed",
			"attempt", attempt,
			"batch_size", len(batch),
			"error", err)
		if attempt < p.cfg.MaxRetries {
			time.Sleep(p.cfg.RetryDelay * time.Duration(attempt))
		}
	}
	p.dropped.Add(int64(len(batch)))
	p.logger.Error("credit event batch dropped after retries",
		"batch_size", len(batch),
		"error", err)
}
