package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is a snapshot of a polling worker's counters
type Status struct {
	Name           string    `json:"name"`
	Running        bool      `json:"running"`
	LastProcessed  time.Time `json:"last_processed"`
	ProcessedCount int       `json:"processed_count"`
	FailedCount    int       `json:"failed_count"`
	LastError      string    `json:"last_error,omitempty"`
}

// poller runs sweep on a ticker until stopped. sweep returns how many items
// it handled and how many of those failed.
type poller struct {
	name     string
	interval time.Duration
	sweep    func(ctx context.Context) (processed, failed int, err error)
	logger   *zap.Logger

	mu             sync.RWMutex
	ctx            context.Context
	cancel         context.CancelFunc
	done           chan struct{}
	isRunning      bool
	lastProcessed  time.Time
	processedCount int
	failedCount    int
	lastError      error
}

// Start begins the polling loop
func (p *poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.isRunning {
		p.mu.Unlock()
		return fmt.Errorf("%s already running", p.name)
	}
	if p.interval <= 0 {
		p.mu.Unlock()
		return fmt.Errorf("%s: poll interval must be positive", p.name)
	}

	p.ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	p.isRunning = true
	p.mu.Unlock()

	p.logger.Info("Worker polling started",
		zap.String("worker_name", p.name),
		zap.Duration("poll_interval", p.interval))

	go p.pollLoop()
	return nil
}

// Stop cancels the loop and waits for the current sweep to finish
func (p *poller) Stop() error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done

	st := p.Status()
	p.logger.Info("Worker polling stopped",
		zap.String("worker_name", p.name),
		zap.Int("processed_count", st.ProcessedCount),
		zap.Int("failed_count", st.FailedCount))
	return nil
}

// Name returns the worker name for identification
func (p *poller) Name() string {
	return p.name
}

// Status returns the current counters
func (p *poller) Status() Status {
	p.mu.RLock()
	defer p.mu.RUnlock()

	s := Status{
		Name:           p.name,
		Running:        p.isRunning,
		LastProcessed:  p.lastProcessed,
		ProcessedCount: p.processedCount,
		FailedCount:    p.failedCount,
	}
	if p.lastError != nil {
		s.LastError = p.lastError.Error()
	}
	return s
}

func (p *poller) pollLoop() {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.runOnce(p.ctx)
		}
	}
}

// runOnce performs one sweep and records its outcome
func (p *poller) runOnce(ctx context.Context) {
	processed, failed, err := p.sweep(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastProcessed = time.Now()
	p.processedCount += processed
	p.failedCount += failed
	if err != nil {
		p.lastError = err
		p.logger.Error("Worker sweep failed", zap.String("worker_name", p.name), zap.Error(err))
	}
}
