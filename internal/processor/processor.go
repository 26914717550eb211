package processor

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"mailer/internal/delivery"
	"mailer/internal/lock"
	"mailer/internal/metrics"
)

// ErrAlreadyRunning is returned by Process while another run is in progress.
var ErrAlreadyRunning = errors.New("queue processing already in progress")

const lockKey = "process-queue"

// QueueRunner is the part of the delivery engine the processor drives.
type QueueRunner interface {
	ProcessQueue(ctx context.Context) (*delivery.ProcessResult, error)
}

// QueueProcessor runs the delivery queue on a fixed interval. Runs never
// overlap within a process; the Locker keeps processes apart.
type QueueProcessor struct {
	runner   QueueRunner
	locker   lock.Locker
	interval time.Duration
	lockTTL  time.Duration
	metrics  *metrics.Metrics
	logger   *zap.Logger

	mu         sync.Mutex
	processing bool
	lastRun    time.Time
	stats      ProcessStats
}

type ProcessStats struct {
	Runs            int       `json:"runs"`
	Sent            int       `json:"sent"`
	Failed          int       `json:"failed"`
	Skipped         int       `json:"skipped"`
	LastError       string    `json:"lastError,omitempty"`
	LastProcessedAt time.Time `json:"lastProcessedAt"`
}

func NewQueueProcessor(runner QueueRunner, locker lock.Locker, interval, lockTTL time.Duration, m *metrics.Metrics, logger *zap.Logger) *QueueProcessor {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueProcessor{
		runner:   runner,
		locker:   locker,
		interval: interval,
		lockTTL:  lockTTL,
		metrics:  m,
		logger:   logger,
	}
}

// Start processes the queue every interval until ctx is done.
func (p *QueueProcessor) Start(ctx context.Context) error {
	p.logger.Info("queue processor started", zap.Duration("interval", p.interval))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("queue processor stopped")
			return nil
		case <-ticker.C:
			if _, err := p.Process(ctx); err != nil && !errors.Is(err, ErrAlreadyRunning) && !errors.Is(err, lock.ErrNotAcquired) {
				p.logger.Error("queue processing failed", zap.Error(err))
			}
		}
	}
}

// Process runs the queue once.
func (p *QueueProcessor) Process(ctx context.Context) (*delivery.ProcessResult, error) {
	p.mu.Lock()
	if p.processing {
		p.stats.Skipped++
		p.mu.Unlock()
		p.metrics.QueueRun("skipped", 0)
		return nil, ErrAlreadyRunning
	}
	p.processing = true
	p.lastRun = time.Now()
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.processing = false
		p.mu.Unlock()
	}()

	lease, err := p.locker.Acquire(ctx, lockKey, p.lockTTL)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			p.logger.Debug("queue run skipped, lock held elsewhere")
			p.mu.Lock()
			p.stats.Skipped++
			p.mu.Unlock()
			p.metrics.QueueRun("skipped", 0)
		}
		return nil, err
	}
	defer func() {
		// the run context may be gone by now
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			p.logger.Warn("failed to release queue lock", zap.Error(err))
		}
	}()

	result, err := p.runner.ProcessQueue(ctx)

	p.mu.Lock()
	p.stats.Runs++
	p.stats.LastProcessedAt = p.lastRun
	p.stats.LastError = ""
	if err != nil {
		p.stats.LastError = err.Error()
	}
	if result != nil {
		p.stats.Sent += result.Successes
		p.stats.Failed += result.Failures
	}
	p.mu.Unlock()

	if err != nil {
		return result, err
	}
	if result.Failures > 0 {
		p.logger.Warn("emails were unsuccessful", zap.Int("failures", result.Failures))
	}
	return result, nil
}

// GetStatus reports whether a run is in progress, when the last one started
// and the totals so far.
func (p *QueueProcessor) GetStatus() (bool, time.Time, ProcessStats) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.processing, p.lastRun, p.stats
}
