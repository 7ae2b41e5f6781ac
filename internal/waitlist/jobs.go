package waitlist

import (
	"context"
	"sync"
	"time"

	"tableside/pkg/logger"
)

// JobProcessor handles background jobs for waitlist operations
type JobProcessor struct {
	service Service
	config  *JobConfig
	log     *logger.Logger
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// JobConfig contains configuration for background jobs
type JobConfig struct {
	ExpiryCheckInterval time.Duration
	EstimateInterval    time.Duration
}

// DefaultJobConfig returns default job configuration
func DefaultJobConfig() *JobConfig {
	return &JobConfig{
		ExpiryCheckInterval: 15 * time.Minute,
		EstimateInterval:    2 * time.Minute,
	}
}

// NewJobProcessor creates a new job processor
func NewJobProcessor(service Service, config *JobConfig) *JobProcessor {
	if config == nil {
		config = DefaultJobConfig()
	}

	return &JobProcessor{
		service: service,
		config:  config,
		log:     logger.GetDefault().WithComponent("waitlist-jobs"),
		done:    make(chan struct{}),
	}
}

// Start starts all background jobs
func (jp *JobProcessor) Start(ctx context.Context) {
	jp.log.Info("starting waitlist background jobs",
		"expiry_interval", jp.config.ExpiryCheckInterval.String(),
		"estimate_interval", jp.config.EstimateInterval.String())

	jp.wg.Add(2)
	go jp.loop(ctx, jp.config.ExpiryCheckInterval, jp.expireEntries)
	go jp.loop(ctx, jp.config.EstimateInterval, jp.refreshEstimates)
}

// Stop stops all background jobs and waits for them to exit
func (jp *JobProcessor) Stop() {
	jp.once.Do(func() { close(jp.done) })
	jp.wg.Wait()
	jp.log.Info("waitlist background jobs stopped")
}

func (jp *JobProcessor) loop(ctx context.Context, interval time.Duration, run func(context.Context)) {
	defer jp.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	run(ctx)
	for {
		select {
		case <-ticker.C:
			run(ctx)
		case <-jp.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (jp *JobProcessor) expireEntries(ctx context.Context) {
	expired, err := jp.service.ExpirePastEntries(ctx)
	if err != nil {
		jp.log.Error("failed to expire waitlist entries", logger.Err(err))
		return
	}
	if expired > 0 {
		jp.log.Info("expired stale waitlist entries", "count", expired)
	}
}

func (jp *JobProcessor) refreshEstimates(ctx context.Context) {
	changed, err := jp.service.RefreshEstimates(ctx)
	if err != nil {
		jp.log.Error("failed to refresh wait estimates", logger.Err(err))
		return
	}
	if changed > 0 {
		jp.log.Debug("refreshed wait estimates", "count", changed)
	}
}

// GetJobStatus returns the status of background jobs
func (jp *JobProcessor) GetJobStatus() map[string]interface{} {
	return map[string]interface{}{
		"expiry_check_interval": jp.config.ExpiryCheckInterval.String(),
		"estimate_interval":     jp.config.EstimateInterval.String(),
		"status":                "running",
	}
}
