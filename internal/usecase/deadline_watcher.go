package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/riskibarqy/coindraw/internal/domain/lottery"
	"github.com/riskibarqy/coindraw/internal/platform/logging"
)

const (
	defaultWatchInterval   = time.Second
	defaultWatcherWorkers  = 4
	maxDueBatchPerInterval = 256
)

// DeadlineWatcher periodically finalizes open lotteries whose draw time
// has passed. Any number of processes may run one; redundant triggers
// collapse into no-ops at the repository's conditional append.
type DeadlineWatcher struct {
	repo       lottery.Repository
	service    *LotteryService
	interval   time.Duration
	maxWorkers int
	logger     *logging.Logger
	now        func() time.Time
}

func NewDeadlineWatcher(
	repo lottery.Repository,
	service *LotteryService,
	interval time.Duration,
	maxWorkers int,
	logger *logging.Logger,
) *DeadlineWatcher {
	if interval <= 0 {
		interval = defaultWatchInterval
	}
	if maxWorkers < 1 {
		maxWorkers = defaultWatcherWorkers
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &DeadlineWatcher{
		repo:       repo,
		service:    service,
		interval:   interval,
		maxWorkers: maxWorkers,
		logger:     logger,
		now:        time.Now,
	}
}

// Run ticks until the context is cancelled. A failing tick is logged and
// retried on the next interval; firing late never affects correctness,
// only when the allocation completes.
func (w *DeadlineWatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Tick(ctx); err != nil {
				w.logger.WarnContext(ctx, "deadline tick failed", "error", err)
			}
		}
	}
}

// Tick finalizes every currently due lottery, fanning out over a worker
// pool so one slow finalize does not stall the rest of the batch.
func (w *DeadlineWatcher) Tick(ctx context.Context) error {
	due, err := w.repo.ListDue(ctx, w.now().UTC())
	if err != nil {
		return fmt.Errorf("list due lotteries: %w", err)
	}
	if len(due) == 0 {
		return nil
	}
	if len(due) > maxDueBatchPerInterval {
		due = due[:maxDueBatchPerInterval]
	}

	pool, err := ants.NewPool(w.maxWorkers)
	if err != nil {
		return fmt.Errorf("create finalize worker pool: %w", err)
	}
	defer pool.Release()

	var workers sync.WaitGroup
	for _, activity := range due {
		activity := activity
		workers.Add(1)
		if err := pool.Submit(func() {
			defer workers.Done()

			if _, err := w.service.Finalize(ctx, activity.ID); err != nil && !errors.Is(err, ErrNotFound) {
				w.logger.WarnContext(ctx, "finalize due lottery failed",
					"lottery_id", activity.ID,
					"error", err,
				)
			}
		}); err != nil {
			workers.Done()
			w.logger.WarnContext(ctx, "submit finalize task failed",
				"lottery_id", activity.ID,
				"error", err,
			)
		}
	}
	workers.Wait()

	return nil
}
