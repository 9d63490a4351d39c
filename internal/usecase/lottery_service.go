package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/riskibarqy/coindraw/internal/domain/lottery"
	idgen "github.com/riskibarqy/coindraw/internal/platform/id"
	"github.com/riskibarqy/coindraw/internal/platform/logging"
	"github.com/riskibarqy/coindraw/internal/platform/resilience"
)

const (
	claimRetryLimit    = 8
	finalizeRetryLimit = 10
)

// CompletionNotifier receives the sealed activity after finalization.
type CompletionNotifier interface {
	PublishCompleted(ctx context.Context, activity lottery.Activity) error
}

type noopNotifier struct{}

func (noopNotifier) PublishCompleted(context.Context, lottery.Activity) error {
	return nil
}

func NewNoopNotifier() CompletionNotifier {
	return noopNotifier{}
}

// CreateLotteryInput is the incoming payload for creating an activity.
type CreateLotteryInput struct {
	TotalCoins   int
	Participants []string
	DrawTime     time.Time
}

// LotteryService orchestrates claim and finalize transitions against the
// repository. All mutations go through the repository's conditional
// append; a conflicting write is recomputed from a fresh read, never
// reapplied from the stale snapshot.
type LotteryService struct {
	repo     lottery.Repository
	src      lottery.RandomSource
	idGen    idgen.Generator
	notifier CompletionNotifier
	logger   *logging.Logger
	now      func() time.Time

	// Local dedup of concurrent finalize triggers. An optimization only:
	// cross-process races are settled by the conditional append.
	finalizeFlight resilience.SingleFlight
}

func NewLotteryService(
	repo lottery.Repository,
	src lottery.RandomSource,
	idGen idgen.Generator,
	notifier CompletionNotifier,
	logger *logging.Logger,
) *LotteryService {
	if notifier == nil {
		notifier = NewNoopNotifier()
	}
	if logger == nil {
		logger = logging.Default()
	}

	return &LotteryService{
		repo:     repo,
		src:      src,
		idGen:    idGen,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// timestamp returns the current UTC time truncated to microseconds, the
// precision that survives the postgres timestamptz round-trip. Deadline
// comparisons depend on stored and in-memory times agreeing exactly.
func (s *LotteryService) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *LotteryService) Create(ctx context.Context, input CreateLotteryInput) (lottery.Activity, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.LotteryService.Create")
	defer span.End()

	participants := make([]string, 0, len(input.Participants))
	for _, name := range input.Participants {
		participants = append(participants, strings.TrimSpace(name))
	}

	now := s.timestamp()
	cfg := lottery.Config{
		TotalCoins:   input.TotalCoins,
		Participants: participants,
		DrawTime:     input.DrawTime.UTC().Truncate(time.Microsecond),
	}
	if err := cfg.Validate(); err != nil {
		return lottery.Activity{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if !cfg.DrawTime.After(now) {
		return lottery.Activity{}, fmt.Errorf("%w: draw time must be in the future", ErrInvalidInput)
	}

	id, err := s.idGen.NewID()
	if err != nil {
		return lottery.Activity{}, fmt.Errorf("generate lottery id: %w", err)
	}

	activity := lottery.Activity{
		ID:        id,
		Config:    cfg,
		Completed: false,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, activity); err != nil {
		return lottery.Activity{}, fmt.Errorf("create lottery: %w", err)
	}

	s.logger.InfoContext(ctx, "lottery created",
		"lottery_id", activity.ID,
		"total_coins", cfg.TotalCoins,
		"participant_count", len(cfg.Participants),
		"draw_time", cfg.DrawTime,
	)

	return activity, nil
}

func (s *LotteryService) Get(ctx context.Context, lotteryID string) (lottery.Activity, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.LotteryService.Get")
	defer span.End()

	lotteryID = strings.TrimSpace(lotteryID)
	if lotteryID == "" {
		return lottery.Activity{}, fmt.Errorf("%w: lottery id is required", ErrInvalidInput)
	}

	activity, exists, err := s.repo.GetByID(ctx, lotteryID)
	if err != nil {
		return lottery.Activity{}, fmt.Errorf("get lottery: %w", err)
	}
	if !exists {
		return lottery.Activity{}, fmt.Errorf("%w: lottery %s", ErrNotFound, lotteryID)
	}

	return activity, nil
}

// Claim records one manual result for participantName. The share is
// computed against a fresh snapshot on every attempt; losing the
// conditional append means someone else's result landed first, so the
// whole computation is redone rather than written blind.
func (s *LotteryService) Claim(ctx context.Context, lotteryID, participantName string) (lottery.Result, lottery.Activity, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.LotteryService.Claim")
	defer span.End()

	lotteryID = strings.TrimSpace(lotteryID)
	participantName = strings.TrimSpace(participantName)
	if lotteryID == "" {
		return lottery.Result{}, lottery.Activity{}, fmt.Errorf("%w: lottery id is required", ErrInvalidInput)
	}
	if participantName == "" {
		return lottery.Result{}, lottery.Activity{}, fmt.Errorf("%w: participant name is required", ErrInvalidInput)
	}

	for attempt := 0; attempt < claimRetryLimit; attempt++ {
		activity, exists, err := s.repo.GetByID(ctx, lotteryID)
		if err != nil {
			return lottery.Result{}, lottery.Activity{}, fmt.Errorf("get lottery: %w", err)
		}
		if !exists {
			return lottery.Result{}, lottery.Activity{}, fmt.Errorf("%w: lottery %s", ErrNotFound, lotteryID)
		}

		now := s.timestamp()
		result, err := lottery.ApplyClaim(activity, participantName, now, s.src)
		if errors.Is(err, lottery.ErrInfeasibleAllocation) {
			return lottery.Result{}, lottery.Activity{}, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
		}
		if err != nil {
			return lottery.Result{}, lottery.Activity{}, err
		}

		next := activity.Apply([]lottery.Result{result}, false, now)
		if err := next.CheckInvariants(); err != nil {
			return lottery.Result{}, lottery.Activity{}, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
		}

		err = s.repo.AppendResults(ctx, lotteryID, len(activity.Results), []lottery.Result{result}, false, now)
		if errors.Is(err, lottery.ErrVersionConflict) {
			s.logger.DebugContext(ctx, "claim lost append race, retrying",
				"lottery_id", lotteryID,
				"participant", participantName,
				"attempt", attempt+1,
			)
			continue
		}
		if err != nil {
			return lottery.Result{}, lottery.Activity{}, fmt.Errorf("append claim result: %w", err)
		}

		s.logger.InfoContext(ctx, "claim recorded",
			"lottery_id", lotteryID,
			"participant", participantName,
			"coins", result.Coins,
		)
		return result, next, nil
	}

	return lottery.Result{}, lottery.Activity{}, fmt.Errorf("%w: claim for %s", ErrConflict, participantName)
}

// Finalize seals the activity, assigning the leftover pool to every
// participant without a result. Concurrent triggers within this process
// collapse onto one execution; a finalize that observes the activity
// already completed returns it as a successful no-op.
func (s *LotteryService) Finalize(ctx context.Context, lotteryID string) (lottery.Activity, error) {
	ctx, span := startUsecaseSpan(ctx, "usecase.LotteryService.Finalize")
	defer span.End()

	lotteryID = strings.TrimSpace(lotteryID)
	if lotteryID == "" {
		return lottery.Activity{}, fmt.Errorf("%w: lottery id is required", ErrInvalidInput)
	}

	v, err, _ := s.finalizeFlight.Do("finalize:"+lotteryID, func() (any, error) {
		return s.finalizeOnce(ctx, lotteryID)
	})
	if err != nil {
		return lottery.Activity{}, err
	}

	activity, ok := v.(lottery.Activity)
	if !ok {
		return lottery.Activity{}, fmt.Errorf("%w: unexpected finalize result type", ErrInvariantViolation)
	}
	return activity, nil
}

func (s *LotteryService) finalizeOnce(ctx context.Context, lotteryID string) (lottery.Activity, error) {
	for attempt := 0; attempt < finalizeRetryLimit; attempt++ {
		activity, exists, err := s.repo.GetByID(ctx, lotteryID)
		if err != nil {
			return lottery.Activity{}, fmt.Errorf("get lottery: %w", err)
		}
		if !exists {
			return lottery.Activity{}, fmt.Errorf("%w: lottery %s", ErrNotFound, lotteryID)
		}
		if activity.Completed {
			return activity, nil
		}

		now := s.timestamp()
		delta, err := lottery.FinalizeDelta(activity, now, s.src)
		if errors.Is(err, lottery.ErrAlreadyCompleted) {
			return activity, nil
		}
		if err != nil {
			return lottery.Activity{}, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
		}

		next := activity.Apply(delta, true, now)
		if err := next.CheckInvariants(); err != nil {
			return lottery.Activity{}, fmt.Errorf("%w: %v", ErrInvariantViolation, err)
		}

		err = s.repo.AppendResults(ctx, lotteryID, len(activity.Results), delta, true, now)
		if errors.Is(err, lottery.ErrVersionConflict) {
			// A claim (or another finalizer) got there first. Recompute
			// from the new state; if it turned out completed, the next
			// iteration reports the no-op success.
			s.logger.DebugContext(ctx, "finalize lost append race, retrying",
				"lottery_id", lotteryID,
				"attempt", attempt+1,
			)
			continue
		}
		if err != nil {
			return lottery.Activity{}, fmt.Errorf("append finalize results: %w", err)
		}

		s.logger.InfoContext(ctx, "lottery finalized",
			"lottery_id", lotteryID,
			"system_results", len(delta),
			"total_results", len(next.Results),
		)

		if err := s.notifier.PublishCompleted(ctx, next); err != nil {
			s.logger.WarnContext(ctx, "completion notification failed",
				"lottery_id", lotteryID,
				"error", err,
			)
		}

		return next, nil
	}

	return lottery.Activity{}, fmt.Errorf("%w: finalize for lottery %s", ErrConflict, lotteryID)
}
