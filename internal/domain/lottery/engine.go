package lottery

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrAlreadyCompleted   = errors.New("lottery already completed")
	ErrDeadlinePassed     = errors.New("claim deadline has passed")
	ErrUnknownParticipant = errors.New("participant is not part of this lottery")
	ErrAlreadyClaimed     = errors.New("participant already claimed")
)

// ApplyClaim computes the manual result for one claiming participant
// against a snapshot of the activity. It performs no I/O; the caller
// persists the result through the repository's conditional append and
// retries from a fresh snapshot on conflict.
func ApplyClaim(a Activity, participantName string, now time.Time, src RandomSource) (Result, error) {
	if a.Completed {
		return Result{}, ErrAlreadyCompleted
	}
	if !now.Before(a.Config.DrawTime) {
		return Result{}, ErrDeadlinePassed
	}
	if !a.Config.HasParticipant(participantName) {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownParticipant, participantName)
	}
	if a.HasManualResult(participantName) {
		return Result{}, fmt.Errorf("%w: %s", ErrAlreadyClaimed, participantName)
	}

	coins, err := Draw(src, a.RemainingCoins(), a.ManualClaimantsLeft())
	if err != nil {
		return Result{}, err
	}

	return Result{
		ParticipantName: participantName,
		Coins:           coins,
		DrawnAt:         now,
		Origin:          OriginManual,
	}, nil
}

// FinalizeDelta computes the system results that seal the activity:
// every participant with no result of any origin receives a share, the
// last of them taking exactly the leftover so the pool sums to the
// configured total. An empty delta with a nil error means every
// participant already holds a result and the activity only needs its
// completed flag set.
//
// Finalization considers all prior results, not just manual ones, so
// recomputing the delta against a state that already contains partial
// system allocations never double-assigns anyone.
func FinalizeDelta(a Activity, now time.Time, src RandomSource) ([]Result, error) {
	if a.Completed {
		return nil, ErrAlreadyCompleted
	}

	unassigned := a.Unassigned()
	if len(unassigned) == 0 {
		return nil, nil
	}

	remaining := a.RemainingCoins()
	out := make([]Result, 0, len(unassigned))
	for i, name := range unassigned {
		coins := remaining
		if i < len(unassigned)-1 {
			var err error
			coins, err = Draw(src, remaining, len(unassigned)-i)
			if err != nil {
				return nil, err
			}
		}
		remaining -= coins

		out = append(out, Result{
			ParticipantName: name,
			Coins:           coins,
			DrawnAt:         now,
			Origin:          OriginSystem,
		})
	}

	return out, nil
}
