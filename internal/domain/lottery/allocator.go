package lottery

import (
	"errors"
	"fmt"
)

// RandomSource yields uniform random integers for coin draws. It is
// injected so tests can make draws reproducible.
type RandomSource interface {
	// IntN returns a uniform value in [0, n). n must be > 0.
	IntN(n int) int
}

// ErrInfeasibleAllocation reports a draw whose bounds cannot leave at
// least one coin for every remaining claimant. Creation-time validation
// prevents this state; reaching it means a corrupted activity.
var ErrInfeasibleAllocation = errors.New("infeasible coin allocation")

// Draw returns the coin share for one claimant given the remaining pool
// and the number of claimants still unserved (including this one).
//
// The last claimant absorbs the whole remainder so the pool is exhausted
// exactly. Everyone else draws uniformly from [1, min(2*average,
// remainingCoins-(remainingClaimants-1))]; the second bound keeps at
// least one coin available per other claimant.
func Draw(src RandomSource, remainingCoins, remainingClaimants int) (int, error) {
	if remainingCoins < 1 || remainingClaimants < 1 {
		return 0, fmt.Errorf("%w: coins=%d claimants=%d", ErrInfeasibleAllocation, remainingCoins, remainingClaimants)
	}
	if remainingClaimants == 1 {
		return remainingCoins, nil
	}

	average := remainingCoins / remainingClaimants
	upper := 2 * average
	if feasible := remainingCoins - (remainingClaimants - 1); feasible < upper {
		upper = feasible
	}
	if upper < 1 {
		return 0, fmt.Errorf("%w: coins=%d claimants=%d", ErrInfeasibleAllocation, remainingCoins, remainingClaimants)
	}

	return 1 + src.IntN(upper), nil
}
