package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/riskibarqy/coindraw/internal/domain/lottery"
)

// LotteryRepository keeps activities in process memory. The conditional
// append runs under the write lock, giving the same
// compare-result-count-then-write semantics the postgres repository gets
// from its transactional update.
type LotteryRepository struct {
	mu     sync.RWMutex
	items  map[string]lottery.Activity
	orders []string
}

func NewLotteryRepository() *LotteryRepository {
	return &LotteryRepository{items: make(map[string]lottery.Activity)}
}

func (r *LotteryRepository) Create(_ context.Context, activity lottery.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[activity.ID]; ok {
		return fmt.Errorf("lottery %s already exists", activity.ID)
	}

	r.items[activity.ID] = cloneActivity(activity)
	r.orders = append(r.orders, activity.ID)
	return nil
}

func (r *LotteryRepository) GetByID(_ context.Context, id string) (lottery.Activity, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	activity, ok := r.items[id]
	if !ok {
		return lottery.Activity{}, false, nil
	}

	return cloneActivity(activity), true, nil
}

func (r *LotteryRepository) AppendResults(_ context.Context, id string, expectedResults int, results []lottery.Result, completed bool, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	activity, ok := r.items[id]
	if !ok {
		return fmt.Errorf("lottery %s not found", id)
	}
	if activity.Completed || len(activity.Results) != expectedResults {
		return lottery.ErrVersionConflict
	}

	next := cloneActivity(activity)
	next.Results = append(next.Results, results...)
	next.Completed = completed
	next.UpdatedAt = updatedAt
	r.items[id] = next

	return nil
}

func (r *LotteryRepository) ListDue(_ context.Context, now time.Time) ([]lottery.Activity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []lottery.Activity
	for _, id := range r.orders {
		activity := r.items[id]
		if activity.Completed || activity.Config.DrawTime.After(now) {
			continue
		}
		out = append(out, cloneActivity(activity))
	}

	return out, nil
}

func cloneActivity(a lottery.Activity) lottery.Activity {
	copied := a
	copied.Config.Participants = append([]string(nil), a.Config.Participants...)
	copied.Results = append([]lottery.Result(nil), a.Results...)
	return copied
}
