package cache

import (
	"context"
	"time"

	"github.com/riskibarqy/coindraw/internal/domain/lottery"
	basecache "github.com/riskibarqy/coindraw/internal/platform/cache"
)

// LotteryRepository caches reads in front of a backing repository. Only
// completed activities enter the cache: once sealed an activity never
// changes again, so a hit can be served without any staleness concern.
// Open activities always go to the backing store.
type LotteryRepository struct {
	next  lottery.Repository
	cache *basecache.Store
}

func NewLotteryRepository(next lottery.Repository, cache *basecache.Store) *LotteryRepository {
	return &LotteryRepository{next: next, cache: cache}
}

func (r *LotteryRepository) Create(ctx context.Context, activity lottery.Activity) error {
	return r.next.Create(ctx, activity)
}

func (r *LotteryRepository) GetByID(ctx context.Context, id string) (lottery.Activity, bool, error) {
	key := lotteryKey(id)
	if v, ok := r.cache.Get(ctx, key); ok {
		if cached, ok := v.(lottery.Activity); ok {
			return cloneActivity(cached), true, nil
		}
	}

	activity, exists, err := r.next.GetByID(ctx, id)
	if err != nil || !exists {
		return lottery.Activity{}, exists, err
	}
	if activity.Completed {
		r.cache.Set(ctx, key, cloneActivity(activity))
	}

	return activity, true, nil
}

func (r *LotteryRepository) AppendResults(ctx context.Context, id string, expectedResults int, results []lottery.Result, completed bool, updatedAt time.Time) error {
	return r.next.AppendResults(ctx, id, expectedResults, results, completed, updatedAt)
}

func (r *LotteryRepository) ListDue(ctx context.Context, now time.Time) ([]lottery.Activity, error) {
	return r.next.ListDue(ctx, now)
}

func lotteryKey(id string) string {
	return "lottery:id:" + id
}

func cloneActivity(a lottery.Activity) lottery.Activity {
	out := a
	out.Config.Participants = append([]string(nil), a.Config.Participants...)
	out.Results = append([]lottery.Result(nil), a.Results...)
	return out
}
