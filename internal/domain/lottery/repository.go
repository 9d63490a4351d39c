package lottery

import (
	"context"
	"errors"
	"time"
)

// ErrVersionConflict reports that a conditional append lost the race:
// the stored result count moved between the caller's read and its write.
// Callers recover by re-reading and recomputing, never by writing blind.
var ErrVersionConflict = errors.New("lottery was modified concurrently")

// Repository describes activity persistence needs from use cases.
// AppendResults is the sole mutation path after creation: the write only
// commits when the stored activity still holds exactly expectedResults
// results and is not completed, which makes claim/finalize races safe
// across processes.
type Repository interface {
	Create(ctx context.Context, activity Activity) error
	GetByID(ctx context.Context, id string) (Activity, bool, error)
	AppendResults(ctx context.Context, id string, expectedResults int, results []Result, completed bool, updatedAt time.Time) error
	// ListDue returns open activities whose draw time is at or before now.
	ListDue(ctx context.Context, now time.Time) ([]Activity, error)
}
