package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jmoiron/sqlx"
	"github.com/riskibarqy/coindraw/internal/domain/lottery"
)

// LotteryRepository persists activities in postgres. Appends are guarded
// twice: a conditional update on the stored result count, and a unique
// index on (lottery, participant) that turns a duplicate result into the
// same conflict error. Either guard alone is enough to keep the pool
// from overdrawing.
type LotteryRepository struct {
	db *sqlx.DB
}

func NewLotteryRepository(db *sqlx.DB) *LotteryRepository {
	return &LotteryRepository{db: db}
}

func (r *LotteryRepository) Create(ctx context.Context, activity lottery.Activity) error {
	participants, err := sonic.Marshal(activity.Config.Participants)
	if err != nil {
		return fmt.Errorf("encode participants: %w", err)
	}

	const insertQuery = `
INSERT INTO lotteries (public_id, total_coins, participants, draw_time, completed, result_count, created_at, updated_at)
VALUES (:public_id, :total_coins, :participants, :draw_time, FALSE, 0, :created_at, :updated_at)`

	insertSQL, insertArgs, err := sqlx.Named(insertQuery, map[string]any{
		"public_id":    activity.ID,
		"total_coins":  activity.Config.TotalCoins,
		"participants": participants,
		"draw_time":    activity.Config.DrawTime,
		"created_at":   activity.CreatedAt,
		"updated_at":   activity.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("bind insert lottery query: %w", err)
	}
	insertSQL = r.db.Rebind(insertSQL)

	if _, err := r.db.ExecContext(ctx, insertSQL, insertArgs...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("lottery %s already exists", activity.ID)
		}
		return fmt.Errorf("insert lottery: %w", err)
	}

	return nil
}

func (r *LotteryRepository) GetByID(ctx context.Context, id string) (lottery.Activity, bool, error) {
	const lotteryQuery = `
SELECT public_id, total_coins, participants, draw_time, completed, result_count, created_at, updated_at
FROM lotteries
WHERE public_id = $1`

	var row lotteryTableModel
	if err := r.db.GetContext(ctx, &row, lotteryQuery, id); err != nil {
		if isNotFound(err) {
			return lottery.Activity{}, false, nil
		}
		return lottery.Activity{}, false, fmt.Errorf("get lottery: %w", err)
	}

	const resultsQuery = `
SELECT lottery_public_id, participant_name, coins, origin, drawn_at
FROM lottery_results
WHERE lottery_public_id = $1
ORDER BY id`

	var resultRows []lotteryResultTableModel
	if err := r.db.SelectContext(ctx, &resultRows, resultsQuery, id); err != nil {
		return lottery.Activity{}, false, fmt.Errorf("list lottery results: %w", err)
	}

	activity, err := toActivity(row, resultRows)
	if err != nil {
		return lottery.Activity{}, false, err
	}
	return activity, true, nil
}

func (r *LotteryRepository) AppendResults(ctx context.Context, id string, expectedResults int, results []lottery.Result, completed bool, updatedAt time.Time) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx for append results: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// The update succeeds only against the exact state the caller read.
	// Zero rows means someone else wrote in between (or the lottery is
	// already sealed), and the caller must recompute from a fresh read.
	const guardQuery = `
UPDATE lotteries
SET result_count = result_count + :delta,
    completed = :completed,
    updated_at = :updated_at
WHERE public_id = :public_id
  AND completed = FALSE
  AND result_count = :expected_count`

	guardSQL, guardArgs, err := sqlx.Named(guardQuery, map[string]any{
		"public_id":      id,
		"delta":          len(results),
		"completed":      completed,
		"updated_at":     updatedAt,
		"expected_count": expectedResults,
	})
	if err != nil {
		return fmt.Errorf("bind append guard query: %w", err)
	}
	guardSQL = tx.Rebind(guardSQL)

	res, err := tx.ExecContext(ctx, guardSQL, guardArgs...)
	if err != nil {
		return fmt.Errorf("guard lottery update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read guard rows affected: %w", err)
	}
	if affected == 0 {
		var exists bool
		if err := tx.GetContext(ctx, &exists, tx.Rebind(`SELECT EXISTS (SELECT 1 FROM lotteries WHERE public_id = ?)`), id); err != nil {
			return fmt.Errorf("check lottery existence: %w", err)
		}
		if !exists {
			return fmt.Errorf("lottery %s not found", id)
		}
		return lottery.ErrVersionConflict
	}

	const insertResultQuery = `
INSERT INTO lottery_results (lottery_public_id, participant_name, coins, origin, drawn_at)
VALUES (:lottery_public_id, :participant_name, :coins, :origin, :drawn_at)`

	for _, result := range results {
		resultSQL, resultArgs, err := sqlx.Named(insertResultQuery, map[string]any{
			"lottery_public_id": id,
			"participant_name":  result.ParticipantName,
			"coins":             result.Coins,
			"origin":            string(result.Origin),
			"drawn_at":          result.DrawnAt,
		})
		if err != nil {
			return fmt.Errorf("bind insert result participant=%s query: %w", result.ParticipantName, err)
		}
		resultSQL = tx.Rebind(resultSQL)
		if _, err := tx.ExecContext(ctx, resultSQL, resultArgs...); err != nil {
			if isUniqueViolation(err) {
				return lottery.ErrVersionConflict
			}
			return fmt.Errorf("insert result participant=%s: %w", result.ParticipantName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit append results tx: %w", err)
	}

	return nil
}

// ListDue returns open lotteries whose draw time has passed. Result rows
// are not hydrated here; finalization always re-reads through GetByID
// before computing anything.
func (r *LotteryRepository) ListDue(ctx context.Context, now time.Time) ([]lottery.Activity, error) {
	const dueQuery = `
SELECT public_id, total_coins, participants, draw_time, completed, result_count, created_at, updated_at
FROM lotteries
WHERE completed = FALSE
  AND draw_time <= $1
ORDER BY draw_time, id`

	var rows []lotteryTableModel
	if err := r.db.SelectContext(ctx, &rows, dueQuery, now); err != nil {
		return nil, fmt.Errorf("list due lotteries: %w", err)
	}

	out := make([]lottery.Activity, 0, len(rows))
	for _, row := range rows {
		activity, err := toActivity(row, nil)
		if err != nil {
			return nil, err
		}
		out = append(out, activity)
	}

	return out, nil
}

func toActivity(row lotteryTableModel, resultRows []lotteryResultTableModel) (lottery.Activity, error) {
	var participants []string
	if err := sonic.Unmarshal(row.Participants, &participants); err != nil {
		return lottery.Activity{}, fmt.Errorf("decode participants for lottery %s: %w", row.PublicID, err)
	}

	results := make([]lottery.Result, 0, len(resultRows))
	for _, r := range resultRows {
		results = append(results, lottery.Result{
			ParticipantName: r.ParticipantName,
			Coins:           r.Coins,
			DrawnAt:         r.DrawnAt.UTC(),
			Origin:          lottery.Origin(r.Origin),
		})
	}

	return lottery.Activity{
		ID: row.PublicID,
		Config: lottery.Config{
			TotalCoins:   row.TotalCoins,
			Participants: participants,
			DrawTime:     row.DrawTime.UTC(),
		},
		Results:   results,
		Completed: row.Completed,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}, nil
}
