package postgres

import "time"

type lotteryTableModel struct {
	ID           int64     `db:"id"`
	PublicID     string    `db:"public_id"`
	TotalCoins   int       `db:"total_coins"`
	Participants []byte    `db:"participants"`
	DrawTime     time.Time `db:"draw_time"`
	Completed    bool      `db:"completed"`
	ResultCount  int       `db:"result_count"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

type lotteryResultTableModel struct {
	ID              int64     `db:"id"`
	LotteryPublicID string    `db:"lottery_public_id"`
	ParticipantName string    `db:"participant_name"`
	Coins           int       `db:"coins"`
	Origin          string    `db:"origin"`
	DrawnAt         time.Time `db:"drawn_at"`
}
