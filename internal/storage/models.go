package storage

import "time"

// Game status values. A game is the durable record of one round.
const (
	GameWaiting = "waiting"
	GameActive  = "active"
	GameCrashed = "crashed"
)

// Bet status values. Won and lost are terminal.
const (
	BetActive = "active"
	BetWon    = "won"
	BetLost   = "lost"
)

// Transaction types and statuses.
const (
	TxDeposit    = "deposit"
	TxWithdrawal = "withdrawal"
	TxBet        = "bet"
	TxWin        = "win"

	TxPending   = "pending"
	TxCompleted = "completed"
	TxFailed    = "failed"
)

type User struct {
	ID             int64     `json:"id"`
	ExternalID     string    `json:"externalId"`
	Username       string    `json:"username"`
	Balance        float64   `json:"balance"`
	DepositAddress string    `json:"depositAddress,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

type Game struct {
	ID         int64      `json:"id"`
	CrashPoint float64    `json:"crashPoint"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"startedAt"`
	EndedAt    *time.Time `json:"endedAt,omitempty"`
}

type Bet struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	GameID    int64     `json:"gameId"`
	Amount    float64   `json:"amount"`
	CashoutAt *float64  `json:"cashoutAt,omitempty"`
	Profit    *float64  `json:"profit,omitempty"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type Transaction struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"userId"`
	Type        string     `json:"type"`
	Amount      float64    `json:"amount"`
	Status      string     `json:"status"`
	TxHash      string     `json:"txHash,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}
