package game

// Round phases as they appear on the wire.
const (
	StateWaiting = "waiting"
	StateActive  = "active"
	StateCrashed = "crashed"
)

// Snapshot is the broadcastable projection of the current round. It is
// recomputed by the game loop on every transition and tick, never persisted.
type Snapshot struct {
	Status     string
	RoundID    int64
	Countdown  int
	Multiplier float64
	CrashPoint float64
}

// Wire messages. Field names are camelCase because they are the client
// protocol contract.

type GameStateMessage struct {
	Type       string   `json:"type"` // always "gameState"
	State      string   `json:"state"`
	RoundID    int64    `json:"roundId"`
	Countdown  *int     `json:"countdown,omitempty"`
	Multiplier *float64 `json:"multiplier,omitempty"`
	CrashPoint *float64 `json:"crashPoint,omitempty"`
}

type BetMessage struct {
	Type       string  `json:"type"` // always "bet"
	UserID     int64   `json:"userId"`
	ExternalID string  `json:"externalId"`
	Username   string  `json:"username"`
	Amount     float64 `json:"amount"`
	RoundID    int64   `json:"roundId"`
}

type CashoutMessage struct {
	Type       string  `json:"type"` // always "cashout"
	UserID     int64   `json:"userId"`
	ExternalID string  `json:"externalId"`
	Username   string  `json:"username"`
	Multiplier float64 `json:"multiplier"`
	Amount     float64 `json:"amount"`
	Profit     float64 `json:"profit"`
}

type CrashMessage struct {
	Type       string  `json:"type"` // always "crash"
	RoundID    int64   `json:"roundId"`
	CrashPoint float64 `json:"crashPoint"`
}

type PlayerUpdateMessage struct {
	Type      string  `json:"type"` // always "playerUpdate"
	Count     int     `json:"count"`
	TotalBets float64 `json:"totalBets"`
}

type LeaderboardEntry struct {
	Username   string   `json:"username"`
	ExternalID string   `json:"externalId"`
	Amount     float64  `json:"amount"`
	Multiplier *float64 `json:"multiplier,omitempty"`
	Profit     *float64 `json:"profit,omitempty"`
	Status     string   `json:"status"`
}

type LeaderboardMessage struct {
	Type    string             `json:"type"` // always "leaderboard"
	TopBets []LeaderboardEntry `json:"topBets"`
}

type ErrorMessage struct {
	Type    string `json:"type"` // always "error"
	Message string `json:"message"`
}

// ClientMessage is the inbound envelope read off a viewer session.
// Type is "placeBet", "cashout" or "ping".
type ClientMessage struct {
	Type       string  `json:"type"`
	ExternalID string  `json:"externalId,omitempty"`
	Amount     float64 `json:"amount,omitempty"`
}

func (s Snapshot) Message() GameStateMessage {
	msg := GameStateMessage{
		Type:    "gameState",
		State:   s.Status,
		RoundID: s.RoundID,
	}
	switch s.Status {
	case StateWaiting:
		countdown := s.Countdown
		msg.Countdown = &countdown
	case StateActive:
		mult := s.Multiplier
		msg.Multiplier = &mult
	case StateCrashed:
		mult := s.Multiplier
		crash := s.CrashPoint
		msg.Multiplier = &mult
		msg.CrashPoint = &crash
	}
	return msg
}
