package storage

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound            = errors.New("storage: not found")
	ErrInsufficientBalance = errors.New("storage: insufficient balance")
	ErrDuplicateBet        = errors.New("storage: bet already exists for this game")
)

// Store is the ledger contract the game core and HTTP layer depend on.
// PlaceBet and SettleCashout are transactional: the bet row, the balance
// mutation and the transaction record commit or roll back together.
type Store interface {
	GetUser(ctx context.Context, id int64) (*User, error)
	GetUserByExternalID(ctx context.Context, externalID string) (*User, error)
	CreateUser(ctx context.Context, externalID, username, depositAddress string) (*User, error)
	AdjustBalance(ctx context.Context, userID int64, delta float64) (*User, error)

	CreateGame(ctx context.Context, crashPoint float64) (*Game, error)
	UpdateGameStatus(ctx context.Context, gameID int64, status string) (*Game, error)
	GetRecentGames(ctx context.Context, limit int) ([]Game, error)

	PlaceBet(ctx context.Context, userID, gameID int64, amount float64) (*Bet, error)
	SettleCashout(ctx context.Context, betID int64, multiplier float64) (*Bet, error)
	MarkBetsLostForGame(ctx context.Context, gameID int64) (int64, error)
	GetBetsByGame(ctx context.Context, gameID int64) ([]Bet, error)

	CreateTransaction(ctx context.Context, userID int64, txType string, amount float64, status, txHash string) (*Transaction, error)
	GetTransactionsByUser(ctx context.Context, userID int64) ([]Transaction, error)
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = "id, external_id, username, balance, COALESCE(deposit_address, ''), created_at"

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.ExternalID, &u.Username, &u.Balance, &u.DepositAddress, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = $1", id)
	return scanUser(row)
}

func (s *PostgresStore) GetUserByExternalID(ctx context.Context, externalID string) (*User, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE external_id = $1", externalID)
	return scanUser(row)
}

func (s *PostgresStore) CreateUser(ctx context.Context, externalID, username, depositAddress string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		"INSERT INTO users (external_id, username, deposit_address) VALUES ($1, $2, $3) RETURNING "+userColumns,
		externalID, username, depositAddress)
	return scanUser(row)
}

// AdjustBalance applies a signed delta and refuses to take the balance
// negative, which covers the withdrawal path.
func (s *PostgresStore) AdjustBalance(ctx context.Context, userID int64, delta float64) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		"UPDATE users SET balance = balance + $1 WHERE id = $2 AND balance + $1 >= 0 RETURNING "+userColumns,
		delta, userID)
	u, err := scanUser(row)
	if errors.Is(err, ErrNotFound) {
		if _, lookupErr := s.GetUser(ctx, userID); lookupErr != nil {
			return nil, lookupErr
		}
		return nil, ErrInsufficientBalance
	}
	return u, err
}

const gameColumns = "id, crash_point, status, started_at, ended_at"

func scanGame(row interface{ Scan(...any) error }) (*Game, error) {
	var g Game
	err := row.Scan(&g.ID, &g.CrashPoint, &g.Status, &g.StartedAt, &g.EndedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *PostgresStore) CreateGame(ctx context.Context, crashPoint float64) (*Game, error) {
	row := s.db.QueryRowContext(ctx,
		"INSERT INTO games (crash_point, status) VALUES ($1, $2) RETURNING "+gameColumns,
		crashPoint, GameWaiting)
	return scanGame(row)
}

func (s *PostgresStore) UpdateGameStatus(ctx context.Context, gameID int64, status string) (*Game, error) {
	query := "UPDATE games SET status = $1 WHERE id = $2 RETURNING " + gameColumns
	if status == GameCrashed {
		query = "UPDATE games SET status = $1, ended_at = now() WHERE id = $2 RETURNING " + gameColumns
	}
	row := s.db.QueryRowContext(ctx, query, status, gameID)
	return scanGame(row)
}

func (s *PostgresStore) GetRecentGames(ctx context.Context, limit int) ([]Game, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+gameColumns+" FROM games ORDER BY started_at DESC LIMIT $1", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, *g)
	}
	return games, rows.Err()
}

const betColumns = "id, user_id, game_id, amount, cashout_at, profit, status, created_at"

func scanBet(row interface{ Scan(...any) error }) (*Bet, error) {
	var b Bet
	err := row.Scan(&b.ID, &b.UserID, &b.GameID, &b.Amount, &b.CashoutAt, &b.Profit, &b.Status, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// PlaceBet creates the bet, debits the stake and records the ledger entry in
// one transaction. A bet never exists without its debit.
func (s *PostgresStore) PlaceBet(ctx context.Context, userID, gameID int64, amount float64) (*Bet, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var balance float64
	err = tx.QueryRowContext(ctx, "SELECT balance FROM users WHERE id = $1 FOR UPDATE", userID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if balance < amount {
		return nil, ErrInsufficientBalance
	}

	row := tx.QueryRowContext(ctx,
		"INSERT INTO bets (user_id, game_id, amount, status) VALUES ($1, $2, $3, $4) RETURNING "+betColumns,
		userID, gameID, amount, BetActive)
	bet, err := scanBet(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateBet
		}
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, "UPDATE users SET balance = balance - $1 WHERE id = $2", amount, userID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO transactions (user_id, type, amount, status, completed_at) VALUES ($1, $2, $3, $4, now())",
		userID, TxBet, -amount, TxCompleted); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return bet, nil
}

// SettleCashout marks an active bet won at the given multiplier, credits the
// payout and records the win, all in one transaction. Bets already settled
// (won or lost) are not matched, so a duplicate cashout reports ErrNotFound.
func (s *PostgresStore) SettleCashout(ctx context.Context, betID int64, multiplier float64) (*Bet, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		"SELECT "+betColumns+" FROM bets WHERE id = $1 AND status = $2 FOR UPDATE", betID, BetActive)
	bet, err := scanBet(row)
	if err != nil {
		return nil, err
	}

	winAmount := bet.Amount * multiplier
	profit := winAmount - bet.Amount

	row = tx.QueryRowContext(ctx,
		"UPDATE bets SET cashout_at = $1, profit = $2, status = $3 WHERE id = $4 RETURNING "+betColumns,
		multiplier, profit, BetWon, betID)
	bet, err = scanBet(row)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, "UPDATE users SET balance = balance + $1 WHERE id = $2", winAmount, bet.UserID); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO transactions (user_id, type, amount, status, completed_at) VALUES ($1, $2, $3, $4, now())",
		bet.UserID, TxWin, winAmount, TxCompleted); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return bet, nil
}

// MarkBetsLostForGame is the crash finalizer: every bet still active for the
// game flips to lost. Bets already won are untouched.
func (s *PostgresStore) MarkBetsLostForGame(ctx context.Context, gameID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE bets SET status = $1 WHERE game_id = $2 AND status = $3",
		BetLost, gameID, BetActive)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *PostgresStore) GetBetsByGame(ctx context.Context, gameID int64) ([]Bet, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+betColumns+" FROM bets WHERE game_id = $1 ORDER BY amount DESC", gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bets []Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, err
		}
		bets = append(bets, *b)
	}
	return bets, rows.Err()
}

const txColumns = "id, user_id, type, amount, status, COALESCE(tx_hash, ''), created_at, completed_at"

func scanTransaction(row interface{ Scan(...any) error }) (*Transaction, error) {
	var t Transaction
	err := row.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Status, &t.TxHash, &t.CreatedAt, &t.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) CreateTransaction(ctx context.Context, userID int64, txType string, amount float64, status, txHash string) (*Transaction, error) {
	var hash any
	if txHash != "" {
		hash = txHash
	}
	query := "INSERT INTO transactions (user_id, type, amount, status, tx_hash) VALUES ($1, $2, $3, $4, $5) RETURNING " + txColumns
	if status == TxCompleted {
		query = "INSERT INTO transactions (user_id, type, amount, status, tx_hash, completed_at) VALUES ($1, $2, $3, $4, $5, now()) RETURNING " + txColumns
	}
	row := s.db.QueryRowContext(ctx, query, userID, txType, amount, status, hash)
	return scanTransaction(row)
}

func (s *PostgresStore) GetTransactionsByUser(ctx context.Context, userID int64) ([]Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+txColumns+" FROM transactions WHERE user_id = $1 ORDER BY created_at DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, *t)
	}
	return txs, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

var _ Store = (*PostgresStore)(nil)
