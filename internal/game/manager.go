package game

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"dogecrash/internal/storage"
)

const (
	betTimeout     = 5 * time.Second
	cashoutTimeout = 5 * time.Second

	// storeTimeout bounds every storage call the round owns. It is shorter
	// than the reply timeouts, so an admitted action resolves before its
	// caller stops waiting.
	storeTimeout = 3 * time.Second
)

// Config carries the round tuning knobs. The exact constants are inherited
// gameplay tuning, not load-bearing design.
type Config struct {
	CountdownSeconds int
	CountdownTick    time.Duration
	Cooldown         time.Duration

	BaseTick      time.Duration
	MidTick       time.Duration
	FastTick      time.Duration
	MidThreshold  float64
	FastThreshold float64

	IncrementK float64
	IncrementP float64

	MinBet          float64
	MaxBet          float64
	LeaderboardSize int

	// CrashPoint draws the terminal multiplier for a new round.
	CrashPoint func() float64
}

func DefaultConfig() Config {
	return Config{
		CountdownSeconds: 10,
		CountdownTick:    time.Second,
		Cooldown:         3 * time.Second,
		BaseTick:         100 * time.Millisecond,
		MidTick:          50 * time.Millisecond,
		FastTick:         30 * time.Millisecond,
		MidThreshold:     2.0,
		FastThreshold:    5.0,
		IncrementK:       0.01,
		IncrementP:       0.3,
		MinBet:           1.0,
		MaxBet:           10000.0,
		LeaderboardSize:  10,
		CrashPoint:       RandomCrashPoint,
	}
}

// HistoryRecorder receives the crash point of every finished round.
type HistoryRecorder interface {
	RecordCrash(ctx context.Context, roundID int64, crashPoint float64) error
}

type betRequest struct {
	user     *storage.User
	amount   float64
	deadline time.Time
	resp     chan betResult
}

type betResult struct {
	bet *storage.Bet
	err error
}

type cashoutRequest struct {
	user     *storage.User
	deadline time.Time
	resp     chan cashoutResult
}

// CashoutOutcome reports a resolved cash-out back to the requester.
type CashoutOutcome struct {
	Bet        *storage.Bet
	Multiplier float64
	Payout     float64
	Profit     float64
}

type cashoutResult struct {
	outcome CashoutOutcome
	err     error
}

type betEntry struct {
	bet  *storage.Bet
	user *storage.User
}

type round struct {
	game    *storage.Game
	clock   *Clock
	bets    map[int64]*betEntry // keyed by user ID
	pending map[int64]bool      // user IDs with a bet write in flight
}

// Manager runs the shared round timeline. A single goroutine owns all round
// state; ticks and player actions enter through channels and are processed
// in arrival order, so crash-marking and cash-out resolution for the same
// bet can never interleave. Decisions happen in memory inside the loop;
// the matching storage writes run off-loop and reconcile through mirrorCh,
// keeping tick delivery independent of storage latency.
type Manager struct {
	cfg     Config
	hub     *Hub
	store   storage.Store
	history HistoryRecorder
	ctx     context.Context

	betCh     chan betRequest
	cashoutCh chan cashoutRequest
	mirrorCh  chan func()
	stopCh    chan struct{}

	inflight int // storage writes not yet reconciled, loop-owned

	stateMu  sync.RWMutex
	snapshot Snapshot
}

func NewManager(cfg Config, hub *Hub, store storage.Store, history HistoryRecorder) *Manager {
	if cfg.CrashPoint == nil {
		cfg.CrashPoint = RandomCrashPoint
	}
	return &Manager{
		cfg:       cfg,
		hub:       hub,
		store:     store,
		history:   history,
		ctx:       context.Background(),
		betCh:     make(chan betRequest, 1000),
		cashoutCh: make(chan cashoutRequest, 1000),
		mirrorCh:  make(chan func(), 1000),
		stopCh:    make(chan struct{}),
	}
}

func (m *Manager) Start() {
	go m.gameLoop()
}

func (m *Manager) Stop() {
	close(m.stopCh)
}

// Snapshot returns the current broadcastable round state. It is updated
// synchronously by the game loop before the matching broadcast goes out, so
// a late joiner never sees state older than the live feed.
func (m *Manager) Snapshot() Snapshot {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.snapshot
}

// PlaceBet submits a bet for the current round and waits for the loop to
// admit or reject it. A request the loop only reaches after this deadline is
// skipped, never admitted.
func (m *Manager) PlaceBet(user *storage.User, amount float64) (*storage.Bet, error) {
	resp := make(chan betResult, 1)
	req := betRequest{user: user, amount: amount, deadline: time.Now().Add(betTimeout), resp: resp}
	select {
	case m.betCh <- req:
	default:
		return nil, ErrQueueFull
	}

	select {
	case result := <-resp:
		return result.bet, result.err
	case <-time.After(betTimeout):
		return nil, ErrActionTimeout
	}
}

// Cashout resolves the user's active bet at the multiplier current when the
// loop processes the request.
func (m *Manager) Cashout(user *storage.User) (CashoutOutcome, error) {
	resp := make(chan cashoutResult, 1)
	req := cashoutRequest{user: user, deadline: time.Now().Add(cashoutTimeout), resp: resp}
	select {
	case m.cashoutCh <- req:
	default:
		return CashoutOutcome{}, ErrQueueFull
	}

	select {
	case result := <-resp:
		return result.outcome, result.err
	case <-time.After(cashoutTimeout):
		return CashoutOutcome{}, ErrActionTimeout
	}
}

func (m *Manager) gameLoop() {
	for {
		select {
		case <-m.stopCh:
			log.Println("[GAME] Game loop stopped")
			return
		default:
		}

		if err := m.runRound(); err != nil {
			log.Printf("[GAME] Round aborted: %v", err)
			time.Sleep(time.Second)
		}
	}
}

// runMirror executes blocking storage work off the loop goroutine. The work
// function returns a completion closure, which the loop runs itself; round
// state is only ever touched from the loop.
func (m *Manager) runMirror(work func() func()) {
	m.inflight++
	go func() {
		complete := work()
		m.mirrorCh <- func() {
			m.inflight--
			complete()
		}
	}()
}

// drainMirrors blocks until every in-flight storage write has reconciled.
// Runs on the crash transition, so loss finalization never races a pending
// settle or bet insert.
func (m *Manager) drainMirrors() {
	for m.inflight > 0 {
		select {
		case fn := <-m.mirrorCh:
			fn()
		case req := <-m.betCh:
			req.resp <- betResult{err: ErrRoundNotWaiting}
		case req := <-m.cashoutCh:
			req.resp <- cashoutResult{err: ErrRoundNotActive}
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) storeCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(m.ctx, storeTimeout)
}

func (m *Manager) runRound() error {
	crashPoint := m.cfg.CrashPoint()

	ctx, cancel := m.storeCtx()
	game, err := m.store.CreateGame(ctx, crashPoint)
	cancel()
	if err != nil {
		return fmt.Errorf("create game: %w", err)
	}

	r := &round{
		game:    game,
		bets:    make(map[int64]*betEntry),
		pending: make(map[int64]bool),
	}

	log.Printf("[GAME] Round %d created (crash point %.2fx, hidden)", game.ID, crashPoint)

	if !m.runWaiting(r) {
		return nil
	}
	if !m.runActive(r) {
		return nil
	}
	return m.finishRound(r)
}

// runWaiting drives the betting window: a fixed countdown broadcast once per
// decrement. Bets are admissible; cash-outs are rejected. Returns false on
// shutdown.
func (m *Manager) runWaiting(r *round) bool {
	countdown := m.cfg.CountdownSeconds
	m.setSnapshot(Snapshot{Status: StateWaiting, RoundID: r.game.ID, Countdown: countdown})
	m.hub.Broadcast(m.Snapshot().Message())

	ticker := time.NewTicker(m.cfg.CountdownTick)
	defer ticker.Stop()

	for countdown > 0 {
		select {
		case <-ticker.C:
			countdown--
			m.setSnapshot(Snapshot{Status: StateWaiting, RoundID: r.game.ID, Countdown: countdown})
			m.hub.Broadcast(m.Snapshot().Message())

		case req := <-m.betCh:
			m.handleBet(r, req)

		case req := <-m.cashoutCh:
			req.resp <- cashoutResult{err: ErrRoundNotActive}

		case fn := <-m.mirrorCh:
			fn()

		case <-m.stopCh:
			return false
		}
	}
	return true
}

// runActive delegates pacing to the round clock. Every tick and every
// cash-out goes through this loop in arrival order. Returns false on
// shutdown.
func (m *Manager) runActive(r *round) bool {
	ctx, cancel := m.storeCtx()
	if _, err := m.store.UpdateGameStatus(ctx, r.game.ID, storage.GameActive); err != nil {
		log.Printf("[GAME] Failed to persist active status for round %d: %v", r.game.ID, err)
	}
	cancel()

	r.clock = NewClock(m.cfg, r.game.CrashPoint)
	m.setSnapshot(Snapshot{Status: StateActive, RoundID: r.game.ID, Multiplier: r.clock.Multiplier()})
	m.hub.Broadcast(m.Snapshot().Message())
	m.broadcastPlayerUpdate(r)
	m.broadcastLeaderboard(r)

	timer := time.NewTimer(r.clock.NextInterval())
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			multiplier, crashed := r.clock.Tick()
			m.setSnapshot(Snapshot{Status: StateActive, RoundID: r.game.ID, Multiplier: multiplier})
			if crashed {
				return true
			}
			m.hub.Broadcast(m.Snapshot().Message())
			timer.Reset(r.clock.NextInterval())

		case req := <-m.betCh:
			req.resp <- betResult{err: ErrRoundNotWaiting}

		case req := <-m.cashoutCh:
			m.handleCashout(r, req)

		case fn := <-m.mirrorCh:
			fn()

		case <-m.stopCh:
			return false
		}
	}
}

// finishRound is the crashed phase. The crash is announced immediately, then
// in-flight settle and bet writes reconcile, then the remaining in-memory
// bets flip to lost, and only then does persistence finalize. The next round
// is not created until finalization finishes.
func (m *Manager) finishRound(r *round) error {
	crashPoint := r.game.CrashPoint

	m.setSnapshot(Snapshot{
		Status:     StateCrashed,
		RoundID:    r.game.ID,
		Multiplier: crashPoint,
		CrashPoint: crashPoint,
	})
	m.hub.Broadcast(CrashMessage{Type: "crash", RoundID: r.game.ID, CrashPoint: crashPoint})

	m.drainMirrors()

	lost := 0
	for _, entry := range r.bets {
		if entry.bet.Status == storage.BetActive {
			entry.bet.Status = storage.BetLost
			lost++
		}
	}

	log.Printf("[GAME] Round %d crashed at %.2fx (%d bets lost)", r.game.ID, crashPoint, lost)

	ctx, cancel := m.storeCtx()
	if _, err := m.store.UpdateGameStatus(ctx, r.game.ID, storage.GameCrashed); err != nil {
		log.Printf("[GAME] Failed to persist crash for round %d: %v", r.game.ID, err)
	}
	cancel()

	markLost := func() error {
		ctx, cancel := m.storeCtx()
		defer cancel()
		_, err := m.store.MarkBetsLostForGame(ctx, r.game.ID)
		return err
	}
	if err := markLost(); err != nil {
		log.Printf("[GAME] Failed to mark losses for round %d, retrying: %v", r.game.ID, err)
		if err := markLost(); err != nil {
			log.Printf("[GAME] Loss marking for round %d still failing: %v", r.game.ID, err)
		}
	}

	m.broadcastLeaderboard(r)

	if m.history != nil {
		if err := m.history.RecordCrash(m.ctx, r.game.ID, crashPoint); err != nil {
			log.Printf("[GAME] Failed to record crash history: %v", err)
		}
	}

	timer := time.NewTimer(m.cfg.Cooldown)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			return nil
		case req := <-m.betCh:
			req.resp <- betResult{err: ErrRoundNotWaiting}
		case req := <-m.cashoutCh:
			req.resp <- cashoutResult{err: ErrRoundNotActive}
		case fn := <-m.mirrorCh:
			fn()
		case <-m.stopCh:
			return nil
		}
	}
}

// handleBet admits a bet during the waiting phase. Size and duplicate checks
// are decided in memory; the ledger write (bet row + debit + transaction
// record, one SQL transaction) runs off-loop and the reply follows the
// commit, so nothing is admitted that the ledger refused.
func (m *Manager) handleBet(r *round, req betRequest) {
	if !req.deadline.IsZero() && time.Now().After(req.deadline) {
		req.resp <- betResult{err: ErrActionTimeout}
		return
	}
	if req.amount < m.cfg.MinBet {
		req.resp <- betResult{err: ErrBetTooSmall}
		return
	}
	if req.amount > m.cfg.MaxBet {
		req.resp <- betResult{err: ErrBetTooLarge}
		return
	}
	if _, exists := r.bets[req.user.ID]; exists {
		req.resp <- betResult{err: storage.ErrDuplicateBet}
		return
	}
	if r.pending[req.user.ID] {
		req.resp <- betResult{err: storage.ErrDuplicateBet}
		return
	}

	r.pending[req.user.ID] = true
	user := req.user
	amount := req.amount

	m.runMirror(func() func() {
		ctx, cancel := m.storeCtx()
		defer cancel()
		bet, err := m.store.PlaceBet(ctx, user.ID, r.game.ID, amount)

		return func() {
			delete(r.pending, user.ID)

			if err != nil {
				if errors.Is(err, storage.ErrInsufficientBalance) || errors.Is(err, storage.ErrDuplicateBet) {
					req.resp <- betResult{err: err}
				} else {
					req.resp <- betResult{err: fmt.Errorf("place bet: %w", err)}
				}
				return
			}

			// The round may have ended while the write was in flight.
			if r.clock != nil && r.clock.Crashed() {
				bet.Status = storage.BetLost
			}
			r.bets[user.ID] = &betEntry{bet: bet, user: user}
			req.resp <- betResult{bet: bet}

			log.Printf("[BET] User %s placed %.2f on round %d", user.ExternalID, amount, r.game.ID)

			m.hub.Broadcast(BetMessage{
				Type:       "bet",
				UserID:     user.ID,
				ExternalID: user.ExternalID,
				Username:   user.Username,
				Amount:     amount,
				RoundID:    r.game.ID,
			})
			m.broadcastPlayerUpdate(r)
			m.broadcastLeaderboard(r)
		}
	})
}

// handleCashout resolves a cash-out at the clock's reported multiplier. The
// in-memory bet flips to won before the request leaves the loop; the credit
// runs off-loop, and a failed credit feeds a rollback back through the loop
// so the action reads as never applied.
func (m *Manager) handleCashout(r *round, req cashoutRequest) {
	if !req.deadline.IsZero() && time.Now().After(req.deadline) {
		req.resp <- cashoutResult{err: ErrActionTimeout}
		return
	}

	entry, ok := r.bets[req.user.ID]
	if !ok || entry.bet.Status != storage.BetActive {
		req.resp <- cashoutResult{err: ErrNoActiveBet}
		return
	}

	multiplier := r.clock.Multiplier()
	entry.bet.Status = storage.BetWon

	user := req.user
	betID := entry.bet.ID

	m.runMirror(func() func() {
		ctx, cancel := m.storeCtx()
		defer cancel()
		settled, err := m.store.SettleCashout(ctx, betID, multiplier)

		return func() {
			if err != nil {
				entry.bet.Status = storage.BetActive
				if errors.Is(err, storage.ErrNotFound) {
					req.resp <- cashoutResult{err: ErrNoActiveBet}
				} else {
					req.resp <- cashoutResult{err: fmt.Errorf("settle cashout: %w", err)}
				}
				return
			}

			entry.bet = settled
			payout := settled.Amount * multiplier
			profit := payout - settled.Amount
			req.resp <- cashoutResult{outcome: CashoutOutcome{
				Bet:        settled,
				Multiplier: multiplier,
				Payout:     payout,
				Profit:     profit,
			}}

			log.Printf("[CASHOUT] User %s cashed out at %.2fx (payout %.2f)", user.ExternalID, multiplier, payout)

			m.hub.Broadcast(CashoutMessage{
				Type:       "cashout",
				UserID:     user.ID,
				ExternalID: user.ExternalID,
				Username:   user.Username,
				Multiplier: multiplier,
				Amount:     settled.Amount,
				Profit:     profit,
			})
			m.broadcastLeaderboard(r)
		}
	})
}

func (m *Manager) setSnapshot(s Snapshot) {
	m.stateMu.Lock()
	m.snapshot = s
	m.stateMu.Unlock()
}

func (m *Manager) broadcastPlayerUpdate(r *round) {
	total := 0.0
	for _, entry := range r.bets {
		total += entry.bet.Amount
	}
	m.hub.Broadcast(PlayerUpdateMessage{Type: "playerUpdate", Count: len(r.bets), TotalBets: total})
}

func (m *Manager) broadcastLeaderboard(r *round) {
	entries := make([]*betEntry, 0, len(r.bets))
	for _, entry := range r.bets {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].bet.Amount > entries[j].bet.Amount
	})
	if len(entries) > m.cfg.LeaderboardSize {
		entries = entries[:m.cfg.LeaderboardSize]
	}

	top := make([]LeaderboardEntry, 0, len(entries))
	for _, entry := range entries {
		top = append(top, LeaderboardEntry{
			Username:   entry.user.Username,
			ExternalID: entry.user.ExternalID,
			Amount:     entry.bet.Amount,
			Multiplier: entry.bet.CashoutAt,
			Profit:     entry.bet.Profit,
			Status:     entry.bet.Status,
		})
	}
	m.hub.Broadcast(LeaderboardMessage{Type: "leaderboard", TopBets: top})
}
