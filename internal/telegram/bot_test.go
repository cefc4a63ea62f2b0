package telegram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"dogecrash/internal/storage"
)

type stubStore struct {
	mu      sync.Mutex
	users   map[string]*storage.User
	created []string
}

func newStubStore() *stubStore {
	return &stubStore{users: make(map[string]*storage.User)}
}

func (s *stubStore) GetUser(ctx context.Context, id int64) (*storage.User, error) {
	return nil, storage.ErrNotFound
}

func (s *stubStore) GetUserByExternalID(ctx context.Context, externalID string) (*storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[externalID]; ok {
		return u, nil
	}
	return nil, storage.ErrNotFound
}

func (s *stubStore) CreateUser(ctx context.Context, externalID, username, depositAddress string) (*storage.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := &storage.User{
		ID:             int64(len(s.users) + 1),
		ExternalID:     externalID,
		Username:       username,
		DepositAddress: depositAddress,
	}
	s.users[externalID] = u
	s.created = append(s.created, externalID)
	return u, nil
}

func (s *stubStore) AdjustBalance(ctx context.Context, userID int64, delta float64) (*storage.User, error) {
	return nil, storage.ErrNotFound
}

func (s *stubStore) CreateGame(ctx context.Context, crashPoint float64) (*storage.Game, error) {
	return nil, storage.ErrNotFound
}

func (s *stubStore) UpdateGameStatus(ctx context.Context, gameID int64, status string) (*storage.Game, error) {
	return nil, storage.ErrNotFound
}

func (s *stubStore) GetRecentGames(ctx context.Context, limit int) ([]storage.Game, error) {
	return nil, nil
}

func (s *stubStore) PlaceBet(ctx context.Context, userID, gameID int64, amount float64) (*storage.Bet, error) {
	return nil, storage.ErrNotFound
}

func (s *stubStore) SettleCashout(ctx context.Context, betID int64, multiplier float64) (*storage.Bet, error) {
	return nil, storage.ErrNotFound
}

func (s *stubStore) MarkBetsLostForGame(ctx context.Context, gameID int64) (int64, error) {
	return 0, nil
}

func (s *stubStore) GetBetsByGame(ctx context.Context, gameID int64) ([]storage.Bet, error) {
	return nil, nil
}

func (s *stubStore) CreateTransaction(ctx context.Context, userID int64, txType string, amount float64, status, txHash string) (*storage.Transaction, error) {
	return &storage.Transaction{}, nil
}

func (s *stubStore) GetTransactionsByUser(ctx context.Context, userID int64) ([]storage.Transaction, error) {
	return nil, nil
}

var _ storage.Store = (*stubStore)(nil)

// sentMessage captures one sendMessage call to the fake Bot API.
type sentMessage struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

func newTestBot(t *testing.T, store storage.Store) (*Bot, *[]sentMessage) {
	t.Helper()

	var (
		mu   sync.Mutex
		sent []sentMessage
	)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/sendMessage") {
			var msg sentMessage
			if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
				t.Errorf("bad sendMessage payload: %v", err)
			}
			mu.Lock()
			sent = append(sent, msg)
			mu.Unlock()
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true,"result":{}}`))
	}))
	t.Cleanup(api.Close)

	bot := New("test-token", store)
	bot.apiBase = api.URL + "/bot"
	bot.webAppURL = "https://example.com"
	return bot, &sent
}

func update(userID int64, username, text string) Update {
	return Update{
		Message: &IncomingMessage{
			Chat: ChatRef{ID: userID},
			From: &TelegramUser{ID: userID, Username: username},
			Text: text,
		},
	}
}

func TestBot_Enabled(t *testing.T) {
	if New("", newStubStore()).Enabled() {
		t.Error("Enabled() = true with empty token")
	}
	if !New("token", newStubStore()).Enabled() {
		t.Error("Enabled() = false with token set")
	}
}

func TestBot_ProcessUpdate_RegistersOnFirstContact(t *testing.T) {
	store := newStubStore()
	bot, sent := newTestBot(t, store)

	bot.ProcessUpdate(context.Background(), update(42, "alice", "/start"))

	if len(store.created) != 1 || store.created[0] != "42" {
		t.Fatalf("created users = %v, want [42]", store.created)
	}
	user := store.users["42"]
	if user.Username != "alice" {
		t.Errorf("username = %q, want alice", user.Username)
	}
	if user.DepositAddress == "" {
		t.Error("registered user has no deposit address")
	}
	if len(*sent) != 1 || !strings.Contains((*sent)[0].Text, "Welcome") {
		t.Errorf("sent = %+v, want one welcome message", *sent)
	}

	// Second contact reuses the account.
	bot.ProcessUpdate(context.Background(), update(42, "alice", "/balance"))
	if len(store.created) != 1 {
		t.Errorf("created users = %v after second contact, want no new account", store.created)
	}
}

func TestBot_ProcessUpdate_Commands(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"/play", "Launch the game"},
		{"/deposit", "deposit address"},
		{"/withdraw", "Minimum withdrawal"},
		{"/balance", "Your balance"},
		{"/help", "/play - launch the game"},
		{"/start@dogecrash_bot", "Welcome"}, // bot-qualified command
		{"/balance extra args", "Your balance"},
		{"hello there", "Use /play"},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			bot, sent := newTestBot(t, newStubStore())
			bot.ProcessUpdate(context.Background(), update(7, "bob", tt.text))

			if len(*sent) != 1 {
				t.Fatalf("sent %d messages, want 1", len(*sent))
			}
			if got := (*sent)[0]; !strings.Contains(got.Text, tt.want) {
				t.Errorf("reply %q does not contain %q", got.Text, tt.want)
			}
			if (*sent)[0].ChatID != 7 {
				t.Errorf("chat ID = %d, want 7", (*sent)[0].ChatID)
			}
		})
	}
}

func TestBot_ProcessUpdate_IgnoresEmptyUpdates(t *testing.T) {
	bot, sent := newTestBot(t, newStubStore())

	bot.ProcessUpdate(context.Background(), Update{})
	bot.ProcessUpdate(context.Background(), Update{Message: &IncomingMessage{Chat: ChatRef{ID: 1}}})

	if len(*sent) != 0 {
		t.Errorf("sent = %+v, want none", *sent)
	}
}

func TestBot_UsernameFallbacks(t *testing.T) {
	store := newStubStore()
	bot, _ := newTestBot(t, store)

	bot.ProcessUpdate(context.Background(), Update{
		Message: &IncomingMessage{
			Chat: ChatRef{ID: 9},
			From: &TelegramUser{ID: 9, FirstName: "Carol"},
			Text: "/start",
		},
	})
	if got := store.users["9"].Username; got != "Carol" {
		t.Errorf("username = %q, want first name fallback Carol", got)
	}

	bot.ProcessUpdate(context.Background(), Update{
		Message: &IncomingMessage{
			Chat: ChatRef{ID: 10},
			From: &TelegramUser{ID: 10},
			Text: "/start",
		},
	})
	if got := store.users["10"].Username; got != "player_10" {
		t.Errorf("username = %q, want generated fallback player_10", got)
	}
}
