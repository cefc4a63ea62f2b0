// Package telegram implements the chat-bot command surface. The bot is a
// thin collaborator: it registers users, answers wallet questions and points
// players at the web app; it never touches round state.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"dogecrash/internal/storage"
	"dogecrash/internal/wallet"
)

const defaultAPIBase = "https://api.telegram.org/bot"

type Bot struct {
	token     string
	apiBase   string
	webAppURL string
	store     storage.Store
	client    *http.Client
}

func New(token string, store storage.Store) *Bot {
	return &Bot{
		token:   token,
		apiBase: defaultAPIBase,
		store:   store,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Enabled reports whether a bot token was configured.
func (b *Bot) Enabled() bool {
	return b.token != ""
}

// Update mirrors the subset of the Bot API webhook payload we handle.
type Update struct {
	Message *IncomingMessage `json:"message"`
}

type IncomingMessage struct {
	Chat ChatRef       `json:"chat"`
	From *TelegramUser `json:"from"`
	Text string        `json:"text"`
}

type ChatRef struct {
	ID int64 `json:"id"`
}

type TelegramUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
}

// Initialize registers commands and the webhook with the Bot API. host is
// the public hostname this server is reachable on.
func (b *Bot) Initialize(ctx context.Context, host string) error {
	cleanHost := strings.TrimPrefix(strings.TrimPrefix(host, "https://"), "http://")
	b.webAppURL = "https://" + cleanHost

	if err := b.setCommands(ctx); err != nil {
		return fmt.Errorf("set commands: %w", err)
	}
	if err := b.setWebhook(ctx, cleanHost); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}

	var me struct {
		Username  string `json:"username"`
		FirstName string `json:"first_name"`
	}
	if err := b.call(ctx, "getMe", nil, &me); err != nil {
		return fmt.Errorf("get me: %w", err)
	}

	log.Printf("[BOT] Initialized as %s (web app: %s)", me.FirstName, b.webAppURL)
	return nil
}

func (b *Bot) setCommands(ctx context.Context) error {
	payload := map[string]any{
		"commands": []map[string]string{
			{"command": "start", "description": "Start the bot"},
			{"command": "play", "description": "Launch the crash betting game"},
			{"command": "deposit", "description": "Make a deposit"},
			{"command": "withdraw", "description": "Withdraw your Dogecoin"},
			{"command": "balance", "description": "Check your balance"},
			{"command": "help", "description": "Get help"},
		},
	}
	return b.call(ctx, "setMyCommands", payload, nil)
}

func (b *Bot) setWebhook(ctx context.Context, host string) error {
	payload := map[string]any{
		"url":                  fmt.Sprintf("https://%s/api/v1/telegram/webhook", host),
		"drop_pending_updates": true,
	}
	return b.call(ctx, "setWebhook", payload, nil)
}

// ProcessUpdate handles one webhook update. Errors are logged and swallowed;
// a bad chat message must never bubble up as a webhook failure.
func (b *Bot) ProcessUpdate(ctx context.Context, update Update) {
	if update.Message == nil || update.Message.From == nil || update.Message.Text == "" {
		return
	}

	msg := update.Message
	user, err := b.ensureRegistered(ctx, msg.From)
	if err != nil {
		log.Printf("[BOT] Failed to register user %d: %v", msg.From.ID, err)
		b.sendMessage(ctx, msg.Chat.ID, "Something went wrong, please try again later.")
		return
	}

	command := msg.Text
	if i := strings.IndexAny(command, " @"); i > 0 {
		command = command[:i]
	}

	switch command {
	case "/start":
		b.sendMessage(ctx, msg.Chat.ID, fmt.Sprintf(
			"Welcome to DogeCrash, %s!\n\nPlace a bet, watch the multiplier climb and cash out before it crashes.\n\nPlay here: %s",
			user.Username, b.webAppURL))
	case "/play":
		b.sendMessage(ctx, msg.Chat.ID, "Launch the game: "+b.webAppURL)
	case "/deposit":
		b.sendMessage(ctx, msg.Chat.ID, fmt.Sprintf(
			"Send DOGE to your deposit address:\n\n%s\n\nMinimum deposit is %s.",
			user.DepositAddress, wallet.FormatDoge(100)))
	case "/withdraw":
		b.sendMessage(ctx, msg.Chat.ID, fmt.Sprintf(
			"Withdrawals are handled in the web app wallet page: %s/wallet\nMinimum withdrawal is %s.",
			b.webAppURL, wallet.FormatDoge(20)))
	case "/balance":
		b.sendMessage(ctx, msg.Chat.ID, "Your balance: "+wallet.FormatDoge(user.Balance))
	case "/help":
		b.sendMessage(ctx, msg.Chat.ID,
			"/play - launch the game\n/deposit - get your deposit address\n/withdraw - withdraw DOGE\n/balance - check your balance")
	default:
		b.sendMessage(ctx, msg.Chat.ID, "Use /play to start the crash betting game!")
	}
}

// ensureRegistered looks the Telegram user up by external ID and creates the
// account on first contact.
func (b *Bot) ensureRegistered(ctx context.Context, from *TelegramUser) (*storage.User, error) {
	externalID := strconv.FormatInt(from.ID, 10)

	user, err := b.store.GetUserByExternalID(ctx, externalID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	username := from.Username
	if username == "" {
		username = from.FirstName
	}
	if username == "" {
		username = "player_" + externalID
	}

	return b.store.CreateUser(ctx, externalID, username, wallet.GenerateDepositAddress())
}

func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string) {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if err := b.call(ctx, "sendMessage", payload, nil); err != nil {
		log.Printf("[BOT] Failed to send message to chat %d: %v", chatID, err)
	}
}

func (b *Bot) call(ctx context.Context, method string, payload any, out any) error {
	url := b.apiBase + b.token + "/" + method

	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var envelope struct {
		OK          bool            `json:"ok"`
		Description string          `json:"description"`
		Result      json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return err
	}
	if !envelope.OK {
		return fmt.Errorf("telegram %s: %s", method, envelope.Description)
	}
	if out != nil && len(envelope.Result) > 0 {
		return json.Unmarshal(envelope.Result, out)
	}
	return nil
}
