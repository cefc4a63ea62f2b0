package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"dogecrash/internal/game"
	"dogecrash/internal/storage"
)

func (s *FiberServer) RegisterFiberRoutes() {
	// Apply CORS middleware
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Accept,Authorization,Content-Type",
		AllowCredentials: false, // credentials require explicit origins
		MaxAge:           300,
	}))

	s.App.Get("/health", s.healthHandler)

	api := s.App.Group("/api/v1")

	api.Get("/user", s.getUserHandler)
	api.Post("/user/register", s.registerUserHandler)
	api.Post("/deposit", s.depositHandler)
	api.Post("/withdraw", s.withdrawHandler)
	api.Get("/transactions", s.transactionsHandler)
	api.Post("/test/deposit", s.testDepositHandler)

	api.Get("/history", s.historyHandler)
	api.Get("/history/crashes", s.crashHistoryHandler)
	api.Get("/game/state", s.gameStateHandler)

	api.Post("/telegram/webhook", s.telegramWebhookHandler)

	// WebSocket route
	s.App.Get("/ws", websocket.New(s.gameWebSocketHandler))
}

// gameWebSocketHandler is the single entry point for player actions. It
// resolves the acting user, forwards placeBet/cashout into the game loop and
// replies with an error message when an action is rejected.
func (s *FiberServer) gameWebSocketHandler(conn *websocket.Conn) {
	externalID := conn.Query("externalId", "anonymous")

	client := s.hub.RegisterClient(conn, externalID)
	defer s.hub.UnregisterClient(client)

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[WS] Read error for user %s: %v", externalID, err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg game.ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			client.Send(game.ErrorMessage{Type: "error", Message: "Invalid message"})
			continue
		}

		switch msg.Type {
		case "placeBet":
			s.handlePlaceBet(client, externalID, msg)
		case "cashout":
			s.handleCashout(client, externalID, msg)
		case "ping":
			client.Send(map[string]string{"type": "pong"})
		}
	}
}

func (s *FiberServer) handlePlaceBet(client *game.Client, sessionID string, msg game.ClientMessage) {
	if msg.Amount <= 0 {
		client.Send(game.ErrorMessage{Type: "error", Message: "Amount is required"})
		return
	}

	user, ok := s.resolveUser(client, sessionID, msg.ExternalID)
	if !ok {
		return
	}

	if _, err := s.manager.PlaceBet(user, msg.Amount); err != nil {
		client.Send(game.ErrorMessage{Type: "error", Message: actionErrorMessage(err)})
	}
}

func (s *FiberServer) handleCashout(client *game.Client, sessionID string, msg game.ClientMessage) {
	user, ok := s.resolveUser(client, sessionID, msg.ExternalID)
	if !ok {
		return
	}

	if _, err := s.manager.Cashout(user); err != nil {
		client.Send(game.ErrorMessage{Type: "error", Message: actionErrorMessage(err)})
	}
}

func (s *FiberServer) resolveUser(client *game.Client, sessionID, externalID string) (*storage.User, bool) {
	if externalID == "" {
		externalID = sessionID
	}
	if externalID == "" || externalID == "anonymous" {
		client.Send(game.ErrorMessage{Type: "error", Message: "External ID is required"})
		return nil, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	user, err := s.store.GetUserByExternalID(ctx, externalID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			client.Send(game.ErrorMessage{Type: "error", Message: "User not found"})
		} else {
			log.Printf("[WS] User lookup failed for %s: %v", externalID, err)
			client.Send(game.ErrorMessage{Type: "error", Message: "Internal error"})
		}
		return nil, false
	}
	return user, true
}

// actionErrorMessage maps admission errors to player-facing text. Anything
// unrecognized is a collaborator failure and stays opaque.
func actionErrorMessage(err error) string {
	switch {
	case errors.Is(err, game.ErrRoundNotWaiting):
		return "Betting is closed for this game"
	case errors.Is(err, game.ErrRoundNotActive):
		return "Game is not active"
	case errors.Is(err, game.ErrNoActiveBet):
		return "No active bet to cash out"
	case errors.Is(err, game.ErrBetTooSmall):
		return "Minimum bet amount is 1 DOGE"
	case errors.Is(err, game.ErrBetTooLarge):
		return "Bet exceeds the maximum"
	case errors.Is(err, game.ErrQueueFull), errors.Is(err, game.ErrActionTimeout):
		return "Server is busy, try again"
	case errors.Is(err, storage.ErrDuplicateBet):
		return "You already have a bet in this game"
	case errors.Is(err, storage.ErrInsufficientBalance):
		return "Insufficient balance"
	default:
		return "Internal error"
	}
}
