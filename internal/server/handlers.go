package server

import (
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"dogecrash/internal/storage"
	"dogecrash/internal/telegram"
	"dogecrash/internal/wallet"
)

const (
	minDeposit    = 100.0
	minWithdrawal = 20.0
)

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	snapshot := s.manager.Snapshot()
	health := fiber.Map{
		"database": s.db.Health(),
		"cache":    s.cache.Health(),
		"game": fiber.Map{
			"status":            snapshot.Status,
			"round_id":          snapshot.RoundID,
			"connected_clients": s.hub.GetClientCount(),
		},
	}
	return c.JSON(health)
}

func (s *FiberServer) gameStateHandler(c *fiber.Ctx) error {
	snapshot := s.manager.Snapshot()
	if snapshot.Status == "" {
		return c.Status(404).JSON(fiber.Map{
			"error": "No active game round",
		})
	}
	return c.JSON(snapshot.Message())
}

func (s *FiberServer) getUserHandler(c *fiber.Ctx) error {
	externalID := c.Query("externalId")
	if externalID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "External ID is required",
		})
	}

	user, err := s.store.GetUserByExternalID(c.Context(), externalID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return c.Status(404).JSON(fiber.Map{
				"error": "User not found",
			})
		}
		return c.Status(500).JSON(fiber.Map{
			"error": "Server error",
		})
	}
	return c.JSON(user)
}

func (s *FiberServer) registerUserHandler(c *fiber.Ctx) error {
	var req struct {
		ExternalID string `json:"externalId"`
		Username   string `json:"username"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.ExternalID == "" || req.Username == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "External ID and username are required",
		})
	}

	if _, err := s.store.GetUserByExternalID(c.Context(), req.ExternalID); err == nil {
		return c.Status(409).JSON(fiber.Map{
			"error": "User already exists",
		})
	} else if !errors.Is(err, storage.ErrNotFound) {
		return c.Status(500).JSON(fiber.Map{
			"error": "Server error",
		})
	}

	user, err := s.store.CreateUser(c.Context(), req.ExternalID, req.Username, wallet.GenerateDepositAddress())
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "Server error",
		})
	}
	return c.Status(201).JSON(user)
}

func (s *FiberServer) depositHandler(c *fiber.Ctx) error {
	var req struct {
		ExternalID string  `json:"externalId"`
		Amount     float64 `json:"amount"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.ExternalID == "" || req.Amount == 0 {
		return c.Status(400).JSON(fiber.Map{
			"error": "External ID and amount are required",
		})
	}
	if req.Amount < minDeposit {
		return c.Status(400).JSON(fiber.Map{
			"error": fmt.Sprintf("Minimum deposit amount is %.0f DOGE", minDeposit),
		})
	}

	user, err := s.store.GetUserByExternalID(c.Context(), req.ExternalID)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{
			"error": "User not found",
		})
	}

	updated, err := s.store.AdjustBalance(c.Context(), user.ID, req.Amount)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "Server error",
		})
	}

	tx, err := s.store.CreateTransaction(c.Context(), user.ID, storage.TxDeposit, req.Amount, storage.TxCompleted, "")
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "Server error",
		})
	}

	return c.JSON(fiber.Map{"user": updated, "transaction": tx})
}

func (s *FiberServer) withdrawHandler(c *fiber.Ctx) error {
	var req struct {
		ExternalID string  `json:"externalId"`
		Amount     float64 `json:"amount"`
		Address    string  `json:"address"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.ExternalID == "" || req.Amount == 0 || req.Address == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "External ID, amount, and address are required",
		})
	}
	if req.Amount < minWithdrawal {
		return c.Status(400).JSON(fiber.Map{
			"error": fmt.Sprintf("Minimum withdrawal amount is %.0f DOGE", minWithdrawal),
		})
	}
	if !wallet.IsValidAddress(req.Address) {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid Dogecoin address",
		})
	}

	user, err := s.store.GetUserByExternalID(c.Context(), req.ExternalID)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{
			"error": "User not found",
		})
	}

	updated, err := s.store.AdjustBalance(c.Context(), user.ID, -req.Amount)
	if err != nil {
		if errors.Is(err, storage.ErrInsufficientBalance) {
			return c.Status(400).JSON(fiber.Map{
				"error": "Insufficient balance",
			})
		}
		return c.Status(500).JSON(fiber.Map{
			"error": "Server error",
		})
	}

	// Mock transaction hash until on-chain payouts are wired up.
	txHash := fmt.Sprintf("tx_%x", time.Now().UnixNano())
	tx, err := s.store.CreateTransaction(c.Context(), user.ID, storage.TxWithdrawal, -req.Amount, storage.TxCompleted, txHash)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "Server error",
		})
	}

	return c.JSON(fiber.Map{"user": updated, "transaction": tx})
}

func (s *FiberServer) transactionsHandler(c *fiber.Ctx) error {
	externalID := c.Query("externalId")
	if externalID == "" {
		return c.Status(400).JSON(fiber.Map{
			"error": "External ID is required",
		})
	}

	user, err := s.store.GetUserByExternalID(c.Context(), externalID)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{
			"error": "User not found",
		})
	}

	txs, err := s.store.GetTransactionsByUser(c.Context(), user.ID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "Server error",
		})
	}
	return c.JSON(txs)
}

// testDepositHandler tops up a balance without the deposit minimum. Dev
// convenience only.
func (s *FiberServer) testDepositHandler(c *fiber.Ctx) error {
	var req struct {
		ExternalID string  `json:"externalId"`
		Amount     float64 `json:"amount"`
	}
	if err := c.BodyParser(&req); err != nil || req.ExternalID == "" || req.Amount <= 0 {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request parameters",
		})
	}

	user, err := s.store.GetUserByExternalID(c.Context(), req.ExternalID)
	if err != nil {
		return c.Status(404).JSON(fiber.Map{
			"error": "User not found",
		})
	}

	updated, err := s.store.AdjustBalance(c.Context(), user.ID, req.Amount)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "Server error",
		})
	}
	if _, err := s.store.CreateTransaction(c.Context(), user.ID, storage.TxDeposit, req.Amount, storage.TxCompleted, ""); err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "Server error",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"user":    updated,
		"message": fmt.Sprintf("Successfully added %s", wallet.FormatDoge(req.Amount)),
	})
}

func (s *FiberServer) historyHandler(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	games, err := s.store.GetRecentGames(c.Context(), limit)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "Server error",
		})
	}
	return c.JSON(games)
}

func (s *FiberServer) crashHistoryHandler(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)

	records, err := s.cache.RecentCrashes(c.Context(), limit)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{
			"error": "Server error",
		})
	}
	return c.JSON(records)
}

func (s *FiberServer) telegramWebhookHandler(c *fiber.Ctx) error {
	var update telegram.Update
	if err := c.BodyParser(&update); err != nil {
		return c.Status(400).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	s.bot.ProcessUpdate(c.Context(), update)
	return c.SendStatus(200)
}
