package server

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"dogecrash/internal/cache"
	"dogecrash/internal/database"
	"dogecrash/internal/game"
	"dogecrash/internal/storage"
	"dogecrash/internal/telegram"
	"dogecrash/internal/wallet"
)

type FiberServer struct {
	*fiber.App

	db      database.Service
	cache   cache.Service
	store   storage.Store
	manager *game.Manager
	hub     *game.Hub
	bot     *telegram.Bot
}

func New() *FiberServer {
	// Initialize database
	db := database.New()

	// Initialize Redis cache
	redisService := cache.New()
	if redisService == nil {
		log.Fatal("[SERVER] Redis is required for game functionality")
	}

	store := storage.NewPostgresStore(db.DB())

	// Initialize game components
	hub := game.NewHub()
	manager := game.NewManager(game.DefaultConfig(), hub, store, redisService)
	hub.OnJoin(func() any {
		return manager.Snapshot().Message()
	})

	bot := telegram.New(os.Getenv("TELEGRAM_BOT_TOKEN"), store)

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "dogecrash",
			AppName:       "dogecrash",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
		}),

		db:      db,
		cache:   redisService,
		store:   store,
		manager: manager,
		hub:     hub,
		bot:     bot,
	}

	// Apply global middleware
	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
	}))

	// Start game components
	go hub.Run()
	manager.Start()

	if bot.Enabled() {
		host := getEnv("PUBLIC_HOST", "localhost:5000")
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := bot.Initialize(ctx, host); err != nil {
				log.Printf("[SERVER] Telegram bot init failed: %v", err)
			}
		}()
	}

	if os.Getenv("SEED_TEST_USER") != "" {
		go server.seedTestUser()
	}

	log.Println("[SERVER] Game manager started")

	return server
}

// Shutdown gracefully shuts down the server and game components
func (s *FiberServer) Shutdown() error {
	log.Println("[SERVER] Shutting down...")

	if s.manager != nil {
		s.manager.Stop()
	}

	if s.cache != nil {
		s.cache.Close()
	}
	if s.db != nil {
		s.db.Close()
	}

	return nil
}

// seedTestUser keeps a known account topped up for manual testing.
func (s *FiberServer) seedTestUser() {
	const (
		externalID = "123456789"
		username   = "mock_user"
		balance    = 5000.0
	)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := s.store.GetUserByExternalID(ctx, externalID)
	if err != nil {
		user, err = s.store.CreateUser(ctx, externalID, username, wallet.GenerateDepositAddress())
		if err != nil {
			log.Printf("[SERVER] Failed to seed test user: %v", err)
			return
		}
	}

	if _, err := s.store.AdjustBalance(ctx, user.ID, balance-user.Balance); err != nil {
		log.Printf("[SERVER] Failed to top up test user: %v", err)
		return
	}
	log.Printf("[SERVER] Seeded test user %s with %s", username, wallet.FormatDoge(balance))
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
