package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
)

const (
	crashHistoryKey   = "crash:history"
	crashHistoryLimit = 50
)

// CrashRecord is one finished round as kept in the Redis history list.
type CrashRecord struct {
	RoundID    int64     `json:"roundId"`
	CrashPoint float64   `json:"crashPoint"`
	CrashedAt  time.Time `json:"crashedAt"`
}

type Service interface {
	GetClient() *redis.Client
	RecordCrash(ctx context.Context, roundID int64, crashPoint float64) error
	RecentCrashes(ctx context.Context, limit int) ([]CrashRecord, error)
	Health() map[string]string
	Close() error
}

type service struct {
	client *redis.Client
}

var (
	redisAddr     = getEnv("REDIS_URL", "localhost:6379")
	redisPassword = getEnv("REDIS_PASSWORD", "")
	redisDB       = getEnvAsInt("REDIS_DB", 0)
	cacheInstance *service
)

func New() Service {
	if cacheInstance != nil {
		return cacheInstance
	}

	client := redis.NewClient(&redis.Options{
		Addr:         redisAddr,
		Password:     redisPassword,
		DB:           redisDB,
		PoolSize:     100,
		MinIdleConns: 10,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		log.Printf("[CACHE] Redis connection failed: %v", err)
		log.Println("[CACHE] Running without Redis cache")
		return nil
	}

	log.Println("[CACHE] Redis connected successfully")

	cacheInstance = &service{
		client: client,
	}

	return cacheInstance
}

func (s *service) GetClient() *redis.Client {
	return s.client
}

// RecordCrash prepends the round to the history list and trims it to the
// configured cap. The list is display history only; Postgres stays the
// durable record.
func (s *service) RecordCrash(ctx context.Context, roundID int64, crashPoint float64) error {
	data, err := json.Marshal(CrashRecord{
		RoundID:    roundID,
		CrashPoint: crashPoint,
		CrashedAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, crashHistoryKey, data)
	pipe.LTrim(ctx, crashHistoryKey, 0, crashHistoryLimit-1)
	_, err = pipe.Exec(ctx)
	return err
}

// RecentCrashes returns the newest-first crash history, at most limit
// entries.
func (s *service) RecentCrashes(ctx context.Context, limit int) ([]CrashRecord, error) {
	if limit <= 0 || limit > crashHistoryLimit {
		limit = crashHistoryLimit
	}

	raw, err := s.client.LRange(ctx, crashHistoryKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	records := make([]CrashRecord, 0, len(raw))
	for _, item := range raw {
		var record CrashRecord
		if err := json.Unmarshal([]byte(item), &record); err != nil {
			log.Printf("[CACHE] Skipping malformed history entry: %v", err)
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	_, err := s.client.Ping(ctx).Result()
	if err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("redis down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "Redis is healthy"

	poolStats := s.client.PoolStats()
	stats["hits"] = strconv.FormatUint(uint64(poolStats.Hits), 10)
	stats["misses"] = strconv.FormatUint(uint64(poolStats.Misses), 10)
	stats["timeouts"] = strconv.FormatUint(uint64(poolStats.Timeouts), 10)
	stats["total_conns"] = strconv.FormatUint(uint64(poolStats.TotalConns), 10)
	stats["idle_conns"] = strconv.FormatUint(uint64(poolStats.IdleConns), 10)
	stats["stale_conns"] = strconv.FormatUint(uint64(poolStats.StaleConns), 10)

	return stats
}

func (s *service) Close() error {
	log.Println("[CACHE] Disconnecting from Redis")
	return s.client.Close()
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
