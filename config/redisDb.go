package config

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	rdb *redis.Client
)

func GetRedisDB() *redis.Client {
	return rdb
}

// ConnectRedisWithRetry sets the global Redis client when REDIS_ADDRESS is configured.
// Redis only caches run statistics, so after maxAttempts failures the service
// carries on without it and GetRedisDB returns nil.
func ConnectRedisWithRetry(ctx context.Context, maxAttempts int) {
	redisAddr := strings.TrimSpace(os.Getenv("REDIS_ADDRESS"))
	if redisAddr == "" {
		log.Printf("REDIS_ADDRESS not set; run statistics cache disabled")
		return
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		client := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
			PoolSize: 4,
		})
		err := client.Ping(ctx).Err()
		if err == nil {
			rdb = client
			log.Printf("connected to redis (attempt=%d addr=%s)", attempt, redisAddr)
			return
		}
		_ = client.Close()

		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		log.Printf("failed to connect redis (attempt=%d addr=%s): %v; retrying in %s", attempt, redisAddr, err, sleep)
		select {
		case <-ctx.Done():
			return
		case <-time.After(sleep):
		}
	}
	log.Printf("redis unavailable after %d attempts; run statistics cache disabled", maxAttempts)
}
