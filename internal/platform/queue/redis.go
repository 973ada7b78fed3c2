package queue

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	"codequest/internal/platform/config"
)

var RDB *redis.Client

// ConnectRedis dials the backend carrying the evaluation queue and the
// per-(user, challenge) evaluation locks.
func ConnectRedis() {
	client := redis.NewClient(&redis.Options{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("ping redis: %v", err)
	}
	RDB = client
}

func CloseRedis() {
	if RDB != nil {
		RDB.Close()
	}
}
