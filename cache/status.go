package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"payment-gateway-svc/models"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// The frontend polls the payment-status endpoint every couple of seconds
// while the customer is off in their banking app, so the view is cached
// with a short TTL and invalidated when a webhook lands.

func InitRedis(logger *zap.Logger) (*redis.Client, error) {
	host := getEnv("REDIS_HOST", "localhost")
	port := getEnv("REDIS_PORT", "6379")
	password := getEnv("REDIS_PASSWORD", "")

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis connection established")
	return rdb, nil
}

func GetPaymentStatus(ctx context.Context, rdb *redis.Client, orderID string) (*models.PaymentStatusView, error) {
	key := fmt.Sprintf("payment_status:%s", orderID)
	data, err := rdb.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var view models.PaymentStatusView
	if err := json.Unmarshal(data, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func SetPaymentStatus(ctx context.Context, rdb *redis.Client, view *models.PaymentStatusView, ttl time.Duration) error {
	key := fmt.Sprintf("payment_status:%s", view.OrderID)
	data, err := json.Marshal(view)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, data, ttl).Err()
}

func InvalidatePaymentStatus(ctx context.Context, rdb *redis.Client, orderID string) error {
	key := fmt.Sprintf("payment_status:%s", orderID)
	return rdb.Del(ctx, key).Err()
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
