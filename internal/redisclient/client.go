package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// ErrNotFound is returned when a key has expired or never existed.
var ErrNotFound = errors.New("redis: key not found")

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// SetOTP stores a login OTP for a phone number with a TTL.
func (c *Client) SetOTP(ctx context.Context, phone, code string, ttl time.Duration) error {
	return c.rdb.Set(ctx, otpKey(phone), code, ttl).Err()
}

// GetOTP retrieves the current OTP for a phone number.
func (c *Client) GetOTP(ctx context.Context, phone string) (string, error) {
	code, err := c.rdb.Get(ctx, otpKey(phone)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	return code, err
}

// DeleteOTP consumes an OTP after a successful verification.
func (c *Client) DeleteOTP(ctx context.Context, phone string) error {
	return c.rdb.Del(ctx, otpKey(phone)).Err()
}

// IncrAttempts atomically bumps a login-attempt counter, starting its
// expiry window on first increment. The counter is shared across server
// instances so lockout state survives restarts and load balancing.
func (c *Client) IncrAttempts(ctx context.Context, identity string, window time.Duration) (int64, error) {
	key := attemptsKey(identity)

	pipe := c.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// GetAttempts returns the current attempt count for an identity.
func (c *Client) GetAttempts(ctx context.Context, identity string) (int64, error) {
	n, err := c.rdb.Get(ctx, attemptsKey(identity)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// ResetAttempts clears the counter after a successful login.
func (c *Client) ResetAttempts(ctx context.Context, identity string) error {
	return c.rdb.Del(ctx, attemptsKey(identity)).Err()
}

func otpKey(phone string) string {
	return fmt.Sprintf("otp:%s", phone)
}

func attemptsKey(identity string) string {
	return fmt.Sprintf("login_attempts:%s", identity)
}
