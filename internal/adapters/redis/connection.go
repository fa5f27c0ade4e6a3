// Package redis backs distributed locking and cache refresh broadcasting with Redis.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configures the Redis connection.
type Options struct {
	// Redis server address.
	Address string
	// Password required when connecting to the Redis server.
	Password string
	// DB to connect to.
	DB int
	// KeyPrefix namespaces every key this package writes.
	KeyPrefix string
}

// DefaultOptions returns options for a local Redis.
func DefaultOptions() Options {
	return Options{
		Address:   "localhost:6379",
		Password:  "", // no password set
		DB:        0,  // use default DB
		KeyPrefix: "cmscope",
	}
}

// Connection contains the Redis client and the Options used to connect.
type Connection struct {
	Client  *redis.Client
	Options Options
}

// Open connects to Redis and verifies the server answers.
func Open(ctx context.Context, options Options) (*Connection, error) {
	if options.KeyPrefix == "" {
		options.KeyPrefix = DefaultOptions().KeyPrefix
	}
	client := redis.NewClient(&redis.Options{
		Addr:     options.Address,
		Password: options.Password,
		DB:       options.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", options.Address, err)
	}

	return &Connection{Client: client, Options: options}, nil
}

// Ping checks the server still answers.
func (c *Connection) Ping(ctx context.Context) error {
	if c == nil || c.Client == nil {
		return fmt.Errorf("redis connection is closed")
	}
	return c.Client.Ping(ctx).Err()
}

// Close closes the client.
func (c *Connection) Close() error {
	if c == nil || c.Client == nil {
		return nil
	}
	err := c.Client.Close()
	c.Client = nil
	return err
}

func (c *Connection) key(parts ...any) string {
	k := c.Options.KeyPrefix
	for _, p := range parts {
		k += fmt.Sprintf(":%v", p)
	}
	return k
}
