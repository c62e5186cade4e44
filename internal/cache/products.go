package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mkovalev/emarket/internal/models"
)

const productTTL = 5 * time.Minute

type ProductCache struct {
	client *redis.Client
}

func NewProductCache(addr, password string) (*ProductCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connect failed: %w", err)
	}
	return &ProductCache{client: client}, nil
}

func productKey(id uint) string {
	return fmt.Sprintf("product:%d", id)
}

// Get returns (nil, nil) on a miss or when no cache is configured.
func (c *ProductCache) Get(ctx context.Context, id uint) (*models.Product, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	data, err := c.client.Get(ctx, productKey(id)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var p models.Product
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *ProductCache) Set(ctx context.Context, p *models.Product) error {
	if c == nil || c.client == nil {
		return nil
	}
	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, productKey(p.ID), data, productTTL).Err()
}

func (c *ProductCache) Invalidate(ctx context.Context, id uint) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, productKey(id)).Err()
}

func (c *ProductCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
