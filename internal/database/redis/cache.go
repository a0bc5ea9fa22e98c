package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ds124wfegd/linktracker/internal/entity"
)

const linkKeyPrefix = "link:"

// LinkCache keeps resolved links keyed by short code.
type LinkCache struct {
	client redis.Cmdable
	ttl    time.Duration
}

func NewLinkCache(client redis.Cmdable, ttl time.Duration) *LinkCache {
	return &LinkCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *LinkCache) SetLink(ctx context.Context, link *entity.Link) error {
	data, err := json.Marshal(link)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, linkKeyPrefix+link.ShortCode, data, c.ttl).Err()
}

func (c *LinkCache) GetLink(ctx context.Context, code string) (*entity.Link, error) {
	data, err := c.client.Get(ctx, linkKeyPrefix+code).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, entity.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}

	var link entity.Link
	if err := json.Unmarshal(data, &link); err != nil {
		return nil, err
	}
	return &link, nil
}

func (c *LinkCache) DeleteLink(ctx context.Context, code string) error {
	return c.client.Del(ctx, linkKeyPrefix+code).Err()
}
