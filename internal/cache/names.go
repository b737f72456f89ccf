package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/opsdesk/helpdesk/internal/repository"
)

// NameCache resolves user and department ids to display names with a
// TTL-bounded redis cache in front of the repositories. Redis being
// unreachable degrades to direct lookups and never fails a caller.
type NameCache struct {
	client      *redis.Client
	users       repository.UserRepository
	departments repository.DepartmentRepository
	ttl         time.Duration
	logger      *zap.Logger
}

// NewNameCache constructs the cache. A nil client disables caching.
func NewNameCache(client *redis.Client, users repository.UserRepository, departments repository.DepartmentRepository, ttl time.Duration, logger *zap.Logger) *NameCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NameCache{
		client:      client,
		users:       users,
		departments: departments,
		ttl:         ttl,
		logger:      logger,
	}
}

// UserName returns the username for an id.
func (c *NameCache) UserName(ctx context.Context, id int64) (string, error) {
	key := fmt.Sprintf("name:user:%d", id)
	if name, ok := c.get(ctx, key); ok {
		return name, nil
	}
	user, err := c.users.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	c.set(ctx, key, user.Username)
	return user.Username, nil
}

// DepartmentName returns the department name for an id.
func (c *NameCache) DepartmentName(ctx context.Context, id int64) (string, error) {
	key := fmt.Sprintf("name:department:%d", id)
	if name, ok := c.get(ctx, key); ok {
		return name, nil
	}
	dept, err := c.departments.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	c.set(ctx, key, dept.Name)
	return dept.Name, nil
}

// Invalidate drops a cached user name, e.g. after a rename.
func (c *NameCache) InvalidateUser(ctx context.Context, id int64) {
	c.del(ctx, fmt.Sprintf("name:user:%d", id))
}

// InvalidateDepartment drops a cached department name.
func (c *NameCache) InvalidateDepartment(ctx context.Context, id int64) {
	c.del(ctx, fmt.Sprintf("name:department:%d", id))
}

func (c *NameCache) get(ctx context.Context, key string) (string, bool) {
	if c.client == nil {
		return "", false
	}
	name, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.logger.Debug("name cache read failed", zap.Error(err), zap.String("key", key))
		}
		return "", false
	}
	return name, true
}

func (c *NameCache) set(ctx context.Context, key, value string) {
	if c.client == nil {
		return
	}
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.logger.Debug("name cache write failed", zap.Error(err), zap.String("key", key))
	}
}

func (c *NameCache) del(ctx context.Context, key string) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, key).Err(); err != nil {
		c.logger.Debug("name cache invalidation failed", zap.Error(err), zap.String("key", key))
	}
}
