package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/itstheanurag/fnrunner/internal/model"
)

const routeCacheKeyPrefix = "fnrunner:function:route:"

// CachedFunctions puts a Redis read-through cache in front of route lookups,
// the hot path of every invocation. Cache trouble is logged and bypassed.
type CachedFunctions struct {
	FunctionStore
	client *redis.Client
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewCachedFunctions(backing FunctionStore, client *redis.Client, ttl time.Duration, logger *zerolog.Logger) *CachedFunctions {
	return &CachedFunctions{
		FunctionStore: backing,
		client:        client,
		ttl:           ttl,
		logger:        logger,
	}
}

func routeKey(route string) string {
	return routeCacheKeyPrefix + route
}

func (c *CachedFunctions) GetFunctionByRoute(ctx context.Context, route string) (*model.Definition, error) {
	data, err := c.client.Get(ctx, routeKey(route)).Bytes()
	switch {
	case err == nil:
		var def model.Definition
		if jsonErr := json.Unmarshal(data, &def); jsonErr == nil {
			return &def, nil
		}
		c.logger.Warn().Str("route", route).Msg("discarding undecodable cache entry")
	case !errors.Is(err, redis.Nil):
		c.logger.Warn().Err(err).Str("route", route).Msg("function cache read failed")
	}

	def, err := c.FunctionStore.GetFunctionByRoute(ctx, route)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(def); err == nil {
		if err := c.client.Set(ctx, routeKey(route), data, c.ttl).Err(); err != nil {
			c.logger.Warn().Err(err).Str("route", route).Msg("function cache write failed")
		}
	}
	return def, nil
}

func (c *CachedFunctions) UpdateFunction(ctx context.Context, def *model.Definition) error {
	prev, err := c.FunctionStore.GetFunction(ctx, def.ID)
	if err != nil {
		return err
	}
	if err := c.FunctionStore.UpdateFunction(ctx, def); err != nil {
		return err
	}
	c.invalidate(ctx, prev.Route, def.Route)
	return nil
}

func (c *CachedFunctions) DeleteFunction(ctx context.Context, id string) error {
	prev, err := c.FunctionStore.GetFunction(ctx, id)
	if err != nil {
		return err
	}
	if err := c.FunctionStore.DeleteFunction(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, prev.Route)
	return nil
}

func (c *CachedFunctions) invalidate(ctx context.Context, routes ...string) {
	keys := make([]string, 0, len(routes))
	for _, r := range routes {
		keys = append(keys, routeKey(r))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.logger.Warn().Err(err).Strs("routes", routes).Msg("function cache invalidation failed")
	}
}
