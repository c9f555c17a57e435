package auth

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
)

type LoginChecker struct {
	redisClient *redis.Client
}

func NewLoginChecker(redisClient *redis.Client) *LoginChecker {
	return &LoginChecker{
		redisClient: redisClient,
	}
}

func (c *LoginChecker) IsLogged(ctx context.Context, token string) (bool, error) {
	key := fmt.Sprintf("%s%s", sessionKeyPrefix, token)
	cmd := c.redisClient.Get(ctx, key)
	if err := cmd.Err(); err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}

	createdAt, err := cmd.Int64()
	if err != nil {
		return false, err
	}

	return createdAt > 0, nil
}
