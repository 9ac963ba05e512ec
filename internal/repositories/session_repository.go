package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"lead-console/internal/models"
)

const DefaultSessionKeyPrefix = "leadconsole:session:"

// RedisSessionRepository stores each operator session as one JSON value.
type RedisSessionRepository struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
}

func NewRedisSessionRepository(client *redis.Client, prefix string) *RedisSessionRepository {
	if prefix == "" {
		prefix = DefaultSessionKeyPrefix
	}
	return &RedisSessionRepository{client: client, prefix: prefix, timeout: 5 * time.Second}
}

func (r *RedisSessionRepository) key(operatorID int64) string {
	return r.prefix + strconv.FormatInt(operatorID, 10)
}

func (r *RedisSessionRepository) Get(operatorID int64) (*models.OperatorSession, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	val, err := r.client.Get(ctx, r.key(operatorID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	session := models.NewOperatorSession(operatorID)
	if err := json.Unmarshal([]byte(val), session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return session, nil
}

func (r *RedisSessionRepository) Save(session *models.OperatorSession) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := r.client.Set(ctx, r.key(session.OperatorID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}
	return nil
}

func (r *RedisSessionRepository) ListOperatorIDs() ([]int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	var ids []int64
	iter := r.client.Scan(ctx, 0, r.prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		id, err := strconv.ParseInt(strings.TrimPrefix(iter.Val(), r.prefix), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan sessions: %w", err)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
