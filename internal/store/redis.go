package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cuongbtq/push-orchestrator/internal/job"
	"github.com/go-redis/redis"
)

// DefaultRedisKey is the hash holding one field per job id
const DefaultRedisKey = "push-orchestrator:jobs"

// RedisStore keeps the job map in a single Redis hash
type RedisStore struct {
	db  *redis.Client
	key string
}

// NewRedisStore creates a store on the given hash key
func NewRedisStore(db *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{db: db, key: key}
}

// Load reads the whole hash
func (s *RedisStore) Load(ctx context.Context) (map[string]job.Job, error) {
	result, err := s.db.WithContext(ctx).HGetAll(s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read jobs hash: %w", err)
	}

	jobs := make(map[string]job.Job, len(result))
	for id, raw := range result {
		var j job.Job
		if err := json.Unmarshal([]byte(raw), &j); err != nil {
			return nil, fmt.Errorf("failed to decode job %s: %w", id, err)
		}
		jobs[id] = j
	}
	return jobs, nil
}

// Save rewrites the hash inside a MULTI/EXEC block
func (s *RedisStore) Save(ctx context.Context, jobs map[string]job.Job) error {
	fields := make(map[string]interface{}, len(jobs))
	for id, j := range jobs {
		data, err := json.Marshal(j)
		if err != nil {
			return fmt.Errorf("failed to encode job %s: %w", id, err)
		}
		fields[id] = data
	}

	pipe := s.db.WithContext(ctx).TxPipeline()
	pipe.Del(s.key)
	if len(fields) > 0 {
		pipe.HMSet(s.key, fields)
	}

	if _, err := pipe.Exec(); err != nil {
		return fmt.Errorf("failed to write jobs hash: %w", err)
	}
	return nil
}
