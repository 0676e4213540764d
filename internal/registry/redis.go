package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/artworkup/api/internal/model"
)

const jobIndexKey = "jobs"

// maxUpdateRetries bounds optimistic-lock retries in Update.
const maxUpdateRetries = 10

// RedisStore keeps each job as JSON under job:<id>, with a set indexing all ids.
type RedisStore struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisStore creates a Redis-backed store. A zero ttl keeps jobs until cleared.
func NewRedisStore(redisClient *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		redis: redisClient,
		ttl:   ttl,
	}
}

func jobKey(id string) string {
	return fmt.Sprintf("job:%s", id)
}

func (s *RedisStore) Create(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	ok, err := s.redis.SetNX(ctx, jobKey(job.ID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	if !ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}
	if err := s.redis.SAdd(ctx, jobIndexKey, job.ID).Err(); err != nil {
		return fmt.Errorf("failed to index job: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, nil
}

func (s *RedisStore) List(ctx context.Context) ([]*model.Job, error) {
	ids, err := s.redis.SMembers(ctx, jobIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	jobs := make([]*model.Job, 0, len(ids))
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			// expired through the TTL
			s.redis.SRem(ctx, jobIndexKey, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	sortByStart(jobs)
	return jobs, nil
}

// Update runs fn inside a WATCH transaction so concurrent writers never lose updates.
func (s *RedisStore) Update(ctx context.Context, id string, fn func(job *model.Job)) (*model.Job, error) {
	key := jobKey(id)
	var updated *model.Job

	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrJobNotFound
			}
			return err
		}

		var job model.Job
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("failed to unmarshal job: %w", err)
		}
		fn(&job)
		job.ID = id
		job.UpdatedAt = time.Now()

		out, err := json.Marshal(&job)
		if err != nil {
			return fmt.Errorf("failed to marshal job: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, redis.KeepTTL)
			return nil
		})
		if err == nil {
			updated = &job
		}
		return err
	}

	for i := 0; i < maxUpdateRetries; i++ {
		err := s.redis.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrJobNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update job: %w", err)
	}
	return nil, fmt.Errorf("failed to update job %s: too much contention", id)
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := s.redis.Del(ctx, jobKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	s.redis.SRem(ctx, jobIndexKey, id)
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}
