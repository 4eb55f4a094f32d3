package redis

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

const candidateQueueKey = "prober:candidates"

// QueueRepoImpl provides a FIFO candidate queue on a Redis list.
// It also serves as a candidate.Source that drains the list.
type QueueRepoImpl struct {
	client *redis.Client
	key    string
}

func NewQueueRepo(client *redis.Client) *QueueRepoImpl {
	return &QueueRepoImpl{client: client, key: candidateQueueKey}
}

// Push adds candidates to the left side of the list.
func (r *QueueRepoImpl) Push(ctx context.Context, candidates ...string) error {
	if len(candidates) == 0 {
		return nil
	}
	values := make([]any, len(candidates))
	for i, c := range candidates {
		values[i] = c
	}
	return r.client.LPush(ctx, r.key, values...).Err()
}

// Pop removes a candidate from the right side. It returns redis.Nil when the queue is empty.
func (r *QueueRepoImpl) Pop(ctx context.Context) (string, error) {
	return r.client.RPop(ctx, r.key).Result()
}

func (r *QueueRepoImpl) Size(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, r.key).Result()
}

// Candidates pops up to max candidates (all when max <= 0) in FIFO order.
func (r *QueueRepoImpl) Candidates(ctx context.Context, max int) ([]string, error) {
	var out []string
	for max <= 0 || len(out) < max {
		c, err := r.Pop(ctx)
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return out, err
		}
		out = append(out, c)
	}
	return out, nil
}
