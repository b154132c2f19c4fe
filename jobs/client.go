package jobs

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

// Client enqueues tasks.
type Client struct {
	client *asynq.Client
}

// NewClient connects a Client to the queue's Redis.
func NewClient(redisOpts asynq.RedisClientOpt) (*Client, error) {
	return &Client{client: asynq.NewClient(redisOpts)}, nil
}

// EnqueuePermissionsWarm enqueues a permission cache warm. Requests with the
// same reason inside ttl collapse into one task.
func (c *Client) EnqueuePermissionsWarm(ctx context.Context, reason string, ttl time.Duration) (*asynq.TaskInfo, error) {
	task, err := NewPermissionsWarmTask(reason)
	if err != nil {
		return nil, err
	}
	opts := []asynq.Option{asynq.Queue(QueueDefault), asynq.MaxRetry(3)}
	if ttl > 0 {
		opts = append(opts, asynq.Unique(ttl))
	}
	return c.client.EnqueueContext(ctx, task, opts...)
}

// Close releases the Redis connection.
func (c *Client) Close() error {
	return c.client.Close()
}
