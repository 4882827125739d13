// Package queue wraps the Redis client used for the inbound work queue
// (blocking FIFO pop) and the outbound analysis broadcast channel
// (fire-and-forget publish). Grounded on
// backend/services/redis_service.go's xray.Capture-wrapped client calls
// and workers/golang/main.go's BRPop loop, generalized from BRPop to
// BLPop to match SPEC_FULL.md §6 ("pop from head").
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-xray-sdk-go/xray"
	"github.com/redis/go-redis/v9"

	"github.com/softgate/rce-dispatcher/errs"
	"github.com/softgate/rce-dispatcher/models"
)

// SubmissionQueueKey is the FIFO list name jobs are dequeued from.
const SubmissionQueueKey = "submission_queue"

// AnalysisChannel is the Pub/Sub channel terminal-state notifications are
// published to.
const AnalysisChannel = "analysis_queue"

// redisCmdable is the narrow slice of *redis.Client this package drives.
// Isolating it behind an interface lets tests substitute an in-memory fake
// instead of requiring a live Redis server, the same shape as
// sandbox.ContainerRuntime's relationship to the Docker SDK client.
type redisCmdable interface {
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

// Client wraps a Redis connection for both queue roles the dispatcher
// needs: consuming submissions and publishing analysis notifications.
type Client struct {
	rdb redisCmdable
}

// Connect parses url and verifies connectivity with a Ping, matching the
// startup contract in SPEC_FULL.md §4.5 ("abort process on connection
// failure").
func Connect(ctx context.Context, url string) (*Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: parse queue url: %v", errs.ErrQueueUnreachable, err)
	}

	rdb := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrQueueUnreachable, err)
	}

	return &Client{rdb: rdb}, nil
}

// Close releases the underlying Redis client.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Dequeue blocks until a job payload is available at the head of the
// submission queue, or ctx is cancelled. It returns the raw JSON payload;
// parsing is the dispatcher's responsibility so a malformed payload can be
// logged with its original bytes.
func (c *Client) Dequeue(ctx context.Context) (string, error) {
	result, err := c.rdb.BLPop(ctx, 0, SubmissionQueueKey).Result()
	if err != nil {
		if err == context.Canceled || ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: %v", errs.ErrQueueUnreachable, err)
	}
	if len(result) < 2 {
		return "", fmt.Errorf("%w: empty BLPOP result", errs.ErrMalformedJob)
	}
	return result[1], nil
}

// PublishAnalysis fire-and-forgets a notification to the analysis
// broadcast channel. Failures are returned to the caller to log, never
// treated as fatal (SPEC_FULL.md §4.5).
func (c *Client) PublishAnalysis(ctx context.Context, notification models.AnalysisNotification) error {
	var err error
	xray.Capture(ctx, "Redis.Publish", func(ctx1 context.Context) error {
		payload, marshalErr := json.Marshal(notification)
		if marshalErr != nil {
			err = marshalErr
			return marshalErr
		}
		err = c.rdb.Publish(ctx1, AnalysisChannel, string(payload)).Err()

		if seg := xray.GetSegment(ctx1); seg != nil {
			seg.AddMetadata("redis.channel", AnalysisChannel)
			seg.AddMetadata("redis.operation", "PUBLISH")
		}
		return err
	})
	return err
}
