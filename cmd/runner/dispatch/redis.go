package dispatch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/VenkataVardineni/flowforge-automations/common/logger"
	redisWrapper "github.com/VenkataVardineni/flowforge-automations/common/redis"
)

const (
	runRequestStream = "runner.run.requests"
	runConsumerGroup = "run_executors"
	readBlock        = 5 * time.Second
	errorBackoff     = 1 * time.Second
)

// RedisDispatcher hands run ids between processes through a Redis stream
// with a consumer group, so intake and workers can scale independently.
// Delivery is at-least-once; the engine's idempotent resume makes
// redelivered requests harmless.
type RedisDispatcher struct {
	redis    *redisWrapper.Client
	workers  int
	log      *logger.Logger
	consumer string
	wg       sync.WaitGroup
}

// NewRedisDispatcher creates a stream-backed dispatcher with the given
// worker count
func NewRedisDispatcher(redisClient *redisWrapper.Client, workers int, log *logger.Logger) *RedisDispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &RedisDispatcher{
		redis:    redisClient,
		workers:  workers,
		log:      log.WithComponent("dispatch"),
		consumer: fmt.Sprintf("runner-%s", uuid.New().String()[:8]),
	}
}

// Submit appends a run request to the stream
func (d *RedisDispatcher) Submit(ctx context.Context, runID uuid.UUID) error {
	_, err := d.redis.AddToStream(ctx, runRequestStream, map[string]interface{}{
		"run_id":       runID.String(),
		"submitted_at": time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue run request: %w", err)
	}
	return nil
}

// Start creates the consumer group and launches the consumer loops
func (d *RedisDispatcher) Start(ctx context.Context, handler Handler) error {
	if err := d.redis.CreateStreamGroup(ctx, runRequestStream, runConsumerGroup); err != nil {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	d.log.Info("starting redis dispatcher",
		"stream", runRequestStream,
		"consumer_group", runConsumerGroup,
		"workers", d.workers)

	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.consume(ctx, fmt.Sprintf("%s-%d", d.consumer, i), handler)
	}
	return nil
}

func (d *RedisDispatcher) consume(ctx context.Context, consumer string, handler Handler) {
	defer d.wg.Done()
	log := d.log.WithFields(map[string]any{"consumer": consumer})

	for {
		select {
		case <-ctx.Done():
			log.Info("run request consumer stopping")
			return
		default:
		}

		streams, err := d.redis.ReadFromStreamGroup(ctx, runConsumerGroup, consumer, runRequestStream, 1, readBlock)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("failed to read run requests", "error", err)
			select {
			case <-time.After(errorBackoff):
			case <-ctx.Done():
				return
			}
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				d.handleMessage(ctx, log, message, handler)
			}
		}
	}
}

func (d *RedisDispatcher) handleMessage(ctx context.Context, log *logger.Logger, message redis.XMessage, handler Handler) {
	runID, err := parseRunID(message.Values)
	if err != nil {
		log.Error("dropping malformed run request", "message_id", message.ID, "error", err)
	} else if err := handler(ctx, runID); err != nil {
		log.Error("run execution failed", "run_id", runID.String(), "error", err)
	}

	// Ack even when handling failed: a stuck message would be redelivered
	// forever, and resubmitting a run is always safe.
	if err := d.redis.AckStreamMessage(ctx, runRequestStream, runConsumerGroup, message.ID); err != nil {
		log.Error("failed to ack run request", "message_id", message.ID, "error", err)
	}
}

func parseRunID(values map[string]interface{}) (uuid.UUID, error) {
	raw, ok := values["run_id"].(string)
	if !ok {
		return uuid.Nil, fmt.Errorf("message missing run_id field")
	}
	runID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid run_id %q: %w", raw, err)
	}
	return runID, nil
}

// Close waits for the consumer loops to observe context cancellation
func (d *RedisDispatcher) Close() error {
	d.wg.Wait()
	return nil
}
