package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"seo-audit/pkg/config"
	"seo-audit/pkg/models"
	"seo-audit/pkg/utils"
)

// Queue is a Redis-list crawl job queue with at-least-once delivery.
// Enqueue pushes onto the main list; Receive atomically moves entries
// into a processing list so a crashed consumer leaves its messages
// visible for recovery. Ack removes from the processing list; Retry
// moves the entry back to the main list.
type Queue struct {
	client      *redis.Client
	name        string
	processing  string
	batchSize   int
	receiveWait time.Duration
	log         *logrus.Entry
}

// NewQueue creates a queue from validated config. It does not dial
// Redis; the first operation does.
func NewQueue(cfg config.QueueConfig, log *logrus.Logger) *Queue {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	return &Queue{
		client:      client,
		name:        cfg.Name,
		processing:  cfg.Name + ":processing",
		batchSize:   cfg.BatchSize,
		receiveWait: cfg.ReceiveWait,
		log:         log.WithField("component", "queue"),
	}
}

// Close releases the Redis connection pool.
func (q *Queue) Close() error {
	return q.client.Close()
}

// Enqueue pushes one job message onto the main list.
func (q *Queue) Enqueue(ctx context.Context, msg models.JobMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: marshaling job message: %v", utils.ErrQueue, err)
	}
	if err := q.client.LPush(ctx, q.name, payload).Err(); err != nil {
		return fmt.Errorf("%w: enqueue to %s: %v", utils.ErrQueue, q.name, err)
	}
	q.log.WithFields(logrus.Fields{
		"site_id": msg.SiteID,
		"job_id":  msg.CrawlJobID,
	}).Debug("Job message enqueued")
	return nil
}

// Message is one received queue entry. The raw payload is retained so
// Ack and Retry can address the exact list element.
type Message struct {
	Job models.JobMessage

	queue *Queue
	raw   string
}

// Receive blocks up to the configured wait for the first message, then
// drains without blocking up to the batch size. An empty batch with a
// nil error means the wait elapsed with nothing to do.
func (q *Queue) Receive(ctx context.Context) ([]*Message, error) {
	var batch []*Message

	raw, err := q.client.BLMove(ctx, q.name, q.processing, "RIGHT", "LEFT", q.receiveWait).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: receive from %s: %v", utils.ErrQueue, q.name, err)
	}
	if msg := q.decode(raw); msg != nil {
		batch = append(batch, msg)
	}

	for len(batch) < q.batchSize {
		raw, err := q.client.LMove(ctx, q.name, q.processing, "RIGHT", "LEFT").Result()
		if errors.Is(err, redis.Nil) {
			break
		}
		if err != nil {
			return batch, fmt.Errorf("%w: receive from %s: %v", utils.ErrQueue, q.name, err)
		}
		if msg := q.decode(raw); msg != nil {
			batch = append(batch, msg)
		}
	}
	return batch, nil
}

// decode parses a raw payload. An undecodable entry is dropped from the
// processing list and logged; replaying it would poison the consumer.
func (q *Queue) decode(raw string) *Message {
	var job models.JobMessage
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		q.log.Warnf("Dropping undecodable queue entry: %v", err)
		q.client.LRem(context.Background(), q.processing, 1, raw)
		return nil
	}
	return &Message{Job: job, queue: q, raw: raw}
}

// Payload returns the decoded job message.
func (m *Message) Payload() models.JobMessage {
	return m.Job
}

// Ack removes the message from the processing list after successful
// handling.
func (m *Message) Ack(ctx context.Context) error {
	if err := m.queue.client.LRem(ctx, m.queue.processing, 1, m.raw).Err(); err != nil {
		return fmt.Errorf("%w: ack: %v", utils.ErrQueue, err)
	}
	return nil
}

// Retry moves the message back onto the main list for redelivery.
func (m *Message) Retry(ctx context.Context) error {
	pipe := m.queue.client.TxPipeline()
	pipe.LRem(ctx, m.queue.processing, 1, m.raw)
	pipe.RPush(ctx, m.queue.name, m.raw)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: retry: %v", utils.ErrQueue, err)
	}
	return nil
}
