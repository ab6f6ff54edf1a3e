package feed

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"solana-wallet-tracker/internal/domain"
)

// DefaultRedisChannel is the Pub/Sub channel events are mirrored to.
const DefaultRedisChannel = "wallet-tracker:events"

const (
	redisQueueSize      = 256
	redisPublishTimeout = 3 * time.Second
)

// RedisSink mirrors events to a Redis Pub/Sub channel. Publishing happens on
// a background goroutine; when its queue is full new events are dropped.
type RedisSink struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger

	queue chan *domain.Event
	done  chan struct{}
	once  sync.Once
}

// NewRedisClient connects to addr and verifies the connection.
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		PoolSize:     4,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// NewRedisSink starts a sink publishing to channel.
func NewRedisSink(client *redis.Client, channel string, logger *zap.Logger) *RedisSink {
	if channel == "" {
		channel = DefaultRedisChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &RedisSink{
		client:  client,
		channel: channel,
		logger:  logger,
		queue:   make(chan *domain.Event, redisQueueSize),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Send queues e for publishing without blocking.
func (s *RedisSink) Send(e *domain.Event) {
	select {
	case <-s.done:
		return
	default:
	}
	select {
	case s.queue <- e:
	default:
		s.logger.Warn("redis sink queue full, dropping event",
			zap.String("signature", e.Signature),
			zap.String("mint", e.Mint))
	}
}

func (s *RedisSink) run() {
	for {
		select {
		case <-s.done:
			return
		case e := <-s.queue:
			s.publish(e)
		}
	}
}

func (s *RedisSink) publish(e *domain.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		s.logger.Error("failed to encode event", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), redisPublishTimeout)
	defer cancel()
	if err := s.client.Publish(ctx, s.channel, payload).Err(); err != nil {
		s.logger.Warn("failed to publish redis message",
			zap.String("channel", s.channel),
			zap.Error(err))
	}
}

// Close stops the publishing goroutine. Queued events are discarded.
func (s *RedisSink) Close() {
	s.once.Do(func() { close(s.done) })
}
