package relay

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/monetiq/realtime/config"
	"github.com/monetiq/realtime/src/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// redisEnvelope wraps an event with the originating instance ID so a
// process can skip events it mirrored itself.
type redisEnvelope struct {
	InstanceID string      `json:"instance_id"`
	Event      types.Event `json:"event"`
}

// RedisRelay mirrors events between dashboard processes via Redis pub/sub.
type RedisRelay struct {
	client     *redis.Client
	prefix     string
	instanceID string
	sink       EventSink
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.RWMutex
	active bool
}

// NewRedisRelay creates a relay that uses Redis pub/sub for cross-process
// event mirroring.
func NewRedisRelay(cfg *config.RelayConfig, sink EventSink, logger zerolog.Logger) *RedisRelay {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithCancel(context.Background())

	return &RedisRelay{
		client:     client,
		prefix:     cfg.Prefix,
		instanceID: uuid.New().String(),
		sink:       sink,
		logger:     logger.With().Str("component", "redis-relay").Logger(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start subscribes to the Redis event channel and begins relaying.
func (r *RedisRelay) Start() error {
	if err := r.client.Ping(r.ctx).Err(); err != nil {
		return err
	}

	channel := r.prefix + "events"
	sub := r.client.Subscribe(r.ctx, channel)

	// Wait for subscription confirmation.
	if _, err := sub.Receive(r.ctx); err != nil {
		return err
	}

	r.mu.Lock()
	r.active = true
	r.mu.Unlock()

	r.wg.Add(1)
	go r.listen(sub)

	r.logger.Info().
		Str("instance_id", r.instanceID).
		Str("channel", channel).
		Msg("redis relay started")
	return nil
}

// Publish mirrors an event to sibling processes via Redis.
func (r *RedisRelay) Publish(evt types.Event) error {
	env := redisEnvelope{
		InstanceID: r.instanceID,
		Event:      evt,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	channel := r.prefix + "events"
	return r.client.Publish(r.ctx, channel, data).Err()
}

// Stop unsubscribes and closes the Redis connection.
func (r *RedisRelay) Stop() error {
	r.mu.Lock()
	r.active = false
	r.mu.Unlock()

	r.cancel()
	r.wg.Wait()
	return r.client.Close()
}

// Available reports whether the relay is connected.
func (r *RedisRelay) Available() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

// listen reads events from the Redis subscription and injects them locally.
func (r *RedisRelay) listen(sub *redis.PubSub) {
	defer r.wg.Done()
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handleRedisMessage(msg)
		case <-r.ctx.Done():
			return
		}
	}
}

// handleRedisMessage decodes an envelope and injects non-self events into
// the local multiplexer.
func (r *RedisRelay) handleRedisMessage(msg *redis.Message) {
	var env redisEnvelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		r.logger.Error().Err(err).Msg("failed to decode redis message")
		return
	}

	// Skip events that originated from this process.
	if env.InstanceID == r.instanceID {
		return
	}

	r.logger.Debug().
		Str("from_instance", env.InstanceID).
		Str("event", env.Event.Name).
		Msg("relaying event from redis")

	r.sink.Publish(env.Event)
}
