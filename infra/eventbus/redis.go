// Package eventbus publishes application events to Redis Streams so that a
// presentation layer in another process can follow comparisons as they are
// computed.
package eventbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/amirasaad/btcfx/pkg/eventbus"
	"github.com/redis/go-redis/v9"
)

// DefaultStreamPrefix is prepended to every stream name.
const DefaultStreamPrefix = "btcfx:events"

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
	Time    time.Time       `json:"time"`
}

// RedisBus delivers events to in-process handlers and appends them to one
// Redis stream per event type.
type RedisBus struct {
	local  *eventbus.Memory
	client *redis.Client
	prefix string
	maxLen int64
	logger *slog.Logger
	now    func() time.Time
}

// NewRedisBus connects to url and checks the connection. maxLen caps each
// stream approximately; 0 leaves streams unbounded.
func NewRedisBus(url, prefix string, maxLen int64, logger *slog.Logger) (*RedisBus, error) {
	if url == "" {
		return nil, errors.New("redis event bus: url is required")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis event bus: invalid URL: %w", err)
	}

	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis event bus: connection failed: %w", err)
	}
	return NewRedisBusWithClient(client, prefix, maxLen, logger), nil
}

// NewRedisBusWithClient creates a RedisBus on an existing client.
func NewRedisBusWithClient(client *redis.Client, prefix string, maxLen int64, logger *slog.Logger) *RedisBus {
	if logger == nil {
		logger = slog.Default()
	}
	if prefix == "" {
		prefix = DefaultStreamPrefix
	}
	return &RedisBus{
		local:  eventbus.NewMemory(logger),
		client: client,
		prefix: strings.TrimSuffix(prefix, ":"),
		maxLen: maxLen,
		logger: logger.With("component", "redis-event-bus"),
		now:    time.Now,
	}
}

// Stream returns the stream name events of eventType are appended to, e.g.
// btcfx:events:comparison:computed.
func (b *RedisBus) Stream(eventType string) string {
	return b.prefix + ":" + strings.ToLower(strings.ReplaceAll(eventType, ".", ":"))
}

// Register adds an in-process handler.
func (b *RedisBus) Register(eventType string, handler eventbus.HandlerFunc) {
	b.local.Register(eventType, handler)
}

// Emit runs the local handlers, then publishes the event. Both failures are
// returned joined; a publish failure never prevents local delivery.
func (b *RedisBus) Emit(ctx context.Context, e eventbus.Event) error {
	localErr := b.local.Emit(ctx, e)
	return errors.Join(localErr, b.publish(ctx, e))
}

func (b *RedisBus) publish(ctx context.Context, e eventbus.Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		b.logger.Error("failed to marshal event", "error", err, "type", e.Type())
		return fmt.Errorf("redis event bus: marshal failed: %w", err)
	}
	env, err := json.Marshal(envelope{Type: e.Type(), Payload: payload, Time: b.now().UTC()})
	if err != nil {
		return fmt.Errorf("redis event bus: envelope marshal failed: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: b.Stream(e.Type()),
		Values: map[string]any{"event": string(env)},
	}
	if b.maxLen > 0 {
		args.MaxLen = b.maxLen
		args.Approx = true
	}
	if err := b.client.XAdd(ctx, args).Err(); err != nil {
		b.logger.Error("failed to publish event", "error", err, "type", e.Type())
		return fmt.Errorf("redis event bus: publish failed: %w", err)
	}
	b.logger.Debug("event published", "type", e.Type(), "stream", args.Stream)
	return nil
}

// Close closes the Redis client.
func (b *RedisBus) Close() error {
	return b.client.Close()
}

var _ eventbus.Bus = (*RedisBus)(nil)
