package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"sabot-go/internal/sabot"
)

const (
	connectionTimeout = 2 * time.Second
	noticesSuffix     = ":notices"
)

// ErrNoSubscriber is returned when a publish reached nobody and the relay
// requires a subscriber.
var ErrNoSubscriber = errors.New("no subscriber received the message")

// Payload is the JSON document published for each delivered message.
type Payload struct {
	Platform string        `json:"platform"`
	Account  string        `json:"account"`
	Text     string        `json:"text"`
	Files    []PayloadFile `json:"files"`
	Note     string        `json:"note,omitempty"`
	SentAt   time.Time     `json:"sent_at"`
}

// PayloadFile is one stored media file in a Payload.
type PayloadFile struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}

// Redis publishes messages to a pub/sub channel for a downstream consumer.
// Notices go to the same channel name with a ":notices" suffix.
type Redis struct {
	client            *redis.Client
	channel           string
	requireSubscriber bool
	now               func() time.Time
	logger            sabot.Logger
}

var _ sabot.Relay = (*Redis)(nil)

// NewRedisClient creates a Redis client and checks the connection.
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedis creates a relay publishing on channel.
func NewRedis(client *redis.Client, channel string, requireSubscriber bool, logger sabot.Logger) *Redis {
	return &Redis{
		client:            client,
		channel:           channel,
		requireSubscriber: requireSubscriber,
		now:               time.Now,
		logger:            logger,
	}
}

func (r *Redis) Deliver(ctx context.Context, msg sabot.Message) error {
	p := Payload{
		Platform: string(msg.Platform),
		Account:  msg.Account,
		Text:     msg.Text(),
		Files:    []PayloadFile{},
		SentAt:   r.now().UTC(),
	}
	for _, f := range msg.Files() {
		p.Files = append(p.Files, PayloadFile{Path: f.Path, Kind: string(f.Kind)})
	}
	if nm, ok := msg.Delivery.(sabot.DeliveredNoMedia); ok {
		p.Note = nm.Note
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return r.publish(ctx, r.channel, data)
}

func (r *Redis) Notify(ctx context.Context, text string) error {
	return r.publish(ctx, r.channel+noticesSuffix, []byte(text))
}

func (r *Redis) publish(ctx context.Context, channel string, data []byte) error {
	n, err := r.client.Publish(ctx, channel, data).Result()
	if err != nil {
		return fmt.Errorf("failed to publish to Redis: %w", err)
	}
	if n == 0 && r.requireSubscriber {
		return fmt.Errorf("channel %s: %w", channel, ErrNoSubscriber)
	}
	r.logger.Debug("published to redis", "channel", channel, "receivers", n)
	return nil
}

// Close closes the Redis client.
func (r *Redis) Close() error {
	return r.client.Close()
}
