// Package events announces completed simulations to other processes.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	redis "github.com/redis/go-redis/v9"

	"github.com/sawpanic/sectorpulse/internal/scores"
)

// TypeSimulationCompleted is the only event type published today.
const TypeSimulationCompleted = "simulation.completed"

// DefaultChannel is the pub/sub channel name.
const DefaultChannel = "sectorpulse.simulations"

// Event describes one finished simulation run.
type Event struct {
	Type      string         `json:"type"`
	RunID     string         `json:"run_id"`
	Timestamp time.Time      `json:"ts"`
	Shocks    []string       `json:"shocks"`
	Changes   []scores.Delta `json:"changes"`
	Capped    []string       `json:"capped,omitempty"`
	Dequeues  int            `json:"dequeues"`
	Updates   int            `json:"updates"`
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Config selects the publisher.
type Config struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
	Channel  string `yaml:"channel"`
}

// DefaultConfig publishes nothing until enabled.
func DefaultConfig() Config {
	return Config{Addr: "localhost:6379", Channel: DefaultChannel}
}

// New returns a Redis publisher when enabled, otherwise a no-op one.
func New(cfg Config) Publisher {
	if !cfg.Enabled {
		return Nop{}
	}
	return NewRedisPublisher(redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	}), cfg.Channel)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// RedisPublisher publishes JSON events on a Redis channel.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher uses client; an empty channel means DefaultChannel.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) error {
	payload, err := Encode(ev)
	if err != nil {
		return err
	}
	receivers, err := p.client.Publish(ctx, p.channel, payload).Result()
	if err != nil {
		return fmt.Errorf("publish %s: %w", p.channel, err)
	}
	log.Debug().Str("channel", p.channel).Str("run_id", ev.RunID).Int64("receivers", receivers).Msg("Simulation event published")
	return nil
}

func (p *RedisPublisher) Close() error { return p.client.Close() }

// Subscribe streams decoded events from channel until ctx is done.
// Malformed payloads are logged and skipped.
func Subscribe(ctx context.Context, client *redis.Client, channel string) (<-chan Event, error) {
	if channel == "" {
		channel = DefaultChannel
	}
	sub := client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	out := make(chan Event)
	go func() {
		defer close(out)
		defer sub.Close()
		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				ev, err := Decode([]byte(msg.Payload))
				if err != nil {
					log.Warn().Err(err).Str("channel", channel).Msg("Dropping malformed event")
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Encode serializes ev.
func Encode(ev Event) ([]byte, error) {
	if ev.Type == "" {
		ev.Type = TypeSimulationCompleted
	}
	return json.Marshal(ev)
}

// Decode parses an event payload.
func Decode(raw []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, fmt.Errorf("decode event: missing type")
	}
	return ev, nil
}
