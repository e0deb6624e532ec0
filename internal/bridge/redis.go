package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"fgaction/internal/action"
	"fgaction/internal/config"
	"fgaction/internal/executor"
	"fgaction/internal/logger"
	"fgaction/internal/network"
)

// ReasonRemote is used when a Redis notice carries no reason.
const ReasonRemote = "remote expiration notice"

// RedisSource reads expiration notices from a Redis pub/sub channel. A
// message is either a bare decimal identifier or a JSON object
// {"id": 3, "reason": "..."}.
type RedisSource struct {
	client  *redis.Client
	channel string
}

// NewRedisSource creates a source for cfg, dialling through the SOCKS5 proxy
// when socksCfg.Host is set.
func NewRedisSource(cfg config.RedisConfig, socksCfg config.SOCKSConfig) (*RedisSource, error) {
	if cfg.Channel == "" {
		return nil, fmt.Errorf("redis expiration source requires a channel")
	}

	opts := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	}

	dial, err := network.ContextDialer(socksCfg.Host, socksCfg.Port)
	if err != nil {
		return nil, fmt.Errorf("redis proxy: %w", err)
	}
	if dial != nil {
		opts.Dialer = dial
	}

	return &RedisSource{
		client:  redis.NewClient(opts),
		channel: cfg.Channel,
	}, nil
}

// Run subscribes to the channel and forwards parsed notices until ctx is done.
func (s *RedisSource) Run(ctx context.Context, out chan<- executor.Expiration) error {
	log := logger.WithComponent("redis-source")

	ps := s.client.Subscribe(ctx, s.channel)
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", s.channel, err)
	}
	log.Info().Str("channel", s.channel).Msg("Subscribed to expiration notices")

	messages := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			exp, err := ParseNotice(msg.Payload)
			if err != nil {
				log.Warn().Err(err).Str("payload", msg.Payload).Msg("Ignoring malformed expiration notice")
				continue
			}
			select {
			case out <- exp:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// Close releases the Redis client.
func (s *RedisSource) Close() error {
	return s.client.Close()
}

type redisNotice struct {
	ID     action.ID `json:"id"`
	Reason string    `json:"reason"`
}

// ParseNotice decodes a pub/sub payload.
func ParseNotice(payload string) (executor.Expiration, error) {
	payload = strings.TrimSpace(payload)
	exp := executor.Expiration{Reason: ReasonRemote, At: time.Now()}

	if strings.HasPrefix(payload, "{") {
		var n redisNotice
		if err := json.Unmarshal([]byte(payload), &n); err != nil {
			return executor.Expiration{}, fmt.Errorf("invalid notice JSON: %w", err)
		}
		if n.ID == action.None {
			return executor.Expiration{}, fmt.Errorf("notice is missing an action id")
		}
		exp.ID = n.ID
		if n.Reason != "" {
			exp.Reason = n.Reason
		}
		return exp, nil
	}

	id, err := action.ParseID(payload)
	if err != nil {
		return executor.Expiration{}, err
	}
	exp.ID = id
	return exp, nil
}
