// Package timediff measures the offset between the local clock and a Redis
// server so that published status records carry server-aligned timestamps.
package timediff

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"fgaction/internal/config"
	"fgaction/internal/logger"
	"fgaction/internal/network"
)

const queryTimeout = 5 * time.Second

// Syncer periodically measures local time minus Redis TIME.
type Syncer struct {
	diff     atomic.Int64
	client   *redis.Client
	interval time.Duration
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSyncer creates a Syncer against the Redis server of cfg, dialling
// through the SOCKS5 proxy when socksCfg.Host is set.
func NewSyncer(cfg config.RedisConfig, socksCfg config.SOCKSConfig, interval time.Duration) (*Syncer, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("clock sync interval must be positive")
	}

	opts := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
	dial, err := network.ContextDialer(socksCfg.Host, socksCfg.Port)
	if err != nil {
		return nil, fmt.Errorf("clock sync proxy: %w", err)
	}
	if dial != nil {
		opts.Dialer = dial
	}

	return &Syncer{client: redis.NewClient(opts), interval: interval}, nil
}

// Start performs the first measurement synchronously, then keeps measuring
// in the background.
func (s *Syncer) Start(ctx context.Context) error {
	if err := s.syncOnce(ctx); err != nil {
		return fmt.Errorf("initial clock sync failed: %w", err)
	}

	tickCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(tickCtx)
	return nil
}

// Stop ends background measurement and closes the Redis client.
func (s *Syncer) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.client.Close()
}

// Diff returns the last measured offset, local minus server.
func (s *Syncer) Diff() time.Duration {
	return time.Duration(s.diff.Load())
}

// Now returns the current time on the server's clock.
func (s *Syncer) Now() time.Time {
	return time.Now().Add(-s.Diff())
}

func (s *Syncer) loop(ctx context.Context) {
	defer s.wg.Done()
	log := logger.WithComponent("timediff")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.syncOnce(ctx); err != nil {
				log.Warn().Err(err).Msg("Periodic clock sync failed, keeping last offset")
			}
		}
	}
}

// syncOnce halves the round trip so the offset is measured against the
// midpoint of the TIME request.
func (s *Syncer) syncOnce(ctx context.Context) error {
	log := logger.WithComponent("timediff")

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	sent := time.Now()
	serverTime, err := s.client.Time(queryCtx).Result()
	if err != nil {
		return fmt.Errorf("Redis TIME failed: %w", err)
	}
	received := time.Now()

	local := sent.Add(received.Sub(sent) / 2)
	diff := local.Sub(serverTime)
	s.diff.Store(int64(diff))

	log.Debug().
		Int64("server_timestamp", serverTime.UnixMilli()).
		Int64("local_timestamp", local.UnixMilli()).
		Dur("diff", diff).
		Dur("rtt", received.Sub(sent)).
		Msg("Clock offset measured")
	return nil
}
