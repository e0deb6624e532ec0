package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"fgaction/internal/config"
	"fgaction/internal/logger"
	"fgaction/internal/network"
)

const (
	kafkaRestContentType = "application/vnd.kafka.json.v2+json"
	maxRetries           = 2
	retryDelay           = 500 * time.Millisecond
)

// kafkaRestBody is the Kafka REST proxy v2 produce request.
type kafkaRestBody struct {
	Records []kafkaRestRecord `json:"records"`
}

type kafkaRestRecord struct {
	Key   string        `json:"key"`
	Value *StatusRecord `json:"value"`
}

// KafkaRestSender publishes status records through the Kafka REST HTTP proxy.
type KafkaRestSender struct {
	client     *http.Client
	baseURL    string
	topic      string
	retryDelay time.Duration
	mu         sync.RWMutex
	closed     bool
}

// NewKafkaRestSender creates a new KafkaRest HTTP sender.
func NewKafkaRestSender(cfg config.KafkaRestConfig, socksCfg config.SOCKSConfig) (*KafkaRestSender, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("kafkarest sender requires KafkaRest.Address")
	}

	transport := &http.Transport{}
	dial, err := network.ContextDialer(socksCfg.Host, socksCfg.Port)
	if err != nil {
		return nil, fmt.Errorf("kafkarest proxy: %w", err)
	}
	if dial != nil {
		transport.DialContext = dial
	}

	return &KafkaRestSender{
		client: &http.Client{
			Transport: transport,
			Timeout:   10 * time.Second,
		},
		baseURL:    ensureHTTPScheme(cfg.Address),
		topic:      cfg.Topic,
		retryDelay: retryDelay,
	}, nil
}

// Send posts a single record, retrying up to maxRetries times.
func (s *KafkaRestSender) Send(ctx context.Context, rec *StatusRecord) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return fmt.Errorf("sender is closed")
	}

	body, err := json.Marshal(kafkaRestBody{
		Records: []kafkaRestRecord{{Key: rec.Key(), Value: rec}},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal status record: %w", err)
	}

	url := fmt.Sprintf("%s/topics/%s", s.baseURL, s.topic)
	log := logger.WithComponent("kafkarest-sender")

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.retryDelay):
			}
		}

		lastErr = s.doPost(ctx, url, body)
		if lastErr == nil {
			return nil
		}

		log.Warn().
			Err(lastErr).
			Int("attempt", attempt+1).
			Msg("KafkaRest send failed, retrying")
	}

	return fmt.Errorf("KafkaRest send failed after %d retries: %w", maxRetries, lastErr)
}

// Close releases resources.
func (s *KafkaRestSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.client.CloseIdleConnections()
	return nil
}

func (s *KafkaRestSender) doPost(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", kafkaRestContentType)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return fmt.Errorf("KafkaRest returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func ensureHTTPScheme(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	return "http://" + addr
}
