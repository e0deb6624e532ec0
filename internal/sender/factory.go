package sender

import (
	"fmt"
	"strings"

	"fgaction/internal/config"
	"fgaction/internal/logger"
)

// NewSender creates a Sender based on the configuration.
func NewSender(cfg *config.Config) (Sender, error) {
	log := logger.WithComponent("sender-factory")

	senderType := strings.ToLower(cfg.SenderType)
	if senderType == "" {
		senderType = "file"
	}

	log.Info().Str("sender_type", senderType).Msg("Creating status sender")

	switch senderType {
	case "kafkarest":
		log.Info().
			Str("kafkarest_addr", cfg.KafkaRest.Address).
			Str("topic", cfg.KafkaRest.Topic).
			Msg("Creating KafkaRest sender")
		return NewKafkaRestSender(cfg.KafkaRest, cfg.SOCKSProxy)
	case "kafka":
		return NewKafkaSender(cfg.Kafka, cfg.SOCKSProxy)
	case "file":
		return NewFileSender(cfg.File)
	case "none":
		return NopSender{}, nil
	default:
		return nil, fmt.Errorf("unknown sender type: %s (supported: kafkarest, kafka, file, none)", senderType)
	}
}
