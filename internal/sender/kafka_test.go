package sender

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"

	"fgaction/internal/action"
	"fgaction/internal/config"
)

func TestKafkaSender_SendKeysByAction(t *testing.T) {
	sc := sarama.NewConfig()
	sc.Producer.Return.Successes = true
	producer := mocks.NewAsyncProducer(t, sc)

	var gotKey, gotValue []byte
	producer.ExpectInputWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		var err error
		if gotKey, err = msg.Key.Encode(); err != nil {
			return err
		}
		gotValue, err = msg.Value.Encode()
		return err
	})

	s := newKafkaSenderWithProducer(producer, "fgaction-status")
	rec := NewRecord(KindStarted, 42, action.NativeDirect, action.Config{Title: "Fittest"})
	if err := s.Send(context.Background(), rec); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	msg := <-producer.Successes()
	if msg.Topic != "fgaction-status" {
		t.Errorf("unexpected topic %q", msg.Topic)
	}
	if string(gotKey) != "42" {
		t.Errorf("expected key 42, got %q", gotKey)
	}
	var decoded StatusRecord
	if err := json.Unmarshal(gotValue, &decoded); err != nil {
		t.Fatalf("invalid payload: %v", err)
	}
	if decoded.EventID != rec.EventID || decoded.Kind != KindStarted {
		t.Errorf("unexpected payload: %+v", decoded)
	}

	if err := s.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestKafkaSender_ProducerErrorsAreDrained(t *testing.T) {
	producer := mocks.NewAsyncProducer(t, nil)
	producer.ExpectInputAndFail(errors.New("broker down"))

	s := newKafkaSenderWithProducer(producer, "t")
	if err := s.Send(context.Background(), NewRecord(KindStopped, 1, action.NativeHeadless, action.Config{})); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := s.Send(context.Background(), NewRecord(KindStopped, 1, action.NativeHeadless, action.Config{})); err == nil {
		t.Error("expected error after Close")
	}
}

func TestNewSaramaConfig(t *testing.T) {
	cfg := config.DefaultConfig().Kafka
	cfg.SASLEnabled = true
	cfg.SASLMechanism = "scram-sha-512"
	cfg.RequiredAcks = -1
	cfg.Compression = "zstd"

	sc, err := newSaramaConfig(cfg, config.SOCKSConfig{Host: "127.0.0.1", Port: 1080})
	if err != nil {
		t.Fatalf("newSaramaConfig failed: %v", err)
	}
	if sc.Net.SASL.Mechanism != sarama.SASLTypeSCRAMSHA512 {
		t.Errorf("unexpected mechanism %v", sc.Net.SASL.Mechanism)
	}
	if sc.Net.SASL.SCRAMClientGeneratorFunc == nil {
		t.Error("expected SCRAM client generator")
	}
	if sc.Producer.RequiredAcks != sarama.WaitForAll {
		t.Errorf("unexpected acks %v", sc.Producer.RequiredAcks)
	}
	if sc.Producer.Compression != sarama.CompressionZSTD {
		t.Errorf("unexpected compression %v", sc.Producer.Compression)
	}
	if !sc.Net.Proxy.Enable || sc.Net.Proxy.Dialer == nil {
		t.Error("expected SOCKS proxy dialer")
	}
}

func TestXDGSCRAMClient_Begin(t *testing.T) {
	c := &XDGSCRAMClient{HashGeneratorFcn: SHA256}
	if err := c.Begin("user", "pass", ""); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if c.Done() {
		t.Error("conversation should not be done before any step")
	}
}
