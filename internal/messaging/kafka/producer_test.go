package kafka

import (
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func TestProducer_PublishEvent(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := newProducerWith(mockProducer)

	mockProducer.ExpectSendMessageAndSucceed()

	event := NewCheckoutEvent(
		EventTypeCheckoutApproved,
		"checkout-123",
		"customer-1",
		200000,
		map[string]any{"transactions": 1},
	)

	if err := producer.PublishEvent(TopicCheckoutEvents, "customer-1", event); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEvent_Error(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := newProducerWith(mockProducer)

	mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	event := NewCheckoutEvent(EventTypeCheckoutRejected, "checkout-123", "customer-1", 250000, nil)

	if err := producer.PublishEvent(TopicCheckoutEvents, "customer-1", event); err == nil {
		t.Fatal("expected error, got nil")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestProducer_PublishEventWithHeaders(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := newProducerWith(mockProducer)

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		if msg.Topic != TopicCheckoutEvents {
			return errors.New("unexpected topic " + msg.Topic)
		}
		if len(msg.Headers) != 2 || string(msg.Headers[0].Key) != "event-type" || string(msg.Headers[1].Key) != "x-attempt" {
			return errors.New("headers must be sorted by key")
		}
		return nil
	})

	headers := map[string]string{"x-attempt": "2", "event-type": string(EventTypeCheckoutApproved)}
	if err := producer.PublishEventWithHeaders(TopicCheckoutEvents, "customer-1", map[string]int{"amount_minor": 1}, headers); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestRecordHeaders_Empty(t *testing.T) {
	if got := recordHeaders(nil); got != nil {
		t.Fatalf("expected nil headers, got %v", got)
	}
}

func TestProducer_PublishEvent_MarshalError(t *testing.T) {
	mockProducer := mocks.NewSyncProducer(t, nil)
	producer := newProducerWith(mockProducer)

	if err := producer.PublishEvent(TopicCheckoutEvents, "k", map[string]any{"bad": make(chan int)}); err == nil {
		t.Fatal("expected marshal error")
	}

	if err := mockProducer.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNewProducer_RequiresBrokers(t *testing.T) {
	if _, err := NewProducer(ProducerConfig{}); err == nil {
		t.Fatal("expected error without brokers")
	}
}

func TestProducerConfig_SaramaConfig(t *testing.T) {
	defaults := ProducerConfig{}.SaramaConfig()
	if defaults.Producer.Retry.Max != defaultProducerRetries || defaults.Producer.Timeout != defaultSendTimeout {
		t.Fatalf("unexpected defaults: retries=%d timeout=%s", defaults.Producer.Retry.Max, defaults.Producer.Timeout)
	}
	if !defaults.Producer.Idempotent || defaults.Net.MaxOpenRequests != 1 || defaults.Producer.RequiredAcks != sarama.WaitForAll {
		t.Fatal("producer must be idempotent with acks from all replicas")
	}

	custom := ProducerConfig{ClientID: "creditmarket-test", MaxRetries: 2, SendTimeout: time.Second}.SaramaConfig()
	if custom.ClientID != "creditmarket-test" || custom.Producer.Retry.Max != 2 || custom.Producer.Timeout != time.Second {
		t.Fatalf("overrides not applied: %s %d %s", custom.ClientID, custom.Producer.Retry.Max, custom.Producer.Timeout)
	}
}

func TestNewCheckoutEvent(t *testing.T) {
	metadata := map[string]any{"shortfall_minor": 50000}

	event := NewCheckoutEvent(EventTypeCheckoutRejected, "checkout-1", "customer-1", 250000, metadata)

	if event.EventType != EventTypeCheckoutRejected {
		t.Errorf("expected event type %s, got %s", EventTypeCheckoutRejected, event.EventType)
	}
	if event.CheckoutID != "checkout-1" || event.CustomerID != "customer-1" {
		t.Errorf("unexpected ids: %+v", event)
	}
	if event.AmountMinor != 250000 {
		t.Errorf("expected amount 250000, got %d", event.AmountMinor)
	}
	if event.Metadata["shortfall_minor"] != 50000 {
		t.Error("metadata not set correctly")
	}
	if event.Timestamp.IsZero() || time.Since(event.Timestamp) > time.Second {
		t.Error("timestamp should be close to current time")
	}
}
