package sink

import (
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
)

func TestDefaultKafkaConfig(t *testing.T) {
	brokers := []string{"localhost:9092", "localhost:9093"}
	config := DefaultKafkaConfig(brokers)

	if len(config.Brokers) != 2 {
		t.Errorf("expected 2 brokers, got %d", len(config.Brokers))
	}

	if config.Brokers[0] != "localhost:9092" {
		t.Errorf("expected first broker localhost:9092, got %s", config.Brokers[0])
	}

	if config.BatchSize != DefaultKafkaBatchSize {
		t.Errorf("expected batch size %d, got %d", DefaultKafkaBatchSize, config.BatchSize)
	}

	if config.RequiredAcks != kafka.RequireAll {
		t.Errorf("expected RequireAll acks, got %v", config.RequiredAcks)
	}

	if !config.AutoCreateTopics {
		t.Error("expected topic auto-creation enabled")
	}
}

func TestNewKafkaSink(t *testing.T) {
	config := KafkaConfig{
		Brokers:      []string{"localhost:9092"},
		BatchSize:    50,
		RequiredAcks: kafka.RequireOne,
	}

	sink, err := NewKafkaSink(config)
	if err != nil {
		t.Fatalf("unexpected error creating sink: %v", err)
	}
	defer sink.Close()

	if sink.writer == nil {
		t.Fatal("expected non-nil writer")
	}

	// Verify writer configuration
	if sink.writer.BatchSize != 50 {
		t.Errorf("expected batch size 50, got %d", sink.writer.BatchSize)
	}

	if sink.writer.RequiredAcks != kafka.RequireOne {
		t.Errorf("expected RequireOne acks, got %v", sink.writer.RequiredAcks)
	}

	if sink.writer.Async {
		t.Error("expected synchronous writer")
	}

	if _, ok := sink.writer.Balancer.(*kafka.Hash); !ok {
		t.Errorf("expected hash balancer, got %T", sink.writer.Balancer)
	}
}

func TestNewKafkaSink_Defaults(t *testing.T) {
	sink, err := NewKafkaSink(KafkaConfig{Brokers: []string{"localhost:9092"}})
	if err != nil {
		t.Fatalf("unexpected error creating sink: %v", err)
	}
	defer sink.Close()

	if sink.writer.BatchSize != DefaultKafkaBatchSize {
		t.Errorf("expected default batch size, got %d", sink.writer.BatchSize)
	}

	if sink.writer.BatchTimeout != DefaultKafkaBatchTimeout {
		t.Errorf("expected default batch timeout, got %v", sink.writer.BatchTimeout)
	}

	if sink.writeTimeout != DefaultKafkaWriteTimeout {
		t.Errorf("expected default write timeout, got %v", sink.writeTimeout)
	}
}

func TestNewKafkaSink_EmptyBrokers(t *testing.T) {
	_, err := NewKafkaSink(KafkaConfig{Brokers: []string{}})
	if err == nil {
		t.Fatal("expected error for empty brokers")
	}
}

func TestKafkaSink_Close(t *testing.T) {
	sink, err := NewKafkaSink(DefaultKafkaConfig([]string{"localhost:9092"}))
	if err != nil {
		t.Fatalf("unexpected error creating sink: %v", err)
	}

	if err := sink.Close(); err != nil {
		t.Errorf("unexpected error closing sink: %v", err)
	}

	empty := &KafkaSink{}
	if err := empty.Close(); err != nil {
		t.Errorf("unexpected error closing empty sink: %v", err)
	}
}

func TestKafkaSink_PublishUnreachable(t *testing.T) {
	config := DefaultKafkaConfig([]string{"127.0.0.1:1"})
	config.WriteTimeout = 200 * time.Millisecond

	sink, err := NewKafkaSink(config)
	if err != nil {
		t.Fatalf("unexpected error creating sink: %v", err)
	}
	defer sink.Close()

	if err := sink.Publish("replication.status", "1", []byte(`{"token":"IDLE"}`)); err == nil {
		t.Fatal("expected error publishing to unreachable broker")
	}
}

func TestMockSink_Publish(t *testing.T) {
	mock := &MockSink{}

	if err := mock.Publish("replication.status", "42", []byte("IDLE")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.Publish("replication.status", "42", []byte("BUSY")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := mock.Snapshot()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}

	if msgs[0].Topic != "replication.status" {
		t.Errorf("expected topic replication.status, got %s", msgs[0].Topic)
	}

	if msgs[0].Key != "42" {
		t.Errorf("expected key 42, got %s", msgs[0].Key)
	}

	if string(msgs[1].Value) != "BUSY" {
		t.Errorf("expected value BUSY, got %s", msgs[1].Value)
	}
}

func TestMockSink_PublishError(t *testing.T) {
	expectedErr := errors.New("publish failed")
	mock := &MockSink{PublishErr: expectedErr}

	err := mock.Publish("topic", "key", []byte("value"))
	if !errors.Is(err, expectedErr) {
		t.Errorf("expected error %v, got %v", expectedErr, err)
	}

	if len(mock.Snapshot()) != 0 {
		t.Errorf("expected 0 messages on error, got %d", len(mock.Snapshot()))
	}
}

func TestMockSink_ResetAndClose(t *testing.T) {
	mock := &MockSink{}
	mock.Publish("topic", "key", []byte("value"))
	mock.Reset()

	if len(mock.Snapshot()) != 0 {
		t.Errorf("expected 0 messages after reset, got %d", len(mock.Snapshot()))
	}

	if err := mock.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !mock.Closed {
		t.Error("expected sink to be marked closed")
	}
}
