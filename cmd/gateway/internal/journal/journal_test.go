package journal_test

import (
	"encoding/json"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/watchlist-stream/cmd/gateway/internal/journal"
	"github.com/shubham-shewale/watchlist-stream/cmd/gateway/internal/testutils"
	"github.com/shubham-shewale/watchlist-stream/pkg/models"
)

func TestPublisher_Record(t *testing.T) {
	writer := &testutils.MockKafkaWriter{}
	pub := journal.NewPublisher(writer, zap.NewNop())

	q := models.Quote{Symbol: "RELIANCE.BSE", Price: 2950.4, Timestamp: 1700000000000}
	if err := pub.Record(t.Context(), q); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	if len(writer.Messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(writer.Messages))
	}
	msg := writer.Messages[0]
	if string(msg.Key) != "RELIANCE.BSE" {
		t.Errorf("Expected key RELIANCE.BSE, got %q", msg.Key)
	}
	if !msg.Time.Equal(q.Time()) {
		t.Errorf("Expected message time %v, got %v", q.Time(), msg.Time)
	}

	var got models.Quote
	if err := json.Unmarshal(msg.Value, &got); err != nil {
		t.Fatalf("Invalid message value: %v", err)
	}
	if got != q {
		t.Errorf("Expected %+v, got %+v", q, got)
	}
}

func TestPublisher_RejectsSynthetic(t *testing.T) {
	writer := &testutils.MockKafkaWriter{}
	pub := journal.NewPublisher(writer, zap.NewNop())

	err := pub.Record(t.Context(), models.Quote{Symbol: "AAPL", Price: 99, Timestamp: 1, Synthetic: true})
	if !errors.Is(err, journal.ErrSyntheticQuote) {
		t.Errorf("Expected ErrSyntheticQuote, got %v", err)
	}
	if len(writer.Messages) != 0 {
		t.Errorf("Synthetic quote must not be written, got %d messages", len(writer.Messages))
	}
}

func TestPublisher_WriteFailure(t *testing.T) {
	writer := &testutils.MockKafkaWriter{ShouldFail: true}
	pub := journal.NewPublisher(writer, zap.NewNop())

	err := pub.Record(t.Context(), models.Quote{Symbol: "AAPL", Price: 99, Timestamp: 1})
	if err == nil || !strings.Contains(err.Error(), "journal AAPL") {
		t.Errorf("Expected wrapped write error, got %v", err)
	}

	if err := pub.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if !writer.Closed {
		t.Error("Writer should be closed")
	}
}

func TestTopicCreator_EnsureTopic(t *testing.T) {
	dialer := &testutils.MockKafkaDialer{}
	sleeper := &testutils.MockSleeper{}
	tc := journal.NewTopicCreator(zap.NewNop(), dialer, sleeper)

	if err := tc.EnsureTopic(t.Context(), []string{"localhost:9092"}, "market_ticks"); err != nil {
		t.Fatalf("EnsureTopic failed: %v", err)
	}
	if !slices.Equal(dialer.ConnSpy.CreatedTopics, []string{"market_ticks"}) {
		t.Errorf("Expected market_ticks to be created, got %v", dialer.ConnSpy.CreatedTopics)
	}
	if len(sleeper.Slept) != 1 {
		t.Errorf("Expected 1 readiness wait, got %d", len(sleeper.Slept))
	}
}

func TestTopicCreator_FallsBackToNextBroker(t *testing.T) {
	dialer := &testutils.MockKafkaDialer{Unreachable: map[string]bool{"kafka-1:9092": true}}
	tc := journal.NewTopicCreator(zap.NewNop(), dialer, &testutils.MockSleeper{})

	if err := tc.EnsureTopic(t.Context(), []string{"kafka-1:9092", "kafka-2:9092"}, "market_ticks"); err != nil {
		t.Fatalf("EnsureTopic failed: %v", err)
	}
	want := []string{"kafka-1:9092", "kafka-2:9092", "localhost:9092"}
	if !slices.Equal(dialer.Dialed, want) {
		t.Errorf("Expected dials %v, got %v", want, dialer.Dialed)
	}
}

func TestTopicCreator_AlreadyExists(t *testing.T) {
	dialer := &testutils.MockKafkaDialer{ConnSpy: &testutils.MockKafkaConn{CreateErr: kafka.TopicAlreadyExists}}
	tc := journal.NewTopicCreator(zap.NewNop(), dialer, &testutils.MockSleeper{})

	if err := tc.EnsureTopic(t.Context(), []string{"localhost:9092"}, "market_ticks"); err != nil {
		t.Errorf("Existing topic should not be an error, got %v", err)
	}
}

func TestTopicCreator_NeverReady(t *testing.T) {
	dialer := &testutils.MockKafkaDialer{ConnSpy: &testutils.MockKafkaConn{NotReadyFor: 100}}
	sleeper := &testutils.MockSleeper{}
	tc := journal.NewTopicCreator(zap.NewNop(), dialer, sleeper)

	err := tc.EnsureTopic(t.Context(), []string{"localhost:9092"}, "market_ticks")
	if !errors.Is(err, journal.ErrTopicNotReady) {
		t.Errorf("Expected ErrTopicNotReady, got %v", err)
	}
	if len(sleeper.Slept) != 5 {
		t.Errorf("Expected 5 readiness waits, got %d", len(sleeper.Slept))
	}
}

func TestTopicCreator_NoBrokers(t *testing.T) {
	tc := journal.NewTopicCreator(zap.NewNop(), &testutils.MockKafkaDialer{}, &testutils.MockSleeper{})

	if err := tc.EnsureTopic(t.Context(), nil, "market_ticks"); err == nil {
		t.Error("Expected error without brokers")
	}
}
