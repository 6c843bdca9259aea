package processor_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/watchlist-stream/cmd/processor/internal/processor"
	"github.com/shubham-shewale/watchlist-stream/cmd/processor/internal/testutils"
	"github.com/shubham-shewale/watchlist-stream/pkg/models"
)

func toMessages(quotes []models.Quote) []kafka.Message {
	var msgs []kafka.Message
	for _, q := range quotes {
		val, _ := json.Marshal(q)
		msgs = append(msgs, kafka.Message{
			Key:   []byte(q.Symbol),
			Value: val,
		})
	}
	return msgs
}

func run(t *testing.T, workers int, msgs []kafka.Message) *testutils.MockPipeline {
	t.Helper()
	mockReader := &testutils.MockKafkaReader{Messages: msgs}
	mockRedis := testutils.NewMockRedisClient()

	proc := processor.NewProcessor(workers, zap.NewNop(), mockRedis, mockReader)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if err := proc.Run(ctx); err != nil {
		t.Logf("Processor stopped: %v", err)
	}
	return mockRedis.PipelineSpy
}

func TestProcessor_WorkerLogic(t *testing.T) {
	quotes := []models.Quote{
		{Symbol: "AAPL", Price: 100.0, Timestamp: 1},
		{Symbol: "AAPL", Price: 100.0, Timestamp: 1},
		{Symbol: "AAPL", Price: 101.0, Timestamp: 2},
		{Symbol: "TCS.BSE", Price: 3900.0, Timestamp: 1},
	}

	pipeline := run(t, 2, toMessages(quotes))
	pipeline.Mu.Lock()
	defer pipeline.Mu.Unlock()

	if pipeline.ExecCount != 3 {
		t.Errorf("Expected 3 pipeline executions, got %d", pipeline.ExecCount)
	}

	want := map[string]bool{
		"SET stock:AAPL":         false,
		"PUBLISH prices.AAPL":    false,
		"SET stock:TCS.BSE":      false,
		"PUBLISH prices.TCS.BSE": false,
	}
	for _, cmd := range pipeline.RecordedCmds {
		if _, ok := want[cmd]; ok {
			want[cmd] = true
		}
	}
	for cmd, seen := range want {
		if !seen {
			t.Errorf("Missing Redis command %q", cmd)
		}
	}
}

func TestProcessor_OlderTickIsSkipped(t *testing.T) {
	quotes := []models.Quote{
		{Symbol: "MSFT", Price: 410, Timestamp: 20},
		{Symbol: "MSFT", Price: 405, Timestamp: 10},
	}

	pipeline := run(t, 1, toMessages(quotes))
	pipeline.Mu.Lock()
	defer pipeline.Mu.Unlock()

	if pipeline.ExecCount != 1 {
		t.Errorf("Expected only the newer tick to be written, got %d writes", pipeline.ExecCount)
	}
}

func TestProcessor_SkipsUnusableQuotes(t *testing.T) {
	quotes := []models.Quote{
		{Symbol: "AAPL", Price: 0, Timestamp: 1},
		{Symbol: "AAPL", Price: 300, Timestamp: 2, Synthetic: true},
		{Symbol: "", Price: 10, Timestamp: 3},
	}

	pipeline := run(t, 1, toMessages(quotes))
	if pipeline.ExecCount != 0 {
		t.Errorf("Expected no writes for invalid or synthetic quotes, got %d", pipeline.ExecCount)
	}
}

func TestProcessor_InvalidJSON(t *testing.T) {
	msgs := []kafka.Message{
		{Key: []byte("AAPL"), Value: []byte("{broken-json")},
	}

	pipeline := run(t, 1, msgs)
	if pipeline.ExecCount > 0 {
		t.Error("Should not execute Redis commands for invalid JSON")
	}
}

func TestProcessor_FailedWriteIsRetriedOnNextTick(t *testing.T) {
	quotes := []models.Quote{
		{Symbol: "AAPL", Price: 100, Timestamp: 5},
		{Symbol: "AAPL", Price: 100, Timestamp: 5},
	}
	mockReader := &testutils.MockKafkaReader{Messages: toMessages(quotes)}
	mockRedis := testutils.NewMockRedisClient()
	mockRedis.PipelineSpy.FailExecs = 1

	proc := processor.NewProcessor(1, zap.NewNop(), mockRedis, mockReader)
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	proc.Run(ctx)

	// The failed write does not advance the watermark, so the redelivery is applied.
	if mockRedis.PipelineSpy.ExecCount != 2 {
		t.Errorf("Expected 2 exec attempts, got %d", mockRedis.PipelineSpy.ExecCount)
	}
}
