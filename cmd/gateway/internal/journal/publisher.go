package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shubham-shewale/watchlist-stream/pkg/models"
)

var ErrSyntheticQuote = errors.New("synthetic quotes are not journaled")

// Publisher appends every real quote to the tick journal, keyed by symbol so a symbol's
// ticks stay on one partition and reach the same processor worker in order.
type Publisher struct {
	writer  Writer
	logger  *zap.Logger
	timeout time.Duration
}

func NewPublisher(writer Writer, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{writer: writer, logger: logger, timeout: 5 * time.Second}
}

// NewKafkaWriter builds the writer used in production.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
}

// Record writes q to the journal. The write is bounded so a slow broker cannot stall an
// ingestion cycle.
func (p *Publisher) Record(ctx context.Context, q models.Quote) error {
	if q.Synthetic {
		return ErrSyntheticQuote
	}
	value, err := json.Marshal(q)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(q.Symbol),
		Value: value,
		Time:  q.Time(),
	})
	if err != nil {
		return fmt.Errorf("journal %s: %w", q.Symbol, err)
	}
	p.logger.Debug("Journaled", zap.String("symbol", q.Symbol), zap.Int64("ts", q.Timestamp))
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
