package processor

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/shubham-shewale/watchlist-stream/pkg/models"
)

const (
	keyPrefix     = "stock:"
	channelPrefix = "prices."
	snapshotTTL   = 1 * time.Hour
	workerBuffer  = 100
)

// Processor folds the tick journal into the latest-quote store. Ticks are sharded by
// symbol so one worker sees every tick of a symbol, in partition order.
type Processor struct {
	logger     Logger
	rdb        RedisClient
	reader     KafkaReader
	numWorkers int
}

func NewProcessor(numWorkers int, logger Logger, rdb RedisClient, reader KafkaReader) *Processor {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &Processor{
		logger:     logger,
		rdb:        rdb,
		reader:     reader,
		numWorkers: numWorkers,
	}
}

// Run blocks until ctx is cancelled, then drains the workers.
func (p *Processor) Run(ctx context.Context) error {
	workerChans := make([]chan []byte, p.numWorkers)
	var wg sync.WaitGroup

	for i := 0; i < p.numWorkers; i++ {
		workerChans[i] = make(chan []byte, workerBuffer)
		wg.Add(1)
		go p.worker(i, workerChans[i], &wg)
	}

	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		p.logger.Info("Processor Started", zap.Int("workers", p.numWorkers))
		for {
			m, err := p.reader.ReadMessage(ctx)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
					return
				}
				p.logger.Error("Kafka Read Error", zap.Error(err))
				continue
			}

			workerID := getWorkerID(m.Key, p.numWorkers)

			select {
			case workerChans[workerID] <- m.Value:
			case <-ctx.Done():
				return
			default:
				// Only the latest quote matters, so a backed-up worker sheds load.
				p.logger.Warn("Dropping slow packet", zap.String("key", string(m.Key)), zap.Int("worker_id", workerID))
			}
		}
	}()

	<-ctx.Done()
	p.logger.Info("Shutdown signal received, stopping processor...")
	<-readerDone

	for _, ch := range workerChans {
		close(ch)
	}
	p.logger.Info("Waiting for workers to drain...")
	wg.Wait()

	return nil
}

func (p *Processor) worker(id int, msgs <-chan []byte, wg *sync.WaitGroup) {
	defer wg.Done()
	// Writes in flight finish even after shutdown starts.
	ctx := context.Background()

	// Safe without locking because of deterministic sharding.
	lastTS := make(map[string]int64)

	for payload := range msgs {
		var q models.Quote
		if err := json.Unmarshal(payload, &q); err != nil {
			p.logger.Error("JSON Unmarshal Error", zap.Error(err))
			continue
		}
		if err := q.Validate(); err != nil || q.Synthetic {
			p.logger.Warn("Skipping unusable quote", zap.String("symbol", q.Symbol), zap.Bool("synthetic", q.Synthetic), zap.Error(err))
			continue
		}

		if q.Timestamp <= lastTS[q.Symbol] {
			p.logger.Debug("Skipping stale update", zap.String("symbol", q.Symbol), zap.Int64("ts", q.Timestamp), zap.Int64("last_ts", lastTS[q.Symbol]))
			continue
		}

		pipe := p.rdb.Pipeline()
		pipe.Set(ctx, keyPrefix+q.Symbol, payload, snapshotTTL)
		pipe.Publish(ctx, channelPrefix+q.Symbol, payload)

		if _, err := pipe.Exec(ctx); err != nil {
			p.logger.Error("Redis Pipeline Error", zap.Error(err), zap.String("symbol", q.Symbol))
			continue
		}
		p.logger.Debug("Processed", zap.String("symbol", q.Symbol), zap.Int("worker_id", id), zap.Int64("ts", q.Timestamp))
		lastTS[q.Symbol] = q.Timestamp
	}
}

func getWorkerID(key []byte, numWorkers int) int {
	h := fnv.New32a()
	h.Write(key)
	return int(h.Sum32() % uint32(numWorkers))
}
