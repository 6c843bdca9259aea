package journal

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	defaultPartitions = 4
	readyChecks       = 5
	readyInterval     = 200 * time.Millisecond
)

var ErrTopicNotReady = errors.New("topic not ready")

type TopicCreator struct {
	logger  *zap.Logger
	dialer  Dialer
	sleeper Sleeper
}

func NewTopicCreator(logger *zap.Logger, dialer Dialer, sleeper Sleeper) *TopicCreator {
	if sleeper == nil {
		sleeper = realSleeper{}
	}
	return &TopicCreator{logger: logger, dialer: dialer, sleeper: sleeper}
}

// EnsureTopic creates topic on the cluster controller if needed and waits until its
// partitions are visible. An "already exists" answer is not an error.
func (tc *TopicCreator) EnsureTopic(ctx context.Context, brokers []string, topic string) error {
	var conn Conn
	err := errors.New("no brokers configured")

	for _, addr := range brokers {
		conn, err = tc.dialer.DialContext(ctx, "tcp", addr)
		if err == nil {
			break
		}
	}
	if err != nil {
		return err
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return err
	}

	controllerAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	controllerConn, err := tc.dialer.DialContext(ctx, "tcp", controllerAddr)
	if err != nil {
		return err
	}
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafka.TopicConfig{
		Topic:             topic,
		NumPartitions:     defaultPartitions,
		ReplicationFactor: 1,
	})
	if err != nil && !errors.Is(err, kafka.TopicAlreadyExists) {
		tc.logger.Info("Topic creation finished (might already exist)", zap.Error(err))
	}

	return tc.waitForTopic(ctx, conn, topic)
}

func (tc *TopicCreator) waitForTopic(ctx context.Context, conn Conn, topic string) error {
	for i := 0; i < readyChecks; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		tc.sleeper.Sleep(readyInterval)
		partitions, err := conn.ReadPartitions(topic)
		if err == nil && len(partitions) > 0 {
			tc.logger.Info("Topic is ready", zap.String("topic", topic), zap.Int("partitions", len(partitions)))
			return nil
		}
	}
	return ErrTopicNotReady
}
