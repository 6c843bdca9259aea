package journal

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// Writer is the part of *kafka.Writer the publisher needs.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Dialer interface {
	DialContext(ctx context.Context, network, address string) (Conn, error)
}

type Conn interface {
	Controller() (kafka.Broker, error)
	Close() error
	CreateTopics(topics ...kafka.TopicConfig) error
	ReadPartitions(topics ...string) ([]kafka.Partition, error)
}

type Sleeper interface {
	Sleep(d time.Duration)
}

type realSleeper struct{}

func (realSleeper) Sleep(d time.Duration) { time.Sleep(d) }

// KafkaConn adapts a *kafka.Conn to Conn.
type KafkaConn struct{ *kafka.Conn }

func (c *KafkaConn) Controller() (kafka.Broker, error) { return c.Conn.Controller() }
func (c *KafkaConn) Close() error                      { return c.Conn.Close() }
func (c *KafkaConn) CreateTopics(topics ...kafka.TopicConfig) error {
	return c.Conn.CreateTopics(topics...)
}
func (c *KafkaConn) ReadPartitions(topics ...string) ([]kafka.Partition, error) {
	return c.Conn.ReadPartitions(topics...)
}

// KafkaDialer adapts *kafka.Dialer to Dialer.
type KafkaDialer struct{ *kafka.Dialer }

func (d *KafkaDialer) DialContext(ctx context.Context, network, address string) (Conn, error) {
	conn, err := d.Dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, err
	}
	return &KafkaConn{Conn: conn}, nil
}
