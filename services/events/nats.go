// Package events publishes domain events to NATS subjects as JSON.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"

	"github.com/trezcool/hazira/core"
)

// TopicAll matches every event the service publishes.
const TopicAll = "hazira.>"

type NATSPublisher struct {
	conn *nats.Conn
}

var _ core.Publisher = (*NATSPublisher)(nil)

func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	defaults := []nats.Option{
		nats.Name("hazira-api"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to NATS at %s", url)
	}
	return &NATSPublisher{conn: nc}, nil
}

func (p *NATSPublisher) Publish(ctx context.Context, topic string, event interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "marshaling event")
	}
	return errors.Wrapf(p.conn.Publish(topic, data), "publishing to %s", topic)
}

// Close flushes pending messages before closing the connection.
func (p *NATSPublisher) Close() error {
	err := p.conn.Flush()
	p.conn.Close()
	return err
}

// NoopPublisher drops every event. Used when no NATS URL is configured.
type NoopPublisher struct{}

var _ core.Publisher = NoopPublisher{}

func (NoopPublisher) Publish(context.Context, string, interface{}) error { return nil }
func (NoopPublisher) Close() error                                        { return nil }

// Message is one received event.
type Message struct {
	Topic string
	Data  []byte
}

type NATSSubscriber struct {
	conn *nats.Conn
}

func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	defaults := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to NATS at %s", url)
	}
	return &NATSSubscriber{conn: nc}, nil
}

// Subscribe delivers messages on `topic` (wildcards allowed) until the returned cancel func is called.
// Messages are dropped when the consumer falls 64 messages behind.
func (s *NATSSubscriber) Subscribe(topic string) (<-chan Message, func(), error) {
	ch := make(chan Message, 64)

	var (
		mu     sync.Mutex
		closed bool
		once   sync.Once
	)

	sub, err := s.conn.Subscribe(topic, func(msg *nats.Msg) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- Message{Topic: msg.Subject, Data: msg.Data}:
		default:
		}
	})
	if err != nil {
		close(ch)
		return nil, nil, errors.Wrapf(err, "subscribing to %s", topic)
	}
	// the subscription must reach the server before anything is published elsewhere
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		close(ch)
		return nil, nil, errors.Wrap(err, "flushing subscription")
	}

	cancel := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}
	return ch, cancel, nil
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
