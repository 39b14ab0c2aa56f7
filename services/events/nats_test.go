package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/hazira/core/attendance"
)

func startTestNATS(t *testing.T) string {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	require.NoError(t, err)
	srv.Start()
	t.Cleanup(srv.Shutdown)
	require.True(t, srv.ReadyForConnections(5*time.Second), "embedded NATS not ready")
	return srv.ClientURL()
}

func receive(t *testing.T, ch <-chan Message) Message {
	t.Helper()
	select {
	case msg, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return msg
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
	return Message{}
}

func TestNATSPublisher_Publish(t *testing.T) {
	url := startTestNATS(t)

	sub, err := NewNATSSubscriber(url)
	require.NoError(t, err)
	defer sub.Close()
	ch, cancel, err := sub.Subscribe(TopicAll)
	require.NoError(t, err)
	defer cancel()

	pub, err := NewNATSPublisher(url)
	require.NoError(t, err)
	defer pub.Close()

	event := attendance.AttemptRejected{StudentID: "student-1", Reason: attendance.ReasonSessionExpired}
	require.NoError(t, pub.Publish(context.Background(), attendance.TopicAttemptRejected, event))

	msg := receive(t, ch)
	assert.Equal(t, attendance.TopicAttemptRejected, msg.Topic)

	var got attendance.AttemptRejected
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, event, got)
}

func TestNATSPublisher_Publish_errors(t *testing.T) {
	url := startTestNATS(t)
	pub, err := NewNATSPublisher(url)
	require.NoError(t, err)
	defer pub.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, context.Canceled, pub.Publish(ctx, attendance.TopicVerdictRecorded, struct{}{}))

	assert.Error(t, pub.Publish(context.Background(), attendance.TopicVerdictRecorded, make(chan int)))
}

func TestNATSSubscriber_cancel(t *testing.T) {
	url := startTestNATS(t)
	sub, err := NewNATSSubscriber(url)
	require.NoError(t, err)
	defer sub.Close()

	ch, cancel, err := sub.Subscribe(attendance.TopicManualRecorded)
	require.NoError(t, err)
	cancel()
	cancel() // idempotent

	_, open := <-ch
	assert.False(t, open)
}

func TestNewNATSPublisher_unreachable(t *testing.T) {
	_, err := NewNATSPublisher("nats://127.0.0.1:1")
	assert.Error(t, err)
}

func TestNoopPublisher(t *testing.T) {
	pub := NoopPublisher{}
	assert.NoError(t, pub.Publish(context.Background(), attendance.TopicVerdictRecorded, nil))
	assert.NoError(t, pub.Close())
}
