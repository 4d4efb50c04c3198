package publisher

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pkg/errors"
	kafka "github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weaveworks/webhook-bridge/types"
)

type testWriter struct {
	msgs     []kafka.Message
	writeErr error
	closeErr error
	closed   bool
}

func (tw *testWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if tw.writeErr != nil {
		return tw.writeErr
	}
	tw.msgs = append(tw.msgs, msgs...)
	return nil
}

func (tw *testWriter) Close() error {
	tw.closed = true
	return tw.closeErr
}

func newTestKafka(t *testing.T, tw *testWriter) *KafkaPublisher {
	t.Helper()
	p, err := NewKafka("localhost:9092", "notifications")
	require.NoError(t, err)
	p.newWriter = func() batchWriter { return tw }
	return p
}

func TestNewKafkaConfigurationErrors(t *testing.T) {
	_, err := NewKafka("", "notifications")
	require.Error(t, err)
	assert.IsType(t, &ConfigurationError{}, err)

	_, err = NewKafka("localhost:9092", "")
	require.Error(t, err)
	assert.IsType(t, &ConfigurationError{}, err)
}

func TestNewKafka(t *testing.T) {
	p, err := NewKafka("localhost:9092", "notifications")
	require.NoError(t, err)
	assert.Equal(t, "localhost:9092", p.brokerAddr)
	assert.Equal(t, "notifications", p.topic)
	assert.NotNil(t, p.newWriter)
}

func TestKafkaPublish(t *testing.T) {
	tw := &testWriter{}
	p := newTestKafka(t, tw)

	msgs := testMessages()
	require.NoError(t, p.Publish(context.Background(), msgs))

	require.Len(t, tw.msgs, 2, "the whole batch goes in one write")
	assert.True(t, tw.closed, "writer must be released after the send")

	var n types.Notification
	require.NoError(t, json.Unmarshal(tw.msgs[0].Value, &n))
	assert.Equal(t, msgs[0].Body, n, "notification must round-trip unchanged")

	require.Len(t, tw.msgs[0].Headers, 1)
	assert.Equal(t, "content-type", tw.msgs[0].Headers[0].Key)
	assert.Equal(t, types.ContentTypeJSON, string(tw.msgs[0].Headers[0].Value))

	// Absent changeType must stay absent on the wire.
	assert.NotContains(t, string(tw.msgs[1].Value), "changeType")
}

func TestKafkaPublishEmptyBatch(t *testing.T) {
	tw := &testWriter{}
	p := newTestKafka(t, tw)

	require.Error(t, p.Publish(context.Background(), nil))
	assert.False(t, tw.closed, "no writer is opened for an empty batch")
}

func TestKafkaPublishWriteError(t *testing.T) {
	tw := &testWriter{writeErr: errors.New("broker unreachable")}
	p := newTestKafka(t, tw)

	err := p.Publish(context.Background(), testMessages())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker unreachable")
	assert.Contains(t, err.Error(), "notifications", "destination must be named in the error")
	assert.True(t, tw.closed, "writer must be released even when the write fails")
}

// A failed close after a successful write is logged but must not turn the
// publish into a failure.
func TestKafkaPublishCloseErrorDoesNotMaskSuccess(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	tw := &testWriter{closeErr: errors.New("already closed")}
	p := newTestKafka(t, tw)

	require.NoError(t, p.Publish(context.Background(), testMessages()))
	assert.True(t, tw.closed)

	var logged bool
	for _, entry := range hook.AllEntries() {
		if entry.Level <= log.WarnLevel && strings.Contains(entry.Message, "already closed") {
			logged = true
		}
	}
	assert.True(t, logged, "close failure must be logged")
}

func TestFromURL(t *testing.T) {
	_, err := FromURL("")
	require.Error(t, err)
	assert.IsType(t, &ConfigurationError{}, err)

	_, err = FromURL("rabbit://localhost/queue")
	require.Error(t, err)
	assert.IsType(t, &ConfigurationError{}, err)

	p, err := FromURL("kafka://localhost:9092/notifications")
	require.NoError(t, err)
	kp, ok := p.(*KafkaPublisher)
	require.True(t, ok)
	assert.Equal(t, "notifications", kp.topic)
}
