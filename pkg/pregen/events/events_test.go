package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jamesainslie/pregen/pkg/pregen/metrics"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func TestNewKafka(t *testing.T) {
	t.Parallel()

	_, err := NewKafka(Config{}, nil)
	assert.ErrorIs(t, err, ErrNoBrokers)

	k, err := NewKafka(Config{Brokers: []string{"localhost:9092"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultTopic, k.Topic())
	require.NoError(t, k.Close())
}

func TestKafka_Publish(t *testing.T) {
	t.Parallel()

	w := &fakeWriter{}
	k := &Kafka{w: w, topic: DefaultTopic, metrics: metrics.New()}

	err := k.Publish(context.Background(), Event{
		Type:         TypeGenerated,
		Collection:   "botany",
		OriginalKey:  "attachments/botany/originals/a.jpg",
		ThumbnailKey: "attachments/botany/thumbnails/a_200.jpg",
		Scale:        200,
		Size:         1234,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "attachments/botany/originals/a.jpg", string(msg.Key))
	assert.Equal(t, "type", msg.Headers[0].Key)
	assert.Equal(t, TypeGenerated, string(msg.Headers[0].Value))

	var got Event
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.Time.IsZero())
	assert.Equal(t, 200, got.Scale)
	assert.Equal(t, int64(1234), got.Size)
}

func TestKafka_PublishError(t *testing.T) {
	t.Parallel()

	boom := errors.New("leader not available")
	k := &Kafka{w: &fakeWriter{err: boom}}

	err := k.Publish(context.Background(), Event{Type: TypeFailed, OriginalKey: "k"})
	assert.ErrorIs(t, err, boom)
}

func TestNop(t *testing.T) {
	t.Parallel()

	var p Publisher = Nop{}
	assert.NoError(t, p.Publish(context.Background(), Event{}))
	assert.NoError(t, p.Close())
}
