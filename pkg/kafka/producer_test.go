package kafka

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomersimpson131212-create/reviews-telegram-bot/pkg/logger"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
}

func TestNewEvent_Fields(t *testing.T) {
	type payload struct {
		ReviewID int64 `json:"review_id"`
		Rating   int   `json:"rating"`
	}

	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	event, err := NewEvent(ctx, "review.published", "42", "review", "feedback-bot", payload{ReviewID: 42, Rating: 5})
	require.NoError(t, err)

	assert.NotEmpty(t, event.EventID)
	assert.Equal(t, "review.published", event.EventType)
	assert.Equal(t, "42", event.AggregateID)
	assert.Equal(t, "review", event.AggregateType)
	assert.Equal(t, "feedback-bot", event.Source)
	assert.Equal(t, "corr-1", event.CorrelationID)
	assert.Equal(t, 1, event.Version)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, 2*time.Second)

	var got payload
	require.NoError(t, event.UnmarshalData(&got))
	assert.Equal(t, payload{ReviewID: 42, Rating: 5}, got)
}

func TestNewEvent_InvalidData(t *testing.T) {
	_, err := NewEvent(context.Background(), "review.submitted", "1", "review", "svc", make(chan int))
	require.Error(t, err)
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "feedback.review.published", Topic("feedback", "review.published"))
	assert.Equal(t, "review.published", Topic("", "review.published"))

	p := NewProducer(DefaultProducerConfig([]string{"localhost:19092"}), testLogger())
	assert.Equal(t, "feedback.review.rejected", p.Topic("review.rejected"))
	require.NoError(t, p.Close())
}

func TestProducer_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := &Producer{writer: w, prefix: "feedback", logger: testLogger()}

	event, err := NewEvent(logger.WithCorrelationID(context.Background(), "corr-9"), "review.submitted", "7", "review", "feedback-bot", map[string]int{"rating": 4})
	require.NoError(t, err)

	topic := p.Topic("review.submitted")
	before := testutil.ToFloat64(ProducerMessagesPublished.WithLabelValues(topic))
	require.NoError(t, p.Publish(context.Background(), topic, event))

	require.Len(t, w.msgs, 1)
	msg := w.msgs[0]
	assert.Equal(t, topic, msg.Topic)
	assert.Equal(t, []byte("7"), msg.Key)

	carrier := NewHeaderCarrier(&msg.Headers)
	assert.Equal(t, "review.submitted", carrier.Get("event_type"))
	assert.Equal(t, "feedback-bot", carrier.Get("source"))
	assert.Equal(t, "corr-9", carrier.Get("correlation_id"))
	assert.Equal(t, before+1, testutil.ToFloat64(ProducerMessagesPublished.WithLabelValues(topic)))
}

func TestProducer_PublishError(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := &Producer{writer: w, logger: testLogger()}

	event, err := NewEvent(context.Background(), "review.rejected", "3", "review", "feedback-bot", nil)
	require.NoError(t, err)

	topic := "publish-error-test"
	err = p.Publish(context.Background(), topic, event)
	require.Error(t, err)
	assert.Contains(t, err.Error(), topic)
	assert.Equal(t, float64(1), testutil.ToFloat64(ProducerPublishErrors.WithLabelValues(topic)))
}

func TestPingBrokers_NoBrokers(t *testing.T) {
	assert.Error(t, PingBrokers(context.Background(), nil))
}
