package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prism/internal/domain"
)

type recordingChannel struct {
	exchange, key string
	published     []amqp.Publishing
	err           error
	closed        bool
}

func (c *recordingChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	c.exchange, c.key = exchange, key
	c.published = append(c.published, msg)
	return c.err
}

func (c *recordingChannel) Close() error {
	c.closed = true
	return nil
}

func newTestPublisher(ch channel) *RabbitMQ {
	return &RabbitMQ{
		channel:    ch,
		exchange:   "prism",
		routingKey: "articles",
		logger:     slog.New(slog.DiscardHandler),
	}
}

func TestPublish_MessageFormat(t *testing.T) {
	ch := &recordingChannel{}
	pub := newTestPublisher(ch)
	ts := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

	err := pub.Publish(context.Background(), &domain.ArticleEvent{
		Action:    domain.EventIngested,
		RunID:     "run-1",
		Article:   domain.Article{ID: 7, Source: "Krebs", Title: "Loader", URL: "https://krebs.test/loader"},
		IOCCount:  3,
		Tags:      []string{"malware"},
		Timestamp: ts,
	})
	require.NoError(t, err)

	assert.Equal(t, "prism", ch.exchange)
	assert.Equal(t, "articles", ch.key)
	require.Len(t, ch.published, 1)

	msg := ch.published[0]
	assert.Equal(t, uint8(amqp.Persistent), msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, domain.EventIngested, msg.Type)
	assert.Equal(t, "run-1", msg.CorrelationId)
	assert.Equal(t, ts, msg.Timestamp)

	var received domain.ArticleEvent
	require.NoError(t, json.Unmarshal(msg.Body, &received))
	assert.Equal(t, "ingested", received.Action)
	assert.Equal(t, int64(7), received.Article.ID)
	assert.Equal(t, "Loader", received.Article.Title)
	assert.Equal(t, 3, received.IOCCount)
	assert.Equal(t, []string{"malware"}, received.Tags)
}

func TestPublish_SetsMissingTimestamp(t *testing.T) {
	ch := &recordingChannel{}
	event := &domain.ArticleEvent{Action: domain.EventAnalyzed}

	require.NoError(t, newTestPublisher(ch).Publish(context.Background(), event))

	assert.False(t, event.Timestamp.IsZero())
	assert.Empty(t, ch.published[0].CorrelationId)
}

func TestPublish_ChannelError(t *testing.T) {
	ch := &recordingChannel{err: errors.New("channel/connection is not open")}

	err := newTestPublisher(ch).Publish(context.Background(), &domain.ArticleEvent{Action: domain.EventIngested})

	assert.ErrorContains(t, err, "publish message")
}

func TestClose_ClosesChannel(t *testing.T) {
	ch := &recordingChannel{}
	require.NoError(t, newTestPublisher(ch).Close())
	assert.True(t, ch.closed)
}
