package event

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// -------------------------
// Mock AMQP channel
// -------------------------

type MockAMQPChannel struct {
	mock.Mock
}

func (m *MockAMQPChannel) PublishWithContext(
	ctx context.Context,
	exchange, key string,
	mandatory, immediate bool,
	msg amqp.Publishing,
) error {
	args := m.Called(ctx, exchange, key, mandatory, immediate, msg)
	return args.Error(0)
}

func (m *MockAMQPChannel) Close() error { return nil }

// -------------------------
// Helper
// -------------------------

func newTestPublisher(mockCh *MockAMQPChannel) *RabbitPublisher {
	return &RabbitPublisher{
		ch:       mockCh,
		exchange: "neswara.content",
		logger:   zerolog.Nop(),
		now:      func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) },
	}
}

func newsUpdated() ContentChangedMessage {
	return ContentChangedMessage{
		Event:      "updated",
		Collection: "news",
		DocumentID: "a1",
		Document:   map[string]any{"title": "Test Title", "slug": "test-title"},
	}
}

// -------------------------
// Publisher
// -------------------------

func TestPublishContentChanged_PublishesCorrectly(t *testing.T) {
	mockCh := &MockAMQPChannel{}
	pub := newTestPublisher(mockCh)

	mockCh.
		On("PublishWithContext",
			mock.Anything,
			"neswara.content",
			"news.updated",
			false,
			false,
			mock.AnythingOfType("amqp091.Publishing"),
		).
		Return(nil).
		Once()

	err := pub.PublishContentChanged(context.Background(), newsUpdated())
	require.NoError(t, err)

	mockCh.AssertExpectations(t)
}

func TestPublishContentChanged_JSONContainsDocument(t *testing.T) {
	mockCh := &MockAMQPChannel{}
	pub := newTestPublisher(mockCh)

	var capturedMsg amqp.Publishing

	mockCh.
		On("PublishWithContext",
			mock.Anything,
			"neswara.content",
			"news.updated",
			false,
			false,
			mock.Anything,
		).
		Return(nil).
		Run(func(args mock.Arguments) {
			capturedMsg = args.Get(5).(amqp.Publishing)
		})

	err := pub.PublishContentChanged(context.Background(), newsUpdated())
	require.NoError(t, err)

	body := string(capturedMsg.Body)

	assert.Contains(t, body, `"event":"updated"`)
	assert.Contains(t, body, `"documentId":"a1"`)
	assert.Contains(t, body, `"Test Title"`)
	assert.Contains(t, body, `"timestamp":"2024-06-01T00:00:00Z"`)
	assert.Equal(t, "news/a1", capturedMsg.MessageId)
	assert.Equal(t, amqp.Persistent, capturedMsg.DeliveryMode)
}

func TestPublishContentChanged_ErrorBubbles(t *testing.T) {
	mockCh := &MockAMQPChannel{}
	pub := newTestPublisher(mockCh)

	publishErr := errors.New("boom")

	mockCh.
		On("PublishWithContext",
			mock.Anything,
			mock.Anything,
			mock.Anything,
			mock.Anything,
			mock.Anything,
			mock.Anything,
		).
		Return(publishErr)

	err := pub.PublishContentChanged(context.Background(), newsUpdated())
	require.Error(t, err)
	require.Equal(t, publishErr, err)
}

func TestPublishContentChanged_ContextCancel(t *testing.T) {
	mockCh := &MockAMQPChannel{}
	pub := newTestPublisher(mockCh)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pub.PublishContentChanged(ctx, newsUpdated())
	require.Error(t, err)
	require.Equal(t, context.Canceled, err)
	mockCh.AssertNotCalled(t, "PublishWithContext", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// -------------------------
// Change events
// -------------------------

func TestMessageFor(t *testing.T) {
	ts := primitive.Timestamp{T: uint32(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC).Unix())}

	msg, ok := messageFor("breakingNews", bson.M{
		"operationType": "insert",
		"documentKey":   bson.M{"_id": "b1"},
		"fullDocument":  bson.M{"_id": "b1", "text": "Gempa"},
		"clusterTime":   ts,
	})
	require.True(t, ok)
	assert.Equal(t, "created", msg.Event)
	assert.Equal(t, "breakingNews.created", msg.RoutingKey())
	assert.Equal(t, "b1", msg.DocumentID)
	assert.Equal(t, "Gempa", msg.Document["text"])
	assert.Equal(t, 2024, msg.Timestamp.Year())

	msg, ok = messageFor("news", bson.M{
		"operationType": "delete",
		"documentKey":   bson.M{"_id": "a1"},
	})
	require.True(t, ok)
	assert.Equal(t, "news.deleted", msg.RoutingKey())
	assert.Nil(t, msg.Document)
	assert.True(t, msg.Timestamp.IsZero())

	_, ok = messageFor("news", bson.M{"operationType": "invalidate"})
	assert.False(t, ok)

	_, ok = messageFor("news", bson.M{"operationType": "update"})
	assert.False(t, ok, "missing document key")
}
