package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"delified/internal/logger"
	"delified/internal/models"
	"delified/internal/sse"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockWriter struct {
	mock.Mock
}

func (m *MockWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	return m.Called(msgs).Error(0)
}

func (m *MockWriter) Close() error {
	return m.Called().Error(0)
}

func TestProducerRoutesEventsToTopics(t *testing.T) {
	w := new(MockWriter)
	p := &Producer{Writer: w, Logger: logger.Nop()}
	ctx := context.Background()

	w.On("WriteMessages", mock.MatchedBy(func(msgs []kafka.Message) bool {
		return len(msgs) == 1 && msgs[0].Topic == TopicRegistrationConfirmed && string(msgs[0].Key) == "reg-1"
	})).Return(nil).Once()
	w.On("WriteMessages", mock.MatchedBy(func(msgs []kafka.Message) bool {
		return msgs[0].Topic == TopicPaymentSucceeded && string(msgs[0].Key) == "pay-1"
	})).Return(nil).Once()
	w.On("WriteMessages", mock.MatchedBy(func(msgs []kafka.Message) bool {
		return msgs[0].Topic == TopicPostCreated
	})).Return(nil).Once()

	require.NoError(t, p.PublishRegistration(ctx, models.RegistrationEvent{Type: models.EventRegistrationConfirmed, RegistrationID: "reg-1"}))
	require.NoError(t, p.PublishPayment(ctx, models.PaymentEvent{PaymentID: "pay-1"}))
	require.NoError(t, p.PublishPost(ctx, models.PostEvent{PostID: "post-1"}))
	w.AssertExpectations(t)
}

func TestProducerRetriesOnce(t *testing.T) {
	w := new(MockWriter)
	p := &Producer{Writer: w, Logger: logger.Nop()}

	w.On("WriteMessages", mock.Anything).Return(errors.New("unknown topic")).Once()
	w.On("WriteMessages", mock.Anything).Return(nil).Once()
	assert.NoError(t, p.Publish(context.Background(), "t", "k", []byte("{}")))

	w.On("WriteMessages", mock.Anything).Return(errors.New("down")).Twice()
	assert.Error(t, p.Publish(context.Background(), "t", "k", []byte("{}")))
	w.AssertExpectations(t)
}

type fakeReader struct {
	msgs []kafka.Message
	errs []error
}

func (f *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return kafka.Message{}, err
	}
	if len(f.msgs) == 0 {
		<-ctx.Done()
		return kafka.Message{}, ctx.Err()
	}
	msg := f.msgs[0]
	f.msgs = f.msgs[1:]
	return msg, nil
}

func (f *fakeReader) Close() error { return nil }

type collectSink struct {
	events []models.RegistrationEvent
	done   chan struct{}
	want   int
}

func (c *collectSink) Publish(event models.RegistrationEvent) {
	c.events = append(c.events, event)
	if len(c.events) == c.want {
		close(c.done)
	}
}

func TestConsumerForwardsToSink(t *testing.T) {
	good, _ := json.Marshal(models.RegistrationEvent{RegistrationID: "r1", MUNID: "m1"})
	reader := &fakeReader{msgs: []kafka.Message{
		{Topic: TopicRegistrationCreated, Value: []byte("not json")},
		{Topic: TopicRegistrationCreated, Value: good},
	}}
	c := &Consumer{Reader: reader, Logger: logger.Nop()}
	sink := &collectSink{done: make(chan struct{}), want: 1}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx, sink) }()

	<-sink.done
	cancel()
	require.NoError(t, <-errCh)
	require.Len(t, sink.events, 1)
	assert.Equal(t, "r1", sink.events[0].RegistrationID)
}

func TestConsumerSurvivesReadErrors(t *testing.T) {
	good, _ := json.Marshal(models.RegistrationEvent{RegistrationID: "r2", MUNID: "m1"})
	reader := &fakeReader{
		errs: []error{errors.New("broker not available"), errors.New("rebalance in progress")},
		msgs: []kafka.Message{{Topic: TopicRegistrationConfirmed, Value: good}},
	}
	c := &Consumer{Reader: reader, Logger: logger.Nop(), Backoff: &backoff.ZeroBackOff{}}
	sink := &collectSink{done: make(chan struct{}), want: 1}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx, sink) }()

	<-sink.done
	cancel()
	require.NoError(t, <-errCh)
	assert.Equal(t, "r2", sink.events[0].RegistrationID)
}

func TestConsumerStopsWhenBackoffGivesUp(t *testing.T) {
	reader := &fakeReader{errs: []error{errors.New("no brokers")}}
	c := &Consumer{Reader: reader, Logger: logger.Nop(), Backoff: &backoff.StopBackOff{}}

	err := c.Run(context.Background(), &collectSink{done: make(chan struct{})})
	assert.EqualError(t, err, "no brokers")
}

func TestLocalPublisherFeedsBroker(t *testing.T) {
	broker := sse.NewRegistrationBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := broker.Subscribe(ctx, "m1")

	p := &LocalPublisher{Broker: broker}
	require.NoError(t, p.PublishRegistration(ctx, models.RegistrationEvent{MUNID: "m1", RegistrationID: "r1"}))
	assert.Equal(t, "r1", (<-ch).RegistrationID)
	assert.NoError(t, p.PublishPost(ctx, models.PostEvent{}))
}
