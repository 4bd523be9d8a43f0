package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dangthobach/data-extraction/internal/common"
)

type fakeConfirmation struct {
	acked   bool
	err     error
	release chan struct{}
}

func (f *fakeConfirmation) WaitContext(ctx context.Context) (bool, error) {
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return f.acked, f.err
}

type fakePublishChannel struct {
	mu            sync.Mutex
	published     []amqp.Publishing
	confirmations []deferredConfirmation
	err           error
}

func (f *fakePublishChannel) publishDeferred(_ context.Context, _, _ string, msg amqp.Publishing) (deferredConfirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.published = append(f.published, msg)
	return f.confirmations[len(f.published)-1], nil
}

func (f *fakePublishChannel) publishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func newTestPublisher(channel publishChannel) *confirmPublisher {
	return &confirmPublisher{
		channel: channel,
		cfg: common.BrokerConfig{
			Exchange:       "x.ingest",
			IngestKey:      "ingest.job",
			ConfirmTimeout: time.Second,
		},
		log: discardLogger(),
	}
}

func TestPublishConfirmed(t *testing.T) {
	channel := &fakePublishChannel{confirmations: []deferredConfirmation{&fakeConfirmation{acked: true}}}
	p := newTestPublisher(channel)

	msg := validUpload()
	err := p.Publish(context.Background(), &msg)
	require.NoError(t, err)

	require.Len(t, channel.published, 1)
	pub := channel.published[0]
	assert.Equal(t, msg.JobID, pub.MessageId)
	assert.Equal(t, uint8(amqp.Persistent), pub.DeliveryMode)
	assert.Equal(t, "application/json", pub.ContentType)
}

func TestPublishInvalidMessageNeverReachesChannel(t *testing.T) {
	channel := &fakePublishChannel{}
	p := newTestPublisher(channel)

	msg := validUpload()
	msg.JobID = ""
	err := p.Publish(context.Background(), &msg)
	require.Error(t, err)
	assert.Zero(t, channel.publishedCount())
}

func TestPublishChannelError(t *testing.T) {
	p := newTestPublisher(&fakePublishChannel{err: errors.New("channel closed")})

	msg := validUpload()
	err := p.Publish(context.Background(), &msg)
	assert.ErrorIs(t, err, common.ErrUnavailable)
}

func TestPublishNackedByBroker(t *testing.T) {
	channel := &fakePublishChannel{confirmations: []deferredConfirmation{&fakeConfirmation{acked: false}}}
	p := newTestPublisher(channel)

	msg := validUpload()
	err := p.Publish(context.Background(), &msg)
	assert.ErrorIs(t, err, common.ErrUnavailable)
}

func TestPublishConfirmTimeout(t *testing.T) {
	channel := &fakePublishChannel{confirmations: []deferredConfirmation{
		&fakeConfirmation{release: make(chan struct{})},
	}}
	p := newTestPublisher(channel)
	p.cfg.ConfirmTimeout = 20 * time.Millisecond

	msg := validUpload()
	err := p.Publish(context.Background(), &msg)
	assert.ErrorIs(t, err, common.ErrUnavailable)
}

// A publish waiting on its confirmation must not hold the channel lock, or
// every concurrent submission would queue behind one slow broker ack.
func TestPublishWaitDoesNotBlockConcurrentPublish(t *testing.T) {
	release := make(chan struct{})
	channel := &fakePublishChannel{confirmations: []deferredConfirmation{
		&fakeConfirmation{acked: true, release: release},
		&fakeConfirmation{acked: true},
	}}
	p := newTestPublisher(channel)

	first := make(chan error, 1)
	go func() {
		msg := validUpload()
		first <- p.Publish(context.Background(), &msg)
	}()

	require.Eventually(t, func() bool {
		return channel.publishedCount() == 1
	}, time.Second, time.Millisecond, "first publish never reached the channel")

	// With the first publish parked in WaitContext, the second must still
	// complete on its own.
	second := make(chan error, 1)
	go func() {
		msg := validUpload()
		msg.JobID = "b4e2d2ef-0a2c-4b68-9e47-3a2a2b3c4d5e"
		second <- p.Publish(context.Background(), &msg)
	}()

	select {
	case err := <-second:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("second publish blocked behind an awaited confirmation")
	}

	close(release)
	require.NoError(t, <-first)
}
