package natsclient

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"

	"github.com/c360/focusstream/errors"
)

func TestConnectionStatus_String(t *testing.T) {
	tests := []struct {
		status   ConnectionStatus
		expected string
	}{
		{StatusDisconnected, "disconnected"},
		{StatusConnecting, "connecting"},
		{StatusConnected, "connected"},
		{StatusClosed, "closed"},
		{ConnectionStatus(99), "unknown"},
	}

	for _, test := range tests {
		t.Run(test.expected, func(t *testing.T) {
			assert.Equal(t, test.expected, test.status.String())
		})
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c := NewClient("nats://localhost:4222")

	assert.Equal(t, StatusDisconnected, c.Status())
	assert.False(t, c.IsHealthy())
	assert.Nil(t, c.Conn())
}

func TestPublish_NoConnection(t *testing.T) {
	c := NewClient("nats://localhost:4222")

	err := c.Publish(context.Background(), "events.batch", []byte("{}"))
	assert.ErrorIs(t, err, errors.ErrNoConnection)
	assert.True(t, errors.IsTransient(err))
}

func TestClose_Idempotent(t *testing.T) {
	c := NewClient("nats://localhost:4222")
	ctx := context.Background()

	assert.NoError(t, c.Close(ctx))
	assert.NoError(t, c.Close(ctx))
	assert.Equal(t, StatusClosed, c.Status())
}

func TestConnect_AfterCloseRejected(t *testing.T) {
	c := NewClient("nats://localhost:4222", WithTimeout(50*time.Millisecond))
	_ = c.Close(context.Background())

	err := c.Connect(context.Background())
	assert.ErrorIs(t, err, errors.ErrAlreadyStopped)
}

func TestWrapBucketLookup(t *testing.T) {
	err := wrapBucketLookup(jetstream.ErrBucketNotFound, "focusstream_events")
	assert.ErrorIs(t, err, errors.ErrBucketNotFound)
	assert.True(t, errors.IsInvalid(err))
	assert.Contains(t, err.Error(), "focusstream_events")

	err = wrapBucketLookup(assert.AnError, "focusstream_events")
	assert.NotErrorIs(t, err, errors.ErrBucketNotFound)
	assert.True(t, errors.IsTransient(err))
}

func TestIsAlreadyExistsError(t *testing.T) {
	assert.False(t, isAlreadyExistsError(nil))
	assert.False(t, isAlreadyExistsError(assert.AnError)) // generic errors are not matched
	// The two NATS phrasings we care about
	assert.True(t, isAlreadyExistsError(errAlreadyExists("stream name already in use")))
	assert.True(t, isAlreadyExistsError(errAlreadyExists("bucket already exists")))
}

type errAlreadyExists string

func (e errAlreadyExists) Error() string { return string(e) }
