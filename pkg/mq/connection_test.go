package mq

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDialRejectsBadURL(t *testing.T) {
	conn, ch, err := dial("http://localhost:5672/")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect to RabbitMQ")
	assert.Nil(t, conn)
	assert.Nil(t, ch)

	_, err = NewPublisher("not-a-url")
	assert.Error(t, err)
	_, err = NewConsumer("not-a-url", "q", "task.created", zap.NewNop())
	assert.Error(t, err)
}

func TestCloseAllToleratesNil(t *testing.T) {
	assert.NotPanics(t, func() { closeAll(nil, nil) })
	assert.NotPanics(t, func() { (&Publisher{}).Close() })
}
