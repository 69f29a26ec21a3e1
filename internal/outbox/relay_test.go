package outbox

import (
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestMessageRelayOptions 验证选项覆盖默认值, 非法值被忽略
func TestMessageRelayOptions(t *testing.T) {
	logger := log.New(io.Discard, "", 0)

	r := NewMessageRelay(nil, nil, logger)
	assert.Equal(t, defaultPollingInterval, r.pollingInterval)
	assert.Equal(t, defaultBatchSize, r.batchSize)
	assert.Equal(t, defaultMaxRetryCount, r.maxRetryCount)

	r = NewMessageRelay(nil, nil, logger,
		WithPollingInterval(10*time.Second),
		WithBatchSize(50),
		WithMaxRetryCount(3),
	)
	assert.Equal(t, 10*time.Second, r.pollingInterval)
	assert.Equal(t, 50, r.batchSize)
	assert.Equal(t, 3, r.maxRetryCount)

	r = NewMessageRelay(nil, nil, logger,
		WithPollingInterval(0),
		WithBatchSize(-1),
		WithMaxRetryCount(0),
	)
	assert.Equal(t, defaultPollingInterval, r.pollingInterval)
	assert.Equal(t, defaultBatchSize, r.batchSize)
	assert.Equal(t, defaultMaxRetryCount, r.maxRetryCount)
}
