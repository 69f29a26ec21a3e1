package storage

import (
	"context"
	"testing"
	"time"

	"talent-match-go/internal/types"

	"github.com/stretchr/testify/assert"
)

// TestRedisNilReceiverDegradesToError 验证Redis组件初始化失败后
// (Storage.Redis为nil), 各方法返回错误而不是崩溃。
func TestRedisNilReceiverDegradesToError(t *testing.T) {
	ctx := context.Background()
	var r *Redis

	assert.NotPanics(t, func() {
		_, _, err := r.GetCachedMatchResults(ctx, "job-1", 0, 10)
		assert.Error(t, err)

		err = r.CacheMatchResults(ctx, "job-1", []types.RankedCandidate{{CandidateID: "c-1", Score: 88}}, time.Minute)
		assert.Error(t, err)

		_, err = r.AcquireLock(ctx, "lock-key", time.Second)
		assert.Error(t, err)

		_, err = r.ReleaseLock(ctx, "lock-key", "holder")
		assert.Error(t, err)

		_, err = r.CheckAndAddRawFileMD5(ctx, "d41d8cd98f00b204e9800998ecf8427e")
		assert.Error(t, err)

		err = r.RemoveRawFileMD5(ctx, "d41d8cd98f00b204e9800998ecf8427e")
		assert.Error(t, err)

		_, _, err = r.GetJobVector(ctx, "job-1")
		assert.Error(t, err)

		err = r.SetJobVector(ctx, "job-1", []float64{0.1, 0.2}, "text-embedding-v3", 0)
		assert.Error(t, err)

		_, err = r.GetIndexSnapshot(ctx, "corpus-v1")
		assert.Error(t, err)

		err = r.SetIndexSnapshot(ctx, "corpus-v1", []byte{0x01}, time.Minute)
		assert.Error(t, err)

		_, err = r.Get(ctx, "some-key")
		assert.Error(t, err)

		assert.Error(t, r.Set(ctx, "some-key", "v", time.Minute))
		assert.Error(t, r.Ping(ctx))
		assert.NoError(t, r.Close())
	})
}

// 未配置Client的空结构体走同一降级路径
func TestRedisEmptyClientDegradesToError(t *testing.T) {
	ctx := context.Background()
	r := &Redis{}

	_, _, err := r.GetCachedMatchResults(ctx, "job-1", 0, 10)
	assert.Error(t, err)
	_, err = r.CheckAndAddRawFileMD5(ctx, "d41d8cd98f00b204e9800998ecf8427e")
	assert.Error(t, err)
}
