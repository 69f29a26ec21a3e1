package constants

import "time"

const (
	// MatchSessionCacheDuration 匹配结果缓存的过期时间
	MatchSessionCacheDuration = 24 * time.Hour

	// JobVectorCacheDuration 岗位向量缓存的过期时间
	JobVectorCacheDuration = 7 * 24 * time.Hour

	// MatchLockDuration 匹配计算分布式锁的持有上限
	MatchLockDuration = 2 * time.Minute

	// JobPostingCacheDuration 岗位信息JSON缓存的过期时间
	JobPostingCacheDuration = time.Hour
)
