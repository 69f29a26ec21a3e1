package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// MatchModulePrefix 匹配模块
	MatchModulePrefix = "match"
	// JobModulePrefix 岗位模块
	JobModulePrefix = "job"
	// FileModulePrefix 文件模块
	FileModulePrefix = "file"

	// EntitySession 匹配结果会话实体
	EntitySession = "session"
	// EntityLock 分布式锁实体
	EntityLock = "lock"
	// EntityVector 向量实体
	EntityVector = "vector"
	// EntityIndex 索引快照实体
	EntityIndex = "index"
	// EntityDedupSet 去重集合实体
	EntityDedupSet = "dedup_set"
	// EntityPosting 岗位信息实体
	EntityPosting = "posting"

	// KeyMatchSession 单个岗位的匹配结果缓存 (ZSET)
	// 格式: app:match:session:{jobID}
	KeyMatchSession = AppPrefix + ":" + MatchModulePrefix + ":" + EntitySession + ":%s"

	// KeyMatchLock 匹配计算的分布式锁 (STRING)
	// 格式: app:match:lock:{jobID}
	KeyMatchLock = AppPrefix + ":" + MatchModulePrefix + ":" + EntityLock + ":%s"

	// KeyJobVector 岗位描述向量缓存 (HASH, 含model_version字段)
	// 格式: app:job:vector:{jobID}
	KeyJobVector = AppPrefix + ":" + JobModulePrefix + ":" + EntityVector + ":%s"

	// KeyIndexSnapshot 序列化索引快照 (STRING)
	// 格式: app:match:index:{corpusVersion}
	KeyIndexSnapshot = AppPrefix + ":" + MatchModulePrefix + ":" + EntityIndex + ":%s"

	// KeyJobPosting 岗位信息JSON缓存 (STRING)
	// 格式: app:job:posting:{jobID}
	KeyJobPosting = AppPrefix + ":" + JobModulePrefix + ":" + EntityPosting + ":%s"

	// KeyFileMD5Set 简历文件MD5集合，用于上传去重 (SET)
	// 格式: app:file:dedup_set
	KeyFileMD5Set = AppPrefix + ":" + FileModulePrefix + ":" + EntityDedupSet
)
