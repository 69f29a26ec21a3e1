package storage

import "time"

// CVUploadedMessage 简历上传事件消息, 由上传接口发布、文本提取消费者消费
type CVUploadedMessage struct {
	// 与数据库表字段一致的主要字段
	UploadUUID          string    `json:"upload_uuid"`            // 上传UUID，主键
	UploadTimestamp     time.Time `json:"upload_timestamp"`       // 上传时间戳
	OriginalFilename    string    `json:"original_filename"`      // 原始文件名
	OriginalFilePathOSS string    `json:"original_file_path_oss"` // MinIO中的对象路径
	RawFileMD5          string    `json:"raw_file_md5,omitempty"` // 原始文件的MD5，用于失败时回滚
}

// CVParsedMessage 简历文本提取完成消息
type CVParsedMessage struct {
	UploadUUID        string `json:"upload_uuid"`                    // 上传UUID
	ParsedTextPathOSS string `json:"parsed_text_path_oss,omitempty"` // 提取文本在MinIO中的路径
	ProcessingStatus  string `json:"processing_status,omitempty"`    // 处理状态
	Error             string `json:"error,omitempty"`                // 错误信息
}

// MatchFoundEvent 匹配结果事件, 通过outbox中继发布到匹配事件交换机
type MatchFoundEvent struct {
	JobID           string    `json:"job_id"`
	CandidateID     string    `json:"candidate_id"`
	MatchPercentage float64   `json:"match_percentage"`
	MissingSkills   []string  `json:"missing_skills,omitempty"`
	Explanation     string    `json:"explanation,omitempty"`
	ModelVersion    string    `json:"model_version,omitempty"`
	MatchedAt       time.Time `json:"matched_at"`
}
