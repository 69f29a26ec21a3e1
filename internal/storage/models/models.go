package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Candidate 候选人主表, 同时保存归一化前的结构化档案字段
type Candidate struct {
	CandidateID     string         `gorm:"type:char(36);primaryKey"`
	PrimaryName     string         `gorm:"type:varchar(255)"`
	PrimaryPhone    string         `gorm:"type:varchar(50);uniqueIndex:idx_candidates_primary_phone_unique"`
	PrimaryEmail    string         `gorm:"type:varchar(255);uniqueIndex:idx_candidates_primary_email_unique"`
	CurrentLocation string         `gorm:"type:varchar(255)"`
	ProfileSummary  string         `gorm:"type:text"`
	NamesJSON       datatypes.JSON `gorm:"type:json"` // string[], 档案中出现过的姓名
	SkillsJSON      datatypes.JSON `gorm:"type:json"` // string[]
	ExperienceJSON  datatypes.JSON `gorm:"type:json"` // [{position, company}]
	EducationJSON   datatypes.JSON `gorm:"type:json"` // [{institution, degree_type}]
	Status          string         `gorm:"type:varchar(50);default:'ACTIVE';index:idx_candidates_status"`
	CreatedAt       time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt       time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Candidate) TableName() string {
	return "candidates"
}

// Job 岗位信息表
type Job struct {
	JobID                  string         `gorm:"type:char(36);primaryKey"`
	JobTitle               string         `gorm:"type:varchar(255);not null"`
	Company                string         `gorm:"type:varchar(255)"`
	Location               string         `gorm:"type:varchar(255)"`
	JobDescriptionText     string         `gorm:"type:text;not null"`
	RequirementsJSON       datatypes.JSON `gorm:"type:json"` // string[]
	MatchingParametersJSON datatypes.JSON `gorm:"type:json"` // {min_match_percentage, required_skills, preferred_skills}
	Status                 string         `gorm:"type:varchar(50);default:'ACTIVE';index:idx_jobs_status"`
	CreatedByUserID        string         `gorm:"type:char(36)"`
	CreatedAt              time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt              time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
}

func (Job) TableName() string {
	return "jobs"
}

// JobVector 存储岗位查询文本的向量表示
type JobVector struct {
	JobID                 string    `gorm:"type:char(36);primaryKey"`
	VectorRepresentation  []byte    `gorm:"type:mediumblob;not null"` // 序列化后的向量
	EmbeddingModelVersion string    `gorm:"type:varchar(100);not null"`
	CreatedAt             time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt             time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`
	Job                   Job       `gorm:"foreignKey:JobID;references:JobID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (JobVector) TableName() string {
	return "job_vectors"
}

// CVUpload 简历文件上传记录表
type CVUpload struct {
	UploadUUID          string    `gorm:"type:char(36);primaryKey"`
	CandidateID         *string   `gorm:"type:char(36);index:idx_cvu_candidate_id"`
	OriginalFilename    string    `gorm:"type:varchar(255)"`
	OriginalFilePathOSS string    `gorm:"type:varchar(1024)"`
	ParsedTextPathOSS   string    `gorm:"type:varchar(1024)"`
	RawFileMD5          string    `gorm:"type:char(32);index:idx_cvu_raw_file_md5"`
	ProcessingStatus    string    `gorm:"type:varchar(50);default:'PENDING_EXTRACTION';index:idx_cvu_processing_status"`
	ExtractorVersion    string    `gorm:"type:varchar(50)"`
	CreatedAt           time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt           time.Time `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`

	Candidate *Candidate `gorm:"foreignKey:CandidateID;references:CandidateID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL"`
}

func (CVUpload) TableName() string {
	return "cv_uploads"
}

// JobCandidateMatch 岗位-候选人匹配评估表
type JobCandidateMatch struct {
	MatchID               uint64         `gorm:"primaryKey;autoIncrement"`
	JobID                 string         `gorm:"type:char(36);not null;index:idx_jcm_job_id_percentage,priority:1;uniqueIndex:idx_jcm_job_candidate_unique,priority:1"`
	CandidateID           string         `gorm:"type:char(36);not null;index:idx_jcm_candidate_id;uniqueIndex:idx_jcm_job_candidate_unique,priority:2"`
	MatchPercentage       float64        `gorm:"type:double;not null;index:idx_jcm_job_id_percentage,priority:2"`
	DistanceScore         float64        `gorm:"type:double;not null"` // 平方L2距离原始值
	MissingSkillsJSON     datatypes.JSON `gorm:"type:json"`            // string[]
	Explanation           string         `gorm:"type:text"`
	EmbeddingModelVersion string         `gorm:"type:varchar(100)"`
	MatchedAt             time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	CreatedAt             time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6)"`
	UpdatedAt             time.Time      `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);autoUpdateTime"`

	Job       *Job       `gorm:"foreignKey:JobID;references:JobID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Candidate *Candidate `gorm:"foreignKey:CandidateID;references:CandidateID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

func (JobCandidateMatch) TableName() string {
	return "job_candidate_matches"
}

// OutboxMessage 待异步投递的事件, 与业务写入处于同一事务
type OutboxMessage struct {
	ID               uint64     `gorm:"primaryKey;autoIncrement"`
	AggregateID      string     `gorm:"type:varchar(36);not null;index"`
	EventType        string     `gorm:"type:varchar(255);not null"`
	Payload          string     `gorm:"type:json;not null"`
	TargetExchange   string     `gorm:"type:varchar(255);not null"`
	TargetRoutingKey string     `gorm:"type:varchar(255);not null"`
	Status           string     `gorm:"type:varchar(20);default:'PENDING';not null;index:idx_outbox_status_created_at"`
	RetryCount       int        `gorm:"default:0"`
	CreatedAt        time.Time  `gorm:"type:datetime(6);default:CURRENT_TIMESTAMP(6);index:idx_outbox_status_created_at,sort:asc"`
	ProcessedAt      *time.Time `gorm:"type:datetime(6);null"`
	ErrorMessage     string     `gorm:"type:text"`
}

func (OutboxMessage) TableName() string {
	return "outbox_messages"
}

// StringToJSON 将字符串转换为 datatypes.JSON
func StringToJSON(s string) datatypes.JSON {
	return datatypes.JSON(s)
}

// MapToJSON 将map转换为 datatypes.JSON
func MapToJSON(m map[string]interface{}) (datatypes.JSON, error) {
	bytes, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}

// SliceToJSON 将任意切片转换为 datatypes.JSON
func SliceToJSON(v interface{}) (datatypes.JSON, error) {
	bytes, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes, nil
}
