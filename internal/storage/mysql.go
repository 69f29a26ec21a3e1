package storage

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"talent-match-go/internal/config"
	"talent-match-go/internal/storage/models"

	"github.com/gofrs/uuid/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

var mysqlTracer = otel.Tracer("talent-match-go/storage/mysql")

type gormSpanKey struct{}

// GormTracingPlugin 是一个GORM插件，用于向OpenTelemetry中添加数据库操作的追踪点
type GormTracingPlugin struct {
	tracer         trace.Tracer
	dbName         string
	disableErrSkip bool
}

// Name 返回插件名称
func (p *GormTracingPlugin) Name() string {
	return "GormOpenTelemetryPlugin"
}

// Initialize 注册GORM回调以启用追踪
func (p *GormTracingPlugin) Initialize(db *gorm.DB) error {
	cb := db.Callback()

	if err := cb.Create().Before("gorm:create").Register("otel:before_create", p.before("CREATE")); err != nil {
		return err
	}
	if err := cb.Create().After("gorm:create").Register("otel:after_create", p.after()); err != nil {
		return err
	}

	if err := cb.Query().Before("gorm:query").Register("otel:before_query", p.before("SELECT")); err != nil {
		return err
	}
	if err := cb.Query().After("gorm:query").Register("otel:after_query", p.after()); err != nil {
		return err
	}

	if err := cb.Update().Before("gorm:update").Register("otel:before_update", p.before("UPDATE")); err != nil {
		return err
	}
	if err := cb.Update().After("gorm:update").Register("otel:after_update", p.after()); err != nil {
		return err
	}

	if err := cb.Delete().Before("gorm:delete").Register("otel:before_delete", p.before("DELETE")); err != nil {
		return err
	}
	if err := cb.Delete().After("gorm:delete").Register("otel:after_delete", p.after()); err != nil {
		return err
	}

	if err := cb.Row().Before("gorm:row").Register("otel:before_row", p.before("ROW")); err != nil {
		return err
	}
	if err := cb.Row().After("gorm:row").Register("otel:after_row", p.after()); err != nil {
		return err
	}

	if err := cb.Raw().Before("gorm:raw").Register("otel:before_raw", p.before("RAW")); err != nil {
		return err
	}
	if err := cb.Raw().After("gorm:raw").Register("otel:after_raw", p.after()); err != nil {
		return err
	}

	return nil
}

// before 返回在GORM操作之前执行的回调函数
func (p *GormTracingPlugin) before(operation string) func(db *gorm.DB) {
	return func(db *gorm.DB) {
		if p.disableErrSkip && db.Statement.SkipHooks {
			return
		}

		ctx := db.Statement.Context
		if ctx == nil {
			ctx = context.Background()
		}

		tableName := db.Statement.Table
		if tableName == "" {
			tableName = "unknown"
		}

		spanName := fmt.Sprintf("%s %s", operation, tableName)
		opts := []trace.SpanStartOption{
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(
				semconv.DBSystemMySQL,
				attribute.String("db.name", p.dbName),
				attribute.String("db.operation", operation),
				attribute.String("db.sql.table", tableName),
			),
		}

		if sqlStatement := db.Statement.SQL.String(); sqlStatement != "" {
			opts = append(opts, trace.WithAttributes(
				attribute.String("db.statement", sqlStatement),
			))
		}

		newCtx, span := p.tracer.Start(ctx, spanName, opts...)

		// span存入上下文, 供after回调取出结束
		db.Statement.Context = context.WithValue(newCtx, gormSpanKey{}, span)
	}
}

// after 返回在GORM操作之后执行的回调函数
func (p *GormTracingPlugin) after() func(db *gorm.DB) {
	return func(db *gorm.DB) {
		span, ok := db.Statement.Context.Value(gormSpanKey{}).(trace.Span)
		if !ok {
			return
		}
		defer span.End()

		span.SetAttributes(attribute.Int64("db.rows_affected", db.Statement.RowsAffected))

		if db.Error != nil {
			if errors.Is(db.Error, gorm.ErrRecordNotFound) {
				// ErrRecordNotFound 属于正常业务分支, 不按错误上报
				span.SetAttributes(attribute.String("error.type", "record_not_found"))
				span.SetStatus(codes.Ok, "record not found")
			} else {
				span.SetAttributes(
					attribute.String("error.type", "database_error"),
					attribute.String("error.message", db.Error.Error()),
				)
				span.RecordError(db.Error)
				span.SetStatus(codes.Error, db.Error.Error())
			}
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}
}

// NewGormTracingPlugin 创建一个新的GORM追踪插件
func NewGormTracingPlugin(dbName string) *GormTracingPlugin {
	return &GormTracingPlugin{
		tracer:         mysqlTracer,
		dbName:         dbName,
		disableErrSkip: true,
	}
}

// Database 关系数据库接口
type Database interface {
	// DB 返回GORM数据库连接实例
	DB() *gorm.DB

	// Close 关闭数据库连接
	Close() error
}

var _ Database = (*MySQL)(nil)

// MySQL 提供关系数据库功能
type MySQL struct {
	db  *gorm.DB
	cfg *config.MySQLConfig
}

// NewMySQL 创建MySQL客户端并自动迁移表结构
func NewMySQL(cfg *config.MySQLConfig) (*MySQL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("MySQL配置不能为空")
	}

	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local&timeout=%ds&readTimeout=%ds&writeTimeout=%ds",
		cfg.Username, cfg.Password, cfg.Host, cfg.Port, cfg.Database,
		cfg.ConnectTimeoutSeconds, cfg.ReadTimeoutSeconds, cfg.WriteTimeoutSeconds)

	var logLevel logger.LogLevel
	switch cfg.LogLevel {
	case 1:
		logLevel = logger.Silent
	case 2:
		logLevel = logger.Error
	case 3:
		logLevel = logger.Warn
	default:
		logLevel = logger.Info
	}

	gormConfig := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   logger.Default.LogMode(logLevel),
		PrepareStmt:                              true,
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	}

	db, err := gorm.Open(mysql.Open(dsn), gormConfig)
	if err != nil {
		return nil, fmt.Errorf("连接MySQL失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}

	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetimeMinutes) * time.Minute)
	sqlDB.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTimeMinutes) * time.Minute)

	m := &MySQL{
		db:  db,
		cfg: cfg,
	}

	if err := db.Use(NewGormTracingPlugin(cfg.Database)); err != nil {
		return nil, fmt.Errorf("注册追踪插件失败: %w", err)
	}

	if err := m.autoMigrateSchema(); err != nil {
		if sqlDB, dbErr := db.DB(); dbErr == nil {
			sqlDB.Close()
		}
		return nil, fmt.Errorf("自动迁移数据库结构失败: %w", err)
	}

	log.Println("成功连接到MySQL并自动迁移数据库结构")
	return m, nil
}

// autoMigrateSchema 使用GORM自动迁移数据库表结构
func (m *MySQL) autoMigrateSchema() error {
	// 迁移期间关闭SQL日志
	silentLogger := logger.New(
		log.New(log.Writer(), "", log.LstdFlags),
		logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Silent,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	silentDB := m.db.Session(&gorm.Session{Logger: silentLogger})

	err := silentDB.AutoMigrate(
		&models.Candidate{},
		&models.Job{},
		&models.JobVector{},
		&models.CVUpload{},
		&models.JobCandidateMatch{},
		&models.OutboxMessage{},
	)
	if err != nil {
		return fmt.Errorf("GORM自动迁移失败: %w", err)
	}
	return nil
}

// DB 返回GORM数据库连接实例
func (m *MySQL) DB() *gorm.DB {
	return m.db
}

// Close 关闭数据库连接
func (m *MySQL) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return fmt.Errorf("获取底层 sql.DB 失败: %w", err)
	}
	return sqlDB.Close()
}

// UpsertJob 创建或更新岗位记录
func (m *MySQL) UpsertJob(ctx context.Context, job *models.Job) error {
	return m.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "job_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"job_title", "company", "location", "job_description_text",
				"requirements_json", "matching_parameters_json", "status",
			}),
		}).Create(job).Error
}

// GetJobByID 通过 JobID 获取 Job 记录
func (m *MySQL) GetJobByID(ctx context.Context, jobID string) (*models.Job, error) {
	var job models.Job
	if err := m.db.WithContext(ctx).Where("job_id = ?", jobID).First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// UpdateJobMatchingParameters 仅更新岗位的匹配参数
func (m *MySQL) UpdateJobMatchingParameters(ctx context.Context, jobID string, paramsJSON []byte) error {
	result := m.db.WithContext(ctx).Model(&models.Job{}).
		Where("job_id = ?", jobID).
		Update("matching_parameters_json", models.StringToJSON(string(paramsJSON)))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpsertJobVector 创建或更新岗位向量记录
func (m *MySQL) UpsertJobVector(ctx context.Context, jobVector *models.JobVector) error {
	return m.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "job_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"vector_representation", "embedding_model_version",
			}),
		}).Create(jobVector).Error
}

// GetJobVectorByID 通过 JobID 获取 JobVector 记录
func (m *MySQL) GetJobVectorByID(ctx context.Context, jobID string) (*models.JobVector, error) {
	var jobVector models.JobVector
	if err := m.db.WithContext(ctx).Where("job_id = ?", jobID).First(&jobVector).Error; err != nil {
		return nil, err
	}
	return &jobVector, nil
}

// ListActiveCandidates 返回全部处于ACTIVE状态的候选人, 作为匹配的语料
func (m *MySQL) ListActiveCandidates(ctx context.Context) ([]models.Candidate, error) {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.ListActiveCandidates",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	var candidates []models.Candidate
	err := m.db.WithContext(ctx).
		Where("status = ?", "ACTIVE").
		Order("created_at asc").
		Find(&candidates).Error
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("查询候选人列表失败: %w", err)
	}

	span.SetAttributes(attribute.Int("db.candidate_count", len(candidates)))
	return candidates, nil
}

// FindOrCreateCandidate 通过邮箱或电话查找候选人, 未找到则创建新记录。
// tx 不为空时在传入事务中执行。
func (m *MySQL) FindOrCreateCandidate(ctx context.Context, tx *gorm.DB, email, phone, name string) (*models.Candidate, error) {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.FindOrCreateCandidate")
	defer span.End()

	if email == "" && phone == "" {
		err := fmt.Errorf("邮箱和电话至少需要一个")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	db := m.db
	if tx != nil {
		db = tx
	}

	query := db.WithContext(ctx).Model(&models.Candidate{})
	switch {
	case email != "" && phone != "":
		query = query.Where("primary_email = ?", email).Or("primary_phone = ?", phone)
	case email != "":
		query = query.Where("primary_email = ?", email)
	default:
		query = query.Where("primary_phone = ?", phone)
	}

	var candidate models.Candidate
	err := query.First(&candidate).Error
	if err == nil {
		span.SetAttributes(
			attribute.Bool("candidate.found", true),
			attribute.String("candidate.id", candidate.CandidateID),
		)
		return &candidate, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to query candidate")
		return nil, fmt.Errorf("查询候选人失败: %w", err)
	}

	span.SetAttributes(attribute.Bool("candidate.found", false))

	newUUID, err := uuid.NewV7()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to generate UUIDv7")
		return nil, fmt.Errorf("生成UUIDv7失败: %w", err)
	}

	newCandidate := &models.Candidate{
		CandidateID:  newUUID.String(),
		PrimaryName:  name,
		PrimaryEmail: email,
		PrimaryPhone: phone,
	}
	if err := db.WithContext(ctx).Create(newCandidate).Error; err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to create candidate")
		return nil, fmt.Errorf("创建新候选人失败: %w", err)
	}

	span.SetAttributes(attribute.String("candidate.id", newCandidate.CandidateID))
	return newCandidate, nil
}

// UpsertCandidateProfile 用解析出的档案覆盖候选人记录
func (m *MySQL) UpsertCandidateProfile(ctx context.Context, candidate *models.Candidate) error {
	return m.db.WithContext(ctx).Clauses(
		clause.OnConflict{
			Columns: []clause.Column{{Name: "candidate_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"primary_name", "profile_summary", "names_json",
				"skills_json", "experience_json", "education_json", "status",
			}),
		}).Create(candidate).Error
}

// CreateCVUpload 创建简历上传记录
func (m *MySQL) CreateCVUpload(ctx context.Context, upload *models.CVUpload) error {
	return m.db.WithContext(ctx).Create(upload).Error
}

// UpdateCVUploadFields 更新简历上传记录的多个字段
func (m *MySQL) UpdateCVUploadFields(ctx context.Context, uploadUUID string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	return m.db.WithContext(ctx).Model(&models.CVUpload{}).
		Where("upload_uuid = ?", uploadUUID).
		Updates(updates).Error
}

// GetCVUploadByUUID 通过UUID获取简历上传记录
func (m *MySQL) GetCVUploadByUUID(ctx context.Context, uploadUUID string) (*models.CVUpload, error) {
	var upload models.CVUpload
	if err := m.db.WithContext(ctx).Where("upload_uuid = ?", uploadUUID).First(&upload).Error; err != nil {
		return nil, err
	}
	return &upload, nil
}

// SaveMatchesWithOutbox 在同一事务中落库匹配结果并写入发件箱事件。
// 匹配结果按 (job_id, candidate_id) 幂等覆盖。
func (m *MySQL) SaveMatchesWithOutbox(ctx context.Context, matches []models.JobCandidateMatch, outboxMessages []models.OutboxMessage) error {
	ctx, span := mysqlTracer.Start(ctx, "MySQL.SaveMatchesWithOutbox",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(
		attribute.Int("db.match_count", len(matches)),
		attribute.Int("db.outbox_count", len(outboxMessages)),
	)

	if len(matches) == 0 && len(outboxMessages) == 0 {
		span.SetStatus(codes.Ok, "nothing to save")
		return nil
	}

	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(matches) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "job_id"}, {Name: "candidate_id"}},
				DoUpdates: clause.AssignmentColumns([]string{
					"match_percentage", "distance_score", "missing_skills_json",
					"explanation", "embedding_model_version", "matched_at",
				}),
			}).Create(&matches).Error
			if err != nil {
				return fmt.Errorf("保存匹配结果失败: %w", err)
			}
		}
		if len(outboxMessages) > 0 {
			if err := tx.Create(&outboxMessages).Error; err != nil {
				return fmt.Errorf("写入发件箱失败: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// ListMatchesForJob 返回某岗位的匹配结果, 按匹配百分比降序
func (m *MySQL) ListMatchesForJob(ctx context.Context, jobID string, limit int) ([]models.JobCandidateMatch, error) {
	var matches []models.JobCandidateMatch
	query := m.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("match_percentage desc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&matches).Error; err != nil {
		return nil, fmt.Errorf("查询匹配结果失败: %w", err)
	}
	return matches, nil
}
