package handler

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"talent-match-go/internal/config"
	"talent-match-go/internal/constants"
	"talent-match-go/internal/matcher"
	"talent-match-go/internal/storage"
	"talent-match-go/internal/storage/models"
	"talent-match-go/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"gorm.io/gorm"
)

// MatchHandler 负责岗位-候选人匹配搜索与结果查询
type MatchHandler struct {
	cfg     *config.Config
	storage *storage.Storage
	engine  *matcher.Engine
	logger  *log.Logger
}

// NewMatchHandler 创建匹配处理器
func NewMatchHandler(cfg *config.Config, storage *storage.Storage, engine *matcher.Engine) *MatchHandler {
	return &MatchHandler{
		cfg:     cfg,
		storage: storage,
		engine:  engine,
		logger:  log.New(os.Stdout, "[MatchHandler] ", log.LstdFlags|log.Lshortfile),
	}
}

// HandleSearchMatches 处理根据 JobID 搜索匹配候选人的请求。
// GET /api/v1/jobs/:job_id/matches/search
func (h *MatchHandler) HandleSearchMatches(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("job_id")
	if jobID == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "job_id 不能为空"})
		return
	}

	displayLimit, err := strconv.Atoi(c.Query("display_limit"))
	if err != nil || displayLimit <= 0 {
		displayLimit = 20
	}
	cursor, err := strconv.Atoi(c.Query("cursor"))
	if err != nil || cursor < 0 {
		cursor = 0
	}

	h.logger.Printf("开始处理 JobID: %s 的匹配搜索请求, Limit: %d, Cursor: %d", jobID, displayLimit, cursor)

	sessionKey := fmt.Sprintf(constants.KeyMatchSession, jobID)
	lockKey := fmt.Sprintf(constants.KeyMatchLock, jobID)

	// 先查缓存的排名结果
	cachedIDs, totalCount, err := h.storage.Redis.GetCachedMatchResults(ctx, jobID, int64(cursor), int64(displayLimit))
	if err == nil && len(cachedIDs) > 0 {
		h.logger.Printf("缓存命中 for session: %s, 返回 %d 个候选人", sessionKey, len(cachedIDs))
		detailed, dbErr := h.fetchMatchDetails(ctx, jobID, cachedIDs)
		if dbErr != nil {
			h.logger.Printf("查询匹配详情失败 (JobID: %s): %v", jobID, dbErr)
			c.JSON(consts.StatusInternalServerError, map[string]string{"error": "获取匹配详情失败"})
			return
		}
		c.JSON(consts.StatusOK, map[string]interface{}{
			"message":     "搜索成功 (来自缓存)",
			"data":        detailed,
			"job_id":      jobID,
			"total_count": totalCount,
			"next_cursor": cursor + len(cachedIDs),
		})
		return
	}

	// 缓存未命中且为首次请求, 执行完整匹配流程
	if cursor == 0 {
		lockValue, err := h.storage.Redis.AcquireLock(ctx, lockKey, constants.MatchLockDuration)
		if err != nil {
			h.logger.Printf("获取分布式锁失败 for JobID %s: %v, 继续执行可能导致重复处理", jobID, err)
		} else if lockValue == "" {
			h.logger.Printf("匹配已在处理中 for JobID: %s", jobID)
			c.JSON(consts.StatusAccepted, map[string]interface{}{
				"message":     "您的匹配请求正在处理中，请稍后重试",
				"status":      "processing",
				"job_id":      jobID,
				"retry_after": 2,
			})
			return
		} else {
			defer func() {
				released, err := h.storage.Redis.ReleaseLock(ctx, lockKey, lockValue)
				if err != nil || !released {
					h.logger.Printf("释放锁失败 for JobID: %s: %v, released: %v", jobID, err, released)
				}
			}()
		}

		results, err := h.executeMatchPipeline(ctx, jobID)
		if err != nil {
			h.logger.Printf("匹配流程失败 for JobID %s: %v", jobID, err)
			status := consts.StatusInternalServerError
			if errors.Is(err, gorm.ErrRecordNotFound) {
				status = consts.StatusNotFound
			} else if errors.Is(err, matcher.ErrInvalidQuery) || errors.Is(err, matcher.ErrEmptyCorpus) {
				status = consts.StatusBadRequest
			}
			c.JSON(status, map[string]string{"error": fmt.Sprintf("执行匹配失败: %v", err)})
			return
		}

		if len(results) == 0 {
			c.JSON(consts.StatusOK, map[string]interface{}{"message": "没有找到匹配的候选人", "data": []interface{}{}})
			return
		}

		// 缓存排名结果, 失败只记录日志
		ranked := make([]types.RankedCandidate, len(results))
		for i, res := range results {
			ranked[i] = types.RankedCandidate{CandidateID: res.CandidateID, Score: res.MatchPercentage}
		}
		if err := h.storage.Redis.CacheMatchResults(ctx, jobID, ranked, constants.MatchSessionCacheDuration); err != nil {
			h.logger.Printf("缓存匹配结果失败 for JobID %s: %v", jobID, err)
		}

		end := cursor + displayLimit
		if end > len(results) {
			end = len(results)
		}
		page := results[cursor:end]

		c.JSON(consts.StatusOK, map[string]interface{}{
			"message":     "搜索成功",
			"data":        page,
			"job_id":      jobID,
			"total_count": len(results),
			"next_cursor": cursor + len(page),
		})
		return
	}

	// 非首次请求但缓存失效或已读完
	c.JSON(consts.StatusOK, map[string]interface{}{
		"message":     "已查看所有匹配的候选人",
		"data":        []interface{}{},
		"job_id":      jobID,
		"total_count": totalCount,
		"next_cursor": cursor,
	})
}

// executeMatchPipeline 执行完整的匹配流程:
// 加载岗位与候选人 → 构建索引 → 查询 → 结果与事件事务落库。
func (h *MatchHandler) executeMatchPipeline(ctx context.Context, jobID string) ([]types.MatchResult, error) {
	startTime := time.Now()

	job, err := h.storage.MySQL.GetJobByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("获取岗位失败: %w", err)
	}
	posting := job.ToJobPosting()
	queryText := BuildJobQueryText(&posting)

	// 匹配参数: 岗位覆盖全局默认
	minScore := h.cfg.Matcher.MinMatchPercentage
	topK := h.cfg.Matcher.DefaultTopK
	if posting.MatchingParameters != nil && posting.MatchingParameters.MinMatchPercentage > 0 {
		minScore = posting.MatchingParameters.MinMatchPercentage
	}

	candidates, err := h.loadCandidateRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("加载候选人失败: %w", err)
	}

	handle, err := h.buildOrRestoreIndex(ctx, candidates)
	if err != nil {
		return nil, fmt.Errorf("构建索引失败: %w", err)
	}

	queryVector, err := h.loadJobQueryVector(ctx, jobID, queryText)
	if err != nil {
		return nil, fmt.Errorf("获取岗位向量失败: %w", err)
	}

	results, err := h.engine.QueryWithVector(ctx, handle, queryText, queryVector, topK, minScore)
	if err != nil {
		return nil, fmt.Errorf("执行匹配查询失败: %w", err)
	}

	if len(results) > 0 {
		if err := h.persistMatches(ctx, jobID, results); err != nil {
			// 落库失败不吞结果, 但必须让调用方知道
			return nil, fmt.Errorf("保存匹配结果失败: %w", err)
		}
	}

	h.logger.Printf("匹配流程结束 for JobID: %s, 耗时: %v, 返回 %d 个结果",
		jobID, time.Since(startTime), len(results))
	return results, nil
}

// buildOrRestoreIndex 优先从Redis恢复同一候选人批次的索引快照, 否则重新构建并回写快照。
// 指纹只覆盖候选人ID序列与模型版本, 候选人档案内容的变化依赖快照TTL过期兜底。
func (h *MatchHandler) buildOrRestoreIndex(ctx context.Context, candidates []types.CandidateRecord) (*matcher.IndexHandle, error) {
	corpusVersion := h.corpusFingerprint(candidates)

	if blob, err := h.storage.Redis.GetIndexSnapshot(ctx, corpusVersion); err == nil {
		if handle, restoreErr := h.engine.RestoreIndex(blob, candidates); restoreErr == nil {
			h.logger.Printf("索引快照命中, 候选人数: %d, 版本: %s", len(candidates), corpusVersion)
			return handle, nil
		} else {
			h.logger.Printf("索引快照恢复失败, 回退到重新构建: %v", restoreErr)
		}
	}

	handle, err := h.engine.BuildIndex(ctx, candidates)
	if err != nil {
		return nil, err
	}

	if blob, serErr := handle.Serialize(); serErr == nil {
		if err := h.storage.Redis.SetIndexSnapshot(ctx, corpusVersion, blob, constants.MatchSessionCacheDuration); err != nil {
			h.logger.Printf("写入索引快照失败: %v", err)
		}
	}
	return handle, nil
}

// loadJobQueryVector 获取岗位查询向量: Redis缓存 → MySQL → 现场向量化。
// 缓存向量的模型版本与引擎当前版本不一致时视为未命中, 重新计算并回填。
func (h *MatchHandler) loadJobQueryVector(ctx context.Context, jobID, queryText string) ([]float64, error) {
	modelVersion := h.engine.ModelVersion()

	if vec, ver, err := h.storage.Redis.GetJobVector(ctx, jobID); err == nil && ver == modelVersion && len(vec) > 0 {
		return vec, nil
	}

	if jobVector, err := h.storage.MySQL.GetJobVectorByID(ctx, jobID); err == nil &&
		jobVector.EmbeddingModelVersion == modelVersion {
		var vec []float64
		if err := json.Unmarshal(jobVector.VectorRepresentation, &vec); err == nil && len(vec) > 0 {
			if cacheErr := h.storage.Redis.SetJobVector(ctx, jobID, vec, modelVersion, jobVectorCacheTTL(h.cfg)); cacheErr != nil {
				h.logger.Printf("回填岗位向量缓存失败 for JobID %s: %v", jobID, cacheErr)
			}
			return vec, nil
		}
		h.logger.Printf("岗位向量反序列化失败 for JobID %s, 重新向量化", jobID)
	}

	vec, err := h.engine.EmbedQueryText(ctx, queryText)
	if err != nil {
		return nil, err
	}
	if cacheErr := h.storage.Redis.SetJobVector(ctx, jobID, vec, modelVersion, jobVectorCacheTTL(h.cfg)); cacheErr != nil {
		h.logger.Printf("写入岗位向量缓存失败 for JobID %s: %v", jobID, cacheErr)
	}
	return vec, nil
}

// corpusFingerprint 由候选人ID序列和嵌入模型版本计算语料指纹
func (h *MatchHandler) corpusFingerprint(candidates []types.CandidateRecord) string {
	digest := md5.New()
	io.WriteString(digest, h.engine.ModelVersion())
	for _, c := range candidates {
		io.WriteString(digest, "|")
		io.WriteString(digest, c.CandidateID)
	}
	return hex.EncodeToString(digest.Sum(nil))
}

// loadCandidateRecords 从MySQL加载活跃候选人档案
func (h *MatchHandler) loadCandidateRecords(ctx context.Context) ([]types.CandidateRecord, error) {
	candidates, err := h.storage.MySQL.ListActiveCandidates(ctx)
	if err != nil {
		return nil, err
	}
	records := make([]types.CandidateRecord, 0, len(candidates))
	for i := range candidates {
		records = append(records, candidates[i].ToCandidateRecord())
	}
	return records, nil
}

// persistMatches 在单个事务中落库匹配结果, 并为每条结果写入outbox事件
func (h *MatchHandler) persistMatches(ctx context.Context, jobID string, results []types.MatchResult) error {
	now := time.Now()
	modelVersion := h.engine.ModelVersion()

	matches := make([]models.JobCandidateMatch, 0, len(results))
	outboxMessages := make([]models.OutboxMessage, 0, len(results))

	for _, res := range results {
		missingJSON, err := json.Marshal(res.MissingSkills)
		if err != nil {
			return fmt.Errorf("序列化缺失技能失败: %w", err)
		}
		matches = append(matches, models.JobCandidateMatch{
			JobID:                 jobID,
			CandidateID:           res.CandidateID,
			MatchPercentage:       res.MatchPercentage,
			DistanceScore:         res.Distance,
			MissingSkillsJSON:     missingJSON,
			Explanation:           res.Explanation,
			EmbeddingModelVersion: modelVersion,
			MatchedAt:             now,
		})

		event := storage.MatchFoundEvent{
			JobID:           jobID,
			CandidateID:     res.CandidateID,
			MatchPercentage: res.MatchPercentage,
			MissingSkills:   res.MissingSkills,
			Explanation:     res.Explanation,
			ModelVersion:    modelVersion,
			MatchedAt:       now,
		}
		payload, err := json.Marshal(&event)
		if err != nil {
			return fmt.Errorf("序列化匹配事件失败: %w", err)
		}
		outboxMessages = append(outboxMessages, models.OutboxMessage{
			AggregateID:      jobID,
			EventType:        "match.found",
			Payload:          string(payload),
			TargetExchange:   h.cfg.RabbitMQ.MatchEventsExchange,
			TargetRoutingKey: h.cfg.RabbitMQ.MatchFoundRoutingKey,
			Status:           "PENDING",
		})
	}

	return h.storage.MySQL.SaveMatchesWithOutbox(ctx, matches, outboxMessages)
}

// fetchMatchDetails 根据候选人ID列表从数据库批量获取匹配详情, 保持传入顺序
func (h *MatchHandler) fetchMatchDetails(ctx context.Context, jobID string, candidateIDs []string) ([]map[string]interface{}, error) {
	if len(candidateIDs) == 0 {
		return []map[string]interface{}{}, nil
	}

	var matches []models.JobCandidateMatch
	err := h.storage.MySQL.DB().WithContext(ctx).
		Preload("Candidate").
		Where("job_id = ? AND candidate_id IN ?", jobID, candidateIDs).
		Find(&matches).Error
	if err != nil {
		return nil, err
	}

	matchMap := make(map[string]models.JobCandidateMatch, len(matches))
	for _, m := range matches {
		matchMap[m.CandidateID] = m
	}

	detailed := make([]map[string]interface{}, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		m, ok := matchMap[id]
		if !ok {
			continue
		}
		var missingSkills []string
		if len(m.MissingSkillsJSON) > 0 {
			if err := json.Unmarshal(m.MissingSkillsJSON, &missingSkills); err != nil {
				h.logger.Printf("反序列化缺失技能失败 for CandidateID %s: %v", id, err)
			}
		}
		candidateName := ""
		if m.Candidate != nil {
			candidateName = m.Candidate.PrimaryName
		}
		detailed = append(detailed, map[string]interface{}{
			"candidate_id":     m.CandidateID,
			"candidate_name":   candidateName,
			"match_percentage": m.MatchPercentage,
			"missing_skills":   missingSkills,
			"explanation":      m.Explanation,
			"matched_at":       m.MatchedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return detailed, nil
}

// HandleGetMatches 返回已落库的匹配结果。
// GET /api/v1/jobs/:job_id/matches
func (h *MatchHandler) HandleGetMatches(ctx context.Context, c *app.RequestContext) {
	jobID := c.Param("job_id")
	if jobID == "" {
		c.JSON(consts.StatusBadRequest, map[string]string{"error": "job_id 不能为空"})
		return
	}

	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		limit = 50
	}

	matches, err := h.storage.MySQL.ListMatchesForJob(ctx, jobID, limit)
	if err != nil {
		h.logger.Printf("查询匹配结果失败 for JobID %s: %v", jobID, err)
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "查询匹配结果失败"})
		return
	}

	data := make([]map[string]interface{}, 0, len(matches))
	for _, m := range matches {
		var missingSkills []string
		if len(m.MissingSkillsJSON) > 0 {
			if err := json.Unmarshal(m.MissingSkillsJSON, &missingSkills); err != nil {
				h.logger.Printf("反序列化缺失技能失败 for CandidateID %s: %v", m.CandidateID, err)
			}
		}
		data = append(data, map[string]interface{}{
			"candidate_id":     m.CandidateID,
			"match_percentage": m.MatchPercentage,
			"missing_skills":   missingSkills,
			"explanation":      m.Explanation,
			"model_version":    m.EmbeddingModelVersion,
			"matched_at":       m.MatchedAt.Format("2006-01-02 15:04:05"),
		})
	}

	c.JSON(consts.StatusOK, map[string]interface{}{
		"job_id":      jobID,
		"total_count": len(data),
		"data":        data,
	})
}
