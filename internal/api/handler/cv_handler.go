package handler

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"talent-match-go/internal/config"
	"talent-match-go/internal/logger"
	"talent-match-go/internal/storage"
	"talent-match-go/internal/storage/models"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/gofrs/uuid/v5"
	"gorm.io/gorm"
)

// CVHandler 简历上传处理器, 负责文件去重、对象存储与上传事件发布
type CVHandler struct {
	cfg     *config.Config
	storage *storage.Storage
}

// NewCVHandler 创建简历上传处理器
func NewCVHandler(cfg *config.Config, storage *storage.Storage) *CVHandler {
	return &CVHandler{
		cfg:     cfg,
		storage: storage,
	}
}

// CVUploadResponse 简历上传响应
type CVUploadResponse struct {
	UploadUUID string `json:"upload_uuid"`
	Status     string `json:"status"`
}

// HandleCVUpload 处理简历上传请求
func (h *CVHandler) HandleCVUpload(ctx context.Context, reader io.Reader, fileSize int64, filename string) (*CVUploadResponse, error) {
	// 读取文件内容并计算MD5 (reader只能读一次, MD5检查必须在上传前)
	fileBytes, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("读取上传文件内容失败: %w", err)
	}
	sum := md5.Sum(fileBytes)
	fileMD5Hex := hex.EncodeToString(sum[:])

	// 原子地检查并登记文件MD5
	exists, err := h.storage.Redis.CheckAndAddRawFileMD5(ctx, fileMD5Hex)
	if err != nil {
		logger.Error().
			Err(err).
			Str("md5", fileMD5Hex).
			Msg("查询Redis文件MD5 Set失败")
		return nil, fmt.Errorf("检查文件MD5重复性时Redis查询失败: %w", err)
	}
	if exists {
		logger.Info().
			Str("md5", fileMD5Hex).
			Str("filename", filename).
			Msg("检测到重复的文件MD5，跳过处理")
		return &CVUploadResponse{
			UploadUUID: "",
			Status:     "DUPLICATE_FILE_SKIPPED",
		}, nil
	}

	// 上传失败时从去重集合中移除MD5, 否则同一文件无法重传
	rollbackMD5 := func() {
		if err := h.storage.Redis.RemoveRawFileMD5(ctx, fileMD5Hex); err != nil {
			logger.Warn().Err(err).Str("md5", fileMD5Hex).Msg("回滚文件MD5失败")
		}
	}

	uuidV7, err := uuid.NewV7()
	if err != nil {
		rollbackMD5()
		return nil, fmt.Errorf("生成UUIDv7失败: %w", err)
	}
	uploadUUID := uuidV7.String()

	ext := filepath.Ext(filename)
	if ext == "" {
		ext = ".pdf" // 默认为PDF
	}

	// 上传原始文件到MinIO
	originalObjectKey, err := h.storage.MinIO.UploadCVFile(ctx, uploadUUID, ext, bytes.NewReader(fileBytes), int64(len(fileBytes)))
	if err != nil {
		rollbackMD5()
		return nil, fmt.Errorf("上传简历到MinIO失败: %w", err)
	}

	// 落库失败时连同已上传的对象一起回滚
	rollbackUpload := func() {
		rollbackMD5()
		if err := h.storage.MinIO.DeleteFile(ctx, originalObjectKey); err != nil {
			logger.Warn().Err(err).Str("object_key", originalObjectKey).Msg("回滚MinIO对象失败")
		}
	}

	// 落库上传记录
	upload := &models.CVUpload{
		UploadUUID:          uploadUUID,
		OriginalFilename:    filename,
		OriginalFilePathOSS: originalObjectKey,
		RawFileMD5:          fileMD5Hex,
		ProcessingStatus:    "PENDING_EXTRACTION",
	}
	if err := h.storage.MySQL.CreateCVUpload(ctx, upload); err != nil {
		rollbackUpload()
		return nil, fmt.Errorf("创建简历上传记录失败: %w", err)
	}

	// 发布上传事件到候选人事件交换机
	message := storage.CVUploadedMessage{
		UploadUUID:          uploadUUID,
		UploadTimestamp:     time.Now(),
		OriginalFilename:    filename,
		OriginalFilePathOSS: originalObjectKey,
		RawFileMD5:          fileMD5Hex,
	}
	err = h.storage.RabbitMQ.PublishJSON(
		ctx,
		h.cfg.RabbitMQ.CandidateEventsExchange,
		h.cfg.RabbitMQ.CVUploadedRoutingKey,
		message,
		true, // 持久化
	)
	if err != nil {
		return nil, fmt.Errorf("发布消息到RabbitMQ失败: %w", err)
	}

	return &CVUploadResponse{
		UploadUUID: uploadUUID,
		Status:     "SUBMITTED_FOR_PROCESSING",
	}, nil
}

// HandleUploadStatus 查询简历上传处理状态。
// GET /api/v1/cv/:upload_uuid/status
func (h *CVHandler) HandleUploadStatus(ctx context.Context, c *app.RequestContext) {
	uploadUUID := c.Param("upload_uuid")

	upload, err := h.storage.MySQL.GetCVUploadByUUID(ctx, uploadUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(consts.StatusNotFound, map[string]string{"error": "上传记录不存在"})
			return
		}
		logger.Error().Err(err).Str("upload_uuid", uploadUUID).Msg("查询上传记录失败")
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "查询上传记录失败"})
		return
	}

	resp := map[string]interface{}{
		"upload_uuid":       upload.UploadUUID,
		"processing_status": upload.ProcessingStatus,
		"original_filename": upload.OriginalFilename,
		"created_at":        upload.CreatedAt.Format("2006-01-02 15:04:05"),
	}
	if upload.CandidateID != nil {
		resp["candidate_id"] = *upload.CandidateID
	}
	c.JSON(consts.StatusOK, resp)
}

// HandleParsedText 返回提取后的简历纯文本, 供外部档案解析方拉取。
// GET /api/v1/cv/:upload_uuid/text (管理接口)
func (h *CVHandler) HandleParsedText(ctx context.Context, c *app.RequestContext) {
	uploadUUID := c.Param("upload_uuid")

	upload, err := h.storage.MySQL.GetCVUploadByUUID(ctx, uploadUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(consts.StatusNotFound, map[string]string{"error": "上传记录不存在"})
			return
		}
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "查询上传记录失败"})
		return
	}
	if upload.ParsedTextPathOSS == "" {
		c.JSON(consts.StatusConflict, map[string]string{
			"error":             "文本尚未提取完成",
			"processing_status": upload.ProcessingStatus,
		})
		return
	}

	text, err := h.storage.MinIO.GetParsedText(ctx, upload.ParsedTextPathOSS)
	if err != nil {
		logger.Error().Err(err).Str("upload_uuid", uploadUUID).Msg("读取解析文本失败")
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "读取解析文本失败"})
		return
	}

	c.JSON(consts.StatusOK, map[string]interface{}{
		"upload_uuid": upload.UploadUUID,
		"text":        text,
		"text_length": len(text),
	})
}

// HandleDownloadURL 生成原始简历文件的预签名下载链接。
// GET /api/v1/cv/:upload_uuid/download (管理接口)
func (h *CVHandler) HandleDownloadURL(ctx context.Context, c *app.RequestContext) {
	uploadUUID := c.Param("upload_uuid")

	upload, err := h.storage.MySQL.GetCVUploadByUUID(ctx, uploadUUID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(consts.StatusNotFound, map[string]string{"error": "上传记录不存在"})
			return
		}
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "查询上传记录失败"})
		return
	}

	url, err := h.storage.MinIO.GetPresignedURL(ctx, upload.OriginalFilePathOSS, 15*time.Minute)
	if err != nil {
		logger.Error().Err(err).Str("upload_uuid", uploadUUID).Msg("生成预签名URL失败")
		c.JSON(consts.StatusInternalServerError, map[string]string{"error": "生成下载链接失败"})
		return
	}

	c.JSON(consts.StatusOK, map[string]interface{}{
		"upload_uuid":  upload.UploadUUID,
		"download_url": url,
		"expires_in":   int((15 * time.Minute).Seconds()),
	})
}
