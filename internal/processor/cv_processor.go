// Package processor 消费简历上传事件, 提取简历文本并回写处理状态。
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"talent-match-go/internal/storage"
	"talent-match-go/internal/tracing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var processorTracer = otel.Tracer("talent-match-go/processor")

// 简历上传记录的处理状态
const (
	StatusTextExtracted    = "TEXT_EXTRACTED"
	StatusExtractionFailed = "EXTRACTION_FAILED"
)

// ErrExtractionFailed 表示文本提取失败且终态已落库, 重投同一文件不会有不同结果
var ErrExtractionFailed = errors.New("简历文本提取失败")

// TextExtractor 简历文本提取接口
type TextExtractor interface {
	ExtractTextFromBytes(ctx context.Context, data []byte, uri string, options interface{}) (string, map[string]interface{}, error)
}

// CVFileStore 简历文件读写接口
type CVFileStore interface {
	GetCVFile(ctx context.Context, objectKey string) ([]byte, error)
	UploadParsedText(ctx context.Context, uploadUUID string, text string) (string, error)
}

// UploadTracker 上传记录状态回写接口
type UploadTracker interface {
	UpdateCVUploadFields(ctx context.Context, uploadUUID string, updates map[string]interface{}) error
}

// CVProcessor 简历文本提取流水线
type CVProcessor struct {
	files            CVFileStore
	uploads          UploadTracker
	extractor        TextExtractor
	logger           *log.Logger
	extractorVersion string
}

// CVProcessorOption 配置CVProcessor
type CVProcessorOption func(*CVProcessor)

// WithProcessorLogger 设置日志记录器
func WithProcessorLogger(logger *log.Logger) CVProcessorOption {
	return func(p *CVProcessor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithExtractorVersion 设置记录到数据库的提取器版本标识
func WithExtractorVersion(version string) CVProcessorOption {
	return func(p *CVProcessor) {
		if version != "" {
			p.extractorVersion = version
		}
	}
}

// NewCVProcessor 创建简历文本提取流水线
func NewCVProcessor(files CVFileStore, uploads UploadTracker, extractor TextExtractor, opts ...CVProcessorOption) (*CVProcessor, error) {
	if files == nil {
		return nil, fmt.Errorf("文件存储不能为空")
	}
	if uploads == nil {
		return nil, fmt.Errorf("上传记录存储不能为空")
	}
	if extractor == nil {
		return nil, fmt.Errorf("文本提取器不能为空")
	}

	p := &CVProcessor{
		files:            files,
		uploads:          uploads,
		extractor:        extractor,
		logger:           log.New(log.Writer(), "[CVProcessor] ", log.LstdFlags),
		extractorVersion: "eino-pdf-v1",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// HandleMessage 处理一条简历上传事件, 返回true表示可以Ack
func (p *CVProcessor) HandleMessage(body []byte) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var msg storage.CVUploadedMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		// 消息格式错误, 重试无意义, 直接Ack丢弃
		p.logger.Printf("反序列化上传消息失败, 丢弃: %v", err)
		return true
	}
	if msg.UploadUUID == "" || msg.OriginalFilePathOSS == "" {
		p.logger.Printf("上传消息缺少必要字段, 丢弃: %+v", msg)
		return true
	}

	if err := p.ProcessUpload(ctx, &msg); err != nil {
		// 提取失败是终态, 重投只会重复失败, Ack丢弃; 其余错误等待重投
		if errors.Is(err, ErrExtractionFailed) {
			p.logger.Printf("上传 %s 文本提取失败, 已记录终态, 丢弃消息: %v", msg.UploadUUID, err)
			return true
		}
		p.logger.Printf("处理上传 %s 失败: %v", msg.UploadUUID, err)
		return false
	}
	return true
}

// ProcessUpload 下载原始简历文件, 提取文本并保存, 然后回写处理状态
func (p *CVProcessor) ProcessUpload(ctx context.Context, msg *storage.CVUploadedMessage) error {
	ctx, span := processorTracer.Start(ctx, "processor.ProcessUpload",
		trace.WithAttributes(
			attribute.String("cv.upload_uuid", msg.UploadUUID),
			attribute.String("cv.object_key", tracing.SafeAttributeValue("object_key", msg.OriginalFilePathOSS, tracing.DefaultMaxLength)),
		),
	)
	defer span.End()

	data, err := p.files.GetCVFile(ctx, msg.OriginalFilePathOSS)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExternal)
		return fmt.Errorf("下载原始简历文件失败: %w", err)
	}

	text, err := p.extractText(ctx, data, msg)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		// 提取失败是终态, 记录状态后不再重试; 终态落库失败则保留消息等待重投
		if updateErr := p.uploads.UpdateCVUploadFields(ctx, msg.UploadUUID, map[string]interface{}{
			"processing_status": StatusExtractionFailed,
			"extractor_version": p.extractorVersion,
		}); updateErr != nil {
			p.logger.Printf("回写提取失败状态失败: %v", updateErr)
			return fmt.Errorf("回写提取失败状态失败: %w", updateErr)
		}
		return fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	parsedPath, err := p.files.UploadParsedText(ctx, msg.UploadUUID, text)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExternal)
		return fmt.Errorf("保存提取文本失败: %w", err)
	}

	if err := p.uploads.UpdateCVUploadFields(ctx, msg.UploadUUID, map[string]interface{}{
		"processing_status":    StatusTextExtracted,
		"parsed_text_path_oss": parsedPath,
		"extractor_version":    p.extractorVersion,
	}); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeDB)
		return fmt.Errorf("更新上传记录状态失败: %w", err)
	}

	span.SetAttributes(attribute.Int("cv.text_length", len(text)))
	p.logger.Printf("上传 %s 文本提取完成, %d 个字符", msg.UploadUUID, len(text))
	return nil
}

// extractText 按文件扩展名选择提取方式, 纯文本文件直接透传
func (p *CVProcessor) extractText(ctx context.Context, data []byte, msg *storage.CVUploadedMessage) (string, error) {
	ext := strings.ToLower(filepath.Ext(msg.OriginalFilename))
	if ext == ".txt" {
		return string(data), nil
	}

	text, _, err := p.extractor.ExtractTextFromBytes(ctx, data, msg.OriginalFilename, nil)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("提取结果为空: %s", msg.OriginalFilename)
	}
	return text, nil
}
