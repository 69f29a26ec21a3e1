package matcher

import (
	"context"
	"fmt"
	"log"
	"math"
	"os"
	"strings"

	"talent-match-go/internal/tracing"
	"talent-match-go/internal/types"

	"github.com/cloudwego/eino/components/embedding"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// 定义匹配引擎的专用tracer
var matcherTracer = otel.Tracer("talent-match-go/matcher")

// TextEmbedder 文本向量化接口 (符合 cloudwego/eino 规范)
type TextEmbedder interface {
	// EmbedStrings 将文本转换为向量表示
	EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error)

	// GetDimensions 返回嵌入向量的维度
	GetDimensions() int
}

// IndexHandle 将一次构建产生的索引与其候选人列表绑定在一起。
// 索引中位置i的向量对应候选人列表位置i，两者必须一起重建，
// 不允许用列表A构建的索引去回答期望列表B位置的查询。
// 构建完成后该结构只读；下一批候选人使用新的handle。
type IndexHandle struct {
	index      *FlatIndex
	candidates []types.CandidateRecord
}

// Candidates 返回构建该索引所用的候选人列表
func (h *IndexHandle) Candidates() []types.CandidateRecord {
	return h.candidates
}

// Size 返回索引中的候选人数量
func (h *IndexHandle) Size() int {
	if h == nil || h.index == nil {
		return 0
	}
	return h.index.Size()
}

// Serialize 将索引编码为二进制blob。
// 复用该blob时必须用完全相同顺序的同一份候选人列表调用 RestoreIndex。
func (h *IndexHandle) Serialize() ([]byte, error) {
	if h == nil || h.index == nil {
		return nil, NewIndexNotBuiltError("serialize")
	}
	return h.index.Serialize()
}

// Engine 候选人匹配引擎。
// 持有嵌入提供方和技能差距分析器，替代隐式的全局模型单例；
// 引擎自身跨请求无状态，每次匹配请求构建独立的 IndexHandle。
type Engine struct {
	embedder     TextEmbedder
	gap          *GapAnalyzer
	modelVersion string
	logger       *log.Logger
}

// EngineOption 定义引擎的配置选项
type EngineOption func(*Engine)

// WithEngineLogger 设置引擎使用的日志记录器
func WithEngineLogger(logger *log.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithGapAnalyzer 设置自定义的技能差距分析器
func WithGapAnalyzer(gap *GapAnalyzer) EngineOption {
	return func(e *Engine) {
		e.gap = gap
	}
}

// WithModelVersion 记录嵌入模型版本，用于缓存键和诊断
func WithModelVersion(version string) EngineOption {
	return func(e *Engine) {
		e.modelVersion = version
	}
}

// NewEngine 创建匹配引擎。
// embedder 为空视为模型不可用，构造立即失败且不应重试——
// 这是部署问题，调用方不能在没有嵌入提供方的情况下继续。
func NewEngine(embedder TextEmbedder, options ...EngineOption) (*Engine, error) {
	if embedder == nil {
		return nil, NewModelUnavailableError("new_engine", "嵌入提供方为空")
	}

	e := &Engine{
		embedder: embedder,
		gap:      NewGapAnalyzer(nil),
		logger:   log.New(os.Stderr, "[MatchEngine] ", log.LstdFlags),
	}

	for _, option := range options {
		option(e)
	}

	return e, nil
}

// ModelVersion 返回引擎当前使用的嵌入模型版本标识
func (e *Engine) ModelVersion() string {
	return e.modelVersion
}

// EmbedQueryText 对单条查询文本向量化, 供调用方预计算和缓存岗位向量。
// 返回的向量已做非有限分量清理。
func (e *Engine) EmbedQueryText(ctx context.Context, text string) ([]float64, error) {
	if strings.TrimSpace(text) == "" {
		return nil, NewInvalidQueryError("embed_query_text", "查询文本为空")
	}
	vectors, err := e.embedder.EmbedStrings(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("查询文本向量化失败: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("向量化结果数量不符: 期望 1, 实际 %d", len(vectors))
	}
	return sanitizeVector(vectors[0]), nil
}

// BuildIndex 对一批候选人构建新的相似度索引。
// 每个候选人先归一化为描述文本，再批量向量化，最后构建平坦索引。
// 候选人列表为空返回 ErrEmptyCorpus，不产生半成品索引。
func (e *Engine) BuildIndex(ctx context.Context, candidates []types.CandidateRecord) (*IndexHandle, error) {
	ctx, span := matcherTracer.Start(ctx, "matcher.BuildIndex")
	defer span.End()
	span.SetAttributes(attribute.Int("matcher.candidate_count", len(candidates)))

	if len(candidates) == 0 {
		err := NewEmptyCorpusError("build_index")
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}

	texts := make([]string, len(candidates))
	for i := range candidates {
		texts[i] = Normalize(&candidates[i])
	}

	vectors, err := e.embedder.EmbedStrings(ctx, texts)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeExternal)
		return nil, fmt.Errorf("候选人文本向量化失败: %w", err)
	}
	if len(vectors) != len(texts) {
		err := fmt.Errorf("向量化结果数量不符: 期望 %d, 实际 %d", len(texts), len(vectors))
		tracing.RecordError(span, err, tracing.ErrorTypeExternal)
		return nil, err
	}

	// 索引绝不接受非有限分量，向量化层失守时在这里兜底
	for i := range vectors {
		vectors[i] = sanitizeVector(vectors[i])
	}

	index, err := NewFlatIndex(vectors)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return nil, err
	}

	e.logger.Printf("索引构建完成: %d 个候选人, 维度 %d", len(candidates), index.Dimension())

	handle := &IndexHandle{
		index:      index,
		candidates: append([]types.CandidateRecord(nil), candidates...),
	}
	return handle, nil
}

// RestoreIndex 从序列化blob恢复索引。
// candidates 必须与序列化前构建索引所用的列表顺序完全一致。
func (e *Engine) RestoreIndex(blob []byte, candidates []types.CandidateRecord) (*IndexHandle, error) {
	index, err := DeserializeFlatIndex(blob)
	if err != nil {
		return nil, fmt.Errorf("反序列化索引失败: %w", err)
	}
	if index.Size() != len(candidates) {
		return nil, fmt.Errorf("候选人列表与索引不一致: 索引 %d 条, 列表 %d 条", index.Size(), len(candidates))
	}
	return &IndexHandle{
		index:      index,
		candidates: append([]types.CandidateRecord(nil), candidates...),
	}, nil
}

// Query 对已构建的索引执行岗位匹配查询。
// jobText 为空白或 k<=0 返回 ErrInvalidQuery；handle 未构建返回 ErrIndexNotBuilt。
// 返回的结果按匹配百分比降序排列，低于minScore的结果被过滤。
func (e *Engine) Query(ctx context.Context, handle *IndexHandle, jobText string, k int, minScore float64) ([]types.MatchResult, error) {
	// 参数校验前置, 避免为必然失败的请求浪费一次远程向量化调用
	if k <= 0 {
		return nil, NewInvalidQueryError("query", fmt.Sprintf("k必须为正数，收到 %d", k))
	}
	if handle == nil || handle.index == nil {
		return nil, NewIndexNotBuiltError("query")
	}
	queryVector, err := e.EmbedQueryText(ctx, jobText)
	if err != nil {
		return nil, err
	}
	return e.QueryWithVector(ctx, handle, jobText, queryVector, k, minScore)
}

// QueryWithVector 使用预计算的岗位向量执行匹配查询，跳过查询文本向量化。
// 向量必须由当前模型版本产出且与索引同维度；jobText仍用于技能差距分析和说明生成。
func (e *Engine) QueryWithVector(ctx context.Context, handle *IndexHandle, jobText string, queryVector []float64, k int, minScore float64) ([]types.MatchResult, error) {
	_, span := matcherTracer.Start(ctx, "matcher.Query")
	defer span.End()
	span.SetAttributes(
		attribute.Int("matcher.k", k),
		attribute.Float64("matcher.min_score", minScore),
		attribute.String("matcher.query_preview", tracing.SafeAttributeValue("job_text", jobText, tracing.DefaultMaxLength)),
	)

	if strings.TrimSpace(jobText) == "" {
		err := NewInvalidQueryError("query", "岗位描述文本为空")
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}
	if k <= 0 {
		err := NewInvalidQueryError("query", fmt.Sprintf("k必须为正数，收到 %d", k))
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}
	if handle == nil || handle.index == nil {
		err := NewIndexNotBuiltError("query")
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}
	if len(queryVector) == 0 {
		err := NewInvalidQueryError("query", "查询向量为空")
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}

	neighbors, err := handle.index.Search(sanitizeVector(queryVector), k)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeInternal)
		return nil, err
	}

	ranked := RankAndFilter(ScoreNeighbors(neighbors), minScore)

	results := make([]types.MatchResult, 0, len(ranked))
	for _, s := range ranked {
		candidate := &handle.candidates[s.Position]
		displayPercent := Round2(s.Percent)
		missing := e.gap.MissingQualifications(jobText, candidate.Skills)
		results = append(results, types.MatchResult{
			CandidateID:     candidate.CandidateID,
			MatchPercentage: displayPercent,
			MissingSkills:   missing,
			Explanation:     e.gap.Explain(displayPercent, missing, candidate),
			Distance:        s.Distance,
		})
	}

	span.SetAttributes(attribute.Int("matcher.result_count", len(results)))
	return results, nil
}

// sanitizeVector 将含有NaN/Inf分量的向量整体替换为同维度零向量
func sanitizeVector(vec []float64) []float64 {
	for _, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return make([]float64, len(vec))
		}
	}
	return vec
}
