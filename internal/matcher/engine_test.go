package matcher

import (
	"context"
	"errors"
	"hash/fnv"
	"strings"
	"testing"
	"unicode"

	"talent-match-go/internal/types"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// bagOfWordsEmbedder 是测试用的确定性嵌入器。
// 对分词后的文本做FNV-1a哈希装桶计数，同一文本必然得到同一向量，
// 共享词汇越多的两段文本距离越近。
type bagOfWordsEmbedder struct {
	dim   int
	err   error
	calls int
}

func newBagOfWordsEmbedder() *bagOfWordsEmbedder {
	return &bagOfWordsEmbedder{dim: 32}
}

func (m *bagOfWordsEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	vectors := make([][]float64, len(texts))
	for i, text := range texts {
		vec := make([]float64, m.dim)
		tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		for _, token := range tokens {
			h := fnv.New32a()
			h.Write([]byte(token))
			vec[int(h.Sum32())%m.dim]++
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (m *bagOfWordsEmbedder) GetDimensions() int {
	return m.dim
}

func testCandidates() []types.CandidateRecord {
	return []types.CandidateRecord{
		{
			CandidateID: "cand-a",
			Summary:     "Experienced Python developer with Django and AWS skills building backend services.",
			Skills:      []string{"Python", "Django", "AWS"},
			Names:       []string{"Alice Zhang"},
		},
		{
			CandidateID: "cand-b",
			Summary:     "Java engineer working on enterprise container platforms using Docker daily.",
			Skills:      []string{"Java", "Docker"},
			Names:       []string{"Bob Li"},
		},
	}
}

// TestNewEngineNilEmbedder 测试嵌入提供方为空时构造立即失败
func TestNewEngineNilEmbedder(t *testing.T) {
	_, err := NewEngine(nil)
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

// TestBuildIndexEmptyCorpus 测试空候选人列表构建索引
func TestBuildIndexEmptyCorpus(t *testing.T) {
	engine, err := NewEngine(newBagOfWordsEmbedder())
	require.NoError(t, err)

	_, err = engine.BuildIndex(context.Background(), nil)
	assert.ErrorIs(t, err, ErrEmptyCorpus)
}

// TestBuildIndexEmbedderFailure 测试向量化失败时错误被包装上抛
func TestBuildIndexEmbedderFailure(t *testing.T) {
	embedder := newBagOfWordsEmbedder()
	embedder.err = errors.New("provider timeout")
	engine, err := NewEngine(embedder)
	require.NoError(t, err)

	_, err = engine.BuildIndex(context.Background(), testCandidates())
	require.Error(t, err)
	assert.ErrorContains(t, err, "provider timeout")
}

// TestQueryRankingAndGaps 测试匹配排序与缺失技能识别
func TestQueryRankingAndGaps(t *testing.T) {
	engine, err := NewEngine(newBagOfWordsEmbedder())
	require.NoError(t, err)

	handle, err := engine.BuildIndex(context.Background(), testCandidates())
	require.NoError(t, err)
	assert.Equal(t, 2, handle.Size())

	results, err := engine.Query(context.Background(),
		handle, "Python Django AWS backend developer", 10, 0)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// 技能高度重合的候选人排在前面且得分更高
	assert.Equal(t, "cand-a", results[0].CandidateID)
	assert.Equal(t, "cand-b", results[1].CandidateID)
	assert.Greater(t, results[0].MatchPercentage, results[1].MatchPercentage)
	assert.Less(t, results[0].Distance, results[1].Distance)

	// 岗位要求Python而候选人B不具备
	assert.Contains(t, results[1].MissingSkills, "Python")
	assert.NotContains(t, results[0].MissingSkills, "Python")

	for _, r := range results {
		assert.NotEmpty(t, r.Explanation)
		assert.GreaterOrEqual(t, r.MatchPercentage, float64(0))
		assert.LessOrEqual(t, r.MatchPercentage, float64(100))
	}
}

// TestQueryIdentityText 测试查询文本与候选人归一化文本一致时得满分
func TestQueryIdentityText(t *testing.T) {
	engine, err := NewEngine(newBagOfWordsEmbedder())
	require.NoError(t, err)

	candidates := testCandidates()
	handle, err := engine.BuildIndex(context.Background(), candidates)
	require.NoError(t, err)

	results, err := engine.Query(context.Background(),
		handle, candidates[0].Summary, 1, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "cand-a", results[0].CandidateID)
	assert.Equal(t, float64(0), results[0].Distance)
	assert.Equal(t, float64(100), results[0].MatchPercentage)
}

// TestQueryIdempotent 测试重复查询返回完全一致的结果
func TestQueryIdempotent(t *testing.T) {
	engine, err := NewEngine(newBagOfWordsEmbedder())
	require.NoError(t, err)

	handle, err := engine.BuildIndex(context.Background(), testCandidates())
	require.NoError(t, err)

	first, err := engine.Query(context.Background(), handle, "Python backend role", 5, 0)
	require.NoError(t, err)
	second, err := engine.Query(context.Background(), handle, "Python backend role", 5, 0)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// TestQueryInvalidInputs 测试空查询文本与非法k
func TestQueryInvalidInputs(t *testing.T) {
	engine, err := NewEngine(newBagOfWordsEmbedder())
	require.NoError(t, err)

	handle, err := engine.BuildIndex(context.Background(), testCandidates())
	require.NoError(t, err)

	_, err = engine.Query(context.Background(), handle, "   ", 5, 0)
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = engine.Query(context.Background(), handle, "Python", 0, 0)
	assert.ErrorIs(t, err, ErrInvalidQuery)
}

// TestQueryValidatesBeforeEmbedding 测试必然失败的参数不触发向量化调用
func TestQueryValidatesBeforeEmbedding(t *testing.T) {
	embedder := newBagOfWordsEmbedder()
	engine, err := NewEngine(embedder)
	require.NoError(t, err)

	handle, err := engine.BuildIndex(context.Background(), testCandidates())
	require.NoError(t, err)
	buildCalls := embedder.calls

	_, err = engine.Query(context.Background(), handle, "Python", 0, 0)
	assert.ErrorIs(t, err, ErrInvalidQuery)

	_, err = engine.Query(context.Background(), nil, "Python", 5, 0)
	assert.ErrorIs(t, err, ErrIndexNotBuilt)

	assert.Equal(t, buildCalls, embedder.calls, "参数校验失败不应产生向量化调用")
}

// TestQueryWithoutIndex 测试未构建索引直接查询
func TestQueryWithoutIndex(t *testing.T) {
	engine, err := NewEngine(newBagOfWordsEmbedder())
	require.NoError(t, err)

	_, err = engine.Query(context.Background(), nil, "Python", 5, 0)
	assert.ErrorIs(t, err, ErrIndexNotBuilt)
}

// TestQueryMinScoreFilter 测试低于阈值的候选人被过滤
func TestQueryMinScoreFilter(t *testing.T) {
	engine, err := NewEngine(newBagOfWordsEmbedder())
	require.NoError(t, err)

	candidates := testCandidates()
	handle, err := engine.BuildIndex(context.Background(), candidates)
	require.NoError(t, err)

	// 与候选人A完全一致的查询文本, 阈值99只保留满分的A
	results, err := engine.Query(context.Background(),
		handle, candidates[0].Summary, 10, 99)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "cand-a", results[0].CandidateID)
}

// TestSerializeRestoreRoundTrip 测试索引序列化恢复后查询结果一致
func TestSerializeRestoreRoundTrip(t *testing.T) {
	engine, err := NewEngine(newBagOfWordsEmbedder())
	require.NoError(t, err)

	candidates := testCandidates()
	handle, err := engine.BuildIndex(context.Background(), candidates)
	require.NoError(t, err)

	blob, err := handle.Serialize()
	require.NoError(t, err)

	restored, err := engine.RestoreIndex(blob, candidates)
	require.NoError(t, err)

	query := "Python Django AWS backend developer"
	original, err := engine.Query(context.Background(), handle, query, 5, 0)
	require.NoError(t, err)
	roundTripped, err := engine.Query(context.Background(), restored, query, 5, 0)
	require.NoError(t, err)
	assert.Equal(t, original, roundTripped)
}

// TestRestoreIndexCountMismatch 测试恢复时候选人列表长度与索引不一致
func TestRestoreIndexCountMismatch(t *testing.T) {
	engine, err := NewEngine(newBagOfWordsEmbedder())
	require.NoError(t, err)

	candidates := testCandidates()
	handle, err := engine.BuildIndex(context.Background(), candidates)
	require.NoError(t, err)

	blob, err := handle.Serialize()
	require.NoError(t, err)

	_, err = engine.RestoreIndex(blob, candidates[:1])
	assert.Error(t, err)
}
