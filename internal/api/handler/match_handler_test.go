package handler

import (
	"context"
	"io"
	"log"
	"testing"

	"talent-match-go/internal/matcher"
	"talent-match-go/internal/storage"
	"talent-match-go/internal/types"

	"github.com/cloudwego/eino/components/embedding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// constEmbedder 测试用嵌入器, 所有文本返回同一固定向量
type constEmbedder struct{}

func (constEmbedder) EmbedStrings(_ context.Context, texts []string, _ ...embedding.Option) ([][]float64, error) {
	vectors := make([][]float64, len(texts))
	for i := range texts {
		vectors[i] = []float64{1, 0, 0, 0}
	}
	return vectors, nil
}

func (constEmbedder) GetDimensions() int { return 4 }

// TestCorpusFingerprint 验证语料指纹对候选人ID序列和模型版本敏感
func TestCorpusFingerprint(t *testing.T) {
	engine, err := matcher.NewEngine(constEmbedder{}, matcher.WithModelVersion("text-embedding-v3"))
	require.NoError(t, err)
	h := &MatchHandler{engine: engine}

	candidates := []types.CandidateRecord{
		{CandidateID: "cand-a"},
		{CandidateID: "cand-b"},
	}

	fp1 := h.corpusFingerprint(candidates)
	fp2 := h.corpusFingerprint(candidates)
	assert.Equal(t, fp1, fp2, "同一候选人批次应得到相同指纹")
	assert.Len(t, fp1, 32)

	// 顺序不同视为不同语料, 索引位置与候选人列表一一对应
	reversed := []types.CandidateRecord{
		{CandidateID: "cand-b"},
		{CandidateID: "cand-a"},
	}
	assert.NotEqual(t, fp1, h.corpusFingerprint(reversed))

	// 模型版本不同时快照不可复用
	otherEngine, err := matcher.NewEngine(constEmbedder{}, matcher.WithModelVersion("text-embedding-v4"))
	require.NoError(t, err)
	other := &MatchHandler{engine: otherEngine}
	assert.NotEqual(t, fp1, other.corpusFingerprint(candidates))
}

// TestBuildOrRestoreIndexWithoutRedis 验证Redis初始化失败 (Storage.Redis为nil)
// 时匹配流程降级为直接重建索引, 不会崩溃。
func TestBuildOrRestoreIndexWithoutRedis(t *testing.T) {
	engine, err := matcher.NewEngine(constEmbedder{}, matcher.WithModelVersion("text-embedding-v3"))
	require.NoError(t, err)

	h := &MatchHandler{
		engine:  engine,
		storage: &storage.Storage{},
		logger:  log.New(io.Discard, "", 0),
	}

	candidates := []types.CandidateRecord{
		{CandidateID: "cand-a", Summary: "十年后端开发经验, 精通Go与分布式系统"},
		{CandidateID: "cand-b", Summary: "五年数据工程经验, 熟悉Python与Spark"},
	}

	assert.NotPanics(t, func() {
		handle, buildErr := h.buildOrRestoreIndex(context.Background(), candidates)
		require.NoError(t, buildErr)
		require.NotNil(t, handle)
	})
}
