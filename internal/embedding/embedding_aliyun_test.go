package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"talent-match-go/internal/config"
	"talent-match-go/internal/matcher"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewAliyunEmbedderEmptyAPIKey 测试API密钥为空时构造失败
func TestNewAliyunEmbedderEmptyAPIKey(t *testing.T) {
	_, err := NewAliyunEmbedder("", config.EmbeddingConfig{})
	assert.ErrorIs(t, err, matcher.ErrModelUnavailable)
}

// TestNewAliyunEmbedderDefaults 测试未配置字段回退到默认值
func TestNewAliyunEmbedderDefaults(t *testing.T) {
	embedder, err := NewAliyunEmbedder("test-key", config.EmbeddingConfig{Dimensions: 1024})
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-v3", embedder.model)
	assert.Equal(t, 1024, embedder.GetDimensions())
	assert.Contains(t, embedder.baseURL, "dashscope.aliyuncs.com")
}

// TestEmbedStrings 测试批量向量化及Index乱序归位
func TestEmbedStrings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIEmbeddingRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "text-embedding-v3", req.Model)

		// 故意乱序返回, 验证按Index归位
		resp := map[string]interface{}{
			"object": "list",
			"model":  "text-embedding-v3",
			"data": []map[string]interface{}{
				{"object": "embedding", "index": 1, "embedding": []float64{0.4, 0.5, 0.6}},
				{"object": "embedding", "index": 0, "embedding": []float64{0.1, 0.2, 0.3}},
			},
			"usage": map[string]int{"prompt_tokens": 8, "total_tokens": 8},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	embedder, err := NewAliyunEmbedder("test-key",
		config.EmbeddingConfig{Model: "text-embedding-v3", BaseURL: server.URL})
	require.NoError(t, err)

	vectors, err := embedder.EmbedStrings(context.Background(), []string{"first text", "second text"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vectors[0])
	assert.Equal(t, []float64{0.4, 0.5, 0.6}, vectors[1])
}

// TestEmbedStringsEmptyInput 测试空输入直接返回空结果
func TestEmbedStringsEmptyInput(t *testing.T) {
	embedder, err := NewAliyunEmbedder("test-key", config.EmbeddingConfig{})
	require.NoError(t, err)

	vectors, err := embedder.EmbedStrings(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
}

// TestEmbedStringsAPIError 测试非200响应时携带错误详情
func TestEmbedStringsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{
			"message": "Invalid API key",
			"type":    "invalid_request_error",
			"code":    "invalid_api_key",
		})
	}))
	defer server.Close()

	embedder, err := NewAliyunEmbedder("bad-key", config.EmbeddingConfig{BaseURL: server.URL})
	require.NoError(t, err)

	_, err = embedder.EmbedStrings(context.Background(), []string{"text"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API key")
}

// TestEmbedStringsSanitizesNonFinite 测试非有限分量被替换为零向量
func TestEmbedStringsSanitizesNonFinite(t *testing.T) {
	// JSON不允许NaN/Inf字面量, 直接构造原始响应体
	rawBody := `{"object":"list","model":"m","data":[{"object":"embedding","index":0,"embedding":[1.0,2.0]}],"usage":{"prompt_tokens":1,"total_tokens":1}}`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(rawBody))
	}))
	defer server.Close()

	embedder, err := NewAliyunEmbedder("test-key", config.EmbeddingConfig{BaseURL: server.URL})
	require.NoError(t, err)

	vectors, err := embedder.EmbedStrings(context.Background(), []string{"text"})
	require.NoError(t, err)
	require.Len(t, vectors, 1)
	assert.Equal(t, []float64{1.0, 2.0}, vectors[0])

	// sanitizeEmbedding 对非有限分量的处理
	assert.Equal(t, []float64{0, 0}, sanitizeEmbedding([]float64{1, math.NaN()}))
	assert.Equal(t, []float64{0, 0}, sanitizeEmbedding([]float64{math.Inf(1), 2}))
	assert.Equal(t, []float64{1, 2}, sanitizeEmbedding([]float64{1, 2}))
}
