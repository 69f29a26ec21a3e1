package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"os"
	"time"

	"talent-match-go/internal/config"
	"talent-match-go/internal/matcher"

	"github.com/cloudwego/eino/components/embedding"
)

// AliyunEmbedder 通过阿里云DashScope的OpenAI兼容端点生成文本向量,
// 实现 cloudwego/eino 的 embedding.Embedder 接口。
type AliyunEmbedder struct {
	apiKey     string
	model      string
	dimensions int
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

var _ embedding.Embedder = (*AliyunEmbedder)(nil)
var _ matcher.TextEmbedder = (*AliyunEmbedder)(nil)

// AliyunEmbedderOption 定义嵌入器的配置选项
type AliyunEmbedderOption func(*AliyunEmbedder)

// WithHTTPClient 替换默认的HTTP客户端
func WithHTTPClient(client *http.Client) AliyunEmbedderOption {
	return func(a *AliyunEmbedder) {
		if client != nil {
			a.httpClient = client
		}
	}
}

// WithEmbedderLogger 设置嵌入器使用的日志记录器
func WithEmbedderLogger(logger *log.Logger) AliyunEmbedderOption {
	return func(a *AliyunEmbedder) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAliyunEmbedder 创建阿里云Embedder。
// API密钥缺失说明模型提供方不可用，构造立即失败，调用方不应重试。
func NewAliyunEmbedder(apiKey string, embeddingCfg config.EmbeddingConfig, options ...AliyunEmbedderOption) (*AliyunEmbedder, error) {
	if apiKey == "" {
		return nil, matcher.NewModelUnavailableError("new_aliyun_embedder", "API密钥不能为空")
	}

	model := embeddingCfg.Model
	if model == "" {
		model = "text-embedding-v3"
	}
	baseURL := embeddingCfg.BaseURL
	if baseURL == "" {
		baseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/embeddings"
	}

	a := &AliyunEmbedder{
		apiKey:     apiKey,
		model:      model,
		dimensions: embeddingCfg.Dimensions,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     log.New(os.Stderr, "[AliyunEmbedder] ", log.LstdFlags),
	}

	for _, option := range options {
		option(a)
	}

	return a, nil
}

// GetDimensions 返回嵌入器配置的维度
func (a *AliyunEmbedder) GetDimensions() int {
	return a.dimensions
}

// openAIEmbeddingRequest OpenAI兼容的Embedding请求结构
type openAIEmbeddingRequest struct {
	Input      interface{} `json:"input"` // string 或 []string
	Model      string      `json:"model"`
	Dimensions int         `json:"dimensions,omitempty"`
}

// openAIEmbeddingResponse OpenAI兼容的Embedding响应结构
type openAIEmbeddingResponse struct {
	Object string `json:"object"`
	Data   []struct {
		Object    string    `json:"object"`
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
	Error *openAIError `json:"error,omitempty"`
}

// openAIError 兼容端点在200响应中携带的API级错误
type openAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    string `json:"code"`
}

// EmbedStrings 将文本批量转换为向量。
// 含有NaN/Inf分量的返回向量整体替换为零向量，保证下游索引只接受有限值。
func (a *AliyunEmbedder) EmbedStrings(ctx context.Context, texts []string, opts ...embedding.Option) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	options := &embedding.Options{}
	embedding.GetCommonOptions(options, opts...)

	effectiveModel := a.model
	if options.Model != nil && *options.Model != "" {
		effectiveModel = *options.Model
	}

	var inputBody interface{}
	if len(texts) == 1 {
		inputBody = texts[0]
	} else {
		inputBody = texts
	}

	reqBody := openAIEmbeddingRequest{
		Input: inputBody,
		Model: effectiveModel,
	}
	if a.dimensions > 0 {
		reqBody.Dimensions = a.dimensions
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiError openAIError
		if json.Unmarshal(body, &apiError) == nil && apiError.Message != "" {
			return nil, fmt.Errorf("API调用失败, 状态码: %d, 类型: %s, 错误: %s, Code: %s",
				resp.StatusCode, apiError.Type, apiError.Message, apiError.Code)
		}
		return nil, fmt.Errorf("API调用失败, 状态码: %d, 响应: %s", resp.StatusCode, string(body))
	}

	var parsedResp openAIEmbeddingResponse
	if err := json.Unmarshal(body, &parsedResp); err != nil {
		return nil, fmt.Errorf("解析响应JSON失败: %w", err)
	}
	if parsedResp.Error != nil && parsedResp.Error.Message != "" {
		return nil, fmt.Errorf("API返回错误: 类型=%s, 消息='%s', Code=%s",
			parsedResp.Error.Type, parsedResp.Error.Message, parsedResp.Error.Code)
	}
	if len(parsedResp.Data) != len(texts) {
		return nil, fmt.Errorf("响应向量数量不符: 期望 %d, 实际 %d", len(texts), len(parsedResp.Data))
	}

	// 端点保证Index字段标识输入顺序, 按Index归位
	outputEmbeddings := make([][]float64, len(texts))
	for _, entry := range parsedResp.Data {
		if entry.Index < 0 || entry.Index >= len(texts) {
			return nil, fmt.Errorf("响应向量索引越界: %d", entry.Index)
		}
		outputEmbeddings[entry.Index] = sanitizeEmbedding(entry.Embedding)
	}

	a.logger.Printf("成功向量化 %d 条文本, 模型 %s, 消耗 %d tokens",
		len(texts), parsedResp.Model, parsedResp.Usage.TotalTokens)

	return outputEmbeddings, nil
}

// sanitizeEmbedding 将含非有限分量的向量替换为同维度零向量
func sanitizeEmbedding(vec []float64) []float64 {
	for _, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return make([]float64, len(vec))
		}
	}
	return vec
}
