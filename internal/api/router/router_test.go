package router

import (
	"testing"

	"talent-match-go/internal/api/handler"
	"talent-match-go/internal/config"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) *server.Hertz {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.AdminKey = "test-admin-key"

	h := server.New(server.WithHostPorts("127.0.0.1:0"))
	// 路由层测试不触达存储, handler 依赖可以为空
	RegisterRoutes(h, cfg,
		handler.NewCVHandler(cfg, nil),
		handler.NewJobHandler(cfg, nil, nil),
		handler.NewMatchHandler(cfg, nil, nil),
		handler.NewCandidateHandler(cfg, nil),
	)
	return h
}

func TestHealthEndpoint(t *testing.T) {
	h := newTestServer(t)

	w := ut.PerformRequest(h.Engine, "GET", "/api/v1/health", nil)
	resp := w.Result()
	assert.Equal(t, 200, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), "ok")
}

func TestCVUploadRequiresFile(t *testing.T) {
	h := newTestServer(t)

	// 没有multipart文件时应在路由层直接返回400
	w := ut.PerformRequest(h.Engine, "POST", "/api/v1/cv/upload", nil)
	resp := w.Result()
	assert.Equal(t, 400, resp.StatusCode())
}

func TestAdminRoutesRequireAPIKey(t *testing.T) {
	h := newTestServer(t)

	paths := []struct {
		method string
		path   string
	}{
		{"POST", "/api/v1/jobs"},
		{"GET", "/api/v1/jobs/j-1"},
		{"PUT", "/api/v1/jobs/j-1/parameters"},
		{"GET", "/api/v1/jobs/j-1/matches/search"},
		{"GET", "/api/v1/jobs/j-1/matches"},
		{"GET", "/api/v1/cv/u-1/text"},
		{"GET", "/api/v1/cv/u-1/download"},
		{"PUT", "/api/v1/candidates/profile"},
	}

	for _, p := range paths {
		w := ut.PerformRequest(h.Engine, p.method, p.path, nil)
		resp := w.Result()
		require.Equal(t, 401, resp.StatusCode(), "%s %s 未带API密钥应被拒绝", p.method, p.path)
	}

	// 错误的密钥同样拒绝
	w := ut.PerformRequest(h.Engine, "GET", "/api/v1/jobs/j-1/matches", nil,
		ut.Header{Key: "X-API-Key", Value: "wrong-key"})
	assert.Equal(t, 401, w.Result().StatusCode())
}
