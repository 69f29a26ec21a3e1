package router

import (
	"context"
	"crypto/subtle"

	"talent-match-go/internal/api/handler"
	"talent-match-go/internal/config"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"
)

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, cfg *config.Config,
	cvHandler *handler.CVHandler,
	jobHandler *handler.JobHandler,
	matchHandler *handler.MatchHandler,
	candidateHandler *handler.CandidateHandler,
) {
	api := h.Group("/api/v1")

	// 健康检查
	api.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})

	// 简历上传
	api.POST("/cv/upload", func(c context.Context, ctx *app.RequestContext) {
		fileHeader, err := ctx.FormFile("file")
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "文件未找到"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "打开文件失败"})
			return
		}
		defer file.Close()

		resp, err := cvHandler.HandleCVUpload(c, file, fileHeader.Size, fileHeader.Filename)
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
			return
		}

		ctx.JSON(consts.StatusOK, resp)
	})

	// 上传状态查询 (上传方轮询用, 不需要认证)
	api.GET("/cv/:upload_uuid/status", cvHandler.HandleUploadStatus)

	// 简历文本与原始文件访问需要API密钥认证
	cvAdmin := api.Group("/cv", apiKeyMiddleware(cfg))
	cvAdmin.GET("/:upload_uuid/text", cvHandler.HandleParsedText)
	cvAdmin.GET("/:upload_uuid/download", cvHandler.HandleDownloadURL)

	// 候选人档案回灌接口 (外部解析方调用)
	candidates := api.Group("/candidates", apiKeyMiddleware(cfg))
	candidates.PUT("/profile", candidateHandler.HandleUpsertProfile)

	// 岗位与匹配接口需要API密钥认证
	jobs := api.Group("/jobs", apiKeyMiddleware(cfg))
	jobs.POST("", jobHandler.HandleCreateJob)
	jobs.GET("/:job_id", jobHandler.HandleGetJob)
	jobs.PUT("/:job_id/parameters", jobHandler.HandleUpdateJobParameters)
	jobs.GET("/:job_id/matches/search", matchHandler.HandleSearchMatches)
	jobs.GET("/:job_id/matches", matchHandler.HandleGetMatches)
}

// apiKeyMiddleware 校验 X-API-Key 请求头
func apiKeyMiddleware(cfg *config.Config) app.HandlerFunc {
	return keyauth.New(
		keyauth.WithKeyLookUp("header:X-API-Key", ""),
		keyauth.WithValidator(func(ctx context.Context, c *app.RequestContext, key string) (bool, error) {
			if cfg.Server.AdminKey != "" &&
				subtle.ConstantTimeCompare([]byte(key), []byte(cfg.Server.AdminKey)) == 1 {
				return true, nil
			}
			for _, allowed := range cfg.Server.APIKeys {
				if subtle.ConstantTimeCompare([]byte(key), []byte(allowed)) == 1 {
					return true, nil
				}
			}
			return false, nil
		}),
	)
}
