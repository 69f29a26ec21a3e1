package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"talent-match-go/internal/api/handler"
	"talent-match-go/internal/api/router"
	"talent-match-go/internal/config"
	"talent-match-go/internal/embedding"
	appCoreLogger "talent-match-go/internal/logger"
	"talent-match-go/internal/matcher"
	"talent-match-go/internal/outbox"
	"talent-match-go/internal/parser"
	"talent-match-go/internal/processor"
	"talent-match-go/internal/storage"
	"talent-match-go/internal/tracing"

	"github.com/cloudwego/hertz/pkg/app/server"
	glog "github.com/cloudwego/hertz/pkg/common/hlog"
	hertzadapter "github.com/hertz-contrib/logger/zerolog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"
	"github.com/spf13/pflag"
)

func main() {
	var configPath string
	pflag.StringVarP(&configPath, "config", "c", "internal/config/config.yaml", "配置文件路径")
	pflag.Parse()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}

	initLogger(cfg)
	glog.Info("配置加载成功")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 链路追踪
	shutdownTracing, err := tracing.InitProvider(ctx, tracing.ProviderConfig{
		Enabled:      cfg.Tracing.Enabled,
		Endpoint:     cfg.Tracing.Endpoint,
		ServiceName:  cfg.Tracing.ServiceName,
		SamplerRatio: cfg.Tracing.SamplerRatio,
	})
	if err != nil {
		glog.Fatalf("初始化链路追踪失败: %v", err)
	}
	defer func() {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()
		if err := shutdownTracing(shutdownCtx); err != nil {
			glog.Warnf("关闭链路追踪失败: %v", err)
		}
	}()

	storageManager, err := storage.NewStorage(ctx, cfg)
	if err != nil {
		glog.Fatalf("初始化存储失败: %v", err)
	}
	defer storageManager.Close()
	// MySQL/MinIO/RabbitMQ是硬依赖, Redis缓存缺失时降级运行
	if storageManager.MySQL == nil || storageManager.MinIO == nil || storageManager.RabbitMQ == nil {
		glog.Fatalf("必需的存储组件初始化失败 (MySQL: %v, MinIO: %v, RabbitMQ: %v)",
			storageManager.MySQL != nil, storageManager.MinIO != nil, storageManager.RabbitMQ != nil)
	}
	if storageManager.Redis == nil {
		glog.Warn("Redis不可用, 匹配缓存降级为直接查询, 简历上传去重不可用")
	}
	glog.Info("存储服务初始化成功")

	// 发件箱消息中继
	relayLogger := log.New(appCoreLogger.Logger, "[MessageRelay] ", log.LstdFlags|log.Lshortfile)
	messageRelay := outbox.NewMessageRelay(storageManager.MySQL.DB(), storageManager.RabbitMQ, relayLogger,
		outbox.WithPollingInterval(config.GetDuration(cfg.RabbitMQ.RetryInterval, 5*time.Second)),
		outbox.WithMaxRetryCount(cfg.RabbitMQ.MaxRetries),
	)
	messageRelay.Start()
	glog.Info("消息中继服务已启动")

	aliyunEmbedder, err := embedding.NewAliyunEmbedder(cfg.Aliyun.APIKey, cfg.Aliyun.Embedding)
	if err != nil {
		glog.Fatalf("初始化阿里云Embedder失败: %v", err)
	}
	glog.Info("阿里云Embedder初始化成功")

	matchEngine, err := matcher.NewEngine(aliyunEmbedder,
		matcher.WithModelVersion(cfg.Aliyun.Embedding.Model),
		matcher.WithGapAnalyzer(matcher.NewGapAnalyzer(cfg.Matcher.SkillVocabulary)),
	)
	if err != nil {
		glog.Fatalf("初始化匹配引擎失败: %v", err)
	}
	glog.Info("匹配引擎初始化成功")

	pdfExtractor, err := parser.NewEinoPDFTextExtractor(ctx,
		parser.WithEinoLogger(log.New(os.Stderr, "[EinoPDFMain] ", log.LstdFlags)))
	if err != nil {
		glog.Fatalf("创建Eino PDF提取器失败: %v", err)
	}
	glog.Info("Eino PDF解析器初始化成功")

	// 简历文本提取消费者
	var processorLogger *log.Logger
	if cfg.Logger.Level == "debug" {
		processorLogger = log.New(appCoreLogger.Logger, "[CVProcessor] ", log.LstdFlags|log.Lshortfile)
	} else {
		processorLogger = log.New(io.Discard, "", 0)
	}
	cvProcessor, err := processor.NewCVProcessor(
		storageManager.MinIO,
		storageManager.MySQL,
		pdfExtractor,
		processor.WithProcessorLogger(processorLogger),
	)
	if err != nil {
		glog.Fatalf("初始化简历处理器失败: %v", err)
	}
	if _, err := storageManager.RabbitMQ.StartConsumer(
		cfg.RabbitMQ.RawCVQueue,
		cfg.RabbitMQ.PrefetchCount,
		cvProcessor.HandleMessage,
	); err != nil {
		glog.Fatalf("启动简历处理消费者失败: %v", err)
	}
	glog.Infof("简历处理消费者已启动, 队列: %s", cfg.RabbitMQ.RawCVQueue)

	cvHandler := handler.NewCVHandler(cfg, storageManager)
	jobHandler := handler.NewJobHandler(cfg, storageManager, matchEngine)
	matchHandler := handler.NewMatchHandler(cfg, storageManager, matchEngine)
	candidateHandler := handler.NewCandidateHandler(cfg, storageManager)

	serverTracer, serverTracerCfg := hertztracing.NewServerTracer()
	h := server.New(
		server.WithHostPorts(cfg.Server.Address),
		server.WithHandleMethodNotAllowed(true),
		serverTracer,
	)
	h.Use(hertztracing.ServerMiddleware(serverTracerCfg))

	router.RegisterRoutes(h, cfg, cvHandler, jobHandler, matchHandler, candidateHandler)
	glog.Info("HTTP路由注册成功")

	glog.Infof("HTTP 服务器启动中，监听地址: %s", cfg.Server.Address)
	go func() {
		if err := h.Run(); err != nil {
			glog.Fatalf("启动HTTP服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	glog.Info("接收到终止信号，正在优雅退出...")

	messageRelay.Stop()
	glog.Info("消息中继服务已停止")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()
	if err := h.Shutdown(shutdownCtx); err != nil {
		glog.Fatalf("服务器关闭失败: %v", err)
	}
	glog.Info("优雅退出完成")
}

// 初始化zerolog全局日志并接管Hertz的hlog输出
func initLogger(cfg *config.Config) {
	appCoreLogger.Init(appCoreLogger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})

	appCoreLogger.Logger = appCoreLogger.Logger.With().
		Str("app", "talent-match-go").
		Logger()

	glog.SetLogger(hertzadapter.From(appCoreLogger.Logger))
	if cfg.Logger.Level == "debug" {
		glog.SetLevel(glog.LevelDebug)
	} else {
		glog.SetLevel(glog.LevelInfo)
	}
}
