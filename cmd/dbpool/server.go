package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/dbpool/api/handlers"
	"github.com/BaSui01/dbpool/config"
	"github.com/BaSui01/dbpool/internal/database"
	"github.com/BaSui01/dbpool/internal/metrics"
	"github.com/BaSui01/dbpool/internal/server"
	"github.com/BaSui01/dbpool/internal/telemetry"
)

const (
	metricsNamespace = "dbpool"
	primaryPoolName  = "primary"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 持有连接池管理器及其运维端点
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	telemetry *telemetry.Providers
	poolOpts  []database.PoolManagerOption

	pool       *database.PoolManager
	supervisor *database.Supervisor

	registry         *prometheus.Registry
	metricsCollector *metrics.Collector
	healthHandler    *handlers.HealthHandler

	httpManager    *server.Manager
	metricsManager *server.Manager

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建服务器实例，poolOpts 追加到连接池管理器选项之后
func NewServer(cfg *config.Config, logger *zap.Logger, providers *telemetry.Providers, poolOpts ...database.PoolManagerOption) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		telemetry: providers,
		poolOpts:  poolOpts,
		registry:  prometheus.NewRegistry(),
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 初始化连接池并启动所有服务。连接池初始化失败时直接返回错误
func (s *Server) Start(ctx context.Context) error {
	// 1. 指标
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metricsCollector = metrics.NewCollectorWithRegistry(s.registry, metricsNamespace, s.logger)

	// 2. 连接池
	if err := s.initPool(ctx); err != nil {
		return fmt.Errorf("failed to init database pool: %w", err)
	}

	// 3. 后台巡检与自动重连
	if err := s.startSupervisor(ctx); err != nil {
		return fmt.Errorf("failed to start pool supervisor: %w", err)
	}

	// 4. Handlers
	s.initHandlers()

	// 5. HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 6. Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("pool_state", string(s.pool.State())),
	)
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

func (s *Server) initPool(ctx context.Context) error {
	poolCfg, err := s.cfg.Database.PoolConfig()
	if err != nil {
		return err
	}

	opts := []database.PoolManagerOption{
		database.WithTracerProvider(s.telemetry.TracerProvider()),
		database.WithMeterProvider(s.telemetry.MeterProvider()),
		database.WithStateObserver(s.metricsCollector.RecordStateTransition),
	}
	s.pool = database.NewPoolManager(s.logger, append(opts, s.poolOpts...)...)

	if err := s.pool.Initialize(ctx, poolCfg); err != nil {
		return err
	}

	return s.registry.Register(metrics.NewPoolCollector(metricsNamespace, primaryPoolName, s.pool, s.logger))
}

func (s *Server) startSupervisor(ctx context.Context) error {
	rc := s.cfg.Database.Recovery
	if !rc.Enabled {
		s.logger.Info("pool recovery disabled")
		return nil
	}

	s.supervisor = database.NewSupervisor(s.pool, rc.CheckInterval, rc.Policy(), s.logger).
		OnRecovery(s.metricsCollector.RecordRecovery)
	// 与请求无关，生命周期由 Shutdown 控制
	return s.supervisor.Start(context.WithoutCancel(ctx))
}

func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.pool, s.metricsCollector, s.logger)
	s.healthHandler.RegisterCheck(handlers.NewDatabaseHealthCheck("database", s.pingDatabase))
}

// pingDatabase 借出一个连接执行校验查询
func (s *Server) pingDatabase(ctx context.Context) error {
	return s.pool.WithConn(ctx, func(lease *database.Lease) error {
		return database.ValidateConnection(ctx, lease.Conn(), s.pool.Config().CommandTimeout())
	})
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// httpHandler 组装健康检查路由与中间件链
func (s *Server) httpHandler(rateLimiterCtx context.Context) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler.HandleHealth)
	mux.HandleFunc("GET /healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("GET /ready", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("GET /stats", s.healthHandler.HandleStats)
	mux.HandleFunc("GET /version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(s.telemetry.TracerProvider()),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		RateLimiter(rateLimiterCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
	)
}

func (s *Server) startHTTPServer() error {
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	serverConfig := server.Config{
		Name:            "health",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
		TLSCertFile:     s.cfg.Server.TLSCertFile,
		TLSKeyFile:      s.cfg.Server.TLSKeyFile,
	}

	s.httpManager = server.NewManager(s.httpHandler(rateLimiterCtx), serverConfig, s.logger)
	return s.httpManager.Start()
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

func (s *Server) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		Registry:          s.registry,
		EnableOpenMetrics: true,
	}))
	return mux
}

// startMetricsServer metrics_port 为 0 时不启动
func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsPort == 0 {
		s.logger.Info("metrics server disabled")
		return nil
	}

	serverConfig := server.Config{
		Name:            "metrics",
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(s.metricsHandler(), serverConfig, s.logger)
	return s.metricsManager.Start()
}

// HTTPAddr 健康检查服务实际监听地址
func (s *Server) HTTPAddr() string {
	if s.httpManager == nil {
		return ""
	}
	return s.httpManager.ListenAddr()
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// Wait 阻塞直到 ctx 结束或任一 HTTP 服务器异常退出
func (s *Server) Wait(ctx context.Context) error {
	var httpErrs, metricsErrs <-chan error
	if s.httpManager != nil {
		httpErrs = s.httpManager.Errors()
	}
	if s.metricsManager != nil {
		metricsErrs = s.metricsManager.Errors()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-httpErrs:
		return fmt.Errorf("health server: %w", err)
	case err := <-metricsErrs:
		return fmt.Errorf("metrics server: %w", err)
	}
}

// Shutdown 按顺序关闭：HTTP 服务器 → Supervisor → 连接池。可在 Start 失败后调用
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Starting graceful shutdown...")

	var errs []error

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("health server: %w", err))
		}
	}
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server: %w", err))
		}
	}

	// Supervisor 先停，避免关闭期间触发恢复
	if s.supervisor != nil {
		s.supervisor.Stop()
	}

	if s.pool != nil {
		poolCtx, cancel := context.WithTimeout(ctx, s.cfg.Database.ShutdownTimeout)
		defer cancel()
		if err := s.pool.Shutdown(poolCtx); err != nil {
			errs = append(errs, fmt.Errorf("database pool: %w", err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		s.logger.Error("Graceful shutdown finished with errors", zap.Error(err))
		return err
	}
	s.logger.Info("Graceful shutdown completed")
	return nil
}
