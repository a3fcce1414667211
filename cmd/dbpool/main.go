// =============================================================================
// dbpool 主入口
// =============================================================================
// 数据库连接池服务：连接池生命周期、健康检查端点、Prometheus 指标
//
// 使用方法:
//
//	dbpool serve                       # 启动服务
//	dbpool serve --config config.yaml  # 指定配置文件
//	dbpool probe --config config.yaml  # 初始化连接池并输出一次健康报告
//	dbpool health                      # 检查运行中服务的 /health
//	dbpool version                     # 显示版本信息
// =============================================================================

// @title dbpool API
// @version 1.0.0
// @description Database connection pool health and statistics endpoints.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/dbpool/config"
	"github.com/BaSui01/dbpool/internal/database"
	"github.com/BaSui01/dbpool/internal/telemetry"
	"github.com/BaSui01/dbpool/internal/tlsutil"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "probe":
		runProbe(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// loadConfig 加载并校验配置，失败直接退出
func loadConfig(name string, args []string) *config.Config {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) {
	cfg := loadConfig("serve", args)

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting dbpool",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
		zap.String("driver", cfg.Database.Driver),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger, telemetry.DBSystemAttribute(cfg.Database.Driver))
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProviders.Shutdown(ctx); err != nil {
			logger.Warn("telemetry shutdown error", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := NewServer(cfg, logger, otelProviders)
	if err := srv.Start(ctx); err != nil {
		_ = srv.Shutdown(context.Background())
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	if err := srv.Wait(ctx); err != nil {
		logger.Error("Server failed", zap.Error(err))
	}
	stop()

	if err := srv.Shutdown(context.Background()); err != nil {
		logger.Error("Shutdown error", zap.Error(err))
	}

	logger.Info("dbpool stopped")
}

// =============================================================================
// 🔍 probe 命令
// =============================================================================

func runProbe(args []string) {
	cfg := loadConfig("probe", args)

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	status, err := probe(ctx, cfg, logger, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Probe failed: %v\n", err)
		os.Exit(1)
	}
	if status == database.HealthUnhealthy {
		os.Exit(1)
	}
}

// probe 初始化连接池、输出一次健康报告后关闭
func probe(ctx context.Context, cfg *config.Config, logger *zap.Logger, out io.Writer, opts ...database.PoolManagerOption) (database.HealthStatus, error) {
	poolCfg, err := cfg.Database.PoolConfig()
	if err != nil {
		return "", err
	}

	pool := database.NewPoolManager(logger, opts...)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Database.ShutdownTimeout)
		defer cancel()
		if err := pool.Shutdown(shutdownCtx); err != nil {
			logger.Warn("pool shutdown error", zap.Error(err))
		}
	}()

	if err := pool.Initialize(ctx, poolCfg); err != nil {
		return "", err
	}

	report, err := pool.HealthCheck(ctx)
	if err != nil {
		return "", err
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return "", fmt.Errorf("encode health report: %w", err)
	}
	return report.Status, nil
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	_ = fs.Parse(args)

	if err := checkHealth(*addr, tlsutil.SecureHTTPClient(5*time.Second)); err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("OK")
}

// checkHealth 请求 addr/health，只有 200 视为健康
func checkHealth(addr string, client *http.Client) error {
	resp, err := client.Get(addr + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("dbpool %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`dbpool - Database connection pool service

Usage:
  dbpool <command> [options]

Commands:
  serve     Start the pool with health and metrics endpoints
  probe     Initialize the pool once and print its health report
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve' and 'probe':
  --config <path>   Path to configuration file (YAML)

Environment:
  DATABASE_URL                 Target when database.url is not set
  DBPOOL_DATABASE_POOL_<KEY>   Override a pool parameter, e.g. DBPOOL_DATABASE_POOL_MAX_SIZE=20

Examples:
  dbpool serve
  dbpool serve --config /etc/dbpool/config.yaml
  dbpool probe --config /etc/dbpool/config.yaml
  dbpool health --addr http://localhost:8080
  dbpool version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputPaths,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger
}
