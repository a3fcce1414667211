// =============================================================================
// 📦 dbpool 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/dbpool/internal/database"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Database:  DefaultDatabaseConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置，pool 段留空即使用连接池默认值
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          database.DriverPostgres,
		Host:            "localhost",
		Port:            5432,
		User:            "dbpool",
		Password:        "",
		Name:            "dbpool",
		SSLMode:         "disable",
		Pool:            map[string]string{},
		ShutdownTimeout: database.DefaultShutdownTimeout,
		Recovery:        DefaultRecoveryConfig(),
	}
}

// DefaultRecoveryConfig 返回默认重连配置
func DefaultRecoveryConfig() RecoveryConfig {
	policy := database.DefaultRecoveryPolicy()
	return RecoveryConfig{
		Enabled:        true,
		CheckInterval:  10 * time.Second,
		MaxAttempts:    policy.MaxAttempts,
		InitialBackoff: policy.InitialBackoff,
		MaxBackoff:     policy.MaxBackoff,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "dbpool",
		SampleRate:   0.1,
	}
}
