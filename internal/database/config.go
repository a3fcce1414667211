package database

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// ⚙️ 连接池配置
// =============================================================================

// 配置边界
const (
	minPoolSize             = 1
	maxPoolSize             = 100
	maxAcquireTimeout       = 300 * time.Second
	minIdleTime             = 10 * time.Second
	minConnectionLifetime   = 60 * time.Second
	minQueriesPerConnection = 1000
)

// 支持的驱动
const (
	DriverPostgres = "postgres"
	DriverPgx      = "pgx"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
	DriverSQLite3  = "sqlite3"
)

var knownDrivers = map[string]struct{}{
	DriverPostgres: {},
	DriverPgx:      {},
	DriverMySQL:    {},
	DriverSQLite:   {},
	DriverSQLite3:  {},
}

// Target 连接目标，DSN 含凭据，String 只输出脱敏后的形式
type Target struct {
	Driver string
	DSN    string
}

var (
	kvPasswordPattern    = regexp.MustCompile(`(?i)(password\s*=\s*)('[^']*'|\S+)`)
	mysqlPasswordPattern = regexp.MustCompile(`^([^:@/]+):([^@]*)@`)
)

// String 返回脱敏后的连接目标
func (t Target) String() string {
	return t.Driver + "://" + redactDSN(t.DSN)
}

func redactDSN(dsn string) string {
	if strings.Contains(dsn, "://") {
		if u, err := url.Parse(dsn); err == nil {
			return strings.TrimPrefix(u.Redacted(), u.Scheme+"://")
		}
		return "<unparseable>"
	}
	if kvPasswordPattern.MatchString(dsn) {
		return kvPasswordPattern.ReplaceAllString(dsn, "${1}xxxxx")
	}
	return mysqlPasswordPattern.ReplaceAllString(dsn, "${1}:xxxxx@")
}

// PoolOptions 构造 PoolConfig 的原始参数
type PoolOptions struct {
	Target                  Target
	MinSize                 int
	MaxSize                 int
	AcquireTimeout          time.Duration
	CommandTimeout          time.Duration
	MaxIdleTime             time.Duration
	MaxConnectionLifetime   time.Duration
	MaxQueriesPerConnection int
	LeakDetectionTimeout    time.Duration
	EnableLeakDetection     bool
}

// DefaultPoolOptions 返回默认连接池参数（不含连接目标）
func DefaultPoolOptions() PoolOptions {
	return PoolOptions{
		MinSize:                 2,
		MaxSize:                 10,
		AcquireTimeout:          30 * time.Second,
		CommandTimeout:          60 * time.Second,
		MaxIdleTime:             60 * time.Second,
		MaxConnectionLifetime:   time.Hour,
		MaxQueriesPerConnection: 50000,
		LeakDetectionTimeout:    30 * time.Second,
		EnableLeakDetection:     true,
	}
}

// PoolConfig 经过校验的不可变连接池配置，只能通过 NewPoolConfig 创建
type PoolConfig struct {
	target                  Target
	minSize                 int
	maxSize                 int
	acquireTimeout          time.Duration
	commandTimeout          time.Duration
	maxIdleTime             time.Duration
	maxConnectionLifetime   time.Duration
	maxQueriesPerConnection int
	leakDetectionTimeout    time.Duration
	enableLeakDetection     bool
}

// NewPoolConfig 校验参数并创建配置，所有违规项一次性返回
func NewPoolConfig(opts PoolOptions) (*PoolConfig, error) {
	var (
		fields      []string
		problems    []string
		suggestions []string
	)
	reject := func(field, problem, suggestion string) {
		fields = append(fields, field)
		problems = append(problems, problem)
		suggestions = append(suggestions, suggestion)
	}

	if opts.MinSize < minPoolSize || opts.MinSize > maxPoolSize {
		reject("min_size",
			fmt.Sprintf("min_size (%d) must be between %d and %d", opts.MinSize, minPoolSize, maxPoolSize),
			fmt.Sprintf("set min_size within %d-%d", minPoolSize, maxPoolSize))
	}
	if opts.MaxSize < minPoolSize || opts.MaxSize > maxPoolSize {
		reject("max_size",
			fmt.Sprintf("max_size (%d) must be between %d and %d", opts.MaxSize, minPoolSize, maxPoolSize),
			fmt.Sprintf("set max_size within %d-%d", minPoolSize, maxPoolSize))
	}
	if opts.MaxSize < opts.MinSize {
		reject("max_size",
			fmt.Sprintf("max_size (%d) must be >= min_size (%d)", opts.MaxSize, opts.MinSize),
			fmt.Sprintf("increase max_size to %d or reduce min_size to %d", opts.MinSize, opts.MaxSize))
	}
	if opts.AcquireTimeout <= 0 || opts.AcquireTimeout >= maxAcquireTimeout {
		reject("acquire_timeout",
			fmt.Sprintf("acquire_timeout (%s) must be greater than 0 and less than %s", opts.AcquireTimeout, maxAcquireTimeout),
			"set acquire_timeout to a positive value such as 30s")
	}
	if opts.CommandTimeout <= 0 {
		reject("command_timeout",
			fmt.Sprintf("command_timeout (%s) must be positive", opts.CommandTimeout),
			"set command_timeout to a positive value such as 60s")
	}
	if opts.MaxIdleTime < minIdleTime {
		reject("max_idle_time",
			fmt.Sprintf("max_idle_time (%s) must be >= %s", opts.MaxIdleTime, minIdleTime),
			fmt.Sprintf("increase max_idle_time to at least %s", minIdleTime))
	}
	if opts.MaxConnectionLifetime < minConnectionLifetime {
		reject("max_connection_lifetime",
			fmt.Sprintf("max_connection_lifetime (%s) must be >= %s", opts.MaxConnectionLifetime, minConnectionLifetime),
			fmt.Sprintf("increase max_connection_lifetime to at least %s", minConnectionLifetime))
	}
	if opts.MaxQueriesPerConnection < minQueriesPerConnection {
		reject("max_queries_per_connection",
			fmt.Sprintf("max_queries_per_connection (%d) must be >= %d", opts.MaxQueriesPerConnection, minQueriesPerConnection),
			fmt.Sprintf("increase max_queries_per_connection to at least %d", minQueriesPerConnection))
	}
	if opts.LeakDetectionTimeout < 0 {
		reject("leak_detection_timeout",
			fmt.Sprintf("leak_detection_timeout (%s) must not be negative", opts.LeakDetectionTimeout),
			"set leak_detection_timeout to 0 to disable or a positive value such as 30s")
	}
	if _, ok := knownDrivers[opts.Target.Driver]; !ok {
		reject("driver",
			fmt.Sprintf("unsupported driver %q", opts.Target.Driver),
			"use one of "+strings.Join(supportedDrivers(), ", "))
	}
	if strings.TrimSpace(opts.Target.DSN) == "" {
		reject("target", "target is required", "set database.url or the host/port/name settings")
	}

	if len(problems) > 0 {
		return nil, newConfigurationError(fields, problems, suggestions)
	}

	return &PoolConfig{
		target:                  opts.Target,
		minSize:                 opts.MinSize,
		maxSize:                 opts.MaxSize,
		acquireTimeout:          opts.AcquireTimeout,
		commandTimeout:          opts.CommandTimeout,
		maxIdleTime:             opts.MaxIdleTime,
		maxConnectionLifetime:   opts.MaxConnectionLifetime,
		maxQueriesPerConnection: opts.MaxQueriesPerConnection,
		leakDetectionTimeout:    opts.LeakDetectionTimeout,
		enableLeakDetection:     opts.EnableLeakDetection,
	}, nil
}

func supportedDrivers() []string {
	names := make([]string, 0, len(knownDrivers))
	for name := range knownDrivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c *PoolConfig) Target() Target {
	return c.target
}

func (c *PoolConfig) MinSize() int {
	return c.minSize
}

func (c *PoolConfig) MaxSize() int {
	return c.maxSize
}

func (c *PoolConfig) AcquireTimeout() time.Duration {
	return c.acquireTimeout
}

func (c *PoolConfig) CommandTimeout() time.Duration {
	return c.commandTimeout
}

func (c *PoolConfig) MaxIdleTime() time.Duration {
	return c.maxIdleTime
}

func (c *PoolConfig) MaxConnectionLifetime() time.Duration {
	return c.maxConnectionLifetime
}

func (c *PoolConfig) MaxQueriesPerConnection() int {
	return c.maxQueriesPerConnection
}

func (c *PoolConfig) LeakDetectionTimeout() time.Duration {
	return c.leakDetectionTimeout
}

func (c *PoolConfig) EnableLeakDetection() bool {
	return c.enableLeakDetection
}

// LeakDetectionActive 泄漏检测开关打开且阈值大于 0
func (c *PoolConfig) LeakDetectionActive() bool {
	return c.enableLeakDetection && c.leakDetectionTimeout > 0
}

// Options 返回可修改的参数副本，用于派生新配置
func (c *PoolConfig) Options() PoolOptions {
	return PoolOptions{
		Target:                  c.target,
		MinSize:                 c.minSize,
		MaxSize:                 c.maxSize,
		AcquireTimeout:          c.acquireTimeout,
		CommandTimeout:          c.commandTimeout,
		MaxIdleTime:             c.maxIdleTime,
		MaxConnectionLifetime:   c.maxConnectionLifetime,
		MaxQueriesPerConnection: c.maxQueriesPerConnection,
		LeakDetectionTimeout:    c.leakDetectionTimeout,
		EnableLeakDetection:     c.enableLeakDetection,
	}
}

// =============================================================================
// 🗺️ 从键值对解析
// =============================================================================

// 键名
const (
	KeyDriver                  = "driver"
	KeyTarget                  = "target"
	KeyMinSize                 = "min_size"
	KeyMaxSize                 = "max_size"
	KeyAcquireTimeout          = "acquire_timeout"
	KeyCommandTimeout          = "command_timeout"
	KeyMaxIdleTime             = "max_idle_time"
	KeyMaxConnectionLifetime   = "max_connection_lifetime"
	KeyMaxQueriesPerConnection = "max_queries_per_connection"
	KeyLeakDetectionTimeout    = "leak_detection_timeout"
	KeyEnableLeakDetection     = "enable_leak_detection"
)

// ParsePoolConfig 将原始键值对解析为 PoolOptions（缺省键取默认值），
// 再交给 NewPoolConfig 校验。键的来源与覆盖优先级由调用方决定。
func ParsePoolConfig(values map[string]string) (*PoolConfig, error) {
	opts := DefaultPoolOptions()

	var (
		fields   []string
		problems []string
		hints    []string
	)
	fail := func(key, raw, want string) {
		fields = append(fields, key)
		problems = append(problems, fmt.Sprintf("%s: cannot parse %q as %s", key, raw, want))
		hints = append(hints, fmt.Sprintf("provide %s as %s", key, want))
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		raw := strings.TrimSpace(values[key])
		switch strings.ToLower(key) {
		case KeyDriver:
			opts.Target.Driver = strings.ToLower(raw)
		case KeyTarget:
			opts.Target.DSN = raw
		case KeyMinSize:
			if !parseIntInto(raw, &opts.MinSize) {
				fail(key, raw, "an integer")
			}
		case KeyMaxSize:
			if !parseIntInto(raw, &opts.MaxSize) {
				fail(key, raw, "an integer")
			}
		case KeyMaxQueriesPerConnection:
			if !parseIntInto(raw, &opts.MaxQueriesPerConnection) {
				fail(key, raw, "an integer")
			}
		case KeyAcquireTimeout:
			if !parseDurationInto(raw, &opts.AcquireTimeout) {
				fail(key, raw, "a duration")
			}
		case KeyCommandTimeout:
			if !parseDurationInto(raw, &opts.CommandTimeout) {
				fail(key, raw, "a duration")
			}
		case KeyMaxIdleTime:
			if !parseDurationInto(raw, &opts.MaxIdleTime) {
				fail(key, raw, "a duration")
			}
		case KeyMaxConnectionLifetime:
			if !parseDurationInto(raw, &opts.MaxConnectionLifetime) {
				fail(key, raw, "a duration")
			}
		case KeyLeakDetectionTimeout:
			if !parseDurationInto(raw, &opts.LeakDetectionTimeout) {
				fail(key, raw, "a duration")
			}
		case KeyEnableLeakDetection:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				fail(key, raw, "a boolean")
				continue
			}
			opts.EnableLeakDetection = b
		default:
			fields = append(fields, key)
			problems = append(problems, fmt.Sprintf("unknown pool setting %q", key))
			hints = append(hints, "remove the unknown setting")
		}
	}

	if len(problems) > 0 {
		return nil, newConfigurationError(fields, problems, hints)
	}
	return NewPoolConfig(opts)
}

func parseIntInto(raw string, dst *int) bool {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return false
	}
	*dst = v
	return true
}

// parseDurationInto 接受 Go duration 字符串或以秒为单位的数字
func parseDurationInto(raw string, dst *time.Duration) bool {
	if d, err := time.ParseDuration(raw); err == nil {
		*dst = d
		return true
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return false
	}
	*dst = time.Duration(secs * float64(time.Second))
	return true
}
