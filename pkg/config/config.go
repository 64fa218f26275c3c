package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DataDir                string        `json:"data_dir"`                 // SQLite数据库文件存放目录
	DBFileName             string        `json:"db_file_name"`             // SQLite数据库文件名
	DBPath                 string        `json:"-"`                        // 完整的数据库文件路径
	TablesDir              string        `json:"tables_dir"`               // mediawiki 模式的转换表目录
	RulesURL               string        `json:"rules_url"`                // 规则组地址
	RulesFile              string        `json:"rules_file"`               // 本地规则组文件，RulesURL 为空时使用
	HTTPTimeout            time.Duration `json:"http_timeout"`             // HTTP 请求超时
	InboxDir               string        `json:"inbox_dir"`                // 监听目录
	OutboxDir              string        `json:"outbox_dir"`               // 转换结果存放目录
	StabilityCheckInterval time.Duration `json:"stability_check_interval"` // 每次检查的间隔
	StabilityQuietDuration time.Duration `json:"stability_quiet_duration"` // 文件在多长时间内没有变化才算稳定
	StabilityMaxWait       time.Duration `json:"stability_max_wait"`       // 最长等待文件稳定的时间
	FallbackEncodings      []string      `json:"fallback_encodings"`       // UTF-8 之外依次尝试的编码
	Listen                 string        `json:"listen"`                   // HTTP 监听地址
	APIToken               string        `json:"-"`                        // HTTP 接口令牌，为空时不校验
	BodyLimit              int64         `json:"body_limit"`               // 请求体大小上限（字节）
	LogLevel               string        `json:"log_level"`
	LogFile                string        `json:"log_file"`
}

const (
	dataDir   = "./data"
	inboxDir  = "./data/inbox"
	outboxDir = "./data/outbox"

	dbFileName = "zhconv.db"
	listen     = ":8080"
	bodyLimit  = 10 << 20
	logLevel   = "info"

	// 文件稳定性检查相关参数
	stabilityCheckInterval = 2 * time.Second  // 每次检查的间隔
	stabilityQuietDuration = 5 * time.Second  // 文件在多长时间内没有变化才算稳定
	stabilityMaxWait       = 10 * time.Minute // 最长等待文件稳定的时间

	httpTimeout = 30 * time.Second
)

// LoadConfig 从环境变量或默认值加载配置
func LoadConfig() (*Config, error) {
	// 尝试加载 .env 文件
	_ = godotenv.Load()

	cfg := &Config{
		DataDir:                os.Getenv("ZHCONV_DATA_DIR"),
		DBFileName:             os.Getenv("ZHCONV_DB_FILE"),
		TablesDir:              os.Getenv("ZHCONV_TABLES_DIR"),
		RulesURL:               os.Getenv("ZHCONV_RULES_URL"),
		RulesFile:              os.Getenv("ZHCONV_RULES_FILE"),
		HTTPTimeout:            parseDurationOrDefault(os.Getenv("ZHCONV_HTTP_TIMEOUT"), httpTimeout),
		InboxDir:               os.Getenv("ZHCONV_INBOX_DIR"),
		OutboxDir:              os.Getenv("ZHCONV_OUTBOX_DIR"),
		StabilityCheckInterval: parseDurationOrDefault(os.Getenv("ZHCONV_STABILITY_CHECK_INTERVAL"), stabilityCheckInterval),
		StabilityQuietDuration: parseDurationOrDefault(os.Getenv("ZHCONV_STABILITY_QUIET_DURATION"), stabilityQuietDuration),
		StabilityMaxWait:       parseDurationOrDefault(os.Getenv("ZHCONV_STABILITY_MAX_WAIT"), stabilityMaxWait),
		FallbackEncodings:      splitList(os.Getenv("ZHCONV_FALLBACK_ENCODINGS")),
		Listen:                 os.Getenv("ZHCONV_LISTEN"),
		APIToken:               os.Getenv("ZHCONV_API_TOKEN"),
		BodyLimit:              parseSizeOrDefault(os.Getenv("ZHCONV_BODY_LIMIT"), bodyLimit),
		LogLevel:               os.Getenv("ZHCONV_LOG_LEVEL"),
		LogFile:                os.Getenv("ZHCONV_LOG_FILE"),
	}

	// 设置默认值
	if cfg.DataDir == "" {
		cfg.DataDir = dataDir
	}
	if cfg.DBFileName == "" {
		cfg.DBFileName = dbFileName
	}
	if cfg.TablesDir == "" {
		cfg.TablesDir = filepath.Join(cfg.DataDir, "tables")
	}
	if cfg.InboxDir == "" {
		cfg.InboxDir = inboxDir
	}
	if cfg.OutboxDir == "" {
		cfg.OutboxDir = outboxDir
	}
	if cfg.Listen == "" {
		cfg.Listen = listen
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = logLevel
	}
	cfg.DBPath = filepath.Join(cfg.DataDir, cfg.DBFileName)
	// 确认目录存在
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", cfg.DataDir, err)
	}
	return cfg, nil
}

// SetDataDir 切换数据目录并更新数据库位置
func (c *Config) SetDataDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory %s: %w", dir, err)
	}
	c.DataDir = dir
	c.DBPath = filepath.Join(dir, c.DBFileName)
	return nil
}

// EnsureWatchDirs 创建收件箱与发件箱目录，只有 watch 命令需要
func (c *Config) EnsureWatchDirs() error {
	if err := os.MkdirAll(c.InboxDir, 0755); err != nil {
		return fmt.Errorf("failed to create inbox directory %s: %w", c.InboxDir, err)
	}
	if err := os.MkdirAll(c.OutboxDir, 0755); err != nil {
		return fmt.Errorf("failed to create outbox directory %s: %w", c.OutboxDir, err)
	}
	return nil
}

func parseDurationOrDefault(s string, defaultValue time.Duration) time.Duration {
	if s == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		log.Printf("Warning: Could not parse duration '%s', using default '%v'. Error: %v", s, defaultValue, err)
		return defaultValue
	}
	return d
}

func parseSizeOrDefault(s string, defaultValue int64) int64 {
	if s == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		log.Printf("Warning: Could not parse size '%s', using default '%d'. Error: %v", s, defaultValue, err)
		return defaultValue
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
