package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zhouzirui/emotrack/backend/internal/analysis/emotion"
	"github.com/zhouzirui/emotrack/backend/internal/model/tracking"
	"github.com/zhouzirui/emotrack/backend/internal/service/capture"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Capture CaptureConfig
	Sync    SyncConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	storage, err := loadStorageConfig()
	if err != nil {
		return nil, err
	}

	captureCfg, err := loadCaptureConfig()
	if err != nil {
		return nil, err
	}

	syncCfg, err := loadSyncConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Storage: storage, Capture: captureCfg, Sync: syncCfg}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
	// ListLimit 是 GET /sessions 未指定 limit 时返回的条数。
	ListLimit int
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	limit, err := parseIntEnv("SESSION_LIST_LIMIT", 50)
	if err != nil {
		return ServerConfig{}, err
	}
	if limit < 1 {
		return ServerConfig{}, fmt.Errorf("invalid SESSION_LIST_LIMIT value: %d", limit)
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, ListLimit: limit}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, ListLimit: limit}, nil
}

// StorageDriver 选择会话的持久化方式。
type StorageDriver string

const (
	DriverSQLite StorageDriver = "sqlite"
	DriverKV     StorageDriver = "kv"
	DriverFile   StorageDriver = "file"
	DriverMemory StorageDriver = "memory"
)

// StorageConfig 描述会话存储配置。
type StorageConfig struct {
	Driver StorageDriver
	// Path 对 sqlite/kv 是数据库文件，对 file 是目录。
	Path string
	// Key 是 kv/file 驱动下整个集合所在的命名空间。
	Key string
}

func loadStorageConfig() (StorageConfig, error) {
	driver := StorageDriver(strings.ToLower(getEnvOrDefault("STORAGE_DRIVER", string(DriverSQLite))))

	var defaultPath string
	switch driver {
	case DriverSQLite:
		defaultPath = "data/sessions.db"
	case DriverKV:
		defaultPath = "data/kv.db"
	case DriverFile:
		defaultPath = "data"
	case DriverMemory:
	default:
		return StorageConfig{}, fmt.Errorf("invalid STORAGE_DRIVER value: %q", driver)
	}

	return StorageConfig{
		Driver: driver,
		Path:   getEnvOrDefault("STORAGE_PATH", defaultPath),
		Key:    getEnvOrDefault("STORAGE_KEY", "emotion_tracking_data"),
	}, nil
}

// CaptureConfig 描述采集管道配置。
type CaptureConfig struct {
	Convention      emotion.Convention
	QueueSize       int
	Backpressure    capture.Backpressure
	MaxActive       int
	CloseOnShutdown bool
}

// Hub 把配置转换为采集中心的参数。
func (c CaptureConfig) Hub() capture.Config {
	return capture.Config{
		MaxActive: c.MaxActive,
		Pipeline: capture.Options{
			QueueSize:       c.QueueSize,
			Backpressure:    c.Backpressure,
			CloseOnShutdown: c.CloseOnShutdown,
			Normalizer:      tracking.NewNormalizer(c.Convention),
		},
	}
}

func loadCaptureConfig() (CaptureConfig, error) {
	convention, ok := emotion.ParseConvention(getEnvOrDefault("SCORE_CONVENTION", string(emotion.ConventionPolarity)))
	if !ok {
		return CaptureConfig{}, fmt.Errorf("invalid SCORE_CONVENTION value: %q", os.Getenv("SCORE_CONVENTION"))
	}

	queueSize, err := parseIntEnv("CAPTURE_QUEUE_SIZE", 64)
	if err != nil {
		return CaptureConfig{}, err
	}
	if queueSize < 1 {
		return CaptureConfig{}, fmt.Errorf("invalid CAPTURE_QUEUE_SIZE value: %d", queueSize)
	}

	policy, err := capture.ParseBackpressure(os.Getenv("CAPTURE_BACKPRESSURE"))
	if err != nil {
		return CaptureConfig{}, fmt.Errorf("invalid CAPTURE_BACKPRESSURE value: %w", err)
	}

	maxActive, err := parseIntEnv("CAPTURE_MAX_ACTIVE", 0)
	if err != nil {
		return CaptureConfig{}, err
	}

	// 断开连接视为一次显式结束，与浏览器关闭页面时保存会话一致。
	closeOnDisconnect, err := parseBoolEnv("CAPTURE_CLOSE_ON_DISCONNECT", true)
	if err != nil {
		return CaptureConfig{}, err
	}

	return CaptureConfig{
		Convention:      convention,
		QueueSize:       queueSize,
		Backpressure:    policy,
		MaxActive:       maxActive,
		CloseOnShutdown: closeOnDisconnect,
	}, nil
}

// SyncConfig 描述远端镜像配置。
type SyncConfig struct {
	URL     string
	Timeout time.Duration
}

// Enabled 表示是否配置了远端地址。
func (c SyncConfig) Enabled() bool {
	return c.URL != ""
}

func loadSyncConfig() (SyncConfig, error) {
	timeout, err := parseOptionalFloatEnv("SYNC_TIMEOUT")
	if err != nil {
		return SyncConfig{}, err
	}
	seconds := 10.0
	if timeout != nil {
		seconds = *timeout
	}
	if seconds <= 0 {
		return SyncConfig{}, fmt.Errorf("invalid SYNC_TIMEOUT value: %v", seconds)
	}

	return SyncConfig{
		URL:     strings.TrimSpace(os.Getenv("SYNC_URL")),
		Timeout: time.Duration(seconds * float64(time.Second)),
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseIntEnv(key string, defaultValue int) (int, error) {
	val, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if val == nil {
		return defaultValue, nil
	}
	return *val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
