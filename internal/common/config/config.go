package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Config 应用配置
type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Provider ProviderConfig `json:"provider"`
	Sync     SyncConfig     `json:"sync"`
	Consul   ConsulConfig   `json:"consul"`
	Jaeger   JaegerConfig   `json:"jaeger"`
	Log      LogConfig      `json:"log"`
}

// ServerConfig 服务配置
type ServerConfig struct {
	Name     string `json:"name"`      // 服务名称
	Host     string `json:"host"`      // 服务地址
	GRPCPort int    `json:"grpc_port"` // gRPC 端口（健康检查用）
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver   string `json:"driver"`   // 数据库驱动
	Host     string `json:"host"`     // 数据库地址
	Port     int    `json:"port"`     // 数据库端口
	User     string `json:"user"`     // 用户名
	Password string `json:"password"` // 密码
	Database string `json:"database"` // 数据库名
	MaxIdle  int    `json:"max_idle"` // 最大空闲连接
	MaxOpen  int    `json:"max_open"` // 最大打开连接
}

// ProviderConfig 车联网数据供应商 API 配置
type ProviderConfig struct {
	BaseURL        string `json:"base_url"`      // API 根地址
	ClientID       string `json:"client_id"`     // OAuth client id
	ClientSecret   string `json:"client_secret"` // OAuth client secret
	FleetID        string `json:"fleet_id"`      // 车队 ID
	TimeoutSeconds int    `json:"timeout_seconds"`
	// 令牌桶限流：每秒补充速率与桶容量，避免触发供应商限流
	RateLimitPerSec int64 `json:"rate_limit_per_sec"`
	RateBurst       int64 `json:"rate_burst"`
}

// SyncConfig 同步任务配置
type SyncConfig struct {
	DaysToSync      int `json:"days_to_sync"`     // 回溯天数
	IntervalMinutes int `json:"interval_minutes"` // 定时同步间隔（0 表示不定时）
	Concurrency     int `json:"concurrency"`      // 按车并发处理的 worker 数
}

// ConsulConfig Consul 配置
type ConsulConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// JaegerConfig Jaeger 配置
type JaegerConfig struct {
	Endpoint string  `json:"endpoint"`
	Sampler  float64 `json:"sampler"` // 采样率 0.0-1.0
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
	Output string `json:"output"` // stdout, file
	Path   string `json:"path"`   // 日志文件路径
}

var (
	globalConfig *Config
	configOnce   sync.Once
)

// LoadConfig 加载配置（文件不存在时退回默认配置）
func LoadConfig(configPath string) (*Config, error) {
	var err error
	configOnce.Do(func() {
		globalConfig = &Config{}
		if _, err = os.Stat(configPath); os.IsNotExist(err) {
			logrus.Warnf("Config file not found: %s, using default config", configPath)
			globalConfig = defaultConfig()
			err = nil
			return
		}

		data, readErr := os.ReadFile(configPath)
		if readErr != nil {
			err = fmt.Errorf("failed to read config file: %w", readErr)
			return
		}

		if unmarshalErr := json.Unmarshal(data, globalConfig); unmarshalErr != nil {
			err = fmt.Errorf("failed to parse config file: %w", unmarshalErr)
			return
		}
		applyDefaults(globalConfig)
	})

	if err != nil {
		return nil, err
	}

	return globalConfig, nil
}

// GetConfig 获取全局配置
func GetConfig() *Config {
	if globalConfig == nil {
		return defaultConfig()
	}
	return globalConfig
}

// applyDefaults 对缺省字段兜底，避免 0 值把同步跑废
func applyDefaults(c *Config) {
	if c.Provider.TimeoutSeconds <= 0 {
		c.Provider.TimeoutSeconds = 30
	}
	if c.Provider.RateLimitPerSec <= 0 {
		c.Provider.RateLimitPerSec = 10
	}
	if c.Provider.RateBurst <= 0 {
		c.Provider.RateBurst = c.Provider.RateLimitPerSec
	}
	if c.Sync.DaysToSync <= 0 {
		c.Sync.DaysToSync = 7
	}
	if c.Sync.Concurrency <= 0 {
		c.Sync.Concurrency = 4
	}
}

// defaultConfig 默认配置（开发环境）
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:     "fleet-sync-service",
			Host:     "0.0.0.0",
			GRPCPort: 50051,
		},
		Database: DatabaseConfig{
			Driver:   "mysql",
			Host:     "localhost",
			Port:     3306,
			User:     "root",
			Password: "root",
			Database: "fleetlinksync",
			MaxIdle:  10,
			MaxOpen:  100,
		},
		Provider: ProviderConfig{
			BaseURL:         "https://api.fordpro.com",
			FleetID:         "default-fleet",
			TimeoutSeconds:  30,
			RateLimitPerSec: 10,
			RateBurst:       10,
		},
		Sync: SyncConfig{
			DaysToSync:      7,
			IntervalMinutes: 60,
			Concurrency:     4,
		},
		Consul: ConsulConfig{
			Host: "localhost",
			Port: 8500,
		},
		Jaeger: JaegerConfig{
			Endpoint: "http://localhost:14268/api/traces",
			Sampler:  1.0,
		},
		Log: LogConfig{
			Level:  "debug",
			Format: "text",
			Output: "stdout",
			Path:   "logs/app.log",
		},
	}
}
