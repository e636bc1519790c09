package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// AppConfig 全局配置。启动时统一加载，再按模块提取使用。
type AppConfig struct {
	LogLevel  string         `json:"log_level"`
	LogFormat string         `json:"log_format"`
	Server    ServerConfig   `json:"server"`
	Database  DatabaseConfig `json:"database"`
	Redis     RedisConfig    `json:"redis"`
	CTS       CTSConfig      `json:"cts"`
	Searcher  SearcherConfig `json:"searcher"`
}

type ServerConfig struct {
	Host                string `json:"host"`
	Port                int    `json:"port"`
	ReadTimeoutSeconds  int    `json:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `json:"write_timeout_seconds"`
}

// DatabaseConfig 持久化后端配置。Driver 决定使用哪个实现。
type DatabaseConfig struct {
	Driver                 string `json:"driver"` // postgres | mongo
	URL                    string `json:"url"`
	MaxOpenConns           int    `json:"max_open_conns"`
	MaxIdleConns           int    `json:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `json:"conn_max_lifetime_seconds"`
}

type RedisConfig struct {
	URL             string `json:"url"`
	CacheTTLSeconds int    `json:"cache_ttl_seconds"`
}

// CTSConfig 本 CTS 实例的标识与上传限制。
// ID 作为表/集合名前缀，多个 CTS 可共用同一个库。
type CTSConfig struct {
	ID          string `json:"id"`
	UploadFiles bool   `json:"upload_files"`
	TempDir     string `json:"temp_dir"`
	MaxUploadMB int    `json:"max_upload_mb"`
}

type SearcherConfig struct {
	URL            string `json:"url"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// Default 返回默认配置。
func Default() *AppConfig {
	return &AppConfig{
		LogLevel:  "info",
		LogFormat: "text",
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                8080,
			ReadTimeoutSeconds:  30,
			WriteTimeoutSeconds: 60,
		},
		Database: DatabaseConfig{
			Driver:                 "postgres",
			MaxOpenConns:           25,
			MaxIdleConns:           5,
			ConnMaxLifetimeSeconds: 300,
		},
		Redis: RedisConfig{
			CacheTTLSeconds: 300,
		},
		CTS: CTSConfig{
			ID:          "cts",
			UploadFiles: true,
			MaxUploadMB: 64,
		},
		Searcher: SearcherConfig{
			TimeoutSeconds: 300,
		},
	}
}

// Load 加载全局配置：默认值 -> 配置文件 -> 环境变量。
// 配置文件路径通过 APP_CONFIG_FILE 指定（JSON）。
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		// .env 非必需，忽略错误
	}

	cfg := Default()

	if path := strings.TrimSpace(os.Getenv("APP_CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read APP_CONFIG_FILE %q failed: %w", path, err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse APP_CONFIG_FILE %q failed: %w", path, err)
	}
	return nil
}

func (c *AppConfig) applyEnv() {
	applyString("LOG_LEVEL", &c.LogLevel)
	applyString("LOG_FORMAT", &c.LogFormat)

	applyString("HOST", &c.Server.Host)
	applyInt("PORT", &c.Server.Port)
	applyInt("SERVER_READ_TIMEOUT", &c.Server.ReadTimeoutSeconds)
	applyInt("SERVER_WRITE_TIMEOUT", &c.Server.WriteTimeoutSeconds)

	applyString("DATABASE_DRIVER", &c.Database.Driver)
	applyString("DATABASE_URL", &c.Database.URL)
	applyInt("DATABASE_MAX_OPEN_CONNS", &c.Database.MaxOpenConns)
	applyInt("DATABASE_MAX_IDLE_CONNS", &c.Database.MaxIdleConns)
	applyInt("DATABASE_CONN_MAX_LIFETIME", &c.Database.ConnMaxLifetimeSeconds)

	applyString("REDIS_URL", &c.Redis.URL)
	applyInt("REDIS_CACHE_TTL", &c.Redis.CacheTTLSeconds)

	applyString("CTS_ID", &c.CTS.ID)
	applyBool("CTS_UPLOAD_FILES", &c.CTS.UploadFiles)
	applyString("CTS_TEMP_DIR", &c.CTS.TempDir)
	applyInt("CTS_MAX_UPLOAD_MB", &c.CTS.MaxUploadMB)

	applyString("SEARCHER_URL", &c.Searcher.URL)
	applyInt("SEARCHER_TIMEOUT", &c.Searcher.TimeoutSeconds)
}

func (c *AppConfig) validate() error {
	driver := strings.ToLower(strings.TrimSpace(c.Database.Driver))
	if driver != "postgres" && driver != "mongo" {
		return fmt.Errorf("DATABASE_DRIVER must be postgres or mongo, got %q", c.Database.Driver)
	}
	c.Database.Driver = driver

	if strings.TrimSpace(c.Database.URL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if strings.TrimSpace(c.CTS.ID) == "" {
		return fmt.Errorf("CTS_ID is required")
	}
	if strings.TrimSpace(c.Searcher.URL) == "" {
		return fmt.Errorf("SEARCHER_URL is required")
	}
	return nil
}

func applyString(key string, target *string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func applyInt(key string, target *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*target = n
		}
	}
}

func applyBool(key string, target *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}
