package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

const DefaultPath = "config/config.yaml"

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	MySQL struct {
		DSN string `yaml:"dsn"`
	} `yaml:"mysql"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
	} `yaml:"redis"`
	MinIO      MinIOConfig      `yaml:"minio"`
	Log        LogConfig        `yaml:"log"`
	Generation GenerationConfig `yaml:"generation"`
	Providers  []ProviderConfig `yaml:"providers"`
}

type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
	Region    string `yaml:"region"`
	// Domain 为空时落盘地址为 minio:// 引用，否则拼接公开访问地址
	Domain string `yaml:"domain"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // json 或 text
	Output     string `yaml:"output"` // stdout 或 file
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// GenerationConfig 控制分镜帧生成的调度行为
type GenerationConfig struct {
	// LiveMode 为 false 时拒绝任何付费生成请求
	LiveMode             bool   `yaml:"live_mode"`
	HTTPTimeoutSeconds   int    `yaml:"http_timeout_seconds"`
	PollIntervalSeconds  int    `yaml:"poll_interval_seconds"`
	MaxJobRuntimeSeconds int    `yaml:"max_job_runtime_seconds"`
	PollConcurrency      int    `yaml:"poll_concurrency"`
	PersistenceRequired  bool   `yaml:"persistence_required"`
	DefaultProvider      string `yaml:"default_provider"`
	SignedURLTTLSeconds  int    `yaml:"signed_url_ttl_seconds"`
	QueueMaxRetry        int    `yaml:"queue_max_retry"`
	QueueConcurrency     int    `yaml:"queue_concurrency"`
	SweepCron            string `yaml:"sweep_cron"`
}

type ProviderConfig struct {
	ID         string `yaml:"id"`
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	CreatePath string `yaml:"create_path"`
	StatusPath string `yaml:"status_path"`
}

func (g GenerationConfig) HTTPTimeout() time.Duration {
	return time.Duration(g.HTTPTimeoutSeconds) * time.Second
}

func (g GenerationConfig) PollInterval() time.Duration {
	return time.Duration(g.PollIntervalSeconds) * time.Second
}

func (g GenerationConfig) MaxJobRuntime() time.Duration {
	return time.Duration(g.MaxJobRuntimeSeconds) * time.Second
}

func (g GenerationConfig) SignedURLTTL() time.Duration {
	return time.Duration(g.SignedURLTTLSeconds) * time.Second
}

var AppConfig *Config

// InitConfig 读取配置到全局 AppConfig，失败直接退出
func InitConfig(path string) {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}
	AppConfig = cfg
}

// Load 读取 YAML 配置，补齐默认值并校验
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	cfg := &Config{}
	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = ":8080"
	}
	if cfg.MinIO.Region == "" {
		cfg.MinIO.Region = "us-east-1"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Log.Output == "" {
		cfg.Log.Output = "stdout"
	}
	if cfg.Log.File == "" {
		cfg.Log.File = "data/logs/app.log"
	}
	if cfg.Log.MaxSize == 0 {
		cfg.Log.MaxSize = 100
	}
	if cfg.Log.MaxBackups == 0 {
		cfg.Log.MaxBackups = 3
	}
	if cfg.Log.MaxAge == 0 {
		cfg.Log.MaxAge = 28
	}

	g := &cfg.Generation
	if g.HTTPTimeoutSeconds <= 0 {
		g.HTTPTimeoutSeconds = 60
	}
	if g.PollIntervalSeconds <= 0 {
		g.PollIntervalSeconds = 5
	}
	if g.MaxJobRuntimeSeconds <= 0 {
		g.MaxJobRuntimeSeconds = 120
	}
	if g.PollConcurrency <= 0 {
		g.PollConcurrency = 4
	}
	if g.SignedURLTTLSeconds <= 0 {
		g.SignedURLTTLSeconds = 3600
	}
	if g.QueueMaxRetry <= 0 {
		g.QueueMaxRetry = 5
	}
	if g.QueueConcurrency <= 0 {
		g.QueueConcurrency = 5
	}
	if g.SweepCron == "" {
		g.SweepCron = "@every 1m"
	}
	if g.DefaultProvider == "" && len(cfg.Providers) > 0 {
		g.DefaultProvider = cfg.Providers[0].ID
	}
	for i := range cfg.Providers {
		p := &cfg.Providers[i]
		if p.CreatePath == "" {
			p.CreatePath = "/api/v1/jobs/createTask"
		}
		if p.StatusPath == "" {
			p.StatusPath = "/api/v1/jobs/recordInfo"
		}
	}
}

func validate(cfg *Config) error {
	seen := make(map[string]bool, len(cfg.Providers))
	for _, p := range cfg.Providers {
		if p.ID == "" {
			return fmt.Errorf("provider id is required")
		}
		if p.BaseURL == "" {
			return fmt.Errorf("provider %s: base_url is required", p.ID)
		}
		if seen[p.ID] {
			return fmt.Errorf("provider %s: duplicate id", p.ID)
		}
		seen[p.ID] = true
	}
	if cfg.Generation.DefaultProvider != "" && len(cfg.Providers) > 0 && !seen[cfg.Generation.DefaultProvider] {
		return fmt.Errorf("default provider %s is not configured", cfg.Generation.DefaultProvider)
	}
	return nil
}
