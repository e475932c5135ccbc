package property

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DefaultLogDir is the default directory for log files.
	DefaultLogDir = "logs"
	// DefaultLocalServerAddr is where agentd listens for the bridge.
	DefaultLocalServerAddr = "127.0.0.1:8787"
	// DefaultAnkiConnectURL is the loopback AnkiConnect endpoint.
	DefaultAnkiConnectURL = "http://127.0.0.1:8765"
	// DefaultAnkiConnectVersion is the AnkiConnect API version every action is sent with.
	DefaultAnkiConnectVersion = 6
	DefaultSettingsFile       = "settings.json"
	DefaultRateBurst          = 20
)

type Config struct {
	LogDir             string  `json:"log_dir"`
	ServerAddr         string  `json:"server_addr"`
	Token              string  `json:"token"`
	AnkiConnectURL     string  `json:"ankiconnect_url"`
	AnkiConnectVersion int     `json:"ankiconnect_version"`
	RateLimit          float64 `json:"rate_limit"` // 每个连接每秒请求数，0 = 不限
	RateBurst          int     `json:"rate_burst"`
	SettingsPath       string  `json:"settings_path"`
}

// DefaultConfig 返回一份填好默认值的新配置
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.fillDefaults()
	return cfg
}

func (c *Config) fillDefaults() {
	if c.LogDir == "" {
		c.LogDir = DefaultLogDir
	}
	if c.ServerAddr == "" {
		c.ServerAddr = DefaultLocalServerAddr
	}
	if c.AnkiConnectURL == "" {
		c.AnkiConnectURL = DefaultAnkiConnectURL
	}
	if c.AnkiConnectVersion <= 0 {
		c.AnkiConnectVersion = DefaultAnkiConnectVersion
	}
	if c.RateBurst <= 0 {
		c.RateBurst = DefaultRateBurst
	}
	if c.SettingsPath == "" {
		c.SettingsPath = DefaultSettingsPath()
	}
}

// LogFile 返回 agentd 的日志文件路径
func (c *Config) LogFile() string {
	return filepath.Join(c.LogDir, "agent.log")
}

// LoadConfig 从指定json文件加载配置；path 为空时直接返回默认配置
func LoadConfig(filePath string) (*Config, error) {
	if strings.TrimSpace(filePath) == "" {
		return DefaultConfig(), nil
	}
	jsonFile, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer jsonFile.Close()
	var config Config
	decoder := json.NewDecoder(jsonFile)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	if config.RateLimit < 0 {
		return nil, fmt.Errorf("rate_limit must not be negative, got %v", config.RateLimit)
	}
	config.fillDefaults()
	return &config, nil
}

// DefaultSettingsPath 放在用户配置目录下，拿不到时退回当前目录
func DefaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil || dir == "" {
		return DefaultSettingsFile
	}
	return filepath.Join(dir, "anki-agent", DefaultSettingsFile)
}

// CLIConfig 是 agent-cli 侧的配置
type CLIConfig struct {
	URL          string `json:"url"`
	Token        string `json:"token"`
	TimeoutSec   int    `json:"timeout"`
	SettingsPath string `json:"settings_path"`
}

func GetDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		URL:          "ws://" + DefaultLocalServerAddr + "/ws",
		TimeoutSec:   30,
		SettingsPath: DefaultSettingsPath(),
	}
}
