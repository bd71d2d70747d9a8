package domsettle

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level domsettle configuration.
type Config struct {
	Listen  string        `yaml:"listen"`
	Browser BrowserConfig `yaml:"browser"`
	Settle  SettleConfig  `yaml:"settle"`
	Paint   PaintConfig   `yaml:"paint"`
	Journal JournalConfig `yaml:"journal"`
	MCP     MCPConfig     `yaml:"mcp"`
}

// MCPConfig controls the optional MCP-over-QUIC listener.
type MCPConfig struct {
	QUICAddr string `yaml:"quic_addr"` // empty disables
	TLSCert  string `yaml:"tls_cert"`  // empty: self-signed dev certificate
	TLSKey   string `yaml:"tls_key"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote          string        `yaml:"remote"`
	Stealth         string        `yaml:"stealth"` // headless | headful
	RecycleInterval time.Duration `yaml:"recycle_interval"`
}

// SettleConfig carries the stability timeout budget.
type SettleConfig struct {
	GlobalTimeout       time.Duration `yaml:"global_timeout"`
	MainThreadTimeout   time.Duration `yaml:"main_thread_timeout"`
	MinWait             time.Duration `yaml:"min_wait"`
	InvokeCallbackDelay time.Duration `yaml:"invoke_callback_delay"`
	QuietWindow         time.Duration `yaml:"quiet_window"`
	InitialDelay        time.Duration `yaml:"initial_delay"`
}

// PaintConfig controls the optional paint stability sampler.
type PaintConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Interval     time.Duration `yaml:"interval"`
	StableFrames int           `yaml:"stable_frames"`
}

// JournalConfig controls transition trail persistence.
type JournalConfig struct {
	DBPath string `yaml:"db_path"` // empty disables persistence
}

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("domsettle: read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("domsettle: parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":8743"
	}
	if c.Browser.Stealth == "" {
		c.Browser.Stealth = "headless"
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Settle.GlobalTimeout <= 0 {
		c.Settle.GlobalTimeout = 10 * time.Second
	}
	if c.Settle.MainThreadTimeout <= 0 {
		c.Settle.MainThreadTimeout = 2 * time.Second
	}
	if c.Settle.QuietWindow <= 0 {
		c.Settle.QuietWindow = 500 * time.Millisecond
	}
	if c.Paint.Interval <= 0 {
		c.Paint.Interval = 200 * time.Millisecond
	}
	if c.Paint.StableFrames <= 0 {
		c.Paint.StableFrames = 3
	}
}
