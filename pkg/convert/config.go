package convert

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/video-system/go-avs2yuv/pkg/output"
)

// Config holds the file-level converter configuration
type Config struct {
	Engine    EngineConfig    `yaml:"engine"`
	Output    OutputConfig    `yaml:"output"`
	Transcode TranscodeConfig `yaml:"transcode"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// EngineConfig selects the script engine library
type EngineConfig struct {
	Library string `yaml:"library"` // empty means the platform default
	MT      *bool  `yaml:"mt"`      // append Distributor to MT scripts, default true
}

// MTEnabled reports whether multi-threaded scripts get a Distributor.
func (c EngineConfig) MTEnabled() bool {
	return c.MT == nil || *c.MT
}

// OutputConfig configures sink buffering
type OutputConfig struct {
	BufferSize int `yaml:"buffer_size"` // bytes per sink
}

// TranscodeConfig configures the ffmpeg branch
type TranscodeConfig struct {
	FFmpeg string   `yaml:"ffmpeg"` // binary, empty means search PATH
	Codec  string   `yaml:"codec"`  // ffvhuff
	Format string   `yaml:"format"` // avi
	Args   []string `yaml:"args"`   // extra encoder arguments
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error; empty defers to LOG_LEVEL
	Format string `yaml:"format"` // console, json
}

// MetricsConfig configures the run metrics textfile
type MetricsConfig struct {
	File string `yaml:"file"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig loads configuration from a YAML file
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Output.BufferSize == 0 {
		c.Output.BufferSize = output.DefaultBufferSize
	}
	if c.Transcode.Codec == "" {
		c.Transcode.Codec = "ffvhuff"
	}
	if c.Transcode.Format == "" {
		c.Transcode.Format = "avi"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}
