// CLAUDE:SUMMARY Configuration structs (save debounce, stream limits, journal) and YAML loader for the editor.
package editor

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all editor configuration.
type Config struct {
	DBPath string `yaml:"db_path"`

	// ComponentsFile is an optional YAML component table overlaying the
	// builtin one.
	ComponentsFile string `yaml:"components_file"`

	// StrictReplace makes replace_all fail on unknown components instead of
	// skipping them.
	StrictReplace bool `yaml:"strict_replace"`

	// TraceSQL logs every SQL statement through the sqlite-trace driver.
	TraceSQL bool `yaml:"trace_sql"`

	Save    SaveConfig    `yaml:"save"`
	Stream  StreamConfig  `yaml:"stream"`
	Journal JournalConfig `yaml:"journal"`
	Watch   WatchConfig   `yaml:"watch"`
}

// SaveConfig controls debounced persistence.
type SaveConfig struct {
	// Debounce is the quiet period after the last edit before writing.
	Debounce time.Duration `yaml:"debounce"`
	// MaxDelay bounds how long a continuously edited page can stay unsaved.
	MaxDelay time.Duration `yaml:"max_delay"`
	// Timeout bounds one write.
	Timeout time.Duration `yaml:"timeout"`
}

// StreamConfig bounds streamed action input.
type StreamConfig struct {
	MaxBytes  int `yaml:"max_bytes"`
	ChunkSize int `yaml:"chunk_size"`
}

// JournalConfig controls the action journal.
type JournalConfig struct {
	Disabled  bool `yaml:"disabled"`
	QueueSize int  `yaml:"queue_size"`
}

// WatchConfig enables reloading pages written by another process sharing
// the database. Disabled while Interval is zero.
type WatchConfig struct {
	Interval time.Duration `yaml:"interval"`
	Debounce time.Duration `yaml:"debounce"`
}

func (c *Config) defaults() {
	if c.DBPath == "" {
		c.DBPath = "ezpage.db"
	}
	c.Save.defaults()
	if c.Stream.MaxBytes <= 0 {
		c.Stream.MaxBytes = 1 << 20
	}
	if c.Stream.ChunkSize <= 0 {
		c.Stream.ChunkSize = 4096
	}
	if c.Journal.QueueSize <= 0 {
		c.Journal.QueueSize = 256
	}
}

func (c *SaveConfig) defaults() {
	if c.Debounce <= 0 {
		c.Debounce = 500 * time.Millisecond
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = 5 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
