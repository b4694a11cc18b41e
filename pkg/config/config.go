package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"kvcore/pkg/dberrors"
)

// Config - root configuration of the node.
type Config struct {
	Logger LoggerConfig `yaml:"logger"`
	Server ServerConfig `yaml:"http-server"`
	DB     `yaml:"db"`
}

type ServerConfig struct {
	Port              int           `yaml:"port"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
}

type DB struct {
	Memtable    MemtableConfig    `yaml:"memtable"`
	Skiplist    SkiplistConfig    `yaml:"skiplist"`
	BloomFilter BloomFilterConfig `yaml:"bloom_filter"`
}

// MemtableConfig sizes the arena behind every memtable and decides when the
// active one is rotated out for flushing.
type MemtableConfig struct {
	ArenaSize           int `yaml:"arena_size"`
	FlushThresholdBytes int `yaml:"flush_threshold"`
	FlushChanBuffSize   int `yaml:"flush_chan_buff_size"`
}

// SkiplistConfig tunes tower heights. A zero seed uses the runtime generator.
type SkiplistConfig struct {
	Branching int    `yaml:"branching"`
	Seed      uint64 `yaml:"seed"`
}

// BloomFilterConfig sizes the per-table filters. BitsPerKey wins when set;
// otherwise bits per key are derived from ExpectedEntries and FPRate.
type BloomFilterConfig struct {
	BitsPerKey      int     `yaml:"bits_per_key"`
	FPRate          float64 `yaml:"fp_rate"`
	ExpectedEntries int     `yaml:"expected_entries"`
}

type LoggerConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// SlogLevel parses Level, falling back to INFO.
func (c LoggerConfig) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Default returns a baseline development config.
func Default() Config {
	return Config{
		Logger: LoggerConfig{
			Level: "DEBUG",
			JSON:  false,
		},
		Server: ServerConfig{
			Port:              8080,
			ReadHeaderTimeout: time.Second,
		},
		DB: DB{
			Memtable: MemtableConfig{
				ArenaSize:           4 << 20,
				FlushThresholdBytes: 3 << 20,
				FlushChanBuffSize:   3,
			},
			Skiplist: SkiplistConfig{
				Branching: 4,
			},
			BloomFilter: BloomFilterConfig{
				FPRate:          0.01,
				ExpectedEntries: 10_000,
			},
		},
	}
}

// Load reads a YAML config from path on top of Default. A missing file is not
// an error.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("config file not found, using default config", "path", path)
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		problems = append(problems, "http-server.port must be in [0, 65535]")
	}

	mt := c.DB.Memtable
	if mt.ArenaSize <= 0 || int64(mt.ArenaSize) > int64(^uint32(0)) {
		problems = append(problems, "db.memtable.arena_size must be in (0, 4GiB)")
	}
	if mt.FlushThresholdBytes <= 0 || mt.FlushThresholdBytes > mt.ArenaSize {
		problems = append(problems, "db.memtable.flush_threshold must be in (0, arena_size]")
	}
	if mt.FlushChanBuffSize < 1 {
		problems = append(problems, "db.memtable.flush_chan_buff_size must be >= 1")
	}

	if c.DB.Skiplist.Branching < 2 {
		problems = append(problems, "db.skiplist.branching must be >= 2")
	}

	bf := c.DB.BloomFilter
	if bf.BitsPerKey < 0 {
		problems = append(problems, "db.bloom_filter.bits_per_key must be >= 0")
	}
	if bf.BitsPerKey == 0 && (bf.FPRate <= 0 || bf.FPRate >= 1) {
		problems = append(problems, "db.bloom_filter.fp_rate must be in (0, 1)")
	}

	switch strings.ToLower(c.Logger.Level) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, "logger.level must be one of DEBUG, INFO, WARN, ERROR")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", dberrors.ErrInvalidArgument, strings.Join(problems, "; "))
	}
	return nil
}
