package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/gnana997/cjsexports/pkg/indexer"
	"github.com/gnana997/cjsexports/pkg/resolver"
	"github.com/gnana997/cjsexports/pkg/util"
)

const defaultConfigPath = ".cjsexports/config.yaml"

// Environment variables overriding the project config.
const (
	envLogLevel  = "CJSEXPORTS_LOG_LEVEL"
	envLogFormat = "CJSEXPORTS_LOG_FORMAT"
	envMCPLog    = "CJSEXPORTS_MCP_LOG"
)

// ProjectConfig holds the contents of .cjsexports/config.yaml.
type ProjectConfig struct {
	LogLevel             string   `yaml:"log_level"`
	LogFormat            string   `yaml:"log_format"`
	Extensions           []string `yaml:"extensions"`
	Conditions           []string `yaml:"conditions"`
	TolerateSyntaxErrors bool     `yaml:"tolerate_syntax_errors"`

	Scan struct {
		Include []string `yaml:"include"`
		Exclude []string `yaml:"exclude"`
		Workers int      `yaml:"workers"`
	} `yaml:"scan"`

	Cache struct {
		MaxFiles    int `yaml:"max_files"`
		MaxMemoryMB int `yaml:"max_memory_mb"`
		MaxRecords  int `yaml:"max_records"`
	} `yaml:"cache"`

	Watch struct {
		DebounceMs int `yaml:"debounce_ms"`
	} `yaml:"watch"`

	MCP struct {
		LogFile string `yaml:"log_file"`
	} `yaml:"mcp"`
}

// loadProjectConfig reads the YAML config at path. A missing file yields
// an empty config and no error.
func loadProjectConfig(path string) (*ProjectConfig, error) {
	var cfg ProjectConfig
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// applyEnv overrides cfg with the CJSEXPORTS_* variables found by lookup.
func (cfg *ProjectConfig) applyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(envLogLevel); ok && v != "" {
		cfg.LogLevel = v
	}
	if v, ok := lookup(envLogFormat); ok && v != "" {
		cfg.LogFormat = v
	}
	if v, ok := lookup(envMCPLog); ok && v != "" {
		cfg.MCP.LogFile = v
	}
}

// loadConfig layers the YAML config, a .env file and the environment, in
// increasing precedence.
func loadConfig(path string) (*ProjectConfig, error) {
	cfg, err := loadProjectConfig(path)
	if err != nil {
		return nil, err
	}
	// godotenv never overrides variables that are already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("invalid .env: %w", err)
	}
	cfg.applyEnv(os.LookupEnv)
	return cfg, nil
}

func (cfg *ProjectConfig) resolverConfig(logger *slog.Logger) resolver.Config {
	return resolver.Config{
		Extensions: cfg.Extensions,
		Conditions: cfg.Conditions,
		Logger:     logger,
	}
}

func (cfg *ProjectConfig) sourceCacheConfig(logger *slog.Logger) *util.SourceCacheConfig {
	c := util.DefaultSourceCacheConfig()
	if cfg.Cache.MaxFiles > 0 {
		c.MaxFiles = cfg.Cache.MaxFiles
	}
	if cfg.Cache.MaxMemoryMB > 0 {
		c.MaxMemoryMB = cfg.Cache.MaxMemoryMB
	}
	c.Logger = logger
	return c
}

func (cfg *ProjectConfig) scanOptions() indexer.ScanOptions {
	opts := indexer.DefaultScanOptions()
	if len(cfg.Scan.Include) > 0 {
		opts.Include = cfg.Scan.Include
	}
	if len(cfg.Scan.Exclude) > 0 {
		opts.Exclude = cfg.Scan.Exclude
	}
	opts.Workers = cfg.Scan.Workers
	return opts
}

func (cfg *ProjectConfig) watchOptions() indexer.WatchOptions {
	opts := indexer.DefaultWatchOptions()
	if cfg.Watch.DebounceMs > 0 {
		opts.DebounceMs = cfg.Watch.DebounceMs
	}
	return opts
}

// commonFlags are accepted by every command that analyzes code.
type commonFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

func addCommonFlags(set *flag.FlagSet) *commonFlags {
	c := &commonFlags{}
	set.StringVar(&c.configPath, "config", defaultConfigPath, "project config file")
	set.StringVar(&c.logLevel, "log-level", "", "log level: debug, info, warn, error (default warn)")
	set.StringVar(&c.logFormat, "log-format", "", "log format: text, json, auto")
	return c
}

// load reads the layered config, applies the flags on top and builds the
// logger writing to stderr.
func (c *commonFlags) load(stderr io.Writer) (*ProjectConfig, *slog.Logger, error) {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return nil, nil, err
	}
	if c.logLevel != "" {
		cfg.LogLevel = c.logLevel
	}
	if c.logFormat != "" {
		cfg.LogFormat = c.logFormat
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = string(util.LevelWarn)
	}

	logger := util.NewLogger(util.LoggerConfig{
		Level:  util.LogLevel(cfg.LogLevel),
		Format: util.LogFormat(cfg.LogFormat),
		Output: stderr,
	})
	return cfg, logger, nil
}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}
