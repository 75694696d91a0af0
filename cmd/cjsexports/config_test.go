package main

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
log_level: debug
log_format: json
extensions: [".js", ".cjs", ".json"]
conditions: ["require", "default"]
tolerate_syntax_errors: true
scan:
  include: ["src/**/*.js"]
  exclude: ["src/vendor/**"]
  workers: 3
cache:
  max_files: 100
  max_memory_mb: 64
  max_records: 50
watch:
  debounce_ms: 75
mcp:
  log_file: .cjsexports/calls.jsonl
`

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, ".cjsexports", "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadProjectConfig(t *testing.T) {
	path := writeConfig(t, t.TempDir(), sampleConfig)

	cfg, err := loadProjectConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{".js", ".cjs", ".json"}, cfg.Extensions)
	assert.Equal(t, []string{"require", "default"}, cfg.Conditions)
	assert.True(t, cfg.TolerateSyntaxErrors)
	assert.Equal(t, 3, cfg.Scan.Workers)
	assert.Equal(t, 50, cfg.Cache.MaxRecords)
	assert.Equal(t, ".cjsexports/calls.jsonl", cfg.MCP.LogFile)

	scan := cfg.scanOptions()
	assert.Equal(t, []string{"src/**/*.js"}, scan.Include)
	assert.Equal(t, []string{"src/vendor/**"}, scan.Exclude)
	assert.Equal(t, 3, scan.Workers)

	assert.Equal(t, 75, cfg.watchOptions().DebounceMs)

	cache := cfg.sourceCacheConfig(nil)
	assert.Equal(t, 100, cache.MaxFiles)
	assert.Equal(t, 64, cache.MaxMemoryMB)

	res := cfg.resolverConfig(nil)
	assert.Equal(t, cfg.Extensions, res.Extensions)
}

func TestLoadProjectConfig_Missing(t *testing.T) {
	cfg, err := loadProjectConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Defaults come from the packages.
	assert.NotEmpty(t, cfg.scanOptions().Include)
	assert.Equal(t, 200, cfg.watchOptions().DebounceMs)
	assert.Equal(t, 10000, cfg.sourceCacheConfig(nil).MaxFiles)
}

func TestLoadProjectConfig_Invalid(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "scan: [unclosed")
	_, err := loadProjectConfig(path)
	assert.ErrorContains(t, err, "invalid config")
}

func TestApplyEnv(t *testing.T) {
	cfg := &ProjectConfig{LogLevel: "info", LogFormat: "text"}
	env := map[string]string{
		envLogLevel: "error",
		envMCPLog:   "/tmp/calls.jsonl",
		// Empty values do not override.
		envLogFormat: "",
	}
	cfg.applyEnv(func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})

	assert.Equal(t, "error", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "/tmp/calls.jsonl", cfg.MCP.LogFile)
}

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	path := writeConfig(t, dir, "log_level: debug\nlog_format: text\nmcp:\n  log_file: yaml.jsonl\n")
	require.NoError(t, os.WriteFile(".env", []byte("CJSEXPORTS_LOG_FORMAT=json\nCJSEXPORTS_MCP_LOG=dotenv.jsonl\n"), 0o644))

	// A variable set in the environment wins over .env.
	t.Setenv(envMCPLog, "env.jsonl")
	t.Setenv(envLogLevel, "")
	// godotenv sets variables in the process; drop them after the test.
	t.Setenv(envLogFormat, "")
	require.NoError(t, os.Unsetenv(envLogFormat))

	set := flag.NewFlagSet("test", flag.ContinueOnError)
	common := addCommonFlags(set)
	require.NoError(t, set.Parse([]string{"-config", path, "-log-level", "warn"}))

	cfg, logger, err := common.load(&bytes.Buffer{})
	require.NoError(t, err)
	require.NotNil(t, logger)

	assert.Equal(t, "warn", cfg.LogLevel, "flag overrides yaml")
	assert.Equal(t, "json", cfg.LogFormat, ".env overrides yaml")
	assert.Equal(t, "env.jsonl", cfg.MCP.LogFile, "environment overrides .env")
}

func TestLoadConfig_DefaultLevel(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv(envLogLevel, "")

	set := flag.NewFlagSet("test", flag.ContinueOnError)
	common := addCommonFlags(set)
	require.NoError(t, set.Parse(nil))

	cfg, _, err := common.load(&bytes.Buffer{})
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestStringList(t *testing.T) {
	var s stringList
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.Var(&s, "include", "")
	require.NoError(t, set.Parse([]string{"-include", "a/**", "-include", "b/**"}))
	assert.Equal(t, stringList{"a/**", "b/**"}, s)
	assert.Equal(t, "a/**,b/**", s.String())
}
