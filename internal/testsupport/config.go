package testsupport

import (
	"path/filepath"
	"testing"

	"danmu/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.DataDir = filepath.Join(base, "data")
	cfgVal.Paths.DanmakuDir = filepath.Join(base, "danmaku")
	cfgVal.Paths.ImageDir = filepath.Join(base, "images")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Database.Driver = "sqlite"
	cfgVal.Database.DSN = filepath.Join(base, "data", "danmu.db")
	cfgVal.Gateway.BaseURL = "http://127.0.0.1:1"
	cfgVal.Tasks.BulkPacingMS = 1
	cfgVal.Tasks.DeleteRetryBaseMS = 1
	cfgVal.Tasks.HeartbeatInterval = 1

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithRateLimit sets the default per-provider budget.
func WithRateLimit(limit int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.RateLimit.DefaultLimit = limit
	}
}

// WithGateway points the gateway adapters at baseURL.
func WithGateway(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Gateway.BaseURL = baseURL
	}
}

// WithConfig applies an arbitrary mutation.
func WithConfig(fn func(*config.Config)) ConfigOption {
	return func(b *configBuilder) {
		fn(b.cfg)
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
