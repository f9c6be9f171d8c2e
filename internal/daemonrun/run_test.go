package daemonrun

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"danmu/internal/catalog"
	"danmu/internal/config"
	"danmu/internal/logging"
	"danmu/internal/testsupport"
)

func TestBuildWiresRuntimeAndSyncsProviders(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithConfig(func(c *config.Config) {
		c.Providers = map[string]config.Provider{
			"bilibili": {Enabled: true, DisplayOrder: 2},
			"tencent":  {Enabled: true, DisplayOrder: 1},
			"iqiyi":    {Enabled: false, DisplayOrder: 3},
		}
	}))
	ctx := context.Background()

	rt, err := Build(ctx, cfg, logging.NewNop())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })

	status, err := rt.Daemon.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(status.Providers) != 2 || status.Providers[0] != "tencent" {
		t.Fatalf("expected enabled providers in display order, got %v", status.Providers)
	}
	if status.Running {
		t.Fatal("Build must not start the daemon")
	}

	settings, err := catalog.New(rt.DB).ProviderSettings(ctx)
	if err != nil {
		t.Fatalf("ProviderSettings: %v", err)
	}
	if len(settings) != 3 || settings[0].Provider != "tencent" || settings[2].Enabled {
		t.Fatalf("unexpected settings %+v", settings)
	}
}

func TestEnsureCurrentLogPointerReplacesLink(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "danmud-1.log")
	second := filepath.Join(dir, "danmud-2.log")
	for _, path := range []string{first, second} {
		if err := os.WriteFile(path, []byte(filepath.Base(path)), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	current := filepath.Join(dir, "danmud.log")
	if err := ensureCurrentLogPointer(current, first); err != nil {
		t.Fatalf("first pointer: %v", err)
	}
	if err := ensureCurrentLogPointer(current, second); err != nil {
		t.Fatalf("second pointer: %v", err)
	}
	data, err := os.ReadFile(current)
	if err != nil {
		t.Fatalf("read pointer: %v", err)
	}
	if string(data) != "danmud-2.log" {
		t.Fatalf("pointer targets %q", data)
	}
}
