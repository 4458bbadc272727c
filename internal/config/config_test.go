package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Reconcile.TitleThreshold != 3 || cfg.Reconcile.TimeThreshold != 30*time.Minute {
		t.Errorf("unexpected defaults: %+v", cfg.Reconcile)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("perm = %o, want 600", perm)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if again.Reconcile.TimeThreshold != 30*time.Minute || !again.Reconcile.Merge.Notes {
		t.Errorf("round trip lost values: %+v", again.Reconcile)
	}
}

func TestLoadPartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
timezone: Asia/Seoul
week_start: Sunday
reconcile:
  title_threshold: 2
  time_threshold: 45m
  merge:
    urls: false
sources:
  - name: Work Calendar
    url: https://example.com/work.ics
  - name: Work Calendar
    path: ./home.ics
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.WeekStart != "sunday" {
		t.Errorf("week_start = %q", cfg.WeekStart)
	}
	if cfg.Reconcile.TitleThreshold != 2 || cfg.Reconcile.TimeThreshold != 45*time.Minute {
		t.Errorf("thresholds = %+v", cfg.Reconcile)
	}
	if cfg.Reconcile.Merge.URLs {
		t.Error("merge.urls should be false")
	}
	if !cfg.Reconcile.Merge.Notes || !cfg.Reconcile.SkipBlankTitles {
		t.Error("omitted booleans should keep their defaults")
	}
	if cfg.Listen != "127.0.0.1:8080" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if len(cfg.Sources) != 2 || cfg.Sources[0].ID != "work-calendar" || cfg.Sources[1].ID != "work-calendar-2" {
		t.Errorf("source ids = %+v", cfg.Sources)
	}
	if cfg.Location().String() != "Asia/Seoul" {
		t.Errorf("location = %s", cfg.Location())
	}
}

func TestNormalizeFallbacks(t *testing.T) {
	cfg := &Config{WeekStart: "friday", Timezone: "Nowhere/Special"}
	cfg.Normalize()

	if cfg.WeekStart != "monday" {
		t.Errorf("week_start = %q", cfg.WeekStart)
	}
	if cfg.Location() != time.UTC {
		t.Errorf("bad timezone should resolve to UTC, got %s", cfg.Location())
	}
	if cfg.Reconcile.TimeThreshold != 30*time.Minute {
		t.Errorf("time threshold = %s", cfg.Reconcile.TimeThreshold)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("CALRECON_LISTEN", ":9999")
	t.Setenv("CALRECON_BASIC_AUTH_USERNAME", "admin")
	t.Setenv("CALRECON_BASIC_AUTH_PASSWORD", "secret")

	cfg := DefaultConfig()
	cfg.ApplyEnv()

	if cfg.Listen != ":9999" {
		t.Errorf("listen = %q", cfg.Listen)
	}
	if cfg.BasicAuth == nil || cfg.BasicAuth.Username != "admin" || cfg.BasicAuth.Password != "secret" {
		t.Errorf("basic auth = %+v", cfg.BasicAuth)
	}
}

func TestReconcileConfigJSONUsesDurationString(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Reconcile.TimeThreshold = 45 * time.Minute

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"time_threshold":"45m0s"`) {
		t.Errorf("json = %s", data)
	}

	var back Config
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back.Reconcile.TimeThreshold != 45*time.Minute || back.Reconcile.TitleThreshold != 3 || !back.Reconcile.Merge.Notes {
		t.Errorf("round trip = %+v", back.Reconcile)
	}
}
