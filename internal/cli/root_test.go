package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tw-screener/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionJSON(t *testing.T) {
	out, err := execute(t, "version", "--json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got["version"] != Version {
		t.Errorf("version = %q, want %q", got["version"], Version)
	}
}

func TestConfigPathSkipsLoading(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "never-created")
	out, err := execute(t, "config", "path", "--config", dir)
	if err != nil {
		t.Fatalf("config path: %v", err)
	}
	if strings.TrimSpace(out) != dir {
		t.Errorf("path = %q, want %q", out, dir)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Errorf("config path should not create the directory")
	}
}

func TestConfigValidateWritesTemplates(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	if _, err := execute(t, "config", "validate", "--config", dir); err != nil {
		t.Fatalf("validate: %v", err)
	}
	for _, name := range []string{"config.toml", "credentials.toml"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s not created: %v", name, err)
		}
	}

	bad := "[screen]\nstrategy = \"moonshot\"\n"
	if err := os.WriteFile(filepath.Join(dir, "config.toml"), []byte(bad), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "config", "validate", "--config", dir); err == nil {
		t.Error("validate accepted an unknown strategy")
	}
}

func TestConfigShowHidesSecrets(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("SCREENER_LINE_TOKEN", "line-secret-token-value")
	t.Setenv("SCREENER_HISTORY_PATH", filepath.Join(dir, "h.db"))

	out, err := execute(t, "config", "show", "--json", "--config", dir)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "line-secret-token-value") {
		t.Errorf("token leaked in JSON output")
	}
	var cfg map[string]json.RawMessage
	if err := json.Unmarshal([]byte(out), &cfg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := cfg["Screen"]; !ok {
		t.Errorf("missing Screen section in %s", out)
	}

	out, err = execute(t, "config", "show", "--config", dir)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "line-secret-token-value") || !strings.Contains(out, "line****") {
		t.Errorf("expected a masked token in:\n%s", out)
	}
}

func TestApplyScreenFlagsOnlyChanged(t *testing.T) {
	cmd := newScanCmd(&App{})
	if err := cmd.ParseFlags([]string{"--strategy", "pullback", "--min-volume", "500", "--include-loss"}); err != nil {
		t.Fatal(err)
	}

	screen := config.ScreenConfig{Strategy: "chip", BiasRange: 5, MinVolumeLots: 1000, Concurrency: 4, RSIRising: true}
	filters := config.FilterConfig{ExcludeLoss: true, MinRevenueYoY: -100}
	applyScreenFlags(cmd, &screen, &filters)

	if screen.Strategy != "pullback" || screen.MinVolumeLots != 500 {
		t.Errorf("screen = %+v", screen)
	}
	if screen.BiasRange != 5 || screen.Concurrency != 4 || !screen.RSIRising {
		t.Errorf("unset flags changed the config: %+v", screen)
	}
	if filters.ExcludeLoss || filters.MinRevenueYoY != -100 {
		t.Errorf("filters = %+v", filters)
	}
}

func TestParseStrategies(t *testing.T) {
	got, err := parseStrategies("chip, breakdown,,蜻蜓點水 (縮量回測)")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0] != "chip" || got[1] != "breakdown" || got[2] != "pullback" {
		t.Errorf("strategies = %v", got)
	}
	if _, err := parseStrategies("chip,nope"); err == nil {
		t.Error("expected an error for an unknown strategy")
	}
}

func TestCommandTree(t *testing.T) {
	root := NewRootCmd()
	want := []string{"scan", "backtest", "history", "lab", "fundamentals", "chips", "radar",
		"sectors", "heatmap", "news", "market", "diagnose", "schedule", "config", "version"}
	for _, name := range want {
		if c, _, err := root.Find([]string{name}); err != nil || c == root {
			t.Errorf("command %q not registered", name)
		}
	}
	var sub []string
	hist, _, _ := root.Find([]string{"history"})
	for _, c := range hist.Commands() {
		sub = append(sub, c.Name())
	}
	if strings.Join(sub, ",") != "clear,export,import,list" {
		t.Errorf("history subcommands = %v", sub)
	}
}
