package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(strings.TrimSpace(body)+"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend.URL != "http://127.0.0.1:5000" || cfg.Backend.Timeout != 120*time.Second {
		t.Fatalf("unexpected backend %+v", cfg.Backend)
	}
	if cfg.Assistant.HistoryLimit != 50 || cfg.Assistant.ImageTimeout != 90*time.Second {
		t.Fatalf("unexpected assistant %+v", cfg.Assistant)
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
backend:
  url: https://assistant.example.com
  uid: abc
  timeout: 30s
assistant:
  continuous: true
  narrate: each
speech:
  primary:
    kind: command
    command: say
  duck:
    fade: 300ms
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend.UID != "abc" || cfg.Backend.Timeout != 30*time.Second {
		t.Fatalf("unexpected backend %+v", cfg.Backend)
	}
	if !cfg.Assistant.Continuous || cfg.Assistant.Narrate != "each" {
		t.Fatalf("unexpected assistant %+v", cfg.Assistant)
	}
	if cfg.Speech.Primary.Kind != SynthCommand || cfg.Speech.Primary.Command != "say" {
		t.Fatalf("unexpected primary %+v", cfg.Speech.Primary)
	}
	if cfg.Speech.Duck.Fade != 300*time.Millisecond || !cfg.Speech.Duck.Enabled {
		t.Fatalf("unexpected duck %+v", cfg.Speech.Duck)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("VIST_BACKEND_UID", "from-env")
	t.Setenv("VIST_BACKEND_URL", "http://10.0.0.2:5000")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend.UID != "from-env" || cfg.Backend.URL != "http://10.0.0.2:5000" {
		t.Fatalf("env not applied: %+v", cfg.Backend)
	}
}

func TestLoadRejectsUnsupportedConfigVersion(t *testing.T) {
	path := writeConfig(t, `
config_version: 7
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unsupported config_version") {
		t.Fatalf("expected config_version error, got %v", err)
	}
}

func TestLoadRejectsInvalidBackendURL(t *testing.T) {
	path := writeConfig(t, `
config_version: 1
backend:
  url: assistant.local
`)
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "backend.url") {
		t.Fatalf("expected backend.url error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	base, err := DefaultConfig()
	if err != nil {
		t.Fatalf("defaults: %v", err)
	}
	if err := Validate(base); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}

	cases := map[string]func(*Config){
		"assistant.narrate":            func(c *Config) { c.Assistant.Narrate = "sometimes" },
		"speech.fallback.command":      func(c *Config) { c.Speech.Fallback = SynthConfig{Kind: SynthCommand} },
		"speech.primary.format":        func(c *Config) { c.Speech.Primary.Format = "flac" },
		"speech.duck.factor":           func(c *Config) { c.Speech.Duck.Factor = 1.5 },
		"recognition.whisper_model":    func(c *Config) { c.Recognition.Kind = RecognizerWhisper },
		"unsupported recognition.kind": func(c *Config) { c.Recognition.Kind = "vosk" },
	}
	for want, mutate := range cases {
		cfg := base
		mutate(&cfg)
		if err := Validate(cfg); err == nil || !strings.Contains(err.Error(), want) {
			t.Errorf("%s: got %v", want, err)
		}
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if _, err := WriteDefault(path, false); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := WriteDefault(path, false); err == nil {
		t.Fatalf("expected error when config exists")
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load written default: %v", err)
	}
	if cfg.Speech.Primary.Command != "edge-tts" || cfg.Speech.Duck.Fade != 150*time.Millisecond {
		t.Fatalf("unexpected round trip %+v", cfg.Speech)
	}
}

func TestLoadEnvMissingFile(t *testing.T) {
	if err := LoadEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Fatalf("missing .env must not fail: %v", err)
	}
}

func TestExpandPath(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	t.Setenv("SOUNDS", "/usr/share/sounds")
	if got := expandPath("~/vist.log"); got != "/home/tester/vist.log" {
		t.Fatalf("unexpected %q", got)
	}
	if got := expandPath("$SOUNDS/ding.mp3"); got != "/usr/share/sounds/ding.mp3" {
		t.Fatalf("unexpected %q", got)
	}
}
