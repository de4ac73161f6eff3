package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Nat1anWasTaken/fortis/internal/domain"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	if cfg.Transcriber.Language != "en-US" {
		t.Fatalf("unexpected language %q", cfg.Transcriber.Language)
	}
	if cfg.Transcriber.Model != "nova-2" {
		t.Fatalf("unexpected model %q", cfg.Transcriber.Model)
	}
	if !cfg.Transcriber.SmartFormat {
		t.Fatal("smart_format should default on")
	}
	if cfg.Audio.SampleRate != 16000 || cfg.Audio.Channels != 1 {
		t.Fatalf("unexpected audio defaults: %+v", cfg.Audio)
	}
	if cfg.Audio.ChunkInterval() != 100*time.Millisecond {
		t.Fatalf("unexpected chunk interval %v", cfg.Audio.ChunkInterval())
	}
	if cfg.Queue.Capacity != 40 {
		t.Fatalf("unexpected queue capacity %d", cfg.Queue.Capacity)
	}
	if cfg.Reconnect.MaxAttempts != 10 || cfg.Reconnect.BaseDelay != time.Second || cfg.Reconnect.MaxDelay != 30*time.Second {
		t.Fatalf("unexpected reconnect defaults: %+v", cfg.Reconnect)
	}
	if cfg.UI.Refresh() != 100*time.Millisecond {
		t.Fatalf("unexpected refresh %v", cfg.UI.Refresh())
	}
	if cfg.Log.Level != "info" {
		t.Fatalf("unexpected log level %q", cfg.Log.Level)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fortis.yaml")
	content := []byte(`
transcriber:
  api_key: file-key
  language: de
  model: nova-3
audio:
  sample_rate: 48000
  channels: 2
queue:
  capacity: 80
log:
  level: debug
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Transcriber.APIKey != "file-key" || cfg.Transcriber.Language != "de" || cfg.Transcriber.Model != "nova-3" {
		t.Fatalf("file values not applied: %+v", cfg.Transcriber)
	}
	if cfg.Audio.SampleRate != 48000 || cfg.Audio.Channels != 2 {
		t.Fatalf("file values not applied: %+v", cfg.Audio)
	}
	if cfg.Queue.Capacity != 80 {
		t.Fatalf("file values not applied: %+v", cfg.Queue)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("file values not applied: %+v", cfg.Log)
	}
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected an error for a missing explicit config file")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FORTIS_TRANSCRIBER_LANGUAGE", "fr")
	t.Setenv("FORTIS_AUDIO_SAMPLE_RATE", "44100")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Transcriber.Language != "fr" {
		t.Fatalf("env override not applied: %q", cfg.Transcriber.Language)
	}
	if cfg.Audio.SampleRate != 44100 {
		t.Fatalf("env override not applied: %d", cfg.Audio.SampleRate)
	}
}

func TestLoadAPIKeyEnvAliases(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "legacy-key")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Transcriber.APIKey != "legacy-key" {
		t.Fatalf("DEEPGRAM_API_KEY not honored: %q", cfg.Transcriber.APIKey)
	}

	// The prefixed variable wins over the legacy alias.
	t.Setenv("FORTIS_TRANSCRIBER_API_KEY", "prefixed-key")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Transcriber.APIKey != "prefixed-key" {
		t.Fatalf("FORTIS_TRANSCRIBER_API_KEY not preferred: %q", cfg.Transcriber.APIKey)
	}
}

func TestValidateSettings(t *testing.T) {
	cfg := Config{Transcriber: TranscriberConfig{APIKey: "key", Language: "en-US", Model: "nova-2"}}
	if err := cfg.ValidateSettings(); err != nil {
		t.Fatalf("complete settings rejected: %v", err)
	}

	for name, mutate := range map[string]func(*Config){
		"missing api key":  func(c *Config) { c.Transcriber.APIKey = " " },
		"missing language": func(c *Config) { c.Transcriber.Language = "" },
		"missing model":    func(c *Config) { c.Transcriber.Model = "" },
	} {
		broken := cfg
		mutate(&broken)
		if err := broken.ValidateSettings(); !errors.Is(err, domain.ErrConfigIncomplete) {
			t.Fatalf("%s: expected ErrConfigIncomplete, got %v", name, err)
		}
	}
}
