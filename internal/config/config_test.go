package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOptionalDefaultsWhenMissing(t *testing.T) {
	cfg, err := LoadOptional(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.URL != DefaultAPIURL || cfg.Push.URL != DefaultWSURL {
		t.Fatalf("expected defaults, got %+v", cfg)
	}
}

func TestLoadOptionalReadsFile(t *testing.T) {
	workspace := t.TempDir()
	if err := os.MkdirAll(filepath.Join(workspace, ".taskflow"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	content := "api:\n  url: https://tasks.example.com/api\npush:\n  url: wss://tasks.example.com/ws\n"
	if err := os.WriteFile(Path(workspace), []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := LoadOptional(workspace)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.URL != "https://tasks.example.com/api" || cfg.Push.URL != "wss://tasks.example.com/ws" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestFromYAMLFillsDefaultsForAbsentFields(t *testing.T) {
	cfg, err := FromYAML([]byte("api:\n  url: http://other:9000/api\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.API.URL != "http://other:9000/api" || cfg.Push.URL != DefaultWSURL {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestValidateRejectsBadSchemes(t *testing.T) {
	cfg := Default()
	cfg.API.URL = "ftp://nope"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected api url error")
	}
	cfg = Default()
	cfg.Push.URL = "http://not-a-socket"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected push url error")
	}
	if _, err := FromYAML([]byte("api: [")); err == nil {
		t.Fatal("expected yaml error")
	}
}
