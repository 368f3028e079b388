package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestTypedGetters(t *testing.T) {
	t.Setenv("CFG_INT", "42")
	t.Setenv("CFG_BAD_INT", "forty")
	t.Setenv("CFG_BOOL", "true")
	t.Setenv("CFG_DUR", "90s")

	if n, err := Int("CFG_INT", 1); err != nil || n != 42 {
		t.Fatalf("Int = %d, %v", n, err)
	}
	if n, err := Int("CFG_MISSING", 7); err != nil || n != 7 {
		t.Fatalf("Int fallback = %d, %v", n, err)
	}
	if _, err := Int("CFG_BAD_INT", 1); err == nil {
		t.Fatal("expected error for non-integer value")
	}
	if b, err := Bool("CFG_BOOL", false); err != nil || !b {
		t.Fatalf("Bool = %v, %v", b, err)
	}
	if d, err := Duration("CFG_DUR", time.Second); err != nil || d != 90*time.Second {
		t.Fatalf("Duration = %s, %v", d, err)
	}
}

func TestList(t *testing.T) {
	t.Setenv("CFG_LIST", " https://a.example.com, ,https://b.example.com ")
	got := List("CFG_LIST")
	if len(got) != 2 || got[0] != "https://a.example.com" || got[1] != "https://b.example.com" {
		t.Fatalf("List = %v", got)
	}
	if got := List("CFG_LIST_MISSING"); len(got) != 0 {
		t.Fatalf("List of unset key = %v", got)
	}
}

func TestPort(t *testing.T) {
	t.Setenv("CFG_PORT", "70000")
	if _, err := Port("CFG_PORT", "8080"); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
	if p, err := Port("CFG_PORT_UNSET", "8080"); err != nil || p != "8080" {
		t.Fatalf("Port fallback = %q, %v", p, err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("CFG_FROM_FILE=hello\nCFG_PRESET=file\n"), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}
	t.Setenv("CFG_PRESET", "process")
	t.Cleanup(func() { _ = os.Unsetenv("CFG_FROM_FILE") })

	if err := LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := String("CFG_FROM_FILE", ""); got != "hello" {
		t.Fatalf("expected value from file, got %q", got)
	}
	if got := String("CFG_PRESET", ""); got != "process" {
		t.Fatalf("process env must win, got %q", got)
	}
}
