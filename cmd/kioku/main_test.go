package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hyperjump/kioku/internal/models"
)

const noteBody = "Risk management is about deciding under uncertainty with incomplete information and imperfect models."

// writeEnv creates a vault with one note and a mock-provider config whose
// state lives next to it. Returns the config and note paths.
func writeEnv(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	vaultDir := filepath.Join(dir, "vault")
	if err := os.MkdirAll(vaultDir, 0755); err != nil {
		t.Fatal(err)
	}
	notePath := filepath.Join(vaultDir, "risk.md")
	if err := os.WriteFile(notePath, []byte("# Risk\n\n"+noteBody+"\n"), 0644); err != nil {
		t.Fatal(err)
	}
	configPath := filepath.Join(dir, "config.yaml")
	content := `
vault:
  path: "./vault"
storage:
  index_path: "./index.bin"
  metadata_path: "./metadata.json"
  database_path: "./runs.db"
  lock_path: "./kioku.lock"
embedding:
  provider: "mock"
  dimensions: 64
  rate_limit_delay: 1ms
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return configPath, notePath
}

func TestLoadConfig_prefersCwdConfigWhenPathEmpty(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
debug: true
vault:
  path: "./notes"
server:
  host: "localhost"
  port: 8080
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	t.Chdir(dir)

	cfg, resolved, err := loadConfig("")
	if err != nil {
		t.Fatal(err)
	}
	// On macOS, cwd can be /private/var/... while t.TempDir() is /var/...; compare canonical paths.
	resolvedCanon, _ := filepath.EvalSymlinks(resolved)
	configPathCanon, _ := filepath.EvalSymlinks(configPath)
	if resolvedCanon != configPathCanon {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if !cfg.Debug {
		t.Error("debug should be true from cwd config.yaml")
	}
}

func TestLoadConfig_usesExplicitPath(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	content := `
vault:
  path: "/tmp/notes"
server:
  host: "127.0.0.1"
  port: 9000
`
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		t.Fatal(err)
	}
	if resolved != configPath {
		t.Errorf("resolved path = %s, want %s", resolved, configPath)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Vault.Path != "/tmp/notes" {
		t.Errorf("vault path = %s", cfg.Vault.Path)
	}
}

func TestRun_VersionAndHelp(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run([]string{"version"}, &out, &errOut); code != 0 {
		t.Fatalf("version exit code = %d", code)
	}
	if !strings.Contains(out.String(), "kioku version") {
		t.Errorf("version output = %q", out.String())
	}

	out.Reset()
	if code := run([]string{"help"}, &out, &errOut); code != 0 {
		t.Fatalf("help exit code = %d", code)
	}
	if !strings.Contains(out.String(), "Usage:") {
		t.Errorf("help output = %q", out.String())
	}
}

func TestRun_UnknownCommand(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run([]string{"frobnicate"}, &out, &errOut); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
	if !strings.Contains(errOut.String(), "Unknown command: frobnicate") {
		t.Errorf("stderr = %q", errOut.String())
	}
}

func TestRun_NoArgs(t *testing.T) {
	var out, errOut bytes.Buffer
	if code := run(nil, &out, &errOut); code != 1 {
		t.Fatalf("exit code = %d, want 1", code)
	}
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "sub", "config.yaml")
	vaultDir := filepath.Join(dir, "vault")

	var out, errOut bytes.Buffer
	code := run([]string{"init", "--config", configPath, "--vault", vaultDir, "--provider", "mock"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("init exit code = %d, stderr = %s", code, errOut.String())
	}
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		t.Fatalf("written config does not load: %v", err)
	}
	if cfg.Vault.Path != vaultDir {
		t.Errorf("vault path = %s, want %s", cfg.Vault.Path, vaultDir)
	}
	if cfg.Embedding.Provider != "mock" {
		t.Errorf("provider = %s", cfg.Embedding.Provider)
	}

	errOut.Reset()
	code = run([]string{"init", "--config", configPath, "--vault", vaultDir}, &out, &errOut)
	if code != 1 || !strings.Contains(errOut.String(), "already exists") {
		t.Errorf("second init: code = %d, stderr = %q", code, errOut.String())
	}
	if code := run([]string{"init", "--config", configPath, "--vault", vaultDir, "--force"}, &out, &errOut); code != 0 {
		t.Errorf("init --force exit code = %d", code)
	}
}

func TestInit_RequiresVault(t *testing.T) {
	var out, errOut bytes.Buffer
	code := run([]string{"init", "--config", filepath.Join(t.TempDir(), "config.yaml")}, &out, &errOut)
	if code != 1 || !strings.Contains(errOut.String(), "--vault is required") {
		t.Errorf("code = %d, stderr = %q", code, errOut.String())
	}
}

func TestRebuildQueryStatusRuns(t *testing.T) {
	configPath, notePath := writeEnv(t)
	var out, errOut bytes.Buffer

	if code := run([]string{"rebuild", "--config", configPath}, &out, &errOut); code != 0 {
		t.Fatalf("rebuild exit code = %d, stderr = %s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "Index rebuild complete") {
		t.Errorf("rebuild output = %q", out.String())
	}
	if !strings.Contains(out.String(), "Processed: 1") {
		t.Errorf("rebuild should process the note: %q", out.String())
	}

	out.Reset()
	if code := run([]string{"update", "--config", configPath}, &out, &errOut); code != 0 {
		t.Fatalf("update exit code = %d, stderr = %s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "Unchanged: 1") {
		t.Errorf("update should skip the unchanged note: %q", out.String())
	}

	out.Reset()
	code := run([]string{"query", "--config", configPath, "--text", noteBody, "--output", "json"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("query exit code = %d, stderr = %s", code, errOut.String())
	}
	var resp models.SearchResponse
	if err := json.Unmarshal(out.Bytes(), &resp); err != nil {
		t.Fatalf("query output is not JSON: %v\n%s", err, out.String())
	}
	if resp.Status != models.StatusOK || len(resp.Results) != 1 {
		t.Fatalf("response = %+v", resp)
	}
	if resp.Results[0].Path != notePath {
		t.Errorf("result path = %s, want %s", resp.Results[0].Path, notePath)
	}

	out.Reset()
	if code := run([]string{"status", "--config", configPath}, &out, &errOut); code != 0 {
		t.Fatalf("status exit code = %d, stderr = %s", code, errOut.String())
	}
	for _, want := range []string{"Documents: 1", "Search available: true"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("status output missing %q: %s", want, out.String())
		}
	}

	out.Reset()
	if code := run([]string{"runs", "--config", configPath}, &out, &errOut); code != 0 {
		t.Fatalf("runs exit code = %d, stderr = %s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "rebuild") || !strings.Contains(out.String(), "update") {
		t.Errorf("runs output = %q", out.String())
	}
}

func TestQuery_RequiresTextOrFile(t *testing.T) {
	configPath, _ := writeEnv(t)
	var out, errOut bytes.Buffer
	code := run([]string{"query", "--config", configPath}, &out, &errOut)
	if code != 1 || !strings.Contains(errOut.String(), "--text or --file") {
		t.Errorf("code = %d, stderr = %q", code, errOut.String())
	}
}

func TestQuery_BeforeRebuildIsEmpty(t *testing.T) {
	configPath, _ := writeEnv(t)
	var out, errOut bytes.Buffer
	code := run([]string{"query", "--config", configPath, "--text", "anything at all"}, &out, &errOut)
	if code != 0 {
		t.Fatalf("exit code = %d, stderr = %s", code, errOut.String())
	}
	if !strings.Contains(out.String(), "No results found for: \"anything at all\"") {
		t.Errorf("output = %q", out.String())
	}
}
