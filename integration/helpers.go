//go:build integration

package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

// TempDBPath creates a temporary database path for testing
func TempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

// TempConfigPath creates a temporary config file path for testing
func TempConfigPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.toml")
}

// binaryPath returns the path to the built CLI binary
func binaryPath(t *testing.T) string {
	t.Helper()
	paths := []string{
		"../simctl",
		"./simctl",
		filepath.Join(os.Getenv("GOPATH"), "bin", "simctl"),
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			abs, _ := filepath.Abs(p)
			return abs
		}
	}

	t.Log("Binary not found, building...")
	cmd := exec.Command("go", "build", "-o", "../simctl", "../cmd/simctl")
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build binary: %v\n%s", err, out)
	}

	abs, _ := filepath.Abs("../simctl")
	return abs
}

// createTestConfig writes a config anchored at 2025-01-01 with a fresh database
func createTestConfig(t *testing.T, dbPath string) string {
	t.Helper()
	configPath := TempConfigPath(t)

	config := `[general]
database_path = "` + dbPath + `"
storage = "sqlite"

[simulation]
start_date = "2025-01-01"
rollback = "purge"
seed_days = 30

[log]
level = "error"

[web]
port = 8080
host = "127.0.0.1"
`

	if err := os.WriteFile(configPath, []byte(config), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return configPath
}

// simctl runs the binary with the given config and fails the test on error
func simctl(t *testing.T, binary, configPath string, args ...string) string {
	t.Helper()
	out, err := run(binary, configPath, args...)
	if err != nil {
		t.Fatalf("simctl %s failed: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}

func run(binary, configPath string, args ...string) (string, error) {
	cmd := exec.Command(binary, append(args, "--config", configPath)...)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

var createdRe = regexp.MustCompile(`Created branch .+ \(([0-9a-f-]{36})\)`)
var scheduledRe = regexp.MustCompile(`: ([0-9a-f-]{36})\s*$`)

// createActiveBranch creates a branch and switches to it, returning its ID
func createActiveBranch(t *testing.T, binary, configPath, name string) string {
	t.Helper()
	out := simctl(t, binary, configPath, "branch", "create", name)
	m := createdRe.FindStringSubmatch(out)
	if m == nil {
		t.Fatalf("no branch ID in output: %s", out)
	}
	simctl(t, binary, configPath, "branch", "switch", m[1])
	return m[1]
}
