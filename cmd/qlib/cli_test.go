package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hpungsan/qlib/internal/config"
	"github.com/hpungsan/qlib/internal/db"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()
	tmpDir := t.TempDir()
	database, err := db.Init(tmpDir)
	if err != nil {
		t.Fatalf("failed to init test db: %v", err)
	}
	cleanup := func() {
		database.Close()
	}
	return database, cleanup
}

// testConfig returns a default config for testing.
func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Workers = 2
	return cfg
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// testRepo returns a repository with one SQL source.
func testRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "fleet-docs", "usb-devices.sql"), `-- Tags: inventory
-- Platform: darwin
SELECT * FROM usb_devices;
`)
	return root
}

// runApp runs the CLI with args and returns stdout and the error.
func runApp(t *testing.T, database *sql.DB, args ...string) (string, error) {
	t.Helper()
	app := newCLIApp(database, testConfig())
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &bytes.Buffer{}
	err := app.Run(append([]string{"qlib"}, args...))
	return out.String(), err
}

func TestParseFolders(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		want    map[string]string
		wantErr bool
	}{
		{name: "empty", input: nil, want: nil},
		{name: "pairs", input: []string{"fleet-docs=fleet", " packs = community "}, want: map[string]string{"fleet-docs": "fleet", "packs": "community"}},
		{name: "missing separator", input: []string{"fleet"}, wantErr: true},
		{name: "empty folder", input: []string{"fleet="}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFolders(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseFolders() error = %v, wantErr %v", err, tt.wantErr)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("parseFolders() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("folder[%q] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input       string
		expected    int
		expectError bool
	}{
		{input: "7d", expected: 7},
		{input: "0d", expected: 0},
		{input: "7", expectError: true},
		{input: "xd", expectError: true},
		{input: "-1d", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := parseDuration(tt.input)
			if tt.expectError {
				if err == nil {
					t.Errorf("expected error for %q", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.expected {
				t.Errorf("parseDuration(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestIsCLIMode(t *testing.T) {
	tests := []struct {
		args []string
		want bool
	}{
		{[]string{"qlib"}, false},
		{[]string{"qlib", "sort"}, true},
		{[]string{"qlib", "--format", "text", "dedupe"}, true},
		{[]string{"qlib", "bogus"}, false},
	}
	for _, tt := range tests {
		if got := isCLIMode(tt.args); got != tt.want {
			t.Errorf("isCLIMode(%v) = %v, want %v", tt.args, got, tt.want)
		}
	}
	if !isHelpOrVersion([]string{"qlib", "--version"}) {
		t.Error("expected --version to be recognised")
	}
}

func TestSortCommand(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()
	root := testRepo(t)

	out, err := runApp(t, database, "sort", "--root", root, "--dry-run")
	if err != nil {
		t.Fatalf("sort --dry-run: %v", err)
	}
	var preview struct {
		DryRun bool     `json:"dry_run"`
		Files  []string `json:"files"`
	}
	if err := json.Unmarshal([]byte(out), &preview); err != nil {
		t.Fatalf("unmarshal: %v\n%s", err, out)
	}
	if !preview.DryRun {
		t.Error("expected dry_run=true")
	}
	if _, err := os.Stat(filepath.Join(root, "lib")); !os.IsNotExist(err) {
		t.Error("dry run must not create the library")
	}

	_, err = runApp(t, database, "sort", "--root", root, "--folder", "fleet-docs=fleet", "--prefix", "")
	if err != nil {
		t.Fatalf("sort: %v", err)
	}
	want := filepath.Join(root, "lib", "macos", "both", "queries", "fleet", "inventory", "usb-devices.yml")
	if _, err := os.Stat(want); err != nil {
		t.Errorf("expected %s: %v", want, err)
	}
}

func TestSortCommand_BadFolder(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := runApp(t, database, "sort", "--root", testRepo(t), "--folder", "nope")
	if err == nil || !strings.Contains(err.Error(), "INVALID_REQUEST") {
		t.Fatalf("expected INVALID_REQUEST, got %v", err)
	}
}

func TestClassifyCommand_Markdown(t *testing.T) {
	root := testRepo(t)

	out, err := runApp(t, nil, "--format", "markdown", "classify", "--root", root, filepath.Join(root, "fleet-docs", "usb-devices.sql"))
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	if !strings.HasPrefix(out, "# Classification\n") {
		t.Errorf("unexpected output:\n%s", out)
	}
	for _, want := range []string{"fleet-docs/usb-devices.sql", "| macos |", "| inventory |"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestClassifyCommand_RequiresFile(t *testing.T) {
	_, err := runApp(t, nil, "classify")
	if err == nil || !strings.Contains(err.Error(), "exactly one file") {
		t.Fatalf("expected argument error, got %v", err)
	}
}

func TestUnknownFormat(t *testing.T) {
	_, err := runApp(t, nil, "--format", "yaml", "discover", "--root", testRepo(t))
	if err == nil || !strings.Contains(err.Error(), "unknown format") {
		t.Fatalf("expected unknown format error, got %v", err)
	}
}

func TestHistoryRunAndPrune(t *testing.T) {
	database, cleanup := setupTestDB(t)
	defer cleanup()
	root := testRepo(t)

	if _, err := runApp(t, database, "sort", "--root", root, "--dry-run"); err != nil {
		t.Fatalf("sort: %v", err)
	}

	out, err := runApp(t, database, "history", "--op", "sort")
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	var history struct {
		Runs []struct {
			ID string `json:"id"`
		} `json:"runs"`
	}
	if err := json.Unmarshal([]byte(out), &history); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(history.Runs) != 1 {
		t.Fatalf("runs = %d, want 1", len(history.Runs))
	}

	out, err = runApp(t, database, "--format", "text", "run", history.Runs[0].ID)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out, "Run "+history.Runs[0].ID) || !strings.Contains(out, "placed") {
		t.Errorf("unexpected run output:\n%s", out)
	}

	if _, err := runApp(t, database, "run", "01NOPE"); err == nil || !strings.Contains(err.Error(), "NOT_FOUND") {
		t.Errorf("expected NOT_FOUND, got %v", err)
	}

	out, err = runApp(t, database, "prune", "--older-than", "1d")
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if !strings.Contains(out, `"pruned": 0`) {
		t.Errorf("unexpected prune output: %s", out)
	}

	if _, err := runApp(t, database, "prune", "--older-than", "0d"); err == nil {
		t.Error("expected prune with 0d to fail")
	}
}
