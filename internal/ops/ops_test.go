package ops

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/qlib/internal/config"
	"github.com/hpungsan/qlib/internal/db"
	"github.com/hpungsan/qlib/internal/errors"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func read(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	database, err := db.Init(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	return database
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Workers = 2
	return cfg
}

func TestResolveRoot(t *testing.T) {
	dir := t.TempDir()
	got, err := resolveRoot(dir)
	require.NoError(t, err)
	require.True(t, filepath.IsAbs(got))

	_, err = resolveRoot(filepath.Join(dir, "missing"))
	require.True(t, errors.Is(err, errors.ErrFileNotFound))

	file := filepath.Join(dir, "f")
	write(t, file, "x")
	_, err = resolveRoot(file)
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestLibDir_RejectsTraversal(t *testing.T) {
	cfg := testConfig()
	cfg.LibDir = "../elsewhere"
	_, err := libDir(t.TempDir(), cfg)
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestLoadCorpus_Ordered(t *testing.T) {
	lib := filepath.Join(t.TempDir(), "lib")
	for _, rel := range []string{
		"windows/both/queries/c/general/c.yml",
		"all/both/queries/a/general/a.yml",
		"linux/both/queries/b/general/b.yml",
	} {
		write(t, filepath.Join(lib, rel), "- name: x\n  query: SELECT 1\n")
	}

	collections, err := loadCorpus(context.Background(), lib, 2)
	require.NoError(t, err)
	require.Len(t, collections, 3)
	require.Equal(t, "all/both/queries/a/general/a.yml", collections[0].Rel)
	require.Equal(t, "linux/both/queries/b/general/b.yml", collections[1].Rel)
	require.Equal(t, "windows/both/queries/c/general/c.yml", collections[2].Rel)
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "fleet-docs/a.sql"), "SELECT 1;\n")
	write(t, filepath.Join(root, "lib/linux/both/queries/x/general/a.yml"), "- name: a\n  query: SELECT 1\n")

	out, err := Discover(testConfig(), DiscoverInput{Root: root})
	require.NoError(t, err)
	require.Len(t, out.Sources, 1)
	require.Equal(t, "fleet-docs", out.Sources[0].Name)

	empty, err := Discover(testConfig(), DiscoverInput{Root: t.TempDir()})
	require.NoError(t, err)
	require.NotNil(t, empty.Sources)
	require.Empty(t, empty.Sources)
}
