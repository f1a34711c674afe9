package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/qlib/internal/errors"
	"github.com/hpungsan/qlib/internal/query"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

const sqlQuery = "-- Tags: detection\nSELECT * FROM processes;\n"
const yamlQuery = "- name: A\n  query: SELECT 1\n"
const packQuery = `{"queries": {"a": {"query": "SELECT 1"}}}`

func repo(t *testing.T) string {
	root := t.TempDir()
	write(t, filepath.Join(root, "sqlsrc/a.sql"), sqlQuery)
	write(t, filepath.Join(root, "sqlsrc/fragments/f.sql"), sqlQuery)
	write(t, filepath.Join(root, "mixed/x.sql"), sqlQuery)
	write(t, filepath.Join(root, "mixed/y.yml"), yamlQuery)
	write(t, filepath.Join(root, "packs/p.conf"), packQuery)
	write(t, filepath.Join(root, "packs/p.json"), packQuery)
	write(t, filepath.Join(root, "docs/readme.md"), "hello")
	write(t, filepath.Join(root, "lib/linux/both/queries/s/general/a.yml"), yamlQuery)
	write(t, filepath.Join(root, "teams/t.yml"), yamlQuery)
	write(t, filepath.Join(root, ".hidden/a.sql"), sqlQuery)
	return root
}

func TestDiscover(t *testing.T) {
	root := repo(t)
	sources, err := Discover(root, "lib")
	require.NoError(t, err)

	var names []string
	types := map[string]Type{}
	for _, s := range sources {
		names = append(names, s.Name)
		types[s.Name] = s.Type
	}
	require.Equal(t, []string{"mixed", "packs", "sqlsrc"}, names)
	require.Equal(t, TypeMixed, types["mixed"])
	require.Equal(t, TypeConf, types["packs"])
	require.Equal(t, TypeSQL, types["sqlsrc"])
}

func TestDiscover_Missing(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "nope"), "lib")
	require.True(t, errors.Is(err, errors.ErrFileNotFound))
}

func TestFiles(t *testing.T) {
	root := repo(t)

	sqlSrc, err := Inspect(filepath.Join(root, "sqlsrc"))
	require.NoError(t, err)
	files, err := Files(sqlSrc)
	require.NoError(t, err)
	require.Len(t, files, 1, "fragments must be skipped")
	require.Equal(t, "sqlsrc/a.sql", files[0].Display)
	require.Equal(t, ".", files[0].RelDir)

	mixed, err := Inspect(filepath.Join(root, "mixed"))
	require.NoError(t, err)
	files, err = Files(mixed)
	require.NoError(t, err)
	require.Len(t, files, 2)
	require.Equal(t, query.FormatSQL, files[0].Format)
	require.Equal(t, query.FormatYAML, files[1].Format)
}

func TestFiles_PrefersFleetAndYAMLSiblings(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "src/Classic/c.yml"), yamlQuery)
	write(t, filepath.Join(root, "src/Fleet/a.yml"), yamlQuery)
	write(t, filepath.Join(root, "src/Fleet/a.json"), packQuery)
	write(t, filepath.Join(root, "src/Fleet/b.conf"), packQuery)

	src, err := Inspect(filepath.Join(root, "src"))
	require.NoError(t, err)
	files, err := Files(src)
	require.NoError(t, err)

	var got []string
	for _, f := range files {
		got = append(got, f.Display)
	}
	require.Equal(t, []string{"src/Fleet/a.yml", "src/Fleet/b.conf"}, got)
}

func TestInspect_NotDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.sql")
	write(t, path, sqlQuery)
	_, err := Inspect(path)
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestParseAll_Ordered(t *testing.T) {
	root := t.TempDir()
	for _, n := range []string{"a", "b", "c", "d", "e"} {
		write(t, filepath.Join(root, "src", n+".sql"), "SELECT '"+n+"';\n")
	}
	src, err := Inspect(filepath.Join(root, "src"))
	require.NoError(t, err)
	files, err := Files(src)
	require.NoError(t, err)

	results, err := ParseAll(context.Background(), src, files, 2)
	require.NoError(t, err)
	require.Len(t, results, 5)
	for i, r := range results {
		require.NoError(t, r.Err)
		require.Equal(t, files[i].Display, r.Result.Records[0].Origin.Path)
		require.Equal(t, "src", r.Result.Records[0].Origin.Collection)
	}
	require.Equal(t, "A", results[0].Result.Records[0].Name)
}

func TestParseAll_Cancelled(t *testing.T) {
	root := t.TempDir()
	write(t, filepath.Join(root, "src/a.sql"), sqlQuery)
	src, err := Inspect(filepath.Join(root, "src"))
	require.NoError(t, err)
	files, err := Files(src)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = ParseAll(ctx, src, files, 1)
	require.ErrorIs(t, err, context.Canceled)
}
