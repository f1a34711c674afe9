package ops

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func pathsRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	lib := filepath.Join(root, "lib")
	for _, rel := range []string{
		"linux/both/queries/a/general/x.yml",
		"macos/devices/queries/b/general/y.yml",
		"linux/servers/queries/c/general/z.yml",
	} {
		write(t, filepath.Join(lib, rel), "- name: q\n  query: SELECT 1\n")
	}
	return root
}

func TestPaths_Groups(t *testing.T) {
	root := pathsRepo(t)

	out, err := Paths(testConfig(), PathsInput{Root: root})
	require.NoError(t, err)
	require.Equal(t, []string{"linux/both/queries/a/general/x.yml"}, out.Both)
	require.Equal(t, []string{"macos/devices/queries/b/general/y.yml"}, out.Devices)
	require.Equal(t, []string{"linux/servers/queries/c/general/z.yml"}, out.Servers)
	require.Equal(t, "  - path: lib/linux/both/queries/a/general/x.yml", out.Blocks["default.yml"])
	require.Equal(t, "  - path: ../lib/linux/servers/queries/c/general/z.yml", out.Blocks["teams/it-servers.yml"])
	require.Empty(t, out.Updated)
}

func TestPaths_Update(t *testing.T) {
	root := pathsRepo(t)
	write(t, filepath.Join(root, "default.yml"), "org_settings:\n  x: 1\nqueries:\n  - path: old.yml\npolicies:\n")
	write(t, filepath.Join(root, "teams/it-servers.yml"), "name: it\nqueries:\n")

	out, err := Paths(testConfig(), PathsInput{Root: root, Update: true})
	require.NoError(t, err)
	require.Equal(t, []string{"default.yml", "teams/it-servers.yml"}, out.Updated)
	require.Equal(t, []string{"teams/workstations.yml", "teams/dedicated-devices.yml"}, out.Missing)

	require.Equal(t,
		"org_settings:\n  x: 1\nqueries:\n  - path: lib/linux/both/queries/a/general/x.yml\npolicies:\n",
		read(t, filepath.Join(root, "default.yml")))
	require.Equal(t,
		"name: it\nqueries:\n  - path: ../lib/linux/servers/queries/c/general/z.yml\n",
		read(t, filepath.Join(root, "teams/it-servers.yml")))
}

func TestReplaceQueriesBlock(t *testing.T) {
	tests := []struct {
		name    string
		content string
		list    string
		want    string
	}{
		{"empty list clears", "queries:\n  - path: a\n  - path: b\nnext: 1\n", "", "queries:\nnext: 1\n"},
		{"no key unchanged", "policies:\n", "  - path: a", "policies:\n"},
		{"first block only", "queries:\n  - path: a\nqueries:\n  - path: b\n", "  - path: c",
			"queries:\n  - path: c\nqueries:\n  - path: b\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, ReplaceQueriesBlock(tt.content, tt.list))
		})
	}
}

func TestFormatPathList(t *testing.T) {
	require.Equal(t, "", FormatPathList(nil, "", "lib"))
	require.Equal(t, "  - path: ../corpus/a.yml\n  - path: ../corpus/b.yml",
		FormatPathList([]string{"a.yml", "b.yml"}, "..", "corpus"))
}
