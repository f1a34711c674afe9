package ops

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/qlib/internal/corpus"
	"github.com/hpungsan/qlib/internal/errors"
	"github.com/hpungsan/qlib/internal/query"
)

const fixRel = "linux/both/queries/x/general/a.yml"

func fixRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	write(t, filepath.Join(root, "lib", fixRel), `- name: A
  query: SELECT 1
  interval: "60"
- name: B
  query: ""
- name: Y
  query: SELECT * FROM yara WHERE sigrule = '$rule'
- name: Fleet
  query: SELECT '$FLEET_VAR' AS v
`)
	write(t, filepath.Join(root, "lib/linux/both/queries/x/general/clean.yml"),
		"- name: Clean\n  query: SELECT 2\n  interval: 30\n")
	return root
}

func TestFix_Remove(t *testing.T) {
	root := fixRepo(t)

	out, err := Fix(context.Background(), nil, testConfig(), FixInput{Root: root})
	require.NoError(t, err)
	require.Equal(t, 1, out.NoSQLRemoved)
	require.Equal(t, 1, out.YaraRemoved)
	require.Equal(t, 1, out.IntervalsFixed)
	require.Equal(t, []string{fixRel}, out.Modified)
	require.Empty(t, out.Moved)

	c, err := corpus.Load(filepath.Join(root, "lib", fixRel), fixRel)
	require.NoError(t, err)
	require.Len(t, c.Items, 2)
	require.Equal(t, "A", query.Str(c.Items[0], "name"))
	require.Equal(t, "!!int", query.Get(c.Items[0], "interval").ShortTag())
	require.Equal(t, "Fleet", query.Str(c.Items[1], "name"))

	again, err := Fix(context.Background(), nil, testConfig(), FixInput{Root: root})
	require.NoError(t, err)
	require.Empty(t, again.Changes)
	require.Empty(t, again.Modified)
}

func TestFix_DryRun(t *testing.T) {
	root := fixRepo(t)
	before := read(t, filepath.Join(root, "lib", fixRel))

	out, err := Fix(context.Background(), nil, testConfig(), FixInput{Root: root, DryRun: true})
	require.NoError(t, err)
	require.Len(t, out.Changes, 3)
	require.Equal(t, before, read(t, filepath.Join(root, "lib", fixRel)))
}

func TestFix_MoveYara(t *testing.T) {
	root := fixRepo(t)

	out, err := Fix(context.Background(), nil, testConfig(), FixInput{Root: root, Yara: YaraMove})
	require.NoError(t, err)
	require.Equal(t, []FileMove{{From: "lib/" + fixRel, To: "yara/" + fixRel}}, out.Moved)
	require.Zero(t, out.YaraRemoved)
	require.False(t, exists(filepath.Join(root, "lib", fixRel)))
	require.True(t, exists(filepath.Join(root, "yara", fixRel)))
	require.True(t, exists(filepath.Join(root, "lib/linux/both/queries/x/general/clean.yml")))
}

func TestFix_DeletesEmptiedFile(t *testing.T) {
	root := t.TempDir()
	rel := "all/both/queries/x/general/empty.yml"
	write(t, filepath.Join(root, "lib", rel), "- name: Nothing\n  query: \"  \"\n")

	out, err := Fix(context.Background(), nil, testConfig(), FixInput{Root: root})
	require.NoError(t, err)
	require.Equal(t, []string{rel}, out.Deleted)
	require.False(t, exists(filepath.Join(root, "lib", rel)))
}

func TestFix_InvalidMode(t *testing.T) {
	_, err := Fix(context.Background(), nil, testConfig(), FixInput{Root: t.TempDir(), Yara: "shred"})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}
