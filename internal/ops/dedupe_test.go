package ops

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/qlib/internal/errors"
)

func dedupeRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	lib := filepath.Join(root, "lib")
	write(t, filepath.Join(lib, "linux/both/queries/fleet-docs/compliance/ssh.yml"),
		"- name: Check SSH Config\n  query: SELECT * FROM ssh_configs;\n")
	write(t, filepath.Join(lib, "linux/both/queries/palantir/general/ssh.yml"),
		"- name: Check SSH Config\n  query: select *   from ssh_configs\n")
	write(t, filepath.Join(lib, "all/both/queries/osquery-packs/general/other.yml"),
		"- name: Other\n  query: SELECT 1;\n- name: No Body\n")
	return root
}

func TestDedupe_PreviewThenApply(t *testing.T) {
	root := dedupeRepo(t)
	cfg := testConfig()
	loser := filepath.Join(root, "lib/linux/both/queries/palantir/general/ssh.yml")

	preview, err := Dedupe(context.Background(), nil, cfg, DedupeInput{Root: root, DryRun: true})
	require.NoError(t, err)
	require.Equal(t, 3, preview.Files)
	require.Equal(t, 1, preview.Excluded)
	require.Equal(t, 1, preview.Report.Summary.Removed)
	require.Equal(t, []string{"linux/both/queries/palantir/general/ssh.yml"}, preview.Deleted)
	require.Empty(t, preview.Modified)
	require.True(t, exists(loser), "preview must not touch the corpus")

	g := preview.Report.Groups[0]
	require.Equal(t, "Check SSH Config", g.Name)
	require.Equal(t, "fleet-docs", g.Winner.Source)
	require.Equal(t, 1.0, g.Losers[0].Similarity)

	applied, err := Dedupe(context.Background(), nil, cfg, DedupeInput{Root: root})
	require.NoError(t, err)
	require.Equal(t, preview.Report.Summary, applied.Report.Summary)
	require.Equal(t, preview.Deleted, applied.Deleted)
	require.False(t, exists(loser))

	again, err := Dedupe(context.Background(), nil, cfg, DedupeInput{Root: root})
	require.NoError(t, err)
	require.Zero(t, again.Report.Summary.Removed)
	require.Empty(t, again.Deleted)
}

func TestDedupe_ModifiesSharedFile(t *testing.T) {
	root := t.TempDir()
	lib := filepath.Join(root, "lib")
	write(t, filepath.Join(lib, "all/both/queries/fleet-docs/general/a.yml"),
		"- name: A\n  query: SELECT 1\n")
	write(t, filepath.Join(lib, "all/both/queries/palantir/general/b.yml"),
		"- name: A\n  query: SELECT 1\n- name: B\n  query: SELECT 2\n")

	out, err := Dedupe(context.Background(), nil, testConfig(), DedupeInput{Root: root})
	require.NoError(t, err)
	require.Equal(t, []string{"all/both/queries/palantir/general/b.yml"}, out.Modified)
	require.Equal(t, "- name: B\n  query: SELECT 2\n", read(t, filepath.Join(lib, "all/both/queries/palantir/general/b.yml")))
}

func TestDedupe_DifferentBodiesKept(t *testing.T) {
	root := t.TempDir()
	lib := filepath.Join(root, "lib")
	write(t, filepath.Join(lib, "all/both/queries/fleet-docs/general/a.yml"),
		"- name: A\n  query: SELECT name FROM processes\n")
	write(t, filepath.Join(lib, "all/both/queries/palantir/general/a.yml"),
		"- name: A\n  query: SELECT * FROM users WHERE uid = 0\n")

	out, err := Dedupe(context.Background(), nil, testConfig(), DedupeInput{Root: root})
	require.NoError(t, err)
	require.Equal(t, 1, out.Report.Summary.KeptBoth)
	require.Zero(t, out.Report.Summary.Removed)
	require.Empty(t, out.Modified)
	require.Empty(t, out.Deleted)
}

func TestDedupe_ThresholdValidation(t *testing.T) {
	_, err := Dedupe(context.Background(), nil, testConfig(), DedupeInput{Root: t.TempDir(), Threshold: 1.5})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestDedupe_MissingLibrary(t *testing.T) {
	_, err := Dedupe(context.Background(), nil, testConfig(), DedupeInput{Root: t.TempDir()})
	require.True(t, errors.Is(err, errors.ErrFileNotFound))
}

func TestDedupe_RecordsDecisions(t *testing.T) {
	root := dedupeRepo(t)
	database := testDB(t)

	out, err := Dedupe(context.Background(), database, testConfig(), DedupeInput{Root: root, DryRun: true})
	require.NoError(t, err)

	fetched, err := FetchRun(database, FetchRunInput{ID: out.RunID})
	require.NoError(t, err)
	require.Len(t, fetched.Decisions, 2)
	require.Equal(t, "winner", fetched.Decisions[0].Role)
	require.Nil(t, fetched.Decisions[0].Similarity)
	require.Equal(t, "removed", fetched.Decisions[1].Role)
	require.NotNil(t, fetched.Decisions[1].Score)
	require.InDelta(t, 1.0, *fetched.Decisions[1].Similarity, 1e-9)
}
