package ops

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/qlib/internal/db"
	"github.com/hpungsan/qlib/internal/errors"
	"github.com/hpungsan/qlib/internal/query"
)

func TestClassify(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "packs", "mixed.yml")
	write(t, path, `- name: Registry Run Keys
  query: SELECT * FROM registry WHERE path LIKE '%Run%'
- name: Yara Scan
  platform: linux
  purpose: detection
  query: SELECT * FROM yara WHERE sigrule = '$rule'
- name: Nothing
`)

	out, err := Classify(ClassifyInput{Path: path, Root: root})
	require.NoError(t, err)
	require.Equal(t, "packs/mixed.yml", out.Path)
	require.Equal(t, query.FormatYAML, out.Format)
	require.Len(t, out.Records, 3)

	reg := out.Records[0]
	require.Equal(t, query.PlatformWindows, reg.Platform)
	require.Equal(t, "body", reg.PlatformBy)

	yara := out.Records[1]
	require.Equal(t, query.PlatformLinux, yara.Platform)
	require.Equal(t, query.CategoryDetection, yara.Category)
	require.Equal(t, "purpose", yara.CategoryBy)
	require.True(t, yara.YaraVariables)

	require.Equal(t, query.DropNoSQL, out.Records[2].Dropped)
	require.Empty(t, out.Records[2].Platform)
}

func TestClassify_Errors(t *testing.T) {
	_, err := Classify(ClassifyInput{})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = Classify(ClassifyInput{Path: filepath.Join(t.TempDir(), "missing.sql")})
	require.True(t, errors.Is(err, errors.ErrFileNotFound))
}

func TestHistory(t *testing.T) {
	database := testDB(t)
	root := sortRepo(t)

	for i := 0; i < 3; i++ {
		_, err := Sort(context.Background(), database, testConfig(), SortInput{Root: root, DryRun: true})
		require.NoError(t, err)
	}

	out, err := History(database, HistoryInput{Limit: 2})
	require.NoError(t, err)
	require.Len(t, out.Runs, 2)
	require.Equal(t, Pagination{Limit: 2, Offset: 0, HasMore: true, Total: 3}, out.Pagination)

	out, err = History(database, HistoryInput{Op: OpDedupe})
	require.NoError(t, err)
	require.Empty(t, out.Runs)
	require.Equal(t, DefaultListLimit, out.Pagination.Limit)

	_, err = History(database, HistoryInput{Op: "bogus"})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestFetchRun_Errors(t *testing.T) {
	database := testDB(t)

	_, err := FetchRun(database, FetchRunInput{})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	_, err = FetchRun(database, FetchRunInput{ID: "01NOPE"})
	require.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestPrune(t *testing.T) {
	database := testDB(t)
	old := time.Now().Add(-40 * 24 * time.Hour).Unix()
	require.NoError(t, db.InsertRun(database, &db.Run{ID: "01OLD", Op: OpSort, Root: "/r", StartedAt: old, FinishedAt: old}, nil))
	require.NoError(t, db.InsertRun(database, &db.Run{ID: "01NEW", Op: OpSort, Root: "/r", StartedAt: time.Now().Unix(), FinishedAt: time.Now().Unix()}, nil))

	out, err := Prune(database, PruneInput{OlderThanDays: 30})
	require.NoError(t, err)
	require.Equal(t, 1, out.Pruned)

	_, err = FetchRun(database, FetchRunInput{ID: "01OLD"})
	require.True(t, errors.Is(err, errors.ErrNotFound))

	_, err = Prune(database, PruneInput{})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}
