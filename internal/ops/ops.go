// Package ops implements the pipeline operations behind the CLI, MCP and
// web surfaces. Each operation takes an XInput and returns an XOutput or a
// typed error.
package ops

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/qlib/internal/config"
	"github.com/hpungsan/qlib/internal/corpus"
	"github.com/hpungsan/qlib/internal/db"
	"github.com/hpungsan/qlib/internal/errors"
	"github.com/hpungsan/qlib/internal/logging"
)

// Pagination limits
const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// Pagination contains pagination metadata for list operations.
type Pagination struct {
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
	Total   int  `json:"total"`
}

// Op names recorded in the run ledger.
const (
	OpSort    = "sort"
	OpDedupe  = "dedupe"
	OpFix     = "fix"
	OpConvert = "convert"
)

// resolveRoot validates a repository root and returns it as an absolute path.
func resolveRoot(root string) (string, error) {
	if strings.TrimSpace(root) == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", errors.NewInvalidRequest("invalid root: " + root)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errors.NewFileNotFound(abs)
		}
		return "", errors.NewInternal(err)
	}
	if !info.IsDir() {
		return "", errors.NewInvalidRequest("root is not a directory: " + abs)
	}
	return abs, nil
}

// libDir returns the corpus directory under root.
func libDir(root string, cfg *config.Config) (string, error) {
	dir := cfg.LibDir
	if dir == "" {
		dir = "lib"
	}
	if err := corpus.ValidateRelDir(dir); err != nil {
		return "", err
	}
	return filepath.Join(root, dir), nil
}

// loadCorpus loads every collection under lib in parallel. The returned
// slice is in path order regardless of completion order.
func loadCorpus(ctx context.Context, lib string, workers int) ([]*corpus.Collection, error) {
	files, err := corpus.Scan(lib)
	if err != nil {
		return nil, err
	}
	if workers <= 0 {
		workers = 8
	}

	collections := make([]*corpus.Collection, len(files))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, path := range files {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			rel, err := filepath.Rel(lib, path)
			if err != nil {
				return errors.NewInternal(err)
			}
			c, err := corpus.Load(path, rel)
			if err != nil {
				return err
			}
			collections[i] = c
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return collections, nil
}

// recordRun writes a run to the ledger. A nil database disables recording.
// Ledger failures are logged, never returned: the corpus change already happened.
func recordRun(database *sql.DB, op, root string, dryRun bool, started time.Time, summary any, decisions []db.Decision) string {
	if database == nil {
		return ""
	}
	id, err := generateULID()
	if err != nil {
		logging.L().Error("failed to generate run id", zap.Error(err))
		return ""
	}

	var raw json.RawMessage
	if summary != nil {
		if data, err := json.Marshal(summary); err == nil {
			raw = data
		}
	}

	run := &db.Run{
		ID:         id,
		Op:         op,
		Root:       root,
		DryRun:     dryRun,
		StartedAt:  started.Unix(),
		FinishedAt: time.Now().Unix(),
		Summary:    raw,
	}
	if err := db.InsertRun(database, run, decisions); err != nil {
		logging.L().Error("failed to record run",
			zap.String("op", op), zap.String("run_id", id), zap.Error(err))
		return ""
	}
	return id
}

// generateULID generates a new ULID.
func generateULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// relToRoot renders path relative to root with forward slashes.
func relToRoot(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
