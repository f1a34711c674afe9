package source

import (
	"context"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hpungsan/qlib/internal/logging"
	"github.com/hpungsan/qlib/internal/parse"
	"github.com/hpungsan/qlib/internal/query"
)

// Parsed is the outcome of parsing one source file.
type Parsed struct {
	Source string
	File   File
	Result *parse.Result
	Err    error
}

// ParseAll parses files from src using up to workers goroutines. Results are
// returned in input order. Per-file read errors are recorded on the result
// rather than aborting the batch; only context cancellation stops early.
func ParseAll(ctx context.Context, src Source, files []File, workers int) ([]Parsed, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	results := make([]Parsed, len(files))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(workers)
	for i, f := range files {
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			res, err := parse.File(f.Path, query.Origin{
				Path:       f.Display,
				RelDir:     f.RelDir,
				Collection: src.Name,
			})
			if err != nil {
				logging.L().Warn("failed to read source file",
					zap.String("file", f.Display), zap.Error(err))
			}
			results[i] = Parsed{Source: src.Name, File: f, Result: res, Err: err}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
