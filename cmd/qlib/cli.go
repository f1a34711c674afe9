package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/hpungsan/qlib/internal/config"
	"github.com/hpungsan/qlib/internal/errors"
	"github.com/hpungsan/qlib/internal/logging"
	"github.com/hpungsan/qlib/internal/ops"
	"github.com/hpungsan/qlib/internal/report"
	"github.com/hpungsan/qlib/internal/watch"
	"github.com/hpungsan/qlib/internal/web"
)

// Output formats.
const (
	formatJSON     = "json"
	formatText     = "text"
	formatMarkdown = "markdown"
)

// newCLIApp creates the CLI application with all commands.
func newCLIApp(db *sql.DB, cfg *config.Config) *cli.App {
	app := &cli.App{
		Name:    "qlib",
		Usage:   "Classify, deduplicate and normalize osquery/Fleet query libraries",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "format", Aliases: []string{"f"}, Value: formatJSON, Usage: "Output format: json|text|markdown"},
			&cli.BoolFlag{Name: "verbose", Usage: "Log at debug level"},
		},
		Before: func(c *cli.Context) error {
			if !c.Bool("verbose") {
				return nil
			}
			_, err := logging.Init(cfg.LogLevel, true)
			return err
		},
		Commands: []*cli.Command{
			discoverCmd(cfg),
			sortCmd(db, cfg),
			dedupeCmd(db, cfg),
			fixCmd(db, cfg),
			convertCmd(db, cfg),
			pathsCmd(cfg),
			classifyCmd(),
			historyCmd(db),
			runCmd(db),
			pruneCmd(db),
			watchCmd(db, cfg),
			uiCmd(db, cfg),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func rootFlag() cli.Flag {
	return &cli.StringFlag{Name: "root", Aliases: []string{"r"}, Value: ".", Usage: "Repository root"}
}

func dryRunFlag() cli.Flag {
	return &cli.BoolFlag{Name: "dry-run", Aliases: []string{"n"}, Usage: "Report what would change without writing"}
}

// discoverCmd creates the discover command.
func discoverCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "discover",
		Usage: "List query source directories under the repository root",
		Flags: []cli.Flag{rootFlag()},
		Action: func(c *cli.Context) error {
			output, err := ops.Discover(cfg, ops.DiscoverInput{Root: c.String("root")})
			if err != nil {
				return outputError(err)
			}
			return render(c, output)
		},
	}
}

// sortCmd creates the sort command.
func sortCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:      "sort",
		Usage:     "Classify source queries and place them in the library layout",
		ArgsUsage: "[source...]",
		Flags: []cli.Flag{
			rootFlag(),
			dryRunFlag(),
			&cli.StringSliceFlag{Name: "folder", Usage: "Output folder override as source=name (repeatable)"},
			&cli.StringFlag{Name: "prefix", Usage: "Prefix for names derived from SQL file names (default: configured name_prefix)"},
			&cli.StringFlag{Name: "device", Usage: "Device bucket: both|devices|servers (default: configured device)"},
		},
		Action: func(c *cli.Context) error {
			folders, err := parseFolders(c.StringSlice("folder"))
			if err != nil {
				return outputError(err)
			}

			input := ops.SortInput{
				Root:    c.String("root"),
				Sources: c.Args().Slice(),
				Folders: folders,
				Device:  c.String("device"),
				DryRun:  c.Bool("dry-run"),
			}
			if c.IsSet("prefix") {
				prefix := c.String("prefix")
				input.Prefix = &prefix
			}

			output, err := ops.Sort(c.Context, db, cfg, input)
			if err != nil {
				return outputError(err)
			}
			return render(c, output)
		},
	}
}

// dedupeCmd creates the dedupe command.
func dedupeCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "dedupe",
		Usage: "Remove near-identical same-named queries from the library",
		Flags: []cli.Flag{
			rootFlag(),
			dryRunFlag(),
			&cli.Float64Flag{Name: "threshold", Aliases: []string{"t"}, Usage: "Similarity threshold in [0,1] (default: configured similarity_threshold)"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Dedupe(c.Context, db, cfg, ops.DedupeInput{
				Root:      c.String("root"),
				Threshold: c.Float64("threshold"),
				DryRun:    c.Bool("dry-run"),
			})
			if err != nil {
				return outputError(err)
			}
			return render(c, output)
		},
	}
}

// fixCmd creates the fix command.
func fixCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "fix",
		Usage: "Remove empty and YARA-style queries and normalize intervals",
		Flags: []cli.Flag{
			rootFlag(),
			dryRunFlag(),
			&cli.StringFlag{Name: "yara", Value: string(ops.YaraRemove), Usage: "YARA-style queries: remove|move"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Fix(c.Context, db, cfg, ops.FixInput{
				Root:   c.String("root"),
				Yara:   ops.YaraMode(c.String("yara")),
				DryRun: c.Bool("dry-run"),
			})
			if err != nil {
				return outputError(err)
			}
			return render(c, output)
		},
	}
}

// convertCmd creates the convert command.
func convertCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "convert",
		Usage: "Rewrite legacy multi-document query files as flat record lists",
		Flags: []cli.Flag{rootFlag(), dryRunFlag()},
		Action: func(c *cli.Context) error {
			output, err := ops.Convert(c.Context, db, cfg, ops.ConvertInput{
				Root:   c.String("root"),
				DryRun: c.Bool("dry-run"),
			})
			if err != nil {
				return outputError(err)
			}
			return render(c, output)
		},
	}
}

// pathsCmd creates the paths command.
func pathsCmd(cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "paths",
		Usage: "Render the GitOps queries path lists for the library",
		Flags: []cli.Flag{
			rootFlag(),
			&cli.BoolFlag{Name: "update", Aliases: []string{"u"}, Usage: "Rewrite the queries block of each config file"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Paths(cfg, ops.PathsInput{Root: c.String("root"), Update: c.Bool("update")})
			if err != nil {
				return outputError(err)
			}
			return render(c, output)
		},
	}
}

// classifyCmd creates the classify command.
func classifyCmd() *cli.Command {
	return &cli.Command{
		Name:      "classify",
		Usage:     "Show how each query in a source file is classified",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "root", Aliases: []string{"r"}, Usage: "Report the file path relative to this root"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(errors.NewInvalidRequest("exactly one file is required"))
			}
			output, err := ops.Classify(ops.ClassifyInput{Path: c.Args().First(), Root: c.String("root")})
			if err != nil {
				return outputError(err)
			}
			return render(c, output)
		},
	}
}

// historyCmd creates the history command.
func historyCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List recorded runs, newest first",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "op", Usage: "Filter by operation: sort|dedupe|fix|convert"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: ops.DefaultListLimit, Usage: "Maximum runs to return"},
			&cli.IntFlag{Name: "offset", Aliases: []string{"o"}, Usage: "Number of runs to skip"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.History(db, ops.HistoryInput{
				Op:     c.String("op"),
				Limit:  c.Int("limit"),
				Offset: c.Int("offset"),
			})
			if err != nil {
				return outputError(err)
			}
			return render(c, output)
		},
	}
}

// runCmd creates the run command.
func runCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Show one recorded run with its decisions",
		ArgsUsage: "<id>",
		Action: func(c *cli.Context) error {
			output, err := ops.FetchRun(db, ops.FetchRunInput{ID: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return render(c, output)
		},
	}
}

// pruneCmd creates the prune command.
func pruneCmd(db *sql.DB) *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Delete recorded runs older than a duration",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Value: "30d", Usage: "Age in days, e.g. 30d"},
		},
		Action: func(c *cli.Context) error {
			days, err := parseDuration(c.String("older-than"))
			if err != nil {
				return outputError(errors.NewInvalidRequest(err.Error()))
			}
			output, err := ops.Prune(db, ops.PruneInput{OlderThanDays: days})
			if err != nil {
				return outputError(err)
			}
			return render(c, output)
		},
	}
}

// watchCmd creates the watch command.
func watchCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Preview a sort every time a source file changes",
		Flags: []cli.Flag{
			rootFlag(),
			&cli.DurationFlag{Name: "debounce", Value: watch.DefaultDebounce, Usage: "Quiet period before a rerun"},
		},
		Action: func(c *cli.Context) error {
			output, err := ops.Discover(cfg, ops.DiscoverInput{Root: c.String("root")})
			if err != nil {
				return outputError(err)
			}
			w, err := watch.New(output.Root, cfg.LibDir, c.Duration("debounce"))
			if err != nil {
				return outputError(err)
			}

			ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logging.L().Info("watching sources", zap.String("root", output.Root), zap.Int("dirs", len(w.Watched())))
			err = w.Run(ctx, func(ctx context.Context, changed []string) {
				started := time.Now()
				out, err := ops.Sort(ctx, db, cfg, ops.SortInput{Root: output.Root, DryRun: true})
				if err != nil {
					logging.L().Error("preview sort failed", zap.Error(err))
					return
				}
				logging.L().Info("preview sort",
					zap.Int("changed", len(changed)),
					zap.Int("total", out.Totals.Total),
					zap.Duration("took", time.Since(started)))
				if err := render(c, out); err != nil {
					logging.L().Error("write report", zap.Error(err))
				}
			})
			if err != nil {
				return outputError(err)
			}
			return nil
		},
	}
}

// uiCmd creates the ui command.
func uiCmd(db *sql.DB, cfg *config.Config) *cli.Command {
	return &cli.Command{
		Name:  "ui",
		Usage: "Serve the run viewer",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "bind", Value: "127.0.0.1", Usage: "Address to bind"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Value: 8520, Usage: "Port to listen on"},
		},
		Action: func(c *cli.Context) error {
			return web.Run(web.NewServer(db, cfg, Version, c.String("bind"), c.Int("port")))
		},
	}
}

// Helper functions

// output_ writes v to the app writer in the format selected by --format.
func render(c *cli.Context, v any) error {
	w := c.App.Writer
	switch format := c.String("format"); format {
	case formatJSON, "":
		return outputJSON(w, v)
	case formatText:
		_, err := io.WriteString(w, report.Text(v, nil))
		return err
	case formatMarkdown:
		_, err := io.WriteString(w, report.Markdown(v))
		return err
	default:
		return outputError(errors.NewInvalidRequest("unknown format: " + format))
	}
}

// outputJSON marshals result as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if qErr, ok := errors.As(err); ok {
		return cli.Exit(fmt.Sprintf("[%s] %s", qErr.Code, qErr.Message), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// parseFolders turns "source=folder" pairs into a map.
func parseFolders(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	folders := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, folder, ok := strings.Cut(p, "=")
		name, folder = strings.TrimSpace(name), strings.TrimSpace(folder)
		if !ok || name == "" || folder == "" {
			return nil, errors.NewInvalidRequest("folder must be source=name: " + p)
		}
		folders[name] = folder
	}
	return folders, nil
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}
