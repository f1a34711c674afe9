// Package source discovers query source collections under a repository root
// and parses their files in parallel.
package source

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hpungsan/qlib/internal/errors"
	"github.com/hpungsan/qlib/internal/parse"
	"github.com/hpungsan/qlib/internal/query"
)

// Type summarises what a source holds.
type Type string

const (
	TypeSQL   Type = "sql"
	TypeMixed Type = "mixed"
	TypeConf  Type = "conf"
	TypeJSON  Type = "json"
	TypeYAML  Type = "yaml"
)

// Source is a top-level directory holding query files.
type Source struct {
	Name       string   `json:"name"`
	Path       string   `json:"path"`
	Type       Type     `json:"type"`
	FileCount  int      `json:"file_count"`
	Extensions []string `json:"extensions"`
}

// skipTopLevel are repository directories that never hold sources.
var skipTopLevel = map[string]bool{
	"lib": true, ".git": true, "__pycache__": true,
	"node_modules": true, ".github": true, "teams": true,
}

// skipNested are directories skipped while counting a source's files.
var skipNested = map[string]bool{
	"images": true, "node_modules": true, "__pycache__": true,
}

// skipSQL are directories skipped while collecting SQL files.
var skipSQL = map[string]bool{
	"fragments": true, ".git": true, ".github": true, "images": true,
}

var queryExts = map[string]bool{
	".sql": true, ".yml": true, ".yaml": true, ".json": true, ".conf": true,
}

// Discover lists source directories directly under root, sorted by name.
// libDir is also skipped when it differs from "lib".
func Discover(root, libDir string) ([]Source, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFound(root)
		}
		return nil, errors.NewInternal(err)
	}

	var sources []Source
	for _, e := range entries {
		name := e.Name()
		if !e.IsDir() || skipTopLevel[name] || name == libDir || strings.HasPrefix(name, ".") {
			continue
		}
		src, err := inspect(filepath.Join(root, name), name)
		if err != nil {
			return nil, err
		}
		if src.FileCount > 0 {
			sources = append(sources, src)
		}
	}
	return sources, nil
}

// Inspect describes a single directory as a source.
func Inspect(path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Source{}, errors.NewFileNotFound(path)
		}
		return Source{}, errors.NewInternal(err)
	}
	if !info.IsDir() {
		return Source{}, errors.NewInvalidRequest("source is not a directory: " + path)
	}
	return inspect(path, filepath.Base(path))
}

func inspect(path, name string) (Source, error) {
	src := Source{Name: name, Path: path}
	exts := map[string]bool{}

	err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != path && (strings.HasPrefix(d.Name(), ".") || skipNested[d.Name()]) {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(p))
		if !queryExts[ext] || !parse.IsQueryFile(p) {
			return nil
		}
		src.FileCount++
		exts[ext] = true
		return nil
	})
	if err != nil {
		return src, errors.NewInternal(err)
	}

	for ext := range exts {
		src.Extensions = append(src.Extensions, ext)
	}
	sort.Strings(src.Extensions)

	switch {
	case exts[".sql"] && len(exts) == 1:
		src.Type = TypeSQL
	case exts[".sql"]:
		src.Type = TypeMixed
	case exts[".conf"]:
		src.Type = TypeConf
	case exts[".json"]:
		src.Type = TypeJSON
	default:
		src.Type = TypeYAML
	}
	return src, nil
}

// File is one source file scheduled for parsing.
type File struct {
	// Path is the file on disk.
	Path string `json:"path"`

	// Display is the path relative to the repository root, used for
	// classification and reporting.
	Display string `json:"display"`

	// RelDir is the file's directory relative to the source root ("." at the root).
	RelDir string `json:"rel_dir"`

	Format query.Format `json:"format"`
}

// Files lists the files a source contributes, in processing order.
// SQL files come first for mixed sources.
func Files(src Source) ([]File, error) {
	var files []File
	if src.Type == TypeSQL || src.Type == TypeMixed {
		sqlFiles, err := sqlFiles(src)
		if err != nil {
			return nil, err
		}
		files = append(files, sqlFiles...)
	}
	if src.Type != TypeSQL {
		structured, err := structuredFiles(src)
		if err != nil {
			return nil, err
		}
		files = append(files, structured...)
	}
	return files, nil
}

func sqlFiles(src Source) ([]File, error) {
	var files []File
	err := filepath.WalkDir(src.Path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != src.Path && skipSQL[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".sql") {
			return nil
		}
		files = append(files, newFile(src, src.Path, p))
		return nil
	})
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return files, nil
}

// structuredFiles prefers a Fleet/ subdirectory, then Classic/, and skips
// .json/.conf files shadowed by a same-stem .yaml or .yml.
func structuredFiles(src Source) ([]File, error) {
	searchRoot := src.Path
	for _, sub := range []string{"Fleet", "Classic"} {
		if info, err := os.Stat(filepath.Join(src.Path, sub)); err == nil && info.IsDir() {
			searchRoot = filepath.Join(src.Path, sub)
			break
		}
	}

	var files []File
	err := filepath.WalkDir(searchRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != searchRoot && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(p)) {
		case ".yml", ".yaml":
			files = append(files, newFile(src, src.Path, p))
		case ".json", ".conf":
			stem := strings.TrimSuffix(p, filepath.Ext(p))
			if exists(stem+".yaml") || exists(stem+".yml") {
				return nil
			}
			files = append(files, newFile(src, src.Path, p))
		}
		return nil
	})
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return files, nil
}

func newFile(src Source, root, p string) File {
	rel, _ := filepath.Rel(root, p)
	relDir := filepath.ToSlash(filepath.Dir(rel))
	format, _ := parse.FormatOf(p)
	return File{
		Path:    p,
		Display: src.Name + "/" + filepath.ToSlash(rel),
		RelDir:  relDir,
		Format:  format,
	}
}

func exists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
