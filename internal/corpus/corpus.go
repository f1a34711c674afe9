// Package corpus reads and writes the canonical query library.
//
// The library is laid out as
//
//	{lib}/{platform}/{device}/queries/{source}/{category}/{slug}.yml
//
// and every collection file holds a YAML sequence of flat records.
package corpus

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hpungsan/qlib/internal/errors"
	"github.com/hpungsan/qlib/internal/query"
)

// Device buckets.
const (
	DeviceBoth    = "both"
	DeviceDevices = "devices"
	DeviceServers = "servers"
)

// Location is a collection's position in the layout, parsed from its path.
type Location struct {
	Platform query.Platform `json:"platform"`
	Device   string         `json:"device"`
	Source   string         `json:"source"`
	Category query.Category `json:"category"`
}

// unknown fills layout positions a short path does not have.
const unknown = "unknown"

// LocationOf parses a path relative to the library root.
func LocationOf(rel string) Location {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	at := func(i int) string {
		if i < len(parts)-1 {
			return parts[i]
		}
		return unknown
	}
	return Location{
		Platform: query.Platform(at(0)),
		Device:   at(1),
		Source:   at(3),
		Category: query.Category(at(4)),
	}
}

// PathFor returns the library-relative collection path for a record placement.
func PathFor(platform query.Platform, device, source string, category query.Category, slug string) string {
	return filepath.Join(string(platform), device, "queries",
		SanitizeSegment(source), SanitizeRelPath(string(category)), slug+".yml")
}

// Collection is one collection file.
type Collection struct {
	// Path is the file path on disk.
	Path string

	// Rel is Path relative to the library root, slash separated.
	Rel string

	// Items are the record mappings in file order.
	Items []*yaml.Node

	// Flat is false when the file held something other than a record sequence.
	Flat bool

	// loaded is the number of leading Items read from disk. replaced marks
	// the loaded items already overwritten by Upsert.
	loaded   int
	replaced map[int]bool
}

// Location parses the collection's layout position.
func (c *Collection) Location() Location {
	return LocationOf(c.Rel)
}

// Records converts items to query records with origins filled in.
func (c *Collection) Records() []query.Record {
	loc := c.Location()
	out := make([]query.Record, 0, len(c.Items))
	for i, item := range c.Items {
		if item.Kind != yaml.MappingNode {
			continue
		}
		out = append(out, query.FromSpec("", item, query.Origin{
			Path:       c.Rel,
			FileName:   filepath.Base(c.Path),
			Collection: loc.Source,
			Format:     query.FormatYAML,
			Index:      i,
		}))
	}
	return out
}

// Remove drops the items at the given indices. Out-of-range indices are ignored.
func (c *Collection) Remove(indices []int) int {
	drop := make(map[int]bool, len(indices))
	for _, i := range indices {
		if i >= 0 && i < len(c.Items) {
			drop[i] = true
		}
	}
	kept := c.Items[:0]
	loaded, replaced := 0, make(map[int]bool, len(c.replaced))
	for i, item := range c.Items {
		if drop[i] {
			continue
		}
		if i < c.loaded {
			if c.replaced[i] {
				replaced[len(kept)] = true
			}
			loaded++
		}
		kept = append(kept, item)
	}
	c.Items, c.loaded, c.replaced = kept, loaded, replaced
	return len(drop)
}

// Upsert replaces the first not yet replaced item read from disk with the
// same name, or appends spec. Items added during this load are never
// replaced, so same-named records staged together all survive. It reports
// whether an existing item was replaced.
func (c *Collection) Upsert(spec *yaml.Node) bool {
	name := query.Str(spec, "name")
	if name != "" {
		for i := 0; i < c.loaded && i < len(c.Items); i++ {
			if c.replaced[i] || query.Str(c.Items[i], "name") != name {
				continue
			}
			if c.replaced == nil {
				c.replaced = make(map[int]bool)
			}
			c.Items[i] = spec
			c.replaced[i] = true
			return true
		}
	}
	c.Items = append(c.Items, spec)
	return false
}

// Scan returns every collection file under libDir, sorted. Only files inside
// a "queries" directory are considered.
func Scan(libDir string) ([]string, error) {
	info, err := os.Stat(libDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFound(libDir)
		}
		return nil, errors.NewInternal(err)
	}
	if !info.IsDir() {
		return nil, errors.NewInvalidRequest("not a directory: " + libDir)
	}

	var files []string
	err = filepath.WalkDir(libDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != libDir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yml" && ext != ".yaml" {
			return nil
		}
		if !inQueriesDir(filepath.ToSlash(filepath.Dir(path))) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	sort.Strings(files)
	return files, nil
}

func inQueriesDir(dir string) bool {
	return strings.Contains(dir, "/queries/") || strings.HasSuffix(dir, "/queries") || dir == "queries"
}

// Load reads a collection file. rel is its path relative to the library root.
// Empty files yield no items; unparseable or non-sequence files yield no
// items with Flat unset.
func Load(path, rel string) (*Collection, error) {
	c := &Collection{Path: path, Rel: filepath.ToSlash(rel)}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewFileNotFound(path)
		}
		return nil, errors.NewInternal(err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		c.Flat = true
		return c, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return c, nil
	}
	root := query.Unwrap(&doc)
	if root == nil || root.Kind != yaml.SequenceNode {
		return c, nil
	}
	c.Flat = true
	c.Items = root.Content
	c.loaded = len(c.Items)
	return c, nil
}

// LoadOrNew loads a collection, or returns an empty one if the file is missing.
func LoadOrNew(path, rel string) (*Collection, error) {
	c, err := Load(path, rel)
	if errors.Is(err, errors.ErrFileNotFound) {
		return &Collection{Path: path, Rel: filepath.ToSlash(rel), Flat: true}, nil
	}
	return c, err
}

// Marshal renders items as a YAML sequence.
func Marshal(items []*yaml.Node) ([]byte, error) {
	seq := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq", Content: items}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(seq); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the collection, or removes the file when it has no items.
// Reports whether the file was deleted.
func Save(c *Collection) (deleted bool, err error) {
	if len(c.Items) == 0 {
		if err := os.Remove(c.Path); err != nil && !os.IsNotExist(err) {
			return false, errors.NewUnwritable(c.Path, err)
		}
		return true, nil
	}
	data, err := Marshal(c.Items)
	if err != nil {
		return false, errors.NewInternal(err)
	}
	return false, WriteFile(c.Path, data)
}

// WriteFile writes data through a temp file and an atomic rename so a
// failed write leaves the previous file intact.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.NewUnwritable(dir, err)
	}

	randBytes := make([]byte, 8)
	if _, err := rand.Read(randBytes); err != nil {
		return errors.NewInternal(fmt.Errorf("failed to generate temp file name: %w", err))
	}
	tempPath := path + "." + hex.EncodeToString(randBytes) + ".tmp"

	file, err := openFileNoFollow(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		if errors.Is(err, errors.ErrInvalidRequest) {
			return err
		}
		return errors.NewUnwritable(path, err)
	}

	success := false
	defer func() {
		if file != nil {
			file.Close()
		}
		if !success {
			os.Remove(tempPath)
		}
	}()

	if _, err := file.Write(data); err != nil {
		return errors.NewUnwritable(path, err)
	}
	if err := file.Sync(); err != nil {
		return errors.NewUnwritable(path, err)
	}
	if err := file.Close(); err != nil {
		file = nil
		return errors.NewUnwritable(path, err)
	}
	file = nil

	if err := os.Rename(tempPath, path); err != nil {
		return errors.NewUnwritable(path, err)
	}
	success = true
	return nil
}
