package ops

import (
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/hpungsan/qlib/internal/config"
	"github.com/hpungsan/qlib/internal/corpus"
	"github.com/hpungsan/qlib/internal/errors"
	"github.com/hpungsan/qlib/internal/logging"
)

// PathsInput contains parameters for the Paths operation.
type PathsInput struct {
	Root string // default: "."

	// Update rewrites the queries block of the GitOps config files.
	Update bool
}

// PathsOutput contains the result of the Paths operation.
type PathsOutput struct {
	Both    []string `json:"both"`
	Devices []string `json:"devices"`
	Servers []string `json:"servers"`

	// Blocks holds the rendered list for each config file, keyed by its
	// path relative to the repo root.
	Blocks map[string]string `json:"blocks"`

	Updated []string `json:"updated"`
	Missing []string `json:"missing,omitempty"`
}

// configTargets maps each GitOps config file to the device group it lists.
var configTargets = []struct {
	File   string
	Group  string
	Prefix string
}{
	{"default.yml", corpus.DeviceBoth, ""},
	{"teams/workstations.yml", corpus.DeviceDevices, ".."},
	{"teams/dedicated-devices.yml", corpus.DeviceDevices, ".."},
	{"teams/it-servers.yml", corpus.DeviceServers, ".."},
}

// queriesBlock matches a "queries:" key and the list items directly under it.
var queriesBlock = regexp.MustCompile(`(queries:)\s*(?:\n(?:  - [^\n]+\n)*|\n)`)

// Paths lists library collections by device group and renders the path
// lists consumed by GitOps config files, optionally writing them in place.
func Paths(cfg *config.Config, input PathsInput) (*PathsOutput, error) {
	root, err := resolveRoot(input.Root)
	if err != nil {
		return nil, err
	}
	lib, err := libDir(root, cfg)
	if err != nil {
		return nil, err
	}
	files, err := corpus.Scan(lib)
	if err != nil {
		return nil, err
	}

	out := &PathsOutput{
		Both:    []string{},
		Devices: []string{},
		Servers: []string{},
		Blocks:  map[string]string{},
		Updated: []string{},
	}
	for _, f := range files {
		rel := relToRoot(lib, f)
		switch {
		case strings.Contains(rel, "/both/"):
			out.Both = append(out.Both, rel)
		case strings.Contains(rel, "/devices/"):
			out.Devices = append(out.Devices, rel)
		case strings.Contains(rel, "/servers/"):
			out.Servers = append(out.Servers, rel)
		default:
			out.Both = append(out.Both, rel)
		}
	}

	libName := filepath.ToSlash(cfg.LibDir)
	if libName == "" {
		libName = "lib"
	}
	groups := map[string][]string{
		corpus.DeviceBoth:    out.Both,
		corpus.DeviceDevices: out.Devices,
		corpus.DeviceServers: out.Servers,
	}

	log := logging.L()
	for _, target := range configTargets {
		block := FormatPathList(groups[target.Group], target.Prefix, libName)
		out.Blocks[target.File] = block
		if !input.Update {
			continue
		}

		file := filepath.Join(root, filepath.FromSlash(target.File))
		content, err := os.ReadFile(file)
		if err != nil {
			if os.IsNotExist(err) {
				out.Missing = append(out.Missing, target.File)
				continue
			}
			return nil, errors.NewInternal(err)
		}
		updated := ReplaceQueriesBlock(string(content), block)
		if err := corpus.WriteFile(file, []byte(updated)); err != nil {
			return nil, err
		}
		out.Updated = append(out.Updated, target.File)
		log.Info("updated config queries", zap.String("file", target.File), zap.Int("paths", len(groups[target.Group])))
	}
	return out, nil
}

// FormatPathList renders "  - path: lib/..." lines, one per collection.
func FormatPathList(rels []string, prefix, libName string) string {
	lines := make([]string, 0, len(rels))
	for _, rel := range rels {
		lines = append(lines, "  - path: "+path.Join(prefix, libName, rel))
	}
	return strings.Join(lines, "\n")
}

// ReplaceQueriesBlock replaces the first queries block in content with list.
// Content without a queries key is returned unchanged.
func ReplaceQueriesBlock(content, list string) string {
	loc := queriesBlock.FindStringIndex(content)
	if loc == nil {
		return content
	}
	replacement := "queries:\n"
	if list != "" {
		replacement = "queries:\n" + list + "\n"
	}
	return content[:loc[0]] + replacement + content[loc[1]:]
}
