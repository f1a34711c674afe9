package ops

import (
	"github.com/hpungsan/qlib/internal/config"
	"github.com/hpungsan/qlib/internal/source"
)

// DiscoverInput contains parameters for the Discover operation.
type DiscoverInput struct {
	Root string // default: "."
}

// DiscoverOutput contains the result of the Discover operation.
type DiscoverOutput struct {
	Root    string          `json:"root"`
	Sources []source.Source `json:"sources"`
}

// Discover lists the query sources under a repository root.
func Discover(cfg *config.Config, input DiscoverInput) (*DiscoverOutput, error) {
	root, err := resolveRoot(input.Root)
	if err != nil {
		return nil, err
	}
	sources, err := source.Discover(root, cfg.LibDir)
	if err != nil {
		return nil, err
	}
	if sources == nil {
		sources = []source.Source{}
	}
	return &DiscoverOutput{Root: root, Sources: sources}, nil
}
