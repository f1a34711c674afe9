// Package query defines the query record shared by the parser, classifiers,
// deduplicator and corpus writer.
package query

import (
	"gopkg.in/yaml.v3"
)

// Platform is a storage bucket for a record.
type Platform string

const (
	PlatformMacOS   Platform = "macos"
	PlatformLinux   Platform = "linux"
	PlatformWindows Platform = "windows"
	PlatformAll     Platform = "all"
)

// Platforms lists the closed set of storage buckets.
var Platforms = []Platform{PlatformMacOS, PlatformLinux, PlatformWindows, PlatformAll}

// Category is a resolved category. Values outside the known set are custom
// categories carried through from an explicit purpose field.
type Category string

const (
	CategoryGeneral          Category = "general"
	CategoryCompliance       Category = "compliance"
	CategoryDetection        Category = "detection"
	CategoryIncidentResponse Category = "incident-response"
	CategoryInformational    Category = "informational"
	CategoryEndpoints        Category = "endpoints"
	CategoryPerformance      Category = "performance"
	CategoryPolicy           Category = "policy"
	CategoryInventory        Category = "inventory"
	CategoryVulnerability    Category = "vulnerability"
	CategoryServers          Category = "servers"
)

// Categories is the ordered category set. Order encodes dedup precedence.
var Categories = []Category{
	CategoryGeneral,
	CategoryCompliance,
	CategoryDetection,
	CategoryIncidentResponse,
	CategoryInformational,
	CategoryEndpoints,
	CategoryPerformance,
	CategoryPolicy,
	CategoryInventory,
	CategoryVulnerability,
	CategoryServers,
}

// Format is the source file shape a record was parsed from.
type Format string

const (
	FormatSQL  Format = "sql"
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatConf Format = "conf"
)

// Origin is provenance metadata for a record. It feeds both classifiers and
// the dedup score but is never written to the corpus.
type Origin struct {
	// Path is the file path the record was read from.
	Path string `json:"path"`

	// FileName is the base name of Path.
	FileName string `json:"file_name"`

	// RelDir is the directory of Path relative to its source root ("." at the root).
	RelDir string `json:"rel_dir,omitempty"`

	// Collection is the source collection name (e.g. "fleet-docs").
	Collection string `json:"collection,omitempty"`

	// Format is the input shape.
	Format Format `json:"format"`

	// Index is the record position within its file.
	Index int `json:"index"`
}

// Record is a single query definition.
type Record struct {
	Name           string
	Body           string
	PlatformHint   string
	Purpose        string
	Description    string
	Interval       *int
	Tags           []string
	References     []string
	FalsePositives []string
	Kind           string

	// Spec holds every original field as a YAML mapping in input order.
	// Nil for records built from commented SQL.
	Spec *yaml.Node

	Origin Origin
}

// Classification is the resolved placement of a record.
type Classification struct {
	Platform Platform `json:"platform"`
	Label    string   `json:"label,omitempty"`
	Category Category `json:"category"`
}
