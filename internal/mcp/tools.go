package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

var readOnlyAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(true),
	DestructiveHint: mcp.ToBoolPtr(false),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

// Mutating tools preview by default; their annotation reflects the apply path.
var writeAnnotation = mcp.ToolAnnotation{
	ReadOnlyHint:    mcp.ToBoolPtr(false),
	DestructiveHint: mcp.ToBoolPtr(true),
	IdempotentHint:  mcp.ToBoolPtr(true),
	OpenWorldHint:   mcp.ToBoolPtr(false),
}

func rootOption() mcp.ToolOption {
	return mcp.WithString("root",
		mcp.Description("Repository root holding the query sources and the library directory (default: current directory)"),
	)
}

func applyOption() mcp.ToolOption {
	return mcp.WithBoolean("apply",
		mcp.Description("Write changes to disk. Without it the tool only reports what it would do."),
	)
}

var classifyToolDef = mcp.NewTool("query_classify",
	mcp.WithDescription("Parse one query source file (.sql, .yml, .yaml, .json, .conf) and report the platform and category of every record, with the strategy that decided each."),
	mcp.WithToolAnnotation(readOnlyAnnotation),
	mcp.WithString("path",
		mcp.Required(),
		mcp.Description("Path of the source file"),
	),
	rootOption(),
)

var discoverToolDef = mcp.NewTool("corpus_discover",
	mcp.WithDescription("List the query source directories under the repository root with their file counts and source type."),
	mcp.WithToolAnnotation(readOnlyAnnotation),
	rootOption(),
)

var sortToolDef = mcp.NewTool("corpus_sort",
	mcp.WithDescription("Classify every query from the sources and place it in the library at <platform>/<device>/queries/<folder>/<category>/<slug>.yml."),
	mcp.WithToolAnnotation(writeAnnotation),
	rootOption(),
	mcp.WithArray("sources",
		mcp.Description("Source directory names to sort (default: all discovered sources)"),
		mcp.WithStringItems(),
	),
	mcp.WithObject("folders",
		mcp.Description("Output folder per source name, e.g. {\"fleet-docs\": \"fleet\"}"),
	),
	mcp.WithString("prefix",
		mcp.Description("Prefix for names derived from SQL file names"),
	),
	mcp.WithString("device",
		mcp.Description("Device bucket"),
		mcp.Enum("both", "devices", "servers"),
	),
	applyOption(),
)

var dedupeToolDef = mcp.NewTool("corpus_dedupe",
	mcp.WithDescription("Find queries sharing a name across the library, keep the best scored occurrence and remove near-identical copies."),
	mcp.WithToolAnnotation(writeAnnotation),
	rootOption(),
	mcp.WithNumber("threshold",
		mcp.Description("Body similarity in [0,1] at or above which a copy is a duplicate (default: configured threshold)"),
	),
	applyOption(),
)

var fixToolDef = mcp.NewTool("corpus_fix",
	mcp.WithDescription("Remove records without SQL, handle records using YARA-style variables and turn string intervals into integers."),
	mcp.WithToolAnnotation(writeAnnotation),
	rootOption(),
	mcp.WithString("yara",
		mcp.Description("What to do with YARA-style records"),
		mcp.Enum("remove", "move"),
	),
	applyOption(),
)

var convertToolDef = mcp.NewTool("corpus_convert",
	mcp.WithDescription("Rewrite legacy multi-document query files in the library as flat record lists."),
	mcp.WithToolAnnotation(writeAnnotation),
	rootOption(),
	applyOption(),
)

var pathsToolDef = mcp.NewTool("corpus_paths",
	mcp.WithDescription("Group library files by device bucket and render the queries path lists of the GitOps config files."),
	mcp.WithToolAnnotation(writeAnnotation),
	rootOption(),
	mcp.WithBoolean("update",
		mcp.Description("Rewrite the queries block of each config file"),
	),
)

var runListToolDef = mcp.NewTool("run_list",
	mcp.WithDescription("List recorded sort, dedupe, fix and convert runs, newest first."),
	mcp.WithToolAnnotation(readOnlyAnnotation),
	mcp.WithString("op",
		mcp.Description("Only runs of this operation"),
		mcp.Enum("sort", "dedupe", "fix", "convert"),
	),
	mcp.WithNumber("limit",
		mcp.Description("Page size (default 20, max 100)"),
	),
	mcp.WithNumber("offset",
		mcp.Description("Number of runs to skip"),
	),
)

var runFetchToolDef = mcp.NewTool("run_fetch",
	mcp.WithDescription("Fetch one recorded run with its per-query decisions."),
	mcp.WithToolAnnotation(readOnlyAnnotation),
	mcp.WithString("id",
		mcp.Required(),
		mcp.Description("Run ID"),
	),
)
