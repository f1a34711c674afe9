package classify

import (
	"regexp"

	"github.com/hpungsan/qlib/internal/query"
)

// PlatformResult is a storage bucket plus an optional display label.
type PlatformResult struct {
	Bucket query.Platform `json:"bucket"`
	Label  string         `json:"label,omitempty"`
}

var (
	macOS   = PlatformResult{query.PlatformMacOS, "darwin"}
	linux   = PlatformResult{query.PlatformLinux, "linux"}
	windows = PlatformResult{query.PlatformWindows, "windows"}
	anyOS   = PlatformResult{Bucket: query.PlatformAll}
)

// platformAliases maps a normalized explicit platform string to its placement.
var platformAliases = map[string]PlatformResult{
	"darwin":  macOS,
	"macos":   macOS,
	"osx":     macOS,
	"mac":     macOS,
	"linux":   linux,
	"centos":  linux,
	"ubuntu":  linux,
	"rhel":    linux,
	"debian":  linux,
	"windows": windows,
	"win":     windows,
	"posix":   anyOS,
	"chrome":  {query.PlatformAll, "chrome"},
	"freebsd": {query.PlatformAll, "freebsd"},
}

type hint struct {
	needle string
	result PlatformResult
}

// fileNameHints are checked in order against the lowercase file name.
var fileNameHints = []hint{
	{"-macos", macOS},
	{"_macos", macOS},
	{"-darwin", macOS},
	{"_darwin", macOS},
	{"-osx", macOS},
	{"-linux", linux},
	{"_linux", linux},
	{"-windows", windows},
	{"_windows", windows},
	{"-win", windows},
}

// pathHints are checked in order against the lowercase slash-separated path.
var pathHints = []hint{
	{"/macos/", macOS},
	{"/darwin/", macOS},
	{"/osx/", macOS},
	{"/linux/", linux},
	{"/windows/", windows},
	{"/win/", windows},
	{"endpoints/macos", macOS},
	{"endpoints/windows", windows},
	{"servers/linux", linux},
	{"servers/macos", macOS},
	{"servers/windows", windows},
}

type tableVocabulary struct {
	result   PlatformResult
	patterns []*regexp.Regexp
}

// platformTables are osquery tables that only exist on one platform.
var platformTables = []tableVocabulary{
	{macOS, wordPatterns(
		"launchd", "alf", "app_schemes", "apps", "crashes", "disk_events",
		"event_taps", "gatekeeper", "homebrew", "ioreg", "keychain", "mdfind",
		"nvram", "plist", "safari", "sip_config", "xprotect", "authorization",
		"account_policy_data", "es_process_events", "unified_log",
	)},
	{linux, wordPatterns(
		"systemd", "apt_sources", "deb_packages", "rpm_packages", "yum_sources",
		"iptables", "selinux", "sysctl", "memory_map", "kernel_modules",
		"kernel_info", "md_devices", "lxd", "shadow",
	)},
	{windows, wordPatterns(
		"registry", "windows_events", "windows_security", "bitlocker",
		"chocolatey", "ie_extensions", "pipes", "scheduled_tasks",
		"services", "shared_resources", "wmi", "powershell", "logon_sessions",
		"ntfs", "prefetch", "userassist", "autoexec", "drivers", "programs",
	)},
}

func wordPatterns(words ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(words))
	for _, w := range words {
		out = append(out, regexp.MustCompile(`\b`+regexp.QuoteMeta(w)+`\b`))
	}
	return out
}

type vocabulary struct {
	category query.Category
	keywords []string
}

// categoryVocabularies are checked in order; the first containing keyword wins.
var categoryVocabularies = []vocabulary{
	{query.CategoryDetection, []string{
		"detect", "alert", "suspicious", "malicious", "threat", "attack",
		"rootkit", "malware", "backdoor", "trojan", "worm", "exploit",
		"unauthorized", "anomaly", "intrusion", "c2", "command-and-control",
		"exfil", "lateral", "privilege", "escalation", "persistence",
		"evasion", "credential", "yara",
	}},
	{query.CategoryIncidentResponse, []string{
		"incident", "response", "forensic", "investigation", "artifact",
		"evidence", "timeline", "postmortem", "ir_", "ir-",
	}},
	{query.CategoryCompliance, []string{
		"compliance", "audit", "policy", "benchmark", "cis_", "cis-",
		"stig", "hipaa", "pci", "sox", "gdpr", "nist", "fedramp",
	}},
	{query.CategoryInventory, []string{
		"inventory", "asset", "installed", "packages", "software",
		"hardware", "snapshot", "baseline", "enumerate",
	}},
	{query.CategoryPerformance, []string{
		"performance", "perf", "cpu", "memory", "disk", "resource",
		"utilization", "metrics", "monitoring",
	}},
	{query.CategoryVulnerability, []string{
		"vulnerability", "vuln", "cve", "patch", "update", "outdated",
		"version", "exploit",
	}},
}

// purposeSynonyms maps a normalized purpose string to a category.
var purposeSynonyms = map[string]query.Category{
	"informational":     query.CategoryGeneral,
	"info":              query.CategoryGeneral,
	"detection":         query.CategoryDetection,
	"detect":            query.CategoryDetection,
	"incident-response": query.CategoryIncidentResponse,
	"ir":                query.CategoryIncidentResponse,
	"compliance":        query.CategoryCompliance,
	"policy":            query.CategoryCompliance,
	"inventory":         query.CategoryInventory,
	"asset":             query.CategoryInventory,
	"performance":       query.CategoryPerformance,
	"perf":              query.CategoryPerformance,
	"vulnerability":     query.CategoryVulnerability,
	"vuln":              query.CategoryVulnerability,
}

// segmentCategories maps literal path segment names to a category.
var segmentCategories = map[string]query.Category{
	"detection":         query.CategoryDetection,
	"detections":        query.CategoryDetection,
	"incident_response": query.CategoryIncidentResponse,
	"incident-response": query.CategoryIncidentResponse,
	"ir":                query.CategoryIncidentResponse,
	"compliance":        query.CategoryCompliance,
	"policy":            query.CategoryCompliance,
	"policies":          query.CategoryCompliance,
	"inventory":         query.CategoryInventory,
	"assets":            query.CategoryInventory,
	"vulnerability":     query.CategoryVulnerability,
	"vulnerabilities":   query.CategoryVulnerability,
	"vulns":             query.CategoryVulnerability,
	"endpoints":         query.CategoryEndpoints,
	"endpoint":          query.CategoryEndpoints,
	"servers":           query.CategoryServers,
	"server":            query.CategoryServers,
}
