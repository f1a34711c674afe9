package parse

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/yaml.v3"

	"github.com/hpungsan/qlib/internal/errors"
	"github.com/hpungsan/qlib/internal/logging"
	"github.com/hpungsan/qlib/internal/query"
)

const commentedSQL = `-- Detects launch agents that run at load.
-- Common persistence mechanism.
-- tags: persistence launchd
-- platform: darwin
-- interval: 900
--
-- references:
-- * https://attack.mitre.org/techniques/T1543/001/
-- * https://example.com/launchd
--
-- False positives:
-- * Vendor updaters
--

SELECT *
FROM launchd
-- tags: not-metadata
WHERE run_at_load = 1;

`

func TestSQL_Metadata(t *testing.T) {
	r := SQL(commentedSQL, query.Origin{FileName: "012-launch_agents.sql"})

	require.Equal(t, "Launch Agents", r.Name)
	require.Equal(t, "Detects launch agents that run at load. Common persistence mechanism.", r.Description)
	require.Equal(t, []string{"persistence", "launchd"}, r.Tags)
	require.Equal(t, "darwin", r.PlatformHint)
	require.NotNil(t, r.Interval)
	require.Equal(t, 900, *r.Interval)
	require.Equal(t, []string{"https://attack.mitre.org/techniques/T1543/001/", "https://example.com/launchd"}, r.References)
	require.Equal(t, []string{"Vendor updaters"}, r.FalsePositives)
	require.Equal(t, "SELECT *\nFROM launchd\n-- tags: not-metadata\nWHERE run_at_load = 1;", r.Body)
}

func TestSQL_BadIntervalIgnored(t *testing.T) {
	r := SQL("-- interval: hourly\nSELECT 1\n", query.Origin{FileName: "x.sql"})
	require.Nil(t, r.Interval)
	require.Equal(t, "SELECT 1", r.Body)
}

func TestSQL_CommentsOnly(t *testing.T) {
	r := SQL("-- nothing here\n-- tags: a\n", query.Origin{FileName: "empty.sql"})
	require.Equal(t, "", r.Body)
	reason, ok := query.Validate(r)
	require.False(t, ok)
	require.Equal(t, query.DropNoSQL, reason)
}

func TestSQL_CRLF(t *testing.T) {
	r := SQL("-- desc\r\nSELECT 1\r\nFROM t\r\n", query.Origin{FileName: "x.sql"})
	require.Equal(t, "desc", r.Description)
	require.Equal(t, "SELECT 1\nFROM t", r.Body)
}

const envelopeStream = `# header comment only
---
apiVersion: v1
kind: query
spec:
  name: Check SSH Config
  query: SELECT * FROM sshd_config
  platform: linux
---
apiVersion: v1
spec:
  name: Broken
  query: [unterminated
---
# just a comment
---
apiVersion: v1
kind: policy
spec:
  name: Disk encryption
  query: SELECT 1 FROM disk_encryption WHERE encrypted = 1
  purpose: compliance
---
apiVersion: v1
spec:
  name: No body
`

func TestYAML_EnvelopeStream(t *testing.T) {
	records, warnings := YAML(envelopeStream, query.Origin{Path: "fleet-docs/q.yml"})

	require.Len(t, records, 3)
	require.Equal(t, "Check SSH Config", records[0].Name)
	require.Equal(t, "query", records[0].Kind)
	require.Equal(t, "linux", records[0].PlatformHint)
	require.Equal(t, "policy", records[1].Kind)
	require.Equal(t, "compliance", records[1].Purpose)
	require.Equal(t, 1, records[1].Origin.Index)

	_, ok := query.Validate(records[2])
	require.False(t, ok)

	require.Len(t, warnings, 1)
	require.Equal(t, "Broken", warnings[0].Subject)
	require.Equal(t, "fleet-docs/q.yml", warnings[0].Path)
}

func TestYAML_WarningFallsBackToDocumentIndex(t *testing.T) {
	_, warnings := YAML("---\nkey: [oops\n", query.Origin{})
	require.Len(t, warnings, 1)
	require.Equal(t, "document #1", warnings[0].Subject)
}

func TestYAML_FlatSequence(t *testing.T) {
	content := `- name: A
  query: SELECT 1
  interval: 60
- name: B
  query: SELECT 2
- just a string
`
	records, warnings := YAML(content, query.Origin{})
	require.Empty(t, warnings)
	require.Len(t, records, 2)
	require.Equal(t, "B", records[1].Name)
	require.Equal(t, 60, *records[0].Interval)
}

func TestIsEnvelopeStream(t *testing.T) {
	require.True(t, IsEnvelopeStream(envelopeStream))
	require.False(t, IsEnvelopeStream("- name: A\n  query: SELECT 1\n"))
	require.False(t, IsEnvelopeStream(""))
}

func TestPack_Shapes(t *testing.T) {
	tests := []struct {
		name      string
		content   string
		wantNames []string
	}{
		{
			name:      "pack",
			content:   `{"platform": "darwin", "queries": {"zeta": {"query": "SELECT 1", "interval": 60}, "alpha": {"query": "SELECT 2"}, "bad": "x"}}`,
			wantNames: []string{"zeta", "alpha"},
		},
		{
			name:      "array",
			content:   `[{"name": "a", "query": "SELECT 1"}, 3, {"name": "b", "query": "SELECT 2"}]`,
			wantNames: []string{"a", "b"},
		},
		{
			name:      "single",
			content:   `{"name": "one", "query": "SELECT 1"}`,
			wantNames: []string{"one"},
		},
		{
			name:      "unrelated object",
			content:   `{"options": {"verbose": true}}`,
			wantNames: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := Pack([]byte(tt.content), query.Origin{Format: query.FormatConf})
			require.NoError(t, err)
			var names []string
			for _, r := range records {
				names = append(names, r.Name)
			}
			require.Equal(t, tt.wantNames, names)
		})
	}
}

func TestPack_PreservesFieldOrder(t *testing.T) {
	records, err := Pack([]byte(`{"queries": {"q": {"query": "SELECT 1", "description": "d", "interval": 10, "snapshot": true, "removed": false}}}`), query.Origin{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, []string{"name", "query", "description", "interval", "snapshot", "removed"}, query.Keys(records[0].Spec))
	require.Equal(t, 10, *records[0].Interval)
	require.Equal(t, "!!bool", query.Get(records[0].Spec, "snapshot").Tag)
}

func TestPack_ExplicitNameWins(t *testing.T) {
	records, err := Pack([]byte(`{"queries": {"key": {"query": "SELECT 1", "name": "Real"}}}`), query.Origin{})
	require.NoError(t, err)
	require.Equal(t, "Real", records[0].Name)
	require.Equal(t, []string{"name", "query"}, query.Keys(records[0].Spec))
}

func TestPack_TabsEscapesAndRepeatedKeys(t *testing.T) {
	content := "{\n\t\"name\": \"Caf\\u00e9 \\/ \\\"x\\\" \\ud83d\\ude00 \\\\/\",\n\t\"query\": \"SELECT 1\",\n\t\"interval\": 60,\n\t\"interval\": 120\n}"
	records, err := Pack([]byte(content), query.Origin{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, "Caf\u00e9 / \"x\" \U0001F600 \\/", records[0].Name)
	require.Equal(t, []string{"name", "query", "interval"}, query.Keys(records[0].Spec))
	require.Equal(t, 120, *records[0].Interval)
	require.Equal(t, yaml.Style(0), query.Get(records[0].Spec, "query").Style)
}

func TestYAMLEscapes(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`"a\/b"`, `"a/b"`},
		{`"a\\/b"`, `"a\\/b"`},
		{`"\u00e9"`, `"\u00e9"`},
		{`"\ud83d\ude00"`, "\"\U0001F600\""},
		{`"\ud83d!"`, "\"\uFFFD!\""},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, string(yamlEscapes([]byte(tt.in))), tt.in)
	}
}

func TestPack_Malformed(t *testing.T) {
	_, err := Pack([]byte(`{"queries": {`), query.Origin{})
	require.Error(t, err)
}

func TestFile_MalformedIsNonFatal(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logging.Set(zap.New(core))
	t.Cleanup(func() { logging.Set(nil) })

	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.conf")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0644))

	res, err := File(bad, query.Origin{Path: "packs/bad.conf"})
	require.NoError(t, err)
	require.True(t, res.Malformed)
	require.Empty(t, res.Records)
	require.Equal(t, 1, logs.FilterField(zap.String("file", "packs/bad.conf")).Len())
}

func TestFile_Errors(t *testing.T) {
	_, err := File(filepath.Join(t.TempDir(), "missing.sql"), query.Origin{})
	require.True(t, errors.Is(err, errors.ErrFileNotFound))

	_, err = File("notes.txt", query.Origin{})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestFile_FillsOrigin(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "usb-macos.sql")
	require.NoError(t, os.WriteFile(p, []byte("SELECT * FROM usb_devices;\n"), 0644))

	res, err := File(p, query.Origin{Collection: "fleet-docs"})
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	o := res.Records[0].Origin
	require.Equal(t, "usb-macos.sql", o.FileName)
	require.Equal(t, query.FormatSQL, o.Format)
	require.Equal(t, p, o.Path)
	require.Equal(t, "fleet-docs", o.Collection)
}

func TestLooksLikeQueries(t *testing.T) {
	require.True(t, LooksLikeQueries(query.FormatSQL, "select 1"))
	require.False(t, LooksLikeQueries(query.FormatSQL, "-- empty"))
	require.True(t, LooksLikeQueries(query.FormatYAML, "spec:\n  name: x"))
	require.False(t, LooksLikeQueries(query.FormatYAML, "name: x\nvalue: 1"))
	require.True(t, LooksLikeQueries(query.FormatConf, `{"queries": {"x": {"query": "select 1"}}}`))
	require.False(t, LooksLikeQueries(query.FormatJSON, `{"options": {}}`))
}
