package query

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func mustMapping(t *testing.T, src string) *yaml.Node {
	t.Helper()
	var doc yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(src), &doc))
	m := Unwrap(&doc)
	require.Equal(t, yaml.MappingNode, m.Kind)
	return m
}

func TestDeriveName(t *testing.T) {
	tests := []struct {
		file   string
		prefix string
		want   string
	}{
		{"check-ssh-config.sql", "", "Check Ssh Config"},
		{"012-launchd_overrides.sql", "", "Launchd Overrides"},
		{"usb_devices.sql", "ACME", "ACME - Usb Devices"},
		{"ssh2config.sql", "", "Ssh2Config"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, DeriveName(tt.file, tt.prefix), tt.file)
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Check SSH Config", "check-ssh-config"},
		{"  ACME - Usb_Devices (beta)!  ", "acme-usbdevices-beta"},
		{"---", ""},
		{strings.Repeat("a", 100), strings.Repeat("a", 80)},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, Slugify(tt.in), tt.in)
	}
}

func TestHasYaraVariables(t *testing.T) {
	tests := []struct {
		body string
		want bool
	}{
		{"SELECT * FROM yara WHERE sigrule = '$a = \"evil\"'", true},
		{"SELECT * FROM file WHERE path = '$FLEET_VAR_X'", false},
		{"SELECT '$$' AS escaped", false},
		{"SELECT '$$abc'", true},
		{"SELECT price FROM t WHERE x = '$5'", false},
		{"SELECT 1", false},
		{"ends with $", false},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, HasYaraVariables(tt.body), tt.body)
	}
}

func TestValidate(t *testing.T) {
	reason, ok := Validate(Record{Name: "x", Body: "  \n"})
	require.False(t, ok)
	require.Equal(t, DropNoSQL, reason)

	reason, ok = Validate(Record{Name: " ", Body: "SELECT 1"})
	require.False(t, ok)
	require.Equal(t, DropNoName, reason)

	_, ok = Validate(Record{Name: "x", Body: "SELECT 1"})
	require.True(t, ok)
}

func TestFromSpec(t *testing.T) {
	m := mustMapping(t, `
name: " USB devices "
query: SELECT * FROM usb_devices
platform: darwin
tags: inventory hardware
interval: "600"
`)
	r := FromSpec("", m, Origin{Path: "a.yml"})
	require.Equal(t, "USB devices", r.Name)
	require.Equal(t, "query", r.Kind)
	require.Equal(t, "darwin", r.PlatformHint)
	require.Equal(t, []string{"inventory", "hardware"}, r.Tags)
	require.NotNil(t, r.Interval)
	require.Equal(t, 600, *r.Interval)
}

func TestOrdered_FixedOrderThenExtras(t *testing.T) {
	m := mustMapping(t, `
zeta: 1
query: SELECT 1
name: x
alpha: 2
description: d
`)
	out := Ordered(m, "darwin")
	want := []string{"name", "platform", "description", "query", "zeta", "alpha"}
	if diff := cmp.Diff(want, Keys(out)); diff != "" {
		t.Fatalf("keys mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, "darwin", Str(out, "platform"))
}

func TestOrdered_KeepsExplicitPlatform(t *testing.T) {
	m := mustMapping(t, "name: x\nplatform: linux\nquery: SELECT 1\n")
	out := Ordered(m, "darwin")
	require.Equal(t, "linux", Str(out, "platform"))
}

func TestOrdered_MultilineQueryIsLiteral(t *testing.T) {
	m := mustMapping(t, "name: x\nquery: \"SELECT 1\\nFROM t\"\n")
	out := Ordered(m, "")
	require.Equal(t, yaml.LiteralStyle, Get(out, "query").Style)
}

func TestRestrict(t *testing.T) {
	m := mustMapping(t, "kind: query\nquery: SELECT 1\nname: x\nextra: y\n")
	out := Restrict(m, LegacyKeepFields)
	require.Equal(t, []string{"name", "query"}, Keys(out))
}

func TestSetDelete(t *testing.T) {
	m := NewMapping()
	Set(m, "a", StringNode("1"))
	Set(m, "b", StringNode("2"))
	Set(m, "a", IntNode(3))
	require.Equal(t, []string{"a", "b"}, Keys(m))
	require.Equal(t, "3", Str(m, "a"))
	require.True(t, Delete(m, "a"))
	require.False(t, Delete(m, "a"))
	require.Equal(t, []string{"b"}, Keys(m))
}

func TestSQLSpec(t *testing.T) {
	r := Record{Name: "Check", Body: "SELECT 1\nFROM t"}
	m := SQLSpec(r, "darwin", 3600)
	require.Equal(t, []string{
		"name", "platform", "description", "query", "interval",
		"logging", "observer_can_run", "automations_enabled", "discard_data",
	}, Keys(m))
	require.Equal(t, "Check", Str(m, "description"))
	require.Equal(t, "SELECT 1\nFROM t\n", Str(m, "query"))
	require.Equal(t, "3600", Str(m, "interval"))

	iv := 60
	r.Interval = &iv
	r.Description = "desc"
	m = SQLSpec(r, "", 3600)
	require.False(t, Has(m, "platform"))
	require.Equal(t, "60", Str(m, "interval"))
}
