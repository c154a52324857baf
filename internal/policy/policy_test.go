// ABOUTME: Tests for policy table defaults and TOML overrides.
// ABOUTME: Verifies merge semantics and lookup helpers.

package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	tables := Defaults()

	name, ok := tables.SkillFor("time.query")
	require.True(t, ok)
	assert.Equal(t, "clock", name)

	_, ok = tables.SkillFor("launch.rocket")
	assert.False(t, ok)

	assert.True(t, tables.IsHighRisk("note.delete"))
	assert.False(t, tables.IsHighRisk("greeting"))
}

func TestMissingEntities(t *testing.T) {
	tables := Defaults()

	missing := tables.MissingEntities("note.save", map[string]string{"key": "color"})
	assert.Equal(t, []string{"value"}, missing)

	missing = tables.MissingEntities("note.save", map[string]string{"key": "color", "value": "blue"})
	assert.Empty(t, missing)

	// Whitespace-only values count as absent.
	missing = tables.MissingEntities("note.recall", map[string]string{"key": "  "})
	assert.Equal(t, []string{"key"}, missing)

	// Intents with no required entities are never blocked.
	assert.Empty(t, tables.MissingEntities("greeting", nil))
}

func TestHandoffMessage(t *testing.T) {
	tables := Defaults()

	assert.Contains(t, tables.HandoffMessage("mobile", "watch"), "watch")
	// Unknown pairs get the generic phrasing with underscores humanized.
	assert.Equal(t, "Continuing our conversation on your smart speaker.",
		tables.HandoffMessage("tv", "smart_speaker"))
}

func TestLoad_OverridesReplaceTables(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.toml")
	content := `
high_risk_intents = ["payment.send"]

[intent_skills]
"payment.send" = "payments"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	tables, err := Load(path)
	require.NoError(t, err)

	// Overridden tables are replaced wholesale.
	name, ok := tables.SkillFor("payment.send")
	require.True(t, ok)
	assert.Equal(t, "payments", name)
	_, ok = tables.SkillFor("time.query")
	assert.False(t, ok)

	assert.True(t, tables.IsHighRisk("payment.send"))
	assert.False(t, tables.IsHighRisk("note.delete"))

	// Absent tables keep defaults.
	assert.Equal(t, []string{"key", "value"},
		tables.RequiredEntities["note.save"])
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	tables, err := Load("")
	require.NoError(t, err)
	assert.True(t, tables.IsHighRisk("note.delete"))
}

func TestLoad_BadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("not [valid toml"), 0644))

	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}
