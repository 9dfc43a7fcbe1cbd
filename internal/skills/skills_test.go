package skills

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSkill(t *testing.T, ws, name, content string) {
	t.Helper()
	dir := filepath.Join(ws, "skills", name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "SKILL.md"), []byte(content), 0o644))
}

func TestParseFrontmatter(t *testing.T) {
	s, err := Parse("---\nname: summarize\ndescription: Summarize text\n---\n\n# Summarize\nBe short.\n")
	require.NoError(t, err)
	assert.Equal(t, "summarize", s.Name)
	assert.Equal(t, "Summarize text", s.Description)
	assert.Equal(t, "# Summarize\nBe short.", s.Instructions)
}

func TestParseWithoutFrontmatter(t *testing.T) {
	s, err := Parse("just do it\n")
	require.NoError(t, err)
	assert.Equal(t, "just do it", s.Instructions)
}

func TestParseRejectsBrokenFrontmatter(t *testing.T) {
	_, err := Parse("---\nname: x\n")
	assert.Error(t, err)

	_, err = Parse("---\nname: [unterminated\n---\nbody")
	assert.Error(t, err)
}

func TestLoadForContext(t *testing.T) {
	ws := t.TempDir()
	writeSkill(t, ws, "summarize", "---\nname: summarize\ndescription: d\n---\nBe short.")
	writeSkill(t, ws, "cite", "Always cite sources.")

	out := NewLoader(ws).LoadForContext([]string{"summarize", "missing", "cite"})
	assert.Equal(t, "### Skill: summarize\n\nBe short.\n\n---\n\n### Skill: cite\n\nAlways cite sources.", out)
}

func TestLoadRejectsTraversal(t *testing.T) {
	_, err := NewLoader(t.TempDir()).Load("../etc")
	assert.Error(t, err)
}

func TestList(t *testing.T) {
	ws := t.TempDir()
	writeSkill(t, ws, "b", "B")
	writeSkill(t, ws, "a", "A")
	writeSkill(t, ws, "broken", "---\nname: x\n")

	list := NewLoader(ws).List()
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)
	assert.Equal(t, "b", list[1].Name)
}
