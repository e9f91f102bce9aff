package subst

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapKeys(m *Map) []string {
	var keys []string
	for pair := m.Oldest(); pair != nil; pair = pair.Next() {
		keys = append(keys, pair.Key)
	}
	return keys
}

func TestLoadReplacements_YAML(t *testing.T) {
	input := `
zeta: last
alpha: 1
person:
  name: Bruce
  city: Gotham
list:
  - a
  - b
`
	m, err := LoadReplacements(strings.NewReader(input), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, []string{"zeta", "alpha", "person", "list"}, mapKeys(m))

	defs, err := NormalizeAll(m)
	require.NoError(t, err)
	assert.Equal(t, []Definition{
		D("zeta", "last"),
		D("alpha", 1),
		D("person.name", "Bruce"),
		D("person.city", "Gotham"),
		D("list.0", "a"),
		D("list.1", "b"),
	}, defs)
}

func TestLoadReplacements_YAMLErrors(t *testing.T) {
	t.Run("not a mapping", func(t *testing.T) {
		_, err := LoadReplacements(strings.NewReader("- a\n- b\n"), FormatYML)
		require.Error(t, err)
		assert.Contains(t, err.Error(), ErrMsgReplacementNotAMap)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := LoadReplacements(strings.NewReader("a: [unclosed"), FormatYAML)
		require.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		m, err := LoadReplacements(strings.NewReader(""), FormatYAML)
		require.NoError(t, err)
		assert.Equal(t, 0, m.Len())
	})
}

func TestLoadReplacements_JSON(t *testing.T) {
	m, err := LoadReplacements(strings.NewReader(`{"b": "two", "a": {"y": 2, "x": 1}}`), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "a"}, mapKeys(m))

	out, err := Resolve("${b} ${a.x} ${a.y}", m)
	require.NoError(t, err)
	assert.Equal(t, "two 1 2", out)

	_, err = LoadReplacements(strings.NewReader(`[1, 2]`), FormatJSON)
	require.Error(t, err)
}

func TestLoadReplacements_Env(t *testing.T) {
	input := "# comment\nNAME=Bruce\nCITY=\"Gotham City\"\n"

	m, err := LoadReplacements(strings.NewReader(input), FormatEnv)
	require.NoError(t, err)
	assert.Equal(t, []string{"CITY", "NAME"}, mapKeys(m))

	city, ok := m.Get("CITY")
	require.True(t, ok)
	assert.Equal(t, "Gotham City", city)
}

func TestLoadReplacements_UnsupportedFormat(t *testing.T) {
	_, err := LoadReplacements(strings.NewReader("a = 1"), "toml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrMsgUnsupportedFormat)
}

func TestLoadReplacementsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vars.yaml")
	require.NoError(t, os.WriteFile(path, []byte("site: example.org\n"), 0o644))

	m, err := LoadReplacementsFile(path)
	require.NoError(t, err)

	site, ok := m.Get("site")
	require.True(t, ok)
	assert.Equal(t, "example.org", site)

	_, err = LoadReplacementsFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}

func TestReplacementFormat(t *testing.T) {
	assert.Equal(t, "yaml", ReplacementFormat("a/b/vars.YAML"))
	assert.Equal(t, "env", ReplacementFormat(".env"))
	assert.Equal(t, "", ReplacementFormat("noext"))
}

func TestMergeMaps(t *testing.T) {
	a := NewMap(P("x", 1), P("y", 2))
	b := NewMap(P("z", 3), P("x", 10))

	merged := MergeMaps(a, nil, b)
	assert.Equal(t, []string{"x", "y", "z"}, mapKeys(merged))

	x, _ := merged.Get("x")
	assert.Equal(t, 10, x)

	original, _ := a.Get("x")
	assert.Equal(t, 1, original)
}
