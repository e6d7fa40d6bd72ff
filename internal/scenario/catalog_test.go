package scenario

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedCatalog(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"faire_les_courses", "libre", "loisirs", "restaurant",
		"travail", "visite_chez_le_médecin", "voyage",
	}, c.Names())
	assert.Equal(t, "libre", c.Default())

	cases := []struct {
		name   string
		tokens int
		temp   float64
	}{
		{"restaurant", 120, 0.6},
		{"faire_les_courses", 120, 0.6},
		{"visite_chez_le_médecin", 120, 0.6},
		{"loisirs", 160, 0.8},
		{"travail", 140, 0.5},
		{"voyage", 150, 0.7},
		{"libre", 150, 0.7},
		{"inconnu", 150, 0.7},
	}
	for _, tc := range cases {
		tokens, temp := c.Settings(tc.name, 0)
		assert.Equal(t, tc.tokens, tokens, tc.name)
		assert.Equal(t, tc.temp, temp, tc.name)
	}
}

func TestSettingsCapsTokens(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)
	tokens, _ := c.Settings("loisirs", 140)
	assert.Equal(t, 140, tokens)
	tokens, _ = c.Settings("restaurant", 160)
	assert.Equal(t, 120, tokens)
}

func TestSystemPromptComposition(t *testing.T) {
	c, err := Load("")
	require.NoError(t, err)

	prompt := c.SystemPrompt("restaurant")
	assert.True(t, strings.HasPrefix(prompt, "Tu es un professeur de français"))
	assert.Contains(t, prompt, "CONTEXTE SPÉCIFIQUE - RESTAURANT")
	assert.Contains(t, prompt, "Le Délice Français")

	assert.Equal(t, c.SystemPrompt("libre"), c.SystemPrompt("nope"))
	assert.Contains(t, c.StarterPrompt("voyage"), "Voyage")
	assert.Contains(t, c.StarterExample(" Restaurant "), "Bienvenue")
	assert.True(t, c.Known("RESTAURANT"))
	assert.False(t, c.Known("nope"))
}

func TestOverrideFileExtendsCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "extra.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
scenarios:
  banque:
    title: À la banque
    max_tokens: 100
    temperature: 0.4
    context: "Tu es conseiller bancaire."
    starter_example: "Bonjour, que puis-je faire pour vous ?"
  libre:
    title: Libre
    max_tokens: 90
    temperature: 0.7
`), 0o644))

	c, err := Load(path)
	require.NoError(t, err)
	assert.True(t, c.Known("banque"))
	tokens, temp := c.Settings("banque", 0)
	assert.Equal(t, 100, tokens)
	assert.Equal(t, 0.4, temp)
	tokens, _ = c.Settings("libre", 0)
	assert.Equal(t, 90, tokens)
	assert.Len(t, c.All(), 8)
}

func TestOverrideFileValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("scenarios:\n  x:\n    max_tokens: 0\n"), 0o644))
	_, err := Load(path)
	assert.ErrorContains(t, err, "max_tokens")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
