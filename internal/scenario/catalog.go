package scenario

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed scenarios.yaml
var embeddedCatalog []byte

// Scenario is one conversational topic with its generation settings.
type Scenario struct {
	Name           string  `yaml:"-"`
	Title          string  `yaml:"title"`
	Context        string  `yaml:"context"`
	StarterExample string  `yaml:"starter_example"`
	MaxTokens      int     `yaml:"max_tokens"`
	Temperature    float64 `yaml:"temperature"`
}

type catalogFile struct {
	Default       string               `yaml:"default"`
	BasePrompt    string               `yaml:"base_prompt"`
	StarterPrompt string               `yaml:"starter_prompt"`
	Scenarios     map[string]*Scenario `yaml:"scenarios"`
}

// Catalog resolves scenario tags to prompts and settings. Unknown tags resolve
// to the default scenario.
type Catalog struct {
	basePrompt    string
	starterPrompt string
	defaultName   string
	scenarios     map[string]Scenario
}

// Load parses the embedded catalog and, when overridePath is set, layers the
// file on top: its scenarios replace or extend the built-in ones.
func Load(overridePath string) (*Catalog, error) {
	base, err := parse(embeddedCatalog)
	if err != nil {
		return nil, fmt.Errorf("parse embedded scenarios: %w", err)
	}
	if strings.TrimSpace(overridePath) != "" {
		raw, err := os.ReadFile(overridePath)
		if err != nil {
			return nil, fmt.Errorf("read scenarios file: %w", err)
		}
		override, err := parse(raw)
		if err != nil {
			return nil, fmt.Errorf("parse scenarios file %s: %w", overridePath, err)
		}
		merge(base, override)
	}
	return build(base)
}

func parse(raw []byte) (*catalogFile, error) {
	var f catalogFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func merge(dst, src *catalogFile) {
	if strings.TrimSpace(src.BasePrompt) != "" {
		dst.BasePrompt = src.BasePrompt
	}
	if strings.TrimSpace(src.StarterPrompt) != "" {
		dst.StarterPrompt = src.StarterPrompt
	}
	if strings.TrimSpace(src.Default) != "" {
		dst.Default = src.Default
	}
	if dst.Scenarios == nil {
		dst.Scenarios = make(map[string]*Scenario)
	}
	for name, s := range src.Scenarios {
		dst.Scenarios[name] = s
	}
}

func build(f *catalogFile) (*Catalog, error) {
	c := &Catalog{
		basePrompt:    strings.TrimSpace(f.BasePrompt),
		starterPrompt: strings.TrimSpace(f.StarterPrompt),
		defaultName:   normalize(f.Default),
		scenarios:     make(map[string]Scenario, len(f.Scenarios)),
	}
	for name, s := range f.Scenarios {
		if s == nil {
			continue
		}
		key := normalize(name)
		if key == "" {
			return nil, errors.New("scenario with empty name")
		}
		if s.MaxTokens <= 0 {
			return nil, fmt.Errorf("scenario %q: max_tokens must be positive", name)
		}
		if s.Temperature < 0 || s.Temperature > 2 {
			return nil, fmt.Errorf("scenario %q: temperature must be within [0,2]", name)
		}
		sc := *s
		sc.Name = key
		if sc.Title == "" {
			sc.Title = key
		}
		c.scenarios[key] = sc
	}
	if _, ok := c.scenarios[c.defaultName]; !ok {
		return nil, fmt.Errorf("default scenario %q is not defined", f.Default)
	}
	return c, nil
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Default names the fallback scenario.
func (c *Catalog) Default() string { return c.defaultName }

// Resolve returns the scenario for name, or the default one.
func (c *Catalog) Resolve(name string) Scenario {
	if s, ok := c.scenarios[normalize(name)]; ok {
		return s
	}
	return c.scenarios[c.defaultName]
}

// Known reports whether name is an explicit catalog entry.
func (c *Catalog) Known(name string) bool {
	_, ok := c.scenarios[normalize(name)]
	return ok
}

func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.scenarios))
	for name := range c.scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All lists scenarios sorted by name.
func (c *Catalog) All() []Scenario {
	out := make([]Scenario, 0, len(c.scenarios))
	for _, name := range c.Names() {
		out = append(out, c.scenarios[name])
	}
	return out
}

// SystemPrompt composes the tutor directive for a scenario.
func (c *Catalog) SystemPrompt(name string) string {
	s := c.Resolve(name)
	var b strings.Builder
	b.WriteString(c.basePrompt)
	if ctx := strings.TrimSpace(s.Context); ctx != "" {
		b.WriteString("\n\n")
		b.WriteString(ctx)
	}
	if s.StarterExample != "" {
		b.WriteString("\n\nMESSAGE DE DÉPART POUR TOI (PROFESSEUR): Lorsque l'étudiant initiera la conversation, ")
		b.WriteString("réponds avec une phrase qui ressemble à ceci, adaptée au contexte:\n'")
		b.WriteString(s.StarterExample)
		b.WriteString("'\nAttends que l'étudiant commence vraiment à parler pour t'engager.")
	}
	return b.String()
}

// StarterPrompt is the system-initiated text that opens a scenario.
func (c *Catalog) StarterPrompt(name string) string {
	s := c.Resolve(name)
	if c.starterPrompt == "" {
		return s.Title
	}
	if strings.Contains(c.starterPrompt, "%s") {
		return fmt.Sprintf(c.starterPrompt, s.Title)
	}
	return c.starterPrompt
}

// StarterExample is the static opener used when the model cannot answer.
func (c *Catalog) StarterExample(name string) string {
	return c.Resolve(name).StarterExample
}

// Settings returns the token budget and temperature for a scenario. A
// positive maxTokensCap lowers the budget.
func (c *Catalog) Settings(name string, maxTokensCap int) (int, float64) {
	s := c.Resolve(name)
	tokens := s.MaxTokens
	if maxTokensCap > 0 && maxTokensCap < tokens {
		tokens = maxTokensCap
	}
	return tokens, s.Temperature
}
