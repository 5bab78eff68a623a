// Package classify maps free-text labels to tag kinds.
//
// Classification is a pure lookup against two maintained sets: known
// technology labels (with a category each) and known capability labels.
// Anything absent from both is generic. The same label always yields the
// same kind no matter when it is seen, so ingestion-time and update-time
// classification never drift apart.
package classify

import "strings"

// Kind is the classification of a tag label.
type Kind string

const (
	KindTechnology Kind = "technology"
	KindCapability Kind = "capability"
	KindGeneric    Kind = "generic"
)

// Classifier is an immutable label lookup. Build one with New and share
// it freely; it has no mutable state.
type Classifier struct {
	technologies map[string]string // label -> category
	capabilities map[string]struct{}
	aliases      map[string]string // lowercased alias -> canonical label
}

// Tables holds the configurable lookup tables. Zero-value slices fall
// back to the built-in defaults.
type Tables struct {
	Technologies map[string]string `mapstructure:"technologies" yaml:"technologies"`
	Capabilities []string          `mapstructure:"capabilities" yaml:"capabilities"`
	Aliases      map[string]string `mapstructure:"aliases" yaml:"aliases"`
}

// New builds a Classifier from the given tables. Empty tables use the
// built-in defaults so a bare config still classifies sensibly.
func New(t Tables) *Classifier {
	c := &Classifier{
		technologies: make(map[string]string),
		capabilities: make(map[string]struct{}),
		aliases:      make(map[string]string),
	}

	techs := t.Technologies
	if len(techs) == 0 {
		techs = defaultTechnologies
	}
	for label, category := range techs {
		c.technologies[label] = category
	}

	caps := t.Capabilities
	if len(caps) == 0 {
		caps = defaultCapabilities
	}
	for _, label := range caps {
		c.capabilities[label] = struct{}{}
	}

	aliases := t.Aliases
	if len(aliases) == 0 {
		aliases = defaultAliases
	}
	for alias, canonical := range aliases {
		c.aliases[strings.ToLower(alias)] = canonical
	}

	return c
}

// Normalize resolves a label through the alias table, returning the
// canonical form ("py" -> "Python"). Unknown labels pass through
// unchanged apart from surrounding whitespace.
func (c *Classifier) Normalize(label string) string {
	label = strings.TrimSpace(label)
	if canonical, ok := c.aliases[strings.ToLower(label)]; ok {
		return canonical
	}
	return label
}

// Classify returns the kind for a label. Lookup is case-sensitive
// against the canonical form; capability membership wins over
// technology when a label appears in both tables.
func (c *Classifier) Classify(label string) Kind {
	label = c.Normalize(label)
	if _, ok := c.capabilities[label]; ok {
		return KindCapability
	}
	if _, ok := c.technologies[label]; ok {
		return KindTechnology
	}
	return KindGeneric
}

// TechnologyCategory returns the category for a known technology label
// (language, framework, platform, cloud, database, tool) and whether the
// label is a known technology at all.
func (c *Classifier) TechnologyCategory(label string) (string, bool) {
	category, ok := c.technologies[c.Normalize(label)]
	return category, ok
}
