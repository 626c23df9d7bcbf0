// Package catalog holds the list of models advertised to clients.
package catalog

import (
	_ "embed"
	"fmt"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var defaultModels []byte

const defaultOwner = "anthropic"

// Model is one advertised model.
type Model struct {
	ID          string    `yaml:"id"`
	DisplayName string    `yaml:"display_name"`
	CreatedAt   time.Time `yaml:"created_at"`
	OwnedBy     string    `yaml:"owned_by"`
}

// Catalog is an ordered, read-only model list.
type Catalog struct {
	models []Model
}

// Default returns the embedded catalog.
func Default() (*Catalog, error) {
	return Parse(defaultModels)
}

// Parse reads a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var doc struct {
		Models []Model `yaml:"models"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse model catalog: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Models))
	for i, m := range doc.Models {
		if m.ID == "" {
			return nil, fmt.Errorf("model catalog entry %d: missing id", i)
		}
		if _, ok := seen[m.ID]; ok {
			return nil, fmt.Errorf("model catalog: duplicate id %q", m.ID)
		}
		seen[m.ID] = struct{}{}

		if doc.Models[i].DisplayName == "" {
			doc.Models[i].DisplayName = m.ID
		}
		if doc.Models[i].OwnedBy == "" {
			doc.Models[i].OwnedBy = defaultOwner
		}
	}

	return &Catalog{models: doc.Models}, nil
}

// Models returns a copy of the catalog entries in document order.
func (c *Catalog) Models() []Model {
	return slices.Clone(c.models)
}

// Lookup finds a model by id.
func (c *Catalog) Lookup(id string) (Model, bool) {
	i := slices.IndexFunc(c.models, func(m Model) bool { return m.ID == id })
	if i < 0 {
		return Model{}, false
	}
	return c.models[i], true
}

// With returns a catalog that also lists m, appended unless its id is already present.
func (c *Catalog) With(m Model) *Catalog {
	if _, ok := c.Lookup(m.ID); ok {
		return c
	}
	if m.DisplayName == "" {
		m.DisplayName = m.ID
	}
	if m.OwnedBy == "" {
		m.OwnedBy = defaultOwner
	}
	return &Catalog{models: append(c.Models(), m)}
}
