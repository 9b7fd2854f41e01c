package responder

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// CatalogEntry is one amenity the assistant may talk about.
type CatalogEntry struct {
	Name        string `yaml:"name"`
	Category    string `yaml:"category"`
	Description string `yaml:"description"`
	Price       string `yaml:"price"`
}

// Catalog is the read-only product context rendered into the prompt.
type Catalog struct {
	Items []CatalogEntry `yaml:"items"`
}

// LoadCatalog reads a YAML catalog file. An empty path yields an empty catalog.
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return &Catalog{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes catalog YAML.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	for i, item := range c.Items {
		if strings.TrimSpace(item.Name) == "" {
			return nil, fmt.Errorf("catalog item %d has no name", i)
		}
	}
	return &c, nil
}

func (c *Catalog) render(b *strings.Builder) {
	if c == nil || len(c.Items) == 0 {
		return
	}

	b.WriteString("\n\nAvailable products:\n")
	for _, item := range c.Items {
		b.WriteString("- ")
		b.WriteString(item.Name)
		if item.Category != "" {
			fmt.Fprintf(b, " [%s]", item.Category)
		}
		if item.Price != "" {
			fmt.Fprintf(b, " (%s)", item.Price)
		}
		if item.Description != "" {
			b.WriteString(": ")
			b.WriteString(item.Description)
		}
		b.WriteString("\n")
	}
}
