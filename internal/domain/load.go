package domain

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/roach88/simkit/internal/attr"
)

// domainDoc mirrors the on-disk YAML structure. Attribute entries keep
// declaration order because they decode from a sequence, not a mapping.
type domainDoc struct {
	Name      string        `yaml:"name" json:"name"`
	Scopes    []string      `yaml:"scopes" json:"scopes"`
	Templates []templateDoc `yaml:"templates" json:"templates"`
}

type templateDoc struct {
	Name       string         `yaml:"name" json:"name"`
	Attributes []attributeDoc `yaml:"attributes" json:"attributes"`
}

type attributeDoc struct {
	Name    string `yaml:"name" json:"name"`
	Default any    `yaml:"default" json:"default"`
}

// Load reads a domain description from a YAML file, or from every
// *.yaml/*.yml file in a directory merged in sorted order. Later files
// may add scopes and templates; the first non-empty name wins.
func Load(path string) (*Domain, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("domain path %s: %w", path, err)
	}

	files := []string{path}
	if info.IsDir() {
		files, err = findYAMLFiles(path)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			return nil, &ValidationError{Message: fmt.Sprintf("no YAML files found in %s", path)}
		}
	}

	var merged domainDoc
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read domain file %s: %w", f, err)
		}
		doc, err := decodeDoc(data)
		if err != nil {
			return nil, fmt.Errorf("domain file %s: %w", f, err)
		}
		if merged.Name == "" {
			merged.Name = doc.Name
		}
		merged.Scopes = append(merged.Scopes, doc.Scopes...)
		merged.Templates = append(merged.Templates, doc.Templates...)
	}

	return buildDomain(&merged)
}

// Parse builds a Domain from a single YAML document.
func Parse(data []byte) (*Domain, error) {
	doc, err := decodeDoc(data)
	if err != nil {
		return nil, err
	}
	return buildDomain(doc)
}

func decodeDoc(data []byte) (*domainDoc, error) {
	var doc domainDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &ValidationError{Message: fmt.Sprintf("malformed YAML: %v", err)}
	}
	// Structural validation against the embedded schema happens before
	// any semantic checks so shape errors carry schema positions.
	if err := validateSchema(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func buildDomain(doc *domainDoc) (*Domain, error) {
	templates := make([]Template, 0, len(doc.Templates))
	for _, td := range doc.Templates {
		attrs := make([]AttributeSpec, 0, len(td.Attributes))
		for _, ad := range td.Attributes {
			def, err := attr.FromAny(ad.Default)
			if err != nil {
				return nil, &ValidationError{
					Path:    "templates/" + td.Name + "/" + ad.Name,
					Message: err.Error(),
				}
			}
			attrs = append(attrs, AttributeSpec{Name: ad.Name, Default: def})
		}
		templates = append(templates, Template{Name: td.Name, Attributes: attrs})
	}
	return New(doc.Name, doc.Scopes, templates)
}

func findYAMLFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("scan domain directory %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".yaml", ".yml":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}
