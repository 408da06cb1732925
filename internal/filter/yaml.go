package filter

import (
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/libroscan/catalog-cli/internal/model"
)

// Definition is the YAML form of one site's filter forest, the format
// administrators edit. Example:
//
//	site: KYOBO
//	filters:
//	  - name: domestic-novels
//	    operator: AND
//	    children:
//	      - name: title-prefix
//	        property: title
//	        regex: "^Book"
//	      - name: publisher
//	        property: publisherText
//	        regex: "Acme"
type Definition struct {
	Site    string           `yaml:"site"`
	Filters []DefinitionNode `yaml:"filters"`
}

// DefinitionNode is one node of a YAML filter tree. Combinators set Operator
// and Children; leaves set Property and Regex.
type DefinitionNode struct {
	Name     string           `yaml:"name"`
	Operator string           `yaml:"operator,omitempty"`
	Property string           `yaml:"property,omitempty"`
	Regex    string           `yaml:"regex,omitempty"`
	Children []DefinitionNode `yaml:"children,omitempty"`
}

// ParseDefinition decodes a YAML forest definition.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, eris.Wrap(err, "filter: parse definition")
	}
	if def.Site == "" {
		return nil, eris.New("filter: definition missing site")
	}
	def.Site = model.NormalizeSite(def.Site)
	if len(def.Filters) == 0 {
		return nil, eris.Errorf("filter: definition for site %s has no filters", def.Site)
	}
	return &def, nil
}

// Rows flattens the definition into origin-filter rows with synthetic ids
// (1..n) expressing parent links. The rows validate through Build exactly
// like rows loaded from the store; callers should do so before persisting.
func (d *Definition) Rows() []model.OriginFilter {
	var rows []model.OriginFilter
	var nextID int64

	var walk func(n DefinitionNode, parent *int64)
	walk = func(n DefinitionNode, parent *int64) {
		nextID++
		id := nextID
		rows = append(rows, model.OriginFilter{
			ID:           id,
			Name:         n.Name,
			Site:         d.Site,
			IsRoot:       parent == nil,
			Operator:     n.Operator,
			PropertyName: n.Property,
			Regex:        n.Regex,
			ParentID:     parent,
		})
		for _, ch := range n.Children {
			walk(ch, &id)
		}
	}

	for _, root := range d.Filters {
		walk(root, nil)
	}
	return rows
}

// Validate builds the definition's rows into a forest, surfacing any
// MalformedError before the rows ever reach the store.
func (d *Definition) Validate(opts Options) error {
	_, err := Build(d.Site, d.Rows(), opts)
	return err
}
