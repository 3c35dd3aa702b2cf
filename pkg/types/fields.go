// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strings"
)

// Default RPG registry field names.
const (
	DefaultIdentifierField = "ID_PARCEL"
	DefaultCultureField    = "CULTURE_D1"
	DefaultSurfaceField    = "SURF_PARC"
)

// FieldMapping names the source attributes holding the parcel identifier,
// culture code and surface. The same names are used as output properties.
type FieldMapping struct {
	Identifier string `json:"identifier" yaml:"identifier" mapstructure:"identifier"`
	Culture    string `json:"culture" yaml:"culture" mapstructure:"culture"`
	Surface    string `json:"surface" yaml:"surface" mapstructure:"surface"`
}

// DefaultFieldMapping returns the RPG field names.
func DefaultFieldMapping() FieldMapping {
	return FieldMapping{
		Identifier: DefaultIdentifierField,
		Culture:    DefaultCultureField,
		Surface:    DefaultSurfaceField,
	}
}

// Names returns the mapped field names in output order.
func (m FieldMapping) Names() []string {
	return []string{m.Identifier, m.Culture, m.Surface}
}

// WithDefaults fills blank entries from DefaultFieldMapping.
func (m FieldMapping) WithDefaults() FieldMapping {
	d := DefaultFieldMapping()
	if strings.TrimSpace(m.Identifier) == "" {
		m.Identifier = d.Identifier
	}
	if strings.TrimSpace(m.Culture) == "" {
		m.Culture = d.Culture
	}
	if strings.TrimSpace(m.Surface) == "" {
		m.Surface = d.Surface
	}
	return m
}

// Validate checks that the three names are set and distinct.
func (m FieldMapping) Validate() error {
	seen := make(map[string]bool, 3)
	for _, n := range m.Names() {
		if strings.TrimSpace(n) == "" {
			return fmt.Errorf("field mapping has an empty field name")
		}
		key := strings.ToUpper(n)
		if seen[key] {
			return fmt.Errorf("field mapping uses %q twice", n)
		}
		seen[key] = true
	}
	return nil
}
