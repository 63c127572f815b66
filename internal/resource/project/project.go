// Package project renders a schema as a JSON Schema document. External
// validators use the document to check machine-produced field data against
// the tenant's live field shapes.
package project

import (
	"fmt"

	"github.com/procura-hq/procura/internal/resource/schema"
)

const (
	uuidPattern  = `^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`
	datePattern  = `^\d{4}-\d{2}-\d{2}$`
	emailPattern = `^[^@\s]+@[^@\s]+\.[^@\s]+$`
	phonePattern = `^\d{10}$`
)

// Property is a single JSON Schema property fragment. Nullability is
// expressed through the type array ("string" plus "null").
type Property struct {
	Types       []string             `json:"type,omitempty"`
	Description string               `json:"description,omitempty"`
	Pattern     string               `json:"pattern,omitempty"`
	MinLength   *int                 `json:"minLength,omitempty"`
	Enum        []string             `json:"enum,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	AnyOf       []*Property          `json:"anyOf,omitempty"`
}

// Document is the JSON Schema rendering of one resource schema. Field names
// become property names; required fields become the required list.
type Document struct {
	Schema     string               `json:"$schema"`
	Title      string               `json:"title"`
	Type       string               `json:"type"`
	Properties map[string]*Property `json:"properties"`
	Required   []string             `json:"required,omitempty"`
}

// Project maps every field of the schema to a property fragment.
func Project(sc *schema.Schema) *Document {
	doc := &Document{
		Schema:     "https://json-schema.org/draft/2020-12/schema",
		Title:      sc.ResourceType.String(),
		Type:       "object",
		Properties: make(map[string]*Property),
	}
	for _, f := range sc.AllFields() {
		doc.Properties[f.Name] = FieldProperty(f)
		if f.IsRequired {
			doc.Required = append(doc.Required, f.Name)
		}
	}
	return doc
}

// FieldProperty maps one field type to its fragment. The switch covers the
// full field type enumeration; a type without a case is a bug, not a field
// to skip, so the fallthrough panics.
func FieldProperty(f *schema.SchemaField) *Property {
	p := fragmentFor(f)
	p.Description = f.Description
	return p
}

func fragmentFor(f *schema.SchemaField) *Property {
	switch f.Type {
	case schema.FieldText, schema.FieldTextarea:
		return nonEmptyString()
	case schema.FieldNumber, schema.FieldMoney:
		return &Property{Types: []string{"number", "null"}}
	case schema.FieldCheckbox:
		return &Property{Types: []string{"boolean", "null"}}
	case schema.FieldDate:
		return &Property{Types: []string{"string", "null"}, Pattern: datePattern}
	case schema.FieldSelect, schema.FieldUser, schema.FieldResource, schema.FieldFile:
		return uuidString()
	case schema.FieldMultiSelect:
		return &Property{
			Types: []string{"array", "null"},
			Items: &Property{AnyOf: []*Property{
				{Types: []string{"string"}, Pattern: uuidPattern},
				{Types: []string{"string"}, Enum: optionNames(f)},
			}},
		}
	case schema.FieldFiles:
		return &Property{
			Types: []string{"array", "null"},
			Items: &Property{Types: []string{"string"}, Pattern: uuidPattern},
		}
	case schema.FieldAddress:
		return &Property{
			Types: []string{"object", "null"},
			Properties: map[string]*Property{
				"line1": nullableString(),
				"line2": nullableString(),
				"city":  nullableString(),
				"state": nullableString(),
				"zip":   nullableString(),
			},
		}
	case schema.FieldContact:
		return &Property{
			Types: []string{"object", "null"},
			Properties: map[string]*Property{
				"name":  nullableString(),
				"email": {Types: []string{"string", "null"}, Pattern: emailPattern},
				"phone": {Types: []string{"string", "null"}, Pattern: phonePattern},
				"title": nullableString(),
			},
		}
	}
	panic(fmt.Sprintf("no projection for field type %s", f.Type))
}

func optionNames(f *schema.SchemaField) []string {
	names := make([]string, len(f.Options))
	for i, opt := range f.Options {
		names[i] = opt.Name
	}
	return names
}

func nonEmptyString() *Property {
	one := 1
	return &Property{Types: []string{"string", "null"}, MinLength: &one}
}

func uuidString() *Property {
	return &Property{Types: []string{"string", "null"}, Pattern: uuidPattern}
}

func nullableString() *Property {
	return &Property{Types: []string{"string", "null"}}
}
