// Package schema holds the response contracts of every LLM stage.
//
// A Schema lists the fields a response object must or may carry, the semantic
// type of each field, optional enum constraints and nested schemas for list
// items or mapping values. Schemas are immutable once built; the process-wide
// registry returned by Default is safe for concurrent reads.
package schema

// FieldType is the semantic JSON type a field must have.
type FieldType string

const (
	TypeString          FieldType = "string"
	TypeInteger         FieldType = "integer"
	TypeFloat           FieldType = "float"
	TypeBoolean         FieldType = "boolean"
	TypeList            FieldType = "list"
	TypeMapping         FieldType = "mapping"
	TypeNullableMapping FieldType = "nullable-mapping"
)

// Field describes a single field of a schema.
type Field struct {
	name     string
	typ      FieldType
	required bool
	enum     []string
	nested   *Schema
}

// Name returns the JSON key of the field.
func (f Field) Name() string { return f.name }

// Type returns the semantic type of the field.
func (f Field) Type() FieldType { return f.typ }

// Required reports whether the field must be present.
func (f Field) Required() bool { return f.required }

// Enum returns the allowed values, or nil when the field is unconstrained.
func (f Field) Enum() []string {
	if f.enum == nil {
		return nil
	}
	out := make([]string, len(f.enum))
	copy(out, f.enum)
	return out
}

// Nested returns the schema applied to each list item or to the mapping value.
func (f Field) Nested() *Schema { return f.nested }

// Allows reports whether v is one of the enum values. Unconstrained fields allow everything.
func (f Field) Allows(v string) bool {
	if len(f.enum) == 0 {
		return true
	}
	for _, allowed := range f.enum {
		if allowed == v {
			return true
		}
	}
	return false
}

func required(name string, t FieldType) Field {
	return Field{name: name, typ: t, required: true}
}

func optional(name string, t FieldType) Field {
	return Field{name: name, typ: t}
}

func (f Field) oneOf(values ...string) Field {
	f.enum = values
	return f
}

func (f Field) of(s *Schema) Field {
	f.nested = s
	return f
}

// Schema is the contract for one JSON object shape.
type Schema struct {
	name        string
	description string
	template    string
	fields      []Field
	gate        string
}

func newSchema(name, description, template string, fields ...Field) *Schema {
	return &Schema{
		name:        name,
		description: description,
		template:    template,
		fields:      fields,
	}
}

// gatedBy marks a boolean field that switches the remaining rules off when false.
func (s *Schema) gatedBy(field string) *Schema {
	s.gate = field
	return s
}

// Name returns the registry name of the schema.
func (s *Schema) Name() string { return s.name }

// Description returns a human-readable summary of the schema.
func (s *Schema) Description() string { return s.description }

// Template returns the canonical JSON example shown to the model.
func (s *Schema) Template() string { return s.template }

// Gate returns the boolean field that disables the other rules when false, if any.
func (s *Schema) Gate() string { return s.gate }

// Fields returns the fields in declaration order.
func (s *Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	for _, f := range s.fields {
		if f.name == name {
			return f, true
		}
	}
	return Field{}, false
}

// RequiredFields returns the names of all required fields in declaration order.
func (s *Schema) RequiredFields() []string {
	var out []string
	for _, f := range s.fields {
		if f.required {
			out = append(out, f.name)
		}
	}
	return out
}

// Types returns the field to type map.
func (s *Schema) Types() map[string]FieldType {
	out := make(map[string]FieldType, len(s.fields))
	for _, f := range s.fields {
		out[f.name] = f.typ
	}
	return out
}

// Enums returns the field to allowed values map for constrained fields.
func (s *Schema) Enums() map[string][]string {
	out := make(map[string][]string)
	for _, f := range s.fields {
		if len(f.enum) > 0 {
			out[f.name] = f.Enum()
		}
	}
	return out
}
