package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Side selects the input or output half of a node.
type Side string

const (
	SideInput  Side = "input"
	SideOutput Side = "output"
)

// Field is one entry of a Schema: a field name and its type descriptor.
type Field struct {
	Name string
	Type string
}

// Schema is an insertion-ordered mapping of field name to type descriptor.
// Keys are unique. The zero value is an empty schema ready to use.
type Schema struct {
	fields []Field
}

// NewSchema builds a schema from fields in order. Later duplicates overwrite
// the value of the first occurrence without moving it.
func NewSchema(fields ...Field) Schema {
	var s Schema
	for _, f := range fields {
		s.Set(f.Name, f.Type)
	}
	return s
}

// Len returns the number of fields.
func (s Schema) Len() int { return len(s.fields) }

// Fields returns a copy of the fields in order.
func (s Schema) Fields() []Field {
	out := make([]Field, len(s.fields))
	copy(out, s.fields)
	return out
}

// Keys returns the field names in order.
func (s Schema) Keys() []string {
	out := make([]string, len(s.fields))
	for i, f := range s.fields {
		out[i] = f.Name
	}
	return out
}

// Index returns the position of name, or -1.
func (s Schema) Index(name string) int {
	for i, f := range s.fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Has reports whether name is a field.
func (s Schema) Has(name string) bool { return s.Index(name) >= 0 }

// Get returns the type descriptor of name.
func (s Schema) Get(name string) (string, bool) {
	if i := s.Index(name); i >= 0 {
		return s.fields[i].Type, true
	}
	return "", false
}

// Set assigns a descriptor, appending the field if it is new.
func (s *Schema) Set(name, typ string) {
	if i := s.Index(name); i >= 0 {
		s.fields[i].Type = typ
		return
	}
	s.fields = append(s.fields, Field{Name: name, Type: typ})
}

// Delete removes name. It reports whether the field existed.
func (s *Schema) Delete(name string) bool {
	i := s.Index(name)
	if i < 0 {
		return false
	}
	s.fields = append(s.fields[:i:i], s.fields[i+1:]...)
	return true
}

// RenameKey replaces oldName with newName at the same position, keeping the
// descriptor. It returns false and leaves the schema untouched when oldName is
// absent or newName already names a different field.
func (s *Schema) RenameKey(oldName, newName string) bool {
	i := s.Index(oldName)
	if i < 0 {
		return false
	}
	if oldName == newName {
		return true
	}
	if s.Has(newName) {
		return false
	}
	fields := s.Fields()
	fields[i].Name = newName
	s.fields = fields
	return true
}

// Clone returns an independent copy.
func (s Schema) Clone() Schema {
	return Schema{fields: s.Fields()}
}

// Equal reports whether both schemas hold the same fields in the same order.
func (s Schema) Equal(o Schema) bool {
	if len(s.fields) != len(o.fields) {
		return false
	}
	for i := range s.fields {
		if s.fields[i] != o.fields[i] {
			return false
		}
	}
	return true
}

// MarshalJSON writes the schema as a JSON object in field order.
func (s Schema) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range s.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(f.Type)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object of string descriptors, keeping key order.
func (s *Schema) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	if tok == nil {
		s.fields = nil
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("schema: expected object, got %v", tok)
	}
	var out Schema
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("schema: %w", err)
		}
		key, _ := keyTok.(string)
		var typ string
		if err := dec.Decode(&typ); err != nil {
			return fmt.Errorf("schema field %q: descriptor must be a string: %w", key, err)
		}
		if out.Has(key) {
			return fmt.Errorf("schema: duplicate field %q", key)
		}
		out.Set(key, typ)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	*s = out
	return nil
}
