package plugin

import (
	"strings"

	"github.com/pkg/errors"
)

// FieldType is the element type of an attribute.
type FieldType int32

// Attribute types.
const (
	FieldInt32 FieldType = iota
	FieldFloat32
	FieldString
)

func (t FieldType) String() string {
	switch t {
	case FieldInt32:
		return "int32"
	case FieldFloat32:
		return "float32"
	case FieldString:
		return "string"
	default:
		return "unknown"
	}
}

// Field is a named construction attribute. In a schema Data is nil and
// Length is the expected element count (0 = any).
type Field struct {
	Name     string
	Type     FieldType
	Data     any // []int32, []float32 or string
	Length   int
	Required bool // schema only
}

// Int32Field builds an int32 attribute.
func Int32Field(name string, v ...int32) Field {
	return Field{Name: name, Type: FieldInt32, Data: v, Length: len(v)}
}

// Float32Field builds a float32 attribute.
func Float32Field(name string, v ...float32) Field {
	return Field{Name: name, Type: FieldFloat32, Data: v, Length: len(v)}
}

// StringField builds a string attribute.
func StringField(name, v string) Field {
	return Field{Name: name, Type: FieldString, Data: v, Length: len(v)}
}

// Int32s returns the field data as int32 values.
func (f Field) Int32s() ([]int32, error) {
	v, ok := f.Data.([]int32)
	if !ok || f.Type != FieldInt32 {
		return nil, errors.Wrapf(ErrConfig, "field %q: expected int32 data, got %T", f.Name, f.Data)
	}
	return v, nil
}

// Float32s returns the field data as float32 values.
func (f Field) Float32s() ([]float32, error) {
	v, ok := f.Data.([]float32)
	if !ok || f.Type != FieldFloat32 {
		return nil, errors.Wrapf(ErrConfig, "field %q: expected float32 data, got %T", f.Name, f.Data)
	}
	return v, nil
}

// Str returns the field data as a string.
func (f Field) Str() (string, error) {
	v, ok := f.Data.(string)
	if !ok || f.Type != FieldString {
		return "", errors.Wrapf(ErrConfig, "field %q: expected string data, got %T", f.Name, f.Data)
	}
	return v, nil
}

// dataLen returns the element count actually held in Data, or -1 when Data
// does not match Type.
func (f Field) dataLen() int {
	switch v := f.Data.(type) {
	case []int32:
		if f.Type == FieldInt32 {
			return len(v)
		}
	case []float32:
		if f.Type == FieldFloat32 {
			return len(v)
		}
	case string:
		if f.Type == FieldString {
			return len(v)
		}
	}
	return -1
}

// FieldCollection is an ordered list of fields.
type FieldCollection struct {
	Fields []Field
}

// NewFieldCollection returns a collection holding fields in order.
func NewFieldCollection(fields ...Field) *FieldCollection {
	return &FieldCollection{Fields: fields}
}

// Find returns the first field named name.
func (fc *FieldCollection) Find(name string) (Field, bool) {
	if fc == nil {
		return Field{}, false
	}
	for _, f := range fc.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Names returns the field names in order.
func (fc *FieldCollection) Names() []string {
	if fc == nil {
		return nil
	}
	names := make([]string, len(fc.Fields))
	for i, f := range fc.Fields {
		names[i] = f.Name
	}
	return names
}

// Validate checks attrs against the schema fc. Every field must be declared
// with the same type, hold exactly Length values and, when the schema fixes
// it, the schema length. Every required field must be present. Failures wrap
// ErrConfig.
func (fc *FieldCollection) Validate(attrs *FieldCollection) error {
	seen := make(map[string]bool)
	if attrs != nil {
		for _, f := range attrs.Fields {
			decl, ok := fc.Find(f.Name)
			if !ok {
				return errors.Wrapf(ErrConfig, "unknown attribute %q (known: %s)", f.Name, strings.Join(fc.Names(), ", "))
			}
			if seen[f.Name] {
				return errors.Wrapf(ErrConfig, "duplicate attribute %q", f.Name)
			}
			seen[f.Name] = true
			if decl.Type != f.Type {
				return errors.Wrapf(ErrConfig, "attribute %q: expected %s, got %s", f.Name, decl.Type, f.Type)
			}
			n := f.dataLen()
			if n < 0 {
				return errors.Wrapf(ErrConfig, "attribute %q: data %T does not match type %s", f.Name, f.Data, f.Type)
			}
			if n != f.Length {
				return errors.Wrapf(ErrConfig, "attribute %q: declares %d values, holds %d", f.Name, f.Length, n)
			}
			if decl.Length > 0 && decl.Length != n {
				return errors.Wrapf(ErrConfig, "attribute %q: expected %d values, got %d", f.Name, decl.Length, n)
			}
		}
	}
	for _, decl := range fc.Fields {
		if decl.Required && !seen[decl.Name] {
			return errors.Wrapf(ErrConfig, "missing required attribute %q", decl.Name)
		}
	}
	return nil
}
