/*
Package schema declares the data model a Burrow instance enforces:
collections, their typed properties, and their secondary indexes. A
Schema is immutable once built; open_instance compares it against what is
already on disk and fails with a mismatch error when the two cannot be
reconciled additively.
*/
package schema

import "fmt"

// Kind is the tagged variant a property value belongs to.
type Kind uint8

const (
	KindBool Kind = iota
	KindByte
	KindInt32
	KindInt64
	KindFloat32
	KindFloat64
	KindString
	KindObject
	KindBoolList
	KindByteList
	KindInt32List
	KindInt64List
	KindFloat32List
	KindFloat64List
	KindStringList
	KindObjectList
)

// IsList reports whether the kind is a homogeneous list of scalars/objects.
func (k Kind) IsList() bool {
	return k >= KindBoolList
}

// Elem returns the scalar kind underlying a list kind (itself if k is
// already scalar).
func (k Kind) Elem() Kind {
	if !k.IsList() {
		return k
	}
	return k - KindBoolList
}

func (k Kind) String() string {
	switch k {
	case KindBool:
		return "bool"
	case KindByte:
		return "byte"
	case KindInt32:
		return "int32"
	case KindInt64:
		return "int64"
	case KindFloat32:
		return "float32"
	case KindFloat64:
		return "float64"
	case KindString:
		return "string"
	case KindObject:
		return "object"
	case KindBoolList:
		return "bool[]"
	case KindByteList:
		return "byte[]"
	case KindInt32List:
		return "int32[]"
	case KindInt64List:
		return "int64[]"
	case KindFloat32List:
		return "float32[]"
	case KindFloat64List:
		return "float64[]"
	case KindStringList:
		return "string[]"
	case KindObjectList:
		return "object[]"
	default:
		return "unknown"
	}
}

// Property is one named, typed field of a collection, addressed by a
// stable 16-bit index within the collection.
type Property struct {
	Index  uint16 `yaml:"-"`
	Name   string `yaml:"name"`
	Kind   Kind   `yaml:"kind"`
	Object string `yaml:"object,omitempty"` // name of nested collection, when Kind is Object/ObjectList
}

// IndexComponent is one (property, case-sensitivity, hashed?) element of
// a composite index key.
type IndexComponent struct {
	Property      string `yaml:"property"`
	CaseSensitive bool   `yaml:"caseSensitive"`
	Hashed        bool   `yaml:"hashed"`

	propertyIndex uint16
	kind          Kind
}

func (c IndexComponent) PropertyIndex() uint16 { return c.propertyIndex }
func (c IndexComponent) Kind() Kind            { return c.kind }

// Index is a secondary KV mapping computed key bytes to object ids.
type Index struct {
	Name       string           `yaml:"name"`
	Components []IndexComponent `yaml:"components"`
	Unique     bool             `yaml:"unique"`
}

// Collection is a named, schema-positioned container of objects sharing a
// property shape.
type Collection struct {
	Index      uint16     `yaml:"-"`
	Name       string     `yaml:"name"`
	Properties []Property `yaml:"properties"`
	Indexes    []Index    `yaml:"indexes"`

	byName map[string]*Property
}

// Property looks up a property descriptor by name.
func (c *Collection) Property(name string) (*Property, bool) {
	p, ok := c.byName[name]
	return p, ok
}

// PropertyByIndex looks up a property descriptor by its stable index.
func (c *Collection) PropertyByIndex(idx uint16) (*Property, bool) {
	for i := range c.Properties {
		if c.Properties[i].Index == idx {
			return &c.Properties[i], true
		}
	}
	return nil, false
}

// Schema is an ordered, positioned list of collections. Position within
// the slice is each collection's identity within an instance.
type Schema struct {
	Collections []Collection `yaml:"collections"`

	byName map[string]*Collection
}

// New builds and validates a Schema from a set of collection definitions,
// assigning stable indexes by declaration order.
func New(collections ...Collection) (*Schema, error) {
	s := &Schema{Collections: collections}
	if err := s.resolve(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Schema) resolve() error {
	s.byName = make(map[string]*Collection, len(s.Collections))
	for ci := range s.Collections {
		c := &s.Collections[ci]
		c.Index = uint16(ci)
		if c.Name == "" {
			return fmt.Errorf("schema: collection %d has no name", ci)
		}
		if _, dup := s.byName[c.Name]; dup {
			return fmt.Errorf("schema: duplicate collection name %q", c.Name)
		}
		s.byName[c.Name] = c

		c.byName = make(map[string]*Property, len(c.Properties))
		for pi := range c.Properties {
			p := &c.Properties[pi]
			p.Index = uint16(pi)
			if _, dup := c.byName[p.Name]; dup {
				return fmt.Errorf("schema: collection %q: duplicate property %q", c.Name, p.Name)
			}
			c.byName[p.Name] = p
		}

		for xi := range c.Indexes {
			idx := &c.Indexes[xi]
			if len(idx.Components) == 0 {
				return fmt.Errorf("schema: collection %q: index %q has no components", c.Name, idx.Name)
			}
			for compI := range idx.Components {
				comp := &idx.Components[compI]
				p, ok := c.byName[comp.Property]
				if !ok {
					return fmt.Errorf("schema: collection %q: index %q references unknown property %q", c.Name, idx.Name, comp.Property)
				}
				comp.propertyIndex = p.Index
				comp.kind = p.Kind
			}
		}
	}
	return nil
}

// Collection looks up a collection descriptor by name.
func (s *Schema) Collection(name string) (*Collection, bool) {
	c, ok := s.byName[name]
	return c, ok
}

// CollectionByIndex looks up a collection descriptor by its stable index.
func (s *Schema) CollectionByIndex(idx uint16) (*Collection, bool) {
	if int(idx) >= len(s.Collections) {
		return nil, false
	}
	return &s.Collections[idx], true
}

// CompatibleWith reports whether an on-disk schema (other) can be opened
// under this schema without data loss: every collection/property/index
// that exists on disk must still exist here with the same kind, and new
// collections/properties/indexes may only be additive.
func (s *Schema) CompatibleWith(onDisk *Schema) error {
	for _, oc := range onDisk.Collections {
		c, ok := s.Collection(oc.Name)
		if !ok {
			return fmt.Errorf("schema: collection %q present on disk is missing from schema", oc.Name)
		}
		for _, op := range oc.Properties {
			p, ok := c.Property(op.Name)
			if !ok {
				return fmt.Errorf("schema: collection %q: property %q present on disk is missing from schema", oc.Name, op.Name)
			}
			if p.Kind != op.Kind {
				return fmt.Errorf("schema: collection %q: property %q changed kind from %s to %s", oc.Name, op.Name, op.Kind, p.Kind)
			}
		}
		for _, oidx := range oc.Indexes {
			found := false
			for _, idx := range c.Indexes {
				if idx.Name == oidx.Name {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("schema: collection %q: index %q present on disk is missing from schema", oc.Name, oidx.Name)
			}
		}
	}
	return nil
}
