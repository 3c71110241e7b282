package schema

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// manifest mirrors the on-disk YAML shape; Kind is decoded from its name
// so manifests stay human-writable instead of carrying raw kind numbers.
type manifest struct {
	Collections []collectionManifest `yaml:"collections"`
}

type collectionManifest struct {
	Name       string               `yaml:"name"`
	Properties []propertyManifest   `yaml:"properties"`
	Indexes    []indexManifest      `yaml:"indexes"`
}

type propertyManifest struct {
	Name   string `yaml:"name"`
	Kind   string `yaml:"kind"`
	Object string `yaml:"object,omitempty"`
}

type indexManifest struct {
	Name       string                  `yaml:"name"`
	Unique     bool                    `yaml:"unique"`
	Components []indexComponentManifest `yaml:"components"`
}

type indexComponentManifest struct {
	Property      string `yaml:"property"`
	CaseSensitive bool   `yaml:"caseSensitive"`
	Hashed        bool   `yaml:"hashed"`
}

var kindNames = map[string]Kind{
	"bool":       KindBool,
	"byte":       KindByte,
	"int32":      KindInt32,
	"int64":      KindInt64,
	"float32":    KindFloat32,
	"float64":    KindFloat64,
	"string":     KindString,
	"object":     KindObject,
	"bool[]":     KindBoolList,
	"byte[]":     KindByteList,
	"int32[]":    KindInt32List,
	"int64[]":    KindInt64List,
	"float32[]":  KindFloat32List,
	"float64[]":  KindFloat64List,
	"string[]":   KindStringList,
	"object[]":   KindObjectList,
}

// LoadYAML parses a schema manifest from YAML bytes, the format Burrow's
// deployment tooling and CLI use to declare collections out of process.
func LoadYAML(data []byte) (*Schema, error) {
	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("schema: parse yaml: %w", err)
	}

	collections := make([]Collection, 0, len(m.Collections))
	for _, cm := range m.Collections {
		props := make([]Property, 0, len(cm.Properties))
		for _, pm := range cm.Properties {
			k, ok := kindNames[pm.Kind]
			if !ok {
				return nil, fmt.Errorf("schema: collection %q: unknown property kind %q", cm.Name, pm.Kind)
			}
			props = append(props, Property{Name: pm.Name, Kind: k, Object: pm.Object})
		}

		indexes := make([]Index, 0, len(cm.Indexes))
		for _, im := range cm.Indexes {
			comps := make([]IndexComponent, 0, len(im.Components))
			for _, compM := range im.Components {
				comps = append(comps, IndexComponent{
					Property:      compM.Property,
					CaseSensitive: compM.CaseSensitive,
					Hashed:        compM.Hashed,
				})
			}
			indexes = append(indexes, Index{Name: im.Name, Unique: im.Unique, Components: comps})
		}

		collections = append(collections, Collection{Name: cm.Name, Properties: props, Indexes: indexes})
	}

	return New(collections...)
}

// LoadYAMLFile reads and parses a schema manifest from path.
func LoadYAMLFile(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("schema: read %s: %w", path, err)
	}
	return LoadYAML(data)
}

var kindLabels = func() map[Kind]string {
	m := make(map[Kind]string, len(kindNames))
	for name, k := range kindNames {
		m[k] = name
	}
	return m
}()

// DumpYAML renders s in the same manifest shape LoadYAML parses, so
// open_instance can persist the schema it opened with alongside the
// substrate file and compare against it on the next open.
func DumpYAML(s *Schema) ([]byte, error) {
	m := manifest{Collections: make([]collectionManifest, 0, len(s.Collections))}
	for _, c := range s.Collections {
		cm := collectionManifest{Name: c.Name}
		for _, p := range c.Properties {
			cm.Properties = append(cm.Properties, propertyManifest{Name: p.Name, Kind: kindLabels[p.Kind], Object: p.Object})
		}
		for _, idx := range c.Indexes {
			im := indexManifest{Name: idx.Name, Unique: idx.Unique}
			for _, comp := range idx.Components {
				im.Components = append(im.Components, indexComponentManifest{
					Property:      comp.Property,
					CaseSensitive: comp.CaseSensitive,
					Hashed:        comp.Hashed,
				})
			}
			cm.Indexes = append(cm.Indexes, im)
		}
		m.Collections = append(m.Collections, cm)
	}
	data, err := yaml.Marshal(&m)
	if err != nil {
		return nil, fmt.Errorf("schema: marshal yaml: %w", err)
	}
	return data, nil
}

// DumpYAMLFile writes s's manifest form to path.
func DumpYAMLFile(path string, s *Schema) error {
	data, err := DumpYAML(s)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("schema: write %s: %w", path, err)
	}
	return nil
}
