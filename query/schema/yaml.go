package schema

import (
	"fmt"
	"io"
	"reflect"

	"gopkg.in/yaml.v3"
)

type yamlDocument struct {
	Tables []yamlTable `yaml:"tables"`
}

type yamlTable struct {
	Entity           string       `yaml:"entity"`
	Name             string       `yaml:"name"`
	Schema           string       `yaml:"schema"`
	Key              string       `yaml:"key"`
	KeyAutoGenerated bool         `yaml:"keyAutoGenerated"`
	Columns          []yamlColumn `yaml:"columns"`
}

type yamlColumn struct {
	Name string `yaml:"name"`
	DB   string `yaml:"db"`
	Auto bool   `yaml:"auto"`
}

// LoadYAML registers the table mappings in r for the given entity types,
// matched by type name:
//
//	tables:
//	  - entity: User
//	    name: users
//	    key: ID
//	    keyAutoGenerated: true
//	    columns:
//	      - {name: ID, db: id, auto: true}
//	      - {name: Name, db: full_name}
//
// A mapping without columns takes the derived columns of the type.
func (r *Registry) LoadYAML(in io.Reader, types ...reflect.Type) error {
	var doc yamlDocument
	if err := yaml.NewDecoder(in).Decode(&doc); err != nil {
		return fmt.Errorf("failed to decode schema file: %w", err)
	}

	byName := make(map[string]reflect.Type, len(types))
	for _, t := range types {
		t = indirect(t)
		byName[t.Name()] = t
	}

	for _, yt := range doc.Tables {
		t, ok := byName[yt.Entity]
		if !ok {
			return fmt.Errorf("schema file maps unknown entity %q", yt.Entity)
		}
		ts := &TableSchema{
			Name:             yt.Name,
			Schema:           yt.Schema,
			Key:              yt.Key,
			KeyAutoGenerated: yt.KeyAutoGenerated,
		}
		if ts.Name == "" {
			ts.Name = t.Name()
		}
		if len(yt.Columns) == 0 {
			derived, err := Derive(t)
			if err != nil {
				return err
			}
			ts.Columns = derived.Columns
		}
		for _, yc := range yt.Columns {
			ts.Columns = append(ts.Columns, ColumnSchema{Name: yc.Name, DBName: yc.DB, AutoGenerated: yc.Auto})
		}
		if err := r.Register(t, ts); err != nil {
			return err
		}
	}
	return nil
}
