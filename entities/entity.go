// Package entities is the catalog of record kinds the synchronizer refreshes.
// Each entity names its source, its tables and the rules used to classify its rows.
package entities

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/relloyd/stagesync/components"
	"github.com/relloyd/stagesync/rdbms"
	td "github.com/relloyd/stagesync/table-definition"
)

type SourceKind string

const (
	SourceQGenda SourceKind = "qgenda"
	SourceSql    SourceKind = "sql"
)

// Source describes where an entity is fetched from.
type Source struct {
	Kind SourceKind `json:"kind"`
	// QGenda
	Path       string   `json:"path,omitempty"`
	Select     []string `json:"select,omitempty"`
	OrderBy    []string `json:"orderBy,omitempty"`
	Includes   string   `json:"includes,omitempty"`
	DateFormat string   `json:"dateFormat,omitempty"`
	// SQL
	Connection string `json:"connection,omitempty"` // name of the configured connection
	Sqltext    string `json:"sql,omitempty"`
	Windowed   bool   `json:"windowed,omitempty"`
}

// Entity is one record kind and everything needed to synchronize it.
type Entity struct {
	Name              string
	Source            Source
	Descriptor        td.Descriptor
	Keys              []string // natural key
	Tracked           []string // empty means every non-key field
	OrderKey          string   // picks the winner among duplicate keys
	Scope             components.Scope
	WindowField       string
	ScopeKey          string
	DeletePolicy      components.DeletePolicy
	RequireRows       bool // an empty fetch is an error
	RequireMirrorRows bool // an empty production table is an error
	FilterRule        string
	Transforms        []components.Transform
	DaysBack          int
	DaysForward       int
	ImportTable       rdbms.SchemaTable
	StageTable        rdbms.SchemaTable
	ProductionTable   rdbms.SchemaTable
}

// Validate checks that every field the entity refers to is in its descriptor.
func (e *Entity) Validate() error {
	if e.Name == "" {
		return errors.New("entity has no name")
	}
	if len(e.Keys) == 0 {
		return fmt.Errorf("entity %v has no natural key", e.Name)
	}
	names := append(append([]string{}, e.Keys...), e.Tracked...)
	if e.OrderKey != "" {
		names = append(names, e.OrderKey)
	}
	switch e.Scope {
	case components.ScopeWindow:
		if e.WindowField == "" {
			return fmt.Errorf("entity %v is windowed but has no window field", e.Name)
		}
		names = append(names, e.WindowField)
	case components.ScopeKeySet:
		if e.ScopeKey == "" {
			return fmt.Errorf("entity %v is scoped by key set but has no scope key", e.Name)
		}
		names = append(names, e.ScopeKey)
	}
	if err := e.Descriptor.Validate(names...); err != nil {
		return errors.Wrapf(err, "entity %v", e.Name)
	}
	for _, st := range []rdbms.SchemaTable{e.ImportTable, e.StageTable, e.ProductionTable} {
		if st.GetTable() == "" {
			return fmt.Errorf("entity %v is missing a table name", e.Name)
		}
	}
	switch e.Source.Kind {
	case SourceQGenda:
		if e.Source.Path == "" {
			return fmt.Errorf("entity %v has no QGenda path", e.Name)
		}
	case SourceSql:
		if e.Source.Connection == "" || e.Source.Sqltext == "" {
			return fmt.Errorf("entity %v needs a source connection and query", e.Name)
		}
	default:
		return fmt.Errorf("entity %v has unsupported source kind %q", e.Name, e.Source.Kind)
	}
	return nil
}

// Description is the printable form of an entity.
type Description struct {
	Name            string     `json:"name"`
	Source          Source     `json:"source"`
	Keys            []string   `json:"keys"`
	Tracked         []string   `json:"tracked"`
	OrderKey        string     `json:"orderKey,omitempty"`
	Scope           string     `json:"scope"`
	WindowField     string     `json:"windowField,omitempty"`
	ScopeKey        string     `json:"scopeKey,omitempty"`
	DeletePolicy    string     `json:"deletePolicy"`
	RequireRows     bool       `json:"requireRows,omitempty"`
	FilterRule      string     `json:"filterRule,omitempty"`
	Transforms      []string   `json:"transforms,omitempty"`
	ImportTable     string     `json:"importTable"`
	StageTable      string     `json:"stageTable"`
	ProductionTable string     `json:"productionTable"`
	Fields          []td.Field `json:"fields"`
}

func (e *Entity) Describe() Description {
	d := Description{
		Name:            e.Name,
		Source:          e.Source,
		Keys:            e.Keys,
		Tracked:         e.Tracked,
		OrderKey:        e.OrderKey,
		Scope:           e.Scope.String(),
		WindowField:     e.WindowField,
		ScopeKey:        e.ScopeKey,
		DeletePolicy:    e.DeletePolicy.String(),
		RequireRows:     e.RequireRows,
		FilterRule:      e.FilterRule,
		ImportTable:     e.ImportTable.String(),
		StageTable:      e.StageTable.String(),
		ProductionTable: e.ProductionTable.String(),
		Fields:          e.Descriptor.Fields,
	}
	if len(d.Tracked) == 0 {
		d.Tracked = []string{"*"}
	}
	for _, t := range e.Transforms {
		d.Transforms = append(d.Transforms, t.Name())
	}
	return d
}

// Catalog is the ordered set of entities. Runs visit entities in catalog order.
type Catalog []*Entity

// Names returns the entity names in catalog order.
func (c Catalog) Names() []string {
	retval := make([]string, len(c))
	for idx, e := range c {
		retval[idx] = e.Name
	}
	return retval
}

// Lookup finds an entity by name, ignoring case.
func (c Catalog) Lookup(name string) (*Entity, error) {
	for _, e := range c {
		if strings.EqualFold(e.Name, name) {
			return e, nil
		}
	}
	return nil, fmt.Errorf("unknown entity %q; expected one of %v", name, strings.Join(c.Names(), ", "))
}

// Select returns the named entities in catalog order, or the whole catalog if names is empty.
func (c Catalog) Select(names ...string) (Catalog, error) {
	if len(names) == 0 {
		return c, nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		e, err := c.Lookup(n)
		if err != nil {
			return nil, err
		}
		want[e.Name] = true
	}
	retval := make(Catalog, 0, len(want))
	for _, e := range c {
		if want[e.Name] {
			retval = append(retval, e)
		}
	}
	return retval, nil
}

// Validate checks every entity and that names are unique.
func (c Catalog) Validate() error {
	seen := make(map[string]bool, len(c))
	for _, e := range c {
		if err := e.Validate(); err != nil {
			return err
		}
		if seen[strings.ToLower(e.Name)] {
			return fmt.Errorf("duplicate entity %v", e.Name)
		}
		seen[strings.ToLower(e.Name)] = true
	}
	return nil
}

func tables(importTable, stageTable, productionTable string) (i, s, p rdbms.SchemaTable) {
	return rdbms.SchemaTable{SchemaTable: importTable}, rdbms.SchemaTable{SchemaTable: stageTable}, rdbms.SchemaTable{SchemaTable: productionTable}
}

func f(name string, t td.FieldType) td.Field {
	return td.Field{Name: name, Type: t}
}

func fs(name string, t td.FieldType, source string) td.Field {
	return td.Field{Name: name, Type: t, Source: source}
}

// sourceNames returns the source name of each field, skipping the derived ones.
func sourceNames(d td.Descriptor, derived ...string) []string {
	skip := make(map[string]bool, len(derived))
	for _, n := range derived {
		skip[n] = true
	}
	retval := make([]string, 0, len(d.Fields))
	for _, fld := range d.Fields {
		if !skip[fld.Name] {
			retval = append(retval, fld.SourceName())
		}
	}
	return retval
}
