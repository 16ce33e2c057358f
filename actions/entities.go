package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/ghodss/yaml"
	"github.com/relloyd/stagesync/config"
	c "github.com/relloyd/stagesync/constants"
	"github.com/relloyd/stagesync/entities"
	"github.com/relloyd/stagesync/logger"
	"github.com/relloyd/stagesync/rdbms"
	td "github.com/relloyd/stagesync/table-definition"
)

// ListEntities prints one line per entity with its source, scope and whether full runs include it.
func ListEntities(catalog entities.Catalog, settings *config.Settings, out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSOURCE\tSCOPE\tDELETE POLICY\tENABLED")
	for _, e := range catalog {
		src := string(e.Source.Kind)
		if e.Source.Kind == entities.SourceSql {
			src += ":" + e.Source.Connection
		}
		fmt.Fprintf(w, "%v\t%v\t%v\t%v\t%v\n", e.Name, src, e.Scope, e.DeletePolicy, settings.EntityEnabled(e.Name))
	}
	return w.Flush()
}

// DescribeEntity writes the description of the named entity as yaml or json.
func DescribeEntity(catalog entities.Catalog, name string, yamlOrJson string, out io.Writer) error {
	e, err := catalog.Lookup(name)
	if err != nil {
		return err
	}
	var data []byte
	switch strings.ToLower(yamlOrJson) {
	case "yaml":
		data, err = yaml.Marshal(e.Describe())
	case "json":
		data, err = json.MarshalIndent(e.Describe(), "", "  ")
	default:
		return fmt.Errorf("unsupported output format %q", yamlOrJson)
	}
	if err != nil {
		return fmt.Errorf("unable to marshal entity %v: %w", e.Name, err)
	}
	_, err = out.Write(append(data, '\n'))
	return err
}

// EntityDDL writes the create table statements of the import, stage and production tables of
// each selected entity.
func EntityDDL(selected entities.Catalog, out io.Writer) error {
	for _, e := range selected {
		fmt.Fprintf(out, "-- %v\n", e.Name)
		for _, x := range []struct {
			role           string
			table          rdbms.SchemaTable
			withEtlCommand bool
		}{
			{"import", e.ImportTable, false},
			{"stage", e.StageTable, true},
			{"production", e.ProductionTable, false},
		} {
			ddl, err := td.CreateTableDDL(x.table, e.Descriptor, e.Keys, x.withEtlCommand)
			if err != nil {
				return fmt.Errorf("entity %v %v table: %w", e.Name, x.role, err)
			}
			fmt.Fprintf(out, "%v;\n\n", ddl)
		}
	}
	return nil
}

// VerifyEntities checks the tables of every selected entity and reports each failure.
// The returned error lists the entities that failed.
func VerifyEntities(ctx context.Context, log logger.Logger, settings *config.Settings, selected entities.Catalog, out io.Writer) error {
	staging, err := OpenStore(ctx, log, settings, c.ConnectionNameStaging)
	if err != nil {
		return err
	}
	defer staging.Close()
	production, err := OpenStore(ctx, log, settings, c.ConnectionNameProd)
	if err != nil {
		return err
	}
	defer production.Close()
	return verifyAll(ctx, log, staging, production, selected, out)
}

func verifyAll(ctx context.Context, log logger.Logger, staging td.Querier, production td.Querier, selected entities.Catalog, out io.Writer) error {
	failed := make([]string, 0)
	for _, e := range selected {
		if err := VerifyEntity(ctx, log, staging, production, e); err != nil {
			fmt.Fprintf(out, "%v: FAILED: %v\n", e.Name, err)
			failed = append(failed, e.Name)
			continue
		}
		fmt.Fprintf(out, "%v: ok\n", e.Name)
	}
	if len(failed) > 0 {
		return fmt.Errorf("table checks failed for %v", strings.Join(failed, ", "))
	}
	return nil
}
