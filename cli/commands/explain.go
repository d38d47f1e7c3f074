package commands

import (
	"fmt"
	"strings"

	"github.com/satishbabariya/exprsql/cli/internal/config"
	"github.com/satishbabariya/exprsql/cli/internal/ui"
	"github.com/satishbabariya/exprsql/query/compiler"
	"github.com/satishbabariya/exprsql/query/dialect"
	"github.com/satishbabariya/exprsql/query/executor"
	"github.com/satishbabariya/exprsql/query/expr"
	"github.com/satishbabariya/exprsql/runtime/engine"
	"github.com/spf13/cobra"
)

type explainOptions struct {
	table    string
	columns  []string
	key      string
	where    string
	selected []string
	orderBy  []string
	offset   int
	limit    int
	count    bool
	vars     map[string]string
	markdown bool
}

func newExplainCommand() *cobra.Command {
	var opts explainOptions

	cmd := &cobra.Command{
		Use:   "explain",
		Short: "Compile a predicate to SQL without running it",
		Example: `  exprsql explain --dialect postgres --table users \
    --column id:int --column name --column age:int \
    --where 'age > 30 && name.StartsWith("A")' --order-by -age --limit 10`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := explain(cfg, opts)
			if err != nil {
				return err
			}
			if opts.markdown {
				return ui.PrintMarkdown(explainMarkdown(st))
			}
			ui.PrintSection("SQL")
			fmt.Println(st.SQL)
			if len(st.Params) > 0 {
				fmt.Println()
				return ui.PrintTable(paramTable(st))
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.table, "table", "", "table name")
	f.StringArrayVarP(&opts.columns, "column", "c", nil, "column as name[:type[:db_name]] (repeatable)")
	f.StringVar(&opts.key, "key", "", "key column")
	f.StringVar(&opts.where, "where", "", "predicate, e.g. 'age > 30 && name.Contains(\"a\")'")
	f.StringSliceVar(&opts.selected, "select", nil, "columns to project")
	f.StringSliceVar(&opts.orderBy, "order-by", nil, "order columns; prefix with - for descending")
	f.IntVar(&opts.offset, "offset", 0, "rows to skip")
	f.IntVar(&opts.limit, "limit", 0, "rows to take")
	f.BoolVar(&opts.count, "count", false, "compile a COUNT instead of a SELECT")
	f.StringToStringVar(&opts.vars, "var", nil, "value of a $name variable in the predicate")
	f.BoolVar(&opts.markdown, "markdown", false, "render the statement as markdown")

	return cmd
}

// explainDialect picks the configured dialect, falling back to the dialect
// of the configured backend.
func explainDialect(cfg *config.Config) (dialect.ID, error) {
	if cfg.Dialect != "" {
		return dialect.Normalize(cfg.Dialect), nil
	}
	b, err := executor.Lookup(cfg.Backend)
	if err != nil {
		return "", err
	}
	return b.Dialect(), nil
}

func explain(cfg *config.Config, opts explainOptions) (*compiler.Statement, error) {
	id, err := explainDialect(cfg)
	if err != nil {
		return nil, err
	}
	t, registry, err := dynamicEntity(opts.table, opts.key, opts.columns)
	if err != nil {
		return nil, err
	}
	e, err := engine.New(nil, engine.WithDialect(id), engine.WithSchemas(registry))
	if err != nil {
		return nil, err
	}

	q := engine.Expr{Entity: t, Offset: opts.offset, Limit: opts.limit}
	if opts.where != "" {
		vars := make(map[string]any, len(opts.vars))
		for k, v := range opts.vars {
			vars[k] = v
		}
		q.Where, err = expr.Parse(opts.where, expr.ParseOptions{Entity: t, Vars: vars})
		if err != nil {
			return nil, err
		}
	}
	if len(opts.selected) > 0 {
		names := make([]string, len(opts.selected))
		for i, name := range opts.selected {
			names[i] = exported(strings.TrimSpace(name))
		}
		q.Columns = expr.Select(expr.ParamOf("x", t), names...)
	}
	for _, o := range opts.orderBy {
		desc := strings.HasPrefix(o, "-")
		q.OrderBy = append(q.OrderBy, compiler.Order{Column: exported(strings.TrimPrefix(o, "-")), Desc: desc})
	}

	if opts.count {
		return e.Compiler().Count(compiler.Query(q))
	}
	return e.Explain(q)
}

func paramTable(st *compiler.Statement) ([]string, [][]string) {
	rows := make([][]string, len(st.Params))
	for i, p := range st.Params {
		rows[i] = []string{p.Placeholder, ui.FormatValue(p.Value), p.TypeCode}
	}
	return []string{"placeholder", "value", "type"}, rows
}

func explainMarkdown(st *compiler.Statement) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n```sql\n%s\n```\n\n", st.Operation, st.SQL)
	fmt.Fprintf(&sb, "fingerprint `%016x`\n", st.Fingerprint)
	if len(st.Params) == 0 {
		return sb.String()
	}
	sb.WriteString("\n| placeholder | value | type |\n|---|---|---|\n")
	_, rows := paramTable(st)
	for _, r := range rows {
		fmt.Fprintf(&sb, "| `%s` | %s | %s |\n", r[0], r[1], r[2])
	}
	return sb.String()
}
