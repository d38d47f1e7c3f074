package compiler

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/satishbabariya/exprsql/query/dialect"
	"github.com/satishbabariya/exprsql/query/expr"
	"github.com/satishbabariya/exprsql/query/schema"
)

func (p *pass) selectStatement(op Operation, ts *schema.TableSchema, q Query) (string, error) {
	name, err := p.bindLambda(q.Where, ts)
	if err != nil {
		return "", err
	}
	if q.Columns != nil {
		if len(q.Columns.Params) == 0 {
			return "", &ExpressionError{Kind: expr.KindLambda.String(), Detail: "selector has no parameter"}
		}
		p.aliases[q.Columns.Params[0].Name] = alias{name: name, table: ts}
	}

	var columns []string
	if op == OpCount {
		columns = []string{"COUNT(*)"}
	} else if columns, err = p.projection(name, ts, q.Columns); err != nil {
		return "", err
	}
	where, err := p.where(q.Where)
	if err != nil {
		return "", err
	}

	orderBy := make([]string, 0, len(q.OrderBy))
	for _, o := range q.OrderBy {
		col, ok := ts.Column(o.Column)
		if !ok {
			return "", &ExpressionError{Kind: expr.KindMember.String(), Detail: fmt.Sprintf("%s has no column %s", ts.Name, o.Column)}
		}
		item := name + "." + p.f.Quote(col.Physical())
		if o.Desc {
			item += " DESC"
		}
		orderBy = append(orderBy, item)
	}
	if p.extract {
		return "", nil
	}

	sb := sq.Select(columns...).From(p.f.Table(ts.Schema, ts.Name) + " " + name)
	if where != "" {
		sb = sb.Where(where)
	}
	if len(orderBy) > 0 {
		sb = sb.OrderBy(orderBy...)
	}
	if page := p.f.Page(q.Offset, q.Limit, len(orderBy) > 0); page != "" {
		sb = sb.Suffix(page)
	}
	query, _, err := sb.ToSql()
	if err != nil {
		return "", fmt.Errorf("failed to assemble select on %s: %w", ts.Name, err)
	}
	return query, nil
}

// projection renders the select list. Columns whose physical name differs
// from the logical name are aliased back to the logical name so rows map
// onto entity fields.
func (p *pass) projection(name string, ts *schema.TableSchema, selector *expr.Lambda) ([]string, error) {
	if selector == nil {
		out := make([]string, len(ts.Columns))
		for i := range ts.Columns {
			out[i] = p.selectColumn(name, &ts.Columns[i])
		}
		return out, nil
	}

	var items []expr.Node
	switch body := selector.Body.(type) {
	case *expr.NewArray:
		items = body.Elements
	default:
		items = []expr.Node{body}
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if m, ok := item.(*expr.Member); ok && !m.Captured() && !m.Static() {
			if param, ok := m.Target.(*expr.Parameter); ok {
				if a, ok := p.aliases[param.Name]; ok {
					col, found := a.table.Column(m.Name)
					if !found {
						return nil, &ExpressionError{Kind: expr.KindMember.String(), Detail: fmt.Sprintf("%s has no column %s", a.table.Name, m.Name)}
					}
					out = append(out, p.selectColumn(a.name, col))
					continue
				}
			}
		}
		s, err := p.node(item)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (p *pass) selectColumn(alias string, col *schema.ColumnSchema) string {
	ref := alias + "." + p.f.Quote(col.Physical())
	if col.Physical() != col.Name {
		ref += " AS " + p.f.Quote(col.Name)
	}
	return ref
}

func (p *pass) where(l *expr.Lambda) (string, error) {
	if l == nil || l.Body == nil {
		return "", nil
	}
	return p.node(l.Body)
}

func (p *pass) deleteStatement(ts *schema.TableSchema, where *expr.Lambda) (string, error) {
	name, err := p.bindLambda(where, ts)
	if err != nil {
		return "", err
	}
	cond, err := p.where(where)
	if err != nil || p.extract {
		return "", err
	}
	return p.f.Delete(p.f.Table(ts.Schema, ts.Name), name, cond), nil
}

func (p *pass) updateStatement(ts *schema.TableSchema, set []Assignment, where *expr.Lambda) (string, error) {
	name, err := p.bindLambda(where, ts)
	if err != nil {
		return "", err
	}
	assignments := make([]dialect.Assignment, len(set))
	for i, a := range set {
		col, ok := ts.Column(a.Column)
		if !ok {
			return "", &ExpressionError{Kind: expr.KindMember.String(), Detail: fmt.Sprintf("%s has no column %s", ts.Name, a.Column)}
		}
		val, err := p.node(a.Value)
		if err != nil {
			return "", err
		}
		assignments[i] = dialect.Assignment{Column: p.f.Quote(col.Physical()), Value: val}
	}
	cond, err := p.where(where)
	if err != nil || p.extract {
		return "", err
	}
	return p.f.Update(p.f.Table(ts.Schema, ts.Name), name, assignments, cond), nil
}
