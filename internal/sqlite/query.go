package sqlite

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/mesh-intelligence/graphctx/pkg/types"
)

// sqlOps maps comparison operators to SQL.
var sqlOps = map[types.Operator]string{
	types.OpEq:  "=",
	types.OpNeq: "!=",
	types.OpGt:  ">",
	types.OpGte: ">=",
	types.OpLt:  "<",
	types.OpLte: "<=",
}

// compiledQuery is a BackendQuery split into SQL and the predicates that
// must be evaluated in Go after the rows are decoded.
type compiledQuery struct {
	sql      string
	args     []any
	residual []types.Predicate
}

// compileQuery pushes string, numeric, boolean and id predicates into SQL.
// Datetime, list and object predicates are left as residual; when any are
// present, offset and limit are applied after filtering instead of in SQL.
func compileQuery(q types.BackendQuery) (compiledQuery, error) {
	var (
		where = []string{"entity_type = ?"}
		args  = []any{q.EntityType}
		cq    compiledQuery
	)
	for _, p := range q.Predicates {
		clause, arg, ok, err := predicateSQL(p)
		if err != nil {
			return compiledQuery{}, err
		}
		if !ok {
			cq.residual = append(cq.residual, p)
			continue
		}
		where = append(where, clause)
		args = append(args, arg)
	}

	var b strings.Builder
	b.WriteString("SELECT " + entityColumns + " FROM entities WHERE ")
	b.WriteString(strings.Join(where, " AND "))
	if q.OrderByID {
		b.WriteString(" ORDER BY entity_id")
	} else {
		b.WriteString(" ORDER BY rowid")
	}
	if len(cq.residual) == 0 {
		b.WriteString(" LIMIT ? OFFSET ?")
		args = append(args, q.Limit, q.Offset)
	}
	cq.sql = b.String()
	cq.args = args
	return cq, nil
}

// predicateSQL returns the WHERE clause for p, or ok=false when p cannot be
// evaluated in SQL. A missing property is NULL in SQL and satisfies only
// neq, matching Predicate.Match.
func predicateSQL(p types.Predicate) (clause string, arg any, ok bool, err error) {
	if p.IsID {
		op, found := sqlOps[p.Op]
		s, isStr := p.Value.Str()
		if !found || !isStr {
			return "", nil, false, nil
		}
		return "entity_id " + op + " ?", s, true, nil
	}

	switch p.Type {
	case types.PropertyString:
		s, isStr := p.Value.Str()
		if !isStr {
			return "", nil, false, nil
		}
		arg = s
	case types.PropertyInteger, types.PropertyFloat:
		if i, isInt := p.Value.IntVal(); isInt {
			arg = i
		} else if f, isNum := p.Value.Number(); isNum {
			arg = f
		} else {
			return "", nil, false, nil
		}
	case types.PropertyBoolean:
		bv, isBool := p.Value.BoolVal()
		if !isBool {
			return "", nil, false, nil
		}
		arg = 0
		if bv {
			arg = 1
		}
	default:
		return "", nil, false, nil
	}

	expr, err := propertyExpr(p.Field)
	if err != nil {
		return "", nil, false, err
	}
	if p.Op == types.OpContains {
		if p.Type != types.PropertyString {
			return "", nil, false, nil
		}
		return fmt.Sprintf("instr(%s, ?) > 0", expr), arg, true, nil
	}
	op, found := sqlOps[p.Op]
	if !found {
		return "", nil, false, nil
	}
	if p.Op == types.OpNeq {
		return fmt.Sprintf("(%s IS NULL OR %s != ?)", expr, expr), arg, true, nil
	}
	return fmt.Sprintf("%s %s ?", expr, op), arg, true, nil
}

func (t *tx) ExecuteQuery(ctx context.Context, q types.BackendQuery) ([]types.EntityRow, error) {
	cq, err := compileQuery(q)
	if err != nil {
		return nil, types.Storagef(err, "compile query")
	}
	rows, err := t.tx.QueryContext(ctx, cq.sql, cq.args...)
	if err != nil {
		return nil, types.Storagef(err, "query entities")
	}
	defer rows.Close()

	var out []types.EntityRow
	for rows.Next() {
		row, err := scanEntity(rows)
		if err != nil {
			return nil, types.Storagef(err, "scan entity")
		}
		if len(cq.residual) > 0 {
			match, err := matchAll(*row, cq.residual)
			if err != nil {
				return nil, err
			}
			if !match {
				continue
			}
		}
		out = append(out, *row)
	}
	if err := rows.Err(); err != nil {
		return nil, types.Storagef(err, "query entities")
	}

	if len(cq.residual) == 0 {
		return out, nil
	}
	if q.OrderByID {
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	}
	return page(out, q.Offset, q.Limit), nil
}

func matchAll(row types.EntityRow, preds []types.Predicate) (bool, error) {
	props, err := types.PropertiesFromAny(row.Properties)
	if err != nil {
		return false, types.Storagef(err, "decode entity %s", row.ID)
	}
	for _, p := range preds {
		if !p.Match(row.ID, props) {
			return false, nil
		}
	}
	return true, nil
}

func page(rows []types.EntityRow, offset, limit int) []types.EntityRow {
	if offset >= len(rows) {
		return nil
	}
	rows = rows[offset:]
	if limit != types.NoLimit && limit < len(rows) {
		rows = rows[:limit]
	}
	return rows
}
