package sqlite

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"prosopography/internal/domain"
	"prosopography/internal/filter"
)

// Search returns the entities matching q ordered by ID, with relations loaded
func (r *Repository) Search(ctx context.Context, q *filter.Query) ([]domain.Entity, error) {
	where, args, err := r.compileWhere(q)
	if err != nil {
		return nil, err
	}

	query := `SELECT `
	if q.Distinct {
		query += `DISTINCT `
	}
	query += entityColumns + ` FROM entities e WHERE ` + where + ` ORDER BY e.id`
	if q.Limit > 0 || q.Offset > 0 {
		limit := q.Limit
		if limit <= 0 {
			limit = -1
		}
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, q.Offset)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to search %s: %w", q.Kind, err)
	}
	entities, err := scanEntities(rows, r.registry)
	if err != nil {
		return nil, err
	}
	if err := loadRelations(ctx, r.db, entities); err != nil {
		return nil, err
	}
	return entities, nil
}

// Count returns the number of entities matching q, ignoring paging
func (r *Repository) Count(ctx context.Context, q *filter.Query) (int, error) {
	where, args, err := r.compileWhere(q)
	if err != nil {
		return 0, err
	}
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entities e WHERE `+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", q.Kind, err)
	}
	return n, nil
}

func (r *Repository) compileWhere(q *filter.Query) (string, []any, error) {
	if _, ok := r.registry.Spec(q.Kind); !ok {
		return "", nil, fmt.Errorf("%w: %q", domain.ErrUnknownKind, q.Kind)
	}
	c := &compiler{args: []any{string(q.Kind)}}
	where := `e.kind = ?`
	if len(q.Where) > 0 {
		clause, err := c.expr(q.Where)
		if err != nil {
			return "", nil, err
		}
		where += ` AND ` + clause
	}
	return where, c.args, nil
}

// ============================================================================
// Predicate Compilation
// ============================================================================

// baseColumns maps attributes stored in their own column
var baseColumns = map[string]string{
	"id":         "e.id",
	"name":       "e.name",
	"start_date": "e.start_date",
	"end_date":   "e.end_date",
	"status":     "e.status",
}

// compiler turns filter expressions into SQL, collecting bind arguments
type compiler struct {
	args []any
}

func (c *compiler) expr(e filter.Expr) (string, error) {
	switch e := e.(type) {
	case filter.And:
		return c.join(e, " AND ", "1 = 1")
	case filter.Or:
		return c.join(e, " OR ", "0 = 1")
	case filter.Match:
		col, err := column(e.Attr)
		if err != nil {
			return "", err
		}
		return c.compare(col, e.Lookup, e.Value)
	case filter.AnyElement:
		if !validAttr(e.Attr) {
			return "", fmt.Errorf("invalid attribute %q", e.Attr)
		}
		cond, err := c.compare("je.value", e.Lookup, e.Value)
		if err != nil {
			return "", err
		}
		return `EXISTS (SELECT 1 FROM json_each(e.attrs, '$.` + e.Attr + `') AS je WHERE ` + cond + `)`, nil
	case filter.LabelMatch:
		cond, err := c.compare("l.label", e.Lookup, e.Value)
		if err != nil {
			return "", err
		}
		clause := `EXISTS (SELECT 1 FROM labels l WHERE l.entity_id = e.id AND ` + cond
		if len(e.LabelTypes) > 0 {
			clause += ` AND casefold(l.label_type) IN (` + placeholders(len(e.LabelTypes)) + `)`
			for _, lt := range e.LabelTypes {
				c.args = append(c.args, domain.Fold(lt))
			}
		}
		return clause + `)`, nil
	case filter.InCollection:
		c.args = append(c.args, e.CollectionID)
		return `EXISTS (SELECT 1 FROM entity_collections ec WHERE ec.entity_id = e.id AND ec.collection_id = ?)`, nil
	case nil:
		return "1 = 1", nil
	}
	return "", fmt.Errorf("unsupported filter expression %T", e)
}

func (c *compiler) join(exprs []filter.Expr, sep, empty string) (string, error) {
	if len(exprs) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(exprs))
	for _, e := range exprs {
		part, err := c.expr(e)
		if err != nil {
			return "", err
		}
		parts = append(parts, part)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

// compare renders col <lookup> value. Negated lookups match NULL columns.
func (c *compiler) compare(col string, l filter.Lookup, value any) (string, error) {
	v := bindValue(value)
	switch l {
	case filter.IContains:
		c.args = append(c.args, domain.Fold(fmt.Sprint(v)))
		return `instr(casefold(` + col + `), ?) > 0`, nil
	case filter.Contains:
		c.args = append(c.args, fmt.Sprint(v))
		return `instr(` + col + `, ?) > 0`, nil
	case filter.NotContains:
		c.args = append(c.args, fmt.Sprint(v))
		return `(` + col + ` IS NULL OR instr(` + col + `, ?) = 0)`, nil
	case filter.Exact:
		c.args = append(c.args, v)
		return col + ` = ?`, nil
	case filter.IExact:
		c.args = append(c.args, domain.Fold(fmt.Sprint(v)))
		return `casefold(` + col + `) = ?`, nil
	case filter.NotExact:
		c.args = append(c.args, v)
		return `(` + col + ` IS NULL OR ` + col + ` <> ?)`, nil
	case filter.LT, filter.GT, filter.LTE, filter.GTE:
		c.args = append(c.args, v)
		return col + ` ` + orderOps[l] + ` ?`, nil
	case filter.StartsWith:
		s := fmt.Sprint(v)
		c.args = append(c.args, s, s)
		return `substr(` + col + `, 1, length(?)) = ?`, nil
	case filter.EndsWith:
		s := fmt.Sprint(v)
		c.args = append(c.args, s, s)
		return `substr(` + col + `, -length(?)) = ?`, nil
	}
	return "", fmt.Errorf("%w: %q", filter.ErrUnsupportedLookup, l)
}

var orderOps = map[filter.Lookup]string{
	filter.LT:  "<",
	filter.GT:  ">",
	filter.LTE: "<=",
	filter.GTE: ">=",
}

// bindValue converts filter values to driver values; dates bind as
// YYYY-MM-DD text to match the stored columns
func bindValue(v any) any {
	switch v := v.(type) {
	case domain.Date:
		return v.String()
	case *domain.Date:
		return domain.DatePtrString(v)
	case int:
		return int64(v)
	case float32:
		return float64(v)
	}
	return v
}

func column(attr string) (string, error) {
	if col, ok := baseColumns[attr]; ok {
		return col, nil
	}
	if !validAttr(attr) {
		return "", fmt.Errorf("invalid attribute %q", attr)
	}
	return `json_extract(e.attrs, '$.` + attr + `')`, nil
}

// validAttr accepts JSON keys that are safe to splice into a path literal
func validAttr(attr string) bool {
	if attr == "" {
		return false
	}
	for _, r := range attr {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	_, numeric := strconv.Atoi(attr[:1])
	return numeric != nil
}
