package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"prosopography/internal/domain"
)

// querier is satisfied by both *sql.DB and *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ============================================================================
// SQL Functions
// ============================================================================

var (
	registerOnce sync.Once
	registerErr  error
)

// registerFunctions installs casefold(x), which returns domain.Fold of text
// values and passes other values through. Registration is process-wide.
func registerFunctions() error {
	registerOnce.Do(func() {
		registerErr = msqlite.RegisterDeterministicScalarFunction("casefold", 1, casefold)
	})
	return registerErr
}

func casefold(_ *msqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return domain.Fold(v), nil
	case []byte:
		return domain.Fold(string(v)), nil
	default:
		return v, nil
	}
}

// ============================================================================
// Error Helpers
// ============================================================================

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}

// ============================================================================
// Null Type Conversion Helpers
// ============================================================================

// nullToString safely converts sql.NullString to string
func nullToString(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// stringToNull safely converts string to sql.NullString
func stringToNull(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// dateToNull stores dates as YYYY-MM-DD text so they order lexically
func dateToNull(d *domain.Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullToDate(ns sql.NullString) (*domain.Date, error) {
	if !ns.Valid || ns.String == "" {
		return nil, nil
	}
	d, err := domain.ParseDate(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// ============================================================================
// Query Helpers
// ============================================================================

// placeholders returns "?, ?, ?" for n arguments
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// uniqueIDs drops duplicates and non-positive ids, keeping first occurrence order
func uniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// diffIDs returns the ids of want missing from current and the ids of
// current missing from want
func diffIDs(current, want []int64) (added, removed []int64) {
	cur := domain.NewGroupSet(current...)
	next := domain.NewGroupSet(want...)
	for _, id := range uniqueIDs(want) {
		if !cur.Has(id) {
			added = append(added, id)
		}
	}
	for _, id := range current {
		if !next.Has(id) {
			removed = append(removed, id)
		}
	}
	return added, removed
}

// scanIDs reads a single int64 column from rows
func scanIDs(rows *sql.Rows) ([]int64, error) {
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ============================================================================
// Entity Row Scanner
// ============================================================================
//
// Indexed columns are the source of truth; attrs carries the kind-specific
// fields and the free-text base fields as JSON. Column order must match
// between entityColumns and scanArgs.

const entityColumns = `e.id, e.kind, e.name, e.start_date, e.end_date, e.status, e.attrs, e.created_at, e.updated_at`

// columnKeys are JSON keys of TempEntity stored outside attrs
var columnKeys = []string{
	"id", "name", "start_date", "end_date", "status",
	"created_at", "updated_at", "uris", "labels", "collections",
}

// entityRow holds all columns from an entity query for scanning
type entityRow struct {
	ID        int64
	Kind      string
	Name      string
	StartDate sql.NullString
	EndDate   sql.NullString
	Status    sql.NullString
	Attrs     sql.NullString
	CreatedAt int64
	UpdatedAt int64
}

// scanArgs returns pointers for sql.Row.Scan in entityColumns order
func (r *entityRow) scanArgs() []any {
	return []any{
		&r.ID, &r.Kind, &r.Name, &r.StartDate, &r.EndDate,
		&r.Status, &r.Attrs, &r.CreatedAt, &r.UpdatedAt,
	}
}

// toDomain builds the entity for the row's kind. Relations are not loaded.
func (r *entityRow) toDomain(registry *domain.Registry) (domain.Entity, error) {
	e, err := registry.New(domain.Kind(r.Kind))
	if err != nil {
		return nil, err
	}
	if r.Attrs.Valid && r.Attrs.String != "" {
		if err := json.Unmarshal([]byte(r.Attrs.String), e); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attrs of entity %d: %w", r.ID, err)
		}
	}

	base := e.Base()
	base.ID = r.ID
	base.Name = r.Name
	base.Status = nullToString(r.Status)
	if base.StartDate, err = nullToDate(r.StartDate); err != nil {
		return nil, fmt.Errorf("invalid start date of entity %d: %w", r.ID, err)
	}
	if base.EndDate, err = nullToDate(r.EndDate); err != nil {
		return nil, fmt.Errorf("invalid end date of entity %d: %w", r.ID, err)
	}
	base.CreatedAt = fromMillis(r.CreatedAt)
	base.UpdatedAt = fromMillis(r.UpdatedAt)
	return e, nil
}

// marshalAttrs encodes the fields of e that have no column of their own.
// Keys come out sorted, so equal entities encode identically.
func marshalAttrs(e domain.Entity) (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", err
	}
	for _, key := range columnKeys {
		delete(fields, key)
	}
	out, err := json.Marshal(fields)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// scanEntities reads entity rows in order
func scanEntities(rows *sql.Rows, registry *domain.Registry) ([]domain.Entity, error) {
	defer rows.Close()
	var entities []domain.Entity
	for rows.Next() {
		var row entityRow
		if err := rows.Scan(row.scanArgs()...); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		e, err := row.toDomain(registry)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating entities: %w", err)
	}
	return entities, nil
}
