package store

import (
	"context"
	"fmt"
	"strings"

	"auditlens/internal/domain/entity"

	"github.com/jackc/pgx/v5/pgxpool"
)

// findingColumns whitelists filterable fields and their SQL types.
var findingColumns = map[string]string{
	"id":             "text",
	"code":           "text",
	"title":          "text",
	"area":           "text",
	"description":    "text",
	"department":     "text",
	"project":        "text",
	"project_type":   "text",
	"year":           "text",
	"severity":       "text",
	"severity_score": "numeric",
	"status":         "text",
	"owner":          "text",
	"auditor":        "text",
	"tags":           "array",
	"identified_at":  "timestamp",
}

const selectFindings = `SELECT id, code, title, area, description,
	COALESCE(recommendation, ''), department, project, project_type, year,
	severity, severity_score, status, COALESCE(owner, ''), COALESCE(owner_email, ''),
	COALESCE(auditor, ''), COALESCE(tags, '{}'), identified_at
FROM findings`

// PostgresRecordStore reads findings from the findings table.
type PostgresRecordStore struct {
	pool *pgxpool.Pool
}

func NewPostgresRecordStore(pool *pgxpool.Pool) *PostgresRecordStore {
	return &PostgresRecordStore{pool: pool}
}

func (s *PostgresRecordStore) Supports(op entity.Operator) bool { return op.Valid() }

func (s *PostgresRecordStore) Query(ctx context.Context, filters []entity.QueryFilter, sort entity.Sort, limit int) ([]entity.Finding, error) {
	sql, args, err := buildFindingQuery(filters, sort, limit)
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query findings: %w", err)
	}
	defer rows.Close()

	var out []entity.Finding
	for rows.Next() {
		var f entity.Finding
		if err := rows.Scan(&f.ID, &f.Code, &f.Title, &f.Area, &f.Description,
			&f.Recommendation, &f.Department, &f.Project, &f.ProjectType, &f.Year,
			&f.Severity, &f.SeverityScore, &f.Status, &f.Owner, &f.OwnerEmail,
			&f.Auditor, &f.Tags, &f.IdentifiedAt); err != nil {
			return nil, fmt.Errorf("scan finding: %w", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate findings: %w", err)
	}
	return out, nil
}

// buildFindingQuery renders filters as a parameterized statement. Text
// comparisons are case-insensitive to match the in-memory semantics.
func buildFindingQuery(filters []entity.QueryFilter, sort entity.Sort, limit int) (string, []any, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	for _, f := range filters {
		kind, ok := findingColumns[f.Field]
		if !ok {
			return "", nil, fmt.Errorf("%w: unknown field %q", entity.ErrValidation, f.Field)
		}
		col := f.Field
		if kind == "text" {
			col = "lower(" + f.Field + ")"
		}
		value := f.Value
		if s, isStr := value.(string); isStr && kind == "text" {
			value = strings.ToLower(s)
		}

		switch f.Operator {
		case entity.OpEqual, entity.OpNotEqual, entity.OpGreater, entity.OpGreaterEqual, entity.OpLess, entity.OpLessEqual:
			if kind == "array" {
				return "", nil, fmt.Errorf("%w: operator %s not valid on %s", entity.ErrValidation, f.Operator, f.Field)
			}
			op := string(f.Operator)
			switch f.Operator {
			case entity.OpEqual:
				op = "="
			case entity.OpNotEqual:
				op = "<>"
			}
			where = append(where, fmt.Sprintf("%s %s %s", col, op, arg(value)))
		case entity.OpIn:
			values, ok := value.([]string)
			if !ok {
				return "", nil, fmt.Errorf("%w: operator in on %s needs a string list", entity.ErrValidation, f.Field)
			}
			lowered := make([]string, len(values))
			for i, v := range values {
				lowered[i] = strings.ToLower(v)
			}
			where = append(where, fmt.Sprintf("%s = ANY(%s)", col, arg(lowered)))
		case entity.OpArrayContains:
			if kind != "array" {
				return "", nil, fmt.Errorf("%w: array-contains on non-array field %s", entity.ErrValidation, f.Field)
			}
			where = append(where, fmt.Sprintf("%s = ANY(%s)", arg(value), f.Field))
		case entity.OpContains:
			s, ok := value.(string)
			if !ok || kind != "text" {
				return "", nil, fmt.Errorf("%w: contains on %s needs a string", entity.ErrValidation, f.Field)
			}
			where = append(where, fmt.Sprintf("%s LIKE %s", col, arg("%"+escapeLike(s)+"%")))
		default:
			return "", nil, fmt.Errorf("%w: unknown operator %q", entity.ErrValidation, f.Operator)
		}
	}

	var b strings.Builder
	b.WriteString(selectFindings)
	if len(where) > 0 {
		b.WriteString("\nWHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	if sort.Field != "" {
		if _, ok := findingColumns[sort.Field]; !ok {
			return "", nil, fmt.Errorf("%w: unknown sort field %q", entity.ErrValidation, sort.Field)
		}
		dir := "ASC"
		if sort.Descending {
			dir = "DESC"
		}
		fmt.Fprintf(&b, "\nORDER BY %s %s, id", sort.Field, dir)
	}
	if limit > 0 {
		fmt.Fprintf(&b, "\nLIMIT %s", arg(limit))
	}
	return b.String(), args, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
