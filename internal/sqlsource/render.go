package sqlsource

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// dumpRows appends one INSERT statement per matching row of table to buf.
func (s *Source) dumpRows(ctx context.Context, q queryer, buf *bytes.Buffer, table, cond string, args []any) error {
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s", s.d.quote(table), cond)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("sqlsource: dump %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return fmt.Errorf("sqlsource: dump %s: %w", table, err)
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = s.d.quote(c)
	}
	prefix := fmt.Sprintf("INSERT INTO %s (%s) VALUES (", s.d.quote(table), strings.Join(quoted, ", "))

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("sqlsource: dump %s: %w", table, err)
		}
		buf.WriteString(prefix)
		for i, v := range vals {
			if i > 0 {
				buf.WriteString(", ")
			}
			buf.WriteString(literal(v))
		}
		buf.WriteString(");\n")
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlsource: dump %s: %w", table, err)
	}
	return nil
}

// literal renders a scanned value as a SQL literal.
func literal(v any) string {
	switch x := v.(type) {
	case nil:
		return "NULL"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case []byte:
		return quoteString(string(x))
	case string:
		return quoteString(x)
	case time.Time:
		return quoteString(x.UTC().Format(timeLayout))
	}
	return quoteString(fmt.Sprint(v))
}

func quoteString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
