package executor

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// runSQL executes the script against a fresh in-memory SQLite database, one
// statement at a time. SELECT output is rendered the way the sqlite3 shell
// does: pipe-separated columns, one row per line. The database is discarded
// when the run ends, so every run starts from a clean slate.
func (e *Executor) runSQL(ctx context.Context, script string) (*Result, error) {
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}
	defer db.Close()

	var out strings.Builder
	for _, stmt := range splitStatements(script) {
		if isQuery(stmt) {
			if err := queryToBuilder(runCtx, db, stmt, &out); err != nil {
				return e.sqlError(runCtx, out.String(), err)
			}
			continue
		}
		if _, err := db.ExecContext(runCtx, stmt); err != nil {
			return e.sqlError(runCtx, out.String(), err)
		}
	}

	return &Result{Stdout: out.String()}, nil
}

func (e *Executor) sqlError(ctx context.Context, stdout string, err error) (*Result, error) {
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("%w after %s", ErrTimeout, e.timeout)
	}
	res := &Result{Stdout: stdout, Stderr: err.Error(), ExitCode: 1}
	return res, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
}

func queryToBuilder(ctx context.Context, db *sql.DB, stmt string, out *strings.Builder) error {
	rows, err := db.QueryContext(ctx, stmt)
	if err != nil {
		return err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return err
		}
		fields := make([]string, len(cols))
		for i, v := range values {
			fields[i] = formatValue(v)
		}
		out.WriteString(strings.Join(fields, "|"))
		out.WriteString("\n")
	}
	return rows.Err()
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// splitStatements breaks a script on semicolons, respecting single-quoted
// string literals. Good enough for classroom SQL; it does not handle
// semicolons inside comments.
func splitStatements(script string) []string {
	var stmts []string
	var cur strings.Builder
	inString := false

	for _, r := range script {
		switch {
		case r == '\'':
			inString = !inString
			cur.WriteRune(r)
		case r == ';' && !inString:
			if s := strings.TrimSpace(cur.String()); s != "" {
				stmts = append(stmts, s)
			}
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		stmts = append(stmts, s)
	}
	return stmts
}

func isQuery(stmt string) bool {
	head := strings.ToUpper(strings.Fields(stmt)[0])
	return head == "SELECT" || head == "WITH" || head == "PRAGMA" || head == "EXPLAIN"
}
