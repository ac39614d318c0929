// Package sqlquery provides the built-in "query_database" MCP tool, which runs
// read-only SQL against a PostgreSQL database and renders the rows as an
// aligned text table.
//
// Statements that could modify the database are rejected by [CheckReadOnly]
// before any connection is used. Database errors are reported as readable text
// in the tool result rather than as protocol errors.
package sqlquery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Paul60209/toolbench/internal/tools"
	"github.com/Paul60209/toolbench/pkg/provider/llm"
)

// readOnlyPrefixes lists the statement keywords that are allowed through to
// the database. Everything else is assumed to be a write and rejected.
var readOnlyPrefixes = []string{"select", "with", "show", "explain"}

// CheckReadOnly returns an error when query does not start with a read-only
// statement keyword (SELECT, WITH, SHOW, EXPLAIN). Leading whitespace and
// parentheses are ignored.
func CheckReadOnly(query string) error {
	q := strings.TrimLeft(strings.TrimSpace(query), "( \t\r\n")
	if q == "" {
		return fmt.Errorf("sqlquery: query must not be empty")
	}
	first := strings.ToLower(strings.FieldsFunc(q, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\r' || r == '\n' || r == '('
	})[0])
	for _, p := range readOnlyPrefixes {
		if first == p {
			return nil
		}
	}
	return fmt.Errorf("sqlquery: only read queries are allowed (SELECT, WITH, SHOW, EXPLAIN); got %q", first)
}

// Result holds the column names and stringified rows of a query.
type Result struct {
	Columns []string
	Rows    [][]string
}

// Format renders the result as an aligned text table followed by a row-count
// summary. An empty result yields a short message instead of a table.
func (r Result) Format() string {
	if len(r.Rows) == 0 {
		return "The query returned no rows."
	}

	widths := make([]int, len(r.Columns))
	for i, col := range r.Columns {
		widths[i] = len(col)
	}
	for _, row := range r.Rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	var b strings.Builder
	writeRow := func(cells []string) {
		for i, cell := range cells {
			if i > 0 {
				b.WriteString(" | ")
			}
			b.WriteString(cell)
			if pad := widths[i] - len(cell); i < len(cells)-1 && pad > 0 {
				b.WriteString(strings.Repeat(" ", pad))
			}
		}
		b.WriteByte('\n')
	}

	writeRow(r.Columns)
	total := len(widths) - 1
	for _, w := range widths {
		total += w + 2
	}
	b.WriteString(strings.Repeat("-", total))
	b.WriteByte('\n')
	for _, row := range r.Rows {
		writeRow(row)
	}

	if len(r.Rows) == 1 {
		b.WriteString("\n1 row")
	} else {
		fmt.Fprintf(&b, "\n%d rows", len(r.Rows))
	}
	return b.String()
}

// querier is the subset of [pgxpool.Pool] the executor needs.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Executor runs read-only queries against a PostgreSQL database.
type Executor struct {
	pool  querier
	close func()
}

// New connects to the PostgreSQL database at dsn and returns an Executor
// backed by a connection pool.
func New(ctx context.Context, dsn string) (*Executor, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlquery: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sqlquery: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("sqlquery: ping: %w", err)
	}

	return &Executor{pool: pool, close: pool.Close}, nil
}

// Close releases all connections held by the underlying pool.
func (e *Executor) Close() {
	if e.close != nil {
		e.close()
	}
}

// Execute runs query and collects all rows as strings. The read-only check
// must already have passed; Execute does not repeat it.
func (e *Executor) Execute(ctx context.Context, query string) (Result, error) {
	rows, err := e.pool.Query(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("sqlquery: query failed: %w", err)
	}
	defer rows.Close()

	var res Result
	for _, fd := range rows.FieldDescriptions() {
		res.Columns = append(res.Columns, fd.Name)
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return Result{}, fmt.Errorf("sqlquery: read row: %w", err)
		}
		row := make([]string, len(values))
		for i, v := range values {
			if v == nil {
				row[i] = "NULL"
			} else {
				row[i] = fmt.Sprint(v)
			}
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return Result{}, fmt.Errorf("sqlquery: iterate rows: %w", err)
	}
	return res, nil
}

// queryArgs is the JSON-decoded input for the "query_database" tool.
type queryArgs struct {
	// Query is the SQL statement to run. Only read statements are accepted.
	Query string `json:"query"`
}

// queryHandler implements the "query_database" tool. Rejections and database
// errors are folded into the result text so the conversation can continue.
func (e *Executor) queryHandler(ctx context.Context, args string) (string, error) {
	var a queryArgs
	if err := json.Unmarshal([]byte(args), &a); err != nil {
		return "", fmt.Errorf("sqlquery: failed to parse arguments: %w", err)
	}
	if strings.TrimSpace(a.Query) == "" {
		return "", fmt.Errorf("sqlquery: query must not be empty")
	}

	if err := CheckReadOnly(a.Query); err != nil {
		return fmt.Sprintf("Query rejected: %v", err), nil
	}

	res, err := e.Execute(ctx, a.Query)
	if err != nil {
		return fmt.Sprintf("Query failed: %v", err), nil
	}
	return res.Format(), nil
}

// Tools returns the built-in SQL tools ready for registration.
//
// The returned tools are:
//   - "query_database": run a read-only SQL query and return an aligned
//     text table of the results.
func Tools(e *Executor) []tools.Tool {
	return []tools.Tool{
		{
			Definition: llm.ToolDefinition{
				Name:        "query_database",
				Description: "Run a read-only SQL query against the sales database and return the rows as a text table. The 'sales' table has columns: ID (varchar), Date (date), Region (varchar), City (varchar), Category (varchar), Product (varchar), Quantity (int), Unit_Price (decimal), Total_Price (decimal). Only SELECT, WITH, SHOW and EXPLAIN statements are accepted.",
				Parameters: map[string]any{
					"type": "object",
					"properties": map[string]any{
						"query": map[string]any{
							"type":        "string",
							"description": "SQL statement to run, e.g. SELECT Region, SUM(Total_Price) FROM sales GROUP BY Region",
						},
					},
					"required": []string{"query"},
				},
			},
			Handler: e.queryHandler,
		},
	}
}
