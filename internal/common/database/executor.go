// internal/common/database/executor.go
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"nlq-resolver/internal/models"
)

// SQLExecutor runs one ad-hoc statement and buffers its rows in column order.
type SQLExecutor struct {
	db      *sql.DB
	maxRows int
}

type ExecutorOption func(*SQLExecutor)

// WithRowCap stops buffering after n rows, whatever the statement's LIMIT.
// Zero or less means no cap.
func WithRowCap(n int) ExecutorOption {
	return func(e *SQLExecutor) { e.maxRows = n }
}

func NewSQLExecutor(db *sql.DB, opts ...ExecutorOption) *SQLExecutor {
	e := &SQLExecutor{db: db}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs query under timeout. A timeout of zero leaves the deadline to
// ctx. Byte slices are returned as strings so rows marshal as text. Rows past
// the cap are left unread and Truncated is set.
func (e *SQLExecutor) Execute(ctx context.Context, query string, timeout time.Duration) (*models.QueryRows, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	rows, err := e.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}

	out := &models.QueryRows{Columns: columns, Rows: [][]interface{}{}}
	for rows.Next() {
		if e.maxRows > 0 && len(out.Rows) == e.maxRows {
			out.Truncated = true
			break
		}
		values := make([]interface{}, len(columns))
		ptrs := make([]interface{}, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		out.Rows = append(out.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
