// internal/models/execution.go
package models

import (
	"bytes"
	"encoding/json"
)

type ExecutionResult struct {
	Success         bool     `json:"success"`
	Data            []Row    `json:"data"`
	ColumnNames     []string `json:"columnNames"`
	RowCount        int      `json:"rowCount"`
	ExecutionTimeMs int64    `json:"executionTimeMs"`
	SQLExecuted     string   `json:"sqlExecuted"`
	ErrorMessage    string   `json:"errorMessage,omitempty"`
}

type FallbackAttempt struct {
	AttemptNumber   int    `json:"attemptNumber"`
	Strategy        string `json:"strategy"`
	SQLAttempted    string `json:"sqlAttempted"`
	Success         bool   `json:"success"`
	ExecutionTimeMs int64  `json:"executionTimeMs"`
	ErrorMessage    string `json:"errorMessage,omitempty"`
}

type ExecutionPlan struct {
	PrimarySQL         string   `json:"primarySql"`
	FallbackStrategies []string `json:"fallbackStrategies"`
	TimeoutSeconds     int      `json:"timeoutSeconds"`
	MaxRows            int      `json:"maxRows"`
	ValidationRules    []string `json:"validationRules,omitempty"`
}

// Row is a single result row that keeps the column order of the statement.
type Row struct {
	Columns []string
	Values  []interface{}
}

func NewRow(columns []string, values []interface{}) Row {
	return Row{Columns: columns, Values: values}
}

func (r Row) Get(column string) (interface{}, bool) {
	for i, c := range r.Columns {
		if c == column && i < len(r.Values) {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Map flattens the row; column order is lost.
func (r Row) Map() map[string]interface{} {
	out := make(map[string]interface{}, len(r.Columns))
	for i, c := range r.Columns {
		if i < len(r.Values) {
			out[c] = r.Values[i]
		}
	}
	return out
}

func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		var v interface{}
		if i < len(r.Values) {
			v = r.Values[i]
		}
		val, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// QueryRows is what a database hands back for one statement.
type QueryRows struct {
	Columns []string
	Rows    [][]interface{}
	// Truncated is set when the executor stopped reading at its row cap.
	Truncated bool
}

// ToRows pairs every value row with the column names.
func (q *QueryRows) ToRows() []Row {
	if q == nil {
		return []Row{}
	}
	out := make([]Row, 0, len(q.Rows))
	for _, values := range q.Rows {
		out = append(out, NewRow(q.Columns, values))
	}
	return out
}
