package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlq-resolver/internal/metadata"
	"nlq-resolver/internal/models"
	"nlq-resolver/internal/resolver/fixtures"
	"nlq-resolver/pkg/registry"
)

// ==========================
// Test Helpers
// ==========================

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeSnapshot(t *testing.T, md *models.SemanticMetadata) string {
	t.Helper()
	data, err := json.Marshal(md)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "schema.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func stubDB(t *testing.T) sqlmock.Sqlmock {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	prev := openDB
	openDB = func(string) (*sql.DB, error) { return db, nil }
	t.Cleanup(func() { openDB = prev })
	return mock
}

// ==========================
// Root Command Tests
// ==========================

func TestValidateOutputFormat(t *testing.T) {
	assert.NoError(t, validateOutputFormat("table"))
	assert.NoError(t, validateOutputFormat("json"))
	assert.Error(t, validateOutputFormat("yaml"))
}

func TestRoot_RejectsUnknownOutput(t *testing.T) {
	_, err := run(t, "understand", "list customers", "-o", "xml")
	assert.ErrorContains(t, err, "unsupported output format")
}

func TestRoot_MetadataFromEnv(t *testing.T) {
	t.Setenv("NLQ_METADATA", writeSnapshot(t, fixtures.CommerceMetadata()))

	out, err := run(t, "validate", "SELECT customers.name FROM customers")
	require.NoError(t, err)
	assert.Contains(t, out, "VALID")
	assert.Contains(t, out, "LIMIT 1000")
}

// ==========================
// understand / validate
// ==========================

func TestUnderstand_WithoutMetadata(t *testing.T) {
	out, err := run(t, "-o", "json", "understand", "list", "all", "customers")
	require.NoError(t, err)

	var qc models.QueryContext
	require.NoError(t, json.Unmarshal([]byte(out), &qc))
	assert.Equal(t, "list all customers", qc.OriginalQuery)
	assert.Contains(t, qc.EntitiesMentioned, "customers")
}

func TestValidate_InvalidStatement(t *testing.T) {
	path := writeSnapshot(t, fixtures.CommerceMetadata())

	out, err := run(t, "-m", path, "-o", "json", "validate", "SELECT * FROM invoices")
	assert.ErrorIs(t, err, errInvalidStatement)

	var got struct {
		Validation struct {
			Valid bool `json:"valid"`
		} `json:"validation"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.False(t, got.Validation.Valid)
}

func TestValidate_RequiresMetadata(t *testing.T) {
	t.Setenv("NLQ_METADATA", "")
	_, err := run(t, "validate", "SELECT 1")
	assert.ErrorContains(t, err, "--metadata is required")
}

// ==========================
// resolve
// ==========================

func TestResolve_RunsGeneratedSQL(t *testing.T) {
	path := writeSnapshot(t, fixtures.CommerceMetadata())
	mock := stubDB(t)
	mock.ExpectQuery(`FROM customers`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Ada").AddRow("Grace"))
	mock.ExpectClose()

	out, err := run(t, "-m", path, "-o", "json", "resolve", "--dsn", "postgres://test", "--max-rows", "20", "list all customers")
	require.NoError(t, err)

	var resp struct {
		SQL    string                 `json:"sql"`
		Result models.ExecutionResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Result.Success)
	assert.Equal(t, 2, resp.Result.RowCount)
	assert.Contains(t, resp.SQL, "LIMIT 20")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolve_TableOutput(t *testing.T) {
	path := writeSnapshot(t, fixtures.CommerceMetadata())
	mock := stubDB(t)
	mock.ExpectQuery(`FROM customers`).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Ada"))
	mock.ExpectClose()

	out, err := run(t, "-m", path, "resolve", "--dsn", "postgres://test", "list all customers")
	require.NoError(t, err)
	assert.Contains(t, out, "OUTCOME")
	assert.Contains(t, out, "Ada")
	assert.Contains(t, out, "(1 rows")
}

func TestResolve_RequiresDSN(t *testing.T) {
	t.Setenv("NLQ_DSN", "")
	path := writeSnapshot(t, fixtures.CommerceMetadata())

	_, err := run(t, "-m", path, "resolve", "list customers")
	assert.ErrorContains(t, err, "--dsn is required")
}

// ==========================
// metadata
// ==========================

func TestMetadata_Check(t *testing.T) {
	path := writeSnapshot(t, fixtures.CommerceMetadata())

	out, err := run(t, "metadata", "check", path)
	require.NoError(t, err)
	assert.Contains(t, out, "ok: 4 tables")
}

func TestMetadata_Diff(t *testing.T) {
	oldPath := writeSnapshot(t, fixtures.CommerceMetadata())

	out, err := run(t, "metadata", "diff", oldPath, oldPath)
	require.NoError(t, err)
	assert.Contains(t, out, "no changes")

	newPath := writeSnapshot(t, fixtures.CustomersOnly())
	out, err = run(t, "-o", "json", "metadata", "diff", oldPath, newPath)
	require.NoError(t, err)

	var cmp metadata.Comparison
	require.NoError(t, json.Unmarshal([]byte(out), &cmp))
	assert.False(t, cmp.Unchanged())
	assert.NotEmpty(t, cmp.Removed)
}

func TestMetadata_Publish(t *testing.T) {
	mr := miniredis.RunT(t)
	path := writeSnapshot(t, fixtures.CommerceMetadata())

	out, err := run(t, "metadata", "publish", path, "--redis-addr", mr.Addr(), "--key", "snap")
	require.NoError(t, err)
	assert.Contains(t, out, "published 4 tables to snap")
	assert.True(t, mr.Exists("snap"))
}

// ==========================
// registry
// ==========================

func TestRegistry_ListAndValidate(t *testing.T) {
	out, err := run(t, "-o", "json", "registry", "list")
	require.NoError(t, err)

	var activities []registry.Activity
	require.NoError(t, json.Unmarshal([]byte(out), &activities))
	taskTypes := make([]string, 0, len(activities))
	for _, a := range activities {
		taskTypes = append(taskTypes, a.TaskType)
	}
	assert.ElementsMatch(t, []string{"resolve-nl-query", "validate-sql", "extract-query-context"}, taskTypes)

	out, err = run(t, "registry", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Found 3 activities")
}

func TestRegistry_Update(t *testing.T) {
	reg, err := registry.Default()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "activities.json")
	require.NoError(t, saveRegistry(reg, path))

	_, err = run(t, "registry", "update", "resolution.sql.validate", "retries", "5", "--path", path)
	require.NoError(t, err)

	updated, err := registry.LoadRegistry(path)
	require.NoError(t, err)
	a, ok := updated.ByTaskType("validate-sql")
	require.True(t, ok)
	assert.Equal(t, 5, a.Retries)

	_, err = run(t, "registry", "update", "resolution.sql.validate", "status", "verified", "--path", path)
	require.NoError(t, err)

	_, err = run(t, "registry", "update", "resolution.sql.validate", "status", "done", "--path", path)
	assert.ErrorContains(t, err, "invalid status")

	_, err = run(t, "registry", "update", "resolution.sql.validate", "color", "blue", "--path", path)
	assert.ErrorContains(t, err, "unknown field")

	updated, err = registry.LoadRegistry(path)
	require.NoError(t, err)
	a, _ = updated.ByTaskType("validate-sql")
	assert.Equal(t, registry.StatusVerified, a.ImplementationStatus)
}

func TestValidateRegistry(t *testing.T) {
	tests := []struct {
		name    string
		reg     registry.ActivityRegistry
		wantErr string
	}{
		{"empty", registry.ActivityRegistry{}, "no activities"},
		{"bad id", registry.ActivityRegistry{Activities: []registry.Activity{
			{ID: "Resolve", DisplayName: "x", TaskType: "x", Category: "x"},
		}}, "domain.subdomain.action"},
		{"duplicate task type", registry.ActivityRegistry{Activities: []registry.Activity{
			{ID: "a.b.c", DisplayName: "x", TaskType: "t", Category: "x"},
			{ID: "a.b.d", DisplayName: "x", TaskType: "t", Category: "x"},
		}}, "duplicate task type"},
		{"bad timeout", registry.ActivityRegistry{Activities: []registry.Activity{
			{ID: "a.b.c", DisplayName: "x", TaskType: "t", Category: "x", Timeout: "soon"},
		}}, "invalid timeout"},
		{"unknown status", registry.ActivityRegistry{Activities: []registry.Activity{
			{ID: "a.b.c", DisplayName: "x", TaskType: "t", Category: "x", ImplementationStatus: "shipped"},
		}}, "unknown status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateRegistry(&tt.reg)
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
