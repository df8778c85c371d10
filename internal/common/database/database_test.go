package database

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nlq-resolver/internal/common/config"
	"nlq-resolver/internal/resolver/fixtures"
)

// ==========================
// SQLExecutor
// ==========================

func TestSQLExecutor_BuffersRowsInColumnOrder(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	query := "SELECT customers.name, customers.customer_id FROM customers LIMIT 2"
	mock.ExpectQuery(query).WillReturnRows(
		sqlmock.NewRows([]string{"name", "customer_id"}).
			AddRow([]byte("Ada"), int64(1)).
			AddRow("Grace", int64(2)),
	)

	rows, err := NewSQLExecutor(db).Execute(context.Background(), query, time.Second)
	require.NoError(t, err)

	assert.Equal(t, []string{"name", "customer_id"}, rows.Columns)
	require.Len(t, rows.Rows, 2)
	assert.Equal(t, []interface{}{"Ada", int64(1)}, rows.Rows[0])
	assert.Equal(t, "Grace", rows.Rows[1][0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLExecutor_EmptyResultIsNotNil(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT * FROM orders LIMIT 10").WillReturnRows(sqlmock.NewRows([]string{"order_id"}))

	rows, err := NewSQLExecutor(db).Execute(context.Background(), "SELECT * FROM orders LIMIT 10", time.Second)
	require.NoError(t, err)
	assert.NotNil(t, rows.Rows)
	assert.Empty(t, rows.Rows)
}

func TestSQLExecutor_StopsAtRowCap(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	query := "SELECT * FROM customers"
	mock.ExpectQuery(query).WillReturnRows(
		sqlmock.NewRows([]string{"customer_id"}).AddRow(1).AddRow(2).AddRow(3),
	)

	rows, err := NewSQLExecutor(db, WithRowCap(2)).Execute(context.Background(), query, time.Second)
	require.NoError(t, err)
	assert.Len(t, rows.Rows, 2)
	assert.True(t, rows.Truncated)
	assert.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectQuery(query).WillReturnRows(sqlmock.NewRows([]string{"customer_id"}).AddRow(1).AddRow(2))
	rows, err = NewSQLExecutor(db, WithRowCap(2)).Execute(context.Background(), query, time.Second)
	require.NoError(t, err)
	assert.Len(t, rows.Rows, 2)
	assert.False(t, rows.Truncated, "exactly the cap is not a truncation")
}

func TestSQLExecutor_DriverError(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT nope FROM customers").WillReturnError(errors.New(`pq: column "nope" does not exist`))

	_, err = NewSQLExecutor(db).Execute(context.Background(), "SELECT nope FROM customers", time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `column "nope" does not exist`)
}

func TestSQLExecutor_Timeout(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT * FROM orders").
		WillDelayFor(time.Second).
		WillReturnRows(sqlmock.NewRows([]string{"order_id"}).AddRow(1))

	start := time.Now()
	_, err = NewSQLExecutor(db).Execute(context.Background(), "SELECT * FROM orders", 20*time.Millisecond)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 900*time.Millisecond)
}

// ==========================
// Clients
// ==========================

func TestRedisClient_Ping(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedis(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	assert.NoError(t, client.Ping(context.Background()))

	mr.Close()
	assert.Error(t, client.Ping(context.Background()))
}

func TestElasticsearchClient_PingUsesURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client, err := NewElasticsearch(config.ElasticsearchConfig{URL: server.URL})
	require.NoError(t, err)
	assert.NoError(t, client.Ping(context.Background()))
}

func TestPostgresClient_OpenDoesNotDial(t *testing.T) {
	client, err := NewPostgres(config.PostgresConfig{
		Host: "127.0.0.1", Port: 1, User: "u", Password: "p", Database: "d", SSLMode: "disable",
		MaxConnections: 2, MaxIdle: 1,
	})
	require.NoError(t, err)
	defer client.Close()
	assert.NotNil(t, client.Executor(10))
}

func TestNewClients_RequireAddress(t *testing.T) {
	_, err := NewRedis(config.RedisConfig{})
	assert.Error(t, err)

	_, err = NewElasticsearch(config.ElasticsearchConfig{})
	assert.Error(t, err)

	_, err = NewPostgres(config.PostgresConfig{Host: "127.0.0.1"})
	assert.Error(t, err, "database name is required")
}

func TestRedisClient_SnapshotStore(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedis(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	defer client.Close()

	store := client.SnapshotStore("nlq:test")
	require.NoError(t, store.Publish(context.Background(), fixtures.CommerceMetadata()))
	assert.True(t, mr.Exists("nlq:test"))

	loaded, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, loaded.Tables, len(fixtures.CommerceMetadata().Tables))
}

func TestElasticsearchClient_IndexExists(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		switch r.URL.Path {
		case "/schema-embeddings":
			w.WriteHeader(http.StatusOK)
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client, err := NewElasticsearch(config.ElasticsearchConfig{URL: server.URL})
	require.NoError(t, err)

	ok, err := client.IndexExists(context.Background(), "schema-embeddings")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = client.IndexExists(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = client.IndexExists(context.Background(), "broken")
	assert.Error(t, err)
}

func TestPostgresClient_CheckReadOnly(t *testing.T) {
	tests := []struct {
		name     string
		readOnly bool
		setting  string
		wantErr  error
	}{
		{"read-only session", true, "on", nil},
		{"server ignored setting", true, "off", ErrWritableSession},
		{"not requested", false, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
			require.NoError(t, err)
			defer db.Close()

			if tt.readOnly {
				mock.ExpectQuery("SHOW transaction_read_only").
					WillReturnRows(sqlmock.NewRows([]string{"transaction_read_only"}).AddRow(tt.setting))
			}

			client := &PostgresClient{DB: db, readOnly: tt.readOnly}
			err = client.CheckReadOnly(context.Background())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
