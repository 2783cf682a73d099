package data

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/enterprise-data-agent/server/internal/agent/model"
	"github.com/enterprise-data-agent/server/pkg/metrics"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *gorm.DB) {
	t.Helper()
	mockDB, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = mockDB.Close() })

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB}), &gorm.Config{
		Logger:               logger.Default.LogMode(logger.Silent),
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)
	return mockDB, mock, gormDB
}

func TestExecuteReturnsRows(t *testing.T) {
	_, mock, db := setupMockDB(t)
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	query := "SELECT region, total, created_at, note FROM sales"
	mock.ExpectQuery(query).WillReturnRows(
		sqlmock.NewRows([]string{"region", "total", "created_at", "note"}).
			AddRow("north", 12.5, created, []byte("ok")).
			AddRow("south", int64(7), created, nil),
	)

	ex := NewExecutor(db, model.SQLConfig{MaxRows: 10}, metrics.NewCollector(metrics.Config{}))
	res := ex.Execute(context.Background(), query)

	require.True(t, res.Success, res.Error)
	assert.Equal(t, []string{"region", "total", "created_at", "note"}, res.Columns)
	assert.Equal(t, 2, res.RowCount)
	assert.Equal(t, "north", res.Rows[0]["region"])
	assert.Equal(t, 12.5, res.Rows[0]["total"])
	assert.Equal(t, "2025-03-01T12:00:00Z", res.Rows[0]["created_at"])
	assert.Equal(t, "ok", res.Rows[0]["note"])
	assert.Nil(t, res.Rows[1]["note"])
	assert.False(t, res.Truncated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteTruncatesAtMaxRows(t *testing.T) {
	_, mock, db := setupMockDB(t)
	query := "SELECT id FROM orders"
	rows := sqlmock.NewRows([]string{"id"})
	for i := 0; i < 5; i++ {
		rows.AddRow(int64(i))
	}
	mock.ExpectQuery(query).WillReturnRows(rows)

	res := NewExecutor(db, model.SQLConfig{MaxRows: 2}, nil).Execute(context.Background(), query)
	require.True(t, res.Success)
	assert.Equal(t, 2, res.RowCount)
	assert.True(t, res.Truncated)
}

func TestExecuteRejectsUnsafeQueryWithoutTouchingDB(t *testing.T) {
	_, mock, db := setupMockDB(t)

	res := NewExecutor(db, model.SQLConfig{}, nil).Execute(context.Background(), "SELECT 1; DROP TABLE users")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "forbidden keyword: DROP")
	assert.Empty(t, res.Rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteReportsDriverError(t *testing.T) {
	_, mock, db := setupMockDB(t)
	query := "SELECT * FROM missing"
	mock.ExpectQuery(query).WillReturnError(errors.New(`relation "missing" does not exist`))

	res := NewExecutor(db, model.SQLConfig{QueryTimeout: time.Second}, nil).Execute(context.Background(), query)
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "does not exist")
	assert.NotNil(t, res.Columns)
}

func TestExecuteWithoutDatabase(t *testing.T) {
	ex := NewExecutor(nil, model.SQLConfig{}, nil)
	res := ex.Execute(context.Background(), "SELECT 1")
	assert.False(t, res.Success)
	assert.Equal(t, NotConfiguredMessage, res.Error)
	assert.Error(t, ex.Ping(context.Background()))
}

func TestExecuteRateLimitHonoursContext(t *testing.T) {
	_, _, db := setupMockDB(t)
	ex := NewExecutor(db, model.SQLConfig{RatePerSec: 0.001, Burst: 1}, nil)
	ex.limiter.Allow() // drain the single token

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	res := ex.Execute(ctx, "SELECT 1")
	assert.False(t, res.Success)
	assert.Contains(t, res.Error, "rate limit")
}

func TestJSONSafe(t *testing.T) {
	type decimal struct{ v string }
	assert.Nil(t, JSONSafe(nil))
	assert.Equal(t, "abc", JSONSafe([]byte("abc")))
	assert.Equal(t, int32(3), JSONSafe(int32(3)))
	assert.Equal(t, true, JSONSafe(true))
	assert.Equal(t, "{1.50}", JSONSafe(decimal{"1.50"}))
}
