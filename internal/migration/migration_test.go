package migration

import (
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestSQLiteStatementsRewriteTypes(t *testing.T) {
	statements, err := SQLiteStatements()
	require.NoError(t, err)
	require.NotEmpty(t, statements)

	for _, stmt := range statements {
		assert.NotContains(t, stmt, "TIMESTAMPTZ")
		assert.NotContains(t, stmt, "JSONB")
	}
	assert.True(t, strings.HasPrefix(statements[0], "CREATE TABLE IF NOT EXISTS billing_schedules"))
}

func TestApplyStatementsIsRepeatable(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, ApplyStatements(conn))
	require.NoError(t, ApplyStatements(conn))

	for _, table := range []string{"billing_schedules", "product_variations", "orders", "order_items", "subscriptions", "jobs"} {
		assert.True(t, conn.Migrator().HasTable(table), table)
	}
}

func TestRunMigrationsRequiresHandle(t *testing.T) {
	assert.Error(t, RunMigrations(nil))
}
