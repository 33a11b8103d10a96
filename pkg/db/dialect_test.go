package db

import (
	"testing"

	"github.com/smallbiznis/recurring/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialect(t *testing.T) {
	for _, dbType := range []string{TypePostgres, TypeMySQL, TypeSQLite} {
		dialector, err := Dialect(config.Config{DBType: dbType, DBName: "recurring"})
		require.NoError(t, err, dbType)
		assert.Equal(t, dbType, dialector.Name())
	}

	_, err := Dialect(config.Config{DBType: "oracle"})
	assert.Error(t, err)
}
