package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperationFromSQL(t *testing.T) {
	assert.Equal(t, "SELECT", operationFromSQL("select * from users"))
	assert.Equal(t, "INSERT", operationFromSQL("WITH x AS (select 1) INSERT INTO t values (1)"))
	assert.Equal(t, "UNKNOWN", operationFromSQL(""))
}

func TestTableFromSQL(t *testing.T) {
	assert.Equal(t, "session_notes", tableFromSQL(`SELECT * FROM "session_notes" WHERE id = $1`))
	assert.Equal(t, "mood_entries", tableFromSQL("INSERT INTO `mood_entries` (id) VALUES (?)"))
	assert.Equal(t, "users", tableFromSQL("UPDATE users SET status = ?"))
	assert.Equal(t, "", tableFromSQL("BEGIN"))
}

func TestParamsFilterDropsValues(t *testing.T) {
	l := NewGormLogger(DefaultGormLoggerConfig())
	sql, params := l.ParamsFilter(context.Background(), "SELECT 1 WHERE content = ?", "secret note")
	assert.Equal(t, "SELECT 1 WHERE content = ?", sql)
	assert.Nil(t, params)
}
