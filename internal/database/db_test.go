package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatements(t *testing.T) {
	stmts := Statements()
	require.Len(t, stmts, 4)
	for _, s := range stmts {
		assert.True(t, strings.HasPrefix(s, "CREATE TABLE IF NOT EXISTS"), s)
	}
}

func TestSchemaKeys(t *testing.T) {
	// repository error mapping relies on these key names
	for _, key := range []string{
		"uq_users_username",
		"uq_users_email",
		"uq_ambulances_driver",
		"uq_bookings_active_patient",
	} {
		assert.Contains(t, schema, key)
	}
	assert.Contains(t, schema, "IF(status IN ('pending','confirmed'), patient_id, NULL)")
}
