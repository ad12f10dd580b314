package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")

	log, err := New("prod", "", path)
	require.NoError(t, err)
	log.Info("booking created")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"booking created"`)
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New("dev", "loud", "")
	assert.Error(t, err)
}

func TestIsProduction(t *testing.T) {
	assert.True(t, IsProduction("prod"))
	assert.True(t, IsProduction("Production"))
	assert.False(t, IsProduction("dev"))
	assert.False(t, IsProduction(""))
}
