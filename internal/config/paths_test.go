package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigPath_EndsInConfigFileName(t *testing.T) {
	path := DefaultConfigPath()
	if path == "" {
		t.Skip("no home directory available in this environment")
	}

	assert.Contains(t, path, configFileName)
	assert.Contains(t, path, appName)
}

func TestDefaultDatabasePath_EndsInUploadsDB(t *testing.T) {
	path := DefaultDatabasePath()
	if path == "" {
		t.Skip("no home directory available in this environment")
	}

	assert.Contains(t, path, "uploads.db")
}
