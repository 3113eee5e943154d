package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashmay29/NL2SQL/internal/testutil"
)

func writeSchemaFile(t *testing.T) string {
	t.Helper()

	data, err := json.Marshal(testutil.ECommerceSchema())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "schema.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	return path
}

func TestLoadSchemaFile(t *testing.T) {
	path := writeSchemaFile(t)

	schema, err := loadSchemaFile(path)
	require.NoError(t, err)

	assert.Equal(t, "ecommerce", schema.Database)
	assert.Len(t, schema.Version, 16)
}

func TestLoadSchemaFileMissing(t *testing.T) {
	_, err := loadSchemaFile(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestLoadSchemaFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"database": "x", "tables": {}}`), 0o600))

	_, err := loadSchemaFile(path)
	require.Error(t, err)
}

func TestRunSchema(t *testing.T) {
	path := writeSchemaFile(t)

	var buf bytes.Buffer

	schemaCmd.SetOut(&buf)

	require.NoError(t, runSchema(schemaCmd, []string{path}))

	out := buf.String()
	assert.Contains(t, out, "Database:    ecommerce")
	assert.Contains(t, out, "Tables:      5")
	assert.Contains(t, out, "customer_id:number")
}
