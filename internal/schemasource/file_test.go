package schemasource

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rowgraph/internal/schemafilter"
)

const customersYAML = `
name: shop
classes:
  Customer:
    columns:
      - {name: id, type: integer, notnull: true, autoincrement: true}
      - {name: name, type: varchar(255)}
    primary_key: [id]
  OrderItem:
    columns:
      - {name: id, type: integer}
tables:
  - name: migration_version
    columns: [{name: version, type: string, length: 191}]
`

const cartsJSON = `{
  "tables": [
    {
      "name": "carts",
      "columns": [{"name": "id", "type": "int"}, {"name": "customer_id", "type": "int"}],
      "foreign_keys": [
        {"name": "fk_carts_customer", "columns": ["customer_id"], "referenced_table": "customers", "referenced_columns": ["id"]}
      ]
    }
  ]
}`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "shop.yaml", customersYAML)

	snapshot, err := NewLoader(Config{}).Load(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "shop", snapshot.Name)
	require.Len(t, snapshot.Tables, 3)
	assert.Equal(t, "migration_version", snapshot.Tables[0].Name)
	assert.Equal(t, "MigrationVersion", snapshot.Tables[0].Class)
	assert.Equal(t, "customers", snapshot.Tables[1].Name)
	assert.Equal(t, "Customer", snapshot.Tables[1].Class)
	assert.Equal(t, "order_items", snapshot.Tables[2].Name)
	assert.True(t, snapshot.Tables[1].Columns[0].AutoIncrement)
}

func TestLoadDirectoryMergesDocuments(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a_shop.yml", customersYAML)
	writeFile(t, dir, "b_carts.json", cartsJSON)
	writeFile(t, dir, "README.md", "# not a schema")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o700))

	snapshot, err := NewLoader(Config{}).Load(context.Background(), "file://"+dir)
	require.NoError(t, err)

	assert.Equal(t, "shop", snapshot.Name)
	require.Len(t, snapshot.Tables, 4)
	carts := snapshot.Tables[3]
	assert.Equal(t, "carts", carts.Name)
	assert.Equal(t, "Cart", carts.Class)
	require.Len(t, carts.ForeignKeys, 1)
	assert.Equal(t, []string{"id"}, carts.ForeignKeys[0].ReferencedColumns)
}

func TestLoadAppliesFilters(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "shop.yaml", customersYAML)

	loader := NewLoader(Config{Filter: schemafilter.Config{DenyTables: []string{"order_*"}}})
	snapshot, err := loader.Load(context.Background(), path)
	require.NoError(t, err)

	for _, table := range snapshot.Tables {
		assert.NotEqual(t, "order_items", table.Name)
	}
}

func TestLoadEmptyDirectoryIsNotFound(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.txt", "nothing")

	_, err := NewLoader(Config{}).Load(context.Background(), dir)
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
	assert.True(t, IsSourceError(err))
	assert.Contains(t, err.Error(), dir)

	var notFound *NotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, dir, notFound.Path)
}

func TestLoadMissingPathIsNotFound(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing.yaml")
	_, err := NewLoader(Config{}).Load(context.Background(), missing)
	assert.True(t, IsNotFound(err))
}

func TestLoadInvalidDocument(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "broken.yaml", "tables:\n  - name: t\n    colums: []\n")

	_, err := NewLoader(Config{}).Load(context.Background(), path)
	require.Error(t, err)
	assert.False(t, IsNotFound(err))

	var sourceErr *SourceError
	require.ErrorAs(t, err, &sourceErr)
	assert.Equal(t, path, sourceErr.Location)
	assert.Contains(t, err.Error(), "failed to parse schema document")
}

func TestLoadEmptyDocument(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "empty.yaml", "")

	snapshot, err := NewLoader(Config{}).Load(context.Background(), path)
	require.NoError(t, err)
	assert.Empty(t, snapshot.Tables)
	assert.Equal(t, path, snapshot.Name)
}

func TestLoadPair(t *testing.T) {
	dir := t.TempDir()
	from := writeFile(t, dir, "from.yaml", customersYAML)
	to := writeFile(t, dir, "to.json", cartsJSON)

	fromSnapshot, toSnapshot, err := NewLoader(Config{}).LoadPair(context.Background(), from, to)
	require.NoError(t, err)
	assert.Len(t, fromSnapshot.Tables, 3)
	assert.Len(t, toSnapshot.Tables, 1)

	_, _, err = NewLoader(Config{}).LoadPair(context.Background(), from, filepath.Join(dir, "nope"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSourceNotFound))
}

func TestOpenUnsupportedScheme(t *testing.T) {
	_, err := NewLoader(Config{}).Load(context.Background(), "ftp://example.com/schema.yaml")
	require.Error(t, err)
	assert.True(t, IsSourceError(err))
	assert.Contains(t, err.Error(), `unsupported schema location scheme "ftp"`)
}
