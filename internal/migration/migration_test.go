package migration

import (
	"strings"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/duesledger/internal/testutil/dbtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	files, err := Files()
	require.NoError(t, err)
	require.NotEmpty(t, files)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, name := range files {
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file %q", name)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestRunMigrationsRequiresHandle(t *testing.T) {
	assert.Error(t, RunMigrations(nil))
}

func TestEnsureSchemaRejectsEmptyDatabase(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:ensure_schema_empty?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	err = EnsureSchema(conn)
	require.ErrorIs(t, err, ErrSchemaMissing)
	assert.Contains(t, err.Error(), "maintenance_invoices")
}

func TestEnsureSchemaAcceptsProvisionedDatabase(t *testing.T) {
	assert.NoError(t, EnsureSchema(dbtest.Open(t)))
}
