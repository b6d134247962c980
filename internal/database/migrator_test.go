package database

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestListMigrations_Embedded(t *testing.T) {
	names, err := ListMigrations(embedded, embeddedRoot)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_users.up.sql", "0002_users_last_seen_idx.up.sql"}, names)
}

func TestListMigrations_FiltersAndSorts(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0003_c.up.sql":   {Data: []byte("SELECT 3")},
		"m/0001_a.up.sql":   {Data: []byte("SELECT 1")},
		"m/0001_a.down.sql": {Data: []byte("SELECT 0")},
		"m/README.md":       {Data: []byte("notes")},
		"m/sub/0002.up.sql": {Data: []byte("SELECT 2")},
	}

	names, err := ListMigrations(fsys, "m")
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_a.up.sql", "0003_c.up.sql"}, names)
}
