package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenFreshDatabaseMigratesToLatestVersion(t *testing.T) {
	st, err := Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	assert.NoError(t, st.CheckVersion(context.Background()))

	v, err := st.currentVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, LatestDBVersion, v)
}

func TestCheckVersionRejectsStaleSchema(t *testing.T) {
	st, err := Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	_, err = st.db.Exec(`DELETE FROM VERSION`)
	require.NoError(t, err)
	_, err = st.db.Exec(`INSERT INTO VERSION (Version) VALUES (?)`, LatestDBVersion-1)
	require.NoError(t, err)

	assert.Error(t, st.CheckVersion(context.Background()))
}

func TestGetStatusSeededOnFreshDatabase(t *testing.T) {
	st, err := Open(":memory:")
	require.NoError(t, err)
	defer st.Close()

	status, err := st.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(-1), status.LastWorkItemRetrvd)
	assert.Equal(t, uint64(0), status.LastBlockProcd)
}
