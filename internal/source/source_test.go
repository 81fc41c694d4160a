package source

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"
)

func seedSourceDB(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "source.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE work (
		id INTEGER PRIMARY KEY,
		uname_o TEXT, uname_o_wrkr TEXT, uname_u TEXT, uname_u_wrkr TEXT,
		tdiff INTEGER, time_add REAL)`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE block (
		time INTEGER PRIMARY KEY, block_hash TEXT, earning INTEGER, pool_fee INTEGER)`)
	require.NoError(t, err)

	_, err = db.Exec(`INSERT INTO work VALUES
		(1, 'o1', 'o1w', 'u1', 'u1w', 1000, 10.0),
		(2, 'o2', 'o2w', 'u2', 'u2w', 2000, 20.0)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO block VALUES
		(100, 'hash-a', 7, 1),
		(200, 'hash-b', 9, 1)`)
	require.NoError(t, err)
	return path
}

func TestFetchWorkSinceOrdersByIDAndFiltersCursor(t *testing.T) {
	path := seedSourceDB(t)
	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	rows, err := FetchWorkSince(context.Background(), db, 1, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(2), rows[0].ID)
	assert.Equal(t, "u2", rows[0].UNameU)
}

func TestCountAndFetchBlocksSince(t *testing.T) {
	path := seedSourceDB(t)
	db, err := Open(path)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	n, err := CountBlocksSince(ctx, db, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows, err := FetchBlocksSince(ctx, db, 100)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, int64(200), rows[0].Time)
	assert.Equal(t, "hash-b", rows[0].BlockHash)
}

func TestOpenRejectsMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "does-not-exist.db"))
	assert.Error(t, err)
}
