package nostrsecret

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret.nsec")
	var secret [32]byte
	for i := range secret {
		secret[i] = byte(i)
	}

	require.NoError(t, Save(path, secret, "correct horse"))

	got, err := Load(path, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, secret, got)
}

func TestLoadRejectsWrongPassword(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret.nsec")
	var secret [32]byte
	secret[0] = 0xAB

	require.NoError(t, Save(path, secret, "correct horse"))

	_, err := Load(path, "wrong password")
	assert.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.nsec"), "whatever")
	assert.Error(t, err)
}
