package credentials

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeCredFile(t *testing.T, contents string, mode os.FileMode) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "credentials")
	require.NoError(t, os.WriteFile(p, []byte(contents), mode))
	require.NoError(t, os.Chmod(p, mode))
	return p
}

func TestLoadDefaultAndPerBucket(t *testing.T) {
	p := writeCredFile(t, "# comment\n\nAKIDEFAULT:SECRETDEFAULT\nmybucket:AKIBUCKET:SECRETBUCKET\n", 0o600)

	store, err := Load(p, nil)
	require.NoError(t, err)

	keyID, secret, ok := store.For("other-bucket")
	require.True(t, ok)
	require.Equal(t, "AKIDEFAULT", keyID)
	require.Equal(t, "SECRETDEFAULT", secret)

	keyID, secret, ok = store.For("mybucket")
	require.True(t, ok)
	require.Equal(t, "AKIBUCKET", keyID)
	require.Equal(t, "SECRETBUCKET", secret)
}

func TestLoadIgnoresExtraDefault(t *testing.T) {
	p := writeCredFile(t, "AKIONE:SECRETONE\nAKITWO:SECRETTWO\n", 0o600)

	store, err := Load(p, nil)
	require.NoError(t, err)

	keyID, _, ok := store.For("anything")
	require.True(t, ok)
	require.Equal(t, "AKIONE", keyID)
}

func TestLoadRejectsMalformedLine(t *testing.T) {
	p := writeCredFile(t, "not-a-valid-line\n", 0o600)
	_, err := Load(p, nil)
	require.Error(t, err)
}

func TestLoadRejectsWhitespaceLine(t *testing.T) {
	p := writeCredFile(t, "AKI ONE:SECRET\n", 0o600)
	_, err := Load(p, nil)
	require.Error(t, err)
}

func TestLoadRejectsGroupReadablePermissions(t *testing.T) {
	p := writeCredFile(t, "AKIONE:SECRETONE\n", 0o640)
	_, err := Load(p, nil)
	require.Error(t, err)
}

func TestLoadRejectsOwnerExecutePermissions(t *testing.T) {
	p := writeCredFile(t, "AKIONE:SECRETONE\n", 0o700)
	_, err := Load(p, nil)
	require.Error(t, err)
}

func TestForReturnsFalseWithNoCredentials(t *testing.T) {
	s := &Store{PerBucket: make(map[string]*Entry)}
	_, _, ok := s.For("bucket")
	require.False(t, ok)
}
