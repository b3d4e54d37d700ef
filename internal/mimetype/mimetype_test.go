package mimetype

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeMimeFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "mime.types")
	require.NoError(t, os.WriteFile(p, []byte(contents), 0o644))
	return p
}

func TestLookupFromFile(t *testing.T) {
	p := writeMimeFile(t, "# comment\napplication/objectfs-marker dirmarker\ntext/markdown md markdown\n")
	table, err := Load(p)
	require.NoError(t, err)

	require.Equal(t, "text/markdown", table.Lookup("/a/readme.md"))
	require.Equal(t, "text/markdown", table.Lookup("notes.MARKDOWN"))
	require.Equal(t, "application/objectfs-marker", table.Lookup("dir.dirmarker"))
}

func TestLookupFallsBackToExtensionSwitch(t *testing.T) {
	p := writeMimeFile(t, "text/markdown md\n")
	table, err := Load(p)
	require.NoError(t, err)

	require.Equal(t, "application/json", table.Lookup("data.json"))
	require.Equal(t, "application/octet-stream", table.Lookup("noext"))
}

func TestLookupWithNilTable(t *testing.T) {
	var table *Table
	require.Equal(t, "text/plain", table.Lookup("a.txt"))
}
