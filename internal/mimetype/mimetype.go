// Package mimetype parses the flat mime-type file format described in
// SPEC_FULL.md §6 (one mime type per line, followed by its whitespace
// separated extensions) and looks up a path's mime type by extension,
// falling back to the reference tree's own extension-switch for anything
// the file doesn't list.
package mimetype

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Table maps a file extension (without the leading dot, lowercased) to its
// configured mime type.
type Table struct {
	byExt map[string]string
}

// Load parses the mime-type file at path.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mimetype: %w", err)
	}
	defer f.Close()

	t := &Table{byExt: make(map[string]string)}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		mime := fields[0]
		for _, ext := range fields[1:] {
			t.byExt[strings.ToLower(ext)] = mime
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("mimetype: %w", err)
	}
	return t, nil
}

// Lookup returns the mime type for path's extension, consulting the parsed
// table before falling back to the reference tree's extension-switch, then
// finally application/octet-stream.
func (t *Table) Lookup(path string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if t != nil {
		if mime, ok := t.byExt[ext]; ok {
			return mime
		}
	}
	return detectContentType(ext)
}

// detectContentType mirrors the reference tree's detectContentType
// extension switch, used when the mime-type file has no matching entry.
func detectContentType(ext string) string {
	switch ext {
	case "txt":
		return "text/plain"
	case "html", "htm":
		return "text/html"
	case "css":
		return "text/css"
	case "js":
		return "application/javascript"
	case "json":
		return "application/json"
	case "xml":
		return "application/xml"
	case "csv":
		return "text/csv"
	case "pdf":
		return "application/pdf"
	case "zip":
		return "application/zip"
	case "gz":
		return "application/gzip"
	case "tar":
		return "application/x-tar"
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "svg":
		return "image/svg+xml"
	case "mp4":
		return "video/mp4"
	case "mp3":
		return "audio/mpeg"
	default:
		return "application/octet-stream"
	}
}
