// Package credentials parses the flat credentials file format described in
// SPEC_FULL.md §6: one default key pair and zero or more per-bucket
// overrides, line-based like the reference tree's own config file reader
// but intentionally simpler since this format has no nesting.
package credentials

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Entry is one KEY_ID/SECRET_KEY pair, optionally scoped to a bucket.
type Entry struct {
	Bucket    string // "" for the default entry
	KeyID     string
	SecretKey string
}

// Store holds the parsed credentials file: at most one default entry, plus
// zero or more per-bucket overrides keyed by bucket name.
type Store struct {
	Default   *Entry
	PerBucket map[string]*Entry
}

// For returns the credentials that apply to bucket: its own override if one
// was given, otherwise the file's default entry.
func (s *Store) For(bucket string) (keyID, secretKey string, ok bool) {
	if e, found := s.PerBucket[bucket]; found {
		return e.KeyID, e.SecretKey, true
	}
	if s.Default != nil {
		return s.Default.KeyID, s.Default.SecretKey, true
	}
	return "", "", false
}

// Load reads and parses path, rejecting it outright if its permissions
// grant group/other access or owner-execute, per §6.
func Load(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}
	if err := checkPermissions(info.Mode()); err != nil {
		return nil, fmt.Errorf("credentials: %s: %w", path, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}
	defer f.Close()

	store := &Store{PerBucket: make(map[string]*Entry)}

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}

		entry, err := parseLine(trimmed)
		if err != nil {
			return nil, fmt.Errorf("credentials: line %d: %w", lineNo, err)
		}

		if entry.Bucket == "" {
			if store.Default != nil {
				logger.Warn("credentials: ignoring extra default entry", "line", lineNo)
				continue
			}
			store.Default = entry
			continue
		}
		store.PerBucket[entry.Bucket] = entry
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("credentials: %w", err)
	}

	return store, nil
}

// checkPermissions enforces §6's "must not include group or other bits;
// owner execute bit forbidden" rule.
func checkPermissions(mode os.FileMode) error {
	const forbidden = 0o177 // group rwx, other rwx, owner x
	if mode.Perm()&forbidden != 0 {
		return fmt.Errorf("permissions %04o too permissive (group/other access or owner-execute set)", mode.Perm())
	}
	return nil
}

// parseLine accepts "KEY_ID:SECRET_KEY" or "BUCKET:KEY_ID:SECRET_KEY". Lines
// without a colon, containing whitespace/tab, or starting with '[' are
// rejected per §6 (the leading-'[' check rejects INI-style section headers
// that a credentials file in this format has no use for).
func parseLine(line string) (*Entry, error) {
	if strings.HasPrefix(line, "[") {
		return nil, fmt.Errorf("unexpected section header: %q", line)
	}
	if strings.ContainsAny(line, " \t") {
		return nil, fmt.Errorf("unexpected whitespace: %q", line)
	}
	parts := strings.Split(line, ":")
	switch len(parts) {
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("empty field: %q", line)
		}
		return &Entry{KeyID: parts[0], SecretKey: parts[1]}, nil
	case 3:
		if parts[0] == "" || parts[1] == "" || parts[2] == "" {
			return nil, fmt.Errorf("empty field: %q", line)
		}
		return &Entry{Bucket: parts[0], KeyID: parts[1], SecretKey: parts[2]}, nil
	default:
		return nil, fmt.Errorf("expected KEY_ID:SECRET_KEY or BUCKET:KEY_ID:SECRET_KEY, got: %q", line)
	}
}
