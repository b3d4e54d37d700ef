package drive

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/objectfs/objectfs/internal/storeclient"
	"github.com/objectfs/objectfs/internal/transfer"
)

// fakeStore is an in-memory Store double, grounded on the reference tree's
// own localstack-backed integration tests but kept purely in-process so
// Drive can be exercised without a real object store.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (s *fakeStore) GetObjectRange(_ context.Context, key string, offset, size int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, &fakeNotFoundError{key: key}
	}
	end := offset + size
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	if offset > end {
		offset = end
	}
	out := make([]byte, end-offset)
	copy(out, data[offset:end])
	return out, nil
}

func (s *fakeStore) PutObject(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.objects[key] = cp
	return nil
}

func (s *fakeStore) DeleteObject(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *fakeStore) ListObjects(_ context.Context, prefix, _ string) (storeclient.ListPage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	page := storeclient.ListPage{}
	for key, data := range s.objects {
		if len(key) < len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		rest := key[len(prefix):]

		slashIdx := -1
		for i := 0; i < len(rest); i++ {
			if rest[i] == '/' {
				slashIdx = i
				break
			}
		}
		if slashIdx >= 0 {
			cp := prefix + rest[:slashIdx+1]
			if !seen[cp] {
				seen[cp] = true
				page.CommonPrefixes = append(page.CommonPrefixes, cp)
			}
			continue
		}
		page.Objects = append(page.Objects, storeclient.ObjectInfo{
			Key:  key,
			Size: int64(len(data)),
		})
	}
	return page, nil
}

func (s *fakeStore) InitiateMultipartUpload(_ context.Context, _ string) (string, error) {
	return "fake-upload-id", nil
}

func (s *fakeStore) UploadPart(_ context.Context, key, _ string, partNumber int, data []byte) (string, error) {
	return "etag", nil
}

func (s *fakeStore) CompleteMultipartUpload(_ context.Context, _, _ string, _ []transfer.CompletedPart) error {
	return nil
}

func (s *fakeStore) AbortMultipartUpload(_ context.Context, _, _ string) error {
	return nil
}

type fakeNotFoundError struct{ key string }

func (e *fakeNotFoundError) Error() string { return "key not found: " + e.key }

func newTestDrive(t *testing.T) (*Drive, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	cfg := Config{
		DefaultMode:    0o644,
		CacheCapacity:  1 << 20,
		MetaMaxEntries: 1000,
		WorkerPoolSize: 2,
		Transfer: transfer.Config{
			BufferSize:           1 << 20,
			MultipartThreshold:   1 << 20,
			MultipartMinPartSize: 5 << 20,
			MultipartMaxPartSize: 100 << 20,
		},
		NameMax: 255,
	}
	d, err := New(cfg, store, nil)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d, store
}

func TestCreateWriteReleaseUploadsOnDirty(t *testing.T) {
	d, store := newTestDrive(t)
	ctx := context.Background()

	h, errno := d.Create(ctx, "/a.txt", 0o644, 1, 1)
	require.Equal(t, EOK, errno)

	n, errno := d.Write(h, 0, []byte("hello"))
	require.Equal(t, EOK, errno)
	require.Equal(t, 5, n)

	require.Equal(t, EOK, d.Release(h))

	require.Eventually(t, func() bool {
		data, ok := store.objects["a.txt"]
		return ok && string(data) == "hello"
	}, time.Second, time.Millisecond)
}

func TestGetattrAndReaddirViaListing(t *testing.T) {
	d, store := newTestDrive(t)
	ctx := context.Background()

	require.NoError(t, store.PutObject(ctx, "dir/file.txt", []byte("xyz")))

	stat, errno := d.Getattr(ctx, "/dir/file.txt")
	require.Equal(t, EOK, errno)
	require.Equal(t, int64(3), stat.Size)

	entries, errno := d.Readdir(ctx, "/dir")
	require.Equal(t, EOK, errno)
	require.Len(t, entries, 1)
	require.Equal(t, "file.txt", entries[0].Name)
	require.False(t, entries[0].IsDir)

	root, errno := d.Readdir(ctx, "/")
	require.Equal(t, EOK, errno)
	require.Len(t, root, 1)
	require.Equal(t, "dir", root[0].Name)
	require.True(t, root[0].IsDir)
}

func TestReadFetchesThroughCacheMiss(t *testing.T) {
	d, store := newTestDrive(t)
	ctx := context.Background()

	require.NoError(t, store.PutObject(ctx, "f.bin", []byte("0123456789")))

	h, errno := d.Open(ctx, "/f.bin", 0)
	require.Equal(t, EOK, errno)

	buf := make([]byte, 5)
	n, errno := d.Read(ctx, h, 2, buf)
	require.Equal(t, EOK, errno)
	require.Equal(t, 5, n)
	require.Equal(t, "23456", string(buf))

	require.Equal(t, EOK, d.Release(h))
}

func TestRenamePreservesContentAndRemovesOldKey(t *testing.T) {
	d, store := newTestDrive(t)
	ctx := context.Background()

	require.NoError(t, store.PutObject(ctx, "old.txt", []byte("payload")))

	require.Equal(t, EOK, d.Rename(ctx, "/old.txt", "/new.txt"))

	_, ok := store.objects["old.txt"]
	require.False(t, ok)
	data, ok := store.objects["new.txt"]
	require.True(t, ok)
	require.Equal(t, "payload", string(data))

	stat, errno := d.Getattr(ctx, "/new.txt")
	require.Equal(t, EOK, errno)
	require.Equal(t, int64(len("payload")), stat.Size)
}

func TestSymlinkAndReadlink(t *testing.T) {
	d, _ := newTestDrive(t)

	require.Equal(t, EOK, d.Symlink("/target", "/link", 1, 1))

	target, errno := d.Readlink("/link")
	require.Equal(t, EOK, errno)
	require.Equal(t, "/target", target)

	_, errno = d.Readlink("/missing")
	require.Equal(t, ENOENT, errno)
}

func TestMkdirRmdirNotEmpty(t *testing.T) {
	d, _ := newTestDrive(t)
	ctx := context.Background()

	require.Equal(t, EOK, d.Mkdir(ctx, "/dir", 0o755, 0, 0))
	childHandle, errno := d.Create(ctx, "/dir/child.txt", 0o644, 0, 0)
	require.Equal(t, EOK, errno)
	require.Equal(t, EOK, d.Release(childHandle))

	require.Equal(t, ENOTEMPTY, d.Rmdir(ctx, "/dir"))

	require.Equal(t, EOK, d.Unlink(ctx, "/dir/child.txt"))
	require.Equal(t, EOK, d.Rmdir(ctx, "/dir"))
}

func TestLinkDuplicatesContentUnderNewPath(t *testing.T) {
	d, store := newTestDrive(t)
	ctx := context.Background()

	require.NoError(t, store.PutObject(ctx, "src.txt", []byte("shared")))

	require.Equal(t, EOK, d.Link(ctx, "/src.txt", "/dst.txt"))

	data, ok := store.objects["dst.txt"]
	require.True(t, ok)
	require.Equal(t, "shared", string(data))

	// The two paths are independent copies, not a shared inode.
	require.NoError(t, store.PutObject(ctx, "src.txt", []byte("changed")))
	require.Equal(t, "shared", string(store.objects["dst.txt"]))
}
