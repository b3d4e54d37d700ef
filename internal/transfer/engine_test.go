package transfer

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/objectfs/objectfs/internal/workerpool"
	"github.com/objectfs/objectfs/pkg/retry"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	blockDownload chan struct{}

	uploads      map[string][]byte // uploadID -> concatenated-so-far, unused directly
	uploadParts  map[string]map[int][]byte
	initiated    []string
	aborted      []string
	completedIDs []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects:     make(map[string][]byte),
		uploadParts: make(map[string]map[int][]byte),
	}
}

func (f *fakeStore) GetObjectRange(_ context.Context, key string, offset, size int64) ([]byte, error) {
	if f.blockDownload != nil {
		<-f.blockDownload
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such object %s", key)
	}
	return data[offset : offset+size], nil
}

func (f *fakeStore) PutObject(_ context.Context, key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.objects[key] = cp
	return nil
}

func (f *fakeStore) InitiateMultipartUpload(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := fmt.Sprintf("upload-%d", len(f.initiated)+1)
	f.initiated = append(f.initiated, id)
	f.uploadParts[id] = make(map[int][]byte)
	return id, nil
}

func (f *fakeStore) UploadPart(_ context.Context, key, uploadID string, partNumber int, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	f.uploadParts[uploadID][partNumber] = cp
	return fmt.Sprintf("etag-%d", partNumber), nil
}

func (f *fakeStore) CompleteMultipartUpload(_ context.Context, key, uploadID string, parts []CompletedPart) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var buf bytes.Buffer
	for _, p := range parts {
		buf.Write(f.uploadParts[uploadID][p.PartNumber])
	}
	f.objects[key] = buf.Bytes()
	f.completedIDs = append(f.completedIDs, uploadID)
	return nil
}

func (f *fakeStore) AbortMultipartUpload(_ context.Context, key, uploadID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aborted = append(f.aborted, uploadID)
	return nil
}

type memSink struct {
	mu  sync.Mutex
	buf []byte
}

func newMemSink(size int) *memSink { return &memSink{buf: make([]byte, size)} }

func (s *memSink) WriteAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	copy(s.buf[off:], p)
	return len(p), nil
}

func testEngine(t *testing.T, store Store) *Engine {
	t.Helper()
	pool := workerpool.New(4)
	t.Cleanup(pool.Shutdown)
	cfg := Config{
		BufferSize:           4,
		BufferHeapSize:       32,
		MultipartThreshold:   10,
		MultipartMinPartSize: 4,
		MultipartMaxPartSize: 8,
		Retry:                retry.Config{MaxAttempts: 1},
	}
	return NewEngine(cfg, pool, store, nil)
}

// TestMultipartDownload covers SPEC_FULL.md §8 scenario 5.
func TestMultipartDownload(t *testing.T) {
	store := newFakeStore()
	store.objects["/big"] = []byte("0123456789abcdef") // 16 bytes, 4 parts of 4

	e := testEngine(t, store)
	sink := newMemSink(16)

	h := e.DownloadFile(context.Background(), "/big", 0, 16, sink)
	status := h.WaitUntilFinished()

	require.Equal(t, Completed, status)
	require.Equal(t, "0123456789abcdef", string(sink.buf))
}

func TestSinglePartDownload(t *testing.T) {
	store := newFakeStore()
	store.objects["/small"] = []byte("hi")

	e := testEngine(t, store)
	sink := newMemSink(2)

	h := e.DownloadFile(context.Background(), "/small", 0, 2, sink)
	require.Equal(t, Completed, h.WaitUntilFinished())
	require.Equal(t, "hi", string(sink.buf))
}

func TestMultipartUploadCompletesAndCallsComplete(t *testing.T) {
	store := newFakeStore()
	e := testEngine(t, store)

	data := []byte("0123456789abcdef") // 16 bytes
	src := bytes.NewReader(data)

	h := e.UploadFile(context.Background(), "/obj", int64(len(data)), src)
	require.Equal(t, Completed, h.WaitUntilFinished())

	require.Len(t, store.completedIDs, 1)
	require.Equal(t, data, store.objects["/obj"])
}

// TestUploadCancellationAborts covers SPEC_FULL.md §8 scenario 6.
func TestUploadCancellationAborts(t *testing.T) {
	store := newFakeStore()
	e := testEngine(t, store)
	data := make([]byte, 16)
	src := bytes.NewReader(data)

	h := e.UploadFile(context.Background(), "/cancel-me", int64(len(data)), src)
	require.NotEmpty(t, h.UploadID)

	e.CancelUpload(context.Background(), h)

	require.Eventually(t, func() bool {
		return h.Status() == Aborted
	}, time.Second, 5*time.Millisecond)
	require.Contains(t, store.aborted, h.UploadID)
}
