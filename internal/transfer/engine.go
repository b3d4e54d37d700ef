package transfer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/objectfs/objectfs/internal/workerpool"
	"github.com/objectfs/objectfs/pkg/retry"
)

// Store is the subset of the object-store adapter the transfer engine
// needs. Its errors are expected to be (or wrap) *errors.ClientError so
// the retry policy can consult Retryable.
type Store interface {
	GetObjectRange(ctx context.Context, key string, offset, size int64) ([]byte, error)
	PutObject(ctx context.Context, key string, data []byte) error
	InitiateMultipartUpload(ctx context.Context, key string) (uploadID string, err error)
	UploadPart(ctx context.Context, key, uploadID string, partNumber int, data []byte) (etag string, err error)
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []CompletedPart) error
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error
}

// CompletedPart identifies one successfully uploaded part for the
// CompleteMultipartUpload call.
type CompletedPart struct {
	PartNumber int
	ETag       string
}

// Config bounds part sizing for the engine.
type Config struct {
	BufferSize           int64
	BufferHeapSize       int64
	MultipartThreshold   int64
	MultipartMinPartSize int64
	MultipartMaxPartSize int64
	Retry                retry.Config
}

// Engine is the multipart download/upload orchestrator described in
// SPEC_FULL.md §4.H.
type Engine struct {
	cfg     Config
	pool    *workerpool.Pool
	buffers *BufferPool
	store   Store
	retryer *retry.Retryer
	logger  *slog.Logger
}

// NewEngine wires a transfer engine over an already-running worker pool.
func NewEngine(cfg Config, pool *workerpool.Pool, store Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	partSize := cfg.BufferSize
	if partSize <= 0 {
		partSize = cfg.MultipartMinPartSize
	}
	return &Engine{
		cfg:     cfg,
		pool:    pool,
		buffers: NewBufferPool(partSize, cfg.BufferHeapSize),
		store:   store,
		retryer: retry.New(cfg.Retry),
		logger:  logger,
	}
}

// DownloadFile downloads [offset, offset+size) of key into sink, splitting
// into parts of BufferSize when size exceeds it.
func (e *Engine) DownloadFile(ctx context.Context, key string, offset, size int64, sink io.WriterAt) *Handle {
	h := NewHandle(key)

	if size <= e.cfg.BufferSize {
		p := &Part{Number: 1, Offset: offset, Size: size}
		h.AddQueuePart(p)
		e.pool.Submit(func() { e.runDownloadPart(ctx, h, p, sink) })
		return h
	}

	partCount := ceilDiv(size, e.cfg.BufferSize)
	for i := int64(0); i < partCount; i++ {
		partOffset := offset + i*e.cfg.BufferSize
		partSize := e.cfg.BufferSize
		if remaining := offset + size - partOffset; remaining < partSize {
			partSize = remaining
		}
		p := &Part{Number: int(i) + 1, Offset: partOffset, Size: partSize}
		h.AddQueuePart(p)
		e.pool.Submit(func() { e.runDownloadPart(ctx, h, p, sink) })
	}
	return h
}

func (e *Engine) runDownloadPart(ctx context.Context, h *Handle, part *Part, sink io.WriterAt) {
	if !h.ShouldContinue() {
		return
	}
	h.AddPendingPart(part)

	buf, err := e.buffers.Acquire(ctx)
	if err != nil {
		h.ChangePartToFailed(part.Number, err)
		return
	}
	defer e.buffers.Release(buf)

	var data []byte
	err = e.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		if !h.ShouldContinue() {
			return nil
		}
		part.Attempts++
		fetched, ferr := e.store.GetObjectRange(ctx, h.Key, part.Offset, part.Size)
		if ferr != nil {
			return ferr
		}
		data = fetched
		return nil
	})
	if err != nil {
		e.logger.Warn("transfer download part failed", "key", h.Key, "part", part.Number, "error", err)
		h.ChangePartToFailed(part.Number, err)
		return
	}
	if !h.ShouldContinue() {
		return
	}
	if _, werr := sink.WriteAt(data, part.Offset); werr != nil {
		h.ChangePartToFailed(part.Number, werr)
		return
	}
	h.ChangePartToCompleted(part.Number, "")
}

// UploadFile uploads size bytes read from source under key, using a single
// PUT below MultipartThreshold or a multipart upload above it.
func (e *Engine) UploadFile(ctx context.Context, key string, size int64, source io.ReaderAt) *Handle {
	h := NewHandle(key)

	if size < e.cfg.MultipartThreshold {
		p := &Part{Number: 1, Offset: 0, Size: size}
		h.AddQueuePart(p)
		e.pool.Submit(func() { e.runSinglePutUpload(ctx, h, p, source) })
		return h
	}

	partSize := clamp(e.cfg.BufferSize, e.cfg.MultipartMinPartSize, e.cfg.MultipartMaxPartSize)
	uploadID, err := e.store.InitiateMultipartUpload(ctx, key)
	if err != nil {
		h.AddPendingPart(&Part{Number: 0})
		h.ChangePartToFailed(0, fmt.Errorf("transfer: initiate multipart upload: %w", err))
		return h
	}
	h.UploadID = uploadID

	partCount := ceilDiv(size, partSize)
	for i := int64(0); i < partCount; i++ {
		partOffset := i * partSize
		sz := partSize
		if remaining := size - partOffset; remaining < sz {
			sz = remaining
		}
		p := &Part{Number: int(i) + 1, Offset: partOffset, Size: sz}
		h.AddQueuePart(p)
		e.pool.Submit(func() { e.runMultipartUploadPart(ctx, h, p, source) })
	}
	return h
}

func (e *Engine) runSinglePutUpload(ctx context.Context, h *Handle, part *Part, source io.ReaderAt) {
	h.AddPendingPart(part)

	buf := make([]byte, part.Size)
	if _, err := source.ReadAt(buf, part.Offset); err != nil && err != io.EOF {
		h.ChangePartToFailed(part.Number, err)
		return
	}

	err := e.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		part.Attempts++
		return e.store.PutObject(ctx, h.Key, buf)
	})
	if err != nil {
		h.ChangePartToFailed(part.Number, err)
		return
	}
	h.ChangePartToCompleted(part.Number, "")
}

func (e *Engine) runMultipartUploadPart(ctx context.Context, h *Handle, part *Part, source io.ReaderAt) {
	if !h.ShouldContinue() {
		return
	}
	h.AddPendingPart(part)

	buf, err := e.buffers.Acquire(ctx)
	if err != nil {
		h.ChangePartToFailed(part.Number, err)
		return
	}
	defer e.buffers.Release(buf)

	data := buf
	if int64(len(data)) < part.Size {
		data = make([]byte, part.Size)
	} else {
		data = data[:part.Size]
	}
	if _, err := source.ReadAt(data, part.Offset); err != nil && err != io.EOF {
		h.ChangePartToFailed(part.Number, err)
		return
	}

	var etag string
	err = e.retryer.DoWithContext(ctx, func(ctx context.Context) error {
		if !h.ShouldContinue() {
			return nil
		}
		part.Attempts++
		tag, uerr := e.store.UploadPart(ctx, h.Key, h.UploadID, part.Number, data)
		if uerr != nil {
			return uerr
		}
		etag = tag
		return nil
	})
	if err != nil {
		e.logger.Warn("transfer upload part failed", "key", h.Key, "part", part.Number, "error", err)
		justFailed := h.ChangePartToFailed(part.Number, err)
		if justFailed {
			e.abortMultipart(ctx, h)
		}
		return
	}
	if !h.ShouldContinue() {
		return
	}

	justFinished := h.ChangePartToCompleted(part.Number, etag)
	if justFinished {
		e.completeMultipart(ctx, h)
	}
}

func (e *Engine) completeMultipart(ctx context.Context, h *Handle) {
	parts := h.CompletedParts()
	completed := make([]CompletedPart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, CompletedPart{PartNumber: p.Number, ETag: p.ETag})
	}
	sort.Slice(completed, func(i, j int) bool { return completed[i].PartNumber < completed[j].PartNumber })

	if err := e.store.CompleteMultipartUpload(ctx, h.Key, h.UploadID, completed); err != nil {
		e.logger.Error("transfer complete multipart upload failed", "key", h.Key, "upload_id", h.UploadID, "error", err)
	}
}

func (e *Engine) abortMultipart(ctx context.Context, h *Handle) {
	if h.UploadID == "" {
		return
	}
	if err := e.store.AbortMultipartUpload(ctx, h.Key, h.UploadID); err != nil {
		e.logger.Error("transfer abort multipart upload failed", "key", h.Key, "upload_id", h.UploadID, "error", err)
	}
}

// CancelUpload cancels h and, if a multipart upload was already initiated,
// aborts it on the remote and marks the handle Aborted.
func (e *Engine) CancelUpload(ctx context.Context, h *Handle) {
	h.Cancel()
	if h.UploadID != "" {
		e.abortMultipart(ctx, h)
		h.MarkAborted()
	}
}

// Shutdown drains the buffer pool. The underlying worker pool is owned by
// the caller (typically Drive) and is shut down independently.
func (e *Engine) Shutdown() {
	e.buffers.Drain()
}

func ceilDiv(a, b int64) int64 {
	if b <= 0 {
		return 0
	}
	q := a / b
	if a%b != 0 {
		q++
	}
	return q
}

func clamp(v, lo, hi int64) int64 {
	if lo > 0 && v < lo {
		v = lo
	}
	if hi > 0 && v > hi {
		v = hi
	}
	return v
}
