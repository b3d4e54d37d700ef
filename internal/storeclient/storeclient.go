// Package storeclient implements the object-store adapter described in
// SPEC_FULL.md §4.J: a uniform Outcome<Response, ClientError>-shaped call
// surface over AWS S3, translating vendor HTTP status codes and SDK error
// codes into the closed ErrorKind taxonomy through two closed tables.
package storeclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
	cargoshipconfig "github.com/scttfrdmn/cargoship/pkg/aws/config"
	cargoships3 "github.com/scttfrdmn/cargoship/pkg/aws/s3"

	"github.com/objectfs/objectfs/internal/metrics"
	"github.com/objectfs/objectfs/internal/transfer"
	objfserrors "github.com/objectfs/objectfs/pkg/errors"
)

// Config configures a Client.
type Config struct {
	Bucket         string
	Region         string
	Endpoint       string
	ForcePathStyle bool

	// AccessKeyID/SecretAccessKey/SessionToken are used when non-empty;
	// otherwise the default SDK credential chain applies. A per-bucket
	// credential override (SPEC_FULL.md §12) is expressed by constructing
	// a separate Client per bucket with its own Config.
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string

	// EnableCargoShip turns on CargoShip-optimized uploads; PutObject
	// falls back to a plain SDK PutObject on any CargoShip error.
	EnableCargoShip bool

	// ContentTyper resolves a key's upload Content-Type, typically
	// *mimetype.Table.Lookup. Nil falls back to a small built-in switch.
	ContentTyper func(key string) string

	// Metrics, if non-nil, receives latency and size for each successful
	// GetObject/PutObject and an error count for each failed request, by
	// operation and by the collector's classification of the error text.
	Metrics *metrics.Collector

	Logger *slog.Logger
}

// Client is the object-store adapter for one bucket.
type Client struct {
	s3     *s3.Client
	bucket string

	transporter *cargoships3.Transporter
	logger      *slog.Logger
	contentType func(key string) string
	collector   *metrics.Collector

	mu      sync.Mutex
	metrics struct {
		bytesUploaded   int64
		bytesDownloaded int64
		requests        int64
		errors          int64
	}
}

// New constructs a Client against cfg.Bucket.
func New(ctx context.Context, cfg Config) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var optFns []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		optFns = append(optFns, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("storeclient: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	c := &Client{s3: client, bucket: cfg.Bucket, logger: logger, contentType: cfg.ContentTyper, collector: cfg.Metrics}

	if cfg.EnableCargoShip {
		c.transporter = cargoships3.NewTransporter(client, cargoshipconfig.S3Config{
			Bucket:             cfg.Bucket,
			StorageClass:       cargoshipconfig.StorageClassIntelligentTiering,
			MultipartThreshold: 32 * 1024 * 1024,
			MultipartChunkSize: 16 * 1024 * 1024,
			Concurrency:        8,
		})
		logger.Info("cargoship S3 optimization enabled", "bucket", cfg.Bucket)
	}

	return c, nil
}

// GetObjectRange fetches [offset, offset+size) of key. size <= 0 fetches to
// EOF.
func (c *Client) GetObjectRange(ctx context.Context, key string, offset, size int64) ([]byte, error) {
	c.recordRequest()
	start := time.Now()

	var rng *string
	switch {
	case size > 0:
		rng = aws.String(fmt.Sprintf("bytes=%d-%d", offset, offset+size-1))
	case offset > 0:
		rng = aws.String(fmt.Sprintf("bytes=%d-", offset))
	}

	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Range:  rng,
	})
	if err != nil {
		return nil, c.translateError(err, "GetObject", key)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, objfserrors.New(objfserrors.InternalFailure, "read object body").WithCause(err)
	}

	c.mu.Lock()
	c.metrics.bytesDownloaded += int64(len(data))
	c.mu.Unlock()
	c.recordOp("GetObject", start, int64(len(data)), true)
	return data, nil
}

// PutObject stores data at key, preferring the CargoShip transporter when
// enabled and falling back to a plain SDK PutObject on any failure.
func (c *Client) PutObject(ctx context.Context, key string, data []byte) error {
	c.recordRequest()
	start := time.Now()

	if c.transporter != nil {
		archive := cargoships3.Archive{
			Key:    key,
			Reader: bytes.NewReader(data),
			Size:   int64(len(data)),
		}
		if _, err := c.transporter.Upload(ctx, archive); err == nil {
			c.mu.Lock()
			c.metrics.bytesUploaded += int64(len(data))
			c.mu.Unlock()
			c.recordOp("PutObject", start, int64(len(data)), true)
			return nil
		} else {
			c.logger.Warn("cargoship upload failed, falling back to plain PutObject", "key", key, "error", err)
		}
	}

	_, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(c.contentTypeFor(key)),
	})
	if err != nil {
		return c.translateError(err, "PutObject", key)
	}

	c.mu.Lock()
	c.metrics.bytesUploaded += int64(len(data))
	c.mu.Unlock()
	c.recordOp("PutObject", start, int64(len(data)), true)
	return nil
}

// GetObjects fetches each of keys in parallel, bounded by concurrency.
// Individual failures are collected rather than aborting the whole batch;
// an error is returned only if every key failed.
func (c *Client) GetObjects(ctx context.Context, keys []string, concurrency int) (map[string][]byte, error) {
	if len(keys) == 0 {
		return map[string][]byte{}, nil
	}
	if concurrency <= 0 {
		concurrency = 8
	}

	type result struct {
		key  string
		data []byte
		err  error
	}

	resultCh := make(chan result, len(keys))
	sem := make(chan struct{}, concurrency)

	for _, key := range keys {
		key := key
		go func() {
			sem <- struct{}{}
			defer func() { <-sem }()
			data, err := c.GetObjectRange(ctx, key, 0, 0)
			resultCh <- result{key: key, data: data, err: err}
		}()
	}

	results := make(map[string][]byte, len(keys))
	var firstErr error
	for i := 0; i < len(keys); i++ {
		res := <-resultCh
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
			}
			continue
		}
		results[res.key] = res.data
	}
	if firstErr != nil && len(results) == 0 {
		return nil, firstErr
	}
	return results, nil
}

// PutObjects stores each of objects in parallel, bounded by concurrency.
func (c *Client) PutObjects(ctx context.Context, objects map[string][]byte, concurrency int) error {
	if len(objects) == 0 {
		return nil
	}
	if concurrency <= 0 {
		concurrency = 8
	}

	type result struct {
		key string
		err error
	}

	resultCh := make(chan result, len(objects))
	sem := make(chan struct{}, concurrency)

	for key, data := range objects {
		key, data := key, data
		go func() {
			sem <- struct{}{}
			defer func() { <-sem }()
			err := c.PutObject(ctx, key, data)
			resultCh <- result{key: key, err: err}
		}()
	}

	var failed []string
	for i := 0; i < len(objects); i++ {
		res := <-resultCh
		if res.err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", res.key, res.err))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("batch put failed for %d objects: %s", len(failed), strings.Join(failed, "; "))
	}
	return nil
}

// DeleteObject removes key.
func (c *Client) DeleteObject(ctx context.Context, key string) error {
	c.recordRequest()
	_, err := c.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return c.translateError(err, "DeleteObject", key)
	}
	return nil
}

// ObjectInfo is the subset of S3 object metadata the tree needs to grow a
// FileMetaData.
type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified int64 // unix seconds
	IsPrefix     bool
}

// ListPage is one page of a delimited listing.
type ListPage struct {
	Objects         []ObjectInfo
	CommonPrefixes  []string
	NextToken       string
	IsTruncated     bool
}

// ListObjects lists keys under prefix, one level deep (delimiter "/").
func (c *Client) ListObjects(ctx context.Context, prefix, continuationToken string) (ListPage, error) {
	c.recordRequest()

	input := &s3.ListObjectsV2Input{
		Bucket:    aws.String(c.bucket),
		Prefix:    aws.String(prefix),
		Delimiter: aws.String("/"),
	}
	if continuationToken != "" {
		input.ContinuationToken = aws.String(continuationToken)
	}

	out, err := c.s3.ListObjectsV2(ctx, input)
	if err != nil {
		return ListPage{}, c.translateError(err, "ListObjects", prefix)
	}

	page := ListPage{IsTruncated: aws.ToBool(out.IsTruncated)}
	if out.NextContinuationToken != nil {
		page.NextToken = *out.NextContinuationToken
	}
	for _, obj := range out.Contents {
		var lastModified int64
		if obj.LastModified != nil {
			lastModified = obj.LastModified.Unix()
		}
		page.Objects = append(page.Objects, ObjectInfo{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: lastModified,
		})
	}
	for _, cp := range out.CommonPrefixes {
		page.CommonPrefixes = append(page.CommonPrefixes, aws.ToString(cp.Prefix))
	}
	return page, nil
}

// InitiateMultipartUpload starts a multipart upload for key.
func (c *Client) InitiateMultipartUpload(ctx context.Context, key string) (string, error) {
	c.recordRequest()
	out, err := c.s3.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(c.contentTypeFor(key)),
	})
	if err != nil {
		return "", c.translateError(err, "CreateMultipartUpload", key)
	}
	return aws.ToString(out.UploadId), nil
}

// UploadPart uploads one part of an in-progress multipart upload.
func (c *Client) UploadPart(ctx context.Context, key, uploadID string, partNumber int, data []byte) (string, error) {
	c.recordRequest()
	out, err := c.s3.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(c.bucket),
		Key:        aws.String(key),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(int32(partNumber)),
		Body:       bytes.NewReader(data),
	})
	if err != nil {
		return "", c.translateError(err, "UploadPart", key)
	}

	c.mu.Lock()
	c.metrics.bytesUploaded += int64(len(data))
	c.mu.Unlock()
	return aws.ToString(out.ETag), nil
}

// CompleteMultipartUpload finalizes an upload given its sorted parts.
func (c *Client) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []transfer.CompletedPart) error {
	c.recordRequest()

	completed := make([]s3types.CompletedPart, 0, len(parts))
	for _, p := range parts {
		completed = append(completed, s3types.CompletedPart{
			PartNumber: aws.Int32(int32(p.PartNumber)),
			ETag:       aws.String(p.ETag),
		})
	}

	_, err := c.s3.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
		MultipartUpload: &s3types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		return c.translateError(err, "CompleteMultipartUpload", key)
	}
	return nil
}

// AbortMultipartUpload cancels an in-progress multipart upload on the
// remote.
func (c *Client) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	c.recordRequest()
	_, err := c.s3.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		return c.translateError(err, "AbortMultipartUpload", key)
	}
	return nil
}

func (c *Client) recordRequest() {
	c.mu.Lock()
	c.metrics.requests++
	c.mu.Unlock()
}

// recordOp reports operation to the optional metrics collector; a no-op
// when none was configured.
func (c *Client) recordOp(operation string, start time.Time, size int64, success bool) {
	if c.collector == nil {
		return
	}
	c.collector.RecordOperation(operation, time.Since(start), size, success)
}

// translateError maps an AWS SDK error to the closed ErrorKind taxonomy
// through the SDK-error-code table first, falling back to the HTTP-status
// table, and finally to Unknown.
func (c *Client) translateError(err error, operation, key string) *objfserrors.ClientError {
	c.mu.Lock()
	c.metrics.errors++
	c.mu.Unlock()

	if c.collector != nil {
		c.collector.RecordError(operation, err)
	}

	var apiErr smithy.APIError
	var kind objfserrors.ErrorKind
	var exception string
	if errors.As(err, &apiErr) {
		exception = apiErr.ErrorCode()
		kind = objfserrors.KindForSDKCode(exception)
	}

	var respErr *smithyhttp.ResponseError
	httpStatus := 0
	if errors.As(err, &respErr) {
		httpStatus = respErr.Response.StatusCode
		if kind == "" || kind == objfserrors.Unknown {
			kind = objfserrors.KindForHTTPStatus(httpStatus)
		}
	}
	if kind == "" {
		kind = objfserrors.Unknown
	}

	ce := objfserrors.New(kind, fmt.Sprintf("%s failed for %s", operation, key)).
		WithCause(err).
		WithException(exception)
	if httpStatus != 0 {
		ce = ce.WithHTTPStatus(httpStatus)
	}

	c.logger.Debug("storeclient request failed", "op", operation, "key", key, "kind", kind, "exception", exception)
	return ce
}

// contentTypeFor resolves key's upload Content-Type, preferring the
// injected ContentTyper (normally *mimetype.Table.Lookup) and falling back
// to a small built-in switch when none was configured.
func (c *Client) contentTypeFor(key string) string {
	if c.contentType != nil {
		return c.contentType(key)
	}
	return defaultContentTypeFor(key)
}

func defaultContentTypeFor(key string) string {
	switch {
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	case strings.HasSuffix(key, ".xml"):
		return "application/xml"
	case strings.HasSuffix(key, ".html"):
		return "text/html"
	case strings.HasSuffix(key, ".txt"):
		return "text/plain"
	case strings.HasSuffix(key, ".jpg"), strings.HasSuffix(key, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(key, ".png"):
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
