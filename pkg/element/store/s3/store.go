// Package s3 provides an S3-backed storage backend.
package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/artstore/artstore/internal/telemetry"
	"github.com/artstore/artstore/pkg/element/store"
)

// defaultPartSize is the multipart chunk size for streamed writes. AWS
// requires at least 5 MiB for every part except the last.
const defaultPartSize = 8 << 20

// Config holds configuration for the S3 backend.
type Config struct {
	// Bucket is the S3 bucket name.
	Bucket string

	// Region is the AWS region (optional, uses SDK default if empty).
	Region string

	// Endpoint is the S3 endpoint URL (optional, for S3-compatible services).
	Endpoint string

	// AccessKeyID and SecretAccessKey are static credentials. When empty the
	// SDK default chain applies (env, shared config, instance role).
	AccessKeyID     string
	SecretAccessKey string

	// KeyPrefix is prepended to all object keys (e.g. "artstore/").
	// Should end with "/" if non-empty.
	KeyPrefix string

	// ForcePathStyle forces path-style addressing (required for MinIO and
	// Localstack).
	ForcePathStyle bool

	// PartSize is the multipart chunk size for streamed writes.
	// Default: 8 MiB.
	PartSize int64
}

// api is the subset of the S3 client the store uses.
type api interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// Store is an S3-backed implementation of store.Backend. Writes are atomic
// by construction: single-part writes become visible on PutObject, streamed
// writes on CompleteMultipartUpload, and nothing is visible before that.
type Store struct {
	client    api
	bucket    string
	keyPrefix string
	partSize  int64
	closed    bool
	mu        sync.RWMutex
}

// New creates an S3 backend with an existing client.
func New(client *s3.Client, config Config) *Store {
	return newStore(client, config)
}

func newStore(client api, config Config) *Store {
	partSize := config.PartSize
	if partSize <= 0 {
		partSize = defaultPartSize
	}
	return &Store{
		client:    client,
		bucket:    config.Bucket,
		keyPrefix: config.KeyPrefix,
		partSize:  partSize,
	}
}

// NewFromConfig creates an S3 backend by building an S3 client from config.
func NewFromConfig(ctx context.Context, config Config) (*Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if config.Region != "" {
		opts = append(opts, awsconfig.WithRegion(config.Region))
	}
	if config.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(config.AccessKeyID, config.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if config.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
		})
	}
	if config.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return New(s3.NewFromConfig(awsCfg, s3Opts...), config), nil
}

// fullKey maps a relative path to the full S3 key.
func (s *Store) fullKey(relPath string) (string, error) {
	if relPath == "" || strings.HasPrefix(relPath, "/") {
		return "", store.ErrInvalidPath
	}
	for _, part := range strings.Split(relPath, "/") {
		if part == ".." {
			return "", store.ErrInvalidPath
		}
	}
	return s.keyPrefix + relPath, nil
}

func (s *Store) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return store.ErrStoreClosed
	}
	return nil
}

// WriteData streams r to the object at relPath. Streams that fit in one
// part use a plain PutObject; larger streams use a multipart upload that is
// aborted on any failure.
func (s *Store) WriteData(ctx context.Context, relPath string, r io.Reader) (result store.WriteResult, err error) {
	if err := s.checkOpen(); err != nil {
		return store.WriteResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return store.WriteResult{}, err
	}

	key, err := s.fullKey(relPath)
	if err != nil {
		return store.WriteResult{}, err
	}

	ctx, span := telemetry.StartStorageSpan(ctx, "write",
		telemetry.Bucket(s.bucket),
		telemetry.StorageKey(key),
		telemetry.StoreName("s3"),
		telemetry.StoreType("backend"))
	defer span.End()
	defer func() {
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
	}()

	hash := sha256.New()
	tee := io.TeeReader(r, hash)
	buf := make([]byte, s.partSize)

	n, err := io.ReadFull(tee, buf)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		// Whole stream fits in one part.
		_, putErr := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(buf[:n]),
		})
		if putErr != nil {
			return store.WriteResult{}, fmt.Errorf("s3 put object: %w", putErr)
		}
		return store.WriteResult{
			Bytes:    int64(n),
			Checksum: hex.EncodeToString(hash.Sum(nil)),
		}, nil
	}
	if err != nil {
		return store.WriteResult{}, fmt.Errorf("read upload stream: %w", err)
	}

	return s.writeMultipart(ctx, key, hash, tee, buf, n)
}

// writeMultipart uploads the first full part and the remainder of the
// stream as a multipart session.
func (s *Store) writeMultipart(ctx context.Context, key string, hash hash.Hash, tee io.Reader, buf []byte, firstLen int) (store.WriteResult, error) {
	create, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return store.WriteResult{}, fmt.Errorf("s3 create multipart upload: %w", err)
	}
	uploadID := aws.ToString(create.UploadId)

	abort := func() {
		// Abort must run even when ctx is already cancelled, or the
		// partial upload lingers and keeps billing for its parts.
		_, _ = s.client.AbortMultipartUpload(context.WithoutCancel(ctx), &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(s.bucket),
			Key:      aws.String(key),
			UploadId: aws.String(uploadID),
		})
	}

	var (
		parts   []types.CompletedPart
		partNum int32
		total   int64
	)
	upload := func(data []byte) error {
		partNum++
		out, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:     aws.String(s.bucket),
			Key:        aws.String(key),
			UploadId:   aws.String(uploadID),
			PartNumber: aws.Int32(partNum),
			Body:       bytes.NewReader(data),
		})
		if err != nil {
			return fmt.Errorf("s3 upload part %d: %w", partNum, err)
		}
		parts = append(parts, types.CompletedPart{
			ETag:       out.ETag,
			PartNumber: aws.Int32(partNum),
		})
		total += int64(len(data))
		return nil
	}

	if err := upload(buf[:firstLen]); err != nil {
		abort()
		return store.WriteResult{}, err
	}
	for {
		n, readErr := io.ReadFull(tee, buf)
		if n > 0 {
			if err := upload(buf[:n]); err != nil {
				abort()
				return store.WriteResult{}, err
			}
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			abort()
			return store.WriteResult{}, fmt.Errorf("read upload stream: %w", readErr)
		}
	}

	_, err = s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		abort()
		return store.WriteResult{}, fmt.Errorf("s3 complete multipart upload: %w", err)
	}

	return store.WriteResult{Bytes: total, Checksum: hex.EncodeToString(hash.Sum(nil))}, nil
}

// WriteAttr stores an attribute document at relPath. Attribute documents
// are small, so a single PutObject is always enough.
func (s *Store) WriteAttr(ctx context.Context, relPath string, data []byte) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	key, err := s.fullKey(relPath)
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 put attr: %w", err)
	}
	return nil
}

// ReadAttr returns the attribute document at relPath.
func (s *Store) ReadAttr(ctx context.Context, relPath string) ([]byte, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	key, err := s.fullKey(relPath)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			return nil, store.ErrObjectNotFound
		}
		return nil, fmt.Errorf("s3 get attr: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3 object body: %w", err)
	}
	return data, nil
}

// OpenRange opens the object at relPath using an S3 range request.
// length < 0 reads to the end of the object.
func (s *Store) OpenRange(ctx context.Context, relPath string, offset, length int64) (rc io.ReadCloser, err error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}

	key, err := s.fullKey(relPath)
	if err != nil {
		return nil, err
	}

	ctx, span := telemetry.StartStorageSpan(ctx, "read",
		telemetry.Bucket(s.bucket),
		telemetry.StorageKey(key),
		telemetry.Offset(offset),
		telemetry.Count(length),
		telemetry.StoreName("s3"),
		telemetry.StoreType("backend"))
	defer span.End()
	defer func() {
		if err != nil {
			telemetry.RecordError(ctx, err)
		}
	}()

	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	switch {
	case offset == 0 && length < 0:
		// Whole object, no Range header. An open-ended range on an empty
		// object would otherwise be rejected by S3.
	case length < 0:
		input.Range = aws.String(fmt.Sprintf("bytes=%d-", offset))
	default:
		input.Range = aws.String(fmt.Sprintf("bytes=%d-%d", offset, offset+length-1))
	}

	resp, err := s.client.GetObject(ctx, input)
	if err != nil {
		if isNotFoundError(err) {
			return nil, store.ErrObjectNotFound
		}
		return nil, fmt.Errorf("s3 get object range: %w", err)
	}
	return resp.Body, nil
}

// Stat returns size and modification time of the object at relPath.
func (s *Store) Stat(ctx context.Context, relPath string) (store.ObjectInfo, error) {
	if err := s.checkOpen(); err != nil {
		return store.ObjectInfo{}, err
	}

	key, err := s.fullKey(relPath)
	if err != nil {
		return store.ObjectInfo{}, err
	}

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFoundError(err) {
			return store.ObjectInfo{}, store.ErrObjectNotFound
		}
		return store.ObjectInfo{}, fmt.Errorf("s3 head object: %w", err)
	}
	return store.ObjectInfo{
		Size:    aws.ToInt64(out.ContentLength),
		ModTime: aws.ToTime(out.LastModified),
	}, nil
}

// Delete removes the object at relPath. S3 deletes are idempotent, so
// deleting a missing object succeeds.
func (s *Store) Delete(ctx context.Context, relPath string) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	key, err := s.fullKey(relPath)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete object: %w", err)
	}
	return nil
}

// Walk visits every object under the key prefix.
func (s *Store) Walk(ctx context.Context, fn func(relPath string, info store.ObjectInfo) error) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.keyPrefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("s3 list objects: %w", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if s.keyPrefix != "" && strings.HasPrefix(key, s.keyPrefix) {
				key = key[len(s.keyPrefix):]
			}
			info := store.ObjectInfo{
				Size:    aws.ToInt64(obj.Size),
				ModTime: aws.ToTime(obj.LastModified),
			}
			if err := fn(key, info); err != nil {
				return err
			}
		}
	}
	return nil
}

// Usage is not measurable for object storage.
func (s *Store) Usage(ctx context.Context) (store.DiskUsage, error) {
	return store.DiskUsage{}, store.ErrUnsupported
}

// HealthCheck verifies the bucket is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}

	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("s3 health check failed: %w", err)
	}
	return nil
}

// Close marks the store as closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}

// isNotFoundError checks whether an error is an S3 not-found error.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "NoSuchKey") ||
		strings.Contains(msg, "NotFound") ||
		strings.Contains(msg, "404")
}

// Ensure Store implements store.Backend.
var _ store.Backend = (*Store)(nil)
