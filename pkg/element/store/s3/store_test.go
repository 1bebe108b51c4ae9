package s3

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artstore/artstore/pkg/element/store"
)

// stubS3 is an in-memory stand-in for the S3 client.
type stubS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	uploads map[string]map[int32][]byte

	pageSize int

	puts      int
	creates   int
	parts     int
	completes int
	aborts    int
	heads     int

	lastRange string

	// failPartAbove makes UploadPart fail for part numbers above the
	// given value. Zero disables failure injection.
	failPartAbove int32
}

func newStubS3() *stubS3 {
	return &stubS3{
		objects: make(map[string][]byte),
		uploads: make(map[string]map[int32][]byte),
	}
}

func (s *stubS3) PutObject(ctx context.Context, params *awss3.PutObjectInput, _ ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.puts++
	s.objects[aws.ToString(params.Key)] = data
	return &awss3.PutObjectOutput{}, nil
}

func (s *stubS3) GetObject(ctx context.Context, params *awss3.GetObjectInput, _ ...func(*awss3.Options)) (*awss3.GetObjectOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey: the specified key does not exist")
	}

	s.lastRange = aws.ToString(params.Range)
	body := data
	if s.lastRange != "" {
		start, end, err := parseByteRange(s.lastRange, len(data))
		if err != nil {
			return nil, err
		}
		body = data[start : end+1]
	}
	return &awss3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: aws.Int64(int64(len(body))),
	}, nil
}

func parseByteRange(header string, size int) (int, int, error) {
	spec, ok := strings.CutPrefix(header, "bytes=")
	if !ok {
		return 0, 0, fmt.Errorf("bad range %q", header)
	}
	first, last, _ := strings.Cut(spec, "-")
	start, err := strconv.Atoi(first)
	if err != nil {
		return 0, 0, fmt.Errorf("bad range %q", header)
	}
	end := size - 1
	if last != "" {
		if end, err = strconv.Atoi(last); err != nil {
			return 0, 0, fmt.Errorf("bad range %q", header)
		}
	}
	if end > size-1 {
		end = size - 1
	}
	return start, end, nil
}

func (s *stubS3) HeadObject(ctx context.Context, params *awss3.HeadObjectInput, _ ...func(*awss3.Options)) (*awss3.HeadObjectOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heads++
	data, ok := s.objects[aws.ToString(params.Key)]
	if !ok {
		return nil, errors.New("NotFound: 404")
	}
	return &awss3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(data))),
		LastModified:  aws.Time(time.Date(2025, 11, 5, 14, 30, 0, 0, time.UTC)),
	}, nil
}

func (s *stubS3) DeleteObject(ctx context.Context, params *awss3.DeleteObjectInput, _ ...func(*awss3.Options)) (*awss3.DeleteObjectOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, aws.ToString(params.Key))
	return &awss3.DeleteObjectOutput{}, nil
}

func (s *stubS3) ListObjectsV2(ctx context.Context, params *awss3.ListObjectsV2Input, _ ...func(*awss3.Options)) (*awss3.ListObjectsV2Output, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prefix := aws.ToString(params.Prefix)
	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if tok := aws.ToString(params.ContinuationToken); tok != "" {
		start, _ = strconv.Atoi(tok)
	}
	pageSize := s.pageSize
	if pageSize <= 0 {
		pageSize = len(keys)
	}

	end := start + pageSize
	if end > len(keys) {
		end = len(keys)
	}

	out := &awss3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(s.objects[k]))),
			LastModified: aws.Time(time.Date(2025, 11, 5, 14, 30, 0, 0, time.UTC)),
		})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(strconv.Itoa(end))
	}
	return out, nil
}

func (s *stubS3) HeadBucket(ctx context.Context, params *awss3.HeadBucketInput, _ ...func(*awss3.Options)) (*awss3.HeadBucketOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heads++
	return &awss3.HeadBucketOutput{}, nil
}

func (s *stubS3) CreateMultipartUpload(ctx context.Context, params *awss3.CreateMultipartUploadInput, _ ...func(*awss3.Options)) (*awss3.CreateMultipartUploadOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	uploadID := fmt.Sprintf("upload-%d", s.creates)
	s.uploads[uploadID] = make(map[int32][]byte)
	return &awss3.CreateMultipartUploadOutput{UploadId: aws.String(uploadID)}, nil
}

func (s *stubS3) UploadPart(ctx context.Context, params *awss3.UploadPartInput, _ ...func(*awss3.Options)) (*awss3.UploadPartOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	num := aws.ToInt32(params.PartNumber)
	if s.failPartAbove > 0 && num > s.failPartAbove {
		return nil, errors.New("InternalError: part upload failed")
	}
	s.parts++
	s.uploads[aws.ToString(params.UploadId)][num] = data
	return &awss3.UploadPartOutput{
		ETag: aws.String(fmt.Sprintf("etag-%d", num)),
	}, nil
}

func (s *stubS3) CompleteMultipartUpload(ctx context.Context, params *awss3.CompleteMultipartUploadInput, _ ...func(*awss3.Options)) (*awss3.CompleteMultipartUploadOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completes++

	uploadID := aws.ToString(params.UploadId)
	session, ok := s.uploads[uploadID]
	if !ok {
		return nil, errors.New("NoSuchUpload")
	}

	var assembled []byte
	for _, part := range params.MultipartUpload.Parts {
		assembled = append(assembled, session[aws.ToInt32(part.PartNumber)]...)
	}
	s.objects[aws.ToString(params.Key)] = assembled
	delete(s.uploads, uploadID)
	return &awss3.CompleteMultipartUploadOutput{}, nil
}

func (s *stubS3) AbortMultipartUpload(ctx context.Context, params *awss3.AbortMultipartUploadInput, _ ...func(*awss3.Options)) (*awss3.AbortMultipartUploadOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.aborts++
	delete(s.uploads, aws.ToString(params.UploadId))
	return &awss3.AbortMultipartUploadOutput{}, nil
}

func newTestStore(stub *stubS3, partSize int64) *Store {
	return newStore(stub, Config{
		Bucket:    "artstore-test",
		KeyPrefix: "artstore/",
		PartSize:  partSize,
	})
}

func TestWriteData_SinglePut(t *testing.T) {
	t.Parallel()

	stub := newStubS3()
	s := newTestStore(stub, 0)

	res, err := s.WriteData(context.Background(), "2025/11/05/14/f.txt", strings.NewReader("hello\n"))
	require.NoError(t, err)

	assert.Equal(t, int64(6), res.Bytes)
	assert.Equal(t, "5891b5b522d5df086d0ff0b110fbd9d21bb4fc7163af34d08286a2e846f6be03", res.Checksum)
	assert.Equal(t, 1, stub.puts)
	assert.Zero(t, stub.creates)
	assert.Equal(t, []byte("hello\n"), stub.objects["artstore/2025/11/05/14/f.txt"])
}

func TestWriteData_Multipart(t *testing.T) {
	t.Parallel()

	stub := newStubS3()
	s := newTestStore(stub, 8)

	payload := []byte("0123456789abcdefghij") // 20 bytes, 3 parts of 8+8+4
	sum := sha256.Sum256(payload)

	res, err := s.WriteData(context.Background(), "big.bin", bytes.NewReader(payload))
	require.NoError(t, err)

	assert.Equal(t, int64(20), res.Bytes)
	assert.Equal(t, hex.EncodeToString(sum[:]), res.Checksum)
	assert.Equal(t, 1, stub.creates)
	assert.Equal(t, 3, stub.parts)
	assert.Equal(t, 1, stub.completes)
	assert.Zero(t, stub.puts)
	assert.Equal(t, payload, stub.objects["artstore/big.bin"])
}

func TestWriteData_MultipartExactPartMultiple(t *testing.T) {
	t.Parallel()

	stub := newStubS3()
	s := newTestStore(stub, 8)

	payload := []byte("0123456789abcdef") // exactly 2 parts
	res, err := s.WriteData(context.Background(), "even.bin", bytes.NewReader(payload))
	require.NoError(t, err)

	assert.Equal(t, int64(16), res.Bytes)
	assert.Equal(t, 2, stub.parts)
	assert.Equal(t, payload, stub.objects["artstore/even.bin"])
}

func TestWriteData_AbortsOnPartFailure(t *testing.T) {
	t.Parallel()

	stub := newStubS3()
	stub.failPartAbove = 1
	s := newTestStore(stub, 8)

	_, err := s.WriteData(context.Background(), "doomed.bin", bytes.NewReader(make([]byte, 24)))
	require.Error(t, err)

	assert.Equal(t, 1, stub.aborts)
	assert.Zero(t, stub.completes)
	assert.NotContains(t, stub.objects, "artstore/doomed.bin")
	assert.Empty(t, stub.uploads, "aborted session should be discarded")
}

func TestAttrRoundTrip(t *testing.T) {
	t.Parallel()

	stub := newStubS3()
	s := newTestStore(stub, 0)
	ctx := context.Background()

	doc := []byte(`{"schema_version":"2.0"}`)
	require.NoError(t, s.WriteAttr(ctx, "f.txt.attr.json", doc))

	got, err := s.ReadAttr(ctx, "f.txt.attr.json")
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	_, err = s.ReadAttr(ctx, "missing.attr.json")
	assert.ErrorIs(t, err, store.ErrObjectNotFound)
}

func TestOpenRange(t *testing.T) {
	t.Parallel()

	stub := newStubS3()
	stub.objects["artstore/f.txt"] = []byte("hello\n")
	s := newTestStore(stub, 0)
	ctx := context.Background()

	rc, err := s.OpenRange(ctx, "f.txt", 0, 3)
	require.NoError(t, err)
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "hel", string(got))
	assert.Equal(t, "bytes=0-2", stub.lastRange)

	rc, err = s.OpenRange(ctx, "f.txt", 4, -1)
	require.NoError(t, err)
	got, err = io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "o\n", string(got))
	assert.Equal(t, "bytes=4-", stub.lastRange)

	// Whole-object reads skip the Range header entirely.
	rc, err = s.OpenRange(ctx, "f.txt", 0, -1)
	require.NoError(t, err)
	got, err = io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "hello\n", string(got))
	assert.Empty(t, stub.lastRange)

	_, err = s.OpenRange(ctx, "absent.txt", 0, -1)
	assert.ErrorIs(t, err, store.ErrObjectNotFound)
}

func TestStat(t *testing.T) {
	t.Parallel()

	stub := newStubS3()
	stub.objects["artstore/f.bin"] = []byte("12345")
	s := newTestStore(stub, 0)

	info, err := s.Stat(context.Background(), "f.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
	assert.False(t, info.ModTime.IsZero())

	_, err = s.Stat(context.Background(), "other.bin")
	assert.ErrorIs(t, err, store.ErrObjectNotFound)
}

func TestDelete_Idempotent(t *testing.T) {
	t.Parallel()

	stub := newStubS3()
	stub.objects["artstore/f.bin"] = []byte("x")
	s := newTestStore(stub, 0)
	ctx := context.Background()

	require.NoError(t, s.Delete(ctx, "f.bin"))
	require.NoError(t, s.Delete(ctx, "f.bin"))
	assert.NotContains(t, stub.objects, "artstore/f.bin")
}

func TestWalk_PaginatesAndStripsPrefix(t *testing.T) {
	t.Parallel()

	stub := newStubS3()
	stub.pageSize = 2
	stub.objects["artstore/a/f1"] = []byte("1")
	stub.objects["artstore/a/f2"] = []byte("22")
	stub.objects["artstore/b/f3"] = []byte("333")
	stub.objects["other/ignored"] = []byte("x")
	s := newTestStore(stub, 0)

	seen := make(map[string]int64)
	err := s.Walk(context.Background(), func(relPath string, info store.ObjectInfo) error {
		seen[relPath] = info.Size
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"a/f1": 1, "a/f2": 2, "b/f3": 3}, seen)
}

func TestKeyValidation(t *testing.T) {
	t.Parallel()

	stub := newStubS3()
	s := newTestStore(stub, 0)
	ctx := context.Background()

	for _, path := range []string{"", "/abs", "a/../b"} {
		_, err := s.Stat(ctx, path)
		assert.ErrorIs(t, err, store.ErrInvalidPath, "path %q", path)
	}
}

func TestUsage_Unsupported(t *testing.T) {
	t.Parallel()

	s := newTestStore(newStubS3(), 0)
	_, err := s.Usage(context.Background())
	assert.ErrorIs(t, err, store.ErrUnsupported)
}

func TestClosedStoreRejectsOperations(t *testing.T) {
	t.Parallel()

	s := newTestStore(newStubS3(), 0)
	require.NoError(t, s.Close())

	_, err := s.WriteData(context.Background(), "f", strings.NewReader("x"))
	assert.ErrorIs(t, err, store.ErrStoreClosed)
	assert.ErrorIs(t, s.HealthCheck(context.Background()), store.ErrStoreClosed)
}
