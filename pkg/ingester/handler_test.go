package ingester

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artstore/artstore/pkg/admin/keys"
	adminstore "github.com/artstore/artstore/pkg/admin/store"
	"github.com/artstore/artstore/pkg/apiclient"
	"github.com/artstore/artstore/pkg/auth"
	elementapi "github.com/artstore/artstore/pkg/element/api"
	"github.com/artstore/artstore/pkg/ratelimit"
	"github.com/artstore/artstore/pkg/registry"
)

// fakeElement is an httptest stand-in for a storage element's upload
// endpoint. It records part order so tests can prove the ingester keeps
// metadata ahead of the file on the wire.
type fakeElement struct {
	t *testing.T

	mu        sync.Mutex
	hits      int
	auth      string
	partOrder []string
	fields    map[string]string
	filename  string
	size      int64
	checksum  string

	// status, when not zero or 201, short-circuits the response with a
	// problem document after the body is drained.
	status int
	// hangUp drops the connection mid-read to simulate an element crash.
	hangUp bool

	server *httptest.Server
}

func newFakeElement(t *testing.T) *fakeElement {
	t.Helper()
	f := &fakeElement{t: t}
	f.server = httptest.NewServer(http.HandlerFunc(f.handle))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeElement) handle(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	require.Equal(f.t, "/api/v1/files/upload", r.URL.Path)
	f.hits++
	f.auth = r.Header.Get("Authorization")
	f.partOrder = nil
	f.fields = map[string]string{}

	if f.hangUp {
		conn, _, err := w.(http.Hijacker).Hijack()
		require.NoError(f.t, err)
		_ = conn.Close()
		return
	}

	mr, err := r.MultipartReader()
	require.NoError(f.t, err)

	hash := sha256.New()
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(f.t, err)
		f.partOrder = append(f.partOrder, part.FormName())

		if part.FormName() == "file" {
			f.filename = part.FileName()
			n, err := io.Copy(hash, part)
			require.NoError(f.t, err)
			f.size = n
			continue
		}
		raw, err := io.ReadAll(part)
		require.NoError(f.t, err)
		f.fields[part.FormName()] = string(raw)
	}
	f.checksum = hex.EncodeToString(hash.Sum(nil))

	if f.status != 0 && f.status != http.StatusCreated {
		w.Header().Set("Content-Type", "application/problem+json")
		w.WriteHeader(f.status)
		fmt.Fprintf(w, `{"title":%q,"status":%d,"detail":"element said no"}`, http.StatusText(f.status), f.status)
		return
	}

	now := time.Now().UTC()
	resp := elementapi.FileResponse{
		FileID:           fmt.Sprintf("file-%04d", f.hits),
		OriginalFilename: f.filename,
		StorageFilename:  f.filename + ".stored",
		StoragePath:      "2026/08/" + f.filename,
		FileSize:         f.size,
		ContentType:      "application/octet-stream",
		Checksum:         f.checksum,
		CreatedAt:        now,
		UpdatedAt:        now,
		CreatedBy:        f.fields["uploaded_by"],
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(resp)
}

func (f *fakeElement) snapshot() fakeElement {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakeElement{
		hits:      f.hits,
		auth:      f.auth,
		partOrder: append([]string(nil), f.partOrder...),
		fields:    f.fields,
		filename:  f.filename,
		size:      f.size,
		checksum:  f.checksum,
	}
}

// captureRegistrar records admin registrations in place of a live admin
// module.
type captureRegistrar struct {
	mu       sync.Mutex
	requests []apiclient.RegisterFileRequest
	err      error
}

func (c *captureRegistrar) RegisterFile(_ context.Context, req apiclient.RegisterFileRequest) (*apiclient.File, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	c.requests = append(c.requests, req)
	return &apiclient.File{FileID: req.FileID}, nil
}

func (c *captureRegistrar) all() []apiclient.RegisterFileRequest {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]apiclient.RegisterFileRequest(nil), c.requests...)
}

type uploadEnv struct {
	server    *httptest.Server
	elements  *registry.ElementRegistry
	registrar *captureRegistrar
}

func newUploadEnv(t *testing.T) *uploadEnv {
	t.Helper()
	mini := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	elements := registry.NewElementRegistry(client)
	registrar := &captureRegistrar{}

	handler := NewUploadHandler(NewSelector(elements, nil), NewForwarder(), registrar, nil)
	server := httptest.NewServer(NewRouter(RouterOptions{Handler: handler}))
	t.Cleanup(server.Close)

	return &uploadEnv{server: server, elements: elements, registrar: registrar}
}

// element publishes a healthy RW element backed by the given fake server.
func (e *uploadEnv) element(t *testing.T, id string, priority uint16, fake *fakeElement) registry.ElementInfo {
	t.Helper()
	info := onlineElement(id, priority)
	info.APIURL = fake.server.URL
	publish(t, e.elements, info)
	return info
}

// multipartUpload builds a request with fields before the file part, the
// order the streaming pipeline requires end to end.
func multipartUpload(t *testing.T, serverURL string, fields map[string]string, filename, content string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, value := range fields {
		require.NoError(t, mw.WriteField(name, value))
	}
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = io.WriteString(fw, content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, serverURL+"/api/v1/upload", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func doUpload(t *testing.T, env *uploadEnv, fields map[string]string, filename, content string) *http.Response {
	t.Helper()
	req := multipartUpload(t, env.server.URL, fields, filename, content)
	resp, err := env.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestUploadStreamsToSelectedElement(t *testing.T) {
	t.Parallel()
	env := newUploadEnv(t)
	first := newFakeElement(t)
	second := newFakeElement(t)
	env.element(t, "se-a", 10, first)
	env.element(t, "se-b", 20, second)

	resp := doUpload(t, env, map[string]string{
		"uploaded_by":    "alice",
		"retention_days": "30",
		"description":    "render output",
	}, "scene.mp4", "frame data")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var uploaded UploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&uploaded))
	assert.Equal(t, "se-a", uploaded.StorageElementID)
	assert.Equal(t, "file-0001", uploaded.FileID)
	assert.Equal(t, "scene.mp4", uploaded.OriginalFilename)
	assert.Equal(t, int64(len("frame data")), uploaded.FileSize)

	got := first.snapshot()
	assert.Equal(t, 1, got.hits)
	assert.Equal(t, "alice", got.fields["uploaded_by"])
	assert.Equal(t, "30", got.fields["retention_days"])
	assert.Equal(t, "file", got.partOrder[len(got.partOrder)-1],
		"file must be the last part so metadata arrives first")
	assert.Equal(t, 0, second.snapshot().hits)
}

func TestUploadRegistersWithAdminRegistry(t *testing.T) {
	t.Parallel()
	env := newUploadEnv(t)
	fake := newFakeElement(t)
	env.element(t, "se-a", 10, fake)

	resp := doUpload(t, env, map[string]string{
		"uploaded_by":    "alice",
		"retention_days": "14",
	}, "report.pdf", "pdf bytes")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	regs := env.registrar.all()
	require.Len(t, regs, 1)
	assert.Equal(t, "file-0001", regs[0].FileID)
	assert.Equal(t, "se-a", regs[0].StorageElementID)
	assert.Equal(t, "report.pdf", regs[0].OriginalFilename)
	assert.Equal(t, "TEMPORARY", regs[0].RetentionPolicy)
	assert.Equal(t, 14, regs[0].TTLDays)
	assert.Equal(t, fake.snapshot().checksum, regs[0].ChecksumSHA256)
	assert.Equal(t, "alice", regs[0].UploadedBy)
	assert.NotEmpty(t, regs[0].UploadSourceIP)
}

func TestUploadSucceedsWhenRegistrationFails(t *testing.T) {
	t.Parallel()
	env := newUploadEnv(t)
	env.registrar.err = errors.New("admin is down")
	fake := newFakeElement(t)
	env.element(t, "se-a", 10, fake)

	resp := doUpload(t, env, map[string]string{"uploaded_by": "alice"}, "a.bin", "data")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, 1, fake.snapshot().hits)
}

func TestUploadFallsBackUnderCapacityPressure(t *testing.T) {
	t.Parallel()
	env := newUploadEnv(t)
	critical := newFakeElement(t)
	healthy := newFakeElement(t)

	info := onlineElement("se-a", 10)
	info.APIURL = critical.server.URL
	info.CapacityBytes = 1024 * gib
	info.UsedBytes = 954 * gib
	info.CapacityStatus = registry.CapacityCritical
	publish(t, env.elements, info)
	env.element(t, "se-b", 20, healthy)

	// A declared 200 MiB skips the element under pressure.
	resp := doUpload(t, env, map[string]string{
		"uploaded_by": "alice",
		"file_size":   fmt.Sprintf("%d", 200<<20),
	}, "big.iso", "stand-in body")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var uploaded UploadResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&uploaded))
	assert.Equal(t, "se-b", uploaded.StorageElementID)
	assert.Equal(t, 0, critical.snapshot().hits)

	// A 10 MiB file still lands on the higher-priority element.
	resp = doUpload(t, env, map[string]string{
		"uploaded_by": "alice",
		"file_size":   fmt.Sprintf("%d", 10<<20),
	}, "small.zip", "stand-in body")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	uploaded = UploadResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&uploaded))
	assert.Equal(t, "se-a", uploaded.StorageElementID)
}

func TestUploadWithNoEligibleElement(t *testing.T) {
	t.Parallel()
	env := newUploadEnv(t)

	resp := doUpload(t, env, map[string]string{"uploaded_by": "alice"}, "a.txt", "data")
	assert.Equal(t, http.StatusInsufficientStorage, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "No storage element can accept the upload")
	assert.Empty(t, env.registrar.all())
}

func TestUploadValidatesBeforeSelecting(t *testing.T) {
	t.Parallel()
	env := newUploadEnv(t)
	fake := newFakeElement(t)
	env.element(t, "se-a", 10, fake)

	for name, tc := range map[string]struct {
		fields map[string]string
		detail string
	}{
		"missing uploaded_by": {
			fields: map[string]string{},
			detail: "uploaded_by is required",
		},
		"bad uploader": {
			fields: map[string]string{"uploaded_by": "no spaces!"},
			detail: "uploaded_by may contain only",
		},
		"bad checksum": {
			fields: map[string]string{"uploaded_by": "alice", "checksum": "xyz"},
			detail: "64 hexadecimal characters",
		},
		"bad retention": {
			fields: map[string]string{"uploaded_by": "alice", "retention_days": "0"},
			detail: "retention_days must be between",
		},
	} {
		t.Run(name, func(t *testing.T) {
			resp := doUpload(t, env, tc.fields, "a.txt", "data")
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.Contains(t, string(body), tc.detail)
		})
	}

	assert.Equal(t, 0, fake.snapshot().hits, "invalid uploads must never reach an element")
}

func TestUploadEnforcesMaxSize(t *testing.T) {
	t.Parallel()
	mini := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	elements := registry.NewElementRegistry(client)
	fake := newFakeElement(t)
	info := onlineElement("se-a", 10)
	info.APIURL = fake.server.URL
	publish(t, elements, info)

	handler := NewUploadHandler(NewSelector(elements, nil), NewForwarder(), nil, nil)
	handler.SetMaxUploadSize(16)
	server := httptest.NewServer(NewRouter(RouterOptions{Handler: handler}))
	t.Cleanup(server.Close)

	req := multipartUpload(t, server.URL, map[string]string{
		"uploaded_by": "alice",
		"file_size":   "1000",
	}, "big.bin", "tiny")
	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	assert.Equal(t, 0, fake.snapshot().hits, "oversized uploads must never reach an element")

	req = multipartUpload(t, server.URL, map[string]string{
		"uploaded_by": "alice",
		"file_size":   "4",
	}, "ok.bin", "data")
	okResp, err := server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = okResp.Body.Close() })
	assert.Equal(t, http.StatusCreated, okResp.StatusCode)
}

func TestUploadRelaysElementRejection(t *testing.T) {
	t.Parallel()
	env := newUploadEnv(t)
	fake := newFakeElement(t)
	fake.status = http.StatusForbidden
	env.element(t, "se-a", 10, fake)

	resp := doUpload(t, env, map[string]string{"uploaded_by": "alice"}, "a.txt", "data")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "element said no")
	assert.Empty(t, env.registrar.all())
}

func TestUploadDoesNotRetryAfterStreamingStarts(t *testing.T) {
	t.Parallel()
	env := newUploadEnv(t)
	broken := newFakeElement(t)
	broken.hangUp = true
	healthy := newFakeElement(t)
	env.element(t, "se-a", 10, broken)
	env.element(t, "se-b", 20, healthy)

	resp := doUpload(t, env, map[string]string{"uploaded_by": "alice"}, "a.txt", "data")
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, 1, broken.snapshot().hits)
	assert.Equal(t, 0, healthy.snapshot().hits,
		"a failed stream must surface, not retry with a half-consumed body")
	assert.Empty(t, env.registrar.all())
}

func TestUploadForwardsBearerToken(t *testing.T) {
	t.Parallel()
	env := newUploadEnv(t)
	fake := newFakeElement(t)
	env.element(t, "se-a", 10, fake)

	req := multipartUpload(t, env.server.URL, map[string]string{"uploaded_by": "alice"}, "a.txt", "data")
	req.Header.Set("Authorization", "Bearer caller-token")
	resp, err := env.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	assert.Equal(t, "Bearer caller-token", fake.snapshot().auth)
}

func TestUploadRequiresMultipart(t *testing.T) {
	t.Parallel()
	env := newUploadEnv(t)

	resp, err := env.server.Client().Post(env.server.URL+"/api/v1/upload",
		"application/json", strings.NewReader(`{"not":"multipart"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// TestUploadAuthAndRateLimit exercises the full middleware chain with a
// real verifier and a service-account token carrying a small rate limit.
func TestUploadAuthAndRateLimit(t *testing.T) {
	t.Parallel()
	mini := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	st, err := adminstore.Open(filepath.Join(t.TempDir(), "admin.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	provider := keys.NewProvider(st, 0)
	rotator := keys.NewRotator(st, client, keys.RotatorConfig{KeyBits: 1024},
		keys.RotatorOptions{Provider: provider})
	require.NoError(t, rotator.EnsureKey(context.Background()))

	issuer := auth.NewIssuer(provider, auth.IssuerConfig{})
	verifier := auth.NewVerifier(provider, auth.VerifierConfig{})

	elements := registry.NewElementRegistry(client)
	fake := newFakeElement(t)
	info := onlineElement("se-a", 10)
	info.APIURL = fake.server.URL
	publish(t, elements, info)

	handler := NewUploadHandler(NewSelector(elements, nil), NewForwarder(), nil, nil)
	server := httptest.NewServer(NewRouter(RouterOptions{
		Handler:  handler,
		Verifier: verifier,
		Limiter:  ratelimit.NewLimiter(client, ratelimit.Config{Window: time.Minute}),
	}))
	t.Cleanup(server.Close)

	// Anonymous uploads bounce at the door.
	req := multipartUpload(t, server.URL, map[string]string{"uploaded_by": "alice"}, "a.txt", "data")
	resp, err := server.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	pair, err := issuer.IssueServiceAccount(context.Background(), "sa_render", "render-farm", auth.RoleService, 2)
	require.NoError(t, err)

	statuses := make([]int, 0, 3)
	for range 3 {
		req := multipartUpload(t, server.URL, map[string]string{"uploaded_by": "render_farm"}, "f.bin", "x")
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
		resp, err := server.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		statuses = append(statuses, resp.StatusCode)
	}
	assert.Equal(t, []int{http.StatusCreated, http.StatusCreated, http.StatusTooManyRequests}, statuses)
}

func TestUploadWithoutFilePart(t *testing.T) {
	t.Parallel()
	env := newUploadEnv(t)
	fake := newFakeElement(t)
	env.element(t, "se-a", 10, fake)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("uploaded_by", "alice"))
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, env.server.URL+"/api/v1/upload", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := env.server.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "must include a 'file' part")
}
