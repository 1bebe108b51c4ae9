package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artstore/artstore/pkg/admin"
	"github.com/artstore/artstore/pkg/admin/keys"
	"github.com/artstore/artstore/pkg/admin/models"
	"github.com/artstore/artstore/pkg/admin/store"
	"github.com/artstore/artstore/pkg/auth"
	"github.com/artstore/artstore/pkg/events"
	"github.com/artstore/artstore/pkg/registry"
)

type testEnv struct {
	store    *store.Store
	mini     *miniredis.Miniredis
	client   *redis.Client
	issuer   *auth.Issuer
	verifier *auth.Verifier
	server   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "admin.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	provider := keys.NewProvider(st, 0)
	rotator := keys.NewRotator(st, client, keys.RotatorConfig{KeyBits: 1024},
		keys.RotatorOptions{Provider: provider})
	require.NoError(t, rotator.EnsureKey(context.Background()))

	issuer := auth.NewIssuer(provider, auth.IssuerConfig{})
	verifier := auth.NewVerifier(provider, auth.VerifierConfig{})

	srv := httptest.NewServer(NewRouter(RouterOptions{
		Store:    st,
		Issuer:   issuer,
		Verifier: verifier,
		Topology: admin.NewTopology(st, client, admin.TopologyConfig{}),
		Provider: provider,
		Rotator:  rotator,
		Producer: events.NewProducer(client, events.ProducerConfig{}),
	}))
	t.Cleanup(srv.Close)

	return &testEnv{
		store:    st,
		mini:     mr,
		client:   client,
		issuer:   issuer,
		verifier: verifier,
		server:   srv,
	}
}

// do sends a JSON request. An empty token leaves the request anonymous.
func (env *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, env.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := env.server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

// postForm sends a form-encoded request, the shape the OAuth endpoint takes.
func (env *testEnv) postForm(t *testing.T, path string, form url.Values) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, env.server.URL+path,
		strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := env.server.Client().Do(req)
	require.NoError(t, err)
	return resp
}

func decodeAs[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

// createAdminUser seeds an operator with a known password.
func (env *testEnv) createAdminUser(t *testing.T, username, password, role string) *models.AdminUser {
	t.Helper()
	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	user := &models.AdminUser{
		Username:     username,
		PasswordHash: hash,
		Role:         role,
		Enabled:      true,
	}
	_, err = env.store.CreateAdminUser(context.Background(), user)
	require.NoError(t, err)
	return user
}

// adminToken mints an admin-user access token directly, skipping the login
// endpoint. The subject does not need a database row for registry routes.
func (env *testEnv) adminToken(t *testing.T, username, role string) string {
	t.Helper()
	pair, err := env.issuer.IssueAdminUser(context.Background(), username, role)
	require.NoError(t, err)
	return pair.AccessToken
}

func (env *testEnv) serviceToken(t *testing.T, clientID, role string) string {
	t.Helper()
	pair, err := env.issuer.IssueServiceAccount(context.Background(), clientID, "test-service", role, 60)
	require.NoError(t, err)
	return pair.AccessToken
}

func TestHealthProbesAreOpen(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp, err := env.server.Client().Get(env.server.URL + "/health/live")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestLoginIssuesWorkingToken(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.createAdminUser(t, "alice", "Castle99aa", auth.RoleAdmin)

	resp := env.do(t, http.MethodPost, "/api/v1/auth/login", "",
		LoginRequest{Username: "alice", Password: "Castle99aa"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login := decodeAs[LoginResponse](t, resp)

	assert.NotEmpty(t, login.AccessToken)
	assert.NotEmpty(t, login.RefreshToken)
	assert.Equal(t, "Bearer", login.TokenType)
	assert.Equal(t, "alice", login.User.Username)
	assert.NotNil(t, login.User.LastLoginAt)

	me := env.do(t, http.MethodGet, "/api/v1/auth/me", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, me.StatusCode)
	profile := decodeAs[AdminUserResponse](t, me)
	assert.Equal(t, "alice", profile.Username)
	assert.Equal(t, auth.RoleAdmin, profile.Role)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.createAdminUser(t, "bob", "Harbor22aa", auth.RoleReadOnly)

	resp := env.do(t, http.MethodPost, "/api/v1/auth/login", "",
		LoginRequest{Username: "bob", Password: "wrong-password"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Unknown usernames get the same answer as bad passwords.
	resp = env.do(t, http.MethodPost, "/api/v1/auth/login", "",
		LoginRequest{Username: "nobody", Password: "Harbor22aa"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestLoginLockoutAfterRepeatedFailures(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.createAdminUser(t, "carol", "Meadow33aa", auth.RoleAdmin)

	for range models.LockoutThreshold {
		resp := env.do(t, http.MethodPost, "/api/v1/auth/login", "",
			LoginRequest{Username: "carol", Password: "bad-guess"})
		resp.Body.Close()
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	// The right password no longer helps inside the lockout window.
	resp := env.do(t, http.MethodPost, "/api/v1/auth/login", "",
		LoginRequest{Username: "carol", Password: "Meadow33aa"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestRefreshReissuesTokens(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.createAdminUser(t, "dave", "Orchard44aa", auth.RoleAdmin)

	resp := env.do(t, http.MethodPost, "/api/v1/auth/login", "",
		LoginRequest{Username: "dave", Password: "Orchard44aa"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login := decodeAs[LoginResponse](t, resp)

	refreshed := env.do(t, http.MethodPost, "/api/v1/auth/refresh", "",
		RefreshRequest{RefreshToken: login.RefreshToken})
	require.Equal(t, http.StatusOK, refreshed.StatusCode)
	next := decodeAs[LoginResponse](t, refreshed)
	assert.NotEmpty(t, next.AccessToken)

	me := env.do(t, http.MethodGet, "/api/v1/auth/me", next.AccessToken, nil)
	defer me.Body.Close()
	assert.Equal(t, http.StatusOK, me.StatusCode)
}

func TestChangePasswordBlocksRecentReuse(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	env.createAdminUser(t, "erin", "Winter55aa", auth.RoleAdmin)
	token := env.adminToken(t, "erin", auth.RoleAdmin)

	resp := env.do(t, http.MethodPost, "/api/v1/auth/change-password", token,
		ChangePasswordRequest{CurrentPassword: "Winter55aa", NewPassword: "Summer66bb"})
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// The previous password sits in the history now.
	resp = env.do(t, http.MethodPost, "/api/v1/auth/change-password", token,
		ChangePasswordRequest{CurrentPassword: "Summer66bb", NewPassword: "Winter55aa"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	login := env.do(t, http.MethodPost, "/api/v1/auth/login", "",
		LoginRequest{Username: "erin", Password: "Summer66bb"})
	login.Body.Close()
	assert.Equal(t, http.StatusOK, login.StatusCode)
}

func TestOAuthClientCredentialsFlow(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	root := env.adminToken(t, "root", auth.RoleSuperAdmin)

	created := env.do(t, http.MethodPost, "/api/v1/service-accounts", root,
		CreateServiceAccountRequest{Name: "ingester-prod", Role: auth.RoleOperator})
	require.Equal(t, http.StatusCreated, created.StatusCode)
	sa := decodeAs[secretResponse](t, created)

	require.NotEmpty(t, sa.ClientSecret)
	require.True(t, strings.HasPrefix(sa.ServiceAccount.ClientID, auth.ServiceAccountClientPrefix))
	assert.Empty(t, sa.ServiceAccount.ClientSecretHash, "hash never leaves the server")

	resp := env.postForm(t, "/api/v1/oauth/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {sa.ServiceAccount.ClientID},
		"client_secret": {sa.ClientSecret},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	token := decodeAs[tokenResponse](t, resp)
	assert.Equal(t, "Bearer", token.TokenType)
	assert.NotEmpty(t, token.AccessToken)

	list := env.do(t, http.MethodGet, "/api/v1/files", token.AccessToken, nil)
	list.Body.Close()
	assert.Equal(t, http.StatusOK, list.StatusCode)
}

func TestOAuthErrorShapes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	resp := env.postForm(t, "/api/v1/oauth/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {"sa_unknown"},
		"client_secret": {"whatever"},
	})
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	oautherr := decodeAs[oauthError](t, resp)
	assert.Equal(t, oauthInvalidClient, oautherr.Error)

	resp = env.postForm(t, "/api/v1/oauth/token", url.Values{
		"grant_type": {"password"},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	oautherr = decodeAs[oauthError](t, resp)
	assert.Equal(t, oauthUnsupportedGrantType, oautherr.Error)

	resp = env.postForm(t, "/api/v1/oauth/token", url.Values{
		"grant_type": {"client_credentials"},
	})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	oautherr = decodeAs[oauthError](t, resp)
	assert.Equal(t, oauthInvalidRequest, oautherr.Error)
}

func TestServiceAccountSecretRotation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	root := env.adminToken(t, "root", auth.RoleSuperAdmin)

	created := env.do(t, http.MethodPost, "/api/v1/service-accounts", root,
		CreateServiceAccountRequest{Name: "reporting"})
	require.Equal(t, http.StatusCreated, created.StatusCode)
	sa := decodeAs[secretResponse](t, created)
	id := sa.ServiceAccount.ID

	// Rotating back to the current secret is refused.
	reuse := env.do(t, http.MethodPost, "/api/v1/service-accounts/"+id+"/rotate-secret", root,
		RotateSecretRequest{ClientSecret: sa.ClientSecret})
	reuse.Body.Close()
	assert.Equal(t, http.StatusBadRequest, reuse.StatusCode)

	rotated := env.do(t, http.MethodPost, "/api/v1/service-accounts/"+id+"/rotate-secret", root, nil)
	require.Equal(t, http.StatusOK, rotated.StatusCode)
	next := decodeAs[secretResponse](t, rotated)
	require.NotEmpty(t, next.ClientSecret)
	require.NotEqual(t, sa.ClientSecret, next.ClientSecret)

	// Old secret dies with the rotation.
	resp := env.postForm(t, "/api/v1/oauth/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {sa.ServiceAccount.ClientID},
		"client_secret": {sa.ClientSecret},
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.postForm(t, "/api/v1/oauth/token", url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {sa.ServiceAccount.ClientID},
		"client_secret": {next.ClientSecret},
	})
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStorageElementLifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	root := env.adminToken(t, "root", auth.RoleAdmin)

	created := env.do(t, http.MethodPost, "/api/v1/storage-elements", root,
		CreateStorageElementRequest{
			ElementID:     "nas-01",
			Name:          "Primary NAS",
			APIURL:        "http://nas-01:8080",
			Mode:          "rw",
			CapacityBytes: 1 << 40,
			Priority:      10,
		})
	require.Equal(t, http.StatusCreated, created.StatusCode)
	element := decodeAs[models.StorageElement](t, created)
	assert.Equal(t, registry.ModeRW, element.Mode)
	assert.Equal(t, registry.StatusOffline, element.Status)

	// Every registry mutation republished the topology mirror.
	snapshot, err := env.mini.Get(registry.SnapshotKey)
	require.NoError(t, err)
	assert.Contains(t, snapshot, "nas-01")
	assert.Contains(t, snapshot, admin.ActionElementCreated)

	dup := env.do(t, http.MethodPost, "/api/v1/storage-elements", root,
		CreateStorageElementRequest{
			ElementID: "nas-01",
			Name:      "Other name",
			APIURL:    "http://other:8080",
		})
	dup.Body.Close()
	assert.Equal(t, http.StatusConflict, dup.StatusCode)

	newPriority := uint16(5)
	patched := env.do(t, http.MethodPatch, "/api/v1/storage-elements/nas-01", root,
		UpdateStorageElementRequest{Priority: &newPriority})
	require.Equal(t, http.StatusOK, patched.StatusCode)
	element = decodeAs[models.StorageElement](t, patched)
	assert.Equal(t, uint16(5), element.Priority)

	deleted := env.do(t, http.MethodDelete, "/api/v1/storage-elements/nas-01", root, nil)
	deleted.Body.Close()
	require.Equal(t, http.StatusNoContent, deleted.StatusCode)

	missing := env.do(t, http.MethodGet, "/api/v1/storage-elements/nas-01", root, nil)
	missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)
}

func TestChangeModeFollowsDegradationPath(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	root := env.adminToken(t, "root", auth.RoleAdmin)

	created := env.do(t, http.MethodPost, "/api/v1/storage-elements", root,
		CreateStorageElementRequest{
			ElementID: "nas-02",
			Name:      "Archive candidate",
			APIURL:    "http://nas-02:8080",
			Mode:      "RW",
		})
	created.Body.Close()
	require.Equal(t, http.StatusCreated, created.StatusCode)

	resp := env.do(t, http.MethodPost, "/api/v1/storage-elements/nas-02/change-mode", root,
		ChangeModeRequest{NewMode: "ro", Reason: "capacity full"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	element := decodeAs[models.StorageElement](t, resp)
	assert.Equal(t, registry.ModeRO, element.Mode)

	// RO cannot climb back to RW.
	resp = env.do(t, http.MethodPost, "/api/v1/storage-elements/nas-02/change-mode", root,
		ChangeModeRequest{NewMode: "RW"})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/storage-elements/nas-02/change-mode", root,
		ChangeModeRequest{NewMode: "RO"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var problem struct {
		Detail string `json:"detail"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&problem))
	assert.Equal(t, "Already in ro mode", problem.Detail)
}

func TestRoleEnforcement(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)

	readonly := env.adminToken(t, "viewer", auth.RoleReadOnly)
	resp := env.do(t, http.MethodPost, "/api/v1/storage-elements", readonly,
		CreateStorageElementRequest{ElementID: "x", Name: "x", APIURL: "http://x"})
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Service accounts never reach admin-user management.
	service := env.serviceToken(t, "sa_tool", auth.RoleOperator)
	resp = env.do(t, http.MethodGet, "/api/v1/admin-users", service, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// SERVICE rank may register files but not finalize them.
	low := env.serviceToken(t, "sa_low", auth.RoleService)
	resp = env.do(t, http.MethodPost, "/api/v1/files/some-id/finalize", low, nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/v1/storage-elements", "", nil)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminUserLifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	root := env.adminToken(t, "root", auth.RoleSuperAdmin)

	created := env.do(t, http.MethodPost, "/api/v1/admin-users", root,
		CreateAdminUserRequest{Username: "frank", Role: auth.RoleAdmin})
	require.Equal(t, http.StatusCreated, created.StatusCode)
	seeded := decodeAs[adminUserCreated](t, created)
	require.NotEmpty(t, seeded.Password, "generated password returned exactly once")
	assert.True(t, seeded.User.MustChangePassword)

	login := env.do(t, http.MethodPost, "/api/v1/auth/login", "",
		LoginRequest{Username: "frank", Password: seeded.Password})
	require.Equal(t, http.StatusOK, login.StatusCode)
	session := decodeAs[LoginResponse](t, login)
	assert.True(t, session.User.MustChangePassword)

	reset := env.do(t, http.MethodPost, "/api/v1/admin-users/"+seeded.User.ID+"/reset-password", root, nil)
	require.Equal(t, http.StatusOK, reset.StatusCode)
	fresh := decodeAs[adminUserCreated](t, reset)
	require.NotEmpty(t, fresh.Password)
	require.NotEqual(t, seeded.Password, fresh.Password)

	stale := env.do(t, http.MethodPost, "/api/v1/auth/login", "",
		LoginRequest{Username: "frank", Password: seeded.Password})
	stale.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, stale.StatusCode)

	relogin := env.do(t, http.MethodPost, "/api/v1/auth/login", "",
		LoginRequest{Username: "frank", Password: fresh.Password})
	relogin.Body.Close()
	assert.Equal(t, http.StatusOK, relogin.StatusCode)
}

func TestJWTKeyStatusAndManualRotation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	root := env.adminToken(t, "root", auth.RoleAdmin)

	status := env.do(t, http.MethodGet, "/api/v1/jwt-keys/status", root, nil)
	require.Equal(t, http.StatusOK, status.StatusCode)
	before := decodeAs[keyStatusResponse](t, status)
	require.Equal(t, 1, before.ActiveCount)
	require.NotEmpty(t, before.SignerVersion)

	rotate := env.do(t, http.MethodPost, "/api/v1/jwt-keys/rotate", root, nil)
	require.Equal(t, http.StatusOK, rotate.StatusCode)
	outcome := decodeAs[rotateResponse](t, rotate)
	require.True(t, outcome.Rotated)
	assert.NotEqual(t, before.SignerVersion, outcome.SignerVersion)

	status = env.do(t, http.MethodGet, "/api/v1/jwt-keys/status", root, nil)
	require.Equal(t, http.StatusOK, status.StatusCode)
	after := decodeAs[keyStatusResponse](t, status)
	assert.Equal(t, 2, after.ActiveCount, "previous key stays active through the overlap window")
	assert.Equal(t, outcome.SignerVersion, after.SignerVersion)

	// Tokens signed before the rotation still verify.
	me := env.do(t, http.MethodGet, "/api/v1/storage-elements", root, nil)
	me.Body.Close()
	assert.Equal(t, http.StatusOK, me.StatusCode)
}

func TestFileRegistryLifecycle(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	operator := env.serviceToken(t, "sa_ingester", auth.RoleOperator)

	register := env.do(t, http.MethodPost, "/api/v1/files", operator,
		RegisterFileRequest{
			FileID:           "f-100",
			OriginalFilename: "render.mp4",
			StorageFilename:  "f-100_render.mp4",
			FileSize:         2048,
			ChecksumSHA256:   strings.Repeat("ab", 32),
			RetentionPolicy:  "temporary",
			TTLDays:          30,
			StorageElementID: "nas-01",
			UploadedBy:       "alice",
		})
	require.Equal(t, http.StatusCreated, register.StatusCode)
	file := decodeAs[models.File](t, register)
	assert.Equal(t, models.RetentionTemporary, file.RetentionPolicy)
	require.NotNil(t, file.TTLExpiresAt)

	finalize := env.do(t, http.MethodPost, "/api/v1/files/f-100/finalize", operator, nil)
	require.Equal(t, http.StatusOK, finalize.StatusCode)
	file = decodeAs[models.File](t, finalize)
	assert.Equal(t, models.RetentionPermanent, file.RetentionPolicy)
	assert.Nil(t, file.TTLExpiresAt)
	assert.NotNil(t, file.FinalizedAt)

	del := env.do(t, http.MethodDelete, "/api/v1/files/f-100?reason=customer+request", operator, nil)
	require.Equal(t, http.StatusOK, del.StatusCode)
	file = decodeAs[models.File](t, del)
	require.NotNil(t, file.DeletedAt)
	assert.Equal(t, "customer request", file.DeletionReason)

	// Both registry mutations landed on the event stream in order.
	entries, err := env.client.XRange(context.Background(), events.DefaultStream, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, string(events.EventFileFinalized), entries[0].Values["event_type"])
	assert.Equal(t, "f-100", entries[0].Values["file_id"])
	assert.Contains(t, entries[0].Values["metadata"], "render.mp4")
	assert.Equal(t, string(events.EventFileDeleted), entries[1].Values["event_type"])
	assert.NotEmpty(t, entries[1].Values["deleted_at"])

	// Deleted files drop out of default listings but stay addressable.
	list := env.do(t, http.MethodGet, "/api/v1/files", operator, nil)
	require.Equal(t, http.StatusOK, list.StatusCode)
	page := decodeAs[map[string]any](t, list)
	assert.EqualValues(t, 0, page["total"])

	list = env.do(t, http.MethodGet, "/api/v1/files?include_deleted=true", operator, nil)
	require.Equal(t, http.StatusOK, list.StatusCode)
	page = decodeAs[map[string]any](t, list)
	assert.EqualValues(t, 1, page["total"])
}

func TestFileRegistryValidation(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	operator := env.serviceToken(t, "sa_ingester", auth.RoleOperator)

	resp := env.do(t, http.MethodPost, "/api/v1/files", operator,
		RegisterFileRequest{
			FileID:           "f-200",
			OriginalFilename: "a.bin",
			StorageFilename:  "f-200_a.bin",
			FileSize:         10,
			ChecksumSHA256:   "not-a-checksum",
			StorageElementID: "nas-01",
		})
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	good := RegisterFileRequest{
		FileID:           "f-201",
		OriginalFilename: "b.bin",
		StorageFilename:  "f-201_b.bin",
		FileSize:         10,
		ChecksumSHA256:   strings.Repeat("cd", 32),
		StorageElementID: "nas-01",
	}
	resp = env.do(t, http.MethodPost, "/api/v1/files", operator, good)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/v1/files", operator, good)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
