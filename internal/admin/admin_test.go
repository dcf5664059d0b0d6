package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idqr/qrgate/internal/clock"
	"github.com/idqr/qrgate/internal/gate"
	"github.com/idqr/qrgate/internal/identity"
	"github.com/idqr/qrgate/internal/qr"
	"github.com/idqr/qrgate/internal/session"
	"github.com/idqr/qrgate/internal/storage"
	"github.com/idqr/qrgate/internal/token"
)

// fixture wires the full request path the way the server does: session
// middleware, then the gate, then the dashboard routes.
type fixture struct {
	server   *httptest.Server
	client   *http.Client
	jar      *cookieJar
	identity *identity.Manager
	registry *token.Registry
	sessions *session.Manager
	clock    *clock.Fixed
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	s, err := storage.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	clk := &clock.Fixed{T: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	logger := slog.Default()

	idm := identity.NewManager(s, clk, logger)
	registry := token.NewRegistry(s, clk, "/dashboard", logger)
	sessStore := session.NewMemoryStore(time.Hour, clk)
	sessions := session.NewManager(sessStore, clk)

	authorizer := gate.New(idm,
		[]string{"/", "/login", "/logout", "/blocked", "/healthz", "/readyz"},
		[]string{"/scan/"},
		logger)

	h := NewHandler(registry, idm, sessions, qr.NewPNGRenderer(64), s, "http://gate.test", new(slog.LevelVar), logger)

	r := chi.NewRouter()
	r.Use(session.Middleware(sessStore, logger))
	r.Use(gate.Middleware(authorizer, sessions))

	r.Get("/", h.HandleEntry)
	r.Get("/healthz", h.HandleHealth)
	r.Get("/readyz", h.HandleReady)
	r.Get("/blocked", h.HandleBlockedPage)
	r.Post("/login", h.HandleLogin)
	r.Post("/logout", h.HandleLogout)
	r.Mount("/dashboard/api", h.Routes())
	r.HandleFunc("/dashboard/*", h.HandleModulePage)

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	jar := newCookieJar()
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &fixture{
		server:   server,
		client:   client,
		jar:      jar,
		identity: idm,
		registry: registry,
		sessions: sessions,
		clock:    clk,
	}
}

// sessionID returns the client's current session cookie value.
func (f *fixture) sessionID(t *testing.T) string {
	t.Helper()
	for _, c := range f.jar.cookies {
		if c.Name == session.CookieName {
			return c.Value
		}
	}
	t.Fatalf("client has no session cookie")
	return ""
}

// cookieJar is a minimal jar: one cookie set, all paths.
type cookieJar struct {
	cookies []*http.Cookie
}

func newCookieJar() *cookieJar { return &cookieJar{} }

func (j *cookieJar) SetCookies(_ *url.URL, cookies []*http.Cookie) {
	for _, c := range cookies {
		replaced := false
		for i, existing := range j.cookies {
			if existing.Name == c.Name {
				j.cookies[i] = c
				replaced = true
			}
		}
		if !replaced {
			j.cookies = append(j.cookies, c)
		}
	}
}

func (j *cookieJar) Cookies(_ *url.URL) []*http.Cookie { return j.cookies }

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

// login creates an account with the given role and logs the client in.
func (f *fixture) login(t *testing.T, role string) *storage.Account {
	t.Helper()

	account, code, err := f.identity.CreateAccount(context.Background(), role)
	require.NoError(t, err)

	resp := f.loginWithCode(t, code)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return account
}

func (f *fixture) loginWithCode(t *testing.T, code string) *http.Response {
	t.Helper()

	form := url.Values{"code": {code}}
	req, err := http.NewRequest(http.MethodPost, f.server.URL+"/login", strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestLoginSuccess(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	account, code, err := f.identity.CreateAccount(context.Background(), storage.RoleAdmin)
	require.NoError(t, err)

	resp := f.loginWithCode(t, code)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeJSON(t, resp, &body)
	assert.Equal(t, account.ID, body["account_id"])
	assert.Equal(t, storage.RoleAdmin, body["role"])

	// The session now carries the identity
	resp = f.do(t, http.MethodGet, "/dashboard/api/whoami", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var who WhoamiResponse
	decodeJSON(t, resp, &who)
	assert.Equal(t, account.ID, who.AccountID)
	assert.True(t, who.Admin)
}

func TestLoginInvalidCode(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	resp := f.loginWithCode(t, "not-a-real-code")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var apiErr APIError
	decodeJSON(t, resp, &apiErr)
	assert.Equal(t, ErrCodeInvalidCredentials, apiErr.Error)
}

// A valid code does not help a blocked account: login explains the block
// instead of opening a session.
func TestLoginBlockedAccount(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	account, code, err := f.identity.CreateAccount(ctx, storage.RoleUser)
	require.NoError(t, err)
	require.NoError(t, f.identity.Block(ctx, account.ID))

	resp := f.loginWithCode(t, code)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	var body map[string]string
	decodeJSON(t, resp, &body)
	assert.Equal(t, "account_blocked", body["error"])
}

func TestLoginFrozenAccount(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	account, code, err := f.identity.CreateAccount(ctx, storage.RoleUser)
	require.NoError(t, err)
	require.NoError(t, f.identity.Freeze(ctx, account.ID, time.Hour))

	resp := f.loginWithCode(t, code)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	var body map[string]string
	decodeJSON(t, resp, &body)
	assert.Equal(t, "account_frozen", body["error"])
	assert.NotEmpty(t, body["frozen_until"])
}

func TestLogoutKeepsGrant(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.login(t, storage.RoleUser)

	sid := f.sessionID(t)
	f.sessions.IssueGrant(context.Background(), sid, "/dashboard/area")

	resp := f.do(t, http.MethodPost, "/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Identity gone: paths outside the grant redirect again
	resp = f.do(t, http.MethodGet, "/dashboard/api/whoami", nil)
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)

	// The grant survives logout
	resp = f.do(t, http.MethodGet, "/dashboard/area", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeJSON(t, resp, &body)
	assert.Equal(t, "/dashboard/area", body["page"])
}

func TestTokenLifecycle(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.login(t, storage.RoleAdmin)

	// Create
	resp := f.do(t, http.MethodPost, "/dashboard/api/tokens", CreateTokenRequest{Target: "/dashboard/business"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created TokenResponse
	decodeJSON(t, resp, &created)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "/dashboard/business", created.Target)
	assert.Equal(t, "http://gate.test/scan/"+created.ID, created.ScanURL)
	assert.Zero(t, created.ScanCount)

	// List
	resp = f.do(t, http.MethodGet, "/dashboard/api/tokens", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed []TokenResponse
	decodeJSON(t, resp, &listed)
	require.Len(t, listed, 1)

	// Get
	resp = f.do(t, http.MethodGet, "/dashboard/api/tokens/"+created.ID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Image
	resp = f.do(t, http.MethodGet, "/dashboard/api/tokens/"+created.ID+"/image", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	img, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(img, []byte{0x89, 'P', 'N', 'G'}))

	// Delete
	resp = f.do(t, http.MethodDelete, "/dashboard/api/tokens/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/dashboard/api/tokens/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateTokenInvalidTarget(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.login(t, storage.RoleAdmin)

	for _, target := range []string{"https://evil.example/x", "/outside", ""} {
		resp := f.do(t, http.MethodPost, "/dashboard/api/tokens", CreateTokenRequest{Target: target})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode, target)

		var apiErr APIError
		decodeJSON(t, resp, &apiErr)
		assert.Equal(t, ErrCodeInvalidTarget, apiErr.Error, target)
	}
}

// A user sees and deletes only their own tokens.
func TestTokenOwnerVisibility(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	other, err := f.registry.Create(ctx, "someone-else", "/dashboard/other")
	require.NoError(t, err)

	f.login(t, storage.RoleUser)

	resp := f.do(t, http.MethodPost, "/dashboard/api/tokens", CreateTokenRequest{Target: "/dashboard/mine"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/dashboard/api/tokens", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listed []TokenResponse
	decodeJSON(t, resp, &listed)
	require.Len(t, listed, 1)
	assert.Equal(t, "/dashboard/mine", listed[0].Target)

	resp = f.do(t, http.MethodGet, "/dashboard/api/tokens/"+other.ID, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/dashboard/api/tokens/"+other.ID, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestAccountManagementRequiresAdmin(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.login(t, storage.RoleUser)

	resp := f.do(t, http.MethodPost, "/dashboard/api/accounts", CreateAccountRequest{Role: storage.RoleUser})
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	var apiErr APIError
	decodeJSON(t, resp, &apiErr)
	assert.Equal(t, ErrCodeAdminRequired, apiErr.Error)
}

func TestAccountPunitiveFlow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.login(t, storage.RoleAdmin)

	// Create a user account through the API
	resp := f.do(t, http.MethodPost, "/dashboard/api/accounts", CreateAccountRequest{Role: storage.RoleUser})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created map[string]string
	decodeJSON(t, resp, &created)
	userID := created["account_id"]
	require.NotEmpty(t, userID)
	require.NotEmpty(t, created["access_code"])

	// Block
	resp = f.do(t, http.MethodPost, "/dashboard/api/accounts/"+userID+"/block", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	check, err := f.identity.CheckAccount(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, identity.StateBlocked, check.State)

	// Unblock
	resp = f.do(t, http.MethodPost, "/dashboard/api/accounts/"+userID+"/unblock", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// Freeze
	resp = f.do(t, http.MethodPost, "/dashboard/api/accounts/"+userID+"/freeze", FreezeRequest{Duration: "2h"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	check, err = f.identity.CheckAccount(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, identity.StateFrozen, check.State)

	// Unfreeze
	resp = f.do(t, http.MethodPost, "/dashboard/api/accounts/"+userID+"/unfreeze", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	check, err = f.identity.CheckAccount(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, identity.StateActive, check.State)
}

func TestFreezeRejectsBadDuration(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	admin := f.login(t, storage.RoleAdmin)

	for _, d := range []string{"", "soon", "-1h"} {
		resp := f.do(t, http.MethodPost, "/dashboard/api/accounts/"+admin.ID+"/freeze", FreezeRequest{Duration: d})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, d)
	}
}

func TestIPBlockFlow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	f.login(t, storage.RoleAdmin)

	resp := f.do(t, http.MethodPost, "/dashboard/api/ips/block", BlockIPRequest{IP: "198.51.100.20", Reason: "abuse", Duration: "1h"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	check, err := f.identity.CheckIP(ctx, "198.51.100.20")
	require.NoError(t, err)
	assert.True(t, check.Blocked)

	resp = f.do(t, http.MethodPost, "/dashboard/api/ips/unblock", UnblockIPRequest{IP: "198.51.100.20"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/dashboard/api/ips/unblock", UnblockIPRequest{IP: "198.51.100.20"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/readyz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeJSON(t, resp, &body)
	assert.Equal(t, "connected", body["database"])
}

func TestSetLogLevel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.login(t, storage.RoleAdmin)

	resp := f.do(t, http.MethodPost, "/dashboard/api/loglevel", SetLogLevelRequest{Level: "debug"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/dashboard/api/loglevel", SetLogLevelRequest{Level: "verbose"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// The dashboard pages themselves answer through the gate: anonymous callers
// bounce to the entry point, admins get the page.
func TestModulePageThroughGate(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/dashboard/business", nil)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/", resp.Header.Get("Location"))

	f.login(t, storage.RoleAdmin)

	resp = f.do(t, http.MethodGet, "/dashboard/business", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeJSON(t, resp, &body)
	assert.Equal(t, "/dashboard/business", body["page"])
}

func TestBlockedPageExplainsState(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	account := f.login(t, storage.RoleUser)
	require.NoError(t, f.identity.Block(ctx, account.ID))

	resp := f.do(t, http.MethodGet, "/blocked", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	decodeJSON(t, resp, &body)
	assert.Equal(t, "denied", body["status"])
	assert.Equal(t, "account_blocked", body["reason"])
}
