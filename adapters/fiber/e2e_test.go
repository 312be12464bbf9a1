package fiber

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/lborres/whisper"
	"github.com/lborres/whisper/adapters/sqlite"
	"github.com/lborres/whisper/core"
	"github.com/lborres/whisper/providers"
)

// plainHasher keeps end-to-end runs fast; hashing itself is covered in pkg/crypto
type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "plain:" + password, nil }
func (plainHasher) Verify(password, hash string) (bool, error) {
	return hash == "plain:"+password, nil
}

func googleIdP(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") != "good-code" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"at-1","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sub":"g-123","name":"Gina"}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newStack(t *testing.T) *fiber.App {
	t.Helper()

	store, err := sqlite.Open(context.Background(), nil, sqlite.Memory)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	idp := googleIdP(t)
	google := providers.Google(providers.Config{
		ClientID:     "cid",
		ClientSecret: "csecret",
		CallbackURL:  "http://localhost:3000/auth/google/secrets",
	},
		providers.WithHTTPClient(idp.Client()),
		providers.WithEndpoint(oauth2.Endpoint{
			AuthURL:   idp.URL + "/auth",
			TokenURL:  idp.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		}),
		providers.WithUserInfoURL(idp.URL+"/userinfo"),
	)

	app := fiber.New()
	_, err = whisper.New(whisper.Config{
		Secret:         "01234567890123456789012345678901",
		Database:       store,
		HTTP:           New(app, Options{}),
		Providers:      []core.OAuthProvider{google},
		PasswordHasher: plainHasher{},
	})
	require.NoError(t, err)
	return app
}

func withSession(req *http.Request, token string) *http.Request {
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: token})
	return req
}

func sessionToken(t *testing.T, resp *http.Response) string {
	t.Helper()
	c := findCookie(resp, DefaultCookieName)
	require.NotNil(t, c, "expected session cookie")
	require.NotEmpty(t, c.Value)
	return c.Value
}

func publicSecrets(t *testing.T, app *fiber.App, token string) []core.PublicSecret {
	t.Helper()
	resp := doRequest(t, app, withSession(httptest.NewRequest(http.MethodGet, "/secrets", nil), token))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body publicSecretsResponse
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &body))
	return body.Secrets
}

func TestEndToEnd_LocalAccountScenario(t *testing.T) {
	app := newStack(t)

	resp := doRequest(t, app, jsonRequest(http.MethodPost, "/register", core.RegisterInput{Username: "alice", Password: "pw1"}))
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	token := sessionToken(t, resp)

	resp = doRequest(t, app, withSession(formRequest(http.MethodPost, "/submit", url.Values{"secret": {"I like turtles"}}), token))
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	assert.Equal(t, []core.PublicSecret{{OwnerDisplayName: "alice", Text: "I like turtles"}}, publicSecrets(t, app, token))

	// same username again
	resp = doRequest(t, app, jsonRequest(http.MethodPost, "/register", core.RegisterInput{Username: "alice", Password: "other"}))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doRequest(t, app, withSession(httptest.NewRequest(http.MethodPost, "/logout", nil), token))
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)

	resp = doRequest(t, app, withSession(httptest.NewRequest(http.MethodGet, "/secrets", nil), token))
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, "/login", resp.Header.Get(fiber.HeaderLocation))

	wrong := doRequest(t, app, jsonRequest(http.MethodPost, "/login", core.LoginInput{Username: "alice", Password: "nope"}))
	unknown := doRequest(t, app, jsonRequest(http.MethodPost, "/login", core.LoginInput{Username: "bob", Password: "nope"}))
	assert.Equal(t, http.StatusUnauthorized, wrong.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, unknown.StatusCode)
	assert.Equal(t, decodeError(t, wrong), decodeError(t, unknown))

	resp = doRequest(t, app, jsonRequest(http.MethodPost, "/login", core.LoginInput{Username: "alice", Password: "pw1"}))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, publicSecrets(t, app, sessionToken(t, resp)), 1)
}

// googleLogin runs the redirect and callback legs and returns the session token
func googleLogin(t *testing.T, app *fiber.App) string {
	t.Helper()

	resp := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/auth/google", nil))
	require.Equal(t, http.StatusFound, resp.StatusCode)

	redirect, err := url.Parse(resp.Header.Get(fiber.HeaderLocation))
	require.NoError(t, err)
	state := redirect.Query().Get("state")
	require.NotEmpty(t, state)
	stateCookie := findCookie(resp, DefaultStateCookieName)
	require.NotNil(t, stateCookie)

	req := httptest.NewRequest(http.MethodGet, "/auth/google/secrets?code=good-code&state="+url.QueryEscape(state), nil)
	req.AddCookie(&http.Cookie{Name: DefaultStateCookieName, Value: stateCookie.Value})
	resp = doRequest(t, app, req)
	require.Equal(t, http.StatusSeeOther, resp.StatusCode)
	require.Equal(t, "/secrets", resp.Header.Get(fiber.HeaderLocation))

	return sessionToken(t, resp)
}

func sessionAccount(t *testing.T, app *fiber.App, token string) *core.Account {
	t.Helper()
	resp := doRequest(t, app, withSession(httptest.NewRequest(http.MethodGet, "/session", nil), token))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var data core.SessionData
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &data))
	require.NotNil(t, data.Account)
	return data.Account
}

func TestEndToEnd_GoogleLoginResolvesToOneAccount(t *testing.T) {
	app := newStack(t)

	first := sessionAccount(t, app, googleLogin(t, app))
	second := sessionAccount(t, app, googleLogin(t, app))

	assert.Equal(t, "Gina", first.DisplayName)
	assert.Equal(t, first.ID, second.ID)
}

func TestEndToEnd_GoogleCallbackFailures(t *testing.T) {
	app := newStack(t)

	tests := []struct {
		name  string
		query string
	}{
		{"denied at provider", "error=access_denied&state=x"},
		{"forged state", "code=good-code&state=forged"},
		{"bad code", "code=bad-code&state=x"},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/auth/google/secrets?"+test.query, nil)
			req.AddCookie(&http.Cookie{Name: DefaultStateCookieName, Value: "x"})

			resp := doRequest(t, app, req)

			assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
			assert.Equal(t, "/login", resp.Header.Get(fiber.HeaderLocation))
			assert.Nil(t, findCookie(resp, DefaultCookieName))
		})
	}
}

func TestEndToEnd_UnknownProvider(t *testing.T) {
	app := newStack(t)

	resp := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/auth/myspace", nil))

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.True(t, strings.Contains(decodeError(t, resp).Error, "provider"))
}
