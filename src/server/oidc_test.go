package server

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const (
	testIssuer   = "https://id.example.com"
	testClientID = "photoalbum"
)

// fakeProvider serves a token endpoint that answers every code with an ID
// token for email.
func fakeProvider(t *testing.T, email string) (*oauth2.Config, *oidc.IDTokenVerifier) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	idToken, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":            testIssuer,
		"aud":            testClientID,
		"sub":            "external-1",
		"email":          email,
		"email_verified": true,
		"iat":            time.Now().Unix(),
		"exp":            time.Now().Add(time.Hour).Unix(),
	}).SignedString(key)
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "provider-access",
			"token_type":   "Bearer",
			"expires_in":   3600,
			"id_token":     idToken,
		})
	}))
	t.Cleanup(srv.Close)

	config := &oauth2.Config{
		ClientID:     testClientID,
		ClientSecret: "secret",
		RedirectURL:  baseURL + "/auth/oidc/callback",
		Endpoint:     oauth2.Endpoint{AuthURL: srv.URL + "/authorize", TokenURL: srv.URL + "/token"},
		Scopes:       []string{oidc.ScopeOpenID, "email"},
	}
	keys := &oidc.StaticKeySet{PublicKeys: []crypto.PublicKey{&key.PublicKey}}
	return config, oidc.NewVerifier(testIssuer, keys, &oidc.Config{ClientID: testClientID})
}

func TestOIDCSignIn(t *testing.T) {
	config, verifier := fakeProvider(t, "sso@corp.io")
	ts := newTestServer(t, func(o *Options) { o.OIDC = newOIDCLogin(config, verifier) })

	w, env := ts.do(http.MethodGet, "/auth/oidc/login", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login struct {
		Ref string `json:"ref"`
	}
	require.NoError(t, json.Unmarshal(env.Payload, &login))
	ref, err := url.Parse(login.Ref)
	require.NoError(t, err)
	state := ref.Query().Get("state")
	require.NotEmpty(t, state)

	w, _ = ts.do(http.MethodGet, "/auth/oidc/callback?state=wrong&code=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = ts.do(http.MethodGet, "/auth/oidc/callback?state="+url.QueryEscape(state)+"&code=abc", "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var token TokenResponse
	require.NoError(t, json.Unmarshal(env.Payload, &token))
	claims, err := ts.auth.Authenticate(token.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "sso_corp", claims.Username)
	assert.Equal(t, "sso@corp.io", claims.Email)

	// A state is good for one callback only.
	w, _ = ts.do(http.MethodGet, "/auth/oidc/callback?state="+url.QueryEscape(state)+"&code=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
