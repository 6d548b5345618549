package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	app "photoalbum/src/app"
	cfg "photoalbum/src/configuration"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/oauth2"
)

type (
	SignUpBody struct {
		Email    string `json:"email" binding:"required,email"`
		Password string `json:"password" binding:"required,password"`
	}

	SignInBody struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}

	TokenResponse struct {
		AccessToken string `json:"accessToken"`
	}

	// OIDCLogin is the optional authorization-code sign-in against an
	// external identity provider.
	OIDCLogin struct {
		config   *oauth2.Config
		verifier *oidc.IDTokenVerifier
		states   *cache.Cache
	}
)

const oidcStateTTL = 10 * time.Minute

func randString(nByte int) (string, error) {
	b := make([]byte, nByte)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// NewOIDCLogin discovers the provider at props.OIDCIssuer.
func NewOIDCLogin(ctx context.Context, props cfg.AuthProperties) (*OIDCLogin, error) {
	provider, err := oidc.NewProvider(ctx, props.OIDCIssuer)
	if err != nil {
		return nil, fmt.Errorf("error creating OIDC provider %s: %w", props.OIDCIssuer, err)
	}
	config := &oauth2.Config{
		ClientID:     props.OIDCClientID,
		ClientSecret: props.OIDCSecret,
		RedirectURL:  props.OIDCRedirect,
		Endpoint:     provider.Endpoint(),
		Scopes:       []string{oidc.ScopeOpenID, "email"},
	}
	return newOIDCLogin(config, provider.Verifier(&oidc.Config{ClientID: props.OIDCClientID})), nil
}

func newOIDCLogin(config *oauth2.Config, verifier *oidc.IDTokenVerifier) *OIDCLogin {
	return &OIDCLogin{
		config:   config,
		verifier: verifier,
		states:   cache.New(oidcStateTTL, time.Minute),
	}
}

func (s *Server) SignUp(c *gin.Context) {
	var body SignUpBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.respondBindError(c, err)
		return
	}
	if err := s.auth.SignUp(c.Request.Context(), body.Email, body.Password); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"status": "success"})
}

func (s *Server) SignIn(c *gin.Context) {
	var body SignInBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.respondBindError(c, err)
		return
	}
	token, err := s.auth.SignIn(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "payload": TokenResponse{AccessToken: token}})
}

func (s *Server) SignOut(c *gin.Context) {
	claims, err := claimsOf(c)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.auth.SignOut(claims)
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

// OIDCSignIn returns the provider URL the client should be sent to.
func (s *Server) OIDCSignIn(c *gin.Context) {
	state, err := randString(16)
	if err != nil {
		s.respondError(c, app.Internal("failed to start sign-in", err))
		return
	}
	s.oidc.states.Set(state, struct{}{}, cache.DefaultExpiration)
	c.JSON(http.StatusOK, gin.H{"status": "success", "payload": gin.H{"ref": s.oidc.config.AuthCodeURL(state)}})
}

// OIDCCallback exchanges the authorization code, verifies the ID token and
// signs the user in by its email claim.
func (s *Server) OIDCCallback(c *gin.Context) {
	state := c.Query("state")
	if _, ok := s.oidc.states.Get(state); !ok || state == "" {
		s.respondError(c, app.BadRequestf("no current state found"))
		return
	}
	s.oidc.states.Delete(state)

	ctx := c.Request.Context()
	token, err := s.oidc.config.Exchange(ctx, c.Query("code"))
	if err != nil {
		s.respondError(c, &app.Error{Kind: app.KindUnauthorized, Message: "failed to exchange authorization code", Err: err})
		return
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		s.respondError(c, app.Unauthorizedf("no ID token found in token response"))
		return
	}
	idToken, err := s.oidc.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		s.respondError(c, &app.Error{Kind: app.KindUnauthorized, Message: "invalid ID token", Err: err})
		return
	}
	var claims struct {
		Email    string `json:"email"`
		Verified *bool  `json:"email_verified"`
	}
	if err := idToken.Claims(&claims); err != nil {
		s.respondError(c, &app.Error{Kind: app.KindUnauthorized, Message: "invalid ID token claims", Err: err})
		return
	}
	if claims.Email == "" || (claims.Verified != nil && !*claims.Verified) {
		s.respondError(c, app.Unauthorizedf("a verified email is required"))
		return
	}

	access, err := s.auth.SignInExternal(ctx, claims.Email)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "payload": TokenResponse{AccessToken: access}})
}
