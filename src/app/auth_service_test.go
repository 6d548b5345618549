package app

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newAuthFixture(t *testing.T) (*AuthService, *memUserStore, *TokenIssuer) {
	t.Helper()
	users := newMemUserStore()
	tokens := NewTokenIssuer("test-secret", time.Hour)
	log, _ := test.NewNullLogger()
	auth := NewAuthService(users, tokens, &memRevocations{}, log)
	auth.cost = bcrypt.MinCost
	return auth, users, tokens
}

func TestUsernameFromEmail(t *testing.T) {
	username, err := UsernameFromEmail("test1234@gmail.com")
	require.NoError(t, err)
	assert.Equal(t, "test1234_gmail", username)

	username, err = UsernameFromEmail("a@b")
	require.NoError(t, err)
	assert.Equal(t, "a_b", username)

	for _, bad := range []string{"", "nope", "@x.com", "a@"} {
		_, err := UsernameFromEmail(bad)
		assert.Equal(t, KindBadRequest, KindOf(err), bad)
	}
}

func TestAuthService(t *testing.T) {
	ctx := context.Background()
	auth, users, tokens := newAuthFixture(t)

	require.NoError(t, auth.SignUp(ctx, "user@x.com", "Passw0rd!"))

	t.Run("PasswordIsHashed", func(t *testing.T) {
		user, err := users.FindByEmail(ctx, "user@x.com")
		require.NoError(t, err)
		assert.Equal(t, "user_x", user.Username)
		assert.NotEqual(t, "Passw0rd!", user.PasswordHash)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte("Passw0rd!")))
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		err := auth.SignUp(ctx, "user@x.com", "Passw0rd!")
		assert.Equal(t, KindConflict, KindOf(err))
		assert.Equal(t, "Email already exists", PublicMessage(err))
	})

	t.Run("DuplicateUsername", func(t *testing.T) {
		err := auth.SignUp(ctx, "user@x.org", "Passw0rd!")
		assert.Equal(t, KindConflict, KindOf(err))
		assert.Equal(t, "Username already exists", PublicMessage(err))
	})

	t.Run("DuplicateEmailRace", func(t *testing.T) {
		// The first lookup misses as if a concurrent sign-up committed
		// between it and the insert.
		racing := &staleEmailLookup{memUserStore: users}
		log, _ := test.NewNullLogger()
		racer := NewAuthService(racing, tokens, &memRevocations{}, log)
		racer.cost = bcrypt.MinCost

		err := racer.SignUp(ctx, "user@x.com", "Passw0rd!")
		assert.Equal(t, KindConflict, KindOf(err))
		assert.Equal(t, "Email already exists", PublicMessage(err))
	})

	t.Run("SignIn", func(t *testing.T) {
		token, err := auth.SignIn(ctx, "user@x.com", "Passw0rd!")
		require.NoError(t, err)

		claims, err := tokens.Verify(token)
		require.NoError(t, err)
		user, err := users.FindByEmail(ctx, "user@x.com")
		require.NoError(t, err)
		assert.Equal(t, user.ID, claims.Subject)
		assert.Equal(t, "user_x", claims.Username)
		assert.Equal(t, "user@x.com", claims.Email)
	})

	t.Run("SignInRejectsBadCredentials", func(t *testing.T) {
		_, wrongPassword := auth.SignIn(ctx, "user@x.com", "wrong")
		_, unknownUser := auth.SignIn(ctx, "nobody@x.com", "Passw0rd!")
		assert.Equal(t, KindUnauthorized, KindOf(wrongPassword))
		assert.Equal(t, PublicMessage(wrongPassword), PublicMessage(unknownUser))
		assert.Equal(t, "Please check your login credentials", PublicMessage(unknownUser))
	})

	t.Run("SignOutRevokes", func(t *testing.T) {
		token, err := auth.SignIn(ctx, "user@x.com", "Passw0rd!")
		require.NoError(t, err)
		claims, err := auth.Authenticate(token)
		require.NoError(t, err)

		auth.SignOut(claims)
		_, err = auth.Authenticate(token)
		assert.Equal(t, KindUnauthorized, KindOf(err))
		assert.Equal(t, "token revoked", PublicMessage(err))
	})

	t.Run("SignInExternal", func(t *testing.T) {
		token, err := auth.SignInExternal(ctx, "sso@corp.io")
		require.NoError(t, err)
		claims, err := auth.Authenticate(token)
		require.NoError(t, err)
		assert.Equal(t, "sso_corp", claims.Username)

		again, err := auth.SignInExternal(ctx, "sso@corp.io")
		require.NoError(t, err)
		second, err := auth.Authenticate(again)
		require.NoError(t, err)
		assert.Equal(t, claims.Subject, second.Subject)
	})
}

func TestTokenIssuer(t *testing.T) {
	user := &User{ID: "u1", Username: "user_x", Email: "user@x.com"}
	issuer := NewTokenIssuer("secret", time.Hour)

	t.Run("RoundTrip", func(t *testing.T) {
		token, err := issuer.Issue(user)
		require.NoError(t, err)
		claims, err := issuer.Verify(token)
		require.NoError(t, err)
		assert.Equal(t, "u1", claims.Subject)
		assert.NotEmpty(t, claims.ID)
		assert.InDelta(t, time.Hour.Seconds(), issuer.ExpiresIn(claims).Seconds(), 5)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		token, err := NewTokenIssuer("other", time.Hour).Issue(user)
		require.NoError(t, err)
		_, err = issuer.Verify(token)
		assert.Equal(t, KindUnauthorized, KindOf(err))
		assert.Equal(t, "invalid token", PublicMessage(err))
	})

	t.Run("Expired", func(t *testing.T) {
		past := NewTokenIssuer("secret", time.Minute)
		past.now = func() time.Time { return time.Now().Add(-time.Hour) }
		token, err := past.Issue(user)
		require.NoError(t, err)
		_, err = issuer.Verify(token)
		assert.Equal(t, "token expired", PublicMessage(err))
	})

	t.Run("RejectsOtherAlgorithms", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "u1"},
		}).SignedString([]byte("secret"))
		require.NoError(t, err)
		_, err = issuer.Verify(token)
		assert.Equal(t, KindUnauthorized, KindOf(err))
	})

	t.Run("Garbage", func(t *testing.T) {
		_, err := issuer.Verify("not.a.token")
		assert.Equal(t, KindUnauthorized, KindOf(err))
	})

	t.Run("ExpiresInFloor", func(t *testing.T) {
		claims := &Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))}}
		assert.Equal(t, time.Second, issuer.ExpiresIn(claims))
	})
}

func TestPendingUploads(t *testing.T) {
	pending := NewPendingUploads()
	pending.Track("u1/1-a.png", "u1", time.Minute)
	assert.Equal(t, 1, pending.Len())

	owner, ok := pending.Confirm("u1/1-a.png")
	assert.True(t, ok)
	assert.Equal(t, "u1", owner)

	_, ok = pending.Confirm("u1/1-a.png")
	assert.False(t, ok)
	assert.Zero(t, pending.Len())
}

// staleEmailLookup misses the first FindByEmail.
type staleEmailLookup struct {
	*memUserStore
	looked bool
}

func (s *staleEmailLookup) FindByEmail(ctx context.Context, email string) (*User, error) {
	if !s.looked {
		s.looked = true
		return nil, NotFoundf("user not found")
	}
	return s.memUserStore.FindByEmail(ctx, email)
}
