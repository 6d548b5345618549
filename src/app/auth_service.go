package app

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

type (
	// UserStore persists accounts. Lookups of absent users fail with KindNotFound,
	// duplicate email or username with KindConflict.
	UserStore interface {
		Create(ctx context.Context, user *User) error
		FindByEmail(ctx context.Context, email string) (*User, error)
		FindByID(ctx context.Context, id string) (*User, error)
	}

	// RevocationList remembers signed-out token ids until they expire.
	RevocationList interface {
		Revoke(tokenID string, ttl time.Duration)
		IsRevoked(tokenID string) bool
	}

	AuthService struct {
		users   UserStore
		tokens  *TokenIssuer
		revoked RevocationList
		log     logrus.FieldLogger
		cost    int
	}
)

func NewAuthService(users UserStore, tokens *TokenIssuer, revoked RevocationList, log logrus.FieldLogger) *AuthService {
	return &AuthService{
		users:   users,
		tokens:  tokens,
		revoked: revoked,
		log:     log.WithField("component", "auth"),
		cost:    bcrypt.DefaultCost,
	}
}

// UsernameFromEmail derives "<local>_<first domain label>", e.g.
// test1234_gmail for test1234@gmail.com.
func UsernameFromEmail(email string) (string, error) {
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" {
		return "", BadRequestf("email must be a valid email address")
	}
	domainName, _, _ := strings.Cut(domain, ".")
	return local + "_" + domainName, nil
}

func (a *AuthService) SignUp(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	username, err := UsernameFromEmail(email)
	if err != nil {
		return err
	}
	if _, err := a.users.FindByEmail(ctx, email); err == nil {
		return Conflictf("Email already exists")
	} else if KindOf(err) != KindNotFound {
		return err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return Internal("failed to hash password", err)
	}
	user := &User{Email: email, Username: username, PasswordHash: string(hashed)}
	if err := a.users.Create(ctx, user); err != nil {
		if KindOf(err) != KindConflict {
			return err
		}
		// A concurrent sign-up may have taken the email after the lookup above.
		if _, findErr := a.users.FindByEmail(ctx, email); findErr == nil {
			return Conflictf("Email already exists")
		}
		return Conflictf("Username already exists")
	}
	a.log.WithField("user", user.ID).Info("user signed up")
	return nil
}

// SignIn checks the credentials and returns a signed access token.
func (a *AuthService) SignIn(ctx context.Context, email, password string) (string, error) {
	user, err := a.users.FindByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if KindOf(err) == KindNotFound {
			return "", Unauthorizedf("Please check your login credentials")
		}
		return "", err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", Unauthorizedf("Please check your login credentials")
	}
	return a.tokens.Issue(user)
}

// SignInExternal issues a token for an identity verified elsewhere (OIDC),
// creating the account on first sign-in. Such accounts get an unusable
// random password.
func (a *AuthService) SignInExternal(ctx context.Context, email string) (string, error) {
	user, err := a.users.FindByEmail(ctx, email)
	if err != nil && KindOf(err) != KindNotFound {
		return "", err
	}
	if user == nil {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return "", Internal("failed to generate password", err)
		}
		if err := a.SignUp(ctx, email, base64.RawURLEncoding.EncodeToString(secret)); err != nil {
			return "", err
		}
		if user, err = a.users.FindByEmail(ctx, email); err != nil {
			return "", err
		}
	}
	return a.tokens.Issue(user)
}

// Authenticate verifies token and rejects signed-out tokens.
func (a *AuthService) Authenticate(token string) (*Claims, error) {
	claims, err := a.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	if a.revoked.IsRevoked(claims.ID) {
		return nil, Unauthorizedf("token revoked")
	}
	return claims, nil
}

// SignOut revokes the token described by claims until it expires.
func (a *AuthService) SignOut(claims *Claims) {
	a.revoked.Revoke(claims.ID, a.tokens.ExpiresIn(claims))
	a.log.WithField("user", claims.Subject).Info("user signed out")
}
