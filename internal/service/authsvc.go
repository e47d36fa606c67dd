package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"ReadyCheckserver/internal/auth"
	"ReadyCheckserver/internal/domain"
)

type AuthUsersStore interface {
	CreateUser(ctx context.Context, email, username, passwordHash string) (domain.User, error)
	GetUserByID(ctx context.Context, id string) (domain.User, error)
	GetUserByLogin(ctx context.Context, login string) (domain.UserWithPassword, error)
	GetUserByEmail(ctx context.Context, email string) (domain.UserWithPassword, error)
	GetUserByExternalAccount(ctx context.Context, provider, providerID string) (domain.User, domain.ExternalAccount, error)
	CreateUserWithExternalAccount(ctx context.Context, provider, providerID, email, username, passwordHash string) (domain.User, domain.ExternalAccount, error)
	LinkExternalAccount(ctx context.Context, userID, provider, providerID, email string) (domain.ExternalAccount, error)
	SetLastLogin(ctx context.Context, userID string, when time.Time) error
}

type SessionsStore interface {
	CreateSession(ctx context.Context, userID string, expiresAt time.Time, ip, userAgent string) (string, error)
	GetSession(ctx context.Context, sessionID string) (domain.Session, error)
	RevokeSession(ctx context.Context, sessionID string, when time.Time) error
}

type AuthService struct {
	Users      AuthUsersStore
	Sessions   SessionsStore
	SessionTTL time.Duration
	Now        func() time.Time

	GoogleWebClientID   string
	AppleServiceID      string
	VerifyGoogleIDToken func(ctx context.Context, tokenString, expectedAud string) (*auth.ExternalTokenClaims, error)
	VerifyAppleIDToken  func(ctx context.Context, tokenString, expectedAud string) (*auth.ExternalTokenClaims, error)
}

func (s *AuthService) Register(ctx context.Context, email, username, password, ip, userAgent string) (domain.User, string, error) {
	if s.Now == nil {
		s.Now = time.Now
	}

	email = strings.TrimSpace(strings.ToLower(email))
	username = strings.TrimSpace(username)

	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", err
	}

	u, err := s.Users.CreateUser(ctx, email, username, passwordHash)
	if err != nil {
		return domain.User{}, "", err
	}

	sessID, err := s.Sessions.CreateSession(ctx, u.ID, s.Now().Add(s.SessionTTL), ip, userAgent)
	if err != nil {
		return domain.User{}, "", err
	}

	return u, sessID, nil
}

func (s *AuthService) Login(ctx context.Context, login, password, ip, userAgent string) (domain.User, string, error) {
	if s.Now == nil {
		s.Now = time.Now
	}

	login = strings.TrimSpace(login)

	u, err := s.Users.GetUserByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, "", domain.ErrInvalidCredentials
		}
		return domain.User{}, "", err
	}
	if u.Status == domain.UserStatusDisabled {
		return domain.User{}, "", domain.ErrUserDisabled
	}

	ok, err := auth.VerifyPassword(u.PasswordHash, password)
	if err != nil {
		return domain.User{}, "", err
	}
	if !ok {
		return domain.User{}, "", domain.ErrInvalidCredentials
	}

	sessID, err := s.Sessions.CreateSession(ctx, u.ID, s.Now().Add(s.SessionTTL), ip, userAgent)
	if err != nil {
		return domain.User{}, "", err
	}

	_ = s.Users.SetLastLogin(ctx, u.ID, s.Now())

	return u.User, sessID, nil
}

func (s *AuthService) LoginWithGoogle(ctx context.Context, idToken, ip, userAgent string) (domain.User, string, error) {
	verify := s.VerifyGoogleIDToken
	if verify == nil {
		verify = auth.VerifyGoogleIDToken
	}
	claims, err := verify(ctx, idToken, s.GoogleWebClientID)
	if err != nil {
		return domain.User{}, "", domain.ErrInvalidCredentials
	}
	return s.loginExternal(ctx, "google", claims, ip, userAgent)
}

func (s *AuthService) LoginWithApple(ctx context.Context, idToken, ip, userAgent string) (domain.User, string, error) {
	verify := s.VerifyAppleIDToken
	if verify == nil {
		verify = auth.VerifyAppleIDToken
	}
	claims, err := verify(ctx, idToken, s.AppleServiceID)
	if err != nil {
		return domain.User{}, "", domain.ErrInvalidCredentials
	}
	return s.loginExternal(ctx, "apple", claims, ip, userAgent)
}

// loginExternal resolves a verified identity-provider claim to a local user:
// an existing link wins, then an email match gets the provider linked, and
// otherwise a fresh account is created with a generated username and an
// unusable random password.
func (s *AuthService) loginExternal(ctx context.Context, provider string, claims *auth.ExternalTokenClaims, ip, userAgent string) (domain.User, string, error) {
	if s.Now == nil {
		s.Now = time.Now
	}
	if claims.Subject == "" {
		return domain.User{}, "", domain.ErrInvalidCredentials
	}

	u, _, err := s.Users.GetUserByExternalAccount(ctx, provider, claims.Subject)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrNotFound):
		u, err = s.resolveUnlinked(ctx, provider, claims)
		if err != nil {
			return domain.User{}, "", err
		}
	default:
		return domain.User{}, "", err
	}

	if u.Status == domain.UserStatusDisabled {
		return domain.User{}, "", domain.ErrUserDisabled
	}

	sessID, err := s.Sessions.CreateSession(ctx, u.ID, s.Now().Add(s.SessionTTL), ip, userAgent)
	if err != nil {
		return domain.User{}, "", err
	}

	_ = s.Users.SetLastLogin(ctx, u.ID, s.Now())

	return u, sessID, nil
}

func (s *AuthService) resolveUnlinked(ctx context.Context, provider string, claims *auth.ExternalTokenClaims) (domain.User, error) {
	email := strings.TrimSpace(strings.ToLower(claims.Email))

	if email != "" {
		existing, err := s.Users.GetUserByEmail(ctx, email)
		switch {
		case err == nil:
			if _, linkErr := s.Users.LinkExternalAccount(ctx, existing.ID, provider, claims.Subject, email); linkErr != nil {
				return domain.User{}, linkErr
			}
			return existing.User, nil
		case errors.Is(err, domain.ErrNotFound):
		default:
			return domain.User{}, err
		}
	}

	passwordHash, err := auth.HashPassword(randomSecret())
	if err != nil {
		return domain.User{}, err
	}

	u, _, err := s.Users.CreateUserWithExternalAccount(ctx, provider, claims.Subject, email, generatedUsername(email), passwordHash)
	if err != nil {
		return domain.User{}, err
	}
	return u, nil
}

func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if s.Now == nil {
		s.Now = time.Now
	}

	return s.Sessions.RevokeSession(ctx, sessionID, s.Now())
}

func (s *AuthService) GetUserForSession(ctx context.Context, sessionID string) (domain.User, error) {
	sess, err := s.Sessions.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, domain.ErrUnauthorized
		}
		return domain.User{}, err
	}

	u, err := s.Users.GetUserByID(ctx, sess.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.User{}, domain.ErrUnauthorized
		}
		return domain.User{}, err
	}
	if u.Status == domain.UserStatusDisabled {
		return domain.User{}, domain.ErrForbidden
	}

	return u, nil
}

// generatedUsername keeps the email local part where usable and pads it with
// a random suffix to dodge collisions. Always non-empty, at most 24 chars.
func generatedUsername(email string) string {
	base := "user"
	if at := strings.IndexByte(email, '@'); at > 0 {
		local := strings.Map(func(r rune) rune {
			switch {
			case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
				return r
			case r >= 'A' && r <= 'Z':
				return r + ('a' - 'A')
			default:
				return -1
			}
		}, email[:at])
		if local != "" {
			base = local
		}
	}
	if len(base) > 16 {
		base = base[:16]
	}

	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return fmt.Sprintf("%s_%s", base, hex.EncodeToString(buf[:])[:7])
}

func randomSecret() string {
	var buf [32]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}
