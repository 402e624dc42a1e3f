package token

import (
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/smallbiznis/duesledger/internal/auth"
	"github.com/smallbiznis/duesledger/internal/clock"
	"github.com/smallbiznis/duesledger/internal/config"
	userdomain "github.com/smallbiznis/duesledger/internal/user/domain"
)

var (
	ErrMissingSecret = errors.New("auth: AUTH_JWT_SECRET is required")
	ErrInvalidToken  = errors.New("invalid_token")
	ErrExpiredToken  = errors.New("token_expired")
	ErrInvalidClaims = errors.New("invalid_token_claims")
)

// Claims are the access token claims shared with the identity service.
// The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Role     string `json:"role"`
	Username string `json:"username"`
}

// Issuer signs and verifies HS256 access tokens.
type Issuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	clock  clock.Clock
}

func NewIssuer(cfg config.Config) (*Issuer, error) {
	return New(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer, time.Duration(cfg.Auth.TokenTTLHours)*time.Hour, nil)
}

func New(secret, issuer string, ttl time.Duration, c clock.Clock) (*Issuer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, ErrMissingSecret
	}
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	if c == nil {
		c = clock.SystemClock{}
	}
	return &Issuer{secret: []byte(secret), issuer: issuer, ttl: ttl, clock: c}, nil
}

// Issue mints a token for p. Production tokens come from the identity
// service; this path serves tooling and tests.
func (i *Issuer) Issue(p auth.Principal) (string, time.Time, error) {
	now := i.clock.Now()
	expires := now.Add(i.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    i.issuer,
			Subject:   p.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Role:     string(p.Role),
		Username: p.Username,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expires, nil
}

// Parse verifies raw and returns the principal it names.
func (i *Issuer) Parse(raw string) (auth.Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.clock.Now),
		jwt.WithExpirationRequired(),
	}
	if i.issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.issuer))
	}

	var claims Claims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return auth.Principal{}, ErrExpiredToken
		}
		return auth.Principal{}, ErrInvalidToken
	}

	id, err := snowflake.ParseString(claims.Subject)
	if err != nil || id == 0 {
		return auth.Principal{}, ErrInvalidClaims
	}
	role := userdomain.Role(strings.ToUpper(strings.TrimSpace(claims.Role)))
	if !role.Valid() {
		return auth.Principal{}, ErrInvalidClaims
	}
	return auth.Principal{ID: id, Role: role, Username: claims.Username}, nil
}
