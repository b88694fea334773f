package workspacetoken

import (
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	defaultIssuer   = "ai-assistant"
	defaultAudience = "ai-assistant-workspace"
	defaultLeeway   = 30 * time.Second
	defaultTTL      = 24 * time.Hour
)

// ErrSubjectMissing is returned for tokens without a workspace subject.
var ErrSubjectMissing = errors.New("token subject missing")

// Config configures HS256 workspace tokens.
type Config struct {
	Secret   string
	Issuer   string
	Audience string
	Leeway   time.Duration
	TTL      time.Duration
}

// Codec signs and verifies workspace tokens. The subject is the workspace id.
type Codec struct {
	secret   []byte
	issuer   string
	audience string
	leeway   time.Duration
	ttl      time.Duration
	now      func() time.Time
}

// New creates a codec; the secret is required.
func New(cfg Config) (*Codec, error) {
	secret := strings.TrimSpace(cfg.Secret)
	if secret == "" {
		return nil, errors.New("workspace token secret is required")
	}
	c := &Codec{
		secret:   []byte(secret),
		issuer:   strings.TrimSpace(cfg.Issuer),
		audience: strings.TrimSpace(cfg.Audience),
		leeway:   cfg.Leeway,
		ttl:      cfg.TTL,
		now:      time.Now,
	}
	if c.issuer == "" {
		c.issuer = defaultIssuer
	}
	if c.audience == "" {
		c.audience = defaultAudience
	}
	if c.leeway <= 0 {
		c.leeway = defaultLeeway
	}
	if c.ttl <= 0 {
		c.ttl = defaultTTL
	}
	return c, nil
}

// Sign issues a token for workspaceID.
func (c *Codec) Sign(workspaceID string) (string, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return "", ErrSubjectMissing
	}
	now := c.now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    c.issuer,
		Subject:   workspaceID,
		Audience:  jwt.ClaimStrings{c.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

// VerifySubject validates the token and returns the workspace id.
func (c *Codec) VerifySubject(token string) (string, error) {
	claims := jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(c.leeway),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return "", err
	}
	if !parsed.Valid {
		return "", errors.New("invalid token")
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", ErrSubjectMissing
	}
	return subject, nil
}
