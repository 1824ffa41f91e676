package auth

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"taskboard/domain"
)

var (
	ErrMissingAuthorization = errors.New("missing authorization header")
	ErrBadAuthorization     = errors.New("bad auth header")
)

const (
	defaultTokenTTL     = 24 * time.Hour
	defaultJWKSCacheTTL = 15 * time.Minute
	bearerPrefix        = "Bearer "
)

// Tokens issues HS256 session tokens and validates incoming bearer tokens.
// When a JWKS is configured, RS256 tokens from an external identity provider
// are accepted as well.
type Tokens struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
	JWKS     *keyfunc.JWKS

	parser      *jwt.Parser
	now         func() time.Time
	keyCache    sync.Map
	keyCacheTTL time.Duration
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

func NewTokens(secret []byte, issuer, audience string, ttl time.Duration, jwks *keyfunc.JWKS) *Tokens {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	methods := []string{"HS256"}
	if jwks != nil {
		methods = append(methods, "RS256")
	}
	return &Tokens{
		Secret:      secret,
		Issuer:      issuer,
		Audience:    audience,
		TTL:         ttl,
		JWKS:        jwks,
		parser:      jwt.NewParser(jwt.WithValidMethods(methods)),
		now:         time.Now,
		keyCacheTTL: defaultJWKSCacheTTL,
	}
}

// Issue signs a session token for u.
func (t *Tokens) Issue(u domain.User) (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.TTL)
	claims := jwt.MapClaims{
		"sub":   u.ID,
		"email": u.Email,
		"name":  u.Name,
		"iat":   now.Unix(),
		"exp":   exp.Unix(),
	}
	if t.Issuer != "" {
		claims["iss"] = t.Issuer
	}
	if t.Audience != "" {
		claims["aud"] = t.Audience
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// UserIDFromAuthHeader extracts the user identifier from the Authorization header.
func (t *Tokens) UserIDFromAuthHeader(h string) (string, error) {
	token, err := bearerToken(h)
	if err != nil {
		return "", err
	}
	return t.UserIDFromBearer(token)
}

// UserIDFromBearer validates a raw token and returns its subject.
func (t *Tokens) UserIDFromBearer(token string) (string, error) {
	if strings.Count(token, ".") != 2 {
		return "", ErrBadAuthorization
	}
	parsed, err := t.parser.Parse(token, t.keyFor)
	if err != nil {
		return "", err
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid claims")
	}

	now := t.now().Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return "", errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now+60, false) {
		return "", errors.New("token not valid yet")
	}
	if t.Audience != "" && !claims.VerifyAudience(t.Audience, true) {
		return "", errors.New("invalid audience")
	}
	if t.Issuer != "" && !claims.VerifyIssuer(t.Issuer, true) {
		return "", errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return "", errors.New("missing sub")
	}
	return sub, nil
}

func (t *Tokens) keyFor(token *jwt.Token) (any, error) {
	switch token.Method.(type) {
	case *jwt.SigningMethodHMAC:
		if len(t.Secret) == 0 {
			return nil, errors.New("signing secret not configured")
		}
		return t.Secret, nil
	case *jwt.SigningMethodRSA:
		return t.jwksKey(token)
	}
	return nil, errors.New("invalid signing method")
}

func (t *Tokens) jwksKey(token *jwt.Token) (any, error) {
	if t.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}
	kid, _ := token.Header["kid"].(string)
	if kid != "" {
		if cached, ok := t.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if t.now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			t.keyCache.Delete(kid)
		}
	}
	key, err := t.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}
	if kid != "" {
		t.keyCache.Store(kid, cachedKey{key: key, expiresAt: t.now().Add(t.keyCacheTTL)})
	}
	return key, nil
}

func bearerToken(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrMissingAuthorization
	}
	if len(raw) <= len(bearerPrefix) || !strings.HasPrefix(raw, bearerPrefix) {
		return "", ErrBadAuthorization
	}
	return raw[len(bearerPrefix):], nil
}
