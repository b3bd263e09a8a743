package security

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/oksasatya/go-ddd-auth/internal/domain/apperror"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

var ErrMissingSubject = errors.New("token claims require a non-empty sub")

// reserved claims are always set by the service and override caller input.
var reserved = []string{"exp", "iat", "nbf", "type", "iss", "aud", "jti"}

// TokenConfig configures the signing key and registered claims.
type TokenConfig struct {
	Secret    string
	Algorithm string
	Issuer    string
	Audience  string
}

// TokenService issues and verifies HMAC-signed JWTs. It keeps no state besides
// its configuration and is safe for concurrent use.
type TokenService struct {
	secret   []byte
	method   *jwt.SigningMethodHMAC
	issuer   string
	audience string
	now      func() time.Time
}

// TokenOption customises a TokenService.
type TokenOption func(*TokenService)

// WithTokenClock overrides the clock used to stamp and check tokens.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(s *TokenService) { s.now = now }
}

func NewTokenService(cfg TokenConfig, opts ...TokenOption) (*TokenService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("token secret is required")
	}
	var m *jwt.SigningMethodHMAC
	switch cfg.Algorithm {
	case "", "HS256":
		m = jwt.SigningMethodHS256
	case "HS384":
		m = jwt.SigningMethodHS384
	case "HS512":
		m = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("unsupported token algorithm %q", cfg.Algorithm)
	}
	s := &TokenService{
		secret:   []byte(cfg.Secret),
		method:   m,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

// CreateAccessToken signs claims as an access token valid for ttl.
func (s *TokenService) CreateAccessToken(claims map[string]any, ttl time.Duration) (string, error) {
	return s.create(claims, ttl, TokenTypeAccess)
}

// CreateRefreshToken signs claims as a refresh token valid for ttl.
func (s *TokenService) CreateRefreshToken(claims map[string]any, ttl time.Duration) (string, error) {
	return s.create(claims, ttl, TokenTypeRefresh)
}

func (s *TokenService) create(claims map[string]any, ttl time.Duration, typ string) (string, error) {
	if sub, _ := claims["sub"].(string); sub == "" {
		return "", ErrMissingSubject
	}
	mc := make(jwt.MapClaims, len(claims)+len(reserved))
	for k, v := range claims {
		mc[k] = v
	}
	for _, k := range reserved {
		delete(mc, k)
	}
	now := s.now().Unix()
	mc["iat"] = now
	mc["nbf"] = now
	mc["exp"] = now + int64(ttl/time.Second)
	mc["type"] = typ
	mc["jti"] = uuid.NewString()
	if s.issuer != "" {
		mc["iss"] = s.issuer
	}
	if s.audience != "" {
		mc["aud"] = s.audience
	}
	signed, err := jwt.NewWithClaims(s.method, mc).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// VerifyToken checks signature, time window, issuer and audience and returns
// the claims. Every failure is reported as apperror.ErrTokenInvalid.
func (s *TokenService) VerifyToken(token string) (map[string]any, error) {
	now := s.now()
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}
	mc := jwt.MapClaims{}
	tok, err := jwt.NewParser(opts...).ParseWithClaims(token, mc, func(*jwt.Token) (any, error) {
		return s.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, apperror.ErrTokenInvalid
	}
	return normalize(mc), nil
}

// DecodeToken returns the claims without verifying the signature. Use only
// for introspection of tokens that are verified elsewhere.
func (s *TokenService) DecodeToken(token string) (map[string]any, error) {
	mc := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, mc); err != nil {
		return nil, apperror.ErrTokenInvalid
	}
	return normalize(mc), nil
}

// IsExpired reports whether the token's exp is at or before now. Tokens that
// cannot be decoded or carry no exp count as expired.
func (s *TokenService) IsExpired(token string) bool {
	exp, ok := s.GetExpiry(token)
	if !ok {
		return true
	}
	return !s.now().Before(exp)
}

// GetExpiry returns the token's exp claim.
func (s *TokenService) GetExpiry(token string) (time.Time, bool) {
	claims, err := s.DecodeToken(token)
	if err != nil {
		return time.Time{}, false
	}
	exp, ok := NumericClaim(claims, "exp")
	if !ok {
		return time.Time{}, false
	}
	return time.Unix(exp, 0).UTC(), true
}

// NumericClaim reads an integer claim regardless of how it was decoded.
func NumericClaim(claims map[string]any, key string) (int64, bool) {
	switch v := claims[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i, true
		}
		if f, err := v.Float64(); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}

func normalize(mc jwt.MapClaims) map[string]any {
	out := make(map[string]any, len(mc))
	for k, v := range mc {
		out[k] = v
	}
	for _, k := range []string{"exp", "iat", "nbf"} {
		if n, ok := NumericClaim(out, k); ok {
			out[k] = n
		}
	}
	return out
}
