// Package auth implements the token codec, the principal resolver and the
// request-scoped identity state shared by both services.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/poc/grpc-services/internal/clock"
	"github.com/poc/grpc-services/internal/config"
	"github.com/poc/grpc-services/internal/errs"
)

// Claims is the verified claim set carried by a token. UserID is the stable
// account id; the subject stays the username so either can key a lookup.
type Claims struct {
	jwt.RegisteredClaims
	UserID string   `json:"uid,omitempty"`
	Roles  []string `json:"roles,omitempty"`
}

// Username returns the token subject.
func (c *Claims) Username() string { return c.Subject }

// Codec signs and verifies tokens with a process-wide symmetric key. It is
// a pure function over (key, token) and safe for concurrent use.
type Codec struct {
	key      []byte
	issuer   string
	audience string
	method   jwt.SigningMethod
	leeway   time.Duration
	clk      clock.Clock
}

// NewCodec builds a codec from the jwt config section. The key is decoded and
// length-checked here so Issue/Verify never operate on an unusable key.
func NewCodec(cfg config.JWTConfig, clk clock.Clock) (*Codec, error) {
	key, err := cfg.DecodeSecret()
	if err != nil {
		return nil, errs.Wrap(errs.KindTokenIssuance, "signing key unusable", err)
	}
	var method jwt.SigningMethod = jwt.SigningMethodHS512
	if cfg.Algorithm == "HS256" {
		method = jwt.SigningMethodHS256
	}
	return &Codec{
		key:      key,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		method:   method,
		leeway:   cfg.Leeway(),
		clk:      clk,
	}, nil
}

// Issue mints a token for the principal with the given ttl. All mandatory
// claims are populated; roles mirror the principal's authorities.
func (c *Codec) Issue(p Principal, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errs.New(errs.KindTokenIssuance, "token ttl must be positive")
	}
	now := c.clk.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   p.Username,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: p.UserID,
		Roles:  append([]string(nil), p.Authorities...),
	}
	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.key)
	if err != nil {
		return "", errs.Wrap(errs.KindTokenIssuance, "could not sign token", err)
	}
	return signed, nil
}

// Verify parses the token, checks the MAC, issuer, audience and expiry, and
// returns the claim set. Failures carry a distinct kind per cause; there is
// no partial acceptance.
func (c *Codec) Verify(token string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg(), jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.clk.Now),
		jwt.WithLeeway(c.leeway),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	claims := &Claims{}
	_, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return c.key, nil
	})
	if err != nil {
		return nil, classifyTokenError(err)
	}
	if claims.Subject == "" {
		return nil, errs.New(errs.KindMissingRequiredClaim, "token has no subject")
	}
	if claims.IssuedAt == nil {
		return nil, errs.New(errs.KindMissingRequiredClaim, "token has no issued-at")
	}
	if claims.ExpiresAt == nil || !claims.ExpiresAt.After(claims.IssuedAt.Time) {
		return nil, errs.New(errs.KindMissingRequiredClaim, "token expiry must follow issued-at")
	}
	return claims, nil
}

func classifyTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return errs.Wrap(errs.KindExpired, "token expired", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return errs.Wrap(errs.KindBadSignature, "token signature invalid", err)
	case errors.Is(err, jwt.ErrTokenInvalidIssuer):
		return errs.Wrap(errs.KindWrongIssuer, "token issuer mismatch", err)
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return errs.Wrap(errs.KindWrongAudience, "token audience mismatch", err)
	case errors.Is(err, jwt.ErrTokenRequiredClaimMissing):
		return errs.Wrap(errs.KindMissingRequiredClaim, "token missing required claim", err)
	case errors.Is(err, jwt.ErrTokenMalformed):
		return errs.Wrap(errs.KindMalformed, "token malformed", err)
	default:
		return errs.Wrap(errs.KindMalformed, "token unparseable", err)
	}
}
