package integration

import (
	"maps"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TestClaims holds the configurable claims for generating test JWT tokens.
type TestClaims struct {
	SubjectID string
	Roles     []string
	Extra     map[string]any
}

// tokenIssuer signs service tokens with a shared HMAC secret.
type tokenIssuer struct {
	secret   []byte
	issuer   string
	audience string
}

func newTokenIssuer() *tokenIssuer {
	return &tokenIssuer{
		secret:   []byte("integration-secret-0123456789abcdef"),
		issuer:   "https://host.test.coreitems.dev",
		audience: "coreitems-test",
	}
}

// GenerateToken creates a valid, signed JWT token with the given claims.
func (ti *tokenIssuer) GenerateToken(claims TestClaims) string {
	now := time.Now()
	return ti.sign(jwt.SigningMethodHS256, ti.secret, ti.mapClaims(claims, now, now.Add(time.Hour)))
}

// GenerateExpiredToken creates a JWT token that expired in the past.
func (ti *tokenIssuer) GenerateExpiredToken(claims TestClaims) string {
	now := time.Now()
	return ti.sign(jwt.SigningMethodHS256, ti.secret, ti.mapClaims(claims, now.Add(-2*time.Hour), now.Add(-time.Hour)))
}

// GenerateTokenWithSecret signs a valid claim set with another secret.
func (ti *tokenIssuer) GenerateTokenWithSecret(claims TestClaims, secret []byte) string {
	now := time.Now()
	return ti.sign(jwt.SigningMethodHS256, secret, ti.mapClaims(claims, now, now.Add(time.Hour)))
}

// GenerateTokenWithMethod signs a valid claim set with another HMAC method.
func (ti *tokenIssuer) GenerateTokenWithMethod(claims TestClaims, method jwt.SigningMethod) string {
	now := time.Now()
	return ti.sign(method, ti.secret, ti.mapClaims(claims, now, now.Add(time.Hour)))
}

func (ti *tokenIssuer) mapClaims(claims TestClaims, issuedAt, expires time.Time) jwt.MapClaims {
	mapClaims := jwt.MapClaims{
		"iss": ti.issuer,
		"aud": ti.audience,
		"iat": jwt.NewNumericDate(issuedAt),
		"exp": jwt.NewNumericDate(expires),
	}
	if claims.SubjectID != "" {
		mapClaims["sub"] = claims.SubjectID
	}
	if len(claims.Roles) > 0 {
		// Store as []any to match JWT decode behavior.
		roles := make([]any, len(claims.Roles))
		for i, r := range claims.Roles {
			roles[i] = r
		}
		mapClaims["roles"] = roles
	}
	maps.Copy(mapClaims, claims.Extra)
	return mapClaims
}

func (ti *tokenIssuer) sign(method jwt.SigningMethod, secret []byte, claims jwt.MapClaims) string {
	signed, err := jwt.NewWithClaims(method, claims).SignedString(secret)
	if err != nil {
		panic("sign JWT: " + err.Error())
	}
	return signed
}

// Issuer returns the expected token issuer claim.
func (ti *tokenIssuer) Issuer() string {
	return ti.issuer
}

// Audience returns the expected token audience claim.
func (ti *tokenIssuer) Audience() string {
	return ti.audience
}
