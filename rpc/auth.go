package rpc

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"splitvault/crypto"
)

var (
	ErrMissingToken = errors.New("rpc: missing bearer token")
	ErrInvalidToken = errors.New("rpc: invalid bearer token")
)

const defaultClockSkew = 2 * time.Minute

// Authenticator establishes caller identity for mutating operations. Tokens
// are HS256 JWTs whose subject is the caller's bech32 address; the ledger
// itself only ever compares the resulting identities.
type Authenticator struct {
	secret   []byte
	issuer   string
	audience string
	skew     time.Duration
}

// NewAuthenticator builds an authenticator around a shared HMAC secret.
func NewAuthenticator(secret, issuer, audience string) *Authenticator {
	return &Authenticator{
		secret:   []byte(strings.TrimSpace(secret)),
		issuer:   issuer,
		audience: audience,
		skew:     defaultClockSkew,
	}
}

func extractBearer(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Caller authenticates the request and returns the caller identity.
func (a *Authenticator) Caller(r *http.Request) ([20]byte, error) {
	tokenString := extractBearer(r.Header.Get("Authorization"))
	if tokenString == "" {
		return [20]byte{}, ErrMissingToken
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(a.issuer),
		jwt.WithAudience(a.audience),
		jwt.WithLeeway(a.skew),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return [20]byte{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	caller, err := crypto.DecodeSVT(claims.Subject)
	if err != nil {
		return [20]byte{}, fmt.Errorf("%w: subject is not a valid address: %v", ErrInvalidToken, err)
	}
	return caller, nil
}

// Issue mints a token for the given identity. Used by tests and the dev CLI;
// production deployments are expected to mint tokens in their identity
// provider.
func (a *Authenticator) Issue(addr [20]byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   crypto.EncodeSVT(addr),
		Issuer:    a.issuer,
		Audience:  jwt.ClaimStrings{a.audience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
