// Package security signs and validates session tokens handed out after OTP login or signup.
package security

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken is returned when a token is malformed, expired or signed by someone else.
	ErrInvalidToken = errors.New("invalid token")
	// ErrWeakSecret is returned for HMAC secrets shorter than 32 bytes.
	ErrWeakSecret = errors.New("session secret must be at least 32 bytes")
)

// DefaultSessionTTL is how long a session token is valid.
const DefaultSessionTTL = 7 * 24 * time.Hour

// SessionClaims binds a token to an account.
type SessionClaims struct {
	jwt.RegisteredClaims
	AccountID  string `json:"account_id"`
	Identifier string `json:"identifier"`
	Role       string `json:"role"`
}

// Session is the verified identity extracted from a token.
type Session struct {
	TokenID    string
	AccountID  string
	Identifier string
	Role       string
	ExpiresAt  time.Time
}

// TokenProvider issues and validates session JWTs. It signs with RS256/ES256 when built from a
// key pair and HS256 when built from a shared secret.
type TokenProvider struct {
	method    jwt.SigningMethod
	signKey   interface{}
	verifyKey interface{}
	issuer    string
	audience  string
	ttl       time.Duration
	nowF      func() time.Time
}

// NewTokenProvider returns a TokenProvider that signs with privateKey (RSA or ECDSA).
func NewTokenProvider(privateKey crypto.Signer, publicKey crypto.PublicKey, issuer, audience string, ttl time.Duration) (*TokenProvider, error) {
	var method jwt.SigningMethod
	switch publicKey.(type) {
	case *rsa.PublicKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PublicKey:
		method = jwt.SigningMethodES256
	default:
		return nil, ErrInvalidKey
	}
	return newProvider(method, privateKey, publicKey, issuer, audience, ttl), nil
}

// NewHMACTokenProvider returns a TokenProvider that signs with HS256 using secret.
func NewHMACTokenProvider(secret []byte, issuer, audience string, ttl time.Duration) (*TokenProvider, error) {
	if len(secret) < 32 {
		return nil, ErrWeakSecret
	}
	return newProvider(jwt.SigningMethodHS256, secret, secret, issuer, audience, ttl), nil
}

func newProvider(method jwt.SigningMethod, signKey, verifyKey interface{}, issuer, audience string, ttl time.Duration) *TokenProvider {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &TokenProvider{
		method:    method,
		signKey:   signKey,
		verifyKey: verifyKey,
		issuer:    issuer,
		audience:  audience,
		ttl:       ttl,
		nowF:      func() time.Time { return time.Now().UTC() },
	}
}

// Alg returns the JWT signing algorithm.
func (p *TokenProvider) Alg() string { return p.method.Alg() }

// IssueSession signs a token for the account. Returns the token and its expiry.
func (p *TokenProvider) IssueSession(accountID, identifier, role string) (string, time.Time, error) {
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := p.nowF().Truncate(time.Second)
	expiresAt := now.Add(p.ttl)
	claims := SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   accountID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		AccountID:  accountID,
		Identifier: identifier,
		Role:       role,
	}
	token, err := jwt.NewWithClaims(p.method, claims).SignedString(p.signKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// ValidateSession checks signature, algorithm, expiry, issuer and audience.
func (p *TokenProvider) ValidateSession(tokenString string) (Session, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return p.verifyKey, nil },
		jwt.WithValidMethods([]string{p.method.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(p.nowF),
	)
	if err != nil || !token.Valid {
		return Session{}, ErrInvalidToken
	}
	if claims.AccountID == "" || claims.AccountID != claims.Subject {
		return Session{}, ErrInvalidToken
	}
	return Session{
		TokenID:    claims.ID,
		AccountID:  claims.AccountID,
		Identifier: claims.Identifier,
		Role:       claims.Role,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
