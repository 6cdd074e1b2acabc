package appstore

import (
	"crypto/ecdsa"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// Audience is the fixed App Store Connect API audience claim.
	Audience = "appstoreconnect-v1"

	// TokenLifetime is the token validity; the API rejects tokens valid for more than 20 minutes.
	TokenLifetime = 20 * time.Minute

	// refreshMargin renews the cached token this long before it expires.
	refreshMargin = time.Minute
)

// Credentials identify the API key used to sign requests.
type Credentials struct {
	IssuerID string
	KeyID    string
	// PrivateKey is the PEM-encoded .p8 key downloaded from App Store Connect.
	PrivateKey []byte
}

// TokenProvider issues ES256 bearer tokens and caches them until shortly before expiry.
// It is safe for concurrent use.
type TokenProvider struct {
	issuerID string
	keyID    string
	key      *ecdsa.PrivateKey
	now      func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewTokenProvider parses the signing key and returns a provider.
//
// Parameters:
//   - creds: issuer id, key id and the PEM-encoded PKCS#8 EC private key
//
// Returns:
//   - *TokenProvider: provider ready to sign tokens
//   - error: ErrInvalidKey when the key cannot be parsed
func NewTokenProvider(creds Credentials) (*TokenProvider, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM(creds.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return &TokenProvider{
		issuerID: creds.IssuerID,
		keyID:    creds.KeyID,
		key:      key,
		now:      time.Now,
	}, nil
}

// Token returns a cached token, signing a new one when the cache is empty or about to expire.
func (p *TokenProvider) Token() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if p.token != "" && now.Before(p.expiresAt.Add(-refreshMargin)) {
		return p.token, nil
	}

	expiresAt := now.Add(TokenLifetime)
	// aud must be a plain string, not an array
	tok := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": p.issuerID,
		"iat": now.Unix(),
		"exp": expiresAt.Unix(),
		"aud": Audience,
	})
	tok.Header["kid"] = p.keyID

	signed, err := tok.SignedString(p.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	p.token = signed
	p.expiresAt = expiresAt
	return signed, nil
}

// Invalidate drops the cached token so the next call signs a fresh one.
func (p *TokenProvider) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.token = ""
	p.expiresAt = time.Time{}
}
