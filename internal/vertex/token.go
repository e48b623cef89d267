package vertex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rakhadi/vertex-proxy/internal/credentials"
)

const (
	defaultTokenURL    = "https://oauth2.googleapis.com/token"
	cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"
	jwtBearerGrantType = "urn:ietf:params:oauth:grant-type:jwt-bearer"

	// assertionLifetime is the exp-iat window of the signed assertion.
	assertionLifetime = time.Hour
	// tokenExpiryMargin renews cached tokens slightly before the endpoint's
	// reported expiry so a request never presents a just-expired bearer.
	tokenExpiryMargin = 30 * time.Second
)

var (
	ErrTokenExchange = errors.New("token exchange failed")
	ErrTokenMissing  = errors.New("token endpoint returned no access_token")
)

// tokenCache is the single slot holding the most recently minted token.
type tokenCache struct {
	token  string
	expiry time.Time
}

func (c *tokenCache) get(now time.Time) (string, bool) {
	if c.token == "" || !now.Before(c.expiry) {
		return "", false
	}
	return c.token, true
}

func (c *tokenCache) set(token string, expiry time.Time) {
	c.token = token
	c.expiry = expiry
}

// tokenSource mints and caches bearer tokens for the service account. The
// encoded bundle is decoded on every mint and discarded; only the derived
// token is retained.
type tokenSource struct {
	encodedCreds string
	tokenURL     string
	httpClient   *http.Client

	mu    sync.Mutex // guards cache; mints are serialized under it
	cache tokenCache
}

func newTokenSource(encodedCreds, tokenURL string, httpClient *http.Client) *tokenSource {
	if tokenURL == "" {
		tokenURL = defaultTokenURL
	}
	return &tokenSource{
		encodedCreds: encodedCreds,
		tokenURL:     tokenURL,
		httpClient:   httpClient,
	}
}

// accessToken returns the cached bearer token, minting a fresh one when the
// slot is empty or past its expiry.
func (ts *tokenSource) accessToken(ctx context.Context) (string, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if token, ok := ts.cache.get(time.Now()); ok {
		return token, nil
	}

	bundle, err := credentials.Decode(ts.encodedCreds)
	if err != nil {
		return "", err
	}

	assertion, err := signAssertion(bundle, ts.tokenURL, time.Now())
	if err != nil {
		return "", err
	}

	token, expiresIn, err := ts.exchange(ctx, assertion)
	if err != nil {
		return "", err
	}

	ts.cache.set(token, time.Now().Add(time.Duration(expiresIn)*time.Second-tokenExpiryMargin))
	return token, nil
}

// assertionClaims is the JWT-bearer payload: the registered claims plus the
// OAuth scope Google expects inside the assertion itself.
type assertionClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

func signAssertion(bundle *credentials.Bundle, audience string, now time.Time) (string, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(bundle.PrivateKey))
	if err != nil {
		return "", fmt.Errorf("parse service-account private key: %w", err)
	}

	claims := assertionClaims{
		Scope: cloudPlatformScope,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    bundle.ClientEmail,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(assertionLifetime)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}
	return signed, nil
}

// exchange trades the signed assertion for a bearer token at the OAuth
// endpoint.
func (ts *tokenSource) exchange(ctx context.Context, assertion string) (token string, expiresIn int64, err error) {
	form := url.Values{}
	form.Set("grant_type", jwtBearerGrantType)
	form.Set("assertion", assertion)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", 0, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := ts.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", 0, fmt.Errorf("%w: %v", ErrUpstreamTimeout, err)
		}
		return "", 0, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return "", 0, fmt.Errorf("%w: status %d: %s", ErrTokenExchange, resp.StatusCode, string(raw))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", 0, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", 0, ErrTokenMissing
	}
	if tr.ExpiresIn <= 0 {
		tr.ExpiresIn = 3600
	}
	return tr.AccessToken, tr.ExpiresIn, nil
}
