package github

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/perfreview/internal/errors"
	"github.com/p-blackswan/perfreview/pkg/tokenstore"
)

const (
	installationTokenKey = "github_installation_token"
	tokenTTL             = 55 * time.Minute // Tokens last 1 hour, refresh at 55 min
)

// TokenSource supplies the bearer token for platform calls.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a personal access token.
type StaticToken string

// Token implements TokenSource.
func (s StaticToken) Token(context.Context) (string, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty GitHub token", perrors.ErrAuthFailure)
	}
	return string(s), nil
}

// AppTokenSource mints GitHub App installation tokens and caches them.
type AppTokenSource struct {
	appID          int64
	installationID int64
	privateKey     *rsa.PrivateKey
	apiURL         string
	tokenStore     tokenstore.Store
	httpClient     *http.Client
	logger         zerolog.Logger
}

// NewAppTokenSource creates a token source from a PEM key file.
func NewAppTokenSource(appID, installationID int64, privateKeyPath, apiURL string, store tokenstore.Store, logger zerolog.Logger) (*AppTokenSource, error) {
	keyData, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	return NewAppTokenSourceFromKeyBytes(appID, installationID, keyData, apiURL, store, logger)
}

// NewAppTokenSourceFromKeyBytes creates a token source from PEM key bytes (useful for testing).
func NewAppTokenSourceFromKeyBytes(appID, installationID int64, keyData []byte, apiURL string, store tokenstore.Store, logger zerolog.Logger) (*AppTokenSource, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(keyData)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return &AppTokenSource{
		appID:          appID,
		installationID: installationID,
		privateKey:     key,
		apiURL:         strings.TrimSuffix(apiURL, "/"),
		tokenStore:     store,
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		logger:         logger.With().Str("component", "github.auth").Logger(),
	}, nil
}

// generateJWT creates a JWT for GitHub App authentication.
func (a *AppTokenSource) generateJWT() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		Issuer:    fmt.Sprintf("%d", a.appID),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(a.privateKey)
	if err != nil {
		return "", fmt.Errorf("signing JWT: %w", err)
	}
	return signed, nil
}

// Token returns a cached or freshly minted installation token.
func (a *AppTokenSource) Token(ctx context.Context) (string, error) {
	if tok, err := a.tokenStore.Get(ctx, installationTokenKey); err == nil {
		return tok.Value, nil
	}

	a.logger.Info().Int64("installation_id", a.installationID).Msg("generating new installation token")
	jwtToken, err := a.generateJWT()
	if err != nil {
		return "", err
	}

	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", a.apiURL, a.installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+jwtToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("requesting installation token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		apiErr := perrors.NewAPIError("github", resp.StatusCode, fmt.Sprintf("installation token: %s", body))
		if resp.StatusCode == http.StatusUnauthorized {
			apiErr.Err = perrors.ErrAuthFailure
		}
		return "", apiErr
	}

	var tokenResp struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return "", fmt.Errorf("decoding token response: %w", err)
	}

	if err := a.tokenStore.Set(ctx, installationTokenKey, tokenResp.Token, tokenTTL); err != nil {
		a.logger.Warn().Err(err).Msg("failed to cache installation token")
	}
	return tokenResp.Token, nil
}

// tokenTransport injects the current token into every request.
type tokenTransport struct {
	source TokenSource
	base   http.RoundTripper
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.source.Token(req.Context())
	if err != nil {
		return nil, err
	}
	req2 := req.Clone(req.Context())
	req2.Header.Set("Authorization", "Bearer "+token)
	return t.base.RoundTrip(req2)
}

// NewHTTPClient returns an HTTP client that authenticates with source.
func NewHTTPClient(source TokenSource, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &tokenTransport{source: source, base: http.DefaultTransport},
		Timeout:   timeout,
	}
}
