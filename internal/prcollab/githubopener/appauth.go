package githubopener

import (
	"context"
	"crypto/rsa"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/go-github/v68/github"
	"golang.org/x/oauth2"

	"github.com/codeforge-run/orchestrator/internal/config"
)

// NewAppInstallationClient builds an *http.Client authenticated as a
// GitHub App installation: it mints a short-lived App JWT (RS256, signed
// with privateKeyPEM), exchanges it for an installation access token via
// the Apps API, then wraps that token in an oauth2.StaticTokenSource for
// every subsequent request this Opener makes.
//
// Installation tokens expire after an hour; callers that run longer than
// that should rebuild the client rather than reuse a stale one, the same
// constraint go-github's own documentation calls out for this flow.
func NewAppInstallationClient(ctx context.Context, cfg config.GitHubOpenerConfig, privateKeyPEM []byte) (*http.Client, error) {
	if cfg.AppID == 0 {
		return nil, fmt.Errorf("githubopener: app_id is required")
	}
	if cfg.InstallationID == 0 {
		return nil, fmt.Errorf("githubopener: installation_id is required")
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, fmt.Errorf("githubopener: parse app private key: %w", err)
	}

	appJWT, err := mintAppJWT(cfg.AppID, key)
	if err != nil {
		return nil, fmt.Errorf("githubopener: mint app jwt: %w", err)
	}

	appClient := github.NewClient(nil).WithAuthToken(appJWT)
	token, _, err := appClient.Apps.CreateInstallationToken(ctx, cfg.InstallationID, nil)
	if err != nil {
		return nil, fmt.Errorf("githubopener: create installation token: %w", err)
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token.GetToken()})
	return oauth2.NewClient(ctx, src), nil
}

func mintAppJWT(appID int64, key *rsa.PrivateKey) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-30 * time.Second)), // clock drift tolerance
		ExpiresAt: jwt.NewNumericDate(now.Add(9 * time.Minute)),   // GitHub caps this at 10m
		Issuer:    fmt.Sprintf("%d", appID),
	}
	return jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
}
