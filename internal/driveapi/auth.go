package driveapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/ligustah/drivesync/pkg/drive"
)

// Scope is the OAuth scope requested for mirroring.
const Scope = "https://www.googleapis.com/auth/drive.readonly"

// ErrNoToken is returned when client secrets are given without a saved token.
var ErrNoToken = errors.New("driveapi: client secrets require a saved token file")

// TokenSource loads credentials for the Drive API.
//
// credentialsFile may hold a service account key or an installed-app client
// secret. A client secret needs tokenFile, holding either an oauth2 token or
// an authorized-user record with token and refresh_token fields. With no
// credentialsFile, application default credentials are used.
func TokenSource(ctx context.Context, credentialsFile, tokenFile string) (oauth2.TokenSource, error) {
	if credentialsFile == "" {
		ts, err := google.DefaultTokenSource(ctx, Scope)
		if err != nil {
			return nil, fmt.Errorf("driveapi: default credentials: %w", err)
		}
		return ts, nil
	}

	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("driveapi: read credentials: %w", err)
	}

	var kind struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &kind); err != nil {
		return nil, fmt.Errorf("driveapi: parse credentials: %w", err)
	}

	if kind.Type == "service_account" {
		cfg, err := google.JWTConfigFromJSON(data, Scope)
		if err != nil {
			return nil, fmt.Errorf("driveapi: service account: %w", err)
		}
		return cfg.TokenSource(ctx), nil
	}

	cfg, err := google.ConfigFromJSON(data, Scope)
	if err != nil {
		return nil, fmt.Errorf("driveapi: client secret: %w", err)
	}
	if tokenFile == "" {
		return nil, ErrNoToken
	}
	tok, err := loadToken(tokenFile)
	if err != nil {
		return nil, err
	}
	return cfg.TokenSource(ctx, tok), nil
}

// savedToken accepts both oauth2.Token JSON and authorized-user records.
type savedToken struct {
	AccessToken  string    `json:"access_token"`
	Token        string    `json:"token"`
	TokenType    string    `json:"token_type"`
	RefreshToken string    `json:"refresh_token"`
	Expiry       time.Time `json:"expiry"`
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("driveapi: read token: %w", err)
	}

	var st savedToken
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("driveapi: parse token: %w", err)
	}

	tok := &oauth2.Token{
		AccessToken:  st.AccessToken,
		TokenType:    st.TokenType,
		RefreshToken: st.RefreshToken,
		Expiry:       st.Expiry,
	}
	if tok.AccessToken == "" {
		tok.AccessToken = st.Token
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, fmt.Errorf("driveapi: token file %s holds no token", path)
	}
	return tok, nil
}

// NewFactory returns a drive.Factory whose handles authenticate through ts.
// Each call obtains a token first, so credential problems surface as factory
// errors. Handles share base's connection pool; a nil base uses
// http.DefaultTransport.
func NewFactory(opts Options, ts oauth2.TokenSource, base http.RoundTripper) drive.Factory {
	ts = oauth2.ReuseTokenSource(nil, ts)
	if base == nil {
		base = http.DefaultTransport
	}

	return func(ctx context.Context) (drive.Client, error) {
		if _, err := ts.Token(); err != nil {
			return nil, fmt.Errorf("driveapi: obtain token: %w", err)
		}
		hc := &http.Client{
			Transport: &oauth2.Transport{Source: ts, Base: base},
		}
		c, err := NewClient(opts, hc)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
