// Package billing talks to the main app that owns user credits and API keys.
package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/auth"
	"github.com/1596941391qq/googleSEO-AGENTs-lans-sub002/internal/upstream"
)

// ErrInsufficientCredits is returned when the user cannot afford an operation.
var ErrInsufficientCredits = errors.New("insufficient credits")

// Operation costs in credits.
const (
	CostGenerateKeywords = 1
	CostKeywordMining    = 5
	CostDeepDive         = 3
	CostVisualArticle    = 10
	CostRecommendations  = 2
)

type Client struct {
	baseURL string
	up      *upstream.Client
}

// New creates a client. An empty baseURL disables billing: Consume succeeds
// without a call and API keys are rejected.
func New(baseURL string, opts ...upstream.Option) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		up:      upstream.New("main_app", append([]upstream.Option{upstream.WithRetries(2, 0)}, opts...)...),
	}
}

func (c *Client) Enabled() bool { return c.baseURL != "" }

// Usage describes one credit charge.
type Usage struct {
	Credits     int    `json:"credits"`
	Description string `json:"description"`
	Operation   string `json:"operation"`
}

// Consume charges p for usage, authenticating as the caller.
func (c *Client) Consume(ctx context.Context, p auth.Principal, u Usage) error {
	if !c.Enabled() || u.Credits <= 0 {
		return nil
	}
	_, err := c.post(ctx, "/api/credits/consume", p.Credential, u)
	switch {
	case err == nil:
		return nil
	case upstream.IsStatus(err, http.StatusPaymentRequired):
		return ErrInsufficientCredits
	case upstream.IsStatus(err, http.StatusUnauthorized):
		return auth.ErrInvalidToken
	default:
		return fmt.Errorf("consuming %d credits for %s: %w", u.Credits, u.Operation, err)
	}
}

type verifyResponse struct {
	Valid   bool   `json:"valid"`
	Revoked bool   `json:"revoked"`
	UserID  string `json:"userId"`
	Email   string `json:"email"`
}

// VerifyAPIKey resolves an API key to its owner.
func (c *Client) VerifyAPIKey(ctx context.Context, key string) (auth.Principal, error) {
	if !c.Enabled() {
		return auth.Principal{}, auth.ErrInvalidToken
	}
	body, err := c.post(ctx, "/api/api-keys/verify", "", map[string]string{"apiKey": key})
	if err != nil {
		if upstream.IsStatus(err, http.StatusUnauthorized) || upstream.IsStatus(err, http.StatusNotFound) {
			return auth.Principal{}, auth.ErrInvalidToken
		}
		if upstream.IsStatus(err, http.StatusForbidden) {
			return auth.Principal{}, auth.ErrRevokedKey
		}
		return auth.Principal{}, fmt.Errorf("verifying api key: %w", err)
	}

	var resp verifyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return auth.Principal{}, fmt.Errorf("decoding api key verification: %w", err)
	}
	switch {
	case resp.Revoked:
		return auth.Principal{}, auth.ErrRevokedKey
	case !resp.Valid || resp.UserID == "":
		return auth.Principal{}, auth.ErrInvalidToken
	}
	return auth.Principal{UserID: resp.UserID, Email: resp.Email}, nil
}

func (c *Client) post(ctx context.Context, path, bearer string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return c.up.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		return req, nil
	})
}
