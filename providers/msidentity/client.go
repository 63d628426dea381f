// Package msidentity implements the identity-provider client for the
// Microsoft identity platform: authorize-URL construction and the two token
// grants the credential lifecycle depends on.
package msidentity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-driveconnect/core"
)

const (
	defaultRequestTimeout    = 30 * time.Second
	maxTokenResponseBytes    = 1 << 20 // 1 MiB
	grantTypeAuthCode        = "authorization_code"
	grantTypeRefresh         = "refresh_token"
	invalidGrantErrorCode    = "invalid_grant"
	interactionRequiredError = "interaction_required"
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the Microsoft identity platform token endpoint. The client
// secret travels in the form body, which is what the platform expects for
// confidential web apps.
type Client struct {
	cfg        core.ProviderConfig
	httpClient HTTPDoer
}

type Option func(*Client)

func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.httpClient = doer
		}
	}
}

func NewClient(cfg core.ProviderConfig, options ...Option) (*Client, error) {
	cfg.ClientID = strings.TrimSpace(cfg.ClientID)
	cfg.ClientSecret = strings.TrimSpace(cfg.ClientSecret)
	cfg.RedirectURI = strings.TrimSpace(cfg.RedirectURI)
	cfg.AuthURL = strings.TrimSpace(cfg.AuthURL)
	cfg.TokenURL = strings.TrimSpace(cfg.TokenURL)

	if cfg.ClientID == "" {
		return nil, fmt.Errorf("msidentity: client id is required")
	}
	if cfg.ClientSecret == "" {
		return nil, fmt.Errorf("msidentity: client secret is required")
	}
	if cfg.RedirectURI == "" {
		return nil, fmt.Errorf("msidentity: redirect uri is required")
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = core.DefaultAuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = core.DefaultTokenURL
	}

	client := &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout(),
		},
	}
	for _, opt := range options {
		if opt == nil {
			continue
		}
		opt(client)
	}
	return client, nil
}

// AuthorizeURL builds the redirect target for the authorization-code flow.
// ForcePicker maps to prompt=select_account so a user with several signed-in
// accounts always gets the chooser.
func (c *Client) AuthorizeURL(req core.AuthorizeURLRequest) (string, error) {
	if c == nil {
		return "", fmt.Errorf("msidentity: client is nil")
	}
	state := strings.TrimSpace(req.State)
	if state == "" {
		return "", fmt.Errorf("msidentity: oauth state is required")
	}

	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = c.cfg.Scopes
	}
	redirectURI := strings.TrimSpace(req.RedirectURI)
	if redirectURI == "" {
		redirectURI = c.cfg.RedirectURI
	}

	values := url.Values{}
	values.Set("response_type", "code")
	values.Set("client_id", c.cfg.ClientID)
	values.Set("redirect_uri", redirectURI)
	values.Set("scope", strings.Join(scopes, " "))
	values.Set("state", state)
	if req.ForcePicker {
		values.Set("prompt", "select_account")
	}
	if hint := strings.TrimSpace(req.LoginHint); hint != "" {
		values.Set("login_hint", hint)
	}
	for _, key := range sortedKeys(req.ExtraQuery) {
		if value := strings.TrimSpace(req.ExtraQuery[key]); value != "" {
			values.Set(key, value)
		}
	}

	authURL := c.cfg.AuthURL
	if strings.Contains(authURL, "?") {
		return authURL + "&" + values.Encode(), nil
	}
	return authURL + "?" + values.Encode(), nil
}

// ExchangeCode redeems an authorization code. Tenant and subject claims are
// decoded from the returned access token; the direct server-to-server
// exchange is trusted for authenticity, so no signature check happens here.
func (c *Client) ExchangeCode(ctx context.Context, code string) (core.TokenGrant, error) {
	if c == nil {
		return core.TokenGrant{}, fmt.Errorf("msidentity: client is nil")
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return core.TokenGrant{}, fmt.Errorf("msidentity: authorization code is required")
	}

	form := url.Values{}
	form.Set("grant_type", grantTypeAuthCode)
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURI)
	form.Set("scope", strings.Join(c.cfg.Scopes, " "))

	grant, err := c.fetchToken(ctx, form, grantTypeAuthCode)
	if err != nil {
		return core.TokenGrant{}, err
	}

	claims, err := decodeTokenClaims(grant.AccessToken)
	if err != nil {
		return core.TokenGrant{}, goerrors.Wrap(err, goerrors.CategoryExternal, "msidentity: decode access token claims").
			WithCode(http.StatusBadGateway).
			WithTextCode(core.ConnectErrorExchangeFailed)
	}
	grant.Claims = claims
	return grant, nil
}

// Refresh redeems a refresh token. The provider may rotate the refresh token;
// when it does the new one rides back on the grant.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (core.TokenGrant, error) {
	if c == nil {
		return core.TokenGrant{}, fmt.Errorf("msidentity: client is nil")
	}
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return core.TokenGrant{}, fmt.Errorf("msidentity: refresh token is required")
	}

	form := url.Values{}
	form.Set("grant_type", grantTypeRefresh)
	form.Set("refresh_token", refreshToken)
	form.Set("scope", strings.Join(c.cfg.Scopes, " "))

	return c.fetchToken(ctx, form, grantTypeRefresh)
}

type tokenEndpointPayload struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	RefreshToken     string `json:"refresh_token"`
	Scope            string `json:"scope"`
	ExpiresIn        int64  `json:"expires_in"`
	ErrorCode        string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (c *Client) fetchToken(ctx context.Context, form url.Values, grantType string) (core.TokenGrant, error) {
	if c.httpClient == nil {
		return core.TokenGrant{}, fmt.Errorf("msidentity: http client is not configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	requestCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout())
	defer cancel()

	httpReq, err := http.NewRequestWithContext(
		requestCtx,
		http.MethodPost,
		c.cfg.TokenURL,
		strings.NewReader(form.Encode()),
	)
	if err != nil {
		return core.TokenGrant{}, fmt.Errorf("msidentity: build token request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")

	response, err := c.httpClient.Do(httpReq)
	if err != nil {
		return core.TokenGrant{}, transientError(err)
	}
	defer response.Body.Close()

	body, readErr := io.ReadAll(io.LimitReader(response.Body, maxTokenResponseBytes+1))
	if readErr != nil {
		return core.TokenGrant{}, transientError(fmt.Errorf("msidentity: read token response: %w", readErr))
	}
	if int64(len(body)) > maxTokenResponseBytes {
		return core.TokenGrant{}, exchangeError(grantType, fmt.Errorf("msidentity: token response exceeds %d bytes", maxTokenResponseBytes))
	}

	var payload tokenEndpointPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return core.TokenGrant{}, exchangeError(grantType, fmt.Errorf("msidentity: decode token response: %w", err))
	}

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices || payload.ErrorCode != "" {
		return core.TokenGrant{}, tokenEndpointError(grantType, response.StatusCode, payload)
	}
	if strings.TrimSpace(payload.AccessToken) == "" {
		return core.TokenGrant{}, exchangeError(grantType, fmt.Errorf("msidentity: token response missing access token"))
	}

	return core.TokenGrant{
		AccessToken:  strings.TrimSpace(payload.AccessToken),
		RefreshToken: strings.TrimSpace(payload.RefreshToken),
		TokenType:    normalizeTokenType(payload.TokenType),
		Scope:        strings.TrimSpace(payload.Scope),
		ExpiresIn:    payload.ExpiresIn,
	}, nil
}

// tokenEndpointError classifies a token-endpoint rejection. invalid_grant and
// interaction_required on a refresh are authoritative: the stored refresh
// token is dead and only a new interactive login fixes it.
func tokenEndpointError(grantType string, statusCode int, payload tokenEndpointPayload) error {
	description := strings.TrimSpace(payload.ErrorDescription)
	if description == "" {
		description = strings.TrimSpace(payload.ErrorCode)
	}
	if description == "" {
		description = "unknown error"
	}
	message := fmt.Sprintf("msidentity: token endpoint rejected %s grant (%d): %s", grantType, statusCode, description)

	errorCode := strings.ToLower(strings.TrimSpace(payload.ErrorCode))
	if grantType == grantTypeRefresh && (errorCode == invalidGrantErrorCode || errorCode == interactionRequiredError) {
		return goerrors.New(message, goerrors.CategoryAuth).
			WithCode(http.StatusUnauthorized).
			WithTextCode(core.ConnectErrorRefreshFailed).
			WithMetadata(map[string]any{"provider_error": errorCode})
	}
	if statusCode >= http.StatusInternalServerError {
		return goerrors.New(message, goerrors.CategoryExternal).
			WithCode(http.StatusBadGateway).
			WithTextCode(core.ConnectErrorTransient)
	}
	return exchangeError(grantType, errors.New(message))
}

func exchangeError(grantType string, err error) error {
	textCode := core.ConnectErrorExchangeFailed
	if grantType == grantTypeRefresh {
		textCode = core.ConnectErrorRefreshFailed
	}
	return goerrors.Wrap(err, goerrors.CategoryExternal, "msidentity: token grant failed").
		WithCode(http.StatusBadGateway).
		WithTextCode(textCode)
}

// transientError wraps timeouts and transport failures; callers may retry.
func transientError(err error) error {
	category := goerrors.CategoryExternal
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return goerrors.Wrap(err, category, "msidentity: token request timed out").
			WithCode(http.StatusGatewayTimeout).
			WithTextCode(core.ConnectErrorTransient)
	}
	return goerrors.Wrap(err, category, "msidentity: token request failed").
		WithCode(http.StatusBadGateway).
		WithTextCode(core.ConnectErrorTransient)
}

func normalizeTokenType(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "bearer"
	}
	return normalized
}

func sortedKeys(values map[string]string) []string {
	if len(values) == 0 {
		return nil
	}
	keys := make([]string, 0, len(values))
	for key := range values {
		if strings.TrimSpace(key) != "" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

var _ core.IdentityClient = (*Client)(nil)
