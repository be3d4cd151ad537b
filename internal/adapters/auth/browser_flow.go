// Package auth implements the two credential acquisition modes: the browser
// oauth flow and file import. Neither variant touches the account catalog;
// callers decide whether the result gets persisted or activated.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bnema/codex-switch/internal/domain"
	"github.com/bnema/codex-switch/internal/ports"
)

const (
	maxTokenResponseBytes = 1 << 20
	defaultLoginTimeout   = 5 * time.Minute
	defaultOriginator     = "codex_cli_rs"
)

// Acquisition yields a normalized account/credential pair from one of the
// login modes.
type Acquisition interface {
	Acquire(ctx context.Context) (domain.Account, domain.Credential, error)
}

type BrowserConfig struct {
	Issuer     string
	ClientID   string
	ListenAddr string
	Scopes     []string
	Timeout    time.Duration
	HTTPClient *http.Client
	Clock      ports.Clock
	// OnAuthURL is called with the authorization URL the user must open.
	OnAuthURL func(authURL string)
}

// BrowserFlow runs the PKCE authorization-code flow against a localhost
// callback. At most one attempt may be in flight; a concurrent Acquire fails
// with domain.ErrLoginInProgress rather than cancelling the pending one, so
// an already-opened browser tab keeps a live listener to land on.
type BrowserFlow struct {
	cfg      BrowserConfig
	inFlight atomic.Bool
}

var _ Acquisition = (*BrowserFlow)(nil)

func NewBrowserFlow(cfg BrowserConfig) *BrowserFlow {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultLoginTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Clock == nil {
		cfg.Clock = ports.SystemClock{}
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"openid", "profile", "email", "offline_access"}
	}

	return &BrowserFlow{cfg: cfg}
}

func (f *BrowserFlow) Acquire(ctx context.Context) (domain.Account, domain.Credential, error) {
	if !f.inFlight.CompareAndSwap(false, true) {
		return domain.Account{}, domain.Credential{}, domain.ErrLoginInProgress
	}
	defer f.inFlight.Store(false)

	pkce, err := NewPKCEPair()
	if err != nil {
		return domain.Account{}, domain.Credential{}, fmt.Errorf("generate pkce: %w", err)
	}
	state, err := NewState()
	if err != nil {
		return domain.Account{}, domain.Credential{}, fmt.Errorf("generate oauth state: %w", err)
	}

	server, err := StartCallbackServer(f.cfg.ListenAddr, state)
	if err != nil {
		return domain.Account{}, domain.Credential{}, fmt.Errorf("start callback server: %w", err)
	}

	authURL, err := BuildAuthorizationURL(AuthorizationRequest{
		AuthURL:       strings.TrimRight(f.cfg.Issuer, "/") + "/oauth/authorize",
		ClientID:      f.cfg.ClientID,
		RedirectURI:   server.RedirectURI(),
		Scopes:        f.cfg.Scopes,
		State:         state,
		CodeChallenge: pkce.Challenge,
	})
	if err != nil {
		_ = server.Close()
		return domain.Account{}, domain.Credential{}, fmt.Errorf("build authorization url: %w", err)
	}

	if f.cfg.OnAuthURL != nil {
		f.cfg.OnAuthURL(authURL)
	}

	code, err := server.WaitForCode(ctx, f.cfg.Timeout)
	if err != nil {
		return domain.Account{}, domain.Credential{}, fmt.Errorf("wait for oauth callback: %w", err)
	}

	tokens, err := ExchangeCodeForTokens(ctx, f.cfg.HTTPClient, TokenExchangeRequest{
		Issuer:       f.cfg.Issuer,
		ClientID:     f.cfg.ClientID,
		RedirectURI:  server.RedirectURI(),
		Code:         code,
		CodeVerifier: pkce.Verifier,
	})
	if err != nil {
		return domain.Account{}, domain.Credential{}, fmt.Errorf("exchange code for tokens: %w", err)
	}

	now := f.cfg.Clock.Now()
	var expiresAt time.Time
	if tokens.ExpiresIn > 0 {
		expiresAt = now.Add(time.Duration(tokens.ExpiresIn) * time.Second)
	}

	credential, err := domain.NewChatGPTCredential(tokens.IDToken, tokens.AccessToken, tokens.RefreshToken, expiresAt, now)
	if err != nil {
		return domain.Account{}, domain.Credential{}, err
	}

	return normalizeAccount(credential, "", now)
}

type AuthorizationRequest struct {
	AuthURL       string
	ClientID      string
	RedirectURI   string
	Scopes        []string
	State         string
	CodeChallenge string
	Originator    string
}

func BuildAuthorizationURL(req AuthorizationRequest) (string, error) {
	if req.AuthURL == "" {
		return "", errors.New("auth url is required")
	}
	if req.ClientID == "" {
		return "", errors.New("client id is required")
	}
	if req.RedirectURI == "" {
		return "", errors.New("redirect uri is required")
	}
	if req.State == "" {
		return "", errors.New("state is required")
	}
	if req.CodeChallenge == "" {
		return "", errors.New("code challenge is required")
	}

	parsed, err := url.Parse(req.AuthURL)
	if err != nil {
		return "", fmt.Errorf("parse auth url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", errors.New("auth url must use http or https")
	}
	if parsed.Host == "" {
		return "", errors.New("auth url host is required")
	}

	q := parsed.Query()
	q.Set("response_type", "code")
	q.Set("client_id", req.ClientID)
	q.Set("redirect_uri", req.RedirectURI)
	if len(req.Scopes) > 0 {
		q.Set("scope", strings.Join(req.Scopes, " "))
	}
	q.Set("state", req.State)
	q.Set("code_challenge", req.CodeChallenge)
	q.Set("code_challenge_method", PKCEChallengeMethodS256)
	q.Set("id_token_add_organizations", "true")
	q.Set("codex_cli_simplified_flow", "true")
	originator := req.Originator
	if originator == "" {
		originator = defaultOriginator
	}
	q.Set("originator", originator)
	parsed.RawQuery = q.Encode()

	return parsed.String(), nil
}

type TokenExchangeRequest struct {
	Issuer       string
	ClientID     string
	RedirectURI  string
	Code         string
	CodeVerifier string
}

type ExchangedTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	IDToken      string `json:"id_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

func ExchangeCodeForTokens(ctx context.Context, client *http.Client, req TokenExchangeRequest) (ExchangedTokens, error) {
	if req.Issuer == "" {
		return ExchangedTokens{}, errors.New("issuer is required")
	}
	if req.ClientID == "" {
		return ExchangedTokens{}, errors.New("client id is required")
	}
	if req.RedirectURI == "" {
		return ExchangedTokens{}, errors.New("redirect uri is required")
	}
	if req.Code == "" {
		return ExchangedTokens{}, errors.New("authorization code is required")
	}
	if req.CodeVerifier == "" {
		return ExchangedTokens{}, errors.New("code verifier is required")
	}

	if client == nil {
		client = http.DefaultClient
	}

	issuer := strings.TrimRight(req.Issuer, "/")
	endpoint := issuer + "/oauth/token"

	values := url.Values{}
	values.Set("grant_type", "authorization_code")
	values.Set("code", req.Code)
	values.Set("redirect_uri", req.RedirectURI)
	values.Set("client_id", req.ClientID)
	values.Set("code_verifier", req.CodeVerifier)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(values.Encode()))
	if err != nil {
		return ExchangedTokens{}, fmt.Errorf("create token exchange request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(httpReq)
	if err != nil {
		return ExchangedTokens{}, fmt.Errorf("exchange code for tokens: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return ExchangedTokens{}, fmt.Errorf("token endpoint returned status %d", resp.StatusCode)
	}

	var tokens ExchangedTokens
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxTokenResponseBytes)).Decode(&tokens); err != nil {
		return ExchangedTokens{}, fmt.Errorf("decode token response: %w", err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" || tokens.IDToken == "" {
		return ExchangedTokens{}, errors.New("token response missing required fields")
	}

	return tokens, nil
}
