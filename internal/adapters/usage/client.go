// Package usage fetches quota-window snapshots from the provider's usage
// endpoint. The payload schema is provider-defined; this client only maps it
// onto the domain snapshot shape.
package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bnema/codex-switch/internal/domain"
	"github.com/bnema/codex-switch/internal/ports"
)

const (
	usagePath        = "/wham/usage"
	maxResponseBytes = 1 << 20
	defaultUserAgent = "cxs/usage"
	weeklyThresholdS = 6 * 24 * 60 * 60
)

// StatusError reports a non-2xx response from the usage endpoint. 401 and
// 403 unwrap to domain.ErrCredentialExpired so callers can match with
// errors.Is.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("usage endpoint returned status %d: %s", e.Status, e.Body)
}

func (e *StatusError) Unwrap() error {
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
		return domain.ErrCredentialExpired
	}
	return nil
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	clock      ports.Clock
}

var _ ports.UsageFetcher = (*Client)(nil)

func NewClient(baseURL string, httpClient *http.Client, clock ports.Clock) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		clock:      clock,
	}
}

func (c *Client) Fetch(ctx context.Context, credential domain.Credential) (domain.UsageSnapshot, error) {
	if strings.TrimSpace(credential.AccessToken) == "" {
		return domain.UsageSnapshot{}, fmt.Errorf("%w: usage requires a session access token", domain.ErrInvalidCredential)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+usagePath, nil)
	if err != nil {
		return domain.UsageSnapshot{}, fmt.Errorf("create usage request: %w", err)
	}
	request.Header.Set("Authorization", "Bearer "+credential.AccessToken)
	request.Header.Set("User-Agent", defaultUserAgent)
	if accountID := domain.ParseTokenClaims(credential.IDToken).AccountID(); accountID != "" {
		request.Header.Set("ChatGPT-Account-Id", accountID)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return domain.UsageSnapshot{}, fmt.Errorf("perform usage request: %w", err)
	}
	defer func() { _ = response.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		return domain.UsageSnapshot{}, fmt.Errorf("read usage response: %w", err)
	}
	if response.StatusCode < 200 || response.StatusCode > 299 {
		return domain.UsageSnapshot{}, &StatusError{Status: response.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var payload usagePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.UsageSnapshot{}, fmt.Errorf("decode usage payload: %w", err)
	}

	short, weekly := pickShortWeeklyWindows(payload)
	if short == nil && weekly == nil {
		return domain.UsageSnapshot{}, fmt.Errorf("usage payload carries no rate-limit windows")
	}

	now := c.clock.Now()
	return domain.UsageSnapshot{
		Plan:   payload.PlanType,
		Short:  toDomainWindow(short, now),
		Weekly: toDomainWindow(weekly, now),
	}, nil
}

type usageWindow struct {
	UsedPercent        float64 `json:"used_percent"`
	LimitWindowSeconds int     `json:"limit_window_seconds"`
	ResetAt            int64   `json:"reset_at"`
}

type usageRateLimit struct {
	PrimaryWindow   *usageWindow `json:"primary_window"`
	SecondaryWindow *usageWindow `json:"secondary_window"`
}

type usageAdditionalRateLimit struct {
	RateLimit *usageRateLimit `json:"rate_limit"`
}

type usagePayload struct {
	PlanType             string                     `json:"plan_type"`
	RateLimit            *usageRateLimit            `json:"rate_limit"`
	AdditionalRateLimits []usageAdditionalRateLimit `json:"additional_rate_limits"`
}

// pickShortWeeklyWindows sorts the advertised windows into the short-horizon
// one (smallest sub-weekly span) and the weekly one (largest span of six
// days or more).
func pickShortWeeklyWindows(payload usagePayload) (*usageWindow, *usageWindow) {
	windows := collectWindows(payload)
	var short *usageWindow
	var weekly *usageWindow

	for i := range windows {
		window := windows[i]
		if window == nil || window.ResetAt <= 0 {
			continue
		}

		if window.LimitWindowSeconds >= weeklyThresholdS {
			if weekly == nil || window.LimitWindowSeconds > weekly.LimitWindowSeconds {
				weekly = window
			}
			continue
		}

		if short == nil || window.LimitWindowSeconds < short.LimitWindowSeconds {
			short = window
		}
	}

	return short, weekly
}

func collectWindows(payload usagePayload) []*usageWindow {
	windows := make([]*usageWindow, 0, 8)
	appendRateLimitWindows := func(limit *usageRateLimit) {
		if limit == nil {
			return
		}
		windows = append(windows, limit.PrimaryWindow, limit.SecondaryWindow)
	}

	appendRateLimitWindows(payload.RateLimit)
	for _, additional := range payload.AdditionalRateLimits {
		appendRateLimitWindows(additional.RateLimit)
	}

	return windows
}

func toDomainWindow(window *usageWindow, capturedAt time.Time) *domain.UsageWindow {
	if window == nil {
		return nil
	}

	return &domain.UsageWindow{
		UsedPercent: window.UsedPercent,
		ResetsAt:    time.Unix(window.ResetAt, 0).UTC(),
		CapturedAt:  capturedAt,
	}
}
