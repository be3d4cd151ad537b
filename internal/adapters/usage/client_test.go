package usage

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bnema/codex-switch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time { return c.now }

func makeIDToken(t *testing.T, claims map[string]any) string {
	t.Helper()

	payload, err := json.Marshal(claims)
	require.NoError(t, err)

	return "header." + base64.RawURLEncoding.EncodeToString(payload) + ".signature"
}

func chatGPTCredential(t *testing.T) domain.Credential {
	t.Helper()

	idToken := makeIDToken(t, map[string]any{
		"email": "alice@example.com",
		"https://api.openai.com/auth": map[string]any{
			"chatgpt_account_id": "acct-1",
		},
	})
	credential, err := domain.NewChatGPTCredential(idToken, "access-token", "refresh-token", time.Time{}, time.Time{})
	require.NoError(t, err)

	return credential
}

func TestFetchMapsPrimaryAndSecondaryWindows(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	shortReset := now.Add(3 * time.Hour).Unix()
	weeklyReset := now.Add(5 * 24 * time.Hour).Unix()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/wham/usage", r.URL.Path)
		assert.Equal(t, "Bearer access-token", r.Header.Get("Authorization"))
		assert.Equal(t, "acct-1", r.Header.Get("ChatGPT-Account-Id"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"plan_type": "plus",
			"rate_limit": map[string]any{
				"primary_window": map[string]any{
					"used_percent":         42.5,
					"limit_window_seconds": 5 * 60 * 60,
					"reset_at":             shortReset,
				},
				"secondary_window": map[string]any{
					"used_percent":         12.0,
					"limit_window_seconds": 7 * 24 * 60 * 60,
					"reset_at":             weeklyReset,
				},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client(), fixedClock{now: now})

	snapshot, err := client.Fetch(context.Background(), chatGPTCredential(t))
	require.NoError(t, err)

	assert.Equal(t, "plus", snapshot.Plan)

	require.NotNil(t, snapshot.Short)
	assert.Equal(t, 42.5, snapshot.Short.UsedPercent)
	assert.Equal(t, time.Unix(shortReset, 0).UTC(), snapshot.Short.ResetsAt)
	assert.Equal(t, now, snapshot.Short.CapturedAt)

	require.NotNil(t, snapshot.Weekly)
	assert.Equal(t, 12.0, snapshot.Weekly.UsedPercent)
	assert.Equal(t, time.Unix(weeklyReset, 0).UTC(), snapshot.Weekly.ResetsAt)

	assert.False(t, snapshot.Stale())
}

func TestFetchPicksWindowsFromAdditionalRateLimits(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"plan_type": "plus",
			"additional_rate_limits": []map[string]any{
				{
					"rate_limit": map[string]any{
						"primary_window": map[string]any{
							"used_percent":         80.0,
							"limit_window_seconds": 60 * 60,
							"reset_at":             now.Add(time.Hour).Unix(),
						},
					},
				},
				{
					"rate_limit": map[string]any{
						"primary_window": map[string]any{
							"used_percent":         30.0,
							"limit_window_seconds": 10 * 24 * 60 * 60,
							"reset_at":             now.Add(9 * 24 * time.Hour).Unix(),
						},
					},
				},
			},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client(), fixedClock{now: now})

	snapshot, err := client.Fetch(context.Background(), chatGPTCredential(t))
	require.NoError(t, err)

	require.NotNil(t, snapshot.Short)
	assert.Equal(t, 80.0, snapshot.Short.UsedPercent)
	require.NotNil(t, snapshot.Weekly)
	assert.Equal(t, 30.0, snapshot.Weekly.UsedPercent)
}

func TestFetchRejectsCredentialWithoutAccessToken(t *testing.T) {
	t.Parallel()

	client := NewClient("https://chatgpt.example.com/backend-api", nil, nil)

	_, err := client.Fetch(context.Background(), domain.Credential{Method: domain.AuthMethodAPIKey, APIKey: "sk-test"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidCredential))
}

func TestFetchRateLimitedReturnsStatusError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client(), nil)

	_, err := client.Fetch(context.Background(), chatGPTCredential(t))
	require.Error(t, err)

	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.Status)
	assert.False(t, errors.Is(err, domain.ErrCredentialExpired))
}

func TestFetchUnauthorizedUnwrapsToCredentialExpired(t *testing.T) {
	t.Parallel()

	for _, status := range []int{http.StatusUnauthorized, http.StatusForbidden} {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "token expired", status)
		}))

		client := NewClient(server.URL, server.Client(), nil)

		_, err := client.Fetch(context.Background(), chatGPTCredential(t))
		require.Error(t, err)
		assert.True(t, errors.Is(err, domain.ErrCredentialExpired), "status %d", status)

		server.Close()
	}
}

func TestFetchFailsWhenPayloadHasNoWindows(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"plan_type": "plus"})
	}))
	defer server.Close()

	client := NewClient(server.URL, server.Client(), nil)

	_, err := client.Fetch(context.Background(), chatGPTCredential(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no rate-limit windows")
}

func TestPickShortWeeklyWindowsSkipsZeroResets(t *testing.T) {
	t.Parallel()

	payload := usagePayload{
		RateLimit: &usageRateLimit{
			PrimaryWindow:   &usageWindow{UsedPercent: 10, LimitWindowSeconds: 3600, ResetAt: 0},
			SecondaryWindow: &usageWindow{UsedPercent: 20, LimitWindowSeconds: 7 * 24 * 60 * 60, ResetAt: 1700000000},
		},
	}

	short, weekly := pickShortWeeklyWindows(payload)
	assert.Nil(t, short)
	require.NotNil(t, weekly)
	assert.Equal(t, 20.0, weekly.UsedPercent)
}
