package cmd

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/bnema/codex-switch/internal/adapters/codexfile"
	statusadapter "github.com/bnema/codex-switch/internal/adapters/render/status"
	tomlrepo "github.com/bnema/codex-switch/internal/adapters/repo/toml"
	filestore "github.com/bnema/codex-switch/internal/adapters/secrets/file"
	usageadapter "github.com/bnema/codex-switch/internal/adapters/usage"
	"github.com/bnema/codex-switch/internal/application"
	"github.com/bnema/codex-switch/internal/logging"
	"github.com/bnema/codex-switch/internal/ports"
	"github.com/spf13/viper"
)

type app struct {
	service        *application.Service
	fetcher        ports.UsageFetcher
	statusRenderer func([]application.Status, statusadapter.RenderOptions) (string, error)
	browserLogin   browserLoginConfig
	pollInterval   time.Duration
	logger         *slog.Logger
	httpClient     *http.Client
	now            func() time.Time
}

type browserLoginConfig struct {
	Issuer     string
	ClientID   string
	ListenAddr string
	Timeout    time.Duration
}

func wireApp() (*app, error) {
	repo, err := tomlrepo.NewRepository(viper.New())
	if err != nil {
		return nil, fmt.Errorf("wire account repository: %w", err)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}

	secretStore := filestore.NewStore(filepath.Join(homeDir, ".codex-switch", "secrets"))

	authPath, err := codexfile.ResolveAuthPath()
	if err != nil {
		return nil, fmt.Errorf("resolve codex auth path: %w", err)
	}
	authTarget := codexfile.New(authPath)

	clock := ports.SystemClock{}
	httpClient := &http.Client{Timeout: 30 * time.Second}
	logger := logging.Setup(os.Getenv("CXS_LOG_LEVEL"))

	service := application.NewService(repo, secretStore, authTarget, clock)

	return &app{
		service:        service,
		fetcher:        usageadapter.NewClient(envOrDefault("CXS_USAGE_BASE_URL", "https://chatgpt.com/backend-api"), httpClient, clock),
		statusRenderer: statusadapter.Render,
		browserLogin: browserLoginConfig{
			Issuer:     envOrDefault("CXS_AUTH_ISSUER", "https://auth.openai.com"),
			ClientID:   envOrDefault("CXS_AUTH_CLIENT_ID", "app_EMoamEEZ73f0CkXaXp7hrann"),
			ListenAddr: envOrDefault("CXS_AUTH_LISTEN", "127.0.0.1:1455"),
			Timeout:    5 * time.Minute,
		},
		pollInterval: envDurationOrDefault("CXS_POLL_INTERVAL", time.Minute),
		logger:       logger,
		httpClient:   httpClient,
		now:          time.Now,
	}, nil
}

func (a *app) newPoller() *application.Poller {
	return application.NewPoller(a.service, a.fetcher, application.PollerConfig{
		Interval: a.pollInterval,
		Logger:   a.logger,
	})
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envDurationOrDefault(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}

	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
