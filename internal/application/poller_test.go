package application

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bnema/codex-switch/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedFetcher resolves responses by access token so each account can be
// scripted independently. It counts calls per token.
type scriptedFetcher struct {
	mu        sync.Mutex
	calls     map[string]int
	snapshots map[string]domain.UsageSnapshot
	errs      map[string]error
}

func newScriptedFetcher() *scriptedFetcher {
	return &scriptedFetcher{
		calls:     map[string]int{},
		snapshots: map[string]domain.UsageSnapshot{},
		errs:      map[string]error{},
	}
}

func (f *scriptedFetcher) Fetch(ctx context.Context, credential domain.Credential) (domain.UsageSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[credential.AccessToken]++
	if err, ok := f.errs[credential.AccessToken]; ok {
		return domain.UsageSnapshot{}, err
	}

	return f.snapshots[credential.AccessToken], nil
}

func (f *scriptedFetcher) callCount(accessToken string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[accessToken]
}

func drainEvents(p *Poller) []PollEvent {
	events := make([]PollEvent, 0, 8)
	for {
		select {
		case event := <-p.Events():
			events = append(events, event)
		default:
			return events
		}
	}
}

func eventKinds(events []PollEvent, id domain.AccountID) []PollEventKind {
	kinds := make([]PollEventKind, 0, len(events))
	for _, event := range events {
		if event.AccountID == id {
			kinds = append(kinds, event.Kind)
		}
	}
	return kinds
}

func newTestPoller(f *serviceFixture, fetcher *scriptedFetcher) *Poller {
	return NewPoller(f.service, fetcher, PollerConfig{
		Interval:    time.Hour,
		BackoffBase: time.Minute,
		BackoffCap:  15 * time.Minute,
		Clock:       fixedClock{now: f.now},
	})
}

func TestPollOnceUpdatesSnapshots(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	alice, _ := f.addAccount(t, "alice@example.com")

	fetcher := newScriptedFetcher()
	fetcher.snapshots["access-alice@example.com"] = domain.UsageSnapshot{
		Short: &domain.UsageWindow{UsedPercent: 33, ResetsAt: f.now.Add(time.Hour), CapturedAt: f.now},
	}

	poller := newTestPoller(f, fetcher)
	poller.PollOnce(context.Background())

	account, err := f.service.GetAccount(context.Background(), alice.ID)
	require.NoError(t, err)
	require.NotNil(t, account.Usage.Short)
	assert.Equal(t, 33.0, account.Usage.Short.UsedPercent)
	assert.False(t, account.Usage.Stale())

	events := drainEvents(poller)
	assert.Equal(t, []PollEventKind{PollEventUpdated}, eventKinds(events, alice.ID))
}

func TestPollOnceFailureDegradesOneAccountOnly(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	alice, _ := f.addAccount(t, "alice@example.com")
	bob, _ := f.addAccount(t, "bob@example.com")

	fetcher := newScriptedFetcher()
	fetcher.snapshots["access-alice@example.com"] = domain.UsageSnapshot{
		Short: &domain.UsageWindow{UsedPercent: 10, ResetsAt: f.now.Add(time.Hour), CapturedAt: f.now},
	}
	fetcher.snapshots["access-bob@example.com"] = domain.UsageSnapshot{
		Short: &domain.UsageWindow{UsedPercent: 20, ResetsAt: f.now.Add(time.Hour), CapturedAt: f.now},
	}

	poller := newTestPoller(f, fetcher)
	poller.PollOnce(context.Background())
	drainEvents(poller)

	// Bob's endpoint starts rate limiting; Alice keeps updating.
	fetcher.mu.Lock()
	fetcher.errs["access-bob@example.com"] = fmt.Errorf("usage endpoint returned status 429")
	fetcher.snapshots["access-alice@example.com"] = domain.UsageSnapshot{
		Short: &domain.UsageWindow{UsedPercent: 11, ResetsAt: f.now.Add(time.Hour), CapturedAt: f.now},
	}
	fetcher.mu.Unlock()

	poller.PollOnce(context.Background())

	bobAccount, err := f.service.GetAccount(context.Background(), bob.ID)
	require.NoError(t, err)
	require.NotNil(t, bobAccount.Usage.Short)
	assert.Equal(t, 20.0, bobAccount.Usage.Short.UsedPercent)
	assert.True(t, bobAccount.Usage.Stale())
	assert.Equal(t, f.now, bobAccount.Usage.StaleSince)

	aliceAccount, err := f.service.GetAccount(context.Background(), alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 11.0, aliceAccount.Usage.Short.UsedPercent)
	assert.False(t, aliceAccount.Usage.Stale())

	events := drainEvents(poller)
	assert.Equal(t, []PollEventKind{PollEventFailed}, eventKinds(events, bob.ID))
	assert.Equal(t, []PollEventKind{PollEventUpdated}, eventKinds(events, alice.ID))
}

func TestPollOnceBacksOffFailedAccount(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	_, _ = f.addAccount(t, "alice@example.com")

	fetcher := newScriptedFetcher()
	fetcher.errs["access-alice@example.com"] = fmt.Errorf("usage endpoint returned status 429")

	poller := newTestPoller(f, fetcher)
	poller.PollOnce(context.Background())
	assert.Equal(t, 1, fetcher.callCount("access-alice@example.com"))

	// With the clock frozen the retry window has not elapsed, so the next
	// cycle skips the account entirely.
	poller.PollOnce(context.Background())
	assert.Equal(t, 1, fetcher.callCount("access-alice@example.com"))
}

func TestPollOnceEmitsCredentialExpired(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	alice, _ := f.addAccount(t, "alice@example.com")

	fetcher := newScriptedFetcher()
	fetcher.errs["access-alice@example.com"] = fmt.Errorf("fetch usage: %w", domain.ErrCredentialExpired)

	poller := newTestPoller(f, fetcher)
	poller.PollOnce(context.Background())

	events := drainEvents(poller)
	assert.Equal(t, []PollEventKind{PollEventFailed, PollEventCredentialExpired}, eventKinds(events, alice.ID))
}

func TestPollOnceSkipsAPIKeyAccounts(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)

	credential, err := domain.NewAPIKeyCredential("sk-test-123")
	require.NoError(t, err)
	id, err := credential.DeriveAccountID()
	require.NoError(t, err)
	require.NoError(t, f.service.AddAccount(context.Background(), domain.Account{ID: id, Name: "api"}, credential, false))

	fetcher := newScriptedFetcher()
	poller := newTestPoller(f, fetcher)
	poller.PollOnce(context.Background())

	fetcher.mu.Lock()
	defer fetcher.mu.Unlock()
	assert.Empty(t, fetcher.calls)
	assert.Empty(t, drainEvents(poller))
}

func TestBackoffDoublesUpToCap(t *testing.T) {
	t.Parallel()

	poller := NewPoller(nil, nil, PollerConfig{BackoffBase: time.Minute, BackoffCap: 15 * time.Minute})

	assert.Equal(t, time.Minute, poller.backoff(1))
	assert.Equal(t, 2*time.Minute, poller.backoff(2))
	assert.Equal(t, 8*time.Minute, poller.backoff(4))
	assert.Equal(t, 15*time.Minute, poller.backoff(5))
	assert.Equal(t, 15*time.Minute, poller.backoff(10))
}

func TestRunStopsOnContextCancel(t *testing.T) {
	t.Parallel()

	f := newServiceFixture(t)
	fetcher := newScriptedFetcher()
	poller := newTestPoller(f, fetcher)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- poller.Run(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("poller did not stop after cancellation")
	}
}
