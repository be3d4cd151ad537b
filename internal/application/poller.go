package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/bnema/codex-switch/internal/domain"
	"github.com/bnema/codex-switch/internal/ports"
	"golang.org/x/sync/semaphore"
)

const (
	defaultPollInterval  = time.Minute
	defaultMaxConcurrent = 8
	defaultBackoffBase   = time.Minute
	defaultBackoffCap    = 15 * time.Minute
	eventBufferSize      = 64
)

type PollEventKind string

const (
	PollEventUpdated           PollEventKind = "updated"
	PollEventFailed            PollEventKind = "failed"
	PollEventCredentialExpired PollEventKind = "credential_expired"
)

type PollEvent struct {
	Kind      PollEventKind
	AccountID domain.AccountID
	At        time.Time
	Err       error
}

type PollerConfig struct {
	Interval      time.Duration
	MaxConcurrent int64
	BackoffBase   time.Duration
	BackoffCap    time.Duration
	Logger        *slog.Logger
	Clock         ports.Clock
}

// Poller keeps every stored account's usage snapshot fresh. Each cycle polls
// all accounts concurrently with at most one in-flight request per account
// and a global ceiling across accounts. Failures degrade that one account's
// snapshot to stale and back off that account alone; the scheduler and the
// other accounts keep their cadence.
type Poller struct {
	service *Service
	fetcher ports.UsageFetcher
	cfg     PollerConfig
	sem     *semaphore.Weighted
	events  chan PollEvent

	mu     sync.Mutex
	states map[domain.AccountID]*pollState
	wg     sync.WaitGroup
}

type pollState struct {
	inFlight    bool
	failures    int
	nextAttempt time.Time
}

func NewPoller(service *Service, fetcher ports.UsageFetcher, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultPollInterval
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxConcurrent
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = defaultBackoffCap
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = ports.SystemClock{}
	}

	return &Poller{
		service: service,
		fetcher: fetcher,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(cfg.MaxConcurrent),
		events:  make(chan PollEvent, eventBufferSize),
		states:  map[domain.AccountID]*pollState{},
	}
}

// Events exposes poll outcomes, including CredentialExpired signals, to
// whoever wants to observe them. Events are dropped, never blocked on, when
// no one is reading.
func (p *Poller) Events() <-chan PollEvent {
	return p.events
}

// Run drives poll cycles on the configured interval until ctx is cancelled.
// The first cycle starts immediately.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.cycle(ctx)

	for {
		select {
		case <-ctx.Done():
			p.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			p.cycle(ctx)
		}
	}
}

// PollOnce runs one cycle and waits for every started poll to finish.
func (p *Poller) PollOnce(ctx context.Context) {
	p.cycle(ctx)
	p.wg.Wait()
}

func (p *Poller) cycle(ctx context.Context) {
	accounts, err := p.service.ListAccounts(ctx)
	if err != nil {
		p.cfg.Logger.Error("list accounts for poll cycle", "err", err)
		return
	}

	now := p.cfg.Clock.Now()
	for _, account := range accounts {
		// The usage endpoint is session-auth only; api-key accounts
		// have nothing to poll.
		if account.Auth.Method != domain.AuthMethodChatGPT {
			continue
		}

		if !p.tryStart(account.ID, now) {
			continue
		}

		p.wg.Add(1)
		go p.poll(ctx, account)
	}
}

// tryStart claims the account's poll slot. An account still mid-poll or
// inside its backoff window is skipped for this cycle, not queued.
func (p *Poller) tryStart(id domain.AccountID, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.states[id]
	if !ok {
		state = &pollState{}
		p.states[id] = state
	}

	if state.inFlight || now.Before(state.nextAttempt) {
		return false
	}

	state.inFlight = true
	return true
}

func (p *Poller) poll(ctx context.Context, account domain.Account) {
	defer p.wg.Done()
	defer p.finish(account.ID)

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer p.sem.Release(1)

	credential, err := p.service.Credential(ctx, account)
	if err != nil {
		p.fail(ctx, account.ID, err)
		return
	}

	snapshot, err := p.fetcher.Fetch(ctx, credential)
	if err != nil {
		p.fail(ctx, account.ID, err)
		return
	}

	if err := p.service.SetUsage(ctx, account.ID, snapshot); err != nil {
		p.fail(ctx, account.ID, err)
		return
	}

	p.mu.Lock()
	state := p.states[account.ID]
	state.failures = 0
	state.nextAttempt = time.Time{}
	p.mu.Unlock()

	p.emit(PollEvent{Kind: PollEventUpdated, AccountID: account.ID, At: p.cfg.Clock.Now()})
}

func (p *Poller) finish(id domain.AccountID) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if state, ok := p.states[id]; ok {
		state.inFlight = false
	}
}

func (p *Poller) fail(ctx context.Context, id domain.AccountID, pollErr error) {
	if errors.Is(pollErr, context.Canceled) || errors.Is(pollErr, context.DeadlineExceeded) {
		return
	}

	now := p.cfg.Clock.Now()

	p.mu.Lock()
	state := p.states[id]
	state.failures++
	delay := p.backoff(state.failures)
	state.nextAttempt = now.Add(delay)
	p.mu.Unlock()

	if err := p.service.MarkUsageStale(ctx, id, now); err != nil {
		p.cfg.Logger.Error("mark usage stale", "account", id, "err", err)
	}

	p.cfg.Logger.Warn("usage poll failed",
		"account", id,
		"retry_in", delay,
		"err", pollErr,
	)

	p.emit(PollEvent{Kind: PollEventFailed, AccountID: id, At: now, Err: pollErr})
	if errors.Is(pollErr, domain.ErrCredentialExpired) {
		p.emit(PollEvent{Kind: PollEventCredentialExpired, AccountID: id, At: now, Err: pollErr})
	}
}

func (p *Poller) backoff(failures int) time.Duration {
	delay := p.cfg.BackoffBase
	for i := 1; i < failures; i++ {
		delay *= 2
		if delay >= p.cfg.BackoffCap {
			return p.cfg.BackoffCap
		}
	}
	if delay > p.cfg.BackoffCap {
		return p.cfg.BackoffCap
	}
	return delay
}

func (p *Poller) emit(event PollEvent) {
	select {
	case p.events <- event:
	default:
	}
}
