package token

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu    sync.Mutex
	cred  *Credential
	saves int
}

func (s *memStore) Load() (*Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cred, nil
}

func (s *memStore) Save(c *Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = c
	s.saves++
	return nil
}

func (s *memStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cred = nil
	return nil
}

// fakeValidator accepts only tokens in the valid set and counts probes.
type fakeValidator struct {
	mu     sync.Mutex
	valid  map[string]bool
	probes int
}

func (v *fakeValidator) Probe(_ context.Context, accessToken string) (bool, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.probes++
	return v.valid[accessToken], nil
}

func (v *fakeValidator) probeCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.probes
}

// blockingProvider parks in Acquire until released, to model a user mid-flow.
type blockingProvider struct {
	started chan struct{}
	release chan struct{}
	cred    *Credential

	mu       sync.Mutex
	acquires int
}

func (p *blockingProvider) Acquire(ctx context.Context) (*Credential, error) {
	p.mu.Lock()
	p.acquires++
	p.mu.Unlock()

	close(p.started)
	select {
	case <-p.release:
		return p.cred, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *blockingProvider) acquireCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquires
}

// instantProvider hands back a credential immediately.
type instantProvider struct {
	cred *Credential
	err  error
}

func (p *instantProvider) Acquire(_ context.Context) (*Credential, error) {
	return p.cred, p.err
}

// seqManual replays canned prompt answers.
type seqManual struct {
	mu      sync.Mutex
	answers []string
	err     error
	prompts int
}

func (m *seqManual) Prompt(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts++
	if m.err != nil {
		return "", m.err
	}
	if m.prompts <= len(m.answers) {
		return m.answers[m.prompts-1], nil
	}
	return "", fmt.Errorf("no more answers")
}

func (m *seqManual) promptCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.prompts
}

func newTestManager(t *testing.T, store Store, validator Validator) *Manager {
	t.Helper()
	mgr, err := NewManager(store, validator)
	require.NoError(t, err)
	return mgr
}

func validCred() *Credential {
	return &Credential{
		AccessToken:     strings.Repeat("a", 48),
		LastValidatedAt: time.Now(),
	}
}

func TestAuthenticateRecentValidationSkipsProbe(t *testing.T) {
	v := &fakeValidator{}
	mgr := newTestManager(t, &memStore{cred: validCred()}, v)

	outcome, err := mgr.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeValidNoAction, outcome)
	assert.Equal(t, 0, v.probeCount(), "a just-validated credential is reused within the operation window")
}

func TestAuthenticateProbeConfirmsStaleValidation(t *testing.T) {
	cred := validCred()
	cred.LastValidatedAt = time.Now().Add(-time.Minute)
	v := &fakeValidator{valid: map[string]bool{cred.AccessToken: true}}
	mgr := newTestManager(t, &memStore{cred: cred}, v)

	outcome, err := mgr.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeValidatedByServer, outcome)
	assert.Equal(t, 1, v.probeCount())
}

func TestAuthenticateExhaustedWithoutChannels(t *testing.T) {
	mgr := newTestManager(t, &memStore{}, &fakeValidator{})

	_, err := mgr.Authenticate(context.Background())
	require.ErrorIs(t, err, ErrAuthExhausted)
}

func TestHasValidToken(t *testing.T) {
	cred := validCred()
	v := &fakeValidator{valid: map[string]bool{}}
	mgr := newTestManager(t, &memStore{cred: cred}, v)

	assert.False(t, mgr.HasValidToken(context.Background()), "server rejection wins over local state")

	v.mu.Lock()
	v.valid = map[string]bool{cred.AccessToken: true}
	v.mu.Unlock()
	assert.True(t, mgr.HasValidToken(context.Background()))

	empty := newTestManager(t, &memStore{}, v)
	assert.False(t, empty.HasValidToken(context.Background()))
}

func TestConcurrentInteractiveSingleFlow(t *testing.T) {
	provider := &blockingProvider{
		started: make(chan struct{}),
		release: make(chan struct{}),
		cred:    &Credential{AccessToken: strings.Repeat("n", 48)},
	}
	mgr := newTestManager(t, &memStore{}, &fakeValidator{})
	mgr.SetInteractiveProvider(provider)

	type authResult struct {
		outcome Outcome
		err     error
	}
	first := make(chan authResult, 1)
	go func() {
		outcome, err := mgr.Authenticate(context.Background())
		first <- authResult{outcome, err}
	}()

	<-provider.started

	// Second caller arrives while the flow is underway: told so, never a
	// second prompt.
	_, err := mgr.Authenticate(context.Background())
	require.ErrorIs(t, err, ErrAuthInProgress)
	assert.Equal(t, 1, provider.acquireCount())

	close(provider.release)
	r := <-first
	require.NoError(t, r.err)
	assert.Equal(t, OutcomeNewInteractiveAuth, r.outcome)
	assert.Equal(t, provider.cred.AccessToken, mgr.AccessToken())
}

func TestDoRetriesExactlyOnceOnUnauthorized(t *testing.T) {
	fresh := strings.Repeat("f", 48)
	mgr := newTestManager(t, &memStore{cred: validCred()}, &fakeValidator{})
	mgr.SetInteractiveProvider(&instantProvider{cred: &Credential{AccessToken: fresh}})

	calls := 0
	err := mgr.Do(context.Background(), func(_ context.Context, accessToken string) error {
		calls++
		if calls == 1 {
			return fmt.Errorf("got 401: %w", ErrUnauthorized)
		}
		assert.Equal(t, fresh, accessToken, "retry uses the recovered token")
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoSecondUnauthorizedIsHardFailure(t *testing.T) {
	mgr := newTestManager(t, &memStore{cred: validCred()}, &fakeValidator{})
	mgr.SetInteractiveProvider(&instantProvider{cred: &Credential{AccessToken: strings.Repeat("f", 48)}})

	calls := 0
	err := mgr.Do(context.Background(), func(_ context.Context, _ string) error {
		calls++
		return fmt.Errorf("got 401: %w", ErrUnauthorized)
	})

	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, 2, calls, "exactly one retry, never a loop")
}

func TestDoRecoveryFailureStopsRetry(t *testing.T) {
	mgr := newTestManager(t, &memStore{cred: validCred()}, &fakeValidator{})

	calls := 0
	err := mgr.Do(context.Background(), func(_ context.Context, _ string) error {
		calls++
		return fmt.Errorf("got 403: %w", ErrUnauthorized)
	})

	require.ErrorIs(t, err, ErrAuthExhausted)
	assert.Equal(t, 1, calls, "no retry without a recovered credential")
}

func TestDoPassesThroughOtherErrors(t *testing.T) {
	mgr := newTestManager(t, &memStore{cred: validCred()}, &fakeValidator{})

	wantErr := fmt.Errorf("connection reset")
	calls := 0
	err := mgr.Do(context.Background(), func(_ context.Context, _ string) error {
		calls++
		return wantErr
	})

	require.ErrorIs(t, err, wantErr)
	assert.Equal(t, 1, calls, "transport failures are not retried by the wrapper")
}

func TestManualEntryBoundedRetries(t *testing.T) {
	manual := &seqManual{answers: []string{
		"tooshort",             // fails the format sanity check
		strings.Repeat("x", 48), // shaped fine, rejected by the server
		strings.Repeat("y", 48), // same again
	}}
	mgr := newTestManager(t, &memStore{}, &fakeValidator{})
	mgr.SetManualEntry(manual)

	_, err := mgr.Authenticate(context.Background())
	require.ErrorIs(t, err, ErrAuthExhausted)
	assert.Equal(t, 3, manual.promptCount(), "gives up after the attempt bound instead of looping forever")
}

func TestManualEntryAccepted(t *testing.T) {
	pasted := "Bearer aaa.bbb.ccc"
	store := &memStore{}
	manual := &seqManual{answers: []string{pasted}}
	mgr := newTestManager(t, store, &fakeValidator{valid: map[string]bool{"aaa.bbb.ccc": true}})
	mgr.SetManualEntry(manual)

	outcome, err := mgr.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNewInteractiveAuth, outcome)
	assert.Equal(t, "aaa.bbb.ccc", mgr.AccessToken(), "bearer prefix trimmed before validation")
	assert.Equal(t, 1, store.saves, "accepted credential is persisted")
}

func TestManualEntryCancelled(t *testing.T) {
	manual := &seqManual{err: ErrUserCancelled}
	mgr := newTestManager(t, &memStore{}, &fakeValidator{})
	mgr.SetManualEntry(manual)

	outcome, err := mgr.Authenticate(context.Background())
	require.ErrorIs(t, err, ErrUserCancelled)
	assert.Equal(t, OutcomeCancelled, outcome)
	assert.Equal(t, 1, manual.promptCount(), "cancellation stops the chain, no re-prompt")
}

func TestInteractiveDenialStopsChain(t *testing.T) {
	manual := &seqManual{answers: []string{strings.Repeat("z", 48)}}
	mgr := newTestManager(t, &memStore{}, &fakeValidator{})
	mgr.SetInteractiveProvider(&instantProvider{err: ErrUserCancelled})
	mgr.SetManualEntry(manual)

	outcome, err := mgr.Authenticate(context.Background())
	require.ErrorIs(t, err, ErrUserCancelled)
	assert.Equal(t, OutcomeCancelled, outcome)
	assert.Equal(t, 0, manual.promptCount(), "an explicit denial never falls through to manual entry")
}

func TestInteractiveFailureFallsThroughToManual(t *testing.T) {
	valid := strings.Repeat("m", 48)
	manual := &seqManual{answers: []string{valid}}
	mgr := newTestManager(t, &memStore{}, &fakeValidator{valid: map[string]bool{valid: true}})
	mgr.SetInteractiveProvider(&instantProvider{err: fmt.Errorf("browser unavailable")})
	mgr.SetManualEntry(manual)

	outcome, err := mgr.Authenticate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeNewInteractiveAuth, outcome)
	assert.Equal(t, valid, mgr.AccessToken())
}

func TestSignOut(t *testing.T) {
	store := &memStore{cred: validCred()}
	mgr := newTestManager(t, store, &fakeValidator{})

	require.NoError(t, mgr.SignOut())
	assert.Empty(t, mgr.AccessToken())
	assert.Nil(t, store.cred)
}
