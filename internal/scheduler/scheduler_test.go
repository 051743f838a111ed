package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/meeting-alertd/internal/calendar"
	"github.com/bnema/meeting-alertd/internal/config"
	"github.com/bnema/meeting-alertd/internal/notify"
	"github.com/bnema/meeting-alertd/internal/token"
)

// memStore keeps a credential in memory so the manager starts authenticated.
type memStore struct {
	cred *token.Credential
}

func (s *memStore) Load() (*token.Credential, error) { return s.cred, nil }
func (s *memStore) Save(c *token.Credential) error   { s.cred = c; return nil }
func (s *memStore) Clear() error                     { s.cred = nil; return nil }

// okValidator accepts everything without a network round trip.
type okValidator struct{}

func (okValidator) Probe(_ context.Context, _ string) (bool, error) { return true, nil }

// fakeSource serves canned events and counts fetches.
type fakeSource struct {
	mu      sync.Mutex
	events  []calendar.Event
	err     error
	fetches int
}

func (f *fakeSource) Fetch(_ context.Context, _, _ time.Time) ([]calendar.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func (f *fakeSource) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

// recordingChannel captures every dispatched batch.
type recordingChannel struct {
	mu      sync.Mutex
	batches [][]calendar.Event
	metas   []notify.Meta
}

func (c *recordingChannel) Name() string { return "recording" }

func (c *recordingChannel) Notify(_ context.Context, batch []calendar.Event, meta notify.Meta) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.batches = append(c.batches, batch)
	c.metas = append(c.metas, meta)
	return nil
}

func (c *recordingChannel) dispatchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func testConfig() *config.Config {
	return &config.Config{
		Alerts: config.AlertConfig{
			ThresholdMinutes:       2,
			LookaheadWindowMinutes: 30,
			NearDeltaMinutes:       2,
			DedupHighWater:         100,
		},
		Polling: config.PollingConfig{
			ResyncIntervalMinutes:     30,
			AlertCheckIntervalSeconds: 30,
			StalenessBoundHours:       4,
		},
	}
}

func newTestScheduler(t *testing.T, source *fakeSource, channel *recordingChannel, cfg *config.Config) *Scheduler {
	t.Helper()

	mgr, err := token.NewManager(&memStore{cred: &token.Credential{
		AccessToken:     "test-access-token-long-enough-to-be-plausible",
		LastValidatedAt: time.Now(),
	}}, okValidator{})
	require.NoError(t, err)

	return New(mgr, source, notify.NewDispatcher(channel), func() (*config.Config, error) {
		return cfg, nil
	})
}

func TestFetchCycleDropsCancelled(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	source := &fakeSource{events: []calendar.Event{
		event("keep", now.Add(10*time.Minute), now.Add(40*time.Minute)),
		{ID: "flagged", Subject: "flagged", Start: now.Add(15 * time.Minute), End: now.Add(45 * time.Minute), Cancelled: true},
		{ID: "prefixed", Subject: "Cancelled: standup", Start: now.Add(20 * time.Minute), End: now.Add(50 * time.Minute)},
	}}
	channel := &recordingChannel{}

	s := newTestScheduler(t, source, channel, testConfig())
	s.now = func() time.Time { return now }

	require.NoError(t, s.RunFetchCycle(context.Background()))

	events, fetchedAt := s.Snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "keep", events[0].ID)
	assert.Equal(t, now, fetchedAt)
}

func TestAlertSelectionWindow(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	source := &fakeSource{events: []calendar.Event{
		event("in-one", now.Add(time.Minute), now.Add(31*time.Minute)),
		event("in-three", now.Add(3*time.Minute), now.Add(33*time.Minute)),
	}}
	channel := &recordingChannel{}

	s := newTestScheduler(t, source, channel, testConfig())
	s.now = func() time.Time { return now }

	require.NoError(t, s.RunFetchCycle(context.Background()))
	s.RunAlertCycle(context.Background())

	require.Equal(t, 1, channel.dispatchCount())
	require.Len(t, channel.batches[0], 1)
	assert.Equal(t, "in-one", channel.batches[0][0].ID, "1 <= threshold 2 selected, 3 > 2 not")
	assert.Equal(t, "in-one in 1 minute", channel.metas[0].Title)

	assert.True(t, s.alerted.Has("in-one"))
	assert.False(t, s.alerted.Has("in-three"))
}

func TestAlertCycleIdempotent(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	source := &fakeSource{events: []calendar.Event{
		event("soon", now.Add(time.Minute), now.Add(31*time.Minute)),
	}}
	channel := &recordingChannel{}

	s := newTestScheduler(t, source, channel, testConfig())
	s.now = func() time.Time { return now }

	require.NoError(t, s.RunFetchCycle(context.Background()))
	s.RunAlertCycle(context.Background())
	s.RunAlertCycle(context.Background())

	assert.Equal(t, 1, channel.dispatchCount(),
		"back-to-back checks with no time passing never dispatch the same id twice")
}

func TestInProgressNotReAlerted(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	source := &fakeSource{events: []calendar.Event{
		event("underway", now.Add(-2*time.Minute), now.Add(28*time.Minute)),
	}}
	channel := &recordingChannel{}

	s := newTestScheduler(t, source, channel, testConfig())
	s.now = func() time.Time { return now }

	require.NoError(t, s.RunFetchCycle(context.Background()))
	s.alerted.Add("underway") // alerted back when it crossed the threshold

	s.RunAlertCycle(context.Background())
	assert.Equal(t, 0, channel.dispatchCount())
	assert.True(t, s.alerted.Has("underway"), "still active, not evicted")
}

func TestEndedEventEvicted(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	source := &fakeSource{events: []calendar.Event{
		event("over", now.Add(-2*time.Hour), now.Add(-time.Hour)),
	}}
	channel := &recordingChannel{}

	s := newTestScheduler(t, source, channel, testConfig())
	s.now = func() time.Time { return now }

	require.NoError(t, s.RunFetchCycle(context.Background()))
	s.alerted.Add("over")

	s.RunAlertCycle(context.Background())
	assert.Equal(t, 0, channel.dispatchCount())
	assert.False(t, s.alerted.Has("over"), "ended events are evicted from the dedup set")
}

func TestEmptyFetchProducesNoDispatch(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	source := &fakeSource{}
	channel := &recordingChannel{}

	s := newTestScheduler(t, source, channel, testConfig())
	s.now = func() time.Time { return now }

	require.NoError(t, s.RunFetchCycle(context.Background()))
	s.RunAlertCycle(context.Background())

	events, _ := s.Snapshot()
	assert.Empty(t, events)
	assert.Equal(t, 0, channel.dispatchCount())
}

func TestStaleSnapshotTriggersFetch(t *testing.T) {
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	source := &fakeSource{}
	channel := &recordingChannel{}

	s := newTestScheduler(t, source, channel, testConfig())

	current := start
	s.now = func() time.Time { return current }
	require.NoError(t, s.RunFetchCycle(context.Background()))
	require.Equal(t, 1, source.fetchCount())

	// Host slept through the scheduled resync
	current = start.Add(5 * time.Hour)
	s.RunAlertCycle(context.Background())

	require.Eventually(t, func() bool {
		return source.fetchCount() == 2
	}, 2*time.Second, 10*time.Millisecond, "stale snapshot forces an out-of-band fetch")
	assert.Equal(t, 0, channel.dispatchCount(), "the stale cycle itself dispatches nothing")
}

func TestOverlappingFetchSkipped(t *testing.T) {
	source := &fakeSource{}
	channel := &recordingChannel{}

	s := newTestScheduler(t, source, channel, testConfig())
	s.fetching.Store(true)

	require.NoError(t, s.RunFetchCycle(context.Background()))
	assert.Equal(t, 0, source.fetchCount(), "an in-flight fetch is never doubled")
}

func TestFetchTransportFailureSurfaced(t *testing.T) {
	source := &fakeSource{err: errors.New("connection reset")}
	channel := &recordingChannel{}

	s := newTestScheduler(t, source, channel, testConfig())

	err := s.RunFetchCycle(context.Background())
	require.Error(t, err)

	_, fetchedAt := s.Snapshot()
	assert.True(t, fetchedAt.IsZero(), "a failed fetch never replaces the snapshot")
}
