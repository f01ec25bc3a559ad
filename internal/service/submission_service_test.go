package service

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Jem1004/pklapps-v2-sub000/internal/credential"
	"github.com/Jem1004/pklapps-v2-sub000/internal/errclass"
	"github.com/Jem1004/pklapps-v2-sub000/internal/events"
	"github.com/Jem1004/pklapps-v2-sub000/internal/models"
	"github.com/Jem1004/pklapps-v2-sub000/internal/queue"
	"github.com/Jem1004/pklapps-v2-sub000/internal/submit"
	"github.com/Jem1004/pklapps-v2-sub000/internal/syncer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMonitor struct {
	status models.Connectivity
}

func (m *fakeMonitor) Status() models.Connectivity { return m.status }
func (m *fakeMonitor) SampleNow(ctx context.Context) models.Connectivity {
	return m.status
}

type fakeChannel struct {
	err   error
	calls int
}

func (c *fakeChannel) Submit(ctx context.Context, sub models.Submission) error {
	c.calls++
	return c.err
}

type testStack struct {
	svc     *SubmissionService
	store   *queue.Store
	monitor *fakeMonitor
	channel *fakeChannel
	cache   *credential.Cache
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	store, err := queue.NewStore(filepath.Join(t.TempDir(), "queue.db"), 10, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	monitor := &fakeMonitor{status: models.ConnectivityFast}
	channel := &fakeChannel{}
	classifier := errclass.NewClassifier(nil)
	bus := events.NewEventBus()
	cache := credential.NewCache(credential.NewMemoryRepository(20), 5, nil)

	orchestrator := submit.NewOrchestrator(monitor, store, classifier, submit.RetryPolicy{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
	}, bus, nil)
	engine := syncer.NewEngine(store, channel, classifier, syncer.Config{
		RetryLimit: 5,
		RPS:        10000,
		Burst:      100,
	}, bus, nil)

	svc := NewSubmissionService(orchestrator, engine, cache, store, channel, monitor, bus, nil)
	return &testStack{svc: svc, store: store, monitor: monitor, channel: channel, cache: cache}
}

func validSubmission() models.Submission {
	return models.Submission{
		OwnerID:    "student-1",
		Credential: " pkl-2026 ",
		Type:       models.TypeAttendance,
		Payload:    models.AttendanceCheckIn,
		ClientTime: time.Now(),
	}
}

func TestSubmitOnlineDelivers(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	result, err := stack.svc.Submit(ctx, validSubmission())
	require.NoError(t, err)
	assert.Equal(t, submit.StatusDelivered, result.Status)
	assert.Equal(t, 1, stack.channel.calls)
}

func TestSubmitCachesCredentialOnDelivery(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	_, err := stack.svc.Submit(ctx, validSubmission())
	require.NoError(t, err)

	cached, err := stack.cache.Get(ctx, "student-1")
	require.NoError(t, err)
	assert.Equal(t, "PKL-2026", cached, "credential must be cached normalized")

	suggestions, err := stack.svc.CredentialSuggestions(ctx, "student-1", "PKL")
	require.NoError(t, err)
	assert.Equal(t, []string{"PKL-2026"}, suggestions)
}

func TestSubmitOfflineParksInQueue(t *testing.T) {
	stack := newTestStack(t)
	stack.monitor.status = models.ConnectivityOffline
	ctx := context.Background()

	result, err := stack.svc.Submit(ctx, validSubmission())
	require.NoError(t, err)
	assert.Equal(t, submit.StatusStoredOffline, result.Status)
	assert.Equal(t, 0, stack.channel.calls)

	count, err := stack.svc.QueueCount(ctx, models.TypeAttendance)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Offline outcome must not poison the credential cache.
	cached, err := stack.cache.Get(ctx, "student-1")
	require.NoError(t, err)
	assert.Empty(t, cached)
}

func TestSubmitValidation(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*models.Submission)
	}{
		{"missing owner", func(s *models.Submission) { s.OwnerID = "" }},
		{"unknown type", func(s *models.Submission) { s.Type = "HOMEWORK" }},
		{"empty payload", func(s *models.Submission) { s.Payload = "" }},
		{"zero client time", func(s *models.Submission) { s.ClientTime = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub := validSubmission()
			tt.mutate(&sub)
			result, err := stack.svc.Submit(ctx, sub)
			require.Error(t, err)
			assert.Equal(t, submit.StatusFailed, result.Status)
		})
	}
	assert.Equal(t, 0, stack.channel.calls, "invalid submissions must never reach the channel")
}

func TestSyncNowDrainsQueue(t *testing.T) {
	stack := newTestStack(t)
	ctx := context.Background()

	stack.monitor.status = models.ConnectivityOffline
	for i := 0; i < 3; i++ {
		_, err := stack.svc.Submit(ctx, validSubmission())
		require.NoError(t, err)
	}

	stack.monitor.status = models.ConnectivityFast
	result, err := stack.svc.SyncNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.SyncedCount)
	assert.Equal(t, 0, result.RemainingCount)

	count, err := stack.svc.QueueCount(ctx, models.TypeAttendance)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestValidateCredential(t *testing.T) {
	stack := newTestStack(t)

	assert.True(t, stack.svc.ValidateCredential("pkl-2026").Valid)
	assert.False(t, stack.svc.ValidateCredential("x").Valid)
}

func TestConnectivityPassthrough(t *testing.T) {
	stack := newTestStack(t)
	stack.monitor.status = models.ConnectivitySlow
	assert.Equal(t, models.ConnectivitySlow, stack.svc.Connectivity())
}
