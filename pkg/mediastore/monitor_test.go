package mediastore_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artreg/mediastore/pkg/mediastore"
	memoryprovider "github.com/artreg/mediastore/pkg/mediastore/provider/memory"
	memoryrepo "github.com/artreg/mediastore/pkg/mediastore/repo/memory"
)

// recordingNotifier captures deliveries and can fail selected recipients.
type recordingNotifier struct {
	mu       sync.Mutex
	messages map[uuid.UUID][]string
	failFor  map[uuid.UUID]error
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		messages: make(map[uuid.UUID][]string),
		failFor:  make(map[uuid.UUID]error),
	}
}

func (n *recordingNotifier) Notify(ctx context.Context, recipientID uuid.UUID, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err, ok := n.failFor[recipientID]; ok {
		return err
	}
	n.messages[recipientID] = append(n.messages[recipientID], message)
	return nil
}

func (n *recordingNotifier) count(recipientID uuid.UUID) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages[recipientID])
}

type monitorFixture struct {
	repo      *memoryrepo.Repository
	providers map[string]*memoryprovider.Provider
	notifier  *recordingNotifier
	monitor   *mediastore.Monitor
	admins    []uuid.UUID
}

func newMonitorFixture(t *testing.T, backends map[string]*mediastore.StorageBackend, adminCount int, opts ...mediastore.MonitorOption) *monitorFixture {
	t.Helper()

	repo := memoryrepo.New()
	notifier := newRecordingNotifier()
	providers := make(map[string]*memoryprovider.Provider)

	options := []mediastore.MonitorOption{
		mediastore.WithMonitorRegistry(repo),
		mediastore.WithAdminDirectory(repo),
		mediastore.WithNotifier(notifier),
	}
	for id, backend := range backends {
		repo.AddBackend(backend)
		provider := memoryprovider.New(id, backend.TotalBytes)
		providers[id] = provider
		options = append(options, mediastore.WithMonitorProvider(id, provider))
	}

	var admins []uuid.UUID
	for i := 0; i < adminCount; i++ {
		id := uuid.New()
		admins = append(admins, id)
		repo.AddAdmin(&mediastore.Admin{ID: id})
	}

	options = append(options, opts...)

	monitor, err := mediastore.NewMonitor(options...)
	require.NoError(t, err)

	return &monitorFixture{repo: repo, providers: providers, notifier: notifier, monitor: monitor, admins: admins}
}

func TestMonitorCreation(t *testing.T) {
	repo := memoryrepo.New()

	tests := []struct {
		name        string
		options     []mediastore.MonitorOption
		expectError bool
	}{
		{
			name:        "missing registry fails",
			options:     []mediastore.MonitorOption{mediastore.WithNotifier(newRecordingNotifier()), mediastore.WithAdminDirectory(repo)},
			expectError: true,
		},
		{
			name:        "missing notifier fails",
			options:     []mediastore.MonitorOption{mediastore.WithMonitorRegistry(repo), mediastore.WithAdminDirectory(repo)},
			expectError: true,
		},
		{
			name: "complete options succeed",
			options: []mediastore.MonitorOption{
				mediastore.WithMonitorRegistry(repo),
				mediastore.WithAdminDirectory(repo),
				mediastore.WithNotifier(newRecordingNotifier()),
			},
			expectError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			monitor, err := mediastore.NewMonitor(tt.options...)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, monitor)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, monitor)
			}
		})
	}
}

func TestMonitorPersistsSnapshots(t *testing.T) {
	ctx := context.Background()

	f := newMonitorFixture(t, map[string]*mediastore.StorageBackend{
		"backup-a": {ID: "backup-a", IsActive: true, TotalBytes: 10 * gib},
	}, 1)
	f.providers["backup-a"].SetUsedBytes(3 * gib)

	f.monitor.PollOnce(ctx)

	backend, err := f.repo.Get(ctx, "backup-a")
	require.NoError(t, err)
	assert.Equal(t, 3*gib, backend.UsedBytes)
	assert.Equal(t, 10*gib, backend.TotalBytes)
	assert.NotNil(t, backend.LastPolledAt)
}

func TestMonitorFallbackTotal(t *testing.T) {
	ctx := context.Background()

	// Provider reports no explicit total; the configured fallback keeps
	// ratio math defined.
	f := newMonitorFixture(t, map[string]*mediastore.StorageBackend{
		"backup-a": {ID: "backup-a", IsActive: true, TotalBytes: 0},
	}, 1, mediastore.WithFallbackTotalBytes(4*gib))
	f.providers["backup-a"].SetUsedBytes(1 * gib)

	f.monitor.PollOnce(ctx)

	backend, err := f.repo.Get(ctx, "backup-a")
	require.NoError(t, err)
	assert.Equal(t, 4*gib, backend.TotalBytes)
	assert.Equal(t, 1*gib, backend.UsedBytes)
}

func TestMonitorProbeFailureKeepsStaleFigures(t *testing.T) {
	ctx := context.Background()

	f := newMonitorFixture(t, map[string]*mediastore.StorageBackend{
		"backup-a": {ID: "backup-a", IsActive: true, UsedBytes: 2 * gib, TotalBytes: 10 * gib},
	}, 1)
	f.providers["backup-a"].FailQuota = errors.New("auth expired")

	f.monitor.PollOnce(ctx)

	backend, err := f.repo.Get(ctx, "backup-a")
	require.NoError(t, err)
	assert.Equal(t, 2*gib, backend.UsedBytes)
	assert.Nil(t, backend.LastPolledAt)
	assert.Equal(t, 0, f.notifier.count(f.admins[0]))
}

func TestMonitorThresholdBoundary(t *testing.T) {
	ctx := context.Background()

	t.Run("ratio exactly 0.90 alerts", func(t *testing.T) {
		f := newMonitorFixture(t, map[string]*mediastore.StorageBackend{
			"backup-a": {ID: "backup-a", IsActive: true, TotalBytes: 10000},
		}, 1)
		f.providers["backup-a"].SetUsedBytes(9000)

		f.monitor.PollOnce(ctx)
		assert.Equal(t, 1, f.notifier.count(f.admins[0]))
	})

	t.Run("ratio just below 0.90 stays quiet", func(t *testing.T) {
		f := newMonitorFixture(t, map[string]*mediastore.StorageBackend{
			"backup-a": {ID: "backup-a", IsActive: true, TotalBytes: 10000},
		}, 1)
		f.providers["backup-a"].SetUsedBytes(8999)

		f.monitor.PollOnce(ctx)
		assert.Equal(t, 0, f.notifier.count(f.admins[0]))
	})
}

func TestMonitorAlertFanOut(t *testing.T) {
	ctx := context.Background()

	f := newMonitorFixture(t, map[string]*mediastore.StorageBackend{
		"backup-a": {ID: "backup-a", IsActive: true, TotalBytes: 10 * gib},
	}, 3)
	f.providers["backup-a"].SetUsedBytes(10 * gib)

	// One recipient's channel is down; the others must still be alerted.
	f.notifier.failFor[f.admins[1]] = errors.New("push channel unavailable")

	f.monitor.PollOnce(ctx)

	assert.Equal(t, 1, f.notifier.count(f.admins[0]))
	assert.Equal(t, 0, f.notifier.count(f.admins[1]))
	assert.Equal(t, 1, f.notifier.count(f.admins[2]))
}

func TestMonitorAlertCooldown(t *testing.T) {
	ctx := context.Background()

	t.Run("cooldown suppresses repeat alerts", func(t *testing.T) {
		f := newMonitorFixture(t, map[string]*mediastore.StorageBackend{
			"backup-a": {ID: "backup-a", IsActive: true, TotalBytes: 10 * gib},
		}, 1)
		f.providers["backup-a"].SetUsedBytes(10 * gib)

		f.monitor.PollOnce(ctx)
		f.monitor.PollOnce(ctx)

		assert.Equal(t, 1, f.notifier.count(f.admins[0]))
	})

	t.Run("zero cooldown re-alerts every cycle", func(t *testing.T) {
		f := newMonitorFixture(t, map[string]*mediastore.StorageBackend{
			"backup-a": {ID: "backup-a", IsActive: true, TotalBytes: 10 * gib},
		}, 1, mediastore.WithAlertCooldown(0))
		f.providers["backup-a"].SetUsedBytes(10 * gib)

		f.monitor.PollOnce(ctx)
		f.monitor.PollOnce(ctx)

		assert.Equal(t, 2, f.notifier.count(f.admins[0]))
	})
}

// flakyDirectory fails a set number of ListAdmins calls before
// delegating to the real directory.
type flakyDirectory struct {
	inner    mediastore.AdminDirectory
	failures int
}

func (d *flakyDirectory) ListAdmins(ctx context.Context) ([]*mediastore.Admin, error) {
	if d.failures > 0 {
		d.failures--
		return nil, errors.New("directory unavailable")
	}
	return d.inner.ListAdmins(ctx)
}

func TestMonitorAlertsAfterDirectoryRecovers(t *testing.T) {
	ctx := context.Background()

	repo := memoryrepo.New()
	repo.AddBackend(&mediastore.StorageBackend{ID: "backup-a", IsActive: true, TotalBytes: 10 * gib})
	adminID := uuid.New()
	repo.AddAdmin(&mediastore.Admin{ID: adminID})

	provider := memoryprovider.New("backup-a", 10*gib)
	provider.SetUsedBytes(10 * gib)

	notifier := newRecordingNotifier()
	monitor, err := mediastore.NewMonitor(
		mediastore.WithMonitorRegistry(repo),
		mediastore.WithAdminDirectory(&flakyDirectory{inner: repo, failures: 1}),
		mediastore.WithNotifier(notifier),
		mediastore.WithMonitorProvider("backup-a", provider),
	)
	require.NoError(t, err)

	// The crossing coincides with a directory outage: nobody is alerted
	// and the cool-down must not start.
	monitor.PollOnce(ctx)
	assert.Equal(t, 0, notifier.count(adminID))

	monitor.PollOnce(ctx)
	assert.Equal(t, 1, notifier.count(adminID))
}

func TestMonitorSkipsInactiveBackends(t *testing.T) {
	ctx := context.Background()

	f := newMonitorFixture(t, map[string]*mediastore.StorageBackend{
		"backup-a": {ID: "backup-a", IsActive: false, TotalBytes: 10 * gib},
	}, 1)
	f.providers["backup-a"].SetUsedBytes(10 * gib)

	f.monitor.PollOnce(ctx)

	assert.Equal(t, 0, f.providers["backup-a"].Stats().QuotaCalls)
	assert.Equal(t, 0, f.notifier.count(f.admins[0]))
}
