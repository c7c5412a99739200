package mediastore

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultPollInterval is how often the monitor probes the backends when
// no interval is configured. The interval is a deployment choice; pick
// whatever cadence the alerting policy needs.
const DefaultPollInterval = 15 * time.Minute

// Monitor polls every active backend's quota on a fixed interval,
// persists the snapshots into the registry and alerts all administrators
// when a backend's usage ratio crosses the threshold. It runs
// independently of the upload and delete paths and never blocks them.
type Monitor struct {
	registry        Registry
	providers       map[string]Provider
	directory       AdminDirectory
	notifier        Notifier
	interval        time.Duration
	threshold       float64
	fallbackTotal   int64
	providerTimeout time.Duration
	cooldown        time.Duration
	logger          *slog.Logger

	mu        sync.Mutex
	lastAlert map[string]time.Time

	now func() time.Time
}

// MonitorOption represents a functional option for configuring the monitor
type MonitorOption func(*Monitor)

// WithMonitorRegistry sets the backend registry for the monitor
func WithMonitorRegistry(registry Registry) MonitorOption {
	return func(m *Monitor) {
		m.registry = registry
	}
}

// WithMonitorProvider binds a storage provider to a backend id
func WithMonitorProvider(backendID string, provider Provider) MonitorOption {
	return func(m *Monitor) {
		if m.providers == nil {
			m.providers = make(map[string]Provider)
		}
		m.providers[backendID] = provider
	}
}

// WithAdminDirectory sets the directory used to resolve alert recipients
func WithAdminDirectory(directory AdminDirectory) MonitorOption {
	return func(m *Monitor) {
		m.directory = directory
	}
}

// WithNotifier sets the notification channel for capacity alerts
func WithNotifier(notifier Notifier) MonitorOption {
	return func(m *Monitor) {
		m.notifier = notifier
	}
}

// WithPollInterval overrides the polling interval (default 15m)
func WithPollInterval(interval time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.interval = interval
	}
}

// WithThreshold overrides the alerting usage ratio (default 0.90)
func WithThreshold(threshold float64) MonitorOption {
	return func(m *Monitor) {
		m.threshold = threshold
	}
}

// WithFallbackTotalBytes overrides the total substituted when a provider
// reports no explicit quota limit (default 10 GiB)
func WithFallbackTotalBytes(total int64) MonitorOption {
	return func(m *Monitor) {
		m.fallbackTotal = total
	}
}

// WithMonitorProviderTimeout overrides the per-call timeout applied to
// every probe (default 30s)
func WithMonitorProviderTimeout(timeout time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.providerTimeout = timeout
	}
}

// WithAlertCooldown sets the minimum gap between repeat alerts for the
// same backend while it stays over the threshold. Zero re-alerts on
// every tick.
func WithAlertCooldown(cooldown time.Duration) MonitorOption {
	return func(m *Monitor) {
		m.cooldown = cooldown
	}
}

// WithMonitorLogger sets the logger for the monitor
func WithMonitorLogger(logger *slog.Logger) MonitorOption {
	return func(m *Monitor) {
		m.logger = logger
	}
}

// NewMonitor creates a capacity monitor with the given options.
func NewMonitor(options ...MonitorOption) (*Monitor, error) {
	m := &Monitor{
		providers:       make(map[string]Provider),
		interval:        DefaultPollInterval,
		threshold:       DefaultAlertThreshold,
		fallbackTotal:   DefaultFallbackTotalBytes,
		providerTimeout: DefaultProviderTimeout,
		cooldown:        6 * time.Hour,
		lastAlert:       make(map[string]time.Time),
		now:             time.Now,
	}

	for _, option := range options {
		option(m)
	}

	if m.registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if m.notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if m.directory == nil {
		return nil, fmt.Errorf("admin directory is required")
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}

	return m, nil
}

// Run polls immediately and then on every interval tick until the
// context is canceled.
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info("capacity monitor started", "interval", m.interval, "threshold", m.threshold)

	m.PollOnce(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("capacity monitor stopped")
			return
		case <-ticker.C:
			m.PollOnce(ctx)
		}
	}
}

// PollOnce runs a single monitoring cycle: probe every active backend,
// persist the snapshots, alert on threshold crossings. Probe and
// persistence failures are logged and skipped for the cycle; the
// backend keeps its last-known figures.
func (m *Monitor) PollOnce(ctx context.Context) {
	backends, err := m.registry.ListActive(ctx)
	if err != nil {
		m.logger.Error("listing active backends failed", "error", err)
		return
	}

	for _, backend := range backends {
		snap, err := m.probe(ctx, backend)
		if err != nil {
			m.logger.Warn("capacity probe failed, keeping last-known figures",
				"backend_id", backend.ID, "error", err)
			continue
		}

		if err := m.registry.UpdateUsage(ctx, backend.ID, snap.UsedBytes, snap.TotalBytes); err != nil {
			m.logger.Error("persisting usage snapshot failed", "backend_id", backend.ID, "error", err)
			continue
		}

		ratio := snap.Ratio()
		if ratio >= m.threshold {
			if m.shouldAlert(backend.ID) {
				m.alert(ctx, backend.ID, snap)
			}
		} else {
			m.rearm(backend.ID)
		}
	}
}

// probe queries the backend's provider for its quota and normalizes the
// result. An absent total is replaced by the configured fallback so that
// ratio math stays defined.
func (m *Monitor) probe(ctx context.Context, backend *StorageBackend) (UsageSnapshot, error) {
	provider, ok := m.providers[backend.ID]
	if !ok {
		return UsageSnapshot{}, &ProbeError{BackendID: backend.ID, Err: ErrBackendNotFound}
	}

	callCtx, cancel := context.WithTimeout(ctx, m.providerTimeout)
	defer cancel()

	quota, err := provider.Quota(callCtx)
	if err != nil {
		return UsageSnapshot{}, &ProbeError{BackendID: backend.ID, Err: err}
	}

	total := quota.TotalBytes
	if total <= 0 {
		total = m.fallbackTotal
	}

	return UsageSnapshot{
		BackendID:  backend.ID,
		UsedBytes:  quota.UsedBytes,
		TotalBytes: total,
		PolledAt:   m.now(),
	}, nil
}

func (m *Monitor) shouldAlert(backendID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	last, ok := m.lastAlert[backendID]
	if ok && m.cooldown > 0 && m.now().Sub(last) < m.cooldown {
		return false
	}
	return true
}

// markAlerted starts the cool-down window. Called only once the
// recipient list is in hand, so a failed directory lookup never eats an
// alert for the whole window.
func (m *Monitor) markAlerted(backendID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastAlert[backendID] = m.now()
}

// rearm clears the cool-down once the backend drops back under the
// threshold, so the next crossing alerts immediately.
func (m *Monitor) rearm(backendID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.lastAlert, backendID)
}

// alert fans one capacity alert out to every administrator. A delivery
// failure for one recipient never suppresses the others.
func (m *Monitor) alert(ctx context.Context, backendID string, snap UsageSnapshot) {
	admins, err := m.directory.ListAdmins(ctx)
	if err != nil {
		m.logger.Error("listing alert recipients failed", "backend_id", backendID, "error", err)
		return
	}

	m.markAlerted(backendID)

	alert := CapacityAlert{
		BackendID:  backendID,
		UsageRatio: snap.Ratio(),
		Message: fmt.Sprintf("Storage backend %s is at %.1f%% of its capacity (%d of %d bytes used). Add capacity or deactivate the backend.",
			backendID, snap.Ratio()*100, snap.UsedBytes, snap.TotalBytes),
		RaisedAt: m.now(),
	}

	m.logger.Warn("capacity threshold crossed",
		"backend_id", backendID, "usage_ratio", alert.UsageRatio, "recipients", len(admins))

	for _, admin := range admins {
		callCtx, cancel := context.WithTimeout(ctx, m.providerTimeout)
		err := m.notifier.Notify(callCtx, admin.ID, alert.Message)
		cancel()
		if err != nil {
			m.logger.Warn("alert delivery failed", "backend_id", backendID, "recipient", admin.ID, "error", err)
		}
	}
}
