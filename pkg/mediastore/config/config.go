// Package config builds mediastore services and monitors from
// declarative configuration, with optional environment overrides.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/artreg/mediastore/pkg/mediastore"
	memoryprovider "github.com/artreg/mediastore/pkg/mediastore/provider/memory"
	s3provider "github.com/artreg/mediastore/pkg/mediastore/provider/s3"
	memoryrepo "github.com/artreg/mediastore/pkg/mediastore/repo/memory"
	postgresrepo "github.com/artreg/mediastore/pkg/mediastore/repo/postgres"
)

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top
// of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:               "8080",
		Environment:        "development",
		DatabaseType:       "memory",
		AlertThreshold:     mediastore.DefaultAlertThreshold,
		FallbackTotalBytes: mediastore.DefaultFallbackTotalBytes,
		PollInterval:       mediastore.DefaultPollInterval,
		AlertCooldown:      6 * time.Hour,
		ProviderTimeout:    mediastore.DefaultProviderTimeout,
		Backends: []BackendConfig{
			{ID: "memory", Type: "memory"},
		},
	}
}

// ServerConfig represents server configuration for the media storage
// service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing

	// Database configuration for the backend registry
	DatabaseURL  string
	DatabaseType string // "memory", "postgres"

	// Placement policy
	OperatorAccount    string
	AlertThreshold     float64
	FallbackTotalBytes int64
	PollInterval       time.Duration
	AlertCooldown      time.Duration
	ProviderTimeout    time.Duration

	// Storage backends, one per credential set
	Backends []BackendConfig
}

// BackendConfig represents configuration for one storage backend
type BackendConfig struct {
	ID         string
	Type       string // "memory", "s3"
	TotalBytes int64
	S3         S3Config
}

// S3Config holds the provider settings for an s3-type backend
type S3Config struct {
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string
	UsePathStyle    bool
	PublicBaseURL   string
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	if c.DatabaseType != "memory" && c.DatabaseType != "postgres" {
		return errors.New("database_type must be 'memory' or 'postgres'")
	}

	if c.DatabaseType == "postgres" && c.DatabaseURL == "" {
		return errors.New("database_url is required when using postgres")
	}

	if c.AlertThreshold <= 0 || c.AlertThreshold > 1 {
		return errors.New("alert_threshold must be in (0, 1]")
	}

	if len(c.Backends) == 0 {
		return errors.New("at least one storage backend is required")
	}

	seen := make(map[string]bool)
	for _, backend := range c.Backends {
		if backend.ID == "" {
			return errors.New("backend id is required")
		}
		if seen[backend.ID] {
			return fmt.Errorf("duplicate backend id '%s'", backend.ID)
		}
		seen[backend.ID] = true

		switch backend.Type {
		case "memory":
		case "s3":
			if backend.S3.Bucket == "" {
				return fmt.Errorf("backend '%s': s3 bucket is required", backend.ID)
			}
		default:
			return fmt.Errorf("backend '%s': unsupported type '%s'", backend.ID, backend.Type)
		}
	}

	return nil
}

// Repositories bundles the persistence interfaces built from the
// configuration. With a memory database both are served by one in-memory
// repository seeded from the backend list.
type Repositories struct {
	Registry  mediastore.Registry
	Admins    mediastore.AdminDirectory
	Bootstrap *memoryrepo.Repository // non-nil only for the memory database
	Pool      *pgxpool.Pool          // non-nil only for postgres
}

// BuildRepositories creates the registry and admin directory.
func (c *ServerConfig) BuildRepositories(ctx context.Context) (*Repositories, error) {
	switch c.DatabaseType {
	case "postgres":
		pool, err := pgxpool.New(ctx, c.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
		repo := postgresrepo.NewWithPool(pool)
		return &Repositories{Registry: repo, Admins: repo, Pool: pool}, nil

	default:
		repo := memoryrepo.New()
		for _, backend := range c.Backends {
			repo.AddBackend(&mediastore.StorageBackend{
				ID:         backend.ID,
				IsActive:   true,
				TotalBytes: backend.TotalBytes,
			})
		}
		return &Repositories{Registry: repo, Admins: repo, Bootstrap: repo}, nil
	}
}

// BuildProviders constructs one storage provider per configured backend.
func (c *ServerConfig) BuildProviders() (map[string]mediastore.Provider, error) {
	providers := make(map[string]mediastore.Provider, len(c.Backends))

	for _, backend := range c.Backends {
		switch backend.Type {
		case "memory":
			providers[backend.ID] = memoryprovider.New(backend.ID, backend.TotalBytes)
		case "s3":
			provider, err := s3provider.New(s3provider.Config{
				BackendID:       backend.ID,
				Region:          backend.S3.Region,
				Bucket:          backend.S3.Bucket,
				AccessKeyID:     backend.S3.AccessKeyID,
				SecretAccessKey: backend.S3.SecretAccessKey,
				Endpoint:        backend.S3.Endpoint,
				UsePathStyle:    backend.S3.UsePathStyle,
				PublicBaseURL:   backend.S3.PublicBaseURL,
				TotalBytes:      backend.TotalBytes,
			})
			if err != nil {
				return nil, fmt.Errorf("backend '%s': %w", backend.ID, err)
			}
			providers[backend.ID] = provider
		default:
			return nil, fmt.Errorf("backend '%s': unsupported type '%s'", backend.ID, backend.Type)
		}
	}

	return providers, nil
}

// BuildService creates a Service from the configuration.
func (c *ServerConfig) BuildService(repos *Repositories, providers map[string]mediastore.Provider, logger *slog.Logger) (mediastore.Service, error) {
	options := []mediastore.Option{
		mediastore.WithRegistry(repos.Registry),
		mediastore.WithOperatorAccount(c.OperatorAccount),
		mediastore.WithAlertThreshold(c.AlertThreshold),
		mediastore.WithProviderTimeout(c.ProviderTimeout),
		mediastore.WithLogger(logger),
	}
	for id, provider := range providers {
		options = append(options, mediastore.WithProvider(id, provider))
	}
	return mediastore.New(options...)
}

// BuildMonitor creates the capacity monitor. The notifier stays
// caller-supplied: alert delivery is an external channel.
func (c *ServerConfig) BuildMonitor(repos *Repositories, providers map[string]mediastore.Provider, notifier mediastore.Notifier, logger *slog.Logger) (*mediastore.Monitor, error) {
	options := []mediastore.MonitorOption{
		mediastore.WithMonitorRegistry(repos.Registry),
		mediastore.WithAdminDirectory(repos.Admins),
		mediastore.WithNotifier(notifier),
		mediastore.WithPollInterval(c.PollInterval),
		mediastore.WithThreshold(c.AlertThreshold),
		mediastore.WithFallbackTotalBytes(c.FallbackTotalBytes),
		mediastore.WithMonitorProviderTimeout(c.ProviderTimeout),
		mediastore.WithAlertCooldown(c.AlertCooldown),
		mediastore.WithMonitorLogger(logger),
	}
	for id, provider := range providers {
		options = append(options, mediastore.WithMonitorProvider(id, provider))
	}
	return mediastore.NewMonitor(options...)
}
