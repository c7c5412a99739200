package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// WithEnv applies environment variable overrides using the provided prefix.
//
// Environment variable mapping:
//
// Server:
//   PORT - Server port (default: "8080")
//   ENVIRONMENT - Runtime environment (default: "development")
//
// Registry database:
//   DATABASE_URL - "memory" (default) or a postgres:// connection string
//
// Placement policy:
//   OPERATOR_ACCOUNT - account granted write access on uploaded objects
//   ALERT_THRESHOLD - usage ratio for alerting/rejection (default 0.90)
//   FALLBACK_TOTAL_BYTES - total substituted for unlimited quotas
//   POLL_INTERVAL - capacity polling interval (Go duration, e.g. "15m")
//   ALERT_COOLDOWN - minimum gap between repeat alerts ("0" = every tick)
//
// Storage backends:
//   STORAGE_URLS - comma-separated backend URLs, one per credential set:
//                  - "memory://backup-a?total=10737418240"
//                  - "s3://bucket-name?id=backup-b&region=us-east-1&total=10737418240"
//                    (optional: endpoint, path_style, access_key, secret_key, base_url)
func WithEnv(prefix string) Option {
	return func(c *ServerConfig) error {
		if v, ok := lookupEnv(prefix, "PORT"); ok && v != "" {
			c.Port = v
		}
		if v, ok := lookupEnv(prefix, "ENVIRONMENT"); ok && v != "" {
			c.Environment = v
		}

		if err := applyDatabaseEnv(prefix, c); err != nil {
			return err
		}
		if err := applyPolicyEnv(prefix, c); err != nil {
			return err
		}
		return applyStorageEnv(prefix, c)
	}
}

func lookupEnv(prefix, key string) (string, bool) {
	if prefix != "" {
		return os.LookupEnv(prefix + key)
	}
	return os.LookupEnv(key)
}

func applyDatabaseEnv(prefix string, c *ServerConfig) error {
	dbURL, hasURL := lookupEnv(prefix, "DATABASE_URL")

	if !hasURL || dbURL == "" || dbURL == "memory" {
		c.DatabaseType = "memory"
		c.DatabaseURL = ""
		return nil
	}

	if strings.HasPrefix(dbURL, "postgresql://") || strings.HasPrefix(dbURL, "postgres://") {
		c.DatabaseType = "postgres"
		c.DatabaseURL = dbURL
		return nil
	}

	return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory' or 'postgresql://...')", dbURL)
}

func applyPolicyEnv(prefix string, c *ServerConfig) error {
	if v, ok := lookupEnv(prefix, "OPERATOR_ACCOUNT"); ok && v != "" {
		c.OperatorAccount = v
	}

	if v, ok := lookupEnv(prefix, "ALERT_THRESHOLD"); ok && v != "" {
		threshold, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid ALERT_THRESHOLD %q: %w", v, err)
		}
		c.AlertThreshold = threshold
	}

	if v, ok := lookupEnv(prefix, "FALLBACK_TOTAL_BYTES"); ok && v != "" {
		total, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid FALLBACK_TOTAL_BYTES %q: %w", v, err)
		}
		c.FallbackTotalBytes = total
	}

	if v, ok := lookupEnv(prefix, "POLL_INTERVAL"); ok && v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid POLL_INTERVAL %q: %w", v, err)
		}
		c.PollInterval = interval
	}

	if v, ok := lookupEnv(prefix, "ALERT_COOLDOWN"); ok && v != "" {
		cooldown, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid ALERT_COOLDOWN %q: %w", v, err)
		}
		c.AlertCooldown = cooldown
	}

	return nil
}

func applyStorageEnv(prefix string, c *ServerConfig) error {
	raw, ok := lookupEnv(prefix, "STORAGE_URLS")
	if !ok || raw == "" {
		return nil
	}

	var backends []BackendConfig
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		backend, err := parseBackendURL(entry)
		if err != nil {
			return err
		}
		backends = append(backends, backend)
	}

	if len(backends) > 0 {
		c.Backends = backends
	}
	return nil
}

func parseBackendURL(raw string) (BackendConfig, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return BackendConfig{}, fmt.Errorf("invalid storage URL %q: %w", raw, err)
	}

	q := u.Query()

	var total int64
	if v := q.Get("total"); v != "" {
		total, err = strconv.ParseInt(v, 10, 64)
		if err != nil {
			return BackendConfig{}, fmt.Errorf("invalid total in storage URL %q: %w", raw, err)
		}
	}

	switch u.Scheme {
	case "memory":
		return BackendConfig{ID: u.Host, Type: "memory", TotalBytes: total}, nil

	case "s3":
		id := q.Get("id")
		if id == "" {
			id = u.Host
		}
		return BackendConfig{
			ID:         id,
			Type:       "s3",
			TotalBytes: total,
			S3: S3Config{
				Bucket:          u.Host,
				Region:          q.Get("region"),
				Endpoint:        q.Get("endpoint"),
				AccessKeyID:     q.Get("access_key"),
				SecretAccessKey: q.Get("secret_key"),
				UsePathStyle:    q.Get("path_style") == "true",
				PublicBaseURL:   q.Get("base_url"),
			},
		}, nil

	default:
		return BackendConfig{}, fmt.Errorf("unsupported storage URL scheme %q (use memory:// or s3://)", u.Scheme)
	}
}
