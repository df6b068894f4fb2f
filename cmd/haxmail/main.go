// Package main is the entry point for the haxmail capture server.
//
// Usage:
//
//	haxmail [-config file] [-env-file file] [bind-address] [domain]
//
// Variables from the env file (default .env) are exported first, without
// overriding the process environment. Positional arguments override the
// configured listen address and domain.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/shineum/haxmail/internal/config"
	"github.com/shineum/haxmail/internal/smtp"
	"github.com/shineum/haxmail/internal/store"
	"github.com/shineum/haxmail/internal/store/postgres"
	"github.com/shineum/haxmail/internal/store/s3"
	"github.com/shineum/haxmail/internal/store/stdout"
	"github.com/shineum/haxmail/internal/store/webhook"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file (optional)")
	envFile := flag.String("env-file", ".env", "path to dotenv file (ignored if missing)")
	flag.Parse()

	if err := config.LoadDotEnv(*envFile); err != nil {
		slog.Error("failed to load env file", "error", err)
		os.Exit(1)
	}

	// Load configuration
	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	applyArgs(cfg, flag.Args())

	// Logs and stdout dumps share one writer so their lines never interleave.
	out := &syncWriter{w: os.Stdout}

	// Setup structured logging
	setupLogger(out, cfg.Logging.Level)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		sig := <-sigCh
		slog.Info("received signal, initiating shutdown", "signal", sig)
		cancel()
	}()

	// Select the message store
	st, err := selectStore(ctx, cfg, out)
	if err != nil {
		slog.Error("failed to set up store", "error", err)
		os.Exit(1)
	}
	if c, ok := st.(io.Closer); ok {
		defer c.Close()
	}

	server := smtp.New(smtp.ServerConfig{
		ListenAddr:  cfg.SMTP.Listen,
		Domain:      cfg.SMTP.Domain,
		Store:       st,
		IdleTimeout: cfg.SMTP.IdleTimeout,
	})

	slog.Info("starting haxmail",
		"listen", cfg.SMTP.Listen,
		"domain", cfg.SMTP.Domain,
		"store", st.Name(),
		"idle_timeout", cfg.SMTP.IdleTimeout.String(),
	)

	// Start the server (blocks until context is cancelled)
	if err := server.ListenAndServe(ctx); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("haxmail stopped")
}

// loadConfig loads configuration from the specified path (YAML + env override)
// or from environment variables only if no path is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

// applyArgs applies the positional bind address and domain.
func applyArgs(cfg *config.Config, args []string) {
	if len(args) > 0 && args[0] != "" {
		cfg.SMTP.Listen = args[0]
	}
	if len(args) > 1 && args[1] != "" {
		cfg.SMTP.Domain = args[1]
	}
}

// syncWriter serializes writes from the logger and the stdout store.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// setupLogger configures the global slog logger with JSON output and the
// specified log level.
func setupLogger(w io.Writer, level string) {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: parseLevel(level),
	})
	slog.SetDefault(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// errNotConfigured is returned when a store is selected by name but its
// required settings are missing.
var errNotConfigured = errors.New("store selected but not configured")

// selectStore chooses the message store based on configuration.
// If the STORE setting is present, it takes precedence. Otherwise the first
// configured backend wins in the order webhook, s3, postgres, falling back
// to stdout. The stdout store writes to out.
func selectStore(ctx context.Context, cfg *config.Config, out io.Writer) (store.Store, error) {
	name := cfg.Store
	if name == "" {
		switch {
		case cfg.WebhookConfigured():
			name = config.StoreWebhook
		case cfg.S3Configured():
			name = config.StoreS3
		case cfg.PostgresConfigured():
			name = config.StorePostgres
		default:
			name = config.StoreStdout
		}
		slog.Info("store auto-detected", "store", name)
	}

	switch name {
	case config.StoreStdout:
		slog.Info("using stdout store")
		return store.Serialized(stdout.NewWithWriter(out)), nil

	case config.StoreS3:
		if !cfg.S3Configured() {
			return nil, fmt.Errorf("%s: S3_BUCKET and S3_REGION are required: %w", name, errNotConfigured)
		}
		slog.Info("using S3 store",
			"bucket", cfg.S3.Bucket,
			"region", cfg.S3.Region,
			"prefix", cfg.S3.Prefix,
			"endpoint", cfg.S3.Endpoint,
		)
		s, err := s3.New(ctx, s3.Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		return s, nil

	case config.StorePostgres:
		if !cfg.PostgresConfigured() {
			return nil, fmt.Errorf("%s: POSTGRES_DSN is required: %w", name, errNotConfigured)
		}
		slog.Info("using postgres store", "migrate", cfg.Postgres.Migrate)
		s, err := postgres.New(ctx, postgres.Config{
			DSN:     cfg.Postgres.DSN,
			Migrate: cfg.Postgres.Migrate,
		})
		if err != nil {
			return nil, err
		}
		return s, nil

	case config.StoreWebhook:
		if !cfg.WebhookConfigured() {
			return nil, fmt.Errorf("%s: WEBHOOK_URL is required: %w", name, errNotConfigured)
		}
		wc := webhook.Config{URL: cfg.Webhook.URL}
		if cfg.WebhookAuthEnabled() {
			wc.TokenURL = cfg.Webhook.TokenURL
			wc.ClientID = cfg.Webhook.ClientID
			wc.ClientSecret = cfg.Webhook.ClientSecret
			wc.Scope = cfg.Webhook.Scope
		}
		slog.Info("using webhook store",
			"url", cfg.Webhook.URL,
			"auth_enabled", cfg.WebhookAuthEnabled(),
		)
		return webhook.New(wc), nil

	default:
		return nil, fmt.Errorf("unknown store %q", name)
	}
}
