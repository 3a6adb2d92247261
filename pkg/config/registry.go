package config

import (
	"context"
	"errors"
	"fmt"

	"github.com/marmos91/filebox/internal/logger"
	"github.com/marmos91/filebox/internal/telemetry"
	"github.com/marmos91/filebox/pkg/adapter"
	"github.com/marmos91/filebox/pkg/adapter/filebox"
	"github.com/marmos91/filebox/pkg/controlplane/store"
	"github.com/marmos91/filebox/pkg/index"
	"github.com/marmos91/filebox/pkg/metrics"
	"github.com/marmos91/filebox/pkg/sandbox"
)

// Runtime holds the long-lived collaborators built from a Config.
type Runtime struct {
	Sandbox *sandbox.Sandbox
	Index   *index.Indexer
	Auth    adapter.Authenticator
	// Users is nil unless the auth backend uses the database.
	Users store.Store

	closers []func() error
}

// InitializeRuntime opens everything cfg describes:
//  1. The sandbox over server.root (which must exist)
//  2. The index backend, restored from persistence and then refreshed
//  3. The user database when the auth backend needs it
//  4. The authenticator
//
// m may be nil. On error everything opened so far is closed.
func InitializeRuntime(ctx context.Context, cfg *Config, m index.Metrics) (rt *Runtime, err error) {
	rt = &Runtime{}
	defer func() {
		if err != nil {
			_ = rt.Close()
			rt = nil
		}
	}()

	rt.Sandbox, err = sandbox.New(cfg.Server.Root)
	if err != nil {
		return nil, fmt.Errorf("shared directory: %w", err)
	}

	backend, err := CreateIndexBackend(cfg.Index)
	if err != nil {
		return nil, err
	}
	rt.Index, err = index.New(rt.Sandbox.Root(), backend, m)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	rt.closers = append(rt.closers, rt.Index.Close)

	if err := rt.Index.Load(ctx); err != nil {
		logger.Warn("Failed to load persisted index", logger.KeyBackend, backend.Name(), logger.KeyError, err)
	}
	if err := rt.Index.Refresh(ctx); err != nil {
		return nil, err
	}
	logger.Info("Index built", logger.KeyEntries, rt.Index.Len(), logger.KeyBackend, backend.Name())

	if cfg.Auth.UsesDatabase() {
		rt.Users, err = CreateUserStore(cfg.Auth)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, rt.Users.Close)
	}

	rt.Auth, err = CreateAuthenticator(cfg.Auth, rt.Users)
	if err != nil {
		return nil, err
	}
	return rt, nil
}

// HealthChecks returns the readiness probes served on /health.
func (rt *Runtime) HealthChecks() map[string]metrics.HealthCheck {
	checks := map[string]metrics.HealthCheck{
		"root": func(context.Context) error {
			_, err := rt.Sandbox.Resolve(rt.Sandbox.Root(), "", sandbox.Dir)
			return err
		},
	}
	if b, ok := rt.Index.Backend().(*index.BadgerBackend); ok {
		checks["index"] = b.Healthcheck
	}
	if rt.Users != nil {
		checks["database"] = rt.Users.Healthcheck
	}
	return checks
}

// Close releases the index backend and the user database.
func (rt *Runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		errs = append(errs, rt.closers[i]())
	}
	rt.closers = nil
	return errors.Join(errs...)
}

// FileboxConfig converts the server and transfer sections.
func (c *Config) FileboxConfig() filebox.Config {
	return filebox.Config{
		BindAddress:        c.Server.BindAddress,
		Port:               c.Server.Port,
		MaxConnections:     c.Server.MaxConnections,
		ShutdownTimeout:    c.Server.ShutdownTimeout,
		MetricsLogInterval: c.Server.MetricsLogInterval,
		AuthTimeout:        c.Server.AuthTimeout,
		IdleTimeout:        c.Server.IdleTimeout,
		BufferSize:         c.Transfer.BufferSize.Int(),
		MaxTransferSize:    c.Transfer.MaxTransferSize.Int64(),
		RefreshOnConnect:   c.Index.Refresh == string(index.PolicyOnConnect),
	}
}

// TelemetryConfig converts the telemetry section.
func (c *Config) TelemetryConfig(version string) telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.Enabled = c.Telemetry.Enabled
	tc.ServiceVersion = version
	tc.Endpoint = c.Telemetry.Endpoint
	tc.Insecure = c.Telemetry.Insecure
	tc.SampleRate = c.Telemetry.SampleRate
	return tc
}

// ProfilingConfig converts the profiling section.
func (c *Config) ProfilingConfig(version string) telemetry.ProfilingConfig {
	return telemetry.ProfilingConfig{
		Enabled:        c.Telemetry.Profiling.Enabled,
		ServiceName:    "fileboxd",
		ServiceVersion: version,
		Endpoint:       c.Telemetry.Profiling.Endpoint,
		ProfileTypes:   c.Telemetry.Profiling.ProfileTypes,
	}
}

// LoggerConfig converts the logging section.
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:  c.Logging.Level,
		Format: c.Logging.Format,
		Output: c.Logging.Output,
	}
}
