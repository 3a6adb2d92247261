package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/filebox/internal/telemetry"
	"github.com/marmos91/filebox/pkg/controlplane/models"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags first and then the rules that span fields.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return formatValidationErrors(verrs)
		}
		return err
	}

	if err := validateAuth(&cfg.Auth); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if err := validateIndex(&cfg.Index); err != nil {
		return fmt.Errorf("index: %w", err)
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return errors.New("telemetry: endpoint is required when telemetry is enabled")
	}
	if cfg.Telemetry.Profiling.Enabled {
		if cfg.Telemetry.Profiling.Endpoint == "" {
			return errors.New("telemetry.profiling: endpoint is required when profiling is enabled")
		}
		if _, err := telemetry.ParseProfileTypes(cfg.Telemetry.Profiling.ProfileTypes); err != nil {
			return fmt.Errorf("telemetry.profiling: %w", err)
		}
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Port == cfg.Server.Port {
		return fmt.Errorf("metrics: port %d is already used by the filebox listener", cfg.Metrics.Port)
	}
	return nil
}

func validateAuth(cfg *AuthConfig) error {
	usesStatic := cfg.Backend == AuthBackendStatic || cfg.Backend == AuthBackendChain
	usesDatabase := cfg.Backend == AuthBackendDatabase || cfg.Backend == AuthBackendChain

	if usesStatic {
		for name, u := range cfg.Users {
			if !models.ValidUsername(name) {
				return fmt.Errorf("invalid username %q", name)
			}
			if !models.IsBcryptHash(u.PasswordHash) {
				return fmt.Errorf("user %q: password_hash is not a bcrypt hash (use 'fileboxd passwd-hash')", name)
			}
		}
	}
	if usesDatabase {
		if err := cfg.Database.Validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	return nil
}

func validateIndex(cfg *IndexConfig) error {
	if cfg.Refresh == "interval" && cfg.Interval <= 0 {
		return errors.New("interval refresh requires a positive interval")
	}
	if cfg.Backend == IndexBackendMemory && cfg.Path != "" {
		return errors.New("path is only used by the badger backend")
	}
	return nil
}

// formatValidationErrors renders validator errors as "Field.Path: tag=param"
// lines so the failing rule is visible.
func formatValidationErrors(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		msgs = append(msgs, fmt.Sprintf("%s: failed '%s' (value %v)", field, rule, fe.Value()))
	}
	return errors.New(strings.Join(msgs, "; "))
}
