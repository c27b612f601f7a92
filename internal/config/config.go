// Copyright 2025 Certen Protocol
//
// Configuration for the Conclave Execution Core. Reads a closed set of
// recognized environment variables (the §6.4 set); no ambient configuration
// outside this set may alter constitutional behavior.

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Mode is the signing-port execution mode.
type Mode string

const (
	ModeProduction  Mode = "PRODUCTION"
	ModeDevelopment Mode = "DEVELOPMENT"
)

// Config holds the closed set of environment-derived settings.
type Config struct {
	// H1 pattern: DEV_MODE and ENVIRONMENT must agree.
	DevMode     bool
	Environment string

	// Witness bootstrap (H2 pattern): must be disabled after initial setup.
	WitnessBootstrapEnabled bool

	// Async validation bus.
	EnableAsyncValidation     bool
	KafkaBootstrapServers     string
	SchemaRegistryURL         string
	VoteValidationMaxAttempts int
	VoteValidationTimeout     time.Duration
	ReconciliationTimeout     time.Duration

	// Distinguished archon identities used by the validator bus.
	WitnessArchonID       string
	SecretaryTextArchonID string
	SecretaryJSONArchonID string

	// Per-stage retry/backoff controls (executive pipeline).
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration
	RetryMaxAttempts int

	// Witness floor (minimum witnesses per event, cannot be lowered below this).
	WitnessFloor int

	// Ceremony witness floor and timeout.
	CeremonyWitnessFloor int
	CeremonyTimeout      time.Duration

	// Key rotation overlap window.
	KeyRotationOverlap time.Duration

	// Halt quiet period.
	HaltQuietPeriod time.Duration

	// Data directory for checkpoints, on-disk KV, etc.
	DataDir string

	// Postgres DSN backing pkg/audit.
	DatabaseURL string

	// Firestore / observer push fan-out.
	FirestoreEnabled        bool
	FirebaseProjectID       string
	FirebaseCredentialsFile string

	// HTTP listeners.
	ObserverListenAddr string
	MetricsListenAddr  string
}

// Load reads configuration from the recognized environment variables only.
// Call Validate() afterward to enforce startup-fatal policy (H1).
func Load() (*Config, error) {
	cfg := &Config{
		DevMode:     getEnvBool("DEV_MODE", false),
		Environment: getEnv("ENVIRONMENT", "development"),

		WitnessBootstrapEnabled: getEnvBool("WITNESS_BOOTSTRAP_ENABLED", false),

		EnableAsyncValidation:     getEnvBool("ENABLE_ASYNC_VALIDATION", true),
		KafkaBootstrapServers:     getEnv("KAFKA_BOOTSTRAP_SERVERS", ""),
		SchemaRegistryURL:         getEnv("SCHEMA_REGISTRY_URL", ""),
		VoteValidationMaxAttempts: getEnvInt("VOTE_VALIDATION_MAX_ATTEMPTS", 3),
		VoteValidationTimeout:     getEnvDuration("VOTE_VALIDATION_TIMEOUT", 30*time.Second),
		ReconciliationTimeout:     getEnvDuration("RECONCILIATION_TIMEOUT", 300*time.Second),

		WitnessArchonID:       getEnv("WITNESS_ARCHON_ID", "agent-witness-default"),
		SecretaryTextArchonID: getEnv("SECRETARY_TEXT_ARCHON_ID", "agent-secretary-text-default"),
		SecretaryJSONArchonID: getEnv("SECRETARY_JSON_ARCHON_ID", "agent-secretary-json-default"),

		RetryBaseDelay:   getEnvDuration("RETRY_BASE_DELAY", 500*time.Millisecond),
		RetryMaxDelay:    getEnvDuration("RETRY_MAX_DELAY", 30*time.Second),
		RetryMaxAttempts: getEnvInt("RETRY_MAX_ATTEMPTS", 5),

		WitnessFloor: getEnvInt("WITNESS_FLOOR", 1),

		CeremonyWitnessFloor: getEnvInt("CEREMONY_WITNESS_FLOOR", 3),
		CeremonyTimeout:      getEnvDuration("CEREMONY_TIMEOUT", time.Hour),

		KeyRotationOverlap: getEnvDuration("KEY_ROTATION_OVERLAP", 30*24*time.Hour),

		HaltQuietPeriod: getEnvDuration("HALT_QUIET_PERIOD", 48*time.Hour),

		DataDir: getEnv("DATA_DIR", "./data"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		FirestoreEnabled:        getEnvBool("FIRESTORE_ENABLED", false),
		FirebaseProjectID:       getEnv("FIREBASE_PROJECT_ID", ""),
		FirebaseCredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),

		ObserverListenAddr: getEnv("OBSERVER_LISTEN_ADDR", "0.0.0.0:8080"),
		MetricsListenAddr:  getEnv("METRICS_LISTEN_ADDR", "0.0.0.0:9090"),
	}

	return cfg, nil
}

// Validate enforces the H1 dev/prod agreement policy and any other
// startup-fatal checks. Must be called before the signing port is
// constructed.
func (c *Config) Validate() error {
	var errs []string

	env := strings.ToLower(c.Environment)
	if c.DevMode && (env == "production" || env == "staging" || env == "prod") {
		return fmt.Errorf("%w: DEV_MODE=true with ENVIRONMENT=%s", ErrDevModeEnvironmentMismatch, c.Environment)
	}

	if c.WitnessFloor < 1 {
		errs = append(errs, "WITNESS_FLOOR cannot be lowered below 1")
	}
	if c.CeremonyWitnessFloor < 1 {
		errs = append(errs, "CEREMONY_WITNESS_FLOOR must be at least 1")
	}
	if c.VoteValidationMaxAttempts < 1 {
		errs = append(errs, "VOTE_VALIDATION_MAX_ATTEMPTS must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Mode reports the signing-port mode implied by DevMode.
func (c *Config) Mode() Mode {
	if c.DevMode {
		return ModeDevelopment
	}
	return ModeProduction
}

// ErrDevModeEnvironmentMismatch is returned by Validate when DEV_MODE and
// ENVIRONMENT disagree (H1 pattern).
var ErrDevModeEnvironmentMismatch = fmt.Errorf("dev mode / environment mismatch")

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
