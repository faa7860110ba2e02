// Package config loads server settings from defaults, an optional YAML file
// and environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/mcdev12/huroof/go/internal/telemetry"
)

var ErrInvalid = errors.New("invalid configuration")

type Server struct {
	Port            string        `yaml:"port" env:"PORT"`
	PublicURL       string        `yaml:"public_url" env:"PUBLIC_URL"`
	AllowedOrigins  []string      `yaml:"allowed_origins" env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

type Log struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"LOG_PRETTY"`
}

// Storage selects the durable backend: memory, sqlite or postgres. Postgres
// connection settings come from the DB_* variables.
type Storage struct {
	Driver     string `yaml:"driver" env:"STORAGE_DRIVER"`
	SQLitePath string `yaml:"sqlite_path" env:"SQLITE_PATH"`
}

type Session struct {
	SaveTimeout    time.Duration `yaml:"save_timeout" env:"SESSION_SAVE_TIMEOUT"`
	IdleEvictAfter time.Duration `yaml:"idle_evict_after" env:"SESSION_IDLE_EVICT_AFTER"`
	Retention      time.Duration `yaml:"retention" env:"SESSION_RETENTION"`
	ReapInterval   time.Duration `yaml:"reap_interval" env:"SESSION_REAP_INTERVAL"`
	TokenTTL       time.Duration `yaml:"token_ttl" env:"TOKEN_TTL"`
}

type Buzzer struct {
	WarnAfter      time.Duration `yaml:"warn_after" env:"BUZZER_WARN_AFTER"`
	ReleaseAfter   time.Duration `yaml:"release_after" env:"BUZZER_RELEASE_AFTER"`
	WarningMessage string        `yaml:"warning_message" env:"BUZZER_WARNING_MESSAGE"`
}

type Liveness struct {
	PingInterval    time.Duration `yaml:"ping_interval" env:"PING_INTERVAL"`
	ContestantGrace time.Duration `yaml:"contestant_grace" env:"CONTESTANT_GRACE"`
	HostGrace       time.Duration `yaml:"host_grace" env:"HOST_GRACE"`
}

type Codes struct {
	SpecialPrefix string `yaml:"special_prefix" env:"CODE_SPECIAL_PREFIX"`
	// DevCodes are accepted by the memory backend, which has no subscriber table.
	DevCodes []string `yaml:"dev_codes" env:"DEV_CODES" envSeparator:","`
}

// Questions points at a general question file used to seed an empty bank.
// The bundled pool is used when SeedFile is empty.
type Questions struct {
	SeedFile string `yaml:"seed_file" env:"QUESTIONS_FILE"`
}

// Events configures the optional JetStream event stream.
type Events struct {
	NATSURL   string `yaml:"nats_url" env:"NATS_URL"`
	QueueSize int    `yaml:"queue_size" env:"EVENTS_QUEUE_SIZE"`
}

type Config struct {
	Server    Server           `yaml:"server"`
	Log       Log              `yaml:"log"`
	Storage   Storage          `yaml:"storage"`
	Session   Session          `yaml:"session"`
	Buzzer    Buzzer           `yaml:"buzzer"`
	Liveness  Liveness         `yaml:"liveness"`
	Codes     Codes            `yaml:"codes"`
	Questions Questions        `yaml:"questions"`
	Events    Events           `yaml:"events"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Server: Server{
			Port:            "8080",
			PublicURL:       "http://localhost:8080",
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		Log:     Log{Level: "info"},
		Storage: Storage{Driver: "sqlite", SQLitePath: "huroof.db"},
		Session: Session{
			SaveTimeout:    5 * time.Second,
			IdleEvictAfter: 30 * time.Minute,
			Retention:      24 * time.Hour,
			ReapInterval:   time.Hour,
			TokenTTL:       7 * 24 * time.Hour,
		},
		Buzzer: Buzzer{
			WarnAfter:      6 * time.Second,
			ReleaseAfter:   7 * time.Second,
			WarningMessage: "باقي ثانية!",
		},
		Liveness: Liveness{
			PingInterval:    10 * time.Second,
			ContestantGrace: 30 * time.Second,
			HostGrace:       30 * time.Second,
		},
		Codes:  Codes{SpecialPrefix: "S"},
		Events: Events{QueueSize: 1024},
	}
}

// Load layers path (when non-empty) and the environment over Default.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "memory", "postgres":
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("%w: storage.sqlite_path is required for sqlite", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalid, c.Storage.Driver)
	}
	if c.Server.Port == "" {
		return fmt.Errorf("%w: server.port is required", ErrInvalid)
	}
	if c.Buzzer.WarnAfter <= 0 || c.Buzzer.ReleaseAfter <= c.Buzzer.WarnAfter {
		return fmt.Errorf("%w: buzzer release (%s) must come after the warning (%s)", ErrInvalid, c.Buzzer.ReleaseAfter, c.Buzzer.WarnAfter)
	}
	for name, d := range map[string]time.Duration{
		"session.save_timeout":      c.Session.SaveTimeout,
		"session.idle_evict_after":  c.Session.IdleEvictAfter,
		"session.retention":         c.Session.Retention,
		"session.reap_interval":     c.Session.ReapInterval,
		"session.token_ttl":         c.Session.TokenTTL,
		"liveness.ping_interval":    c.Liveness.PingInterval,
		"liveness.contestant_grace": c.Liveness.ContestantGrace,
		"liveness.host_grace":       c.Liveness.HostGrace,
		"server.shutdown_timeout":   c.Server.ShutdownTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalid, name)
		}
	}
	if p := c.Codes.SpecialPrefix; len(p) != 1 || strings.ToUpper(p) != p {
		return fmt.Errorf("%w: codes.special_prefix must be one upper-case character", ErrInvalid)
	}
	return nil
}
