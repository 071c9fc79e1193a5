package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type AuthConfig struct {
	Allowlist []string          `yaml:"allowlist"`
	APIKeys   map[string]string `yaml:"api_keys"`
}

type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	SweepIntervalMS   int `yaml:"sweep_interval_ms"`
}

type AudioConfig struct {
	TargetSampleRate   int `yaml:"target_sample_rate"`
	MaxSizeMB          int `yaml:"max_size_mb"`
	MaxDurationSeconds int `yaml:"max_duration_seconds"`
}

type TranscriberConfig struct {
	Mode      string `yaml:"mode"` // mock, http, exec
	Endpoint  string `yaml:"endpoint"`
	APIKey    string `yaml:"api_key"`
	Language  string `yaml:"language"`
	Command   string `yaml:"command"`
	ModelPath string `yaml:"model_path"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

type ForwarderConfig struct {
	Endpoint         string `yaml:"endpoint"`
	AuthToken        string `yaml:"auth_token"`
	RetryDelaysMS    []int  `yaml:"retry_delays_ms"`
	AttemptTimeoutMS int    `yaml:"attempt_timeout_ms"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type JournalConfig struct {
	Mode          string `yaml:"mode"` // ephemeral, persistent
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
	MaxRecords    int    `yaml:"max_records"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type Config struct {
	ServiceName string            `yaml:"service_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Auth        AuthConfig        `yaml:"auth"`
	RateLimit   RateLimitConfig   `yaml:"rate_limit"`
	Audio       AudioConfig       `yaml:"audio"`
	Transcriber TranscriberConfig `yaml:"transcriber"`
	Forwarder   ForwarderConfig   `yaml:"forwarder"`
	Bus         BusConfig         `yaml:"bus"`
	Journal     JournalConfig     `yaml:"journal"`
}

func Default() Config {
	return Config{
		ServiceName: "capture-service",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Auth: AuthConfig{
			APIKeys: map[string]string{},
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 100,
			SweepIntervalMS:   300000,
		},
		Audio: AudioConfig{
			TargetSampleRate:   16000,
			MaxSizeMB:          10,
			MaxDurationSeconds: 300,
		},
		Transcriber: TranscriberConfig{
			Mode:      "mock",
			Language:  "en",
			TimeoutMS: 60000,
		},
		Forwarder: ForwarderConfig{
			Endpoint:         "http://127.0.0.1:8091/ingest",
			RetryDelaysMS:    []int{1000, 2000, 4000},
			AttemptTimeoutMS: 10000,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Journal: JournalConfig{
			Mode:          "ephemeral",
			Path:          "./data/capture-journal.db",
			RetentionDays: 30,
			MaxRecords:    100000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.ServiceName, "CAPTURE_SERVICE_NAME")
	overrideString(&cfg.Environment, "CAPTURE_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "CAPTURE_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "CAPTURE_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "CAPTURE_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "CAPTURE_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "CAPTURE_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "CAPTURE_TELEMETRY_PROMETHEUS_BIND")
	overrideStringSlice(&cfg.Auth.Allowlist, "CAPTURE_CLIENT_ALLOWLIST")
	overrideInt(&cfg.RateLimit.RequestsPerMinute, "CAPTURE_RATE_LIMIT_REQUESTS_PER_MINUTE")
	overrideInt(&cfg.RateLimit.SweepIntervalMS, "CAPTURE_RATE_LIMIT_SWEEP_INTERVAL_MS")
	overrideInt(&cfg.Audio.TargetSampleRate, "CAPTURE_AUDIO_TARGET_SAMPLE_RATE")
	overrideInt(&cfg.Audio.MaxSizeMB, "CAPTURE_AUDIO_MAX_SIZE_MB")
	overrideInt(&cfg.Audio.MaxDurationSeconds, "CAPTURE_AUDIO_MAX_DURATION_SECONDS")
	overrideString(&cfg.Transcriber.Mode, "CAPTURE_TRANSCRIBER_MODE")
	overrideString(&cfg.Transcriber.Endpoint, "CAPTURE_TRANSCRIBER_ENDPOINT")
	overrideString(&cfg.Transcriber.APIKey, "CAPTURE_TRANSCRIBER_API_KEY")
	overrideString(&cfg.Transcriber.Language, "CAPTURE_TRANSCRIBER_LANGUAGE")
	overrideString(&cfg.Transcriber.Command, "CAPTURE_TRANSCRIBER_COMMAND")
	overrideString(&cfg.Transcriber.ModelPath, "CAPTURE_TRANSCRIBER_MODEL_PATH")
	overrideInt(&cfg.Transcriber.TimeoutMS, "CAPTURE_TRANSCRIBER_TIMEOUT_MS")
	overrideString(&cfg.Forwarder.Endpoint, "CAPTURE_FORWARDER_ENDPOINT")
	overrideString(&cfg.Forwarder.AuthToken, "CAPTURE_FORWARDER_AUTH_TOKEN")
	overrideIntSlice(&cfg.Forwarder.RetryDelaysMS, "CAPTURE_FORWARDER_RETRY_DELAYS_MS")
	overrideInt(&cfg.Forwarder.AttemptTimeoutMS, "CAPTURE_FORWARDER_ATTEMPT_TIMEOUT_MS")
	overrideBool(&cfg.Bus.Enabled, "CAPTURE_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "CAPTURE_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "CAPTURE_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "CAPTURE_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "CAPTURE_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "CAPTURE_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "CAPTURE_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "CAPTURE_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "CAPTURE_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Journal.Mode, "CAPTURE_JOURNAL_MODE")
	overrideString(&cfg.Journal.Path, "CAPTURE_JOURNAL_PATH")
	overrideInt(&cfg.Journal.RetentionDays, "CAPTURE_JOURNAL_RETENTION_DAYS")
	overrideInt(&cfg.Journal.MaxRecords, "CAPTURE_JOURNAL_MAX_RECORDS")
	overrideBool(&cfg.Journal.VacuumOnStart, "CAPTURE_JOURNAL_VACUUM_ON_START")

	applyAPIKeyOverrides(cfg)
}

// applyAPIKeyOverrides scans the environment for CAPTURE_API_KEY_<CLIENT_ID>
// entries so per-client credentials never need to live in the config file.
func applyAPIKeyOverrides(cfg *Config) {
	const prefix = "CAPTURE_API_KEY_"
	for _, entry := range os.Environ() {
		key, value, ok := strings.Cut(entry, "=")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		clientID := strings.TrimPrefix(key, prefix)
		if clientID == "" || value == "" {
			continue
		}
		if cfg.Auth.APIKeys == nil {
			cfg.Auth.APIKeys = map[string]string{}
		}
		cfg.Auth.APIKeys[clientID] = value
	}
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideIntSlice(target *[]int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		var parsed []int
		for _, p := range strings.Split(value, ",") {
			n, err := strconv.Atoi(strings.TrimSpace(p))
			if err != nil {
				return
			}
			parsed = append(parsed, n)
		}
		if len(parsed) > 0 {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.ServiceName == "" {
		return errors.New("service_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		return errors.New("rate_limit.requests_per_minute must be positive")
	}
	if cfg.RateLimit.SweepIntervalMS <= 0 {
		return errors.New("rate_limit.sweep_interval_ms must be positive")
	}
	if cfg.Audio.TargetSampleRate <= 0 {
		return errors.New("audio.target_sample_rate must be positive")
	}
	if cfg.Audio.MaxSizeMB <= 0 {
		return errors.New("audio.max_size_mb must be positive")
	}
	if cfg.Audio.MaxDurationSeconds < 0 {
		return errors.New("audio.max_duration_seconds must be >= 0")
	}
	switch cfg.Transcriber.Mode {
	case "mock", "http", "exec":
	default:
		return errors.New("transcriber.mode must be one of mock|http|exec")
	}
	if cfg.Transcriber.Mode == "http" && cfg.Transcriber.Endpoint == "" {
		return errors.New("transcriber.endpoint must be set when mode=http")
	}
	if cfg.Transcriber.Mode == "exec" && cfg.Transcriber.Command == "" {
		return errors.New("transcriber.command must be set when mode=exec")
	}
	if cfg.Transcriber.TimeoutMS <= 0 {
		return errors.New("transcriber.timeout_ms must be positive")
	}
	if cfg.Forwarder.Endpoint == "" {
		return errors.New("forwarder.endpoint must not be empty")
	}
	for _, delay := range cfg.Forwarder.RetryDelaysMS {
		if delay < 0 {
			return errors.New("forwarder.retry_delays_ms entries must be >= 0")
		}
	}
	if cfg.Forwarder.AttemptTimeoutMS <= 0 {
		return errors.New("forwarder.attempt_timeout_ms must be positive")
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.Journal.Mode {
	case "ephemeral", "persistent":
	default:
		return errors.New("journal.mode must be one of ephemeral|persistent")
	}
	if cfg.Journal.Mode == "persistent" && cfg.Journal.Path == "" {
		return errors.New("journal.path must not be empty when mode=persistent")
	}
	if cfg.Journal.RetentionDays < 0 {
		return errors.New("journal.retention_days must be >= 0")
	}
	return nil
}
