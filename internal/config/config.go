package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind        string   `yaml:"bind"`
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type Config struct {
	RuntimeName string            `yaml:"runtime_name"`
	Environment string            `yaml:"environment"`
	HTTP        HTTPConfig        `yaml:"http"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Bus         BusConfig         `yaml:"bus"`
	Auth        AuthConfig        `yaml:"auth"`
	ExamStore   ExamStoreConfig   `yaml:"exam_store"`
	EventStore  EventStoreConfig  `yaml:"event_store"`
	Synthesis   SynthesisConfig   `yaml:"synthesis"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Dialog      DialogConfig      `yaml:"dialog"`
	Extract     ExtractConfig     `yaml:"extract"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
	Issuer    string `yaml:"issuer"`
	TTLHours  int    `yaml:"ttl_hours"`
}

type ExamStoreConfig struct {
	Driver string `yaml:"driver"` // sqlite, postgres
	DSN    string `yaml:"dsn"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type SynthesisConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Mode       string  `yaml:"mode"` // mock, exec
	Command    string  `yaml:"command"`
	Voice      string  `yaml:"voice"`
	Language   string  `yaml:"language"`
	Rate       float64 `yaml:"rate"`
	Pitch      float64 `yaml:"pitch"`
	Volume     float64 `yaml:"volume"`
	SampleRate int     `yaml:"sample_rate"`
	Channels   int     `yaml:"channels"`
}

type RecognitionConfig struct {
	Enabled          bool   `yaml:"enabled"`
	Mode             string `yaml:"mode"` // mock, exec, push
	Command          string `yaml:"command"`
	ModelPath        string `yaml:"model_path"`
	ExamLanguage     string `yaml:"exam_language"`
	VerifyLanguage   string `yaml:"verify_language"`
	MaxAlternatives  int    `yaml:"max_alternatives"`
	ListenTimeoutMS  int    `yaml:"listen_timeout_ms"`
	SampleRate       int    `yaml:"sample_rate"`
	Channels         int    `yaml:"channels"`
	TransientRetries int    `yaml:"transient_retries"`
}

type DialogConfig struct {
	MaxVoiceRetries   int `yaml:"max_voice_retries"`
	ManualOfferCycles int `yaml:"manual_offer_cycles"`
}

type ExtractConfig struct {
	Endpoint  string `yaml:"endpoint"`
	TimeoutMS int    `yaml:"timeout_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "voxexam-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind:        "0.0.0.0",
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Auth: AuthConfig{
			Issuer:   "voxexam",
			TTLHours: 12,
		},
		ExamStore: ExamStoreConfig{
			Driver: "sqlite",
			DSN:    "./data/voxexam.db",
		},
		EventStore: EventStoreConfig{
			Path:          "./data/voxexam-events.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Synthesis: SynthesisConfig{
			Enabled:    true,
			Mode:       "mock",
			Language:   "en-US",
			Rate:       0.8,
			Pitch:      1,
			Volume:     1,
			SampleRate: 22050,
			Channels:   1,
		},
		Recognition: RecognitionConfig{
			Enabled:          true,
			Mode:             "push",
			ExamLanguage:     "en-IN",
			VerifyLanguage:   "en-US",
			MaxAlternatives:  1,
			ListenTimeoutMS:  8000,
			SampleRate:       16000,
			Channels:         1,
			TransientRetries: 2,
		},
		Dialog: DialogConfig{
			MaxVoiceRetries:   1,
			ManualOfferCycles: 2,
		},
		Extract: ExtractConfig{
			Endpoint:  "http://localhost:9200/extract",
			TimeoutMS: 60000,
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
	overrideString(&cfg.RuntimeName, "VOXEXAM_RUNTIME_NAME")
	overrideString(&cfg.Environment, "VOXEXAM_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VOXEXAM_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VOXEXAM_HTTP_PORT")
	overrideStringSlice(&cfg.HTTP.CORSOrigins, "VOXEXAM_HTTP_CORS_ORIGINS")
	overrideString(&cfg.Telemetry.LogLevel, "VOXEXAM_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOXEXAM_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOXEXAM_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "VOXEXAM_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "VOXEXAM_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VOXEXAM_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "VOXEXAM_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VOXEXAM_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VOXEXAM_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VOXEXAM_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VOXEXAM_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOXEXAM_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Auth.JWTSecret, "VOXEXAM_AUTH_JWT_SECRET")
	overrideString(&cfg.Auth.Issuer, "VOXEXAM_AUTH_ISSUER")
	overrideInt(&cfg.Auth.TTLHours, "VOXEXAM_AUTH_TTL_HOURS")
	overrideString(&cfg.ExamStore.Driver, "VOXEXAM_EXAM_STORE_DRIVER")
	overrideString(&cfg.ExamStore.DSN, "VOXEXAM_EXAM_STORE_DSN")
	overrideString(&cfg.EventStore.Path, "VOXEXAM_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "VOXEXAM_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "VOXEXAM_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "VOXEXAM_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "VOXEXAM_EVENT_STORE_VACUUM_ON_START")
	overrideBool(&cfg.Synthesis.Enabled, "VOXEXAM_SYNTHESIS_ENABLED")
	overrideString(&cfg.Synthesis.Mode, "VOXEXAM_SYNTHESIS_MODE")
	overrideString(&cfg.Synthesis.Command, "VOXEXAM_SYNTHESIS_COMMAND")
	overrideString(&cfg.Synthesis.Voice, "VOXEXAM_SYNTHESIS_VOICE")
	overrideString(&cfg.Synthesis.Language, "VOXEXAM_SYNTHESIS_LANGUAGE")
	overrideFloat(&cfg.Synthesis.Rate, "VOXEXAM_SYNTHESIS_RATE")
	overrideFloat(&cfg.Synthesis.Pitch, "VOXEXAM_SYNTHESIS_PITCH")
	overrideFloat(&cfg.Synthesis.Volume, "VOXEXAM_SYNTHESIS_VOLUME")
	overrideInt(&cfg.Synthesis.SampleRate, "VOXEXAM_SYNTHESIS_SAMPLE_RATE")
	overrideInt(&cfg.Synthesis.Channels, "VOXEXAM_SYNTHESIS_CHANNELS")
	overrideBool(&cfg.Recognition.Enabled, "VOXEXAM_RECOGNITION_ENABLED")
	overrideString(&cfg.Recognition.Mode, "VOXEXAM_RECOGNITION_MODE")
	overrideString(&cfg.Recognition.Command, "VOXEXAM_RECOGNITION_COMMAND")
	overrideString(&cfg.Recognition.ModelPath, "VOXEXAM_RECOGNITION_MODEL_PATH")
	overrideString(&cfg.Recognition.ExamLanguage, "VOXEXAM_RECOGNITION_EXAM_LANGUAGE")
	overrideString(&cfg.Recognition.VerifyLanguage, "VOXEXAM_RECOGNITION_VERIFY_LANGUAGE")
	overrideInt(&cfg.Recognition.MaxAlternatives, "VOXEXAM_RECOGNITION_MAX_ALTERNATIVES")
	overrideInt(&cfg.Recognition.ListenTimeoutMS, "VOXEXAM_RECOGNITION_LISTEN_TIMEOUT_MS")
	overrideInt(&cfg.Recognition.SampleRate, "VOXEXAM_RECOGNITION_SAMPLE_RATE")
	overrideInt(&cfg.Recognition.Channels, "VOXEXAM_RECOGNITION_CHANNELS")
	overrideInt(&cfg.Recognition.TransientRetries, "VOXEXAM_RECOGNITION_TRANSIENT_RETRIES")
	overrideInt(&cfg.Dialog.MaxVoiceRetries, "VOXEXAM_DIALOG_MAX_VOICE_RETRIES")
	overrideInt(&cfg.Dialog.ManualOfferCycles, "VOXEXAM_DIALOG_MANUAL_OFFER_CYCLES")
	overrideString(&cfg.Extract.Endpoint, "VOXEXAM_EXTRACT_ENDPOINT")
	overrideInt(&cfg.Extract.TimeoutMS, "VOXEXAM_EXTRACT_TIMEOUT_MS")
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

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.ExamStore.Driver {
	case "sqlite", "postgres":
	default:
		return errors.New("exam_store.driver must be one of sqlite|postgres")
	}
	if cfg.ExamStore.DSN == "" {
		return errors.New("exam_store.dsn must not be empty")
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.Synthesis.Enabled {
		switch cfg.Synthesis.Mode {
		case "mock", "exec":
		default:
			return errors.New("synthesis.mode must be one of mock|exec")
		}
		if cfg.Synthesis.Mode == "exec" && cfg.Synthesis.Command == "" {
			return errors.New("synthesis.command must be set when mode=exec")
		}
		if cfg.Synthesis.Rate <= 0 {
			return errors.New("synthesis.rate must be positive")
		}
		if cfg.Synthesis.SampleRate <= 0 {
			return errors.New("synthesis.sample_rate must be positive")
		}
		if cfg.Synthesis.Channels <= 0 {
			return errors.New("synthesis.channels must be positive")
		}
	}
	if cfg.Recognition.Enabled {
		switch cfg.Recognition.Mode {
		case "mock", "exec", "push":
		default:
			return errors.New("recognition.mode must be one of mock|exec|push")
		}
		if cfg.Recognition.Mode == "exec" && cfg.Recognition.Command == "" {
			return errors.New("recognition.command must be set when mode=exec")
		}
		if cfg.Recognition.ListenTimeoutMS <= 0 {
			return errors.New("recognition.listen_timeout_ms must be positive")
		}
		if cfg.Recognition.SampleRate <= 0 {
			return errors.New("recognition.sample_rate must be positive")
		}
		if cfg.Recognition.Channels <= 0 {
			return errors.New("recognition.channels must be positive")
		}
		if cfg.Recognition.TransientRetries < 0 {
			return errors.New("recognition.transient_retries must be >= 0")
		}
	}
	if cfg.Dialog.MaxVoiceRetries < 0 {
		return errors.New("dialog.max_voice_retries must be >= 0")
	}
	if cfg.Dialog.ManualOfferCycles <= 0 {
		return errors.New("dialog.manual_offer_cycles must be >= 1")
	}
	if cfg.Extract.Endpoint == "" {
		return errors.New("extract.endpoint must not be empty")
	}
	return nil
}
