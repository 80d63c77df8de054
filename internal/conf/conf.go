package conf

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Raphahf6/raio-x-360-back/internal/biz/domain"
	"github.com/Raphahf6/raio-x-360-back/internal/biz/usecase"
	"github.com/Raphahf6/raio-x-360-back/internal/data"
	"github.com/Raphahf6/raio-x-360-back/internal/infra/llm"
)

// Supported transports
const (
	TransportWhatsApp = "whatsapp"
	TransportFeishu   = "feishu"
)

// Config represents application configuration
type Config struct {
	// Transport configuration
	Transport TransportConfig

	// Storage configuration
	Storage StorageConfig

	// Responder (OpenAI-compatible) configuration
	Responder ResponderConfig

	// Dialogue timing
	Dialogue DialogueValues

	// Session supervision
	Session SessionConfig

	// Operator API
	Server ServerConfig

	// Logging
	Log LogConfig

	// Dialogue texts and keywords (loaded from YAML)
	Texts *DialogueConfig
}

// TransportConfig selects the messaging transport
type TransportConfig struct {
	Kind            string // whatsapp or feishu
	BridgeURL       string // WhatsApp bridge websocket URL
	FeishuAppID     string
	FeishuAppSecret string
	SendRate        float64 // Outbound messages per second per session
}

// StorageConfig contains storage configuration
type StorageConfig struct {
	DatabaseURL    string
	SQLitePath     string
	CredentialsDir string
}

// ResponderConfig contains responder configuration
type ResponderConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
	HistoryLimit   int
}

// DialogueValues contains dialogue timing values
type DialogueValues struct {
	DebounceMS        int
	InactivityMinutes int
}

// SessionConfig contains session supervision configuration
type SessionConfig struct {
	MaxAttempts          int
	ReviveIntervalMinute int
}

// ServerConfig contains operator API configuration
type ServerConfig struct {
	Addr string
}

// LogConfig contains logging configuration
type LogConfig struct {
	Level  string
	Format string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	homeDir, _ := os.UserHomeDir()

	// SQLite path
	sqlitePath := os.Getenv("SQLITE_PATH")
	if sqlitePath == "" {
		sqlitePath = filepath.Join(homeDir, ".salesbridge", "salesbridge.db")
	}

	// Credential directory
	credsDir := os.Getenv("CREDENTIALS_DIR")
	if credsDir == "" {
		credsDir = filepath.Join(homeDir, ".salesbridge", "credentials")
	}

	transport := strings.ToLower(os.Getenv("TRANSPORT"))
	if transport == "" {
		transport = TransportWhatsApp
	}

	bridgeURL := os.Getenv("WA_BRIDGE_URL")
	if bridgeURL == "" {
		bridgeURL = "ws://127.0.0.1:3001/ws"
	}

	addr := os.Getenv("API_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	// Load dialogue texts from YAML
	texts, err := LoadDialogueConfig(os.Getenv("DIALOGUE_CONFIG_PATH"))
	if err != nil {
		texts = DefaultDialogueYAML()
	}

	return &Config{
		Transport: TransportConfig{
			Kind:            transport,
			BridgeURL:       bridgeURL,
			FeishuAppID:     os.Getenv("FEISHU_APP_ID"),
			FeishuAppSecret: os.Getenv("FEISHU_APP_SECRET"),
			SendRate:        envFloat("SEND_RATE_PER_SECOND", 5),
		},
		Storage: StorageConfig{
			DatabaseURL:    os.Getenv("DATABASE_URL"),
			SQLitePath:     sqlitePath,
			CredentialsDir: credsDir,
		},
		Responder: ResponderConfig{
			APIKey:         os.Getenv("OPENAI_API_KEY"),
			BaseURL:        os.Getenv("OPENAI_BASE_URL"),
			Model:          os.Getenv("OPENAI_MODEL"),
			TimeoutSeconds: envInt("RESPONDER_TIMEOUT_SECONDS", 30),
			HistoryLimit:   envInt("HISTORY_LIMIT", 10),
		},
		Dialogue: DialogueValues{
			DebounceMS:        envInt("DEBOUNCE_MS", 5000),
			InactivityMinutes: envInt("INACTIVITY_MINUTES", 60),
		},
		Session: SessionConfig{
			MaxAttempts:          envInt("RECONNECT_MAX_ATTEMPTS", 10),
			ReviveIntervalMinute: envInt("REVIVE_INTERVAL_MINUTES", 10),
		},
		Server: ServerConfig{
			Addr: addr,
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
		Texts: texts,
	}
}

func envString(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

// DebounceWindow returns the aggregation window
func (c *Config) DebounceWindow() time.Duration {
	return time.Duration(c.Dialogue.DebounceMS) * time.Millisecond
}

// ReviveInterval returns how often exhausted sessions are retried, 0 disables
func (c *Config) ReviveInterval() time.Duration {
	return time.Duration(c.Session.ReviveIntervalMinute) * time.Minute
}

// ToSessionConfig converts to domain session configuration
func (c *SessionConfig) ToSessionConfig() domain.SessionConfig {
	return domain.SessionConfig{
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		MaxAttempts:    c.MaxAttempts,
	}
}

// ToDialogueConfig converts to the dialogue state machine configuration
func (c *Config) ToDialogueConfig() usecase.DialogueConfig {
	cfg := usecase.DefaultDialogueConfig()
	cfg.InactivityWindow = time.Duration(c.Dialogue.InactivityMinutes) * time.Minute
	cfg.ResponderTimeout = time.Duration(c.Responder.TimeoutSeconds) * time.Second

	if c.Texts == nil {
		return cfg
	}

	cfg.ResetKeywords = c.Texts.Keywords.Reset
	cfg.HumanKeywords = c.Texts.Keywords.Human
	cfg.HumanAck = c.Texts.Texts.HumanAck
	cfg.Apology = c.Texts.Texts.Apology
	cfg.RetryLabel = c.Texts.Texts.RetryLabel
	cfg.StorageApology = c.Texts.Texts.StorageApology
	cfg.Menu = usecase.MenuConfig{
		Greeting:     c.Texts.Menu.Greeting,
		EmptyCatalog: c.Texts.Menu.EmptyCatalog,
		Footer:       c.Texts.Menu.Footer,
		Actions:      c.Texts.Menu.Actions,
	}
	return cfg
}

// ToResponderOptions converts to responder prompt options
func (c *Config) ToResponderOptions() data.ResponderOptions {
	opts := data.ResponderOptions{HistoryLimit: c.Responder.HistoryLimit}
	if c.Texts != nil {
		opts.Prompt = c.Texts.ResponderPrompt
	}
	return opts
}

// ToLLMOptions converts to the chat completion client options
func (c *ResponderConfig) ToLLMOptions() llm.Options {
	return llm.Options{
		APIKey:  c.APIKey,
		BaseURL: c.BaseURL,
		Model:   c.Model,
	}
}

// ToDataOptions converts to storage options
func (c *StorageConfig) ToDataOptions() data.Options {
	return data.Options{
		DatabaseURL:    c.DatabaseURL,
		SQLitePath:     c.SQLitePath,
		CredentialsDir: c.CredentialsDir,
	}
}

// OrderTemplates returns the configured order templates, nil for defaults
func (c *Config) OrderTemplates() map[domain.OrderStatus]string {
	if c.Texts == nil || len(c.Texts.OrderTemplates) == 0 {
		return nil
	}
	templates := make(map[domain.OrderStatus]string, len(usecase.DefaultOrderTemplates))
	for status, text := range usecase.DefaultOrderTemplates {
		templates[status] = text
	}
	for status, text := range c.Texts.OrderTemplates {
		parsed, err := domain.ParseOrderStatus(status)
		if err != nil || text == "" {
			continue
		}
		templates[parsed] = text
	}
	return templates
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case TransportWhatsApp:
		if c.Transport.BridgeURL == "" {
			return &ConfigError{Field: "WA_BRIDGE_URL", Message: "required for whatsapp transport"}
		}
	case TransportFeishu:
		if c.Transport.FeishuAppID == "" || c.Transport.FeishuAppSecret == "" {
			return &ConfigError{Field: "FEISHU_APP_ID/FEISHU_APP_SECRET", Message: "required for feishu transport"}
		}
	default:
		return &ConfigError{Field: "TRANSPORT", Message: "must be whatsapp or feishu"}
	}
	if c.Storage.DatabaseURL == "" && c.Storage.SQLitePath == "" {
		return &ConfigError{Field: "DATABASE_URL/SQLITE_PATH", Message: "one is required"}
	}
	if c.Dialogue.DebounceMS <= 0 {
		return &ConfigError{Field: "DEBOUNCE_MS", Message: "must be positive"}
	}
	if c.Dialogue.InactivityMinutes <= 0 {
		return &ConfigError{Field: "INACTIVITY_MINUTES", Message: "must be positive"}
	}
	if c.Responder.TimeoutSeconds <= 0 {
		return &ConfigError{Field: "RESPONDER_TIMEOUT_SECONDS", Message: "must be positive"}
	}
	if c.Session.MaxAttempts < 0 {
		return &ConfigError{Field: "RECONNECT_MAX_ATTEMPTS", Message: "must not be negative"}
	}
	if c.Transport.SendRate <= 0 {
		return &ConfigError{Field: "SEND_RATE_PER_SECOND", Message: "must be positive"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
