package notify

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"riskwatch/pkg/confkit"
)

// Config selects and configures a notification transport.
type Config struct {
	Type     string `yaml:"type"` // "telegram" or "log"
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`

	TimeoutRaw string `yaml:"timeout"`
}

// NotifierBuilder constructs a Notifier from configuration.
type NotifierBuilder func(cfg *Config) (Notifier, error)

var (
	notifierRegistry   = map[string]NotifierBuilder{}
	notifierRegistryMu sync.RWMutex
)

// RegisterNotifier associates a builder with a transport type.
func RegisterNotifier(typeName string, builder NotifierBuilder) {
	notifierRegistryMu.Lock()
	defer notifierRegistryMu.Unlock()
	notifierRegistry[strings.ToLower(strings.TrimSpace(typeName))] = builder
}

func init() {
	RegisterNotifier("log", func(cfg *Config) (Notifier, error) {
		return LogNotifier{}, nil
	})
}

// LoadConfig reads configuration from disk.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open notify config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// MustLoad reads notify configuration from the default project location and panics on error.
func MustLoad() *Config {
	cfg, err := LoadConfig(confkit.MustProjectPath("etc/notify.yaml"))
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadConfigFromReader constructs a Config from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read notify config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal notify config: %w", err)
	}
	cfg.expandEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) expandEnv() {
	c.Type = strings.TrimSpace(os.ExpandEnv(c.Type))
	c.BotToken = strings.TrimSpace(os.ExpandEnv(c.BotToken))
	c.ChatID = strings.TrimSpace(os.ExpandEnv(c.ChatID))
	c.TimeoutRaw = strings.TrimSpace(os.ExpandEnv(c.TimeoutRaw))
}

// Validate ensures the transport selection is buildable.
func (c *Config) Validate() error {
	if c.Type == "" {
		c.Type = "log"
	}
	notifierRegistryMu.RLock()
	_, ok := notifierRegistry[strings.ToLower(c.Type)]
	notifierRegistryMu.RUnlock()
	if !ok {
		return fmt.Errorf("notify config: unsupported type %q", c.Type)
	}
	if strings.ToLower(c.Type) == "telegram" {
		if c.BotToken == "" {
			return fmt.Errorf("notify config: telegram requires bot_token")
		}
		if c.ChatID == "" {
			return fmt.Errorf("notify config: telegram requires chat_id")
		}
	}
	return nil
}

// Build instantiates the configured notifier.
func (c *Config) Build() (Notifier, error) {
	notifierRegistryMu.RLock()
	builder, ok := notifierRegistry[strings.ToLower(strings.TrimSpace(c.Type))]
	notifierRegistryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("notify: unsupported type %q", c.Type)
	}
	return builder(c)
}
