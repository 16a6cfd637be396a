package core

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Placeholder secrets used when neither the config file nor the environment provides a value.
// They are public and must never be relied upon in production.
const (
	DefaultSessionSecret   = "temporary_session_secret"
	DefaultUploadPublicKey = "pk_42OXvyElpcR89RtMCMWzNlLH2dPYWAL_"
	DefaultUploadSecretKey = "sk_gjBya/FZDjrloBK4RbBBZ+BK4zUda9fU5MIrnzdFB8MUXbrIkM73vRzrnvwBH0hc"
	DefaultLoginSecret     = "CDEWS-SECRET-2025"
)

const (
	defaultPort             = 5000
	defaultDatabaseType     = "sqlite"
	defaultConnectionString = "website_results.db"
	defaultUploadFolder     = "uploads"
	defaultSessionType      = "memory"
	defaultBodyLimit        = "32M"
	defaultWriteTimeout     = 10 * time.Second
)

// CommandConfig represents a generic image command configuration
type CommandConfig struct {
	Name   string         `yaml:"name"`
	Params map[string]any `yaml:",inline"`
}

type Database struct {
	Type             string `yaml:"type"`
	ConnectionString string `yaml:"connectionString"`
}

type Secrets struct {
	Session         string `yaml:"session"`
	UploadPublicKey string `yaml:"uploadPublicKey"`
	UploadSecretKey string `yaml:"uploadSecretKey"`
	Login           string `yaml:"login"`
}

type Session struct {
	Type          string        `yaml:"type"`
	RedisAddress  string        `yaml:"redisAddress"`
	RedisPassword string        `yaml:"redisPassword"`
	RedisDB       int           `yaml:"redisDB"`
	TTL           time.Duration `yaml:"ttl"`
	SecureCookie  bool          `yaml:"secureCookie"`
}

type Server struct {
	BodyLimit string `yaml:"bodyLimit"`
}

type Archive struct {
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

type ServiceConfig struct {
	Port         int             `yaml:"port"`
	Database     Database        `yaml:"database"`
	UploadFolder string          `yaml:"uploadFolder"`
	Secrets      Secrets         `yaml:"secrets"`
	Session      Session         `yaml:"session"`
	Server       Server          `yaml:"server"`
	Archive      Archive         `yaml:"archive"`
	Commands     []CommandConfig `yaml:"commands"`
}

// LoadConfig loads configuration from the specified YAML file, applies environment
// overrides and fills defaults. A missing file is not an error.
func LoadConfig(configPath string) (*ServiceConfig, error) {
	var config ServiceConfig

	data, err := os.ReadFile(configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		slog.Info("config file not found, using environment and defaults", "path", configPath)
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	default:
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
		}
	}

	if err := config.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	config.applyDefaults()

	if err := validateCommands(config.Commands); err != nil {
		return nil, fmt.Errorf("invalid command configuration: %w", err)
	}

	return &config, nil
}

// applyEnv overrides values with environment variables when they are set
func (c *ServiceConfig) applyEnv(getenv func(string) string) error {
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		c.Port = port
	}

	overrides := []struct {
		env    string
		target *string
	}{
		{"DATABASE_TYPE", &c.Database.Type},
		{"DATABASE_URL", &c.Database.ConnectionString},
		{"UPLOAD_FOLDER", &c.UploadFolder},
		{"SESSION_SECRET", &c.Secrets.Session},
		{"UPLOAD_PUBLIC_KEY", &c.Secrets.UploadPublicKey},
		{"UPLOAD_SECRET_KEY", &c.Secrets.UploadSecretKey},
		{"LOGIN_SECRET_KEY", &c.Secrets.Login},
		{"SESSION_STORE", &c.Session.Type},
		{"REDIS_ADDRESS", &c.Session.RedisAddress},
		{"REDIS_PASSWORD", &c.Session.RedisPassword},
	}
	for _, o := range overrides {
		if v := getenv(o.env); v != "" {
			*o.target = v
		}
	}
	return nil
}

func (c *ServiceConfig) applyDefaults() {
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.Database.Type == "" {
		c.Database.Type = defaultDatabaseType
	}
	if c.Database.ConnectionString == "" {
		c.Database.ConnectionString = defaultConnectionString
	}
	if c.UploadFolder == "" {
		c.UploadFolder = defaultUploadFolder
	}
	if c.Secrets.Session == "" {
		c.Secrets.Session = DefaultSessionSecret
	}
	if c.Secrets.UploadPublicKey == "" {
		c.Secrets.UploadPublicKey = DefaultUploadPublicKey
	}
	if c.Secrets.UploadSecretKey == "" {
		c.Secrets.UploadSecretKey = DefaultUploadSecretKey
	}
	if c.Secrets.Login == "" {
		c.Secrets.Login = DefaultLoginSecret
	}
	if c.Session.Type == "" {
		c.Session.Type = defaultSessionType
	}
	if c.Server.BodyLimit == "" {
		c.Server.BodyLimit = defaultBodyLimit
	}
	if c.Archive.WriteTimeout <= 0 {
		c.Archive.WriteTimeout = defaultWriteTimeout
	}
	if c.Commands == nil {
		c.Commands = []CommandConfig{{Name: "JpegConverterCommand"}}
	}
}

// InsecureSecrets returns the names of secrets that still hold their public placeholder value
func (c *ServiceConfig) InsecureSecrets() []string {
	var names []string
	if c.Secrets.Session == DefaultSessionSecret {
		names = append(names, "session")
	}
	if c.Secrets.UploadPublicKey == DefaultUploadPublicKey {
		names = append(names, "uploadPublicKey")
	}
	if c.Secrets.UploadSecretKey == DefaultUploadSecretKey {
		names = append(names, "uploadSecretKey")
	}
	if c.Secrets.Login == DefaultLoginSecret {
		names = append(names, "login")
	}
	return names
}

// validateCommands ensures all command configurations have required fields
func validateCommands(commands []CommandConfig) error {
	seenNames := make(map[string]bool)

	for i, cmd := range commands {
		// Validate name is not empty
		if cmd.Name == "" {
			return fmt.Errorf("command at index %d has empty name", i)
		}

		// Validate name is unique
		if seenNames[cmd.Name] {
			return fmt.Errorf("duplicate command name: %s", cmd.Name)
		}
		seenNames[cmd.Name] = true
	}

	return nil
}
