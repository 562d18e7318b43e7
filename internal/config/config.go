package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	API          APIConfig
	DatabaseURL  string
	RedisURL     string
	Session      SessionConfig
	Routes       RoutesConfig
	Notify       NotifyConfig
	AuditLogFile string
	Log          LogConfig
}

type APIConfig struct {
	BaseURL   string
	LoginPath string
	Timeout   time.Duration
}

type SessionConfig struct {
	CredentialFile string
}

type RoutesConfig struct {
	Login        string
	Unauthorized string
}

type NotifyConfig struct {
	PollInterval time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// fileConfig mirrors the optional YAML file named by CONSOLE_CONFIG_FILE.
type fileConfig struct {
	API struct {
		BaseURL    string `yaml:"base_url"`
		LoginPath  string `yaml:"login_path"`
		TimeoutSec int    `yaml:"timeout_sec"`
	} `yaml:"api"`
	DatabaseURL    string `yaml:"database_url"`
	RedisURL       string `yaml:"redis_url"`
	CredentialFile string `yaml:"credential_file"`
	Routes         struct {
		Login        string `yaml:"login"`
		Unauthorized string `yaml:"unauthorized"`
	} `yaml:"routes"`
	NotificationPollSec int    `yaml:"notification_poll_sec"`
	AuditLogFile        string `yaml:"audit_log_file"`
	Log                 struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load resolves each setting from, in order: the process environment, the
// dotenv file named by CONSOLE_ENV_FILE (default .env, ignored when
// missing), the YAML file named by CONSOLE_CONFIG_FILE, then the default.
func Load() (Config, error) {
	env, err := loadDotenv(getEnv("CONSOLE_ENV_FILE", ".env"))
	if err != nil {
		return Config{}, err
	}
	file, err := loadFile(env.get("CONSOLE_CONFIG_FILE", ""))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		API: APIConfig{
			BaseURL:   strings.TrimRight(env.get("CONSOLE_API_BASE_URL", orString(file.API.BaseURL, "http://localhost:8081")), "/"),
			LoginPath: env.get("CONSOLE_LOGIN_PATH", orString(file.API.LoginPath, "/api/auth/login")),
			Timeout:   time.Duration(env.getInt("CONSOLE_HTTP_TIMEOUT_SEC", orInt(file.API.TimeoutSec, 30))) * time.Second,
		},
		DatabaseURL: env.get("DATABASE_URL", file.DatabaseURL),
		RedisURL:    env.get("REDIS_URL", file.RedisURL),
		Session: SessionConfig{
			CredentialFile: env.get("CONSOLE_CREDENTIAL_FILE", orString(file.CredentialFile, "./data/credentials.json")),
		},
		Routes: RoutesConfig{
			Login:        env.get("CONSOLE_LOGIN_ROUTE", orString(file.Routes.Login, "/login")),
			Unauthorized: env.get("CONSOLE_UNAUTHORIZED_ROUTE", orString(file.Routes.Unauthorized, "/unauthorized")),
		},
		Notify: NotifyConfig{
			PollInterval: time.Duration(env.getInt("CONSOLE_NOTIFICATION_POLL_SEC", orInt(file.NotificationPollSec, 20))) * time.Second,
		},
		AuditLogFile: env.get("CONSOLE_AUDIT_LOG_FILE", orString(file.AuditLogFile, "./data/audit.log")),
		Log: LogConfig{
			Level:  strings.ToLower(env.get("LOG_LEVEL", orString(file.Log.Level, "info"))),
			Format: strings.ToLower(env.get("LOG_FORMAT", orString(file.Log.Format, "text"))),
		},
	}

	if cfg.API.BaseURL == "" {
		return Config{}, fmt.Errorf("CONSOLE_API_BASE_URL must not be empty")
	}
	if !strings.HasPrefix(cfg.API.LoginPath, "/") {
		return Config{}, fmt.Errorf("CONSOLE_LOGIN_PATH must start with /")
	}
	if cfg.API.Timeout <= 0 {
		return Config{}, fmt.Errorf("CONSOLE_HTTP_TIMEOUT_SEC must be > 0")
	}
	if cfg.DatabaseURL != "" && cfg.RedisURL != "" {
		return Config{}, fmt.Errorf("DATABASE_URL and REDIS_URL are mutually exclusive")
	}
	if cfg.Session.CredentialFile == "" && cfg.DatabaseURL == "" && cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("CONSOLE_CREDENTIAL_FILE must not be empty")
	}
	if cfg.Routes.Login == "" {
		return Config{}, fmt.Errorf("CONSOLE_LOGIN_ROUTE must not be empty")
	}
	if cfg.Routes.Unauthorized == "" {
		return Config{}, fmt.Errorf("CONSOLE_UNAUTHORIZED_ROUTE must not be empty")
	}
	if cfg.Routes.Login == cfg.Routes.Unauthorized {
		return Config{}, fmt.Errorf("CONSOLE_UNAUTHORIZED_ROUTE must differ from CONSOLE_LOGIN_ROUTE")
	}
	if cfg.Notify.PollInterval <= 0 {
		return Config{}, fmt.Errorf("CONSOLE_NOTIFICATION_POLL_SEC must be > 0")
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return Config{}, fmt.Errorf("LOG_FORMAT must be text or json, got %q", cfg.Log.Format)
	}

	return cfg, nil
}

func loadFile(path string) (fileConfig, error) {
	var fc fileConfig
	if path == "" {
		return fc, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fc, fmt.Errorf("decode config file: %w", err)
	}
	return fc, nil
}

// dotenv holds values read from a .env file. The process environment always
// wins over it.
type dotenv map[string]string

func loadDotenv(path string) (dotenv, error) {
	if path == "" {
		return dotenv{}, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		return dotenv{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read env file: %w", err)
	}
	return values, nil
}

func (d dotenv) get(key, fallback string) string {
	return getEnv(key, orString(d[key], fallback))
}

func (d dotenv) getInt(key string, fallback int) int {
	if v, ok := d[key]; ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			fallback = n
		}
	}
	return getEnvInt(key, fallback)
}

func getEnv(key, fallback string) string {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	return val
}

func getEnvInt(key string, fallback int) int {
	val, ok := os.LookupEnv(key)
	if !ok || val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func orString(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func orInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}
